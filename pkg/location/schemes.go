// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package location

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

func (l *DefaultLoader) loadFile(loc Location) (LoadResult, error) {
	p := expandHome(loc.Payload, l.HomeDir)

	data, err := os.ReadFile(p)
	if err != nil {
		return LoadResult{}, fmt.Errorf("reading file %q: %w", p, err)
	}
	doc, err := decode(data, loc)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{ImportType: SchemeFile, ResolvedLocation: "file:" + p, Data: string(data), Doc: doc}, nil
}

func expandHome(p, home string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (l *DefaultLoader) loadS3(ctx context.Context, loc Location) (LoadResult, error) {
	if l.S3Client == nil {
		return LoadResult{}, fmt.Errorf("s3 location %q: no S3 client configured", loc.Raw)
	}
	bucket, key := splitS3Path(strings.TrimPrefix(loc.Payload, "//"))
	out, err := l.S3Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetching s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return LoadResult{}, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}
	doc, err := decode(data, loc)
	if err != nil {
		return LoadResult{}, err
	}
	resolved := fmt.Sprintf("s3://%s/%s", bucket, key)
	return LoadResult{ImportType: SchemeS3, ResolvedLocation: resolved, Data: string(data), Doc: doc}, nil
}

func (l *DefaultLoader) loadHTTP(ctx context.Context, loc Location) (LoadResult, error) {
	url := loc.Scheme + ":" + loc.Payload

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("building request for %q: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetching %q: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoadResult{}, fmt.Errorf("reading %q: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return LoadResult{}, fmt.Errorf("fetching %q: HTTP %d", url, resp.StatusCode)
	}
	doc, err := decode(data, loc)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{ImportType: loc.Scheme, ResolvedLocation: url, Data: string(data), Doc: doc}, nil
}

func (l *DefaultLoader) loadSSM(ctx context.Context, loc Location) (LoadResult, error) {
	if l.SSMClient == nil {
		return LoadResult{}, fmt.Errorf("ssm location %q: no SSM client configured", loc.Raw)
	}
	out, err := l.SSMClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(loc.Payload),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetching ssm parameter %q: %w", loc.Payload, err)
	}
	val := aws.ToString(out.Parameter.Value)
	doc, err := decode([]byte(val), loc)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{ImportType: SchemeSSM, ResolvedLocation: "ssm:" + loc.Payload, Data: val, Doc: doc}, nil
}

// loadSSMPath fetches all parameters under a prefix, normalised to end with
// "/", and strips the prefix from each returned relative key (spec.md §4.2,
// §8 item 9).
func (l *DefaultLoader) loadSSMPath(ctx context.Context, loc Location) (LoadResult, error) {
	if l.SSMClient == nil {
		return LoadResult{}, fmt.Errorf("ssm-path location %q: no SSM client configured", loc.Raw)
	}
	prefix := loc.Payload
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	result := docmodel.NewMap()
	var nextToken *string
	for {
		out, err := l.SSMClient.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return LoadResult{}, fmt.Errorf("fetching ssm-path %q: %w", prefix, err)
		}
		for _, p := range out.Parameters {
			name := strings.TrimPrefix(aws.ToString(p.Name), prefix)
			result.Set(name, docmodel.NewString(aws.ToString(p.Value)))
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return LoadResult{ImportType: SchemeSSMPath, ResolvedLocation: "ssm-path:" + prefix, Doc: result}, nil
}

func (l *DefaultLoader) loadEnv(loc Location) (LoadResult, error) {
	name, def, hasDefault := strings.Cut(loc.Payload, ":")
	val, ok := os.LookupEnv(name)
	if !ok {
		if !hasDefault {
			return LoadResult{}, fmt.Errorf("env location %q: environment variable %q is not set and no default was given", loc.Raw, name)
		}
		val = def
	}
	return LoadResult{ImportType: SchemeEnv, ResolvedLocation: "env:" + name, Data: val, Doc: docmodel.NewString(val)}, nil
}

func (l *DefaultLoader) loadGit(ctx context.Context, loc Location) (LoadResult, error) {
	var args []string
	switch loc.Payload {
	case "branch":
		args = []string{"rev-parse", "--abbrev-ref", "HEAD"}
	case "describe":
		args = []string{"describe", "--always", "--tags"}
	case "sha":
		args = []string{"rev-parse", "HEAD"}
	default:
		return LoadResult{}, fmt.Errorf("git location %q: unknown selector %q (want branch|describe|sha)", loc.Raw, loc.Payload)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return LoadResult{}, fmt.Errorf("git location %q: %w", loc.Raw, err)
	}
	val := strings.TrimSpace(out.String())
	return LoadResult{ImportType: SchemeGit, ResolvedLocation: loc.Raw, Data: val, Doc: docmodel.NewString(val)}, nil
}

// loadRandom implements spec.md §4.2's random: scheme and preserves the
// open-question behaviour of §9: random:name strips only the first dash of
// the generated dashed-name.
func (l *DefaultLoader) loadRandom(loc Location) (LoadResult, error) {
	switch loc.Payload {
	case "dashed-name":
		val := uuid.New().String()
		return LoadResult{ImportType: SchemeRandom, ResolvedLocation: loc.Raw, Data: val, Doc: docmodel.NewString(val)}, nil
	case "name":
		dashed := uuid.New().String()
		val := strings.Replace(dashed, "-", "", 1)
		return LoadResult{ImportType: SchemeRandom, ResolvedLocation: loc.Raw, Data: val, Doc: docmodel.NewString(val)}, nil
	case "int":
		n := randomInt(1, 1000)
		return LoadResult{ImportType: SchemeRandom, ResolvedLocation: loc.Raw, Data: strconv.Itoa(n), Doc: docmodel.NewScalar(int64(n))}, nil
	default:
		return LoadResult{}, fmt.Errorf("random location %q: unknown selector %q (want dashed-name|name|int)", loc.Raw, loc.Payload)
	}
}

// randomInt returns a value in [lo, hi).
func randomInt(lo, hi int) int {
	span := uint32(hi - lo)
	b := uuid.New() // reuse uuid's crypto/rand-backed entropy rather than a second RNG dependency
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return lo + int(v%span)
}

func (l *DefaultLoader) loadFileHash(loc Location) (LoadResult, error) {
	p := expandHome(loc.Payload, l.HomeDir)

	info, err := os.Stat(p)
	if err != nil {
		return LoadResult{}, fmt.Errorf("filehash location %q: %w", loc.Raw, err)
	}

	h := sha256.New()
	if info.IsDir() {
		var paths []string
		err := filepath.Walk(p, func(walked string, fi os.FileInfo, err error) error {
			if err != nil || fi.IsDir() {
				return err
			}
			paths = append(paths, walked)
			return nil
		})
		if err != nil {
			return LoadResult{}, fmt.Errorf("filehash location %q: %w", loc.Raw, err)
		}
		sort.Strings(paths)
		for _, fp := range paths {
			data, err := os.ReadFile(fp)
			if err != nil {
				return LoadResult{}, fmt.Errorf("filehash location %q: %w", loc.Raw, err)
			}
			fmt.Fprintf(h, "%s\n", fp)
			h.Write(data)
		}
	} else {
		data, err := os.ReadFile(p)
		if err != nil {
			return LoadResult{}, fmt.Errorf("filehash location %q: %w", loc.Raw, err)
		}
		h.Write(data)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	return LoadResult{ImportType: SchemeFileHash, ResolvedLocation: loc.Raw, Data: digest, Doc: docmodel.NewString(digest)}, nil
}

func (l *DefaultLoader) loadLiteral(loc Location) (LoadResult, error) {
	l.Logger.Warn().Str("location", loc.Raw).Msg("literal: locations are deprecated")
	return LoadResult{ImportType: SchemeLiteral, ResolvedLocation: loc.Raw, Data: loc.Payload, Doc: docmodel.NewString(loc.Payload)}, nil
}
