// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package location

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

// LoadResult is the loader contract's return value (spec.md §6).
type LoadResult struct {
	ImportType       string
	ResolvedLocation string
	Data             string
	Doc              *docmodel.Node
}

// Loader is the pluggable location-fetcher spec.md §6 describes: the test
// seam for transform(). Its default implementation is the DefaultLoader
// below (C2).
type Loader func(ctx context.Context, location string, base Location) (LoadResult, error)

// DefaultLoader is C2's concrete loader: classifies by scheme, resolves
// relative references, fetches bytes, and decodes into a Node.
type DefaultLoader struct {
	Logger    zerolog.Logger
	S3Client  *s3.Client
	SSMClient *ssm.Client
	HomeDir   string
}

// NewDefaultLoader constructs a DefaultLoader with a no-op logger; callers
// needing diagnostics set Logger explicitly (zerolog's own idiom: logging
// is opt-in, see SPEC_FULL.md §1).
func NewDefaultLoader() *DefaultLoader {
	return &DefaultLoader{Logger: zerolog.Nop()}
}

// Load implements the Loader contract for a child location expression
// resolved against a base Location.
func (l *DefaultLoader) Load(ctx context.Context, childRaw string, base Location) (LoadResult, error) {
	loc, err := ResolveChild(childRaw, base)
	if err != nil {
		return LoadResult{}, err
	}

	l.Logger.Debug().Str("scheme", loc.Scheme).Str("payload", loc.Payload).Str("base", base.Raw).Msg("loading import")
	if loc.Scheme == SchemeFile && base.Scheme != "" && base.Scheme != SchemeFile {
		l.Logger.Warn().Str("location", loc.Raw).Str("base", base.Raw).Msg("file import from a non-file base location")
	}

	switch loc.Scheme {
	case SchemeFile:
		return l.loadFile(loc)
	case SchemeS3:
		return l.loadS3(ctx, loc)
	case SchemeHTTP, SchemeHTTPS:
		return l.loadHTTP(ctx, loc)
	case SchemeSSM:
		return l.loadSSM(ctx, loc)
	case SchemeSSMPath:
		return l.loadSSMPath(ctx, loc)
	case SchemeEnv:
		return l.loadEnv(loc)
	case SchemeGit:
		return l.loadGit(ctx, loc)
	case SchemeRandom:
		return l.loadRandom(loc)
	case SchemeFileHash:
		return l.loadFileHash(loc)
	case SchemeLiteral:
		return l.loadLiteral(loc)
	default:
		return LoadResult{}, fmt.Errorf("unknown import scheme %q in location %q", loc.Scheme, loc.Raw)
	}
}

// decode applies spec.md §4.2's decoding rule: an explicit :json/:yaml
// format suffix wins, otherwise the file extension of the payload decides,
// otherwise the data is kept as a raw string.
func decode(data []byte, loc Location) (*docmodel.Node, error) {
	format := docmodel.FormatFromExtension(extOf(loc.Payload))
	if loc.Format != nil {
		format = *loc.Format
	}
	return docmodel.Parse(data, loc.Raw, format)
}

func extOf(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}
