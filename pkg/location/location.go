// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package location implements C2: location syntax, per-scheme fetchers,
// and the default pluggable loader (spec.md §4.2).
package location

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

// Scheme names supported by the default loader (spec.md §4.2).
const (
	SchemeFile     = "file"
	SchemeS3       = "s3"
	SchemeHTTP     = "http"
	SchemeHTTPS    = "https"
	SchemeSSM      = "ssm"
	SchemeSSMPath  = "ssm-path"
	SchemeEnv      = "env"
	SchemeGit      = "git"
	SchemeRandom   = "random"
	SchemeFileHash = "filehash"
	SchemeLiteral  = "literal"
)

var knownSchemes = map[string]bool{
	SchemeFile: true, SchemeS3: true, SchemeHTTP: true, SchemeHTTPS: true,
	SchemeSSM: true, SchemeSSMPath: true, SchemeEnv: true, SchemeGit: true,
	SchemeRandom: true, SchemeFileHash: true, SchemeLiteral: true,
}

// Location is the parsed form of "scheme:payload[:format]" (spec.md §4.2).
type Location struct {
	Raw      string
	Scheme   string
	Payload  string
	Format   *docmodel.Format // nil means unspecified; inferred from extension later
	Explicit bool             // true if Raw carried an explicit "scheme:" prefix
}

// ParseLocation parses a bare location string with no base-location context.
// Absence of a scheme means "file" (spec.md §4.2).
func ParseLocation(raw string) Location {
	scheme, payload, explicit := splitScheme(raw)

	loc := Location{Raw: raw, Scheme: scheme, Payload: payload, Explicit: explicit}

	for suffix, f := range map[string]docmodel.Format{
		":yaml": docmodel.FormatYAML,
		":yml":  docmodel.FormatYAML,
		":json": docmodel.FormatJSON,
	} {
		if strings.HasSuffix(loc.Payload, suffix) {
			format := f
			loc.Payload = strings.TrimSuffix(loc.Payload, suffix)
			loc.Format = &format
			break
		}
	}

	return loc
}

func splitScheme(raw string) (scheme, payload string, explicit bool) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return SchemeFile, raw, false
	}
	candidate := raw[:idx]
	if knownSchemes[candidate] {
		return candidate, raw[idx+1:], true
	}
	return SchemeFile, raw, false
}

// ResolveChild resolves a child location expression against a base Location,
// applying the scheme-inheritance rule and remote security boundary of
// spec.md §4.2: a base whose scheme is s3/http passes its scheme to
// unscoped children, and rejects children explicitly scoped "file:"/"env:".
func ResolveChild(childRaw string, base Location) (Location, error) {
	child := ParseLocation(childRaw)
	baseIsRemote := base.Scheme == SchemeS3 || base.Scheme == SchemeHTTP || base.Scheme == SchemeHTTPS

	if !child.Explicit {
		if baseIsRemote {
			child.Scheme = base.Scheme
		}
	} else if baseIsRemote && (child.Scheme == SchemeFile || child.Scheme == SchemeEnv) {
		return Location{}, fmt.Errorf(
			"location %q: remote base %q may not import a local %q location (security boundary)",
			childRaw, base.Raw, child.Scheme)
	}

	switch child.Scheme {
	case SchemeFile:
		child.Payload = resolveRelativeFilePath(child.Payload, base)
	case SchemeS3:
		child.Payload = resolveRelativeS3Key(child.Payload, base)
	}

	return child, nil
}

func resolveRelativeFilePath(p string, base Location) string {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	if base.Scheme != SchemeFile || base.Payload == "" {
		return p
	}
	return filepath.Join(filepath.Dir(base.Payload), p)
}

func resolveRelativeS3Key(p string, base Location) string {
	if base.Scheme != SchemeS3 {
		return p
	}
	baseBucket, baseKey := splitS3Path(strings.TrimPrefix(base.Payload, "//"))
	bucket, key := splitS3Path(strings.TrimPrefix(p, "//"))
	if bucket != "" {
		return "//" + bucket + "/" + key
	}
	return "//" + baseBucket + "/" + path.Join(path.Dir(baseKey), key)
}

func splitS3Path(p string) (bucket, key string) {
	idx := strings.Index(p, "/")
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}
