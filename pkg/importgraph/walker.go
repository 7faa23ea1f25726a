// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package importgraph implements C3: the recursive $imports/$defs/$params
// walker that populates a document's $envValues (spec.md §4.3).
package importgraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
	"github.com/carvel-forks/stackform/pkg/interpolate"
	"github.com/carvel-forks/stackform/pkg/location"
)

// MaxDepth bounds import recursion. spec.md's Non-goals explicitly exclude
// cycle detection other than via a depth limit (§1, §9).
const MaxDepth = 100

// Walk populates and returns doc's $envValues, recursively loading
// $imports and resolving $defs/$params name collisions, in declaration
// order (spec.md §4.3). The result is also recorded via ann.SetEnvValues
// so C4 can re-enter the document hygienically later.
func Walk(ctx context.Context, doc *docmodel.Node, baseLocation string, loader location.Loader,
	accum *env.GlobalAccumulator, ann *env.Annotations) (*env.Env, error) {

	return walk(ctx, doc, baseLocation, loader, accum, ann, 0)
}

func walk(ctx context.Context, doc *docmodel.Node, baseLocation string, loader location.Loader,
	accum *env.GlobalAccumulator, ann *env.Annotations, depth int) (*env.Env, error) {

	if depth > MaxDepth {
		return nil, fmt.Errorf("import depth exceeded %d while loading %q (possible import cycle)", MaxDepth, baseLocation)
	}
	if !doc.IsMap() {
		return env.New(baseLocation), nil
	}

	e := env.New(baseLocation)
	names := map[string]bool{}

	if imports := doc.Get(docmodel.MetaImports); imports != nil {
		if !imports.IsMap() {
			return nil, fmt.Errorf("%s: $imports must be a mapping of name to location", baseLocation)
		}
		for _, item := range imports.MapVal.Items {
			asKey := item.Key

			locExprNode := item.Value
			locExpr, err := locExprNode.AsString()
			if err != nil {
				return nil, fmt.Errorf("%s: $imports[%q] must be a string location", baseLocation, asKey)
			}
			if interpolate.HasExpr(locExpr) {
				locExpr, err = interpolate.Render(locExpr, e.Values)
				if err != nil {
					return nil, fmt.Errorf("%s: $imports[%q]: %w", baseLocation, asKey, err)
				}
			}

			baseLoc := location.ParseLocation(baseLocation)
			result, err := loader(ctx, locExpr, baseLoc)
			if err != nil {
				return nil, fmt.Errorf("%s: importing %q (%s): %w", baseLocation, asKey, locExpr, err)
			}

			if result.Doc.IsMap() {
				ann.SetLocation(result.Doc, result.ResolvedLocation)
			}

			digest := sha256.Sum256([]byte(result.Data))
			accum.AppendImport(env.ImportRecord{
				Key:          asKey,
				From:         baseLocation,
				Imported:     result.ResolvedLocation,
				SHA256Digest: hex.EncodeToString(digest[:]),
			})

			if names[asKey] {
				return nil, fmt.Errorf("%s: name %q is bound more than once across $imports/$defs/$params", baseLocation, asKey)
			}
			names[asKey] = true
			e.Values[asKey] = result.Doc

			if result.Doc.IsMap() && (result.Doc.Has(docmodel.MetaImports) || result.Doc.Has(docmodel.MetaDefs)) {
				subEnv, err := walk(ctx, result.Doc, result.ResolvedLocation, loader, accum, ann, depth+1)
				if err != nil {
					return nil, err
				}
				ann.SetEnvValues(result.Doc, subEnv)
			}
		}
	}

	if defs := doc.Get(docmodel.MetaDefs); defs != nil {
		if !defs.IsMap() {
			return nil, fmt.Errorf("%s: $defs must be a mapping", baseLocation)
		}
		for _, item := range defs.MapVal.Items {
			if names[item.Key] {
				return nil, fmt.Errorf("%s: name %q is bound more than once across $imports/$defs/$params", baseLocation, item.Key)
			}
			names[item.Key] = true
			e.Values[item.Key] = item.Value
		}
	}

	if params := doc.Get(docmodel.MetaParams); params != nil {
		if !params.IsSeq() {
			return nil, fmt.Errorf("%s: $params must be a sequence", baseLocation)
		}
		for _, p := range params.SeqVal {
			nameNode := p.Get("Name")
			if nameNode == nil {
				return nil, fmt.Errorf("%s: $params entry missing required Name", baseLocation)
			}
			name, err := nameNode.AsString()
			if err != nil {
				return nil, fmt.Errorf("%s: $params entry Name must be a string", baseLocation)
			}
			if names[name] {
				return nil, fmt.Errorf("%s: name %q is bound more than once across $imports/$defs/$params", baseLocation, name)
			}
			names[name] = true
		}
	}

	ann.SetEnvValues(doc, e)
	return e, nil
}
