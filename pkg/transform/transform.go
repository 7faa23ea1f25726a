// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transform implements C6 and the public entry point: it wires the
// import walker (C3), the evaluator (C4), and the template expander (C5)
// together, then assembles and stamps the final output document
// (spec.md §4.6).
package transform

import (
	"context"
	"fmt"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
	"github.com/carvel-forks/stackform/pkg/eval"
	"github.com/carvel-forks/stackform/pkg/importgraph"
	"github.com/carvel-forks/stackform/pkg/location"
)

// Kind classifies an Error for callers that want to branch on failure mode
// (spec.md §1 "a small number of well-defined error classes" — SPEC_FULL.md
// Ambient Stack §1).
type Kind int

const (
	KindUnknown Kind = iota
	KindLoad
	KindParse
	KindHygiene
	KindEval
	KindExpand
	KindAssemble
)

// Error wraps a failure with the pipeline stage that failed and the
// location of the root document, in the idiom of SPEC_FULL.md's Ambient
// Stack error-handling section. Transform leaves Path empty; evaluator
// failures carry the dotted path in the wrapped error's message.
type Error struct {
	Kind     Kind
	Location string
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %s", e.Location, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transform loads rootLocation via loader, walks its import graph, evaluates
// its body, and assembles the final output document (C3 through C6,
// spec.md §4).
func Transform(ctx context.Context, rootLocation string, loader location.Loader) (*docmodel.Node, error) {
	rootResult, err := loader(ctx, rootLocation, location.Location{})
	if err != nil {
		return nil, &Error{Kind: KindLoad, Location: rootLocation, Err: err}
	}

	accum := env.NewGlobalAccumulator()
	ann := env.NewAnnotations()

	rootEnv, err := importgraph.Walk(ctx, rootResult.Doc, rootResult.ResolvedLocation, loader, accum, ann)
	if err != nil {
		return nil, &Error{Kind: KindHygiene, Location: rootResult.ResolvedLocation, Err: err}
	}

	evaluator := eval.New(accum, ann)
	evaluated, err := evaluator.Eval(rootResult.Doc, rootEnv)
	if err != nil {
		return nil, &Error{Kind: KindEval, Location: rootResult.ResolvedLocation, Err: err}
	}
	if !evaluated.IsMap() {
		return nil, &Error{Kind: KindEval, Location: rootResult.ResolvedLocation,
			Err: fmt.Errorf("document must evaluate to a mapping, got %s", describeKind(evaluated))}
	}

	out, err := assemble(evaluated, accum)
	if err != nil {
		return nil, &Error{Kind: KindAssemble, Location: rootResult.ResolvedLocation, Err: err}
	}
	return out, nil
}

func describeKind(n *docmodel.Node) string {
	switch {
	case n.IsSeq():
		return "sequence"
	case n.IsScalar():
		return "scalar"
	case n.IsTag():
		return "tagged node"
	default:
		return "null"
	}
}
