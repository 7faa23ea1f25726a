// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package env implements the Environment/Frame/GlobalAccumulator/ImportRecord
// data model shared by the import walker (C3), the evaluator (C4), and the
// template expander (C5) — spec.md §3.
package env

import (
	"strings"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

// EvalFunc is the evaluator's recursive entry point (C4), injected into the
// template expander (C5) as a plain function value so that pkg/expander
// never imports pkg/eval — the two packages would otherwise form a cycle
// (eval delegates Resources entries to expander; expander needs to
// recursively evaluate Overrides/Properties/bodies).
type EvalFunc func(n *docmodel.Node, e *Env) (*docmodel.Node, error)

// Frame records the active lexical scope's location and dotted path, used
// for diagnostics (spec.md §3 "Environment / frame").
type Frame struct {
	Location string
	Path     []string
}

// WithPath returns a copy of f with seg appended to the path.
func (f Frame) WithPath(seg string) Frame {
	newPath := make([]string, len(f.Path)+1)
	copy(newPath, f.Path)
	newPath[len(f.Path)] = seg
	return Frame{Location: f.Location, Path: newPath}
}

// WithLocation returns a copy of f bound to a new source location, keeping
// the existing path (used when descending into an imported document, whose
// body is evaluated relative to its own location but the caller's path is
// still meaningful for diagnostics).
func (f Frame) WithLocation(loc string) Frame {
	return Frame{Location: loc, Path: f.Path}
}

// PathString renders the frame's path as a dotted string for error messages.
func (f Frame) PathString() string {
	return strings.Join(f.Path, ".")
}

// Env is the immutable-by-convention environment described in spec.md §3:
// a frame plus the active $envValues mapping and the active template Prefix.
// Sub-environments are constructed by copy-on-extend; nothing in this type
// is ever mutated in place once published to a caller.
type Env struct {
	Values map[string]*docmodel.Node
	Prefix string
	Frame  Frame
}

// New returns an empty root environment at the given location.
func New(location string) *Env {
	return &Env{
		Values: map[string]*docmodel.Node{},
		Frame:  Frame{Location: location},
	}
}

// Lookup resolves a name bound in $envValues.
func (e *Env) Lookup(name string) (*docmodel.Node, bool) {
	v, ok := e.Values[name]
	return v, ok
}

// With returns a new Env extending e with one additional binding.
func (e *Env) With(name string, val *docmodel.Node) *Env {
	return e.WithMany(map[string]*docmodel.Node{name: val})
}

// WithMany returns a new Env extending e with additional bindings; bindings
// collide-and-win over any existing name of the same key (used by $let,
// $map, and template sub-environment construction).
func (e *Env) WithMany(bindings map[string]*docmodel.Node) *Env {
	merged := make(map[string]*docmodel.Node, len(e.Values)+len(bindings))
	for k, v := range e.Values {
		merged[k] = v
	}
	for k, v := range bindings {
		merged[k] = v
	}
	return &Env{Values: merged, Prefix: e.Prefix, Frame: e.Frame}
}

// WithPrefix returns a new Env with the active template-expansion Prefix set.
func (e *Env) WithPrefix(prefix string) *Env {
	return &Env{Values: e.Values, Prefix: prefix, Frame: e.Frame}
}

// WithFrame returns a new Env with a different diagnostic frame.
func (e *Env) WithFrame(f Frame) *Env {
	return &Env{Values: e.Values, Prefix: e.Prefix, Frame: f}
}

// Path descends the frame's path by one segment.
func (e *Env) Path(seg string) *Env {
	return e.WithFrame(e.Frame.WithPath(seg))
}
