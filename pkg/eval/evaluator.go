// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package eval implements C4: the tree-walking macro evaluator that turns
// a document tree (plus its bound $envValues) into a fully-resolved output
// tree, dispatching on tag kind and splicing resource templates via the
// template expander (C5) when a Resources entry's Type resolves to a
// bound template rather than a literal CloudFormation resource type
// (spec.md §4.4).
package eval

import (
	"fmt"
	"strings"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
	"github.com/carvel-forks/stackform/pkg/expander"
	"github.com/carvel-forks/stackform/pkg/interpolate"
)

// Evaluator holds the state shared across one transform invocation: the
// global-section accumulator and the $envValues/$location side-table
// populated by the import walker (C3).
type Evaluator struct {
	Accum *env.GlobalAccumulator
	Ann   *env.Annotations
}

// New returns an Evaluator bound to the accumulator and annotation
// side-table produced by C3.
func New(accum *env.GlobalAccumulator, ann *env.Annotations) *Evaluator {
	return &Evaluator{Accum: accum, Ann: ann}
}

// Eval is the recursive entry point, injected into pkg/expander as an
// env.EvalFunc value.
func (ev *Evaluator) Eval(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	if n == nil || n.IsNull() {
		return docmodel.NewNull(), nil
	}

	switch {
	case n.IsScalar():
		return ev.evalScalar(n, e)
	case n.IsTag():
		return ev.evalTag(n, e)
	case n.IsSeq():
		return ev.evalSeq(n, e)
	case n.IsMap():
		return ev.evalPlainMap(n, e)
	default:
		return n, nil
	}
}

func (ev *Evaluator) evalScalar(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	s, ok := n.Scalar.(string)
	if !ok || !interpolate.HasExpr(s) {
		return n, nil
	}
	rendered, err := interpolate.Render(s, e.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Frame.PathString(), err)
	}
	return docmodel.NewString(rendered), nil
}

func (ev *Evaluator) evalSeq(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	out := make([]*docmodel.Node, 0, len(n.SeqVal))
	for i, item := range n.SeqVal {
		val, err := ev.Eval(item, e.Path(fmt.Sprintf("[%d]", i)))
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return docmodel.NewSeq(out...), nil
}

// evalPlainMap evaluates an ordinary mapping, honoring $merge splicing and
// dispatching Resources entries to the template expander when a Type
// resolves to a bound template document rather than a literal resource
// type string (spec.md §4.4, §4.5).
func (ev *Evaluator) evalPlainMap(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	out := docmodel.NewMap()
	inResources := len(e.Frame.Path) > 0 && e.Frame.Path[len(e.Frame.Path)-1] == "Resources"

	for _, item := range n.MapVal.Items {
		key := item.Key

		if docmodel.IsMetaKey(key) {
			if key == docmodel.MetaParams && len(e.Frame.Path) != 0 {
				return nil, fmt.Errorf("%s: $params is only permitted at a document's root", e.Frame.PathString())
			}
			continue
		}

		if isMergeKey(key) {
			evaluated, err := ev.Eval(item.Value, e.Path(key))
			if err != nil {
				return nil, err
			}
			if !evaluated.IsMap() {
				return nil, fmt.Errorf("%s: %s must evaluate to a mapping", e.Frame.PathString(), key)
			}
			if err := out.MergeFrom(evaluated); err != nil {
				return nil, fmt.Errorf("%s: %w", e.Frame.PathString(), err)
			}
			continue
		}

		if inResources {
			emitted, handled, err := ev.expandResourceEntry(key, item.Value, e)
			if err != nil {
				return nil, err
			}
			if handled {
				for _, r := range emitted {
					out.Set(r.Key, r.Value)
				}
				continue
			}
		}

		val, err := ev.Eval(item.Value, e.Path(key))
		if err != nil {
			return nil, err
		}
		out.Set(key, val)
	}
	return out, nil
}

// isMergeKey matches "$merge" and any suffixed variant ("$merge1", "$mergeFoo", ...)
// so a single mapping can splice more than one $merge without a key collision
// on the meta-key itself (spec.md §4.4; SPEC_FULL.md §3).
func isMergeKey(key string) bool {
	return strings.HasPrefix(key, "$merge")
}

// expandResourceEntry checks whether a Resources entry's Type resolves to a
// bound template (a document carrying $params) rather than a plain
// CloudFormation resource type string. If so it delegates to the template
// expander and returns the prefixed resources it emits; otherwise it
// reports handled=false so the caller evaluates the entry as an ordinary
// mapping (spec.md §4.5).
func (ev *Evaluator) expandResourceEntry(name string, entry *docmodel.Node, e *env.Env) ([]docmodel.MapItem, bool, error) {
	typeNode := entry.Get("Type")
	if typeNode == nil || !typeNode.IsScalar() {
		return nil, false, nil
	}
	typeName, err := typeNode.AsString()
	if err != nil {
		return nil, false, nil
	}

	template, ok := e.Lookup(typeName)
	if !ok || !template.IsMap() || !template.Has(docmodel.MetaParams) {
		return nil, false, nil
	}

	var templateEnv *env.Env
	if te, ok := ev.Ann.EnvValues(template); ok {
		templateEnv = te
	}

	resources, err := expander.Expand(ev.Eval, ev.Accum, e, templateEnv, name, entry, template)
	if err != nil {
		return nil, true, err
	}

	out := make([]docmodel.MapItem, 0, len(resources))
	for k, v := range resources {
		out = append(out, docmodel.MapItem{Key: k, Value: v})
	}
	return out, true, nil
}

// evalImportedDoc re-enters an imported document's body. Per spec.md §4.4's
// "Imported-document re-entry" and the §4.3 hygiene invariant, a document
// carrying its own recorded $envValues must have every non-template entry
// of that scope evaluated IN THAT SCOPE first (so an intra-import $include
// resolves against the import's own bindings, not whatever happened to be
// in the caller's environment), before the document body is walked in the
// merge of that processed scope onto the outer environment.
func (ev *Evaluator) evalImportedDoc(doc *docmodel.Node, outer *env.Env) (*docmodel.Node, error) {
	self, ok := ev.Ann.EnvValues(doc)
	if !ok {
		return ev.Eval(doc, outer)
	}

	processed := make(map[string]*docmodel.Node, len(self.Values))
	for name, val := range self.Values {
		if val.IsMap() && val.Has(docmodel.MetaParams) {
			// Templates are never evaluated directly (spec.md §3 invariant 4);
			// they're expanded later via $expand or a Resources Type lookup.
			processed[name] = val
			continue
		}
		evaluated, err := ev.Eval(val, self.Path(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", self.Frame.PathString(), err)
		}
		processed[name] = evaluated
	}

	merged := outer.WithMany(processed).WithFrame(self.Frame)
	return ev.Eval(doc, merged)
}
