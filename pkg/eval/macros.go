// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"fmt"
	"strings"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
)

// evalTag dispatches a tagged node to its macro handler, or treats it as a
// generic passthrough tag (e.g. GetAtt, Sub, Condition) whose payload is
// simply recursed into (spec.md §4.4).
func (ev *Evaluator) evalTag(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	switch n.Tag {
	case docmodel.TagRef:
		return ev.evalRef(n, e)
	case docmodel.TagInclude:
		return ev.evalInclude(n, e)
	case docmodel.TagExpand:
		return ev.evalExpand(n, e)
	case docmodel.TagEscape:
		return n.Payload.DeepCopy(), nil
	case docmodel.TagString:
		return ev.evalString(n, e)
	case docmodel.TagParseYAML:
		return ev.evalParseYAML(n, e)
	case docmodel.TagLet:
		return ev.evalLet(n, e)
	case docmodel.TagMap:
		return ev.evalMapPayload(n, e)
	case docmodel.TagFlatten:
		return ev.evalFlatten(n, e)
	case docmodel.TagConcatMap:
		return ev.evalConcatMap(n, e)
	case docmodel.TagMapListToHash:
		return ev.evalMapListToHash(n, e)
	case docmodel.TagFromPairs:
		return ev.evalFromPairs(n, e)
	default:
		payload, err := ev.Eval(n.Payload, e)
		if err != nil {
			return nil, err
		}
		return docmodel.NewTag(n.Tag, payload), nil
	}
}

// evalRef resolves !Ref: a pseudo-parameter reference (payload prefixed
// "AWS:") is preserved byte-identical, and any other payload is rewritten
// to Prefix+payload. Ref never consults $envValues — that's $include's job
// (spec.md §4.4 "Ref rewriting", Testable Property 5).
func (ev *Evaluator) evalRef(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	name, err := n.Payload.AsString()
	if err != nil {
		return nil, fmt.Errorf("%s: Ref payload must be a string", e.Frame.PathString())
	}

	if strings.HasPrefix(name, "AWS:") {
		return docmodel.NewTag(docmodel.TagRef, docmodel.NewString(name)), nil
	}

	return docmodel.NewTag(docmodel.TagRef, docmodel.NewString(e.Prefix+name)), nil
}

// evalInclude resolves !$include, a dotted selector into $envValues whose
// resolved subtree is itself evaluated (spec.md §4.4).
func (ev *Evaluator) evalInclude(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	selector, err := n.Payload.AsString()
	if err != nil {
		return nil, fmt.Errorf("%s: $include payload must be a string selector", e.Frame.PathString())
	}
	segs := splitDotted(selector)
	root, ok := e.Lookup(segs[0])
	if !ok {
		return nil, fmt.Errorf("%s: $include: unbound name %q", e.Frame.PathString(), segs[0])
	}
	resolved, err := root.Drill(segs[1:])
	if err != nil {
		return nil, fmt.Errorf("%s: $include %q: %w", e.Frame.PathString(), selector, err)
	}
	return ev.evalImportedDoc(resolved, e)
}

// evalExpand resolves !$expand {template, params}: clone the named template,
// evaluate it in a sub-environment that merges the outer $envValues with the
// supplied params, having deleted $params from the clone first. Unlike a
// Resources entry whose Type names a template, this is a bare clone+merge —
// it never touches the name-prefixing/global-hoisting machinery of §4.5
// (spec.md §4.4).
func (ev *Evaluator) evalExpand(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	if !n.Payload.IsMap() {
		return nil, fmt.Errorf("%s: $expand payload must be a mapping", e.Frame.PathString())
	}
	templateNameNode := n.Payload.Get("template")
	if templateNameNode == nil {
		return nil, fmt.Errorf("%s: $expand requires a template key", e.Frame.PathString())
	}
	templateName, err := templateNameNode.AsString()
	if err != nil {
		return nil, fmt.Errorf("%s: $expand template must be a string", e.Frame.PathString())
	}
	template, ok := e.Lookup(templateName)
	if !ok || !template.IsMap() {
		return nil, fmt.Errorf("%s: $expand: unbound template %q", e.Frame.PathString(), templateName)
	}

	params := map[string]*docmodel.Node{}
	if paramsNode := n.Payload.Get("params"); paramsNode != nil {
		evaluated, err := ev.Eval(paramsNode, e.Path("params"))
		if err != nil {
			return nil, err
		}
		if !evaluated.IsMap() {
			return nil, fmt.Errorf("%s: $expand params must evaluate to a mapping", e.Frame.PathString())
		}
		for _, item := range evaluated.MapVal.Items {
			params[item.Key] = item.Value
		}
	}

	clone := template.DeepCopy()
	clone.Delete(docmodel.MetaParams)

	subEnv := e.WithMany(params)
	return ev.Eval(clone, subEnv)
}

// evalString resolves !$string v: evaluate v, unwrap it first if it is a
// singleton sequence, then serialise the result as YAML and return it as a
// single string (spec.md §4.4).
func (ev *Evaluator) evalString(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	evaluated, err := ev.Eval(n.Payload, e)
	if err != nil {
		return nil, err
	}
	if evaluated.IsSeq() && len(evaluated.SeqVal) == 1 {
		evaluated = evaluated.SeqVal[0]
	}
	b, err := docmodel.Dump(evaluated, docmodel.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: $string: %w", e.Frame.PathString(), err)
	}
	return docmodel.NewString(strings.TrimRight(string(b), "\n")), nil
}

// evalParseYAML resolves !$parseYaml, the inverse of !$string: its payload
// must evaluate to a string, which is parsed as YAML and then itself
// evaluated for embedded macros (spec.md §4.4).
func (ev *Evaluator) evalParseYAML(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	evaluated, err := ev.Eval(n.Payload, e)
	if err != nil {
		return nil, err
	}
	s, err := evaluated.AsString()
	if err != nil {
		return nil, fmt.Errorf("%s: $parseYaml payload must evaluate to a string", e.Frame.PathString())
	}
	parsed, err := docmodel.Parse([]byte(s), e.Frame.Location, docmodel.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: $parseYaml: %w", e.Frame.PathString(), err)
	}
	return ev.Eval(parsed, e)
}

// evalLet resolves !$let {...bindings, in: body}: every key but "in" is a
// binding, each evaluated in the outer environment (bindings do not see each
// other), then "in" is evaluated in the environment extended by all of them
// (spec.md §4.4).
func (ev *Evaluator) evalLet(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	if !n.Payload.IsMap() {
		return nil, fmt.Errorf("%s: $let payload must be a mapping", e.Frame.PathString())
	}
	body := n.Payload.Get("in")
	if body == nil {
		return nil, fmt.Errorf("%s: $let requires an \"in\" key", e.Frame.PathString())
	}

	bindings := map[string]*docmodel.Node{}
	for _, item := range n.Payload.MapVal.Items {
		if item.Key == "in" {
			continue
		}
		val, err := ev.Eval(item.Value, e.Path(item.Key))
		if err != nil {
			return nil, err
		}
		bindings[item.Key] = val
	}

	return ev.Eval(body, e.WithMany(bindings).Path("in"))
}

// mapLikePayload parses the shared {items, template, var?} shape consumed by
// $map, $concatMap, and $mapListToHash (spec.md §4.4). var defaults to "item".
func mapLikePayload(payload *docmodel.Node, e *env.Env) (items, template *docmodel.Node, varName string, err error) {
	if !payload.IsMap() {
		return nil, nil, "", fmt.Errorf("%s: payload must be a mapping with items, template, and an optional var", e.Frame.PathString())
	}
	items = payload.Get("items")
	template = payload.Get("template")
	if items == nil || template == nil {
		return nil, nil, "", fmt.Errorf("%s: requires items and template", e.Frame.PathString())
	}
	varName = "item"
	if varNode := payload.Get("var"); varNode != nil {
		varName, err = varNode.AsString()
		if err != nil {
			return nil, nil, "", fmt.Errorf("%s: var must be a string", e.Frame.PathString())
		}
	}
	return items, template, varName, nil
}

// mapOver is the shared iteration behind $map/$concatMap/$mapListToHash:
// evaluate items to a sequence, then evaluate template once per element with
// var bound to the element and {var}Idx bound to its index (spec.md §4.4).
func (ev *Evaluator) mapOver(payload *docmodel.Node, e *env.Env) ([]*docmodel.Node, error) {
	itemsNode, templateNode, varName, err := mapLikePayload(payload, e)
	if err != nil {
		return nil, err
	}
	items, err := ev.Eval(itemsNode, e.Path("items"))
	if err != nil {
		return nil, err
	}
	if !items.IsSeq() {
		return nil, fmt.Errorf("%s: $map: items must evaluate to a sequence", e.Frame.PathString())
	}

	out := make([]*docmodel.Node, 0, len(items.SeqVal))
	for i, item := range items.SeqVal {
		sub := e.With(varName, item).With(varName+"Idx", docmodel.NewScalar(int64(i))).Path(fmt.Sprintf("[%d]", i))
		val, err := ev.Eval(templateNode, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// evalMapPayload resolves !$map {items, template, var?} (spec.md §4.4).
func (ev *Evaluator) evalMapPayload(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	out, err := ev.mapOver(n.Payload, e)
	if err != nil {
		return nil, err
	}
	return docmodel.NewSeq(out...), nil
}

// evalConcatMap resolves !$concatMap, equivalent to $flatten ∘ $map over the
// same {items, template, var?} payload (spec.md §4.4).
func (ev *Evaluator) evalConcatMap(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	mapped, err := ev.mapOver(n.Payload, e)
	if err != nil {
		return nil, err
	}
	return flattenOneLevel(mapped), nil
}

// evalFlatten resolves !$flatten: payload evaluates to a sequence whose
// sequence-valued elements are concatenated one level; non-sequence elements
// pass through unchanged (spec.md §4.4).
func (ev *Evaluator) evalFlatten(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	evaluated, err := ev.Eval(n.Payload, e)
	if err != nil {
		return nil, err
	}
	if !evaluated.IsSeq() {
		return nil, fmt.Errorf("%s: $flatten payload must evaluate to a sequence", e.Frame.PathString())
	}
	return flattenOneLevel(evaluated.SeqVal), nil
}

func flattenOneLevel(seq []*docmodel.Node) *docmodel.Node {
	out := make([]*docmodel.Node, 0, len(seq))
	for _, item := range seq {
		if item.IsSeq() {
			out = append(out, item.SeqVal...)
		} else {
			out = append(out, item)
		}
	}
	return docmodel.NewSeq(out...)
}

// evalMapListToHash resolves !$mapListToHash: runs the same iteration as
// $map over {items, template, var?}, then lifts the resulting
// [{key,value},...] sequence into a mapping (spec.md §4.4).
func (ev *Evaluator) evalMapListToHash(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	mapped, err := ev.mapOver(n.Payload, e)
	if err != nil {
		return nil, err
	}
	return liftPairs(mapped, e)
}

// evalFromPairs resolves !$fromPairs: payload evaluates directly to a
// [{key,value},...] sequence, lifted into a mapping (spec.md §4.4).
func (ev *Evaluator) evalFromPairs(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	evaluated, err := ev.Eval(n.Payload, e)
	if err != nil {
		return nil, err
	}
	if !evaluated.IsSeq() {
		return nil, fmt.Errorf("%s: $fromPairs payload must evaluate to a sequence", e.Frame.PathString())
	}
	return liftPairs(evaluated.SeqVal, e)
}

func liftPairs(seq []*docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	out := docmodel.NewMap()
	for _, pair := range seq {
		if !pair.IsMap() {
			return nil, fmt.Errorf("%s: expected a {key, value} mapping", e.Frame.PathString())
		}
		keyNode := pair.Get("key")
		valNode := pair.Get("value")
		if keyNode == nil || valNode == nil {
			return nil, fmt.Errorf("%s: entry missing key or value", e.Frame.PathString())
		}
		key, err := keyNode.AsString()
		if err != nil {
			return nil, fmt.Errorf("%s: key must be a string", e.Frame.PathString())
		}
		out.Set(key, valNode)
	}
	return out, nil
}

func splitDotted(s string) []string {
	var segs []string
	cur := ""
	for _, r := range s {
		if r == '.' {
			segs = append(segs, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	segs = append(segs, cur)
	return segs
}
