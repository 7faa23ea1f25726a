// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package expander implements C5: expansion of user-defined resource
// templates into concrete resource sets, with parameter defaulting,
// validation, and global-section hoisting (spec.md §4.5).
package expander

import (
	"fmt"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
)

// Expand implements spec.md §4.5 steps 1-9. templateEnv is the template's
// own $envValues (nil if the template is not itself an imported document
// root, e.g. a plain $defs-bound template sharing the enclosing scope).
// It returns the set of emitted resources, keyed by their final prefixed
// name, to be merged into the caller's Resources output.
func Expand(eval env.EvalFunc, accum *env.GlobalAccumulator, outerEnv *env.Env, templateEnv *env.Env,
	resourceName string, entry *docmodel.Node, templateNode *docmodel.Node) (map[string]*docmodel.Node, error) {

	prefix := resourceName
	if npNode := entry.Get("NamePrefix"); npNode != nil {
		s, err := npNode.AsString()
		if err != nil {
			return nil, fmt.Errorf("resource %q: NamePrefix must be a string", resourceName)
		}
		prefix = s
	}

	paramsList := templateNode.Get(docmodel.MetaParams)

	resourceDoc := templateNode.DeepCopy()
	resourceDoc.Delete(docmodel.MetaParams)

	if overridesNode := entry.Get("Overrides"); overridesNode != nil {
		evaluatedOverrides, err := eval(overridesNode, outerEnv.Path("Overrides"))
		if err != nil {
			return nil, fmt.Errorf("resource %q: evaluating Overrides: %w", resourceName, err)
		}
		if !evaluatedOverrides.IsMap() {
			return nil, fmt.Errorf("resource %q: Overrides must evaluate to a mapping", resourceName)
		}
		for _, item := range evaluatedOverrides.MapVal.Items {
			resourceDoc.Set(item.Key, item.Value)
		}
	}

	templateEnvValues := map[string]*docmodel.Node{}
	if templateEnv != nil {
		templateEnvValues = templateEnv.Values
	}

	paramDefaultsEnv := outerEnv.WithPrefix(prefix).WithMany(templateEnvValues)

	paramDefaults := map[string]*docmodel.Node{}
	if paramsList != nil {
		if !paramsList.IsSeq() {
			return nil, fmt.Errorf("resource %q: template's $params must be a sequence", resourceName)
		}
		for _, p := range paramsList.SeqVal {
			nameNode := p.Get("Name")
			if nameNode == nil {
				return nil, fmt.Errorf("resource %q: $params entry missing Name", resourceName)
			}
			name, err := nameNode.AsString()
			if err != nil {
				return nil, fmt.Errorf("resource %q: $params Name must be a string", resourceName)
			}
			if defNode := p.Get("Default"); defNode != nil {
				val, err := eval(defNode, paramDefaultsEnv)
				if err != nil {
					return nil, fmt.Errorf("resource %q: parameter %q default: %w", resourceName, name, err)
				}
				paramDefaults[name] = val
			}
		}
	}

	providedParams := docmodel.NewMap()
	if propsNode := entry.Get("Properties"); propsNode != nil {
		evaluated, err := eval(propsNode, outerEnv.Path("Properties"))
		if err != nil {
			return nil, fmt.Errorf("resource %q: evaluating Properties: %w", resourceName, err)
		}
		if !evaluated.IsMap() {
			return nil, fmt.Errorf("resource %q: Properties must evaluate to a mapping", resourceName)
		}
		providedParams = evaluated
	}

	mergedParams := map[string]*docmodel.Node{}
	for k, v := range paramDefaults {
		mergedParams[k] = v
	}
	for _, item := range providedParams.MapVal.Items {
		mergedParams[item.Key] = item.Value
	}

	if paramsList != nil {
		for _, p := range paramsList.SeqVal {
			name, _ := p.Get("Name").AsString()
			value, ok := mergedParams[name]
			if !ok {
				return nil, fmt.Errorf("resource %q: missing required parameter %q", resourceName, name)
			}
			if err := validateParam(p, value, resourceName); err != nil {
				return nil, err
			}
		}
	}

	providedMap := map[string]*docmodel.Node{}
	for _, item := range providedParams.MapVal.Items {
		providedMap[item.Key] = item.Value
	}

	subEnv := outerEnv.WithPrefix(prefix).WithMany(paramDefaults).WithMany(providedMap).WithMany(templateEnvValues)

	result := map[string]*docmodel.Node{}
	if resourcesNode := resourceDoc.Get("Resources"); resourcesNode != nil {
		emitted, err := eval(resourcesNode, subEnv.Path("Resources"))
		if err != nil {
			return nil, fmt.Errorf("resource %q: expanding Resources: %w", resourceName, err)
		}
		if !emitted.IsMap() {
			return nil, fmt.Errorf("resource %q: template Resources must evaluate to a mapping", resourceName)
		}
		for _, item := range emitted.MapVal.Items {
			result[prefix+item.Key] = item.Value
		}
	}

	for _, sectionName := range env.GlobalSections {
		sectionNode := resourceDoc.Get(sectionName)
		if sectionNode == nil {
			continue
		}
		evaluatedSection, err := eval(sectionNode, subEnv.Path(sectionName))
		if err != nil {
			return nil, fmt.Errorf("resource %q: expanding %s: %w", resourceName, sectionName, err)
		}
		if !evaluatedSection.IsMap() {
			return nil, fmt.Errorf("resource %q: %s must evaluate to a mapping", resourceName, sectionName)
		}
		prefixed := docmodel.NewMap()
		for _, item := range evaluatedSection.MapVal.Items {
			prefixed.Set(prefix+item.Key, item.Value)
		}
		if err := accum.MergeSection(sectionName, prefixed); err != nil {
			return nil, fmt.Errorf("resource %q: %w", resourceName, err)
		}
	}

	return result, nil
}
