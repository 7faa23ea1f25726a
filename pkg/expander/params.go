// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package expander

import (
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

// validateParam checks value against a $params entry's validator, in the
// strict priority order of spec.md §4.5 step 6: Schema if present, else
// AllowedValues if present, else AllowedPattern if present. Only the
// highest-priority validator a $params entry declares ever runs. p is the
// $params entry node (a mapping with Name and optional Schema/
// AllowedValues/AllowedPattern).
func validateParam(p *docmodel.Node, value *docmodel.Node, resourceName string) error {
	name, _ := p.Get("Name").AsString()

	if schemaNode := p.Get("Schema"); schemaNode != nil {
		schemaLoader := gojsonschema.NewGoLoader(docmodel.ToNative(schemaNode))
		docLoader := gojsonschema.NewGoLoader(docmodel.ToNative(value))

		result, err := gojsonschema.Validate(schemaLoader, docLoader)
		if err != nil {
			return fmt.Errorf("resource %q: parameter %q: invalid Schema: %w", resourceName, name, err)
		}
		if !result.Valid() {
			return fmt.Errorf("resource %q: parameter %q fails Schema validation: %s", resourceName, name, result.Errors()[0])
		}
	} else if allowed := p.Get("AllowedValues"); allowed != nil {
		if !allowed.IsSeq() {
			return fmt.Errorf("resource %q: parameter %q: AllowedValues must be a sequence", resourceName, name)
		}
		match := false
		for _, v := range allowed.SeqVal {
			if scalarsEqual(v, value) {
				match = true
				break
			}
		}
		if !match {
			return fmt.Errorf("resource %q: parameter %q: value not among AllowedValues", resourceName, name)
		}
	} else if patternNode := p.Get("AllowedPattern"); patternNode != nil {
		pattern, err := patternNode.AsString()
		if err != nil {
			return fmt.Errorf("resource %q: parameter %q: AllowedPattern must be a string", resourceName, name)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("resource %q: parameter %q: invalid AllowedPattern: %w", resourceName, name, err)
		}
		s, err := value.AsString()
		if err != nil {
			return fmt.Errorf("resource %q: parameter %q: AllowedPattern requires a string value", resourceName, name)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("resource %q: parameter %q: value does not match AllowedPattern", resourceName, name)
		}
	}

	return nil
}

// scalarsEqual compares two scalar nodes for equality under Go's == on their
// underlying Scalar values. Non-scalar nodes are never equal.
func scalarsEqual(a, b *docmodel.Node) bool {
	if !a.IsScalar() || !b.IsScalar() {
		return false
	}
	return a.Scalar == b.Scalar
}
