// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package docmodel

// Tag kinds recognized by the evaluator (spec.md §3, §4.4). Any other tag
// string is a passthrough tag: the walker recurses into its payload and
// rebuilds the tag unchanged (e.g. GetAtt, Sub, and other downstream tags).
const (
	TagRef            = "Ref"
	TagInclude        = "$include"
	TagExpand         = "$expand"
	TagEscape         = "$escape"
	TagString         = "$string"
	TagParseYAML      = "$parseYaml"
	TagLet            = "$let"
	TagMap            = "$map"
	TagFlatten        = "$flatten"
	TagConcatMap      = "$concatMap"
	TagMapListToHash  = "$mapListToHash"
	TagFromPairs      = "$fromPairs"
)

// Meta-keys reserved on mappings (spec.md §3). Stripped from output by C6.
const (
	MetaImports    = "$imports"
	MetaDefs       = "$defs"
	MetaParams     = "$params"
	MetaEnvValues  = "$envValues"
	MetaLocation   = "$location"
)

// IsMetaKey reports whether k is a reserved meta-key.
func IsMetaKey(k string) bool {
	switch k {
	case MetaImports, MetaDefs, MetaParams, MetaEnvValues, MetaLocation:
		return true
	default:
		return false
	}
}

// KnownMacroTags lists the $-prefixed macro tag kinds the evaluator
// dispatches on specially, as opposed to generic passthrough tags. Ref is
// also handled specially by the evaluator but is not a macro and is not
// listed here.
var KnownMacroTags = map[string]bool{
	TagInclude:       true,
	TagExpand:        true,
	TagEscape:        true,
	TagString:        true,
	TagParseYAML:     true,
	TagLet:           true,
	TagMap:           true,
	TagFlatten:       true,
	TagConcatMap:     true,
	TagMapListToHash: true,
	TagFromPairs:     true,
}
