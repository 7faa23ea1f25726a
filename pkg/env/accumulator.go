// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"fmt"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

// GlobalSections are the sections hoisted from sub-documents to the root
// output by the template expander (C5) and merged in by the output
// assembler (C6) — spec.md §3 GLOSSARY "Global section".
var GlobalSections = []string{"Parameters", "Metadata", "Mappings", "Conditions", "Transform", "Outputs"}

// GlobalAccumulator is the single mutable collector shared across a whole
// transform invocation (spec.md §3, §5). Because evaluation is
// single-threaded and cooperative, no locking is required.
type GlobalAccumulator struct {
	sections map[string]*docmodel.Node // each a KindMap node
	imports  []ImportRecord
}

func NewGlobalAccumulator() *GlobalAccumulator {
	ga := &GlobalAccumulator{sections: map[string]*docmodel.Node{}}
	for _, s := range GlobalSections {
		ga.sections[s] = docmodel.NewMap()
	}
	return ga
}

// MergeSection hoists keyed entries of `vals` into section `name`. Accumulator
// entries win on conflict with existing root-level entries (spec.md §4.6
// step 3), but colliding within the accumulator itself across two template
// expansions is a MergeConflict-class error, since two distinct templates
// should never emit the same prefixed global-section key.
func (ga *GlobalAccumulator) MergeSection(name string, vals *docmodel.Node) error {
	if !vals.IsMap() {
		return fmt.Errorf("global section %q must evaluate to a mapping", name)
	}
	dst := ga.sections[name]
	if dst == nil {
		dst = docmodel.NewMap()
		ga.sections[name] = dst
	}
	for _, item := range vals.MapVal.Items {
		if dst.Has(item.Key) {
			return fmt.Errorf("global section %q: key %q already hoisted by another template expansion", name, item.Key)
		}
		dst.Set(item.Key, item.Value)
	}
	return nil
}

// Section returns the accumulated mapping for a global section.
func (ga *GlobalAccumulator) Section(name string) *docmodel.Node {
	if v, ok := ga.sections[name]; ok {
		return v
	}
	return docmodel.NewMap()
}

// AppendImport records an import in discovery order (spec.md §3 ImportRecord).
func (ga *GlobalAccumulator) AppendImport(r ImportRecord) { ga.imports = append(ga.imports, r) }

// Imports returns the flat, append-only provenance log.
func (ga *GlobalAccumulator) Imports() []ImportRecord {
	out := make([]ImportRecord, len(ga.imports))
	copy(out, ga.imports)
	return out
}

// ImportRecord describes one resolved import with its SHA-256 digest
// (spec.md §3, §8 item 2).
type ImportRecord struct {
	Key            string `json:"key" yaml:"key"`
	From           string `json:"from" yaml:"from"`
	Imported       string `json:"imported" yaml:"imported"`
	SHA256Digest   string `json:"sha256Digest" yaml:"sha256Digest"`
}
