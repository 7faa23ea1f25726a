// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"fmt"
	"os"
	"os/user"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
)

// infraSections are the global sections seeded empty when the root document
// looks like an infrastructure template (spec.md §4.6 step 2).
var infraSections = []string{"Parameters", "Conditions", "Mappings", "Outputs"}

// assemble implements C6 (spec.md §4.6): merge the accumulator's hoisted
// global sections into evaluated's own top-level sections (accumulator
// entries win on key collision), strip any meta-keys the evaluator may
// have left behind, seed AWSTemplateFormatVersion if absent, and stamp
// Metadata.iidy with the import provenance log.
func assemble(evaluated *docmodel.Node, accum *env.GlobalAccumulator) (*docmodel.Node, error) {
	out := docmodel.NewMap()

	for _, item := range evaluated.MapVal.Items {
		if docmodel.IsMetaKey(item.Key) {
			continue
		}
		out.Set(item.Key, item.Value)
	}

	for _, sectionName := range env.GlobalSections {
		hoisted := accum.Section(sectionName)
		if len(hoisted.MapVal.Items) == 0 {
			continue
		}
		existing := out.Get(sectionName)
		merged := docmodel.NewMap()
		if existing != nil {
			if !existing.IsMap() {
				return nil, fmt.Errorf("top-level %s must be a mapping", sectionName)
			}
			for _, item := range existing.MapVal.Items {
				merged.Set(item.Key, item.Value)
			}
		}
		for _, item := range hoisted.MapVal.Items {
			merged.Set(item.Key, item.Value)
		}
		out.Set(sectionName, merged)
	}

	// spec.md §4.6 step 2: only a document that looks like an infrastructure
	// template gets AWSTemplateFormatVersion seeded and its global sections
	// guaranteed present (empty maps are fine; they still round-trip).
	if out.Has("AWSTemplateFormatVersion") || out.Has("Resources") {
		if !out.Has("AWSTemplateFormatVersion") {
			out.Set("AWSTemplateFormatVersion", docmodel.NewString("2010-09-09"))
		}
		for _, s := range infraSections {
			if !out.Has(s) {
				out.Set(s, docmodel.NewMap())
			}
		}
	}

	if err := stampProvenance(out, accum); err != nil {
		return nil, err
	}

	return out, nil
}

// stampProvenance writes Metadata.iidy := {Host, User, Imports} with the
// flat, ordered import-provenance log recorded by C3 (spec.md §3
// ImportRecord, §4.6 step 1, §6, §8 property S6).
func stampProvenance(out *docmodel.Node, accum *env.GlobalAccumulator) error {
	metadata := out.Get("Metadata")
	if metadata == nil {
		metadata = docmodel.NewMap()
	} else if !metadata.IsMap() {
		return fmt.Errorf("top-level Metadata must be a mapping")
	}

	iidy := docmodel.NewMap()
	iidy.Set("Host", docmodel.NewString(hostname()))
	iidy.Set("User", docmodel.NewString(username()))

	imports := docmodel.NewSeq()
	for _, rec := range accum.Imports() {
		entry := docmodel.NewMap()
		entry.Set("key", docmodel.NewString(rec.Key))
		entry.Set("from", docmodel.NewString(rec.From))
		entry.Set("imported", docmodel.NewString(rec.Imported))
		entry.Set("sha256Digest", docmodel.NewString(rec.SHA256Digest))
		imports.SeqVal = append(imports.SeqVal, entry)
	}
	iidy.Set("Imports", imports)
	metadata.Set("iidy", iidy)

	out.Set("Metadata", metadata)
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
