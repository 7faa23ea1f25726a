// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package env

import "github.com/carvel-forks/stackform/pkg/docmodel"

// Annotations is the parallel side-table design note of spec.md §9
// ("Prototype-style meta-keys -> explicit side-table"): rather than hanging
// $envValues and $location on ordinary mapping nodes, C3 records them here,
// keyed by node identity. This keeps the document tree itself a pure data
// tree at every stage, including mid-transform.
type Annotations struct {
	envValues map[*docmodel.Node]*Env
	locations map[*docmodel.Node]string
}

func NewAnnotations() *Annotations {
	return &Annotations{
		envValues: map[*docmodel.Node]*Env{},
		locations: map[*docmodel.Node]string{},
	}
}

func (a *Annotations) SetEnvValues(n *docmodel.Node, e *Env) { a.envValues[n] = e }

func (a *Annotations) EnvValues(n *docmodel.Node) (*Env, bool) {
	e, ok := a.envValues[n]
	return e, ok
}

func (a *Annotations) SetLocation(n *docmodel.Node, loc string) { a.locations[n] = loc }

func (a *Annotations) Location(n *docmodel.Node) (string, bool) {
	loc, ok := a.locations[n]
	return loc, ok
}
