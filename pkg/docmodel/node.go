// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package docmodel implements the tagged document tree (C1 in the design):
// a Node is either a scalar, a mapping, a sequence, or a tagged node whose
// payload is itself a Node. Mappings preserve insertion order.
package docmodel

import (
	"fmt"

	"github.com/carvel-forks/stackform/pkg/filepos"
)

// Kind discriminates the variants of Node.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindMap
	KindSeq
	KindTag
)

// Node is the sum type described in spec.md §3 / §9:
// {Null, Bool, Int, Float, String, Date, Seq, Map, Tag(kind, payload)}.
// Scalar variants are distinguished by the Go type held in Scalar.
type Node struct {
	Kind     Kind
	Scalar   interface{} // nil, bool, int64, float64, string, time.Time
	MapVal   *Map
	SeqVal   []*Node
	Tag      string // tag kind, e.g. "$include", "Ref", "GetAtt"
	Payload  *Node  // non-nil iff Kind == KindTag
	Position *filepos.Position
}

// Map is an ordered string-keyed mapping.
type Map struct {
	Items []*MapItem
}

// MapItem is one key/value pair of a Map, in declaration order.
type MapItem struct {
	Key      string
	Value    *Node
	Position *filepos.Position
}

func NewNull() *Node { return &Node{Kind: KindNull} }

func NewScalar(v interface{}) *Node { return &Node{Kind: KindScalar, Scalar: v} }

func NewString(s string) *Node { return &Node{Kind: KindScalar, Scalar: s} }

func NewMap() *Node { return &Node{Kind: KindMap, MapVal: &Map{}} }

func NewSeq(items ...*Node) *Node { return &Node{Kind: KindSeq, SeqVal: items} }

func NewTag(tag string, payload *Node) *Node {
	return &Node{Kind: KindTag, Tag: tag, Payload: payload}
}

func (n *Node) IsNull() bool   { return n == nil || n.Kind == KindNull }
func (n *Node) IsScalar() bool { return n != nil && n.Kind == KindScalar }
func (n *Node) IsMap() bool    { return n != nil && n.Kind == KindMap }
func (n *Node) IsSeq() bool    { return n != nil && n.Kind == KindSeq }
func (n *Node) IsTag() bool    { return n != nil && n.Kind == KindTag }

// AsString returns the scalar string value, or an error if Node is not a string scalar.
func (n *Node) AsString() (string, error) {
	if n.IsScalar() {
		if s, ok := n.Scalar.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("expected string, got %s", n.describe())
}

func (n *Node) describe() string {
	if n == nil {
		return "nil"
	}
	switch n.Kind {
	case KindNull:
		return "null"
	case KindScalar:
		return fmt.Sprintf("scalar (%T)", n.Scalar)
	case KindMap:
		return "mapping"
	case KindSeq:
		return "sequence"
	case KindTag:
		return fmt.Sprintf("tagged node (%s)", n.Tag)
	default:
		return "unknown"
	}
}

// Get returns the value bound to key in a mapping, or nil if absent or n is not a map.
func (n *Node) Get(key string) *Node {
	if !n.IsMap() {
		return nil
	}
	for _, item := range n.MapVal.Items {
		if item.Key == key {
			return item.Value
		}
	}
	return nil
}

// Has reports whether a mapping has the given key.
func (n *Node) Has(key string) bool {
	if !n.IsMap() {
		return false
	}
	for _, item := range n.MapVal.Items {
		if item.Key == key {
			return true
		}
	}
	return false
}

// Set inserts or overwrites a key's value, preserving the existing position
// in iteration order if the key is already present.
func (n *Node) Set(key string, val *Node) {
	if !n.IsMap() {
		panic("Set called on non-map node")
	}
	for _, item := range n.MapVal.Items {
		if item.Key == key {
			item.Value = val
			return
		}
	}
	n.MapVal.Items = append(n.MapVal.Items, &MapItem{Key: key, Value: val})
}

// Delete removes a key from a mapping, if present.
func (n *Node) Delete(key string) {
	if !n.IsMap() {
		return
	}
	out := n.MapVal.Items[:0]
	for _, item := range n.MapVal.Items {
		if item.Key != key {
			out = append(out, item)
		}
	}
	n.MapVal.Items = out
}

// Keys returns the mapping's keys in declaration order.
func (n *Node) Keys() []string {
	if !n.IsMap() {
		return nil
	}
	keys := make([]string, len(n.MapVal.Items))
	for i, item := range n.MapVal.Items {
		keys[i] = item.Key
	}
	return keys
}

// DeepCopy returns a fully independent copy of the node tree.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{Kind: n.Kind, Scalar: n.Scalar, Tag: n.Tag, Position: n.Position.DeepCopy()}
	if n.MapVal != nil {
		cp.MapVal = &Map{Items: make([]*MapItem, len(n.MapVal.Items))}
		for i, item := range n.MapVal.Items {
			cp.MapVal.Items[i] = &MapItem{Key: item.Key, Value: item.Value.DeepCopy(), Position: item.Position.DeepCopy()}
		}
	}
	if n.SeqVal != nil {
		cp.SeqVal = make([]*Node, len(n.SeqVal))
		for i, item := range n.SeqVal {
			cp.SeqVal[i] = item.DeepCopy()
		}
	}
	if n.Payload != nil {
		cp.Payload = n.Payload.DeepCopy()
	}
	return cp
}

// MergeFrom splices src's mapping entries into n (both must be maps), failing
// (returning an error) on key collisions. Used by the evaluator's $merge
// macro (spec.md §4.4).
func (n *Node) MergeFrom(src *Node) error {
	if !n.IsMap() || !src.IsMap() {
		return fmt.Errorf("$merge requires two mappings")
	}
	for _, item := range src.MapVal.Items {
		if n.Has(item.Key) {
			return fmt.Errorf("$merge collides with existing key %q", item.Key)
		}
		n.Set(item.Key, item.Value)
	}
	return nil
}
