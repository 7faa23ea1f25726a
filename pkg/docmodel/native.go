// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package docmodel

// ToNative converts a Node tree into plain Go values (map[string]interface{},
// []interface{}, and scalars), stripping tags down to their payload. Used
// where a third-party library (JSON-Schema validation of $params) wants
// ordinary Go data rather than the Node AST.
func ToNative(n *Node) interface{} {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindNull:
		return nil
	case KindScalar:
		return n.Scalar
	case KindMap:
		m := make(map[string]interface{}, len(n.MapVal.Items))
		for _, item := range n.MapVal.Items {
			m[item.Key] = ToNative(item.Value)
		}
		return m
	case KindSeq:
		s := make([]interface{}, len(n.SeqVal))
		for i, item := range n.SeqVal {
			s[i] = ToNative(item)
		}
		return s
	case KindTag:
		return ToNative(n.Payload)
	default:
		return nil
	}
}
