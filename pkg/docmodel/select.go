// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package docmodel

import (
	"fmt"
	"strconv"
)

// Drill walks a dotted selector path into n, treating each segment as a
// mapping key or, if n is a sequence at that point, a numeric index. Used
// by $include's dotted-selector form and by the {{...}} interpolation
// engine (spec.md §4.4).
func (n *Node) Drill(segments []string) (*Node, error) {
	cur := n
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		switch {
		case cur.IsMap():
			next := cur.Get(seg)
			if next == nil {
				return nil, fmt.Errorf("no key %q in mapping", seg)
			}
			cur = next
		case cur.IsSeq():
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("selector %q is not a valid sequence index", seg)
			}
			if idx < 0 || idx >= len(cur.SeqVal) {
				return nil, fmt.Errorf("sequence index %d out of range", idx)
			}
			cur = cur.SeqVal[idx]
		default:
			return nil, fmt.Errorf("cannot select %q into %s", seg, cur.describe())
		}
	}
	return cur, nil
}
