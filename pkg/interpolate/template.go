// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package interpolate implements the {{...}} string-template engine of
// spec.md §4.4 and §9: a handlebars-compatible subset with strict variable
// resolution and the built-in helpers tojson, toyaml, base64. An
// implementer may reuse a third-party template engine or implement the
// {{var}} subset directly — the feature set required is modest, so this
// package hand-rolls a small scanner/evaluator rather than pulling in a
// general template engine (see DESIGN.md).
package interpolate

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

var helpers = map[string]bool{"tojson": true, "toyaml": true, "base64": true}

// Node describes one compiled piece of a template string: either literal
// text, or a parsed {{...}} expression (helper + dotted path).
type Node struct {
	Literal string
	IsExpr  bool
	Helper  string // "" if no helper was applied
	Path    string
}

// Compile splits s into literal/expression nodes without resolving them.
// A non-empty string with no "{{" is returned as a single literal node; an
// empty string yields no nodes.
func Compile(s string) []Node {
	var nodes []Node
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				nodes = append(nodes, Node{Literal: rest})
			}
			break
		}
		if start > 0 {
			nodes = append(nodes, Node{Literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			// unterminated "{{": treat as literal, matching a lenient scanner.
			nodes = append(nodes, Node{Literal: rest[start:]})
			break
		}
		end += start
		expr := strings.TrimSpace(rest[start+2 : end])
		helper, path := splitHelper(expr)
		nodes = append(nodes, Node{IsExpr: true, Helper: helper, Path: path})
		rest = rest[end+2:]
	}
	return nodes
}

func splitHelper(expr string) (helper, path string) {
	fields := strings.Fields(expr)
	if len(fields) == 2 && helpers[fields[0]] {
		return fields[0], fields[1]
	}
	return "", expr
}

// HasExpr reports whether s contains at least one {{...}} expression.
func HasExpr(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

// Render interpolates s against values, resolving each {{...}} expression
// via a dotted lookup in values. Strict mode: an unresolved variable or
// selector is an error (spec.md §4.4).
func Render(s string, values map[string]*docmodel.Node) (string, error) {
	var sb strings.Builder
	for _, n := range Compile(s) {
		if !n.IsExpr {
			sb.WriteString(n.Literal)
			continue
		}
		val, err := Lookup(n.Path, values)
		if err != nil {
			return "", fmt.Errorf("interpolating {{%s}}: %w", n.Path, err)
		}
		rendered, err := render(n.Helper, val)
		if err != nil {
			return "", fmt.Errorf("interpolating {{%s}}: %w", n.Path, err)
		}
		sb.WriteString(rendered)
	}
	return sb.String(), nil
}

// Lookup resolves a dotted path against an $envValues-shaped map.
func Lookup(path string, values map[string]*docmodel.Node) (*docmodel.Node, error) {
	segs := strings.Split(path, ".")
	root, ok := values[segs[0]]
	if !ok {
		return nil, fmt.Errorf("unbound name %q", segs[0])
	}
	v, err := root.Drill(segs[1:])
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return v, nil
}

func render(helper string, n *docmodel.Node) (string, error) {
	switch helper {
	case "tojson":
		b, err := docmodel.Dump(stripTag(n), docmodel.FormatJSON)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "toyaml":
		b, err := docmodel.Dump(stripTag(n), docmodel.FormatYAML)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	case "base64":
		s, err := scalarString(n)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	default:
		return scalarString(n)
	}
}

func stripTag(n *docmodel.Node) *docmodel.Node {
	if n.IsTag() {
		return n.Payload
	}
	return n
}

// scalarString renders a scalar node the way a plain {{var}} substitution
// would; non-scalar values are an Interpolation-class error because they
// require an explicit tojson/toyaml helper to be serialised meaningfully.
func scalarString(n *docmodel.Node) (string, error) {
	if !n.IsScalar() {
		return "", fmt.Errorf("cannot interpolate non-scalar value (%s) without tojson/toyaml helper", kindName(n))
	}
	switch v := n.Scalar.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func kindName(n *docmodel.Node) string {
	switch n.Kind {
	case docmodel.KindMap:
		return "mapping"
	case docmodel.KindSeq:
		return "sequence"
	case docmodel.KindTag:
		return "tagged node"
	default:
		return "null"
	}
}
