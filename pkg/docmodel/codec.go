// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package docmodel

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carvel-forks/stackform/pkg/filepos"
)

// Format names the decoding/encoding strategy for a blob of bytes (spec.md §4.2).
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
	FormatRaw
)

// FormatFromExtension implements the decoding rule of spec.md §4.2: extension
// .yaml/.yml -> YAML, .json -> JSON, else raw string.
func FormatFromExtension(ext string) Format {
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatRaw
	}
}

// dateKeys are the mapping keys whose date-typed values must round-trip as
// ISO-date strings rather than bare YAML timestamps, to defend against the
// well-known YAML 1.1 sexagesimal/date resolution pitfall (spec.md §4.1).
var dateKeys = map[string]bool{
	"Version":                   true,
	"AWSTemplateFormatVersion": true,
}

// Parse decodes raw bytes into a Node tree (C1, spec.md §4.1).
//
// JSON text is valid YAML flow syntax, so both formats share the same
// tag-preserving yaml.v3 node walker and FormatJSON parses exactly like
// FormatYAML; the output format is chosen by Dump's own format argument.
// FormatRaw returns a bare string
// scalar, matching the "else raw string" branch of the decoding rule.
func Parse(data []byte, location string, format Format) (*Node, error) {
	if format == FormatRaw {
		return NewString(string(data)), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", location, err)
	}
	if len(doc.Content) == 0 {
		return NewNull(), nil
	}
	return convertYAMLNode(doc.Content[0], location)
}

func convertYAMLNode(yn *yaml.Node, location string) (*Node, error) {
	pos := filepos.NewPositionInFile(yn.Line, location)

	switch yn.Kind {
	case yaml.AliasNode:
		return convertYAMLNode(yn.Alias, location)

	case yaml.ScalarNode:
		custom := customTagName(yn.Tag)
		if custom != "" {
			n := &Node{Kind: KindTag, Tag: custom, Position: pos}
			n.Payload = NewString(yn.Value)
			return n, nil
		}
		val, err := decodeScalar(yn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos.AsCompactString(), err)
		}
		n := NewScalar(val)
		n.Position = pos
		return n, nil

	case yaml.MappingNode:
		m := &Node{Kind: KindMap, MapVal: &Map{}, Position: pos}
		for i := 0; i+1 < len(yn.Content); i += 2 {
			keyNode, valNode := yn.Content[i], yn.Content[i+1]
			val, err := convertYAMLNode(valNode, location)
			if err != nil {
				return nil, err
			}
			m.MapVal.Items = append(m.MapVal.Items, &MapItem{
				Key:      keyNode.Value,
				Value:    val,
				Position: filepos.NewPositionInFile(keyNode.Line, location),
			})
		}
		if custom := customTagName(yn.Tag); custom != "" {
			return &Node{Kind: KindTag, Tag: custom, Payload: m, Position: pos}, nil
		}
		return m, nil

	case yaml.SequenceNode:
		s := &Node{Kind: KindSeq, Position: pos}
		for _, item := range yn.Content {
			val, err := convertYAMLNode(item, location)
			if err != nil {
				return nil, err
			}
			s.SeqVal = append(s.SeqVal, val)
		}
		if custom := customTagName(yn.Tag); custom != "" {
			return &Node{Kind: KindTag, Tag: custom, Payload: s, Position: pos}, nil
		}
		return s, nil

	default:
		return NewNull(), nil
	}
}

// customTagName returns the bare tag kind (e.g. "Ref", "$include") for a
// non-standard YAML tag, or "" for a built-in scalar/map/seq tag.
func customTagName(tag string) string {
	switch tag {
	case "", "!!str", "!!int", "!!bool", "!!null", "!!float", "!!timestamp",
		"!!map", "!!seq", "!!binary", "!!merge":
		return ""
	}
	i := 0
	for i < len(tag) && tag[i] == '!' {
		i++
	}
	return tag[i:]
}

// decodeScalar decodes a plain scalar YAML node, normalising integers to
// int64 so the Node.Scalar invariant documented in node.go ("nil, bool,
// int64, float64, string, time.Time") holds regardless of whether the
// platform's native int happens to be 32- or 64-bit wide.
func decodeScalar(yn *yaml.Node) (interface{}, error) {
	var v interface{}
	if err := yn.Decode(&v); err != nil {
		return nil, err
	}
	switch tv := v.(type) {
	case int:
		return int64(tv), nil
	case uint64:
		return int64(tv), nil
	default:
		return v, nil
	}
}

// Dump encodes a Node tree back into bytes (C1, spec.md §4.1).
func Dump(n *Node, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := dumpJSON(n, &buf, ""); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatRaw:
		s, err := n.AsString()
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	default:
		yn, err := docToYAMLNode(n, "")
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(yn)
	}
}

func docToYAMLNode(n *Node, keyHint string) (*yaml.Node, error) {
	if n == nil || n.Kind == KindNull {
		var yn yaml.Node
		if err := yn.Encode(nil); err != nil {
			return nil, err
		}
		return &yn, nil
	}

	switch n.Kind {
	case KindTag:
		inner, err := docToYAMLNode(n.Payload, keyHint)
		if err != nil {
			return nil, err
		}
		inner.Tag = "!" + n.Tag
		return inner, nil

	case KindScalar:
		if keyHint != "" && dateKeys[keyHint] {
			if t, ok := n.Scalar.(time.Time); ok {
				return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Format("2006-01-02")}, nil
			}
			if s, ok := n.Scalar.(string); ok {
				return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}, nil
			}
		}
		var yn yaml.Node
		if err := yn.Encode(n.Scalar); err != nil {
			return nil, err
		}
		return &yn, nil

	case KindMap:
		yn := &yaml.Node{Kind: yaml.MappingNode}
		for _, item := range n.MapVal.Items {
			keyYN := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item.Key}
			valYN, err := docToYAMLNode(item.Value, item.Key)
			if err != nil {
				return nil, err
			}
			yn.Content = append(yn.Content, keyYN, valYN)
		}
		return yn, nil

	case KindSeq:
		yn := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range n.SeqVal {
			itemYN, err := docToYAMLNode(item, "")
			if err != nil {
				return nil, err
			}
			yn.Content = append(yn.Content, itemYN)
		}
		return yn, nil

	default:
		return nil, fmt.Errorf("cannot dump node of kind %d", n.Kind)
	}
}

func dumpJSON(n *Node, buf *bytes.Buffer, keyHint string) error {
	if n == nil || n.Kind == KindNull {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case KindTag:
		return dumpJSON(n.Payload, buf, keyHint)

	case KindScalar:
		return dumpJSONScalar(n.Scalar, buf, keyHint)

	case KindMap:
		buf.WriteByte('{')
		for i, item := range n.MapVal.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := jsonMarshalString(item.Key)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := dumpJSON(item.Value, buf, item.Key); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case KindSeq:
		buf.WriteByte('[')
		for i, item := range n.SeqVal {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := dumpJSON(item, buf, ""); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		return fmt.Errorf("cannot dump node of kind %d as JSON", n.Kind)
	}
}

func dumpJSONScalar(v interface{}, buf *bytes.Buffer, keyHint string) error {
	if keyHint != "" && dateKeys[keyHint] {
		if t, ok := v.(time.Time); ok {
			out, err := jsonMarshalString(t.Format("2006-01-02"))
			if err != nil {
				return err
			}
			buf.Write(out)
			return nil
		}
	}
	switch tv := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(tv))
	case int:
		buf.WriteString(strconv.Itoa(tv))
	case int64:
		buf.WriteString(strconv.FormatInt(tv, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(tv, 'g', -1, 64))
	case string:
		out, err := jsonMarshalString(tv)
		if err != nil {
			return err
		}
		buf.Write(out)
	case time.Time:
		out, err := jsonMarshalString(tv.Format(time.RFC3339))
		if err != nil {
			return err
		}
		buf.Write(out)
	default:
		return fmt.Errorf("unsupported JSON scalar type %T", v)
	}
	return nil
}

func jsonMarshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}
