// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package docmodel_test

import (
	"math/rand"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/carvel-forks/stackform/pkg/docmodel"
)

func TestParseScalarAndMap(t *testing.T) {
	n, err := docmodel.Parse([]byte("Message: hello\nCount: 3\n"), "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)
	require.True(t, n.IsMap())

	msg := n.Get("Message")
	require.NotNil(t, msg)
	s, err := msg.AsString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	count := n.Get("Count")
	require.True(t, count.IsScalar())
	require.EqualValues(t, 3, count.Scalar)
}

func TestParsePreservesCustomTag(t *testing.T) {
	n, err := docmodel.Parse([]byte("X: !$include cfg.a.b\n"), "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	x := n.Get("X")
	require.True(t, x.IsTag())
	require.Equal(t, docmodel.TagInclude, x.Tag)
	s, err := x.Payload.AsString()
	require.NoError(t, err)
	require.Equal(t, "cfg.a.b", s)
}

func TestParsePreservesRefTag(t *testing.T) {
	n, err := docmodel.Parse([]byte("A: !Ref AWS::Region\n"), "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	a := n.Get("A")
	require.True(t, a.IsTag())
	require.Equal(t, docmodel.TagRef, a.Tag)
}

func TestRoundTripNoMetaKeysIsIdentityUpToOrdering(t *testing.T) {
	src := []byte("Resources:\n  Foo:\n    Type: AWS::X\n    Properties:\n      A: 1\n      B: two\n")

	n, err := docmodel.Parse(src, "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	out, err := docmodel.Dump(n, docmodel.FormatYAML)
	require.NoError(t, err)

	n2, err := docmodel.Parse(out, "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	require.Equal(t, n.Get("Resources").Get("Foo").Get("Type").Scalar,
		n2.Get("Resources").Get("Foo").Get("Type").Scalar)
	require.Equal(t, n.Get("Resources").Get("Foo").Get("Properties").Get("B").Scalar,
		n2.Get("Resources").Get("Foo").Get("Properties").Get("B").Scalar)
}

func TestVersionDateEmittedAsISOString(t *testing.T) {
	n, err := docmodel.Parse([]byte("AWSTemplateFormatVersion: 2010-09-09\n"), "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	out, err := docmodel.Dump(n, docmodel.FormatYAML)
	require.NoError(t, err)
	require.Contains(t, string(out), `AWSTemplateFormatVersion: "2010-09-09"`)
}

func TestDumpJSON(t *testing.T) {
	n, err := docmodel.Parse([]byte("A: 1\nB:\n  - x\n  - y\n"), "t.yml", docmodel.FormatYAML)
	require.NoError(t, err)

	out, err := docmodel.Dump(n, docmodel.FormatJSON)
	require.NoError(t, err)
	require.JSONEq(t, `{"A":1,"B":["x","y"]}`, string(out))
}

// TestFuzzRoundTripMapOfStringsIsIdentity drives the codec round-trip
// identity property (spec.md §8 item 6) with randomized small string
// mappings that are dumped and then parsed back, grounded on the teacher's own use of google/gofuzz for
// generating randomized struct-shaped test inputs (see DESIGN.md).
func TestFuzzRoundTripMapOfStringsIsIdentity(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 6).RandSource(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		var want map[string]string
		f.Fuzz(&want)

		n := docmodel.NewMap()
		for k, v := range want {
			n.Set(k, docmodel.NewString(v))
		}

		out, err := docmodel.Dump(n, docmodel.FormatYAML)
		require.NoError(t, err)

		n2, err := docmodel.Parse(out, "fuzz.yml", docmodel.FormatYAML)
		require.NoError(t, err)

		got := map[string]string{}
		for _, item := range n2.MapVal.Items {
			s, err := item.Value.AsString()
			require.NoError(t, err)
			got[item.Key] = s
		}
		require.Equal(t, want, got)
	}
}
