// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package interpolate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/interpolate"
)

func TestRenderSimple(t *testing.T) {
	out, err := interpolate.Render("hello {{name}}", map[string]*docmodel.Node{
		"name": docmodel.NewString("world"),
	})
	require.NoError(t, err)
	require.Equal(t, "hello world", out)
}

func TestRenderUnresolvedIsStrictError(t *testing.T) {
	_, err := interpolate.Render("hello {{name}}", map[string]*docmodel.Node{})
	require.Error(t, err)
}

func TestRenderDottedSelector(t *testing.T) {
	cfg := docmodel.NewMap()
	inner := docmodel.NewMap()
	inner.Set("b", docmodel.NewScalar(int64(42)))
	cfg.Set("a", inner)

	out, err := interpolate.Render("{{cfg.a.b}}", map[string]*docmodel.Node{"cfg": cfg})
	require.NoError(t, err)
	require.Equal(t, "42", out)
}

func TestRenderTojsonHelper(t *testing.T) {
	m := docmodel.NewMap()
	m.Set("a", docmodel.NewScalar(int64(1)))

	out, err := interpolate.Render("{{tojson m}}", map[string]*docmodel.Node{"m": m})
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, out)
}

func TestRenderBase64Helper(t *testing.T) {
	out, err := interpolate.Render("{{base64 s}}", map[string]*docmodel.Node{
		"s": docmodel.NewString("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, "aGk=", out)
}
