// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package eval_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
	"github.com/carvel-forks/stackform/pkg/eval"
)

func newTestEnv(bindings map[string]*docmodel.Node) *env.Env {
	e := env.New("test.yaml")
	return e.WithMany(bindings)
}

func TestEvalRefIsRewrittenWithPrefix(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
Output: !Ref Foo
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(map[string]*docmodel.Node{"Foo": docmodel.NewString("bar")}).WithPrefix("MyStack")
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	ref := out.Get("Output")
	require.True(t, ref.IsTag())
	require.Equal(t, "Ref", ref.Tag)
	s, err := ref.Payload.AsString()
	require.NoError(t, err)
	require.Equal(t, "MyStackFoo", s)
}

func TestEvalRefAWSPseudoParamPassesThroughUnchanged(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
Output: !Ref AWS::Region
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil).WithPrefix("MyStack")
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	ref := out.Get("Output")
	require.True(t, ref.IsTag())
	require.Equal(t, "Ref", ref.Tag)
	s, err := ref.Payload.AsString()
	require.NoError(t, err)
	require.Equal(t, "AWS::Region", s)
}

func TestEvalRefUnboundPassesThrough(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
Output: !Ref MyBucket
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	ref := out.Get("Output")
	require.True(t, ref.IsTag())
	require.Equal(t, "Ref", ref.Tag)
	s, err := ref.Payload.AsString()
	require.NoError(t, err)
	require.Equal(t, "MyBucket", s)
}

func TestEvalStringInterpolation(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`Greeting: "hello {{Name}}"`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(map[string]*docmodel.Node{"Name": docmodel.NewString("world")})
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	s, err := out.Get("Greeting").AsString()
	require.NoError(t, err)
	require.Equal(t, "hello world", s)
}

func TestEvalLetBindsAndEvaluatesBody(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
!$let
X: 1
in:
  Value: !$include X
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	require.EqualValues(t, 1, out.Get("Value").Scalar)
}

func TestEvalMapPayload(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
!$map
var: X
items: [1, 2, 3]
template: !$include X
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	require.True(t, out.IsSeq())
	require.Len(t, out.SeqVal, 3)
	require.EqualValues(t, 1, out.SeqVal[0].Scalar)
}

func TestEvalFlatten(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
!$flatten
- [1, 2]
- [3]
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	require.Len(t, out.SeqVal, 3)
}

func TestEvalEscapePreventsMacroInterpretation(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
!$escape
Field: !$string "literal {{X}}"
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	out, err := ev.Eval(doc, e)
	require.NoError(t, err)
	field := out.Get("Field")
	require.True(t, field.IsTag())
	require.Equal(t, "$string", field.Tag)
	s, err := field.Payload.AsString()
	require.NoError(t, err)
	require.Equal(t, "literal {{X}}", s)
}

func TestEvalParamsOutsideRootIsRejected(t *testing.T) {
	doc, err := docmodel.Parse([]byte(`
Nested:
  $params:
    - Name: X
`), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)

	e := newTestEnv(nil)
	ev := eval.New(env.NewGlobalAccumulator(), env.NewAnnotations())

	_, err = ev.Eval(doc, e)
	require.Error(t, err)
}
