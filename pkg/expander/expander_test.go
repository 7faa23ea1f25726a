// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package expander_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/env"
	"github.com/carvel-forks/stackform/pkg/expander"
)

// trivialEval is a stand-in env.EvalFunc that resolves !$include against
// the env's bindings (param values are only ever reachable via $include,
// never Ref) and otherwise recurses structurally, enough to drive the
// expander's tests without depending on pkg/eval (which itself depends on
// pkg/expander).
func trivialEval(n *docmodel.Node, e *env.Env) (*docmodel.Node, error) {
	if n == nil || n.IsNull() {
		return docmodel.NewNull(), nil
	}
	if n.IsTag() && n.Tag == "$include" {
		name, err := n.Payload.AsString()
		if err != nil {
			return nil, err
		}
		if v, ok := e.Lookup(name); ok {
			return v, nil
		}
		return n, nil
	}
	if n.IsMap() {
		out := docmodel.NewMap()
		for _, item := range n.MapVal.Items {
			v, err := trivialEval(item.Value, e)
			if err != nil {
				return nil, err
			}
			out.Set(item.Key, v)
		}
		return out, nil
	}
	if n.IsSeq() {
		out := make([]*docmodel.Node, len(n.SeqVal))
		for i, item := range n.SeqVal {
			v, err := trivialEval(item, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return docmodel.NewSeq(out...), nil
	}
	return n, nil
}

func mustParse(t *testing.T, s string) *docmodel.Node {
	n, err := docmodel.Parse([]byte(s), "test.yaml", docmodel.FormatYAML)
	require.NoError(t, err)
	return n
}

func TestExpandAppliesNamePrefix(t *testing.T) {
	template := mustParse(t, `
$params:
  - Name: BucketName
Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: !$include BucketName
`)
	entry := mustParse(t, `
Properties:
  BucketName: my-bucket
`)

	outer := env.New("test.yaml")
	accum := env.NewGlobalAccumulator()

	resources, err := expander.Expand(trivialEval, accum, outer, nil, "MyStack", entry, template)
	require.NoError(t, err)
	require.Contains(t, resources, "MyStackBucket")
}

func TestExpandMissingRequiredParamErrors(t *testing.T) {
	template := mustParse(t, `
$params:
  - Name: BucketName
Resources:
  Bucket:
    Type: AWS::S3::Bucket
`)
	entry := mustParse(t, `{}`)

	outer := env.New("test.yaml")
	accum := env.NewGlobalAccumulator()

	_, err := expander.Expand(trivialEval, accum, outer, nil, "MyStack", entry, template)
	require.Error(t, err)
}

func TestExpandAllowedValuesRejectsOutOfSetValue(t *testing.T) {
	template := mustParse(t, `
$params:
  - Name: Size
    AllowedValues: [small, large]
Resources: {}
`)
	entry := mustParse(t, `
Properties:
  Size: medium
`)

	outer := env.New("test.yaml")
	accum := env.NewGlobalAccumulator()

	_, err := expander.Expand(trivialEval, accum, outer, nil, "MyStack", entry, template)
	require.Error(t, err)
}

func TestExpandHoistsGlobalSection(t *testing.T) {
	template := mustParse(t, `
$params: []
Resources: {}
Outputs:
  BucketArn:
    Value: arn:aws:s3
`)
	entry := mustParse(t, `{}`)

	outer := env.New("test.yaml")
	accum := env.NewGlobalAccumulator()

	_, err := expander.Expand(trivialEval, accum, outer, nil, "MyStack", entry, template)
	require.NoError(t, err)
	require.True(t, accum.Section("Outputs").Has("MyStackBucketArn"))
}

func TestExpandUsesParamDefaultWhenPropertyOmitted(t *testing.T) {
	template := mustParse(t, `
$params:
  - Name: BucketName
    Default: default-bucket
Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: !$include BucketName
`)
	entry := mustParse(t, `{}`)

	outer := env.New("test.yaml")
	accum := env.NewGlobalAccumulator()

	resources, err := expander.Expand(trivialEval, accum, outer, nil, "MyStack", entry, template)
	require.NoError(t, err)
	bucket := resources["MyStackBucket"]
	require.NotNil(t, bucket)
	name, err := bucket.Get("Properties").Get("BucketName").AsString()
	require.NoError(t, err)
	require.Equal(t, "default-bucket", name)
}
