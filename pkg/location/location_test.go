// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package location_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carvel-forks/stackform/pkg/location"
)

func TestParseLocationDefaultsToFile(t *testing.T) {
	loc := location.ParseLocation("foo/bar.yaml")
	require.Equal(t, location.SchemeFile, loc.Scheme)
	require.Equal(t, "foo/bar.yaml", loc.Payload)
	require.False(t, loc.Explicit)
}

func TestParseLocationExplicitScheme(t *testing.T) {
	loc := location.ParseLocation("s3://my-bucket/my-key.yaml")
	require.Equal(t, location.SchemeS3, loc.Scheme)
	require.True(t, loc.Explicit)
}

func TestParseLocationFormatSuffix(t *testing.T) {
	loc := location.ParseLocation("ssm:/my/param:json")
	require.Equal(t, location.SchemeSSM, loc.Scheme)
	require.Equal(t, "/my/param", loc.Payload)
	require.NotNil(t, loc.Format)
}

func TestResolveChildInheritsRemoteScheme(t *testing.T) {
	base := location.ParseLocation("http://example.com/a/base.yaml")

	child, err := location.ResolveChild("child.yaml", base)
	require.NoError(t, err)
	require.Equal(t, location.SchemeHTTP, child.Scheme)
}

func TestResolveChildRejectsFileFromRemoteBase(t *testing.T) {
	base := location.ParseLocation("s3://bucket/dir/base.yaml")

	_, err := location.ResolveChild("file:/etc/passwd", base)
	require.Error(t, err)
}

func TestResolveChildRejectsEnvFromRemoteBase(t *testing.T) {
	base := location.ParseLocation("https://example.com/base.yaml")

	_, err := location.ResolveChild("env:SECRET", base)
	require.Error(t, err)
}

func TestResolveChildRelativeFilePath(t *testing.T) {
	base := location.ParseLocation("dir/base.yaml")

	child, err := location.ResolveChild("sibling.yaml", base)
	require.NoError(t, err)
	require.Equal(t, "dir/sibling.yaml", child.Payload)
}
