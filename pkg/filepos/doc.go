// Copyright 2024 The Carvel Authors.
// SPDX-License-Identifier: Apache-2.0

/*
Package filepos provides Position: the file and line a docmodel.Node was
parsed from, for use in C1's parse diagnostics (spec.md §4.1). Nodes built
in memory rather than parsed (e.g. synthesized by the evaluator) simply
carry a nil Position, which AsCompactString renders as "?".
*/
package filepos
