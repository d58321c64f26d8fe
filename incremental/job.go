// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

// OutputKind is a kind of supplementary output of a compile job.
type OutputKind string

const (
	// CompiledSource is the copy of the primary input saved when it
	// was compiled last time.
	CompiledSource OutputKind = "compiled-source"

	// SourceRanges is the source ranges file of the primary input.
	SourceRanges OutputKind = "source-ranges"
)

// Job is a job proposed for the build. Decide never modifies a Job.
type Job interface {
	// PrimaryInput returns the path of the primary source the job
	// compiles, or "" if the job is not a compile job.
	PrimaryInput() string

	// AdditionalOutput returns the path of the supplementary output of
	// kind, or "" if the job has none.
	AdditionalOutput(kind OutputKind) string
}
