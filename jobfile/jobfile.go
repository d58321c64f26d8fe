// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package jobfile loads jobs proposed for a build from a YAML file.
//
//	jobs:
//	  - name: compile a
//	    primary: a.src
//	    outputs:
//	      compiled-source: out/a.compiled
//	      source-ranges: out/a.ranges
//	  - name: link
//
// Relative paths are relative to the directory of the job file.
package jobfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"go.chromium.org/infra/build/rangeinc/incremental"
)

// Job is a job in a job file.
type Job struct {
	Name    string                            `yaml:"name"`
	Primary string                            `yaml:"primary,omitempty"`
	Outputs map[incremental.OutputKind]string `yaml:"outputs,omitempty"`
}

// PrimaryInput returns the primary input path, or "" if it is not a
// compile job.
func (j *Job) PrimaryInput() string {
	return j.Primary
}

// AdditionalOutput returns the path of the output of kind.
func (j *Job) AdditionalOutput(kind incremental.OutputKind) string {
	return j.Outputs[kind]
}

func (j *Job) String() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Primary
}

type file struct {
	Jobs []*Job `yaml:"jobs"`
}

// Load loads jobs from fname.
func Load(fname string) ([]*Job, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	jobs, err := Parse(buf, filepath.Dir(fname))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", fname, err)
	}
	return jobs, nil
}

// Parse parses a job file. Relative paths are resolved against dir.
func Parse(buf []byte, dir string) ([]*Job, error) {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	var f file
	err := dec.Decode(&f)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int)
	for i, j := range f.Jobs {
		if j == nil {
			return nil, fmt.Errorf("job #%d: empty", i)
		}
		if j.Primary == "" {
			if len(j.Outputs) > 0 {
				return nil, fmt.Errorf("job #%d %q: outputs without primary", i, j.Name)
			}
			continue
		}
		j.Primary = resolve(dir, j.Primary)
		if k, ok := seen[j.Primary]; ok {
			return nil, fmt.Errorf("job #%d %q: primary %s is also compiled by job #%d", i, j.Name, j.Primary, k)
		}
		seen[j.Primary] = i
		for kind, p := range j.Outputs {
			j.Outputs[kind] = resolve(dir, p)
		}
	}
	return f.Jobs, nil
}

// resolve joins a relative p with dir. Source ranges files key their
// dependencies by the resolved primary paths.
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// AsIncremental returns jobs as incremental.Job.
func AsIncremental(jobs []*Job) []incremental.Job {
	ijobs := make([]incremental.Job, 0, len(jobs))
	for _, j := range jobs {
		ijobs = append(ijobs, j)
	}
	return ijobs
}
