// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

import (
	"sync"

	"github.com/google/go-cmp/cmp/cmpopts"

	"go.chromium.org/infra/build/rangeinc/srcrange"
)

type fakeJob struct {
	name    string
	primary string
	outputs map[OutputKind]string
}

func (j *fakeJob) PrimaryInput() string { return j.primary }

func (j *fakeJob) AdditionalOutput(kind OutputKind) string { return j.outputs[kind] }

func (j *fakeJob) String() string { return j.name }

type warning struct {
	kind WarnKind
	path string
}

type fakeDiagnostics struct {
	mu       sync.Mutex
	warnings []warning
	notes    map[string][]string
}

func (d *fakeDiagnostics) Warn(kind WarnKind, path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, warning{kind: kind, path: path})
}

func (d *fakeDiagnostics) Note(job Job, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.notes == nil {
		d.notes = make(map[string][]string)
	}
	d.notes[job.PrimaryInput()] = append(d.notes[job.PrimaryInput()], reason)
}

func (d *fakeDiagnostics) hasWarning(kind WarnKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.warnings {
		if w.kind == kind {
			return true
		}
	}
	return false
}

func rng(sl, sc, el, ec int) srcrange.Range {
	return srcrange.Range{
		Start: srcrange.Pos{Line: sl, Col: sc},
		End:   srcrange.Pos{Line: el, Col: ec},
	}
}

var cmpSortStrings = cmpopts.SortSlices(func(a, b string) bool { return a < b })
