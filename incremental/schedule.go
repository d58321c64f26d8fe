// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

import (
	"fmt"
	"maps"
	"slices"

	"go.chromium.org/infra/build/rangeinc/srcrange"
)

// Decision is the result of Decide.
type Decision struct {
	// Needed are the jobs that must run, in job order.
	Needed []Job

	// Lacking are the compile jobs without usable incremental state,
	// in job order. They need to run to write their supplementary
	// outputs for the next build.
	Lacking []Job
}

// Decide decides which jobs must run, given the states of all primary
// inputs loaded by LoadAll.
//
// A compile job is needed if its primary input has no state, if the
// primary input changed, or if another primary input changed outside of
// its local scopes in a range the job parsed last time. Jobs without
// primary input are always needed.
// A nil State in states is the same as no State.
// Decide doesn't modify states or jobs.
func Decide(states map[string]*State, jobs []Job, diag Diagnostics) Decision {
	if diag == nil {
		diag = nopDiagnostics{}
	}
	primaries := slices.Sorted(maps.Keys(states))
	var d Decision
	for _, job := range jobs {
		primary := job.PrimaryInput()
		if primary == "" {
			// not a compile.
			d.Needed = append(d.Needed, job)
			continue
		}
		note := func(reason string) {
			diag.Note(job, reason)
		}
		if shouldSchedule(states, primaries, primary, note) {
			d.Needed = append(d.Needed, job)
		}
		if states[primary] == nil {
			d.Lacking = append(d.Lacking, job)
			note("to create source-range and compiled-source files for the next time")
		}
	}
	return d
}

func shouldSchedule(states map[string]*State, primaries []string, primary string, note func(string)) bool {
	st := states[primary]
	if st == nil {
		note("no prior incremental record")
		return true
	}
	if len(st.Changed) > 0 {
		note("this file changed")
		return true
	}
	return st.parsedNonlocalChanges(states, primaries, primary, note)
}

// parsedNonlocalChanges reports whether the compile of primary parsed any
// nonlocal change of other primaries.
func (st *State) parsedNonlocalChanges(states map[string]*State, primaries []string, primary string, note func(string)) bool {
	for _, dep := range primaries {
		depState := states[dep]
		if dep == primary || depState == nil || len(depState.Nonlocal) == 0 {
			continue
		}
		unparsed, ok := st.Record.UnparsedRanges(dep)
		if !ok {
			note(fmt.Sprintf("%s changed non-locally but no record of what was read from it", dep))
			return true
		}
		if changed, ok := srcrange.FindFirstOutlier(depState.Nonlocal, unparsed); ok {
			note(fmt.Sprintf("changed: %s:%s", dep, changed))
			return true
		}
	}
	return false
}
