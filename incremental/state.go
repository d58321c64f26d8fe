// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package incremental decides which compile jobs need to run, using the
// textual changes of each primary input since it was last compiled and
// the source ranges each compile recorded.
//
// Deciding runs in two phases. LoadAll loads a State for every primary
// input, then Decide selects the jobs to run from the complete set of
// states. A unit without a usable State is always compiled.
package incremental

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/infra/build/rangeinc/o11y/trace"
	"go.chromium.org/infra/build/rangeinc/rangesfile"
	"go.chromium.org/infra/build/rangeinc/runtimex"
	"go.chromium.org/infra/build/rangeinc/srccompare"
	"go.chromium.org/infra/build/rangeinc/srcrange"
)

// FS is the filesystem used to load states.
type FS interface {
	Exists(ctx context.Context, name string) bool
	ModTime(ctx context.Context, name string) (time.Time, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
}

// Comparator returns the ranges of before that mismatch after,
// sorted and without overlaps. It returns no ranges iff they are equal.
type Comparator func(before, after []byte) srcrange.Ranges

// State is the incremental state of one primary input.
// It is immutable once loaded.
type State struct {
	// Record is the source ranges file written by the last compile.
	Record *rangesfile.Contents

	// Changed are the ranges of the previously compiled source that
	// differ from the current source.
	Changed srcrange.Ranges

	// Nonlocal are the ranges of Changed outside of any local scope.
	Nonlocal srcrange.Ranges
}

// WholeFileChanged returns the state of a primary input whose content is
// unknown, e.g. it was removed.
func WholeFileChanged() *State {
	return &State{
		Record: &rangesfile.Contents{
			UnparsedRangesByDependency: map[string]srcrange.Ranges{},
		},
		Changed:  srcrange.RangesForWholeFile(),
		Nonlocal: srcrange.RangesForWholeFile(),
	}
}

func newState(record *rangesfile.Contents, changed srcrange.Ranges) *State {
	return &State{
		Record:   record,
		Changed:  changed,
		Nonlocal: srcrange.FindOutliers(changed, record.LocalScopeRanges),
	}
}

// Options are options to load states.
type Options struct {
	// FS accesses files. Required.
	FS FS

	// Compare computes changed ranges. Default is srccompare.Compare.
	Compare Comparator

	// Diagnostics receives warnings and notes. Default discards them.
	Diagnostics Diagnostics

	// Parallelism limits the number of units loaded concurrently.
	// Default is runtimex.NumCPU().
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.Compare == nil {
		o.Compare = srccompare.Compare
	}
	if o.Diagnostics == nil {
		o.Diagnostics = nopDiagnostics{}
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtimex.NumCPU()
	}
	return o
}

// Infos are the states loaded for a build.
type Infos struct {
	// States are usable states keyed by primary input path.
	States map[string]*State

	// Failed are primary inputs without usable state and the reasons.
	Failed map[string]error
}

// Lacking reports whether primary has no usable state.
func (i *Infos) Lacking(primary string) bool {
	_, ok := i.States[primary]
	return !ok
}

// errNoPrimary is returned by loadOne for jobs without primary input.
var errNoPrimary = errors.New("no primary input")

// LoadAll loads the states of the primary inputs of jobs.
// Failure of one unit doesn't affect the others; it only returns error
// when ctx is canceled.
func LoadAll(ctx context.Context, jobs []Job, opts Options) (*Infos, error) {
	opts = opts.withDefaults()

	type result struct {
		primary string
		state   *State
		err     error
	}
	var results []*result
	seen := make(map[string]bool)
	var units []Job
	for _, job := range jobs {
		primary := job.PrimaryInput()
		if primary == "" || seen[primary] {
			continue
		}
		seen[primary] = true
		units = append(units, job)
		results = append(results, &result{primary: primary})
	}

	ctx, span := trace.NewSpan(ctx, "load-all")
	span.SetAttr("units", len(units))
	defer span.Close(nil)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Parallelism)
	for i, job := range units {
		eg.Go(func() error {
			err := ctx.Err()
			if err != nil {
				return err
			}
			results[i].state, results[i].err = loadOne(ctx, job, opts)
			return nil
		})
	}
	err := eg.Wait()
	if err != nil {
		return nil, err
	}

	infos := &Infos{
		States: make(map[string]*State),
		Failed: make(map[string]error),
	}
	for _, r := range results {
		if r.err != nil {
			infos.Failed[r.primary] = r.err
			continue
		}
		infos.States[r.primary] = r.state
	}
	return infos, nil
}

func loadOne(ctx context.Context, job Job, opts Options) (st *State, err error) {
	primary := job.PrimaryInput()
	if primary == "" {
		return nil, errNoPrimary
	}
	ctx, span := trace.NewSpan(ctx, "load-unit")
	span.SetAttr("primary", primary)
	defer func() {
		span.Close(err)
	}()

	compiledSource := job.AdditionalOutput(CompiledSource)
	rangesPath := job.AdditionalOutput(SourceRanges)

	removeSupplementaryOutputs := func() {
		for _, fname := range []string{compiledSource, rangesPath} {
			if fname == "" {
				continue
			}
			err := opts.FS.Remove(ctx, fname)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				opts.Diagnostics.Warn(WarnCannotRemove, fname, err)
			}
		}
	}

	if !opts.FS.Exists(ctx, primary) {
		opts.Diagnostics.Note(job, fmt.Sprintf("%s was removed", primary))
		// stale outputs must not be used if the primary is added again.
		removeSupplementaryOutputs()
		// dependents that parsed anything in it will be rebuilt.
		return WholeFileChanged(), nil
	}

	record, rerr := loadRanges(ctx, primary, rangesPath, opts)
	changed, cerr := loadChangedRanges(ctx, primary, compiledSource, opts)
	if err := errors.Join(rerr, cerr); err != nil {
		removeSupplementaryOutputs()
		return nil, err
	}
	return newState(record, changed), nil
}

func loadRanges(ctx context.Context, primary, rangesPath string, opts Options) (*rangesfile.Contents, error) {
	if rangesPath == "" {
		err := fmt.Errorf("no %s output for %s", SourceRanges, primary)
		opts.Diagnostics.Warn(WarnUnableToLoadRanges, primary, err)
		return nil, err
	}
	buf, err := opts.FS.ReadFile(ctx, rangesPath)
	if err != nil {
		opts.Diagnostics.Warn(WarnUnableToLoadRanges, rangesPath, err)
		return nil, fmt.Errorf("load %s: %w", rangesPath, err)
	}
	record, err := rangesfile.Load(primary, buf)
	if err != nil {
		opts.Diagnostics.Warn(WarnBadRangesFile, rangesPath, err)
		return nil, fmt.Errorf("load %s: %w", rangesPath, err)
	}
	return record, nil
}

// loadChangedRanges returns the ranges of compiledSource changed in primary.
//
// If compiledSource is newer than primary, it is trusted to have the same
// content, and no diff is computed. This assumes the clocks of the machine
// that wrote compiledSource and of this machine are monotonic and not
// skewed.
func loadChangedRanges(ctx context.Context, primary, compiledSource string, opts Options) (srcrange.Ranges, error) {
	if compiledSource == "" {
		err := fmt.Errorf("no %s output for %s", CompiledSource, primary)
		opts.Diagnostics.Warn(WarnUnableToLoadCompiledSource, primary, err)
		return nil, err
	}
	newer, err := isFileNewerThan(ctx, compiledSource, primary, opts)
	if err != nil {
		return nil, err
	}
	if newer {
		return srcrange.Ranges{}, nil
	}
	before, err := opts.FS.ReadFile(ctx, compiledSource)
	if err != nil {
		opts.Diagnostics.Warn(WarnUnableToLoadCompiledSource, compiledSource, err)
		return nil, fmt.Errorf("load %s: %w", compiledSource, err)
	}
	after, err := opts.FS.ReadFile(ctx, primary)
	if err != nil {
		opts.Diagnostics.Warn(WarnUnableToLoadPrimary, primary, err)
		return nil, fmt.Errorf("load %s: %w", primary, err)
	}
	changed := opts.Compare(before, after)
	if changed == nil {
		changed = srcrange.Ranges{}
	}
	return changed, nil
}

// isFileNewerThan reports whether lhs was modified after rhs.
func isFileNewerThan(ctx context.Context, lhs, rhs string, opts Options) (bool, error) {
	modTime := func(fname string) (time.Time, error) {
		t, err := opts.FS.ModTime(ctx, fname)
		if err != nil {
			opts.Diagnostics.Warn(WarnCannotStat, fname, err)
			return time.Time{}, fmt.Errorf("stat %s: %w", fname, err)
		}
		return t, nil
	}
	lt, lerr := modTime(lhs)
	rt, rerr := modTime(rhs)
	if err := errors.Join(lerr, rerr); err != nil {
		return false, err
	}
	return lt.After(rt), nil
}
