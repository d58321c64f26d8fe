// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

import (
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"

	"go.chromium.org/infra/build/rangeinc/rangesfile"
	"go.chromium.org/infra/build/rangeinc/srcrange"
)

// DumpOptions selects what DumpAll prints.
type DumpOptions struct {
	// Records prints the source ranges file of each unit.
	Records bool
	// Diffs prints the changed ranges of each unit.
	Diffs bool
}

// DumpAll prints states in primary input order.
func DumpAll(w io.Writer, states map[string]*State, opts DumpOptions) error {
	if !opts.Records && !opts.Diffs {
		return nil
	}
	for _, primary := range slices.Sorted(maps.Keys(states)) {
		st := states[primary]
		filename := filepath.Base(primary)
		if opts.Records {
			err := st.dumpRecord(w, filename)
			if err != nil {
				return err
			}
		}
		if opts.Diffs {
			err := st.dumpChangedRanges(w, filename)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *State) dumpRecord(w io.Writer, filename string) error {
	buf, err := rangesfile.Marshal(st.Record)
	if err != nil {
		return fmt.Errorf("marshal source ranges of %s: %w", filename, err)
	}
	_, err = fmt.Fprintf(w, "*** source ranges of '%s' ***\n%s\n", filename, buf)
	return err
}

func (st *State) dumpChangedRanges(w io.Writer, filename string) error {
	dumpRanges := func(which string, ranges srcrange.Ranges) error {
		_, err := fmt.Fprintf(w, "*** %s changed ranges in previously-compiled '%s' ***\n", which, filename)
		if err != nil {
			return err
		}
		for _, r := range ranges {
			_, err = fmt.Fprintln(w, r)
			if err != nil {
				return err
			}
		}
		_, err = fmt.Fprintln(w)
		return err
	}
	if len(st.Changed) == 0 {
		return dumpRanges("no", nil)
	}
	err := dumpRanges("all", st.Changed)
	if err != nil {
		return err
	}
	return dumpRanges("nonlocal", st.Nonlocal)
}
