// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package srccompare compares two versions of a source file and reports
// the mismatched ranges in the coordinates of the old version.
package srccompare

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"go.chromium.org/infra/build/rangeinc/srcrange"
)

// Compare returns the ranges of before that do not match after.
// Lines are matched first; each mismatched hunk is then narrowed by the
// bytes it shares with its replacement at both ends. An insertion is
// reported as the range from the byte before the insertion point to the
// byte after it; past the end of before, that is one byte beyond the end
// of the buffer. An insertion at the very beginning is reported as the
// whole file.
// The result is sorted and empty iff before equals after.
func Compare(before, after []byte) srcrange.Ranges {
	if bytes.Equal(before, after) {
		return nil
	}
	a := splitLines(string(before))
	b := splitLines(string(after))
	lineStarts := offsets(a)
	m := difflib.NewMatcher(a, b)
	var ranges []srcrange.Range
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		oldHunk := strings.Join(a[op.I1:op.I2], "")
		newHunk := strings.Join(b[op.J1:op.J2], "")
		prefix, suffix := commonAffixes(oldHunk, newHunk)
		start := lineStarts[op.I1] + prefix
		end := lineStarts[op.I2] - suffix
		if start == end {
			// An insertion point. Cover a byte on each side, so that
			// only a range spanning the point contains it, not a range
			// that merely begins or ends there.
			if start == 0 {
				return srcrange.RangesForWholeFile()
			}
			start--
			end++
		}
		ranges = append(ranges, srcrange.Range{
			Start: position(a, lineStarts, start),
			End:   position(a, lineStarts, end),
		})
	}
	if len(ranges) == 0 {
		// matcher found no difference for unequal buffers; report
		// everything rather than nothing.
		return srcrange.RangesForWholeFile()
	}
	return srcrange.NewRanges(ranges...)
}

// splitLines splits s into lines keeping the line terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// offsets returns byte offsets of each line start, plus the total length.
func offsets(lines []string) []int {
	offs := make([]int, len(lines)+1)
	for i, l := range lines {
		offs[i+1] = offs[i] + len(l)
	}
	return offs
}

// commonAffixes returns the length of the common prefix of a and b, and
// the length of the common suffix of what remains.
func commonAffixes(a, b string) (int, int) {
	n := min(len(a), len(b))
	prefix := 0
	for prefix < n && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < n-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	return prefix, suffix
}

// position converts a byte offset in the joined lines to a position.
// Offsets beyond the end are counted as columns past the end position.
func position(lines []string, lineStarts []int, off int) srcrange.Pos {
	if total := lineStarts[len(lines)]; off > total {
		p := position(lines, lineStarts, total)
		p.Col += off - total
		return p
	}
	// last line start not after off.
	i := 0
	for i+1 < len(lines) && lineStarts[i+1] <= off {
		i++
	}
	if len(lines) > 0 && off == lineStarts[len(lines)] && strings.HasSuffix(lines[len(lines)-1], "\n") {
		// end of a newline terminated buffer.
		return srcrange.Pos{Line: len(lines) + 1, Col: 1}
	}
	return srcrange.Pos{Line: i + 1, Col: off - lineStarts[i] + 1}
}
