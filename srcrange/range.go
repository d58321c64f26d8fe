// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package srcrange provides source ranges in line/column coordinates and
// set operations on them.
package srcrange

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pos is a position in a source buffer.
// Line and Col are 1-based, and Col counts bytes.
type Pos struct {
	Line int
	Col  int
}

// maxPos is the end of the whole-file range.
var maxPos = Pos{Line: math.MaxInt32, Col: math.MaxInt32}

// Compare returns -1, 0 or +1 depending on whether p is before, at, or
// after q.
func (p Pos) Compare(q Pos) int {
	if c := cmp.Compare(p.Line, q.Line); c != 0 {
		return c
	}
	return cmp.Compare(p.Col, q.Col)
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Range is a span [Start, End) of a source buffer.
type Range struct {
	Start Pos
	End   Pos
}

// WholeFile returns the range that stands for "the entire file changed".
// It is used when the real content is unknown, e.g. the file was removed.
// Only another whole-file range contains it.
func WholeFile() Range {
	return Range{Start: Pos{Line: 1, Col: 1}, End: maxPos}
}

// IsWholeFile reports whether r is the whole-file range.
func (r Range) IsWholeFile() bool {
	return r == WholeFile()
}

// Compare orders ranges by start, then by end.
func (r Range) Compare(o Range) int {
	if c := r.Start.Compare(o.Start); c != 0 {
		return c
	}
	return r.End.Compare(o.End)
}

// Contains reports whether o lies within r.
// A range contains itself.
func (r Range) Contains(o Range) bool {
	return o.Start.Compare(r.Start) >= 0 && o.End.Compare(r.End) <= 0
}

const wholeFileToken = "whole-file"

// String returns r as "line:col-line:col", or "whole-file".
func (r Range) String() string {
	if r.IsWholeFile() {
		return wholeFileToken
	}
	return r.Start.String() + "-" + r.End.String()
}

// Parse parses a range in the form produced by Range.String.
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == wholeFileToken {
		return WholeFile(), nil
	}
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return Range{}, fmt.Errorf("bad range %q: missing '-'", s)
	}
	sp, err := parsePos(start)
	if err != nil {
		return Range{}, fmt.Errorf("bad range %q: start: %w", s, err)
	}
	ep, err := parsePos(end)
	if err != nil {
		return Range{}, fmt.Errorf("bad range %q: end: %w", s, err)
	}
	if ep.Compare(sp) < 0 {
		return Range{}, fmt.Errorf("bad range %q: end before start", s)
	}
	return Range{Start: sp, End: ep}, nil
}

func parsePos(s string) (Pos, error) {
	l, c, ok := strings.Cut(s, ":")
	if !ok {
		return Pos{}, fmt.Errorf("position %q: missing ':'", s)
	}
	line, err := strconv.Atoi(l)
	if err != nil {
		return Pos{}, fmt.Errorf("position %q: line: %w", s, err)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return Pos{}, fmt.Errorf("position %q: column: %w", s, err)
	}
	if line < 1 || col < 1 {
		return Pos{}, fmt.Errorf("position %q: line and column are 1-based", s)
	}
	return Pos{Line: line, Col: col}, nil
}
