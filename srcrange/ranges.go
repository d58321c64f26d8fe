// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package srcrange

import (
	"slices"
	"strings"
)

// Ranges is an ordered set of ranges, sorted by Range.Compare without
// duplicates. An empty Ranges means no change.
type Ranges []Range

// NewRanges returns rs as Ranges, sorted and deduplicated.
func NewRanges(rs ...Range) Ranges {
	if len(rs) == 0 {
		return nil
	}
	s := slices.Clone(rs)
	slices.SortFunc(s, Range.Compare)
	return Ranges(slices.Compact(s))
}

// RangesForWholeFile returns the set holding only the whole-file range.
func RangesForWholeFile() Ranges {
	return Ranges{WholeFile()}
}

// IsWholeFile reports whether rs holds the whole-file range.
func (rs Ranges) IsWholeFile() bool {
	return slices.ContainsFunc(rs, Range.IsWholeFile)
}

func (rs Ranges) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, r := range rs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Strings returns rs in text form.
func (rs Ranges) Strings() []string {
	ss := make([]string, 0, len(rs))
	for _, r := range rs {
		ss = append(ss, r.String())
	}
	return ss
}

// ParseRanges parses ranges in text form.
func ParseRanges(ss []string) (Ranges, error) {
	rs := make([]Range, 0, len(ss))
	for _, s := range ss {
		r, err := Parse(s)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	ranges := NewRanges(rs...)
	if ranges == nil {
		ranges = Ranges{}
	}
	return ranges, nil
}

func isContainedInAny(r Range, references Ranges) bool {
	for _, ref := range references {
		if ref.Contains(r) {
			return true
		}
	}
	return false
}

// FindOutliers returns candidates that are not contained in any of
// references, in candidate order.
func FindOutliers(candidates, references Ranges) Ranges {
	var outliers Ranges
	for _, c := range candidates {
		if !isContainedInAny(c, references) {
			outliers = append(outliers, c)
		}
	}
	return outliers
}

// FindFirstOutlier returns the first of candidates not contained in any of
// references.
func FindFirstOutlier(candidates, references Ranges) (Range, bool) {
	for _, c := range candidates {
		if !isContainedInAny(c, references) {
			return c, true
		}
	}
	return Range{}, false
}
