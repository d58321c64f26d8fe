// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rangesfile reads and writes source ranges files.
//
// A source ranges file is written next to a compiled unit and records which
// parts of the unit are local scopes (e.g. function bodies), and which
// parts of other units were not parsed while compiling it.
//
//	### source ranges file v0 ###
//	---
//	local_scope_ranges:
//	  - 3:17-8:2
//	unparsed_ranges_by_dependency:
//	  b.src:
//	    - 1:1-20:1
//
// Ranges are "line:col-line:col" with 1-based lines and byte columns,
// in the coordinates of the file the range belongs to.
//
// Keys of unparsed_ranges_by_dependency are compared byte for byte with
// the primary input paths of the other jobs, as the job file resolves
// them: a relative path in the job file is joined with the job file's
// directory, so with "-jobs sub/jobs.yaml" the primary "b.src" is keyed
// as "sub/b.src". A key that matches no primary is never consulted, and
// a dependency without a matching key counts as unknown, so any nonlocal
// change to it recompiles the unit.
package rangesfile

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"go.chromium.org/infra/build/rangeinc/srcrange"
)

// Header is the first line of a source ranges file.
const Header = "### source ranges file v0 ###\n"

// ErrFormat is returned when a source ranges file is malformed.
var ErrFormat = errors.New("bad source ranges file")

// Contents is the contents of a source ranges file.
type Contents struct {
	// LocalScopeRanges are ranges of the unit whose edits are not visible
	// from other units.
	LocalScopeRanges srcrange.Ranges

	// UnparsedRangesByDependency maps a dependency path to the ranges of
	// the dependency that were not parsed when compiling the unit.
	// A missing key means nothing is known about the dependency, which is
	// different from a key with no ranges (everything was parsed).
	UnparsedRangesByDependency map[string]srcrange.Ranges
}

// UnparsedRanges returns the unparsed ranges recorded for dep.
func (c *Contents) UnparsedRanges(dep string) (srcrange.Ranges, bool) {
	if c == nil {
		return nil, false
	}
	rs, ok := c.UnparsedRangesByDependency[dep]
	return rs, ok
}

type body struct {
	LocalScopeRanges           *[]string            `yaml:"local_scope_ranges"`
	UnparsedRangesByDependency *map[string][]string `yaml:"unparsed_ranges_by_dependency"`
}

// Load parses buf as the source ranges file of primaryPath.
func Load(primaryPath string, buf []byte) (*Contents, error) {
	if !bytes.HasPrefix(buf, []byte(Header)) {
		return nil, fmt.Errorf("%w for %s: missing header %q", ErrFormat, primaryPath, Header)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf[len(Header):]))
	dec.KnownFields(true)
	var b body
	err := dec.Decode(&b)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrFormat, primaryPath, err)
	}
	if b.LocalScopeRanges == nil {
		return nil, fmt.Errorf("%w for %s: missing local_scope_ranges", ErrFormat, primaryPath)
	}
	if b.UnparsedRangesByDependency == nil {
		return nil, fmt.Errorf("%w for %s: missing unparsed_ranges_by_dependency", ErrFormat, primaryPath)
	}
	local, err := srcrange.ParseRanges(*b.LocalScopeRanges)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: local_scope_ranges: %w", ErrFormat, primaryPath, err)
	}
	c := &Contents{
		LocalScopeRanges:           local,
		UnparsedRangesByDependency: make(map[string]srcrange.Ranges, len(*b.UnparsedRangesByDependency)),
	}
	for dep, ss := range *b.UnparsedRangesByDependency {
		rs, err := srcrange.ParseRanges(ss)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: unparsed ranges of %s: %w", ErrFormat, primaryPath, dep, err)
		}
		c.UnparsedRangesByDependency[dep] = rs
	}
	return c, nil
}

// Marshal returns c in source ranges file format.
func Marshal(c *Contents) ([]byte, error) {
	local := c.LocalScopeRanges.Strings()
	unparsed := make(map[string][]string, len(c.UnparsedRangesByDependency))
	for dep, rs := range c.UnparsedRangesByDependency {
		unparsed[dep] = rs.Strings()
	}
	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(body{
		LocalScopeRanges:           &local,
		UnparsedRangesByDependency: &unparsed,
	})
	if err != nil {
		return nil, err
	}
	err = enc.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
