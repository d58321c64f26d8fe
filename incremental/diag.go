// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// WarnKind identifies a non-fatal problem found while loading.
type WarnKind int

const (
	// WarnUnableToLoadRanges is reported when a source ranges file
	// can't be read.
	WarnUnableToLoadRanges WarnKind = iota
	// WarnBadRangesFile is reported when a source ranges file is
	// malformed.
	WarnBadRangesFile
	// WarnUnableToLoadCompiledSource is reported when the saved copy of
	// a primary input can't be read.
	WarnUnableToLoadCompiledSource
	// WarnUnableToLoadPrimary is reported when a primary input can't
	// be read.
	WarnUnableToLoadPrimary
	// WarnCannotStat is reported when a modification time is not
	// available.
	WarnCannotStat
	// WarnCannotRemove is reported when a stale supplementary output
	// can't be removed.
	WarnCannotRemove
)

func (k WarnKind) String() string {
	switch k {
	case WarnUnableToLoadRanges:
		return "unable-to-load-source-ranges"
	case WarnBadRangesFile:
		return "bad-source-ranges"
	case WarnUnableToLoadCompiledSource:
		return "unable-to-load-compiled-source"
	case WarnUnableToLoadPrimary:
		return "unable-to-load-primary"
	case WarnCannotStat:
		return "cannot-stat"
	case WarnCannotRemove:
		return "cannot-remove"
	}
	return fmt.Sprintf("WarnKind(%d)", int(k))
}

// Diagnostics receives warnings and notes about incremental decisions.
// It is only observed, never consulted.
// LoadAll calls it from multiple goroutines.
type Diagnostics interface {
	// Warn reports a non-fatal problem about path.
	Warn(kind WarnKind, path string, err error)

	// Note explains a decision made for job.
	Note(job Job, reason string)
}

// LogDiagnostics reports diagnostics to a logger.
type LogDiagnostics struct {
	Logger *log.Logger

	// ShowDecisions logs notes at info level. Otherwise, at debug level.
	ShowDecisions bool
}

// Warn logs a warning.
func (d LogDiagnostics) Warn(kind WarnKind, path string, err error) {
	d.Logger.Warn(kind.String(), "path", path, "err", err)
}

// Note logs a decision.
func (d LogDiagnostics) Note(job Job, reason string) {
	if d.ShowDecisions {
		d.Logger.Info(reason, "primary", job.PrimaryInput())
		return
	}
	d.Logger.Debug(reason, "primary", job.PrimaryInput())
}

type nopDiagnostics struct{}

func (nopDiagnostics) Warn(WarnKind, string, error) {}
func (nopDiagnostics) Note(Job, string)             {}
