// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package osfs provides OS Filesystem access.
package osfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/rangeinc/o11y/iometrics"
)

// slowOp is the duration after which an operation is logged as slow.
const slowOp = 1 * time.Minute

// OSFS provides OS Filesystem access.
// It counts metrics by iometrics.
type OSFS struct {
	*iometrics.IOMetrics
	logger *log.Logger
}

// New creates new OSFS. logger may be nil.
func New(name string, logger *log.Logger) *OSFS {
	if logger == nil {
		logger = log.Default()
	}
	return &OSFS{
		IOMetrics: iometrics.New(name),
		logger:    logger,
	}
}

func (ofs *OSFS) logSlow(name string, dur time.Duration, err error) {
	buf := make([]byte, 4*1024)
	n := runtime.Stack(buf, false)
	ofs.logger.Warnf("slow op %s: %s %v\n%s", name, dur, err, buf[:n])
}

func (ofs *OSFS) done(name string, started time.Time, err error) {
	if dur := time.Since(started); dur > slowOp {
		ofs.logSlow(name, dur, err)
	}
}

// Exists reports whether the named file exists.
// Errors other than "not exist" are treated as existing, so callers go on
// to report them from the following operation.
func (ofs *OSFS) Exists(ctx context.Context, name string) bool {
	started := time.Now()
	_, err := os.Stat(name)
	ofs.StatDone(err)
	ofs.done(name, started, err)
	return !errors.Is(err, fs.ErrNotExist)
}

// ModTime returns the modification time of the named file.
func (ofs *OSFS) ModTime(ctx context.Context, name string) (time.Time, error) {
	started := time.Now()
	fi, err := os.Stat(name)
	ofs.StatDone(err)
	ofs.done(name, started, err)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// ReadFile reads the named file.
func (ofs *OSFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	started := time.Now()
	buf, err := os.ReadFile(name)
	ofs.ReadDone(len(buf), err)
	ofs.done(name, started, err)
	return buf, err
}

// Remove removes the named file.
func (ofs *OSFS) Remove(ctx context.Context, name string) error {
	started := time.Now()
	err := os.Remove(name)
	ofs.RemoveDone(err)
	ofs.done(name, started, err)
	return err
}
