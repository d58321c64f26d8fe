// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package iometrics counts filesystem operations.
package iometrics

import (
	"fmt"
	"sync/atomic"
)

// IOMetrics holds I/O metrics. A nil *IOMetrics counts nothing.
type IOMetrics struct {
	name string

	stats      atomic.Int64
	statErrs   atomic.Int64
	reads      atomic.Int64
	readBytes  atomic.Int64
	readErrs   atomic.Int64
	removes    atomic.Int64
	removeErrs atomic.Int64
}

// New returns new iometrics for name.
func New(name string) *IOMetrics {
	return &IOMetrics{name: name}
}

// StatDone counts a stat or existence check. err is its error.
func (m *IOMetrics) StatDone(err error) {
	if m == nil {
		return
	}
	m.stats.Add(1)
	if err != nil {
		m.statErrs.Add(1)
	}
}

// ReadDone counts a read of n bytes. err is the read error.
func (m *IOMetrics) ReadDone(n int, err error) {
	if m == nil {
		return
	}
	m.reads.Add(1)
	m.readBytes.Add(int64(n))
	if err != nil {
		m.readErrs.Add(1)
	}
}

// RemoveDone counts a removal. err is the remove error.
func (m *IOMetrics) RemoveDone(err error) {
	if m == nil {
		return
	}
	m.removes.Add(1)
	if err != nil {
		m.removeErrs.Add(1)
	}
}

// Name returns the name of the iometrics.
func (m *IOMetrics) Name() string {
	if m == nil {
		return "<nil>"
	}
	return m.name
}

// Stats is a snapshot of IOMetrics.
type Stats struct {
	Stats    int64
	StatErrs int64

	Reads     int64
	ReadBytes int64
	ReadErrs  int64

	Removes    int64
	RemoveErrs int64
}

func (s Stats) String() string {
	return fmt.Sprintf("stat=%d(err=%d) read=%d/%dB(err=%d) remove=%d(err=%d)",
		s.Stats, s.StatErrs, s.Reads, s.ReadBytes, s.ReadErrs, s.Removes, s.RemoveErrs)
}

// Stats returns the snapshot of the iometrics.
func (m *IOMetrics) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Stats:      m.stats.Load(),
		StatErrs:   m.statErrs.Load(),
		Reads:      m.reads.Load(),
		ReadBytes:  m.readBytes.Load(),
		ReadErrs:   m.readErrs.Load(),
		Removes:    m.removes.Load(),
		RemoveErrs: m.removeErrs.Load(),
	}
}
