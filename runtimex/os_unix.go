// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !windows

package runtimex

// activeProcessorCount returns 0 to use runtime.NumCPU, which respects
// the CPU affinity of the process.
func activeProcessorCount() int {
	return 0
}
