// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// rangeinc decides which compile jobs of an incremental build need to run,
// from the source ranges recorded by the previous build.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/rangeinc/subcmd/diff"
	"go.chromium.org/infra/build/rangeinc/subcmd/dump"
	"go.chromium.org/infra/build/rangeinc/subcmd/help"
	"go.chromium.org/infra/build/rangeinc/subcmd/plan"
	"go.chromium.org/infra/build/rangeinc/subcmd/version"
)

const versionStr = "rangeinc v0.1.0"

func main() {
	os.Exit(rangeincMain())
}

func rangeincMain() (exitCode int) {
	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, buf)
			exitCode = 1
		}
	}()
	return subcommands.Run(getApplication(), nil)
}

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "rangeinc",
		Title: "range-based incremental compile planner",
		Context: func(ctx context.Context) context.Context {
			return ctx
		},
		Commands: []*subcommands.Command{
			plan.Cmd(),
			dump.Cmd(),
			diff.Cmd(),

			help.Cmd(),
			version.Cmd(versionStr),
		},
	}
}
