// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package diff provides diff subcommand.
package diff

import (
	"fmt"
	"io"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/infra/build/rangeinc/srccompare"
)

// Cmd returns the Command for the `diff` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "diff <old> <new>",
		ShortDesc: "print changed ranges between two files",
		LongDesc: `print ranges of <old> changed in <new>.

 $ rangeinc diff out/a.compiled a.src

Ranges are in <old> coordinates, one per line.
`,
		CommandRun: func() subcommands.CommandRun {
			return &run{}
		},
	}
}

type run struct {
	subcommands.CommandRunBase
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 2 {
		fmt.Fprintf(a.GetErr(), "%s: want 2 arguments, got %d\n", a.GetName(), len(args))
		return 2
	}
	err := diffFiles(a.GetOut(), args[0], args[1])
	if err != nil {
		fmt.Fprintf(a.GetErr(), "%s: %v\n", a.GetName(), err)
		return 1
	}
	return 0
}

func diffFiles(w io.Writer, before, after string) error {
	b, err := os.ReadFile(before)
	if err != nil {
		return err
	}
	a, err := os.ReadFile(after)
	if err != nil {
		return err
	}
	for _, r := range srccompare.Compare(b, a) {
		fmt.Fprintln(w, r)
	}
	return nil
}
