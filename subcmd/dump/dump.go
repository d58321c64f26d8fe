// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dump provides dump subcommand.
package dump

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/rangeinc/config"
	"go.chromium.org/infra/build/rangeinc/incremental"
	"go.chromium.org/infra/build/rangeinc/jobfile"
	"go.chromium.org/infra/build/rangeinc/osfs"
	"go.chromium.org/infra/build/rangeinc/ui"
)

// Cmd returns the Command for the `dump` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "dump -C <dir> -jobs <jobs.yaml> [-records] [-diffs]",
		ShortDesc: "dump incremental records",
		LongDesc: `dump incremental records and changed ranges of primary inputs.

 $ rangeinc dump -C <dir> -jobs jobs.yaml -records -diffs

-records prints the source-ranges file of each primary input.
-diffs prints the ranges changed since the previous compile.
`,
		CommandRun: func() subcommands.CommandRun {
			r := &run{}
			r.init()
			return r
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	dir        string
	jobsFile   string
	configFile string
	records    bool
	diffs      bool
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "directory to run in")
	c.Flags.StringVar(&c.jobsFile, "jobs", "jobs.yaml", "job file, relative to -C")
	c.Flags.StringVar(&c.configFile, "config", config.DefaultFile, "config file, relative to -C")
	c.Flags.BoolVar(&c.records, "records", false, "dump source-ranges records")
	c.Flags.BoolVar(&c.diffs, "diffs", false, "dump changed ranges")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(cancel)()

	err := c.run(ctx, args, a.GetOut(), a.GetErr())
	switch {
	case errors.Is(err, flag.ErrHelp):
		fmt.Fprintf(a.GetErr(), "%s: %v\n", a.GetName(), err)
		return 2
	case err != nil:
		fmt.Fprintf(a.GetErr(), "%s: %v\n", a.GetName(), err)
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 0 {
		return fmt.Errorf("position arguments not expected: %w", flag.ErrHelp)
	}
	err := os.Chdir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to chdir %s: %w", c.dir, err)
	}
	cfg, err := config.Load(c.configFile, &c.Flags)
	if err != nil {
		return err
	}
	if !cfg.DumpRecords && !cfg.DumpDiffs {
		return fmt.Errorf("nothing to dump. use -records or -diffs: %w", flag.ErrHelp)
	}
	logger, err := ui.NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	jobs, err := jobfile.Load(c.jobsFile)
	if err != nil {
		return err
	}
	infos, err := incremental.LoadAll(ctx, jobfile.AsIncremental(jobs), incremental.Options{
		FS:          osfs.New("dump", logger),
		Diagnostics: incremental.LogDiagnostics{Logger: logger},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	for primary, err := range infos.Failed {
		logger.Warn("no usable record", "primary", primary, "err", err)
	}
	return incremental.DumpAll(stdout, infos.States, incremental.DumpOptions{
		Records: cfg.DumpRecords,
		Diffs:   cfg.DumpDiffs,
	})
}
