// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package plan provides plan subcommand.
package plan

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/rangeinc/config"
	"go.chromium.org/infra/build/rangeinc/incremental"
	"go.chromium.org/infra/build/rangeinc/jobfile"
	"go.chromium.org/infra/build/rangeinc/o11y/trace"
	"go.chromium.org/infra/build/rangeinc/osfs"
	"go.chromium.org/infra/build/rangeinc/ui"
)

const usage = `decide which compile jobs need to run.

 $ rangeinc plan -C <dir> -jobs jobs.yaml

It loads the source-ranges and compiled-source files recorded by the
previous build for every primary input in jobs.yaml, and prints the jobs
that need to be rerun and the jobs that lack those files.
`

// Cmd returns the Command for the `plan` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "plan -C <dir> -jobs <jobs.yaml>",
		ShortDesc: "decide which compile jobs need to run",
		LongDesc:  usage,
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
	buildID    string

	explain     bool
	parallelism int
	logLevel    string
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "directory to run in")
	c.Flags.StringVar(&c.jobsFile, "jobs", "jobs.yaml", "job file, relative to -C")
	c.Flags.StringVar(&c.configFile, "config", config.DefaultFile, "config file, relative to -C")
	c.Flags.StringVar(&c.buildID, "build_id", "", "build id. generated if empty")
	c.Flags.BoolVar(&c.explain, "explain", false, "explain why each job is needed")
	c.Flags.IntVar(&c.parallelism, "j", 0, "number of units loaded in parallel")
	c.Flags.StringVar(&c.logLevel, "log_level", "warn", "log level: debug, info, warn or error")
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

func (c *run) run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("position arguments not expected: %w", flag.ErrHelp)
	}
	err = os.Chdir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to chdir %s: %w", c.dir, err)
	}
	cfg, err := config.Load(c.configFile, &c.Flags)
	if err != nil {
		return err
	}
	logger, err := ui.NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	if c.buildID == "" {
		c.buildID = uuid.NewString()
	}
	logger = logger.With("build_id", c.buildID)

	tc := trace.New(c.buildID)
	ctx = trace.NewContext(ctx, tc)
	ctx, span := trace.NewSpan(ctx, "plan")
	logger.Debug("trace", "id", tc.ID())
	defer func() {
		span.Close(err)
		for _, sd := range tc.Spans() {
			logger.Debug("span", "name", sd.Name, "duration", sd.Duration(), "attrs", sd.Attrs, "err", sd.Err)
		}
	}()

	jobs, err := jobfile.Load(c.jobsFile)
	if err != nil {
		return err
	}
	ijobs := jobfile.AsIncremental(jobs)

	fsys := osfs.New("plan", logger)
	diag := incremental.LogDiagnostics{
		Logger:        logger,
		ShowDecisions: cfg.Explain,
	}
	started := time.Now()
	infos, err := incremental.LoadAll(ctx, ijobs, incremental.Options{
		FS:          fsys,
		Diagnostics: diag,
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	logger.Info("loaded", "units", len(infos.States), "failed", len(infos.Failed), "duration", time.Since(started), "fs", fsys.Name(), "io", fsys.Stats())

	_, decideSpan := trace.NewSpan(ctx, "decide")
	decision := incremental.Decide(infos.States, ijobs, diag)
	decideSpan.SetAttr("needed", len(decision.Needed))
	decideSpan.SetAttr("lacking", len(decision.Lacking))
	decideSpan.Close(nil)
	printDecision(stdout, decision, len(ijobs))

	if cfg.DumpRecords || cfg.DumpDiffs {
		err = incremental.DumpAll(stdout, infos.States, incremental.DumpOptions{
			Records: cfg.DumpRecords,
			Diffs:   cfg.DumpDiffs,
		})
		if err != nil {
			return fmt.Errorf("failed to dump: %w", err)
		}
	}
	return nil
}

func printDecision(w io.Writer, decision incremental.Decision, total int) {
	for _, job := range decision.Needed {
		fmt.Fprintf(w, "%s %s\n", ui.Colorize(ui.Yellow, "needed: "), job)
	}
	for _, job := range decision.Lacking {
		fmt.Fprintf(w, "%s %s\n", ui.Colorize(ui.Red, "lacking:"), job)
	}
	fmt.Fprintf(w, "%d of %d jobs needed, %d lacking incremental files\n", len(decision.Needed), total, len(decision.Lacking))
}
