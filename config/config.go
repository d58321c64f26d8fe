// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config provides layered configuration of rangeinc.
//
// Values are taken from, in increasing priority: defaults, an optional
// TOML file, RANGEINC_* environment variables, and flags set on the
// command line.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"go.chromium.org/infra/build/rangeinc/runtimex"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".rangeinc.toml"

// EnvPrefix is the prefix of environment variables, e.g.
// RANGEINC_PARALLELISM=4.
const EnvPrefix = "RANGEINC_"

// Config holds configuration.
type Config struct {
	// Parallelism is the number of units loaded concurrently.
	Parallelism int `koanf:"parallelism"`
	// Explain prints why each job needs to run.
	Explain bool `koanf:"explain"`
	// LogLevel is the level of log messages: debug, info, warn or error.
	LogLevel string `koanf:"log_level"`
	// DumpRecords prints loaded source ranges files.
	DumpRecords bool `koanf:"dump_records"`
	// DumpDiffs prints changed ranges.
	DumpDiffs bool `koanf:"dump_diffs"`
}

func defaults() map[string]any {
	return map[string]any{
		"parallelism":  runtimex.NumCPU(),
		"explain":      false,
		"log_level":    "warn",
		"dump_records": false,
		"dump_diffs":   false,
	}
}

// flagKeys maps short flag names to config keys.
var flagKeys = map[string]string{
	"j":       "parallelism",
	"records": "dump_records",
	"diffs":   "dump_diffs",
}

// Load loads configuration. fname may not exist.
// Flags of flagSet are applied only if they were set; flag names are the
// config keys, or one of their short names.
func Load(fname string, flagSet *flag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(mapProvider(defaults()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if fname != "" {
		err = k.Load(file.Provider(fname), toml.Parser())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", fname, err)
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flagSet != nil {
		err = k.Load(mapProvider(setFlags(flagSet, k)), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	err = k.Unmarshal("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtimex.NumCPU()
	}
	return &cfg, nil
}

// setFlags returns values of flags set on the command line that are
// config keys.
func setFlags(flagSet *flag.FlagSet, k *koanf.Koanf) map[string]any {
	m := make(map[string]any)
	flagSet.Visit(func(f *flag.Flag) {
		key := f.Name
		if alias, ok := flagKeys[key]; ok {
			key = alias
		}
		if !k.Exists(key) {
			return
		}
		if g, ok := f.Value.(flag.Getter); ok {
			m[key] = g.Get()
			return
		}
		m[key] = f.Value.String()
	})
	return m
}

// mapProvider provides values from a map.
type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
