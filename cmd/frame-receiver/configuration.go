// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/framebridge/pkg/logging"
	"github.com/dtn7/framebridge/pkg/persist"
	"github.com/dtn7/framebridge/pkg/receiver"
)

// tomlConfig describes the TOML-configuration. Each key might also be set by
// the equally named command line flag, which takes precedence.
type tomlConfig struct {
	Port          int
	Prealloc      int
	Out           string
	Status        string
	Profile       bool
	FlushEvery    int  `toml:"flush-every"`
	BufferKB      int  `toml:"buffer-kb"`
	StatsInterval uint `toml:"stats-interval"`
	Logging       logging.Conf

	// configFile is the path of the TOML file, if one was given.
	configFile string

	// levelFlag is the -log-level flag's value, if explicitly set.
	levelFlag string
}

// defaultConfig returns a configuration with each option's default value.
func defaultConfig() tomlConfig {
	return tomlConfig{
		Port:       5555,
		Prealloc:   1024,
		FlushEvery: persist.DefaultFlushEvery,
		BufferKB:   persist.DefaultBufferKB,
		Out:        "packets.bin",
		Logging:    logging.Conf{Level: "info"},
	}
}

// parseArgs creates the configuration from the defaults, an optional TOML file
// and the explicitly set command line flags, in this order.
//
// flag.ErrHelp is returned for -h or -help.
func parseArgs(args []string, output io.Writer) (conf tomlConfig, err error) {
	conf = defaultConfig()

	flags := flag.NewFlagSet("frame-receiver", flag.ContinueOnError)
	flags.SetOutput(output)

	var (
		configFile = flags.String("config", "", "TOML configuration file, overridden by explicit flags")
		port       = flags.Int("port", conf.Port, "TCP port to accept the sender on")
		prealloc   = flags.Int("prealloc", conf.Prealloc, "Frames to preallocate in the pool")
		flushEvery = flags.Int("flush-every", conf.FlushEvery, "Frames between two output flushes")
		bufferKB   = flags.Int("buffer-kb", conf.BufferKB, "Output buffer size in KiB")
		out        = flags.String("out", conf.Out, "Append-only output file")
		status     = flags.String("status", conf.Status, "Address of the JSON status endpoint, e.g., localhost:8080")
		interval   = flags.Uint("stats-interval", conf.StatsInterval, "Seconds between two statistics log lines, 0 disables")
		profiling  = flags.Bool("profile", conf.Profile, "Write a CPU profile to the working directory")
		logLevel   = flags.String("log-level", conf.Logging.Level, "Log level: panic,fatal,error,warn,info,debug,trace")
	)

	if err = flags.Parse(args); err != nil {
		return
	}
	if flags.NArg() > 0 {
		err = fmt.Errorf("unexpected arguments: %v", flags.Args())
		return
	}

	if *configFile != "" {
		if _, err = toml.DecodeFile(*configFile, &conf); err != nil {
			err = fmt.Errorf("parsing %s failed: %w", *configFile, err)
			return
		}
		conf.configFile = *configFile
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			conf.Port = *port
		case "prealloc":
			conf.Prealloc = *prealloc
		case "flush-every":
			conf.FlushEvery = *flushEvery
		case "buffer-kb":
			conf.BufferKB = *bufferKB
		case "out":
			conf.Out = *out
		case "status":
			conf.Status = *status
		case "stats-interval":
			conf.StatsInterval = *interval
		case "profile":
			conf.Profile = *profiling
		case "log-level":
			conf.Logging.Level = *logLevel
			conf.levelFlag = *logLevel
		}
	})

	err = conf.validate()
	return
}

func (conf tomlConfig) validate() error {
	switch {
	case conf.Port < 0 || conf.Port > 65535:
		return fmt.Errorf("port %d is out of range", conf.Port)
	case conf.Prealloc < 0:
		return fmt.Errorf("prealloc must not be negative")
	case conf.FlushEvery <= 0:
		return fmt.Errorf("flush-every must be positive")
	case conf.BufferKB <= 0:
		return fmt.Errorf("buffer-kb must be positive")
	case conf.Out == "":
		return fmt.Errorf("out must not be empty")
	default:
		return nil
	}
}

// receiverConfig for the configured pipeline.
func (conf tomlConfig) receiverConfig() receiver.Config {
	return receiver.Config{
		ListenAddress: fmt.Sprintf(":%d", conf.Port),
		Prealloc:      conf.Prealloc,
		FlushEvery:    conf.FlushEvery,
		BufferKB:      conf.BufferKB,
		OutputPath:    conf.Out,
	}
}

// keepLevelFlag lets an explicit -log-level survive reloads of the TOML file.
func (conf tomlConfig) keepLevelFlag(c logging.Conf) logging.Conf {
	if conf.levelFlag != "" {
		c.Level = conf.levelFlag
	}
	return c
}
