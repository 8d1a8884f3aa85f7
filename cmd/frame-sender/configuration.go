// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/framebridge/pkg/logging"
	"github.com/dtn7/framebridge/pkg/sender"
	"github.com/dtn7/framebridge/pkg/source"
)

// tomlConfig describes the TOML-configuration. Each key might also be set by
// the equally named command line flag, which takes precedence.
type tomlConfig struct {
	Host          string
	Port          int
	Com           string
	Baud          int
	Ring          int
	Status        string
	Profile       bool
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
		Host:    "127.0.0.1",
		Port:    5555,
		Baud:    source.DefaultBaud,
		Ring:    sender.DefaultRingCapacity,
		Logging: logging.Conf{Level: "info"},
	}
}

// parseArgs creates the configuration from the defaults, an optional TOML file
// and the explicitly set command line flags, in this order.
//
// flag.ErrHelp is returned for -h or -help.
func parseArgs(args []string, output io.Writer) (conf tomlConfig, err error) {
	conf = defaultConfig()

	flags := flag.NewFlagSet("frame-sender", flag.ContinueOnError)
	flags.SetOutput(output)

	var (
		configFile = flags.String("config", "", "TOML configuration file, overridden by explicit flags")
		host       = flags.String("host", conf.Host, "Receiver's host")
		port       = flags.Int("port", conf.Port, "Receiver's TCP port")
		com        = flags.String("com", conf.Com, "Serial device, e.g., /dev/ttyUSB0 or rf95:/dev/ttyUSB0; the emulator is used if empty")
		baud       = flags.Int("baud", conf.Baud, "Baud rate of the serial device or the emulator")
		ring       = flags.Int("ring", conf.Ring, "Ring buffer capacity in bytes")
		status     = flags.String("status", conf.Status, "Address of the JSON status endpoint, e.g., localhost:8081")
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
		case "host":
			conf.Host = *host
		case "port":
			conf.Port = *port
		case "com":
			conf.Com = *com
		case "baud":
			conf.Baud = *baud
		case "ring":
			conf.Ring = *ring
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
	case conf.Host == "":
		return fmt.Errorf("host must not be empty")
	case conf.Port <= 0 || conf.Port > 65535:
		return fmt.Errorf("port %d is out of range", conf.Port)
	case conf.Baud < 0:
		return fmt.Errorf("baud must not be negative")
	case conf.Ring < sender.MinRingCapacity:
		return fmt.Errorf("ring must hold at least %d bytes", sender.MinRingCapacity)
	default:
		return nil
	}
}

// senderConfig for the configured pipeline.
func (conf tomlConfig) senderConfig() sender.Config {
	return sender.Config{
		Address:      net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
		RingCapacity: conf.Ring,
	}
}

// openSource opens the configured device, a rf95modem for a "rf95:" prefix,
// or, if none is configured, an emulator.
func (conf tomlConfig) openSource() (source.Source, error) {
	switch {
	case conf.Com == "":
		return source.NewEmulator(conf.Baud), nil

	case source.IsRf95Device(conf.Com):
		r, err := source.OpenRf95(conf.Com)
		if err != nil {
			return nil, err
		}
		return r, nil

	default:
		s, err := source.OpenSerial(conf.Com, conf.Baud)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// keepLevelFlag lets an explicit -log-level survive reloads of the TOML file.
func (conf tomlConfig) keepLevelFlag(c logging.Conf) logging.Conf {
	if conf.levelFlag != "" {
		c.Level = conf.levelFlag
	}
	return c
}
