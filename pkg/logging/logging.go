// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging configures the global logrus logger from a TOML [logging]
// block and optionally re-applies it whenever the configuration file changes.
package logging

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
)

// Conf describes the Logging-configuration block.
type Conf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// fileConf is the part of a configuration file relevant for logging.
type fileConf struct {
	Logging Conf
}

// Apply this configuration to the global logger. Empty fields keep their defaults.
func (conf Conf) Apply() error {
	if conf.Level != "" {
		lvl, err := log.ParseLevel(conf.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q, select one of panic,fatal,error,warn,info,debug,trace", conf.Level)
		}
		log.SetLevel(lvl)
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		return fmt.Errorf("unknown logging format %q", conf.Format)
	}

	return nil
}

// Load the [logging] block of a TOML file.
func Load(filename string) (conf Conf, err error) {
	var fc fileConf
	if _, err = toml.DecodeFile(filename, &fc); err != nil {
		return
	}

	conf = fc.Logging
	return
}
