// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// frame-receiver accepts one TCP connection and appends each received
// 100-byte frame to an output file.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"

	"github.com/dtn7/framebridge/pkg/logging"
	"github.com/dtn7/framebridge/pkg/receiver"
	"github.com/dtn7/framebridge/pkg/status"
)

// waitSigint blocks the current thread until a SIGINT or SIGTERM appears or
// the done channel is closed. It reports if a signal was caught.
func waitSigint(done <-chan struct{}) bool {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalSyn)

	select {
	case <-signalSyn:
		return true
	case <-done:
		return false
	}
}

// startStatus starts the optional status endpoint and statistics logging.
func startStatus(conf tomlConfig, registry *status.Registry) (srv *status.Server, cron *status.Cron, err error) {
	if conf.Status != "" {
		srv = status.NewServer(conf.Status, registry)
		if err = srv.Start(); err != nil {
			return
		}
	}

	if conf.StatsInterval > 0 {
		cron = status.NewCron()
		err = cron.Register("stats", registry.LogStats, time.Duration(conf.StatsInterval)*time.Second)
	}
	return
}

func main() {
	conf, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		log.WithError(err).Fatal("Failed to parse configuration")
	}

	if err := conf.Logging.Apply(); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}

	if conf.configFile != "" {
		if w, err := logging.Watch(conf.configFile, conf.keepLevelFlag); err != nil {
			log.WithError(err).Warn("Logging configuration will not be reloaded")
		} else {
			defer func() { _ = w.Close() }()
		}
	}

	if conf.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	recv := receiver.New(conf.receiverConfig())
	if err := recv.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start receiver")
	}

	registry := status.NewRegistry()
	registry.Register("receiver", func() interface{} { return recv.Stats() })

	srv, cron, err := startStatus(conf, registry)
	if err != nil {
		_ = recv.Close()
		log.WithError(err).Fatal("Failed to start status reporting")
	}

	done := make(chan struct{})
	go func() {
		if err := recv.Wait(); err != nil {
			log.WithError(err).Warn("Receiver finished with errors")
		}
		close(done)
	}()

	if waitSigint(done) {
		log.Info("Shutting down..")
	}

	if cron != nil {
		cron.Stop()
	}
	if srv != nil {
		_ = srv.Close()
	}

	if err := recv.Close(); err != nil {
		log.WithError(err).Debug("Closing receiver reported errors")
	}
	registry.LogStats()
}
