// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-applies a file's [logging] block after each modification.
type Watcher struct {
	filename string
	adjust   func(Conf) Conf
	watcher  *fsnotify.Watcher

	// applied receives each successfully applied Conf; used by tests.
	applied chan Conf

	stopSyn   chan struct{}
	stopAck   chan struct{}
	closeOnce sync.Once
}

// Watch the given configuration file. The optional adjust function may alter
// each loaded Conf before it is applied, e.g., to keep command line overrides.
//
// The file's directory is watched, so a replaced file is noticed as well.
func Watch(filename string, adjust func(Conf) Conf) (*Watcher, error) {
	return watch(filename, adjust, nil)
}

func watch(filename string, adjust func(Conf) Conf, applied chan Conf) (w *Watcher, err error) {
	w = &Watcher{
		filename: filepath.Clean(filename),
		adjust:   adjust,
		applied:  applied,
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}

	if w.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("starting file watcher errored: %w", err)
	}
	if err = w.watcher.Add(filepath.Dir(w.filename)); err != nil {
		_ = w.watcher.Close()
		return nil, fmt.Errorf("watching %s errored: %w", filename, err)
	}

	go w.handler()

	log.WithField("file", w.filename).Debug("Watching logging configuration")
	return w, nil
}

func (w *Watcher) handler() {
	defer close(w.stopAck)

	for {
		select {
		case <-w.stopSyn:
			return

		case e, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(e.Name) != w.filename || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			log.WithError(err).Warn("Logging configuration watcher errored")
		}
	}
}

func (w *Watcher) reload() {
	logger := log.WithField("file", w.filename)

	conf, err := Load(w.filename)
	if err != nil {
		logger.WithError(err).Warn("Reloading logging configuration failed")
		return
	}

	if w.adjust != nil {
		conf = w.adjust(conf)
	}

	if err := conf.Apply(); err != nil {
		logger.WithError(err).Warn("Applying logging configuration failed")
		return
	}

	logger.WithField("level", log.GetLevel()).Info("Reloaded logging configuration")

	if w.applied != nil {
		select {
		case w.applied <- conf:
		default:
		}
	}
}

// Close this Watcher. Further calls have no effect.
func (w *Watcher) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.stopSyn)
		<-w.stopAck
		err = w.watcher.Close()
	})
	return
}
