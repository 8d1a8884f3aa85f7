// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipeline contains the shutdown protocol shared by all producer and
// consumer stages built on a framequeue.Pool or a ringbuf.Ring.
//
// Each pipeline owns one Token. Closing the shared buffer, sockets and devices
// is registered on the Token, so that stopping it wakes every stage, including
// those blocked in foreign calls like a TCP read. The stages themselves run
// within a Group, which joins them and aggregates their errors.
package pipeline

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Token signals the shutdown of a pipeline. It is passed to every stage and
// checked at loop boundaries.
type Token struct {
	name string

	mutex   sync.Mutex
	closers []namedCloser
	stopped bool

	stopSyn chan struct{}
}

type namedCloser struct {
	name   string
	closer func() error
}

// NewToken creates a new Token for the named pipeline.
func NewToken(name string) *Token {
	return &Token{
		name:    name,
		stopSyn: make(chan struct{}),
	}
}

// OnStop registers a function to be called once when the Token is stopped.
// Functions are called in their registration order. If the Token is already
// stopped, f is called immediately.
func (t *Token) OnStop(name string, f func() error) {
	t.mutex.Lock()
	if !t.stopped {
		t.closers = append(t.closers, namedCloser{name, f})
		t.mutex.Unlock()
		return
	}
	t.mutex.Unlock()

	t.runCloser(namedCloser{name, f})
}

// OnStopClose registers an io.Closer, e.g., a shared buffer or a socket.
func (t *Token) OnStopClose(name string, c io.Closer) {
	t.OnStop(name, c.Close)
}

// Stop this Token. Only the first call closes Done and runs the registered
// closers; further calls return immediately.
func (t *Token) Stop() {
	t.mutex.Lock()
	if t.stopped {
		t.mutex.Unlock()
		return
	}
	t.stopped = true
	closers := t.closers
	t.closers = nil
	close(t.stopSyn)
	t.mutex.Unlock()

	log.WithField("pipeline", t.name).Debug("Stopping pipeline")

	for _, c := range closers {
		t.runCloser(c)
	}
}

func (t *Token) runCloser(c namedCloser) {
	if err := c.closer(); err != nil {
		log.WithFields(log.Fields{
			"pipeline": t.name,
			"closer":   c.name,
			"error":    err,
		}).Debug("Closing on pipeline stop errored")
	}
}

// Done returns a channel which is closed when the Token was stopped.
func (t *Token) Done() <-chan struct{} {
	return t.stopSyn
}

// Stopped checks if the Token was stopped.
func (t *Token) Stopped() bool {
	select {
	case <-t.stopSyn:
		return true
	default:
		return false
	}
}

func (t *Token) String() string {
	return t.name
}
