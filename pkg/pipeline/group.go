// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipeline

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"
)

// Group runs the stages of one pipeline. A stage returning an error stops the
// pipeline's Token, so a failure cascades into an orderly shutdown of all other
// stages.
type Group struct {
	token *Token

	wg    sync.WaitGroup
	mutex sync.Mutex
	errs  *multierror.Error

	waitOnce sync.Once
	waitErr  error
}

// NewGroup creates a Group bound to a Token.
func NewGroup(token *Token) *Group {
	return &Group{token: token}
}

// Token returns the Group's Token.
func (g *Group) Token() *Token {
	return g.token
}

// Go starts a named stage in a new goroutine. A stage should return nil on an
// ordinary end-of-stream.
func (g *Group) Go(name string, stage func(*Token) error) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		logger := log.WithFields(log.Fields{
			"pipeline": g.token,
			"stage":    name,
		})
		logger.Debug("Stage started")

		if err := g.run(stage); err != nil {
			logger.WithError(err).Warn("Stage failed, stopping pipeline")

			g.mutex.Lock()
			g.errs = multierror.Append(g.errs, fmt.Errorf("%s: %w", name, err))
			g.mutex.Unlock()

			g.token.Stop()
		} else {
			logger.Debug("Stage finished")
		}
	}()
}

// run a stage and convert a panic into an error.
func (g *Group) run(stage func(*Token) error) (err error) {
	defer func() {
		if r := recover(); r != nil && err == nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()

	return stage(g.token)
}

// Wait until all stages have finished and return their aggregated errors.
// Multiple calls are fine and return the same result.
func (g *Group) Wait() error {
	g.waitOnce.Do(func() {
		g.wg.Wait()

		g.mutex.Lock()
		g.waitErr = g.errs.ErrorOrNil()
		g.mutex.Unlock()
	})

	return g.waitErr
}
