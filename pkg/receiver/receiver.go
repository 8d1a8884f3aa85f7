// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package receiver accepts one TCP connection, reads fixed-size frames from it
// and appends them to a file.
//
// Two stages are connected by a framequeue.Pool. The ingress stage borrows a
// frame, fills it from the connection and submits it. The egress stage takes
// ready frames, writes them to a persist.FileSink and releases them.
package receiver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/framebridge/pkg/framequeue"
	"github.com/dtn7/framebridge/pkg/persist"
	"github.com/dtn7/framebridge/pkg/pipeline"
	"github.com/dtn7/framebridge/pkg/transport"
)

// Config of a Receiver.
type Config struct {
	// ListenAddress to accept the sender's connection on, e.g., ":5555".
	ListenAddress string

	// Prealloc is the amount of frames created in advance.
	Prealloc int

	// FlushEvery is the amount of frames between two flushes of the output file.
	FlushEvery int

	// BufferKB is the output buffer's size in KiB.
	BufferKB int

	// OutputPath of the append-only output file.
	OutputPath string
}

// Stats of a running Receiver.
type Stats struct {
	Pool     framequeue.Stats `json:"pool"`
	Received uint64           `json:"received"`
	Written  uint64           `json:"written"`
	Checksum uint16           `json:"checksum"`
}

// Receiver is the receiving pipeline.
type Receiver struct {
	conf Config

	pool     *framequeue.Pool
	listener *transport.Listener
	sink     *persist.FileSink

	token *pipeline.Token
	group *pipeline.Group

	received uint64
	written  uint64
	checksum transport.Checksum

	closeOnce sync.Once
	closeErr  error
}

// New creates a Receiver. Nothing is bound or opened before Start.
func New(conf Config) *Receiver {
	return &Receiver{
		conf: conf,
		pool: framequeue.NewPool(conf.Prealloc),
	}
}

// Start binds the listening socket, opens the output file and starts both
// stages. If an error is returned, no stage was started.
func (r *Receiver) Start() (err error) {
	if r.listener, err = transport.Listen(r.conf.ListenAddress); err != nil {
		return
	}

	if r.sink, err = persist.Open(r.conf.OutputPath, r.conf.BufferKB, r.conf.FlushEvery); err != nil {
		_ = r.listener.Close()
		return
	}

	log.WithFields(log.Fields{
		"receiver": r,
		"output":   r.sink,
	}).Info("Receiver is listening")

	r.token = pipeline.NewToken("receiver")
	r.token.OnStopClose("listener", r.listener)
	r.token.OnStop("pool", func() error {
		r.pool.Close()
		return nil
	})

	r.group = pipeline.NewGroup(r.token)
	r.group.Go("listener", r.ingress)
	r.group.Go("writer", r.egress)

	return
}

// ingress accepts the connection and feeds received frames into the Pool. The
// Pool is closed when the stream ends, which lets the egress stage drain.
func (r *Receiver) ingress(token *pipeline.Token) error {
	defer r.pool.Close()

	conn, err := r.listener.AcceptOne()
	if err != nil {
		if token.Stopped() || transport.IsEndOfStream(err) {
			return nil
		}
		return fmt.Errorf("accepting connection failed: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"receiver": r,
		"peer":     conn.RemoteAddr(),
	})
	logger.Info("Sender connected")

	for !token.Stopped() {
		h, ok := r.pool.Acquire()
		if !ok {
			return nil
		}

		if recvErr := transport.RecvInto(conn, r.pool.Payload(h)); recvErr != nil {
			r.pool.Release(h)
			return r.recvFailed(token, logger, recvErr)
		}

		if !r.pool.Submit(h) {
			// The Pool was closed by a shutdown; the frame was discarded.
			return nil
		}
		atomic.AddUint64(&r.received, 1)
	}

	return nil
}

// recvFailed converts a failed read into the stage's result. An ending stream
// is no error, a broken one is reported.
func (r *Receiver) recvFailed(token *pipeline.Token, logger *log.Entry, err error) error {
	logger = logger.WithField("frames", atomic.LoadUint64(&r.received))

	switch {
	case token.Stopped():
		logger.Info("Connection closed by shutdown")
		return nil

	case transport.IsEndOfStream(err):
		logger.Info("Sender disconnected")
		return nil

	default:
		logger.WithError(err).Warn("Connection failed")
		return fmt.Errorf("receiving frame failed: %w", err)
	}
}

// egress drains the Pool into the output file until the Pool is closed and empty.
func (r *Receiver) egress(_ *pipeline.Token) error {
	for {
		h, ok := r.pool.Take()
		if !ok {
			return r.sink.Flush()
		}

		frame := r.pool.Payload(h)
		err := r.sink.Write(frame)
		if err == nil {
			r.checksum.Update(frame)
		}
		r.pool.Release(h)

		if err != nil {
			return fmt.Errorf("writing frame failed: %w", err)
		}
		atomic.AddUint64(&r.written, 1)
	}
}

// Addr returns the listening address. It is only available after Start.
func (r *Receiver) Addr() net.Addr {
	return r.listener.Addr()
}

// Wait until both stages have finished, e.g., because the sender disconnected
// and all frames were written.
func (r *Receiver) Wait() error {
	return r.group.Wait()
}

// Close the Receiver. The listener is stopped first, then the remaining frames
// are written before the output file is closed. Multiple calls are fine.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		var errs *multierror.Error

		r.token.Stop()

		if err := r.group.Wait(); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := r.sink.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}

		r.closeErr = errs.ErrorOrNil()

		log.WithFields(log.Fields{
			"receiver": r,
			"received": atomic.LoadUint64(&r.received),
			"written":  atomic.LoadUint64(&r.written),
			"checksum": &r.checksum,
		}).Info("Receiver stopped")
	})

	return r.closeErr
}

// Stats returns the Receiver's current counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Pool:     r.pool.Stats(),
		Received: atomic.LoadUint64(&r.received),
		Written:  atomic.LoadUint64(&r.written),
		Checksum: r.checksum.Sum(),
	}
}

func (r *Receiver) String() string {
	if r.listener != nil {
		return r.listener.String()
	}
	return fmt.Sprintf("tcp://%s", r.conf.ListenAddress)
}
