// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sender reads a byte stream from a source.Source and forwards it as
// fixed-size frames over one TCP connection.
//
// Two stages are connected by a ringbuf.Ring. The ingress stage pushes whatever
// the source yields, the egress stage pops exactly one frame at a time and
// sends it.
package sender

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/framebridge/pkg/pipeline"
	"github.com/dtn7/framebridge/pkg/ringbuf"
	"github.com/dtn7/framebridge/pkg/source"
	"github.com/dtn7/framebridge/pkg/transport"
)

const (
	// DefaultRingCapacity is the default ring buffer size in bytes.
	DefaultRingCapacity = 256 * 1024

	// MinRingCapacity is the smallest accepted ring buffer, one frame.
	MinRingCapacity = transport.FrameSize

	// readChunkSize is the maximum amount of bytes read from the source at once.
	readChunkSize = 2048

	// reportEvery is the amount of sent frames between two status lines.
	reportEvery = 500
)

// Config of a Sender.
type Config struct {
	// Address of the receiver, e.g., "127.0.0.1:5555".
	Address string

	// RingCapacity is the ring buffer's size in bytes.
	RingCapacity int
}

// Stats of a running Sender.
type Stats struct {
	Ring    ringbuf.Stats `json:"ring"`
	Read    uint64        `json:"read"`
	Sent    uint64        `json:"sent"`
	Dropped uint64        `json:"dropped"`

	Checksum uint16 `json:"checksum"`
}

// Sender is the sending pipeline.
type Sender struct {
	conf Config
	src  source.Source
	ring *ringbuf.Ring
	conn net.Conn

	token *pipeline.Token
	group *pipeline.Group

	read     uint64
	sent     uint64
	dropped  uint64
	checksum transport.Checksum

	closeOnce sync.Once
	closeErr  error
}

// New creates a Sender reading from src. The Sender takes over src and closes it.
func New(conf Config, src source.Source) (*Sender, error) {
	if conf.RingCapacity == 0 {
		conf.RingCapacity = DefaultRingCapacity
	} else if conf.RingCapacity < MinRingCapacity {
		return nil, fmt.Errorf("ring capacity %d is less than one frame", conf.RingCapacity)
	}

	ring, err := ringbuf.New(conf.RingCapacity)
	if err != nil {
		return nil, err
	}

	return &Sender{
		conf: conf,
		src:  src,
		ring: ring,
	}, nil
}

// Start connects to the receiver and starts both stages. If an error is
// returned, no stage was started.
func (s *Sender) Start() (err error) {
	if s.conn, err = transport.Dial(s.conf.Address); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"sender": s,
		"source": s.src,
	}).Info("Connected to receiver")

	s.token = pipeline.NewToken("sender")
	s.token.OnStopClose("ring", s.ring)
	s.token.OnStopClose("source", s.src)
	s.token.OnStopClose("connection", s.conn)

	s.group = pipeline.NewGroup(s.token)
	s.group.Go("reader", s.ingress)
	s.group.Go("packer", s.egress)

	return
}

// ingress pushes the source's bytes into the Ring. When the source is lost, the
// Ring is closed and the egress stage sends the remaining complete frames.
func (s *Sender) ingress(token *pipeline.Token) error {
	defer func() { _ = s.ring.Close() }()

	buf := make([]byte, readChunkSize)

	for !token.Stopped() {
		n, err := s.src.ReadSome(buf)

		if n > 0 {
			atomic.AddUint64(&s.read, uint64(n))

			if w, wErr := s.ring.Write(buf[:n]); wErr != nil {
				// Closed during shutdown; the rest of this chunk is lost.
				atomic.AddUint64(&s.dropped, uint64(n-w))
				log.WithFields(log.Fields{
					"sender":  s,
					"dropped": n - w,
				}).Debug("Ring closed while pushing")
				return nil
			}
		}

		switch {
		case err == nil:
			continue

		case errors.Is(err, source.ErrDisconnected):
			if !token.Stopped() {
				log.WithFields(log.Fields{
					"sender": s,
					"source": s.src,
				}).Warn("Source disconnected")
			}
			return nil

		default:
			return fmt.Errorf("reading from source failed: %w", err)
		}
	}

	return nil
}

// egress pops exactly one frame at a time from the Ring and sends it.
func (s *Sender) egress(token *pipeline.Token) error {
	frame := make([]byte, transport.FrameSize)

	log.WithField("sender", s).Info("Packer started")
	defer log.WithField("sender", s).Info("Packer exiting")

	for !token.Stopped() {
		n, err := s.ring.ReadFull(frame)
		if err == io.EOF {
			return nil
		} else if err == io.ErrUnexpectedEOF {
			log.WithFields(log.Fields{
				"sender": s,
				"bytes":  n,
			}).Debug("Discarding incomplete trailing frame")
			return nil
		}

		if err := transport.SendAll(s.conn, frame); err != nil {
			if token.Stopped() {
				return nil
			}
			return fmt.Errorf("sending frame failed: %w", err)
		}
		s.checksum.Update(frame)

		if sent := atomic.AddUint64(&s.sent, 1); sent%reportEvery == 0 {
			log.WithFields(log.Fields{
				"sender": s,
				"frames": sent,
			}).Info("Sent frames")
		}
	}

	return nil
}

// Wait until both stages have finished, e.g., because the source or the
// connection was lost.
func (s *Sender) Wait() error {
	return s.group.Wait()
}

// Close the Sender. The Ring is closed, which wakes both stages, and the source
// as well as the connection are closed afterwards. Multiple calls are fine.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		var errs *multierror.Error

		s.token.Stop()

		if err := s.group.Wait(); err != nil {
			errs = multierror.Append(errs, err)
		}

		s.closeErr = errs.ErrorOrNil()

		log.WithFields(log.Fields{
			"sender":   s,
			"read":     atomic.LoadUint64(&s.read),
			"sent":     atomic.LoadUint64(&s.sent),
			"dropped":  atomic.LoadUint64(&s.dropped),
			"checksum": &s.checksum,
		}).Info("Sender stopped")
	})

	return s.closeErr
}

// Stats returns the Sender's current counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Ring:    s.ring.Stats(),
		Read:    atomic.LoadUint64(&s.read),
		Sent:    atomic.LoadUint64(&s.sent),
		Dropped: atomic.LoadUint64(&s.dropped),

		Checksum: s.checksum.Sum(),
	}
}

func (s *Sender) String() string {
	return fmt.Sprintf("tcp://%s", s.conf.Address)
}
