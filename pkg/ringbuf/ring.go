// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ringbuf provides a bounded circular byte buffer with blocking
// exact-size reads and writes.
//
// A writer blocks while the Ring is full, a reader while it is empty. Thus, a
// fast producer, e.g., a serial line, cannot outrun a slower consumer. After
// Close, readers drain the remaining bytes before io.EOF is reported.
package ringbuf

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by Write after the Ring was closed. Bytes which did not
// fit into the Ring at that moment are dropped.
var ErrClosed = errors.New("ringbuf: closed")

// Ring is a fixed-capacity circular byte buffer, safe for concurrent use.
//
// Each Write is stored contiguously and each ReadFull is served contiguously,
// even with multiple writers or readers, because concurrent writers resp.
// readers are serialized against each other.
type Ring struct {
	// writeMutex and readMutex serialize whole Write resp. ReadFull calls. They are
	// always acquired before mutex and never together.
	writeMutex sync.Mutex
	readMutex  sync.Mutex

	mutex    sync.Mutex
	canRead  *sync.Cond
	canWrite *sync.Cond

	buf  []byte
	head int // next write position
	tail int // next read position
	size int

	closed bool
}

// New creates a Ring of the given capacity in bytes.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ringbuf: capacity must be positive, got %d", capacity)
	}

	r := &Ring{
		buf: make([]byte, capacity),
	}
	r.canRead = sync.NewCond(&r.mutex)
	r.canWrite = sync.NewCond(&r.mutex)

	return r, nil
}

// Write all bytes of p into the Ring, blocking while it is full.
//
// If the Ring is closed before p was stored completely, the rest is dropped and
// the amount of stored bytes is returned together with ErrClosed.
func (r *Ring) Write(p []byte) (n int, err error) {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	for n < len(p) {
		r.mutex.Lock()

		for r.size == len(r.buf) && !r.closed {
			r.canWrite.Wait()
		}
		if r.closed {
			r.mutex.Unlock()
			return n, ErrClosed
		}

		chunk := min(len(p)-n, len(r.buf)-r.size)

		first := copy(r.buf[r.head:], p[n:n+chunk])
		copy(r.buf, p[n+first:n+chunk])

		r.head = (r.head + chunk) % len(r.buf)
		r.size += chunk
		n += chunk

		r.canRead.Signal()
		r.mutex.Unlock()
	}

	return n, nil
}

// ReadFull reads exactly len(p) bytes from the Ring, blocking while it is empty.
//
// After Close, ReadFull continues to return buffered bytes. The error is io.EOF
// only if no bytes were read because the Ring was closed and empty. If the Ring
// runs dry after Close while reading, io.ErrUnexpectedEOF is returned together
// with the short count.
func (r *Ring) ReadFull(p []byte) (n int, err error) {
	r.readMutex.Lock()
	defer r.readMutex.Unlock()

	for n < len(p) {
		r.mutex.Lock()

		for r.size == 0 && !r.closed {
			r.canRead.Wait()
		}
		if r.size == 0 {
			r.mutex.Unlock()

			if n == 0 {
				return 0, io.EOF
			}
			return n, io.ErrUnexpectedEOF
		}

		chunk := min(len(p)-n, r.size)

		first := copy(p[n:n+chunk], r.buf[r.tail:])
		copy(p[n+first:n+chunk], r.buf)

		r.tail = (r.tail + chunk) % len(r.buf)
		r.size -= chunk
		n += chunk

		r.canWrite.Signal()
		r.mutex.Unlock()
	}

	return n, nil
}

// Close this Ring. Blocked writers return ErrClosed, blocked readers drain the
// remaining bytes. Closing an already closed Ring has no effect.
func (r *Ring) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.closed = true
	r.canRead.Broadcast()
	r.canWrite.Broadcast()

	return nil
}

// Closed checks if this Ring was closed.
func (r *Ring) Closed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.closed
}

// Len returns the amount of currently buffered bytes.
func (r *Ring) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.size
}

// Cap returns the Ring's capacity in bytes.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Stats is a snapshot of a Ring's fill level.
type Stats struct {
	Buffered int  `json:"buffered"`
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

// Stats returns the Ring's current fill level.
func (r *Ring) Stats() Stats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return Stats{
		Buffered: r.size,
		Capacity: len(r.buf),
		Closed:   r.closed,
	}
}

func (r *Ring) String() string {
	st := r.Stats()
	return fmt.Sprintf("ringbuf(%d/%d)", st.Buffered, st.Capacity)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
