// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport provides the TCP stream between a sender and a receiver.
//
// There is no framing on the wire; each application unit has a fixed size and
// is written resp. read as a whole. Any failure on a stream is treated as its
// end, there are neither retries nor reconnections.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// FrameSize is the length of each unit on the wire in bytes.
const FrameSize = 100

// dialTimeout limits the establishment of an outgoing connection.
const dialTimeout = time.Second

// receiveBufferSize is requested as SO_RCVBUF for accepted connections.
const receiveBufferSize = 512 * 1024

// SendAll writes all bytes of p. A short write is reported as an error.
func SendAll(w io.Writer, p []byte) error {
	for off := 0; off < len(p); {
		n, err := w.Write(p[off:])
		if err != nil {
			return err
		} else if n == 0 {
			return io.ErrShortWrite
		}
		off += n
	}
	return nil
}

// RecvInto fills p completely. If the stream ends before, io.EOF is returned
// for an untouched p and io.ErrUnexpectedEOF for a partially filled p.
func RecvInto(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}

// IsEndOfStream checks if an error only reports an ordinary end, e.g., a
// connection closed by the peer or by a local shutdown.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// Dial a new TCP connection to the given address.
func Dial(address string) (net.Conn, error) {
	conn, err := dial(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s failed: %w", address, err)
	}
	return conn, nil
}
