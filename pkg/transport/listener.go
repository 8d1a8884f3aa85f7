// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Listener accepts exactly one incoming TCP connection.
type Listener struct {
	listenAddress string
	ln            net.Listener

	mutex  sync.Mutex
	conn   net.Conn
	closed bool
}

// Listen binds a new Listener to the given address, e.g., ":5555".
func Listen(listenAddress string) (*Listener, error) {
	ln, err := newListenConfig().Listen(context.Background(), "tcp", listenAddress)
	if err != nil {
		return nil, fmt.Errorf("listening on %s failed: %w", listenAddress, err)
	}

	return &Listener{
		listenAddress: listenAddress,
		ln:            ln,
	}, nil
}

// Addr returns the bound address, which is useful for port 0.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// AcceptOne blocks until the first connection arrives. Afterwards, the listening
// socket is closed; further connections will be refused. A concurrent Close
// interrupts AcceptOne.
func (l *Listener) AcceptOne() (net.Conn, error) {
	conn, err := l.ln.Accept()

	// No more connections are served by this process.
	_ = l.ln.Close()

	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if bufErr := tcpConn.SetReadBuffer(receiveBufferSize); bufErr != nil {
			log.WithFields(log.Fields{
				"listener": l,
				"error":    bufErr,
			}).Debug("Failed to enlarge the receive buffer")
		}
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	l.conn = conn

	return conn, nil
}

// Close the listening socket and an accepted connection. This unblocks both a
// pending AcceptOne and a pending read on the accepted connection.
func (l *Listener) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	_ = l.ln.Close()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

func (l *Listener) String() string {
	return fmt.Sprintf("tcp://%v", l.ln.Addr())
}
