// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package transport

import (
	"net"
	"time"
)

// This file implements the dialer and listener for operating systems next to
// Linux. Go's defaults already set SO_REUSEADDR for listeners on Unix systems.

// dial a new TCP connection with a configured timeout and keepalive.
func dial(address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 5 * time.Second,
	}
	return dialer.Dial("tcp", address)
}

func newListenConfig() *net.ListenConfig {
	return &net.ListenConfig{}
}
