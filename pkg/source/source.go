// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package source provides byte producing devices for the sender: a serial line,
// a LoRa rf95modem and a paced Emulator.
package source

import "errors"

// ErrDisconnected is returned by ReadSome if the device is lost for good.
var ErrDisconnected = errors.New("source: device disconnected")

// DefaultBaud is used if no baud rate was configured.
const DefaultBaud = 28800

// Source is the interface for byte producing devices.
type Source interface {
	// ReadSome reads up to len(p) bytes into p. This method might block briefly.
	// Zero bytes without an error indicate an idle device. A fatal loss of the
	// device is reported as ErrDisconnected.
	ReadSome(p []byte) (int, error)

	// Close this Source. Furthermore, a pending ReadSome should be interrupted.
	Close() error
}
