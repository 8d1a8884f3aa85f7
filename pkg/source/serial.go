// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package source

import (
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tarm/serial"
)

// MinSerialBaud is the lowest baud rate a Serial is opened with.
const MinSerialBaud = 28800

// serialReadTimeout lets a read return frequently on an idle line.
const serialReadTimeout = 10 * time.Millisecond

// Serial is a Source reading from a serial device, e.g., /dev/ttyUSB0 or COM3,
// configured as 8-N-1 without flow control.
type Serial struct {
	device string
	baud   int
	port   *serial.Port
}

// ClampSerialBaud returns the baud rate a Serial would use for the requested one.
func ClampSerialBaud(baud int) int {
	if baud == 0 {
		baud = DefaultBaud
	}
	if baud < MinSerialBaud {
		baud = MinSerialBaud
	}
	return baud
}

// OpenSerial opens the serial device with at least MinSerialBaud.
func OpenSerial(device string, baud int) (s *Serial, err error) {
	baud = ClampSerialBaud(baud)

	conf := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}

	if port, portErr := serial.OpenPort(conf); portErr != nil {
		err = fmt.Errorf("opening serial device %s failed: %w", device, portErr)
	} else {
		s = &Serial{
			device: device,
			baud:   baud,
			port:   port,
		}

		if flushErr := port.Flush(); flushErr != nil {
			log.WithFields(log.Fields{
				"serial": s,
				"error":  flushErr,
			}).Debug("Failed to discard stale serial buffers")
		}

		log.WithField("serial", s).Info("Opened serial device")
	}

	return
}

// ReadSome reads the currently available bytes. A read timeout on an idle line
// is reported as zero bytes.
func (s *Serial) ReadSome(p []byte) (int, error) {
	n, err := s.port.Read(p)
	switch {
	case err == nil:
		return n, nil

	case errors.Is(err, io.EOF):
		// tarm/serial reports an expired read timeout as io.EOF.
		return n, nil

	default:
		log.WithFields(log.Fields{
			"serial": s,
			"error":  err,
		}).Warn("Reading from serial device failed")

		return n, ErrDisconnected
	}
}

// Close the serial device.
func (s *Serial) Close() error {
	return s.port.Close()
}

func (s *Serial) String() string {
	return fmt.Sprintf("serial://%s?baud=%d", s.device, s.baud)
}
