// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package source

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rf95modem-go/rf95"
)

// Rf95Prefix marks a device as a LoRa rf95modem instead of a plain serial line,
// e.g., "rf95:/dev/ttyUSB0".
const Rf95Prefix = "rf95:"

// packetReader is the part of a rf95.Modem used by Rf95.
type packetReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// Rf95 is a Source reading the payload of LoRa packets received by a rf95modem.
// Packets are concatenated into one byte stream.
type Rf95 struct {
	device string
	modem  packetReader
	mtu    int

	mutex   sync.Mutex
	pending []byte
}

// IsRf95Device checks if a device name carries the Rf95Prefix.
func IsRf95Device(device string) bool {
	return strings.HasPrefix(device, Rf95Prefix)
}

// OpenRf95 opens a rf95modem, e.g., "rf95:/dev/ttyUSB0". The prefix is optional.
func OpenRf95(device string) (r *Rf95, err error) {
	device = strings.TrimPrefix(device, Rf95Prefix)

	m, mErr := rf95.OpenSerial(device)
	if mErr != nil {
		err = fmt.Errorf("opening rf95modem %s failed: %w", device, mErr)
		return
	}

	mtu, mtuErr := m.Mtu()
	if mtuErr != nil {
		_ = m.Close()
		err = fmt.Errorf("fetching rf95modem's MTU failed: %w", mtuErr)
		return
	}

	r = newRf95(device, m, mtu)
	log.WithField("rf95", r).Info("Opened rf95modem")
	return
}

func newRf95(device string, modem packetReader, mtu int) *Rf95 {
	return &Rf95{
		device: device,
		modem:  modem,
		mtu:    mtu,
	}
}

// ReadSome returns the rest of the last packet or blocks until the next packet
// was received.
func (r *Rf95) ReadSome(p []byte) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.pending) == 0 {
		buf := make([]byte, r.mtu)

		n, err := r.modem.Read(buf)
		if err != nil {
			log.WithFields(log.Fields{
				"rf95":  r,
				"error": err,
			}).Warn("Receiving from rf95modem failed")

			return 0, ErrDisconnected
		}
		r.pending = buf[:n]
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Close the rf95modem.
func (r *Rf95) Close() error {
	return r.modem.Close()
}

func (r *Rf95) String() string {
	return fmt.Sprintf("rf95modem://%s", r.device)
}
