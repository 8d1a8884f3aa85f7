// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"sync"

	"github.com/howeyc/crc16"
)

var crc16table = crc16.MakeTable(crc16.CCITT)

// Checksum is a running CRC-16 (CCITT) over all frames of a stream. Both ends
// of a connection update it frame by frame, so their values match iff the
// same frames passed.
type Checksum struct {
	mutex sync.Mutex
	crc   uint16
}

// Update the Checksum with the next frame.
func (c *Checksum) Update(frame []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.crc = crc16.Update(c.crc, crc16table, frame)
}

// Sum returns the current value.
func (c *Checksum) Sum() uint16 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.crc
}

func (c *Checksum) String() string {
	return fmt.Sprintf("%04x", c.Sum())
}
