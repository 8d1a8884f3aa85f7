// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package source

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// MinEmulatorRate is the lowest byte rate of an Emulator, 20 frames per second.
	MinEmulatorRate = 2000

	// emulatorMaxBurst caps the bytes emitted by one ReadSome call, e.g., after a
	// longer pause of the reading goroutine.
	emulatorMaxBurst = 4096

	// emulatorIdleSleep is the pause if the budget does not cover a single byte.
	emulatorIdleSleep = time.Millisecond
)

// EmulatorRate returns the byte rate for a baud rate, assuming 8-N-1 framing
// with ten bits per byte. It is at least MinEmulatorRate.
func EmulatorRate(baud int) float64 {
	if baud == 0 {
		baud = DefaultBaud
	}

	rate := float64(baud) / 10.0
	if rate < MinEmulatorRate {
		rate = MinEmulatorRate
	}
	return rate
}

// Emulator is a Source generating an incrementing byte pattern at the pace of a
// serial line. A token bucket accumulates the emission budget over the elapsed
// time since the last call.
type Emulator struct {
	rate float64

	mutex   sync.Mutex
	budget  float64
	last    time.Time
	counter byte
	closed  bool

	now   func() time.Time
	sleep func(time.Duration)
}

// NewEmulator creates an Emulator pacing its output like the given baud rate.
func NewEmulator(baud int) *Emulator {
	return newEmulatorClock(baud, time.Now, time.Sleep)
}

func newEmulatorClock(baud int, now func() time.Time, sleep func(time.Duration)) *Emulator {
	e := &Emulator{
		rate:  EmulatorRate(baud),
		last:  now(),
		now:   now,
		sleep: sleep,
	}

	log.WithFields(log.Fields{
		"emulator": e,
		"baud":     baud,
	}).Info("Started serial emulator")

	return e
}

// Rate returns the target byte rate per second.
func (e *Emulator) Rate() float64 {
	return e.rate
}

// ReadSome emits as many pattern bytes as the accumulated budget allows, capped
// by len(p) and the maximum burst. A closed Emulator reports ErrDisconnected.
func (e *Emulator) ReadSome(p []byte) (int, error) {
	e.mutex.Lock()

	if e.closed {
		e.mutex.Unlock()
		return 0, ErrDisconnected
	}

	now := e.now()
	e.budget += now.Sub(e.last).Seconds() * e.rate
	e.last = now

	if e.budget < 1.0 {
		e.mutex.Unlock()
		e.sleep(emulatorIdleSleep)
		return 0, nil
	}

	want := int(e.budget)
	if want > emulatorMaxBurst {
		want = emulatorMaxBurst
	}
	if want > len(p) {
		want = len(p)
	}

	for i := 0; i < want; i++ {
		p[i] = e.counter
		e.counter++
	}
	e.budget -= float64(want)

	e.mutex.Unlock()
	return want, nil
}

// Close this Emulator. Subsequent reads report ErrDisconnected.
func (e *Emulator) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.closed = true
	return nil
}

func (e *Emulator) String() string {
	return fmt.Sprintf("emulator://?rate=%.0f", e.rate)
}
