// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ringbuf

import (
	"bytes"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func mustRing(t *testing.T, capacity int) *Ring {
	r, err := New(capacity)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func seqBytes(from, to int) []byte {
	b := make([]byte, 0, to-from)
	for i := from; i < to; i++ {
		b = append(b, byte(i))
	}
	return b
}

// waitLen polls until the Ring buffers the expected amount of bytes.
func waitLen(t *testing.T, r *Ring, expected int) {
	deadline := time.Now().Add(time.Second)
	for r.Len() != expected {
		if time.Now().After(deadline) {
			t.Fatalf("Ring buffers %d bytes instead of %d", r.Len(), expected)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := New(capacity); err == nil {
			t.Fatalf("New(%d) did not error", capacity)
		}
	}
}

func TestRingWrapAround(t *testing.T) {
	r := mustRing(t, 8)
	buf := make([]byte, 5)

	for i := 0; i < 10; i++ {
		in := seqBytes(i*5, i*5+5)
		if n, err := r.Write(in); err != nil || n != 5 {
			t.Fatalf("Write: %d, %v", n, err)
		}

		if n, err := r.ReadFull(buf); err != nil || n != 5 {
			t.Fatalf("ReadFull: %d, %v", n, err)
		} else if !bytes.Equal(buf, in) {
			t.Fatalf("Round %d: expected %x, got %x", i, in, buf)
		}
	}

	if r.Len() != 0 {
		t.Fatalf("Ring is not empty: %d", r.Len())
	}
}

// A second writer blocks until a reader makes room.
func TestRingBackpressure(t *testing.T) {
	r := mustRing(t, 10)

	if n, err := r.Write(seqBytes(0, 7)); err != nil || n != 7 {
		t.Fatalf("Write: %d, %v", n, err)
	}

	writeDone := make(chan error)
	go func() {
		_, err := r.Write(seqBytes(7, 14))
		writeDone <- err
	}()

	waitLen(t, r, 10)

	select {
	case <-writeDone:
		t.Fatal("Write returned although the Ring is full")
	case <-time.After(50 * time.Millisecond):
	}

	buf := make([]byte, 10)
	if n, err := r.ReadFull(buf); err != nil || n != 10 {
		t.Fatalf("ReadFull: %d, %v", n, err)
	} else if !bytes.Equal(buf, seqBytes(0, 10)) {
		t.Fatalf("Expected %x, got %x", seqBytes(0, 10), buf)
	}

	select {
	case err := <-writeDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Blocked Write was not woken up")
	}

	buf = make([]byte, 4)
	if n, err := r.ReadFull(buf); err != nil || n != 4 {
		t.Fatalf("ReadFull: %d, %v", n, err)
	} else if !bytes.Equal(buf, seqBytes(10, 14)) {
		t.Fatalf("Expected %x, got %x", seqBytes(10, 14), buf)
	}
}

// Close during a partial read returns a short count.
func TestRingCloseDuringRead(t *testing.T) {
	r := mustRing(t, 16)

	if _, err := r.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	type result struct {
		n   int
		err error
		buf []byte
	}
	resCh := make(chan result)

	go func() {
		buf := make([]byte, 10)
		n, err := r.ReadFull(buf)
		resCh <- result{n, err, buf}
	}()

	waitLen(t, r, 0)
	_ = r.Close()

	select {
	case res := <-resCh:
		if res.n != 3 || res.err != io.ErrUnexpectedEOF {
			t.Fatalf("ReadFull returned %d, %v", res.n, res.err)
		}
		if !bytes.Equal(res.buf[:3], []byte{1, 2, 3}) {
			t.Fatalf("ReadFull returned %x", res.buf[:3])
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFull hangs after Close")
	}

	if n, err := r.ReadFull(make([]byte, 1)); n != 0 || err != io.EOF {
		t.Fatalf("ReadFull on a closed, empty Ring returned %d, %v", n, err)
	}
}

func TestRingDrainAfterClose(t *testing.T) {
	r := mustRing(t, 32)

	if _, err := r.Write(seqBytes(0, 25)); err != nil {
		t.Fatal(err)
	}
	_ = r.Close()
	_ = r.Close()

	buf := make([]byte, 10)
	for i := 0; i < 2; i++ {
		if n, err := r.ReadFull(buf); err != nil || n != 10 {
			t.Fatalf("ReadFull %d: %d, %v", i, n, err)
		} else if !bytes.Equal(buf, seqBytes(i*10, i*10+10)) {
			t.Fatalf("ReadFull %d: got %x", i, buf)
		}
	}

	if n, err := r.ReadFull(buf); n != 5 || err != io.ErrUnexpectedEOF {
		t.Fatalf("Final ReadFull returned %d, %v", n, err)
	}
}

// Bytes that do not fit into a closed Ring are dropped and reported.
func TestRingWriteDropsAfterClose(t *testing.T) {
	r := mustRing(t, 4)

	writeRes := make(chan int)
	go func() {
		n, err := r.Write(seqBytes(0, 10))
		if err != ErrClosed {
			t.Errorf("Write returned error %v", err)
		}
		writeRes <- n
	}()

	waitLen(t, r, 4)
	_ = r.Close()

	select {
	case n := <-writeRes:
		if n != 4 {
			t.Fatalf("Write stored %d bytes, expected 4", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Write hangs after Close")
	}

	if n, err := r.Write([]byte{42}); n != 0 || err != ErrClosed {
		t.Fatalf("Write on a closed Ring returned %d, %v", n, err)
	}

	buf := make([]byte, 4)
	if _, err := r.ReadFull(buf); err != nil || !bytes.Equal(buf, seqBytes(0, 4)) {
		t.Fatalf("Draining returned %x, %v", buf, err)
	}
}

func TestRingCloseWakesWaiters(t *testing.T) {
	r := mustRing(t, 1)

	var wg sync.WaitGroup
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer wg.Done()
			_, _ = r.ReadFull(make([]byte, 8))
		}()
	}

	time.Sleep(20 * time.Millisecond)

	var closers sync.WaitGroup
	closers.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer closers.Done()
			_ = r.Close()
		}()
	}
	closers.Wait()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake all readers")
	}

	if st := r.Stats(); st.Buffered != 0 || !st.Closed {
		t.Fatalf("Unexpected stats: %+v", st)
	}
}

// Random chunk sizes on both sides must result in the same byte stream.
func TestRingRandomChunksFifo(t *testing.T) {
	const total = 1 << 18

	r := mustRing(t, 1021)
	rnd := rand.New(rand.NewSource(23))
	input := make([]byte, total)
	rnd.Read(input)

	go func() {
		wrnd := rand.New(rand.NewSource(42))
		for off := 0; off < total; {
			chunk := 1 + wrnd.Intn(3000)
			if off+chunk > total {
				chunk = total - off
			}
			if _, err := r.Write(input[off : off+chunk]); err != nil {
				t.Error(err)
				return
			}
			off += chunk
		}
		_ = r.Close()
	}()

	output := make([]byte, 0, total)
	buf := make([]byte, 100)
	for {
		n, err := r.ReadFull(buf)
		output = append(output, buf[:n]...)

		if st := r.Stats(); st.Buffered > st.Capacity {
			t.Fatalf("Ring exceeds its capacity: %+v", st)
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(input, output) {
		t.Fatalf("Output differs from input, %d vs. %d bytes", len(output), len(input))
	}
}

// Concurrent writers never interleave within a single Write.
func TestRingConcurrentWritersContiguous(t *testing.T) {
	const (
		writers = 4
		writes  = 200
		runLen  = 50
	)

	r := mustRing(t, 64)

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(id byte) {
			defer wg.Done()
			run := bytes.Repeat([]byte{id}, runLen)
			for i := 0; i < writes; i++ {
				if _, err := r.Write(run); err != nil {
					t.Error(err)
					return
				}
			}
		}(byte(w + 1))
	}

	go func() {
		wg.Wait()
		_ = r.Close()
	}()

	counts := make(map[byte]int)
	buf := make([]byte, runLen)
	for {
		n, err := r.ReadFull(buf)
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("ReadFull: %d, %v", n, err)
		}

		for _, b := range buf {
			if b != buf[0] {
				t.Fatalf("Interleaved run: %x", buf)
			}
		}
		counts[buf[0]]++
	}

	for w := 1; w <= writers; w++ {
		if counts[byte(w)] != writes {
			t.Fatalf("Writer %d: %d of %d runs", w, counts[byte(w)], writes)
		}
	}
}
