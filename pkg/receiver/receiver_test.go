// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package receiver

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtn7/framebridge/pkg/framequeue"
	"github.com/dtn7/framebridge/pkg/transport"
)

func startReceiver(t *testing.T) (*Receiver, string) {
	out := filepath.Join(t.TempDir(), "packets.bin")

	r := New(Config{
		ListenAddress: "localhost:0",
		Prealloc:      8,
		FlushEvery:    10,
		BufferKB:      4,
		OutputPath:    out,
	})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	return r, out
}

func frameBytes(i int) []byte {
	frame := make([]byte, transport.FrameSize)
	binary.BigEndian.PutUint32(frame, uint32(i))
	frame[transport.FrameSize-1] = byte(i)
	return frame
}

func waitDone(t *testing.T, r *Receiver) error {
	errCh := make(chan error)
	go func() { errCh <- r.Wait() }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Receiver did not finish")
		return nil
	}
}

func TestFrameSizesMatch(t *testing.T) {
	if transport.FrameSize != framequeue.FrameSize {
		t.Fatalf("Wire frame has %d bytes, pool frame %d", transport.FrameSize, framequeue.FrameSize)
	}
}

func TestReceiverStoresFrames(t *testing.T) {
	const frames = 2500

	r, out := startReceiver(t)

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	expected := new(bytes.Buffer)
	for i := 0; i < frames; i++ {
		frame := frameBytes(i)
		expected.Write(frame)

		// Split frames across writes to exercise reassembly.
		if err := transport.SendAll(conn, frame[:33]); err != nil {
			t.Fatal(err)
		}
		if err := transport.SendAll(conn, frame[33:]); err != nil {
			t.Fatal(err)
		}
	}

	// A trailing partial frame is reported, but not stored.
	_ = transport.SendAll(conn, []byte{1, 2, 3})
	_ = conn.Close()

	if err := waitDone(t, r); err == nil {
		t.Fatal("Broken trailing frame was not reported")
	}

	if err := r.Close(); err == nil {
		t.Fatal("Close did not report the broken trailing frame")
	}
	_ = r.Close()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, expected.Bytes()) {
		t.Fatalf("Output differs: %d bytes instead of %d", len(data), expected.Len())
	}

	if st := r.Stats(); st.Received != frames || st.Written != frames || st.Pool.Ready != 0 {
		t.Fatalf("Unexpected stats: %+v", st)
	} else if st.Pool.Free != st.Pool.Allocated {
		t.Fatalf("Frames leaked: %+v", st.Pool)
	}
}

func TestReceiverCleanDisconnect(t *testing.T) {
	r, out := startReceiver(t)

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := transport.SendAll(conn, frameBytes(i)); err != nil {
			t.Fatal(err)
		}
	}
	_ = conn.Close()

	if err := waitDone(t, r); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if data, err := os.ReadFile(out); err != nil {
		t.Fatal(err)
	} else if len(data) != 3*transport.FrameSize {
		t.Fatalf("Output has %d bytes", len(data))
	}
}

func TestReceiverCloseWithoutSender(t *testing.T) {
	r, _ := startReceiver(t)

	closed := make(chan error)
	go func() { closed <- r.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close hangs while waiting for a connection")
	}
}

func TestReceiverCloseWhileConnected(t *testing.T) {
	r, _ := startReceiver(t)

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	if err := transport.SendAll(conn, frameBytes(0)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for r.Stats().Written != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Frame was not written")
		}
		time.Sleep(time.Millisecond)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReceiverStartFailure(t *testing.T) {
	r := New(Config{
		ListenAddress: "localhost:0",
		OutputPath:    filepath.Join(t.TempDir(), "missing", "packets.bin"),
	})

	if err := r.Start(); err == nil {
		t.Fatal("Start with an unwritable output succeeded")
	}
}
