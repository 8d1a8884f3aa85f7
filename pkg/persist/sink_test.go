// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func fileSize(t *testing.T, path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return fi.Size()
}

func TestFileSinkFlushCadence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.bin")

	sink, err := Open(path, 64, 3)
	if err != nil {
		t.Fatal(err)
	}

	frame := bytes.Repeat([]byte{0x42}, 100)

	for i := 1; i <= 2; i++ {
		if err := sink.Write(frame); err != nil {
			t.Fatal(err)
		}
		if size := fileSize(t, path); size != 0 {
			t.Fatalf("File has %d bytes before the first flush", size)
		}
	}

	if err := sink.Write(frame); err != nil {
		t.Fatal(err)
	}
	if size := fileSize(t, path); size != 300 {
		t.Fatalf("File has %d bytes after the first flush", size)
	}

	if err := sink.Write(frame); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	if size := fileSize(t, path); size != 400 {
		t.Fatalf("File has %d bytes after Close", size)
	}
	if sink.Frames() != 4 || sink.Bytes() != 400 {
		t.Fatalf("Sink counted %d frames, %d bytes", sink.Frames(), sink.Bytes())
	}
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.bin")

	for round := byte(0); round < 2; round++ {
		sink, err := Open(path, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if err := sink.Write(bytes.Repeat([]byte{round}, 100)); err != nil {
			t.Fatal(err)
		}
		if err := sink.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	expected := append(bytes.Repeat([]byte{0}, 100), bytes.Repeat([]byte{1}, 100)...)
	if !bytes.Equal(data, expected) {
		t.Fatalf("File content differs, %d bytes", len(data))
	}
}

func TestFileSinkOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "packets.bin")

	if _, err := Open(path, 0, 0); err == nil {
		t.Fatal("Opening a file in a missing directory succeeded")
	}
}
