// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package persist stores received frames in an append-only binary file.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultFlushEvery is the default amount of frames between two flushes.
	DefaultFlushEvery = 100

	// DefaultBufferKB is the default size of the output buffer in KiB.
	DefaultBufferKB = 1024

	// reportEvery is the amount of frames between two status lines.
	reportEvery = 100
)

// FileSink appends frames to a file through a large output buffer. It is not
// safe for concurrent use; a single writer goroutine owns it.
type FileSink struct {
	path string
	file *os.File
	bw   *bufio.Writer

	flushEvery int
	frames     uint64
	bytes      uint64
}

// Open a FileSink, creating the file if necessary. Existing content is kept.
// The output buffer has bufferKB KiB; the buffer is flushed every flushEvery
// frames. Non-positive values select the defaults.
func Open(path string, bufferKB, flushEvery int) (s *FileSink, err error) {
	if bufferKB <= 0 {
		bufferKB = DefaultBufferKB
	}
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}

	f, fErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fErr != nil {
		err = fmt.Errorf("opening output file %s failed: %w", path, fErr)
		return
	}

	s = &FileSink{
		path:       path,
		file:       f,
		bw:         bufio.NewWriterSize(f, bufferKB*1024),
		flushEvery: flushEvery,
	}

	log.WithFields(log.Fields{
		"sink":        s,
		"buffer-kb":   bufferKB,
		"flush-every": flushEvery,
	}).Info("Opened output file")

	return
}

// Write appends one frame. An incomplete write is reported as an error.
func (s *FileSink) Write(frame []byte) error {
	if n, err := s.bw.Write(frame); err != nil {
		return err
	} else if n != len(frame) {
		return io.ErrShortWrite
	}

	s.frames++
	s.bytes += uint64(len(frame))

	if s.frames%reportEvery == 0 && len(frame) >= 4 {
		log.WithFields(log.Fields{
			"frame":  s.frames - 1,
			"first4": fmt.Sprintf("% X", frame[:4]),
		}).Info("Stored frame")
	}

	if s.frames%uint64(s.flushEvery) == 0 {
		return s.bw.Flush()
	}
	return nil
}

// Flush the output buffer to the file.
func (s *FileSink) Flush() error {
	return s.bw.Flush()
}

// Frames returns the amount of written frames.
func (s *FileSink) Frames() uint64 {
	return s.frames
}

// Bytes returns the amount of written bytes.
func (s *FileSink) Bytes() uint64 {
	return s.bytes
}

// Close flushes the remaining buffer and closes the file. The FileSink must not
// be used afterwards.
func (s *FileSink) Close() error {
	flushErr := s.bw.Flush()
	closeErr := s.file.Close()

	log.WithFields(log.Fields{
		"sink":   s,
		"frames": s.frames,
	}).Info("Closed output file")

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (s *FileSink) String() string {
	return fmt.Sprintf("file://%s", s.path)
}
