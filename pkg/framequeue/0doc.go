// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package framequeue provides a Pool of fixed-size frames combined with a FIFO
// queue of ready frames. It decouples a producer, e.g., a network reader, from a
// slower consumer, e.g., a file writer.
//
// A producer borrows an empty frame, fills its payload and submits it. A consumer
// takes the oldest ready frame, processes it and releases it back into the Pool.
//
//	h, ok := pool.Acquire()
//	if !ok {
//	  return // pool was closed
//	}
//	_, err := io.ReadFull(conn, pool.Payload(h))
//	...
//	pool.Submit(h)
//
//	// within another goroutine
//	for {
//	  h, ok := pool.Take()
//	  if !ok {
//	    return // closed and drained
//	  }
//	  process(pool.Payload(h))
//	  pool.Release(h)
//	}
//
// Frames are stored within a segmented arena and addressed by a Handle. The
// arena grows on demand, a producer is never blocked while acquiring a frame.
package framequeue
