// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package framequeue

import (
	"fmt"
	"sync"
)

// Pool is an object pool of frames combined with a FIFO queue of ready frames.
//
// Empty frames are kept in a LIFO free list, filled frames in a FIFO ready list.
// Both lists are chained through slot indices within one arena. All methods are
// safe for concurrent use by multiple producers and consumers.
type Pool struct {
	mutex sync.Mutex

	// notEmpty is signaled when the ready list grows, notFull when the free list
	// grows. Both are broadcasted on Close.
	notEmpty *sync.Cond
	notFull  *sync.Cond

	segments  []*segment
	allocated int

	free  frameList
	ready frameList

	closed bool
}

// NewPool creates a new Pool with prealloc frames already placed on the free
// list. The preallocation is only a hint; the Pool grows beyond it on demand.
func NewPool(prealloc int) *Pool {
	p := &Pool{
		free:  newFrameList(),
		ready: newFrameList(),
	}
	p.notEmpty = sync.NewCond(&p.mutex)
	p.notFull = sync.NewCond(&p.mutex)

	for i := 0; i < prealloc; i++ {
		p.pushFree(p.grow())
	}

	return p
}

// slot returns the slot for a Handle. The caller must hold the mutex.
func (p *Pool) slot(h Handle) *slot {
	if h < 0 || int(h) >= p.allocated {
		panic(fmt.Sprintf("framequeue: invalid handle %d", h))
	}
	return &p.segments[int(h)/segmentSize][int(h)%segmentSize]
}

// grow allocates a new slot, possibly appending a new segment to the arena.
// The caller must hold the mutex.
func (p *Pool) grow() Handle {
	if p.allocated == len(p.segments)*segmentSize {
		p.segments = append(p.segments, new(segment))
	}

	h := Handle(p.allocated)
	p.allocated++

	s := p.slot(h)
	s.next = nilHandle
	s.state = slotBorrowed
	return h
}

// pushFree puts a slot on top of the free list. The caller must hold the mutex.
func (p *Pool) pushFree(h Handle) {
	s := p.slot(h)
	s.next = p.free.head
	s.state = slotFree

	p.free.head = h
	p.free.count++
}

// popFree removes the top slot of the free list. The caller must hold the mutex.
func (p *Pool) popFree() Handle {
	h := p.free.head
	if h == nilHandle {
		return nilHandle
	}

	s := p.slot(h)
	p.free.head = s.next
	p.free.count--

	s.next = nilHandle
	s.state = slotBorrowed
	return h
}

// pushReady appends a slot to the ready list. The caller must hold the mutex.
func (p *Pool) pushReady(h Handle) {
	s := p.slot(h)
	s.next = nilHandle
	s.state = slotReady

	if p.ready.tail == nilHandle {
		p.ready.head = h
	} else {
		p.slot(p.ready.tail).next = h
	}
	p.ready.tail = h
	p.ready.count++
}

// popReady removes the oldest slot of the ready list. The caller must hold the mutex.
func (p *Pool) popReady() Handle {
	h := p.ready.head
	if h == nilHandle {
		return nilHandle
	}

	s := p.slot(h)
	p.ready.head = s.next
	if p.ready.head == nilHandle {
		p.ready.tail = nilHandle
	}
	p.ready.count--

	s.next = nilHandle
	s.state = slotBorrowed
	return h
}

// mustBorrowed panics if the caller does not own the slot.
func (p *Pool) mustBorrowed(h Handle, op string) {
	if s := p.slot(h); s.state != slotBorrowed {
		panic(fmt.Sprintf("framequeue: %s of frame %d in state %v", op, h, s.state))
	}
}

// Acquire an empty frame to be filled. If the free list is empty, a new frame
// is allocated. This method never blocks and only fails after Close.
func (p *Pool) Acquire() (h Handle, ok bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nilHandle, false
	}

	if h = p.popFree(); h == nilHandle {
		h = p.grow()
	}
	return h, true
}

// Payload returns the FrameSize bytes of a frame. The slice stays valid until the
// frame is handed back by Submit or Release.
func (p *Pool) Payload(h Handle) []byte {
	p.mutex.Lock()
	s := p.slot(h)
	p.mutex.Unlock()

	return s.data[:]
}

// Submit a filled frame to the tail of the ready list and wake one consumer.
//
// If the Pool is already closed, the frame is discarded and false is returned.
// In both cases the caller loses the ownership and must not use h afterwards.
func (p *Pool) Submit(h Handle) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.mustBorrowed(h, "submit")

	if p.closed {
		// The slot is parked on the free list; Acquire fails from now on.
		p.pushFree(h)
		return false
	}

	p.pushReady(h)
	p.notEmpty.Signal()
	return true
}

// Take the oldest ready frame. This method blocks until a frame is available.
// False is only returned if the Pool was closed and all ready frames are drained.
func (p *Pool) Take() (h Handle, ok bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for p.ready.empty() && !p.closed {
		p.notEmpty.Wait()
	}

	if p.ready.empty() {
		return nilHandle, false
	}

	h = p.popReady()
	p.notFull.Signal()
	return h, true
}

// Release a consumed frame to the free list for its reuse. The most recently
// released frame will be acquired next. Release also works after Close.
func (p *Pool) Release(h Handle) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.mustBorrowed(h, "release")

	p.pushFree(h)
	p.notFull.Signal()
}

// Close this Pool and wake up all waiting goroutines. Afterwards, Acquire fails
// and Submit discards. Take returns the remaining ready frames before it
// reports the end. Calling Close multiple times is fine.
func (p *Pool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.closed = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// Closed checks if this Pool was closed.
func (p *Pool) Closed() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.closed
}

// Stats is a snapshot of a Pool's list sizes.
type Stats struct {
	Ready     int  `json:"ready"`
	Free      int  `json:"free"`
	Allocated int  `json:"allocated"`
	Closed    bool `json:"closed"`
}

// Stats returns the current amount of ready, free and allocated frames.
func (p *Pool) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return Stats{
		Ready:     p.ready.count,
		Free:      p.free.count,
		Allocated: p.allocated,
		Closed:    p.closed,
	}
}

func (p *Pool) String() string {
	st := p.Stats()
	return fmt.Sprintf("framequeue(ready=%d, free=%d, allocated=%d)", st.Ready, st.Free, st.Allocated)
}
