// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package framequeue

import "fmt"

// FrameSize is the fixed payload length of each frame in bytes.
const FrameSize = 100

// segmentSize is the amount of slots allocated at once when the arena grows.
const segmentSize = 256

// Handle addresses a frame slot within a Pool's arena. A Handle is only valid
// for the Pool which has created it.
type Handle int32

// nilHandle terminates the index-chained lists.
const nilHandle Handle = -1

// slotState tracks the current owner of a slot.
type slotState uint8

const (
	// slotUnused marks slots of the last segment which were never handed out.
	slotUnused slotState = iota

	// slotFree marks slots on the free list.
	slotFree

	// slotReady marks slots on the ready list.
	slotReady

	// slotBorrowed marks slots owned by a producer or a consumer.
	slotBorrowed
)

func (s slotState) String() string {
	switch s {
	case slotUnused:
		return "unused"
	case slotFree:
		return "free"
	case slotReady:
		return "ready"
	case slotBorrowed:
		return "borrowed"
	default:
		return fmt.Sprintf("slotState(%d)", uint8(s))
	}
}

// slot is one frame's storage together with its intrusive list link.
type slot struct {
	data  [FrameSize]byte
	next  Handle
	state slotState
}

// segment is a fixed block of slots. Segments are never moved or reallocated,
// so a payload slice stays valid while its arena grows.
type segment [segmentSize]slot

// frameList is an index-chained singly linked list inside the arena.
type frameList struct {
	head  Handle
	tail  Handle
	count int
}

func newFrameList() frameList {
	return frameList{head: nilHandle, tail: nilHandle}
}

func (l frameList) empty() bool {
	return l.head == nilHandle
}
