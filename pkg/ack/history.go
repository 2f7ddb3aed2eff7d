// Package ack tracks which frames peers have acknowledged so deltas can be
// encoded against a baseline the peer is known to hold.
package ack

import (
	"sync"

	"github.com/cbodonnell/tickstream/pkg/frame"
)

// DefaultHistorySize is the number of full frames kept for delta baselines.
const DefaultHistorySize = 64

// ResetID is acknowledged by a peer that dropped its baselines and needs a
// full frame next.
const ResetID uint32 = 0

// Newer reports whether frame ID a was assigned after b. IDs wrap around
// past 2^32, so the comparison holds for IDs less than 2^31 apart. Every ID
// is newer than 0.
func Newer(a, b uint32) bool {
	if b == 0 {
		return a != 0
	}
	return int32(a-b) > 0
}

// History is a ring of the most recent full frames keyed by frame ID.
// Frame IDs start at 1 and increase by one per stored frame, skipping 0 when
// they wrap; 0 means "no frame".
type History struct {
	lock   sync.RWMutex
	frames []*frame.Frame
	ids    []uint32
	last   uint32
}

// NewHistory creates a history holding the last size frames.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		frames: make([]*frame.Frame, size),
		ids:    make([]uint32, size),
	}
}

// Next stores f under a fresh frame ID and returns the ID. The oldest frame
// is evicted once the ring is full.
func (h *History) Next(f *frame.Frame) uint32 {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.last++
	if h.last == 0 {
		h.last = 1
	}
	slot := int(h.last % uint32(len(h.frames)))
	h.frames[slot] = f
	h.ids[slot] = h.last
	return h.last
}

// Get returns the frame stored under id, if it has not been evicted.
func (h *History) Get(id uint32) (*frame.Frame, bool) {
	if id == 0 {
		return nil, false
	}
	h.lock.RLock()
	defer h.lock.RUnlock()

	slot := int(id % uint32(len(h.frames)))
	if h.ids[slot] != id {
		return nil, false
	}
	return h.frames[slot], true
}

// Last returns the most recently assigned frame ID, or 0.
func (h *History) Last() uint32 {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.last
}

// Size returns the ring capacity.
func (h *History) Size() int {
	return len(h.frames)
}
