package ack

import (
	"sync"

	"github.com/cbodonnell/tickstream/pkg/frame"
)

// Receiver is the client side of acknowledgement: it keeps the full frames
// it has reconstructed so later deltas can name them as a base.
type Receiver struct {
	lock  sync.RWMutex
	byID  map[uint32]*frame.Frame
	order []uint32
	last  uint32
}

// NewReceiver creates a receiver caching the last size frames.
func NewReceiver(size int) *Receiver {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Receiver{
		byID:  make(map[uint32]*frame.Frame, size),
		order: make([]uint32, 0, size),
	}
}

// Accept reports whether frame id is newer than the last applied frame.
// Out of order and duplicate frames are rejected.
func (r *Receiver) Accept(id uint32) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return Newer(id, r.last)
}

// Store records f as the full frame for id and marks it applied.
func (r *Receiver) Store(id uint32, f *frame.Frame) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byID[id]; !ok {
		if len(r.order) == cap(r.order) {
			delete(r.byID, r.order[0])
			r.order = append(r.order[:0], r.order[1:]...)
		}
		r.order = append(r.order, id)
	}
	r.byID[id] = f
	if Newer(id, r.last) {
		r.last = id
	}
}

// Base returns the cached full frame for id.
func (r *Receiver) Base(id uint32) (*frame.Frame, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	f, ok := r.byID[id]
	return f, ok
}

// LastApplied returns the newest frame ID stored, or 0.
func (r *Receiver) LastApplied() uint32 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.last
}

// Reset drops every cached frame, as after a reconnect.
func (r *Receiver) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.byID = make(map[uint32]*frame.Frame, cap(r.order))
	r.order = r.order[:0]
	r.last = 0
}
