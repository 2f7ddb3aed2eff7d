package ack

import (
	"sort"
	"sync"

	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/log"
)

// PeerState is the acknowledgement state of a single peer.
type PeerState struct {
	PeerID      uint32 `json:"peerID"`
	LastAcked   uint32 `json:"lastAcked"`
	StaleAcks   uint64 `json:"staleAcks"`
	SkippedAcks uint64 `json:"skippedAcks"`
	Resets      uint64 `json:"resets"`
}

// Tracker records the latest frame each peer acknowledged. Acks only move
// forward: duplicates and stale acks are ignored and gaps are tolerated,
// since any acknowledged frame is a valid baseline. An ack of ResetID is the
// exception and clears the baseline.
type Tracker struct {
	lock    sync.RWMutex
	history *History
	peers   map[uint32]*PeerState
}

// NewTracker creates a tracker that resolves baselines from history.
func NewTracker(history *History) *Tracker {
	return &Tracker{
		history: history,
		peers:   make(map[uint32]*PeerState),
	}
}

// Ack records that peer holds frame id. It reports whether the peer's
// baseline moved.
func (t *Tracker) Ack(peer, id uint32) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	state, ok := t.peers[peer]
	if !ok {
		state = &PeerState{PeerID: peer}
		t.peers[peer] = state
	}
	if id == ResetID {
		log.Debug("Peer %d dropped its baselines (last %d)", peer, state.LastAcked)
		state.Resets++
		moved := state.LastAcked != 0
		state.LastAcked = 0
		return moved
	}
	if !Newer(id, state.LastAcked) {
		state.StaleAcks++
		log.Trace("Ignoring stale ack %d from peer %d (last %d)", id, peer, state.LastAcked)
		return false
	}
	if last := t.history.Last(); last == 0 || Newer(id, last) {
		log.Warn("Peer %d acked frame %d which was never sent (last %d)", peer, id, last)
		return false
	}
	if state.LastAcked != 0 {
		skipped := id - state.LastAcked - 1
		if id < state.LastAcked {
			// the wrapped sequence has no frame 0
			skipped--
		}
		state.SkippedAcks += uint64(skipped)
	}
	state.LastAcked = id
	return true
}

// Baseline returns the last frame peer acknowledged, if it is still in the
// history. Callers send a full frame when ok is false.
func (t *Tracker) Baseline(peer uint32) (uint32, *frame.Frame, bool) {
	t.lock.RLock()
	state, ok := t.peers[peer]
	var id uint32
	if ok {
		id = state.LastAcked
	}
	t.lock.RUnlock()

	if id == 0 {
		return 0, nil, false
	}
	f, ok := t.history.Get(id)
	if !ok {
		log.Debug("Baseline %d for peer %d was evicted", id, peer)
		return 0, nil, false
	}
	return id, f, true
}

// Forget drops all state for peer.
func (t *Tracker) Forget(peer uint32) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.peers, peer)
}

// Snapshot returns a copy of every peer's state ordered by peer ID.
func (t *Tracker) Snapshot() []PeerState {
	t.lock.RLock()
	defer t.lock.RUnlock()

	states := make([]PeerState, 0, len(t.peers))
	for _, s := range t.peers {
		states = append(states, *s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].PeerID < states[j].PeerID })
	return states
}
