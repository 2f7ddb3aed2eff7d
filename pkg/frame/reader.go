package frame

import (
	"errors"
	"fmt"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/scope"
)

var (
	// ErrIncomplete is returned with a rebuilt frame that lacks delta scopes
	// the local registry does not know yet. The frame can be rendered but is
	// not a baseline the sender can diff against.
	ErrIncomplete = errors.New("rebuilt frame is incomplete")
	// ErrBaseMismatch is returned when a registered scope is sent as a delta
	// against a base that does not hold it.
	ErrBaseMismatch = errors.New("base lacks a delta scope")
)

// Reader applies received frames to the local registry and rebuilds full
// frames from deltas.
type Reader struct {
	registry *scope.Registry
}

// NewReader creates a reader over registry.
func NewReader(registry *scope.Registry) *Reader {
	return &Reader{registry: registry}
}

// lookup returns the registered scope for id. Frames may reference scopes
// the local registry has not caught up with yet, which is not an error.
func (r *Reader) lookup(id uint32) (*scope.Scope, bool) {
	s, ok := r.registry.Get(id)
	if !ok {
		log.Warn("Frame references unknown scope %d, skipping", id)
	}
	return s, ok
}

func canLerp(s *scope.Scope) bool {
	for _, b := range s.Bindings {
		if b.Streams() && b.LerpApplier == nil {
			return false
		}
	}
	return true
}

func requireExhausted(id uint32, readers ...*bitstream.Reader) {
	for _, rd := range readers {
		if rd != nil && rd.Remaining() != 0 {
			protocolPanic(id, "entries left %d bits unread", rd.Remaining())
		}
	}
}

// Apply applies a single frame without interpolation, as on a cold start.
func (r *Reader) Apply(f *Frame) {
	for _, section := range f.Sections() {
		s, ok := r.lookup(section.ID)
		if !ok {
			continue
		}
		applyCold(s, section.Payload, 1, 0)
	}
}

func applyCold(s *scope.Scope, payload *bitstream.Reader, mix, dt float64) {
	for _, b := range s.Bindings {
		switch {
		case !b.Streams():
		case b.Applier != nil:
			b.Applier.ApplyState(payload)
		case b.LerpApplier != nil:
			b.LerpApplier.ApplyLerpedState(nil, payload, mix, dt)
		default:
			protocolPanic(s.ID, "entry %T produces state but cannot apply it", b.Entry)
		}
	}
	requireExhausted(s.ID, payload)
}

// ApplyLerped applies the blend of prev and next. mix is the fraction of the
// way from prev to next and dt the seconds between their arrival. prev may
// be nil. Scopes absent from prev, or with an entry that cannot blend, are
// applied from next alone.
func (r *Reader) ApplyLerped(prev, next *Frame, mix, dt float64) {
	prevIndex := prev.Index()
	for _, section := range next.Sections() {
		s, ok := r.lookup(section.ID)
		if !ok {
			continue
		}
		prevPayload, warm := prevIndex[section.ID]
		if !warm || !canLerp(s) {
			applyCold(s, section.Payload, mix, dt)
			continue
		}
		for _, b := range s.Bindings {
			if !b.Streams() {
				continue
			}
			b.LerpApplier.ApplyLerpedState(prevPayload, section.Payload, mix, dt)
		}
		requireExhausted(s.ID, prevPayload, section.Payload)
	}
}

// AddDelta rebuilds the full frame that delta was encoded from, given the
// same base the encoder used.
//
// Verbatim scopes are copied as-is, even when not registered locally. Delta
// scopes need a registered scope and a matching base payload. Scopes that
// the encoder omitted are copied from base at their base position. The
// result matches the encoder's full frame record for record unless the
// sender's registry was compacted between base and delta; scope payloads
// match either way.
//
// A delta scope the registry does not know yet is left out and the partial
// frame is returned with ErrIncomplete. A registered delta scope that base
// lacks yields ErrBaseMismatch and no frame.
func (r *Reader) AddDelta(base, delta *Frame) (*Frame, error) {
	baseSections := base.Sections()
	basePos := make(map[uint32]int, len(baseSections))
	for i, section := range baseSections {
		basePos[section.ID] = i
	}
	deltaSections := delta.Sections()
	inDelta := make(map[uint32]struct{}, len(deltaSections))
	for _, section := range deltaSections {
		inDelta[section.ID] = struct{}{}
	}

	out := NewBuilder()
	payload := bitstream.NewWriter()
	var skipped []uint32
	next := 0
	copyOmitted := func(until int) {
		for ; next < until; next++ {
			section := baseSections[next]
			if _, ok := inDelta[section.ID]; ok {
				continue
			}
			if !r.registry.Has(section.ID) {
				continue
			}
			out.AddFrom(section.ID, section.Payload)
		}
	}

	for _, section := range deltaSections {
		pos, inBase := basePos[section.ID]
		if inBase {
			copyOmitted(pos + 1)
		} else {
			// scopes new since base were registered after every base scope
			copyOmitted(len(baseSections))
		}

		if !section.Payload.ReadBool() {
			out.AddFrom(section.ID, section.Payload)
			continue
		}

		s, ok := r.lookup(section.ID)
		if !ok {
			skipped = append(skipped, section.ID)
			continue
		}
		if !inBase {
			return nil, fmt.Errorf("scope %d: %w", section.ID, ErrBaseMismatch)
		}
		basePayload := baseSections[pos].Payload

		payload.Reset()
		for _, b := range s.Bindings {
			if !b.Streams() {
				continue
			}
			if b.DeltaApplier == nil {
				protocolPanic(s.ID, "entry %T received a delta but cannot add it", b.Entry)
			}
			b.DeltaApplier.AddDelta(basePayload, section.Payload, payload)
		}
		requireExhausted(s.ID, basePayload, section.Payload)
		out.Add(section.ID, payload)
	}
	copyOmitted(len(baseSections))

	if len(skipped) > 0 {
		return out.Frame(), fmt.Errorf("scopes %v: %w", skipped, ErrIncomplete)
	}
	return out.Frame(), nil
}
