package frame

import (
	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/scope"
)

// Encoder turns full frames into delta frames against an acknowledged
// baseline.
type Encoder struct {
	registry            *scope.Registry
	skipIdenticalScopes bool
}

// NewEncoderOptions contains options for creating a new Encoder.
type NewEncoderOptions struct {
	Registry *scope.Registry
	// SkipIdenticalScopes omits scopes whose payload is bit-identical to the
	// baseline. Readers copy omitted scopes from their own baseline.
	SkipIdenticalScopes bool
}

func NewEncoder(opts NewEncoderOptions) *Encoder {
	return &Encoder{
		registry:            opts.Registry,
		skipIdenticalScopes: opts.SkipIdenticalScopes,
	}
}

// canDelta reports whether every entry producing state in s can diff it.
func canDelta(s *scope.Scope) bool {
	for _, b := range s.Bindings {
		if b.Collector != nil && b.DeltaWriter == nil {
			return false
		}
	}
	return true
}

// CalculateDelta encodes full relative to base. A nil base yields a delta
// frame in which every scope is a verbatim copy.
//
// Scopes present in both frames are marked as deltas and diffed entry by
// entry. Scopes missing from base, scopes no longer registered and scopes
// with an entry that cannot diff are copied verbatim.
func (e *Encoder) CalculateDelta(full, base *Frame) *Frame {
	baseIndex := base.Index()
	out := NewBuilder()
	payload := bitstream.NewWriter()

	for _, section := range full.Sections() {
		payload.Reset()
		basePayload, inBase := baseIndex[section.ID]

		if inBase && e.skipIdenticalScopes && bitstream.Equal(basePayload, section.Payload) {
			continue
		}

		var s *scope.Scope
		if inBase {
			var registered bool
			s, registered = e.registry.Get(section.ID)
			if !registered {
				log.Debug("Scope %d is not registered, sending it verbatim", section.ID)
				inBase = false
			} else if !canDelta(s) {
				inBase = false
			}
		}

		if !inBase {
			payload.WriteBool(false)
			payload.WriteRemaining(section.Payload)
			out.Add(section.ID, payload)
			continue
		}

		payload.WriteBool(true)
		for _, b := range s.Bindings {
			if b.Collector == nil {
				continue
			}
			b.DeltaWriter.CalculateDelta(basePayload, section.Payload, payload)
		}
		if basePayload.Remaining() != 0 || section.Payload.Remaining() != 0 {
			protocolPanic(section.ID, "delta left %d base bits and %d full bits unread", basePayload.Remaining(), section.Payload.Remaining())
		}
		out.Add(section.ID, payload)
	}
	return out.Frame()
}
