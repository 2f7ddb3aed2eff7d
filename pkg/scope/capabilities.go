package scope

import "github.com/cbodonnell/tickstream/pkg/bitstream"

// Entry is a single replicated object. What it can do is discovered through
// the optional capability interfaces below when it is registered.
type Entry interface{}

// StateCollector appends the entry's full current state.
type StateCollector interface {
	CollectState(w *bitstream.Writer)
}

// StateApplier consumes a full state written by CollectState and applies it
// without interpolation.
type StateApplier interface {
	ApplyState(r *bitstream.Reader)
}

// LerpedStateApplier consumes two full states and applies a blend of them.
// r0 is nil when no earlier frame is available. mix is the interpolation
// fraction in [0, 1] and dt the seconds between the two frames' arrival.
type LerpedStateApplier interface {
	ApplyLerpedState(r0, r1 *bitstream.Reader, mix, dt float64)
}

// DeltaCalculator writes the difference between a base and a full state.
// It must write at least the bits that tell AddDelta nothing changed.
type DeltaCalculator interface {
	CalculateDelta(base, full *bitstream.Reader, out *bitstream.Writer)
}

// DeltaAdder rebuilds a full state from a base state and a delta.
type DeltaAdder interface {
	AddDelta(base, delta *bitstream.Reader, out *bitstream.Writer)
}

// Binding is an entry with its capabilities resolved once at registration.
// A nil field means the entry lacks that capability.
type Binding struct {
	Entry        Entry
	Collector    StateCollector
	Applier      StateApplier
	LerpApplier  LerpedStateApplier
	DeltaWriter  DeltaCalculator
	DeltaApplier DeltaAdder
}

// Bind resolves the capabilities of e.
func Bind(e Entry) Binding {
	b := Binding{Entry: e}
	b.Collector, _ = e.(StateCollector)
	b.Applier, _ = e.(StateApplier)
	b.LerpApplier, _ = e.(LerpedStateApplier)
	b.DeltaWriter, _ = e.(DeltaCalculator)
	b.DeltaApplier, _ = e.(DeltaAdder)
	return b
}

// Streams reports whether the entry takes part in state streaming, either
// by producing state or by consuming it.
func (b Binding) Streams() bool {
	return b.Collector != nil || b.Applier != nil || b.LerpApplier != nil
}
