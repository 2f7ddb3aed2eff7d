package quantize

import (
	"fmt"
	"math"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/kinematic"
)

// Tier prefixes. A value is first quantized to a signed step count at full
// precision, then written in the narrowest tier that holds it:
//
//	|s| < 2^(small-1)  -> "0"  + small bits
//	|s| < 2^(large-1)  -> "10" + large bits
//	otherwise          -> "11" + full bits
//
// Every tier has the same resolution, so the tier is a pure function of the
// step count and the decoder needs no side channel.
const (
	TierSmall = iota
	TierLarge
	TierFull
)

// Precision holds the bit widths and range used to encode one replicated
// spatial quantity. Both peers must agree on identical settings.
type Precision struct {
	small int
	large int
	full  int
	rng   float64
	steps float64
}

// NewPrecision validates and returns an immutable Precision.
func NewPrecision(small, large, full int, rng float64) (*Precision, error) {
	if full < 2 || full > 32 {
		return nil, fmt.Errorf("full bits must be within [2, 32], got %d", full)
	}
	if small < 1 || small > large || large > full {
		return nil, fmt.Errorf("tier bits must satisfy 1 <= small <= large <= full, got %d/%d/%d", small, large, full)
	}
	if !(rng > 0) || math.IsInf(rng, 0) {
		return nil, fmt.Errorf("range must be positive and finite, got %v", rng)
	}
	return &Precision{
		small: small,
		large: large,
		full:  full,
		rng:   rng,
		steps: float64((uint64(1) << uint(full-1)) - 1),
	}, nil
}

// MustPrecision is like NewPrecision but panics on invalid settings.
func MustPrecision(small, large, full int, rng float64) *Precision {
	p, err := NewPrecision(small, large, full, rng)
	if err != nil {
		panic(err)
	}
	return p
}

// Small returns the bit width of the small tier.
func (p *Precision) Small() int { return p.small }

// Large returns the bit width of the large tier.
func (p *Precision) Large() int { return p.large }

// Full returns the bit width of the full tier.
func (p *Precision) Full() int { return p.full }

// Range returns the magnitude beyond which values are clamped.
func (p *Precision) Range() float64 { return p.rng }

// MaxSteps returns the largest step count Quantize produces. Step counts
// lie within [-MaxSteps, MaxSteps].
func (p *Precision) MaxSteps() int32 {
	return int32(p.steps)
}

// Step returns the distance between adjacent representable values.
func (p *Precision) Step() float64 {
	return p.rng / p.steps
}

// Quantize returns the signed step count for v.
func (p *Precision) Quantize(v float64) int32 {
	v = clamp(v, -p.rng, p.rng)
	return int32(math.Round(v / p.rng * p.steps))
}

// Dequantize is the inverse of Quantize.
func (p *Precision) Dequantize(s int32) float64 {
	return float64(s) / p.steps * p.rng
}

// Tier returns the tier a step count is written in.
func (p *Precision) Tier(s int32) int {
	a := int64(s)
	if a < 0 {
		a = -a
	}
	switch {
	case a < int64(1)<<uint(p.small-1):
		return TierSmall
	case a < int64(1)<<uint(p.large-1):
		return TierLarge
	default:
		return TierFull
	}
}

// EncodedBits returns the number of bits WriteSteps uses for s.
func (p *Precision) EncodedBits(s int32) int {
	switch p.Tier(s) {
	case TierSmall:
		return 1 + p.small
	case TierLarge:
		return 2 + p.large
	default:
		return 2 + p.full
	}
}

// WriteSteps writes an already quantized step count.
func (p *Precision) WriteSteps(w *bitstream.Writer, s int32) {
	switch p.Tier(s) {
	case TierSmall:
		w.WriteBool(false)
		w.WriteSigned(s, p.small)
	case TierLarge:
		w.Write(0b10, 2)
		w.WriteSigned(s, p.large)
	default:
		w.Write(0b11, 2)
		w.WriteSigned(s, p.full)
	}
}

// ReadSteps reads a step count written by WriteSteps.
func (p *Precision) ReadSteps(r *bitstream.Reader) int32 {
	if !r.ReadBool() {
		return r.ReadSigned(p.small)
	}
	if !r.ReadBool() {
		return r.ReadSigned(p.large)
	}
	return r.ReadSigned(p.full)
}

// WriteTiered quantizes v and writes it in the narrowest tier.
func (p *Precision) WriteTiered(w *bitstream.Writer, v float64) {
	p.WriteSteps(w, p.Quantize(v))
}

// ReadTiered reads a value written by WriteTiered.
func (p *Precision) ReadTiered(r *bitstream.Reader) float64 {
	return p.Dequantize(p.ReadSteps(r))
}

// Position is a vector quantized per axis with a Precision.
type Position [3]int32

// QuantizePosition returns the per-axis step counts for v.
func (p *Precision) QuantizePosition(v kinematic.Vector) Position {
	return Position{p.Quantize(v.X), p.Quantize(v.Y), p.Quantize(v.Z)}
}

// DequantizePosition is the inverse of QuantizePosition.
func (p *Precision) DequantizePosition(q Position) kinematic.Vector {
	return kinematic.Vector{X: p.Dequantize(q[0]), Y: p.Dequantize(q[1]), Z: p.Dequantize(q[2])}
}

// WritePosition writes the three axes of q in tiered form.
func (p *Precision) WritePosition(w *bitstream.Writer, q Position) {
	for _, s := range q {
		p.WriteSteps(w, s)
	}
}

// ReadPosition reads a position written by WritePosition.
func (p *Precision) ReadPosition(r *bitstream.Reader) Position {
	var q Position
	for i := range q {
		q[i] = p.ReadSteps(r)
	}
	return q
}
