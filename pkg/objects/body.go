// Package objects provides replicated entries used by the demo server and
// client.
package objects

import (
	"math"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/kinematic"
	"github.com/cbodonnell/tickstream/pkg/quantize"
)

// MaxExtrapolation caps how far past the newest frame a body is projected,
// as a multiple of the frame interval.
const MaxExtrapolation = 1.0

// BodyCodec holds the precision both peers use to encode bodies.
type BodyCodec struct {
	Position     *quantize.Precision
	Velocity     *quantize.Precision
	RotationBits int
}

// bodyState is the quantized form of a body, exactly as it is on the wire.
type bodyState struct {
	pos quantize.Position
	vel quantize.Position
	rot quantize.Rotation
}

func (c *BodyCodec) write(w *bitstream.Writer, s bodyState) {
	c.Position.WritePosition(w, s.pos)
	c.Velocity.WritePosition(w, s.vel)
	quantize.WriteRotation(w, s.rot, c.RotationBits)
}

func (c *BodyCodec) read(r *bitstream.Reader) bodyState {
	return bodyState{
		pos: c.Position.ReadPosition(r),
		vel: c.Velocity.ReadPosition(r),
		rot: quantize.ReadRotation(r, c.RotationBits),
	}
}

// Body is a rigid body replicated with tiered position and velocity and a
// smallest-three rotation.
type Body struct {
	Position kinematic.Vector
	Velocity kinematic.Vector
	Rotation kinematic.Quat

	codec *BodyCodec
}

// NewBody creates a body at rest at the origin.
func NewBody(codec *BodyCodec) *Body {
	return &Body{
		Rotation: kinematic.Identity,
		codec:    codec,
	}
}

// Step advances the body by dt seconds under its velocity.
func (b *Body) Step(dt float64) {
	b.Position = kinematic.Extrapolate(b.Position, b.Velocity, dt)
}

func (b *Body) quantize() bodyState {
	return bodyState{
		pos: b.codec.Position.QuantizePosition(b.Position),
		vel: b.codec.Velocity.QuantizePosition(b.Velocity),
		rot: quantize.QuantizeRotation(b.Rotation, b.codec.RotationBits),
	}
}

func (b *Body) set(s bodyState) {
	b.Position = b.codec.Position.DequantizePosition(s.pos)
	b.Velocity = b.codec.Velocity.DequantizePosition(s.vel)
	b.Rotation = quantize.DequantizeRotation(s.rot, b.codec.RotationBits)
}

// CollectState writes the quantized body.
func (b *Body) CollectState(w *bitstream.Writer) {
	b.codec.write(w, b.quantize())
}

// ApplyState snaps the body to a received state.
func (b *Body) ApplyState(r *bitstream.Reader) {
	b.set(b.codec.read(r))
}

// ApplyLerpedState blends between two states. Past the newer state the body
// is projected along its velocity for at most MaxExtrapolation intervals.
func (b *Body) ApplyLerpedState(r0, r1 *bitstream.Reader, mix, dt float64) {
	s1 := b.codec.read(r1)
	if r0 == nil {
		b.set(s1)
		return
	}
	s0 := b.codec.read(r0)

	b.set(s0)
	p0, v0, q0 := b.Position, b.Velocity, b.Rotation
	b.set(s1)
	p1, v1, q1 := b.Position, b.Velocity, b.Rotation

	if mix <= 1 {
		mix = math.Max(mix, 0)
		b.Position = kinematic.Lerp(p0, p1, mix)
		b.Velocity = kinematic.Lerp(v0, v1, mix)
		b.Rotation = kinematic.Nlerp(q0, q1, mix)
		return
	}
	ahead := math.Min(mix-1, MaxExtrapolation) * dt
	b.Position = kinematic.Extrapolate(p1, v1, ahead)
}

// CalculateDelta writes, per quantity, a changed flag and then either the
// change or the new value.
func (b *Body) CalculateDelta(base, full *bitstream.Reader, out *bitstream.Writer) {
	sb := b.codec.read(base)
	sf := b.codec.read(full)
	writePositionDelta(out, b.codec.Position, sb.pos, sf.pos)
	writePositionDelta(out, b.codec.Velocity, sb.vel, sf.vel)
	if sb.rot == sf.rot {
		out.WriteBool(false)
	} else {
		out.WriteBool(true)
		quantize.WriteRotation(out, sf.rot, b.codec.RotationBits)
	}
}

// AddDelta rebuilds the full state from base and a CalculateDelta output.
func (b *Body) AddDelta(base, delta *bitstream.Reader, out *bitstream.Writer) {
	s := b.codec.read(base)
	s.pos = readPositionDelta(delta, b.codec.Position, s.pos)
	s.vel = readPositionDelta(delta, b.codec.Velocity, s.vel)
	if delta.ReadBool() {
		s.rot = quantize.ReadRotation(delta, b.codec.RotationBits)
	}
	b.codec.write(out, s)
}

// writePositionDelta writes 0 when unchanged. Otherwise it writes 1, then 1
// and the per-axis step differences when they all fit the full tier, or 0
// and the new position.
func writePositionDelta(w *bitstream.Writer, p *quantize.Precision, base, full quantize.Position) {
	if base == full {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)

	limit := int64(p.MaxSteps())
	var diff quantize.Position
	relative := true
	for i := range full {
		d := int64(full[i]) - int64(base[i])
		if d > limit || d < -limit {
			relative = false
			break
		}
		diff[i] = int32(d)
	}
	w.WriteBool(relative)
	if relative {
		p.WritePosition(w, diff)
		return
	}
	p.WritePosition(w, full)
}

func readPositionDelta(r *bitstream.Reader, p *quantize.Precision, base quantize.Position) quantize.Position {
	if !r.ReadBool() {
		return base
	}
	if !r.ReadBool() {
		return p.ReadPosition(r)
	}
	diff := p.ReadPosition(r)
	for i := range base {
		base[i] += diff[i]
	}
	return base
}
