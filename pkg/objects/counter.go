package objects

import "github.com/cbodonnell/tickstream/pkg/bitstream"

// Counter replicates a single integer. Its delta is one bit when unchanged.
type Counter struct {
	X int32
}

// CollectState writes X as 32 signed bits.
func (c *Counter) CollectState(w *bitstream.Writer) {
	w.WriteSigned(c.X, 32)
}

// ApplyState reads X back.
func (c *Counter) ApplyState(r *bitstream.Reader) {
	c.X = r.ReadSigned(32)
}

// CalculateDelta writes a changed flag, followed by the new value when set.
func (c *Counter) CalculateDelta(base, full *bitstream.Reader, out *bitstream.Writer) {
	b := base.ReadSigned(32)
	f := full.ReadSigned(32)
	out.WriteBool(b != f)
	if b != f {
		out.WriteSigned(f, 32)
	}
}

// AddDelta rebuilds the full value from base and a CalculateDelta output.
func (c *Counter) AddDelta(base, delta *bitstream.Reader, out *bitstream.Writer) {
	v := base.ReadSigned(32)
	if delta.ReadBool() {
		v = delta.ReadSigned(32)
	}
	out.WriteSigned(v, 32)
}

// AuthorityMarker tags a scope with the peer that simulates it. It is never
// streamed.
type AuthorityMarker struct {
	Owner uint32
}
