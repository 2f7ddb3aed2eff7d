package quantize

import (
	"math"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/kinematic"
)

// RotationRange bounds the three transmitted components of a unit
// quaternion once its largest component has been dropped.
const RotationRange = math.Sqrt2 / 2

// Rotation is a unit quaternion in smallest-three form.
type Rotation struct {
	// Dropped is the index (x=0, y=1, z=2, w=3) of the omitted component.
	Dropped uint8
	// Negative is the sign of the omitted component.
	Negative bool
	// Components are the remaining three components in x, y, z, w order.
	Components [3]uint32
}

func components(q kinematic.Quat) [4]float64 {
	return [4]float64{q.X, q.Y, q.Z, q.W}
}

// QuantizeRotation drops the largest-magnitude component of q and quantizes
// the other three with bits each.
func QuantizeRotation(q kinematic.Quat, bits int) Rotation {
	c := components(q.Normalize())
	largest := 0
	for i := 1; i < 4; i++ {
		if math.Abs(c[i]) > math.Abs(c[largest]) {
			largest = i
		}
	}
	rot := Rotation{Dropped: uint8(largest), Negative: c[largest] < 0}
	j := 0
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		rot.Components[j] = Quantize(c[i], RotationRange, bits)
		j++
	}
	return rot
}

// DequantizeRotation rebuilds the dropped component from the unit-length
// constraint and the transmitted sign.
func DequantizeRotation(rot Rotation, bits int) kinematic.Quat {
	var c [4]float64
	sum := 0.0
	j := 0
	for i := 0; i < 4; i++ {
		if i == int(rot.Dropped) {
			continue
		}
		c[i] = Dequantize(rot.Components[j], RotationRange, bits)
		sum += c[i] * c[i]
		j++
	}
	d := math.Sqrt(math.Max(0, 1-sum))
	if rot.Negative {
		d = -d
	}
	c[rot.Dropped] = d
	return kinematic.Quat{X: c[0], Y: c[1], Z: c[2], W: c[3]}
}

// RotationBits returns the encoded size of a rotation.
func RotationBits(bits int) int {
	return 2 + 1 + 3*bits
}

// WriteRotation writes rot: 2-bit index, sign bit, three components.
func WriteRotation(w *bitstream.Writer, rot Rotation, bits int) {
	w.Write(uint32(rot.Dropped), 2)
	w.WriteBool(rot.Negative)
	for _, c := range rot.Components {
		w.Write(c, bits)
	}
}

// ReadRotation reads a rotation written by WriteRotation.
func ReadRotation(r *bitstream.Reader, bits int) Rotation {
	rot := Rotation{
		Dropped:  uint8(r.Read(2)),
		Negative: r.ReadBool(),
	}
	for i := range rot.Components {
		rot.Components[i] = r.Read(bits)
	}
	return rot
}
