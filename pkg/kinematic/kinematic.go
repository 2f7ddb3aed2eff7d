package kinematic

// This package includes the kinematic helpers used to blend replicated
// spatial state between network ticks.

import (
	"math"
)

// Displacement returns the displacement of an object given its initial velocity, time, and acceleration.
func Displacement(initialVelocity float64, time float64, acceleration float64) float64 {
	return initialVelocity*time + 0.5*acceleration*math.Pow(time, 2)
}

// FinalVelocity returns the final velocity of an object given its initial velocity, time, and acceleration.
func FinalVelocity(initialVelocity float64, time float64, acceleration float64) float64 {
	return initialVelocity + acceleration*time
}

// Vector is a point or direction in 3D space.
type Vector struct {
	X float64
	Y float64
	Z float64
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Lerp blends a and b by t, where t=0 yields a and t=1 yields b.
func Lerp(a, b Vector, t float64) Vector {
	return a.Add(b.Sub(a).Scale(t))
}

// Extrapolate advances position by velocity over dt seconds.
func Extrapolate(position, velocity Vector, dt float64) Vector {
	return Vector{
		X: position.X + Displacement(velocity.X, dt, 0),
		Y: position.Y + Displacement(velocity.Y, dt, 0),
		Z: position.Z + Displacement(velocity.Z, dt, 0),
	}
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Identity is the rotation that leaves vectors unchanged.
var Identity = Quat{W: 1}

func (q Quat) Dot(o Quat) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

func (q Quat) Length() float64 {
	return math.Sqrt(q.Dot(q))
}

// Normalize returns q scaled to unit length, or Identity for a zero quaternion.
func (q Quat) Normalize() Quat {
	l := q.Length()
	if l == 0 || math.IsNaN(l) {
		return Identity
	}
	return Quat{X: q.X / l, Y: q.Y / l, Z: q.Z / l, W: q.W / l}
}

// Nlerp blends two rotations along the shortest arc and renormalizes.
func Nlerp(a, b Quat, t float64) Quat {
	if a.Dot(b) < 0 {
		b = Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
	}
	return Quat{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		W: a.W + (b.W-a.W)*t,
	}.Normalize()
}

// FromAxisAngle builds a unit rotation of angle radians around axis.
func FromAxisAngle(axis Vector, angle float64) Quat {
	l := axis.Length()
	if l == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / l
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}
