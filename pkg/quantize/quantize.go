// Package quantize maps bounded floats onto fixed and variable width
// integers for transmission in a bitstream.
package quantize

import (
	"fmt"
	"math"
)

func checkBits(bits int) {
	if bits < 1 || bits > 32 {
		panic(fmt.Sprintf("quantize: invalid bit width %d", bits))
	}
}

func checkRange(rng float64) {
	if !(rng > 0) || math.IsInf(rng, 0) {
		panic(fmt.Sprintf("quantize: invalid range %v", rng))
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func steps(bits int) float64 {
	return float64((uint64(1) << uint(bits)) - 1)
}

// Quantize clamps value to [-rng, rng] and maps it linearly onto
// [0, 2^bits-1], rounding to the nearest step.
func Quantize(value, rng float64, bits int) uint32 {
	checkBits(bits)
	checkRange(rng)
	v := clamp(value, -rng, rng)
	return uint32(math.Round((v + rng) / (2 * rng) * steps(bits)))
}

// Dequantize is the inverse of Quantize.
func Dequantize(value uint32, rng float64, bits int) float64 {
	checkBits(bits)
	checkRange(rng)
	return float64(value)/steps(bits)*2*rng - rng
}

// MaxError returns the largest difference between a value in range and its
// quantized round trip.
func MaxError(rng float64, bits int) float64 {
	return rng / float64(uint64(1)<<uint(bits-1))
}

// WrapAngle maps an angle in radians onto [-π, π].
func WrapAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	return math.Remainder(angle, 2*math.Pi)
}

// QuantizeAngle wraps angle and quantizes it over [-π, π].
func QuantizeAngle(angle float64, bits int) uint32 {
	return Quantize(WrapAngle(angle), math.Pi, bits)
}

// DequantizeAngle is the inverse of QuantizeAngle.
func DequantizeAngle(value uint32, bits int) float64 {
	return Dequantize(value, math.Pi, bits)
}
