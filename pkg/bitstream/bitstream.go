// Package bitstream implements MSB-first bit-packed buffers used for
// replication frames.
//
// Writers either grow on demand or, when created with a fixed capacity,
// panic on overflow. Readers panic when asked to read past their limit.
// Both conditions are programming errors: every producer is expected to
// write exactly what its consumer reads.
package bitstream

import (
	"errors"
	"fmt"
	"math"
)

const (
	// LengthBits is the width of the length prefix written by WriteStream.
	LengthBits = 32
	// MaxWidth is the widest value accepted by a single Read or Write.
	MaxWidth = 32
)

var (
	// ErrReadOverflow is the panic value (wrapped) raised when reading past the end of a stream.
	ErrReadOverflow = errors.New("bitstream: read past end of stream")
	// ErrCapacityExceeded is the panic value (wrapped) raised when a fixed writer overflows.
	ErrCapacityExceeded = errors.New("bitstream: write exceeds reserved capacity")
	// ErrInvalidWidth is the panic value (wrapped) raised for widths outside 1..32.
	ErrInvalidWidth = errors.New("bitstream: invalid bit width")
	// ErrValueRange is the panic value (wrapped) raised when a value does not fit its width.
	ErrValueRange = errors.New("bitstream: value does not fit bit width")
)

func checkWidth(bits int) {
	if bits < 1 || bits > MaxWidth {
		panic(fmt.Errorf("%w: %d", ErrInvalidWidth, bits))
	}
}

func mask(bits int) uint64 {
	return (uint64(1) << uint(bits)) - 1
}

// Writer accumulates bits. The zero value is an empty, growable writer.
type Writer struct {
	buf   []byte
	bits  int
	fixed bool
	limit int
}

// NewWriter returns a writer that grows as needed.
func NewWriter() *Writer {
	return &Writer{}
}

// NewFixedWriter returns a writer that panics with ErrCapacityExceeded once
// more than capacityBits have been written.
func NewFixedWriter(capacityBits int) *Writer {
	w := &Writer{fixed: true, limit: capacityBits}
	w.buf = make([]byte, 0, (capacityBits+7)/8)
	return w
}

// Reserve grows the underlying buffer so that n more bits can be written
// without reallocating.
func (w *Writer) Reserve(n int) {
	need := (w.bits + n + 7) / 8
	if need <= cap(w.buf) {
		return
	}
	grown := make([]byte, len(w.buf), need)
	copy(grown, w.buf)
	w.buf = grown
}

func (w *Writer) ensure(n int) {
	if w.fixed && w.bits+n > w.limit {
		panic(fmt.Errorf("%w: %d + %d > %d bits", ErrCapacityExceeded, w.bits, n, w.limit))
	}
	need := (w.bits + n + 7) / 8
	for len(w.buf) < need {
		w.buf = append(w.buf, 0)
	}
}

// Write appends the low bits of value, most significant bit first.
func (w *Writer) Write(value uint32, bits int) {
	checkWidth(bits)
	if uint64(value) > mask(bits) {
		panic(fmt.Errorf("%w: %d in %d bits", ErrValueRange, value, bits))
	}
	w.writeBits(uint64(value), bits)
}

func (w *Writer) writeBits(v uint64, bits int) {
	w.ensure(bits)
	for bits > 0 {
		bytePos := w.bits >> 3
		free := 8 - (w.bits & 7)
		n := free
		if bits < n {
			n = bits
		}
		chunk := byte((v >> uint(bits-n)) & mask(n))
		w.buf[bytePos] |= chunk << uint(free-n)
		w.bits += n
		bits -= n
	}
}

// WriteSigned appends a two's complement value.
func (w *Writer) WriteSigned(value int32, bits int) {
	checkWidth(bits)
	lo := -(int64(1) << uint(bits-1))
	hi := (int64(1) << uint(bits-1)) - 1
	if int64(value) < lo || int64(value) > hi {
		panic(fmt.Errorf("%w: %d in %d signed bits", ErrValueRange, value, bits))
	}
	w.writeBits(uint64(int64(value))&mask(bits), bits)
}

// WriteBool appends a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.writeBits(1, 1)
		return
	}
	w.writeBits(0, 1)
}

// WriteFloat32 appends the raw IEEE-754 bits of f.
func (w *Writer) WriteFloat32(f float32) {
	w.writeBits(uint64(math.Float32bits(f)), 32)
}

// WriteStream appends the bits of other prefixed by their length.
func (w *Writer) WriteStream(other *Writer) {
	w.Write(uint32(other.bits), LengthBits)
	w.copyBits(other.buf, 0, other.bits)
}

// WriteStreamFrom appends the unread bits of r prefixed by their length and
// consumes them.
func (w *Writer) WriteStreamFrom(r *Reader) {
	n := r.Remaining()
	w.Write(uint32(n), LengthBits)
	w.copyBits(r.buf, r.pos, n)
	r.pos += n
}

// WriteRemaining appends the unread bits of r without a length prefix and
// consumes them.
func (w *Writer) WriteRemaining(r *Reader) {
	n := r.Remaining()
	w.copyBits(r.buf, r.pos, n)
	r.pos += n
}

func (w *Writer) copyBits(src []byte, from, n int) {
	w.Reserve(n)
	for n > 0 {
		chunk := n
		if chunk > 8 {
			chunk = 8
		}
		w.writeBits(peekBits(src, from, chunk), chunk)
		from += chunk
		n -= chunk
	}
}

// Bits returns the number of bits written.
func (w *Writer) Bits() int {
	return w.bits
}

// Bytes returns the written bits padded with zeros to a whole byte. The
// returned slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:(w.bits+7)/8]
}

// Reader returns a reader over everything written so far.
func (w *Writer) Reader() *Reader {
	return NewReader(w.Bytes(), w.bits)
}

// Reset discards all written bits, keeping the allocated buffer.
func (w *Writer) Reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.buf = w.buf[:0]
	w.bits = 0
}

func peekBits(src []byte, pos, bits int) uint64 {
	var v uint64
	for bits > 0 {
		avail := 8 - (pos & 7)
		n := avail
		if bits < n {
			n = bits
		}
		chunk := (uint64(src[pos>>3]) >> uint(avail-n)) & mask(n)
		v = v<<uint(n) | chunk
		pos += n
		bits -= n
	}
	return v
}

// Reader consumes bits from a byte slice between a start and a limit.
type Reader struct {
	buf   []byte
	start int
	pos   int
	limit int
}

// NewReader returns a reader over the first bits of data.
func NewReader(data []byte, bits int) *Reader {
	if bits < 0 || bits > len(data)*8 {
		panic(fmt.Errorf("%w: %d bits over %d bytes", ErrReadOverflow, bits, len(data)))
	}
	return &Reader{buf: data, limit: bits}
}

func (r *Reader) require(bits int) {
	if r.pos+bits > r.limit {
		panic(fmt.Errorf("%w: need %d bits at %d, limit %d", ErrReadOverflow, bits, r.pos-r.start, r.limit-r.start))
	}
}

// Read consumes an unsigned value of the given width.
func (r *Reader) Read(bits int) uint32 {
	checkWidth(bits)
	r.require(bits)
	v := peekBits(r.buf, r.pos, bits)
	r.pos += bits
	return uint32(v)
}

// ReadSigned consumes a two's complement value of the given width.
func (r *Reader) ReadSigned(bits int) int32 {
	v := uint64(r.Read(bits))
	if v&(uint64(1)<<uint(bits-1)) != 0 {
		v |= ^mask(bits)
	}
	return int32(int64(v))
}

// ReadBool consumes a single bit.
func (r *Reader) ReadBool() bool {
	return r.Read(1) == 1
}

// ReadFloat32 consumes 32 raw IEEE-754 bits.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.Read(32))
}

// ReadStream consumes a length-prefixed sub-stream and returns a reader
// limited to it.
func (r *Reader) ReadStream() *Reader {
	n := int(r.Read(LengthBits))
	r.require(n)
	sub := &Reader{buf: r.buf, start: r.pos, pos: r.pos, limit: r.pos + n}
	r.pos += n
	return sub
}

// Skip advances past n bits.
func (r *Reader) Skip(n int) {
	r.require(n)
	r.pos += n
}

// BitsAvailable reports whether n more bits can be read.
func (r *Reader) BitsAvailable(n int) bool {
	return r.pos+n <= r.limit
}

// LimitBits returns the total number of readable bits in the stream.
func (r *Reader) LimitBits() int {
	return r.limit - r.start
}

// Position returns the number of bits consumed so far.
func (r *Reader) Position() int {
	return r.pos - r.start
}

// Remaining returns the number of bits left to read.
func (r *Reader) Remaining() int {
	return r.limit - r.pos
}

// Clone returns an independent reader at the same position.
func (r *Reader) Clone() *Reader {
	c := *r
	return &c
}

// Rewind moves the reader back to the start of its stream.
func (r *Reader) Rewind() {
	r.pos = r.start
}

// Equal reports whether the unread bits of a and b are identical. Neither
// reader is advanced.
func Equal(a, b *Reader) bool {
	n := a.Remaining()
	if n != b.Remaining() {
		return false
	}
	pa, pb := a.pos, b.pos
	for n > 0 {
		chunk := n
		if chunk > 32 {
			chunk = 32
		}
		if peekBits(a.buf, pa, chunk) != peekBits(b.buf, pb, chunk) {
			return false
		}
		pa += chunk
		pb += chunk
		n -= chunk
	}
	return true
}
