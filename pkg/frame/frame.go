// Package frame builds, diffs and applies replication frames.
//
// A frame is a bit stream of scope records, each laid out as
//
//	scopeID:32 | length:32 | payload:length bits
//
// and read until the stream is exhausted. In a delta frame every payload
// starts with one bit: 0 means a verbatim full payload follows, 1 means an
// entry-defined delta follows.
package frame

import (
	"bytes"
	"fmt"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
)

// ScopeIDBits is the width of the scope ID field of a scope record.
const ScopeIDBits = 32

// ProtocolError is the panic value raised when a frame or an entry violates
// the wire contract. Wire state is not consistent after one is raised.
type ProtocolError struct {
	ScopeID uint32
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in scope %d: %s", e.ScopeID, e.Reason)
}

func protocolPanic(scopeID uint32, format string, args ...interface{}) {
	panic(&ProtocolError{ScopeID: scopeID, Reason: fmt.Sprintf(format, args...)})
}

// Frame is an immutable replication snapshot.
type Frame struct {
	data []byte
	bits int
}

// New wraps already encoded frame bits. data must not be modified afterwards.
func New(data []byte, bits int) *Frame {
	if bits < 0 || bits > len(data)*8 {
		panic(fmt.Errorf("%w: frame of %d bits over %d bytes", bitstream.ErrReadOverflow, bits, len(data)))
	}
	return &Frame{data: data, bits: bits}
}

// Empty returns a frame with no scopes.
func Empty() *Frame {
	return &Frame{}
}

// Bytes returns the encoded frame padded to a whole byte.
func (f *Frame) Bytes() []byte {
	return f.data
}

// Bits returns the exact encoded length.
func (f *Frame) Bits() int {
	return f.bits
}

// Reader returns a reader over the encoded frame.
func (f *Frame) Reader() *bitstream.Reader {
	return bitstream.NewReader(f.data, f.bits)
}

// Equal reports whether two frames are bit-for-bit identical.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.bits == o.bits && bytes.Equal(f.data, o.data)
}

// Section is one scope record of a frame.
type Section struct {
	ID      uint32
	Payload *bitstream.Reader
}

// Sections parses the frame into its scope records in wire order. A frame
// that names the same scope twice raises a ProtocolError.
func (f *Frame) Sections() []Section {
	if f == nil {
		return nil
	}
	r := f.Reader()
	var sections []Section
	seen := make(map[uint32]struct{})
	for r.BitsAvailable(1) {
		id := r.Read(ScopeIDBits)
		if _, ok := seen[id]; ok {
			protocolPanic(id, "scope appears twice in one frame")
		}
		seen[id] = struct{}{}
		sections = append(sections, Section{ID: id, Payload: r.ReadStream()})
	}
	return sections
}

// Index parses the frame into a map of scope payloads.
func (f *Frame) Index() map[uint32]*bitstream.Reader {
	sections := f.Sections()
	index := make(map[uint32]*bitstream.Reader, len(sections))
	for _, s := range sections {
		index[s.ID] = s.Payload
	}
	return index
}

// ScopeIDs returns the scope IDs of the frame in wire order.
func (f *Frame) ScopeIDs() []uint32 {
	sections := f.Sections()
	ids := make([]uint32, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	return ids
}

// Builder assembles a frame one scope record at a time.
type Builder struct {
	w *bitstream.Writer
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{w: bitstream.NewWriter()}
}

// Add appends a scope record whose payload is everything written to payload.
func (b *Builder) Add(id uint32, payload *bitstream.Writer) {
	b.w.Reserve(ScopeIDBits + bitstream.LengthBits + payload.Bits())
	b.w.Write(id, ScopeIDBits)
	b.w.WriteStream(payload)
}

// AddFrom appends a scope record whose payload is the unread remainder of r.
// r is consumed.
func (b *Builder) AddFrom(id uint32, r *bitstream.Reader) {
	b.w.Reserve(ScopeIDBits + bitstream.LengthBits + r.Remaining())
	b.w.Write(id, ScopeIDBits)
	b.w.WriteStreamFrom(r)
}

// Frame returns the assembled frame. The builder must not be used afterwards.
func (b *Builder) Frame() *Frame {
	return &Frame{data: b.w.Bytes(), bits: b.w.Bits()}
}
