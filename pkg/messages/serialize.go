package messages

import (
	"encoding/binary"
	"fmt"
	"sync"

	envelopefb "github.com/cbodonnell/tickstream/flatbuffers/envelope"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codec returns the shared zstd encoder and decoder. EncodeAll and
// DecodeAll are safe for concurrent use.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to create zstd writer: %v", codecErr)
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to create zstd reader: %v", codecErr)
		}
	})
	return encoder, decoder, codecErr
}

// SerializeMessage encodes m as a packet: a big-endian Kind followed by the
// zstd compressed body.
func SerializeMessage(m *Message) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	packet := make([]byte, HeaderSize, HeaderSize+len(m.Body))
	binary.BigEndian.PutUint16(packet, uint16(m.Kind))
	return enc.EncodeAll(m.Body, packet), nil
}

// PeekKind returns the kind of a packet without decompressing it.
func PeekKind(packet []byte) (Kind, error) {
	if len(packet) < HeaderSize {
		return 0, fmt.Errorf("%w: packet of %d bytes has no header", ErrMalformed, len(packet))
	}
	return Kind(binary.BigEndian.Uint16(packet)), nil
}

// DeserializeMessage decodes a packet written by SerializeMessage.
func DeserializeMessage(packet []byte) (*Message, error) {
	kind, err := PeekKind(packet)
	if err != nil {
		return nil, err
	}
	_, dec, err := codec()
	if err != nil {
		return nil, err
	}
	body, err := dec.DecodeAll(packet[HeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress %s body: %v", ErrMalformed, kind, err)
	}
	return &Message{Kind: kind, Body: body}, nil
}

// guard turns a panic from reading a corrupt flatbuffer into ErrMalformed.
func guard(what string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: corrupt %s: %v", ErrMalformed, what, r)
	}
}

func checkRoot(what string, b []byte) error {
	if len(b) < flatbuffers.SizeUOffsetT {
		return fmt.Errorf("%w: %s body of %d bytes", ErrMalformed, what, len(b))
	}
	return nil
}

// SerializeFrame builds the flatbuffer body of a frame message.
func SerializeFrame(m *FrameMessage) []byte {
	builder := flatbuffers.NewBuilder(len(m.Data) + 32)
	data := builder.CreateByteVector(m.Data)

	envelopefb.FrameMessageStart(builder)
	envelopefb.FrameMessageAddFrameId(builder, m.FrameID)
	envelopefb.FrameMessageAddBaseId(builder, m.BaseID)
	envelopefb.FrameMessageAddBits(builder, m.Bits)
	envelopefb.FrameMessageAddData(builder, data)
	builder.Finish(envelopefb.FrameMessageEnd(builder))
	return builder.FinishedBytes()
}

// DeserializeFrame reads a frame message body.
func DeserializeFrame(b []byte) (m *FrameMessage, err error) {
	if err := checkRoot("frame", b); err != nil {
		return nil, err
	}
	defer guard("frame", &err)

	fb := envelopefb.GetRootAsFrameMessage(b, 0)
	m = &FrameMessage{
		FrameID: fb.FrameId(),
		BaseID:  fb.BaseId(),
		Bits:    fb.Bits(),
		Data:    fb.DataBytes(),
	}
	if int(m.Bits) > len(m.Data)*8 {
		return nil, fmt.Errorf("%w: frame %d claims %d bits in %d bytes", ErrMalformed, m.FrameID, m.Bits, len(m.Data))
	}
	return m, nil
}

// SerializeAck builds the flatbuffer body of an ack message.
func SerializeAck(m *AckMessage) []byte {
	builder := flatbuffers.NewBuilder(16)
	envelopefb.AckMessageStart(builder)
	envelopefb.AckMessageAddFrameId(builder, m.FrameID)
	builder.Finish(envelopefb.AckMessageEnd(builder))
	return builder.FinishedBytes()
}

// DeserializeAck reads an ack message body.
func DeserializeAck(b []byte) (m *AckMessage, err error) {
	if err := checkRoot("ack", b); err != nil {
		return nil, err
	}
	defer guard("ack", &err)

	fb := envelopefb.GetRootAsAckMessage(b, 0)
	return &AckMessage{FrameID: fb.FrameId()}, nil
}

// SerializePing builds the flatbuffer body of a ping or pong message.
func SerializePing(m *PingMessage) []byte {
	builder := flatbuffers.NewBuilder(32)
	envelopefb.PingMessageStart(builder)
	envelopefb.PingMessageAddTimestamp(builder, m.Timestamp)
	envelopefb.PingMessageAddClientTimestamp(builder, m.ClientTimestamp)
	builder.Finish(envelopefb.PingMessageEnd(builder))
	return builder.FinishedBytes()
}

// DeserializePing reads a ping or pong message body.
func DeserializePing(b []byte) (m *PingMessage, err error) {
	if err := checkRoot("ping", b); err != nil {
		return nil, err
	}
	defer guard("ping", &err)

	fb := envelopefb.GetRootAsPingMessage(b, 0)
	return &PingMessage{
		Timestamp:       fb.Timestamp(),
		ClientTimestamp: fb.ClientTimestamp(),
	}, nil
}

// NewFramePacket encodes a frame message as a complete packet. kind must be
// KindFullFrame or KindDeltaFrame.
func NewFramePacket(kind Kind, m *FrameMessage) ([]byte, error) {
	return SerializeMessage(&Message{Kind: kind, Body: SerializeFrame(m)})
}

// NewAckPacket encodes an ack as a complete packet.
func NewAckPacket(frameID uint32) ([]byte, error) {
	return SerializeMessage(&Message{Kind: KindAck, Body: SerializeAck(&AckMessage{FrameID: frameID})})
}

// NewPingPacket encodes a ping or pong as a complete packet.
func NewPingPacket(kind Kind, m *PingMessage) ([]byte, error) {
	return SerializeMessage(&Message{Kind: kind, Body: SerializePing(m)})
}
