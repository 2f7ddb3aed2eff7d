package messages

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the packet header carrying the Kind.
	HeaderSize = 2
	// UDPMessageBufferSize is the largest packet read from a UDP socket
	UDPMessageBufferSize = 65507
)

var (
	// ErrUnknownKind is returned for packets with no registered handler.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrMalformed is returned for packets that cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

// Kind identifies the body of a packet.
type Kind uint16

// Message kinds
const (
	KindPing       Kind = 1
	KindPong       Kind = 2
	KindFullFrame  Kind = 3
	KindDeltaFrame Kind = 4
	KindAck        Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindFullFrame:
		return "full-frame"
	case KindDeltaFrame:
		return "delta-frame"
	case KindAck:
		return "ack"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// Message is a decoded packet: its kind and uncompressed flatbuffer body.
type Message struct {
	Kind Kind
	Body []byte
}

// FrameMessage carries an encoded frame. BaseID is the frame a delta was
// encoded against and is 0 for full frames.
type FrameMessage struct {
	FrameID uint32
	BaseID  uint32
	Bits    uint32
	Data    []byte
}

// AckMessage acknowledges that a peer reconstructed a frame.
type AckMessage struct {
	FrameID uint32
}

// PingMessage measures round trip time. A pong echoes the ping's timestamp
// as ClientTimestamp.
type PingMessage struct {
	Timestamp       int64
	ClientTimestamp int64
}
