package messages

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbodonnell/tickstream/pkg/log"
)

// HandlerFunc handles a decoded message from peer.
type HandlerFunc func(ctx context.Context, peerID uint32, msg *Message) error

// Dispatcher routes packets to the handler registered for their kind.
type Dispatcher struct {
	lock     sync.RWMutex
	handlers map[Kind]HandlerFunc
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind]HandlerFunc),
	}
}

// Handle registers h for kind, replacing any earlier handler.
func (d *Dispatcher) Handle(kind Kind, h HandlerFunc) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.handlers[kind] = h
}

// Dispatch decodes packet and calls its handler. Packets of a kind nobody
// handles are logged and reported with ErrUnknownKind without being
// decompressed.
func (d *Dispatcher) Dispatch(ctx context.Context, peerID uint32, packet []byte) error {
	kind, err := PeekKind(packet)
	if err != nil {
		return err
	}

	d.lock.RLock()
	h, ok := d.handlers[kind]
	d.lock.RUnlock()
	if !ok {
		log.Warn("Dropping message of unknown %s from peer %d", kind, peerID)
		return fmt.Errorf("failed to dispatch %s: %w", kind, ErrUnknownKind)
	}

	msg, err := DeserializeMessage(packet)
	if err != nil {
		return fmt.Errorf("failed to deserialize message: %w", err)
	}
	log.Trace("Dispatching %s from peer %d", kind, peerID)
	if err := h(ctx, peerID, msg); err != nil {
		return fmt.Errorf("failed to handle %s: %w", kind, err)
	}
	return nil
}
