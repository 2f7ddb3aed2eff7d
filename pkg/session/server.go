// Package session runs the replication loops on each side of a connection.
// The server collects a frame every tick and sends each peer either a delta
// against the last frame that peer acknowledged or a full frame. The client
// rebuilds full frames, acknowledges them and blends the latest two.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/tickstream/pkg/ack"
	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/messages"
	"github.com/cbodonnell/tickstream/pkg/network"
	"github.com/cbodonnell/tickstream/pkg/queue"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/cbodonnell/tickstream/pkg/workers"
)

// Transport delivers packets to connected peers.
type Transport interface {
	Send(ctx context.Context, peerID uint32, packet []byte) error
	PeerIDs() []uint32
}

// Server owns the registry for the duration of a tick. Network goroutines
// only enqueue inbound packets; everything else happens on the tick
// goroutine.
type Server struct {
	registry        *scope.Registry
	transport       Transport
	inbound         queue.Queue
	collector       *frame.Collector
	encoder         *frame.Encoder
	history         *ack.History
	tracker         *ack.Tracker
	dispatcher      *messages.Dispatcher
	recordFrameChan chan<- workers.RecordFrameRequest
	update          func(dt float64)
	tickInterval    time.Duration

	// tickLock serializes ticks with registry changes made through Mutate.
	tickLock sync.Mutex
}

// NewServerOptions contains options for creating a new Server.
type NewServerOptions struct {
	Registry     *scope.Registry
	Transport    Transport
	InboundQueue queue.Queue
	TickInterval time.Duration
	// HistorySize is the number of sent frames kept as delta baselines.
	HistorySize         int
	SkipIdenticalScopes bool
	// RecordFrameChan receives every full frame when set. Frames are dropped
	// rather than stall the tick when the channel is full.
	RecordFrameChan chan<- workers.RecordFrameRequest
	// Update advances the simulation before each frame is collected.
	Update func(dt float64)
}

func NewServer(opts NewServerOptions) *Server {
	history := ack.NewHistory(opts.HistorySize)
	s := &Server{
		registry:  opts.Registry,
		transport: opts.Transport,
		inbound:   opts.InboundQueue,
		collector: frame.NewCollector(opts.Registry),
		encoder: frame.NewEncoder(frame.NewEncoderOptions{
			Registry:            opts.Registry,
			SkipIdenticalScopes: opts.SkipIdenticalScopes,
		}),
		history:         history,
		tracker:         ack.NewTracker(history),
		dispatcher:      messages.NewDispatcher(),
		recordFrameChan: opts.RecordFrameChan,
		update:          opts.Update,
		tickInterval:    opts.TickInterval,
	}
	s.dispatcher.Handle(messages.KindAck, s.handleAck)
	return s
}

// Start runs the tick loop until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.tickInterval <= 0 {
		return fmt.Errorf("invalid tick interval %v", s.tickInterval)
	}
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			s.Tick(ctx, t)
		}
	}
}

// Mutate runs fn between ticks, for registering and unregistering scopes
// from outside the tick goroutine.
func (s *Server) Mutate(fn func(r *scope.Registry)) {
	s.tickLock.Lock()
	defer s.tickLock.Unlock()
	fn(s.registry)
}

// Tick processes pending acks, advances the simulation and sends one frame
// to every peer. It returns the ID of the collected frame.
func (s *Server) Tick(ctx context.Context, t time.Time) uint32 {
	s.tickLock.Lock()
	defer s.tickLock.Unlock()

	s.processInbound(ctx)
	if s.update != nil {
		s.update(s.tickInterval.Seconds())
	}

	full := s.collector.Collect()
	frameID := s.history.Next(full)
	log.Trace("Collected frame %d: %d bits", frameID, full.Bits())

	s.broadcast(ctx, frameID, full)
	s.record(frameID, t, full)
	return frameID
}

func (s *Server) processInbound(ctx context.Context) {
	for _, item := range s.inbound.ReadAllMessages() {
		p, ok := item.(*network.InboundPacket)
		if !ok {
			log.Error("Unexpected inbound item of type %T", item)
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, p.PeerID, p.Packet); err != nil {
			log.Warn("Failed to process packet from peer %d: %v", p.PeerID, err)
		}
	}
}

func (s *Server) handleAck(_ context.Context, peerID uint32, msg *messages.Message) error {
	m, err := messages.DeserializeAck(msg.Body)
	if err != nil {
		return err
	}
	s.tracker.Ack(peerID, m.FrameID)
	return nil
}

// broadcast sends full to every peer. Peers sharing a baseline share the
// encoded packet.
func (s *Server) broadcast(ctx context.Context, frameID uint32, full *frame.Frame) {
	packets := make(map[uint32][]byte)
	for _, peerID := range s.transport.PeerIDs() {
		baseID, base, ok := s.tracker.Baseline(peerID)
		if !ok {
			baseID, base = 0, nil
		}

		packet, cached := packets[baseID]
		if !cached {
			var err error
			packet, err = s.encode(frameID, baseID, base, full)
			if err != nil {
				log.Error("Failed to encode frame %d for peer %d: %v", frameID, peerID, err)
				continue
			}
			packets[baseID] = packet
		}

		if err := s.transport.Send(ctx, peerID, packet); err != nil {
			log.Error("Failed to send frame %d to peer %d: %v", frameID, peerID, err)
		}
	}
}

func (s *Server) encode(frameID, baseID uint32, base, full *frame.Frame) ([]byte, error) {
	if base == nil {
		return messages.NewFramePacket(messages.KindFullFrame, &messages.FrameMessage{
			FrameID: frameID,
			Bits:    uint32(full.Bits()),
			Data:    full.Bytes(),
		})
	}
	delta := s.encoder.CalculateDelta(full, base)
	return messages.NewFramePacket(messages.KindDeltaFrame, &messages.FrameMessage{
		FrameID: frameID,
		BaseID:  baseID,
		Bits:    uint32(delta.Bits()),
		Data:    delta.Bytes(),
	})
}

func (s *Server) record(frameID uint32, t time.Time, full *frame.Frame) {
	if s.recordFrameChan == nil {
		return
	}
	select {
	case s.recordFrameChan <- workers.RecordFrameRequest{FrameID: frameID, Timestamp: t.UnixMilli(), Frame: full}:
	default:
		log.Warn("Recorder is behind, dropping frame %d", frameID)
	}
}

// HandleDisconnect forgets the ack state of a departed peer.
func (s *Server) HandleDisconnect(peerID uint32) {
	s.tracker.Forget(peerID)
}

// Peers returns the ack state of every peer that has acknowledged a frame.
func (s *Server) Peers() []ack.PeerState {
	return s.tracker.Snapshot()
}
