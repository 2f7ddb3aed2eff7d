package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/tickstream/pkg/ack"
	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/messages"
	"github.com/cbodonnell/tickstream/pkg/scope"
)

// DefaultRenderBufferSize bounds the frames kept for interpolation.
const DefaultRenderBufferSize = 32

// ErrMissingBase is returned when a delta frame references a baseline the
// client no longer holds.
var ErrMissingBase = errors.New("missing delta base")

// Sender delivers packets to the server.
type Sender interface {
	Send(ctx context.Context, packet []byte) error
}

type timedFrame struct {
	id      uint32
	frame   *frame.Frame
	arrived time.Time
}

// Client rebuilds the frames sent by a Server, acknowledges them and applies
// them to the local registry.
type Client struct {
	lock       sync.Mutex
	reader     *frame.Reader
	receiver   *ack.Receiver
	sender     Sender
	dispatcher *messages.Dispatcher
	delay      time.Duration
	frames     []timedFrame
	rtt        time.Duration
	now        func() time.Time
}

// NewClientOptions contains options for creating a new Client.
type NewClientOptions struct {
	Registry *scope.Registry
	Sender   Sender
	// HistorySize is the number of rebuilt frames kept as delta bases. It
	// should match the server's history size.
	HistorySize int
	// InterpolationDelay is how far behind the newest frame rendering runs.
	InterpolationDelay time.Duration
}

func NewClient(opts NewClientOptions) *Client {
	c := &Client{
		reader:     frame.NewReader(opts.Registry),
		receiver:   ack.NewReceiver(opts.HistorySize),
		sender:     opts.Sender,
		dispatcher: messages.NewDispatcher(),
		delay:      opts.InterpolationDelay,
		now:        time.Now,
	}
	c.dispatcher.Handle(messages.KindFullFrame, c.handleFrame)
	c.dispatcher.Handle(messages.KindDeltaFrame, c.handleFrame)
	c.dispatcher.Handle(messages.KindPong, c.handlePong)
	return c
}

// Start pings the server every interval until ctx is cancelled. The first
// ping is sent immediately; a UDP server only accepts peers that ping.
func (c *Client) Start(ctx context.Context, interval time.Duration) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil {
				log.Warn("Failed to ping server: %v", err)
			}
		}
	}
}

// Ping sends a ping stamped with the current time.
func (c *Client) Ping(ctx context.Context) error {
	packet, err := messages.NewPingPacket(messages.KindPing, &messages.PingMessage{
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize ping: %v", err)
	}
	if err := c.sender.Send(ctx, packet); err != nil {
		return fmt.Errorf("failed to send ping: %v", err)
	}
	return nil
}

// HandlePacket processes one packet from the server.
func (c *Client) HandlePacket(ctx context.Context, packet []byte) error {
	return c.dispatcher.Dispatch(ctx, 0, packet)
}

func (c *Client) handlePong(_ context.Context, _ uint32, msg *messages.Message) error {
	m, err := messages.DeserializePing(msg.Body)
	if err != nil {
		return err
	}
	rtt := time.Duration(c.now().UnixMilli()-m.ClientTimestamp) * time.Millisecond
	c.lock.Lock()
	c.rtt = rtt
	c.lock.Unlock()
	log.Debug("Round trip time %s", rtt)
	return nil
}

// RTT returns the round trip time measured by the latest pong.
func (c *Client) RTT() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rtt
}

func (c *Client) handleFrame(ctx context.Context, _ uint32, msg *messages.Message) error {
	m, err := messages.DeserializeFrame(msg.Body)
	if err != nil {
		return err
	}

	c.lock.Lock()
	stored, err := c.rebuild(msg.Kind, m)
	last := c.receiver.LastApplied()
	c.lock.Unlock()

	switch {
	case errors.Is(err, ErrMissingBase), errors.Is(err, frame.ErrBaseMismatch):
		log.Debug("Dropping frame %d and requesting a full frame: %v", m.FrameID, err)
		return c.sendAck(ctx, ack.ResetID)
	case errors.Is(err, frame.ErrIncomplete):
		// The registry is behind the server. last stays the baseline, or
		// ResetID when there is none.
		log.Debug("Frame %d is not a baseline: %v", m.FrameID, err)
		return c.sendAck(ctx, last)
	case err != nil:
		if ackErr := c.sendAck(ctx, ack.ResetID); ackErr != nil {
			log.Warn("Failed to request a full frame: %v", ackErr)
		}
		return err
	case !stored:
		return nil
	}
	return c.sendAck(ctx, m.FrameID)
}

// rebuild turns m into a full frame and buffers it for rendering. stored
// reports whether the frame also became a delta base; it is false without an
// error when m was stale.
func (c *Client) rebuild(kind messages.Kind, m *messages.FrameMessage) (stored bool, err error) {
	if !c.receiver.Accept(m.FrameID) || !c.newerThanBuffered(m.FrameID) {
		log.Trace("Ignoring stale frame %d", m.FrameID)
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			stored, err = false, c.protocolFailure(m.FrameID, r)
		}
	}()

	received := frame.New(m.Data, int(m.Bits))
	var full *frame.Frame
	if kind == messages.KindDeltaFrame {
		base, ok := c.receiver.Base(m.BaseID)
		if !ok {
			return false, fmt.Errorf("frame %d needs base %d: %w", m.FrameID, m.BaseID, ErrMissingBase)
		}
		full, err = c.reader.AddDelta(base, received)
		if err != nil && !errors.Is(err, frame.ErrIncomplete) {
			return false, fmt.Errorf("frame %d against base %d: %w", m.FrameID, m.BaseID, err)
		}
	} else {
		full = received
		// Touch every record so a malformed full frame fails here rather
		// than during rendering.
		full.Sections()
	}

	c.frames = append(c.frames, timedFrame{id: m.FrameID, frame: full, arrived: c.now()})
	if len(c.frames) > DefaultRenderBufferSize {
		c.frames = c.frames[len(c.frames)-DefaultRenderBufferSize:]
	}
	if err != nil {
		return false, fmt.Errorf("frame %d: %w", m.FrameID, err)
	}
	c.receiver.Store(m.FrameID, full)
	return true, nil
}

func (c *Client) newerThanBuffered(id uint32) bool {
	return len(c.frames) == 0 || ack.Newer(id, c.frames[len(c.frames)-1].id)
}

// protocolFailure turns a wire violation into an error and drops all client
// side frame state, since none of it can be trusted as a baseline anymore.
func (c *Client) protocolFailure(frameID uint32, r interface{}) error {
	var perr *frame.ProtocolError
	rerr, isErr := r.(error)
	if !isErr || !(errors.As(rerr, &perr) || errors.Is(rerr, bitstream.ErrReadOverflow)) {
		panic(r)
	}
	log.Error("Protocol violation in frame %d, resetting: %v", frameID, rerr)
	c.receiver.Reset()
	c.frames = nil
	return fmt.Errorf("failed to rebuild frame %d: %w", frameID, rerr)
}

func (c *Client) sendAck(ctx context.Context, frameID uint32) error {
	packet, err := messages.NewAckPacket(frameID)
	if err != nil {
		return fmt.Errorf("failed to serialize ack: %v", err)
	}
	if err := c.sender.Send(ctx, packet); err != nil {
		return fmt.Errorf("failed to send ack for frame %d: %v", frameID, err)
	}
	return nil
}

// LastApplied returns the ID of the newest rebuilt frame.
func (c *Client) LastApplied() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.receiver.LastApplied()
}

// Render applies buffered state as of now minus the interpolation delay and
// returns the ID of the newest frame involved, or 0 when nothing has
// arrived yet.
//
// The two frames bracketing the render time are blended with mix the
// fraction of the way between their arrivals. Past the newest frame, mix
// grows beyond 1 and entries extrapolate. Before any pair is available the
// oldest frame is applied cold.
func (c *Client) Render(now time.Time) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.frames) == 0 {
		return 0
	}
	target := now.Add(-c.delay)

	i := -1
	for j := range c.frames {
		if c.frames[j].arrived.After(target) {
			break
		}
		i = j
	}

	switch {
	case i < 0, i == 0 && len(c.frames) == 1:
		next := c.frames[0]
		c.reader.Apply(next.frame)
		return next.id
	case i == len(c.frames)-1:
		i--
	}

	prev, next := c.frames[i], c.frames[i+1]
	dt := next.arrived.Sub(prev.arrived).Seconds()
	mix := 1.0
	if dt > 0 {
		mix = target.Sub(prev.arrived).Seconds() / dt
	}
	c.reader.ApplyLerped(prev.frame, next.frame, mix, dt)
	c.frames = c.frames[i:]
	return next.id
}
