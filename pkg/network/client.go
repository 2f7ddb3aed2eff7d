package network

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/messages"
	"nhooyr.io/websocket"
)

// ClientPacketHandler handles a packet received from the server.
type ClientPacketHandler func(ctx context.Context, packet []byte)

// Client is the client side of a transport.
type Client interface {
	Connect(ctx context.Context) error
	Start(ctx context.Context, handler ClientPacketHandler) error
	Send(ctx context.Context, packet []byte) error
	Close() error
}

// UDPClient represents a UDP client.
type UDPClient struct {
	serverAddr string
	conn       *net.UDPConn
}

// NewUDPClient creates a new UDP client.
func NewUDPClient(serverAddr string) *UDPClient {
	return &UDPClient{
		serverAddr: serverAddr,
	}
}

// Connect dials the server.
func (c *UDPClient) Connect(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %v", err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	c.conn = conn
	log.Info("Connected to UDP server at %s", c.serverAddr)
	return nil
}

// Start reads packets from the server until ctx is cancelled or the
// connection is closed.
func (c *UDPClient) Start(ctx context.Context, handler ClientPacketHandler) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	buf := make([]byte, messages.UDPMessageBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error("Failed to receive message from UDP connection: %v", err)
			continue
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		handler(ctx, packet)
	}
}

// Send sends a packet to the server.
func (c *UDPClient) Send(ctx context.Context, packet []byte) error {
	if _, err := c.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to write message to UDP connection: %v", err)
	}
	return nil
}

// Close closes the connection.
func (c *UDPClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// WSClient represents a WebSocket client.
type WSClient struct {
	serverAddr string
	conn       *websocket.Conn
}

// NewWSClient creates a new WebSocket client. serverAddr is a ws:// or
// wss:// URL.
func NewWSClient(serverAddr string) *WSClient {
	return &WSClient{
		serverAddr: serverAddr,
	}
}

// Connect establishes a connection to the WebSocket server.
func (c *WSClient) Connect(ctx context.Context) error {
	log.Info("Connecting to WebSocket server at %s", c.serverAddr)
	conn, _, err := websocket.Dial(ctx, c.serverAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	conn.SetReadLimit(WSReadLimit)
	c.conn = conn
	return nil
}

// Start reads packets from the server until the connection closes.
func (c *WSClient) Start(ctx context.Context, handler ClientPacketHandler) error {
	for {
		typ, packet, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("failed to read WebSocket message: %v", err)
		}
		if typ != websocket.MessageBinary {
			continue
		}
		handler(ctx, packet)
	}
}

// Send sends a packet to the server.
func (c *WSClient) Send(ctx context.Context, packet []byte) error {
	return WriteToWS(ctx, c.conn, packet)
}

// Close closes the connection.
func (c *WSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
