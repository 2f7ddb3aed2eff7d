package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/messages"
)

// UDPPacketHandler handles a datagram read by the UDP server.
type UDPPacketHandler func(ctx context.Context, addr *net.UDPAddr, packet []byte)

// UDPServer represents a UDP server.
type UDPServer struct {
	port     int
	conn     *net.UDPConn
	connLock sync.RWMutex
	ready    chan struct{}
}

type NewUDPServerOptions struct {
	Port int
}

// NewUDPServer creates a new UDP server.
func NewUDPServer(opts NewUDPServerOptions) *UDPServer {
	return &UDPServer{
		port:  opts.Port,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the server is listening.
func (s *UDPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the server listens on, or nil before it is ready.
func (s *UDPServer) Addr() *net.UDPAddr {
	s.connLock.RLock()
	defer s.connLock.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Start listens for datagrams until ctx is cancelled.
func (s *UDPServer) Start(ctx context.Context, handler UDPPacketHandler) error {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %v", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %v", err)
	}
	defer conn.Close()

	s.connLock.Lock()
	s.conn = conn
	s.connLock.Unlock()
	close(s.ready)
	log.Info("UDP server listening on %s", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, messages.UDPMessageBufferSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("UDP server closed")
				return nil
			}
			log.Error("Failed to read message from UDP connection: %v", err)
			continue
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		handler(ctx, addr, packet)
	}
}

// WriteTo writes a packet to addr.
func (s *UDPServer) WriteTo(addr *net.UDPAddr, packet []byte) error {
	s.connLock.RLock()
	conn := s.conn
	s.connLock.RUnlock()
	if conn == nil {
		return fmt.Errorf("UDP server is not listening")
	}
	if _, err := conn.WriteToUDP(packet, addr); err != nil {
		return fmt.Errorf("failed to write message to UDP connection: %v", err)
	}
	return nil
}
