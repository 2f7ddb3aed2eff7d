package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

// WSReadLimit bounds the size of a single websocket message.
const WSReadLimit = 1 << 20

// WSServer represents a WebSocket server.
type WSServer struct {
	port  int
	tls   *TLSConfig
	ready chan struct{}
	addr  net.Addr
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewWSServerOptions struct {
	Port int
	TLS  *TLSConfig
}

// WSConnectHandler registers a new websocket connection and returns its peer ID.
type WSConnectHandler func(conn *websocket.Conn) (uint32, error)

// DisconnectHandler is called when a connection-oriented peer goes away.
type DisconnectHandler func(peerID uint32)

// PacketHandler handles a packet from a known peer.
type PacketHandler func(ctx context.Context, peerID uint32, packet []byte)

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		port:  opts.Port,
		tls:   opts.TLS,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the server is listening.
func (s *WSServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address. Only valid after Ready is closed.
func (s *WSServer) Addr() net.Addr {
	return s.addr
}

// Start serves websocket upgrades on /ws until ctx is cancelled.
func (s *WSServer) Start(ctx context.Context, connectHandler WSConnectHandler, disconnectHandler DisconnectHandler, packetHandler PacketHandler) error {
	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			log.Error("Failed to upgrade to WebSocket: %v", err)
			return
		}
		log.Debug("New WebSocket connection from %s", r.RemoteAddr)
		s.handleWSConnection(ctx, conn, connectHandler, disconnectHandler, packetHandler)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on WebSocket address: %v", err)
	}
	s.addr = listener.Addr()
	server := &http.Server{Handler: r}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	close(s.ready)
	if s.tls != nil {
		log.Info("WebSocket server listening on %s with TLS", s.addr)
		err = server.ServeTLS(listener, s.tls.CertFile, s.tls.KeyFile)
	} else {
		log.Info("WebSocket server listening on %s", s.addr)
		err = server.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("WebSocket server closed")
		return nil
	}
	return fmt.Errorf("websocket server error: %v", err)
}

// handleWSConnection reads packets from conn until it closes.
func (s *WSServer) handleWSConnection(ctx context.Context, conn *websocket.Conn, connectHandler WSConnectHandler, disconnectHandler DisconnectHandler, packetHandler PacketHandler) {
	conn.SetReadLimit(WSReadLimit)
	peerID, err := connectHandler(conn)
	if err != nil {
		log.Error("Failed to connect WebSocket peer: %v", err)
		conn.Close(websocket.StatusInternalError, "failed to connect")
		return
	}
	defer func() {
		disconnectHandler(peerID)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		typ, packet, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Error("Error reading WebSocket message from peer %d: %v", peerID, err)
			}
			log.Trace("Connection closed for peer %d", peerID)
			return
		}
		if typ != websocket.MessageBinary {
			log.Warn("Ignoring non-binary WebSocket message from peer %d", peerID)
			continue
		}
		packetHandler(ctx, peerID, packet)
	}
}

// WriteToWS writes a packet to a websocket connection.
func WriteToWS(ctx context.Context, conn *websocket.Conn, packet []byte) error {
	if err := conn.Write(ctx, websocket.MessageBinary, packet); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}
