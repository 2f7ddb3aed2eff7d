package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/messages"
	"github.com/cbodonnell/tickstream/pkg/queue"
)

// InboundPacket is a packet from a peer waiting for the tick loop.
type InboundPacket struct {
	PeerID uint32
	Packet []byte
}

// NetworkManager owns the server transports. Network goroutines answer
// pings directly and enqueue every other packet for the tick loop.
type NetworkManager struct {
	PeerManager  *PeerManager
	MessageQueue queue.Queue
	UDPServer    *UDPServer
	WSServer     *WSServer
	idleTimeout  time.Duration
}

type NewNetworkManagerOptions struct {
	PeerManager  *PeerManager
	MessageQueue queue.Queue
	UDPPort      int
	// WSPort enables the websocket transport when non-zero.
	WSPort      int
	WSServerTLS *TLSConfig
	// IdleTimeout disconnects UDP peers that have not sent anything for
	// this long. Zero disables it.
	IdleTimeout time.Duration
}

func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	n := &NetworkManager{
		PeerManager:  opts.PeerManager,
		MessageQueue: opts.MessageQueue,
		UDPServer: NewUDPServer(NewUDPServerOptions{
			Port: opts.UDPPort,
		}),
		idleTimeout: opts.IdleTimeout,
	}
	if opts.WSPort != 0 {
		n.WSServer = NewWSServer(NewWSServerOptions{
			Port: opts.WSPort,
			TLS:  opts.WSServerTLS,
		})
	}
	return n
}

// Start runs the transports in the background.
func (n *NetworkManager) Start(ctx context.Context) {
	go func() {
		if err := n.UDPServer.Start(ctx, n.handleUDPPacket); err != nil {
			log.Error("UDP server failed: %v", err)
		}
	}()
	if n.WSServer != nil {
		go func() {
			if err := n.WSServer.Start(ctx, n.PeerManager.ConnectWS, n.handleDisconnect, n.handlePacket); err != nil {
				log.Error("WebSocket server failed: %v", err)
			}
		}()
	}
	if n.idleTimeout > 0 {
		go n.reapIdle(ctx)
	}
}

func (n *NetworkManager) reapIdle(ctx context.Context) {
	ticker := time.NewTicker(n.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range n.PeerManager.DisconnectIdle(n.idleTimeout) {
				log.Info("Peer %d timed out", id)
			}
		}
	}
}

func (n *NetworkManager) handleDisconnect(peerID uint32) {
	if n.PeerManager.Disconnect(peerID) {
		log.Info("Peer %d disconnected", peerID)
	}
}

// handleUDPPacket resolves the sender to a peer. A ping from an unknown
// address connects a new peer; anything else from one is dropped.
func (n *NetworkManager) handleUDPPacket(ctx context.Context, addr *net.UDPAddr, packet []byte) {
	kind, err := messages.PeekKind(packet)
	if err != nil {
		log.Warn("Dropping UDP packet from %s: %v", addr, err)
		return
	}

	peerID := n.PeerManager.PeerIDByUDPAddress(addr)
	if peerID == 0 {
		if kind != messages.KindPing {
			log.Warn("Received %s from unknown address %s, ignoring", kind, addr)
			return
		}
		id, created, err := n.PeerManager.ConnectUDP(addr)
		if err != nil {
			log.Error("Failed to connect peer at %s: %v", addr, err)
			return
		}
		if created {
			log.Info("Peer %d connected from %s", id, addr)
		}
		peerID = id
	} else {
		n.PeerManager.Touch(peerID)
	}

	n.handlePacket(ctx, peerID, packet)
}

func (n *NetworkManager) handlePacket(ctx context.Context, peerID uint32, packet []byte) {
	kind, err := messages.PeekKind(packet)
	if err != nil {
		log.Warn("Dropping packet from peer %d: %v", peerID, err)
		return
	}
	log.Trace("Received %s from peer %d", kind, peerID)

	if kind == messages.KindPing {
		if err := n.handlePing(ctx, peerID, packet); err != nil {
			log.Error("Failed to handle ping from peer %d: %v", peerID, err)
		}
		return
	}

	if err := n.MessageQueue.Enqueue(&InboundPacket{PeerID: peerID, Packet: packet}); err != nil {
		log.Error("Failed to enqueue message: %v", err)
	}
}

func (n *NetworkManager) handlePing(ctx context.Context, peerID uint32, packet []byte) error {
	msg, err := messages.DeserializeMessage(packet)
	if err != nil {
		return fmt.Errorf("failed to deserialize ping: %v", err)
	}
	ping, err := messages.DeserializePing(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to deserialize ping: %v", err)
	}

	pong, err := messages.NewPingPacket(messages.KindPong, &messages.PingMessage{
		Timestamp:       time.Now().UnixMilli(),
		ClientTimestamp: ping.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize pong: %v", err)
	}
	if err := n.Send(ctx, peerID, pong); err != nil {
		return fmt.Errorf("failed to write pong message to peer: %v", err)
	}
	return nil
}

// Send writes a packet to a single peer over its transport.
func (n *NetworkManager) Send(ctx context.Context, peerID uint32, packet []byte) error {
	peer, err := n.PeerManager.GetPeer(peerID)
	if err != nil {
		return fmt.Errorf("failed to get peer %d: %w", peerID, err)
	}

	switch peer.ConnectionType {
	case ConnectionTypeUDP:
		if err := n.UDPServer.WriteTo(peer.UDPAddress, packet); err != nil {
			return fmt.Errorf("failed to send to peer %d: %v", peerID, err)
		}
	case ConnectionTypeWebSocket:
		if err := WriteToWS(ctx, peer.WSConn, packet); err != nil {
			return fmt.Errorf("failed to send to peer %d: %v", peerID, err)
		}
	default:
		return fmt.Errorf("unknown connection type for peer %d: %v", peerID, peer.ConnectionType)
	}
	return nil
}

// SendToAll writes a packet to every connected peer, logging failures.
func (n *NetworkManager) SendToAll(ctx context.Context, packet []byte) {
	for _, peer := range n.PeerManager.GetPeers() {
		if err := n.Send(ctx, peer.ID, packet); err != nil {
			log.Error("Failed to send message to peer %d: %v", peer.ID, err)
		}
	}
}

// PeerIDs returns the IDs of connected peers in ascending order.
func (n *NetworkManager) PeerIDs() []uint32 {
	peers := n.PeerManager.GetPeers()
	ids := make([]uint32, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	return ids
}
