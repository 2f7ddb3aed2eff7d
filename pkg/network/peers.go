package network

import (
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	// PeerIDMaxRetries represents the maximum number of retries when generating a unique ID
	PeerIDMaxRetries = 1024
)

// ConnectionType is the transport a peer is reachable over.
type ConnectionType int

const (
	ConnectionTypeUDP ConnectionType = iota
	ConnectionTypeWebSocket
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionTypeUDP:
		return "udp"
	case ConnectionTypeWebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("connection(%d)", int(c))
	}
}

// Peer is a connected remote endpoint, identified only by a transport-level ID.
type Peer struct {
	ID             uint32
	ConnectionType ConnectionType
	UDPAddress     *net.UDPAddr
	WSConn         *websocket.Conn
	ConnectedAt    time.Time
	LastSeen       time.Time
}

// ErrPeerNotFound is returned when a peer is not connected.
type ErrPeerNotFound struct {
	PeerID uint32
}

func (e *ErrPeerNotFound) Error() string {
	return fmt.Sprintf("peer %d not found", e.PeerID)
}

// IsPeerNotFound reports whether err is an ErrPeerNotFound.
func IsPeerNotFound(err error) bool {
	_, ok := err.(*ErrPeerNotFound)
	return ok
}

// LifecycleFunc is called when a peer connects or disconnects.
type LifecycleFunc func(peerID uint32)

// PeerManager manages connected peers. Lifecycle callbacks run in the order
// they were added, outside of the manager's lock.
type PeerManager struct {
	peers     map[uint32]*Peer
	byAddress map[string]uint32
	peersLock sync.RWMutex

	callbacksLock sync.RWMutex
	onConnect     []LifecycleFunc
	onDisconnect  []LifecycleFunc

	now func() time.Time
}

// NewPeerManager creates a new PeerManager
func NewPeerManager() *PeerManager {
	return &PeerManager{
		peers:     make(map[uint32]*Peer),
		byAddress: make(map[string]uint32),
		now:       time.Now,
	}
}

// OnConnect adds a callback run after a peer connects.
func (pm *PeerManager) OnConnect(fn LifecycleFunc) {
	pm.callbacksLock.Lock()
	defer pm.callbacksLock.Unlock()
	pm.onConnect = append(pm.onConnect, fn)
}

// OnDisconnect adds a callback run after a peer disconnects.
func (pm *PeerManager) OnDisconnect(fn LifecycleFunc) {
	pm.callbacksLock.Lock()
	defer pm.callbacksLock.Unlock()
	pm.onDisconnect = append(pm.onDisconnect, fn)
}

func (pm *PeerManager) fire(callbacks *[]LifecycleFunc, peerID uint32) {
	pm.callbacksLock.RLock()
	fns := append([]LifecycleFunc(nil), *callbacks...)
	pm.callbacksLock.RUnlock()
	for _, fn := range fns {
		fn(peerID)
	}
}

// ConnectUDP returns the peer ID for addr, connecting a new peer if the
// address has not been seen. created reports whether a peer was added.
func (pm *PeerManager) ConnectUDP(addr *net.UDPAddr) (peerID uint32, created bool, err error) {
	key := addr.String()
	pm.peersLock.Lock()
	if id, ok := pm.byAddress[key]; ok {
		pm.peers[id].LastSeen = pm.now()
		pm.peersLock.Unlock()
		return id, false, nil
	}
	id, err := pm.generateUniqueID(PeerIDMaxRetries)
	if err != nil {
		pm.peersLock.Unlock()
		return 0, false, fmt.Errorf("failed to generate a unique ID: %v", err)
	}
	now := pm.now()
	pm.peers[id] = &Peer{
		ID:             id,
		ConnectionType: ConnectionTypeUDP,
		UDPAddress:     addr,
		ConnectedAt:    now,
		LastSeen:       now,
	}
	pm.byAddress[key] = id
	pm.peersLock.Unlock()

	pm.fire(&pm.onConnect, id)
	return id, true, nil
}

// PeerIDByUDPAddress returns the ID of the peer at addr, or 0.
func (pm *PeerManager) PeerIDByUDPAddress(addr *net.UDPAddr) uint32 {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	return pm.byAddress[addr.String()]
}

// ConnectWS adds a peer reachable over a websocket connection.
func (pm *PeerManager) ConnectWS(conn *websocket.Conn) (uint32, error) {
	pm.peersLock.Lock()
	id, err := pm.generateUniqueID(PeerIDMaxRetries)
	if err != nil {
		pm.peersLock.Unlock()
		return 0, fmt.Errorf("failed to generate a unique ID: %v", err)
	}
	now := pm.now()
	pm.peers[id] = &Peer{
		ID:             id,
		ConnectionType: ConnectionTypeWebSocket,
		WSConn:         conn,
		ConnectedAt:    now,
		LastSeen:       now,
	}
	pm.peersLock.Unlock()

	pm.fire(&pm.onConnect, id)
	return id, nil
}

// Touch records activity from a peer.
func (pm *PeerManager) Touch(peerID uint32) {
	pm.peersLock.Lock()
	defer pm.peersLock.Unlock()
	if p, ok := pm.peers[peerID]; ok {
		p.LastSeen = pm.now()
	}
}

// Disconnect removes a peer from the manager. It reports whether the peer
// was connected.
func (pm *PeerManager) Disconnect(peerID uint32) bool {
	pm.peersLock.Lock()
	p, ok := pm.peers[peerID]
	if !ok {
		pm.peersLock.Unlock()
		return false
	}
	if p.UDPAddress != nil {
		delete(pm.byAddress, p.UDPAddress.String())
	}
	delete(pm.peers, peerID)
	pm.peersLock.Unlock()

	pm.fire(&pm.onDisconnect, peerID)
	return true
}

// DisconnectIdle disconnects every peer not seen within timeout and returns
// their IDs.
func (pm *PeerManager) DisconnectIdle(timeout time.Duration) []uint32 {
	cutoff := pm.now().Add(-timeout)
	pm.peersLock.RLock()
	var idle []uint32
	for id, p := range pm.peers {
		if p.LastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	pm.peersLock.RUnlock()

	sort.Slice(idle, func(i, j int) bool { return idle[i] < idle[j] })
	for _, id := range idle {
		pm.Disconnect(id)
	}
	return idle
}

// GetPeer returns a copy of a connected peer.
func (pm *PeerManager) GetPeer(peerID uint32) (*Peer, error) {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	p, ok := pm.peers[peerID]
	if !ok {
		return nil, &ErrPeerNotFound{PeerID: peerID}
	}
	cp := *p
	return &cp, nil
}

// GetPeers returns a copy of all connected peers ordered by ID.
func (pm *PeerManager) GetPeers() []*Peer {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	peers := make([]*Peer, 0, len(pm.peers))
	for _, p := range pm.peers {
		cp := *p
		peers = append(peers, &cp)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Exists reports whether a peer is connected.
func (pm *PeerManager) Exists(peerID uint32) bool {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	_, ok := pm.peers[peerID]
	return ok
}

// generateUniqueID generates a unique peer ID with a maximum number of retries
// it reads from the peers, so it needs to be locked before calling
func (pm *PeerManager) generateUniqueID(maxRetries int) (uint32, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := rand.Uint32()
		if id == 0 {
			continue
		}
		if _, ok := pm.peers[id]; !ok {
			return id, nil
		}
	}

	return 0, fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}
