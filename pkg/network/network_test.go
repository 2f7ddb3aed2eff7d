package network

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cbodonnell/tickstream/pkg/messages"
	"github.com/cbodonnell/tickstream/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestPeerManager_lifecycle(t *testing.T) {
	pm := NewPeerManager()
	var events []string
	pm.OnConnect(func(id uint32) { events = append(events, fmt.Sprintf("connect-a %d", id)) })
	pm.OnConnect(func(id uint32) { events = append(events, fmt.Sprintf("connect-b %d", id)) })
	pm.OnDisconnect(func(id uint32) { events = append(events, fmt.Sprintf("disconnect %d", id)) })

	id, created, err := pm.ConnectUDP(udpAddr(4000))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, id)

	again, created, err := pm.ConnectUDP(udpAddr(4000))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)
	assert.Equal(t, id, pm.PeerIDByUDPAddress(udpAddr(4000)))

	assert.True(t, pm.Disconnect(id))
	assert.False(t, pm.Disconnect(id))
	assert.Zero(t, pm.PeerIDByUDPAddress(udpAddr(4000)))

	assert.Equal(t, []string{
		fmt.Sprintf("connect-a %d", id),
		fmt.Sprintf("connect-b %d", id),
		fmt.Sprintf("disconnect %d", id),
	}, events)
}

func TestPeerManager_getPeer(t *testing.T) {
	pm := NewPeerManager()
	_, err := pm.GetPeer(12)
	assert.True(t, IsPeerNotFound(err))

	a, _, err := pm.ConnectUDP(udpAddr(1))
	require.NoError(t, err)
	b, _, err := pm.ConnectUDP(udpAddr(2))
	require.NoError(t, err)

	p, err := pm.GetPeer(a)
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeUDP, p.ConnectionType)
	assert.Equal(t, udpAddr(1).String(), p.UDPAddress.String())

	peers := pm.GetPeers()
	require.Len(t, peers, 2)
	assert.True(t, peers[0].ID < peers[1].ID)
	assert.ElementsMatch(t, []uint32{a, b}, []uint32{peers[0].ID, peers[1].ID})
	assert.True(t, pm.Exists(b))
}

func TestPeerManager_disconnectIdle(t *testing.T) {
	pm := NewPeerManager()
	now := time.Unix(1000, 0)
	pm.now = func() time.Time { return now }

	stale, _, err := pm.ConnectUDP(udpAddr(1))
	require.NoError(t, err)
	now = now.Add(5 * time.Second)
	fresh, _, err := pm.ConnectUDP(udpAddr(2))
	require.NoError(t, err)

	now = now.Add(3 * time.Second)
	assert.Equal(t, []uint32{stale}, pm.DisconnectIdle(4*time.Second))
	assert.False(t, pm.Exists(stale))
	assert.True(t, pm.Exists(fresh))

	pm.Touch(fresh)
	now = now.Add(3 * time.Second)
	assert.Empty(t, pm.DisconnectIdle(4*time.Second))
}

func startManager(t *testing.T) (*NetworkManager, *queue.InMemoryQueue, context.CancelFunc) {
	t.Helper()
	q := queue.NewInMemoryQueue(16)
	n := NewNetworkManager(NewNetworkManagerOptions{
		PeerManager:  NewPeerManager(),
		MessageQueue: q,
		UDPPort:      0,
	})
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)
	select {
	case <-n.UDPServer.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("UDP server did not start")
	}
	return n, q, cancel
}

func TestNetworkManager_udpPingConnectsPeer(t *testing.T) {
	n, q, cancel := startManager(t)
	defer cancel()

	client := NewUDPClient(fmt.Sprintf("127.0.0.1:%d", n.UDPServer.Addr().Port))
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	received := make(chan []byte, 4)
	go client.Start(ctx, func(ctx context.Context, packet []byte) { received <- packet })

	ack, err := messages.NewAckPacket(3)
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, ack))

	ping, err := messages.NewPingPacket(messages.KindPing, &messages.PingMessage{Timestamp: 77})
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, ping))

	select {
	case packet := <-received:
		msg, err := messages.DeserializeMessage(packet)
		require.NoError(t, err)
		assert.Equal(t, messages.KindPong, msg.Kind)
		pong, err := messages.DeserializePing(msg.Body)
		require.NoError(t, err)
		assert.Equal(t, int64(77), pong.ClientTimestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong received")
	}

	peers := n.PeerManager.GetPeers()
	require.Len(t, peers, 1)
	assert.Zero(t, q.Size(), "ack before ping comes from an unknown address")

	require.NoError(t, client.Send(ctx, ack))
	require.Eventually(t, func() bool { return q.Size() == 1 }, 5*time.Second, 10*time.Millisecond)
	inbound := q.ReadAllMessages()[0].(*InboundPacket)
	assert.Equal(t, peers[0].ID, inbound.PeerID)
	assert.Equal(t, ack, inbound.Packet)
}

func TestWSServer_roundTrip(t *testing.T) {
	pm := NewPeerManager()
	q := queue.NewInMemoryQueue(16)
	n := &NetworkManager{
		PeerManager:  pm,
		MessageQueue: q,
		UDPServer:    NewUDPServer(NewUDPServerOptions{}),
		WSServer:     NewWSServer(NewWSServerOptions{Port: 0}),
	}
	disconnected := make(chan uint32, 1)
	pm.OnDisconnect(func(id uint32) { disconnected <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.WSServer.Start(ctx, pm.ConnectWS, n.handleDisconnect, n.handlePacket)
	select {
	case <-n.WSServer.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("WebSocket server did not start")
	}

	port := n.WSServer.Addr().(*net.TCPAddr).Port
	client := NewWSClient(fmt.Sprintf("ws://127.0.0.1:%d/ws", port))
	require.NoError(t, client.Connect(ctx))

	ack, err := messages.NewAckPacket(9)
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, ack))
	require.Eventually(t, func() bool { return q.Size() == 1 }, 5*time.Second, 10*time.Millisecond)
	inbound := q.ReadAllMessages()[0].(*InboundPacket)
	assert.Equal(t, ack, inbound.Packet)

	peers := pm.GetPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, ConnectionTypeWebSocket, peers[0].ConnectionType)

	frame, err := messages.NewFramePacket(messages.KindFullFrame, &messages.FrameMessage{FrameID: 1, Bits: 8, Data: []byte{0xAA}})
	require.NoError(t, err)
	received := make(chan []byte, 1)
	readCtx, stopReading := context.WithCancel(ctx)
	go client.Start(readCtx, func(ctx context.Context, packet []byte) { received <- packet })
	require.NoError(t, n.Send(ctx, peers[0].ID, frame))
	select {
	case packet := <-received:
		assert.Equal(t, frame, packet)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	// Abandoning the read tears down the connection.
	stopReading()
	select {
	case id := <-disconnected:
		assert.Equal(t, peers[0].ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("peer was not disconnected")
	}
}
