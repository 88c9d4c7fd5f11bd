package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/memnet"
)

func newTestBridge(t *testing.T, mutate func(*Config), opts ...Option) *Bridge {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	b, err := New(memnet.New(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func memHost(t *testing.T, b *Bridge, id handle.ID) *memnet.Host {
	t.Helper()
	e, err := b.hosts.Lookup(id)
	require.NoError(t, err)
	return e.host.(*memnet.Host)
}

// serviceUntil polls hostID until an event of type want is staged.
func serviceUntil(t *testing.T, b *Bridge, hostID handle.ID, want transport.EventType) (int, Event) {
	t.Helper()
	for i := 0; i < 16; i++ {
		id, err := b.Service(hostID)
		require.NoError(t, err)
		if id == 0 {
			continue
		}
		ev, err := b.Event(id)
		require.NoError(t, err)
		if ev.Type == want {
			return id, ev
		}
	}
	t.Fatalf("host %d staged no %s event", hostID, want)
	return 0, Event{}
}

func advanceUntil(t *testing.T, mock *clock.Mock, done <-chan struct{}) {
	t.Helper()
	for i := 0; i < 100; i++ {
		mock.Add(time.Second)
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("operation did not finish")
}

func TestHostTableFillsThenRejects(t *testing.T) {
	b := newTestBridge(t, func(c *Config) { c.MaxHosts = 3 })

	for want := handle.ID(1); want <= 3; want++ {
		id, err := b.CreateClient(0)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	id, err := b.CreateClient(0)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, handle.Invalid, id)
}

func TestDestroyedHostIDIsRejected(t *testing.T) {
	b := newTestBridge(t, nil)

	id, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	require.NoError(t, b.DestroyHost(id))

	_, err = b.Service(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, b.DestroyHost(id), ErrNotFound)

	next, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestCreateValidatesArguments(t *testing.T) {
	b := newTestBridge(t, nil)

	_, err := b.CreateServer(70000, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = b.CreateServer(9000, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = b.CreateClient(transport.MaxChannels + 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestServerClientConnectAndReceive(t *testing.T) {
	b := newTestBridge(t, nil)

	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, handle.ID(1), server)
	client, err := b.CreateClient(0)
	require.NoError(t, err)
	assert.Equal(t, handle.ID(2), client)

	peerID, err := b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)
	assert.Equal(t, handle.ID(1), peerID)

	serverEvent, ev := serviceUntil(t, b, server, transport.EventConnect)
	assert.Equal(t, server, ev.HostID)
	assert.NotEqual(t, handle.Invalid, ev.PeerID)
	assert.NotEqual(t, peerID, ev.PeerID)

	_, ev = serviceUntil(t, b, client, transport.EventConnect)
	assert.Equal(t, peerID, ev.PeerID, "outbound peer keeps the ID returned by Connect")

	require.NoError(t, b.EventPeerSend(serverEvent, 0, []byte("hello"), transport.FlagReliable))
	_, ev = serviceUntil(t, b, client, transport.EventReceive)
	assert.Equal(t, "hello", string(ev.Data))
	assert.Equal(t, peerID, ev.PeerID)

	peers := b.Peers()
	require.Len(t, peers, 2)
	for _, p := range peers {
		assert.Equal(t, p.HostID == server, p.Inbound)
	}
}

func TestSyncConnectTimeoutResetsPeer(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBridge(t, nil, WithClock(mock))
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	done := make(chan struct{})
	var peerID handle.ID
	var connectErr error
	go func() {
		defer close(done)
		peerID, connectErr = b.Connect(context.Background(), client, "127.0.0.1", 9999)
	}()
	advanceUntil(t, mock, done)

	assert.ErrorIs(t, connectErr, ErrTimeout)
	assert.Equal(t, handle.Invalid, peerID)
	assert.Zero(t, memHost(t, b, client).Peers(), "half-open peer must be reset")
	assert.Zero(t, b.peers.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.connects.WithLabelValues("sync", "timeout")))
}

func TestSyncConnectBlocksForTimeout(t *testing.T) {
	b := newTestBridge(t, func(c *Config) { c.ConnectTimeout = 50 * time.Millisecond })
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	start := time.Now()
	_, err = b.Connect(context.Background(), client, "127.0.0.1", 9999)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestAsyncConnectUnknownHostFails(t *testing.T) {
	b := newTestBridge(t, nil)

	op, err := b.ConnectAsync(7, "127.0.0.1", 9000)
	require.NoError(t, err)
	assert.Equal(t, op, b.LatestConnect())
	require.NoError(t, b.WaitConnect(context.Background(), op))

	assert.Equal(t, ConnectFailed, b.PollConnect(op))
	assert.Equal(t, ConnectFailed, b.PollConnect(op), "failure is sticky")
	assert.ErrorIs(t, b.ConnectError(op), ErrNotFound)

	assert.Equal(t, handle.Invalid, b.TakeConnectPeer(op))
	assert.Equal(t, ConnectUninitialized, b.PollConnect(op))
	assert.Zero(t, b.peers.Len())
}

func TestAsyncConnectReportsStartedWhileWaiting(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBridge(t, nil, WithClock(mock))
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	op, err := b.ConnectAsync(client, "127.0.0.1", 9999)
	require.NoError(t, err)
	assert.Equal(t, ConnectStarted, b.PollConnect(op))
	assert.Equal(t, handle.Invalid, b.TakeConnectPeer(op), "running operations yield nothing")

	done := make(chan struct{})
	go func() {
		_ = b.WaitConnect(context.Background(), op)
		close(done)
	}()
	advanceUntil(t, mock, done)

	assert.Equal(t, ConnectFailed, b.PollConnect(op))
	assert.ErrorIs(t, b.ConnectError(op), ErrTimeout)
}

func TestAsyncConnectSucceedsExactlyOnce(t *testing.T) {
	b := newTestBridge(t, nil)
	_, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	op, err := b.ConnectAsync(client, "127.0.0.1", 9000)
	require.NoError(t, err)
	require.NoError(t, b.WaitConnect(context.Background(), op))

	assert.Equal(t, ConnectSucceeded, b.PollConnect(op))
	assert.Equal(t, ConnectUninitialized, b.PollConnect(op))

	peerID := b.TakeConnectPeer(op)
	assert.NotEqual(t, handle.Invalid, peerID)
	assert.Equal(t, handle.Invalid, b.TakeConnectPeer(op))

	_, err = b.PeerAddress(peerID)
	assert.NoError(t, err)
}

func TestConcurrentAsyncConnectsAreIndependent(t *testing.T) {
	b := newTestBridge(t, nil)
	_, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	_, err = b.CreateServer(9001, 4, 0)
	require.NoError(t, err)
	c1, err := b.CreateClient(0)
	require.NoError(t, err)
	c2, err := b.CreateClient(0)
	require.NoError(t, err)

	op1, err := b.ConnectAsync(c1, "127.0.0.1", 9000)
	require.NoError(t, err)
	op2, err := b.ConnectAsync(c2, "127.0.0.1", 9001)
	require.NoError(t, err)
	assert.NotEqual(t, op1, op2)
	assert.Equal(t, op2, b.LatestConnect())

	require.NoError(t, b.WaitConnect(context.Background(), op1))
	require.NoError(t, b.WaitConnect(context.Background(), op2))
	p1 := b.TakeConnectPeer(op1)
	p2 := b.TakeConnectPeer(op2)
	assert.NotEqual(t, handle.Invalid, p1)
	assert.NotEqual(t, handle.Invalid, p2)
	assert.NotEqual(t, p1, p2)
}

func TestConnectTableEvictsFinishedOperations(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBridge(t, func(c *Config) { c.MaxPendingConnects = 1 }, WithClock(mock))
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	failed, err := b.ConnectAsync(99, "127.0.0.1", 9000)
	require.NoError(t, err)
	require.NoError(t, b.WaitConnect(context.Background(), failed))

	running, err := b.ConnectAsync(client, "127.0.0.1", 9999)
	require.NoError(t, err, "failed operation is evicted")
	assert.Equal(t, ConnectUninitialized, b.PollConnect(failed))
	assert.Equal(t, ConnectStarted, b.PollConnect(running))

	_, err = b.ConnectAsync(client, "127.0.0.1", 9999)
	assert.ErrorIs(t, err, ErrFull)
}

func TestConnectTableKeepsUntakenSuccess(t *testing.T) {
	b := newTestBridge(t, func(c *Config) { c.MaxPendingConnects = 1 })
	_, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	op, err := b.ConnectAsync(client, "127.0.0.1", 9000)
	require.NoError(t, err)
	require.NoError(t, b.WaitConnect(context.Background(), op))
	require.Equal(t, ConnectSucceeded, b.PollConnect(op))

	_, err = b.ConnectAsync(client, "127.0.0.1", 9000)
	require.ErrorIs(t, err, ErrFull, "polled success still holds its peer")

	peerID := b.TakeConnectPeer(op)
	assert.NotEqual(t, handle.Invalid, peerID)
	_, err = b.PeerAddress(peerID)
	assert.NoError(t, err)

	_, err = b.ConnectAsync(client, "127.0.0.1", 9000)
	assert.NoError(t, err, "slot frees once the peer is taken")
}

func TestConnectAsyncRacesClose(t *testing.T) {
	b := newTestBridge(t, nil)
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := b.ConnectAsync(client, "127.0.0.1", 9999); errors.Is(err, ErrNotInitialized) {
					return
				}
			}
		}()
	}
	require.NoError(t, b.Close())
	wg.Wait()

	_, err = b.ConnectAsync(client, "127.0.0.1", 9999)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDisconnectReleasesPeerAfterEvent(t *testing.T) {
	b := newTestBridge(t, nil)
	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)
	peerID, err := b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)
	_, srv := serviceUntil(t, b, server, transport.EventConnect)

	require.NoError(t, b.PeerDisconnect(peerID, 7))
	_, err = b.PeerAddress(peerID)
	require.NoError(t, err, "ID lives until the event is serviced")

	eventID, ev := serviceUntil(t, b, client, transport.EventDisconnect)
	assert.Equal(t, peerID, ev.PeerID)
	assert.Equal(t, uint32(7), ev.Code)
	assert.ErrorIs(t, b.PeerSend(peerID, 0, []byte("x"), transport.FlagReliable), ErrNotFound)

	again, err := b.Event(eventID)
	require.NoError(t, err)
	assert.Equal(t, transport.EventDisconnect, again.Type)

	_, ev = serviceUntil(t, b, server, transport.EventDisconnect)
	assert.Equal(t, srv.PeerID, ev.PeerID)
	assert.Zero(t, b.peers.Len())
}

func TestPeerResetReleasesImmediately(t *testing.T) {
	b := newTestBridge(t, nil)
	_, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)
	peerID, err := b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)

	require.NoError(t, b.PeerReset(peerID))
	assert.ErrorIs(t, b.PeerReset(peerID), ErrNotFound)
	_, err = b.PeerAddress(peerID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDestroyHostReleasesItsPeers(t *testing.T) {
	b := newTestBridge(t, nil)
	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)
	peerID, err := b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)
	serviceUntil(t, b, server, transport.EventConnect)
	require.Equal(t, 2, b.peers.Len())

	require.NoError(t, b.DestroyHost(client))
	_, err = b.PeerAddress(peerID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, b.peers.Len())
}

func TestEventRingOverwritesOldest(t *testing.T) {
	b := newTestBridge(t, func(c *Config) { c.MaxEvents = 2 })
	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)
	client, err := b.CreateClient(0)
	require.NoError(t, err)
	_, err = b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)
	serviceUntil(t, b, client, transport.EventConnect)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, b.Broadcast(server, 0, []byte(msg), transport.FlagUnsequenced))
	}
	var ids []int
	for i := 0; i < 3; i++ {
		id, err := b.Service(client)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int{2, 1, 2}, ids)

	ev, err := b.Event(2)
	require.NoError(t, err)
	assert.Equal(t, "three", string(ev.Data))
	assert.Equal(t, uint64(4), ev.Seq)
	assert.Equal(t, 2, b.EventID(ev.Seq))
	assert.Equal(t, 3.0, testutil.ToFloat64(b.metrics.events.WithLabelValues("receive")))
}

func TestEventLookupBounds(t *testing.T) {
	b := newTestBridge(t, nil)

	_, err := b.Event(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Event(DefaultMaxEvents + 1)
	assert.ErrorIs(t, err, ErrNotFound)

	ev, err := b.Event(5)
	require.NoError(t, err)
	assert.Equal(t, transport.EventNone, ev.Type)
	assert.Zero(t, ev.Seq)
	assert.ErrorIs(t, b.EventPeerSend(5, 0, []byte("x"), transport.FlagReliable), ErrNotFound)
}

func TestServiceWithoutEventsReturnsZero(t *testing.T) {
	b := newTestBridge(t, nil)
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	id, err := b.Service(client)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestSendValidatesChannel(t *testing.T) {
	b := newTestBridge(t, nil)
	_, err := b.CreateServer(9000, 4, 2)
	require.NoError(t, err)
	client, err := b.CreateClient(2)
	require.NoError(t, err)
	peerID, err := b.Connect(context.Background(), client, "127.0.0.1", 9000)
	require.NoError(t, err)

	assert.NoError(t, b.PeerSend(peerID, 1, []byte("x"), transport.FlagReliable))
	assert.ErrorIs(t, b.PeerSend(peerID, 2, []byte("x"), transport.FlagReliable), ErrInvalidArgument)
}

func TestCompressionAndAddresses(t *testing.T) {
	b := newTestBridge(t, nil)
	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)

	require.NoError(t, b.EnableCompression(server))
	assert.True(t, memHost(t, b, server).Compressed())

	addr, err := b.HostAddress(server)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", addr.IP.String())
	assert.Equal(t, 9000, addr.Port)

	hosts := b.Hosts()
	require.Len(t, hosts, 1)
	assert.Equal(t, "server", hosts[0].Role)
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	b := newTestBridge(t, nil)
	server, err := b.CreateServer(9000, 4, 0)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.CreateClient(0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = b.Service(server)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = b.ConnectAsync(server, "127.0.0.1", 9000)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, b.Hosts())
}
