package mobile

import (
	"net/http"
	"runtime/debug"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/memnet"
)

func useMemnet(t *testing.T) {
	t.Helper()
	prev := networkFactory
	networkFactory = func(*bridge.Config) (transport.Network, error) {
		return memnet.New(), nil
	}
	t.Cleanup(func() {
		Deinitialize()
		networkFactory = prev
		require.NoError(t, Configure(""))
	})
}

func serviceFor(t *testing.T, hostID int, kind string) int {
	t.Helper()
	for i := 0; i < 16; i++ {
		if id := HostService(hostID); id != 0 && GetEventType(id) == kind {
			return id
		}
	}
	t.Fatalf("host %d produced no %s event", hostID, kind)
	return 0
}

func TestRoundTrip(t *testing.T) {
	useMemnet(t)
	require.Equal(t, 0, Initialize())

	server := CreateServer(7100, 4)
	require.NotZero(t, server)
	client := CreateClient()
	require.NotZero(t, client)

	peer := HostConnect(client, "127.0.0.1", 7100)
	require.NotZero(t, peer)
	accepted := serviceFor(t, server, "connect")
	EventPeerSend(accepted, "hello", "reliable")

	serviceFor(t, client, "connect")
	received := serviceFor(t, client, "receive")
	assert.Equal(t, "hello", GetEventData(received))
	assert.Equal(t, peer, GetEventPeerID(received))
	assert.Equal(t, 7100, GetPeerAddressPort(peer))
	assert.Empty(t, DiagnosticsAddress())

	Deinitialize()
	assert.Zero(t, CreateClient(), "calls after deinitialize fail")
}

func TestConfigure(t *testing.T) {
	useMemnet(t)

	require.Error(t, Configure("max_hosts: nope"))
	require.Error(t, Configure("channels: 0"))
	require.NoError(t, Configure("max_hosts: 1\nlog_level: debug\n"))
	require.Equal(t, 0, Initialize())

	assert.NotZero(t, CreateClient())
	assert.Zero(t, CreateClient(), "host table holds one entry")
	assert.Error(t, Configure("max_hosts: 2"), "configure is rejected while live")
}

func TestDiagnosticsServer(t *testing.T) {
	useMemnet(t)
	require.NoError(t, Configure("debug_addr: 127.0.0.1:0\n"))
	require.Equal(t, 0, Initialize())

	addr := DiagnosticsAddress()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	Deinitialize()
	assert.Empty(t, DiagnosticsAddress())
	_, err = http.Get("http://" + addr + "/version")
	assert.Error(t, err)
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
	level []string
}

func (s *recordingSink) Log(level string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = append(s.level, level)
	s.lines = append(s.lines, message)
}

func TestLogSink(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, SetLogSink(sink, "WARN"))
	t.Cleanup(func() { require.NoError(t, SetLogSink(nil, "info")) })

	log.Infow("dropped", "host", 1)
	log.Warnw("peer rejected", "peer", 7, "addr", "10.0.0.2:7100")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.lines, 1)
	assert.Equal(t, "warn", sink.level[0])
	assert.Equal(t, "peer rejected [addr=10.0.0.2:7100 peer=7]", sink.lines[0])

	assert.Error(t, SetLogSink(sink, "loud"))
}

func TestSinkCoreWith(t *testing.T) {
	sink := &recordingSink{}
	core := (&sinkCore{sink: sink, minLevel: zapcore.DebugLevel}).
		With([]zapcore.Field{{Key: "host", Type: zapcore.Int64Type, Integer: 3}})

	require.NoError(t, core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "  "}, nil))
	assert.Equal(t, []string{"info [host=3]"}, sink.lines)
}

func TestSetMemoryLimit(t *testing.T) {
	prev := SetMemoryLimit(64 << 20)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })

	assert.Equal(t, int64(64<<20), SetMemoryLimit(512), "tiny limits are ignored")
	assert.Equal(t, int64(64<<20), SetMemoryLimit(128<<20))
	assert.Equal(t, int64(128<<20), debug.SetMemoryLimit(-1))
}
