package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("channels: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Channels)
	assert.Equal(t, DefaultMaxHosts, cfg.MaxHosts)
	assert.Equal(t, DefaultMaxPeers, cfg.MaxPeers)
	assert.Equal(t, DefaultMaxEvents, cfg.MaxEvents)
	assert.Equal(t, DefaultMaxPendingConnects, cfg.MaxPendingConnects)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
}

func TestParseDurationsAndBandwidth(t *testing.T) {
	cfg, err := Parse([]byte(`
connect_timeout: 1500ms
incoming_bandwidth: 256KB
outgoing_bandwidth: 1048576
debug_addr: 127.0.0.1:6060
`))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, Bandwidth(256000), cfg.IncomingBandwidth)
	assert.Equal(t, Bandwidth(1048576), cfg.OutgoingBandwidth)
	assert.Equal(t, "127.0.0.1:6060", cfg.DebugAddr)
}

func TestParseRejectsBadValues(t *testing.T) {
	for name, doc := range map[string]string{
		"zero hosts":     "max_hosts: 0",
		"channels":       "channels: 256",
		"timeout":        "connect_timeout: 0s",
		"bandwidth text": "incoming_bandwidth: fast",
		"not yaml":       "max_peers: [1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("max_events: -1"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBandwidthMarshalsHumanSize(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Rate Bandwidth `yaml:"rate"`
	}{Rate: 256000})
	require.NoError(t, err)
	assert.Equal(t, "rate: 256kB\n", string(out))
	assert.Equal(t, "unlimited", Bandwidth(0).String())
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_hosts: 8\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxHosts)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
