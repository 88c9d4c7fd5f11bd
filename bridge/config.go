//  config.go
//  RelativeProtocol PeerBridge
//
//  Copyright (c) 2025 Relative Companies, Inc.
//  Personal, non-commercial use only.
//
//  Startup options for a Bridge. Capacities are fixed once the bridge is
//  created; everything here is read from YAML before Initialize.

package bridge

import (
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/relativeprotocol/peerbridge/transport"
)

const (
	DefaultMaxHosts           = 32
	DefaultMaxPeers           = 1024
	DefaultMaxEvents          = 128
	DefaultMaxPendingConnects = 64
	DefaultChannels           = 1
	DefaultConnectTimeout     = 5 * time.Second
)

// Config captures the runtime options surfaced to the embedding runtime.
type Config struct {
	// MaxHosts, MaxPeers and MaxEvents size the host table, peer table and
	// event ring.
	MaxHosts  int `yaml:"max_hosts"`
	MaxPeers  int `yaml:"max_peers"`
	MaxEvents int `yaml:"max_events"`
	// MaxPendingConnects bounds the number of tracked async connects.
	MaxPendingConnects int `yaml:"max_pending_connects"`
	// Channels is the channel count used when a host is created without one.
	Channels int `yaml:"channels"`
	// ConnectTimeout bounds every connect, sync or async.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	IncomingBandwidth Bandwidth `yaml:"incoming_bandwidth"`
	OutgoingBandwidth Bandwidth `yaml:"outgoing_bandwidth"`

	LogLevel string `yaml:"log_level"`
	// DebugAddr, when set, serves the diagnostics API.
	DebugAddr string `yaml:"debug_addr"`
}

// DefaultConfig returns the stock capacities and timeouts.
func DefaultConfig() *Config {
	return &Config{
		MaxHosts:           DefaultMaxHosts,
		MaxPeers:           DefaultMaxPeers,
		MaxEvents:          DefaultMaxEvents,
		MaxPendingConnects: DefaultMaxPendingConnects,
		Channels:           DefaultChannels,
		ConnectTimeout:     DefaultConnectTimeout,
		LogLevel:           "info",
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func (c *Config) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"max_hosts", c.MaxHosts},
		{"max_peers", c.MaxPeers},
		{"max_events", c.MaxEvents},
		{"max_pending_connects", c.MaxPendingConnects},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidArgument, f.name, f.value)
		}
	}
	if c.Channels < 1 || c.Channels > transport.MaxChannels {
		return fmt.Errorf("%w: channels must be in 1..%d, got %d", ErrInvalidArgument, transport.MaxChannels, c.Channels)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive, got %s", ErrInvalidArgument, c.ConnectTimeout)
	}
	if c.IncomingBandwidth < 0 || c.OutgoingBandwidth < 0 {
		return fmt.Errorf("%w: bandwidth must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Bandwidth is a byte rate per second. In YAML it is either a plain integer
// or a human size such as "256KB"; zero means unlimited.
type Bandwidth int64

func (b *Bandwidth) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = Bandwidth(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("bandwidth: %w", err)
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return fmt.Errorf("bandwidth %q: %w", s, err)
	}
	*b = Bandwidth(n)
	return nil
}

func (b Bandwidth) MarshalYAML() (any, error) {
	if b == 0 {
		return 0, nil
	}
	return units.HumanSize(float64(b)), nil
}

func (b Bandwidth) String() string {
	if b == 0 {
		return "unlimited"
	}
	return units.HumanSize(float64(b)) + "/s"
}
