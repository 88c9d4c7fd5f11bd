// Package quicnet carries the transport contract over QUIC. Every host owns
// one UDP socket shared by its listener and its dialer. Reliable channels map
// to QUIC streams, while unreliable and unsequenced channels map to QUIC
// datagrams.
package quicnet

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/relativeprotocol/peerbridge/transport"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultIdleTimeout      = 10 * time.Second
	defaultKeepAlive        = 2 * time.Second
	defaultResolverSize     = 128
	defaultResolverTTL      = time.Minute
	defaultEventBacklog     = 1024
	defaultSendQueue        = 256
)

// Option configures a Network.
type Option func(*options)

type options struct {
	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	keepAlive        time.Duration
	resolverSize     int
	resolverTTL      time.Duration
	eventBacklog     int
	sendQueue        int
	lookup           lookupFunc
}

// WithHandshakeTimeout bounds the QUIC handshake of outbound connections.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithIdleTimeout sets how long a silent connection survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithResolverCache sizes the hostname cache.
func WithResolverCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.resolverSize = size
		o.resolverTTL = ttl
	}
}

// WithEventBacklog sets how many undelivered events a host buffers before
// its connections stall.
func WithEventBacklog(n int) Option {
	return func(o *options) { o.eventBacklog = n }
}

// Network creates QUIC hosts sharing one TLS identity and resolver.
type Network struct {
	opts      options
	serverTLS *tls.Config
	clientTLS *tls.Config
	resolver  *resolver

	mu     sync.Mutex
	hosts  map[*Host]struct{}
	closed bool
}

var _ transport.Network = (*Network)(nil)

func New(opts ...Option) (*Network, error) {
	o := options{
		handshakeTimeout: defaultHandshakeTimeout,
		idleTimeout:      defaultIdleTimeout,
		keepAlive:        defaultKeepAlive,
		resolverSize:     defaultResolverSize,
		resolverTTL:      defaultResolverTTL,
		eventBacklog:     defaultEventBacklog,
		sendQueue:        defaultSendQueue,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolverSize < 1 {
		o.resolverSize = defaultResolverSize
	}
	if o.eventBacklog < 1 {
		o.eventBacklog = defaultEventBacklog
	}

	serverTLS, clientTLS, err := newTLSConfigs()
	if err != nil {
		return nil, fmt.Errorf("quicnet: %w", err)
	}
	return &Network{
		opts:      o,
		serverTLS: serverTLS,
		clientTLS: clientTLS,
		resolver:  newResolver(o.resolverSize, o.resolverTTL, o.lookup),
		hosts:     make(map[*Host]struct{}),
	}, nil
}

func (n *Network) quicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: n.opts.handshakeTimeout,
		MaxIdleTimeout:       n.opts.idleTimeout,
		KeepAlivePeriod:      n.opts.keepAlive,
		EnableDatagrams:      true,
		MaxIncomingStreams:   transport.MaxChannels + 1,
	}
}

func (n *Network) CreateHost(cfg transport.HostConfig) (transport.Host, error) {
	if cfg.Channels < 1 || cfg.Channels > transport.MaxChannels {
		return nil, fmt.Errorf("quicnet: %w: %d", transport.ErrChannel, cfg.Channels)
	}
	if cfg.PeerLimit < 1 {
		return nil, fmt.Errorf("quicnet: peer limit must be positive, got %d", cfg.PeerLimit)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, transport.ErrHostClosed
	}
	h, err := newHost(n, cfg)
	if err != nil {
		return nil, err
	}
	n.hosts[h] = struct{}{}
	return h, nil
}

func (n *Network) forget(h *Host) {
	n.mu.Lock()
	delete(n.hosts, h)
	n.mu.Unlock()
}

// Close destroys every host created by the network.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	hosts := make([]*Host, 0, len(n.hosts))
	for h := range n.hosts {
		hosts = append(hosts, h)
	}
	n.mu.Unlock()

	var err error
	for _, h := range hosts {
		err = multierr.Append(err, h.Destroy())
	}
	return err
}

func bindAddress(addr *net.UDPAddr) (string, *net.UDPAddr) {
	if addr == nil {
		return "udp4", &net.UDPAddr{IP: net.IPv4zero}
	}
	if addr.IP == nil || addr.IP.To4() != nil {
		return "udp4", addr
	}
	return "udp6", addr
}
