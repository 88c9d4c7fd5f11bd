// Package memnet is an in-process transport. Hosts find each other through a
// shared switchboard keyed by port, delivery is immediate and in order, and
// nothing touches a socket. Connecting to a port nobody listens on leaves the
// peer half-open forever, the way an unanswered handshake would.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/relativeprotocol/peerbridge/transport"
)

const firstEphemeralPort = 49152

var (
	errAddressInUse = errors.New("memnet: address in use")
	errUnresolvable = errors.New("memnet: hostname not resolvable")
	errNotConnected = errors.New("memnet: peer not connected")
)

// Network is a switchboard of in-memory hosts.
type Network struct {
	mu        sync.Mutex
	listeners map[int]*Host
	hosts     map[*Host]struct{}
	nextPort  int
	closed    bool
}

var _ transport.Network = (*Network)(nil)

func New() *Network {
	return &Network{
		listeners: make(map[int]*Host),
		hosts:     make(map[*Host]struct{}),
		nextPort:  firstEphemeralPort,
	}
}

func (n *Network) CreateHost(cfg transport.HostConfig) (transport.Host, error) {
	if cfg.Channels < 1 || cfg.Channels > transport.MaxChannels {
		return nil, fmt.Errorf("memnet: %w: %d", transport.ErrChannel, cfg.Channels)
	}
	if cfg.PeerLimit < 1 {
		return nil, fmt.Errorf("memnet: peer limit must be positive, got %d", cfg.PeerLimit)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, transport.ErrHostClosed
	}

	h := &Host{
		network: n,
		cfg:     cfg,
		notify:  make(chan struct{}, 1),
		peers:   make(map[*Peer]struct{}),
	}
	if cfg.Address != nil {
		port := cfg.Address.Port
		if port == 0 {
			port = n.allocPort()
		}
		if _, taken := n.listeners[port]; taken {
			return nil, fmt.Errorf("%w: port %d", errAddressInUse, port)
		}
		ip := cfg.Address.IP
		if ip == nil {
			ip = net.IPv4zero
		}
		h.addr = &net.UDPAddr{IP: ip, Port: port}
		h.listening = true
		n.listeners[port] = h
	} else {
		h.addr = &net.UDPAddr{IP: net.IPv4zero, Port: n.allocPort()}
	}
	n.hosts[h] = struct{}{}
	return h, nil
}

// Close destroys every host created by the network.
func (n *Network) Close() error {
	n.mu.Lock()
	n.closed = true
	hosts := make([]*Host, 0, len(n.hosts))
	for h := range n.hosts {
		hosts = append(hosts, h)
	}
	n.mu.Unlock()

	for _, h := range hosts {
		_ = h.Destroy()
	}
	return nil
}

func (n *Network) allocPort() int {
	for {
		port := n.nextPort
		n.nextPort++
		if n.nextPort > 65535 {
			n.nextPort = firstEphemeralPort
		}
		if _, taken := n.listeners[port]; !taken {
			return port
		}
	}
}

func (n *Network) listener(port int) *Host {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listeners[port]
}

func (n *Network) remove(h *Host) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.hosts, h)
	if h.listening && n.listeners[h.addr.Port] == h {
		delete(n.listeners, h.addr.Port)
	}
}

func resolve(hostname string) (net.IP, error) {
	switch hostname {
	case "", "localhost":
		return net.IPv4(127, 0, 0, 1), nil
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnresolvable, hostname)
}

// Host is an in-memory transport.Host.
type Host struct {
	network   *Network
	cfg       transport.HostConfig
	addr      *net.UDPAddr
	listening bool

	mu         sync.Mutex
	events     []transport.Event
	notify     chan struct{}
	peers      map[*Peer]struct{}
	compressed bool
	closed     bool
}

var _ transport.Host = (*Host)(nil)

func (h *Host) Connect(ctx context.Context, hostname string, port int, channels int) (transport.Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ip, err := resolve(hostname)
	if err != nil {
		return nil, err
	}
	if channels < 1 || channels > h.cfg.Channels {
		channels = h.cfg.Channels
	}

	local := newPeer(h, &net.UDPAddr{IP: ip, Port: port}, channels)
	if err := h.attach(local); err != nil {
		return nil, err
	}

	target := h.network.listener(port)
	if target == nil {
		return local, nil
	}
	remote := newPeer(target, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: h.addr.Port}, channels)
	if err := target.attach(remote); err != nil {
		local.shutdown(0, false)
		return local, nil
	}

	local.link(remote)
	remote.link(local)
	target.enqueue(transport.Event{Type: transport.EventConnect, Peer: remote})
	h.enqueue(transport.Event{Type: transport.EventConnect, Peer: local})
	return local, nil
}

func (h *Host) Service(timeout time.Duration) (transport.Event, bool, error) {
	var timer *time.Timer
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return transport.Event{}, false, transport.ErrHostClosed
		}
		if len(h.events) > 0 {
			ev := h.events[0]
			h.events[0] = transport.Event{}
			h.events = h.events[1:]
			h.mu.Unlock()
			return ev, true, nil
		}
		h.mu.Unlock()

		if timeout <= 0 {
			return transport.Event{}, false, nil
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
			defer timer.Stop()
		}
		select {
		case <-h.notify:
		case <-timer.C:
			return transport.Event{}, false, nil
		}
	}
}

// Flush is a no-op beyond the closed check: delivery is synchronous.
func (h *Host) Flush(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrHostClosed
	}
	return ctx.Err()
}

func (h *Host) Broadcast(channel uint8, packet transport.Packet) error {
	var lastErr error
	for _, p := range h.snapshotPeers() {
		if !p.isEstablished() {
			continue
		}
		if err := p.Send(channel, packet); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (h *Host) Address() *net.UDPAddr {
	return h.addr
}

func (h *Host) EnableCompression() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrHostClosed
	}
	h.compressed = true
	return nil
}

// Compressed reports whether EnableCompression was called.
func (h *Host) Compressed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compressed
}

// Peers returns the number of peers currently attached, established or not.
func (h *Host) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Host) Destroy() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.events = nil
	h.mu.Unlock()

	for _, p := range h.snapshotPeers() {
		p.shutdown(0, false)
	}
	h.network.remove(h)
	return nil
}

func (h *Host) attach(p *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrHostClosed
	}
	if len(h.peers) >= h.cfg.PeerLimit {
		return transport.ErrPeerLimit
	}
	h.peers[p] = struct{}{}
	return nil
}

func (h *Host) detach(p *Peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

func (h *Host) enqueue(ev transport.Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.events = append(h.events, ev)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Host) snapshotPeers() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, p)
	}
	return out
}

// Peer is an in-memory transport.Peer.
type Peer struct {
	host     *Host
	addr     *net.UDPAddr
	channels int

	established chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once

	mu     sync.Mutex
	remote *Peer
	sent   []transport.Flag
}

var _ transport.Peer = (*Peer)(nil)

func newPeer(h *Host, addr *net.UDPAddr, channels int) *Peer {
	return &Peer{
		host:        h,
		addr:        addr,
		channels:    channels,
		established: make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

func (p *Peer) link(remote *Peer) {
	p.mu.Lock()
	p.remote = remote
	p.mu.Unlock()
	close(p.established)
}

func (p *Peer) isEstablished() bool {
	select {
	case <-p.established:
	default:
		return false
	}
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

func (p *Peer) Send(channel uint8, packet transport.Packet) error {
	select {
	case <-p.closed:
		return transport.ErrPeerClosed
	default:
	}
	if int(channel) >= p.channels {
		return fmt.Errorf("%w: %d of %d", transport.ErrChannel, channel, p.channels)
	}

	p.mu.Lock()
	remote := p.remote
	if remote != nil {
		p.sent = append(p.sent, packet.Flag)
	}
	p.mu.Unlock()
	if remote == nil {
		return errNotConnected
	}

	remote.host.enqueue(transport.Event{
		Type:    transport.EventReceive,
		Peer:    remote,
		Channel: channel,
		Data:    append([]byte(nil), packet.Data...),
	})
	return nil
}

// SentFlags returns the delivery flags of every packet sent so far.
func (p *Peer) SentFlags() []transport.Flag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transport.Flag(nil), p.sent...)
}

func (p *Peer) Address() *net.UDPAddr {
	return p.addr
}

func (p *Peer) Established() <-chan struct{} {
	return p.established
}

func (p *Peer) Closed() <-chan struct{} {
	return p.closed
}

func (p *Peer) Disconnect(code uint32) {
	p.shutdown(code, true)
}

// Reset drops the peer silently on this side. The remote side is told at
// once instead of timing out.
func (p *Peer) Reset() {
	p.shutdown(0, false)
}

func (p *Peer) shutdown(code uint32, notifyLocal bool) {
	first := false
	p.closeOnce.Do(func() {
		first = true
		close(p.closed)
	})
	if !first {
		return
	}

	p.host.detach(p)
	p.mu.Lock()
	remote := p.remote
	p.remote = nil
	p.mu.Unlock()

	if notifyLocal && remote != nil {
		p.host.enqueue(transport.Event{Type: transport.EventDisconnect, Peer: p, Code: code})
	}
	if remote != nil {
		remote.closeByRemote(code)
	}
}

func (p *Peer) closeByRemote(code uint32) {
	first := false
	p.closeOnce.Do(func() {
		first = true
		close(p.closed)
	})
	if !first {
		return
	}
	p.host.detach(p)
	p.mu.Lock()
	p.remote = nil
	p.mu.Unlock()
	p.host.enqueue(transport.Event{Type: transport.EventDisconnect, Peer: p, Code: code})
}
