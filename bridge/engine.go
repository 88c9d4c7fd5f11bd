//  engine.go
//  RelativeProtocol PeerBridge
//
//  Copyright (c) 2025 Relative Companies, Inc.
//  Personal, non-commercial use only.
//
//  Gives transport hosts, peers and events stable integer identities so a
//  runtime that can only hold integers and strings can drive the transport.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/ring"
	"github.com/relativeprotocol/peerbridge/transport"
)

// Role records how a host was created.
type Role int

const (
	RoleServer Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "unknown"
}

type hostEntry struct {
	host      transport.Host
	role      Role
	channels  int
	peerLimit int
	created   time.Time
}

type peerEntry struct {
	peer    transport.Peer
	hostID  handle.ID
	inbound bool
	created time.Time
}

// Event is one staged transport event. It stays readable until its ring
// slot is overwritten.
type Event struct {
	Type    transport.EventType
	HostID  handle.ID
	PeerID  handle.ID
	Peer    transport.Peer
	Channel uint8
	Data    []byte
	Code    uint32
	Time    time.Time
	// Seq is the 1-based push count of the event; zero for an empty slot.
	Seq uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock replaces the wall clock used for connect timeouts.
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithRegistry registers the bridge metrics on reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(b *Bridge) { b.registry = reg }
}

// Bridge owns the host table, the peer table, the event ring and the
// connect operations. All methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	network  transport.Network
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// mu serializes compound mutations spanning the tables, the reverse
	// peer index and the ring. It is never held while waiting on the
	// transport.
	mu       sync.Mutex
	hosts    *handle.Table[*hostEntry]
	peers    *handle.Table[*peerEntry]
	peerIDs  map[transport.Peer]handle.ID
	events   *ring.Ring[Event]
	connects *handle.Table[*connectOp]
	latest   atomic.Int64
}

// New constructs a bridge over network. A nil cfg uses DefaultConfig.
func New(network transport.Network, cfg *Config, opts ...Option) (*Bridge, error) {
	if network == nil {
		return nil, errors.New("transport network is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	copyCfg := *cfg
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:      copyCfg,
		network:  network,
		clock:    clock.New(),
		ctx:      ctx,
		cancel:   cancel,
		hosts:    handle.New[*hostEntry](copyCfg.MaxHosts),
		peers:    handle.New[*peerEntry](copyCfg.MaxPeers),
		peerIDs:  make(map[transport.Peer]handle.ID),
		events:   ring.New[Event](copyCfg.MaxEvents),
		connects: handle.New[*connectOp](copyCfg.MaxPendingConnects),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(b.registry, b)
	if err != nil {
		cancel()
		return nil, err
	}
	b.metrics = m
	return b, nil
}

// Config returns a copy of the active configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Registry exposes the bridge metrics.
func (b *Bridge) Registry() *prometheus.Registry {
	return b.registry
}

// Close cancels pending connects, waits for them and destroys every host.
func (b *Bridge) Close() error {
	b.mu.Lock()
	first := b.closed.CompareAndSwap(false, true)
	b.mu.Unlock()
	if !first {
		return nil
	}
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	var entries []*hostEntry
	var ids []handle.ID
	b.hosts.Range(func(id handle.ID, e *hostEntry) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if e, err := b.hosts.Release(id); err == nil {
			entries = append(entries, e)
		}
		b.releasePeersLocked(id)
	}
	b.mu.Unlock()

	var err error
	for _, e := range entries {
		err = multierr.Append(err, e.host.Destroy())
	}
	log.Infow("bridge closed", "hosts", len(entries))
	return err
}

func (b *Bridge) checkOpen() error {
	if b.closed.Load() {
		return ErrNotInitialized
	}
	return nil
}

// CreateServer binds a host on port accepting up to maxClients peers. A
// channels value of zero uses the configured default.
func (b *Bridge) CreateServer(port, maxClients, channels int) (handle.ID, error) {
	if port < 0 || port > 65535 {
		return handle.Invalid, fmt.Errorf("%w: port %d", ErrInvalidArgument, port)
	}
	if maxClients < 1 {
		return handle.Invalid, fmt.Errorf("%w: max clients %d", ErrInvalidArgument, maxClients)
	}
	return b.createHost(RoleServer, transport.HostConfig{
		Address:   &net.UDPAddr{IP: net.IPv4zero, Port: port},
		PeerLimit: maxClients,
	}, channels)
}

// CreateClient creates an unbound host with room for one outbound peer.
func (b *Bridge) CreateClient(channels int) (handle.ID, error) {
	return b.createHost(RoleClient, transport.HostConfig{PeerLimit: 1}, channels)
}

func (b *Bridge) createHost(role Role, hc transport.HostConfig, channels int) (handle.ID, error) {
	if err := b.checkOpen(); err != nil {
		return handle.Invalid, err
	}
	if channels == 0 {
		channels = b.cfg.Channels
	}
	if channels < 1 || channels > transport.MaxChannels {
		return handle.Invalid, fmt.Errorf("%w: channels %d", ErrInvalidArgument, channels)
	}
	if b.hosts.Len() >= b.hosts.Cap() {
		return handle.Invalid, fmt.Errorf("create %s: %w", role, ErrFull)
	}

	hc.Channels = channels
	hc.IncomingBandwidth = int64(b.cfg.IncomingBandwidth)
	hc.OutgoingBandwidth = int64(b.cfg.OutgoingBandwidth)
	host, err := b.network.CreateHost(hc)
	if err != nil {
		return handle.Invalid, fmt.Errorf("create %s: %w: %w", role, ErrTransportRejected, err)
	}

	b.mu.Lock()
	id, err := b.hosts.Register(&hostEntry{
		host:      host,
		role:      role,
		channels:  channels,
		peerLimit: hc.PeerLimit,
		created:   b.clock.Now(),
	})
	b.mu.Unlock()
	if err != nil {
		_ = host.Destroy()
		return handle.Invalid, fmt.Errorf("create %s: %w", role, err)
	}
	log.Debugw("host created", "host", id, "role", role.String(), "addr", host.Address().String(), "channels", channels)
	return id, nil
}

func (b *Bridge) host(id handle.ID) (*hostEntry, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	e, err := b.hosts.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("host %d: %w", id, err)
	}
	return e, nil
}

// DestroyHost destroys the host and releases its ID together with the IDs
// of all of its peers.
func (b *Bridge) DestroyHost(id handle.ID) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	b.mu.Lock()
	e, err := b.hosts.Release(id)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("host %d: %w", id, err)
	}
	released := b.releasePeersLocked(id)
	b.mu.Unlock()

	log.Debugw("host destroyed", "host", id, "peers", released)
	if err := e.host.Destroy(); err != nil {
		return fmt.Errorf("destroy host %d: %w", id, err)
	}
	return nil
}

// releasePeersLocked drops every peer registered under hostID.
func (b *Bridge) releasePeersLocked(hostID handle.ID) int {
	var ids []handle.ID
	b.peers.Range(func(id handle.ID, e *peerEntry) bool {
		if e.hostID == hostID {
			ids = append(ids, id)
		}
		return true
	})
	for _, id := range ids {
		if e, err := b.peers.Release(id); err == nil {
			delete(b.peerIDs, e.peer)
		}
	}
	return len(ids)
}

// registerPeer returns the existing ID of peer or registers it.
func (b *Bridge) registerPeer(hostID handle.ID, peer transport.Peer, inbound bool) (handle.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerPeerLocked(hostID, peer, inbound)
}

func (b *Bridge) registerPeerLocked(hostID handle.ID, peer transport.Peer, inbound bool) (handle.ID, error) {
	if id, ok := b.peerIDs[peer]; ok {
		if !inbound {
			if e, err := b.peers.Lookup(id); err == nil {
				e.inbound = false
			}
		}
		return id, nil
	}
	if !b.hosts.Contains(hostID) {
		return handle.Invalid, fmt.Errorf("host %d: %w", hostID, ErrNotFound)
	}
	id, err := b.peers.Register(&peerEntry{
		peer:    peer,
		hostID:  hostID,
		inbound: inbound,
		created: b.clock.Now(),
	})
	if err != nil {
		return handle.Invalid, fmt.Errorf("register peer: %w", err)
	}
	b.peerIDs[peer] = id
	return id, nil
}

// Service drains at most one pending event from the host into the ring and
// returns its ID, or zero when nothing is pending.
func (b *Bridge) Service(hostID handle.ID) (int, error) {
	e, err := b.host(hostID)
	if err != nil {
		return 0, err
	}
	ev, ok, err := e.host.Service(0)
	if err != nil {
		return 0, fmt.Errorf("service host %d: %w: %w", hostID, ErrTransportRejected, err)
	}
	if !ok {
		return 0, nil
	}

	rec := Event{
		Type:    ev.Type,
		HostID:  hostID,
		Peer:    ev.Peer,
		Channel: ev.Channel,
		Data:    ev.Data,
		Code:    ev.Code,
		Time:    b.clock.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Type {
	case transport.EventConnect:
		id, err := b.registerPeerLocked(hostID, ev.Peer, e.role == RoleServer)
		if err != nil {
			log.Warnw("peer not registered", "host", hostID, "addr", peerAddr(ev.Peer), "err", err)
		}
		rec.PeerID = id
	default:
		rec.PeerID = b.peerIDs[ev.Peer]
	}

	rec.Seq = b.events.Pushed() + 1
	eventID, seq := b.events.Push(rec)
	b.metrics.events.WithLabelValues(ev.Type.String()).Inc()

	if ev.Type == transport.EventDisconnect && rec.PeerID != handle.Invalid {
		if _, err := b.peers.Release(rec.PeerID); err == nil {
			delete(b.peerIDs, ev.Peer)
		}
	}
	log.Debugw("event staged", "host", hostID, "event", eventID, "seq", seq, "type", ev.Type.String(), "peer", rec.PeerID)
	return eventID, nil
}

// Flush blocks until queued packets of the host reached the network.
func (b *Bridge) Flush(ctx context.Context, hostID handle.ID) error {
	e, err := b.host(hostID)
	if err != nil {
		return err
	}
	if err := e.host.Flush(ctx); err != nil {
		return fmt.Errorf("flush host %d: %w", hostID, err)
	}
	return nil
}

// Event returns the event currently held by the ring slot. An empty slot
// yields an EventNone record.
func (b *Bridge) Event(eventID int) (Event, error) {
	if err := b.checkOpen(); err != nil {
		return Event{}, err
	}
	rec, seq, ok := b.events.Entry(eventID)
	if !ok {
		return Event{}, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	rec.Seq = seq
	return rec, nil
}

// RecentEvents returns up to n staged events, newest first.
func (b *Bridge) RecentEvents(n int) []Event {
	return b.events.Recent(n)
}

// EventPeerSend sends to the peer referenced by an event, registered or not.
func (b *Bridge) EventPeerSend(eventID int, channel uint8, data []byte, flag transport.Flag) error {
	rec, err := b.Event(eventID)
	if err != nil {
		return err
	}
	if rec.Peer == nil {
		return fmt.Errorf("event %d has no peer: %w", eventID, ErrNotFound)
	}
	return sendErr(rec.Peer.Send(channel, transport.Packet{Data: data, Flag: flag}))
}

func (b *Bridge) peer(id handle.ID) (*peerEntry, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	e, err := b.peers.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("peer %d: %w", id, err)
	}
	return e, nil
}

func (b *Bridge) PeerSend(peerID handle.ID, channel uint8, data []byte, flag transport.Flag) error {
	e, err := b.peer(peerID)
	if err != nil {
		return err
	}
	return sendErr(e.peer.Send(channel, transport.Packet{Data: data, Flag: flag}))
}

// PeerAddress returns the remote address of a registered peer.
func (b *Bridge) PeerAddress(peerID handle.ID) (*net.UDPAddr, error) {
	e, err := b.peer(peerID)
	if err != nil {
		return nil, err
	}
	return e.peer.Address(), nil
}

// PeerDisconnect starts a graceful disconnect. The peer keeps its ID until
// the resulting Disconnect event is serviced.
func (b *Bridge) PeerDisconnect(peerID handle.ID, code uint32) error {
	e, err := b.peer(peerID)
	if err != nil {
		return err
	}
	e.peer.Disconnect(code)
	return nil
}

// PeerReset drops the connection and releases the peer ID immediately; no
// local Disconnect event follows.
func (b *Bridge) PeerReset(peerID handle.ID) error {
	b.mu.Lock()
	e, err := b.peers.Release(peerID)
	if err == nil {
		delete(b.peerIDs, e.peer)
	}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("peer %d: %w", peerID, err)
	}
	e.peer.Reset()
	return nil
}

func (b *Bridge) Broadcast(hostID handle.ID, channel uint8, data []byte, flag transport.Flag) error {
	e, err := b.host(hostID)
	if err != nil {
		return err
	}
	return sendErr(e.host.Broadcast(channel, transport.Packet{Data: data, Flag: flag}))
}

func (b *Bridge) HostAddress(hostID handle.ID) (*net.UDPAddr, error) {
	e, err := b.host(hostID)
	if err != nil {
		return nil, err
	}
	return e.host.Address(), nil
}

func (b *Bridge) EnableCompression(hostID handle.ID) error {
	e, err := b.host(hostID)
	if err != nil {
		return err
	}
	if err := e.host.EnableCompression(); err != nil {
		return fmt.Errorf("compress host %d: %w: %w", hostID, ErrTransportRejected, err)
	}
	return nil
}

func sendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrChannel):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, transport.ErrPeerClosed), errors.Is(err, transport.ErrHostClosed):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportRejected, err)
}

func peerAddr(p transport.Peer) string {
	if p == nil || p.Address() == nil {
		return ""
	}
	return p.Address().String()
}
