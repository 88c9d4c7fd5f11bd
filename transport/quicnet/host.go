package quicnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
)

// Application error codes carried in CONNECTION_CLOSE frames. Codes passed
// to Peer.Disconnect are sent as-is; these sit above the 32-bit range.
const (
	codePeerLimit quic.ApplicationErrorCode = 1 << 32
	codeShutdown  quic.ApplicationErrorCode = 1<<32 + 1
)

// Host is a QUIC endpoint bound to one UDP socket.
type Host struct {
	network *Network
	cfg     transport.HostConfig

	udp  *net.UDPConn
	tr   *quic.Transport
	ln   *quic.Listener
	addr *net.UDPAddr

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	events   chan transport.Event
	compress atomic.Bool
	closed   atomic.Bool
	in       *rate.Limiter
	out      *rate.Limiter

	mu    sync.Mutex
	peers map[*Peer]struct{}
}

var _ transport.Host = (*Host)(nil)

func newHost(n *Network, cfg transport.HostConfig) (*Host, error) {
	network, bind := bindAddress(cfg.Address)
	udp, err := net.ListenUDP(network, bind)
	if err != nil {
		return nil, fmt.Errorf("quicnet: bind %s: %w", bind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	h := &Host{
		network: n,
		cfg:     cfg,
		udp:     udp,
		tr:      &quic.Transport{Conn: udp},
		addr:    udp.LocalAddr().(*net.UDPAddr),
		ctx:     ctx,
		cancel:  cancel,
		group:   group,
		events:  make(chan transport.Event, n.opts.eventBacklog),
		in:      newLimiter(cfg.IncomingBandwidth),
		out:     newLimiter(cfg.OutgoingBandwidth),
		peers:   make(map[*Peer]struct{}),
	}

	if cfg.Address != nil {
		ln, err := h.tr.Listen(n.serverTLS, n.quicConfig())
		if err != nil {
			cancel()
			_ = h.tr.Close()
			_ = udp.Close()
			return nil, fmt.Errorf("quicnet: listen %s: %w", h.addr, err)
		}
		h.ln = ln
		group.Go(h.acceptLoop)
	}
	log.Debugw("quic host created", "addr", h.addr.String(), "listening", h.ln != nil)
	return h, nil
}

// newLimiter returns nil for unlimited bandwidth.
func newLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if burst < maxMessageSize+maxDatagramFrame {
		burst = maxMessageSize + maxDatagramFrame
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

func throttle(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil || n == 0 {
		return nil
	}
	return l.WaitN(ctx, n)
}

func (h *Host) acceptLoop() error {
	for {
		conn, err := h.ln.Accept(h.ctx)
		if err != nil {
			if h.ctx.Err() == nil {
				log.Warnw("quic accept failed", "addr", h.addr.String(), "err", err)
			}
			return nil
		}
		remote, _ := conn.RemoteAddr().(*net.UDPAddr)
		p := newPeer(h, remote, h.cfg.Channels)
		if err := h.attach(p); err != nil {
			_ = conn.CloseWithError(codePeerLimit, "peer limit reached")
			continue
		}
		p.start(conn)
	}
}

func (h *Host) attach(p *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
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

func (h *Host) snapshot() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, p)
	}
	return out
}

// emit queues an event; it blocks while the backlog is full so traffic is
// never silently dropped.
func (h *Host) emit(ev transport.Event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

func (h *Host) Connect(ctx context.Context, hostname string, port int, channels int) (transport.Peer, error) {
	if h.closed.Load() {
		return nil, transport.ErrHostClosed
	}
	if channels < 1 || channels > transport.MaxChannels {
		return nil, fmt.Errorf("quicnet: %w: %d", transport.ErrChannel, channels)
	}
	ip, err := h.network.resolver.resolve(ctx, hostname)
	if err != nil {
		return nil, err
	}

	p := newPeer(h, &net.UDPAddr{IP: ip, Port: port}, channels)
	if err := h.attach(p); err != nil {
		return nil, err
	}
	h.group.Go(func() error {
		p.dial()
		return nil
	})
	return p, nil
}

func (h *Host) Service(timeout time.Duration) (transport.Event, bool, error) {
	if h.closed.Load() {
		return transport.Event{}, false, transport.ErrHostClosed
	}
	select {
	case ev := <-h.events:
		return ev, true, nil
	default:
	}
	if timeout <= 0 {
		return transport.Event{}, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-h.events:
		return ev, true, nil
	case <-timer.C:
		return transport.Event{}, false, nil
	case <-h.ctx.Done():
		return transport.Event{}, false, transport.ErrHostClosed
	}
}

func (h *Host) Flush(ctx context.Context) error {
	if h.closed.Load() {
		return transport.ErrHostClosed
	}
	for _, p := range h.snapshot() {
		if err := p.flush(ctx); err != nil && !errors.Is(err, transport.ErrPeerClosed) {
			return err
		}
	}
	return nil
}

func (h *Host) Broadcast(channel uint8, packet transport.Packet) error {
	if h.closed.Load() {
		return transport.ErrHostClosed
	}
	if int(channel) >= h.cfg.Channels {
		return fmt.Errorf("quicnet: %w: %d", transport.ErrChannel, channel)
	}
	var err error
	for _, p := range h.snapshot() {
		if !p.isEstablished() {
			continue
		}
		if serr := p.Send(channel, packet); serr != nil && !errors.Is(serr, transport.ErrPeerClosed) {
			err = multierr.Append(err, serr)
		}
	}
	return err
}

func (h *Host) Address() *net.UDPAddr {
	return h.addr
}

func (h *Host) EnableCompression() error {
	if h.closed.Load() {
		return transport.ErrHostClosed
	}
	h.compress.Store(true)
	return nil
}

func (h *Host) Destroy() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, p := range h.snapshot() {
		p.close(codeShutdown, "host destroyed", true)
	}
	h.cancel()

	var err error
	if h.ln != nil {
		err = multierr.Append(err, ignoreClosed(h.ln.Close()))
	}
	err = multierr.Append(err, ignoreClosed(h.tr.Close()))
	err = multierr.Append(err, ignoreClosed(h.udp.Close()))
	_ = h.group.Wait()
	h.network.forget(h)
	log.Debugw("quic host destroyed", "addr", h.addr.String())
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
