package quicnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"go.uber.org/atomic"

	"github.com/relativeprotocol/peerbridge/buffer"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
)

var errSendQueueFull = errors.New("quicnet: send queue full")

// frameOverhead covers the channel, flags and varint fields of either frame.
const frameOverhead = 2 + 2*9

type outbound struct {
	channel uint8
	flag    transport.Flag
	data    buffer.Bytes
	// done marks a flush barrier instead of a packet.
	done chan struct{}
}

// Peer is one QUIC connection. Packets are queued by Send and written by a
// single writer goroutine, so per-channel order follows call order.
type Peer struct {
	host     *Host
	addr     *net.UDPAddr
	channels int

	ctx    context.Context
	cancel context.CancelFunc

	established chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	connected   atomic.Bool
	silent      atomic.Bool

	mu   sync.Mutex
	conn *quic.Conn

	sendq chan outbound

	// Owned by the writer goroutine.
	streams map[uint8]*quic.Stream
	seqOut  [transport.MaxChannels]uint32

	// Owned by the datagram reader goroutine.
	seqIn  [transport.MaxChannels]uint32
	seenIn [transport.MaxChannels]bool
}

var _ transport.Peer = (*Peer)(nil)

func newPeer(h *Host, addr *net.UDPAddr, channels int) *Peer {
	ctx, cancel := context.WithCancel(h.ctx)
	return &Peer{
		host:        h,
		addr:        addr,
		channels:    channels,
		ctx:         ctx,
		cancel:      cancel,
		established: make(chan struct{}),
		closed:      make(chan struct{}),
		sendq:       make(chan outbound, h.network.opts.sendQueue),
		streams:     make(map[uint8]*quic.Stream),
	}
}

func (p *Peer) Address() *net.UDPAddr         { return p.addr }
func (p *Peer) Established() <-chan struct{} { return p.established }
func (p *Peer) Closed() <-chan struct{}      { return p.closed }

func (p *Peer) isEstablished() bool {
	select {
	case <-p.closed:
		return false
	default:
		return p.connected.Load()
	}
}

func (p *Peer) Send(channel uint8, packet transport.Packet) error {
	if int(channel) >= p.channels {
		return fmt.Errorf("quicnet: %w: %d", transport.ErrChannel, channel)
	}
	if len(packet.Data) > maxMessageSize {
		return errFrameTooLarge
	}
	select {
	case <-p.closed:
		return transport.ErrPeerClosed
	default:
	}

	ob := outbound{channel: channel, flag: packet.Flag, data: buffer.Clone(packet.Data)}
	select {
	case p.sendq <- ob:
		return nil
	case <-p.closed:
		ob.data.Release()
		return transport.ErrPeerClosed
	default:
		ob.data.Release()
		return errSendQueueFull
	}
}

func (p *Peer) Disconnect(code uint32) {
	p.terminate(quic.ApplicationErrorCode(code), "disconnect", true)
}

func (p *Peer) Reset() {
	p.silent.Store(true)
	p.terminate(0, "reset", false)
}

// close tears the peer down without a local event.
func (p *Peer) close(code quic.ApplicationErrorCode, reason string, silent bool) {
	if silent {
		p.silent.Store(true)
	}
	p.terminate(code, reason, false)
}

// terminate runs once. It closes the connection with code and, unless the
// peer was silenced or never connected, queues a Disconnect event. async
// moves the event off the caller's goroutine.
func (p *Peer) terminate(code quic.ApplicationErrorCode, reason string, async bool) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.closed)
		conn := p.conn
		p.mu.Unlock()

		p.cancel()
		if conn != nil {
			_ = conn.CloseWithError(code, reason)
		}
		p.host.detach(p)

		if !p.connected.Load() || p.silent.Load() || p.host.closed.Load() {
			return
		}
		ev := transport.Event{Type: transport.EventDisconnect, Peer: p, Code: publicCode(code)}
		if !async {
			p.host.emit(ev)
			return
		}
		p.host.group.Go(func() error {
			p.host.emit(ev)
			return nil
		})
	})
}

// publicCode hides the internal close codes from event consumers.
func publicCode(code quic.ApplicationErrorCode) uint32 {
	if code > 0xFFFFFFFF {
		return 0
	}
	return uint32(code)
}

func (p *Peer) dial() {
	conn, err := p.host.tr.Dial(p.ctx, p.addr, p.host.network.clientTLS, p.host.network.quicConfig())
	if err != nil {
		if p.ctx.Err() == nil {
			log.Debugw("quic dial failed", "addr", p.addr.String(), "err", err)
		}
		p.close(0, "", true)
		return
	}
	p.start(conn)
}

// start adopts an established connection and launches the peer's loops.
func (p *Peer) start(conn *quic.Conn) {
	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		_ = conn.CloseWithError(0, "reset")
		return
	default:
	}
	p.conn = conn
	p.connected.Store(true)
	p.mu.Unlock()

	close(p.established)
	p.host.emit(transport.Event{Type: transport.EventConnect, Peer: p})

	g := p.host.group
	g.Go(func() error { return p.writeLoop(conn) })
	g.Go(func() error { return p.acceptStreams(conn) })
	g.Go(func() error { return p.readDatagrams(conn) })
	g.Go(func() error { return p.watch(conn) })
}

func (p *Peer) watch(conn *quic.Conn) error {
	select {
	case <-conn.Context().Done():
	case <-p.ctx.Done():
		return nil
	}
	var code quic.ApplicationErrorCode
	var appErr *quic.ApplicationError
	if errors.As(context.Cause(conn.Context()), &appErr) && appErr.Remote {
		code = appErr.ErrorCode
	}
	p.terminate(code, "", false)
	return nil
}

func (p *Peer) flush(ctx context.Context) error {
	if !p.isEstablished() {
		return nil
	}
	done := make(chan struct{})
	select {
	case p.sendq <- outbound{done: done}:
	case <-p.closed:
		return transport.ErrPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-p.closed:
		return transport.ErrPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) writeLoop(conn *quic.Conn) error {
	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return nil
		case ob := <-p.sendq:
			if ob.done != nil {
				close(ob.done)
				continue
			}
			err := p.write(conn, ob)
			ob.data.Release()
			if err != nil && p.ctx.Err() == nil {
				log.Debugw("quic write failed", "addr", p.addr.String(), "channel", ob.channel, "err", err)
			}
		}
	}
}

func (p *Peer) drain() {
	for {
		select {
		case ob := <-p.sendq:
			ob.data.Release()
		default:
			return
		}
	}
}

func (p *Peer) write(conn *quic.Conn, ob outbound) error {
	flags, body := encodePayload(ob.data.Bytes(), p.host.compress.Load())
	if err := throttle(p.ctx, p.host.out, len(body)); err != nil {
		return err
	}

	scratch := buffer.Get(len(body) + frameOverhead)
	defer func() { _ = buffer.Put(scratch) }()

	if ob.flag.Datagram() {
		dflags := flags
		var seq uint32
		if ob.flag == transport.FlagUnsequenced {
			dflags |= flagUnsequenced
		} else {
			p.seqOut[ob.channel]++
			seq = p.seqOut[ob.channel]
			dflags |= flagSequenced
		}
		frame := appendDatagram(scratch[:0], ob.channel, dflags, seq, body)
		if len(frame) <= maxDatagramFrame {
			if err := conn.SendDatagram(frame); err == nil {
				return nil
			}
		}
	}

	s, err := p.stream(conn, ob.channel)
	if err != nil {
		return err
	}
	_, err = s.Write(appendStreamFrame(scratch[:0], flags, body))
	return err
}

func (p *Peer) stream(conn *quic.Conn, channel uint8) (*quic.Stream, error) {
	if s, ok := p.streams[channel]; ok {
		return s, nil
	}
	s, err := conn.OpenStreamSync(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: open stream: %w", err)
	}
	if _, err := s.Write([]byte{channel}); err != nil {
		s.CancelWrite(0)
		return nil, fmt.Errorf("quicnet: stream header: %w", err)
	}
	p.streams[channel] = s
	return s, nil
}

func (p *Peer) acceptStreams(conn *quic.Conn) error {
	for {
		s, err := conn.AcceptStream(p.ctx)
		if err != nil {
			return nil
		}
		p.host.group.Go(func() error {
			p.readStream(s)
			return nil
		})
	}
}

func (p *Peer) readStream(s *quic.Stream) {
	br := bufio.NewReader(s)
	channel, err := br.ReadByte()
	if err != nil || int(channel) >= p.channels {
		s.CancelRead(0)
		return
	}
	for {
		flags, body, err := readStreamFrame(br)
		if err != nil {
			return
		}
		p.deliver(channel, flags, body)
	}
}

func (p *Peer) readDatagrams(conn *quic.Conn) error {
	for {
		b, err := conn.ReceiveDatagram(p.ctx)
		if err != nil {
			return nil
		}
		channel, flags, seq, body, err := parseDatagram(b)
		if err != nil || int(channel) >= p.channels {
			continue
		}
		if flags&flagSequenced != 0 {
			if p.seenIn[channel] && !newer(seq, p.seqIn[channel]) {
				continue
			}
			p.seenIn[channel] = true
			p.seqIn[channel] = seq
		}
		p.deliver(channel, flags, body)
	}
}

func (p *Peer) deliver(channel uint8, flags byte, body []byte) {
	if err := throttle(p.ctx, p.host.in, len(body)); err != nil {
		return
	}
	data, err := decodePayload(flags, body)
	if err != nil {
		log.Debugw("quic frame dropped", "addr", p.addr.String(), "channel", channel, "err", err)
		return
	}
	p.host.emit(transport.Event{Type: transport.EventReceive, Peer: p, Channel: channel, Data: data})
}
