package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/log"
)

// ConnectStatus is the polled state of an async connect.
type ConnectStatus int32

const (
	ConnectUninitialized ConnectStatus = iota
	ConnectStarted
	ConnectFailed
	ConnectSucceeded
)

func (s ConnectStatus) String() string {
	switch s {
	case ConnectUninitialized:
		return "uninitialized"
	case ConnectStarted:
		return "started"
	case ConnectFailed:
		return "failed"
	case ConnectSucceeded:
		return "succeeded"
	}
	return "undefined"
}

type connectOp struct {
	trace    uuid.UUID
	hostID   handle.ID
	hostname string
	port     int
	started  time.Time

	status atomic.Int32
	peerID atomic.Int64
	err    atomic.Error
	done   chan struct{}
}

func (op *connectOp) finished() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

func (op *connectOp) target() string {
	return net.JoinHostPort(op.hostname, strconv.Itoa(op.port))
}

// evictable reports whether op holds nothing left to hand out: it failed,
// or its peer ID was already taken.
func (op *connectOp) evictable() bool {
	if !op.finished() {
		return false
	}
	switch ConnectStatus(op.status.Load()) {
	case ConnectFailed:
		return true
	case ConnectUninitialized, ConnectSucceeded:
		return op.peerID.Load() == 0
	}
	return false
}

// Connect connects hostID to hostname:port and blocks until the handshake
// completes or the connect timeout elapses. On failure the half-open peer
// is reset.
func (b *Bridge) Connect(ctx context.Context, hostID handle.ID, hostname string, port int) (handle.ID, error) {
	if err := b.checkOpen(); err != nil {
		return handle.Invalid, err
	}
	id, err := b.dial(ctx, hostID, hostname, port)
	b.metrics.observeConnect("sync", err)
	return id, err
}

func (b *Bridge) dial(ctx context.Context, hostID handle.ID, hostname string, port int) (handle.ID, error) {
	e, err := b.host(hostID)
	if err != nil {
		return handle.Invalid, err
	}
	if port < 1 || port > 65535 {
		return handle.Invalid, fmt.Errorf("%w: port %d", ErrInvalidArgument, port)
	}
	if b.peers.Len() >= b.peers.Cap() {
		return handle.Invalid, fmt.Errorf("connect: peer table: %w", ErrFull)
	}

	peer, err := e.host.Connect(ctx, hostname, port, e.channels)
	if err != nil {
		return handle.Invalid, fmt.Errorf("connect %s:%d: %w: %w", hostname, port, ErrTransportRejected, err)
	}

	timer := b.clock.Timer(b.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-peer.Established():
	case <-peer.Closed():
		peer.Reset()
		return handle.Invalid, fmt.Errorf("connect %s:%d: %w: peer closed during handshake", hostname, port, ErrTransportRejected)
	case <-timer.C:
		peer.Reset()
		return handle.Invalid, fmt.Errorf("connect %s:%d after %s: %w", hostname, port, b.cfg.ConnectTimeout, ErrTimeout)
	case <-ctx.Done():
		peer.Reset()
		return handle.Invalid, fmt.Errorf("connect %s:%d: %w", hostname, port, context.Cause(ctx))
	}

	id, err := b.registerPeer(hostID, peer, false)
	if err != nil {
		peer.Reset()
		return handle.Invalid, err
	}
	log.Debugw("peer connected", "host", hostID, "peer", id, "addr", peerAddr(peer))
	return id, nil
}

// ConnectAsync starts a connect on a background goroutine and returns the
// ID of the operation tracking it. Host validation happens on the
// goroutine, so a bad host ID surfaces as ConnectFailed.
func (b *Bridge) ConnectAsync(hostID handle.ID, hostname string, port int) (handle.ID, error) {
	op := &connectOp{
		trace:    uuid.New(),
		hostID:   hostID,
		hostname: hostname,
		port:     port,
		started:  b.clock.Now(),
		done:     make(chan struct{}),
	}
	op.status.Store(int32(ConnectStarted))

	// The closed check and wg.Add share b.mu with Close so no goroutine is
	// added once Close has started waiting.
	b.mu.Lock()
	if err := b.checkOpen(); err != nil {
		b.mu.Unlock()
		return handle.Invalid, err
	}
	opID, err := b.registerConnectLocked(op)
	if err != nil {
		b.mu.Unlock()
		return handle.Invalid, err
	}
	b.latest.Store(int64(opID))
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer close(op.done)

		peerID, err := b.dial(b.ctx, hostID, hostname, port)
		b.metrics.observeConnect("async", err)
		if err != nil {
			op.err.Store(err)
			op.status.Store(int32(ConnectFailed))
			log.Debugw("async connect failed", "op", opID, "trace", op.trace.String(), "err", err)
			return
		}
		op.peerID.Store(int64(peerID))
		op.status.Store(int32(ConnectSucceeded))
		log.Debugw("async connect succeeded", "op", opID, "trace", op.trace.String(), "peer", peerID)
	}()
	return opID, nil
}

// registerConnectLocked evicts the oldest fully consumed operation when the
// table is full. b.mu must be held.
func (b *Bridge) registerConnectLocked(op *connectOp) (handle.ID, error) {
	id, err := b.connects.Register(op)
	if !errors.Is(err, handle.ErrFull) {
		return id, err
	}

	victim := handle.Invalid
	var oldest time.Time
	b.connects.Range(func(id handle.ID, o *connectOp) bool {
		if o.evictable() && (victim == handle.Invalid || o.started.Before(oldest)) {
			victim, oldest = id, o.started
		}
		return true
	})
	if victim == handle.Invalid {
		return handle.Invalid, fmt.Errorf("connect operations: %w", ErrFull)
	}
	if _, err := b.connects.Release(victim); err != nil {
		return handle.Invalid, err
	}
	return b.connects.Register(op)
}

// PollConnect returns the status of an operation. Succeeded is reported
// exactly once; the poll that sees it resets the status to Uninitialized.
// Unknown IDs report Uninitialized.
func (b *Bridge) PollConnect(opID handle.ID) ConnectStatus {
	op, err := b.connects.Lookup(opID)
	if err != nil {
		return ConnectUninitialized
	}
	if op.status.CompareAndSwap(int32(ConnectSucceeded), int32(ConnectUninitialized)) {
		return ConnectSucceeded
	}
	return ConnectStatus(op.status.Load())
}

// TakeConnectPeer returns the peer ID of a succeeded operation once and
// then releases the operation. A failed operation is released and yields
// Invalid; a running one yields Invalid and is kept.
func (b *Bridge) TakeConnectPeer(opID handle.ID) handle.ID {
	op, err := b.connects.Lookup(opID)
	if err != nil || !op.finished() {
		return handle.Invalid
	}
	peerID := handle.ID(op.peerID.Swap(0))

	b.mu.Lock()
	_, _ = b.connects.Release(opID)
	b.mu.Unlock()
	return peerID
}

// ConnectError returns why an operation failed, if it did.
func (b *Bridge) ConnectError(opID handle.ID) error {
	op, err := b.connects.Lookup(opID)
	if err != nil {
		return err
	}
	return op.err.Load()
}

// LatestConnect is the most recently started operation, backing the
// legacy single-slot poll and take calls.
func (b *Bridge) LatestConnect() handle.ID {
	return handle.ID(b.latest.Load())
}

// WaitConnect blocks until the operation finished or ctx is done.
func (b *Bridge) WaitConnect(ctx context.Context, opID handle.ID) error {
	op, err := b.connects.Lookup(opID)
	if err != nil {
		return err
	}
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
