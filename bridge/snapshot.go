package bridge

import (
	"time"

	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/transport"
)

// HostInfo describes a live host for diagnostics.
type HostInfo struct {
	ID        handle.ID `json:"id"`
	Role      string    `json:"role"`
	Address   string    `json:"address"`
	Port      int       `json:"port"`
	Channels  int       `json:"channels"`
	PeerLimit int       `json:"peer_limit"`
	Peers     int       `json:"peers"`
	Created   time.Time `json:"created"`
}

type PeerInfo struct {
	ID          handle.ID `json:"id"`
	HostID      handle.ID `json:"host_id"`
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	Inbound     bool      `json:"inbound"`
	Established bool      `json:"established"`
	Created     time.Time `json:"created"`
}

type ConnectInfo struct {
	ID      handle.ID `json:"id"`
	Trace   string    `json:"trace"`
	HostID  handle.ID `json:"host_id"`
	Target  string    `json:"target"`
	Status  string    `json:"status"`
	PeerID  handle.ID `json:"peer_id,omitempty"`
	Error   string    `json:"error,omitempty"`
	Started time.Time `json:"started"`
}

// Hosts lists live hosts in ID slot order.
func (b *Bridge) Hosts() []HostInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[handle.ID]int)
	b.peers.Range(func(_ handle.ID, e *peerEntry) bool {
		counts[e.hostID]++
		return true
	})
	var out []HostInfo
	b.hosts.Range(func(id handle.ID, e *hostEntry) bool {
		info := HostInfo{
			ID:        id,
			Role:      e.role.String(),
			Channels:  e.channels,
			PeerLimit: e.peerLimit,
			Peers:     counts[id],
			Created:   e.created,
		}
		if addr := e.host.Address(); addr != nil {
			info.Address, info.Port = addr.IP.String(), addr.Port
		}
		out = append(out, info)
		return true
	})
	return out
}

func (b *Bridge) Peers() []PeerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []PeerInfo
	b.peers.Range(func(id handle.ID, e *peerEntry) bool {
		info := PeerInfo{
			ID:          id,
			HostID:      e.hostID,
			Inbound:     e.inbound,
			Established: established(e.peer),
			Created:     e.created,
		}
		if addr := e.peer.Address(); addr != nil {
			info.Address, info.Port = addr.IP.String(), addr.Port
		}
		out = append(out, info)
		return true
	})
	return out
}

// Connects lists tracked connect operations without consuming their status.
func (b *Bridge) Connects() []ConnectInfo {
	var out []ConnectInfo
	b.connects.Range(func(id handle.ID, op *connectOp) bool {
		info := ConnectInfo{
			ID:      id,
			Trace:   op.trace.String(),
			HostID:  op.hostID,
			Target:  op.target(),
			Status:  ConnectStatus(op.status.Load()).String(),
			PeerID:  handle.ID(op.peerID.Load()),
			Started: op.started,
		}
		if err := op.err.Load(); err != nil {
			info.Error = err.Error()
		}
		out = append(out, info)
		return true
	})
	return out
}

// EventID maps a sequence number back to the ring slot it was pushed into.
func (b *Bridge) EventID(seq uint64) int {
	if seq == 0 {
		return 0
	}
	return int((seq-1)%uint64(b.events.Cap())) + 1
}

func established(p transport.Peer) bool {
	select {
	case <-p.Closed():
		return false
	default:
	}
	select {
	case <-p.Established():
		return true
	default:
		return false
	}
}
