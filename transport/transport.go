// Package transport describes the reliable-UDP collaborator the bridge drives:
// hosts that own a socket, peers that represent one connection, and the
// events a host surfaces when it is serviced.
package transport

//go:generate mockgen -destination=mock/transport.go -package=mock . Network,Host,Peer

import (
	"context"
	"errors"
	"net"
	"time"
)

var (
	// ErrHostClosed is returned by operations on a destroyed host.
	ErrHostClosed = errors.New("transport: host closed")
	// ErrPeerLimit is returned when a host has no room for another peer.
	ErrPeerLimit = errors.New("transport: peer limit reached")
	// ErrPeerClosed is returned when sending to a disconnected or reset peer.
	ErrPeerClosed = errors.New("transport: peer closed")
	// ErrChannel is returned for a channel outside the host's channel count.
	ErrChannel = errors.New("transport: channel out of range")
)

// MaxChannels is the largest channel count a host may be created with.
const MaxChannels = 255

// EventType tags an Event.
type EventType int

const (
	EventNone EventType = iota
	EventConnect
	EventDisconnect
	EventReceive
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	}
	return "undefined"
}

// Event is one occurrence discovered by servicing a host.
type Event struct {
	Type    EventType
	Peer    Peer
	Channel uint8
	// Data is the payload of a Receive event.
	Data []byte
	// Code is the disconnect code of a Disconnect event.
	Code uint32
}

// Packet is an outbound payload with its delivery mode.
type Packet struct {
	Data []byte
	Flag Flag
}

// HostConfig describes a host at creation time.
type HostConfig struct {
	// Address binds the host. Nil creates an unbound client host on an
	// ephemeral port that does not accept inbound connections.
	Address *net.UDPAddr
	// PeerLimit caps the number of simultaneous peers.
	PeerLimit int
	// Channels is the number of channels per peer, 1..MaxChannels.
	Channels int
	// IncomingBandwidth and OutgoingBandwidth are in bytes per second.
	// Zero means unlimited.
	IncomingBandwidth int64
	OutgoingBandwidth int64
}

// Network creates hosts.
type Network interface {
	CreateHost(cfg HostConfig) (Host, error)
	Close() error
}

// Host is a local endpoint that owns peers.
type Host interface {
	// Connect starts a connection attempt and returns the half-open peer
	// without waiting for the handshake. Watch Peer.Established and
	// Peer.Closed for the outcome. ctx bounds address resolution only.
	Connect(ctx context.Context, hostname string, port int, channels int) (Peer, error)
	// Service returns at most one pending event, waiting up to timeout for
	// one to arrive. A zero timeout never blocks.
	Service(timeout time.Duration) (Event, bool, error)
	// Flush blocks until packets queued before the call have been handed to
	// the network.
	Flush(ctx context.Context) error
	// Broadcast sends packet to every connected peer.
	Broadcast(channel uint8, packet Packet) error
	// Address is the bound local address.
	Address() *net.UDPAddr
	// EnableCompression compresses outbound payloads from now on.
	EnableCompression() error
	// Destroy closes every peer and releases the socket.
	Destroy() error
}

// Peer is one connection owned by a host.
type Peer interface {
	Send(channel uint8, packet Packet) error
	// Address is the remote address.
	Address() *net.UDPAddr
	// Established is closed once the handshake completed.
	Established() <-chan struct{}
	// Closed is closed once the peer disconnected, was reset, or failed to
	// connect.
	Closed() <-chan struct{}
	// Disconnect closes the connection gracefully; both sides observe a
	// Disconnect event carrying code.
	Disconnect(code uint32)
	// Reset drops the connection without notifying the local host.
	Reset()
}
