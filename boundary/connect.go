package boundary

import (
	"context"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/handle"
)

// HostConnect blocks up to the connect timeout and returns the peer ID, or
// 0 when the connect failed. A failed attempt leaves no half-open peer.
func (a *API) HostConnect(hostID int, hostname string, port int) (id int) {
	defer a.recover("host_connect", func() { id = 0 })
	b := a.live("host_connect")
	if b == nil {
		return 0
	}
	peerID, err := b.Connect(context.Background(), handle.ID(hostID), hostname, port)
	return idOrZero("host_connect", peerID, err)
}

// HostConnectAsync starts a background connect and returns its operation
// ID. The legacy poll and peer-id calls follow the latest operation.
func (a *API) HostConnectAsync(hostID int, hostname string, port int) (id int) {
	defer a.recover("host_connect_async", func() { id = 0 })
	b := a.live("host_connect_async")
	if b == nil {
		return 0
	}
	opID, err := b.ConnectAsync(handle.ID(hostID), hostname, port)
	return idOrZero("host_connect_async", opID, err)
}

// HostConnectAsyncPoll reports the status of the latest async connect.
// "succeeded" is returned once.
func (a *API) HostConnectAsyncPoll() string {
	b := a.Bridge()
	if b == nil {
		return bridge.ConnectUninitialized.String()
	}
	return a.PollConnect(int(b.LatestConnect()))
}

// HostConnectAsyncPeerID hands out the peer of the latest async connect
// once.
func (a *API) HostConnectAsyncPeerID() int {
	b := a.Bridge()
	if b == nil {
		return 0
	}
	return a.TakeConnectPeer(int(b.LatestConnect()))
}

func (a *API) PollConnect(opID int) (status string) {
	defer a.recover("poll_connect", func() { status = bridge.ConnectFailed.String() })
	b := a.Bridge()
	if b == nil {
		return bridge.ConnectUninitialized.String()
	}
	st := b.PollConnect(handle.ID(opID))
	if st == bridge.ConnectFailed {
		if err := b.ConnectError(handle.ID(opID)); err != nil {
			fail("poll_connect", err)
		}
	}
	return st.String()
}

func (a *API) TakeConnectPeer(opID int) (id int) {
	defer a.recover("take_connect_peer", func() { id = 0 })
	b := a.Bridge()
	if b == nil {
		return 0
	}
	return int(b.TakeConnectPeer(handle.ID(opID)))
}
