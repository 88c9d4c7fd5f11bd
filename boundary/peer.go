package boundary

import (
	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
)

func (a *API) PeerSend(peerID int, message, flag string) {
	a.PeerSendChannel(peerID, 0, message, flag)
}

func (a *API) PeerSendChannel(peerID, channel int, message, flag string) {
	defer a.recover("peer_send", nil)
	b := a.live("peer_send")
	if b == nil {
		return
	}
	if channel < 0 || channel >= transport.MaxChannels {
		log.Debugw("peer_send", "err", "channel out of range", "channel", channel)
		return
	}
	if err := b.PeerSend(handle.ID(peerID), uint8(channel), []byte(message), transport.ParseFlag(flag)); err != nil {
		fail("peer_send", err)
	}
}

// PeerDisconnect starts a graceful disconnect; the peer ID is released when
// the disconnect event is serviced.
func (a *API) PeerDisconnect(peerID int) {
	defer a.recover("peer_disconnect", nil)
	if b := a.live("peer_disconnect"); b != nil {
		if err := b.PeerDisconnect(handle.ID(peerID), 0); err != nil {
			fail("peer_disconnect", err)
		}
	}
}

// PeerReset drops the peer at once and releases its ID.
func (a *API) PeerReset(peerID int) {
	defer a.recover("peer_reset", nil)
	if b := a.live("peer_reset"); b != nil {
		if err := b.PeerReset(handle.ID(peerID)); err != nil {
			fail("peer_reset", err)
		}
	}
}

func (a *API) GetPeerAddressHost(peerID int) (host string) {
	defer a.recover("get_peer_address_host", func() { host = "" })
	b := a.live("get_peer_address_host")
	if b == nil {
		return ""
	}
	addr, err := b.PeerAddress(handle.ID(peerID))
	if err != nil {
		fail("get_peer_address_host", err)
		return ""
	}
	return ipString(addr.IP)
}

func (a *API) GetPeerAddressPort(peerID int) (port int) {
	defer a.recover("get_peer_address_port", func() { port = 0 })
	b := a.live("get_peer_address_port")
	if b == nil {
		return 0
	}
	addr, err := b.PeerAddress(handle.ID(peerID))
	if err != nil {
		fail("get_peer_address_port", err)
		return 0
	}
	return addr.Port
}
