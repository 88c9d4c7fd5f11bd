package boundary

import (
	"net"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/transport"
)

func (a *API) event(op string, eventID int) (bridge.Event, bool) {
	b := a.live(op)
	if b == nil {
		return bridge.Event{}, false
	}
	ev, err := b.Event(eventID)
	if err != nil {
		fail(op, err)
		return bridge.Event{}, false
	}
	return ev, true
}

// GetEventType returns none, connect, disconnect or receive, and undefined
// for an invalid event ID.
func (a *API) GetEventType(eventID int) (kind string) {
	defer a.recover("get_event_type", func() { kind = undefined })
	ev, ok := a.event("get_event_type", eventID)
	if !ok {
		return undefined
	}
	return ev.Type.String()
}

// GetEventData returns the payload of a receive event up to its first NUL.
func (a *API) GetEventData(eventID int) (data string) {
	defer a.recover("get_event_data", func() { data = "" })
	ev, ok := a.event("get_event_data", eventID)
	if !ok || ev.Type != transport.EventReceive {
		return ""
	}
	return cstring(ev.Data)
}

func (a *API) GetEventPeerAddressHost(eventID int) (host string) {
	defer a.recover("get_event_peer_address_host", func() { host = "" })
	ev, ok := a.event("get_event_peer_address_host", eventID)
	if !ok || ev.Peer == nil || ev.Peer.Address() == nil {
		return ""
	}
	return ipString(ev.Peer.Address().IP)
}

func (a *API) GetEventPeerAddressPort(eventID int) (port int) {
	defer a.recover("get_event_peer_address_port", func() { port = 0 })
	ev, ok := a.event("get_event_peer_address_port", eventID)
	if !ok || ev.Peer == nil || ev.Peer.Address() == nil {
		return 0
	}
	return ev.Peer.Address().Port
}

// GetEventPeerID returns the registered ID of the event's peer, or 0.
func (a *API) GetEventPeerID(eventID int) (id int) {
	defer a.recover("get_event_peer_id", func() { id = 0 })
	ev, ok := a.event("get_event_peer_id", eventID)
	if !ok {
		return 0
	}
	return int(ev.PeerID)
}

func (a *API) GetEventChannel(eventID int) (channel int) {
	defer a.recover("get_event_channel", func() { channel = 0 })
	ev, ok := a.event("get_event_channel", eventID)
	if !ok {
		return 0
	}
	return int(ev.Channel)
}

// GetEventSequence returns the push count of the event in the slot, so a
// caller can tell whether the slot was overwritten since its poll.
func (a *API) GetEventSequence(eventID int) (seq int64) {
	defer a.recover("get_event_sequence", func() { seq = 0 })
	ev, ok := a.event("get_event_sequence", eventID)
	if !ok {
		return 0
	}
	return int64(ev.Seq)
}

// EventPeerSend sends message on channel 0 to the peer of the event.
func (a *API) EventPeerSend(eventID int, message, flag string) {
	defer a.recover("event_peer_send", nil)
	if b := a.live("event_peer_send"); b != nil {
		if err := b.EventPeerSend(eventID, 0, []byte(message), transport.ParseFlag(flag)); err != nil {
			fail("event_peer_send", err)
		}
	}
}

// ipString renders IPv4 addresses as dotted quads.
func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
