package boundary

import (
	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/transport"
)

func (a *API) CreateServer(port, maxClients int) int {
	return a.CreateServerWithChannels(port, maxClients, 0)
}

// CreateServerWithChannels is CreateServer with an explicit channel count;
// zero uses the configured default.
func (a *API) CreateServerWithChannels(port, maxClients, channels int) (id int) {
	defer a.recover("create_server", func() { id = 0 })
	b := a.live("create_server")
	if b == nil {
		return 0
	}
	hid, err := b.CreateServer(port, maxClients, channels)
	return idOrZero("create_server", hid, err)
}

func (a *API) CreateClient() int {
	return a.CreateClientWithChannels(0)
}

func (a *API) CreateClientWithChannels(channels int) (id int) {
	defer a.recover("create_client", func() { id = 0 })
	b := a.live("create_client")
	if b == nil {
		return 0
	}
	hid, err := b.CreateClient(channels)
	return idOrZero("create_client", hid, err)
}

func (a *API) DestroyHost(hostID int) {
	defer a.recover("destroy_host", nil)
	if b := a.live("destroy_host"); b != nil {
		if err := b.DestroyHost(handle.ID(hostID)); err != nil {
			fail("destroy_host", err)
		}
	}
}

// HostService returns the ID of the staged event, or 0 when nothing was
// pending or the host is invalid.
func (a *API) HostService(hostID int) (id int) {
	defer a.recover("host_service", func() { id = 0 })
	b := a.live("host_service")
	if b == nil {
		return 0
	}
	eventID, err := b.Service(handle.ID(hostID))
	if err != nil {
		fail("host_service", err)
		return 0
	}
	return eventID
}

func (a *API) HostFlush(hostID int) {
	defer a.recover("host_flush", nil)
	b := a.live("host_flush")
	if b == nil {
		return
	}
	ctx, cancel := a.flushContext(b)
	defer cancel()
	if err := b.Flush(ctx, handle.ID(hostID)); err != nil {
		fail("host_flush", err)
	}
}

func (a *API) HostBroadcast(hostID int, message, flag string) {
	defer a.recover("host_broadcast", nil)
	if b := a.live("host_broadcast"); b != nil {
		if err := b.Broadcast(handle.ID(hostID), 0, []byte(message), transport.ParseFlag(flag)); err != nil {
			fail("host_broadcast", err)
		}
	}
}

// GetHostAddress returns the bound IP of the host; servers report 0.0.0.0.
func (a *API) GetHostAddress(hostID int) (addr string) {
	defer a.recover("get_host_address", func() { addr = "" })
	b := a.live("get_host_address")
	if b == nil {
		return ""
	}
	ua, err := b.HostAddress(handle.ID(hostID))
	if err != nil {
		fail("get_host_address", err)
		return ""
	}
	return ipString(ua.IP)
}

func (a *API) GetHostPort(hostID int) (port int) {
	defer a.recover("get_host_port", func() { port = 0 })
	b := a.live("get_host_port")
	if b == nil {
		return 0
	}
	ua, err := b.HostAddress(handle.ID(hostID))
	if err != nil {
		fail("get_host_port", err)
		return 0
	}
	return ua.Port
}

// SetHostCompressWithRangeCoder turns on payload compression for the host.
// It returns 1 on success and 0 on failure.
func (a *API) SetHostCompressWithRangeCoder(hostID int) (ok int) {
	defer a.recover("set_host_compress", func() { ok = 0 })
	b := a.live("set_host_compress")
	if b == nil {
		return 0
	}
	if err := b.EnableCompression(handle.ID(hostID)); err != nil {
		fail("set_host_compress", err)
		return 0
	}
	return 1
}
