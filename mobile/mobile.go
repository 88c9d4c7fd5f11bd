// Package mobile is the gomobile binding of the bridge. It owns a single
// process-wide boundary.API and exposes every boundary call as a package
// function taking and returning ints and strings.
//
//	gomobile bind -target=ios ./mobile
package mobile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relativeprotocol/peerbridge/boundary"
	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/restapi"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/quicnet"
)

const diagnosticsShutdownTimeout = 2 * time.Second

// networkFactory builds the transport on Initialize. Tests swap it.
var networkFactory boundary.NetworkFactory = func(cfg *bridge.Config) (transport.Network, error) {
	return quicnet.New(quicnet.WithHandshakeTimeout(cfg.ConnectTimeout))
}

var (
	api = boundary.New(func(cfg *bridge.Config) (transport.Network, error) {
		return networkFactory(cfg)
	})

	mu   sync.Mutex
	cfg  = bridge.DefaultConfig()
	diag *restapi.Server
	addr string
)

// Configure installs a YAML config for the next Initialize. Missing keys keep
// their defaults.
func Configure(yamlText string) error {
	next, err := bridge.Parse([]byte(yamlText))
	if err != nil {
		return err
	}
	if err := api.Configure(next); err != nil {
		return err
	}
	if err := setLogLevel(next.LogLevel); err != nil {
		return err
	}
	mu.Lock()
	cfg = next
	mu.Unlock()
	return nil
}

// Initialize starts the bridge, and the diagnostics API when debug_addr is
// configured. It returns 0 on success and -1 on failure.
func Initialize() int {
	if status := api.Initialize(); status != 0 {
		return status
	}

	mu.Lock()
	defer mu.Unlock()
	if diag != nil || cfg.DebugAddr == "" {
		return 0
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	hub := log.NewHub(level)
	if err := setLogHub(hub); err != nil {
		log.Warnw("diagnostics logging", "err", err)
	}
	srv := restapi.New(api.Bridge(), hub, "")
	bound, err := srv.Start(cfg.DebugAddr)
	if err != nil {
		// The bridge is usable without diagnostics.
		log.Warnw("diagnostics api", "addr", cfg.DebugAddr, "err", err)
		_ = setLogHub(nil)
		return 0
	}
	diag, addr = srv, bound.String()
	return 0
}

// Deinitialize stops the diagnostics API and tears the bridge down.
func Deinitialize() {
	mu.Lock()
	srv := diag
	diag, addr = nil, ""
	mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), diagnosticsShutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warnw("diagnostics shutdown", "err", err)
		}
		cancel()
		_ = setLogHub(nil)
	}
	api.Deinitialize()
}

// DiagnosticsAddress returns the bound diagnostics address, or "".
func DiagnosticsAddress() string {
	mu.Lock()
	defer mu.Unlock()
	return addr
}

func CreateServer(port, maxClients int) int { return api.CreateServer(port, maxClients) }

func CreateServerWithChannels(port, maxClients, channels int) int {
	return api.CreateServerWithChannels(port, maxClients, channels)
}

func CreateClient() int { return api.CreateClient() }

func CreateClientWithChannels(channels int) int { return api.CreateClientWithChannels(channels) }

func DestroyHost(hostID int) { api.DestroyHost(hostID) }

// HostService polls hostID once and returns the staged event ID, or 0.
func HostService(hostID int) int { return api.HostService(hostID) }

func HostFlush(hostID int) { api.HostFlush(hostID) }

func HostBroadcast(hostID int, message, flag string) { api.HostBroadcast(hostID, message, flag) }

func GetHostAddress(hostID int) string { return api.GetHostAddress(hostID) }

func GetHostPort(hostID int) int { return api.GetHostPort(hostID) }

func SetHostCompressWithRangeCoder(hostID int) int { return api.SetHostCompressWithRangeCoder(hostID) }

// HostConnect blocks for at most connect_timeout and returns the peer ID, or 0.
func HostConnect(hostID int, hostname string, port int) int {
	return api.HostConnect(hostID, hostname, port)
}

// HostConnectAsync starts a connect and returns its operation ID, or 0.
func HostConnectAsync(hostID int, hostname string, port int) int {
	return api.HostConnectAsync(hostID, hostname, port)
}

// HostConnectAsyncPoll polls the most recently started async connect.
func HostConnectAsyncPoll() string { return api.HostConnectAsyncPoll() }

func HostConnectAsyncPeerID() int { return api.HostConnectAsyncPeerID() }

func PollConnect(opID int) string { return api.PollConnect(opID) }

func TakeConnectPeer(opID int) int { return api.TakeConnectPeer(opID) }

func GetEventType(eventID int) string { return api.GetEventType(eventID) }

func GetEventData(eventID int) string { return api.GetEventData(eventID) }

func GetEventPeerAddressHost(eventID int) string { return api.GetEventPeerAddressHost(eventID) }

func GetEventPeerAddressPort(eventID int) int { return api.GetEventPeerAddressPort(eventID) }

func GetEventPeerID(eventID int) int { return api.GetEventPeerID(eventID) }

func GetEventChannel(eventID int) int { return api.GetEventChannel(eventID) }

// GetEventSequence returns the push sequence of the event occupying eventID.
// It changes when the ring slot is overwritten.
func GetEventSequence(eventID int) int64 { return api.GetEventSequence(eventID) }

func EventPeerSend(eventID int, message, flag string) { api.EventPeerSend(eventID, message, flag) }

func PeerSend(peerID int, message, flag string) { api.PeerSend(peerID, message, flag) }

func PeerSendChannel(peerID, channel int, message, flag string) {
	api.PeerSendChannel(peerID, channel, message, flag)
}

func PeerDisconnect(peerID int) { api.PeerDisconnect(peerID) }

func PeerReset(peerID int) { api.PeerReset(peerID) }

func GetPeerAddressHost(peerID int) string { return api.GetPeerAddressHost(peerID) }

func GetPeerAddressPort(peerID int) int { return api.GetPeerAddressPort(peerID) }
