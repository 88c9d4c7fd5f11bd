// Package boundary is the sentinel-only surface of the bridge. Every call
// takes and returns integers and strings; failures come back as 0, "" or
// "undefined" and the rich error is logged instead. No panic escapes.
package boundary

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
)

const (
	initOK     = 0
	initFailed = -1
	undefined  = "undefined"
)

// NetworkFactory builds the transport for a freshly initialized bridge.
type NetworkFactory func(cfg *bridge.Config) (transport.Network, error)

// API owns at most one live bridge between Initialize and Deinitialize.
type API struct {
	newNetwork NetworkFactory
	opts       []bridge.Option

	mu      sync.RWMutex
	cfg     *bridge.Config
	bridge  *bridge.Bridge
	network transport.Network
}

func New(newNetwork NetworkFactory, opts ...bridge.Option) *API {
	return &API{
		newNetwork: newNetwork,
		opts:       opts,
		cfg:        bridge.DefaultConfig(),
	}
}

// Configure replaces the startup config. It is rejected while a bridge is
// live.
func (a *API) Configure(cfg *bridge.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bridge != nil {
		return errors.New("configure after initialize")
	}
	copyCfg := *cfg
	a.cfg = &copyCfg
	return nil
}

// Bridge returns the live bridge, or nil.
func (a *API) Bridge() *bridge.Bridge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bridge
}

// Initialize creates the transport and the bridge. It returns 0 on success,
// including when already initialized, and -1 on failure.
func (a *API) Initialize() (status int) {
	defer a.recover("initialize", func() { status = initFailed })

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bridge != nil {
		return initOK
	}
	network, err := a.newNetwork(a.cfg)
	if err != nil {
		log.Warnw("initialize failed", "err", err)
		return initFailed
	}
	b, err := bridge.New(network, a.cfg, a.opts...)
	if err != nil {
		_ = network.Close()
		log.Warnw("initialize failed", "err", err)
		return initFailed
	}
	a.bridge, a.network = b, network
	log.Infow("bridge initialized",
		"max_hosts", a.cfg.MaxHosts,
		"max_peers", a.cfg.MaxPeers,
		"max_events", a.cfg.MaxEvents)
	return initOK
}

// Deinitialize closes the bridge and its transport. Every ID issued so far
// becomes invalid.
func (a *API) Deinitialize() {
	defer a.recover("deinitialize", nil)

	a.mu.Lock()
	b, network := a.bridge, a.network
	a.bridge, a.network = nil, nil
	a.mu.Unlock()
	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		log.Warnw("bridge close", "err", err)
	}
	if err := network.Close(); err != nil {
		log.Warnw("network close", "err", err)
	}
}

// live returns the bridge or logs why there is none.
func (a *API) live(op string) *bridge.Bridge {
	b := a.Bridge()
	if b == nil {
		log.Debugw(op, "err", bridge.ErrNotInitialized)
	}
	return b
}

// recover turns a panic into a logged error and runs onPanic, which sets the
// sentinel result.
func (a *API) recover(op string, onPanic func()) {
	if r := recover(); r != nil {
		log.Errorf("%s: recovered panic: %v", op, r)
		if onPanic != nil {
			onPanic()
		}
	}
}

// fail logs err at a level matching its kind.
func fail(op string, err error) {
	switch {
	case errors.Is(err, bridge.ErrNotFound),
		errors.Is(err, bridge.ErrFull),
		errors.Is(err, bridge.ErrInvalidArgument),
		errors.Is(err, bridge.ErrNotInitialized):
		log.Debugw(op, "err", err)
	default:
		log.Warnw(op, "err", err)
	}
}

func idOrZero(op string, id handle.ID, err error) int {
	if err != nil {
		fail(op, err)
		return 0
	}
	return int(id)
}

// cstring cuts s at the first NUL, the way a C string would end.
func cstring(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}

func (a *API) flushContext(b *bridge.Bridge) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.Config().ConnectTimeout)
}
