package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/relativeprotocol/peerbridge/boundary"
	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/restapi"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/quicnet"
)

const (
	defaultEchoPort     = 7100
	idlePollInterval    = 5 * time.Millisecond
	serveStopTimeout    = 5 * time.Second
	defaultEchoCapacity = 64
)

type serveOptions struct {
	Port       int
	MaxClients int
	Channels   int
	Token      string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server that returns every received message to its sender",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		app := newServeApp(cfg, serveOpts, quicNetwork)

		startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return err
		}
		<-app.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), serveStopTimeout)
		defer cancel()
		return app.Stop(stopCtx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serveOpts.Port, "port", "p", defaultEchoPort, "UDP port to listen on")
	serveCmd.Flags().IntVar(&serveOpts.MaxClients, "max-clients", defaultEchoCapacity, "peer limit of the echo host")
	serveCmd.Flags().IntVar(&serveOpts.Channels, "channels", 0, "channel count, 0 uses the config value")
	serveCmd.Flags().StringVar(&serveOpts.Token, "token", "", "bearer token required by the diagnostics API")
}

func quicNetwork(cfg *bridge.Config) (transport.Network, error) {
	return quicnet.New(quicnet.WithHandshakeTimeout(cfg.ConnectTimeout))
}

// newServeApp wires config, logging, transport, bridge, the optional
// diagnostics API and the echo loop.
func newServeApp(cfg *bridge.Config, opts serveOptions, newNetwork boundary.NetworkFactory, extra ...fx.Option) *fx.App {
	options := []fx.Option{
		fx.Supply(cfg, opts),
		fx.Provide(
			newHub,
			newLogger,
			func(lc fx.Lifecycle, cfg *bridge.Config) (transport.Network, error) {
				network, err := newNetwork(cfg)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.StopHook(network.Close))
				return network, nil
			},
			newBridge,
			newEchoServer,
		),
		fx.Invoke(registerDiagnostics, func(*echoServer) {}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
	}
	return fx.New(append(options, extra...)...)
}

func newHub(cfg *bridge.Config) (*log.Hub, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewHub(level), nil
}

func newLogger(lc fx.Lifecycle, cfg *bridge.Config, hub *log.Hub) (*zap.Logger, error) {
	logger, err := log.New(cfg.LogLevel, hub)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)
	lc.Append(fx.StopHook(func() {
		_ = logger.Sync()
	}))
	return logger, nil
}

func newBridge(lc fx.Lifecycle, network transport.Network, cfg *bridge.Config) (*bridge.Bridge, error) {
	b, err := bridge.New(network, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(b.Close))
	return b, nil
}

func registerDiagnostics(lc fx.Lifecycle, cfg *bridge.Config, opts serveOptions, b *bridge.Bridge, hub *log.Hub) {
	if cfg.DebugAddr == "" {
		return
	}
	srv := restapi.New(b, hub, opts.Token)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			_, err := srv.Start(cfg.DebugAddr)
			return err
		},
		OnStop: srv.Shutdown,
	})
}

// echoServer owns one server host and services it from a single goroutine.
type echoServer struct {
	bridge *bridge.Bridge
	opts   serveOptions
	host   handle.ID

	cancel context.CancelFunc
	done   chan struct{}
}

func newEchoServer(lc fx.Lifecycle, b *bridge.Bridge, opts serveOptions) *echoServer {
	e := &echoServer{bridge: b, opts: opts, done: make(chan struct{})}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return e.start() },
		OnStop:  e.stop,
	})
	return e
}

func (e *echoServer) start() error {
	host, err := e.bridge.CreateServer(e.opts.Port, e.opts.MaxClients, e.opts.Channels)
	if err != nil {
		return err
	}
	e.host = host
	addr, _ := e.bridge.HostAddress(host)
	log.Infow("echo server listening", "host", host, "addr", addr.String())

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.loop(ctx)
	return nil
}

func (e *echoServer) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := e.bridge.DestroyHost(e.host); err != nil && !errors.Is(err, bridge.ErrNotInitialized) {
		return err
	}
	return nil
}

func (e *echoServer) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		id, err := e.bridge.Service(e.host)
		if err != nil {
			log.Warnw("echo service", "host", e.host, "err", err)
			return
		}
		if id == 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		ev, err := e.bridge.Event(id)
		if err != nil || ev.HostID != e.host {
			// Overwritten by another host's service before we read it.
			continue
		}
		e.handle(ev)
	}
}

func (e *echoServer) handle(ev bridge.Event) {
	switch ev.Type {
	case transport.EventConnect:
		log.Infow("peer connected", "peer", ev.PeerID)
	case transport.EventDisconnect:
		log.Infow("peer disconnected", "peer", ev.PeerID, "code", ev.Code)
	case transport.EventReceive:
		if err := e.bridge.PeerSend(ev.PeerID, ev.Channel, ev.Data, transport.FlagReliable); err != nil {
			log.Debugw("echo reply", "peer", ev.PeerID, "err", err)
		}
	}
}
