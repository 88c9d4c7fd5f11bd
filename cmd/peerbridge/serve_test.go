package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/memnet"
)

func memNetwork(*bridge.Config) (transport.Network, error) {
	return memnet.New(), nil
}

func TestEchoServer(t *testing.T) {
	var b *bridge.Bridge
	app := newServeApp(bridge.DefaultConfig(), serveOptions{Port: 7100, MaxClients: 4}, memNetwork, fx.Populate(&b))
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))

	client, err := b.CreateClient(0)
	require.NoError(t, err)
	peer, err := b.Connect(ctx, client, "127.0.0.1", 7100)
	require.NoError(t, err)
	require.NoError(t, b.PeerSend(peer, 0, []byte("ping"), transport.FlagReliable))

	var echoed []byte
	require.Eventually(t, func() bool {
		id, err := b.Service(client)
		if err != nil || id == 0 {
			return false
		}
		ev, err := b.Event(id)
		if err != nil || ev.Type != transport.EventReceive {
			return false
		}
		echoed = ev.Data
		return true
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []byte("ping"), echoed)

	require.NoError(t, app.Stop(ctx))
	_, err = b.CreateClient(0)
	assert.ErrorIs(t, err, bridge.ErrNotInitialized, "stop closes the bridge")
}

func TestEchoServerRejectsZeroCapacity(t *testing.T) {
	var b *bridge.Bridge
	app := newServeApp(bridge.DefaultConfig(), serveOptions{Port: 7100, MaxClients: 0}, memNetwork, fx.Populate(&b))
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := app.Start(ctx)
	assert.ErrorIs(t, err, bridge.ErrInvalidArgument)
}

func TestServeAppRejectsBadLogLevel(t *testing.T) {
	cfg := bridge.DefaultConfig()
	cfg.LogLevel = "chatty"
	app := newServeApp(cfg, serveOptions{Port: 7100, MaxClients: 4}, memNetwork)
	assert.Error(t, app.Err())
}
