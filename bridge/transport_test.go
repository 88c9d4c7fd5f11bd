package bridge

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/relativeprotocol/peerbridge/handle"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/mock"
)

func newMockBridge(t *testing.T) (*Bridge, *mock.MockNetwork, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	network := mock.NewMockNetwork(ctrl)
	b, err := New(network, nil)
	require.NoError(t, err)
	return b, network, ctrl
}

func TestNewRequiresNetwork(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New(mock.NewMockNetwork(gomock.NewController(t)), &Config{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTransportRefusesHost(t *testing.T) {
	b, network, _ := newMockBridge(t)
	network.EXPECT().CreateHost(gomock.Any()).Return(nil, errors.New("bind: address in use"))

	id, err := b.CreateServer(9000, 4, 0)
	assert.ErrorIs(t, err, ErrTransportRejected)
	assert.Equal(t, handle.Invalid, id)
	assert.Zero(t, b.hosts.Len())
}

func TestCreateServerPassesHostConfig(t *testing.T) {
	b, network, ctrl := newMockBridge(t)
	host := mock.NewMockHost(ctrl)
	network.EXPECT().CreateHost(gomock.Any()).DoAndReturn(func(cfg transport.HostConfig) (transport.Host, error) {
		assert.Equal(t, 9000, cfg.Address.Port)
		assert.True(t, cfg.Address.IP.Equal(net.IPv4zero))
		assert.Equal(t, 4, cfg.PeerLimit)
		assert.Equal(t, 3, cfg.Channels)
		return host, nil
	})
	host.EXPECT().Address().Return(&net.UDPAddr{IP: net.IPv4zero, Port: 9000}).AnyTimes()

	id, err := b.CreateServer(9000, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, handle.ID(1), id)

	host.EXPECT().Destroy().Return(nil)
	require.NoError(t, b.Close())
}

func TestConnectRejectedByTransport(t *testing.T) {
	b, network, ctrl := newMockBridge(t)
	host := mock.NewMockHost(ctrl)
	network.EXPECT().CreateHost(gomock.Any()).Return(host, nil)
	host.EXPECT().Address().Return(&net.UDPAddr{}).AnyTimes()
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	host.EXPECT().Connect(gomock.Any(), "nowhere.invalid", 9000, 1).Return(nil, errors.New("no such host"))
	_, err = b.Connect(context.Background(), client, "nowhere.invalid", 9000)
	assert.ErrorIs(t, err, ErrTransportRejected)

	host.EXPECT().Destroy().Return(nil)
	require.NoError(t, b.Close())
}

func TestConnectResetsPeerClosedDuringHandshake(t *testing.T) {
	b, network, ctrl := newMockBridge(t)
	host := mock.NewMockHost(ctrl)
	peer := mock.NewMockPeer(ctrl)
	network.EXPECT().CreateHost(gomock.Any()).Return(host, nil)
	host.EXPECT().Address().Return(&net.UDPAddr{}).AnyTimes()
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	closed := make(chan struct{})
	close(closed)
	host.EXPECT().Connect(gomock.Any(), "127.0.0.1", 9000, 1).Return(peer, nil)
	peer.EXPECT().Established().Return(make(<-chan struct{})).AnyTimes()
	peer.EXPECT().Closed().Return((<-chan struct{})(closed)).AnyTimes()
	peer.EXPECT().Reset()

	_, err = b.Connect(context.Background(), client, "127.0.0.1", 9000)
	assert.ErrorIs(t, err, ErrTransportRejected)
	assert.Zero(t, b.peers.Len())

	host.EXPECT().Destroy().Return(nil)
	require.NoError(t, b.Close())
}

func TestCloseAggregatesDestroyErrors(t *testing.T) {
	b, network, ctrl := newMockBridge(t)
	first := mock.NewMockHost(ctrl)
	second := mock.NewMockHost(ctrl)
	gomock.InOrder(
		network.EXPECT().CreateHost(gomock.Any()).Return(first, nil),
		network.EXPECT().CreateHost(gomock.Any()).Return(second, nil),
	)
	first.EXPECT().Address().Return(&net.UDPAddr{}).AnyTimes()
	second.EXPECT().Address().Return(&net.UDPAddr{}).AnyTimes()
	_, err := b.CreateClient(0)
	require.NoError(t, err)
	_, err = b.CreateClient(0)
	require.NoError(t, err)

	errA, errB := errors.New("a"), errors.New("b")
	first.EXPECT().Destroy().Return(errA)
	second.EXPECT().Destroy().Return(errB)

	err = b.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestServiceMapsTransportFailure(t *testing.T) {
	b, network, ctrl := newMockBridge(t)
	host := mock.NewMockHost(ctrl)
	network.EXPECT().CreateHost(gomock.Any()).Return(host, nil)
	host.EXPECT().Address().Return(&net.UDPAddr{}).AnyTimes()
	client, err := b.CreateClient(0)
	require.NoError(t, err)

	host.EXPECT().Service(gomock.Any()).Return(transport.Event{}, false, transport.ErrHostClosed)
	_, err = b.Service(client)
	assert.ErrorIs(t, err, ErrTransportRejected)

	host.EXPECT().Destroy().Return(nil)
	require.NoError(t, b.Close())
}
