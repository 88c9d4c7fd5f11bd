package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestHubDeliversEntriesWithFields(t *testing.T) {
	hub := NewHub(zapcore.InfoLevel)
	entries, cancel := hub.Subscribe()
	defer cancel()

	logger := zap.New(hub).With(zap.String("host", "h1"))
	logger.Debug("dropped")
	logger.Info("created", zap.Int("id", 3))

	select {
	case e := <-entries:
		assert.Equal(t, "info", e.Level)
		assert.Equal(t, "created", e.Message)
		assert.Equal(t, "h1", e.Fields["host"])
		assert.EqualValues(t, 3, e.Fields["id"])
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}

	select {
	case e := <-entries:
		t.Fatalf("unexpected entry %+v", e)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(zapcore.DebugLevel)
	entries, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()
	require.Equal(t, 0, hub.Subscribers())

	_, ok := <-entries
	assert.False(t, ok)
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub(zapcore.DebugLevel)
	_, cancel := hub.Subscribe()
	defer cancel()

	logger := zap.New(hub)
	for i := 0; i < hubBacklog*2; i++ {
		logger.Info("spam")
	}
}

func TestNewTeesExtraCores(t *testing.T) {
	hub := NewHub(zapcore.DebugLevel)
	entries, cancel := hub.Subscribe()
	defer cancel()

	logger, err := New("debug", hub)
	require.NoError(t, err)
	logger.Debug("hello")

	select {
	case e := <-entries:
		assert.Equal(t, "hello", e.Message)
	case <-time.After(time.Second):
		t.Fatal("hub did not receive entry")
	}

	_, err = New("loud")
	assert.Error(t, err)
}
