package bridge

import (
	"errors"

	"github.com/relativeprotocol/peerbridge/handle"
)

var (
	// ErrNotFound is returned for invalid, stale or never issued IDs.
	ErrNotFound = handle.ErrNotFound
	// ErrFull is returned when a table has no free slot.
	ErrFull = handle.ErrFull
	// ErrTimeout is returned when a connect does not complete within connect_timeout.
	ErrTimeout = errors.New("connect timed out")
	// ErrTransportRejected is returned when the transport refuses to create
	// a host or peer, or drops a peer during its handshake.
	ErrTransportRejected = errors.New("transport rejected request")
	// ErrNotInitialized is returned by every call on a closed bridge.
	ErrNotInitialized = errors.New("bridge not initialized")
	// ErrInvalidArgument is returned for bad ports, channels or config.
	ErrInvalidArgument = errors.New("invalid argument")
)
