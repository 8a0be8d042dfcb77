// Package transport maintains the persistent room channel used for
// real-time race updates. Implementations deliver inbound messages in
// arrival order and reconnect on their own after a drop; consumers must
// tolerate duplicate snapshots.
package transport

import (
	"context"
	"errors"

	"github.com/velotype/racer/internal/protocol"
)

// ErrNotConnected is returned by Publish when no connection is
// established. Callers treat delivery as best-effort; this is a warning
// condition, not a fatal one.
var ErrNotConnected = errors.New("transport: not connected")

// Handler consumes inbound room messages. Called sequentially in arrival
// order for a given channel.
type Handler func(msg *protocol.Message)

// EventKind classifies connectivity events.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventReconnecting EventKind = "reconnecting"
)

// Event signals a connectivity change to observers. A disconnect is
// non-fatal; the session continues optimistically while the transport
// reconnects.
type Event struct {
	Kind EventKind
	Err  error
}

// Transport manages a single logical room channel: connect, subscribe,
// publish, disconnect.
type Transport interface {
	// Connect establishes the connection for the given room channel.
	// The context bounds the initial dial only; the connection itself
	// lives until Close.
	Connect(ctx context.Context, channelID string) error

	// Subscribe registers the handler for inbound messages. Must be
	// called before Connect so no frame is lost on a fast handshake.
	Subscribe(h Handler)

	// Publish sends a payload to a destination on the room channel.
	// Returns ErrNotConnected when no connection is up.
	Publish(destination string, payload any) error

	// IsConnected reports whether the channel is currently up.
	IsConnected() bool

	// Events exposes connectivity changes. The channel is buffered and
	// never closed; slow consumers miss events rather than block I/O.
	Events() <-chan Event

	// Close tears the connection down and stops reconnection attempts.
	Close() error
}

// outbound is the frame shape for client-to-server publishes.
type outbound struct {
	Destination string `json:"destination"`
	Payload     any    `json:"payload"`
}
