package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velotype/racer/internal/protocol"
)

// NATSConfig holds configuration for the NATS transport.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the production NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 5 * time.Second,
	}
}

// NATSTransport is the NATS implementation of Transport. Inbound room
// messages arrive on the subject race.room.<channelID>; publishes are
// mapped from STOMP-style destinations to race.app.* subjects and carry
// the same JSON payloads as the WebSocket transport.
type NATSTransport struct {
	config NATSConfig
	logger zerolog.Logger

	mu        sync.RWMutex
	nc        *nats.Conn
	sub       *nats.Subscription
	handler   Handler
	channelID string

	eventsCh chan Event
}

// NewNATSTransport creates a NATS-backed room channel transport.
func NewNATSTransport(config NATSConfig) *NATSTransport {
	return &NATSTransport{
		config:   config,
		logger:   log.With().Str("component", "nats_transport").Logger(),
		eventsCh: make(chan Event, 16),
	}
}

// Subscribe registers the inbound message handler.
func (t *NATSTransport) Subscribe(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Connect establishes the NATS connection and subscribes to the room
// subject. The client library owns the reconnect loop; the transport only
// surfaces its state changes as Events.
func (t *NATSTransport) Connect(ctx context.Context, channelID string) error {
	opts := []nats.Option{
		nats.MaxReconnects(t.config.MaxReconnects),
		nats.ReconnectWait(t.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			t.emit(Event{Kind: EventDisconnected, Err: err})
			t.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.emit(Event{Kind: EventConnected})
			t.logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			t.logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	subject := fmt.Sprintf("race.room.%s", channelID)
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		msg, err := protocol.Decode(m.Data)
		if err != nil {
			t.logger.Debug().Err(err).Msg("ignoring malformed frame")
			return
		}
		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	t.mu.Lock()
	t.nc = nc
	t.sub = sub
	t.channelID = channelID
	t.mu.Unlock()

	t.emit(Event{Kind: EventConnected})
	t.logger.Info().Str("subject", subject).Msg("room channel connected")
	return nil
}

// Publish sends the payload to the subject derived from the destination,
// e.g. /app/game/progress becomes race.app.game.progress.
func (t *NATSTransport) Publish(destination string, payload any) error {
	t.mu.RLock()
	nc := t.nc
	t.mu.RUnlock()

	if nc == nil || !nc.IsConnected() {
		t.logger.Warn().Str("destination", destination).Msg("publish while disconnected, dropping message")
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return nc.Publish(subjectFor(destination), data)
}

func (t *NATSTransport) emit(ev Event) {
	select {
	case t.eventsCh <- ev:
	default:
	}
}

func subjectFor(destination string) string {
	return "race" + strings.ReplaceAll(destination, "/", ".")
}

// IsConnected reports whether the NATS connection is up.
func (t *NATSTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nc != nil && t.nc.IsConnected()
}

// Events exposes connectivity changes.
func (t *NATSTransport) Events() <-chan Event {
	return t.eventsCh
}

// Close drains the subscription and closes the connection.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sub != nil {
		t.sub.Unsubscribe()
		t.sub = nil
	}
	if t.nc != nil {
		t.nc.Close()
		t.nc = nil
	}
	return nil
}
