package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velotype/racer/internal/protocol"
)

// WSConfig holds tunables for the WebSocket transport.
type WSConfig struct {
	// ReconnectDelay is the fixed backoff between reconnection attempts.
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultWSConfig returns the production WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WSTransport is the WebSocket implementation of Transport. It dials
// {baseURL}/ws/room/{channelID}, pumps frames on dedicated goroutines,
// and redials with a fixed backoff when the connection drops.
type WSTransport struct {
	baseURL string
	config  WSConfig
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	handler   Handler
	channelID string
	connected bool
	closed    bool

	sendCh   chan []byte
	eventsCh chan Event
	done     chan struct{}
}

// NewWSTransport creates a WebSocket transport against the given server
// base URL (http(s) or ws(s) scheme).
func NewWSTransport(baseURL string, config WSConfig, clock clockwork.Clock) *WSTransport {
	return &WSTransport{
		baseURL:  baseURL,
		config:   config,
		clock:    clock,
		logger:   log.With().Str("component", "ws_transport").Str("transport_id", uuid.New().String()[:8]).Logger(),
		sendCh:   make(chan []byte, 64),
		eventsCh: make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Subscribe registers the inbound message handler.
func (t *WSTransport) Subscribe(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Connect dials the room channel and starts the read/write pumps. On
// drop, the transport keeps redialing the same channel until Close.
func (t *WSTransport) Connect(ctx context.Context, channelID string) error {
	t.mu.Lock()
	t.channelID = channelID
	t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return err
	}
	return nil
}

func (t *WSTransport) channelURL() (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", t.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	t.mu.RLock()
	channelID := t.channelID
	t.mu.RUnlock()
	u.Path = fmt.Sprintf("/ws/room/%s", channelID)
	return u.String(), nil
}

func (t *WSTransport) dial(ctx context.Context) error {
	addr, err := t.channelURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	t.emit(Event{Kind: EventConnected})
	t.logger.Info().Str("url", addr).Msg("room channel connected")

	go t.writePump(conn)
	go t.readPump(conn)
	return nil
}

// Publish marshals the payload and queues it for the write pump. A
// publish before the connection is up is a warning, not a fatal error.
func (t *WSTransport) Publish(destination string, payload any) error {
	if !t.IsConnected() {
		t.logger.Warn().Str("destination", destination).Msg("publish while disconnected, dropping message")
		return ErrNotConnected
	}

	data, err := json.Marshal(outbound{Destination: destination, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal outbound frame: %w", err)
	}

	select {
	case t.sendCh <- data:
		return nil
	default:
		t.logger.Warn().Str("destination", destination).Msg("send buffer full, dropping message")
		return ErrNotConnected
	}
}

// IsConnected reports whether the channel is currently up.
func (t *WSTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Events exposes connectivity changes.
func (t *WSTransport) Events() <-chan Event {
	return t.eventsCh
}

// Close tears down the connection and stops reconnection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case data := <-t.sendCh:
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Error().Err(err).Msg("failed to write frame")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

func (t *WSTransport) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(t.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.onDrop(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			t.logger.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// onDrop marks the connection down and schedules redials on a fixed
// backoff until one succeeds or the transport is closed.
func (t *WSTransport) onDrop(conn *websocket.Conn, cause error) {
	conn.Close()

	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.conn = nil
	t.mu.Unlock()

	t.emit(Event{Kind: EventDisconnected, Err: cause})
	t.logger.Warn().Err(cause).Msg("room channel dropped, reconnecting")

	go t.reconnectLoop()
}

func (t *WSTransport) reconnectLoop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.clock.After(t.config.ReconnectDelay):
		}

		t.emit(Event{Kind: EventReconnecting})
		ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
		err := t.dial(ctx)
		cancel()
		if err == nil {
			return
		}
		t.logger.Warn().Err(err).Dur("retry_in", t.config.ReconnectDelay).Msg("reconnect attempt failed")
	}
}

func (t *WSTransport) emit(ev Event) {
	select {
	case t.eventsCh <- ev:
	default:
	}
}
