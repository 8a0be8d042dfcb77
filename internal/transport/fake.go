package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/velotype/racer/internal/protocol"
)

// Fake is an in-process Transport for tests. Published frames are
// recorded, and tests inject inbound messages with Deliver.
type Fake struct {
	mu        sync.Mutex
	handler   Handler
	connected bool
	channelID string
	published []FakeFrame
	eventsCh  chan Event
}

// FakeFrame is one recorded publish.
type FakeFrame struct {
	Destination string
	Payload     any
}

// NewFake returns a disconnected fake transport.
func NewFake() *Fake {
	return &Fake{eventsCh: make(chan Event, 16)}
}

func (f *Fake) Connect(ctx context.Context, channelID string) error {
	f.mu.Lock()
	f.connected = true
	f.channelID = channelID
	f.mu.Unlock()
	f.eventsCh <- Event{Kind: EventConnected}
	return nil
}

func (f *Fake) Subscribe(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *Fake) Publish(destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.published = append(f.published, FakeFrame{Destination: destination, Payload: payload})
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Events() <-chan Event {
	return f.eventsCh
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// Deliver feeds an inbound message to the subscribed handler, as if it
// had arrived on the room channel.
func (f *Fake) Deliver(msg *protocol.Message) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// DeliverJSON builds and delivers a message from a payload value.
func (f *Fake) DeliverJSON(kind protocol.MessageType, roomID, playerID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.Deliver(&protocol.Message{Type: kind, Payload: raw, RoomID: roomID, PlayerID: playerID})
	return nil
}

// Published returns a copy of every recorded publish.
func (f *Fake) Published() []FakeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeFrame, len(f.published))
	copy(out, f.published)
	return out
}

// PublishedTo filters recorded publishes by destination.
func (f *Fake) PublishedTo(destination string) []FakeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeFrame
	for _, fr := range f.published {
		if fr.Destination == destination {
			out = append(out, fr)
		}
	}
	return out
}

// SetConnected flips the connection flag without events, for tests that
// exercise the degraded path.
func (f *Fake) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}
