package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/velotype/racer/internal/models"
)

// Message is the envelope for every frame on a room channel. Payload stays
// raw until the kind is known; PlayerID identifies the player who
// initiated the action, when applicable.
type Message struct {
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	RoomID   string          `json:"roomId"`
	PlayerID string          `json:"playerId,omitempty"`
}

// MessageType represents the kind of a room channel message.
type MessageType string

const (
	MessageTypeRoomUpdate     MessageType = "ROOM_UPDATE"
	MessageTypeGameStarted    MessageType = "GAME_STARTED"
	MessageTypePlayerJoined   MessageType = "PLAYER_JOINED"
	MessageTypePlayerProgress MessageType = "PLAYER_PROGRESS"
	MessageTypePlayerLeft     MessageType = "PLAYER_LEFT"
	MessageTypePlayerFinished MessageType = "PLAYER_FINISHED"
	MessageTypeGameOver       MessageType = "GAME_OVER"
	MessageTypeGameRestart    MessageType = "GAME_RESTART"
)

// Publish destinations on the room channel.
const (
	DestProgress = "/app/game/progress"
	DestStart    = "/app/game/start"
	DestRestart  = "/app/game/restart"
	DestFinish   = "/app/game/finish"
)

// ProgressPayload reports a player's live position and speed to the rest
// of the room.
type ProgressPayload struct {
	RoomID          string  `json:"roomId"`
	PlayerID        string  `json:"playerId"`
	CurrentPosition int     `json:"currentPosition"`
	WPM             int     `json:"wpm,omitempty"`
	Accuracy        float64 `json:"accuracy,omitempty"`
}

// StartPayload asks the server to begin the round.
type StartPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// RestartPayload carries the next round's canonical text. Only the room
// creator may send it.
type RestartPayload struct {
	RoomID  string `json:"roomId"`
	NewText string `json:"newText"`
}

// FinishPayload reports a player's final result for the round.
type FinishPayload struct {
	RoomID   string  `json:"roomId"`
	PlayerID string  `json:"playerId"`
	WPM      int     `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

// Decode unmarshals a raw frame into a Message envelope.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message envelope: %w", err)
	}
	return &msg, nil
}

// RoomPayload parses the payload as a full room snapshot. Used for
// snapshot-bearing kinds (ROOM_UPDATE, GAME_STARTED, PLAYER_JOINED,
// PLAYER_LEFT, GAME_RESTART).
func (m *Message) RoomPayload() (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(m.Payload, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room payload: %w", err)
	}
	return &room, nil
}

// ProgressPayload parses the payload of a PLAYER_PROGRESS message.
func (m *Message) ProgressPayload() (*ProgressPayload, error) {
	var p ProgressPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress payload: %w", err)
	}
	return &p, nil
}

// PlayerPayload parses the payload of a PLAYER_FINISHED message.
func (m *Message) PlayerPayload() (*models.Player, error) {
	var p models.Player
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode player payload: %w", err)
	}
	return &p, nil
}

// IsSnapshot reports whether the message kind carries a full room snapshot
// that replaces local room state wholesale.
func (m *Message) IsSnapshot() bool {
	switch m.Type {
	case MessageTypeRoomUpdate, MessageTypeGameStarted, MessageTypePlayerJoined, MessageTypePlayerLeft:
		return true
	}
	return false
}
