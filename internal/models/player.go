package models

import (
	"time"
)

// Player represents one participant in a room. CurrentPosition is the
// longest verified-correct prefix of the canonical text the player has
// typed; it never decreases within a round.
type Player struct {
	ID              string     `json:"id"`
	Nickname        string     `json:"nickname"`
	RoomID          string     `json:"roomId"`
	CurrentPosition int        `json:"currentPosition"`
	WPM             int        `json:"wpm"`
	Accuracy        float64    `json:"accuracy"`
	IsFinished      bool       `json:"isFinished"`
	JoinedAt        time.Time  `json:"joinedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	SessionID       string     `json:"sessionId,omitempty"`
}
