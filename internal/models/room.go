package models

import (
	"time"
)

// GameState defines the lifecycle state of a room as reported by the server.
type GameState string

const (
	GameStateWaiting    GameState = "WAITING"
	GameStateInProgress GameState = "IN_PROGRESS"
	GameStateFinished   GameState = "FINISHED"
)

// Room represents a shared race session identified by a human-readable code.
// The canonical text is fixed for all players during a round and only
// replaced by a restart.
type Room struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	GameState     GameState  `json:"gameState"`
	Text          string     `json:"text"`
	Players       []Player   `json:"players"`
	CreatedBy     *Player    `json:"createdBy,omitempty"`
	MaxPlayers    int        `json:"maxPlayers"`
	CreatedAt     time.Time  `json:"createdAt"`
	GameStartedAt *time.Time `json:"gameStartedAt,omitempty"`
	GameEndedAt   *time.Time `json:"gameEndedAt,omitempty"`
}

// PlayerByID returns the player with the given id, or nil if the id is not
// part of the current roster.
func (r *Room) PlayerByID(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// IsCreator reports whether the given player id owns the room. Only the
// creator may start or restart a round.
func (r *Room) IsCreator(playerID string) bool {
	return r.CreatedBy != nil && r.CreatedBy.ID == playerID
}

// Clone returns a deep copy of the room. The reducer hands copies to
// observers so callers can never mutate shared state.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Players = make([]Player, len(r.Players))
	copy(cp.Players, r.Players)
	if r.CreatedBy != nil {
		creator := *r.CreatedBy
		cp.CreatedBy = &creator
	}
	return &cp
}
