package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velotype/racer/internal/models"
)

func TestGetRoomByCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/room/code/ABCD", r.URL.Path)
		json.NewEncoder(w).Encode(models.Room{ID: "r1", Code: "ABCD", GameState: models.GameStateWaiting, Text: "the cat sat"})
	}))
	defer srv.Close()

	room, err := NewClient(srv.URL).GetRoomByCode(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "r1", room.ID)
	assert.Equal(t, "the cat sat", room.Text)
}

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/room/create", r.URL.Path)

		var req CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada", req.Nickname)

		creator := models.Player{ID: "p1", Nickname: req.Nickname}
		json.NewEncoder(w).Encode(models.Room{ID: "r1", Code: "ABCD", CreatedBy: &creator, Players: []models.Player{creator}})
	}))
	defer srv.Close()

	room, err := NewClient(srv.URL).CreateRoom(context.Background(), CreateRoomRequest{Nickname: "ada"})
	require.NoError(t, err)
	require.NotNil(t, room.CreatedBy)
	assert.Equal(t, "p1", room.CreatedBy.ID)
}

func TestJoinRoomReturnsPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/room/join", r.URL.Path)
		json.NewEncoder(w).Encode(models.Player{ID: "p2", Nickname: "grace", RoomID: "r1"})
	}))
	defer srv.Close()

	player, err := NewClient(srv.URL).JoinRoom(context.Background(), JoinRoomRequest{Nickname: "grace", RoomCode: "ABCD"})
	require.NoError(t, err)
	assert.Equal(t, "p2", player.ID)
	assert.Equal(t, "r1", player.RoomID)
}

func TestFetchFailureWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such room", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetRoomByCode(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestStartGame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/room/r1/start", r.URL.Path)
		started := models.GameStateInProgress
		json.NewEncoder(w).Encode(models.Room{ID: "r1", GameState: started})
	}))
	defer srv.Close()

	room, err := NewClient(srv.URL).StartGame(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.GameStateInProgress, room.GameState)
}
