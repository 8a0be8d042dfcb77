package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"PLAYER_PROGRESS","roomId":"r1","playerId":"p2","payload":{"playerId":"p2","currentPosition":12,"wpm":55,"accuracy":98.5}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypePlayerProgress, msg.Type)
	assert.Equal(t, "r1", msg.RoomID)
	assert.Equal(t, "p2", msg.PlayerID)

	progress, err := msg.ProgressPayload()
	require.NoError(t, err)
	assert.Equal(t, 12, progress.CurrentPosition)
	assert.Equal(t, 55, progress.WPM)
	assert.Equal(t, 98.5, progress.Accuracy)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestRoomPayload(t *testing.T) {
	payload := json.RawMessage(`{"id":"r1","code":"ABCD","gameState":"WAITING","text":"the cat sat","players":[{"id":"p1","nickname":"ada"}],"maxPlayers":4}`)
	msg := &Message{Type: MessageTypeRoomUpdate, Payload: payload, RoomID: "r1"}

	room, err := msg.RoomPayload()
	require.NoError(t, err)
	assert.Equal(t, "ABCD", room.Code)
	assert.Equal(t, "the cat sat", room.Text)
	require.Len(t, room.Players, 1)
	assert.Equal(t, "ada", room.Players[0].Nickname)
}

func TestIsSnapshot(t *testing.T) {
	snapshots := []MessageType{
		MessageTypeRoomUpdate,
		MessageTypeGameStarted,
		MessageTypePlayerJoined,
		MessageTypePlayerLeft,
	}
	for _, kind := range snapshots {
		assert.True(t, (&Message{Type: kind}).IsSnapshot(), string(kind))
	}

	others := []MessageType{
		MessageTypePlayerProgress,
		MessageTypePlayerFinished,
		MessageTypeGameOver,
		MessageTypeGameRestart,
		"UNKNOWN_KIND",
	}
	for _, kind := range others {
		assert.False(t, (&Message{Type: kind}).IsSnapshot(), string(kind))
	}
}
