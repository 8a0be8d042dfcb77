package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velotype/racer/internal/api"
	"github.com/velotype/racer/internal/input"
	"github.com/velotype/racer/internal/models"
	"github.com/velotype/racer/internal/protocol"
	"github.com/velotype/racer/internal/race"
	"github.com/velotype/racer/internal/transport"
)

type fakeBackend struct {
	room      models.Room
	joins     int
	joinedID  string
	failFetch bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/room/code/", func(w http.ResponseWriter, r *http.Request) {
		if b.failFetch {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(b.room)
	})
	mux.HandleFunc("/api/room/join", func(w http.ResponseWriter, r *http.Request) {
		b.joins++
		player := models.Player{ID: b.joinedID, Nickname: "grace", RoomID: b.room.ID}
		b.room.Players = append(b.room.Players, player)
		json.NewEncoder(w).Encode(player)
	})
	return mux
}

func waitingRoom() models.Room {
	creator := models.Player{ID: "p1", Nickname: "ada"}
	return models.Room{
		ID:        "r1",
		Code:      "ABCD",
		GameState: models.GameStateWaiting,
		Text:      "the cat sat",
		Players:   []models.Player{creator},
		CreatedBy: &creator,
	}
}

func testOptions(t *testing.T, backend *fakeBackend) (Options, *transport.Fake, *clockwork.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	tp := transport.NewFake()
	return Options{
		RoomCode:  "ABCD",
		Nickname:  "grace",
		API:       api.NewClient(srv.URL),
		Transport: tp,
		Store:     NewMemStore(),
		Clock:     clock,
	}, tp, clock
}

func TestStartJoinsWhenNoStoredIdentity(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, _, _ := testOptions(t, backend)

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "p2", s.PlayerID)
	assert.Equal(t, 1, backend.joins)

	stored, ok := opts.Store.Get(KeyPlayerID)
	require.True(t, ok)
	assert.Equal(t, "p2", stored)
	assert.Equal(t, race.PhaseWaiting, s.Machine.Phase())
}

func TestStartReusesStoredIdentity(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, _, _ := testOptions(t, backend)
	require.NoError(t, opts.Store.Set(KeyPlayerID, "p1"))

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "p1", s.PlayerID)
	assert.Zero(t, backend.joins, "a roster member must not rejoin")
}

func TestStartFailsFastOnFetchError(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), failFetch: true}
	opts, tp, _ := testOptions(t, backend)

	_, err := Start(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrFetchFailed)
	assert.False(t, tp.IsConnected(), "no transport connection without a snapshot")
}

func TestKeystrokesFlowToProgressPublish(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, tp, clock := testOptions(t, backend)

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()

	// Server starts the round with an already-elapsed countdown window.
	room := backend.room
	room.GameState = models.GameStateInProgress
	startedAt := clock.Now().Add(-10 * time.Second)
	room.GameStartedAt = &startedAt
	require.NoError(t, tp.DeliverJSON(protocol.MessageTypeGameStarted, "r1", "", room))
	require.Equal(t, race.PhaseTyping, s.Machine.Phase())

	assert.True(t, s.Type('t'))
	assert.True(t, s.Type('h'))
	assert.True(t, s.Type('e'))

	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(tp.PublishedTo(protocol.DestProgress)) == 1
	}, time.Second, time.Millisecond)

	payload := tp.PublishedTo(protocol.DestProgress)[0].Payload.(protocol.ProgressPayload)
	assert.Equal(t, "p2", payload.PlayerID)
	assert.Equal(t, 3, payload.CurrentPosition)
}

// startRound drives a started session into the typing phase with an
// already-elapsed countdown window.
func startRound(t *testing.T, backend *fakeBackend, tp *transport.Fake, clock *clockwork.FakeClock, s *Session) {
	t.Helper()
	room := backend.room
	room.GameState = models.GameStateInProgress
	startedAt := clock.Now().Add(-10 * time.Second)
	room.GameStartedAt = &startedAt
	require.NoError(t, tp.DeliverJSON(protocol.MessageTypeGameStarted, "r1", "", room))
	require.Equal(t, race.PhaseTyping, s.Machine.Phase())
}

func TestFinishComputesFromLiveTypedState(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, tp, clock := testOptions(t, backend)

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()
	startRound(t, backend, tp, clock, s)

	for _, ch := range "the cat" {
		require.True(t, s.Type(ch))
	}
	// Still inside the debounce window: no report has reached the
	// machine when the server ends the round.
	clock.Advance(100 * time.Millisecond)
	tp.Deliver(&protocol.Message{Type: protocol.MessageTypeGameOver, RoomID: "r1"})

	res := s.Machine.Result()
	require.NotNil(t, res)
	assert.Equal(t, 7, res.CorrectChars)
	assert.Equal(t, 7, res.TotalChars)
	assert.Equal(t, 100.0, res.Accuracy)
	assert.Empty(t, tp.PublishedTo(protocol.DestProgress))
	require.Len(t, tp.PublishedTo(protocol.DestFinish), 1)
}

func TestWordCommittedInputOption(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, tp, clock := testOptions(t, backend)
	opts.InputConfig = input.Config{
		Mode:           input.ModeWordCommitted,
		DebounceWindow: 200 * time.Millisecond,
		IdleAfter:      500 * time.Millisecond,
	}

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()
	startRound(t, backend, tp, clock, s)

	require.True(t, s.Type('t'))
	require.True(t, s.Type('h'))
	assert.False(t, s.Type(' '), "short word must reject the space")
	require.True(t, s.Type('e'))
	assert.True(t, s.Type(' '))
	assert.Equal(t, "the ", s.Reconciler().TypedText())
}

type failingStore struct {
	Store
	failKey string
}

func (s *failingStore) Set(key, value string) error {
	if key == s.failKey {
		return errors.New("disk full")
	}
	return s.Store.Set(key, value)
}

func TestStartFailsWhenNicknamePersistFails(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, _, _ := testOptions(t, backend)
	opts.Store = &failingStore{Store: NewMemStore(), failKey: KeyNickname}

	_, err := Start(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nickname")
}

func TestKeystrokesRejectedOutsideTypingPhase(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, _, _ := testOptions(t, backend)

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Type('t'), "waiting phase must swallow keystrokes")
	assert.Empty(t, s.Reconciler().TypedText())
}

func TestRestartSwapsReconciler(t *testing.T) {
	backend := &fakeBackend{room: waitingRoom(), joinedID: "p2"}
	opts, tp, _ := testOptions(t, backend)

	s, err := Start(context.Background(), opts)
	require.NoError(t, err)
	defer s.Close()

	before := s.Reconciler()

	next := backend.room
	next.Text = "fresh words"
	require.NoError(t, tp.DeliverJSON(protocol.MessageTypeGameRestart, "r1", "p1", next))

	after := s.Reconciler()
	assert.NotSame(t, before, after, "restart must rebuild the reconciler for the new text")
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyPlayerID, "p9"))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	got, ok := reloaded.Get(KeyPlayerID)
	require.True(t, ok)
	assert.Equal(t, "p9", got)

	require.NoError(t, reloaded.Clear(KeyPlayerID))
	_, ok = reloaded.Get(KeyPlayerID)
	assert.False(t, ok)
}
