// Package session wires a race session together: it resolves the local
// player identity, fetches the initial room snapshot, and connects the
// state machine, input reconciler and transport.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velotype/racer/internal/api"
	"github.com/velotype/racer/internal/input"
	"github.com/velotype/racer/internal/models"
	"github.com/velotype/racer/internal/race"
	"github.com/velotype/racer/internal/transport"
)

// Options configures a session bootstrap. API, Transport and Store are
// required; zero-value configs fall back to defaults.
type Options struct {
	RoomCode string
	Nickname string

	API       *api.Client
	Transport transport.Transport
	Store     Store
	Clock     clockwork.Clock

	MachineConfig race.Config
	InputConfig   input.Config
}

// Session is a running race session. Keystrokes go in through Type,
// Backspace and the machine's snapshots come out through OnChange.
type Session struct {
	PlayerID string
	Machine  *race.Machine

	clock       clockwork.Clock
	inputConfig input.Config
	tp          transport.Transport
	logger      zerolog.Logger

	mu         sync.Mutex
	reconciler *input.Reconciler
}

// Start fetches the initial snapshot and assembles the session. A failed
// fetch or connection setup is fatal: the error is returned and no state
// machine is started.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MachineConfig == (race.Config{}) {
		opts.MachineConfig = race.DefaultConfig()
	}
	if opts.InputConfig == (input.Config{}) {
		opts.InputConfig = input.DefaultConfig()
	}

	snapshot, err := opts.API.GetRoomByCode(ctx, opts.RoomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", opts.RoomCode, err)
	}

	playerID, snapshot, err := resolveIdentity(ctx, opts, snapshot)
	if err != nil {
		return nil, err
	}

	s := &Session{
		PlayerID:    playerID,
		clock:       opts.Clock,
		inputConfig: opts.InputConfig,
		tp:          opts.Transport,
		logger:      log.With().Str("component", "session").Str("player_id", playerID).Logger(),
	}

	machine := race.NewMachine(playerID, opts.MachineConfig, opts.Clock, opts.Transport)
	s.Machine = machine
	machine.OnRoundReset(s.resetRound)
	s.resetRound(snapshot.Text)

	opts.Transport.Subscribe(machine.HandleMessage)
	if err := opts.Transport.Connect(ctx, snapshot.ID); err != nil {
		return nil, fmt.Errorf("failed to connect room channel: %w", err)
	}

	machine.Start(snapshot)
	s.logger.Info().Str("room_code", opts.RoomCode).Str("room_id", snapshot.ID).Msg("session started")
	return s, nil
}

// resolveIdentity reuses a stored player id when it is still part of the
// roster, otherwise joins the room and persists the new identity.
func resolveIdentity(ctx context.Context, opts Options, snapshot *models.Room) (string, *models.Room, error) {
	if id, ok := opts.Store.Get(KeyPlayerID); ok && snapshot.PlayerByID(id) != nil {
		return id, snapshot, nil
	}

	player, err := opts.API.JoinRoom(ctx, api.JoinRoomRequest{
		Nickname: opts.Nickname,
		RoomCode: opts.RoomCode,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to join room %s: %w", opts.RoomCode, err)
	}
	if err := opts.Store.Set(KeyPlayerID, player.ID); err != nil {
		return "", nil, fmt.Errorf("failed to persist player id: %w", err)
	}
	if err := opts.Store.Set(KeyNickname, opts.Nickname); err != nil {
		return "", nil, fmt.Errorf("failed to persist nickname: %w", err)
	}

	// Refetch so the roster includes the new player before the machine
	// starts reducing progress updates.
	snapshot, err = opts.API.GetRoomByCode(ctx, opts.RoomCode)
	if err != nil {
		return "", nil, fmt.Errorf("failed to reload room %s: %w", opts.RoomCode, err)
	}
	return player.ID, snapshot, nil
}

// resetRound swaps in a fresh reconciler for a new canonical text. The
// old reconciler's pending debounces are abandoned.
func (s *Session) resetRound(text string) {
	s.mu.Lock()
	if s.reconciler != nil {
		s.reconciler.Teardown()
	}
	rec := input.NewReconciler(text, s.inputConfig, s.clock)
	s.reconciler = rec
	s.mu.Unlock()

	s.Machine.SetTypedSource(func() (string, int) {
		return rec.TypedText(), rec.Position()
	})
	rec.OnReport(func(rep input.Report) {
		s.Machine.ReportProgress(rep.Typed, rep.Position)
	})
	rec.OnIdle(func(idle bool) {
		if !idle {
			s.Machine.MarkTypingStarted()
		}
	})
	rec.OnComplete(func() {
		// Completion must not wait out the debounce window; flush the
		// final state immediately.
		s.Machine.ReportProgress(rec.TypedText(), rec.Position())
	})
}

func (s *Session) current() *input.Reconciler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler
}

// Type feeds one keystroke into the session. Input outside the typing
// phase is swallowed.
func (s *Session) Type(ch rune) bool {
	if s.Machine.Phase() != race.PhaseTyping {
		return false
	}
	return s.current().Type(ch)
}

// Backspace feeds a backspace into the session.
func (s *Session) Backspace() bool {
	if s.Machine.Phase() != race.PhaseTyping {
		return false
	}
	return s.current().Backspace()
}

// Reconciler exposes the active round's typing state for rendering.
func (s *Session) Reconciler() *input.Reconciler {
	return s.current()
}

// Close tears the session down: pending debounces are abandoned, timers
// cancelled and the room channel closed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.reconciler != nil {
		s.reconciler.Teardown()
	}
	s.mu.Unlock()

	s.Machine.Teardown()
	if s.tp != nil {
		return s.tp.Close()
	}
	return nil
}
