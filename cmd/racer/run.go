package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/velotype/racer/internal/api"
	"github.com/velotype/racer/internal/input"
	"github.com/velotype/racer/internal/models"
	"github.com/velotype/racer/internal/race"
	"github.com/velotype/racer/internal/session"
	"github.com/velotype/racer/internal/transport"
	"github.com/velotype/racer/internal/words"
)

func buildStore(cfg *config) (session.Store, error) {
	path := cfg.identityPath
	if path == "" {
		var err error
		path, err = session.DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}
	return session.NewFileStore(path)
}

func buildTransport(cfg *config) transport.Transport {
	if cfg.transport == "nats" {
		natsCfg := transport.DefaultNATSConfig()
		natsCfg.URL = cfg.natsURL
		return transport.NewNATSTransport(natsCfg)
	}
	return transport.NewWSTransport(cfg.serverURL, transport.DefaultWSConfig(), clockwork.NewRealClock())
}

func machineConfig(cfg *config) race.Config {
	mc := race.DefaultConfig()
	if cfg.mode == "time" {
		mc.Mode = race.ModeTime
		mc.Duration = cfg.duration
	}
	return mc
}

func inputConfig(cfg *config) input.Config {
	ic := input.DefaultConfig()
	if cfg.inputMode == "word-committed" {
		ic.Mode = input.ModeWordCommitted
	}
	return ic
}

// runSession drives a multiplayer session: keystrokes in, rendered race
// state out, until the user quits with Ctrl-C or Esc.
func runSession(cmd *cobra.Command, cfg *config, roomCode string) error {
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.serverURL)
	tp := buildTransport(cfg)

	s, err := session.Start(cmd.Context(), session.Options{
		RoomCode:      roomCode,
		Nickname:      cfg.nickname,
		API:           client,
		Transport:     tp,
		Store:         store,
		MachineConfig: machineConfig(cfg),
		InputConfig:   inputConfig(cfg),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	r := newRenderer(s.PlayerID)
	s.Machine.OnChange(r.render)
	r.render(s.Machine.Snapshot())

	go watchConnectivity(tp)

	restore, err := enableRawMode()
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer restore()

	reader := bufio.NewReader(os.Stdin)
	for {
		ch, _, err := reader.ReadRune()
		if err != nil {
			return nil
		}

		switch {
		case ch == 3 || ch == 27: // Ctrl-C, Esc
			fmt.Print("\r\n")
			return nil
		case ch == '\r' || ch == '\n':
			handleEnter(cmd, s, client)
		case ch == 127 || ch == 8:
			s.Backspace()
		case ch >= ' ':
			s.Type(ch)
		}
	}
}

// handleEnter starts the round from the waiting phase and restarts it
// from the finished phase. Both are creator-only; others see no effect.
func handleEnter(cmd *cobra.Command, s *session.Session, client *api.Client) {
	switch s.Machine.Phase() {
	case race.PhaseWaiting:
		snap := s.Machine.Snapshot()
		if snap.Room != nil && snap.Room.IsCreator(s.PlayerID) {
			client.StartGame(cmd.Context(), snap.Room.ID)
		}
	case race.PhaseFinished:
		s.Machine.RequestRestart()
	}
}

func watchConnectivity(tp transport.Transport) {
	for ev := range tp.Events() {
		if ev.Kind == transport.EventDisconnected {
			fmt.Print("\r\n-- connection lost, racing on while we reconnect --\r\n")
		}
	}
}

// runSolo drives a practice round against a generated passage with no
// backend at all: same machine and reconciler, nil transport.
func runSolo(cmd *cobra.Command, cfg *config) error {
	playerID := uuid.New().String()
	clock := clockwork.NewRealClock()

	text := words.Generate(cfg.wordCount)
	now := clock.Now()
	started := now.Add(-time.Minute) // no countdown for solo play
	me := models.Player{ID: playerID, Nickname: cfg.nickname, JoinedAt: now}
	room := &models.Room{
		ID:            "solo-" + playerID[:8],
		Code:          "SOLO",
		GameState:     models.GameStateInProgress,
		Text:          text,
		Players:       []models.Player{me},
		CreatedBy:     &me,
		MaxPlayers:    1,
		CreatedAt:     now,
		GameStartedAt: &started,
	}

	m := race.NewMachine(playerID, machineConfig(cfg), clock, nil)
	defer m.Teardown()

	rec := input.NewReconciler(text, inputConfig(cfg), clock)
	defer rec.Teardown()
	m.SetTypedSource(func() (string, int) { return rec.TypedText(), rec.Position() })
	rec.OnReport(func(rep input.Report) { m.ReportProgress(rep.Typed, rep.Position) })
	rec.OnIdle(func(idle bool) {
		if !idle {
			m.MarkTypingStarted()
		}
	})
	rec.OnComplete(func() { m.ReportProgress(rec.TypedText(), rec.Position()) })

	r := newRenderer(playerID)
	m.OnChange(r.render)
	m.Start(room)

	restore, err := enableRawMode()
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer restore()

	reader := bufio.NewReader(os.Stdin)
	for {
		ch, _, err := reader.ReadRune()
		if err != nil {
			return nil
		}
		switch {
		case ch == 3 || ch == 27:
			fmt.Print("\r\n")
			return nil
		case ch == 127 || ch == 8:
			rec.Backspace()
		case ch >= ' ':
			if m.Phase() == race.PhaseTyping {
				rec.Type(ch)
			}
		}
	}
}

// enableRawMode puts the terminal into raw mode so keystrokes arrive one
// at a time, and returns the restore function.
func enableRawMode() (func(), error) {
	saved, err := sttyOutput("-g")
	if err != nil {
		return nil, err
	}
	if _, err := sttyOutput("raw", "-echo"); err != nil {
		return nil, err
	}
	state := strings.TrimSpace(saved)
	return func() { sttyOutput(state) }, nil
}

func sttyOutput(args ...string) (string, error) {
	c := exec.Command("stty", args...)
	c.Stdin = os.Stdin
	out, err := c.Output()
	if err != nil {
		return "", fmt.Errorf("stty %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
