// Package race owns the client-side room and round lifecycle: the phase
// machine (waiting, countdown, typing, finished), the reducer that folds
// room channel messages into local state, and the projection that merges
// the optimistic local player slice with the authoritative remote view.
package race

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velotype/racer/internal/metrics"
	"github.com/velotype/racer/internal/models"
	"github.com/velotype/racer/internal/protocol"
	"github.com/velotype/racer/internal/transport"
	"github.com/velotype/racer/internal/words"
)

// Phase is the client-side round lifecycle state. Countdown is derived
// locally from the server-set start timestamp; the server only ever
// reports WAITING, IN_PROGRESS or FINISHED.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhaseTyping    Phase = "typing"
	PhaseFinished  Phase = "finished"
)

// Mode selects how a round ends.
type Mode string

const (
	// ModeTime ends the round when the fixed duration elapses.
	ModeTime Mode = "time"
	// ModeWords ends the round when the typed length reaches the
	// canonical text length.
	ModeWords Mode = "words"
)

// Config holds machine tunables.
type Config struct {
	// CountdownWindow is the fixed delay between the server-announced
	// start timestamp and actual typing start.
	CountdownWindow time.Duration
	// CountdownTick is the granularity of the local countdown display.
	CountdownTick time.Duration
	Mode          Mode
	// Duration bounds the round in ModeTime.
	Duration time.Duration
}

// DefaultConfig returns the production machine configuration.
func DefaultConfig() Config {
	return Config{
		CountdownWindow: 5 * time.Second,
		CountdownTick:   250 * time.Millisecond,
		Mode:            ModeWords,
		Duration:        60 * time.Second,
	}
}

// Snapshot is the read-time projection handed to observers: the remote
// room view with the local player's optimistic state overlaid.
type Snapshot struct {
	Phase     Phase
	Room      *models.Room
	Countdown int
	TimeLeft  time.Duration
	Result    *metrics.Result
}

// Machine reduces room channel messages and local events into race state.
// All mutation happens inside the machine; observers receive copies.
type Machine struct {
	localPlayerID string
	config        Config
	clock         clockwork.Clock
	tp            transport.Transport
	logger        zerolog.Logger

	mu   sync.Mutex
	room *models.Room

	onChange     func(Snapshot)
	onRoundReset func(text string)
	typedSource  func() (typed string, position int)

	phase             Phase
	countdownRemain   int
	countdownBase     time.Time
	countdownCancel   chan struct{}
	roundTimer        clockwork.Timer
	typingPhaseAt     time.Time
	typingStartedAt   time.Time
	timeLeft          time.Duration
	finished          bool
	finishedPublished bool
	result            *metrics.Result

	localTyped    string
	localPosition int
	localWPM      int
	localAccuracy float64
}

// NewMachine creates a machine for the given local player. tp may be nil
// for solo rounds; every publish is then skipped.
func NewMachine(localPlayerID string, config Config, clock clockwork.Clock, tp transport.Transport) *Machine {
	return &Machine{
		localPlayerID: localPlayerID,
		config:        config,
		clock:         clock,
		tp:            tp,
		logger:        log.With().Str("component", "race_machine").Str("player_id", localPlayerID).Logger(),
		phase:         PhaseWaiting,
		timeLeft:      config.Duration,
	}
}

// OnChange registers the observer fired after every state mutation.
// Safe to call while the transport is already delivering messages.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// OnRoundReset registers the callback fired when a restart establishes a
// new canonical text. The session rebuilds its reconciler from it.
func (m *Machine) OnRoundReset(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRoundReset = fn
}

// SetTypedSource registers the live typed-state provider. The finished
// transition consults it so keystrokes still inside the debounce window
// make it into the final result.
func (m *Machine) SetTypedSource(fn func() (typed string, position int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typedSource = fn
}

// Start seeds the machine with the initial room snapshot from the REST
// fetch. If the round is already in progress the countdown (or typing
// phase, when the window has passed) starts immediately.
func (m *Machine) Start(room *models.Room) {
	m.mu.Lock()
	m.room = room.Clone()
	m.syncPhaseLocked()
	m.mu.Unlock()
	m.notify()
}

// HandleMessage is the reducer for inbound room channel messages. It is
// the transport's subscription handler; messages arrive in order.
func (m *Machine) HandleMessage(msg *protocol.Message) {
	switch {
	case msg.IsSnapshot():
		room, err := msg.RoomPayload()
		if err != nil {
			m.logger.Debug().Err(err).Str("type", string(msg.Type)).Msg("dropping malformed snapshot")
			return
		}
		m.applySnapshot(room)

	case msg.Type == protocol.MessageTypePlayerProgress:
		progress, err := msg.ProgressPayload()
		if err != nil {
			m.logger.Debug().Err(err).Msg("dropping malformed progress")
			return
		}
		m.mergeProgress(progress)

	case msg.Type == protocol.MessageTypePlayerFinished:
		player, err := msg.PlayerPayload()
		if err != nil {
			m.logger.Debug().Err(err).Msg("dropping malformed finish")
			return
		}
		m.applyPlayerFinished(player)

	case msg.Type == protocol.MessageTypeGameOver:
		m.EndRound()

	case msg.Type == protocol.MessageTypeGameRestart:
		room, err := msg.RoomPayload()
		if err != nil {
			m.logger.Debug().Err(err).Msg("dropping malformed restart")
			return
		}
		m.applyRestart(room)

	default:
		m.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown message kind")
	}
}

// applySnapshot replaces the remote room view wholesale, last writer
// wins, and derives any phase change from the new game state.
func (m *Machine) applySnapshot(room *models.Room) {
	m.mu.Lock()
	m.room = room.Clone()
	m.syncPhaseLocked()
	m.mu.Unlock()
	m.notify()
}

// syncPhaseLocked derives the local phase from the room's game state.
func (m *Machine) syncPhaseLocked() {
	if m.room == nil || m.phase == PhaseFinished {
		return
	}
	if m.room.GameState == models.GameStateInProgress && m.room.GameStartedAt != nil {
		m.beginCountdownLocked(*m.room.GameStartedAt)
	}
}

// mergeProgress folds a remote player's progress into the roster. Merges
// only position, wpm and accuracy; the local player and unknown ids are
// skipped entirely.
func (m *Machine) mergeProgress(progress *protocol.ProgressPayload) {
	if progress.PlayerID == m.localPlayerID {
		// Local state is authoritative for self; a stale echo must not
		// clobber optimistic progress.
		return
	}

	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return
	}
	player := m.room.PlayerByID(progress.PlayerID)
	if player == nil {
		m.mu.Unlock()
		m.logger.Debug().Str("from", progress.PlayerID).Msg("progress for unknown player, dropping")
		return
	}
	player.CurrentPosition = progress.CurrentPosition
	player.WPM = progress.WPM
	player.Accuracy = progress.Accuracy
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) applyPlayerFinished(player *models.Player) {
	if player.ID == m.localPlayerID {
		m.EndRound()
		return
	}

	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return
	}
	if p := m.room.PlayerByID(player.ID); p != nil {
		p.IsFinished = true
		p.FinishedAt = player.FinishedAt
		p.WPM = player.WPM
		p.Accuracy = player.Accuracy
	}
	m.mu.Unlock()
	m.notify()
}

// applyRestart replaces the snapshot with the new round's room and clears
// all per-round derived state.
func (m *Machine) applyRestart(room *models.Room) {
	m.mu.Lock()
	m.stopTimersLocked()
	m.room = room.Clone()
	m.phase = PhaseWaiting
	m.finished = false
	m.finishedPublished = false
	m.result = nil
	m.localTyped = ""
	m.localPosition = 0
	m.localWPM = 0
	m.localAccuracy = 0
	m.typingStartedAt = time.Time{}
	m.typingPhaseAt = time.Time{}
	m.timeLeft = m.config.Duration
	m.countdownBase = time.Time{}
	text := room.Text
	reset := m.onRoundReset
	m.syncPhaseLocked()
	m.mu.Unlock()

	if reset != nil {
		reset(text)
	}
	m.notify()
}

// beginCountdownLocked derives the countdown from the server start
// timestamp. Duplicate snapshots with the same timestamp are no-ops; a
// window that has already elapsed skips straight to typing.
func (m *Machine) beginCountdownLocked(gameStartedAt time.Time) {
	if m.phase == PhaseTyping || m.phase == PhaseFinished {
		return
	}
	if m.phase == PhaseCountdown && m.countdownBase.Equal(gameStartedAt) {
		return
	}
	m.countdownBase = gameStartedAt

	readyTime := gameStartedAt.Add(m.config.CountdownWindow)
	remaining := readyTime.Sub(m.clock.Now())
	if remaining <= 0 {
		m.enterTypingLocked()
		return
	}

	m.phase = PhaseCountdown
	m.countdownRemain = int(math.Ceil(remaining.Seconds()))

	if m.countdownCancel != nil {
		close(m.countdownCancel)
	}
	cancel := make(chan struct{})
	m.countdownCancel = cancel

	ticker := m.clock.NewTicker(m.config.CountdownTick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.Chan():
				if m.tickCountdown(readyTime, cancel) {
					return
				}
			}
		}
	}()

	m.logger.Info().Time("ready_at", readyTime).Msg("countdown started")
}

// tickCountdown advances the countdown display and reports whether the
// ticker should stop.
func (m *Machine) tickCountdown(readyTime time.Time, cancel chan struct{}) bool {
	m.mu.Lock()
	if m.phase != PhaseCountdown || m.countdownCancel != cancel {
		m.mu.Unlock()
		return true
	}
	remaining := readyTime.Sub(m.clock.Now())
	if remaining <= 0 {
		m.enterTypingLocked()
		m.mu.Unlock()
		m.notify()
		return true
	}
	next := int(math.Ceil(remaining.Seconds()))
	changed := next != m.countdownRemain
	m.countdownRemain = next
	m.mu.Unlock()
	if changed {
		m.notify()
	}
	return false
}

func (m *Machine) enterTypingLocked() {
	m.phase = PhaseTyping
	m.countdownRemain = 0
	if m.countdownCancel != nil {
		close(m.countdownCancel)
		m.countdownCancel = nil
	}

	m.typingPhaseAt = m.clock.Now()
	if m.config.Mode == ModeTime {
		m.timeLeft = m.config.Duration
		m.roundTimer = m.clock.AfterFunc(m.config.Duration, m.EndRound)
	}
	m.logger.Info().Str("mode", string(m.config.Mode)).Msg("typing phase entered")
}

// MarkTypingStarted pins the elapsed-time origin to the first accepted
// keystroke. Subsequent calls are no-ops.
func (m *Machine) MarkTypingStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typingStartedAt.IsZero() {
		m.typingStartedAt = m.clock.Now()
	}
}

// ReportProgress consumes a debounced report from the reconciler: updates
// the optimistic local slice and publishes it to the room. A words-mode
// round that has reached full length ends here without waiting for a
// timer tick.
func (m *Machine) ReportProgress(typed string, position int) {
	m.mu.Lock()
	if m.phase != PhaseTyping || m.room == nil {
		m.mu.Unlock()
		return
	}
	if m.typingStartedAt.IsZero() {
		m.typingStartedAt = m.clock.Now()
	}
	m.localTyped = typed
	m.localPosition = position

	res := metrics.Compute(typed, m.room.Text, m.clock.Since(m.typingStartedAt))
	m.localWPM = res.WPM
	m.localAccuracy = res.Accuracy

	payload := protocol.ProgressPayload{
		RoomID:          m.room.ID,
		PlayerID:        m.localPlayerID,
		CurrentPosition: position,
		WPM:             res.WPM,
		Accuracy:        res.Accuracy,
	}
	complete := m.config.Mode == ModeWords && len([]rune(typed)) == len([]rune(m.room.Text))
	m.mu.Unlock()

	if m.tp != nil {
		if err := m.tp.Publish(protocol.DestProgress, payload); err != nil {
			m.logger.Warn().Err(err).Msg("progress publish dropped")
		}
	}
	m.notify()

	if complete {
		m.EndRound()
	}
}

// EndRound performs the idempotent terminal transition: the first caller
// wins, whether that is the local completion condition, the round timer,
// or an authoritative GAME_OVER. The finish report is published exactly
// once.
func (m *Machine) EndRound() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	m.phase = PhaseFinished
	m.stopTimersLocked()

	// A finish can land mid-debounce; pull the live typed state so the
	// result never trails the last accepted keystroke.
	if m.typedSource != nil {
		m.localTyped, m.localPosition = m.typedSource()
	}

	elapsed := m.roundElapsedLocked()
	canonical := ""
	roomID := ""
	if m.room != nil {
		canonical = m.room.Text
		roomID = m.room.ID
	}
	res := metrics.Compute(m.localTyped, canonical, elapsed)
	m.result = &res
	m.localWPM = res.WPM
	m.localAccuracy = res.Accuracy

	publish := !m.finishedPublished
	m.finishedPublished = true
	m.mu.Unlock()

	if publish && m.tp != nil {
		err := m.tp.Publish(protocol.DestFinish, protocol.FinishPayload{
			RoomID:   roomID,
			PlayerID: m.localPlayerID,
			WPM:      res.WPM,
			Accuracy: res.Accuracy,
		})
		if err != nil {
			m.logger.Warn().Err(err).Msg("finish publish dropped")
		}
	}

	m.logger.Info().Int("wpm", res.WPM).Float64("accuracy", res.Accuracy).Msg("round finished")
	m.notify()
}

func (m *Machine) roundElapsedLocked() time.Duration {
	if m.typingStartedAt.IsZero() {
		return 0
	}
	return m.clock.Since(m.typingStartedAt)
}

// RequestStart publishes a start-game request. Only the room creator may
// start the round; others are rejected locally.
func (m *Machine) RequestStart() bool {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()

	if room == nil || !room.IsCreator(m.localPlayerID) || m.tp == nil {
		return false
	}
	err := m.tp.Publish(protocol.DestStart, protocol.StartPayload{
		RoomID:   room.ID,
		PlayerID: m.localPlayerID,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("start publish dropped")
		return false
	}
	return true
}

// RequestRestart publishes a restart carrying a fresh passage of the same
// word count. Only the room creator may restart.
func (m *Machine) RequestRestart() bool {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()

	if room == nil || !room.IsCreator(m.localPlayerID) || m.tp == nil {
		return false
	}
	count := words.CountIn(room.Text)
	if count == 0 {
		count = 50
	}
	err := m.tp.Publish(protocol.DestRestart, protocol.RestartPayload{
		RoomID:  room.ID,
		NewText: words.Generate(count),
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("restart publish dropped")
		return false
	}
	return true
}

// Snapshot projects the current state for observers: a clone of the
// remote room view with the local player's optimistic slice overlaid.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:     m.phase,
		Countdown: m.countdownRemain,
		TimeLeft:  m.timeLeft,
		Result:    m.result,
	}
	if m.config.Mode == ModeTime && m.phase == PhaseTyping && !m.typingPhaseAt.IsZero() {
		left := m.config.Duration - m.clock.Since(m.typingPhaseAt)
		if left < 0 {
			left = 0
		}
		snap.TimeLeft = left
	}
	if m.room != nil {
		room := m.room.Clone()
		if local := room.PlayerByID(m.localPlayerID); local != nil {
			local.CurrentPosition = m.localPosition
			local.WPM = m.localWPM
			local.Accuracy = m.localAccuracy
			local.IsFinished = m.finished
		}
		snap.Room = room
	}
	return snap
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Result returns the final round result, or nil before the finished
// transition.
func (m *Machine) Result() *metrics.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Teardown cancels every pending timer so no stale tick mutates state
// after logical completion.
func (m *Machine) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimersLocked()
}

func (m *Machine) stopTimersLocked() {
	if m.countdownCancel != nil {
		close(m.countdownCancel)
		m.countdownCancel = nil
	}
	if m.roundTimer != nil {
		m.roundTimer.Stop()
		m.roundTimer = nil
	}
}

func (m *Machine) notify() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(m.Snapshot())
	}
}
