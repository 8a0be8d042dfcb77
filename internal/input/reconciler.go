// Package input reconciles raw keystrokes against the canonical text. It
// owns the only mutable typing state on the client: the local buffer is
// updated synchronously for zero-latency feedback while outbound progress
// reports are debounced onto the room channel.
package input

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velotype/racer/internal/metrics"
)

// Mode selects the input-handling policy for a round.
type Mode string

const (
	// ModeCharStream accepts every character directly into one buffer.
	// Backspace is permitted only while an uncorrected error exists.
	ModeCharStream Mode = "char-stream"

	// ModeWordCommitted buffers the current word and commits it on
	// space, which is rejected unless the word length matches exactly.
	ModeWordCommitted Mode = "word-committed"
)

// Report is the state handed to the report callback after the debounce
// window closes.
type Report struct {
	Typed    string
	Position int
}

// Config holds reconciler tunables.
type Config struct {
	Mode           Mode
	DebounceWindow time.Duration
	IdleAfter      time.Duration
}

// DefaultConfig returns the production reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeCharStream,
		DebounceWindow: 200 * time.Millisecond,
		IdleAfter:      500 * time.Millisecond,
	}
}

// Reconciler applies per-keystroke rules and tracks the local typing
// state for one round. All keystroke methods return whether the input was
// accepted; rejected input is swallowed, never an error.
type Reconciler struct {
	canonical []rune
	config    Config
	logger    zerolog.Logger

	reportDebounce *Debouncer
	idleDebounce   *Debouncer

	onReport   func(Report)
	onIdle     func(idle bool)
	onComplete func()

	mu        sync.Mutex
	typed     []rune
	position  int
	wrong     []int
	idle      bool
	completed bool

	// word-committed mode
	words     []string
	wordIdx   int
	committed []rune
	wordBuf   []rune
}

// NewReconciler creates a reconciler for one round against the given
// canonical text.
func NewReconciler(canonical string, config Config, clock clockwork.Clock) *Reconciler {
	r := &Reconciler{
		canonical:      []rune(canonical),
		config:         config,
		logger:         log.With().Str("component", "reconciler").Str("mode", string(config.Mode)).Logger(),
		reportDebounce: NewDebouncer(clock, config.DebounceWindow),
		idleDebounce:   NewDebouncer(clock, config.IdleAfter),
		idle:           true,
	}
	if config.Mode == ModeWordCommitted {
		r.words = strings.Split(canonical, " ")
	}
	return r
}

// OnReport registers the debounced progress callback.
func (r *Reconciler) OnReport(fn func(Report)) { r.onReport = fn }

// OnIdle registers the idle-cursor callback, fired on every flip.
func (r *Reconciler) OnIdle(fn func(idle bool)) { r.onIdle = fn }

// OnComplete registers the callback fired once when the typed length
// reaches the canonical length.
func (r *Reconciler) OnComplete(fn func()) { r.onComplete = fn }

// Type consumes one printable character.
func (r *Reconciler) Type(ch rune) bool {
	r.mu.Lock()

	var accepted bool
	switch r.config.Mode {
	case ModeWordCommitted:
		if ch == ' ' {
			accepted = r.commitWordLocked()
		} else {
			accepted = r.typeWordLocked(ch)
		}
	default:
		accepted = r.typeCharLocked(ch)
	}

	if !accepted {
		r.mu.Unlock()
		return false
	}
	r.afterAcceptLocked()
	return true
}

// Backspace removes the last uncommitted character, when permitted.
func (r *Reconciler) Backspace() bool {
	r.mu.Lock()

	var accepted bool
	switch r.config.Mode {
	case ModeWordCommitted:
		// Committed words are final; only the current word buffer is
		// editable.
		if len(r.wordBuf) > 0 {
			r.wordBuf = r.wordBuf[:len(r.wordBuf)-1]
			r.rebuildFromWordsLocked()
			accepted = true
		}
	default:
		// Correct committed characters cannot be erased; backspace only
		// clears an outstanding error.
		if len(r.wrong) > 0 && len(r.typed) > 0 {
			r.typed = r.typed[:len(r.typed)-1]
			r.recomputeLocked()
			accepted = true
		}
	}

	if !accepted {
		r.mu.Unlock()
		return false
	}
	r.afterAcceptLocked()
	return true
}

func (r *Reconciler) typeCharLocked(ch rune) bool {
	// Typing past the end of the canonical text is swallowed.
	if len(r.typed) >= len(r.canonical) {
		return false
	}
	r.typed = append(r.typed, ch)
	r.recomputeLocked()
	return true
}

func (r *Reconciler) typeWordLocked(ch rune) bool {
	if r.wordIdx >= len(r.words) {
		return false
	}
	if len(r.wordBuf) >= len([]rune(r.words[r.wordIdx])) {
		return false
	}
	r.wordBuf = append(r.wordBuf, ch)
	r.rebuildFromWordsLocked()
	return true
}

// commitWordLocked advances to the next word. The space is rejected
// unless the buffered word's length matches the canonical word exactly.
func (r *Reconciler) commitWordLocked() bool {
	if r.wordIdx >= len(r.words) {
		return false
	}
	if len(r.wordBuf) != len([]rune(r.words[r.wordIdx])) {
		return false
	}
	// Last word has no trailing space to commit.
	if r.wordIdx == len(r.words)-1 {
		return false
	}

	r.committed = append(r.committed, r.wordBuf...)
	r.committed = append(r.committed, ' ')
	r.wordBuf = nil
	r.wordIdx++
	r.rebuildFromWordsLocked()
	return true
}

func (r *Reconciler) rebuildFromWordsLocked() {
	r.typed = append(append([]rune{}, r.committed...), r.wordBuf...)
	r.recomputeLocked()
}

func (r *Reconciler) recomputeLocked() {
	r.position, r.wrong = metrics.Position(string(r.typed), string(r.canonical))
}

// afterAcceptLocked schedules the debounced report and restarts the idle
// window. Called with the lock held; releases it.
func (r *Reconciler) afterAcceptLocked() {
	report := Report{Typed: string(r.typed), Position: r.position}
	complete := !r.completed && len(r.typed) == len(r.canonical) && len(r.canonical) > 0
	if complete {
		r.completed = true
	}
	wasIdle := r.idle
	r.idle = false
	r.mu.Unlock()

	if wasIdle && r.onIdle != nil {
		r.onIdle(false)
	}

	r.reportDebounce.Trigger(func() {
		if r.onReport != nil {
			r.onReport(report)
		}
	})
	r.idleDebounce.Trigger(func() {
		r.mu.Lock()
		r.idle = true
		r.mu.Unlock()
		if r.onIdle != nil {
			r.onIdle(true)
		}
	})

	if complete && r.onComplete != nil {
		r.onComplete()
	}
}

// TypedText returns the raw keystrokes accepted so far.
func (r *Reconciler) TypedText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.typed)
}

// Position returns the longest verified-correct prefix length.
func (r *Reconciler) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// WrongIndices returns the indices of outstanding typing errors.
func (r *Reconciler) WrongIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.wrong))
	copy(out, r.wrong)
	return out
}

// IsIdle reports whether the inactivity window has elapsed since the last
// accepted keystroke.
func (r *Reconciler) IsIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idle
}

// IsComplete reports whether the typed length has reached the canonical
// length.
func (r *Reconciler) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Teardown abandons any pending debounced report and idle flip. Pending
// reports are dropped, not flushed.
func (r *Reconciler) Teardown() {
	r.reportDebounce.Stop()
	r.idleDebounce.Stop()
}
