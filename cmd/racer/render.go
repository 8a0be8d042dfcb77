package main

import (
	"fmt"
	"strings"

	"github.com/velotype/racer/internal/race"
)

// renderer prints race state to the terminal. It tracks the last phase
// so the passage is printed once per round, with a live status line
// underneath.
type renderer struct {
	localID   string
	lastPhase race.Phase
}

func newRenderer(localID string) *renderer {
	return &renderer{localID: localID}
}

func (r *renderer) render(snap race.Snapshot) {
	if snap.Room == nil {
		return
	}

	if snap.Phase != r.lastPhase {
		r.lastPhase = snap.Phase
		switch snap.Phase {
		case race.PhaseWaiting:
			fmt.Printf("\r\nWaiting for players in room %s (%d joined). Creator presses Enter to start.\r\n",
				snap.Room.Code, len(snap.Room.Players))
		case race.PhaseTyping:
			fmt.Printf("\r\nGo!\r\n%s\r\n", snap.Room.Text)
		case race.PhaseFinished:
			r.renderResult(snap)
			return
		}
	}

	switch snap.Phase {
	case race.PhaseCountdown:
		fmt.Printf("\rStarting in %d... ", snap.Countdown)
	case race.PhaseTyping:
		fmt.Printf("\r%s", r.statusLine(snap))
	}
}

func (r *renderer) statusLine(snap race.Snapshot) string {
	total := len(snap.Room.Text)
	if total == 0 {
		total = 1
	}

	var b strings.Builder
	for _, p := range snap.Room.Players {
		marker := " "
		if p.ID == r.localID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s%-10s %3d%% %3dwpm  ", marker, p.Nickname, p.CurrentPosition*100/total, p.WPM)
	}
	if snap.TimeLeft > 0 {
		fmt.Fprintf(&b, "| %ds left", int(snap.TimeLeft.Seconds()))
	}
	return b.String()
}

func (r *renderer) renderResult(snap race.Snapshot) {
	fmt.Print("\r\n\r\nRound over.\r\n")
	if snap.Result != nil {
		fmt.Printf("  wpm: %d   raw: %d   accuracy: %.1f%%   (%d/%d chars correct)\r\n",
			snap.Result.WPM, snap.Result.RawWPM, snap.Result.Accuracy,
			snap.Result.CorrectChars, snap.Result.TotalChars)
	}
	if snap.Room.IsCreator(r.localID) {
		fmt.Print("Press Enter for another round.\r\n")
	}
}
