// Package metrics derives typing statistics from a stream of keystrokes
// measured against a canonical text. All functions are pure; callers own
// clock reads and input gating.
package metrics

import (
	"math"
	"time"
)

// CharsPerWord is the conventional word length used for WPM.
const CharsPerWord = 5.0

// Result holds the statistics for a round, computed once at the finished
// transition and never mutated afterward.
type Result struct {
	WPM            int     `json:"wpm"`
	RawWPM         int     `json:"rawWpm"`
	Accuracy       float64 `json:"accuracy"`
	CorrectChars   int     `json:"correctChars"`
	IncorrectChars int     `json:"incorrectChars"`
	TotalChars     int     `json:"totalChars"`
}

// Position returns the length of the longest contiguous prefix of typed
// that matches canonical, along with the indices of every mismatched
// character. A mismatch freezes the position at the last fully-correct
// index even if later characters coincidentally match.
func Position(typed, canonical string) (int, []int) {
	t := []rune(typed)
	c := []rune(canonical)

	var wrong []int
	position := 0
	for i := 0; i < len(t) && i < len(c); i++ {
		if t[i] == c[i] {
			if len(wrong) == 0 {
				position = i + 1
			}
		} else {
			wrong = append(wrong, i)
		}
	}
	return position, wrong
}

// CharCounts compares every typed character against the canonical text.
// Characters typed beyond the canonical length count as incorrect.
func CharCounts(typed, canonical string) (correct, incorrect int) {
	t := []rune(typed)
	c := []rune(canonical)

	for i := range t {
		if i < len(c) && t[i] == c[i] {
			correct++
		} else {
			incorrect++
		}
	}
	return correct, incorrect
}

// Compute derives the full result for a round. Elapsed time at or below
// zero yields zero WPM rather than an error.
func Compute(typed, canonical string, elapsed time.Duration) Result {
	correct, incorrect := CharCounts(typed, canonical)
	total := correct + incorrect

	r := Result{
		CorrectChars:   correct,
		IncorrectChars: incorrect,
		TotalChars:     total,
		Accuracy:       Accuracy(total, incorrect),
	}

	minutes := elapsed.Minutes()
	if minutes > 0 {
		r.WPM = int(math.Round(float64(correct) / CharsPerWord / minutes))
		r.RawWPM = int(math.Round(float64(total) / CharsPerWord / minutes))
	}
	return r
}

// Accuracy returns the percentage of correct characters, clamped to
// [0, 100]. An empty input is a perfect 100.
func Accuracy(total, incorrect int) float64 {
	if total == 0 {
		return 100
	}
	acc := float64(total-incorrect) / float64(total) * 100
	if acc < 0 {
		return 0
	}
	return acc
}
