package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name      string
		typed     string
		canonical string
		wantPos   int
		wantWrong []int
	}{
		{
			name:      "empty input",
			typed:     "",
			canonical: "hello world",
			wantPos:   0,
		},
		{
			name:      "fully correct prefix",
			typed:     "hello",
			canonical: "hello world",
			wantPos:   5,
		},
		{
			name:      "complete match",
			typed:     "hello world",
			canonical: "hello world",
			wantPos:   11,
		},
		{
			name:      "mismatch freezes position",
			typed:     "helxo",
			canonical: "hello world",
			wantPos:   3,
			wantWrong: []int{3},
		},
		{
			name:      "coincidental match after error does not advance",
			typed:     "the cit",
			canonical: "the cat sat",
			wantPos:   5,
			wantWrong: []int{5},
		},
		{
			name:      "error at first character",
			typed:     "xello",
			canonical: "hello",
			wantPos:   0,
			wantWrong: []int{0},
		},
		{
			name:      "multiple errors",
			typed:     "hexxo",
			canonical: "hello",
			wantPos:   2,
			wantWrong: []int{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, wrong := Position(tt.typed, tt.canonical)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantWrong, wrong)
		})
	}
}

func TestComputeScenario(t *testing.T) {
	// Canonical "the cat sat", typed "the cit": index 4 ('c') still
	// matches, index 5 ('i' vs 'a') is the first error, index 6 ('t')
	// matches coincidentally but cannot advance the position.
	res := Compute("the cit", "the cat sat", 30*time.Second)

	pos, wrong := Position("the cit", "the cat sat")
	require.Equal(t, 5, pos)
	require.Equal(t, []int{5}, wrong)

	assert.Equal(t, 6, res.CorrectChars)
	assert.Equal(t, 1, res.IncorrectChars)
	assert.Equal(t, 7, res.TotalChars)
	// 6 correct chars / 5 / 0.5 minutes = 2.4, rounded to 2.
	assert.Equal(t, 2, res.WPM)
	// 7 total chars / 5 / 0.5 minutes = 2.8, rounded to 3.
	assert.Equal(t, 3, res.RawWPM)
	assert.InDelta(t, 100.0*6.0/7.0, res.Accuracy, 1e-9)
}

func TestComputeZeroElapsed(t *testing.T) {
	for _, elapsed := range []time.Duration{0, -time.Second} {
		res := Compute("hello", "hello", elapsed)
		assert.Zero(t, res.WPM)
		assert.Zero(t, res.RawWPM)
		assert.GreaterOrEqual(t, res.WPM, 0)
		assert.GreaterOrEqual(t, res.RawWPM, 0)
	}
}

func TestComputeWPM(t *testing.T) {
	// 60 correct chars in one minute is exactly 12 WPM.
	typed := ""
	for i := 0; i < 12; i++ {
		typed += "abcde"
	}
	res := Compute(typed, typed, time.Minute)
	assert.Equal(t, 12, res.WPM)
	assert.Equal(t, 12, res.RawWPM)
	assert.Equal(t, 100.0, res.Accuracy)
}

func TestAccuracyBounds(t *testing.T) {
	tests := []struct {
		name      string
		typed     string
		canonical string
		want      float64
	}{
		{"empty input is perfect", "", "anything", 100},
		{"all correct", "abc", "abc", 100},
		{"all wrong", "xyz", "abc", 0},
		{"half wrong", "ax", "ab", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(tt.typed, tt.canonical, time.Minute)
			assert.Equal(t, tt.want, res.Accuracy)
			assert.GreaterOrEqual(t, res.Accuracy, 0.0)
			assert.LessOrEqual(t, res.Accuracy, 100.0)
		})
	}
}

func TestCharCountsBeyondCanonical(t *testing.T) {
	// The reconciler truncates input at the canonical length, but the
	// counting rule itself treats overflow as incorrect.
	correct, incorrect := CharCounts("abcx", "ab")
	assert.Equal(t, 2, correct)
	assert.Equal(t, 2, incorrect)
}
