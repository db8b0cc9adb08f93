package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		signal Signal
		want   string
	}{
		{"up", Signal{Direction: DirectionUp, Confidence: 70}, "UP"},
		{"down", Signal{Direction: DirectionDown, Confidence: 70}, "DOWN"},
		{"strong_up", Signal{Direction: DirectionUp, Strength: StrengthStrong, Confidence: 90}, "STRONG UP"},
		{"strong_down", Signal{Direction: DirectionDown, Strength: StrengthStrong, Confidence: 90}, "STRONG DOWN"},
		{"neutral", Signal{Confidence: 50}, "NEUTRAL"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.signal.Label())
		})
	}
}

func TestParseDirectionRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DirectionUp, ParseDirection(DirectionUp.String()))
	assert.Equal(t, DirectionDown, ParseDirection(DirectionDown.String()))
	assert.Equal(t, DirectionNone, ParseDirection(""))
	assert.Equal(t, DirectionNone, ParseDirection("SIDEWAYS"))
}

func TestStreakGate(t *testing.T) {
	t.Parallel()

	var st StreakTracker
	up := Signal{Direction: DirectionUp, Confidence: 99}

	// Three consecutive signals never satisfy the gate.
	for i := 0; i < EntryAfterN-1; i++ {
		assert.False(t, st.Observe(up))
	}
	assert.Equal(t, Streak{Direction: DirectionUp, Count: 3}, st.Current())

	// The fourth does.
	assert.True(t, st.Observe(up))
	assert.Equal(t, 4, st.Current().Count)
}

func TestStreakNonDirectionalReset(t *testing.T) {
	t.Parallel()

	var st StreakTracker
	up := Signal{Direction: DirectionUp, Confidence: 99}

	st.Observe(up)
	st.Observe(up)
	st.Observe(up)

	st.Observe(Signal{Confidence: 50})
	assert.Equal(t, Streak{}, st.Current())

	// A fresh directional signal starts a new count of 1.
	st.Observe(up)
	assert.Equal(t, Streak{Direction: DirectionUp, Count: 1}, st.Current())
}

func TestStreakDirectionFlipRestarts(t *testing.T) {
	t.Parallel()

	var st StreakTracker
	up := Signal{Direction: DirectionUp, Confidence: 99}
	down := Signal{Direction: DirectionDown, Confidence: 99}

	st.Observe(up)
	st.Observe(up)
	st.Observe(up)

	assert.False(t, st.Observe(down))
	assert.Equal(t, Streak{Direction: DirectionDown, Count: 1}, st.Current())
}

func TestStreakLowConfidenceKeepsCount(t *testing.T) {
	t.Parallel()

	var st StreakTracker
	weak := Signal{Direction: DirectionUp, Confidence: MinConfidence - 1}

	for i := 0; i < EntryAfterN; i++ {
		assert.False(t, st.Observe(weak))
	}
	assert.Equal(t, EntryAfterN, st.Current().Count)

	// The run survived the failed confidence checks, so one confident
	// signal on the same direction is enough.
	assert.True(t, st.Observe(Signal{Direction: DirectionUp, Confidence: MinConfidence}))
}

func TestStreakStrongQualifierSharesDirection(t *testing.T) {
	t.Parallel()

	var st StreakTracker

	st.Observe(Signal{Direction: DirectionUp, Confidence: 70})
	st.Observe(Signal{Direction: DirectionUp, Strength: StrengthStrong, Confidence: 90})

	assert.Equal(t, Streak{Direction: DirectionUp, Count: 2}, st.Current())
}
