package sim

// Direction of a classified order-flow signal, or of a held position.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

// String renders the direction as stored in the trade history.
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return ""
	}
}

// ParseDirection maps a stored direction string back to its enum value.
func ParseDirection(s string) Direction {
	switch s {
	case "UP":
		return DirectionUp
	case "DOWN":
		return DirectionDown
	default:
		return DirectionNone
	}
}

// Strength qualifies a directional signal. It never changes the direction,
// only the upstream classifier's conviction.
type Strength int

const (
	StrengthNormal Strength = iota
	StrengthStrong
)

// Signal is one classified directional reading with a 0-100 confidence
// score. Direction None means no directional signal this tick.
type Signal struct {
	Direction  Direction
	Strength   Strength
	Confidence int
}

// Label renders the signal the way the classifier names it.
func (s Signal) Label() string {
	if s.Direction == DirectionNone {
		return "NEUTRAL"
	}
	if s.Strength == StrengthStrong {
		return "STRONG " + s.Direction.String()
	}
	return s.Direction.String()
}

// Entry gate thresholds: a direction must persist for EntryAfterN
// consecutive observations and the classifier must report at least
// MinConfidence before capital is committed.
const (
	EntryAfterN   = 4
	MinConfidence = 65
)

// Streak counts consecutive same-direction signals.
type Streak struct {
	Direction Direction
	Count     int
}

// StreakTracker is the entry gate's noise filter.
type StreakTracker struct {
	streak Streak
}

// Observe feeds one classified signal and reports whether the entry gate is
// satisfied. Non-directional signals reset the streak; a direction flip
// restarts the count at 1. A failed confidence check leaves the streak
// intact, so a later high-confidence signal on the same run can still enter.
func (st *StreakTracker) Observe(sig Signal) bool {
	if sig.Direction == DirectionNone {
		st.Reset()
		return false
	}

	if st.streak.Direction == sig.Direction {
		st.streak.Count++
	} else {
		st.streak = Streak{Direction: sig.Direction, Count: 1}
	}

	if st.streak.Count < EntryAfterN {
		return false
	}
	return sig.Confidence >= MinConfidence
}

// Reset clears the streak. Called on non-directional signals and whenever a
// trade is entered, closed or cancelled.
func (st *StreakTracker) Reset() {
	st.streak = Streak{}
}

// Current returns the streak as of the last observation.
func (st *StreakTracker) Current() Streak {
	return st.streak
}
