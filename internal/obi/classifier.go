package obi

import (
	"github.com/shopspring/decimal"

	"github.com/obitrader/polysim/internal/sim"
)

// Default classifier tuning.
var (
	DefaultThreshold = decimal.NewFromFloat(0.15)
)

const (
	DefaultWindowSize = 8
	DefaultTopLevels  = 15

	neutralConfidence = 50
	maxConfidence     = 99
)

var (
	nowWeight    = decimal.NewFromFloat(0.6)
	windowWeight = decimal.NewFromFloat(0.4)
	confScale    = decimal.NewFromFloat(0.5)
	two          = decimal.NewFromInt(2)
)

// Classifier turns a stream of instantaneous OBI readings into directional
// signals. Each reading is blended with the rolling window average (60% now,
// 40% window) before being compared against the threshold; doubling the
// threshold upgrades the signal to STRONG.
type Classifier struct {
	threshold  decimal.Decimal
	windowSize int
	window     []decimal.Decimal
}

// NewClassifier builds a classifier with the given imbalance threshold and
// rolling window length. Zero or negative arguments fall back to defaults.
func NewClassifier(threshold decimal.Decimal, windowSize int) *Classifier {
	if !threshold.GreaterThan(decimal.Zero) {
		threshold = DefaultThreshold
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Classifier{threshold: threshold, windowSize: windowSize}
}

// Observe records one OBI reading and classifies it. The returned combined
// value is the blended imbalance the decision was made on.
func (c *Classifier) Observe(obiNow decimal.Decimal) (sim.Signal, decimal.Decimal) {
	c.window = append(c.window, obiNow)
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}

	combined := nowWeight.Mul(obiNow).Add(windowWeight.Mul(c.WindowAverage()))
	abs := combined.Abs()

	if abs.LessThanOrEqual(c.threshold) {
		return sim.Signal{Confidence: neutralConfidence}, combined
	}

	sig := sim.Signal{Confidence: confidence(abs)}
	if combined.GreaterThan(decimal.Zero) {
		sig.Direction = sim.DirectionUp
	} else {
		sig.Direction = sim.DirectionDown
	}
	if abs.GreaterThan(c.threshold.Mul(two)) {
		sig.Strength = sim.StrengthStrong
	}
	return sig, combined
}

// WindowAverage returns the mean OBI over the current window, zero when the
// window is empty.
func (c *Classifier) WindowAverage() decimal.Decimal {
	if len(c.window) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, o := range c.window {
		sum = sum.Add(o)
	}
	return sum.Div(decimal.NewFromInt(int64(len(c.window))))
}

// History returns the window readings, oldest first.
func (c *Classifier) History() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.window))
	copy(out, c.window)
	return out
}

// Reset clears the window, used when rotating to a new market slot.
func (c *Classifier) Reset() {
	c.window = c.window[:0]
}

// Threshold returns the configured imbalance threshold.
func (c *Classifier) Threshold() decimal.Decimal {
	return c.threshold
}

// confidence maps an absolute combined imbalance to a 50..99 score:
// 50 + (|c| / 0.5) * 50, truncated and capped at 99.
func confidence(abs decimal.Decimal) int {
	conf := abs.Div(confScale).Mul(decimal.NewFromInt(50)).Add(decimal.NewFromInt(50))
	n := int(conf.IntPart())
	if n > maxConfidence {
		return maxConfidence
	}
	return n
}
