package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obitrader/polysim/internal/obi"
	"github.com/obitrader/polysim/internal/polymarket"
	"github.com/obitrader/polysim/internal/sim"
)

type nullStore struct{}

func (nullStore) SaveTrade(*sim.Trade) error { return nil }
func (nullStore) SavePortfolioState(decimal.Decimal, decimal.Decimal, []decimal.Decimal, int64) error {
	return nil
}
func (nullStore) LoadState() (*sim.State, error) { return &sim.State{}, nil }

type fakeSource struct {
	market *polymarket.Market
	err    error
	calls  int
}

func (s *fakeSource) FindActiveMarket(context.Context, time.Time) (*polymarket.Market, error) {
	s.calls++
	return s.market, s.err
}

type fakeFeed struct {
	book      *obi.Book
	connected bool
	watched   []string
	refreshes int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{book: obi.NewBook(), connected: true}
}

func (f *fakeFeed) Watch(tokenID string) { f.watched = append(f.watched, tokenID) }
func (f *fakeFeed) Book() *obi.Book      { return f.book }
func (f *fakeFeed) Connected() bool      { return f.connected }
func (f *fakeFeed) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

type fakeNotifier struct {
	opened, resolved, cancelled int
}

func (n *fakeNotifier) NotifyOpened(*sim.Trade)                    { n.opened++ }
func (n *fakeNotifier) NotifyResolved(*sim.Trade, decimal.Decimal) { n.resolved++ }
func (n *fakeNotifier) NotifyCancelled(*sim.Trade)                 { n.cancelled++ }

func upBook() []obi.RawLevel {
	return []obi.RawLevel{{Price: "0.40", Size: "300"}}
}

func askBook() []obi.RawLevel {
	return []obi.RawLevel{{Price: "0.44", Size: "100"}}
}

type harness struct {
	engine    *Engine
	source    *fakeSource
	feed      *fakeFeed
	notifier  *fakeNotifier
	portfolio *sim.Portfolio
	now       time.Time
}

func newHarness(t *testing.T, endIn time.Duration) *harness {
	t.Helper()

	now := time.Date(2026, 2, 22, 16, 40, 0, 0, time.UTC)
	market := &polymarket.Market{
		ConditionID:     "cond-1",
		Question:        "Solana Up or Down - 5min",
		Slug:            "sol-updown-5m-1771778400",
		AcceptingOrders: true,
		EndDate:         now.Add(endIn),
		UpTokenID:       "tok-up",
		DownTokenID:     "tok-down",
		UpPrice:         decimal.NewFromFloat(0.41),
		DownPrice:       decimal.NewFromFloat(0.59),
	}

	h := &harness{
		source:    &fakeSource{market: market},
		feed:      newFakeFeed(),
		notifier:  &fakeNotifier{},
		portfolio: sim.NewPortfolio(sim.DefaultInitialCapital, sim.DefaultTradePct, nullStore{}),
		now:       now,
	}
	h.feed.book.Replace(upBook(), askBook())

	h.engine = New(Options{
		Portfolio:  h.portfolio,
		Markets:    h.source,
		Feed:       h.feed,
		Classifier: obi.NewClassifier(obi.DefaultThreshold, obi.DefaultWindowSize),
		Notifier:   h.notifier,
	})
	h.engine.now = func() time.Time { return h.now }
	return h
}

func (h *harness) tick() { h.engine.tick() }

func TestTickAdoptsMarketAndWatchesUpToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	h.tick()

	assert.Equal(t, 1, h.source.calls)
	assert.Equal(t, []string{"tok-up"}, h.feed.watched)
}

func TestTickDiscoveryFailureRetries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	h.source.err = errors.New("gamma down")
	h.tick()
	h.tick()
	assert.Equal(t, 2, h.source.calls)
	assert.Nil(t, h.portfolio.ActiveTrade())

	h.source.err = nil
	h.tick()
	assert.Equal(t, 3, h.source.calls)
}

func TestEntryAfterStreak(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)

	// Strongly bid book: OBI 0.5, confidence capped at 99.
	for i := 0; i < 3; i++ {
		h.tick()
		assert.Nil(t, h.portfolio.ActiveTrade())
	}
	h.tick()

	tr := h.portfolio.ActiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, sim.DirectionUp, tr.Direction)
	// VWAP of the fake book: (0.40*300 + 0.44*100) / 400 = 0.41
	assert.True(t, tr.EntryPrice.Equal(decimal.NewFromFloat(0.41)))
	assert.Equal(t, 1, h.notifier.opened)

	// Still only one position.
	h.tick()
	assert.Equal(t, 1, h.notifier.opened)
}

func TestCloseOnMarketEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	for i := 0; i < 4; i++ {
		h.tick()
	}
	require.NotNil(t, h.portfolio.ActiveTrade())

	// Walk past the close cutoff. UP trades at 0.41 < 0.5, so the held side
	// loses.
	h.now = h.source.market.EndDate.Add(-2 * time.Second)
	h.tick()

	assert.Nil(t, h.portfolio.ActiveTrade())
	assert.Equal(t, 1, h.notifier.resolved)
	assert.True(t, h.portfolio.Capital().Equal(decimal.NewFromInt(100)))

	// Market was rotated; the next tick discovers again.
	h.tick()
	assert.Equal(t, 2, h.source.calls)
}

func TestNearCertainEarlyClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	for i := 0; i < 4; i++ {
		h.tick()
	}
	require.NotNil(t, h.portfolio.ActiveTrade())

	// Prices collapse: VWAP (0.99*300 + 0.995*100) / 400 = 0.99125.
	h.feed.book.Replace(
		[]obi.RawLevel{{Price: "0.99", Size: "300"}},
		[]obi.RawLevel{{Price: "0.995", Size: "100"}},
	)
	h.tick()

	assert.Nil(t, h.portfolio.ActiveTrade())
	assert.Equal(t, 1, h.notifier.resolved)
	// Held UP side won: capital = 100 + 2 + (2/0.41 shares - 2).
	assert.True(t, h.portfolio.Capital().GreaterThan(decimal.NewFromInt(100)))
}

func TestCancelWhenMarketEndsWithoutPrices(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	for i := 0; i < 4; i++ {
		h.tick()
	}
	require.NotNil(t, h.portfolio.ActiveTrade())
	before := h.portfolio.Capital()

	// Book disappears and the market carries no prices.
	h.feed.book = obi.NewBook()
	h.feed.connected = false
	h.source.market.UpPrice = decimal.Zero
	h.source.market.DownPrice = decimal.Zero
	h.now = h.source.market.EndDate.Add(-2 * time.Second)
	h.tick()

	assert.Nil(t, h.portfolio.ActiveTrade())
	assert.Equal(t, 1, h.notifier.cancelled)
	assert.Equal(t, 0, h.notifier.resolved)
	assert.True(t, h.portfolio.Capital().Equal(before))
}

func TestRefreshFallbackWhenBookEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	h.feed.book = obi.NewBook()
	h.tick()
	assert.Equal(t, 1, h.feed.refreshes)
}

func TestStopCancelsOpenTrade(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	for i := 0; i < 4; i++ {
		h.tick()
	}
	require.NotNil(t, h.portfolio.ActiveTrade())

	h.engine.Stop()
	assert.Nil(t, h.portfolio.ActiveTrade())
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4*time.Minute)
	h.engine.pollInterval = time.Hour
	h.engine.Start()
	h.engine.Start() // idempotent
	h.engine.Stop()
	h.engine.Stop() // idempotent
	assert.GreaterOrEqual(t, h.source.calls, 1)
}
