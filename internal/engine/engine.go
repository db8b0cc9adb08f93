// Package engine drives the simulation: one loop that polls the order book,
// classifies imbalance, manages the paper position and rotates market slots.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/obitrader/polysim/internal/dashboard"
	"github.com/obitrader/polysim/internal/obi"
	"github.com/obitrader/polysim/internal/polymarket"
	"github.com/obitrader/polysim/internal/sim"
)

const (
	// A market is treated as closing once fewer seconds than this remain.
	closeCutoffSeconds = 5

	tickTimeout = 10 * time.Second
)

// Prices this close to resolution are treated as a decided market and the
// position is settled early.
var (
	nearCertainHigh = decimal.NewFromFloat(0.98)
	nearCertainLow  = decimal.NewFromFloat(0.02)
	one             = decimal.NewFromInt(1)
)

// MarketSource discovers the active up/down slot.
type MarketSource interface {
	FindActiveMarket(ctx context.Context, now time.Time) (*polymarket.Market, error)
}

// BookFeed supplies the live order book of the watched token.
type BookFeed interface {
	Watch(tokenID string)
	Book() *obi.Book
	Connected() bool
	Refresh(ctx context.Context) error
}

// Notifier receives trade lifecycle events. May be nil.
type Notifier interface {
	NotifyOpened(*sim.Trade)
	NotifyResolved(*sim.Trade, decimal.Decimal)
	NotifyCancelled(*sim.Trade)
}

// Renderer paints one dashboard frame. May be nil.
type Renderer interface {
	Render(*dashboard.View)
}

// Engine is the single logical actor of the simulator. All portfolio
// mutations happen on its tick goroutine.
type Engine struct {
	portfolio  *sim.Portfolio
	markets    MarketSource
	feed       BookFeed
	classifier *obi.Classifier

	notifier Notifier
	renderer Renderer

	pollInterval time.Duration
	topLevels    int
	windowSize   int

	market   *polymarket.Market
	snapshot int

	now func() time.Time

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// Options are the engine's collaborators and tuning.
type Options struct {
	Portfolio  *sim.Portfolio
	Markets    MarketSource
	Feed       BookFeed
	Classifier *obi.Classifier
	Notifier   Notifier
	Renderer   Renderer

	PollInterval time.Duration
	TopLevels    int
	WindowSize   int
}

// New builds an engine. Zero tuning values get defaults.
func New(opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.TopLevels <= 0 {
		opts.TopLevels = obi.DefaultTopLevels
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = obi.DefaultWindowSize
	}
	return &Engine{
		portfolio:    opts.Portfolio,
		markets:      opts.Markets,
		feed:         opts.Feed,
		classifier:   opts.Classifier,
		notifier:     opts.Notifier,
		renderer:     opts.Renderer,
		pollInterval: opts.PollInterval,
		topLevels:    opts.TopLevels,
		windowSize:   opts.WindowSize,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop()
	log.Info().Dur("interval", e.pollInterval).Msg("🚀 Engine started")
}

// Stop halts the loop and cancels any open position so no OPEN trade row
// outlives the process.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.running {
		e.running = false
		close(e.stopCh)
		e.mu.Unlock()
		e.wg.Wait()
	} else {
		e.mu.Unlock()
	}

	if e.portfolio.ActiveTrade() != nil {
		if err := e.portfolio.CancelActiveTrade(); err != nil {
			log.Error().Err(err).Msg("Failed to cancel open trade on shutdown")
		} else {
			log.Info().Msg("Open trade cancelled on shutdown")
		}
	}
	log.Info().Msg("Engine stopped")
}

func (e *Engine) loop() {
	defer e.wg.Done()

	e.tick()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick runs one full cycle. Split from the loop so tests can drive it.
func (e *Engine) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	now := e.now()

	if e.market == nil {
		m, err := e.markets.FindActiveMarket(ctx, now)
		if err != nil {
			log.Warn().Err(err).Msg("No active market yet")
			return
		}
		e.adoptMarket(m)
	}

	e.snapshot++

	book := e.feed.Book()
	if book.Empty() || !e.feed.Connected() {
		if err := e.feed.Refresh(ctx); err != nil {
			log.Debug().Err(err).Msg("Book refresh failed")
		}
		book = e.feed.Book()
	}

	hasBook := !book.Empty()
	metrics := book.Metrics(e.topLevels)

	upPrice := e.market.UpPrice
	downPrice := e.market.DownPrice
	var sig sim.Signal
	var combined decimal.Decimal

	if hasBook {
		sig, combined = e.classifier.Observe(metrics.OBI)
		// The UP token's volume-weighted mid is the live probability; the
		// DOWN side is its complement.
		upPrice = metrics.VWAPMid.Round(4)
		downPrice = one.Sub(upPrice).Round(4)
		e.market.UpPrice = upPrice
		e.market.DownPrice = downPrice
	} else {
		sig = sim.Signal{Confidence: 50}
	}

	pricesUsable := upPrice.GreaterThan(decimal.Zero) && upPrice.LessThan(one)

	// Early settlement once the market is effectively decided.
	if e.portfolio.ActiveTrade() != nil && pricesUsable &&
		(upPrice.GreaterThanOrEqual(nearCertainHigh) || upPrice.LessThanOrEqual(nearCertainLow)) {
		e.closeActive(upPrice, downPrice)
	}

	remaining, hasEnd := e.market.SecondsToEnd(now)
	if hasEnd && remaining < closeCutoffSeconds {
		if e.portfolio.ActiveTrade() != nil {
			if pricesUsable {
				e.closeActive(upPrice, downPrice)
			} else {
				e.cancelActive()
			}
		}
		e.render(now, hasBook, metrics, sig, combined, remaining, hasEnd)
		e.rotate()
		return
	}

	if hasBook && pricesUsable && e.portfolio.ActiveTrade() == nil {
		entered, err := e.portfolio.ConsiderEntry(sig, e.market.Slug, upPrice, downPrice)
		if err != nil {
			log.Error().Err(err).Msg("Trade entry failed to persist")
		}
		if entered {
			t := e.portfolio.ActiveTrade()
			if t != nil {
				log.Info().
					Int64("id", t.ID).
					Str("direction", t.Direction.String()).
					Str("entry", t.EntryPrice.String()).
					Str("bet", t.BetSize.String()).
					Msg("✅ Trade opened")
				if e.notifier != nil {
					e.notifier.NotifyOpened(t)
				}
			}
		}
	}

	e.render(now, hasBook, metrics, sig, combined, remaining, hasEnd)
}

func (e *Engine) adoptMarket(m *polymarket.Market) {
	e.market = m
	e.snapshot = 0
	e.classifier.Reset()
	e.feed.Watch(m.UpTokenID)
	log.Info().
		Str("slug", m.Slug).
		Str("question", m.Question).
		Bool("accepting_orders", m.AcceptingOrders).
		Msg("🎯 Market adopted")
}

func (e *Engine) rotate() {
	log.Info().Str("slug", e.market.Slug).Msg("Market closing, rotating to next slot")
	e.market = nil
}

func (e *Engine) closeActive(upPrice, downPrice decimal.Decimal) {
	t, err := e.portfolio.CloseTrade(upPrice, downPrice, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to close trade")
		return
	}
	if t == nil {
		return
	}
	log.Info().
		Int64("id", t.ID).
		Str("status", string(t.Status)).
		Str("pnl", t.PnL.String()).
		Str("capital", e.portfolio.Capital().String()).
		Msg("🏁 Trade resolved")
	if e.notifier != nil {
		e.notifier.NotifyResolved(t, e.portfolio.Capital())
	}
}

func (e *Engine) cancelActive() {
	t := e.portfolio.ActiveTrade()
	if t == nil {
		return
	}
	if err := e.portfolio.CancelActiveTrade(); err != nil {
		log.Error().Err(err).Msg("Failed to cancel trade")
		return
	}
	log.Warn().Int64("id", t.ID).Msg("⚪ Trade cancelled, market ended without usable prices")
	if e.notifier != nil {
		e.notifier.NotifyCancelled(t)
	}
}

func (e *Engine) render(now time.Time, hasBook bool, metrics obi.Metrics, sig sim.Signal, combined decimal.Decimal, remaining float64, hasEnd bool) {
	if e.renderer == nil {
		return
	}
	e.renderer.Render(&dashboard.View{
		Question:        e.market.Question,
		Snapshot:        e.snapshot,
		Now:             now,
		AcceptingOrders: e.market.AcceptingOrders,
		SecondsToEnd:    remaining,
		HasEndDate:      hasEnd,
		UpPrice:         e.market.UpPrice,
		DownPrice:       e.market.DownPrice,
		Metrics:         metrics,
		HasBook:         hasBook,
		Signal:          sig,
		Combined:        combined,
		WindowAvg:       e.classifier.WindowAverage(),
		Threshold:       e.classifier.Threshold(),
		History:         e.classifier.History(),
		WindowCap:       e.windowSize,
		Stats:           e.portfolio.Stats(e.market.UpPrice, e.market.DownPrice),
	})
}
