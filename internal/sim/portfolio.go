package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the durable gateway the portfolio checkpoints through. SaveTrade
// and SavePortfolioState are idempotent upserts; LoadState returns defaults
// when nothing has been persisted yet.
type Store interface {
	SaveTrade(t *Trade) error
	SavePortfolioState(capital, initialCapital decimal.Decimal, pnlHistory []decimal.Decimal, tradeCounter int64) error
	LoadState() (*State, error)
}

// State is a persisted portfolio snapshot plus the resolved trade history.
type State struct {
	Capital        decimal.Decimal
	InitialCapital decimal.Decimal
	PnLHistory     []decimal.Decimal
	TradeCounter   int64
	ClosedTrades   []*Trade
}

// Sizing defaults and entry guards.
var (
	DefaultInitialCapital = decimal.NewFromInt(100)
	DefaultTradePct       = decimal.NewFromFloat(0.02)

	minViableCapital = decimal.NewFromInt(1)
	minEntryPrice    = decimal.NewFromFloat(0.01)
	winThreshold     = decimal.NewFromFloat(0.5)
)

// Portfolio owns the capital ledger, the single active trade and the closed
// history. One polling loop drives all mutations; the mutex lets a reporting
// surface read stats while the loop writes, and keeps a trade's state change
// and its durable checkpoint in one exclusive section.
type Portfolio struct {
	mu sync.Mutex

	initialCapital decimal.Decimal
	capital        decimal.Decimal
	tradePct       decimal.Decimal

	active       *Trade
	closed       []*Trade
	pnlHistory   []decimal.Decimal
	tradeCounter int64

	tracker StreakTracker
	store   Store

	now func() time.Time
}

// NewPortfolio creates a fresh portfolio. The store is consumed, not owned:
// its lifecycle belongs to the enclosing process.
func NewPortfolio(initialCapital, tradePct decimal.Decimal, store Store) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		capital:        initialCapital,
		tradePct:       tradePct,
		pnlHistory:     []decimal.Decimal{decimal.Zero},
		store:          store,
		now:            time.Now,
	}
}

// Restore replaces the ledger wholesale from a persisted snapshot. The
// signal streak always starts empty after a restart, and open trades are not
// resumed (the gateway cancels orphaned OPEN rows at load).
func (p *Portfolio) Restore(st *State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.capital = st.Capital
	p.initialCapital = st.InitialCapital
	p.pnlHistory = append([]decimal.Decimal(nil), st.PnLHistory...)
	p.tradeCounter = st.TradeCounter
	p.closed = append([]*Trade(nil), st.ClosedTrades...)
	p.active = nil
	p.tracker.Reset()
}

// ConsiderEntry feeds one tick's signal through the entry gate and opens a
// trade when every guard passes. Refusals are ordinary, frequent outcomes
// and return (false, nil); only a persistence failure is an error.
//
// Capital is not debited at entry. The stake is earmarked and the balance
// only moves at resolution, so equity-in-use is capital + the active stake.
func (p *Portfolio) ConsiderEntry(sig Signal, market string, upPrice, downPrice decimal.Decimal) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return false, nil
	}
	if p.capital.LessThan(minViableCapital) {
		return false, nil
	}
	if !p.tracker.Observe(sig) {
		return false, nil
	}

	betSize := p.capital.Mul(p.tradePct).Round(2)
	entryPrice := upPrice
	if sig.Direction == DirectionDown {
		entryPrice = downPrice
	}
	// A near-zero entry price would blow up the share count.
	if entryPrice.LessThanOrEqual(minEntryPrice) {
		return false, nil
	}

	shares := betSize.Div(entryPrice).Round(4)
	p.tradeCounter++
	trade := &Trade{
		ID:         p.tradeCounter,
		Market:     market,
		Direction:  sig.Direction,
		EntryPrice: entryPrice,
		Shares:     shares,
		BetSize:    betSize,
		EntryTime:  p.now().UTC().Format("15:04:05"),
		Status:     StatusOpen,
	}
	p.tracker.Reset()
	p.active = trade

	if err := p.store.SaveTrade(trade); err != nil {
		return true, fmt.Errorf("persist open trade: %w", err)
	}
	return true, nil
}

// heldPriceLocked returns the live price of the active trade's side.
func (p *Portfolio) heldPriceLocked(upPrice, downPrice decimal.Decimal) decimal.Decimal {
	if p.active != nil && p.active.Direction == DirectionDown {
		return downPrice
	}
	return upPrice
}

// Unrealized returns the active trade's live pnl at the price of its held
// side, or zero when flat. Pure; callable at any polling cadence.
func (p *Portfolio) Unrealized(upPrice, downPrice decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unrealizedLocked(upPrice, downPrice)
}

func (p *Portfolio) unrealizedLocked(upPrice, downPrice decimal.Decimal) decimal.Decimal {
	if p.active == nil {
		return decimal.Zero
	}
	return p.active.UnrealizedPnL(p.heldPriceLocked(upPrice, downPrice))
}

// CloseTrade resolves the active trade and settles the ledger. A forced
// outcome from an authoritative settlement source wins over the price
// heuristic; otherwise the held side wins when its final price is >= 0.5,
// which assumes prices have converged to near 0/1 at expiry.
//
// The stake returns to the balance together with the signed pnl, the trade
// moves to the closed history, and one cumulative pnl point is appended.
// Returns nil when there is no active trade.
func (p *Portfolio) CloseTrade(upPrice, downPrice decimal.Decimal, forced *bool) (*Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	trade := p.active
	if trade == nil {
		return nil, nil
	}

	var won bool
	switch {
	case forced != nil:
		won = *forced
	case trade.Direction == DirectionUp:
		won = upPrice.GreaterThanOrEqual(winThreshold)
	default:
		won = downPrice.GreaterThanOrEqual(winThreshold)
	}

	exitPrice := decimal.Zero
	if won {
		exitPrice = decimal.NewFromInt(1)
	}

	pnl, err := trade.Close(won, exitPrice)
	if err != nil {
		return nil, err
	}

	p.capital = p.capital.Add(trade.BetSize).Add(pnl).Round(4)
	p.closed = append(p.closed, trade)
	p.active = nil
	p.tracker.Reset()
	p.pnlHistory = append(p.pnlHistory, p.capital.Sub(p.initialCapital).Round(4))

	if err := p.store.SaveTrade(trade); err != nil {
		return trade, fmt.Errorf("persist resolved trade: %w", err)
	}
	if err := p.saveStateLocked(); err != nil {
		return trade, err
	}
	return trade, nil
}

// CancelActiveTrade abandons the active trade when no resolution can be
// determined, e.g. the market closed without clear settlement. The stake was
// never debited so the ledger is untouched, and no pnl point is recorded:
// better an untouched cancellation than a guessed outcome.
func (p *Portfolio) CancelActiveTrade() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	trade := p.active
	if trade == nil {
		return nil
	}
	if err := trade.Cancel(); err != nil {
		return err
	}

	p.closed = append(p.closed, trade)
	p.active = nil
	p.tracker.Reset()

	if err := p.store.SaveTrade(trade); err != nil {
		return fmt.Errorf("persist cancelled trade: %w", err)
	}
	return p.saveStateLocked()
}

func (p *Portfolio) saveStateLocked() error {
	history := append([]decimal.Decimal(nil), p.pnlHistory...)
	if err := p.store.SavePortfolioState(p.capital, p.initialCapital, history, p.tradeCounter); err != nil {
		return fmt.Errorf("persist portfolio state: %w", err)
	}
	return nil
}

// Capital returns the current realized cash balance. It excludes any stake
// committed to the active trade.
func (p *Portfolio) Capital() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capital
}

// ActiveTrade returns the open position, or nil when flat.
func (p *Portfolio) ActiveTrade() *Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
