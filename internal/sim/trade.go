package sim

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a simulated trade.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusWin       Status = "WIN"
	StatusLoss      Status = "LOSS"
	StatusCancelled Status = "CANCELLED"
)

// Trade is one simulated position on a binary up/down market. The portfolio
// creates it OPEN and resolves it exactly once to WIN, LOSS or CANCELLED;
// after resolution it is never mutated again.
type Trade struct {
	ID         int64
	Market     string
	Direction  Direction
	EntryPrice decimal.Decimal // price of the held side's token at entry, (0,1]
	Shares     decimal.Decimal // BetSize / EntryPrice
	BetSize    decimal.Decimal // USDC committed
	EntryTime  string

	// Filled at resolution. Status == OPEN while both are nil.
	ExitPrice *decimal.Decimal
	PnL       *decimal.Decimal
	Status    Status
}

// MarkToMarket returns the current notional value of the position.
func (t *Trade) MarkToMarket(currentPrice decimal.Decimal) decimal.Decimal {
	return t.Shares.Mul(currentPrice).Round(4)
}

// UnrealizedPnL returns the live valuation delta against the committed stake.
func (t *Trade) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	return t.MarkToMarket(currentPrice).Sub(t.BetSize).Round(4)
}

// Close settles the trade. A winning share redeems for exactly $1 and a
// losing share for $0, so the realized pnl depends only on which side
// resolved true. Returns the realized pnl. A trade settles at most once.
func (t *Trade) Close(won bool, exitPrice decimal.Decimal) (decimal.Decimal, error) {
	if t.Status != StatusOpen {
		return decimal.Zero, fmt.Errorf("trade %d already resolved as %s", t.ID, t.Status)
	}

	t.ExitPrice = &exitPrice

	var pnl decimal.Decimal
	if won {
		proceeds := t.Shares // shares * 1.0
		pnl = proceeds.Sub(t.BetSize).Round(4)
		t.Status = StatusWin
	} else {
		pnl = t.BetSize.Neg().Round(4)
		t.Status = StatusLoss
	}
	t.PnL = &pnl

	return pnl, nil
}

// Cancel abandons an open trade without settling it. No exit price and no
// pnl are recorded.
func (t *Trade) Cancel() error {
	if t.Status != StatusOpen {
		return fmt.Errorf("trade %d already resolved as %s", t.ID, t.Status)
	}
	t.Status = StatusCancelled
	return nil
}

// Resolved reports whether the trade has left the OPEN state.
func (t *Trade) Resolved() bool {
	return t.Status != StatusOpen
}
