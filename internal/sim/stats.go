package sim

import "github.com/shopspring/decimal"

const (
	historyPoints = 50
	tradeLogSize  = 20
)

// Stats is the portfolio's sole read surface for any presentation layer. It
// is a pure aggregation; building one mutates nothing.
type Stats struct {
	InitialCapital decimal.Decimal
	Capital        decimal.Decimal
	Equity         decimal.Decimal // capital + active stake + unrealized pnl
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	TotalPnL       decimal.Decimal
	TotalPnLPct    decimal.Decimal

	TotalTrades int
	Wins        int
	Losses      int
	Cancelled   int
	WinRate     decimal.Decimal // percentage, 0 when nothing resolved
	BestTrade   decimal.Decimal
	WorstTrade  decimal.Decimal
	AvgPnL      decimal.Decimal

	PnLHistory  []decimal.Decimal // most recent cumulative pnl points
	ActiveTrade *ActiveTradeView
	TradeLog    []*Trade // most recent closed trades, newest first
	Streak      Streak
}

// ActiveTradeView is the open position with live valuation attached.
type ActiveTradeView struct {
	Trade         Trade
	CurrentPrice  decimal.Decimal
	MarkToMarket  decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Stats aggregates the portfolio's full state at the given live prices.
func (p *Portfolio) Stats(upPrice, downPrice decimal.Decimal) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		InitialCapital: p.initialCapital,
		Capital:        p.capital.Round(4),
		TotalTrades:    len(p.closed),
		Streak:         p.tracker.Current(),
	}

	realized := decimal.Zero
	for _, t := range p.closed {
		switch t.Status {
		case StatusWin:
			s.Wins++
		case StatusLoss:
			s.Losses++
		case StatusCancelled:
			s.Cancelled++
		}
		if t.PnL == nil {
			continue
		}
		realized = realized.Add(*t.PnL)
		if t.PnL.GreaterThan(s.BestTrade) {
			s.BestTrade = *t.PnL
		}
		if t.PnL.LessThan(s.WorstTrade) {
			s.WorstTrade = *t.PnL
		}
	}

	resolved := s.Wins + s.Losses
	if resolved > 0 {
		n := decimal.NewFromInt(int64(resolved))
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(n).Mul(decimal.NewFromInt(100)).Round(1)
		s.AvgPnL = realized.Div(n).Round(4)
	}

	unrealized := p.unrealizedLocked(upPrice, downPrice)
	s.RealizedPnL = realized.Round(4)
	s.UnrealizedPnL = unrealized
	s.TotalPnL = realized.Add(unrealized).Round(4)
	if !p.initialCapital.IsZero() {
		s.TotalPnLPct = s.TotalPnL.Div(p.initialCapital).Mul(decimal.NewFromInt(100)).Round(2)
	}

	activeStake := decimal.Zero
	if p.active != nil {
		activeStake = p.active.BetSize
		cp := p.heldPriceLocked(upPrice, downPrice)
		s.ActiveTrade = &ActiveTradeView{
			Trade:         *p.active,
			CurrentPrice:  cp.Round(4),
			MarkToMarket:  p.active.MarkToMarket(cp),
			UnrealizedPnL: p.active.UnrealizedPnL(cp),
		}
	}
	s.Equity = p.capital.Add(activeStake).Add(unrealized).Round(4)

	start := len(p.pnlHistory) - historyPoints
	if start < 0 {
		start = 0
	}
	s.PnLHistory = append([]decimal.Decimal(nil), p.pnlHistory[start:]...)

	logStart := len(p.closed) - tradeLogSize
	if logStart < 0 {
		logStart = 0
	}
	recent := p.closed[logStart:]
	s.TradeLog = make([]*Trade, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		s.TradeLog = append(s.TradeLog, recent[i])
	}

	return s
}
