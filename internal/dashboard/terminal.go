// Package dashboard renders the live terminal view: market state, order book
// imbalance, the current signal and the portfolio panel.
package dashboard

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obitrader/polysim/internal/obi"
	"github.com/obitrader/polysim/internal/sim"
)

// ANSI escape codes
const (
	clearScreen = "\033[2J\033[H"

	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[91m"
	green  = "\033[92m"
	yellow = "\033[93m"
	cyan   = "\033[96m"
	white  = "\033[97m"
)

const (
	lineWidth  = 68
	obiBarHalf = 18
	volBarFull = 30
)

// View is everything one frame needs. The engine assembles it each tick.
type View struct {
	Question        string
	Snapshot        int
	Now             time.Time
	AcceptingOrders bool
	SecondsToEnd    float64
	HasEndDate      bool

	UpPrice   decimal.Decimal
	DownPrice decimal.Decimal

	Metrics   obi.Metrics
	HasBook   bool
	Signal    sim.Signal
	Combined  decimal.Decimal
	WindowAvg decimal.Decimal
	Threshold decimal.Decimal
	History   []decimal.Decimal
	WindowCap int

	Stats sim.Stats
}

// Renderer writes frames to a terminal.
type Renderer struct {
	out io.Writer
}

// NewRenderer builds a renderer writing to out (normally os.Stdout).
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Render clears the screen and paints a full frame.
func (r *Renderer) Render(v *View) {
	var b strings.Builder
	b.WriteString(clearScreen)

	rule := strings.Repeat("═", lineWidth)
	thin := dim + strings.Repeat("─", lineWidth) + reset

	fmt.Fprintf(&b, "%s%s%s%s\n", bold, cyan, rule, reset)
	fmt.Fprintf(&b, "%s%s  POLYSIM - SOL Up/Down 5min | OBI paper trading%s\n", bold, cyan, reset)
	fmt.Fprintf(&b, "%s%s%s%s\n", bold, cyan, rule, reset)

	fmt.Fprintf(&b, "  %sMarket:%s %s%s%s\n", bold, reset, white, v.Question, reset)
	acc := green + "YES" + reset
	if !v.AcceptingOrders {
		acc = red + "NO" + reset
	}
	fmt.Fprintf(&b, "  Snapshot #%d  |  %s%s%s  |  Accepting orders: %s\n",
		v.Snapshot, white, v.Now.Format("15:04:05"), reset, acc)
	if v.HasEndDate {
		remColor := green
		if v.SecondsToEnd <= 30 {
			remColor = red
		} else if v.SecondsToEnd <= 120 {
			remColor = yellow
		}
		fmt.Fprintf(&b, "  Closes in: %s%s%s%s  |  Threshold: %s%s%%%s\n",
			remColor, bold, fmtSeconds(v.SecondsToEnd), reset,
			yellow, v.Threshold.Mul(decimal.NewFromInt(100)).StringFixed(0), reset)
	}
	b.WriteString(thin + "\n")

	if !v.HasBook {
		fmt.Fprintf(&b, "\n  %s[!] Waiting for order book data...%s\n", yellow, reset)
	} else {
		renderBook(&b, v, thin)
	}

	renderPortfolio(&b, v)

	fmt.Fprintf(&b, "\n%s  Ctrl+C to quit%s\n", dim, reset)
	fmt.Fprintf(&b, "%s%s%s%s\n", bold, cyan, rule, reset)

	fmt.Fprint(r.out, b.String())
}

func renderBook(b *strings.Builder, v *View, thin string) {
	m := v.Metrics

	fmt.Fprintf(b, "\n  %sMarket prices:%s\n", bold, reset)
	fmt.Fprintf(b, "  %sUP  %s USDC%s   %sDOWN  %s USDC%s   %sVWAP: %s%s\n",
		green, v.UpPrice.StringFixed(4), reset,
		red, v.DownPrice.StringFixed(4), reset,
		dim, m.VWAPMid.StringFixed(4), reset)

	fmt.Fprintf(b, "\n  %sVolumes (UP token):%s\n", bold, reset)
	bidW := volumeBarWidth(m.BidVolume, m.TotalVolume)
	fmt.Fprintf(b, "  %sBids:  %10s USDC  %s%s  (%d orders)\n",
		green, m.BidVolume.StringFixed(2), strings.Repeat("█", bidW), reset, m.NumBids)
	fmt.Fprintf(b, "  %sAsks:  %10s USDC  %s%s  (%d orders)\n",
		red, m.AskVolume.StringFixed(2), strings.Repeat("█", volBarFull-bidW), reset, m.NumAsks)
	fmt.Fprintf(b, "  %sTotal: %10s USDC  |  Spread: %s%s\n",
		dim, m.TotalVolume.StringFixed(2), m.Spread.StringFixed(4), reset)

	fmt.Fprintf(b, "\n  %sOrder Book Imbalance:%s\n", bold, reset)
	fmt.Fprintf(b, "  %s◄ SELL%s  %s  %sBUY ►%s\n", red, reset, obiBar(m.OBI), green, reset)
	fmt.Fprintf(b, "  OBI now      = %s%s%s\n", white, signedFixed(m.OBI, 4), reset)
	fmt.Fprintf(b, "  OBI window   = %s%s%s  (avg of %d)\n",
		white, signedFixed(v.WindowAvg, 4), reset, len(v.History))
	fmt.Fprintf(b, "  OBI combined = %s%s%s  (60%% now + 40%% window)\n",
		white, signedFixed(v.Combined, 4), reset)

	b.WriteString("\n" + thin + "\n")
	sigColor := yellow
	switch v.Signal.Direction {
	case sim.DirectionUp:
		sigColor = green
	case sim.DirectionDown:
		sigColor = red
	}
	fmt.Fprintf(b, "  %sSIGNAL:%s  %s%s %s %s   %sConfidence: %d%%%s\n",
		bold, reset, sigColor, bold, v.Signal.Label(), reset, bold, v.Signal.Confidence, reset)

	fmt.Fprintf(b, "  %s\n", historyRow(v.History, v.Threshold, v.WindowCap))
	b.WriteString(thin + "\n")
}

func renderPortfolio(b *strings.Builder, v *View) {
	s := v.Stats

	fmt.Fprintf(b, "\n  %sPortfolio:%s\n", bold, reset)
	fmt.Fprintf(b, "  Capital: %s$%s%s  |  Equity: %s$%s%s  |  Total P&L: %s (%s%%)\n",
		white, s.Capital.StringFixed(2), reset,
		white, s.Equity.StringFixed(2), reset,
		pnlColored(s.TotalPnL), signedFixed(s.TotalPnLPct, 2))
	fmt.Fprintf(b, "  Trades: %d  |  W/L/C: %d/%d/%d  |  Win rate: %s%%  |  Avg: %s\n",
		s.TotalTrades, s.Wins, s.Losses, s.Cancelled,
		s.WinRate.StringFixed(1), pnlColored(s.AvgPnL))

	if s.ActiveTrade != nil {
		a := s.ActiveTrade
		fmt.Fprintf(b, "\n  %sOpen position #%d:%s %s @ %s  |  mark %s  |  unrealized %s\n",
			bold, a.Trade.ID, reset,
			a.Trade.Direction, a.Trade.EntryPrice.StringFixed(4),
			a.MarkToMarket.StringFixed(4), pnlColored(a.UnrealizedPnL))
	}

	if len(s.TradeLog) > 0 {
		fmt.Fprintf(b, "\n  %sRecent trades:%s\n", bold, reset)
		limit := len(s.TradeLog)
		if limit > 5 {
			limit = 5
		}
		for _, t := range s.TradeLog[:limit] {
			pnl := "     -"
			if t.PnL != nil {
				pnl = signedFixed(*t.PnL, 2)
			}
			fmt.Fprintf(b, "  %s#%-4d %-4s %-9s entry %s  pnl %s%s\n",
				dim, t.ID, t.Direction, t.Status, t.EntryPrice.StringFixed(4), pnl, reset)
		}
	}
}

// obiBar draws the imbalance gauge: bids fill right of center, asks left.
func obiBar(o decimal.Decimal) string {
	filled := int(o.Abs().Mul(decimal.NewFromInt(obiBarHalf)).IntPart())
	if filled > obiBarHalf {
		filled = obiBarHalf
	}
	if o.Sign() >= 0 {
		return "[" + strings.Repeat(" ", obiBarHalf) + "│" +
			green + strings.Repeat("█", filled) + reset + strings.Repeat(" ", obiBarHalf-filled) + "]"
	}
	return "[" + strings.Repeat(" ", obiBarHalf-filled) +
		red + strings.Repeat("█", filled) + reset + "│" + strings.Repeat(" ", obiBarHalf) + "]"
}

// historyRow renders one glyph per window snapshot, padded to the window size.
func historyRow(history []decimal.Decimal, threshold decimal.Decimal, windowCap int) string {
	var b strings.Builder
	for _, o := range history {
		switch {
		case o.GreaterThan(threshold):
			b.WriteString(green + "▲" + reset)
		case o.LessThan(threshold.Neg()):
			b.WriteString(red + "▼" + reset)
		default:
			b.WriteString(yellow + "─" + reset)
		}
	}
	if pad := windowCap - len(history); pad > 0 {
		b.WriteString(dim + strings.Repeat("·", pad) + reset)
	}
	return b.String()
}

func volumeBarWidth(part, total decimal.Decimal) int {
	if !total.GreaterThan(decimal.Zero) {
		return 0
	}
	w := int(part.Div(total).Mul(decimal.NewFromInt(volBarFull)).IntPart())
	if w > volBarFull {
		w = volBarFull
	}
	return w
}

func signedFixed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.Sign() >= 0 {
		return "+" + s
	}
	return s
}

func pnlColored(d decimal.Decimal) string {
	if d.Sign() < 0 {
		return red + signedFixed(d, 2) + reset
	}
	return green + signedFixed(d, 2) + reset
}

func fmtSeconds(secs float64) string {
	s := int(secs)
	return fmt.Sprintf("%dm %02ds", s/60, s%60)
}
