package obi

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// PriceLevel is one price level of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// RawLevel is the wire shape of a level as the CLOB sends it, both over the
// book REST endpoint and the market websocket channel.
type RawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book maintains the current order book of a single outcome token.
type Book struct {
	mu   sync.RWMutex
	bids []PriceLevel // sorted descending by price
	asks []PriceLevel // sorted ascending by price
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{}
}

// Replace swaps in a full snapshot. Zero-size levels are dropped and both
// sides are re-sorted, so callers may pass levels in any order.
func (b *Book) Replace(bids, asks []RawLevel) {
	newBids := parseLevels(bids)
	newAsks := parseLevels(asks)

	sort.Slice(newBids, func(i, j int) bool {
		return newBids[i].Price.GreaterThan(newBids[j].Price)
	})
	sort.Slice(newAsks, func(i, j int) bool {
		return newAsks[i].Price.LessThan(newAsks[j].Price)
	})

	b.mu.Lock()
	b.bids = newBids
	b.asks = newAsks
	b.mu.Unlock()
}

// Empty reports whether neither side has any levels.
func (b *Book) Empty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids) == 0 && len(b.asks) == 0
}

// Metrics summarizes the top levels of a book snapshot.
type Metrics struct {
	BidVolume   decimal.Decimal
	AskVolume   decimal.Decimal
	TotalVolume decimal.Decimal
	OBI         decimal.Decimal // (bid - ask) / total, -1..+1
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	Spread      decimal.Decimal
	VWAPMid     decimal.Decimal
	NumBids     int
	NumAsks     int
	TopBids     []PriceLevel
	TopAsks     []PriceLevel
}

const displayLevels = 6

// Metrics computes volume, imbalance and price metrics over the top topN
// levels of each side.
func (b *Book) Metrics(topN int) Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topBids := b.bids
	if len(topBids) > topN {
		topBids = topBids[:topN]
	}
	topAsks := b.asks
	if len(topAsks) > topN {
		topAsks = topAsks[:topN]
	}

	m := Metrics{
		NumBids: len(b.bids),
		NumAsks: len(b.asks),
		TopBids: copyLevels(topBids, displayLevels),
		TopAsks: copyLevels(topAsks, displayLevels),
	}

	bidNotional := decimal.Zero
	askNotional := decimal.Zero
	for _, l := range topBids {
		m.BidVolume = m.BidVolume.Add(l.Size)
		bidNotional = bidNotional.Add(l.Price.Mul(l.Size))
	}
	for _, l := range topAsks {
		m.AskVolume = m.AskVolume.Add(l.Size)
		askNotional = askNotional.Add(l.Price.Mul(l.Size))
	}
	m.TotalVolume = m.BidVolume.Add(m.AskVolume)

	if m.TotalVolume.GreaterThan(decimal.Zero) {
		m.OBI = m.BidVolume.Sub(m.AskVolume).Div(m.TotalVolume)
	}

	if len(topBids) > 0 {
		m.BestBid = topBids[0].Price
	}
	if len(topAsks) > 0 {
		m.BestAsk = topAsks[0].Price
	}
	if m.BestBid.GreaterThan(decimal.Zero) && m.BestAsk.GreaterThan(decimal.Zero) {
		m.Spread = m.BestAsk.Sub(m.BestBid).Round(4)
	}

	// Volume-weighted mid across both sides. With no volume the plain mid of
	// the best quotes stands in.
	if m.TotalVolume.GreaterThan(decimal.Zero) {
		m.VWAPMid = bidNotional.Add(askNotional).Div(m.TotalVolume)
	} else {
		m.VWAPMid = m.BestBid.Add(m.BestAsk).Div(decimal.NewFromInt(2))
	}

	return m
}

func parseLevels(raw []RawLevel) []PriceLevel {
	levels := make([]PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil || !size.GreaterThan(decimal.Zero) {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Size: size})
	}
	return levels
}

func copyLevels(levels []PriceLevel, max int) []PriceLevel {
	if len(levels) > max {
		levels = levels[:max]
	}
	out := make([]PriceLevel, len(levels))
	copy(out, levels)
	return out
}
