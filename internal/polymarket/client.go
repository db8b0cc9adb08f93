package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/obitrader/polysim/internal/obi"
)

const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultCLOBURL  = "https://clob.polymarket.com"

	requestTimeout = 8 * time.Second
)

// Market is the unified view of one up/down slot, merged from the Gamma and
// CLOB responses.
type Market struct {
	ConditionID     string
	Question        string
	Slug            string
	AcceptingOrders bool
	EndDate         time.Time

	UpTokenID   string
	UpOutcome   string
	UpPrice     decimal.Decimal
	DownTokenID string
	DownOutcome string
	DownPrice   decimal.Decimal
}

// SecondsToEnd returns the seconds remaining until the market closes,
// clamped at zero. A market without an end date reports ok=false.
func (m *Market) SecondsToEnd(now time.Time) (float64, bool) {
	if m.EndDate.IsZero() {
		return 0, false
	}
	diff := m.EndDate.Sub(now).Seconds()
	if diff < 0 {
		diff = 0
	}
	return diff, true
}

// Client reads markets from the Gamma and CLOB REST APIs.
type Client struct {
	gammaURL string
	clobURL  string
	http     *http.Client
}

// NewClient builds a client for the given API hosts. Empty strings select
// the production endpoints.
func NewClient(gammaURL, clobURL string) *Client {
	if gammaURL == "" {
		gammaURL = DefaultGammaURL
	}
	if clobURL == "" {
		clobURL = DefaultCLOBURL
	}
	return &Client{
		gammaURL: strings.TrimRight(gammaURL, "/"),
		clobURL:  strings.TrimRight(clobURL, "/"),
		http:     &http.Client{Timeout: requestTimeout},
	}
}

type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	EndDate     string `json:"endDate"`
}

type clobToken struct {
	TokenID string          `json:"token_id"`
	Outcome string          `json:"outcome"`
	Price   decimal.Decimal `json:"price"`
}

type clobMarket struct {
	ConditionID     string      `json:"condition_id"`
	Question        string      `json:"question"`
	MarketSlug      string      `json:"market_slug"`
	AcceptingOrders bool        `json:"accepting_orders"`
	EndDateISO      string      `json:"end_date_iso"`
	Tokens          []clobToken `json:"tokens"`
}

// fetchMarketBySlug looks a market up on the Gamma API. A slug with no
// market yet returns (nil, nil).
func (c *Client) fetchMarketBySlug(ctx context.Context, slug string) (*gammaMarket, error) {
	u := fmt.Sprintf("%s/markets?slug=%s", c.gammaURL, url.QueryEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gamma lookup %s: %w", slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma lookup %s: status %d", slug, resp.StatusCode)
	}

	var markets []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("gamma lookup %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// fetchCLOBMarket fetches trading data for a condition id from the CLOB.
func (c *Client) fetchCLOBMarket(ctx context.Context, conditionID string) (*clobMarket, error) {
	u := fmt.Sprintf("%s/markets/%s", c.clobURL, url.PathEscape(conditionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clob market %s: %w", conditionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clob market %s: status %d", conditionID, resp.StatusCode)
	}

	var m clobMarket
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("clob market %s: %w", conditionID, err)
	}
	return &m, nil
}

// FetchBook downloads the order book snapshot of a token.
func (c *Client) FetchBook(ctx context.Context, tokenID string) (bids, asks []obi.RawLevel, err error) {
	u := fmt.Sprintf("%s/book?token_id=%s", c.clobURL, url.QueryEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("clob book: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("clob book: status %d", resp.StatusCode)
	}

	var book struct {
		Bids []obi.RawLevel `json:"bids"`
		Asks []obi.RawLevel `json:"asks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, nil, fmt.Errorf("clob book: %w", err)
	}
	return book.Bids, book.Asks, nil
}

// FindActiveMarket probes the slots around now and returns the best
// candidate: first preference is a market still accepting orders, then any
// market that resolves on the CLOB. Failed probes are skipped.
func (c *Client) FindActiveMarket(ctx context.Context, now time.Time) (*Market, error) {
	base := CurrentSlot(now, 0)

	type candidate struct {
		gm *gammaMarket
		cm *clobMarket
	}
	var candidates []candidate

	for _, offset := range []int{-1, 0, 1, 2} {
		slug := SlotSlug(base + int64(offset)*SlotStep)
		gm, err := c.fetchMarketBySlug(ctx, slug)
		if err != nil {
			log.Debug().Str("slug", slug).Err(err).Msg("Slot probe failed")
			continue
		}
		if gm == nil || gm.ConditionID == "" {
			continue
		}
		cm, err := c.fetchCLOBMarket(ctx, gm.ConditionID)
		if err != nil {
			log.Debug().Str("slug", slug).Err(err).Msg("CLOB probe failed")
			continue
		}
		candidates = append(candidates, candidate{gm: gm, cm: cm})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no up/down market found around slot %d", base)
	}

	for _, cand := range candidates {
		if cand.cm.AcceptingOrders {
			return buildMarket(cand.gm, cand.cm)
		}
	}
	// None accepting orders: settle for read-only data.
	return buildMarket(candidates[0].gm, candidates[0].cm)
}

func buildMarket(gm *gammaMarket, cm *clobMarket) (*Market, error) {
	if len(cm.Tokens) < 2 {
		return nil, fmt.Errorf("market %s: expected 2 tokens, got %d", cm.ConditionID, len(cm.Tokens))
	}

	var up, down *clobToken
	for i := range cm.Tokens {
		switch {
		case strings.Contains(strings.ToLower(cm.Tokens[i].Outcome), "up"):
			up = &cm.Tokens[i]
		case strings.Contains(strings.ToLower(cm.Tokens[i].Outcome), "down"):
			down = &cm.Tokens[i]
		}
	}
	if up == nil || down == nil {
		up = &cm.Tokens[0]
		down = &cm.Tokens[1]
	}

	endRaw := gm.EndDate
	if endRaw == "" {
		endRaw = cm.EndDateISO
	}
	var endDate time.Time
	if endRaw != "" {
		parsed, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			log.Warn().Str("end_date", endRaw).Err(err).Msg("Unparseable market end date")
		} else {
			endDate = parsed
		}
	}

	question := cm.Question
	if question == "" {
		question = gm.Question
	}
	slug := cm.MarketSlug
	if slug == "" {
		slug = gm.Slug
	}

	return &Market{
		ConditionID:     cm.ConditionID,
		Question:        question,
		Slug:            slug,
		AcceptingOrders: cm.AcceptingOrders,
		EndDate:         endDate,
		UpTokenID:       up.TokenID,
		UpOutcome:       up.Outcome,
		UpPrice:         up.Price,
		DownTokenID:     down.TokenID,
		DownOutcome:     down.Outcome,
		DownPrice:       down.Price,
	}, nil
}
