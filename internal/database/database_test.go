package database

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obitrader/polysim/internal/sim"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "polysim.db"), sim.DefaultInitialCapital)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestLoadStateDefaults(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	st, err := db.LoadState()
	require.NoError(t, err)

	assert.True(t, st.Capital.Equal(dec(t, "100")))
	assert.True(t, st.InitialCapital.Equal(dec(t, "100")))
	assert.Equal(t, int64(0), st.TradeCounter)
	require.Len(t, st.PnLHistory, 1)
	assert.True(t, st.PnLHistory[0].IsZero())
	assert.Empty(t, st.ClosedTrades)
}

func TestLoadStateSeedsConfiguredCapital(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "polysim.db"), dec(t, "500"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := db.LoadState()
	require.NoError(t, err)
	assert.True(t, st.Capital.Equal(dec(t, "500")))
	assert.True(t, st.InitialCapital.Equal(dec(t, "500")))

	// Same sequence main runs on a fresh database: the configured capital
	// must survive the restore.
	p := sim.NewPortfolio(dec(t, "500"), sim.DefaultTradePct, db)
	p.Restore(st)
	assert.True(t, p.Capital().Equal(dec(t, "500")))

	// A saved snapshot always wins over the configured value.
	require.NoError(t, db.SavePortfolioState(dec(t, "490"), dec(t, "500"), []decimal.Decimal{decimal.Zero, dec(t, "-10")}, 1))
	st, err = db.LoadState()
	require.NoError(t, err)
	assert.True(t, st.Capital.Equal(dec(t, "490")))
	assert.True(t, st.InitialCapital.Equal(dec(t, "500")))
}

func TestNewFallsBackOnNonPositiveCapital(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "polysim.db"), decimal.Zero)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := db.LoadState()
	require.NoError(t, err)
	assert.True(t, st.Capital.Equal(sim.DefaultInitialCapital))
}

func TestPortfolioStateRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	history := []decimal.Decimal{decimal.Zero, dec(t, "5"), dec(t, "2.9")}
	require.NoError(t, db.SavePortfolioState(dec(t, "102.9"), dec(t, "100"), history, 7))

	st, err := db.LoadState()
	require.NoError(t, err)
	assert.True(t, st.Capital.Equal(dec(t, "102.9")))
	assert.True(t, st.InitialCapital.Equal(dec(t, "100")))
	assert.Equal(t, int64(7), st.TradeCounter)
	require.Len(t, st.PnLHistory, 3)
	assert.True(t, st.PnLHistory[2].Equal(dec(t, "2.9")))
}

func TestSavePortfolioStateOverwrites(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	require.NoError(t, db.SavePortfolioState(dec(t, "100"), dec(t, "100"), []decimal.Decimal{decimal.Zero}, 0))
	require.NoError(t, db.SavePortfolioState(dec(t, "105"), dec(t, "100"), []decimal.Decimal{decimal.Zero, dec(t, "5")}, 1))

	st, err := db.LoadState()
	require.NoError(t, err)
	assert.True(t, st.Capital.Equal(dec(t, "105")))
	assert.Equal(t, int64(1), st.TradeCounter)
	require.Len(t, st.PnLHistory, 2)
}

func TestSaveTradeUpsert(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	trade := &sim.Trade{
		ID:         1,
		Market:     "sol-updown-5m-1771778400",
		Direction:  sim.DirectionUp,
		EntryPrice: dec(t, "0.40"),
		Shares:     dec(t, "5"),
		BetSize:    dec(t, "2"),
		EntryTime:  "12:00:03",
		Status:     sim.StatusOpen,
	}
	require.NoError(t, db.SaveTrade(trade))

	// Closing re-saves the same row with its final state.
	exit := dec(t, "1")
	pnl := dec(t, "3")
	trade.ExitPrice = &exit
	trade.PnL = &pnl
	trade.Status = sim.StatusWin
	require.NoError(t, db.SaveTrade(trade))
	require.NoError(t, db.SaveTrade(trade))

	st, err := db.LoadState()
	require.NoError(t, err)
	require.Len(t, st.ClosedTrades, 1)

	got := st.ClosedTrades[0]
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, sim.DirectionUp, got.Direction)
	assert.Equal(t, sim.StatusWin, got.Status)
	assert.True(t, got.EntryPrice.Equal(dec(t, "0.40")))
	require.NotNil(t, got.PnL)
	assert.True(t, got.PnL.Equal(dec(t, "3")))
	require.NotNil(t, got.ExitPrice)
	assert.True(t, got.ExitPrice.Equal(dec(t, "1")))
}

func TestLoadStateCancelsOrphanedOpenTrades(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	orphan := &sim.Trade{
		ID:         1,
		Market:     "sol-updown-5m-1771778400",
		Direction:  sim.DirectionDown,
		EntryPrice: dec(t, "0.25"),
		Shares:     dec(t, "8"),
		BetSize:    dec(t, "2"),
		EntryTime:  "12:00:03",
		Status:     sim.StatusOpen,
	}
	require.NoError(t, db.SaveTrade(orphan))

	st, err := db.LoadState()
	require.NoError(t, err)
	require.Len(t, st.ClosedTrades, 1)
	assert.Equal(t, sim.StatusCancelled, st.ClosedTrades[0].Status)

	// A second load finds nothing left to cancel.
	st, err = db.LoadState()
	require.NoError(t, err)
	require.Len(t, st.ClosedTrades, 1)
	assert.Equal(t, sim.StatusCancelled, st.ClosedTrades[0].Status)
}

func TestLoadStateOrdersTradesByID(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	for _, id := range []int64{3, 1, 2} {
		pnl := dec(t, "-2")
		exit := decimal.Zero
		require.NoError(t, db.SaveTrade(&sim.Trade{
			ID:         id,
			Market:     "sol-updown-5m-1771778400",
			Direction:  sim.DirectionUp,
			EntryPrice: dec(t, "0.40"),
			Shares:     dec(t, "5"),
			BetSize:    dec(t, "2"),
			Status:     sim.StatusLoss,
			ExitPrice:  &exit,
			PnL:        &pnl,
		}))
	}

	st, err := db.LoadState()
	require.NoError(t, err)
	require.Len(t, st.ClosedTrades, 3)
	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, st.ClosedTrades[i].ID)
	}
}
