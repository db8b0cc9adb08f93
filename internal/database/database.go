package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/obitrader/polysim/internal/sim"
)

// Database is the durable gateway behind sim.Store. It is constructed and
// closed by the enclosing process; nothing here is a package-level singleton.
type Database struct {
	db *gorm.DB

	// initialCapital seeds the ledger when no prior snapshot exists, so a
	// configured starting capital survives the first LoadState.
	initialCapital decimal.Decimal
}

// Models

// TradeRecord is one row per simulated trade, keyed by the
// portfolio-assigned id. Saved once when the trade opens and once more with
// its final status.
type TradeRecord struct {
	ID         int64           `gorm:"primaryKey"`
	Market     string          `gorm:"not null"`
	Direction  string          `gorm:"not null"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	Shares     decimal.Decimal `gorm:"type:decimal(20,6)"`
	BetSize    decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryTime  string
	ExitPrice  *decimal.Decimal `gorm:"type:decimal(10,6)"`
	PnL        *decimal.Decimal `gorm:"type:decimal(20,6)"`
	Status     string           `gorm:"index;default:OPEN"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PortfolioStateRecord is the single-row ledger snapshot (id is always 1).
type PortfolioStateRecord struct {
	ID             int64           `gorm:"primaryKey"`
	Capital        decimal.Decimal `gorm:"type:decimal(20,6)"`
	InitialCapital decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnLHistory     string          // JSON array of cumulative pnl points
	TradeCounter   int64
	UpdatedAt      time.Time
}

// Session records one row per process start.
type Session struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	StartedAt time.Time
	Note      string
}

const stateRowID = 1

// New opens the database at dbPath and migrates the schema. A
// postgres:// DSN selects PostgreSQL; anything else is a SQLite file path
// whose directory is created on demand. initialCapital becomes the fresh
// ledger's starting balance; a non-positive value falls back to the default.
func New(dbPath string, initialCapital decimal.Decimal) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeRecord{}, &PortfolioStateRecord{}, &Session{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := db.Create(&Session{StartedAt: time.Now().UTC(), Note: "server start"}).Error; err != nil {
		log.Warn().Err(err).Msg("Failed to record session")
	}

	if !initialCapital.IsPositive() {
		initialCapital = sim.DefaultInitialCapital
	}
	return &Database{db: db, initialCapital: initialCapital}, nil
}

// Close releases the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTrade upserts a trade keyed by its id. Safe to call repeatedly with
// the same final state.
func (d *Database) SaveTrade(t *sim.Trade) error {
	rec := toRecord(t)
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// SavePortfolioState overwrites the singleton ledger snapshot.
func (d *Database) SavePortfolioState(capital, initialCapital decimal.Decimal, pnlHistory []decimal.Decimal, tradeCounter int64) error {
	history, err := json.Marshal(pnlHistory)
	if err != nil {
		return fmt.Errorf("encode pnl history: %w", err)
	}

	rec := PortfolioStateRecord{
		ID:             stateRowID,
		Capital:        capital,
		InitialCapital: initialCapital,
		PnLHistory:     string(history),
		TradeCounter:   tradeCounter,
		UpdatedAt:      time.Now().UTC(),
	}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// LoadState loads the last checkpoint for a restart. With no prior snapshot
// it returns the default ledger ($100, empty history). OPEN rows left behind
// by a crash or shutdown are not resumable, so they are marked CANCELLED
// here rather than silently carried forward.
func (d *Database) LoadState() (*sim.State, error) {
	st := &sim.State{
		Capital:        d.initialCapital,
		InitialCapital: d.initialCapital,
		PnLHistory:     []decimal.Decimal{decimal.Zero},
	}

	var rec PortfolioStateRecord
	err := d.db.First(&rec, "id = ?", stateRowID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Info().Msg("No prior state found, starting fresh")
	case err != nil:
		return nil, fmt.Errorf("load portfolio state: %w", err)
	default:
		st.Capital = rec.Capital
		st.InitialCapital = rec.InitialCapital
		st.TradeCounter = rec.TradeCounter
		if rec.PnLHistory != "" {
			if err := json.Unmarshal([]byte(rec.PnLHistory), &st.PnLHistory); err != nil {
				return nil, fmt.Errorf("decode pnl history: %w", err)
			}
		}
		log.Info().
			Str("capital", st.Capital.StringFixed(2)).
			Int64("trades", st.TradeCounter).
			Msg("State loaded")
	}

	res := d.db.Model(&TradeRecord{}).
		Where("status = ?", string(sim.StatusOpen)).
		Update("status", string(sim.StatusCancelled))
	if res.Error != nil {
		return nil, fmt.Errorf("cancel orphaned trades: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Warn().Int64("count", res.RowsAffected).Msg("Cancelled orphaned open trades from previous run")
	}

	var rows []TradeRecord
	if err := d.db.Where("status <> ?", string(sim.StatusOpen)).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load trade history: %w", err)
	}
	for i := range rows {
		st.ClosedTrades = append(st.ClosedTrades, toTrade(&rows[i]))
	}

	if len(st.ClosedTrades) > 0 {
		log.Info().Int("count", len(st.ClosedTrades)).Msg("Trade history loaded")
	}
	return st, nil
}

func toRecord(t *sim.Trade) TradeRecord {
	return TradeRecord{
		ID:         t.ID,
		Market:     t.Market,
		Direction:  t.Direction.String(),
		EntryPrice: t.EntryPrice,
		Shares:     t.Shares,
		BetSize:    t.BetSize,
		EntryTime:  t.EntryTime,
		ExitPrice:  t.ExitPrice,
		PnL:        t.PnL,
		Status:     string(t.Status),
	}
}

func toTrade(r *TradeRecord) *sim.Trade {
	return &sim.Trade{
		ID:         r.ID,
		Market:     r.Market,
		Direction:  sim.ParseDirection(r.Direction),
		EntryPrice: r.EntryPrice,
		Shares:     r.Shares,
		BetSize:    r.BetSize,
		EntryTime:  r.EntryTime,
		ExitPrice:  r.ExitPrice,
		PnL:        r.PnL,
		Status:     sim.Status(r.Status),
	}
}
