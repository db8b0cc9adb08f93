// Polysim - paper-trading simulator for Polymarket SOL Up/Down 5min markets.
//
// The simulator watches the order book of the active 5-minute window,
// computes the Order Book Imbalance signal, and trades a virtual ledger:
// no orders are ever placed. Capital, trades and the cumulative P&L curve
// survive restarts through the database.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obitrader/polysim/internal/config"
	"github.com/obitrader/polysim/internal/dashboard"
	"github.com/obitrader/polysim/internal/database"
	"github.com/obitrader/polysim/internal/engine"
	"github.com/obitrader/polysim/internal/feeds"
	"github.com/obitrader/polysim/internal/notify"
	"github.com/obitrader/polysim/internal/obi"
	"github.com/obitrader/polysim/internal/polymarket"
	"github.com/obitrader/polysim/internal/sim"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("capital", cfg.InitialCapital.StringFixed(2)).
		Str("trade_pct", cfg.TradePct.String()).
		Msg("📟 Polysim starting...")

	db, err := database.New(cfg.DatabasePath, cfg.InitialCapital)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	portfolio := sim.NewPortfolio(cfg.InitialCapital, cfg.TradePct, db)
	state, err := db.LoadState()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load state")
	}
	portfolio.Restore(state)

	var notifier *notify.Notifier
	if cfg.TelegramEnabled() {
		notifier, err = notify.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
			notifier = nil
		}
	}
	notifier.NotifyStartup(portfolio.Capital())

	client := polymarket.NewClient(cfg.GammaAPIURL, cfg.CLOBAPIURL)
	feed := feeds.NewBookFeed(cfg.WSURL, client)
	feed.Start()
	defer feed.Stop()

	var renderer engine.Renderer
	if cfg.Dashboard {
		renderer = dashboard.NewRenderer(os.Stdout)
	}

	eng := engine.New(engine.Options{
		Portfolio:    portfolio,
		Markets:      client,
		Feed:         feed,
		Classifier:   obi.NewClassifier(cfg.OBIThreshold, cfg.WindowSize),
		Notifier:     notifier,
		Renderer:     renderer,
		PollInterval: cfg.PollInterval,
		TopLevels:    cfg.TopLevels,
		WindowSize:   cfg.WindowSize,
	})
	eng.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	eng.Stop()
}
