// Package notify pushes trade lifecycle events to Telegram. All sends are
// best effort; a delivery failure is logged and never stops the simulator.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/obitrader/polysim/internal/sim"
)

// Notifier sends trade notifications. The nil Notifier is valid and silent,
// so callers never need to branch on whether Telegram is configured.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New connects to the Telegram API.
func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier initialized")
	return &Notifier{api: api, chatID: chatID}, nil
}

// NotifyStartup announces the simulator coming up with its starting capital.
func (n *Notifier) NotifyStartup(capital decimal.Decimal) {
	if n == nil {
		return
	}
	n.sendMarkdown(fmt.Sprintf(`🚀 *SIMULATOR STARTED*

💰 Capital: *$%s*`, capital.StringFixed(2)))
}

// NotifyOpened announces a new paper position.
func (n *Notifier) NotifyOpened(t *sim.Trade) {
	if n == nil {
		return
	}
	emoji := "🟢"
	if t.Direction == sim.DirectionDown {
		emoji = "🔴"
	}
	n.sendMarkdown(fmt.Sprintf(`%s *TRADE OPENED* #%d

📊 %s · %s
💵 Entry: *%s¢*
📦 Size: *$%s* (%s shares)`,
		emoji, t.ID,
		t.Market, t.Direction,
		t.EntryPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
		t.BetSize.StringFixed(2),
		t.Shares.StringFixed(4),
	))
}

// NotifyResolved announces a win or loss with its pnl and the new capital.
func (n *Notifier) NotifyResolved(t *sim.Trade, capital decimal.Decimal) {
	if n == nil || t.PnL == nil {
		return
	}
	emoji := "📈"
	if t.Status == sim.StatusLoss {
		emoji = "📉"
	}
	sign := "+"
	if t.PnL.IsNegative() {
		sign = ""
	}
	n.sendMarkdown(fmt.Sprintf(`%s *TRADE %s* #%d

📊 %s · %s
💵 P&L: *%s$%s*
💰 Capital: *$%s*`,
		emoji, t.Status, t.ID,
		t.Market, t.Direction,
		sign, t.PnL.StringFixed(2),
		capital.StringFixed(2),
	))
}

// NotifyCancelled announces a cancelled position.
func (n *Notifier) NotifyCancelled(t *sim.Trade) {
	if n == nil {
		return
	}
	n.sendMarkdown(fmt.Sprintf(`⚪ *TRADE CANCELLED* #%d

📊 %s · %s
💵 Stake returned: *$%s*`,
		t.ID,
		t.Market, t.Direction,
		t.BetSize.StringFixed(2),
	))
}

func (n *Notifier) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
