// Package feeds keeps a live order book for the watched outcome token,
// preferring the CLOB market websocket and falling back to REST snapshots.
package feeds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obitrader/polysim/internal/obi"
)

const (
	DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// Snapshotter fetches a full book over REST. polymarket.Client satisfies it.
type Snapshotter interface {
	FetchBook(ctx context.Context, tokenID string) (bids, asks []obi.RawLevel, err error)
}

// BookFeed maintains the order book of a single token.
type BookFeed struct {
	mu sync.RWMutex

	wsURL       string
	snapshotter Snapshotter

	tokenID string
	book    *obi.Book

	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	// writeMu serializes all writes to conn. gorilla/websocket allows only
	// one concurrent writer, and Watch and pingLoop run on different
	// goroutines.
	writeMu sync.Mutex
}

// NewBookFeed builds a feed. An empty wsURL selects the production endpoint.
func NewBookFeed(wsURL string, snapshotter Snapshotter) *BookFeed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &BookFeed{
		wsURL:       wsURL,
		snapshotter: snapshotter,
		book:        obi.NewBook(),
		stopCh:      make(chan struct{}),
	}
}

// Start connects and begins processing in the background.
func (f *BookFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Msg("📡 Book feed started")
}

// Stop closes the connection and stops the loops.
func (f *BookFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}
	log.Info().Msg("Book feed stopped")
}

// Watch switches the feed to a new token, clearing the old book. Called on
// market rotation.
func (f *BookFeed) Watch(tokenID string) {
	f.mu.Lock()
	if f.tokenID == tokenID {
		f.mu.Unlock()
		return
	}
	f.tokenID = tokenID
	f.book = obi.NewBook()
	conn := f.conn
	connected := f.connected
	f.mu.Unlock()

	if connected && conn != nil {
		if err := f.subscribe(conn, tokenID); err != nil {
			log.Warn().Err(err).Msg("Subscribe failed, will retry on reconnect")
		}
	}
}

// Book returns the current book of the watched token.
func (f *BookFeed) Book() *obi.Book {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.book
}

// Connected reports whether the websocket is up.
func (f *BookFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Refresh pulls a REST snapshot into the book. Used as a fallback while
// the websocket has not delivered a book yet.
func (f *BookFeed) Refresh(ctx context.Context) error {
	f.mu.RLock()
	tokenID := f.tokenID
	book := f.book
	f.mu.RUnlock()

	if tokenID == "" {
		return nil
	}

	bids, asks, err := f.snapshotter.FetchBook(ctx, tokenID)
	if err != nil {
		return err
	}
	book.Replace(bids, asks)
	return nil
}

func (f *BookFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Warn().Err(err).Msg("WebSocket connect failed, retrying")
			select {
			case <-f.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		f.readLoop()

		select {
		case <-f.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *BookFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	tokenID := f.tokenID
	f.mu.Unlock()

	log.Info().Msg("🔌 WebSocket connected")

	if tokenID != "" {
		if err := f.subscribe(conn, tokenID); err != nil {
			log.Warn().Err(err).Msg("Subscribe failed")
		}
	}

	go f.pingLoop(conn)
	return nil
}

func (f *BookFeed) subscribe(conn *websocket.Conn, tokenID string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(map[string]interface{}{
		"type":       "market",
		"assets_ids": []string{tokenID},
	})
}

func (f *BookFeed) ping(conn *websocket.Conn) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (f *BookFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			current := f.conn == conn && f.connected
			f.mu.RUnlock()
			if !current {
				return
			}
			if err := f.ping(conn); err != nil {
				return
			}
		}
	}
}

func (f *BookFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()

			select {
			case <-f.stopCh:
			default:
				log.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		f.processMessage(message)
	}
}

type wsMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Bids      []obi.RawLevel `json:"bids"`
	Asks      []obi.RawLevel `json:"asks"`
}

// processMessage applies book events for the watched token; everything else
// (price_change, last_trade_price) is ignored because the next snapshot
// supersedes it.
func (f *BookFeed) processMessage(data []byte) {
	var msgs []wsMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		msgs = []wsMessage{msg}
	}

	f.mu.RLock()
	tokenID := f.tokenID
	book := f.book
	f.mu.RUnlock()

	for _, msg := range msgs {
		if msg.EventType != "book" || msg.AssetID != tokenID {
			continue
		}
		book.Replace(msg.Bids, msg.Asks)
	}
}
