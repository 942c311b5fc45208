package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Tick is one last-traded-price update from the broker's streaming feed.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"last_price"`
	At     int64   `json:"timestamp"`
}

// TickFeed is a websocket client streaming last-traded prices for one
// symbol. The monitoring loop uses it for fresher prices between bar
// closes; when the feed is down, callers fall back to the last bar close,
// so the feed is strictly best-effort.
type TickFeed struct {
	url    string
	symbol string
	header http.Header

	// writeMu guards conn (replaced on every reconnect) and serializes
	// writes on it.
	writeMu sync.Mutex
	conn    *websocket.Conn

	mu        sync.RWMutex
	lastPrice float64
	lastAt    time.Time

	cancel context.CancelFunc
}

// NewTickFeed creates a tick feed client.
func NewTickFeed(url, symbol, authToken string) *TickFeed {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+authToken)

	return &TickFeed{
		url:    url,
		symbol: symbol,
		header: header,
	}
}

// Start connects and runs the read loop in the background, reconnecting
// with a fixed delay on failure until Stop is called.
func (f *TickFeed) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := f.connect()
			if err != nil {
				log.Printf("⚠️  Tick feed connect failed: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			f.startPing(ctx, conn, 30*time.Second)
			f.readLoop(ctx, conn)

			// Connection dropped; back off briefly before redialing.
			time.Sleep(2 * time.Second)
		}
	}()
}

// Stop closes the feed and its background loops.
func (f *TickFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.writeMu.Lock()
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.writeMu.Unlock()
}

// LastPrice returns the most recent streamed price, and whether a tick
// fresh enough to act on (under a minute old) is available.
func (f *TickFeed) LastPrice() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastPrice == 0 || time.Since(f.lastAt) > time.Minute {
		return 0, false
	}
	return f.lastPrice, true
}

func (f *TickFeed) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, f.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.writeMu.Lock()
	f.conn = conn
	f.writeMu.Unlock()
	log.Printf("✅ Tick feed connected to %s", f.url)

	sub := map[string]interface{}{"action": "subscribe", "symbols": []string{f.symbol}}
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}
	if err := f.writeMessage(conn, websocket.TextMessage, data); err != nil {
		return nil, err
	}
	return conn, nil
}

func (f *TickFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("⚠️  Tick feed read error: %v", err)
			_ = conn.Close()
			return
		}

		var tick Tick
		if err := json.Unmarshal(data, &tick); err != nil {
			continue // non-tick frame (acks, heartbeats)
		}
		if tick.Symbol != f.symbol || tick.Price <= 0 {
			continue
		}

		f.mu.Lock()
		f.lastPrice = tick.Price
		f.lastAt = time.Now()
		f.mu.Unlock()
	}
}

// startPing keeps one connection alive with periodic pings. The goroutine
// is bound to the connection it was started for and exits when that
// connection stops accepting writes, so reconnects never accumulate
// pingers on the live socket.
func (f *TickFeed) startPing(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.writeMessage(conn, websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

func (f *TickFeed) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}
