package market

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLastPriceFreshness(t *testing.T) {
	f := NewTickFeed("wss://example.invalid", "BANKNIFTY24FUT", "token")

	if _, ok := f.LastPrice(); ok {
		t.Errorf("feed without ticks must report no price")
	}

	f.mu.Lock()
	f.lastPrice = 22010.5
	f.lastAt = time.Now()
	f.mu.Unlock()

	price, ok := f.LastPrice()
	if !ok || price != 22010.5 {
		t.Errorf("fresh tick: got (%v, %v)", price, ok)
	}

	f.mu.Lock()
	f.lastAt = time.Now().Add(-2 * time.Minute)
	f.mu.Unlock()

	if _, ok := f.LastPrice(); ok {
		t.Errorf("stale tick must not be reported")
	}
}

func TestStopWithoutStart(t *testing.T) {
	f := NewTickFeed("wss://example.invalid", "BANKNIFTY24FUT", "token")
	f.Stop() // no connection, no background loop: must be a safe no-op
}

func TestTickFeedStreamsAndStops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Subscribe frame first, then one tick.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		data, _ := json.Marshal(Tick{Symbol: "BANKNIFTY24FUT", Price: 22042.5})
		_ = conn.WriteMessage(websocket.TextMessage, data)

		// Hold the connection until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := NewTickFeed(wsURL, "BANKNIFTY24FUT", "token")
	f.Start()
	defer f.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if price, ok := f.LastPrice(); ok {
			if price != 22042.5 {
				t.Fatalf("price = %v, want 22042.5", price)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no tick received before the deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
