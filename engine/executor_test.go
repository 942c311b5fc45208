package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradewin/config"
	"tradewin/database"
	"tradewin/market"
	"tradewin/strategy"
)

type fakeStore struct {
	recs []*database.TradeRecord
}

func (s *fakeStore) RecordTrade(rec *database.TradeRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

type fakeBroker struct {
	calls int
}

func (b *fakeBroker) SubmitStopOrder(direction string, qty int, triggerPrice float64) error {
	b.calls++
	return nil
}

type fakeCache struct {
	saved   int
	cleared int
}

func (c *fakeCache) SaveState(state *TradeState) error { c.saved++; return nil }
func (c *fakeCache) ClearState() error                 { c.cleared++; return nil }

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) Send(msg string) { n.msgs = append(n.msgs, msg) }

func executorConfig() *config.Config {
	return &config.Config{
		Symbol:       "BANKNIFTY24FUT",
		TradeQty:     25,
		PaperTrading: true,
		Trading: config.TradingConfig{
			CooldownMinutes: 5,
		},
	}
}

func newTestExecutor() (*Executor, *fakeStore, *fakeBroker, *fakeCache) {
	store := &fakeStore{}
	broker := &fakeBroker{}
	cache := &fakeCache{}
	e := NewExecutor(executorConfig(), NewTradeState(), store, broker, cache, &fakeNotifier{}, time.UTC)
	return e, store, broker, cache
}

func buyEntry() strategy.Decision {
	return strategy.Decision{
		At:       time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		Signal:   strategy.SignalBuy,
		Entry:    22000,
		Stop:     21940,
		Target:   22240,
		Valid:    true,
		Strategy: config.StrategyBreakout,
	}
}

func TestNetPnL(t *testing.T) {
	tests := []struct {
		name      string
		entry     float64
		exit      float64
		qty       int
		direction string
		want      float64
	}{
		{"profitable long", 22000, 22050, 25, "BUY", 1185.20},
		{"profitable short", 22000, 21950, 25, "SELL", 1064.51},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetPnL(tt.entry, tt.exit, tt.qty, tt.direction, tt.direction)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NetPnL = %.4f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestNetPnLChargesReduceGross(t *testing.T) {
	gross := (22050.0 - 22000.0) * 25
	if got := NetPnL(22000, 22050, 25, "BUY", "BUY"); got >= gross {
		t.Errorf("net %.2f must be below gross %.2f", got, gross)
	}
}

func TestOpenTrade(t *testing.T) {
	e, store, broker, cache := newTestExecutor()

	if err := e.OpenTrade(buyEntry(), 2); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}

	s := e.State()
	if !s.Open {
		t.Fatalf("state must be open")
	}
	if s.TradeID == "" {
		t.Errorf("trade ID must be assigned")
	}
	if s.Qty != 50 {
		t.Errorf("Qty = %d, want 25 x 2 lots", s.Qty)
	}
	if s.EntryPrice != 22000 || s.StopLoss != 21940 {
		t.Errorf("entry/stop = %.2f/%.2f", s.EntryPrice, s.StopLoss)
	}
	// First ATR observation is its own median, so the wide multiplier
	// applies: 22000 + 2.5 * fallback ATR 20.
	if s.TargetPrice != 22050 {
		t.Errorf("TargetPrice = %.2f, want 22050", s.TargetPrice)
	}

	if len(store.recs) != 1 || store.recs[0].Exited {
		t.Errorf("entry must persist one non-exited record")
	}
	if cache.saved == 0 {
		t.Errorf("entry must snapshot state")
	}
	if broker.calls != 0 {
		t.Errorf("paper trading must not place broker orders")
	}
}

func TestOpenTradeSubmitsStopWhenLive(t *testing.T) {
	e, _, broker, _ := newTestExecutor()
	e.cfg.PaperTrading = false

	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}
	if broker.calls != 1 {
		t.Errorf("live mode must submit a protective stop order")
	}
}

func TestOpenTradeRefusesSecondEntry(t *testing.T) {
	e, store, _, _ := newTestExecutor()

	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("first OpenTrade: %v", err)
	}
	firstID := e.State().TradeID

	err := e.OpenTrade(buyEntry(), 1)
	if !errors.Is(err, ErrTradeAlreadyOpen) {
		t.Fatalf("expected ErrTradeAlreadyOpen, got %v", err)
	}
	if e.State().TradeID != firstID {
		t.Errorf("refused entry must not touch the open trade")
	}
	if len(store.recs) != 1 {
		t.Errorf("refused entry must not persist a record")
	}
}

func TestExitTrade(t *testing.T) {
	e, store, _, cache := newTestExecutor()
	fixed := time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}

	pnl, err := e.ExitTrade(22050, "Target reached")
	if err != nil {
		t.Fatalf("ExitTrade: %v", err)
	}
	if math.Abs(pnl-1185.20) > 1e-9 {
		t.Errorf("pnl = %.4f, want 1185.20", pnl)
	}

	s := e.State()
	if s.Open {
		t.Fatalf("state must be flat after exit")
	}
	if s.LastExitPrice != 22050 || !s.LastExitTime.Equal(fixed) {
		t.Errorf("last-exit bookkeeping must survive the reset")
	}
	if s.TradeID != "" || s.EntryPrice != 0 {
		t.Errorf("position fields must be cleared")
	}

	if len(store.recs) != 2 || !store.recs[1].Exited {
		t.Fatalf("exit must persist an exited record")
	}
	if store.recs[1].Notes != "Target reached" {
		t.Errorf("Notes = %q", store.recs[1].Notes)
	}
	if cache.cleared != 1 {
		t.Errorf("exit must clear the snapshot")
	}
}

func TestExitTradeWithoutPosition(t *testing.T) {
	e, _, _, _ := newTestExecutor()
	if _, err := e.ExitTrade(22000, "nothing"); !errors.Is(err, ErrNoOpenTrade) {
		t.Errorf("expected ErrNoOpenTrade, got %v", err)
	}
}

func TestInCooldown(t *testing.T) {
	e, _, _, _ := newTestExecutor()
	exit := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	if e.InCooldown(exit) {
		t.Errorf("fresh state must not be in cooldown")
	}

	e.State().LastExitTime = exit
	if !e.InCooldown(exit.Add(3 * time.Minute)) {
		t.Errorf("3 minutes after exit must be in cooldown")
	}
	if e.InCooldown(exit.Add(6 * time.Minute)) {
		t.Errorf("6 minutes after exit must be out of cooldown")
	}
}

func TestMonitorTickStopLossExit(t *testing.T) {
	e, store, _, _ := newTestExecutor()
	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}
	e.State().CheckedPostEntry = true

	bars := []market.Bar{{
		Date:  time.Date(2025, 1, 6, 10, 5, 0, 0, time.UTC),
		Open:  21950,
		High:  21960,
		Low:   21920,
		Close: 21930, // below the 21940 stop
		ATR:   30,
	}}

	open := e.MonitorTick(bars, 0, bars[0].Date)
	if open {
		t.Fatalf("stop-loss cross must close the position")
	}
	last := store.recs[len(store.recs)-1]
	if !last.Exited || last.Notes != "Stop-loss hit" {
		t.Errorf("exit record = %+v", last)
	}
}

func TestMonitorTickLivePriceOverride(t *testing.T) {
	e, _, _, _ := newTestExecutor()
	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}
	e.State().CheckedPostEntry = true

	// Bar close would trip the stop, but the fresher tick price is safe.
	bars := []market.Bar{{
		Date:  time.Date(2025, 1, 6, 10, 5, 0, 0, time.UTC),
		Open:  21950,
		High:  21960,
		Low:   21920,
		Close: 21930,
		ATR:   30,
	}}

	open := e.MonitorTick(bars, 22010, bars[0].Date)
	if !open {
		t.Fatalf("live price above the stop must keep the position open")
	}
}

func TestMonitorTickWeakFollowThroughExit(t *testing.T) {
	e, store, _, _ := newTestExecutor()
	fixed := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	if err := e.OpenTrade(buyEntry(), 1); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}

	// Entry candle bullish, then three flat closes: follow-through under
	// the threshold forces a scratch exit at the entry price.
	mk := func(i int, open, close float64) market.Bar {
		return market.Bar{
			Date:  fixed.Add(time.Duration(i) * 5 * time.Minute),
			Open:  open,
			High:  close + 5,
			Low:   open - 5,
			Close: close,
			ATR:   30,
		}
	}
	bars := []market.Bar{
		mk(0, 21990, 22000),
		mk(1, 22000, 22002),
		mk(2, 22002, 22001),
		mk(3, 22001, 22003),
	}

	open := e.MonitorTick(bars, 22003, bars[3].Date)
	if open {
		t.Fatalf("weak follow-through must close the position")
	}
	last := store.recs[len(store.recs)-1]
	if last.Notes != "Weak post-entry momentum" {
		t.Errorf("Notes = %q", last.Notes)
	}
	if last.ExitPrice != 22000 {
		t.Errorf("scratch exit must use the entry price, got %.2f", last.ExitPrice)
	}
}
