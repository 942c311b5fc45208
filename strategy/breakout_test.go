package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"tradewin/market"
)

// tradableBar is a strong candle inside the trading window with assigned
// breakout levels; cases override fields to hit each rejection branch.
func tradableBar() market.Bar {
	return market.Bar{
		Date:        time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		Open:        22000,
		High:        22120,
		Low:         22000,
		Close:       22050,
		ATR:         40,
		PrevOpen1:   22000,
		PrevClose1:  22010,
		LongEntry:   22110,
		ShortEntry:  21890,
		StopLevel:   60,
		TargetLevel: 240,
	}
}

func TestEvaluateBreakoutLong(t *testing.T) {
	dec := EvaluateBreakout(tradableBar())

	if !dec.Valid {
		t.Fatalf("expected valid decision, got rejection: %s", dec.Reason)
	}
	if dec.Signal != SignalBuy {
		t.Errorf("Signal = %s, want BUY", dec.Signal)
	}
	if dec.Entry != 22050 || dec.Stop != 21990 || dec.Target != 22290 {
		t.Errorf("levels = %.2f/%.2f/%.2f, want 22050/21990/22290", dec.Entry, dec.Stop, dec.Target)
	}
}

func TestEvaluateBreakoutShort(t *testing.T) {
	b := tradableBar()
	b.High = 22050
	b.Low = 21880
	b.Open = 22040
	b.Close = 21950
	b.PrevOpen1 = 22010
	b.PrevClose1 = 22000 // bearish prior candle

	dec := EvaluateBreakout(b)
	if !dec.Valid {
		t.Fatalf("expected valid decision, got rejection: %s", dec.Reason)
	}
	if dec.Signal != SignalSell {
		t.Errorf("Signal = %s, want SELL", dec.Signal)
	}
	if dec.Stop != 21950+60 || dec.Target != 21950-240 {
		t.Errorf("stop/target = %.2f/%.2f", dec.Stop, dec.Target)
	}
}

func TestEvaluateBreakoutRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*market.Bar)
		reason string
	}{
		{
			name:   "before window opens",
			mutate: func(b *market.Bar) { b.Date = time.Date(2025, 1, 6, 9, 25, 0, 0, time.UTC) },
			reason: "Outside trading window",
		},
		{
			name:   "after cutoff",
			mutate: func(b *market.Bar) { b.Date = time.Date(2025, 1, 6, 15, 26, 0, 0, time.UTC) },
			reason: "Outside trading window",
		},
		{
			name: "weak candle",
			mutate: func(b *market.Bar) {
				b.High = b.Close + 1
				b.Low = b.Close - 1
				b.Open = b.Close
			},
			reason: "Weak candle",
		},
		{
			name:   "missing ATR",
			mutate: func(b *market.Bar) { b.ATR = math.NaN() },
			reason: "ATR",
		},
		{
			name:   "ATR under floor",
			mutate: func(b *market.Bar) { b.ATR = 9 },
			reason: "ATR",
		},
		{
			name:   "unassigned day levels",
			mutate: func(b *market.Bar) { b.LongEntry = math.NaN(); b.ShortEntry = math.NaN() },
			reason: "Missing breakout levels",
		},
		{
			name:   "reversion day zero levels",
			mutate: func(b *market.Bar) { b.LongEntry = 0; b.ShortEntry = 0 },
			reason: "Missing breakout levels",
		},
		{
			name:   "no breakout cross",
			mutate: func(b *market.Bar) { b.High = 22100 },
			reason: "No breakout conditions met",
		},
		{
			name: "breakout without prior confirmation",
			mutate: func(b *market.Bar) {
				b.PrevOpen1 = 22010
				b.PrevClose1 = 22000
			},
			reason: "No breakout conditions met",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tradableBar()
			tt.mutate(&b)
			dec := EvaluateBreakout(b)
			if dec.Valid {
				t.Fatalf("expected rejection")
			}
			if !strings.Contains(dec.Reason, tt.reason) {
				t.Errorf("Reason = %q, want substring %q", dec.Reason, tt.reason)
			}
		})
	}
}
