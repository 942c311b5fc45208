package engine

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTradeStateResetKeepsLastExit(t *testing.T) {
	s := &TradeState{
		Direction:     "BUY",
		EntryPrice:    22000,
		EntryTime:     time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		StopLoss:      21940,
		Open:          true,
		TradeID:       "abc",
		Qty:           25,
		LastExitTime:  time.Date(2025, 1, 6, 9, 40, 0, 0, time.UTC),
		LastExitPrice: 21900,
	}

	s.Reset()

	if s.Open || s.TradeID != "" || s.EntryPrice != 0 || s.Qty != 0 {
		t.Errorf("reset must clear the position: %+v", s)
	}
	if s.LastExitPrice != 21900 || s.LastExitTime.IsZero() {
		t.Errorf("reset must keep last-exit bookkeeping: %+v", s)
	}
}

func TestTradeStateSnapshotRoundTrip(t *testing.T) {
	in := &TradeState{
		Direction:        "SELL",
		EntryPrice:       22100.5,
		EntryTime:        time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		StopLoss:         22160,
		TargetPrice:      22000,
		Open:             true,
		Strategy:         "REVERSION",
		TradeID:          "trade-1",
		Qty:              50,
		TradeType:        "SELL",
		CheckedPostEntry: true,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out TradeState
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != *in {
		t.Errorf("round trip mismatch:\n in  %+v\n out %+v", *in, out)
	}
}
