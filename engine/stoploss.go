package engine

import (
	"log"
	"math"
	"time"
)

// Trailing stop-loss tuning.
const (
	trailMinAgeSeconds  = 120  // ignore entry noise
	trailLateAgeSeconds = 1800 // after this, the fallback trail tightens
	trailNearTargetATRs = 0.25
	trailNearTargetTick = 30
	trailNaturalATRs    = 0.6
	trailFallbackCapATR = 50
	trailMinMoveATRs    = 1.0
	trailMinStopDelta   = 0.01
)

// StopManager adjusts the stop-loss of an open position monotonically in
// the trade's favor as price and volatility evolve. It never widens a
// stop: for BUY positions accepted stops form a non-decreasing sequence,
// for SELL non-increasing.
type StopManager struct {
	persist func(*TradeState) // called on every accepted update
}

// NewStopManager creates a stop manager. persist receives the unrealized
// state after each accepted stop move (may be nil).
func NewStopManager(persist func(*TradeState)) *StopManager {
	return &StopManager{persist: persist}
}

// Trail applies one trailing-stop evaluation for the current monitoring
// tick.
func (m *StopManager) Trail(state *TradeState, now time.Time, price, atr float64) {
	if !state.Open {
		return
	}

	age := ageSeconds(state, now)
	if age < trailMinAgeSeconds {
		return
	}

	// Near the target, tighten hard regardless of the normal rule.
	if math.Abs(price-state.TargetPrice) <= trailNearTargetATRs*atr {
		log.Printf("📌 Near target, tightening SL aggressively")
		newSL := price - trailNearTargetTick
		if state.Direction == "SELL" {
			newSL = price + trailNearTargetTick
		}
		m.maybeUpdate(state, now, newSL, price)
		return
	}

	switch state.Direction {
	case "BUY":
		m.trailBuy(state, now, price, atr, age)
	case "SELL":
		m.trailSell(state, now, price, atr, age)
	}
}

func (m *StopManager) trailBuy(state *TradeState, now time.Time, price, atr float64, age int) {
	move := price - state.EntryPrice
	if move < trailMinMoveATRs*atr {
		return
	}
	natural := price - atr*trailNaturalATRs
	fallback := price - fallbackOffset(atr, age)

	if natural > state.StopLoss {
		m.maybeUpdate(state, now, natural, price)
	} else if fallback > state.StopLoss {
		m.maybeUpdate(state, now, fallback, price)
	}
}

func (m *StopManager) trailSell(state *TradeState, now time.Time, price, atr float64, age int) {
	move := state.EntryPrice - price
	if move < trailMinMoveATRs*atr {
		return
	}
	natural := price + atr*trailNaturalATRs
	fallback := price + fallbackOffset(atr, age)

	if natural < state.StopLoss {
		m.maybeUpdate(state, now, natural, price)
	} else if fallback < state.StopLoss {
		m.maybeUpdate(state, now, fallback, price)
	}
}

// fallbackOffset is the looser trail distance: a full ATR early in the
// trade, capped at 50 points once the trade has aged past 30 minutes.
func fallbackOffset(atr float64, age int) float64 {
	if age > trailLateAgeSeconds {
		return math.Min(trailFallbackCapATR, atr)
	}
	return atr
}

// maybeUpdate commits a candidate stop if it is a real move (>= 0.01)
// and strictly more favorable than the current stop.
func (m *StopManager) maybeUpdate(state *TradeState, now time.Time, newSL, price float64) {
	newSL = round2(newSL)
	if math.Abs(newSL-state.StopLoss) < trailMinStopDelta {
		return
	}
	if state.Direction == "BUY" && newSL <= state.StopLoss {
		return
	}
	if state.Direction == "SELL" && newSL >= state.StopLoss {
		return
	}

	state.StopLoss = newSL
	state.LastSLUpdateTime = now
	log.Printf("📉 Price: %.2f | SL: %.2f", price, newSL)

	if m.persist != nil {
		m.persist(state)
	}
}

func ageSeconds(state *TradeState, now time.Time) int {
	if state.EntryTime.IsZero() {
		return 0
	}
	return int(now.Sub(state.EntryTime).Seconds())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
