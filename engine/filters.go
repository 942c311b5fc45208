package engine

import (
	"fmt"
	"math"
	"time"

	"tradewin/market"
	"tradewin/strategy"
)

// Filter chain constants.
const (
	volumeAvgWindow = 14
	volumeRatio     = 1.2
	momentumBars    = 3
	reentryZoneATRs = 0.5
	pullbackATRs    = 0.5
)

// SignalFilter is one guard in the entry filter chain. Evaluate returns
// whether the decision may proceed, plus the veto reason when it may not.
type SignalFilter interface {
	Name() string
	Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string)
}

// FilterChain runs an already-valid decision through a fixed sequence of
// guards; the first failing guard wins and short-circuits the rest.
type FilterChain struct {
	loc      *time.Location
	cooldown time.Duration
	filters  []SignalFilter
}

// NewFilterChain builds the chain in its fixed order.
func NewFilterChain(loc *time.Location, cooldown time.Duration) *FilterChain {
	c := &FilterChain{loc: loc, cooldown: cooldown}
	c.filters = []SignalFilter{
		&VolumeConfirmationFilter{},
		&MomentumConfirmationFilter{},
		&PostCooldownStrengthFilter{loc: loc, cooldown: cooldown},
		&SameZoneReentryFilter{loc: loc, cooldown: cooldown},
		&PullbackFilter{},
	}
	return c
}

// Apply vets a valid decision at bars[idx]. Invalid decisions pass
// through untouched; a vetoed decision comes back downgraded with the
// failing guard's reason.
func (c *FilterChain) Apply(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) strategy.Decision {
	if !d.Valid {
		return d
	}
	for _, f := range c.filters {
		passed, reason := f.Evaluate(d, bars, idx, state)
		if !passed {
			return d.Reject(reason)
		}
	}
	return d
}

// normalize pins a timestamp to the exchange timezone before comparison.
func normalize(t time.Time, loc *time.Location) time.Time {
	return t.In(loc)
}

// VolumeConfirmationFilter requires the signal bar's volume to exceed
// 1.2x the trailing average volume, computed only over bars strictly
// preceding the evaluation point.
type VolumeConfirmationFilter struct{}

func (f *VolumeConfirmationFilter) Name() string { return "Volume Confirmation" }

func (f *VolumeConfirmationFilter) Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string) {
	if idx < volumeAvgWindow {
		return false, fmt.Sprintf("Volume too low: fewer than %d prior bars", volumeAvgWindow)
	}
	sum := 0.0
	for i := idx - volumeAvgWindow; i < idx; i++ {
		sum += bars[i].Volume
	}
	avg := sum / volumeAvgWindow
	vol := bars[idx].Volume
	if math.IsNaN(avg) || !(vol > volumeRatio*avg) {
		return false, fmt.Sprintf("Volume too low: %.0f < 1.2x avg (%.0f)", vol, avg)
	}
	return true, ""
}

// MomentumConfirmationFilter requires the 3 bars immediately preceding
// the signal bar to all move in the signal's direction.
type MomentumConfirmationFilter struct{}

func (f *MomentumConfirmationFilter) Name() string { return "Momentum Confirmation" }

func (f *MomentumConfirmationFilter) Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string) {
	if idx < momentumBars {
		return false, "Weak momentum across last 3 candles"
	}
	for i := idx - momentumBars; i < idx; i++ {
		if d.Signal == strategy.SignalSell && !bars[i].IsBearish() {
			return false, "Weak momentum across last 3 candles"
		}
		if d.Signal == strategy.SignalBuy && !bars[i].IsBullish() {
			return false, "Weak momentum across last 3 candles"
		}
	}
	return true, ""
}

// PostCooldownStrengthFilter rejects weak candles while still inside the
// cooldown window after a previous exit.
type PostCooldownStrengthFilter struct {
	loc      *time.Location
	cooldown time.Duration
}

func (f *PostCooldownStrengthFilter) Name() string { return "Post-Cooldown Strength" }

func (f *PostCooldownStrengthFilter) Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string) {
	if state.LastExitTime.IsZero() {
		return true, ""
	}
	elapsed := normalize(d.At, f.loc).Sub(normalize(state.LastExitTime, f.loc))
	if elapsed < f.cooldown && bars[idx].IsWeak() {
		return false, "Weak post-cooldown candle"
	}
	return true, ""
}

// SameZoneReentryFilter blocks re-trading the same price level right
// after an exit: within the cooldown window and within 0.5 ATR of the
// last exit price.
type SameZoneReentryFilter struct {
	loc      *time.Location
	cooldown time.Duration
}

func (f *SameZoneReentryFilter) Name() string { return "Same-Zone Re-entry" }

func (f *SameZoneReentryFilter) Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string) {
	if state.LastExitPrice == 0 || state.LastExitTime.IsZero() {
		return true, ""
	}
	elapsed := normalize(d.At, f.loc).Sub(normalize(state.LastExitTime, f.loc))
	priceDiff := math.Abs(d.Entry - state.LastExitPrice)
	if priceDiff < reentryZoneATRs*bars[idx].ATR && elapsed < f.cooldown {
		return false, "Same-zone reentry"
	}
	return true, ""
}

// PullbackFilter permits re-entry only once price has moved at least
// 0.5 ATR beyond the last exit price in the new trade's direction.
type PullbackFilter struct{}

func (f *PullbackFilter) Name() string { return "Pullback Requirement" }

func (f *PullbackFilter) Evaluate(d strategy.Decision, bars []market.Bar, idx int, state *TradeState) (bool, string) {
	if state.LastExitPrice == 0 {
		return true, ""
	}
	atr := bars[idx].ATR
	if d.Signal == strategy.SignalBuy && d.Entry > state.LastExitPrice+pullbackATRs*atr {
		return true, ""
	}
	if d.Signal == strategy.SignalSell && d.Entry < state.LastExitPrice-pullbackATRs*atr {
		return true, ""
	}
	return false, "No pullback for re-entry"
}
