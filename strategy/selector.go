package strategy

import (
	"log"
	"math"
	"time"

	"tradewin/config"
	"tradewin/market"
)

// Opening-range clock window (exchange local time), and the volatility
// floors that gate classification and level assignment.
const (
	openRangeStartMinute = 9*60 + 15 // 09:15
	openRangeEndMinute   = 9*60 + 30 // 09:30

	classifyVolatilityFloor = 15 // mean(H-L) above this picks breakout
	assignVolatilityFloor   = 25 // ORB span below this skips the day

	minStopDistance = 20
	fallbackATR     = 20
)

// DateKey formats a timestamp as the calendar-date key used for per-day
// strategy assignments.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func inOpeningRange(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= openRangeStartMinute && m <= openRangeEndMinute
}

// ClassifyDay classifies one day's volatility from its opening-range
// bars: mean(high-low) above the floor picks the breakout strategy,
// anything else (including an empty opening range) mean-reverts.
func ClassifyDay(dayBars []market.Bar) string {
	sum, n := 0.0, 0
	for _, b := range dayBars {
		if inOpeningRange(b.Date) {
			sum += b.High - b.Low
			n++
		}
	}
	if n == 0 {
		return config.StrategyReversion
	}
	if sum/float64(n) > classifyVolatilityFloor {
		return config.StrategyBreakout
	}
	return config.StrategyReversion
}

// AssignLevels runs the two-phase daily assignment: it groups bars by
// calendar date, classifies each date once, and broadcasts the chosen
// strategy's levels to every bar of that date. It returns a new annotated
// bar slice plus the immutable date -> strategy assignment, which callers
// consult read-only for the rest of the day.
//
// Dates whose opening-range span is under the volatility floor get no
// assignment at all: their level fields stay NaN, so no breakout trade
// can ever be proposed for them.
func AssignLevels(bars []market.Bar, cfg *config.Config) ([]market.Bar, map[string]string) {
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	assignments := make(map[string]string)

	adaptive := cfg.StrategyMode == config.ModeAdaptive

	if adaptive || cfg.StrategyName == config.StrategyBreakout {
		for _, date := range dateOrder(out) {
			group := indicesOfDate(out, date)

			orbHigh, orbLow, found := openingRangeSpan(out, group)
			if !found || orbHigh-orbLow < assignVolatilityFloor {
				log.Printf("⚠️  Skipping strategy assignment on %s: narrow opening range", date)
				continue
			}

			chosen := cfg.StrategyName
			if adaptive {
				chosen = ClassifyDay(barsAt(out, group))
			}
			assignments[date] = chosen

			for _, i := range group {
				if chosen == config.StrategyBreakout {
					atr := out[i].ATR
					if market.Missing(atr) {
						atr = fallbackATR
					}
					stop := math.Max(minStopDistance, atr*cfg.Trading.SLFactor)
					out[i].LongEntry = orbHigh + cfg.Trading.EntryBuffer
					out[i].ShortEntry = orbLow - cfg.Trading.EntryBuffer
					out[i].StopLevel = stop
					out[i].TargetLevel = stop * cfg.Trading.TargetFactor
				} else {
					out[i].LongEntry = 0
					out[i].ShortEntry = 0
					out[i].StopLevel = 0
					out[i].TargetLevel = 0
				}
			}
		}
	}

	// Single-strategy reversion mode never trades breakouts anywhere.
	if !adaptive && cfg.StrategyName == config.StrategyReversion {
		for i := range out {
			out[i].LongEntry = 0
			out[i].ShortEntry = 0
			out[i].StopLevel = 0
			out[i].TargetLevel = 0
		}
	}

	return out, assignments
}

// ChooseForDay resolves which strategy evaluates a given date's bars:
// the configured one in single mode, otherwise the day's assignment,
// defaulting to reversion when no assignment was made.
func ChooseForDay(assignments map[string]string, date string, cfg *config.Config) string {
	if cfg.StrategyMode != config.ModeAdaptive {
		return cfg.StrategyName
	}
	if s, ok := assignments[date]; ok {
		return s
	}
	return config.StrategyReversion
}

func dateOrder(bars []market.Bar) []string {
	var order []string
	seen := make(map[string]bool)
	for _, b := range bars {
		key := DateKey(b.Date)
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}
	return order
}

func indicesOfDate(bars []market.Bar, date string) []int {
	var idx []int
	for i, b := range bars {
		if DateKey(b.Date) == date {
			idx = append(idx, i)
		}
	}
	return idx
}

func barsAt(bars []market.Bar, idx []int) []market.Bar {
	out := make([]market.Bar, 0, len(idx))
	for _, i := range idx {
		out = append(out, bars[i])
	}
	return out
}

// openingRangeSpan returns the opening range's extremes for the given
// bar indices. found is false when the date has no opening-range bars.
func openingRangeSpan(bars []market.Bar, idx []int) (high, low float64, found bool) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, i := range idx {
		if !inOpeningRange(bars[i].Date) {
			continue
		}
		found = true
		high = math.Max(high, bars[i].High)
		low = math.Min(low, bars[i].Low)
	}
	return high, low, found
}
