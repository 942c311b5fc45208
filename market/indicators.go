package market

import (
	"errors"
	"math"
	"sort"
)

// Indicator periods. ATR here is the simplified intraday variant: a
// rolling mean of (high - low), not Wilder's true range.
const (
	emaShortSpan = 5
	emaLongSpan  = 20
	rsiPeriod    = 14
	atrPeriod    = 14
	macdFastSpan = 12
	macdSlowSpan = 26
)

// ErrNoTimestamps is returned when no bar carries a usable timestamp, so
// no time series can be established.
var ErrNoTimestamps = errors.New("market: no usable timestamps in bar data")

// ErrInsufficientData is returned by Source when too few bars came back
// to evaluate anything. Callers should pause and retry rather than act.
var ErrInsufficientData = errors.New("market: insufficient bar data")

// AddIndicators annotates an ordered bar sequence with the technical
// indicator set. The input is not mutated: a cleaned copy is returned
// with rows lacking a timestamp dropped and duplicate timestamps removed
// (first occurrence wins). Returns ErrNoTimestamps when nothing usable
// remains.
func AddIndicators(bars []Bar) ([]Bar, error) {
	cleaned := make([]Bar, 0, len(bars))
	seen := make(map[int64]bool, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			continue
		}
		key := b.Date.UnixNano()
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, b)
	}
	if len(cleaned) == 0 {
		return nil, ErrNoTimestamps
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Date.Before(cleaned[j].Date)
	})

	n := len(cleaned)
	closes := make([]float64, n)
	for i, b := range cleaned {
		closes[i] = b.Close
	}

	emaShort := ema(closes, emaShortSpan)
	emaLong := ema(closes, emaLongSpan)
	macdFast := ema(closes, macdFastSpan)
	macdSlow := ema(closes, macdSlowSpan)

	for i := range cleaned {
		b := &cleaned[i]

		b.EMA5 = emaShort[i]
		b.EMA20 = emaLong[i]
		b.MACD = macdFast[i] - macdSlow[i]
		b.Typical = (b.High + b.Low + b.Close) / 3
		b.RSI14 = rsiAt(closes, i)
		b.ATR = atrAt(cleaned, i)

		b.PrevOpen1 = lag(cleaned, i, 1, func(x Bar) float64 { return x.Open })
		b.PrevClose1 = lag(cleaned, i, 1, func(x Bar) float64 { return x.Close })
		b.PrevOpen2 = lag(cleaned, i, 2, func(x Bar) float64 { return x.Open })
		b.PrevClose2 = lag(cleaned, i, 2, func(x Bar) float64 { return x.Close })

		// Strategy levels start unassigned
		b.LongEntry = math.NaN()
		b.ShortEntry = math.NaN()
		b.StopLevel = math.NaN()
		b.TargetLevel = math.NaN()
	}

	return cleaned, nil
}

// ema computes a recursive exponential moving average with
// alpha = 2/(span+1), seeded with the first value.
func ema(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// rsiAt computes the 14-period relative-strength oscillator at index i:
// 100 - 100/(1 + mean(1 + pct_change)) over the trailing window. The
// first bar has no percentage change, so the oscillator needs rsiPeriod
// changes before it resolves.
func rsiAt(closes []float64, i int) float64 {
	if i < rsiPeriod {
		return math.NaN()
	}
	sum := 0.0
	for j := i - rsiPeriod + 1; j <= i; j++ {
		if closes[j-1] == 0 {
			return math.NaN()
		}
		sum += closes[j] / closes[j-1] // 1 + pct_change
	}
	mean := sum / float64(rsiPeriod)
	return 100 - 100/(1+mean)
}

// atrAt computes the simplified ATR at index i: the mean of (high - low)
// over the trailing atrPeriod bars.
func atrAt(bars []Bar, i int) float64 {
	if i < atrPeriod-1 {
		return math.NaN()
	}
	sum := 0.0
	for j := i - atrPeriod + 1; j <= i; j++ {
		sum += bars[j].High - bars[j].Low
	}
	return sum / float64(atrPeriod)
}

func lag(bars []Bar, i, k int, field func(Bar) float64) float64 {
	if i < k {
		return math.NaN()
	}
	return field(bars[i-k])
}
