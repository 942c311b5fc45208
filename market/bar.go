package market

import (
	"math"
	"time"
)

// Bar is one fixed-interval OHLCV aggregate with a timestamp, annotated
// with technical indicators and per-day strategy levels after
// AddIndicators / strategy.AssignLevels have run. Missing numeric values
// are NaN, never zero, so "not yet computable" stays distinguishable from
// a real zero.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	// Indicators (NaN until computable)
	EMA5    float64
	EMA20   float64
	RSI14   float64
	ATR     float64
	MACD    float64
	Typical float64

	// Lagged values
	PrevOpen1  float64
	PrevClose1 float64
	PrevOpen2  float64
	PrevClose2 float64

	// Per-day breakout levels (NaN when no assignment was made for the
	// bar's date; explicit zero on reversion days)
	LongEntry   float64
	ShortEntry  float64
	StopLevel   float64
	TargetLevel float64
}

// Body returns the absolute candle body size.
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}

// Range returns the candle's high-low span.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// IsBullish reports whether the candle closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the candle closed below its open.
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// IsWeak reports whether the candle is too small to trade on: a range
// under 5 points or a body under a quarter of the range.
func (b Bar) IsWeak() bool {
	r := b.Range()
	return r < 5 || b.Body() < 0.25*r
}

// Missing reports whether v is an unavailable value.
func Missing(v float64) bool {
	return math.IsNaN(v)
}
