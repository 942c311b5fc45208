package strategy

import (
	"fmt"

	"tradewin/config"
	"tradewin/market"
)

// Reversion volatility floors: below these the risk on a trade cannot be
// priced meaningfully.
const (
	reversionMinATR      = 5
	reversionMinATRRatio = 0.0001
)

// EvaluateReversion inspects one bar for a typical-price band re-cross
// confirmed against the long EMA trend filter. dev is the band width as
// a fraction of price, rr the minimum reward/risk ratio. Pure function;
// never panics.
func EvaluateReversion(bar market.Bar, dev, rr float64) (dec Decision) {
	defer func() {
		if r := recover(); r != nil {
			dec = rejected(fmt.Sprintf("Evaluator failure: %v", r))
		}
	}()

	entry := bar.Close

	if bar.IsWeak() {
		return rejected(fmt.Sprintf("Weak candle %.2f", entry))
	}

	if market.Missing(entry) || market.Missing(bar.ATR) {
		return rejected("Missing entry or ATR")
	}
	if market.Missing(bar.Typical) || market.Missing(bar.RSI14) ||
		market.Missing(bar.EMA20) || market.Missing(bar.PrevClose1) {
		return rejected("Missing indicator value(s)")
	}

	if bar.ATR/entry < reversionMinATRRatio || bar.ATR < reversionMinATR {
		return rejected(fmt.Sprintf("ATR too low %.2f < %d", bar.ATR, reversionMinATR))
	}

	upper := bar.Typical + dev*entry
	lower := bar.Typical - dev*entry

	// Long: price just crossed above the upper band, with the trend.
	if entry > upper && upper >= bar.PrevClose1 && entry > bar.EMA20 {
		stop := bar.StopLevel
		target := bar.TargetLevel
		reward := target - entry
		risk := rr * (entry - stop)
		if reward < risk {
			return rejected(fmt.Sprintf("Risk/reward too low %.2f < %.2f", reward, risk))
		}
		return Decision{
			At:       bar.Date,
			Signal:   SignalBuy,
			Entry:    entry,
			Stop:     stop,
			Target:   target,
			Valid:    true,
			Strategy: config.StrategyReversion,
		}
	}

	// Short: mirrored against the lower band, below the trend filter.
	if entry < lower && lower <= bar.PrevClose1 && entry < bar.EMA20 {
		stop := bar.StopLevel
		target := bar.TargetLevel
		reward := entry - target
		risk := rr * (stop - entry)
		if reward < risk {
			return rejected(fmt.Sprintf("Risk/reward too low %.2f < %.2f", reward, risk))
		}
		return Decision{
			At:       bar.Date,
			Signal:   SignalSell,
			Entry:    entry,
			Stop:     stop,
			Target:   target,
			Valid:    true,
			Strategy: config.StrategyReversion,
		}
	}

	return rejected("No reversion signal conditions met")
}
