package strategy

import (
	"fmt"

	"tradewin/config"
	"tradewin/market"
)

// Breakout trading window (exchange local time): no entries before the
// opening range resolves or into the close.
const (
	breakoutWindowStartMinute = 9*60 + 30  // 09:30
	breakoutWindowEndMinute   = 15*60 + 25 // 15:25

	breakoutMinATR = 10
)

// EvaluateBreakout inspects one bar against its day's opening-range
// levels and proposes a breakout trade or a reasoned rejection. It is a
// pure function of the bar and never panics: internal failures become an
// invalid decision carrying the failure text.
func EvaluateBreakout(bar market.Bar) (dec Decision) {
	defer func() {
		if r := recover(); r != nil {
			dec = rejected(fmt.Sprintf("Evaluator failure: %v", r))
		}
	}()

	m := bar.Date.Hour()*60 + bar.Date.Minute()
	if m < breakoutWindowStartMinute || m > breakoutWindowEndMinute {
		return rejected("Outside trading window")
	}

	if bar.IsWeak() {
		return rejected(fmt.Sprintf("Weak candle %.2f", bar.Close))
	}

	if market.Missing(bar.ATR) || bar.ATR < breakoutMinATR {
		return rejected(fmt.Sprintf("ATR %.2f < %d or missing", bar.ATR, breakoutMinATR))
	}

	// Unassigned days carry NaN levels; reversion days carry zeros.
	// Either way there is nothing to break out of.
	if market.Missing(bar.LongEntry) || market.Missing(bar.ShortEntry) ||
		bar.LongEntry <= 0 || bar.ShortEntry <= 0 {
		return rejected("Missing breakout levels")
	}

	bullishPrev := bar.PrevClose1 > bar.PrevOpen1
	bearishPrev := bar.PrevClose1 < bar.PrevOpen1

	if bar.High >= bar.LongEntry && bullishPrev {
		entry := bar.Close
		return Decision{
			At:       bar.Date,
			Signal:   SignalBuy,
			Entry:    entry,
			Stop:     entry - bar.StopLevel,
			Target:   entry + bar.TargetLevel,
			Valid:    true,
			Strategy: config.StrategyBreakout,
		}
	}

	if bar.Low <= bar.ShortEntry && bearishPrev {
		entry := bar.Close
		return Decision{
			At:       bar.Date,
			Signal:   SignalSell,
			Entry:    entry,
			Stop:     entry + bar.StopLevel,
			Target:   entry - bar.TargetLevel,
			Valid:    true,
			Strategy: config.StrategyBreakout,
		}
	}

	return rejected("No breakout conditions met")
}
