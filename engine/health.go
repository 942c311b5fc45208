package engine

import (
	"math"
	"time"

	"tradewin/market"
)

// Post-entry health check defaults.
const (
	healthLookahead    = 3
	healthThresholdPct = 0.15
)

// Health check verdicts.
const (
	VerdictValid   = "valid"
	VerdictInvalid = "invalid"
)

// PostEntryHealthCheck measures whether price followed through after an
// entry. It locates the entry bar (the last bar at or before entryTime),
// infers direction from that candle's body, and computes the maximum
// favorable excursion over the next lookahead bars as a percentage of the
// entry bar's close.
//
// Returns VerdictInvalid when the entry bar cannot be located or fewer
// than lookahead bars exist after it; otherwise VerdictValid plus whether
// the move met the threshold. It operates on the bars already fetched for
// the current tick and never triggers another fetch.
func PostEntryHealthCheck(bars []market.Bar, entryTime time.Time, lookahead int, thresholdPct float64) (string, bool) {
	entryIdx := -1
	for i, b := range bars {
		if !b.Date.After(entryTime) {
			entryIdx = i
		} else {
			break
		}
	}
	if entryIdx < 0 {
		return VerdictInvalid, false
	}
	if entryIdx+lookahead >= len(bars) {
		return VerdictInvalid, false // not enough candles yet
	}

	entryBar := bars[entryIdx]
	entryPrice := entryBar.Close
	if entryPrice == 0 {
		return VerdictInvalid, false
	}
	buy := entryBar.Close > entryBar.Open

	extreme := bars[entryIdx+1].Close
	for i := entryIdx + 2; i <= entryIdx+lookahead; i++ {
		c := bars[i].Close
		if buy && c > extreme {
			extreme = c
		}
		if !buy && c < extreme {
			extreme = c
		}
	}

	movePct := math.Abs((extreme-entryPrice)/entryPrice) * 100
	return VerdictValid, movePct >= thresholdPct
}
