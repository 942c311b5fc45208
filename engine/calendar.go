package engine

import (
	"time"
)

// Exchange session clock (local exchange time).
const (
	sessionOpenMinute   = 9*60 + 15  // 09:15
	sessionCloseMinute  = 15*60 + 30 // 15:30
	sessionCutoffMinute = 15*60 + 25 // 15:25, no new trades past this
)

// ExchangeLocation returns the exchange timezone, falling back to a
// fixed IST offset when the tz database is unavailable.
func ExchangeLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil || loc == nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// Calendar answers whether the exchange is currently in session,
// incorporating weekdays, exchange hours and the configured holiday set.
type Calendar struct {
	loc            *time.Location
	holidays       map[string]bool
	weekendTesting bool
}

// NewCalendar creates a market calendar. holidays is keyed by
// YYYY-MM-DD. weekendTesting forces the session open for simulator runs.
func NewCalendar(loc *time.Location, holidays map[string]bool, weekendTesting bool) *Calendar {
	return &Calendar{loc: loc, holidays: holidays, weekendTesting: weekendTesting}
}

// IsTradingSessionNow reports whether now falls inside a live session.
func (c *Calendar) IsTradingSessionNow(now time.Time) bool {
	if c.weekendTesting {
		return true
	}
	local := now.In(c.loc)

	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if c.holidays[local.Format("2006-01-02")] {
		return false
	}

	m := local.Hour()*60 + local.Minute()
	return m >= sessionOpenMinute && m <= sessionCloseMinute
}

// ReachedCutoff reports whether the session has passed the intraday
// cutoff after which the engine wraps up instead of entering new trades.
func (c *Calendar) ReachedCutoff(now time.Time) bool {
	if c.weekendTesting {
		return false
	}
	local := now.In(c.loc)
	m := local.Hour()*60 + local.Minute()
	return m >= sessionCutoffMinute
}
