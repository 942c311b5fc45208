package strategy

import "time"

// Trade directions.
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
)

// Decision is the outcome of evaluating one bar: either a directional
// trade proposal or a reasoned rejection. Decisions are values; a caller
// downgrades a valid decision with Reject rather than mutating it.
type Decision struct {
	At       time.Time
	Signal   string
	Entry    float64
	Stop     float64
	Target   float64
	Valid    bool
	Strategy string
	Reason   string
}

// Reject returns a copy of the decision marked invalid with the given
// reason. This is the filter chain's veto mechanism.
func (d Decision) Reject(reason string) Decision {
	d.Valid = false
	d.Reason = reason
	return d
}

// rejected builds an invalid decision carrying only a reason.
func rejected(reason string) Decision {
	return Decision{Valid: false, Reason: reason}
}
