package engine

import "time"

// TradeState is the single mutable position record for the whole process.
// It is owned by whoever constructs it and must only be written by the
// Executor and StopManager; the engine runs single-threaded, so no lock
// is taken, but any parallel polling design must serialize writers to
// preserve the at-most-one-open-trade invariant.
//
// The JSON tags exist for the Redis snapshot that lets a restarted
// process resume monitoring an open position.
type TradeState struct {
	Direction        string    `json:"direction"` // BUY | SELL | ""
	EntryPrice       float64   `json:"entry_price"`
	EntryTime        time.Time `json:"entry_time"`
	StopLoss         float64   `json:"stop_loss"`
	TargetPrice      float64   `json:"target_price"`
	Open             bool      `json:"open"`
	Strategy         string    `json:"strategy"`
	TradeID          string    `json:"trade_id"`
	LastExitTime     time.Time `json:"last_exit_time"`
	LastExitPrice    float64   `json:"last_exit_price"`
	LastSLUpdateTime time.Time `json:"last_sl_update_time"`
	Qty              int       `json:"qty"`
	TradeType        string    `json:"trade_type"`
	CheckedPostEntry bool      `json:"checked_post_entry"`
}

// NewTradeState returns an empty (flat) trade state.
func NewTradeState() *TradeState {
	return &TradeState{}
}

// Reset clears the record back to flat after an exit. The last-exit
// bookkeeping deliberately survives: it seeds the cooldown and
// re-entry-zone checks for the next cycle.
func (s *TradeState) Reset() {
	lastExitTime := s.LastExitTime
	lastExitPrice := s.LastExitPrice
	*s = TradeState{
		LastExitTime:  lastExitTime,
		LastExitPrice: lastExitPrice,
	}
}
