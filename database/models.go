package database

import "time"

// TradeRecord is one persisted trade-state transition. An entry writes a
// row with Exited=false; the closing write repeats the trade id with
// Exited=true, the exit price/time and the realized net P&L.
type TradeRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	TradeID   string    `gorm:"index;size:36"`
	Time      time.Time `gorm:"index"`
	Type      string    `gorm:"size:4"` // BUY | SELL
	Price     float64
	StopLoss  float64
	Exited    bool
	PnL       float64
	Strategy  string `gorm:"size:16"`
	Symbol    string `gorm:"size:32"`
	ExitPrice float64
	ExitTime  time.Time
	Lots      int
	Notes     string `gorm:"size:128"`
}

// TableName overrides the GORM default.
func (TradeRecord) TableName() string { return "trades" }

// DailyLogEntry is the end-of-day roll-up row, one per completed trade.
type DailyLogEntry struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	TradeDate  time.Time `gorm:"index"`
	Action     string    `gorm:"size:4"`
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Lots       int
}

// TableName overrides the GORM default.
func (DailyLogEntry) TableName() string { return "trade_log" }

// Summary aggregates realized performance across all recorded trades.
type Summary struct {
	TotalTrades int
	TotalPnL    float64
	Wins        int
	Losses      int
	WinPct      float64
}
