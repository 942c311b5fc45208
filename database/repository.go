package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TradeRepository handles database operations for trade records.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// RecordTrade saves one trade-state transition row.
func (r *TradeRepository) RecordTrade(rec *TradeRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("RecordTrade: %w", err)
	}
	return nil
}

// FetchPnLToday returns the sum of realized P&L for trades exited today.
// An empty day returns 0.
func (r *TradeRepository) FetchPnLToday(now time.Time) (float64, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var pnl *float64
	err := r.db.Model(&TradeRecord{}).
		Where("exited = ? AND exit_time >= ? AND exit_time < ?", true, start, start.Add(24*time.Hour)).
		Select("SUM(pnl)").
		Scan(&pnl).Error
	if err != nil {
		return 0, fmt.Errorf("FetchPnLToday: %w", err)
	}
	if pnl == nil {
		return 0, nil
	}
	return *pnl, nil
}

// PopulateDailyLog copies today's exited trades into the EOD log table.
func (r *TradeRepository) PopulateDailyLog(now time.Time) error {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var trades []TradeRecord
	err := r.db.
		Where("exited = ? AND exit_time >= ? AND exit_time < ?", true, start, start.Add(24*time.Hour)).
		Find(&trades).Error
	if err != nil {
		return fmt.Errorf("PopulateDailyLog: %w", err)
	}

	for _, t := range trades {
		entry := DailyLogEntry{
			TradeDate:  t.ExitTime,
			Action:     t.Type,
			EntryPrice: t.Price,
			ExitPrice:  t.ExitPrice,
			PnL:        t.PnL,
			Lots:       t.Lots,
		}
		if err := r.db.Create(&entry).Error; err != nil {
			return fmt.Errorf("PopulateDailyLog: %w", err)
		}
	}
	return nil
}

// FetchSummary aggregates realized performance across exited trades.
func (r *TradeRepository) FetchSummary() (*Summary, error) {
	var trades []TradeRecord
	if err := r.db.Where("exited = ?", true).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("FetchSummary: %w", err)
	}

	s := &Summary{}
	for _, t := range trades {
		s.TotalTrades++
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
		} else if t.PnL < 0 {
			s.Losses++
		}
	}
	if s.TotalTrades > 0 {
		s.WinPct = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s, nil
}
