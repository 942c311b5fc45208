package market

import (
	"fmt"
	"log"
	"time"
)

// Minimum bar count before the engine will evaluate anything.
const minBars = 15

// BarFetcher is the broker-side contract for historical bar retrieval.
type BarFetcher interface {
	HistoricalBars(symbol, interval string, lookbackDays int) ([]Bar, error)
}

// Source fetches bars from a broker with bounded exponential-backoff
// retries, then orders and annotates them. It guarantees the bars
// reaching the indicator engine are time-ordered and deduplicated.
type Source struct {
	fetcher      BarFetcher
	symbol       string
	interval     string
	lookbackDays int

	retries int
	backoff time.Duration
	sleep   func(time.Duration) // test seam
}

// NewSource creates a bar source for one instrument.
func NewSource(fetcher BarFetcher, symbol, interval string, lookbackDays int) *Source {
	return &Source{
		fetcher:      fetcher,
		symbol:       symbol,
		interval:     interval,
		lookbackDays: lookbackDays,
		retries:      10,
		backoff:      3 * time.Second,
		sleep:        time.Sleep,
	}
}

// Fetch retrieves the recent bar window and runs the indicator engine on
// it. Transient fetch failures are retried with exponential backoff up to
// the bounded attempt count; a short series returns ErrInsufficientData
// so the caller pauses and retries instead of evaluating partial data.
func (s *Source) Fetch() ([]Bar, error) {
	var bars []Bar
	var lastErr error

	for attempt := 0; attempt < s.retries; attempt++ {
		bars, lastErr = s.fetcher.HistoricalBars(s.symbol, s.interval, s.lookbackDays)
		if lastErr == nil {
			break
		}
		wait := s.backoff * (1 << attempt)
		if wait > time.Minute {
			wait = time.Minute
		}
		log.Printf("⚠️  Bar fetch retry %d/%d failed: %v", attempt+1, s.retries, lastErr)
		s.sleep(wait)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", s.symbol, lastErr)
	}

	annotated, err := AddIndicators(bars)
	if err != nil {
		return nil, err
	}
	if len(annotated) < minBars {
		return nil, fmt.Errorf("%w: got %d bars, need %d", ErrInsufficientData, len(annotated), minBars)
	}
	return annotated, nil
}
