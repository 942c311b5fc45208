package engine

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"tradewin/config"
	"tradewin/database"
	"tradewin/market"
	"tradewin/strategy"
)

// Volatility-adaptive target multipliers: tighter targets in quiet
// markets, wider when the entry ATR is above the historical median.
const (
	targetMultQuiet  = 1.8
	targetMultActive = 2.5
)

// Invariant violations. These are refusals, not recoverable conditions:
// the attempted operation is dropped and logged, never silently applied.
var (
	ErrTradeAlreadyOpen = errors.New("engine: a trade is already open")
	ErrNoOpenTrade      = errors.New("engine: no open trade")
)

// TradeStore persists trade records. Failures are surfaced but never
// block state transitions already committed in memory.
type TradeStore interface {
	RecordTrade(rec *database.TradeRecord) error
}

// OrderBroker submits protective orders to the exchange.
type OrderBroker interface {
	SubmitStopOrder(direction string, qty int, triggerPrice float64) error
}

// StateCache snapshots the live TradeState so a restarted process can
// resume monitoring an open position.
type StateCache interface {
	SaveState(state *TradeState) error
	ClearState() error
}

// Notifier pushes operator alerts. Implementations must be non-blocking
// failures-wise: a dead notifier never stops the engine.
type Notifier interface {
	Send(msg string)
}

// Executor owns the trade lifecycle: entry, the per-tick monitoring
// transition, and exit with net P&L. It is the only writer of the
// TradeState besides the StopManager it drives.
type Executor struct {
	cfg      *config.Config
	state    *TradeState
	store    TradeStore
	broker   OrderBroker
	cache    StateCache
	notifier Notifier
	stops    *StopManager
	loc      *time.Location

	atr        float64
	atrHistory []float64

	now func() time.Time // test seam
}

// NewExecutor wires the executor around the single TradeState record.
func NewExecutor(cfg *config.Config, state *TradeState, store TradeStore, broker OrderBroker, cache StateCache, notifier Notifier, loc *time.Location) *Executor {
	e := &Executor{
		cfg:      cfg,
		state:    state,
		store:    store,
		broker:   broker,
		cache:    cache,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
	e.stops = NewStopManager(func(s *TradeState) {
		e.snapshotState()
	})
	return e
}

// State exposes the trade record for read access by the caller loop.
func (e *Executor) State() *TradeState { return e.state }

// SetATR updates the tracked volatility used for targets and trailing.
func (e *Executor) SetATR(atr float64) {
	if atr > 0 && !market.Missing(atr) {
		e.atr = atr
	}
}

// OpenTrade transitions Flat -> Open from a decision that survived the
// filter chain. Refuses outright if a trade is already open.
func (e *Executor) OpenTrade(dec strategy.Decision, lots int) error {
	if e.state.Open {
		log.Printf("🚫 Trade already open (%s). Refusing new entry.", e.state.TradeID)
		return ErrTradeAlreadyOpen
	}
	if lots < 1 {
		lots = 1
	}

	e.state.TradeID = uuid.NewString()
	e.state.EntryTime = e.now().In(e.loc)
	e.state.Direction = dec.Signal
	e.state.TradeType = dec.Signal
	e.state.EntryPrice = round2(dec.Entry)
	e.state.StopLoss = round2(dec.Stop)
	e.state.Strategy = dec.Strategy
	e.state.Qty = e.cfg.TradeQty * lots
	e.state.TargetPrice = e.adjustTargetPrice(dec.Signal)
	e.state.LastSLUpdateTime = time.Time{}
	e.state.CheckedPostEntry = false
	e.state.Open = true

	if err := e.store.RecordTrade(e.tradeRecord(0, 0, false, "Order placed")); err != nil {
		log.Printf("❌ Failed to record trade entry: %v", err)
	}
	e.snapshotState()

	if !e.cfg.PaperTrading {
		if err := e.broker.SubmitStopOrder(dec.Signal, e.state.Qty, round2(e.state.StopLoss)); err != nil {
			// Bookkeeping already committed; surface to the operator.
			log.Printf("❌ Stop order submission failed: %v", err)
			e.notify(fmt.Sprintf("⚠️ Stop order failed for %s: %v", e.state.TradeID, err))
		}
	}

	log.Printf("🆕 %s: %.2f | SL: %.2f | Target: %.2f", dec.Signal, e.state.EntryPrice, e.state.StopLoss, e.state.TargetPrice)
	e.notify(fmt.Sprintf("🆕 %s %s x%d @ %.2f (SL %.2f)", dec.Signal, e.cfg.Symbol, e.state.Qty, e.state.EntryPrice, e.state.StopLoss))
	return nil
}

// adjustTargetPrice sizes the target off the entry ATR: the multiplier is
// the quiet one when the current ATR sits below the running median of
// historical entry ATRs.
func (e *Executor) adjustTargetPrice(direction string) float64 {
	atr := e.atr
	if atr == 0 {
		atr = 20
	}
	e.atrHistory = append(e.atrHistory, atr)

	sorted := make([]float64, len(e.atrHistory))
	copy(sorted, e.atrHistory)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	mult := targetMultActive
	if atr < median {
		mult = targetMultQuiet
	}
	if direction == strategy.SignalSell {
		return e.state.EntryPrice - mult*atr
	}
	return e.state.EntryPrice + mult*atr
}

// MonitorTick runs one Open -> Open monitoring transition: refresh the
// tracked ATR, trail the stop, and check every exit condition. bars must
// already carry indicators; livePrice overrides the last bar close when
// the tick feed has a fresh quote (pass 0 to use the bar close). Returns
// whether the position is still open.
func (e *Executor) MonitorTick(bars []market.Bar, livePrice float64, now time.Time) bool {
	if !e.state.Open {
		return false
	}
	if len(bars) == 0 {
		return true
	}

	last := bars[len(bars)-1]
	e.SetATR(last.ATR)

	price := last.Close
	if livePrice > 0 {
		price = livePrice
	}
	log.Printf("📈 Price: %.2f | SL: %.2f", price, e.state.StopLoss)

	e.stops.Trail(e.state, now, price, e.atr)

	// Stop-loss cross against the position.
	if e.state.Direction == strategy.SignalSell && price > e.state.StopLoss {
		log.Printf("❌ SELL: SL hit at %.2f", price)
		if _, err := e.ExitTrade(price, "Stop-loss hit"); err != nil {
			log.Printf("❌ Exit failed: %v", err)
		}
		return false
	}
	if e.state.Direction == strategy.SignalBuy && price < e.state.StopLoss {
		log.Printf("❌ BUY: SL hit at %.2f", price)
		if _, err := e.ExitTrade(price, "Stop-loss hit"); err != nil {
			log.Printf("❌ Exit failed: %v", err)
		}
		return false
	}

	// One-time follow-through check a few bars after entry.
	if !e.state.CheckedPostEntry {
		verdict, passed := PostEntryHealthCheck(bars, e.state.EntryTime, healthLookahead, healthThresholdPct)
		if verdict == VerdictValid {
			e.state.CheckedPostEntry = true
			if !passed {
				log.Printf("⚠️  Weak follow-through detected after entry. Exiting early.")
				if _, err := e.ExitTrade(e.state.EntryPrice, "Weak post-entry momentum"); err != nil {
					log.Printf("❌ Exit failed: %v", err)
				}
				return false
			}
		}
	}

	return true
}

// ExitTrade transitions Open -> Flat at the given price, computing net
// P&L and resetting the state while retaining the last-exit bookkeeping.
func (e *Executor) ExitTrade(price float64, reason string) (float64, error) {
	if !e.state.Open {
		log.Printf("🚫 No open trade to exit.")
		return 0, ErrNoOpenTrade
	}

	pnl := NetPnL(e.state.EntryPrice, price, e.state.Qty, e.state.Direction, e.state.TradeType)
	log.Printf("💰 Exiting trade at %.2f with P&L: %.2f | Reason: %s", price, pnl, reason)

	if err := e.store.RecordTrade(e.tradeRecord(price, pnl, true, reason)); err != nil {
		log.Printf("❌ Failed to record trade exit: %v", err)
	}

	direction := e.state.Direction
	e.state.Reset()
	e.state.LastExitPrice = price
	e.state.LastExitTime = e.now().In(e.loc)

	if e.cache != nil {
		if err := e.cache.ClearState(); err != nil {
			log.Printf("⚠️  Failed to clear state snapshot: %v", err)
		}
	}

	e.notify(fmt.Sprintf("💰 Exit %s %s @ %.2f | P&L %.2f | %s", direction, e.cfg.Symbol, price, pnl, reason))
	return pnl, nil
}

// InCooldown reports whether a new entry is still blocked by the
// cooldown window since the last exit. Evaluated by the caller before
// entry logic, not inside the state machine.
func (e *Executor) InCooldown(now time.Time) bool {
	if e.state.LastExitTime.IsZero() {
		return false
	}
	return now.Sub(e.state.LastExitTime) < e.cfg.Cooldown()
}

func (e *Executor) tradeRecord(exitPrice, pnl float64, exited bool, notes string) *database.TradeRecord {
	lots := 0
	if e.cfg.TradeQty > 0 {
		lots = e.state.Qty / e.cfg.TradeQty
	}
	return &database.TradeRecord{
		TradeID:   e.state.TradeID,
		Time:      e.state.EntryTime,
		Type:      e.state.Direction,
		Price:     round2(e.state.EntryPrice),
		StopLoss:  round2(e.state.StopLoss),
		Exited:    exited,
		PnL:       round2(pnl),
		Strategy:  e.state.Strategy,
		Symbol:    e.cfg.Symbol,
		ExitPrice: round2(exitPrice),
		ExitTime:  e.now().In(e.loc),
		Lots:      lots,
		Notes:     notes,
	}
}

func (e *Executor) snapshotState() {
	if e.cache == nil {
		return
	}
	if err := e.cache.SaveState(e.state); err != nil {
		log.Printf("⚠️  Failed to snapshot trade state: %v", err)
	}
}

func (e *Executor) notify(msg string) {
	if e.notifier != nil {
		e.notifier.Send(msg)
	}
}
