// Package app wires the trading engine together and drives the session
// polling loop: fetch bars, assign daily levels, evaluate the day's
// strategy, run the filter chain, and hand surviving entries to the
// executor. One App instance manages exactly one instrument.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradewin/broker"
	"tradewin/cache"
	"tradewin/config"
	"tradewin/database"
	"tradewin/engine"
	"tradewin/market"
	"tradewin/notifications"
	"tradewin/strategy"
)

// Volatility gate for late-session entries: past this clock minute a new
// trade needs the current ATR at or above this multiple of the session
// average.
const (
	lateSessionMinute   = 14*60 + 30 // 14:30
	lateSessionATRRatio = 1.2
)

// Consecutive failed fetch cycles tolerated before the run gives up.
const maxStarvedCycles = 10

// tradeLog is the store surface the loop needs.
// *database.TradeRepository implements it.
type tradeLog interface {
	RecordTrade(rec *database.TradeRecord) error
	FetchPnLToday(now time.Time) (float64, error)
	PopulateDailyLog(now time.Time) error
	FetchSummary() (*database.Summary, error)
}

// App holds the assembled engine and its collaborators.
type App struct {
	cfg      *config.Config
	loc      *time.Location
	db       *database.Database
	repo     tradeLog
	redis    *cache.RedisClient
	broker   *broker.Client
	source   *market.Source
	feed     *market.TickFeed
	state    *engine.TradeState
	executor *engine.Executor
	filters  *engine.FilterChain
	calendar *engine.Calendar
	notifier *notifications.TelegramNotifier

	lots int
	now  func() time.Time // test seam
}

// redisStateCache adapts the snapshot store to the executor's contract.
// Safe around a nil Redis client.
type redisStateCache struct {
	r *cache.RedisClient
}

func (c redisStateCache) SaveState(state *engine.TradeState) error {
	return c.r.SaveTradeState(state)
}

func (c redisStateCache) ClearState() error {
	return c.r.ClearTradeState()
}

// New assembles the application from configuration. It connects the
// database, Redis and the broker session; a failure in any required
// dependency is returned, optional ones degrade with a warning.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc := engine.ExchangeLocation()

	db, err := database.Connect(cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseName, cfg.DatabaseUser, cfg.DatabasePassword)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Println("✅ Connected to database")
	repo := database.NewTradeRepository(db.DB())

	// Optional: without Redis there is no restart resumability, nothing else.
	redisClient := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)

	brokerClient := broker.NewClient(cfg.BrokerAPIKey, cfg.BrokerAPISecret, cfg.BrokerBaseURL, cfg.BrokerTokenFile, loc)
	if err := brokerClient.Authenticate(); err != nil {
		return nil, fmt.Errorf("broker authentication: %w", err)
	}

	notifier := notifications.NewTelegramNotifier(cfg.Telegram)

	state := engine.NewTradeState()
	executor := engine.NewExecutor(cfg, state, repo, brokerClient, redisStateCache{r: redisClient}, notifier, loc)

	a := &App{
		cfg:      cfg,
		loc:      loc,
		db:       db,
		repo:     repo,
		redis:    redisClient,
		broker:   brokerClient,
		source:   market.NewSource(brokerClient, cfg.Symbol, cfg.BarInterval, cfg.Trading.LookbackDays),
		feed:     market.NewTickFeed(cfg.BrokerWSURL, cfg.Symbol, brokerClient.AccessToken()),
		state:    state,
		executor: executor,
		filters:  engine.NewFilterChain(loc, cfg.Cooldown()),
		calendar: engine.NewCalendar(loc, cfg.AnnualHolidays, cfg.WeekendTesting),
		notifier: notifier,
		now:      time.Now,
	}
	a.lots = a.sizeLots()
	return a, nil
}

// sizeLots converts available margin into a lot count, falling back to a
// single lot when the margin query fails.
func (a *App) sizeLots() int {
	margin, err := a.broker.AvailableMargin()
	if err != nil {
		log.Printf("⚠️  Margin query failed, trading a single lot: %v", err)
		return 1
	}
	lots := int(math.Floor(margin / a.cfg.MarginPerLot))
	if lots < 1 {
		lots = 1
	}
	log.Printf("💰 Available margin %.2f -> %d lot(s)", margin, lots)
	return lots
}

// Start runs the engine until the session wraps up, the daily loss limit
// trips, or an interrupt arrives.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("⚠️  Received %v, shutting down...", sig)
		cancel()
	}()

	a.feed.Start()
	defer a.shutdown()

	mode := "LIVE"
	if a.cfg.PaperTrading {
		mode = "PAPER"
	}
	log.Printf("🚀 Starting %s %s engine on %s (%s mode)", a.cfg.StrategyMode, a.cfg.StrategyName, a.cfg.Symbol, mode)

	a.resumeOpenTrade()

	return a.run(ctx)
}

// resumeOpenTrade restores an open position snapshot after a restart so
// the monitoring loop picks it up instead of orphaning the position.
func (a *App) resumeOpenTrade() {
	var snap engine.TradeState
	found, err := a.redis.LoadTradeState(&snap)
	if err != nil {
		log.Printf("⚠️  Failed to load trade snapshot: %v", err)
		return
	}
	if !found || !snap.Open {
		return
	}
	*a.state = snap
	log.Printf("📌 Resuming open %s trade %s from snapshot (entry %.2f, SL %.2f)",
		snap.Direction, snap.TradeID, snap.EntryPrice, snap.StopLoss)
	a.notifier.Send(fmt.Sprintf("📌 Resumed open %s trade @ %.2f after restart", snap.Direction, snap.EntryPrice))
}

// run is the main polling loop. Each cycle either monitors the open
// position or hunts for a new entry on the latest closed bar.
func (a *App) run(ctx context.Context) error {
	starved := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		now := a.now().In(a.loc)

		if !a.calendar.IsTradingSessionNow(now) {
			// A position must never ride past the close unattended.
			if a.state.Open {
				log.Println("🕒 Session over with an open position. Wrapping up.")
				return a.wrapUpDay(now)
			}
			log.Println("💤 Market closed. Sleeping...")
			if !a.sleepCtx(ctx, 5*a.cfg.SleepInterval()) {
				return nil
			}
			continue
		}

		pnlToday, err := a.repo.FetchPnLToday(now)
		if err != nil {
			log.Printf("⚠️  Daily P&L query failed: %v", err)
		} else if pnlToday < a.cfg.Trading.MaxDailyLoss {
			log.Printf("🚫 Daily loss limit hit (%.2f < %.2f). Halting for the day.", pnlToday, a.cfg.Trading.MaxDailyLoss)
			a.notifier.Send(fmt.Sprintf("🚫 Daily loss limit hit: %.2f", pnlToday))
			return a.wrapUpDay(now)
		}

		bars, err := a.source.Fetch()
		if err != nil {
			starved++
			if starved >= maxStarvedCycles {
				return fmt.Errorf("no usable market data after %d cycles: %w", starved, err)
			}
			if errors.Is(err, market.ErrInsufficientData) {
				log.Printf("⚠️  Not enough bars yet, waiting: %v", err)
			} else {
				log.Printf("❌ Bar fetch failed: %v", err)
			}
			if !a.sleepCtx(ctx, a.cfg.SleepInterval()) {
				return nil
			}
			continue
		}
		starved = 0

		if a.state.Open {
			if !a.monitorOnce(bars) {
				log.Println("📉 Position closed. Back to signal hunting.")
			}
			if !a.sleepCtx(ctx, a.cfg.SleepInterval()) {
				return nil
			}
			continue
		}

		if a.calendar.ReachedCutoff(now) {
			log.Println("🕒 Session cutoff reached. Wrapping up for the day.")
			return a.wrapUpDay(now)
		}

		a.evaluateEntry(ctx, bars, now)

		if !a.sleepCtx(ctx, a.cfg.SleepInterval()) {
			return nil
		}
	}
}

// evaluateEntry runs one flat-state cycle: strategy evaluation on the
// latest bar, the filter chain, the cooldown and late-session gates, and
// finally the entry itself.
func (a *App) evaluateEntry(ctx context.Context, bars []market.Bar, now time.Time) {
	annotated, assignments := strategy.AssignLevels(bars, a.cfg)
	idx := len(annotated) - 1
	last := annotated[idx]

	chosen := strategy.ChooseForDay(assignments, strategy.DateKey(last.Date.In(a.loc)), a.cfg)

	var dec strategy.Decision
	switch chosen {
	case config.StrategyBreakout:
		dec = strategy.EvaluateBreakout(last)
	default:
		dec = strategy.EvaluateReversion(last, a.cfg.Trading.Deviation, a.cfg.Trading.RRThreshold)
	}

	dec = a.filters.Apply(dec, annotated, idx, a.state)
	if !dec.Valid {
		log.Printf("🚫 No %s signal: %s", chosen, dec.Reason)
		return
	}

	if a.executor.InCooldown(now) {
		log.Printf("⏳ In cooldown after last exit. Skipping %s signal.", dec.Signal)
		return
	}

	if !a.lateSessionVolatilityOK(annotated, last, now) {
		log.Printf("🚫 Late-session volatility too low for a fresh %s entry.", dec.Signal)
		return
	}

	a.executor.SetATR(last.ATR)
	if err := a.executor.OpenTrade(dec, a.lots); err != nil {
		log.Printf("❌ Entry rejected: %v", err)
		return
	}

	a.monitorLoop(ctx)
}

// lateSessionVolatilityOK gates entries after mid-afternoon: the current
// ATR must hold at least 1.2x the session average, otherwise the move is
// unlikely to reach target before the close.
func (a *App) lateSessionVolatilityOK(bars []market.Bar, last market.Bar, now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	if m < lateSessionMinute {
		return true
	}
	if market.Missing(last.ATR) {
		return false
	}

	sum, n := 0.0, 0
	for _, b := range bars {
		if !market.Missing(b.ATR) {
			sum += b.ATR
			n++
		}
	}
	if n == 0 {
		return false
	}
	return last.ATR >= lateSessionATRRatio*(sum/float64(n))
}

// monitorLoop polls the open position until it closes, the session ends
// or the run stops. On session end it hands back with the position still
// open; run's session check wraps up the day.
func (a *App) monitorLoop(ctx context.Context) {
	for a.state.Open {
		if !a.sleepCtx(ctx, a.cfg.SleepInterval()) {
			return
		}
		if !a.calendar.IsTradingSessionNow(a.now().In(a.loc)) {
			log.Println("🕒 Session ended while monitoring.")
			return
		}
		bars, err := a.source.Fetch()
		if err != nil {
			log.Printf("⚠️  No fresh bars while monitoring: %v", err)
			continue
		}
		if !a.monitorOnce(bars) {
			return
		}
	}
}

// monitorOnce runs one monitoring transition with the freshest price
// available: the tick feed when live, otherwise the last bar close.
func (a *App) monitorOnce(bars []market.Bar) bool {
	live := 0.0
	if p, ok := a.feed.LastPrice(); ok {
		live = p
	}
	return a.executor.MonitorTick(bars, live, a.now().In(a.loc))
}

// wrapUpDay closes any open position at the freshest price, writes the
// EOD log and reports the day's realized performance.
func (a *App) wrapUpDay(now time.Time) error {
	if a.state.Open {
		price := a.state.EntryPrice
		if p, ok := a.feed.LastPrice(); ok {
			price = p
		} else if bars, err := a.source.Fetch(); err == nil && len(bars) > 0 {
			price = bars[len(bars)-1].Close
		}
		if _, err := a.executor.ExitTrade(price, "End of session"); err != nil {
			log.Printf("❌ EOD exit failed: %v", err)
		}
	}

	if err := a.repo.PopulateDailyLog(now); err != nil {
		log.Printf("⚠️  Failed to populate daily log: %v", err)
	}

	if summary, err := a.repo.FetchSummary(); err == nil {
		log.Printf("📊 Overall: %d trades | %d wins | %.1f%% | net %.2f",
			summary.TotalTrades, summary.Wins, summary.WinPct, summary.TotalPnL)
	}

	pnl, err := a.repo.FetchPnLToday(now)
	if err == nil {
		a.notifier.Send(fmt.Sprintf("📊 Day done. Realized P&L: %.2f", pnl))
	}
	return nil
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation so callers can unwind.
func (a *App) sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (a *App) shutdown() {
	a.feed.Stop()
	if err := a.redis.Close(); err != nil {
		log.Printf("⚠️  Redis close failed: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Printf("⚠️  Database close failed: %v", err)
	}
	log.Println("👋 Engine stopped.")
}
