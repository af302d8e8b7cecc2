package services

import (
	"context"
	"sync"
	"time"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/market"
	"github.com/username/fundfolio/src/models"
	"golang.org/x/time/rate"
)

// The trading session window of the reference exchange, minutes from
// midnight local time. Inside the window on a session day the scheduler
// polls at the short interval.
const (
	sessionOpenMinute  = 9*60 + 30 // 09:30
	sessionCloseMinute = 15 * 60   // 15:00
)

// SchedulerConfig carries the timing knobs of the valuation loop. Tests
// shrink these to keep runs fast.
type SchedulerConfig struct {
	TradingInterval    time.Duration // sleep after an iteration inside the session window
	NonTradingInterval time.Duration // sleep outside the window
	FetchDelay         time.Duration // courtesy spacing between per-fund fetches
}

func (c *SchedulerConfig) applyDefaults() {
	if c.TradingInterval <= 0 {
		c.TradingInterval = 10 * time.Second
	}
	if c.NonTradingInterval <= 0 {
		c.NonTradingInterval = 120 * time.Second
	}
	if c.FetchDelay <= 0 {
		c.FetchDelay = 200 * time.Millisecond
	}
}

// ValuationScheduler runs the background loop that keeps the tracked funds'
// valuations fresh: one quote fetch per fund per iteration, emitted to the
// consumer callback, then an interruptible sleep whose length depends on
// whether the market session is open.
type ValuationScheduler struct {
	source   QuoteSource
	calendar *market.Calendar
	emit     func(models.Fund, models.Quote)
	now      func() time.Time
	cfg      SchedulerConfig

	// limiter paces the per-fund fetches. This is courtesy toward the
	// external source, not an optimization; do not remove it.
	limiter *rate.Limiter

	mu    sync.Mutex
	funds []models.Fund

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewValuationScheduler wires the loop. emit is invoked from the scheduler
// goroutine, once per tracked fund per iteration, in tracked-list order.
func NewValuationScheduler(source QuoteSource, cal *market.Calendar, cfg SchedulerConfig, emit func(models.Fund, models.Quote), now func() time.Time) *ValuationScheduler {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ValuationScheduler{
		source:   source,
		calendar: cal,
		emit:     emit,
		now:      now,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.FetchDelay), 1),
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetTrackedFunds replaces the fund list the loop iterates. Safe to call
// from any goroutine; the next iteration sees the new list atomically.
func (s *ValuationScheduler) SetTrackedFunds(funds []models.Fund) {
	snapshot := make([]models.Fund, len(funds))
	copy(snapshot, funds)
	s.mu.Lock()
	s.funds = snapshot
	s.mu.Unlock()
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *ValuationScheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// TriggerNow asks the loop to abandon its current (or next) sleep and start
// a fresh fetch cycle immediately. Idempotent: at most one trigger is
// pending at a time.
func (s *ValuationScheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop signals the loop to terminate and blocks until the goroutine has
// exited. After Stop returns, no further quote events are emitted.
func (s *ValuationScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *ValuationScheduler) run() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}
		s.fetchCycle()
		if !s.sleep(s.nextInterval()) {
			return
		}
	}
}

// fetchCycle iterates a snapshot of the tracked funds and emits one quote
// per fund. A failed fetch is reported as Quote{OK:false} for that fund
// only; it never aborts the rest of the iteration.
func (s *ValuationScheduler) fetchCycle() {
	s.mu.Lock()
	funds := s.funds
	s.mu.Unlock()

	for _, fund := range funds {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return // stopping
		}
		quote, err := s.source.Fetch(fund.Code)
		if err != nil {
			logger.L.Warn("Quote fetch failed", "code", fund.Code, "error", err)
			quote = models.Quote{OK: false, Error: err.Error()}
		}
		s.emit(fund, quote)
	}
}

// nextInterval picks the sleep length for the pause after an iteration:
// short while the market session is open, long otherwise.
func (s *ValuationScheduler) nextInterval() time.Duration {
	now := s.now().In(s.calendar.Location())
	if !s.calendar.IsSession(now) {
		return s.cfg.NonTradingInterval
	}
	minute := now.Hour()*60 + now.Minute()
	if minute >= sessionOpenMinute && minute <= sessionCloseMinute {
		return s.cfg.TradingInterval
	}
	return s.cfg.NonTradingInterval
}

// sleep waits out the interval but wakes immediately on a stop or a manual
// trigger. Returns false when the scheduler is stopping.
func (s *ValuationScheduler) sleep(interval time.Duration) bool {
	deadline := time.NewTimer(interval)
	defer deadline.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-s.trigger:
		return true
	case <-deadline.C:
		return true
	}
}
