package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cryptosim/internal/logger"
	"cryptosim/internal/metrics"
	"cryptosim/internal/models"
)

// RunOutcome classifies one reconciliation pass.
type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "success"
	RunOutcomePartial RunOutcome = "partial"
	RunOutcomeFailed  RunOutcome = "failed"
	RunOutcomeSkipped RunOutcome = "skipped"
)

// RunResult summarizes one reconciliation pass.
type RunResult struct {
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	SymbolsRequested int           `json:"symbols_requested"`
	SymbolsPriced    int           `json:"symbols_priced"`
	HoldingsRepriced int           `json:"holdings_repriced"`
	OrphansRemoved   int           `json:"orphans_removed"`
	LeaderboardRows  int           `json:"leaderboard_rows"`
	Outcome          RunOutcome    `json:"outcome"`
	Error            string        `json:"error,omitempty"`
}

// ReconcilerConfig holds scheduling knobs for the reconciler.
type ReconcilerConfig struct {
	Interval             time.Duration
	MaxConcurrentUpdates int
	RetryAttempts        int
	RetryDelay           time.Duration
	LeaderboardCooldown  time.Duration
}

// Reconciler periodically drives the engine back to a consistent state:
// it refreshes current prices on every held symbol, rebuilds leaderboards,
// and removes rows that no longer have a valid owner. Passes never overlap;
// a trigger that arrives while a pass is running is dropped.
type Reconciler struct {
	db     *gorm.DB
	ledger LedgerServicer
	ranker LeaderboardServicer
	prices PriceSource
	cfg    ReconcilerConfig

	// Injectable clocks so retry and cooldown paths are testable without
	// real waiting.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu              sync.Mutex
	cancel          context.CancelFunc
	done            chan struct{}
	trigger         chan struct{}
	running         bool
	lastLeaderboard time.Time
	lastResult      *RunResult
}

// NewReconciler creates a reconciler. Start must be called to begin the
// periodic loop.
func NewReconciler(db *gorm.DB, ledger LedgerServicer, ranker LeaderboardServicer, prices PriceSource, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxConcurrentUpdates <= 0 {
		cfg.MaxConcurrentUpdates = 10
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	return &Reconciler{
		db:      db,
		ledger:  ledger,
		ranker:  ranker,
		prices:  prices,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepFor,
		trigger: make(chan struct{}, 1),
	}
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start launches the periodic loop. Calling Start on a running reconciler
// is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx)
	logger.Get().Infow("reconciler started", "interval", r.cfg.Interval.String())
}

// Stop halts the loop and waits for an in-flight pass to finish. Calling
// Stop on a stopped reconciler is a no-op.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Get().Infow("reconciler stopped")
}

// TriggerNow requests an immediate pass. If a pass is already running or a
// trigger is already pending, the request is dropped rather than queued, so
// a burst of triggers never produces back-to-back passes.
func (r *Reconciler) TriggerNow() bool {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		return false
	}
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastResult returns the most recent pass summary, or nil before the first
// pass completes.
func (r *Reconciler) LastResult() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastResult == nil {
		return nil
	}
	result := *r.lastResult
	return &result
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}
		r.RunOnce(ctx)
	}
}

// RunOnce executes a single reconciliation pass. Only one pass runs at a
// time; a concurrent call returns a skipped result immediately.
func (r *Reconciler) RunOnce(ctx context.Context) RunResult {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return RunResult{StartedAt: r.now(), Outcome: RunOutcomeSkipped}
	}
	r.running = true
	r.mu.Unlock()

	// Discard a trigger that raced in before the running flag was set.
	select {
	case <-r.trigger:
	default:
	}
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	result := r.runPass(ctx)

	metrics.ReconcileRunsTotal.WithLabelValues(string(result.Outcome)).Inc()
	metrics.ReconcileDuration.Observe(result.Duration.Seconds())

	r.mu.Lock()
	r.lastResult = &result
	r.mu.Unlock()

	logger.Get().Infow("reconcile pass finished",
		"outcome", result.Outcome,
		"duration", result.Duration.String(),
		"symbols_priced", result.SymbolsPriced,
		"holdings_repriced", result.HoldingsRepriced,
		"orphans_removed", result.OrphansRemoved,
	)
	return result
}

func (r *Reconciler) runPass(ctx context.Context) RunResult {
	started := r.now()
	result := RunResult{StartedAt: started, Outcome: RunOutcomeSuccess}

	symbols, err := r.ledger.ListHeldSymbols()
	if err != nil {
		result.Outcome = RunOutcomeFailed
		result.Error = err.Error()
		result.Duration = r.now().Sub(started)
		return result
	}
	result.SymbolsRequested = len(symbols)

	priceMap, fetchErr := r.fetchWithRetry(ctx, symbols)
	if fetchErr != nil {
		// Price refresh is skipped but the structural steps still run, so a
		// flaky upstream cannot stall cleanup or ranking forever.
		logger.Get().Warnw("price fetch exhausted retries; skipping reprice", "error", fetchErr)
		priceMap = nil
		result.Outcome = RunOutcomeFailed
		result.Error = fetchErr.Error()
	}
	result.SymbolsPriced = len(priceMap)
	if fetchErr == nil && len(symbols) > 0 && len(priceMap) < len(symbols) {
		result.Outcome = RunOutcomePartial
	}

	if len(priceMap) > 0 {
		repriced, err := r.repriceHoldings(ctx, priceMap)
		result.HoldingsRepriced = repriced
		if err != nil && result.Outcome == RunOutcomeSuccess {
			result.Outcome = RunOutcomePartial
			result.Error = err.Error()
		}
	}

	if rows, ok := r.recomputeLeaderboards(started); ok {
		result.LeaderboardRows = rows
	}

	removed, err := r.cleanupOrphans()
	result.OrphansRemoved = removed
	if err != nil && result.Outcome == RunOutcomeSuccess {
		result.Outcome = RunOutcomePartial
		result.Error = err.Error()
	}

	result.Duration = r.now().Sub(started)
	return result
}

// fetchWithRetry asks the gateway for prices, retrying transient failures a
// fixed number of times with a fixed delay between attempts.
func (r *Reconciler) fetchWithRetry(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.RetryAttempts; attempt++ {
		prices, err := r.prices.GetPrices(ctx, symbols)
		if err == nil {
			return prices, nil
		}
		lastErr = err
		logger.Get().Warnw("price fetch failed", "attempt", attempt, "error", err)
		if attempt < r.cfg.RetryAttempts {
			if sleepErr := r.sleep(ctx, r.cfg.RetryDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, lastErr
}

// repriceHoldings fans price updates out over every (account, symbol) pair
// that has a fresh price, bounded by MaxConcurrentUpdates. Symbols with no
// price entry are left at their previous value.
func (r *Reconciler) repriceHoldings(ctx context.Context, priceMap map[string]decimal.Decimal) (int, error) {
	type target struct {
		AccountID string
		Symbol    string
	}

	var rows []target
	err := r.db.Model(&models.Holding{}).
		Where("symbol <> ?", models.ReserveSymbol).
		Select("account_id", "symbol").
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	var (
		group errgroup.Group
		mu    sync.Mutex
		count int
	)
	group.SetLimit(r.cfg.MaxConcurrentUpdates)

	for _, row := range rows {
		price, ok := priceMap[row.Symbol]
		if !ok {
			continue
		}
		row := row
		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := r.ledger.UpdateCurrentPrice(row.AccountID, row.Symbol, price); err != nil {
				logger.Get().Warnw("price update failed",
					"account_id", row.AccountID, "symbol", row.Symbol, "error", err)
				return nil
			}
			mu.Lock()
			count++
			mu.Unlock()
			metrics.HoldingsRepriced.Inc()
			return nil
		})
	}
	err = group.Wait()
	return count, err
}

// recomputeLeaderboards rebuilds both ranking periods, rate limited by the
// leaderboard cooldown so bursts of triggers do not rebuild on every pass.
func (r *Reconciler) recomputeLeaderboards(at time.Time) (int, bool) {
	r.mu.Lock()
	if r.cfg.LeaderboardCooldown > 0 && at.Sub(r.lastLeaderboard) < r.cfg.LeaderboardCooldown {
		r.mu.Unlock()
		return 0, false
	}
	r.lastLeaderboard = at
	r.mu.Unlock()

	total := 0
	for _, period := range []models.LeaderboardPeriod{models.LeaderboardPeriodAllTime, models.LeaderboardPeriodWeekly} {
		rows, err := r.ranker.Recompute(period, at)
		if err != nil {
			logger.Get().Errorw("leaderboard recompute failed", "period", period, "error", err)
			continue
		}
		total += rows
	}
	return total, true
}

// cleanupOrphans deletes rows whose owner is gone: holdings with an empty
// symbol, holdings of deleted accounts, and accounts of deleted
// users. Each category is its own statement so one failure cannot block the
// others.
func (r *Reconciler) cleanupOrphans() (int, error) {
	total := 0
	var firstErr error

	steps := []struct {
		name string
		run  func() (int64, error)
	}{
		{"blank-symbol holdings", func() (int64, error) {
			res := r.db.Unscoped().Where("symbol = ?", "").Delete(&models.Holding{})
			return res.RowsAffected, res.Error
		}},
		{"holdings of deleted accounts", func() (int64, error) {
			res := r.db.Unscoped().
				Where("account_id NOT IN (?)", r.db.Model(&models.Account{}).Select("id")).
				Delete(&models.Holding{})
			return res.RowsAffected, res.Error
		}},
		{"accounts of deleted users", func() (int64, error) {
			res := r.db.Unscoped().
				Where("user_id NOT IN (?)", r.db.Model(&models.User{}).Select("id")).
				Delete(&models.Account{})
			return res.RowsAffected, res.Error
		}},
	}

	for _, step := range steps {
		removed, err := step.run()
		if err != nil {
			logger.Get().Errorw("orphan cleanup step failed", "step", step.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if removed > 0 {
			logger.Get().Infow("orphan cleanup removed rows", "step", step.name, "rows", removed)
			metrics.OrphansRemoved.Add(float64(removed))
			total += int(removed)
		}
	}
	return total, firstErr
}
