package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/afrifutures/marketd/internal/domain"
)

// ResolverConfig tunes the batch resolver.
type ResolverConfig struct {
	Concurrency    int
	BatchSize      int // markets attempted per pass, oldest expiry first; 0 means all
	ItemTimeout    time.Duration
	LockTTL        time.Duration
	OracleRate     int // oracle queries per second across all instances; 0 disables
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ItemResult is the outcome of one market in a batch.
type ItemResult struct {
	MarketID int64
	Status   string // resolved, failed or skipped
	Outcome  *bool
	Error    string
}

// BatchResult summarises one resolver pass.
type BatchResult struct {
	Resolved int
	Failed   int
	Skipped  int
	Results  []ItemResult
}

const (
	statusResolved = "resolved"
	statusFailed   = "failed"
	statusSkipped  = "skipped"
)

type backoffState struct {
	attempts int
	until    time.Time
}

// Resolver resolves every expired market it finds. A failing market never
// blocks the others and is retried with exponential backoff.
type Resolver struct {
	markets    *MarketService
	resolution *ResolutionService
	locks      domain.LockManager
	limiter    domain.RateLimiter
	cfg        ResolverConfig
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	backoff map[int64]backoffState
}

// NewResolver creates a Resolver. locks and limiter may be nil.
func NewResolver(
	markets *MarketService,
	resolution *ResolutionService,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	cfg ResolverConfig,
	logger *slog.Logger,
) *Resolver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.ItemTimeout + 5*time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Minute
	}
	return &Resolver{
		markets:    markets,
		resolution: resolution,
		locks:      locks,
		limiter:    limiter,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "resolver")),
		backoff:    make(map[int64]backoffState),
	}
}

// WithClock replaces the time source used for backoff.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// RunOnce resolves every market that is expired and unresolved right now.
func (r *Resolver) RunOnce(ctx context.Context) (BatchResult, error) {
	markets, err := r.markets.ListExpiredUnresolved(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	if r.cfg.BatchSize > 0 && len(markets) > r.cfg.BatchSize {
		markets = markets[:r.cfg.BatchSize]
	}

	results := make([]ItemResult, len(markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, m := range markets {
		if r.backingOff(m.ID) {
			results[i] = ItemResult{MarketID: m.ID, Status: statusSkipped, Error: "backing off"}
			continue
		}
		g.Go(func() error {
			results[i] = r.resolveOne(gctx, m.ID)
			return nil
		})
	}
	_ = g.Wait()

	var out BatchResult
	out.Results = results
	for _, res := range results {
		switch res.Status {
		case statusResolved:
			out.Resolved++
		case statusFailed:
			out.Failed++
		default:
			out.Skipped++
		}
	}

	if len(markets) > 0 {
		r.logger.InfoContext(ctx, "resolver pass complete",
			slog.Int("candidates", len(markets)),
			slog.Int("resolved", out.Resolved),
			slog.Int("failed", out.Failed),
			slog.Int("skipped", out.Skipped),
		)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, marketID int64) ItemResult {
	res := ItemResult{MarketID: marketID}

	ictx, cancel := context.WithTimeout(ctx, r.cfg.ItemTimeout)
	defer cancel()

	// Throttle before locking so a long wait cannot outlive the lock TTL.
	if r.limiter != nil && r.cfg.OracleRate > 0 {
		if err := r.limiter.Wait(ictx, "oracle", r.cfg.OracleRate, time.Second); err != nil {
			r.logger.WarnContext(ctx, "oracle rate limit wait failed",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
			res.Status = statusFailed
			res.Error = err.Error()
			return res
		}
	}

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ictx, "resolve:"+strconv.FormatInt(marketID, 10), r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				res.Status = statusSkipped
				res.Error = "locked by another resolver"
				return res
			}
			res.Status = statusFailed
			res.Error = err.Error()
			return res
		}
		defer unlock()
	}

	out, err := r.resolution.Resolve(ictx, marketID)
	switch {
	case err == nil:
		r.clearBackoff(marketID)
		outcome := out.Outcome
		res.Status = statusResolved
		res.Outcome = &outcome
	case errors.Is(err, domain.ErrAlreadyResolved):
		r.clearBackoff(marketID)
		res.Status = statusSkipped
		res.Error = err.Error()
	default:
		wait := r.recordFailure(marketID)
		r.logger.WarnContext(ctx, "market resolution failed",
			slog.Int64("market_id", marketID),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)
		res.Status = statusFailed
		res.Error = err.Error()
	}
	return res
}

func (r *Resolver) backingOff(marketID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.backoff[marketID]
	return ok && r.now().Before(st.until)
}

func (r *Resolver) clearBackoff(marketID int64) {
	r.mu.Lock()
	delete(r.backoff, marketID)
	r.mu.Unlock()
}

// recordFailure doubles the market's retry delay up to MaxBackoff and returns
// the new delay.
func (r *Resolver) recordFailure(marketID int64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.backoff[marketID]
	st.attempts++
	wait := r.cfg.InitialBackoff
	for i := 1; i < st.attempts && wait < r.cfg.MaxBackoff; i++ {
		wait *= 2
	}
	wait = min(wait, r.cfg.MaxBackoff)
	st.until = r.now().Add(wait)
	r.backoff[marketID] = st
	return wait
}
