package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/logger"
	"cryptosim/internal/metrics"
)

// Config holds the gateway's caching and rate-limit options.
type Config struct {
	FreshTTL           time.Duration
	StaleTTL           time.Duration
	RateLimitPerMinute int
	FetchTimeout       time.Duration
}

// DefaultConfig returns the gateway defaults: 15 min fresh window, 2 hr
// stale window, 30 requests/minute, 15 s fetch timeout.
func DefaultConfig() Config {
	return Config{
		FreshTTL:           15 * time.Minute,
		StaleTTL:           2 * time.Hour,
		RateLimitPerMinute: 30,
		FetchTimeout:       15 * time.Second,
	}
}

// Gateway funnels all external price lookups through one component.
// Concurrent callers asking for the same data share a single outstanding
// fetch; failed fetches degrade to the stale cache tier before an error is
// surfaced.
type Gateway struct {
	provider Provider
	cfg      Config

	prices  *tieredCache[map[string]decimal.Decimal]
	history *tieredCache[[]PricePoint]
	group   singleflight.Group
	limiter *rateLimiter
	cooloff *backoff

	now func() time.Time
}

// NewGateway wraps the provider with caching, dedup, and rate limiting.
func NewGateway(provider Provider, cfg Config) *Gateway {
	if cfg.FreshTTL <= 0 {
		cfg.FreshTTL = DefaultConfig().FreshTTL
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = DefaultConfig().StaleTTL
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = DefaultConfig().RateLimitPerMinute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		prices:   newTieredCache[map[string]decimal.Decimal](cfg.FreshTTL, cfg.StaleTTL),
		history:  newTieredCache[[]PricePoint](cfg.FreshTTL, cfg.StaleTTL),
		limiter:  newRateLimiter(cfg.RateLimitPerMinute),
		cooloff:  newBackoff(time.Second, 2*time.Minute, 2.0),
		now:      time.Now,
	}
}

// GetPrices returns the current USD price per symbol. Fresh cache entries
// are returned unconditionally; on fetch failure the stale tier is consulted
// before DATA_UNAVAILABLE is surfaced.
func (g *Gateway) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	key := priceKey(symbols)

	if cached, ok := g.prices.Fresh(key, g.now()); ok {
		metrics.MarketCacheHits.WithLabelValues("fresh").Inc()
		return cached, nil
	}

	result, err, _ := g.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the cache while this caller
		// waited on the flight slot.
		if cached, ok := g.prices.Fresh(key, g.now()); ok {
			metrics.MarketCacheHits.WithLabelValues("fresh").Inc()
			return cached, nil
		}

		// The flight is shared with every waiter on the key, so it must
		// not die with the caller that happened to open it. The fetch
		// timeout still bounds it.
		fetched, fetchErr := fetchOnce(g, context.WithoutCancel(ctx), func(fctx context.Context) (map[string]decimal.Decimal, error) {
			return g.provider.GetPrices(fctx, symbols)
		})
		if fetchErr != nil {
			return nil, fetchErr
		}
		g.prices.Put(key, fetched, g.now())
		return fetched, nil
	})
	if err != nil {
		if stale, ok := g.prices.Stale(key, g.now()); ok {
			metrics.MarketCacheHits.WithLabelValues("stale").Inc()
			logger.Get().Warnw("serving stale prices after fetch failure",
				"key", key,
				"error", err.Error(),
			)
			return stale, nil
		}
		return nil, err
	}
	return result.(map[string]decimal.Decimal), nil
}

// GetHistoricalPrices returns daily price samples for the symbol, cached
// with the same two-tier policy as current prices.
func (g *Gateway) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	key := historyKey(symbol, days)

	if cached, ok := g.history.Fresh(key, g.now()); ok {
		metrics.MarketCacheHits.WithLabelValues("fresh").Inc()
		return cached, nil
	}

	result, err, _ := g.group.Do(key, func() (interface{}, error) {
		if cached, ok := g.history.Fresh(key, g.now()); ok {
			metrics.MarketCacheHits.WithLabelValues("fresh").Inc()
			return cached, nil
		}

		fetched, fetchErr := fetchOnce(g, context.WithoutCancel(ctx), func(fctx context.Context) ([]PricePoint, error) {
			return g.provider.GetHistoricalPrices(fctx, symbol, days)
		})
		if fetchErr != nil {
			return nil, fetchErr
		}
		g.history.Put(key, fetched, g.now())
		return fetched, nil
	})
	if err != nil {
		if stale, ok := g.history.Stale(key, g.now()); ok {
			metrics.MarketCacheHits.WithLabelValues("stale").Inc()
			return stale, nil
		}
		return nil, err
	}
	return result.([]PricePoint), nil
}

// fetchOnce runs one rate-limited, deadline-bounded provider call and
// maintains the failure cooldown state. It is a free function because Go
// does not allow type parameters on methods.
func fetchOnce[T any](g *Gateway, ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	var zero T

	if g.cooloff.Blocked(g.now()) {
		metrics.MarketFetchesTotal.WithLabelValues("cooloff").Inc()
		return zero, apperrors.Wrap(apperrors.ErrDataUnavailable, fmt.Errorf("provider in failure cooldown"))
	}

	if !g.limiter.Available() {
		metrics.RateLimitWaits.Inc()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return zero, apperrors.Wrap(apperrors.ErrRateLimited, err)
	}

	fctx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	result, err := call(fctx)
	if err != nil {
		g.cooloff.Failure(g.now())
		metrics.MarketFetchesTotal.WithLabelValues("error").Inc()
		return zero, apperrors.Wrap(apperrors.ErrDataUnavailable, err)
	}

	g.cooloff.Success()
	metrics.MarketFetchesTotal.WithLabelValues("ok").Inc()
	return result, nil
}

// priceKey canonicalizes a symbol set so BTC,ETH and ETH,BTC share an entry.
func priceKey(symbols []string) string {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	sort.Strings(upper)
	return "prices:" + strings.Join(upper, ",")
}

func historyKey(symbol string, days int) string {
	return fmt.Sprintf("history:%s:%d", strings.ToUpper(symbol), days)
}
