package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/testutil"
)

// fakeProvider serves scripted price responses and counts upstream calls.
type fakeProvider struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	history   []PricePoint
	err       error
	delay     time.Duration
	calls     atomic.Int64
	histCalls atomic.Int64
}

func (f *fakeProvider) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeProvider) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	f.histCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func (f *fakeProvider) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newGatewayFixture(t *testing.T, provider Provider) (*Gateway, *testClock) {
	t.Helper()

	clock := newTestClock()
	gw := NewGateway(provider, Config{
		FreshTTL:           15 * time.Minute,
		StaleTTL:           2 * time.Hour,
		RateLimitPerMinute: 1000,
		FetchTimeout:       time.Second,
	})
	gw.now = clock.Now
	return gw, clock
}

func TestGateway_GetPrices_CachesFreshResults(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
		"ETH": decimal.NewFromInt(3000),
	}}
	gw, clock := newGatewayFixture(t, provider)
	ctx := context.Background()

	first, err := gw.GetPrices(ctx, []string{"BTC", "ETH"})
	testutil.AssertNoError(t, err)
	if !first["BTC"].Equal(decimal.NewFromInt(45000)) {
		t.Errorf("expected BTC at 45000, got %s", first["BTC"])
	}

	clock.Advance(5 * time.Minute)
	second, err := gw.GetPrices(ctx, []string{"BTC", "ETH"})
	testutil.AssertNoError(t, err)
	if !second["ETH"].Equal(decimal.NewFromInt(3000)) {
		t.Errorf("expected ETH at 3000, got %s", second["ETH"])
	}

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected a single upstream fetch, got %d", got)
	}
}

func TestGateway_GetPrices_RefetchesAfterFreshTTL(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
	}}
	gw, clock := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertNoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertNoError(t, err)

	if got := provider.calls.Load(); got != 2 {
		t.Errorf("expected refetch past the fresh window, got %d calls", got)
	}
}

func TestGateway_GetPrices_SymbolOrderSharesEntry(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
		"ETH": decimal.NewFromInt(3000),
	}}
	gw, _ := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetPrices(ctx, []string{"BTC", "ETH"})
	testutil.AssertNoError(t, err)
	_, err = gw.GetPrices(ctx, []string{"eth", "btc"})
	testutil.AssertNoError(t, err)

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected reordered symbol sets to share one cache entry, got %d calls", got)
	}
}

func TestGateway_GetPrices_ServesStaleOnFetchFailure(t *testing.T) {
	provider := &fakeProvider{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
	}}
	gw, clock := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertNoError(t, err)

	// Past fresh, inside stale: the upstream outage should be invisible.
	clock.Advance(time.Hour)
	provider.setErr(fmt.Errorf("upstream down"))

	prices, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertNoError(t, err)
	if !prices["BTC"].Equal(decimal.NewFromInt(45000)) {
		t.Errorf("expected stale BTC price 45000, got %s", prices["BTC"])
	}
}

func TestGateway_GetPrices_ErrorsWhenNoStaleEntry(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("upstream down")}
	gw, _ := newGatewayFixture(t, provider)

	_, err := gw.GetPrices(context.Background(), []string{"BTC"})
	testutil.AssertAppError(t, err, apperrors.ErrDataUnavailable.Code)
}

func TestGateway_GetPrices_CooldownShortCircuitsFetch(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("upstream down")}
	gw, _ := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertAppError(t, err, apperrors.ErrDataUnavailable.Code)

	// Second call lands inside the failure cooldown and must not reach
	// the provider.
	_, err = gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertAppError(t, err, apperrors.ErrDataUnavailable.Code)

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected cooldown to suppress the second fetch, got %d calls", got)
	}
}

func TestGateway_GetPrices_CooldownClearsAfterDelay(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("upstream down")}
	gw, clock := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertAppError(t, err, apperrors.ErrDataUnavailable.Code)

	provider.setErr(nil)
	provider.mu.Lock()
	provider.prices = map[string]decimal.Decimal{"BTC": decimal.NewFromInt(45000)}
	provider.mu.Unlock()

	clock.Advance(2 * time.Second)
	prices, err := gw.GetPrices(ctx, []string{"BTC"})
	testutil.AssertNoError(t, err)
	if !prices["BTC"].Equal(decimal.NewFromInt(45000)) {
		t.Errorf("expected live BTC price after cooldown, got %s", prices["BTC"])
	}
}

func TestGateway_GetPrices_ConcurrentCallersShareOneFetch(t *testing.T) {
	provider := &fakeProvider{
		prices: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(45000)},
		delay:  50 * time.Millisecond,
	}
	gw, _ := newGatewayFixture(t, provider)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prices, err := gw.GetPrices(ctx, []string{"BTC"})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !prices["BTC"].Equal(decimal.NewFromInt(45000)) {
				t.Errorf("expected BTC at 45000, got %s", prices["BTC"])
			}
		}()
	}
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected concurrent callers to share one fetch, got %d", got)
	}
}

// ctxAwareProvider honors fetch-context cancellation and parks until
// released, so a flight can be held open while callers come and go.
type ctxAwareProvider struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (p *ctxAwareProvider) GetPrices(ctx context.Context, _ []string) (map[string]decimal.Decimal, error) {
	if p.calls.Add(1) == 1 {
		close(p.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.release:
		return map[string]decimal.Decimal{"BTC": decimal.NewFromInt(45000)}, nil
	}
}

func (p *ctxAwareProvider) GetHistoricalPrices(ctx context.Context, _ string, _ int) ([]PricePoint, error) {
	return nil, nil
}

func TestGateway_GetPrices_FlightSurvivesCallerCancellation(t *testing.T) {
	provider := &ctxAwareProvider{entered: make(chan struct{}), release: make(chan struct{})}
	gw, _ := newGatewayFixture(t, provider)

	type outcome struct {
		prices map[string]decimal.Decimal
		err    error
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan outcome, 1)
	go func() {
		p, err := gw.GetPrices(firstCtx, []string{"BTC"})
		first <- outcome{p, err}
	}()
	<-provider.entered

	second := make(chan outcome, 1)
	go func() {
		p, err := gw.GetPrices(context.Background(), []string{"BTC"})
		second <- outcome{p, err}
	}()

	// The opener bails out mid-flight; the shared fetch must keep going
	// for everyone waiting on the key.
	cancelFirst()
	close(provider.release)

	for _, ch := range []chan outcome{first, second} {
		got := <-ch
		if got.err != nil {
			t.Fatalf("unexpected error: %v", got.err)
		}
		if !got.prices["BTC"].Equal(decimal.NewFromInt(45000)) {
			t.Errorf("expected BTC at 45000, got %s", got.prices["BTC"])
		}
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected one shared fetch, got %d", got)
	}
}

func TestGateway_GetHistoricalPrices_CachesPerSymbolAndRange(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{history: []PricePoint{
		{Timestamp: base, Price: decimal.NewFromInt(44000)},
		{Timestamp: base.AddDate(0, 0, 1), Price: decimal.NewFromInt(45000)},
	}}
	gw, _ := newGatewayFixture(t, provider)
	ctx := context.Background()

	first, err := gw.GetHistoricalPrices(ctx, "BTC", 7)
	testutil.AssertNoError(t, err)
	if len(first) != 2 {
		t.Fatalf("expected 2 points, got %d", len(first))
	}

	// Same symbol and range hits the cache; a different range does not.
	_, err = gw.GetHistoricalPrices(ctx, "btc", 7)
	testutil.AssertNoError(t, err)
	_, err = gw.GetHistoricalPrices(ctx, "BTC", 30)
	testutil.AssertNoError(t, err)

	if got := provider.histCalls.Load(); got != 2 {
		t.Errorf("expected 2 upstream history fetches, got %d", got)
	}
}

func TestGateway_GetHistoricalPrices_StaleFallback(t *testing.T) {
	provider := &fakeProvider{history: []PricePoint{
		{Timestamp: time.Now(), Price: decimal.NewFromInt(45000)},
	}}
	gw, clock := newGatewayFixture(t, provider)
	ctx := context.Background()

	_, err := gw.GetHistoricalPrices(ctx, "BTC", 7)
	testutil.AssertNoError(t, err)

	clock.Advance(time.Hour)
	provider.setErr(fmt.Errorf("upstream down"))

	points, err := gw.GetHistoricalPrices(ctx, "BTC", 7)
	testutil.AssertNoError(t, err)
	if len(points) != 1 {
		t.Errorf("expected stale history to be served, got %d points", len(points))
	}
}
