package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"satwallet/internal/types"
)

// DefaultPriceMaxAge is how long a fetched price is served without a
// refresh. The background refresher normally keeps the value younger than
// this; the lazy fetch path is a backstop.
const DefaultPriceMaxAge = 2 * time.Minute

// defaultFetchTimeout bounds the lazy fetch so a slow upstream can never
// stall a scheduler tick for long.
const defaultFetchTimeout = 5 * time.Second

// priceResponse is the wire shape of the price endpoint
// (CoinGecko simple/price contract).
type priceResponse struct {
	Bitcoin struct {
		USD float64 `json:"usd"`
	} `json:"bitcoin"`
}

// PriceFeed serves the current BTC/USD reference price to the condition
// engine. Evaluation reads a locally cached value; the network is touched
// only by the background Refresh loop or, when the cache has gone stale, by
// a single-flighted fetch with a hard timeout. When a fetch fails and a
// previous value exists, the stale value is served rather than stalling the
// tick.
type PriceFeed struct {
	base     *BaseClient
	endpoint string
	maxAge   time.Duration
	clock    types.Clock
	logger   *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
	hasPrice  bool
}

// PriceFeedConfig holds the dependencies for creating a PriceFeed.
type PriceFeedConfig struct {
	HTTPClient *http.Client
	Endpoint   string
	UserAgent  string
	MaxAge     time.Duration
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewPriceFeed creates a PriceFeed with its own circuit breaker.
func NewPriceFeed(cfg PriceFeedConfig) *PriceFeed {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultPriceMaxAge
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &PriceFeed{
		base:     NewBaseClient(httpClient, "pricefeed", DefaultRetryPolicy(), cfg.UserAgent),
		endpoint: cfg.Endpoint,
		maxAge:   maxAge,
		clock:    clock,
		logger:   logger,
	}
}

// CurrentPrice returns the cached reference price, refreshing it through a
// single-flighted fetch when stale. A fetch failure falls back to the last
// known value; an error is returned only when no price has ever been
// fetched.
func (f *PriceFeed) CurrentPrice(ctx context.Context) (float64, error) {
	f.mu.Lock()
	price, fetchedAt, has := f.price, f.fetchedAt, f.hasPrice
	f.mu.Unlock()

	if has && f.clock.Now().Sub(fetchedAt) < f.maxAge {
		return price, nil
	}

	fetched, err, _ := f.group.Do("price", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
		defer cancel()
		return f.fetch(fetchCtx)
	})
	if err != nil {
		if has {
			f.logger.WarnContext(ctx, "price refresh failed, serving stale value",
				"age", f.clock.Now().Sub(fetchedAt).String(),
				"error", err,
			)
			return price, nil
		}
		return 0, types.NewAppError(types.ErrCodeUpstreamPrice,
			"no reference price available", err)
	}
	return fetched.(float64), nil
}

// Refresh fetches the price eagerly. Driven by the background refresher so
// the evaluator's CurrentPrice calls normally hit a fresh cache.
func (f *PriceFeed) Refresh(ctx context.Context) error {
	_, err := f.fetch(ctx)
	return err
}

// fetch performs one HTTP round trip and updates the cached value.
func (f *PriceFeed) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("building price request: %w", err)
	}

	resp, err := f.base.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price endpoint returned %d", resp.StatusCode)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding price response: %w", err)
	}
	if body.Bitcoin.USD <= 0 {
		return 0, fmt.Errorf("price endpoint returned non-positive price %v", body.Bitcoin.USD)
	}

	f.mu.Lock()
	f.price = body.Bitcoin.USD
	f.fetchedAt = f.clock.Now()
	f.hasPrice = true
	f.mu.Unlock()

	return body.Bitcoin.USD, nil
}
