package conditions

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"satwallet/internal/types"
)

// equalTolerance is the relative band within which a price "equal" condition
// is considered satisfied. Floating external prices rarely match a threshold
// exactly, so equality means within +-1%.
const equalTolerance = 0.01

// PriceFeed supplies the current BTC reference price. The evaluator never
// fetches prices itself; implementations are expected to answer from a
// recently-refreshed local value so evaluation stays off the network path.
type PriceFeed interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// EventSignal reports externally detected wallet events. The engine does not
// detect these events itself; it only interprets the reported flags.
// Implementations own any "since last check" bookkeeping.
type EventSignal interface {
	TransactionReceived(ctx context.Context) (bool, error)
	WalletConnected(ctx context.Context) (bool, error)
	BalanceChanged(ctx context.Context) (bool, error)
}

// Evaluator decides whether a raw condition string is satisfied at a given
// instant. Results are memoized per raw string in a TTL-bounded cache, so
// repeated evaluation within one cache window is free.
//
// Evaluation never returns an error: parse and dispatch failures are logged
// and reported as false, so a single malformed rule cannot crash a
// scheduling tick.
type Evaluator struct {
	cache  *ResultCache
	prices PriceFeed
	events EventSignal
	logger *slog.Logger
}

// EvaluatorConfig holds the dependencies for creating an Evaluator.
type EvaluatorConfig struct {
	CacheTTL time.Duration
	Prices   PriceFeed
	Events   EventSignal
	Logger   *slog.Logger
}

// NewEvaluator creates an Evaluator with its own result cache.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cache:  NewResultCache(cfg.CacheTTL),
		prices: cfg.Prices,
		events: cfg.Events,
		logger: logger,
	}
}

// Cache exposes the evaluator's result cache for the management surface
// (stats, clear) and for per-rule purging on deactivation.
func (e *Evaluator) Cache() *ResultCache {
	return e.cache
}

// Evaluate reports whether the condition holds at now.
//
// A cache entry younger than the TTL short-circuits recomputation even if
// the underlying context has changed since; stale reads are bounded by the
// TTL. Successful evaluations are written back to the cache; failed ones are
// not, so a transient signal outage does not pin a false result for a full
// TTL window.
func (e *Evaluator) Evaluate(ctx context.Context, raw string, now time.Time) bool {
	if result, ok := e.cache.Get(raw, now); ok {
		return result
	}

	cond, err := Parse(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "condition parse failed",
			"condition", raw,
			"error", err,
		)
		return false
	}

	result, err := e.dispatch(ctx, cond, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "condition evaluation failed",
			"condition", raw,
			"type", string(cond.Type),
			"error", err,
		)
		return false
	}

	e.cache.Put(raw, result, now)
	return result
}

// dispatch routes evaluation by condition variant.
func (e *Evaluator) dispatch(ctx context.Context, cond types.Condition, now time.Time) (bool, error) {
	switch cond.Type {
	case types.ConditionTime:
		return evalTime(cond, now), nil
	case types.ConditionPrice:
		return e.evalPrice(ctx, cond)
	case types.ConditionEvent:
		return e.evalEvent(ctx, cond)
	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// evalTime compares now against the recurrence pattern. All patterns fire at
// minute 0 of their scheduled instant except the interval fallback, which
// fires whenever the minute is a multiple of 5.
func evalTime(cond types.Condition, now time.Time) bool {
	switch cond.Pattern {
	case types.PatternHourly:
		return now.Minute() == 0
	case types.PatternDaily:
		return now.Hour() == cond.Hour && now.Minute() == 0
	case types.PatternWeekly:
		return now.Weekday() == cond.Weekday && now.Hour() == 0 && now.Minute() == 0
	case types.PatternMonthly:
		return now.Day() == 1 && now.Hour() == 0 && now.Minute() == 0
	default:
		return now.Minute()%5 == 0
	}
}

// evalPrice compares the injected reference price against the threshold.
func (e *Evaluator) evalPrice(ctx context.Context, cond types.Condition) (bool, error) {
	if e.prices == nil {
		return false, fmt.Errorf("no price feed configured")
	}

	price, err := e.prices.CurrentPrice(ctx)
	if err != nil {
		return false, fmt.Errorf("fetching current price: %w", err)
	}

	switch cond.Operator {
	case types.OpGreater:
		return price > cond.Threshold, nil
	case types.OpLess:
		return price < cond.Threshold, nil
	case types.OpEqual:
		return math.Abs(price-cond.Threshold) <= cond.Threshold*equalTolerance, nil
	default:
		return false, fmt.Errorf("unknown price operator %q", cond.Operator)
	}
}

// evalEvent resolves the symbolic tag against the injected event signal.
func (e *Evaluator) evalEvent(ctx context.Context, cond types.Condition) (bool, error) {
	if e.events == nil {
		return false, fmt.Errorf("no event signal configured")
	}

	switch cond.Event {
	case types.EventTransactionReceived:
		return e.events.TransactionReceived(ctx)
	case types.EventWalletConnected:
		return e.events.WalletConnected(ctx)
	case types.EventBalanceChanged:
		return e.events.BalanceChanged(ctx)
	default:
		return false, fmt.Errorf("unknown event kind %q", cond.Event)
	}
}
