// Package autopay implements the rule scheduler for the autopay condition
// engine. The service owns the set of rules under monitoring, runs a
// periodic evaluation tick, and invokes the trigger callback exactly once
// per condition-becomes-true edge.
//
// The scheduler, not the evaluator, is responsible for debouncing: the
// evaluator is stateless per call, so the service tracks the previous
// evaluation outcome per rule and fires only on a rising edge. A price or
// event condition that stays true across many ticks therefore triggers once,
// not once per tick.
package autopay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"satwallet/internal/conditions"
	"satwallet/internal/types"
)

// DefaultTickInterval is the period of the scheduler's evaluation pass.
const DefaultTickInterval = 60 * time.Second

// RuleStore abstracts the durable record of rule definitions. The store
// exclusively owns persistence; the service holds only a working view.
type RuleStore interface {
	// ListActive returns every rule whose active flag is set.
	ListActive(ctx context.Context) ([]types.AutopayRule, error)
	// GetRule returns the rule by ID, or nil if it does not exist.
	GetRule(ctx context.Context, id string) (*types.AutopayRule, error)
	// SetLastTriggered writes back the last-triggered timestamp.
	SetLastTriggered(ctx context.Context, id string, t time.Time) error
}

// TriggerFunc is the outbound callback invoked on a rising edge, at most
// once per edge per tick cycle. The downstream payment executor is
// responsible for idempotence if it retries.
type TriggerFunc func(ctx context.Context, rule types.AutopayRule) error

// TickMetrics records scheduler telemetry. Implementations must be safe for
// concurrent use.
type TickMetrics interface {
	ObserveTick(duration time.Duration, evaluated int, fired int)
	IncTriggerError()
}

// monitored is the in-memory working view of one rule under evaluation.
type monitored struct {
	rule       types.AutopayRule
	state      types.RuleState
	lastResult bool
}

// Service is the rule scheduler. All state transitions happen under the
// service mutex, so no tick can partially update one rule's previous-state
// while reading it elsewhere.
type Service struct {
	mu    sync.Mutex
	rules map[string]*monitored

	evaluator *conditions.Evaluator
	store     RuleStore
	trigger   TriggerFunc
	clock     types.Clock
	metrics   TickMetrics
	logger    *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Evaluator *conditions.Evaluator
	Store     RuleStore
	Trigger   TriggerFunc
	Clock     types.Clock
	Metrics   TickMetrics
	Logger    *slog.Logger
}

// NewService creates a Service with no rules under monitoring. Call Restore
// to register the store's active rules after a process restart.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Service{
		rules:     make(map[string]*monitored),
		evaluator: cfg.Evaluator,
		store:     cfg.Store,
		trigger:   cfg.Trigger,
		clock:     clock,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Restore registers every active rule from the store for monitoring.
// Intended for process startup; monitoring state is not persisted beyond the
// rule's active flag.
func (s *Service) Restore(ctx context.Context) error {
	rules, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active rules: %w", err)
	}
	for _, rule := range rules {
		s.register(rule)
	}
	s.logger.InfoContext(ctx, "autopay monitoring restored", "rules", len(rules))
	return nil
}

// StartMonitoring transitions a rule from inactive to monitoring and
// registers it for periodic evaluation. Idempotent if the rule is already
// monitoring; the condition is refreshed from the store in that case so a
// re-edited condition takes effect.
func (s *Service) StartMonitoring(ctx context.Context, ruleID string) error {
	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("loading rule %s: %w", ruleID, err)
	}
	if rule == nil {
		return types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}

	s.register(*rule)
	s.logger.InfoContext(ctx, "rule monitoring started",
		"rule_id", ruleID,
		"condition", rule.Condition,
	)
	return nil
}

func (s *Service) register(rule types.AutopayRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rules[rule.ID]; ok {
		// Already monitoring. Keep the edge state unless the condition
		// changed, in which case the old cached result is meaningless.
		if existing.rule.Condition != rule.Condition {
			s.evaluator.Cache().Remove(existing.rule.Condition)
			existing.lastResult = false
		}
		existing.rule = rule
		return
	}

	s.rules[rule.ID] = &monitored{
		rule:  rule,
		state: types.RuleMonitoring,
	}
}

// StopMonitoring transitions a rule from any state to inactive, unregisters
// it, and purges its cache entry so a stale cached true cannot leak into a
// later re-activation evaluation window.
//
// Deactivation is effective before the next tick boundary: an in-flight
// evaluation for the rule may complete, but its result is discarded rather
// than transitioning state (see applyResult).
func (s *Service) StopMonitoring(ruleID string) {
	s.mu.Lock()
	m, ok := s.rules[ruleID]
	if ok {
		delete(s.rules, ruleID)
	}
	s.mu.Unlock()

	if ok {
		s.evaluator.Cache().Remove(m.rule.Condition)
		s.logger.Info("rule monitoring stopped", "rule_id", ruleID)
	}
}

// State returns the scheduler-side lifecycle state of a rule. Rules not
// under monitoring are inactive.
func (s *Service) State(ruleID string) types.RuleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rules[ruleID]; ok {
		return m.state
	}
	return types.RuleInactive
}

// MonitoredCount returns the number of rules currently under monitoring.
func (s *Service) MonitoredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// EvaluateCondition evaluates a condition string ad hoc against the current
// time. Used by the management surface; shares the engine's result cache.
func (s *Service) EvaluateCondition(ctx context.Context, condition string) bool {
	return s.evaluator.Evaluate(ctx, condition, s.clock.Now())
}

// ValidateCondition checks a condition string for rule-creation feedback.
func (s *Service) ValidateCondition(condition string) types.ValidationResult {
	return conditions.Validate(condition)
}

// ClearCache drops every memoized evaluation result.
func (s *Service) ClearCache() {
	s.evaluator.Cache().Clear()
}

// CacheStats returns a snapshot of the engine's result cache.
func (s *Service) CacheStats() types.CacheStats {
	return s.evaluator.Cache().Stats(s.clock.Now())
}

// Tick runs one evaluation pass over every rule in monitoring state.
//
// Per-rule failure is isolated: an evaluation or trigger problem for one
// rule is logged and does not halt the tick for the others. A trigger-action
// failure leaves the rule in monitoring; the next rising edge is the natural
// retry point.
func (s *Service) Tick(ctx context.Context) {
	start := s.clock.Now()

	// Snapshot under the lock, evaluate outside it. Results are re-checked
	// against the registry before being applied, so rules deactivated
	// mid-tick are discarded.
	s.mu.Lock()
	snapshot := make([]types.AutopayRule, 0, len(s.rules))
	for _, m := range s.rules {
		snapshot = append(snapshot, m.rule)
	}
	s.mu.Unlock()

	fired := 0
	for _, rule := range snapshot {
		if s.tickRule(ctx, rule) {
			fired++
		}
	}

	duration := s.clock.Now().Sub(start)
	if s.metrics != nil {
		s.metrics.ObserveTick(duration, len(snapshot), fired)
	}
	s.logger.DebugContext(ctx, "tick complete",
		"evaluated", len(snapshot),
		"fired", fired,
		"duration_ms", duration.Milliseconds(),
	)
}

// tickRule evaluates one rule and fires its trigger on a rising edge.
// Reports whether the trigger was invoked.
func (s *Service) tickRule(ctx context.Context, rule types.AutopayRule) (fired bool) {
	// A panicking evaluation or trigger must not take down the tick.
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "rule evaluation panicked",
				"rule_id", rule.ID,
				"panic", fmt.Sprint(r),
			)
			fired = false
		}
	}()

	result := s.evaluator.Evaluate(ctx, rule.Condition, s.clock.Now())

	rising, ok := s.applyResult(rule.ID, rule.Condition, result)
	if !ok || !rising {
		return false
	}

	// Rising edge: invoke the trigger exactly once, then revert to
	// monitoring within the same tick. Triggered is a transient state; a
	// condition that remains true for minutes must not fire on every tick.
	now := s.clock.Now()
	if err := s.trigger(ctx, rule); err != nil {
		s.logger.ErrorContext(ctx, "trigger action failed",
			"rule_id", rule.ID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncTriggerError()
		}
		// The rule stays in monitoring; no engine-side retry is scheduled.
	} else {
		if err := s.store.SetLastTriggered(ctx, rule.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist last-triggered timestamp",
				"rule_id", rule.ID,
				"error", err,
			)
		}
		s.logger.InfoContext(ctx, "autopay rule triggered",
			"rule_id", rule.ID,
			"condition", rule.Condition,
			"amount_btc", rule.AmountBTC,
		)
	}

	s.settle(rule.ID)
	return true
}

// applyResult records the evaluation outcome for a rule and reports whether
// it constitutes a rising edge. Results for rules that were deactivated (or
// re-edited) while the evaluation was in flight are discarded.
func (s *Service) applyResult(ruleID, condition string, result bool) (rising bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.rules[ruleID]
	if !exists || m.rule.Condition != condition {
		return false, false
	}

	rising = result && !m.lastResult
	m.lastResult = result
	if rising {
		m.state = types.RuleTriggered
	}
	return rising, true
}

// settle returns a triggered rule to monitoring.
func (s *Service) settle(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rules[ruleID]; ok && m.state == types.RuleTriggered {
		m.state = types.RuleMonitoring
	}
}
