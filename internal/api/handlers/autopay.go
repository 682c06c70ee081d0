// Package handlers contains the HTTP handler implementations for the
// satwallet API. Handlers depend on locally-defined interfaces rather than
// concrete services so each can be tested with plain mocks.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"satwallet/internal/core"
	"satwallet/internal/types"
)

// RuleRepo defines the data access contract for autopay rule operations.
// Mirrors the concrete db.AutopayRuleRepository methods used here.
type RuleRepo interface {
	Create(ctx context.Context, rule *types.AutopayRule) error
	GetRule(ctx context.Context, id string) (*types.AutopayRule, error)
	List(ctx context.Context) ([]types.AutopayRule, error)
	Update(ctx context.Context, rule *types.AutopayRule) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// Engine is the autopay scheduler's management surface.
type Engine interface {
	StartMonitoring(ctx context.Context, ruleID string) error
	StopMonitoring(ruleID string)
	State(ruleID string) types.RuleState
	EvaluateCondition(ctx context.Context, condition string) bool
	ValidateCondition(condition string) types.ValidationResult
	ClearCache()
	CacheStats() types.CacheStats
}

// CreateRuleRequest is the request body for POST /v1/autopay/rules.
type CreateRuleRequest struct {
	WalletID  string  `json:"wallet_id" validate:"required"`
	Recipient string  `json:"recipient" validate:"required,max=120"`
	AmountBTC float64 `json:"amount_btc" validate:"required,btc_amount"`
	Condition string  `json:"condition" validate:"required"`
	Active    bool    `json:"active"`
}

// UpdateRuleRequest is the request body for PATCH /v1/autopay/rules/{id}.
type UpdateRuleRequest struct {
	Recipient *string  `json:"recipient,omitempty" validate:"omitempty,max=120"`
	AmountBTC *float64 `json:"amount_btc,omitempty" validate:"omitempty,btc_amount"`
	Condition *string  `json:"condition,omitempty"`
}

// ConditionRequest carries a bare condition string for the validate and
// evaluate endpoints.
type ConditionRequest struct {
	Condition string `json:"condition" validate:"required"`
}

// RuleDetail is a rule plus its scheduler-side state.
type RuleDetail struct {
	types.AutopayRule
	State types.RuleState `json:"state"`
}

// AutopayHandler manages rule CRUD, the activation lifecycle, and the
// engine's management surface.
type AutopayHandler struct {
	rules     RuleRepo
	engine    Engine
	validator *core.Validator
	logger    *slog.Logger
}

// NewAutopayHandler creates an AutopayHandler with the given dependencies.
func NewAutopayHandler(rules RuleRepo, engine Engine, v *core.Validator, l *slog.Logger) *AutopayHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AutopayHandler{
		rules:     rules,
		engine:    engine,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts autopay routes on the provided chi.Router.
func (h *AutopayHandler) RegisterRoutes(r chi.Router) {
	r.Route("/autopay", func(r chi.Router) {
		r.Post("/rules", h.Create)
		r.Get("/rules", h.List)

		r.Route("/rules/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/activate", h.Activate)
			r.Post("/deactivate", h.Deactivate)
		})

		r.Post("/validate", h.Validate)
		r.Post("/evaluate", h.Evaluate)
		r.Get("/cache", h.CacheStats)
		r.Delete("/cache", h.ClearCache)
	})
}

// Create handles POST /v1/autopay/rules. The condition is validated up
// front so the user gets structured feedback at creation time; this is the
// only point where parse problems surface as errors.
func (h *AutopayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if result := h.engine.ValidateCondition(req.Condition); !result.Valid {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationPriceValue, result.Error, nil))
		return
	}

	rule := &types.AutopayRule{
		WalletID:  req.WalletID,
		Recipient: req.Recipient,
		AmountBTC: req.AmountBTC,
		Condition: req.Condition,
		Active:    req.Active,
	}
	if err := h.rules.Create(r.Context(), rule); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Active {
		if err := h.engine.StartMonitoring(r.Context(), rule.ID); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	core.JSON(w, r, http.StatusCreated, h.detail(*rule))
}

// List handles GET /v1/autopay/rules.
func (h *AutopayHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	details := make([]RuleDetail, 0, len(rules))
	for _, rule := range rules {
		details = append(details, h.detail(rule))
	}
	core.JSON(w, r, http.StatusOK, details)
}

// Get handles GET /v1/autopay/rules/{id}.
func (h *AutopayHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.loadRule(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, h.detail(*rule))
}

// Update handles PATCH /v1/autopay/rules/{id}. A condition re-edit on an
// active rule re-registers it so the new condition takes effect before the
// next tick.
func (h *AutopayHandler) Update(w http.ResponseWriter, r *http.Request) {
	rule, err := h.loadRule(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdateRuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Recipient != nil {
		rule.Recipient = *req.Recipient
	}
	if req.AmountBTC != nil {
		rule.AmountBTC = *req.AmountBTC
	}
	if req.Condition != nil {
		if result := h.engine.ValidateCondition(*req.Condition); !result.Valid {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationPriceValue, result.Error, nil))
			return
		}
		rule.Condition = *req.Condition
	}

	if err := h.rules.Update(r.Context(), rule); err != nil {
		core.Error(w, r, err)
		return
	}

	if rule.Active {
		if err := h.engine.StartMonitoring(r.Context(), rule.ID); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	core.JSON(w, r, http.StatusOK, h.detail(*rule))
}

// Delete handles DELETE /v1/autopay/rules/{id}. Monitoring stops before the
// row is removed.
func (h *AutopayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.engine.StopMonitoring(id)

	if err := h.rules.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusNoContent, nil)
}

// Activate handles POST /v1/autopay/rules/{id}/activate. Idempotent when
// the rule is already monitoring.
func (h *AutopayHandler) Activate(w http.ResponseWriter, r *http.Request) {
	rule, err := h.loadRule(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.rules.SetActive(r.Context(), rule.ID, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.engine.StartMonitoring(r.Context(), rule.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	rule.Active = true
	core.JSON(w, r, http.StatusOK, h.detail(*rule))
}

// Deactivate handles POST /v1/autopay/rules/{id}/deactivate. Unregisters
// the rule and purges its cache entries so stale cached trues cannot leak
// into a later re-activation window.
func (h *AutopayHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	rule, err := h.loadRule(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.rules.SetActive(r.Context(), rule.ID, false); err != nil {
		core.Error(w, r, err)
		return
	}
	h.engine.StopMonitoring(rule.ID)

	rule.Active = false
	core.JSON(w, r, http.StatusOK, h.detail(*rule))
}

// Validate handles POST /v1/autopay/validate, the rule-creation feedback
// endpoint.
func (h *AutopayHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, h.engine.ValidateCondition(req.Condition))
}

// Evaluate handles POST /v1/autopay/evaluate: an ad-hoc evaluation of a
// condition string against the current time and live signals.
func (h *AutopayHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	result := h.engine.EvaluateCondition(r.Context(), req.Condition)
	core.JSON(w, r, http.StatusOK, map[string]bool{"result": result})
}

// CacheStats handles GET /v1/autopay/cache.
func (h *AutopayHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, h.engine.CacheStats())
}

// ClearCache handles DELETE /v1/autopay/cache.
func (h *AutopayHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCache()
	core.JSON(w, r, http.StatusNoContent, nil)
}

// loadRule fetches the rule addressed by the {id} URL parameter.
func (h *AutopayHandler) loadRule(r *http.Request) (*types.AutopayRule, error) {
	id := chi.URLParam(r, "id")
	rule, err := h.rules.GetRule(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}
	return rule, nil
}

// detail pairs a rule with its scheduler-side state.
func (h *AutopayHandler) detail(rule types.AutopayRule) RuleDetail {
	return RuleDetail{
		AutopayRule: rule,
		State:       h.engine.State(rule.ID),
	}
}
