package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"satwallet/internal/types"
)

// AutopayRuleRepository provides data access for the autopay_rules table.
// It is the durable record behind the scheduler's RuleStore contract: rule
// definitions, the activation flag, and the last-triggered timestamp.
type AutopayRuleRepository struct {
	db DBTX
}

// NewAutopayRuleRepository creates a repository backed by the given
// database connection (pool or transaction).
func NewAutopayRuleRepository(db DBTX) *AutopayRuleRepository {
	return &AutopayRuleRepository{db: db}
}

const ruleColumns = `id, wallet_id, recipient, amount_btc, condition, active, last_triggered_at, created_at`

// Create inserts a new rule. The ID and creation timestamp are assigned
// here; the amount bound check is enforced by the handler before this call
// and by a table CHECK constraint as a backstop.
func (r *AutopayRuleRepository) Create(ctx context.Context, rule *types.AutopayRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO autopay_rules (id, wallet_id, recipient, amount_btc, condition, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.ID,
		rule.WalletID,
		rule.Recipient,
		rule.AmountBTC,
		rule.Condition,
		rule.Active,
		rule.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create autopay rule", err)
	}
	return nil
}

// GetRule returns the rule by ID, or nil if it does not exist.
func (r *AutopayRuleRepository) GetRule(ctx context.Context, id string) (*types.AutopayRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM autopay_rules WHERE id = $1`,
		id,
	)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query autopay rule", err)
	}
	return rule, nil
}

// List returns every rule ordered by creation time, newest first.
func (r *AutopayRuleRepository) List(ctx context.Context) ([]types.AutopayRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM autopay_rules ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list autopay rules", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// ListActive returns every rule whose active flag is set. Used by the
// scheduler to restore monitoring on startup.
func (r *AutopayRuleRepository) ListActive(ctx context.Context) ([]types.AutopayRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM autopay_rules WHERE active ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active autopay rules", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// Update rewrites the mutable fields of a rule: recipient, amount,
// condition, and active flag.
func (r *AutopayRuleRepository) Update(ctx context.Context, rule *types.AutopayRule) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_rules
		 SET recipient = $2, amount_btc = $3, condition = $4, active = $5
		 WHERE id = $1`,
		rule.ID,
		rule.Recipient,
		rule.AmountBTC,
		rule.Condition,
		rule.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update autopay rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}
	return nil
}

// SetActive flips the activation flag.
func (r *AutopayRuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_rules SET active = $2 WHERE id = $1`,
		id,
		active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set autopay rule active flag", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}
	return nil
}

// SetLastTriggered writes back the last-triggered timestamp after a
// successful trigger invocation.
func (r *AutopayRuleRepository) SetLastTriggered(ctx context.Context, id string, t time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_rules SET last_triggered_at = $2 WHERE id = $1`,
		id,
		t,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set last-triggered timestamp", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}
	return nil
}

// Delete removes a rule permanently.
func (r *AutopayRuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM autopay_rules WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete autopay rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "Autopay rule not found", nil)
	}
	return nil
}

// scanRule reads one rule from a row.
func scanRule(row pgx.Row) (*types.AutopayRule, error) {
	var rule types.AutopayRule
	err := row.Scan(
		&rule.ID,
		&rule.WalletID,
		&rule.Recipient,
		&rule.AmountBTC,
		&rule.Condition,
		&rule.Active,
		&rule.LastTriggeredAt,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// collectRules drains a rows cursor into a slice.
func collectRules(rows pgx.Rows) ([]types.AutopayRule, error) {
	var rules []types.AutopayRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan autopay rule", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate autopay rules", err)
	}
	return rules, nil
}
