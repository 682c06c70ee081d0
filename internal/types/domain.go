// Package types defines the domain model shared across the satwallet backend:
// autopay rules, parsed trigger conditions, wallet transactions, and the
// application error taxonomy.
package types

import (
	"time"
)

// Autopay amount bounds in BTC. Rules outside this range are rejected at
// creation and update time.
const (
	MinAutopayAmount = 0.0001
	MaxAutopayAmount = 1.0
)

// AutopayRule is a user-declared trigger-and-action pair: when the condition
// holds, pay Recipient AmountBTC from WalletID.
//
// The repository exclusively owns persistence; the scheduler holds only a
// working view (read for evaluation, write-back of LastTriggeredAt).
type AutopayRule struct {
	ID              string     `json:"id" db:"id"`
	WalletID        string     `json:"wallet_id" db:"wallet_id"`
	Recipient       string     `json:"recipient" db:"recipient"`
	AmountBTC       float64    `json:"amount_btc" db:"amount_btc"`
	Condition       string     `json:"condition" db:"condition"`
	Active          bool       `json:"active" db:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// Condition is the parsed, typed form of a rule's raw trigger text. Exactly
// one variant is populated, selected by Type. It is derived fresh on each
// parse and never persisted; only its boolean evaluation result is cached.
type Condition struct {
	Type ConditionType `json:"type"`

	// Time variant
	Pattern TimePattern  `json:"pattern,omitempty"`
	Hour    int          `json:"hour,omitempty"`    // 0-23; daily pattern
	Weekday time.Weekday `json:"weekday,omitempty"` // weekly pattern

	// Price variant. Price conditions always carry both fields.
	Operator  PriceOperator `json:"operator,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`

	// Event variant
	Event EventKind `json:"event,omitempty"`
}

// ValidationResult is the structured outcome of validating a condition string
// at rule-creation time. It is the only path through which parse problems
// surface to callers; evaluation failures never escape the engine.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// CacheStat describes one memoized evaluation result for introspection.
type CacheStat struct {
	Condition string    `json:"condition"`
	Result    bool      `json:"result"`
	CachedAt  time.Time `json:"cached_at"`
}

// CacheStats is the engine's cache introspection snapshot.
type CacheStats struct {
	Size    int         `json:"size"`
	Entries []CacheStat `json:"entries"`
}

// Wallet is a thin record of a connected wallet. Connection handshake logic
// lives in the wallet extension; the backend only tracks identity and balance.
type Wallet struct {
	ID         string    `json:"id" db:"id"`
	Label      string    `json:"label" db:"label"`
	Address    string    `json:"address" db:"address"`
	BalanceBTC float64   `json:"balance_btc" db:"balance_btc"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Transaction is a wallet ledger entry. Incoming transactions feed the
// transaction_received event signal.
type Transaction struct {
	ID           string      `json:"id" db:"id"`
	WalletID     string      `json:"wallet_id" db:"wallet_id"`
	Direction    TxDirection `json:"direction" db:"direction"`
	AmountBTC    float64     `json:"amount_btc" db:"amount_btc"`
	Counterparty string      `json:"counterparty" db:"counterparty"`
	RuleID       *string     `json:"rule_id,omitempty" db:"rule_id"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// Clock abstracts time.Now for deterministic testing of time-dependent logic.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
