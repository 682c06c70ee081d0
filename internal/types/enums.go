package types

// ConditionType discriminates the parsed form of a rule's trigger text.
type ConditionType string

const (
	// ConditionTime covers recurring schedules ("every hour", "daily at 9am").
	ConditionTime ConditionType = "time"
	// ConditionPrice covers BTC price comparisons ("btc price > 50000").
	ConditionPrice ConditionType = "price"
	// ConditionEvent covers wallet events ("transaction received").
	ConditionEvent ConditionType = "event"
)

// PriceOperator is the comparison applied to a price condition threshold.
type PriceOperator string

const (
	OpGreater PriceOperator = "greater"
	OpLess    PriceOperator = "less"
	OpEqual   PriceOperator = "equal"
)

// EventKind is the symbolic tag an event condition resolves against.
type EventKind string

const (
	EventTransactionReceived EventKind = "transaction_received"
	EventWalletConnected     EventKind = "wallet_connected"
	EventBalanceChanged      EventKind = "balance_changed"
)

// RuleState is the scheduler-side lifecycle state of an autopay rule.
//
// Transitions: inactive -> monitoring -> triggered -> monitoring (self-loop)
// -> inactive. Triggered is transient: a rule never remains in it across
// ticks.
type RuleState string

const (
	RuleInactive   RuleState = "inactive"
	RuleMonitoring RuleState = "monitoring"
	RuleTriggered  RuleState = "triggered"
)

// TimePattern is the recurrence shape of a time condition.
type TimePattern string

const (
	PatternHourly  TimePattern = "hourly"
	PatternDaily   TimePattern = "daily"
	PatternWeekly  TimePattern = "weekly"
	PatternMonthly TimePattern = "monthly"
	// PatternInterval is the conservative fallback for unrecognized time
	// phrases: fires whenever minute%5 == 0 so a rule is never permanently
	// silent.
	PatternInterval TimePattern = "interval"
)

// TxDirection classifies a wallet transaction.
type TxDirection string

const (
	TxIncoming TxDirection = "incoming"
	TxOutgoing TxDirection = "outgoing"
)
