// Package conditions implements the autopay condition engine's leaf
// component: parsing free-form trigger text into typed conditions and
// deciding, given the current time and injected wallet signals, whether a
// condition holds right now.
//
// Classification is first-match-wins and deliberately permissive: any
// non-empty string parses into some condition. Unrecognized text degrades to
// a conservative 5-minute-interval time condition instead of failing, so
// rule creation never hard-errors on a typo.
package conditions

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"satwallet/internal/types"
)

// priceRe matches "btc price <op> <value>". The operator group accepts
// multi-character spellings (">=", "==", ">>"); the value group is validated
// separately so malformed thresholds produce a structured error rather than
// a silent fallback.
var priceRe = regexp.MustCompile(`btc\s+price\s*([<>=]+)\s*(\S*)`)

// hourRe matches an "at <hour>[am|pm]" clause in a daily schedule.
var hourRe = regexp.MustCompile(`at\s+(\d{1,2})\s*(am|pm)?`)

var timeKeywords = []string{"every", "daily", "weekly", "monthly"}

var eventKeywords = []string{"transaction", "wallet", "balance", "received"}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse turns a free-form condition string into a typed Condition.
//
// Classification order is fixed (strings may contain overlapping keywords):
//  1. Any of {every, daily, weekly, monthly} -> time.
//  2. "btc price <op> <number>" -> price.
//  3. Any of {transaction, wallet, balance, received} -> event.
//  4. Anything else -> time with the 5-minute interval fallback pattern.
//
// Input is trimmed and lower-cased first; case and surrounding whitespace do
// not affect classification. Parse fails only on input that is empty after
// trimming, or on a price condition whose threshold is not a number.
func Parse(raw string) (types.Condition, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return types.Condition{}, types.NewAppError(
			types.ErrCodeValidationEmptyCondition,
			"Condition is required",
			nil,
		)
	}

	if containsAny(s, timeKeywords) {
		return parseTime(s), nil
	}

	if m := priceRe.FindStringSubmatch(s); m != nil {
		return parsePrice(m[1], m[2])
	}

	if containsAny(s, eventKeywords) {
		return parseEvent(s), nil
	}

	// Permissive fallback: unrecognized text is still accepted as a time
	// condition rather than rejected.
	return types.Condition{
		Type:    types.ConditionTime,
		Pattern: types.PatternInterval,
	}, nil
}

// Validate checks a condition string for use at rule-creation time. It is
// the only path through which parse problems surface to callers.
func Validate(raw string) types.ValidationResult {
	if _, err := Parse(raw); err != nil {
		var msg string
		if appErr, ok := err.(*types.AppError); ok {
			msg = appErr.Message
		} else {
			msg = err.Error()
		}
		return types.ValidationResult{Valid: false, Error: msg}
	}
	return types.ValidationResult{Valid: true}
}

// parseTime resolves the recurrence pattern from an already-normalized time
// condition string.
func parseTime(s string) types.Condition {
	cond := types.Condition{Type: types.ConditionTime}

	switch {
	case strings.Contains(s, "daily"):
		cond.Pattern = types.PatternDaily
		cond.Hour = parseHour(s)
	case strings.Contains(s, "weekly"):
		cond.Pattern = types.PatternWeekly
		cond.Weekday = parseWeekday(s)
	case strings.Contains(s, "monthly"):
		cond.Pattern = types.PatternMonthly
	case strings.Contains(s, "hour"):
		// "every hour"
		cond.Pattern = types.PatternHourly
	default:
		// "every ..." with an unrecognized unit. Fire every 5 minutes so
		// the rule is never permanently silent.
		cond.Pattern = types.PatternInterval
	}

	return cond
}

// parseHour extracts the hour from an "at <h>[am|pm]" clause, converting the
// 12-hour clock to 24-hour. Returns 0 (midnight) when no clause is present.
func parseHour(s string) int {
	m := hourRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h < 0 || h > 23 {
		return 0
	}
	switch m[2] {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h != 12 {
			h += 12
		}
	}
	if h > 23 {
		return 0
	}
	return h
}

// parseWeekday finds the first named weekday in the string. Defaults to
// Sunday when no weekday is named.
func parseWeekday(s string) time.Weekday {
	for name, day := range weekdayNames {
		if strings.Contains(s, name) {
			return day
		}
	}
	return time.Sunday
}

// parsePrice builds a price condition from the matched operator and value
// tokens. The operator is classified as greater/less/equal regardless of its
// exact spelling; the value must parse as a number.
func parsePrice(op, value string) (types.Condition, error) {
	cond := types.Condition{Type: types.ConditionPrice}

	switch {
	case strings.Contains(op, ">"):
		cond.Operator = types.OpGreater
	case strings.Contains(op, "<"):
		cond.Operator = types.OpLess
	default:
		cond.Operator = types.OpEqual
	}

	cleaned := strings.TrimPrefix(value, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	threshold, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return types.Condition{}, types.NewAppError(
			types.ErrCodeValidationPriceValue,
			"Price value must be a valid number",
			err,
		)
	}
	cond.Threshold = threshold

	return cond, nil
}

// parseEvent resolves the event tag. The balance keyword is checked before
// wallet so "wallet balance changed" maps to balance_changed rather than
// wallet_connected.
func parseEvent(s string) types.Condition {
	cond := types.Condition{Type: types.ConditionEvent}

	switch {
	case strings.Contains(s, "transaction") || strings.Contains(s, "received"):
		cond.Event = types.EventTransactionReceived
	case strings.Contains(s, "balance"):
		cond.Event = types.EventBalanceChanged
	default:
		cond.Event = types.EventWalletConnected
	}

	return cond
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
