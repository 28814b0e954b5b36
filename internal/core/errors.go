package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrZeroAmount          = errors.New("amount cannot be zero")
	ErrMissingField        = errors.New("required field missing")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInvalidFrequency    = errors.New("invalid frequency")
	ErrInvalidPeriod       = errors.New("invalid budget period")
	ErrInvalidStatus       = errors.New("invalid goal item status")
	ErrInvalidDayOfMonth   = errors.New("day of month must be between 1 and 31")
	ErrSameAccountTransfer = errors.New("cannot transfer funds to the same account")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrEmptySplit          = errors.New("at least one split row is required")
	ErrSplitSumMismatch    = errors.New("split amounts do not add up to the transaction amount")
	ErrDateOrder           = errors.New("date is before the start date")
	ErrSplitCategory       = errors.New("split categories are assigned by replacing splits")

	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("consistency violation")
)

// Invariant names reported by ConsistencyError.
const (
	InvariantTransferPair   = "transfer_pair"
	InvariantSplitSum       = "split_sum"
	InvariantAccountHistory = "account_history"
	InvariantQuoteSelection = "quote_selection"
	InvariantRuleSchedule   = "recurring_schedule"
)

// ValidationError names the offending input field. It is always raised before
// any write is attempted.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SplitSumError reports a split set whose allocations do not match the parent
// amount. Delta is parent - allocated: positive means more must be allocated,
// negative means the rows are over by |Delta|.
type SplitSumError struct {
	Expected  decimal.Decimal
	Allocated decimal.Decimal
	Delta     decimal.Decimal
	Currency  string
}

func (e *SplitSumError) Error() string {
	return "splits: " + e.Message()
}

// Message renders the delta the way the split form displays it.
func (e *SplitSumError) Message() string {
	amount := FormatAmount(e.Delta.Abs(), e.Currency)
	if e.Delta.IsPositive() {
		return "need " + amount + " more"
	}
	return "over by " + amount
}

func (e *SplitSumError) Unwrap() error { return ErrSplitSumMismatch }

// ConsistencyError rejects a mutation that would break a ledger invariant.
type ConsistencyError struct {
	Invariant string
	Reason    string
}

// Inconsistent builds a ConsistencyError.
func Inconsistent(invariant, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Invariant: invariant, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation (%s): %s", e.Invariant, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// IsValidation reports whether err is a ValidationError or a SplitSumError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var se *SplitSumError
	return errors.As(err, &ve) || errors.As(err, &se)
}
