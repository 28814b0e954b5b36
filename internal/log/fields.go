package log

import (
	"errors"

	"wealthflow/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldUserID        = "user_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"

	FieldAccountID     = "account_id"
	FieldTransactionID = "transaction_id"
	FieldRuleID        = "rule_id"
	FieldBudgetID      = "budget_id"
	FieldGoalID        = "goal_id"
	FieldQuoteID       = "quote_id"
	FieldField         = "field"
	FieldInvariant     = "invariant"
	FieldDelta         = "delta"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentGRPC      = "grpc"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpGenerate = "generate"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConsistency   = "consistency_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// ErrorType classifies a ledger error for the error_type field.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsValidation(err):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrConsistency):
		return ErrorTypeConsistency
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	default:
		return ErrorTypeInternal
	}
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f LogFields) WithUserID(userID string) LogFields {
	if userID != "" {
		f[FieldUserID] = userID
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error and, for ledger errors, the offending field,
// invariant or split delta.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	f[FieldError] = err.Error()
	f["error_type"] = ErrorType(err)

	var ve *core.ValidationError
	var se *core.SplitSumError
	var ce *core.ConsistencyError
	switch {
	case errors.As(err, &se):
		f[FieldField] = "splits"
		f[FieldDelta] = se.Delta.String()
	case errors.As(err, &ve):
		f[FieldField] = ve.Field
	case errors.As(err, &ce):
		f[FieldInvariant] = ce.Invariant
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
