package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// HeaderUserID names the ledger user a request acts for.
const HeaderUserID = "X-User-ID"

const maxBodyBytes = 1 << 20

// requestError is a malformed request that never reached the ledger.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// userIDFrom returns the trimmed X-User-ID header, or "" when it is absent.
func userIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

// requireUser returns the acting user or a validation error naming user_id.
func requireUser(r *http.Request) (string, error) {
	if id := userIDFrom(r); id != "" {
		return id, nil
	}
	return "", core.Invalid("user_id", fmt.Errorf("%s header: %w", HeaderUserID, core.ErrMissingField))
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body exceeds %d bytes", maxErr.Limit)
		default:
			return badRequest("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// dateParam parses a YYYY-MM-DD query parameter, falling back to def.
func dateParam(r *http.Request, name string, def core.Date) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Invalid(name, core.ErrInvalidDate)
	}
	return d, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// transactionFilter builds a ledger query from the request's query string.
func transactionFilter(r *http.Request, userID string) (storage.TransactionFilter, error) {
	q := r.URL.Query()
	f := storage.TransactionFilter{
		UserID:     userID,
		AccountID:  q.Get("account_id"),
		CategoryID: q.Get("category_id"),
		GoalItemID: q.Get("goal_item_id"),
		RuleID:     q.Get("rule_id"),
	}
	if t := q.Get("type"); t != "" {
		f.Type = core.TransactionType(t)
		if err := f.Type.Validate(); err != nil {
			return f, core.Invalid("type", err)
		}
	}
	var err error
	if f.From, err = dateParam(r, "from", core.Date{}); err != nil {
		return f, err
	}
	if f.To, err = dateParam(r, "to", core.Date{}); err != nil {
		return f, err
	}
	return f, nil
}
