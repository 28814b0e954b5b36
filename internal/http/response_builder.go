package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"wealthflow/internal/core"
	"wealthflow/internal/log"
)

// ErrorBody is the JSON shape of every error response. Field names the
// offending input, Invariant the ledger rule a mutation would break, and
// Delta the signed split shortfall (parent minus allocated).
type ErrorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Invariant string `json:"invariant,omitempty"`
	Delta     string `json:"delta,omitempty"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse classifies err into a status and body.
func errorResponse(err error) (int, ErrorBody) {
	var (
		re *requestError
		se *core.SplitSumError
		ve *core.ValidationError
		ce *core.ConsistencyError
	)
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, ErrorBody{Error: re.msg}
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity, ErrorBody{Error: se.Message(), Field: "splits", Delta: se.Delta.StringFixed(2)}
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ErrorBody{Error: ve.Error(), Field: ve.Field}
	case errors.As(err, &ce):
		return http.StatusConflict, ErrorBody{Error: ce.Reason, Invariant: ce.Invariant}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "internal error"}
	}
}

// writeError maps a ledger error to its status and logs it with the request
// logger. Store failures are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)

	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err).ToSlice()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.InfoContext(r.Context(), "Request rejected", fields...)
	}

	writeJSON(w, status, body)
}
