package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentLedger, Output: &buf})

	logger.Info("Balance computed", FieldAccountID, "acc-1")
	logger.Debug("Dropped below level")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentLedger || entry[FieldAccountID] != "acc-1" {
		t.Errorf("unexpected entry %v", entry)
	}
	if logger.Component() != ComponentLedger {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		key   string
		value any
		kind  string
	}{
		{"validation", core.Invalid("amount", core.ErrNonPositiveAmount), FieldField, "amount", ErrorTypeValidation},
		{"split sum", &core.SplitSumError{Delta: decimal.RequireFromString("0.02")}, FieldDelta, "0.02", ErrorTypeValidation},
		{"consistency", core.Inconsistent(core.InvariantTransferPair, "orphan leg"), FieldInvariant, core.InvariantTransferPair, ErrorTypeConsistency},
		{"not found", fmt.Errorf("get: %w", core.NotFound("account", "x")), FieldError, `get: account "x": not found`, ErrorTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFields().WithError(tt.err)
			if f[tt.key] != tt.value {
				t.Errorf("%s = %v, want %v", tt.key, f[tt.key], tt.value)
			}
			if f["error_type"] != tt.kind {
				t.Errorf("error_type = %v, want %v", f["error_type"], tt.kind)
			}
		})
	}

	if f := NewFields().WithError(nil); len(f) != 0 {
		t.Errorf("nil error should add nothing, got %v", f)
	}
}

func TestRequestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Component: ComponentHTTP, Output: &buf})

	handler := Middleware(base)(RequestMiddleware(
		func(*http.Request) string { return "req_1" },
		func(r *http.Request) string { return r.Header.Get("X-User-ID") },
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("Handled")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry[FieldRequestID] != "req_1" || entry[FieldUserID] != "u1" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" || l.Logger == nil {
		t.Errorf("unexpected fallback logger %+v", l)
	}
}
