package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"wealthflow/internal/amqp"
	"wealthflow/internal/core"
	"wealthflow/internal/services"
	"wealthflow/internal/storage/memory"
)

const testUser = "user-1"

var testToday = core.NewDate(2024, 4, 15)

type fakeRuns struct {
	requests []*amqp.RecurringRunRequest
	err      error
}

func (f *fakeRuns) PublishRecurringRun(_ context.Context, req *amqp.RecurringRunRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	ledger := services.NewLedgerService(memory.New(), services.WithClock(func() core.Date { return testToday }))
	srv := NewServer(":0", ledger, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

// do sends body (marshalled unless it is already a string) as testUser.
func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, testUser)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func createAccount(t *testing.T, srv *Server, name, opening string) core.Account {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/accounts", map[string]any{"name": name, "type": "checking", "balance": opening})
	mustStatus(t, rr, http.StatusCreated)
	return decode[core.Account](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		mustStatus(t, rr, http.StatusOK)
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}

	rr := do(t, srv, http.MethodGet, "/metrics", nil)
	mustStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Errorf("metrics body missing request counter:\n%s", rr.Body.String())
	}
}

func TestCheckingBalanceFlow(t *testing.T) {
	srv := newTestServer(t, Options{})
	checking := createAccount(t, srv, "Checking", "1000")
	savings := createAccount(t, srv, "Savings", "0")

	for _, tx := range []map[string]any{
		{"type": "expense", "amount": "50", "date": "2024-04-10", "account_id": checking.ID, "category": "Groceries"},
		{"type": "income", "amount": "1000", "date": "2024-04-11", "account_id": checking.ID},
	} {
		mustStatus(t, do(t, srv, http.MethodPost, "/api/transactions", tx), http.StatusCreated)
	}

	rr := do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
		"from_account_id": checking.ID, "to_account_id": savings.ID, "amount": "200", "date": "2024-04-12",
	})
	mustStatus(t, rr, http.StatusCreated)
	transfer := decode[transferResponse](t, rr)
	if transfer.Debit.LinkedTransactionID != transfer.Credit.ID {
		t.Errorf("transfer legs not linked: %+v", transfer)
	}

	balances := map[string]string{}
	for _, a := range []core.Account{checking, savings} {
		rr := do(t, srv, http.MethodGet, "/api/accounts/"+a.ID+"/balance", nil)
		mustStatus(t, rr, http.StatusOK)
		body := decode[balanceResponse](t, rr)
		balances[a.Name] = body.Balance.StringFixed(2)
	}
	want := map[string]string{"Checking": "1950.00", "Savings": "200.00"}
	if diff := cmp.Diff(want, balances); diff != "" {
		t.Errorf("balances mismatch (-want +got):\n%s", diff)
	}

	rr = do(t, srv, http.MethodDelete, "/api/transfers/"+transfer.Credit.ID, nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[deletedResponse](t, rr).Deleted; len(got) != 2 {
		t.Errorf("deleted = %v, want both legs", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions?account_id="+checking.ID, nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.Transaction](t, rr); len(got) != 2 {
		t.Errorf("checking has %d transactions after deleting the transfer, want 2", len(got))
	}
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t, Options{})
	a := createAccount(t, srv, "A", "0")
	b := createAccount(t, srv, "B", "0")

	rr := do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
		"from_account_id": a.ID, "to_account_id": b.ID, "amount": "10", "date": "2024-04-01",
	})
	mustStatus(t, rr, http.StatusCreated)
	leg := decode[transferResponse](t, rr).Debit

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		noUser     bool
		wantStatus int
		want       ErrorBody
	}{
		{
			name:       "missing user header",
			method:     http.MethodPost,
			path:       "/api/accounts",
			body:       map[string]any{"name": "X"},
			noUser:     true,
			wantStatus: http.StatusUnprocessableEntity,
			want:       ErrorBody{Field: "user_id"},
		},
		{
			name:       "malformed JSON",
			method:     http.MethodPost,
			path:       "/api/accounts",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			method:     http.MethodPost,
			path:       "/api/accounts",
			body:       `{"name":"X","colour":"red"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown account",
			method:     http.MethodGet,
			path:       "/api/accounts/nope/balance",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "zero amount",
			method:     http.MethodPost,
			path:       "/api/transactions",
			body:       map[string]any{"type": "expense", "amount": "0", "date": "2024-04-01", "account_id": a.ID},
			wantStatus: http.StatusUnprocessableEntity,
			want:       ErrorBody{Field: "amount"},
		},
		{
			name:       "bad type filter",
			method:     http.MethodGet,
			path:       "/api/transactions?type=gift",
			wantStatus: http.StatusUnprocessableEntity,
			want:       ErrorBody{Field: "type"},
		},
		{
			name:       "editing a transfer leg as a plain row",
			method:     http.MethodPut,
			path:       "/api/transactions/" + leg.ID,
			body:       map[string]any{"type": "income", "amount": "11", "date": "2024-04-01", "account_id": a.ID},
			wantStatus: http.StatusConflict,
			want:       ErrorBody{Invariant: core.InvariantTransferPair},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body bytes.Buffer
			switch v := tt.body.(type) {
			case nil:
			case string:
				body.WriteString(v)
			default:
				_ = json.NewEncoder(&body).Encode(v)
			}
			req := httptest.NewRequest(tt.method, tt.path, &body)
			if !tt.noUser {
				req.Header.Set(HeaderUserID, testUser)
			}
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, req)

			mustStatus(t, rr, tt.wantStatus)
			got := decode[ErrorBody](t, rr)
			if got.Error == "" {
				t.Errorf("error message is empty")
			}
			if got.Field != tt.want.Field || got.Invariant != tt.want.Invariant {
				t.Errorf("body = %+v, want field %q invariant %q", got, tt.want.Field, tt.want.Invariant)
			}
		})
	}
}

func TestSplitsReportSignedDelta(t *testing.T) {
	srv := newTestServer(t, Options{})
	a := createAccount(t, srv, "A", "0")
	var cats []core.Category
	for _, name := range []string{"Food", "Household"} {
		rr := do(t, srv, http.MethodPost, "/api/categories", map[string]any{"name": name})
		mustStatus(t, rr, http.StatusCreated)
		cats = append(cats, decode[core.Category](t, rr))
	}

	tests := []struct {
		name      string
		splits    []services.SplitInput
		wantDelta string
		wantMsg   string
	}{
		{
			name:      "under allocated",
			splits:    []services.SplitInput{{CategoryID: cats[0].ID, Amount: "60"}, {CategoryID: cats[1].ID, Amount: "30"}},
			wantDelta: "10.00",
			wantMsg:   "need",
		},
		{
			name:      "over allocated",
			splits:    []services.SplitInput{{CategoryID: cats[0].ID, Amount: "60"}, {CategoryID: cats[1].ID, Amount: "45"}},
			wantDelta: "-5.00",
			wantMsg:   "over by",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/splits/validate", map[string]any{"amount": "100", "splits": tt.splits})
			mustStatus(t, rr, http.StatusUnprocessableEntity)
			got := decode[ErrorBody](t, rr)
			if got.Field != "splits" || got.Delta != tt.wantDelta || !strings.HasPrefix(got.Error, tt.wantMsg) {
				t.Errorf("body = %+v, want delta %s and message starting %q", got, tt.wantDelta, tt.wantMsg)
			}
		})
	}

	rr := do(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "amount": "100", "date": "2024-04-02", "account_id": a.ID,
	})
	mustStatus(t, rr, http.StatusCreated)
	parent := decode[core.Transaction](t, rr)

	rr = do(t, srv, http.MethodPut, "/api/transactions/"+parent.ID+"/splits", splitsRequest{Splits: []services.SplitInput{
		{CategoryID: cats[0].ID, Amount: "60"}, {CategoryID: cats[1].ID, Amount: "40"},
	}})
	mustStatus(t, rr, http.StatusOK)
	replaced := decode[splitsResponse](t, rr)
	if !replaced.Transaction.IsSplit() || len(replaced.Splits) != 2 {
		t.Fatalf("replace splits = %+v", replaced)
	}
	var sum decimal.Decimal
	for _, s := range replaced.Splits {
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Errorf("split sum = %s, want 100", sum)
	}

	rr = do(t, srv, http.MethodDelete, "/api/transactions/"+parent.ID+"/splits?category_id="+cats[0].ID, nil)
	mustStatus(t, rr, http.StatusOK)
	if cleared := decode[splitsResponse](t, rr); cleared.Transaction.IsSplit() || len(cleared.Splits) != 0 {
		t.Errorf("clear splits = %+v", cleared)
	}
}

func TestGenerateRecurring(t *testing.T) {
	runs := &fakeRuns{}
	srv := newTestServer(t, Options{Runs: runs})
	a := createAccount(t, srv, "A", "0")

	rr := do(t, srv, http.MethodPost, "/api/rules", map[string]any{
		"name": "Rent", "amount": "800", "type": "expense", "frequency": "monthly",
		"start_date": "2024-02-01", "account_id": a.ID, "auto_generate": true,
	})
	mustStatus(t, rr, http.StatusCreated)

	rr = do(t, srv, http.MethodPost, "/api/recurring/generate?async=true&as_of=2024-04-01", nil)
	mustStatus(t, rr, http.StatusAccepted)
	if len(runs.requests) != 1 || runs.requests[0].UserID != testUser || runs.requests[0].AsOf != "2024-04-01" {
		t.Fatalf("queued requests = %+v", runs.requests)
	}

	rr = do(t, srv, http.MethodPost, "/api/recurring/generate?as_of=2024-04-01", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[generateResponse](t, rr); len(got.Created) != 3 {
		t.Errorf("created %d occurrences, want 3 (Feb, Mar, Apr)", len(got.Created))
	}

	rr = do(t, srv, http.MethodPost, "/api/recurring/generate?as_of=2024-04-01", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[generateResponse](t, rr); len(got.Created) != 0 {
		t.Errorf("second run created %v, want nothing", got.Created)
	}

	runs.err = errors.New("broker down")
	rr = do(t, srv, http.MethodPost, "/api/recurring/generate?async=true", nil)
	mustStatus(t, rr, http.StatusInternalServerError)
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitRPM: 2})

	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/api/categories", map[string]any{"name": "C" + string(rune('a'+i))})
		mustStatus(t, rr, http.StatusCreated)
	}
	rr := do(t, srv, http.MethodPost, "/api/categories", map[string]any{"name": "Cz"})
	mustStatus(t, rr, http.StatusTooManyRequests)

	// reads are not limited
	rr = do(t, srv, http.MethodGet, "/api/categories", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.Category](t, rr); len(got) != 2 {
		t.Errorf("categories = %d, want 2", len(got))
	}
}
