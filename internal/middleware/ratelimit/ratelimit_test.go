package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 2})
	defer rl.Stop()

	now := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request in the window should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other clients have their own window")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("window should reset after a minute")
	}
	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestLimiterDefaultsAndCleanup(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	if rl.requestsPerMinute != 60 || rl.cleanupInterval != 5*time.Minute {
		t.Errorf("defaults = %d/%v", rl.requestsPerMinute, rl.cleanupInterval)
	}

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("stale")
	now = now.Add(11 * time.Minute)
	rl.Allow("fresh")
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Errorf("expected only the fresh client, have %d", rl.ActiveClients())
	}
	rl.Stop()
	rl.Stop()
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	defer rl.Stop()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	onlyPosts := func(r *http.Request) bool { return r.Method == http.MethodPost }
	h := rl.Middleware(func(*http.Request) string { return "client" }, onlyPosts, nil)(next)

	codes := []int{}
	for _, method := range []string{http.MethodPost, http.MethodPost, http.MethodGet} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Error("limited response should carry Retry-After")
		}
	}

	want := []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
}
