package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports ready only while the ledger store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if err := s.ledger.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.runs != nil {
		checks["recurring_queue"] = "configured"
	} else {
		checks["recurring_queue"] = "inline"
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %d\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("rate_limit_active_clients", "Clients tracked by the rate limiter", "gauge", rateLimitMetrics.ClientCount)
	metric("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.started).Seconds()))
}
