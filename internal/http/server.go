package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"wealthflow/internal/amqp"
	"wealthflow/internal/log"
	"wealthflow/internal/middleware/ratelimit"
	"wealthflow/internal/middleware/security"
	"wealthflow/internal/middleware/trace"
	"wealthflow/internal/services"
)

// RunQueue accepts recurring generation requests for the background worker.
type RunQueue interface {
	PublishRecurringRun(ctx context.Context, req *amqp.RecurringRunRequest) error
}

// Options configures the API server. Zero values are usable.
type Options struct {
	// RateLimitRPM caps mutating requests per user (or client IP) per minute.
	RateLimitRPM int
	// Runs queues ?async=true recurring generation; nil runs it inline.
	Runs   RunQueue
	Logger *log.Logger
}

// Server is the ledger JSON API.
type Server struct {
	http.Server
	ledger *services.LedgerService
	runs   RunQueue

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		ledger:           ledger,
		runs:             opts.Runs,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.rateKey, isMutation, nil)(handler)
	handler = log.RequestMiddleware(trace.RequestID, userIDFrom)(handler)
	handler = log.Middleware(logger.WithComponent(log.ComponentHTTP))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("GET /api/accounts/{id}/balance", s.handleAccountBalance)

	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/merchants", s.handleCreateMerchant)
	mux.HandleFunc("GET /api/merchants", s.handleListMerchants)
	mux.HandleFunc("DELETE /api/merchants/{id}", s.handleDeleteMerchant)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/transactions/{id}/splits", s.handleListSplits)
	mux.HandleFunc("PUT /api/transactions/{id}/splits", s.handleReplaceSplits)
	mux.HandleFunc("DELETE /api/transactions/{id}/splits", s.handleClearSplits)
	mux.HandleFunc("POST /api/splits/validate", s.handleValidateSplit)

	mux.HandleFunc("POST /api/transfers", s.handleCreateTransfer)
	mux.HandleFunc("PUT /api/transfers/{id}", s.handleUpdateTransfer)
	mux.HandleFunc("DELETE /api/transfers/{id}", s.handleDeleteTransfer)

	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("GET /api/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/rules/{id}/pause", s.handleSetRuleActive(false))
	mux.HandleFunc("POST /api/rules/{id}/resume", s.handleSetRuleActive(true))
	mux.HandleFunc("POST /api/recurring/generate", s.handleGenerateRecurring)

	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/budgets/report", s.handleBudgetReport)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)
	mux.HandleFunc("GET /api/budgets/{id}/status", s.handleBudgetStatus)

	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("GET /api/goals/{id}/progress", s.handleGoalProgress)
	mux.HandleFunc("POST /api/goals/{id}/items", s.handleCreateGoalItem)
	mux.HandleFunc("PUT /api/goal-items/{id}", s.handleUpdateGoalItem)
	mux.HandleFunc("DELETE /api/goal-items/{id}", s.handleDeleteGoalItem)
	mux.HandleFunc("POST /api/goal-items/{id}/quotes", s.handleCreateQuote)
	mux.HandleFunc("GET /api/goal-items/{id}/quotes", s.handleListQuotes)
	mux.HandleFunc("DELETE /api/quotes/{id}", s.handleDeleteQuote)
	mux.HandleFunc("PUT /api/quotes/{id}/select", s.handleSelectQuote)
	mux.HandleFunc("DELETE /api/quotes/{id}/select", s.handleDeselectQuote)
}

// rateKey limits per ledger user, falling back to the client address.
func (s *Server) rateKey(r *http.Request) string {
	if id := userIDFrom(r); id != "" {
		return "user:" + id
	}
	return "ip:" + s.securityDetector.ExtractClientIP(r)
}

func isMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
