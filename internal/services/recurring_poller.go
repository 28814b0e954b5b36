package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wealthflow/internal/core"
)

// RecurringPollerConfig holds configuration for the recurring poller
type RecurringPollerConfig struct {
	// PollInterval is how often due rules are swept (default: 1h)
	PollInterval time.Duration
}

// DefaultRecurringPollerConfig returns sensible defaults
func DefaultRecurringPollerConfig() RecurringPollerConfig {
	return RecurringPollerConfig{
		PollInterval: time.Hour,
	}
}

// RecurringGenerator materializes due occurrences; an empty userID means
// every user. *LedgerService implements it.
type RecurringGenerator interface {
	GenerateDueRecurring(ctx context.Context, userID string, upTo core.Date) ([]string, error)
	Today() core.Date
}

// RecurringPoller periodically generates due recurring transactions for
// every user.
type RecurringPoller struct {
	generator RecurringGenerator
	config    RecurringPollerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecurringPoller creates a new recurring poller
func NewRecurringPoller(generator RecurringGenerator, config RecurringPollerConfig) *RecurringPoller {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRecurringPollerConfig().PollInterval
	}
	return &RecurringPoller{
		generator: generator,
		config:    config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *RecurringPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recurring poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring poller started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the poller and waits for the current sweep.
func (p *RecurringPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring poller stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring poller stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the poller is currently running
func (p *RecurringPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecurringPoller) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *RecurringPoller) sweep(ctx context.Context) {
	created, err := p.generator.GenerateDueRecurring(ctx, "", p.generator.Today())
	if err != nil {
		slog.ErrorContext(ctx, "Recurring sweep finished with errors", "created", len(created), "error", err)
		return
	}
	if len(created) > 0 {
		slog.InfoContext(ctx, "Recurring sweep complete", "created", len(created))
	}
}
