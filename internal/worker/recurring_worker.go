// Package worker consumes queued recurring generation requests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wealthflow/internal/amqp"
	"wealthflow/internal/core"
	"wealthflow/internal/services"
)

// RunConsumer delivers recurring run requests to a handler until ctx ends or
// the delivery stream breaks. *amqp.Client implements it.
type RunConsumer interface {
	ConsumeRecurringRuns(ctx context.Context, handler func(context.Context, *amqp.RecurringRunRequest) error) error
	Reconnect(ctx context.Context) error
}

// RecurringWorker generates due recurring transactions on request.
type RecurringWorker struct {
	generator    services.RecurringGenerator
	retryBackoff time.Duration
}

func NewRecurringWorker(generator services.RecurringGenerator) *RecurringWorker {
	return &RecurringWorker{
		generator:    generator,
		retryBackoff: 5 * time.Second,
	}
}

// HandleRunRequest generates the occurrences due up to the request's as_of
// date, or today when it carries none. A request that can never succeed is
// logged and acknowledged; store failures are returned for redelivery.
func (w *RecurringWorker) HandleRunRequest(ctx context.Context, req *amqp.RecurringRunRequest) error {
	asOf := w.generator.Today()
	if req.AsOf != "" {
		d, err := core.ParseDate(req.AsOf)
		if err != nil {
			slog.WarnContext(ctx, "Dropping recurring run request with invalid as_of",
				"user_id", req.UserID,
				"as_of", req.AsOf,
				"error", err)
			return nil
		}
		asOf = d
	}

	slog.InfoContext(ctx, "Processing recurring run request",
		"user_id", req.UserID,
		"as_of", asOf.String(),
		"requested_at", req.RequestedAt)

	created, err := w.generator.GenerateDueRecurring(ctx, req.UserID, asOf)
	if err != nil {
		if core.IsValidation(err) {
			slog.WarnContext(ctx, "Recurring run rejected", "user_id", req.UserID, "error", err)
			return nil
		}
		return fmt.Errorf("generate due recurring for %q: %w", req.UserID, err)
	}

	slog.InfoContext(ctx, "Recurring run complete",
		"user_id", req.UserID,
		"as_of", asOf.String(),
		"created", len(created))
	return nil
}

// Run consumes requests until ctx is cancelled, reconnecting and
// resubscribing whenever the stream breaks.
func (w *RecurringWorker) Run(ctx context.Context, consumer RunConsumer) error {
	for {
		err := consumer.ConsumeRecurringRuns(ctx, w.HandleRunRequest)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "Recurring run consumption stopped, reconnecting",
				"error", err,
				"backoff", w.retryBackoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.retryBackoff):
		}
		if err := consumer.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reconnect recurring run consumer: %w", err)
		}
	}
}
