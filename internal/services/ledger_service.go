package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"wealthflow/internal/amqp"
	"wealthflow/internal/cache"
	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// EventPublisher receives an event after every committed mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService orchestrates ledger operations across the store, the balance
// cache and AMQP.
type LedgerService struct {
	store  storage.Store
	events EventPublisher
	today  func() core.Date

	splits    *SplitAllocator
	transfers *TransferCoordinator
	scheduler *RecurringScheduler
	balances  *BalanceResolver
	budgets   *BudgetAggregator
	goals     *GoalTracker
}

type Option func(*ledgerOptions)

type ledgerOptions struct {
	events EventPublisher
	cache  cache.Cache[decimal.Decimal]
	today  func() core.Date
}

// WithEvents publishes ledger events to p. Pass nothing rather than a nil
// client to disable publishing.
func WithEvents(p EventPublisher) Option {
	return func(o *ledgerOptions) { o.events = p }
}

// WithBalanceCache serves repeated balance reads from c.
func WithBalanceCache(c cache.Cache[decimal.Decimal]) Option {
	return func(o *ledgerOptions) { o.cache = c }
}

// WithClock overrides the source of today's date.
func WithClock(today func() core.Date) Option {
	return func(o *ledgerOptions) { o.today = today }
}

func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	o := ledgerOptions{today: core.Today}
	for _, opt := range opts {
		opt(&o)
	}

	balances := NewBalanceResolver(store, o.cache)
	return &LedgerService{
		store:     store,
		events:    o.events,
		today:     o.today,
		splits:    NewSplitAllocator(store),
		transfers: NewTransferCoordinator(store),
		scheduler: NewRecurringScheduler(store),
		balances:  balances,
		budgets:   NewBudgetAggregator(store),
		goals:     NewGoalTracker(store, balances),
	}
}

// Today returns the service's notion of the current date.
func (s *LedgerService) Today() core.Date { return s.today() }

// ComputeAccountBalance returns the current balance of an account.
func (s *LedgerService) ComputeAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.balances.ComputeAccountBalance(ctx, accountID)
}

// ComputeBudgetStatus reports the spend of a budget for the period that
// contains asOf.
func (s *LedgerService) ComputeBudgetStatus(ctx context.Context, budgetID string, asOf core.Date) (core.BudgetStatus, error) {
	return s.budgets.ComputeBudgetStatus(ctx, budgetID, asOf)
}

func (s *LedgerService) BudgetReport(ctx context.Context, userID string, asOf core.Date) ([]core.BudgetStatus, error) {
	return s.budgets.BudgetReport(ctx, userID, asOf)
}

func (s *LedgerService) ComputeGoalProgress(ctx context.Context, goalID string) (core.GoalProgress, error) {
	return s.goals.ComputeGoalProgress(ctx, goalID)
}

// ValidateSplit checks split rows against a parent amount without storing
// anything.
func (s *LedgerService) ValidateSplit(parentAmount decimal.Decimal, rows []SplitInput) ([]core.Allocation, error) {
	return ValidateSplit(parentAmount, rows)
}

func (s *LedgerService) ReplaceSplits(ctx context.Context, transactionID string, rows []SplitInput) (core.Transaction, []core.Split, error) {
	parent, splits, err := s.splits.ReplaceSplits(ctx, transactionID, rows)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	s.changed(ctx, amqp.EventSplitsReplaced, parent.UserID, parent.ID)
	return parent, splits, nil
}

func (s *LedgerService) ClearSplits(ctx context.Context, transactionID, categoryID string) (core.Transaction, error) {
	parent, err := s.splits.ClearSplits(ctx, transactionID, categoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, amqp.EventSplitsReplaced, parent.UserID, parent.ID)
	return parent, nil
}

func (s *LedgerService) Splits(ctx context.Context, transactionID string) ([]core.Split, error) {
	return s.splits.Splits(ctx, transactionID)
}

func (s *LedgerService) CreateTransfer(ctx context.Context, in TransferInput) (debit, credit core.Transaction, err error) {
	debit, credit, err = s.transfers.CreateTransfer(ctx, in)
	if err != nil {
		return debit, credit, err
	}
	s.changed(ctx, amqp.EventTransferCreated, in.UserID, debit.ID, credit.ID)
	return debit, credit, nil
}

func (s *LedgerService) UpdateTransfer(ctx context.Context, legID string, in TransferInput) (debit, credit core.Transaction, err error) {
	debit, credit, err = s.transfers.UpdateTransfer(ctx, legID, in)
	if err != nil {
		return debit, credit, err
	}
	s.changed(ctx, amqp.EventTransferUpdated, debit.UserID, debit.ID, credit.ID)
	return debit, credit, nil
}

func (s *LedgerService) DeleteTransfer(ctx context.Context, legID string) ([]string, error) {
	removed, err := s.transfers.DeleteTransfer(ctx, legID)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, amqp.EventTransferDeleted, "", removed...)
	return removed, nil
}

// GenerateDueRecurring materializes the due occurrences of a user's rules up
// to upTo. Transactions of rules that succeeded are kept even when others
// fail; the ids created are returned alongside the joined failures.
func (s *LedgerService) GenerateDueRecurring(ctx context.Context, userID string, upTo core.Date) ([]string, error) {
	created, err := s.scheduler.GenerateDue(ctx, userID, upTo)
	if len(created) > 0 {
		s.changed(ctx, amqp.EventRecurringGenerated, userID, created...)
	}
	return created, err
}

// SetRuleActive pauses or resumes a recurring rule.
func (s *LedgerService) SetRuleActive(ctx context.Context, ruleID string, active bool) (core.RecurringRule, error) {
	rule, err := s.scheduler.SetRuleActive(ctx, ruleID, active)
	if err != nil {
		return core.RecurringRule{}, err
	}
	s.changed(ctx, amqp.EventEntityChanged, rule.UserID, rule.ID)
	return rule, nil
}

func (s *LedgerService) SelectQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	q, err := s.goals.SelectQuote(ctx, quoteID)
	if err != nil {
		return core.Quote{}, err
	}
	s.changed(ctx, amqp.EventQuoteSelected, "", q.ID)
	return q, nil
}

func (s *LedgerService) DeselectQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	q, err := s.goals.DeselectQuote(ctx, quoteID)
	if err != nil {
		return core.Quote{}, err
	}
	s.changed(ctx, amqp.EventQuoteSelected, "", q.ID)
	return q, nil
}

// Ping reports whether the store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// changed runs after every committed mutation. Publishing is best effort:
// the mutation is already durable.
func (s *LedgerService) changed(ctx context.Context, kind, userID string, ids ...string) {
	s.balances.Invalidate()

	if s.events == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping ledger event", "kind", kind)
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(kind, userID, ids...)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", kind,
			"ids", ids,
			"error", err)
	}
}

// Close closes the store and the event publisher when it holds a connection.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.events.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
