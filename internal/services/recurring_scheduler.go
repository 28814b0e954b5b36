package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// RecurringScheduler turns due recurring rules into ledger transactions.
type RecurringScheduler struct {
	store storage.Store
}

// NewRecurringScheduler creates a new recurring scheduler
func NewRecurringScheduler(store storage.Store) *RecurringScheduler {
	return &RecurringScheduler{store: store}
}

// GenerateDue materializes every missed occurrence of the user's active rules
// up to and including upTo. Each rule is written in its own unit, so a failing
// rule does not stop the others; the failures are returned joined. It returns
// the ids of the transactions that were created.
func (s *RecurringScheduler) GenerateDue(ctx context.Context, userID string, upTo core.Date) ([]string, error) {
	if s.store == nil {
		return nil, fmt.Errorf("scheduler not properly initialized")
	}
	if err := upTo.Validate(); err != nil {
		return nil, core.Invalid("as_of", err)
	}

	rules, err := s.store.ListRules(ctx, storage.RuleFilter{UserID: userID, ActiveOnly: true, DueBy: upTo})
	if err != nil {
		return nil, fmt.Errorf("list due rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"user_id", userID,
		"due_rules", len(rules),
		"up_to", upTo.String())

	var (
		created []string
		errs    []error
	)
	for _, rule := range rules {
		ids, err := s.generateRule(ctx, rule, upTo)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring rule",
				"rule_id", rule.ID,
				"name", rule.Name,
				"error", err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		created = append(created, ids...)
	}

	slog.InfoContext(ctx, "Recurring rule processing complete",
		"user_id", userID,
		"created", len(created),
		"failed", len(errs))

	return created, errors.Join(errs...)
}

func (s *RecurringScheduler) generateRule(ctx context.Context, rule core.RecurringRule, upTo core.Date) ([]string, error) {
	due, next, err := DueOccurrences(rule, upTo)
	if err != nil {
		return nil, err
	}

	var (
		generated []core.Transaction
		ids       []string
	)
	for _, on := range due {
		for _, t := range Occurrence(rule, on) {
			generated = append(generated, t)
			ids = append(ids, t.ID)
		}
	}

	advanced := rule
	advanced.NextOccurrence = next
	if rule.Ended(next) {
		advanced.IsActive = false
	}

	if err := storage.MaterializeRule(ctx, s.store, rule.NextOccurrence, advanced, generated); err != nil {
		return nil, err
	}

	if len(due) > 0 {
		slog.InfoContext(ctx, "Created transactions from recurring rule",
			"rule_id", rule.ID,
			"occurrences", len(due),
			"frequency", rule.Frequency,
			"next_occurrence", next.String())
	}
	if !advanced.IsActive {
		slog.InfoContext(ctx, "Recurring rule reached its end date", "rule_id", rule.ID)
	}
	return ids, nil
}

// Occurrence builds the transactions a rule produces on one date: a single
// income or expense, or the two legs of a transfer.
func Occurrence(rule core.RecurringRule, on core.Date) []core.Transaction {
	base := core.Transaction{
		UserID:          rule.UserID,
		Amount:          rule.Type.Sign(rule.Amount),
		Category:        rule.Category,
		Date:            on,
		Type:            rule.Type,
		AccountID:       rule.AccountID,
		MerchantID:      rule.MerchantID,
		Description:     rule.Name,
		RecurringRuleID: rule.ID,
		AutoGenerated:   true,
	}
	if rule.Type != core.Transfer {
		base.ID = core.NewID()
		return []core.Transaction{base}
	}
	base.ToAccountID = rule.ToAccountID
	debit, credit := core.TransferLegs(core.NewID(), core.NewID(), base)
	return []core.Transaction{debit, credit}
}

// SetRuleActive pauses or resumes a rule. The next occurrence is frozen
// either way: resuming generates nothing, and the periods missed while
// paused are caught up by the next GenerateDue.
func (s *RecurringScheduler) SetRuleActive(ctx context.Context, ruleID string, active bool) (core.RecurringRule, error) {
	var rule core.RecurringRule
	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		var err error
		rule, err = l.GetRule(ctx, ruleID)
		if err != nil {
			return err
		}
		if rule.IsActive == active {
			return nil
		}
		rule.IsActive = active
		return l.UpdateRule(ctx, rule)
	})
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("set rule active: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule state changed",
		"rule_id", rule.ID,
		"active", rule.IsActive,
		"next_occurrence", rule.NextOccurrence.String())
	return rule, nil
}
