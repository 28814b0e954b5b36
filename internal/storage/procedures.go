package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
)

// Procedures are the multi-row mutations of the ledger. Each runs as exactly
// one Atomic unit and leaves the store untouched when it fails.

// CreateTransfer writes both legs of a transfer.
func CreateTransfer(ctx context.Context, s Store, debit, credit core.Transaction) error {
	if err := core.CheckTransferPair(debit, credit); err != nil {
		return err
	}
	return s.Atomic(ctx, func(l Ledger) error {
		if err := requireActiveAccounts(ctx, l, debit.AccountID, debit.ToAccountID); err != nil {
			return err
		}
		if err := l.InsertTransaction(ctx, debit); err != nil {
			return fmt.Errorf("insert debit leg: %w", err)
		}
		if err := l.InsertTransaction(ctx, credit); err != nil {
			return fmt.Errorf("insert credit leg: %w", err)
		}
		return nil
	})
}

// UpdateTransfer rewrites both legs of the transfer that legID belongs to.
// edit supplies the source (AccountID), destination (ToAccountID), amount,
// date, description and notes. It returns the stored debit and credit legs.
func UpdateTransfer(ctx context.Context, s Store, legID string, edit core.Transaction) (debit, credit core.Transaction, err error) {
	err = s.Atomic(ctx, func(l Ledger) error {
		oldDebit, oldCredit, err := loadTransferPair(ctx, l, legID)
		if err != nil {
			return err
		}
		if err := requireActiveAccounts(ctx, l, edit.AccountID, edit.ToAccountID); err != nil {
			return err
		}

		base := oldDebit
		base.AccountID = edit.AccountID
		base.ToAccountID = edit.ToAccountID
		base.Amount = edit.Amount
		base.Date = edit.Date
		base.Description = edit.Description
		base.Notes = edit.Notes
		debit, credit = core.TransferLegs(oldDebit.ID, oldCredit.ID, base)

		if err := l.UpdateTransaction(ctx, debit); err != nil {
			return fmt.Errorf("update debit leg: %w", err)
		}
		if err := l.UpdateTransaction(ctx, credit); err != nil {
			return fmt.Errorf("update credit leg: %w", err)
		}
		return nil
	})
	return debit, credit, err
}

// DeleteTransfer removes both legs of the transfer that legID belongs to and
// returns the removed ids.
func DeleteTransfer(ctx context.Context, s Store, legID string) ([]string, error) {
	var removed []string
	err := s.Atomic(ctx, func(l Ledger) error {
		var err error
		removed, err = removeTransferPair(ctx, l, legID)
		return err
	})
	return removed, err
}

// DeleteTransaction removes a transaction together with its splits, or both
// legs when it is part of a transfer. It returns the removed ids.
func DeleteTransaction(ctx context.Context, s Store, id string) ([]string, error) {
	var removed []string
	err := s.Atomic(ctx, func(l Ledger) error {
		t, err := l.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.IsTransfer() {
			removed, err = removeTransferPair(ctx, l, id)
			return err
		}
		if err := l.RemoveSplits(ctx, id); err != nil {
			return err
		}
		if err := l.RemoveTransaction(ctx, id); err != nil {
			return err
		}
		removed = []string{id}
		return nil
	})
	return removed, err
}

// ReplaceSplits swaps the split set of a transaction for splits and relabels
// the parent with the involved category names. The sum is checked again
// against the stored parent inside the unit.
func ReplaceSplits(ctx context.Context, s Store, transactionID string, splits []core.Split) (core.Transaction, error) {
	var parent core.Transaction
	err := s.Atomic(ctx, func(l Ledger) error {
		var err error
		parent, err = l.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if parent.IsTransfer() {
			return core.Inconsistent(core.InvariantSplitSum, "transfer leg %s cannot be split", transactionID)
		}
		if len(splits) == 0 {
			return core.Invalid("splits", core.ErrEmptySplit)
		}

		allocated := decimal.Zero
		names := make([]string, 0, len(splits))
		rows := make([]core.Split, len(splits))
		for i, sp := range splits {
			c, err := l.GetCategory(ctx, sp.CategoryID)
			if err != nil {
				return core.Invalid(fmt.Sprintf("splits[%d].category_id", i), err)
			}
			sp.Category = c.Name
			rows[i] = sp
			names = append(names, c.Name)
			allocated = allocated.Add(sp.Amount)
		}
		if !core.WithinTolerance(parent.Magnitude(), allocated) {
			return &core.SplitSumError{
				Expected:  parent.Magnitude(),
				Allocated: allocated,
				Delta:     parent.Magnitude().Sub(allocated),
			}
		}

		if err := l.RemoveSplits(ctx, transactionID); err != nil {
			return err
		}
		for _, sp := range rows {
			sp.TransactionID = transactionID
			if err := l.InsertSplit(ctx, sp); err != nil {
				return err
			}
		}
		parent.Category = core.SplitAcrossMany(names...)
		return l.UpdateTransaction(ctx, parent)
	})
	return parent, err
}

// ClearSplits removes every split of a transaction and files it under a
// single category again.
func ClearSplits(ctx context.Context, s Store, transactionID, categoryID string) (core.Transaction, error) {
	var parent core.Transaction
	err := s.Atomic(ctx, func(l Ledger) error {
		var err error
		parent, err = l.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if parent.IsTransfer() {
			return core.Inconsistent(core.InvariantSplitSum, "transfer leg %s cannot carry splits", transactionID)
		}
		c, err := l.GetCategory(ctx, categoryID)
		if err != nil {
			return core.Invalid("category_id", err)
		}
		if err := l.RemoveSplits(ctx, transactionID); err != nil {
			return err
		}
		parent.Category = core.SingleCategory(c.ID, c.Name)
		return l.UpdateTransaction(ctx, parent)
	})
	return parent, err
}

// MaterializeRule inserts the transactions generated by a rule and stores its
// advanced schedule. previous is the next occurrence the run started from; a
// rule that moved since then (another run, a pause) is left alone.
func MaterializeRule(ctx context.Context, s Store, previous core.Date, rule core.RecurringRule, generated []core.Transaction) error {
	return s.Atomic(ctx, func(l Ledger) error {
		stored, err := l.GetRule(ctx, rule.ID)
		if err != nil {
			return err
		}
		if !stored.IsActive {
			return core.Inconsistent(core.InvariantRuleSchedule, "rule %s was paused", rule.ID)
		}
		if !stored.NextOccurrence.Equal(previous.Time) {
			return core.Inconsistent(core.InvariantRuleSchedule,
				"rule %s moved from %s to %s during the run", rule.ID, previous, stored.NextOccurrence)
		}
		for _, t := range generated {
			if t.IsTransfer() && t.Direction == core.Outgoing {
				if err := requireActiveAccounts(ctx, l, t.AccountID, t.ToAccountID); err != nil {
					return err
				}
			}
			if err := l.InsertTransaction(ctx, t); err != nil {
				return fmt.Errorf("insert generated transaction: %w", err)
			}
		}
		return l.UpdateRule(ctx, rule)
	})
}

// SelectQuote marks quoteID as the chosen quote of its goal item and clears
// every other selection of that item.
func SelectQuote(ctx context.Context, s Store, quoteID string) (core.Quote, error) {
	var selected core.Quote
	err := s.Atomic(ctx, func(l Ledger) error {
		q, err := l.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		siblings, err := l.ListQuotes(ctx, q.GoalItemID)
		if err != nil {
			return err
		}
		for _, other := range siblings {
			if other.ID == q.ID || !other.IsSelected {
				continue
			}
			other.IsSelected = false
			if err := l.UpdateQuote(ctx, other); err != nil {
				return err
			}
		}
		q.IsSelected = true
		if err := l.UpdateQuote(ctx, q); err != nil {
			return err
		}
		selected = q
		return nil
	})
	return selected, err
}

// DeselectQuote clears the selection flag of a quote.
func DeselectQuote(ctx context.Context, s Store, quoteID string) (core.Quote, error) {
	var q core.Quote
	err := s.Atomic(ctx, func(l Ledger) error {
		var err error
		q, err = l.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		q.IsSelected = false
		return l.UpdateQuote(ctx, q)
	})
	return q, err
}

// DeleteCategory removes a category; rows that referenced it keep its name.
func DeleteCategory(ctx context.Context, s Store, id string) error {
	return s.Atomic(ctx, func(l Ledger) error {
		if _, err := l.GetCategory(ctx, id); err != nil {
			return err
		}
		if err := l.DetachCategory(ctx, id); err != nil {
			return err
		}
		return l.RemoveCategory(ctx, id)
	})
}

// DeleteMerchant removes a merchant and nulls every reference to it.
func DeleteMerchant(ctx context.Context, s Store, id string) error {
	return s.Atomic(ctx, func(l Ledger) error {
		if _, err := l.GetMerchant(ctx, id); err != nil {
			return err
		}
		if err := l.DetachMerchant(ctx, id); err != nil {
			return err
		}
		return l.RemoveMerchant(ctx, id)
	})
}

// DeleteGoalItem removes an item with its quotes; tagged transactions are
// kept and untagged.
func DeleteGoalItem(ctx context.Context, s Store, id string) error {
	return s.Atomic(ctx, func(l Ledger) error {
		return removeGoalItem(ctx, l, id)
	})
}

// DeleteGoal removes a goal with all of its items and quotes.
func DeleteGoal(ctx context.Context, s Store, id string) error {
	return s.Atomic(ctx, func(l Ledger) error {
		if _, err := l.GetGoal(ctx, id); err != nil {
			return err
		}
		items, err := l.ListGoalItems(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := removeGoalItem(ctx, l, item.ID); err != nil {
				return err
			}
		}
		return l.RemoveGoal(ctx, id)
	})
}

// DeleteAccount removes an account with no history. Accounts referenced by
// transactions or recurring rules are refused; linked goals are unlinked.
func DeleteAccount(ctx context.Context, s Store, id string) error {
	return s.Atomic(ctx, func(l Ledger) error {
		a, err := l.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		txs, err := l.ListTransactions(ctx, TransactionFilter{AccountID: id})
		if err != nil {
			return err
		}
		if len(txs) > 0 {
			return core.Inconsistent(core.InvariantAccountHistory,
				"account %s still has %d transactions", id, len(txs))
		}
		rules, err := l.ListRules(ctx, RuleFilter{UserID: a.UserID})
		if err != nil {
			return err
		}
		for _, r := range rules {
			if r.AccountID == id || r.ToAccountID == id {
				return core.Inconsistent(core.InvariantAccountHistory,
					"account %s is used by recurring rule %s", id, r.ID)
			}
		}
		goals, err := l.ListGoals(ctx, a.UserID)
		if err != nil {
			return err
		}
		for _, g := range goals {
			if g.LinkedAccountID != id {
				continue
			}
			g.LinkedAccountID = ""
			if err := l.UpdateGoal(ctx, g); err != nil {
				return err
			}
			slog.InfoContext(ctx, "Goal unlinked from deleted account", "goal_id", g.ID, "account_id", id)
		}
		return l.RemoveAccount(ctx, id)
	})
}

// loadTransferPair returns the debit and credit legs of the transfer legID
// belongs to, whichever leg legID is.
func loadTransferPair(ctx context.Context, l Ledger, legID string) (debit, credit core.Transaction, err error) {
	leg, err := l.GetTransaction(ctx, legID)
	if err != nil {
		return debit, credit, err
	}
	if !leg.IsTransfer() {
		return debit, credit, core.Inconsistent(core.InvariantTransferPair, "transaction %s is not a transfer", legID)
	}
	if leg.LinkedTransactionID == "" {
		return debit, credit, core.Inconsistent(core.InvariantTransferPair, "transfer leg %s has no mirror", legID)
	}
	mirror, err := l.GetTransaction(ctx, leg.LinkedTransactionID)
	if errors.Is(err, core.ErrNotFound) {
		return debit, credit, core.Inconsistent(core.InvariantTransferPair,
			"mirror %s of transfer leg %s is missing", leg.LinkedTransactionID, legID)
	}
	if err != nil {
		return debit, credit, err
	}
	if mirror.LinkedTransactionID != leg.ID {
		return debit, credit, core.Inconsistent(core.InvariantTransferPair,
			"mirror %s does not point back at %s", mirror.ID, legID)
	}
	if leg.Direction == core.Incoming {
		return mirror, leg, nil
	}
	return leg, mirror, nil
}

func removeTransferPair(ctx context.Context, l Ledger, legID string) ([]string, error) {
	debit, credit, err := loadTransferPair(ctx, l, legID)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{debit.ID, credit.ID} {
		if err := l.RemoveTransaction(ctx, id); err != nil {
			return nil, err
		}
	}
	return []string{debit.ID, credit.ID}, nil
}

func removeGoalItem(ctx context.Context, l Ledger, id string) error {
	if _, err := l.GetGoalItem(ctx, id); err != nil {
		return err
	}
	quotes, err := l.ListQuotes(ctx, id)
	if err != nil {
		return err
	}
	for _, q := range quotes {
		if err := l.RemoveQuote(ctx, q.ID); err != nil {
			return err
		}
	}
	if err := l.DetachGoalItem(ctx, id); err != nil {
		return err
	}
	return l.RemoveGoalItem(ctx, id)
}

func requireActiveAccounts(ctx context.Context, l Ledger, ids ...string) error {
	for _, id := range ids {
		a, err := l.GetAccount(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return core.Invalid("account_id", err)
		}
		if err != nil {
			return err
		}
		if !a.IsActive {
			return core.Invalid("account_id", fmt.Errorf("%w: %s", core.ErrAccountInactive, id))
		}
	}
	return nil
}
