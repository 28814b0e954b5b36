package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wealthflow/internal/amqp"
	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// Plain entity operations. Anything that touches more than one row runs in a
// single store unit.

func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.ID = core.NewID()
	a.Name = strings.TrimSpace(a.Name)
	a.Balance = a.Balance.Round(2)
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	if a.Currency == "" {
		a.Currency = core.DefaultCurrency
	}
	a.IsActive = true
	if err := s.store.InsertAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, a.UserID, a.ID)
	return a, nil
}

// UpdateAccount edits an account. Changing the opening balance is the only
// way an account's balance moves without a transaction.
func (s *LedgerService) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	var updated core.Account
	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		stored, err := l.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		a.UserID = stored.UserID
		if err := a.Validate(); err != nil {
			return err
		}
		a.Name = strings.TrimSpace(a.Name)
		a.Balance = a.Balance.Round(2)
		if a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency)); a.Currency == "" {
			a.Currency = stored.Currency
		}
		updated = a
		return l.UpdateAccount(ctx, a)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, updated.UserID, updated.ID)
	return updated, nil
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	if err := storage.DeleteAccount(ctx, s.store, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// CreateTransaction records an income or an expense. The amount may be typed
// with either sign; it is stored negative for expenses and positive for
// income. Transfers and split categories have their own operations.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.Type == core.Transfer {
		return core.Transaction{}, core.Invalid("type", fmt.Errorf("%w: use the transfer operations", core.ErrInvalidType))
	}
	t.ID = core.NewID()
	t.Amount = t.Type.Sign(t.Amount.Round(2))
	t.Direction, t.ToAccountID, t.LinkedTransactionID = "", "", ""
	t.RecurringRuleID, t.AutoGenerated = "", false
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		if err := resolveReferences(ctx, l, &t); err != nil {
			return err
		}
		return l.InsertTransaction(ctx, t)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.changed(ctx, amqp.EventTransactionCreated, t.UserID, t.ID)
	return t, nil
}

// UpdateTransaction edits an income or expense. Transfer legs are edited
// through UpdateTransfer, and a split parent keeps its amount and category
// until its splits are replaced or cleared.
func (s *LedgerService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var updated core.Transaction
	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		stored, err := l.GetTransaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if stored.IsTransfer() {
			return core.Inconsistent(core.InvariantTransferPair, "transaction %s is a transfer leg; edit the transfer instead", t.ID)
		}
		if t.Type == core.Transfer {
			return core.Invalid("type", fmt.Errorf("%w: use the transfer operations", core.ErrInvalidType))
		}

		t.UserID = stored.UserID
		t.Amount = t.Type.Sign(t.Amount.Round(2))
		t.Direction, t.ToAccountID, t.LinkedTransactionID = "", "", ""
		t.RecurringRuleID, t.AutoGenerated = stored.RecurringRuleID, stored.AutoGenerated
		if err := t.Validate(); err != nil {
			return err
		}

		if stored.IsSplit() {
			if !t.Amount.Abs().Equal(stored.Amount.Abs()) {
				return core.Inconsistent(core.InvariantSplitSum,
					"transaction %s is split; replace its splits before changing the amount", t.ID)
			}
			t.Category = stored.Category
		}
		if !stored.IsSplit() {
			if err := resolveReferences(ctx, l, &t); err != nil {
				return err
			}
		} else if err := resolveAccounts(ctx, l, &t); err != nil {
			return err
		}
		updated = t
		return l.UpdateTransaction(ctx, t)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.changed(ctx, amqp.EventTransactionUpdated, updated.UserID, updated.ID)
	return updated, nil
}

// DeleteTransaction removes a transaction with its splits, or both legs of a
// transfer. It returns the removed ids.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) ([]string, error) {
	removed, err := storage.DeleteTransaction(ctx, s.store, id)
	if err != nil {
		return nil, fmt.Errorf("delete transaction: %w", err)
	}
	s.changed(ctx, amqp.EventTransactionDeleted, "", removed...)
	return removed, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// CreateRule stores a recurring rule. Its first occurrence is the start date
// unless one is given; new rules start active.
func (s *LedgerService) CreateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	r.ID = core.NewID()
	r.Name = strings.TrimSpace(r.Name)
	r.Amount = r.Amount.Abs().Round(2)
	if r.NextOccurrence.IsZero() {
		r.NextOccurrence = r.StartDate
	}
	r.IsActive = true
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		if err := resolveRuleReferences(ctx, l, &r); err != nil {
			return err
		}
		return l.InsertRule(ctx, r)
	})
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, r.UserID, r.ID)
	return r, nil
}

// UpdateRule edits a rule's template. The schedule position and the active
// flag are kept; use SetRuleActive to pause or resume.
func (s *LedgerService) UpdateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	var updated core.RecurringRule
	err := s.store.Atomic(ctx, func(l storage.Ledger) error {
		stored, err := l.GetRule(ctx, r.ID)
		if err != nil {
			return err
		}
		r.UserID = stored.UserID
		r.Name = strings.TrimSpace(r.Name)
		r.Amount = r.Amount.Abs().Round(2)
		r.StartDate = stored.StartDate
		r.NextOccurrence = stored.NextOccurrence
		r.IsActive = stored.IsActive
		if err := r.Validate(); err != nil {
			return err
		}
		if err := resolveRuleReferences(ctx, l, &r); err != nil {
			return err
		}
		updated = r
		return l.UpdateRule(ctx, r)
	})
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update rule: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, updated.UserID, updated.ID)
	return updated, nil
}

// DeleteRule removes a rule. Transactions it generated are kept.
func (s *LedgerService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.RemoveRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) GetRule(ctx context.Context, id string) (core.RecurringRule, error) {
	return s.store.GetRule(ctx, id)
}

func (s *LedgerService) ListRules(ctx context.Context, userID string) ([]core.RecurringRule, error) {
	return s.store.ListRules(ctx, storage.RuleFilter{UserID: userID})
}

func (s *LedgerService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = core.NewID()
	b.Amount = b.Amount.Round(2)
	b.Category = strings.TrimSpace(b.Category)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := resolveBudgetCategory(ctx, s.store, &b); err != nil {
		return core.Budget{}, err
	}
	if err := s.store.InsertBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, b.UserID, b.ID)
	return b, nil
}

func (s *LedgerService) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	stored, err := s.store.GetBudget(ctx, b.ID)
	if err != nil {
		return core.Budget{}, err
	}
	b.UserID = stored.UserID
	b.Amount = b.Amount.Round(2)
	b.Category = strings.TrimSpace(b.Category)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := resolveBudgetCategory(ctx, s.store, &b); err != nil {
		return core.Budget{}, err
	}
	if err := s.store.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, b.UserID, b.ID)
	return b, nil
}

func (s *LedgerService) DeleteBudget(ctx context.Context, id string) error {
	if err := s.store.RemoveBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, userID)
}

func (s *LedgerService) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	g.ID = core.NewID()
	g.Name = strings.TrimSpace(g.Name)
	g.TargetAmount = g.TargetAmount.Round(2)
	g.CurrentAmount = g.CurrentAmount.Round(2)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if err := requireAccount(ctx, s.store, "linked_account_id", g.LinkedAccountID); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.InsertGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, g.UserID, g.ID)
	return g, nil
}

func (s *LedgerService) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	stored, err := s.store.GetGoal(ctx, g.ID)
	if err != nil {
		return core.Goal{}, err
	}
	g.UserID = stored.UserID
	g.Name = strings.TrimSpace(g.Name)
	g.TargetAmount = g.TargetAmount.Round(2)
	g.CurrentAmount = g.CurrentAmount.Round(2)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if err := requireAccount(ctx, s.store, "linked_account_id", g.LinkedAccountID); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, g.UserID, g.ID)
	return g, nil
}

// DeleteGoal removes a goal with its items and quotes.
func (s *LedgerService) DeleteGoal(ctx context.Context, id string) error {
	if err := storage.DeleteGoal(ctx, s.store, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	return s.store.ListGoals(ctx, userID)
}

func (s *LedgerService) CreateGoalItem(ctx context.Context, i core.GoalItem) (core.GoalItem, error) {
	i.ID = core.NewID()
	i.Name = strings.TrimSpace(i.Name)
	i.BudgetAmount = i.BudgetAmount.Round(2)
	if i.Status == "" {
		i.Status = core.ItemPlanned
	}
	if err := i.Validate(); err != nil {
		return core.GoalItem{}, err
	}
	goal, err := s.store.GetGoal(ctx, i.GoalID)
	if errors.Is(err, core.ErrNotFound) {
		return core.GoalItem{}, core.Invalid("goal_id", err)
	}
	if err != nil {
		return core.GoalItem{}, err
	}
	if err := s.store.InsertGoalItem(ctx, i); err != nil {
		return core.GoalItem{}, fmt.Errorf("create goal item: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, goal.UserID, i.ID)
	return i, nil
}

func (s *LedgerService) UpdateGoalItem(ctx context.Context, i core.GoalItem) (core.GoalItem, error) {
	stored, err := s.store.GetGoalItem(ctx, i.ID)
	if err != nil {
		return core.GoalItem{}, err
	}
	i.GoalID = stored.GoalID
	i.Name = strings.TrimSpace(i.Name)
	i.BudgetAmount = i.BudgetAmount.Round(2)
	if i.Status == "" {
		i.Status = stored.Status
	}
	if err := i.Validate(); err != nil {
		return core.GoalItem{}, err
	}
	if err := s.store.UpdateGoalItem(ctx, i); err != nil {
		return core.GoalItem{}, fmt.Errorf("update goal item: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", i.ID)
	return i, nil
}

// DeleteGoalItem removes an item and its quotes and untags its transactions.
func (s *LedgerService) DeleteGoalItem(ctx context.Context, id string) error {
	if err := storage.DeleteGoalItem(ctx, s.store, id); err != nil {
		return fmt.Errorf("delete goal item: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

// CreateQuote adds an unselected quote to a goal item.
func (s *LedgerService) CreateQuote(ctx context.Context, q core.Quote) (core.Quote, error) {
	q.ID = core.NewID()
	q.Vendor = strings.TrimSpace(q.Vendor)
	q.Amount = q.Amount.Round(2)
	q.IsSelected = false
	if err := q.Validate(); err != nil {
		return core.Quote{}, err
	}
	if _, err := s.store.GetGoalItem(ctx, q.GoalItemID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Quote{}, core.Invalid("goal_item_id", err)
		}
		return core.Quote{}, err
	}
	if err := s.store.InsertQuote(ctx, q); err != nil {
		return core.Quote{}, fmt.Errorf("create quote: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", q.ID)
	return q, nil
}

func (s *LedgerService) DeleteQuote(ctx context.Context, id string) error {
	if err := s.store.RemoveQuote(ctx, id); err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) ListQuotes(ctx context.Context, goalItemID string) ([]core.Quote, error) {
	return s.store.ListQuotes(ctx, goalItemID)
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = core.NewID()
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.InsertCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, c.UserID, c.ID)
	return c, nil
}

// DeleteCategory removes a category. Transactions, splits, rules and budgets
// that used it keep its name.
func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	if err := storage.DeleteCategory(ctx, s.store, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return s.store.ListCategories(ctx, userID)
}

func (s *LedgerService) CreateMerchant(ctx context.Context, m core.Merchant) (core.Merchant, error) {
	m.ID = core.NewID()
	m.Name = strings.TrimSpace(m.Name)
	if err := m.Validate(); err != nil {
		return core.Merchant{}, err
	}
	if err := s.store.InsertMerchant(ctx, m); err != nil {
		return core.Merchant{}, fmt.Errorf("create merchant: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, m.UserID, m.ID)
	return m, nil
}

func (s *LedgerService) DeleteMerchant(ctx context.Context, id string) error {
	if err := storage.DeleteMerchant(ctx, s.store, id); err != nil {
		return fmt.Errorf("delete merchant: %w", err)
	}
	s.changed(ctx, amqp.EventEntityChanged, "", id)
	return nil
}

func (s *LedgerService) ListMerchants(ctx context.Context, userID string) ([]core.Merchant, error) {
	return s.store.ListMerchants(ctx, userID)
}

// resolveCategory turns a category given by id into a single-category ref
// carrying the current name. Named refs pass through.
func resolveCategory(ctx context.Context, l storage.Ledger, ref core.CategoryRef) (core.CategoryRef, error) {
	if ref.IsSplit() {
		return core.CategoryRef{}, core.Invalid("category", core.ErrSplitCategory)
	}
	if ref.ID() == "" {
		return ref, nil
	}
	c, err := l.GetCategory(ctx, ref.ID())
	if errors.Is(err, core.ErrNotFound) {
		return core.CategoryRef{}, core.Invalid("category_id", err)
	}
	if err != nil {
		return core.CategoryRef{}, err
	}
	return core.SingleCategory(c.ID, c.Name), nil
}

func resolveReferences(ctx context.Context, l storage.Ledger, t *core.Transaction) error {
	ref, err := resolveCategory(ctx, l, t.Category)
	if err != nil {
		return err
	}
	t.Category = ref
	return resolveAccounts(ctx, l, t)
}

func resolveAccounts(ctx context.Context, l storage.Ledger, t *core.Transaction) error {
	if err := requireAccount(ctx, l, "account_id", t.AccountID); err != nil {
		return err
	}
	if t.MerchantID != "" {
		if _, err := l.GetMerchant(ctx, t.MerchantID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.Invalid("merchant_id", err)
			}
			return err
		}
	}
	if t.GoalItemID != "" {
		if _, err := l.GetGoalItem(ctx, t.GoalItemID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.Invalid("goal_item_id", err)
			}
			return err
		}
	}
	return nil
}

func resolveRuleReferences(ctx context.Context, l storage.Ledger, r *core.RecurringRule) error {
	ref, err := resolveCategory(ctx, l, r.Category)
	if err != nil {
		return err
	}
	r.Category = ref
	if err := requireAccount(ctx, l, "account_id", r.AccountID); err != nil {
		return err
	}
	if r.Type == core.Transfer {
		if err := requireAccount(ctx, l, "to_account_id", r.ToAccountID); err != nil {
			return err
		}
	} else {
		r.ToAccountID = ""
	}
	if r.MerchantID != "" {
		if _, err := l.GetMerchant(ctx, r.MerchantID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.Invalid("merchant_id", err)
			}
			return err
		}
	}
	return nil
}

// resolveBudgetCategory fills the budget's category name from its id.
func resolveBudgetCategory(ctx context.Context, l storage.Ledger, b *core.Budget) error {
	if b.CategoryID == "" {
		return nil
	}
	c, err := l.GetCategory(ctx, b.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid("category_id", err)
	}
	if err != nil {
		return err
	}
	b.Category = c.Name
	return nil
}

// requireAccount checks that an optional account reference exists.
func requireAccount(ctx context.Context, l storage.Ledger, field, id string) error {
	if id == "" {
		return nil
	}
	_, err := l.GetAccount(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid(field, err)
	}
	return err
}
