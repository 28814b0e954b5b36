package storage

import (
	"context"

	"wealthflow/internal/core"
)

// Ports implemented by every ledger backend.
type (
	AccountStore interface {
		InsertAccount(ctx context.Context, a core.Account) error
		GetAccount(ctx context.Context, id string) (core.Account, error)
		UpdateAccount(ctx context.Context, a core.Account) error
		RemoveAccount(ctx context.Context, id string) error
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
	}

	TransactionStore interface {
		InsertTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		RemoveTransaction(ctx context.Context, id string) error
		// ListTransactions returns matching rows ordered by date, then id.
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	}

	SplitStore interface {
		InsertSplit(ctx context.Context, s core.Split) error
		// ListSplits returns the splits of the given parents, ordered by parent then id.
		ListSplits(ctx context.Context, transactionIDs ...string) ([]core.Split, error)
		RemoveSplits(ctx context.Context, transactionID string) error
	}

	RuleStore interface {
		InsertRule(ctx context.Context, r core.RecurringRule) error
		GetRule(ctx context.Context, id string) (core.RecurringRule, error)
		UpdateRule(ctx context.Context, r core.RecurringRule) error
		RemoveRule(ctx context.Context, id string) error
		ListRules(ctx context.Context, f RuleFilter) ([]core.RecurringRule, error)
	}

	BudgetStore interface {
		InsertBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		RemoveBudget(ctx context.Context, id string) error
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
	}

	GoalStore interface {
		InsertGoal(ctx context.Context, g core.Goal) error
		GetGoal(ctx context.Context, id string) (core.Goal, error)
		UpdateGoal(ctx context.Context, g core.Goal) error
		RemoveGoal(ctx context.Context, id string) error
		ListGoals(ctx context.Context, userID string) ([]core.Goal, error)

		InsertGoalItem(ctx context.Context, i core.GoalItem) error
		GetGoalItem(ctx context.Context, id string) (core.GoalItem, error)
		UpdateGoalItem(ctx context.Context, i core.GoalItem) error
		RemoveGoalItem(ctx context.Context, id string) error
		// ListGoalItems is ordered by sort order, then id.
		ListGoalItems(ctx context.Context, goalID string) ([]core.GoalItem, error)

		InsertQuote(ctx context.Context, q core.Quote) error
		GetQuote(ctx context.Context, id string) (core.Quote, error)
		UpdateQuote(ctx context.Context, q core.Quote) error
		RemoveQuote(ctx context.Context, id string) error
		ListQuotes(ctx context.Context, goalItemID string) ([]core.Quote, error)
	}

	TaxonomyStore interface {
		InsertCategory(ctx context.Context, c core.Category) error
		GetCategory(ctx context.Context, id string) (core.Category, error)
		RemoveCategory(ctx context.Context, id string) error
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)

		InsertMerchant(ctx context.Context, m core.Merchant) error
		GetMerchant(ctx context.Context, id string) (core.Merchant, error)
		RemoveMerchant(ctx context.Context, id string) error
		ListMerchants(ctx context.Context, userID string) ([]core.Merchant, error)

		// DetachCategory nulls category_id on transactions, splits, rules and
		// budgets. Display names are kept.
		DetachCategory(ctx context.Context, id string) error
		// DetachMerchant nulls merchant_id on transactions and rules.
		DetachMerchant(ctx context.Context, id string) error
		// DetachGoalItem nulls goal_item_id on transactions.
		DetachGoalItem(ctx context.Context, id string) error
	}

	// Ledger is the full set of row operations. Multi-row invariants are
	// enforced by the procedures in this package, never by a Ledger alone.
	Ledger interface {
		AccountStore
		TransactionStore
		SplitStore
		RuleStore
		BudgetStore
		GoalStore
		TaxonomyStore
	}

	// Store is a Ledger that can run a group of operations as one unit.
	Store interface {
		Ledger
		// Atomic runs fn against a transactional view. Nothing fn wrote is
		// visible if it returns an error. fn must only use the Ledger it is
		// given.
		Atomic(ctx context.Context, fn func(Ledger) error) error
		Ping(ctx context.Context) error
		Close() error
	}
)

// TransactionFilter selects transactions. Zero fields match everything.
type TransactionFilter struct {
	UserID     string
	AccountID  string
	Type       core.TransactionType
	CategoryID string
	GoalItemID string
	LinkedID   string
	RuleID     string
	From       core.Date
	To         core.Date
}

// Match applies the filter to a single row. Backends without a query engine
// use it directly.
func (f TransactionFilter) Match(t core.Transaction) bool {
	switch {
	case f.UserID != "" && t.UserID != f.UserID,
		f.AccountID != "" && t.AccountID != f.AccountID,
		f.Type != "" && t.Type != f.Type,
		f.CategoryID != "" && t.Category.ID() != f.CategoryID,
		f.GoalItemID != "" && t.GoalItemID != f.GoalItemID,
		f.LinkedID != "" && t.LinkedTransactionID != f.LinkedID,
		f.RuleID != "" && t.RecurringRuleID != f.RuleID,
		!f.From.IsZero() && t.Date.Before(f.From.Time),
		!f.To.IsZero() && t.Date.After(f.To.Time):
		return false
	}
	return true
}

// RuleFilter selects recurring rules.
type RuleFilter struct {
	UserID string
	// ActiveOnly keeps active auto-generating rules.
	ActiveOnly bool
	// DueBy keeps rules whose next occurrence is on or before the date.
	DueBy core.Date
}

func (f RuleFilter) Match(r core.RecurringRule) bool {
	switch {
	case f.UserID != "" && r.UserID != f.UserID,
		f.ActiveOnly && !(r.IsActive && r.AutoGenerate),
		!f.DueBy.IsZero() && r.NextOccurrence.After(f.DueBy.Time):
		return false
	}
	return true
}
