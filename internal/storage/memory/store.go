// Package memory is a process-local ledger store for development and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// Store keeps the ledger in maps. Atomic units run against a copy of the
// maps that replaces the live data only when the unit succeeds; the store is
// locked for the duration of the unit.
type Store struct {
	*tables
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: newTables()}
}

func (s *Store) Atomic(_ context.Context, fn func(storage.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.cloneLocked()
	if err := fn(snap); err != nil {
		return err
	}
	s.replaceLocked(snap)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type tables struct {
	mu           sync.RWMutex
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	splits       map[string]core.Split
	rules        map[string]core.RecurringRule
	budgets      map[string]core.Budget
	goals        map[string]core.Goal
	items        map[string]core.GoalItem
	quotes       map[string]core.Quote
	categories   map[string]core.Category
	merchants    map[string]core.Merchant
}

func newTables() *tables {
	return &tables{
		accounts:     map[string]core.Account{},
		transactions: map[string]core.Transaction{},
		splits:       map[string]core.Split{},
		rules:        map[string]core.RecurringRule{},
		budgets:      map[string]core.Budget{},
		goals:        map[string]core.Goal{},
		items:        map[string]core.GoalItem{},
		quotes:       map[string]core.Quote{},
		categories:   map[string]core.Category{},
		merchants:    map[string]core.Merchant{},
	}
}

func (t *tables) cloneLocked() *tables {
	return &tables{
		accounts:     maps.Clone(t.accounts),
		transactions: maps.Clone(t.transactions),
		splits:       maps.Clone(t.splits),
		rules:        maps.Clone(t.rules),
		budgets:      maps.Clone(t.budgets),
		goals:        maps.Clone(t.goals),
		items:        maps.Clone(t.items),
		quotes:       maps.Clone(t.quotes),
		categories:   maps.Clone(t.categories),
		merchants:    maps.Clone(t.merchants),
	}
}

func (t *tables) replaceLocked(o *tables) {
	t.accounts = o.accounts
	t.transactions = o.transactions
	t.splits = o.splits
	t.rules = o.rules
	t.budgets = o.budgets
	t.goals = o.goals
	t.items = o.items
	t.quotes = o.quotes
	t.categories = o.categories
	t.merchants = o.merchants
}

// generic row helpers

func insert[T any](mu *sync.RWMutex, m map[string]T, id string, v T) error {
	mu.Lock()
	defer mu.Unlock()
	if id == "" {
		return fmt.Errorf("insert: %w", core.ErrMissingField)
	}
	if _, ok := m[id]; ok {
		return fmt.Errorf("insert %s: duplicate id", id)
	}
	m[id] = v
	return nil
}

func get[T any](mu *sync.RWMutex, m map[string]T, entity, id string) (T, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, core.NotFound(entity, id)
	}
	return v, nil
}

func update[T any](mu *sync.RWMutex, m map[string]T, entity, id string, v T) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[id]; !ok {
		return core.NotFound(entity, id)
	}
	m[id] = v
	return nil
}

func remove[T any](mu *sync.RWMutex, m map[string]T, entity, id string) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[id]; !ok {
		return core.NotFound(entity, id)
	}
	delete(m, id)
	return nil
}

func list[T any](mu *sync.RWMutex, m map[string]T, keep func(T) bool, less func(a, b T) int) []T {
	mu.RLock()
	defer mu.RUnlock()
	var out []T
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, less)
	return out
}

func copyDate(d *core.Date) *core.Date {
	if d == nil {
		return nil
	}
	return d.Ptr()
}

// Accounts

func (t *tables) InsertAccount(_ context.Context, a core.Account) error {
	return insert(&t.mu, t.accounts, a.ID, a)
}

func (t *tables) GetAccount(_ context.Context, id string) (core.Account, error) {
	return get(&t.mu, t.accounts, "account", id)
}

func (t *tables) UpdateAccount(_ context.Context, a core.Account) error {
	return update(&t.mu, t.accounts, "account", a.ID, a)
}

func (t *tables) RemoveAccount(_ context.Context, id string) error {
	return remove(&t.mu, t.accounts, "account", id)
}

func (t *tables) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	return list(&t.mu, t.accounts,
		func(a core.Account) bool { return a.UserID == userID },
		func(a, b core.Account) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) },
	), nil
}

// Transactions

func (t *tables) InsertTransaction(_ context.Context, tx core.Transaction) error {
	return insert(&t.mu, t.transactions, tx.ID, tx)
}

func (t *tables) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	return get(&t.mu, t.transactions, "transaction", id)
}

func (t *tables) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	return update(&t.mu, t.transactions, "transaction", tx.ID, tx)
}

func (t *tables) RemoveTransaction(_ context.Context, id string) error {
	return remove(&t.mu, t.transactions, "transaction", id)
}

func (t *tables) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return list(&t.mu, t.transactions, f.Match, byDateThenID), nil
}

func byDateThenID(a, b core.Transaction) int {
	return cmp.Or(a.Date.Compare(b.Date.Time), cmp.Compare(a.ID, b.ID))
}

// Splits

func (t *tables) InsertSplit(_ context.Context, s core.Split) error {
	return insert(&t.mu, t.splits, s.ID, s)
}

func (t *tables) ListSplits(_ context.Context, transactionIDs ...string) ([]core.Split, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	return list(&t.mu, t.splits,
		func(s core.Split) bool { return slices.Contains(transactionIDs, s.TransactionID) },
		func(a, b core.Split) int {
			return cmp.Or(cmp.Compare(a.TransactionID, b.TransactionID), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (t *tables) RemoveSplits(_ context.Context, transactionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	maps.DeleteFunc(t.splits, func(_ string, s core.Split) bool { return s.TransactionID == transactionID })
	return nil
}

// Recurring rules

func (t *tables) InsertRule(_ context.Context, r core.RecurringRule) error {
	r.EndDate = copyDate(r.EndDate)
	return insert(&t.mu, t.rules, r.ID, r)
}

func (t *tables) GetRule(_ context.Context, id string) (core.RecurringRule, error) {
	r, err := get(&t.mu, t.rules, "recurring rule", id)
	r.EndDate = copyDate(r.EndDate)
	return r, err
}

func (t *tables) UpdateRule(_ context.Context, r core.RecurringRule) error {
	r.EndDate = copyDate(r.EndDate)
	return update(&t.mu, t.rules, "recurring rule", r.ID, r)
}

func (t *tables) RemoveRule(_ context.Context, id string) error {
	return remove(&t.mu, t.rules, "recurring rule", id)
}

func (t *tables) ListRules(_ context.Context, f storage.RuleFilter) ([]core.RecurringRule, error) {
	out := list(&t.mu, t.rules, f.Match, func(a, b core.RecurringRule) int {
		return cmp.Or(a.NextOccurrence.Compare(b.NextOccurrence.Time), cmp.Compare(a.ID, b.ID))
	})
	for i := range out {
		out[i].EndDate = copyDate(out[i].EndDate)
	}
	return out, nil
}

// Budgets

func (t *tables) InsertBudget(_ context.Context, b core.Budget) error {
	return insert(&t.mu, t.budgets, b.ID, b)
}

func (t *tables) GetBudget(_ context.Context, id string) (core.Budget, error) {
	return get(&t.mu, t.budgets, "budget", id)
}

func (t *tables) UpdateBudget(_ context.Context, b core.Budget) error {
	return update(&t.mu, t.budgets, "budget", b.ID, b)
}

func (t *tables) RemoveBudget(_ context.Context, id string) error {
	return remove(&t.mu, t.budgets, "budget", id)
}

func (t *tables) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	return list(&t.mu, t.budgets,
		func(b core.Budget) bool { return b.UserID == userID },
		func(a, b core.Budget) int { return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.ID, b.ID)) },
	), nil
}

// Goals, items and quotes

func (t *tables) InsertGoal(_ context.Context, g core.Goal) error {
	g.TargetDate = copyDate(g.TargetDate)
	return insert(&t.mu, t.goals, g.ID, g)
}

func (t *tables) GetGoal(_ context.Context, id string) (core.Goal, error) {
	g, err := get(&t.mu, t.goals, "goal", id)
	g.TargetDate = copyDate(g.TargetDate)
	return g, err
}

func (t *tables) UpdateGoal(_ context.Context, g core.Goal) error {
	g.TargetDate = copyDate(g.TargetDate)
	return update(&t.mu, t.goals, "goal", g.ID, g)
}

func (t *tables) RemoveGoal(_ context.Context, id string) error {
	return remove(&t.mu, t.goals, "goal", id)
}

func (t *tables) ListGoals(_ context.Context, userID string) ([]core.Goal, error) {
	out := list(&t.mu, t.goals,
		func(g core.Goal) bool { return g.UserID == userID },
		func(a, b core.Goal) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) },
	)
	for i := range out {
		out[i].TargetDate = copyDate(out[i].TargetDate)
	}
	return out, nil
}

func (t *tables) InsertGoalItem(_ context.Context, i core.GoalItem) error {
	return insert(&t.mu, t.items, i.ID, i)
}

func (t *tables) GetGoalItem(_ context.Context, id string) (core.GoalItem, error) {
	return get(&t.mu, t.items, "goal item", id)
}

func (t *tables) UpdateGoalItem(_ context.Context, i core.GoalItem) error {
	return update(&t.mu, t.items, "goal item", i.ID, i)
}

func (t *tables) RemoveGoalItem(_ context.Context, id string) error {
	return remove(&t.mu, t.items, "goal item", id)
}

func (t *tables) ListGoalItems(_ context.Context, goalID string) ([]core.GoalItem, error) {
	return list(&t.mu, t.items,
		func(i core.GoalItem) bool { return i.GoalID == goalID },
		func(a, b core.GoalItem) int { return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.ID, b.ID)) },
	), nil
}

func (t *tables) InsertQuote(_ context.Context, q core.Quote) error {
	return insert(&t.mu, t.quotes, q.ID, q)
}

func (t *tables) GetQuote(_ context.Context, id string) (core.Quote, error) {
	return get(&t.mu, t.quotes, "quote", id)
}

func (t *tables) UpdateQuote(_ context.Context, q core.Quote) error {
	return update(&t.mu, t.quotes, "quote", q.ID, q)
}

func (t *tables) RemoveQuote(_ context.Context, id string) error {
	return remove(&t.mu, t.quotes, "quote", id)
}

func (t *tables) ListQuotes(_ context.Context, goalItemID string) ([]core.Quote, error) {
	return list(&t.mu, t.quotes,
		func(q core.Quote) bool { return q.GoalItemID == goalItemID },
		func(a, b core.Quote) int { return cmp.Compare(a.ID, b.ID) },
	), nil
}

// Categories and merchants

func (t *tables) InsertCategory(_ context.Context, c core.Category) error {
	return insert(&t.mu, t.categories, c.ID, c)
}

func (t *tables) GetCategory(_ context.Context, id string) (core.Category, error) {
	return get(&t.mu, t.categories, "category", id)
}

func (t *tables) RemoveCategory(_ context.Context, id string) error {
	return remove(&t.mu, t.categories, "category", id)
}

func (t *tables) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	return list(&t.mu, t.categories,
		func(c core.Category) bool { return c.UserID == userID },
		func(a, b core.Category) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) },
	), nil
}

func (t *tables) InsertMerchant(_ context.Context, m core.Merchant) error {
	return insert(&t.mu, t.merchants, m.ID, m)
}

func (t *tables) GetMerchant(_ context.Context, id string) (core.Merchant, error) {
	return get(&t.mu, t.merchants, "merchant", id)
}

func (t *tables) RemoveMerchant(_ context.Context, id string) error {
	return remove(&t.mu, t.merchants, "merchant", id)
}

func (t *tables) ListMerchants(_ context.Context, userID string) ([]core.Merchant, error) {
	return list(&t.mu, t.merchants,
		func(m core.Merchant) bool { return m.UserID == userID },
		func(a, b core.Merchant) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) },
	), nil
}

func (t *tables) DetachCategory(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tx := range t.transactions {
		if tx.Category.ID() == id {
			tx.Category = tx.Category.Detach()
			t.transactions[k] = tx
		}
	}
	for k, s := range t.splits {
		if s.CategoryID == id {
			s.CategoryID = ""
			t.splits[k] = s
		}
	}
	for k, r := range t.rules {
		if r.Category.ID() == id {
			r.Category = r.Category.Detach()
			t.rules[k] = r
		}
	}
	for k, b := range t.budgets {
		if b.CategoryID == id {
			b.CategoryID = ""
			t.budgets[k] = b
		}
	}
	return nil
}

func (t *tables) DetachMerchant(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tx := range t.transactions {
		if tx.MerchantID == id {
			tx.MerchantID = ""
			t.transactions[k] = tx
		}
	}
	for k, r := range t.rules {
		if r.MerchantID == id {
			r.MerchantID = ""
			t.rules[k] = r
		}
	}
	return nil
}

func (t *tables) DetachGoalItem(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tx := range t.transactions {
		if tx.GoalItemID == id {
			tx.GoalItemID = ""
			t.transactions[k] = tx
		}
	}
	return nil
}
