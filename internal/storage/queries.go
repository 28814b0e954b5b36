package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wealthflow/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements Ledger on top of a DBTX. The SQL is portable between
// SQLite and MySQL.
type queries struct {
	db DBTX
}

var _ Ledger = (*queries)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableDate(d *core.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func optionalDate(d core.Date) *core.Date {
	if d.IsZero() {
		return nil
	}
	return &d
}

// execOne runs a single-row statement and reports a missing row as NotFound.
func (q *queries) execOne(ctx context.Context, entity, id, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write %s %s: %w", entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

func (q *queries) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(entity, id)
	}
	return fmt.Errorf("get %s %s: %w", entity, id, err)
}

// Accounts

const accountColumns = `id, user_id, name, type, balance, currency, is_active`

func scanAccount(s rowScanner) (core.Account, error) {
	var a core.Account
	err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.Currency, &a.IsActive)
	return a, err
}

func (q *queries) InsertAccount(ctx context.Context, a core.Account) error {
	return q.exec(ctx, "insert account",
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Type, a.Balance, a.Currency, a.IsActive)
}

func (q *queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return core.Account{}, notFoundOr(err, "account", id)
	}
	return a, nil
}

func (q *queries) UpdateAccount(ctx context.Context, a core.Account) error {
	return q.execOne(ctx, "account", a.ID,
		`UPDATE accounts SET name = ?, type = ?, balance = ?, currency = ?, is_active = ? WHERE id = ?`,
		a.Name, a.Type, a.Balance, a.Currency, a.IsActive, a.ID)
}

func (q *queries) RemoveAccount(ctx context.Context, id string) error {
	return q.execOne(ctx, "account", id, `DELETE FROM accounts WHERE id = ?`, id)
}

func (q *queries) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

// Transactions

const transactionColumns = `id, user_id, amount, category, category_id, is_split, date, type,
	account_id, to_account_id, linked_transaction_id, transfer_direction, merchant_id,
	goal_item_id, description, notes, recurring_rule_id, auto_generated`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                                      core.Transaction
		category                               string
		isSplit                                bool
		categoryID, account, toAccount, linked sql.NullString
		direction, merchant, goalItem, ruleID  sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &t.Amount, &category, &categoryID, &isSplit, &t.Date, &t.Type,
		&account, &toAccount, &linked, &direction, &merchant,
		&goalItem, &t.Description, &t.Notes, &ruleID, &t.AutoGenerated)
	if err != nil {
		return t, err
	}
	t.Category = core.CategoryFromColumns(category, categoryID.String, isSplit)
	t.AccountID = account.String
	t.ToAccountID = toAccount.String
	t.LinkedTransactionID = linked.String
	t.Direction = core.TransferDirection(direction.String)
	t.MerchantID = merchant.String
	t.GoalItemID = goalItem.String
	t.RecurringRuleID = ruleID.String
	return t, nil
}

func transactionArgs(t core.Transaction) []any {
	category, categoryID, isSplit := t.Category.Columns()
	return []any{
		t.UserID, t.Amount, category, nullable(categoryID), isSplit, t.Date, string(t.Type),
		nullable(t.AccountID), nullable(t.ToAccountID), nullable(t.LinkedTransactionID),
		nullable(string(t.Direction)), nullable(t.MerchantID), nullable(t.GoalItemID),
		t.Description, t.Notes, nullable(t.RecurringRuleID), t.AutoGenerated,
	}
}

func (q *queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	args := append([]any{t.ID}, transactionArgs(t)...)
	return q.exec(ctx, "insert transaction",
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
}

func (q *queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, notFoundOr(err, "transaction", id)
	}
	return t, nil
}

func (q *queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	args := append(transactionArgs(t), t.ID)
	return q.execOne(ctx, "transaction", t.ID,
		`UPDATE transactions SET user_id = ?, amount = ?, category = ?, category_id = ?, is_split = ?,
		date = ?, type = ?, account_id = ?, to_account_id = ?, linked_transaction_id = ?,
		transfer_direction = ?, merchant_id = ?, goal_item_id = ?, description = ?, notes = ?,
		recurring_rule_id = ?, auto_generated = ?
		WHERE id = ?`, args...)
}

func (q *queries) RemoveTransaction(ctx context.Context, id string) error {
	return q.execOne(ctx, "transaction", id, `DELETE FROM transactions WHERE id = ?`, id)
}

func (q *queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.AccountID != "" {
		add("account_id = ?", f.AccountID)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.CategoryID != "" {
		add("category_id = ?", f.CategoryID)
	}
	if f.GoalItemID != "" {
		add("goal_item_id = ?", f.GoalItemID)
	}
	if f.LinkedID != "" {
		add("linked_transaction_id = ?", f.LinkedID)
	}
	if f.RuleID != "" {
		add("recurring_rule_id = ?", f.RuleID)
	}
	if !f.From.IsZero() {
		add("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("date <= ?", f.To)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

// Splits

const splitColumns = `id, transaction_id, category_id, category, amount, percentage, notes`

func scanSplit(s rowScanner) (core.Split, error) {
	var (
		sp         core.Split
		categoryID sql.NullString
	)
	err := s.Scan(&sp.ID, &sp.TransactionID, &categoryID, &sp.Category, &sp.Amount, &sp.Percentage, &sp.Notes)
	sp.CategoryID = categoryID.String
	return sp, err
}

func (q *queries) InsertSplit(ctx context.Context, s core.Split) error {
	return q.exec(ctx, "insert split",
		`INSERT INTO splits (`+splitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TransactionID, nullable(s.CategoryID), s.Category, s.Amount, s.Percentage, s.Notes)
}

func (q *queries) ListSplits(ctx context.Context, transactionIDs ...string) ([]core.Split, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(transactionIDs)), ", ")
	args := make([]any, len(transactionIDs))
	for i, id := range transactionIDs {
		args[i] = id
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+splitColumns+` FROM splits WHERE transaction_id IN (`+placeholders+`)
		ORDER BY transaction_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	return collect(rows, scanSplit)
}

func (q *queries) RemoveSplits(ctx context.Context, transactionID string) error {
	return q.exec(ctx, "remove splits", `DELETE FROM splits WHERE transaction_id = ?`, transactionID)
}

// Recurring rules

const ruleColumns = `id, user_id, name, amount, category, category_id, type, frequency,
	start_date, next_occurrence, day_of_month, end_date, is_active, auto_generate,
	account_id, to_account_id, merchant_id`

func scanRule(s rowScanner) (core.RecurringRule, error) {
	var (
		r                                          core.RecurringRule
		category                                   string
		categoryID, account, toAccount, merchantID sql.NullString
		end                                        core.Date
	)
	err := s.Scan(&r.ID, &r.UserID, &r.Name, &r.Amount, &category, &categoryID, &r.Type, &r.Frequency,
		&r.StartDate, &r.NextOccurrence, &r.DayOfMonth, &end, &r.IsActive, &r.AutoGenerate,
		&account, &toAccount, &merchantID)
	if err != nil {
		return r, err
	}
	r.Category = core.CategoryFromColumns(category, categoryID.String, false)
	r.EndDate = optionalDate(end)
	r.AccountID = account.String
	r.ToAccountID = toAccount.String
	r.MerchantID = merchantID.String
	return r, nil
}

func ruleArgs(r core.RecurringRule) []any {
	category, categoryID, _ := r.Category.Columns()
	return []any{
		r.UserID, r.Name, r.Amount, category, nullable(categoryID), string(r.Type), string(r.Frequency),
		r.StartDate, r.NextOccurrence, r.DayOfMonth, nullableDate(r.EndDate), r.IsActive, r.AutoGenerate,
		nullable(r.AccountID), nullable(r.ToAccountID), nullable(r.MerchantID),
	}
}

func (q *queries) InsertRule(ctx context.Context, r core.RecurringRule) error {
	args := append([]any{r.ID}, ruleArgs(r)...)
	return q.exec(ctx, "insert recurring rule",
		`INSERT INTO recurring_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
}

func (q *queries) GetRule(ctx context.Context, id string) (core.RecurringRule, error) {
	r, err := scanRule(q.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id))
	if err != nil {
		return core.RecurringRule{}, notFoundOr(err, "recurring rule", id)
	}
	return r, nil
}

func (q *queries) UpdateRule(ctx context.Context, r core.RecurringRule) error {
	args := append(ruleArgs(r), r.ID)
	return q.execOne(ctx, "recurring rule", r.ID,
		`UPDATE recurring_rules SET user_id = ?, name = ?, amount = ?, category = ?, category_id = ?,
		type = ?, frequency = ?, start_date = ?, next_occurrence = ?, day_of_month = ?, end_date = ?,
		is_active = ?, auto_generate = ?, account_id = ?, to_account_id = ?, merchant_id = ?
		WHERE id = ?`, args...)
}

func (q *queries) RemoveRule(ctx context.Context, id string) error {
	return q.execOne(ctx, "recurring rule", id, `DELETE FROM recurring_rules WHERE id = ?`, id)
}

func (q *queries) ListRules(ctx context.Context, f RuleFilter) ([]core.RecurringRule, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = 1 AND auto_generate = 1")
	}
	if !f.DueBy.IsZero() {
		where = append(where, "next_occurrence <= ?")
		args = append(args, f.DueBy)
	}
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY next_occurrence, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	return collect(rows, scanRule)
}

// Budgets

const budgetColumns = `id, user_id, category, category_id, amount, budget_period, start_date`

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b          core.Budget
		categoryID sql.NullString
	)
	err := s.Scan(&b.ID, &b.UserID, &b.Category, &categoryID, &b.Amount, &b.Period, &b.StartDate)
	b.CategoryID = categoryID.String
	return b, err
}

func (q *queries) InsertBudget(ctx context.Context, b core.Budget) error {
	return q.exec(ctx, "insert budget",
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Category, nullable(b.CategoryID), b.Amount, string(b.Period), b.StartDate)
}

func (q *queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, notFoundOr(err, "budget", id)
	}
	return b, nil
}

func (q *queries) UpdateBudget(ctx context.Context, b core.Budget) error {
	return q.execOne(ctx, "budget", b.ID,
		`UPDATE budgets SET category = ?, category_id = ?, amount = ?, budget_period = ?, start_date = ?
		WHERE id = ?`,
		b.Category, nullable(b.CategoryID), b.Amount, string(b.Period), b.StartDate, b.ID)
}

func (q *queries) RemoveBudget(ctx context.Context, id string) error {
	return q.execOne(ctx, "budget", id, `DELETE FROM budgets WHERE id = ?`, id)
}

func (q *queries) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY category, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return collect(rows, scanBudget)
}

// Goals, items and quotes

const goalColumns = `id, user_id, name, type, target_amount, current_amount, target_date, linked_account_id`

func scanGoal(s rowScanner) (core.Goal, error) {
	var (
		g      core.Goal
		target core.Date
		linked sql.NullString
	)
	err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.Type, &g.TargetAmount, &g.CurrentAmount, &target, &linked)
	g.TargetDate = optionalDate(target)
	g.LinkedAccountID = linked.String
	return g, err
}

func (q *queries) InsertGoal(ctx context.Context, g core.Goal) error {
	return q.exec(ctx, "insert goal",
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Type, g.TargetAmount, g.CurrentAmount,
		nullableDate(g.TargetDate), nullable(g.LinkedAccountID))
}

func (q *queries) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	g, err := scanGoal(q.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err != nil {
		return core.Goal{}, notFoundOr(err, "goal", id)
	}
	return g, nil
}

func (q *queries) UpdateGoal(ctx context.Context, g core.Goal) error {
	return q.execOne(ctx, "goal", g.ID,
		`UPDATE goals SET name = ?, type = ?, target_amount = ?, current_amount = ?, target_date = ?,
		linked_account_id = ? WHERE id = ?`,
		g.Name, g.Type, g.TargetAmount, g.CurrentAmount, nullableDate(g.TargetDate),
		nullable(g.LinkedAccountID), g.ID)
}

func (q *queries) RemoveGoal(ctx context.Context, id string) error {
	return q.execOne(ctx, "goal", id, `DELETE FROM goals WHERE id = ?`, id)
}

func (q *queries) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return collect(rows, scanGoal)
}

const goalItemColumns = `id, goal_id, name, budget_amount, status, sort_order`

func scanGoalItem(s rowScanner) (core.GoalItem, error) {
	var i core.GoalItem
	err := s.Scan(&i.ID, &i.GoalID, &i.Name, &i.BudgetAmount, &i.Status, &i.SortOrder)
	return i, err
}

func (q *queries) InsertGoalItem(ctx context.Context, i core.GoalItem) error {
	return q.exec(ctx, "insert goal item",
		`INSERT INTO goal_items (`+goalItemColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.GoalID, i.Name, i.BudgetAmount, string(i.Status), i.SortOrder)
}

func (q *queries) GetGoalItem(ctx context.Context, id string) (core.GoalItem, error) {
	i, err := scanGoalItem(q.db.QueryRowContext(ctx,
		`SELECT `+goalItemColumns+` FROM goal_items WHERE id = ?`, id))
	if err != nil {
		return core.GoalItem{}, notFoundOr(err, "goal item", id)
	}
	return i, nil
}

func (q *queries) UpdateGoalItem(ctx context.Context, i core.GoalItem) error {
	return q.execOne(ctx, "goal item", i.ID,
		`UPDATE goal_items SET name = ?, budget_amount = ?, status = ?, sort_order = ? WHERE id = ?`,
		i.Name, i.BudgetAmount, string(i.Status), i.SortOrder, i.ID)
}

func (q *queries) RemoveGoalItem(ctx context.Context, id string) error {
	return q.execOne(ctx, "goal item", id, `DELETE FROM goal_items WHERE id = ?`, id)
}

func (q *queries) ListGoalItems(ctx context.Context, goalID string) ([]core.GoalItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+goalItemColumns+` FROM goal_items WHERE goal_id = ? ORDER BY sort_order, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list goal items: %w", err)
	}
	return collect(rows, scanGoalItem)
}

const quoteColumns = `id, goal_item_id, vendor, amount, is_selected, notes`

func scanQuote(s rowScanner) (core.Quote, error) {
	var qt core.Quote
	err := s.Scan(&qt.ID, &qt.GoalItemID, &qt.Vendor, &qt.Amount, &qt.IsSelected, &qt.Notes)
	return qt, err
}

func (q *queries) InsertQuote(ctx context.Context, qt core.Quote) error {
	return q.exec(ctx, "insert quote",
		`INSERT INTO quotes (`+quoteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		qt.ID, qt.GoalItemID, qt.Vendor, qt.Amount, qt.IsSelected, qt.Notes)
}

func (q *queries) GetQuote(ctx context.Context, id string) (core.Quote, error) {
	qt, err := scanQuote(q.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id))
	if err != nil {
		return core.Quote{}, notFoundOr(err, "quote", id)
	}
	return qt, nil
}

func (q *queries) UpdateQuote(ctx context.Context, qt core.Quote) error {
	return q.execOne(ctx, "quote", qt.ID,
		`UPDATE quotes SET vendor = ?, amount = ?, is_selected = ?, notes = ? WHERE id = ?`,
		qt.Vendor, qt.Amount, qt.IsSelected, qt.Notes, qt.ID)
}

func (q *queries) RemoveQuote(ctx context.Context, id string) error {
	return q.execOne(ctx, "quote", id, `DELETE FROM quotes WHERE id = ?`, id)
}

func (q *queries) ListQuotes(ctx context.Context, goalItemID string) ([]core.Quote, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE goal_item_id = ? ORDER BY id`, goalItemID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return collect(rows, scanQuote)
}

// Categories and merchants

func (q *queries) InsertCategory(ctx context.Context, c core.Category) error {
	return q.exec(ctx, "insert category",
		`INSERT INTO categories (id, user_id, name, type) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Type)
}

func scanCategory(s rowScanner) (core.Category, error) {
	var c core.Category
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Type)
	return c, err
}

func (q *queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, notFoundOr(err, "category", id)
	}
	return c, nil
}

func (q *queries) RemoveCategory(ctx context.Context, id string) error {
	return q.execOne(ctx, "category", id, `DELETE FROM categories WHERE id = ?`, id)
}

func (q *queries) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return collect(rows, scanCategory)
}

func (q *queries) InsertMerchant(ctx context.Context, m core.Merchant) error {
	return q.exec(ctx, "insert merchant",
		`INSERT INTO merchants (id, user_id, name) VALUES (?, ?, ?)`, m.ID, m.UserID, m.Name)
}

func scanMerchant(s rowScanner) (core.Merchant, error) {
	var m core.Merchant
	err := s.Scan(&m.ID, &m.UserID, &m.Name)
	return m, err
}

func (q *queries) GetMerchant(ctx context.Context, id string) (core.Merchant, error) {
	m, err := scanMerchant(q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM merchants WHERE id = ?`, id))
	if err != nil {
		return core.Merchant{}, notFoundOr(err, "merchant", id)
	}
	return m, nil
}

func (q *queries) RemoveMerchant(ctx context.Context, id string) error {
	return q.execOne(ctx, "merchant", id, `DELETE FROM merchants WHERE id = ?`, id)
}

func (q *queries) ListMerchants(ctx context.Context, userID string) ([]core.Merchant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM merchants WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	return collect(rows, scanMerchant)
}

func (q *queries) DetachCategory(ctx context.Context, id string) error {
	for _, table := range []string{"transactions", "splits", "recurring_rules", "budgets"} {
		if err := q.exec(ctx, "detach category from "+table,
			`UPDATE `+table+` SET category_id = NULL WHERE category_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) DetachMerchant(ctx context.Context, id string) error {
	for _, table := range []string{"transactions", "recurring_rules"} {
		if err := q.exec(ctx, "detach merchant from "+table,
			`UPDATE `+table+` SET merchant_id = NULL WHERE merchant_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) DetachGoalItem(ctx context.Context, id string) error {
	return q.exec(ctx, "detach goal item",
		`UPDATE transactions SET goal_item_id = NULL WHERE goal_item_id = ?`, id)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
