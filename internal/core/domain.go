package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	Outgoing TransferDirection = "out"
	Incoming TransferDirection = "in"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	WeeklyBudget  BudgetPeriod = "weekly"
	MonthlyBudget BudgetPeriod = "monthly"
	YearlyBudget  BudgetPeriod = "yearly"
)

const (
	ItemPlanned   GoalItemStatus = "planned"
	ItemQuoted    GoalItemStatus = "quoted"
	ItemBooked    GoalItemStatus = "booked"
	ItemCompleted GoalItemStatus = "completed"
	ItemCancelled GoalItemStatus = "cancelled"
)

type (
	TransactionType   string
	TransferDirection string
	Frequency         string
	BudgetPeriod      string
	GoalItemStatus    string

	Account struct {
		ID       string          `json:"id"`
		UserID   string          `json:"user_id"`
		Name     string          `json:"name"`
		Type     string          `json:"type"`
		Balance  decimal.Decimal `json:"balance"` // opening balance, never touched by posting
		Currency string          `json:"currency"`
		IsActive bool            `json:"is_active"`
	}

	Transaction struct {
		ID                  string            `json:"id"`
		UserID              string            `json:"user_id"`
		Amount              decimal.Decimal   `json:"amount"`
		Category            CategoryRef       `json:"category"`
		Date                Date              `json:"date"`
		Type                TransactionType   `json:"type"`
		AccountID           string            `json:"account_id,omitempty"`
		ToAccountID         string            `json:"to_account_id,omitempty"`
		LinkedTransactionID string            `json:"linked_transaction_id,omitempty"`
		Direction           TransferDirection `json:"transfer_direction,omitempty"`
		MerchantID          string            `json:"merchant_id,omitempty"`
		GoalItemID          string            `json:"goal_item_id,omitempty"`
		Description         string            `json:"description,omitempty"`
		Notes               string            `json:"notes,omitempty"`
		RecurringRuleID     string            `json:"recurring_rule_id,omitempty"`
		AutoGenerated       bool              `json:"auto_generated"`
	}

	Split struct {
		ID            string          `json:"id"`
		TransactionID string          `json:"transaction_id"`
		CategoryID    string          `json:"category_id,omitempty"` // empty once the category is deleted
		Category      string          `json:"category"`
		Amount        decimal.Decimal `json:"amount"`
		Percentage    int             `json:"percentage"`
		Notes         string          `json:"notes,omitempty"`
	}

	RecurringRule struct {
		ID             string          `json:"id"`
		UserID         string          `json:"user_id"`
		Name           string          `json:"name"`
		Amount         decimal.Decimal `json:"amount"`
		Category       CategoryRef     `json:"category"`
		Type           TransactionType `json:"type"`
		Frequency      Frequency       `json:"frequency"`
		StartDate      Date            `json:"start_date"`
		NextOccurrence Date            `json:"next_occurrence"`
		DayOfMonth     int             `json:"day_of_month,omitempty"` // 0 means unset
		EndDate        *Date           `json:"end_date,omitempty"`
		IsActive       bool            `json:"is_active"`
		AutoGenerate   bool            `json:"auto_generate"`
		AccountID      string          `json:"account_id,omitempty"`
		ToAccountID    string          `json:"to_account_id,omitempty"`
		MerchantID     string          `json:"merchant_id,omitempty"`
	}

	Budget struct {
		ID         string          `json:"id"`
		UserID     string          `json:"user_id"`
		Category   string          `json:"category"`
		CategoryID string          `json:"category_id,omitempty"`
		Amount     decimal.Decimal `json:"amount"`
		Period     BudgetPeriod    `json:"period"`
		StartDate  Date            `json:"start_date"`
	}

	Goal struct {
		ID              string          `json:"id"`
		UserID          string          `json:"user_id"`
		Name            string          `json:"name"`
		Type            string          `json:"type"`
		TargetAmount    decimal.Decimal `json:"target_amount"`
		CurrentAmount   decimal.Decimal `json:"current_amount"`
		TargetDate      *Date           `json:"target_date,omitempty"`
		LinkedAccountID string          `json:"linked_account_id,omitempty"`
	}

	GoalItem struct {
		ID           string          `json:"id"`
		GoalID       string          `json:"goal_id"`
		Name         string          `json:"name"`
		BudgetAmount decimal.Decimal `json:"budget_amount"`
		Status       GoalItemStatus  `json:"status"`
		SortOrder    int             `json:"sort_order"`
	}

	Quote struct {
		ID         string          `json:"id"`
		GoalItemID string          `json:"goal_item_id"`
		Vendor     string          `json:"vendor"`
		Amount     decimal.Decimal `json:"amount"`
		IsSelected bool            `json:"is_selected"`
		Notes      string          `json:"notes,omitempty"`
	}

	Category struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		Name   string `json:"name"`
		Type   string `json:"type,omitempty"`
	}

	Merchant struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
)

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense, Transfer:
		return nil
	default:
		return ErrInvalidType
	}
}

// Sign applies the ledger's sign convention to a magnitude: expenses are
// negative, income positive, transfer legs keep the magnitude.
func (t TransactionType) Sign(amount decimal.Decimal) decimal.Decimal {
	if t == Expense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (p BudgetPeriod) Validate() error {
	switch p {
	case WeeklyBudget, MonthlyBudget, YearlyBudget:
		return nil
	default:
		return ErrInvalidPeriod
	}
}

func (s GoalItemStatus) Validate() error {
	switch s {
	case ItemPlanned, ItemQuoted, ItemBooked, ItemCompleted, ItemCancelled:
		return nil
	default:
		return ErrInvalidStatus
	}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(a.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	return nil
}

func (t Transaction) IsSplit() bool    { return t.Category.IsSplit() }
func (t Transaction) IsTransfer() bool { return t.Type == Transfer }

// Magnitude is the unsigned amount.
func (t Transaction) Magnitude() decimal.Decimal { return t.Amount.Abs() }

// Validate checks a single row. Pair level transfer rules live with the
// transfer procedures.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if err := t.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if t.Amount.IsZero() {
		return Invalid("amount", ErrZeroAmount)
	}
	if t.Type == Transfer {
		if t.AccountID == "" {
			return Invalid("account_id", ErrMissingField)
		}
		if t.ToAccountID == "" {
			return Invalid("to_account_id", ErrMissingField)
		}
		if t.AccountID == t.ToAccountID {
			return Invalid("to_account_id", ErrSameAccountTransfer)
		}
		if !t.Amount.IsPositive() {
			return Invalid("amount", ErrNonPositiveAmount)
		}
	}
	return nil
}

// AnchorDay is the day of month that month based frequencies land on.
func (r RecurringRule) AnchorDay() int {
	if r.DayOfMonth > 0 {
		return r.DayOfMonth
	}
	return r.StartDate.Day()
}

// Ended reports whether d is past the rule's end date.
func (r RecurringRule) Ended(d Date) bool {
	return r.EndDate != nil && !r.EndDate.IsZero() && d.After(r.EndDate.Time)
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(r.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	if r.Amount.IsZero() {
		return Invalid("amount", ErrZeroAmount)
	}
	if err := r.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	if err := r.Frequency.Validate(); err != nil {
		return Invalid("frequency", err)
	}
	if err := r.StartDate.Validate(); err != nil {
		return Invalid("start_date", err)
	}
	if err := r.NextOccurrence.Validate(); err != nil {
		return Invalid("next_occurrence", err)
	}
	if r.NextOccurrence.Before(r.StartDate.Time) {
		return Invalid("next_occurrence", ErrDateOrder)
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return Invalid("day_of_month", ErrInvalidDayOfMonth)
	}
	if r.EndDate != nil && !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
		return Invalid("end_date", ErrDateOrder)
	}
	if r.Type == Transfer {
		if r.AccountID == "" {
			return Invalid("account_id", ErrMissingField)
		}
		if r.ToAccountID == "" {
			return Invalid("to_account_id", ErrMissingField)
		}
		if r.AccountID == r.ToAccountID {
			return Invalid("to_account_id", ErrSameAccountTransfer)
		}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(b.Category) == "" && b.CategoryID == "" {
		return Invalid("category", ErrMissingField)
	}
	if b.Amount.IsNegative() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if err := b.Period.Validate(); err != nil {
		return Invalid("period", err)
	}
	if err := b.StartDate.Validate(); err != nil {
		return Invalid("start_date", err)
	}
	return nil
}

// Matches reports whether a category (id and display name) counts against
// this budget.
func (b Budget) Matches(categoryID, name string) bool {
	if b.CategoryID != "" && categoryID != "" {
		return b.CategoryID == categoryID
	}
	return strings.TrimSpace(name) != "" && strings.TrimSpace(name) == strings.TrimSpace(b.Category)
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(g.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	if g.TargetAmount.IsNegative() {
		return Invalid("target_amount", ErrInvalidAmount)
	}
	return nil
}

func (i GoalItem) Validate() error {
	if i.GoalID == "" {
		return Invalid("goal_id", ErrMissingField)
	}
	if strings.TrimSpace(i.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	if i.BudgetAmount.IsNegative() {
		return Invalid("budget_amount", ErrInvalidAmount)
	}
	if err := i.Status.Validate(); err != nil {
		return Invalid("status", err)
	}
	return nil
}

func (q Quote) Validate() error {
	if q.GoalItemID == "" {
		return Invalid("goal_item_id", ErrMissingField)
	}
	if strings.TrimSpace(q.Vendor) == "" {
		return Invalid("vendor", ErrMissingField)
	}
	if q.Amount.IsNegative() {
		return Invalid("amount", ErrInvalidAmount)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	return nil
}

func (m Merchant) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return Invalid("user_id", ErrMissingField)
	}
	if strings.TrimSpace(m.Name) == "" {
		return Invalid("name", ErrMissingField)
	}
	return nil
}
