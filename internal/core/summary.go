package core

import "github.com/shopspring/decimal"

// BudgetState is the fixed three-tier budget status.
type BudgetState string

const (
	OnTrack    BudgetState = "on_track"
	NearLimit  BudgetState = "near_limit"
	OverBudget BudgetState = "over_budget"
)

// StateFor maps a spend percentage to its tier: up to 80 on track, up to 100
// near the limit, above 100 over budget.
func StateFor(percentage int) BudgetState {
	switch {
	case percentage <= 80:
		return OnTrack
	case percentage <= 100:
		return NearLimit
	default:
		return OverBudget
	}
}

// Allocation is one validated split row.
type Allocation struct {
	CategoryID string          `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage int             `json:"percentage"`
	Notes      string          `json:"notes,omitempty"`
}

// BudgetStatus is the period-to-date view of one budget.
type BudgetStatus struct {
	BudgetID    string          `json:"budget_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Spent       decimal.Decimal `json:"spent"`
	Percentage  int             `json:"percentage"`
	Status      BudgetState     `json:"status"`
	PeriodStart Date            `json:"period_start"`
	AsOf        Date            `json:"as_of"`
}

// GoalProgress is the derived view of a goal and its items.
type GoalProgress struct {
	GoalID        string           `json:"goal_id"`
	Name          string           `json:"name"`
	TargetAmount  decimal.Decimal  `json:"target_amount"`
	CurrentAmount decimal.Decimal  `json:"current_amount"`
	Percentage    int              `json:"percentage"`
	IsCompleted   bool             `json:"is_completed"`
	Linked        bool             `json:"linked"`
	Items         []GoalItemRollup `json:"items"`
}

// Variance labels of a goal item.
const (
	VarianceSaved = "saved"
	VarianceOver  = "over"
)

// GoalItemRollup compares an item's budget with what was actually spent.
type GoalItemRollup struct {
	ItemID              string          `json:"item_id"`
	Name                string          `json:"name"`
	Status              GoalItemStatus  `json:"status"`
	BudgetAmount        decimal.Decimal `json:"budget_amount"`
	ActualSpent         decimal.Decimal `json:"actual_spent"`
	SelectedQuoteAmount decimal.Decimal `json:"selected_quote_amount"`
	Variance            decimal.Decimal `json:"variance"`
	VarianceLabel       string          `json:"variance_label"`
}
