package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// RollupItem compares a goal item's budget with the expenses tagged with it
// and the amount of its selected quote.
func RollupItem(item core.GoalItem, tagged []core.Transaction, quotes []core.Quote) core.GoalItemRollup {
	actual := decimal.Zero
	for _, t := range tagged {
		if t.GoalItemID == item.ID && t.Type == core.Expense {
			actual = actual.Add(t.Magnitude())
		}
	}
	selected := decimal.Zero
	for _, q := range quotes {
		if q.IsSelected {
			selected = q.Amount
			break
		}
	}

	variance := item.BudgetAmount.Sub(actual)
	label := core.VarianceSaved
	if variance.IsNegative() {
		label = core.VarianceOver
	}
	return core.GoalItemRollup{
		ItemID:              item.ID,
		Name:                item.Name,
		Status:              item.Status,
		BudgetAmount:        item.BudgetAmount,
		ActualSpent:         actual,
		SelectedQuoteAmount: selected,
		Variance:            variance,
		VarianceLabel:       label,
	}
}

// Progress derives completion from a goal's target and its current amount.
func Progress(goal core.Goal, current decimal.Decimal) core.GoalProgress {
	p := core.GoalProgress{
		GoalID:        goal.ID,
		Name:          goal.Name,
		TargetAmount:  goal.TargetAmount,
		CurrentAmount: current,
		Linked:        goal.LinkedAccountID != "",
		IsCompleted:   current.GreaterThanOrEqual(goal.TargetAmount),
	}
	if goal.TargetAmount.IsPositive() {
		p.Percentage = core.RoundPercent(current, goal.TargetAmount)
	}
	return p
}

// GoalTracker computes goal progress and manages quote selection.
type GoalTracker struct {
	store    storage.Store
	balances *BalanceResolver
}

func NewGoalTracker(store storage.Store, balances *BalanceResolver) *GoalTracker {
	return &GoalTracker{store: store, balances: balances}
}

// ComputeGoalProgress returns the progress of a goal and the rollup of its
// items. A goal linked to an account tracks that account's balance; the
// stored current amount is used otherwise.
func (g *GoalTracker) ComputeGoalProgress(ctx context.Context, goalID string) (core.GoalProgress, error) {
	goal, err := g.store.GetGoal(ctx, goalID)
	if err != nil {
		return core.GoalProgress{}, err
	}

	current := goal.CurrentAmount
	if goal.LinkedAccountID != "" {
		current, err = g.balances.ComputeAccountBalance(ctx, goal.LinkedAccountID)
		if err != nil {
			return core.GoalProgress{}, fmt.Errorf("resolve linked account: %w", err)
		}
	}
	progress := Progress(goal, current)

	items, err := g.store.ListGoalItems(ctx, goalID)
	if err != nil {
		return core.GoalProgress{}, fmt.Errorf("list goal items: %w", err)
	}
	progress.Items = make([]core.GoalItemRollup, 0, len(items))
	for _, item := range items {
		tagged, err := g.store.ListTransactions(ctx, storage.TransactionFilter{GoalItemID: item.ID})
		if err != nil {
			return core.GoalProgress{}, fmt.Errorf("list item transactions: %w", err)
		}
		quotes, err := g.store.ListQuotes(ctx, item.ID)
		if err != nil {
			return core.GoalProgress{}, fmt.Errorf("list item quotes: %w", err)
		}
		progress.Items = append(progress.Items, RollupItem(item, tagged, quotes))
	}
	return progress, nil
}

// SelectQuote makes quoteID the only selected quote of its goal item.
func (g *GoalTracker) SelectQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	q, err := storage.SelectQuote(ctx, g.store, quoteID)
	if err != nil {
		return core.Quote{}, fmt.Errorf("select quote: %w", err)
	}
	slog.InfoContext(ctx, "Quote selected", "quote_id", q.ID, "goal_item_id", q.GoalItemID, "vendor", q.Vendor)
	return q, nil
}

func (g *GoalTracker) DeselectQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	q, err := storage.DeselectQuote(ctx, g.store, quoteID)
	if err != nil {
		return core.Quote{}, fmt.Errorf("deselect quote: %w", err)
	}
	return q, nil
}
