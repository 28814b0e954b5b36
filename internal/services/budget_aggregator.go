package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// reportConcurrency bounds the budgets computed in parallel by BudgetReport.
const reportConcurrency = 4

// PeriodStart returns the first day of the budget period that contains asOf.
// Periods are anchored on the budget's start date; an asOf before the start
// date yields the start date.
func PeriodStart(b core.Budget, asOf core.Date) (core.Date, error) {
	start := b.StartDate
	if !asOf.After(start.Time) {
		return start, nil
	}

	switch b.Period {
	case core.WeeklyBudget:
		days := int(asOf.Sub(start.Time).Hours() / 24)
		return start.AddDays(days / 7 * 7), nil
	case core.MonthlyBudget, core.YearlyBudget:
		step := 1
		if b.Period == core.YearlyBudget {
			step = 12
		}
		months := (asOf.Year()-start.Year())*12 + int(asOf.Month()-start.Month())
		months -= months % step
		candidate := start.AddMonths(months, start.Day())
		if candidate.After(asOf.Time) {
			candidate = start.AddMonths(months-step, start.Day())
		}
		return candidate, nil
	default:
		return core.Date{}, fmt.Errorf("%w: %s", core.ErrInvalidPeriod, b.Period)
	}
}

// Spend totals what counts against a budget in [from, to]: the magnitude of
// matching expenses that are not split, plus the magnitude of matching split
// rows whose parent is an expense in the window. categoryNames maps category
// ids to display names; a split whose category was deleted matches by the name
// it was stored with.
func Spend(b core.Budget, from, to core.Date, txs []core.Transaction, splits []core.Split, categoryNames map[string]string) decimal.Decimal {
	spent := decimal.Zero
	parents := make(map[string]core.Transaction)
	for _, t := range txs {
		if t.Type != core.Expense || !t.Date.Within(from, to) {
			continue
		}
		if t.IsSplit() {
			parents[t.ID] = t
			continue
		}
		if b.Matches(t.Category.ID(), t.Category.Label()) {
			spent = spent.Add(t.Magnitude())
		}
	}
	for _, s := range splits {
		if _, ok := parents[s.TransactionID]; !ok {
			continue
		}
		name, ok := categoryNames[s.CategoryID]
		if !ok {
			name = s.Category
		}
		if b.Matches(s.CategoryID, name) {
			spent = spent.Add(s.Amount.Abs())
		}
	}
	return spent
}

// EvaluateBudget turns a spend figure into a status. A zero cap reports 0%
// and is over budget as soon as anything is spent.
func EvaluateBudget(b core.Budget, spent decimal.Decimal, periodStart, asOf core.Date) core.BudgetStatus {
	status := core.BudgetStatus{
		BudgetID:    b.ID,
		Category:    b.Category,
		Amount:      b.Amount,
		Spent:       spent,
		PeriodStart: periodStart,
		AsOf:        asOf,
	}
	if b.Amount.IsZero() {
		status.Status = core.OnTrack
		if spent.IsPositive() {
			status.Status = core.OverBudget
		}
		return status
	}
	status.Percentage = core.RoundPercent(spent, b.Amount)
	status.Status = core.StateFor(status.Percentage)
	return status
}

// BudgetAggregator computes period-to-date budget status.
type BudgetAggregator struct {
	store storage.Ledger
}

func NewBudgetAggregator(store storage.Ledger) *BudgetAggregator {
	return &BudgetAggregator{store: store}
}

// ComputeBudgetStatus reports the spend of one budget for the period that
// contains asOf.
func (a *BudgetAggregator) ComputeBudgetStatus(ctx context.Context, budgetID string, asOf core.Date) (core.BudgetStatus, error) {
	if err := asOf.Validate(); err != nil {
		return core.BudgetStatus{}, core.Invalid("as_of", err)
	}
	b, err := a.store.GetBudget(ctx, budgetID)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return a.evaluate(ctx, b, asOf, nil)
}

// BudgetReport computes the status of every budget of a user, ordered by
// category.
func (a *BudgetAggregator) BudgetReport(ctx context.Context, userID string, asOf core.Date) ([]core.BudgetStatus, error) {
	if err := asOf.Validate(); err != nil {
		return nil, core.Invalid("as_of", err)
	}
	budgets, err := a.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	// read-only once built; shared by every goroutine below
	names, err := a.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := make([]core.BudgetStatus, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportConcurrency)
	for i, b := range budgets {
		g.Go(func() error {
			status, err := a.evaluate(gctx, b, asOf, names)
			if err != nil {
				return fmt.Errorf("budget %s: %w", b.ID, err)
			}
			report[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(report, func(x, y core.BudgetStatus) int {
		return strings.Compare(x.Category, y.Category)
	})
	return report, nil
}

func (a *BudgetAggregator) evaluate(ctx context.Context, b core.Budget, asOf core.Date, names map[string]string) (core.BudgetStatus, error) {
	from, err := PeriodStart(b, asOf)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	if asOf.Before(from.Time) {
		return EvaluateBudget(b, decimal.Zero, from, asOf), nil
	}

	txs, err := a.store.ListTransactions(ctx, storage.TransactionFilter{
		UserID: b.UserID,
		Type:   core.Expense,
		From:   from,
		To:     asOf,
	})
	if err != nil {
		return core.BudgetStatus{}, fmt.Errorf("list expenses: %w", err)
	}

	var parentIDs []string
	for _, t := range txs {
		if t.IsSplit() {
			parentIDs = append(parentIDs, t.ID)
		}
	}
	var splits []core.Split
	if len(parentIDs) > 0 {
		if splits, err = a.store.ListSplits(ctx, parentIDs...); err != nil {
			return core.BudgetStatus{}, fmt.Errorf("list splits: %w", err)
		}
	}

	if names == nil {
		if names, err = a.categoryNames(ctx, b.UserID); err != nil {
			return core.BudgetStatus{}, err
		}
	}
	return EvaluateBudget(b, Spend(b, from, asOf, txs, splits, names), from, asOf), nil
}

func (a *BudgetAggregator) categoryNames(ctx context.Context, userID string) (map[string]string, error) {
	categories, err := a.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}
