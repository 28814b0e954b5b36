package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// SplitInput is one row of a split form as the user typed it.
type SplitInput struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Notes      string `json:"notes,omitempty"`
}

// ValidateSplit checks split rows against a parent amount (its sign is
// ignored). Every row needs a category and a positive amount, and the rows
// must add up to the parent within one cent. On a sum mismatch the error is a
// *core.SplitSumError carrying parent minus allocated.
func ValidateSplit(parentAmount decimal.Decimal, rows []SplitInput) ([]core.Allocation, error) {
	if len(rows) == 0 {
		return nil, core.Invalid("splits", core.ErrEmptySplit)
	}

	parent := parentAmount.Abs()
	allocated := decimal.Zero
	out := make([]core.Allocation, 0, len(rows))
	for i, row := range rows {
		if strings.TrimSpace(row.CategoryID) == "" {
			return nil, core.Invalid(fmt.Sprintf("splits[%d].category_id", i), core.ErrMissingField)
		}
		amount, err := core.ParseAmount(row.Amount)
		if err != nil {
			return nil, core.Invalid(fmt.Sprintf("splits[%d].amount", i), err)
		}
		allocated = allocated.Add(amount)
		out = append(out, core.Allocation{
			CategoryID: strings.TrimSpace(row.CategoryID),
			Amount:     amount,
			Percentage: core.RoundPercent(amount, parent),
			Notes:      row.Notes,
		})
	}

	if !core.WithinTolerance(parent, allocated) {
		return nil, &core.SplitSumError{
			Expected:  parent,
			Allocated: allocated,
			Delta:     parent.Sub(allocated),
		}
	}
	return out, nil
}

// SplitAllocator replaces the split set of stored transactions.
type SplitAllocator struct {
	store storage.Store
}

func NewSplitAllocator(store storage.Store) *SplitAllocator {
	return &SplitAllocator{store: store}
}

// ReplaceSplits validates rows against the stored transaction and swaps its
// splits in one unit. The parent is relabelled with the split categories.
func (a *SplitAllocator) ReplaceSplits(ctx context.Context, transactionID string, rows []SplitInput) (core.Transaction, []core.Split, error) {
	parent, err := a.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	if parent.IsTransfer() {
		return core.Transaction{}, nil, core.Inconsistent(core.InvariantSplitSum, "transfer leg %s cannot be split", transactionID)
	}

	allocations, err := ValidateSplit(parent.Amount, rows)
	if err != nil {
		var sumErr *core.SplitSumError
		if errors.As(err, &sumErr) {
			sumErr.Currency = a.currencyOf(ctx, parent.AccountID)
		}
		return core.Transaction{}, nil, err
	}

	splits := make([]core.Split, len(allocations))
	for i, alloc := range allocations {
		splits[i] = core.Split{
			ID:            core.NewID(),
			TransactionID: transactionID,
			CategoryID:    alloc.CategoryID,
			Amount:        alloc.Amount,
			Percentage:    alloc.Percentage,
			Notes:         alloc.Notes,
		}
	}

	updated, err := storage.ReplaceSplits(ctx, a.store, transactionID, splits)
	if err != nil {
		return core.Transaction{}, nil, fmt.Errorf("replace splits: %w", err)
	}
	if splits, err = a.store.ListSplits(ctx, transactionID); err != nil {
		return core.Transaction{}, nil, fmt.Errorf("reload splits: %w", err)
	}

	slog.InfoContext(ctx, "Transaction splits replaced",
		"transaction_id", transactionID,
		"splits", len(splits),
		"label", updated.Category.Label())
	return updated, splits, nil
}

// ClearSplits drops every split of a transaction and files it under a
// single category.
func (a *SplitAllocator) ClearSplits(ctx context.Context, transactionID, categoryID string) (core.Transaction, error) {
	if strings.TrimSpace(categoryID) == "" {
		return core.Transaction{}, core.Invalid("category_id", core.ErrMissingField)
	}
	updated, err := storage.ClearSplits(ctx, a.store, transactionID, categoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("clear splits: %w", err)
	}
	slog.InfoContext(ctx, "Transaction splits cleared", "transaction_id", transactionID, "category_id", categoryID)
	return updated, nil
}

// Splits returns the stored split rows of a transaction.
func (a *SplitAllocator) Splits(ctx context.Context, transactionID string) ([]core.Split, error) {
	return a.store.ListSplits(ctx, transactionID)
}

func (a *SplitAllocator) currencyOf(ctx context.Context, accountID string) string {
	if accountID == "" {
		return core.DefaultCurrency
	}
	acct, err := a.store.GetAccount(ctx, accountID)
	if err != nil || acct.Currency == "" {
		return core.DefaultCurrency
	}
	return acct.Currency
}
