package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// TransferInput describes a movement of money between two accounts.
type TransferInput struct {
	UserID        string          `json:"user_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          core.Date       `json:"date"`
	Description   string          `json:"description,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// Validate checks the input without touching the store.
func (in TransferInput) Validate() error {
	if strings.TrimSpace(in.FromAccountID) == "" {
		return core.Invalid("from_account_id", core.ErrMissingField)
	}
	if strings.TrimSpace(in.ToAccountID) == "" {
		return core.Invalid("to_account_id", core.ErrMissingField)
	}
	if in.FromAccountID == in.ToAccountID {
		return core.Invalid("to_account_id", core.ErrSameAccountTransfer)
	}
	if !in.Amount.IsPositive() {
		return core.Invalid("amount", core.ErrNonPositiveAmount)
	}
	if err := in.Date.Validate(); err != nil {
		return core.Invalid("date", err)
	}
	return nil
}

func (in TransferInput) base() core.Transaction {
	return core.Transaction{
		UserID:      in.UserID,
		AccountID:   in.FromAccountID,
		ToAccountID: in.ToAccountID,
		Amount:      in.Amount.Round(2),
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
		Notes:       in.Notes,
	}
}

// TransferCoordinator keeps the two legs of every transfer in step. The
// multi-row writes are delegated to the storage procedures.
type TransferCoordinator struct {
	store storage.Store
}

func NewTransferCoordinator(store storage.Store) *TransferCoordinator {
	return &TransferCoordinator{store: store}
}

// CreateTransfer writes the debit and credit legs of a new transfer.
func (c *TransferCoordinator) CreateTransfer(ctx context.Context, in TransferInput) (debit, credit core.Transaction, err error) {
	if strings.TrimSpace(in.UserID) == "" {
		return debit, credit, core.Invalid("user_id", core.ErrMissingField)
	}
	if err := in.Validate(); err != nil {
		return debit, credit, err
	}

	debit, credit = core.TransferLegs(core.NewID(), core.NewID(), in.base())
	if err := storage.CreateTransfer(ctx, c.store, debit, credit); err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("create transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer created",
		"debit_id", debit.ID,
		"credit_id", credit.ID,
		"from_account_id", in.FromAccountID,
		"to_account_id", in.ToAccountID,
		"amount", debit.Amount.String())
	return debit, credit, nil
}

// UpdateTransfer rewrites both legs of the transfer that legID belongs to.
// Either leg id is accepted.
func (c *TransferCoordinator) UpdateTransfer(ctx context.Context, legID string, in TransferInput) (debit, credit core.Transaction, err error) {
	if err := in.Validate(); err != nil {
		return debit, credit, err
	}
	debit, credit, err = storage.UpdateTransfer(ctx, c.store, legID, in.base())
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("update transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer updated", "debit_id", debit.ID, "credit_id", credit.ID)
	return debit, credit, nil
}

// DeleteTransfer removes both legs and returns their ids.
func (c *TransferCoordinator) DeleteTransfer(ctx context.Context, legID string) ([]string, error) {
	removed, err := storage.DeleteTransfer(ctx, c.store, legID)
	if err != nil {
		return nil, fmt.Errorf("delete transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer deleted", "transaction_ids", removed)
	return removed, nil
}
