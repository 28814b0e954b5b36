package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"wealthflow/internal/cache"
	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

// ResolveBalance derives an account's current balance from its opening
// balance and the transactions recorded on it. Income and expense amounts are
// already signed. Of the transfer legs only the incoming credit counts; the
// outgoing debit is excluded. A savings account opened at $0 that received a
// $200 transfer therefore resolves to $200, not to its opening balance.
func ResolveBalance(account core.Account, txs []core.Transaction) decimal.Decimal {
	balance := account.Balance
	for _, t := range txs {
		if t.AccountID != account.ID {
			continue
		}
		switch {
		case !t.IsTransfer():
			balance = balance.Add(t.Amount)
		case t.Direction == core.Incoming:
			balance = balance.Add(t.Amount.Abs())
		}
	}
	return balance
}

// BalanceResolver computes account balances, serving repeated reads from an
// optional cache that writers purge. A read only fills the cache when no purge
// happened since it started loading.
type BalanceResolver struct {
	store storage.Ledger
	cache cache.Cache[decimal.Decimal]

	mu         sync.Mutex
	generation uint64
}

// NewBalanceResolver creates a resolver. c may be nil.
func NewBalanceResolver(store storage.Ledger, c cache.Cache[decimal.Decimal]) *BalanceResolver {
	return &BalanceResolver{store: store, cache: c}
}

// ComputeAccountBalance returns the current balance of an account.
func (r *BalanceResolver) ComputeAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var generation uint64
	if r.cache != nil {
		if balance, ok := r.cache.Get(accountID); ok {
			return balance, nil
		}
		generation = r.currentGeneration()
	}

	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	txs, err := r.store.ListTransactions(ctx, storage.TransactionFilter{AccountID: accountID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list account transactions: %w", err)
	}

	balance := ResolveBalance(account, txs)
	if r.cache != nil {
		r.fill(accountID, balance, generation)
	}
	slog.DebugContext(ctx, "Account balance resolved",
		"account_id", accountID,
		"transactions", len(txs),
		"balance", balance.String())
	return balance, nil
}

func (r *BalanceResolver) currentGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// fill caches balance unless the cache was purged after generation was read.
func (r *BalanceResolver) fill(accountID string, balance decimal.Decimal, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return
	}
	r.cache.Set(accountID, balance)
}

// Invalidate drops every cached balance.
func (r *BalanceResolver) Invalidate() {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	r.generation++
	n := r.cache.Purge()
	r.mu.Unlock()
	if n > 0 {
		slog.Debug("Balance cache purged", "entries", n)
	}
}
