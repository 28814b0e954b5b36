package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
)

func TestAtomicDiscardsFailedUnit(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(l storage.Ledger) error {
		if err := l.InsertAccount(ctx, core.Account{ID: "a", UserID: "u1", Name: "A", IsActive: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetAccount(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed unit leaked a row: %v", err)
	}

	if err := s.Atomic(ctx, func(l storage.Ledger) error {
		return l.InsertAccount(ctx, core.Account{ID: "a", UserID: "u1", Name: "A", IsActive: true})
	}); err != nil {
		t.Fatalf("atomic: %v", err)
	}
	if _, err := s.GetAccount(ctx, "a"); err != nil {
		t.Fatalf("committed row missing: %v", err)
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := core.Merchant{ID: "m", UserID: "u1", Name: "Shop"}
	if err := s.InsertMerchant(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertMerchant(ctx, m); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestReturnedRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	end := core.NewDate(2024, 12, 31)
	r := core.RecurringRule{ID: "r", UserID: "u1", Name: "Rent", Amount: decimal.NewFromInt(1),
		Type: core.Expense, Frequency: core.Monthly, EndDate: &end}
	if err := s.InsertRule(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRule(ctx, "r")
	*got.EndDate = core.NewDate(2030, 1, 1)
	again, _ := s.GetRule(ctx, "r")
	if again.EndDate.String() != "2024-12-31" {
		t.Fatalf("stored rule was mutated through a returned pointer: %s", again.EndDate)
	}
}

func TestConcurrentUnitsSerialize(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.InsertAccount(ctx, core.Account{ID: "a", UserID: "u1", Name: "A", Balance: decimal.Zero}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomic(ctx, func(l storage.Ledger) error {
				a, err := l.GetAccount(ctx, "a")
				if err != nil {
					return err
				}
				a.Balance = a.Balance.Add(decimal.NewFromInt(1))
				return l.UpdateAccount(ctx, a)
			})
		}()
	}
	wg.Wait()

	a, _ := s.GetAccount(ctx, "a")
	if !a.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50 serialized increments, got %s", a.Balance)
	}
}
