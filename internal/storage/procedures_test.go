package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/storage"
	"wealthflow/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// backends runs fn once per store implementation.
func backends(t *testing.T, fn func(t *testing.T, s storage.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, memory.New())
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		fn(t, repo)
	})
}

func seedAccount(t *testing.T, s storage.Store, id string, opening string) core.Account {
	t.Helper()
	a := core.Account{ID: id, UserID: "u1", Name: id, Type: "checking", Balance: dec(opening), Currency: "USD", IsActive: true}
	if err := s.InsertAccount(context.Background(), a); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	return a
}

func seedCategory(t *testing.T, s storage.Store, id, name string) core.Category {
	t.Helper()
	c := core.Category{ID: id, UserID: "u1", Name: name}
	if err := s.InsertCategory(context.Background(), c); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	return c
}

func transferBase(from, to, amount string) core.Transaction {
	return core.Transaction{
		UserID:      "u1",
		AccountID:   from,
		ToAccountID: to,
		Amount:      dec(amount),
		Date:        core.NewDate(2024, 1, 10),
		Description: "move",
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "0")
		food := seedCategory(t, s, "food", "Food")
		want := core.Transaction{
			ID:          "t1",
			UserID:      "u1",
			Amount:      dec("-42.5"),
			Category:    core.SingleCategory(food.ID, food.Name),
			Date:        core.NewDate(2024, 2, 29),
			Type:        core.Expense,
			AccountID:   "chk",
			Description: "groceries",
		}
		if err := s.InsertTransaction(ctx, want); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := s.GetTransaction(ctx, "t1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		opts := cmp.Options{
			cmp.AllowUnexported(core.CategoryRef{}),
			cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		}
		if diff := cmp.Diff(want, got, opts); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
		if _, err := s.GetTransaction(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListTransactionsFilterAndOrder(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "0")
		for _, tx := range []core.Transaction{
			{ID: "b", UserID: "u1", Amount: dec("-1"), Date: core.NewDate(2024, 1, 2), Type: core.Expense, AccountID: "chk"},
			{ID: "a", UserID: "u1", Amount: dec("-1"), Date: core.NewDate(2024, 1, 2), Type: core.Expense, AccountID: "chk"},
			{ID: "c", UserID: "u1", Amount: dec("5"), Date: core.NewDate(2024, 1, 1), Type: core.Income, AccountID: "chk"},
			{ID: "d", UserID: "u2", Amount: dec("-1"), Date: core.NewDate(2024, 1, 1), Type: core.Expense},
		} {
			if err := s.InsertTransaction(ctx, tx); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListTransactions(ctx, storage.TransactionFilter{UserID: "u1"})
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, tx := range got {
			ids = append(ids, tx.ID)
		}
		if diff := cmp.Diff([]string{"c", "a", "b"}, ids); diff != "" {
			t.Fatalf("order mismatch (-want +got):\n%s", diff)
		}
		got, err = s.ListTransactions(ctx, storage.TransactionFilter{
			UserID: "u1", Type: core.Expense, From: core.NewDate(2024, 1, 2), To: core.NewDate(2024, 1, 2),
		})
		if err != nil || len(got) != 2 {
			t.Fatalf("expected 2 expenses on the 2nd, got %d (%v)", len(got), err)
		}
	})
}

func TestTransferLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "1000")
		seedAccount(t, s, "sav", "0")

		debit, credit := core.TransferLegs("d1", "c1", transferBase("chk", "sav", "200"))
		if err := storage.CreateTransfer(ctx, s, debit, credit); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := s.GetTransaction(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if got.AccountID != "sav" || got.ToAccountID != "chk" || got.Direction != core.Incoming || got.LinkedTransactionID != "d1" {
			t.Fatalf("credit leg not mirrored: %+v", got)
		}

		edit := transferBase("chk", "sav", "250")
		edit.Date = core.NewDate(2024, 1, 11)
		upDebit, upCredit, err := storage.UpdateTransfer(ctx, s, "c1", edit)
		if err != nil {
			t.Fatalf("update via credit leg: %v", err)
		}
		if upDebit.ID != "d1" || upCredit.ID != "c1" || !upCredit.Amount.Equal(dec("250")) {
			t.Fatalf("unexpected legs %+v %+v", upDebit, upCredit)
		}
		stored, _ := s.GetTransaction(ctx, "d1")
		if !stored.Amount.Equal(dec("250")) || stored.Date.String() != "2024-01-11" {
			t.Fatalf("debit leg not rewritten: %+v", stored)
		}

		removed, err := storage.DeleteTransfer(ctx, s, "d1")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if len(removed) != 2 {
			t.Fatalf("expected both legs removed, got %v", removed)
		}
		left, _ := s.ListTransactions(ctx, storage.TransactionFilter{UserID: "u1"})
		if len(left) != 0 {
			t.Fatalf("expected no transactions, got %d", len(left))
		}
	})
}

func TestCreateTransferRejectsInactiveAccountAtomically(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "0")
		closed := seedAccount(t, s, "old", "0")
		closed.IsActive = false
		if err := s.UpdateAccount(ctx, closed); err != nil {
			t.Fatal(err)
		}
		debit, credit := core.TransferLegs("d1", "c1", transferBase("chk", "old", "10"))
		err := storage.CreateTransfer(ctx, s, debit, credit)
		if !errors.Is(err, core.ErrAccountInactive) {
			t.Fatalf("expected ErrAccountInactive, got %v", err)
		}
		if left, _ := s.ListTransactions(ctx, storage.TransactionFilter{}); len(left) != 0 {
			t.Fatalf("nothing should be written, got %d rows", len(left))
		}
	})
}

func TestBrokenTransferPairIsConsistencyError(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "0")
		seedAccount(t, s, "sav", "0")
		orphan, _ := core.TransferLegs("d1", "missing", transferBase("chk", "sav", "10"))
		if err := s.InsertTransaction(ctx, orphan); err != nil {
			t.Fatal(err)
		}
		var ce *core.ConsistencyError
		if _, err := storage.DeleteTransfer(ctx, s, "d1"); !errors.As(err, &ce) || ce.Invariant != core.InvariantTransferPair {
			t.Fatalf("expected transfer pair violation, got %v", err)
		}
	})
}

func TestReplaceSplitsIsAtomic(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedCategory(t, s, "food", "Food")
		seedCategory(t, s, "home", "Household")
		parent := core.Transaction{ID: "p", UserID: "u1", Amount: dec("-100"), Date: core.NewDate(2024, 1, 5), Type: core.Expense,
			Category: core.SingleCategory("food", "Food")}
		if err := s.InsertTransaction(ctx, parent); err != nil {
			t.Fatal(err)
		}

		good := []core.Split{
			{ID: "s1", CategoryID: "food", Amount: dec("60"), Percentage: 60},
			{ID: "s2", CategoryID: "home", Amount: dec("40"), Percentage: 40},
		}
		got, err := storage.ReplaceSplits(ctx, s, "p", good)
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		if !got.IsSplit() || got.Category.Label() != "Food, Household" || got.Category.ID() != "" {
			t.Fatalf("parent not relabelled: %+v", got.Category)
		}

		bad := []core.Split{{ID: "s3", CategoryID: "food", Amount: dec("90")}}
		var se *core.SplitSumError
		if _, err := storage.ReplaceSplits(ctx, s, "p", bad); !errors.As(err, &se) {
			t.Fatalf("expected split sum error, got %v", err)
		}
		if !se.Delta.Equal(dec("10")) {
			t.Fatalf("expected delta 10, got %s", se.Delta)
		}
		splits, _ := s.ListSplits(ctx, "p")
		if len(splits) != 2 {
			t.Fatalf("failed replace must keep the previous splits, got %d", len(splits))
		}

		cleared, err := storage.ClearSplits(ctx, s, "p", "home")
		if err != nil {
			t.Fatalf("clear: %v", err)
		}
		if cleared.IsSplit() || cleared.Category.ID() != "home" {
			t.Fatalf("expected single Household category, got %+v", cleared.Category)
		}
		if splits, _ := s.ListSplits(ctx, "p"); len(splits) != 0 {
			t.Fatalf("expected splits removed, got %d", len(splits))
		}
	})
}

func TestSelectQuoteIsExclusive(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		for _, q := range []core.Quote{
			{ID: "x", GoalItemID: "venue", Vendor: "X", Amount: dec("1000"), IsSelected: true},
			{ID: "y", GoalItemID: "venue", Vendor: "Y", Amount: dec("900")},
			{ID: "z", GoalItemID: "other", Vendor: "Z", Amount: dec("10"), IsSelected: true},
		} {
			if err := s.InsertQuote(ctx, q); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := storage.SelectQuote(ctx, s, "y"); err != nil {
			t.Fatalf("select: %v", err)
		}
		quotes, _ := s.ListQuotes(ctx, "venue")
		for _, q := range quotes {
			if q.IsSelected != (q.ID == "y") {
				t.Fatalf("quote %s selected=%v", q.ID, q.IsSelected)
			}
		}
		if z, _ := s.GetQuote(ctx, "z"); !z.IsSelected {
			t.Fatalf("quotes of other items must be untouched")
		}
	})
}

func TestDeleteCategoryKeepsNames(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedCategory(t, s, "food", "Food")
		tx := core.Transaction{ID: "t1", UserID: "u1", Amount: dec("-5"), Date: core.NewDate(2024, 1, 1), Type: core.Expense,
			Category: core.SingleCategory("food", "Food")}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
		b := core.Budget{ID: "b1", UserID: "u1", Category: "Food", CategoryID: "food", Amount: dec("100"),
			Period: core.MonthlyBudget, StartDate: core.NewDate(2024, 1, 1)}
		if err := s.InsertBudget(ctx, b); err != nil {
			t.Fatal(err)
		}
		seedCategory(t, s, "home", "Household")
		parent := core.Transaction{ID: "t2", UserID: "u1", Amount: dec("-10"), Date: core.NewDate(2024, 1, 2), Type: core.Expense,
			Category: core.SingleCategory("home", "Household")}
		if err := s.InsertTransaction(ctx, parent); err != nil {
			t.Fatal(err)
		}
		if _, err := storage.ReplaceSplits(ctx, s, "t2", []core.Split{
			{ID: "s1", CategoryID: "food", Amount: dec("4")},
			{ID: "s2", CategoryID: "home", Amount: dec("6")},
		}); err != nil {
			t.Fatalf("replace splits: %v", err)
		}

		if err := storage.DeleteCategory(ctx, s, "food"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		got, _ := s.GetTransaction(ctx, "t1")
		if got.Category.ID() != "" || got.Category.Label() != "Food" {
			t.Fatalf("expected detached Food, got %+v", got.Category)
		}
		gotBudget, _ := s.GetBudget(ctx, "b1")
		if gotBudget.CategoryID != "" || gotBudget.Category != "Food" {
			t.Fatalf("expected detached budget, got %+v", gotBudget)
		}
		splits, _ := s.ListSplits(ctx, "t2")
		if len(splits) != 2 || splits[0].CategoryID != "" || splits[0].Category != "Food" {
			t.Fatalf("expected detached Food split first, got %+v", splits)
		}
		if err := storage.DeleteCategory(ctx, s, "food"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteGoalCascades(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		g := core.Goal{ID: "g", UserID: "u1", Name: "Wedding", TargetAmount: dec("10000")}
		if err := s.InsertGoal(ctx, g); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertGoalItem(ctx, core.GoalItem{ID: "i", GoalID: "g", Name: "Venue", Status: core.ItemQuoted}); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertQuote(ctx, core.Quote{ID: "q", GoalItemID: "i", Vendor: "V", Amount: dec("1")}); err != nil {
			t.Fatal(err)
		}
		tx := core.Transaction{ID: "t", UserID: "u1", Amount: dec("-1"), Date: core.NewDate(2024, 1, 1), Type: core.Expense, GoalItemID: "i"}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}

		if err := storage.DeleteGoal(ctx, s, "g"); err != nil {
			t.Fatalf("delete goal: %v", err)
		}
		if _, err := s.GetQuote(ctx, "q"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("quote should be gone, got %v", err)
		}
		if _, err := s.GetGoalItem(ctx, "i"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("item should be gone, got %v", err)
		}
		got, err := s.GetTransaction(ctx, "t")
		if err != nil || got.GoalItemID != "" {
			t.Fatalf("transaction should survive untagged, got %+v (%v)", got, err)
		}
	})
}

func TestDeleteAccountWithHistoryIsRefused(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		seedAccount(t, s, "chk", "0")
		seedAccount(t, s, "empty", "0")
		tx := core.Transaction{ID: "t", UserID: "u1", Amount: dec("-1"), Date: core.NewDate(2024, 1, 1), Type: core.Expense, AccountID: "chk"}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
		if err := storage.DeleteAccount(ctx, s, "chk"); !errors.Is(err, core.ErrConsistency) {
			t.Fatalf("expected consistency error, got %v", err)
		}
		if err := storage.DeleteAccount(ctx, s, "empty"); err != nil {
			t.Fatalf("delete empty account: %v", err)
		}
	})
}

func TestMaterializeRuleRejectsMovedSchedule(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		start := core.NewDate(2024, 1, 1)
		rule := core.RecurringRule{ID: "r", UserID: "u1", Name: "Gym", Amount: dec("30"), Type: core.Expense,
			Frequency: core.Monthly, StartDate: start, NextOccurrence: start, IsActive: true, AutoGenerate: true}
		if err := s.InsertRule(ctx, rule); err != nil {
			t.Fatal(err)
		}
		gen := core.Transaction{ID: "g1", UserID: "u1", Amount: dec("-30"), Date: start, Type: core.Expense,
			RecurringRuleID: "r", AutoGenerated: true}
		advanced := rule
		advanced.NextOccurrence = core.NewDate(2024, 2, 1)

		if err := storage.MaterializeRule(ctx, s, start, advanced, []core.Transaction{gen}); err != nil {
			t.Fatalf("materialize: %v", err)
		}
		// same starting point again: the rule has already moved on
		gen.ID = "g2"
		err := storage.MaterializeRule(ctx, s, start, advanced, []core.Transaction{gen})
		if !errors.Is(err, core.ErrConsistency) {
			t.Fatalf("expected schedule conflict, got %v", err)
		}
		txs, _ := s.ListTransactions(ctx, storage.TransactionFilter{RuleID: "r"})
		if len(txs) != 1 {
			t.Fatalf("expected one generated transaction, got %d", len(txs))
		}
	})
}
