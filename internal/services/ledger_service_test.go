package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"wealthflow/internal/amqp"
	"wealthflow/internal/cache"
	"wealthflow/internal/core"
	"wealthflow/internal/storage"
	"wealthflow/internal/storage/memory"
)

const user = "user-1"

var today = core.NewDate(2024, 4, 15)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func newTestService(t *testing.T, opts ...Option) (*LedgerService, *memory.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]Option{WithClock(func() core.Date { return today })}, opts...)
	return NewLedgerService(store, opts...), store
}

func mustAccount(t *testing.T, s *LedgerService, name, opening string) core.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), core.Account{UserID: user, Name: name, Type: "checking", Balance: dec(opening)})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", name, err)
	}
	return a
}

func mustCategory(t *testing.T, s *LedgerService, name string) core.Category {
	t.Helper()
	c, err := s.CreateCategory(context.Background(), core.Category{UserID: user, Name: name})
	if err != nil {
		t.Fatalf("CreateCategory(%s) error = %v", name, err)
	}
	return c
}

func mustTransaction(t *testing.T, s *LedgerService, tx core.Transaction) core.Transaction {
	t.Helper()
	tx.UserID = user
	created, err := s.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	return created
}

func balanceOf(t *testing.T, s *LedgerService, accountID string) decimal.Decimal {
	t.Helper()
	b, err := s.ComputeAccountBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ComputeAccountBalance(%s) error = %v", accountID, err)
	}
	return b
}

func TestCheckingAndSavingsBalances(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithBalanceCache(cache.NewLRUCache[decimal.Decimal](16, time.Minute)))

	checking := mustAccount(t, s, "Checking", "1000")
	savings := mustAccount(t, s, "Savings", "0")

	mustTransaction(t, s, core.Transaction{Type: core.Expense, Amount: dec("50"), Date: today, AccountID: checking.ID})
	mustTransaction(t, s, core.Transaction{Type: core.Income, Amount: dec("1000"), Date: today, AccountID: checking.ID})
	if _, _, err := s.CreateTransfer(ctx, TransferInput{
		UserID: user, FromAccountID: checking.ID, ToAccountID: savings.ID, Amount: dec("200"), Date: today,
	}); err != nil {
		t.Fatalf("CreateTransfer() error = %v", err)
	}

	if got := balanceOf(t, s, checking.ID); !got.Equal(dec("1950")) {
		t.Errorf("Checking balance = %s, want 1950", got)
	}
	if got := balanceOf(t, s, savings.ID); !got.Equal(dec("200")) {
		t.Errorf("Savings balance = %s, want 200", got)
	}
	// served from the cache the second time
	if got := balanceOf(t, s, checking.ID); !got.Equal(dec("1950")) {
		t.Errorf("repeated Checking balance = %s, want 1950", got)
	}
}

func TestBalanceWithoutTransactionsIsOpeningBalance(t *testing.T) {
	s, _ := newTestService(t)
	a := mustAccount(t, s, "Cash", "123.45")
	if got := balanceOf(t, s, a.ID); !got.Equal(dec("123.45")) {
		t.Errorf("balance = %s, want 123.45", got)
	}
}

func TestTransferRoundTripRestoresBalances(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t, WithBalanceCache(cache.NewLRUCache[decimal.Decimal](16, time.Minute)))

	a := mustAccount(t, s, "A", "500")
	b := mustAccount(t, s, "B", "20")
	mustTransaction(t, s, core.Transaction{Type: core.Expense, Amount: dec("12.50"), Date: today, AccountID: a.ID})

	beforeA, beforeB := balanceOf(t, s, a.ID), balanceOf(t, s, b.ID)

	debit, credit, err := s.CreateTransfer(ctx, TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("100"), Date: today})
	if err != nil {
		t.Fatalf("CreateTransfer() error = %v", err)
	}
	if debit.LinkedTransactionID != credit.ID || credit.LinkedTransactionID != debit.ID {
		t.Fatalf("legs are not linked: %+v %+v", debit, credit)
	}
	if got := balanceOf(t, s, b.ID); !got.Equal(beforeB.Add(dec("100"))) {
		t.Errorf("B after transfer = %s", got)
	}

	removed, err := s.DeleteTransfer(ctx, credit.ID)
	if err != nil {
		t.Fatalf("DeleteTransfer() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("expected both legs removed, got %v", removed)
	}
	if _, err := store.GetTransaction(ctx, debit.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("debit leg still present: %v", err)
	}

	if got := balanceOf(t, s, a.ID); !got.Equal(beforeA) {
		t.Errorf("A after round trip = %s, want %s", got, beforeA)
	}
	if got := balanceOf(t, s, b.ID); !got.Equal(beforeB) {
		t.Errorf("B after round trip = %s, want %s", got, beforeB)
	}
}

func TestTransferValidationHappensBeforeWrites(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	a := mustAccount(t, s, "A", "0")

	tests := []struct {
		name  string
		in    TransferInput
		field string
	}{
		{"same account", TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: a.ID, Amount: dec("10"), Date: today}, "to_account_id"},
		{"zero amount", TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: "other", Amount: decimal.Zero, Date: today}, "amount"},
		{"negative amount", TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: "other", Amount: dec("-5"), Date: today}, "amount"},
		{"missing destination", TransferInput{UserID: user, FromAccountID: a.ID, Amount: dec("5"), Date: today}, "to_account_id"},
		{"unknown destination", TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: "missing", Amount: dec("5"), Date: today}, "account_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.CreateTransfer(ctx, tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected a ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	txs, err := store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("rejected transfers left %d rows behind", len(txs))
	}
}

func TestUpdateTransferRewritesBothLegs(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	a := mustAccount(t, s, "A", "0")
	b := mustAccount(t, s, "B", "0")
	c := mustAccount(t, s, "C", "0")

	debit, credit, err := s.CreateTransfer(ctx, TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("100"), Date: today})
	if err != nil {
		t.Fatal(err)
	}

	newDate := today.AddDays(1)
	_, _, err = s.UpdateTransfer(ctx, credit.ID, TransferInput{FromAccountID: a.ID, ToAccountID: c.ID, Amount: dec("75"), Date: newDate, Description: "moved"})
	if err != nil {
		t.Fatalf("UpdateTransfer() error = %v", err)
	}

	gotDebit, _ := store.GetTransaction(ctx, debit.ID)
	gotCredit, _ := store.GetTransaction(ctx, credit.ID)
	if err := core.CheckTransferPair(gotDebit, gotCredit); err != nil {
		t.Fatalf("pair broken after update: %v", err)
	}
	if gotCredit.AccountID != c.ID || !gotCredit.Amount.Equal(dec("75")) || !gotCredit.Date.Equal(newDate.Time) {
		t.Errorf("credit leg not rewritten: %+v", gotCredit)
	}
	if got := balanceOf(t, s, c.ID); !got.Equal(dec("75")) {
		t.Errorf("C balance = %s, want 75", got)
	}
	if got := balanceOf(t, s, b.ID); !got.IsZero() {
		t.Errorf("B balance = %s, want 0", got)
	}
}

func TestGroceriesBudgetScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	checking := mustAccount(t, s, "Checking", "0")
	groceries := mustCategory(t, s, "Groceries")
	household := mustCategory(t, s, "Household")

	budget, err := s.CreateBudget(ctx, core.Budget{
		UserID: user, CategoryID: groceries.ID, Amount: dec("400"), Period: core.MonthlyBudget, StartDate: core.NewDate(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("CreateBudget() error = %v", err)
	}
	if budget.Category != "Groceries" {
		t.Errorf("budget category name = %q", budget.Category)
	}

	mustTransaction(t, s, core.Transaction{
		Type: core.Expense, Amount: dec("150"), Date: core.NewDate(2024, 4, 3), AccountID: checking.ID,
		Category: core.SingleCategory(groceries.ID, ""),
	})
	parent := mustTransaction(t, s, core.Transaction{
		Type: core.Expense, Amount: dec("100"), Date: core.NewDate(2024, 4, 10), AccountID: checking.ID,
		Category: core.SingleCategory(household.ID, ""),
	})
	if _, _, err := s.ReplaceSplits(ctx, parent.ID, []SplitInput{
		{CategoryID: groceries.ID, Amount: "40"},
		{CategoryID: household.ID, Amount: "60"},
	}); err != nil {
		t.Fatalf("ReplaceSplits() error = %v", err)
	}
	// last month's spend does not count
	mustTransaction(t, s, core.Transaction{
		Type: core.Expense, Amount: dec("999"), Date: core.NewDate(2024, 3, 31), AccountID: checking.ID,
		Category: core.SingleCategory(groceries.ID, ""),
	})

	status, err := s.ComputeBudgetStatus(ctx, budget.ID, today)
	if err != nil {
		t.Fatalf("ComputeBudgetStatus() error = %v", err)
	}
	want := core.BudgetStatus{
		BudgetID:    budget.ID,
		Category:    "Groceries",
		Amount:      dec("400"),
		Spent:       dec("190"),
		Percentage:  48,
		Status:      core.OnTrack,
		PeriodStart: core.NewDate(2024, 4, 1),
		AsOf:        today,
	}
	decimalEqual := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, status, decimalEqual); diff != "" {
		t.Errorf("budget status mismatch (-want +got):\n%s", diff)
	}

	report, err := s.BudgetReport(ctx, user, today)
	if err != nil {
		t.Fatalf("BudgetReport() error = %v", err)
	}
	if len(report) != 1 || !report[0].Spent.Equal(dec("190")) {
		t.Errorf("unexpected report %+v", report)
	}

	// deleting the category keeps both the plain expense and the split row
	// counting toward the budget by name
	if err := s.DeleteCategory(ctx, groceries.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	after, err := s.ComputeBudgetStatus(ctx, budget.ID, today)
	if err != nil {
		t.Fatalf("ComputeBudgetStatus() after delete error = %v", err)
	}
	if !after.Spent.Equal(dec("190")) {
		t.Errorf("spent after category delete = %s, want 190", after.Spent)
	}
}

func TestTripGoalScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	savings := mustAccount(t, s, "Trip fund", "3000")
	mustTransaction(t, s, core.Transaction{Type: core.Income, Amount: dec("200"), Date: today, AccountID: savings.ID})

	goal, err := s.CreateGoal(ctx, core.Goal{
		UserID: user, Name: "Trip", Type: "travel", TargetAmount: dec("5000"), CurrentAmount: dec("10"), LinkedAccountID: savings.ID,
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	progress, err := s.ComputeGoalProgress(ctx, goal.ID)
	if err != nil {
		t.Fatalf("ComputeGoalProgress() error = %v", err)
	}
	if !progress.CurrentAmount.Equal(dec("3200")) {
		t.Errorf("current amount = %s, want 3200", progress.CurrentAmount)
	}
	if progress.Percentage != 64 {
		t.Errorf("percentage = %d, want 64", progress.Percentage)
	}
	if progress.IsCompleted {
		t.Error("goal should not be completed")
	}
}

func TestGoalItemRollupAndQuoteSelection(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	checking := mustAccount(t, s, "Checking", "0")

	goal, err := s.CreateGoal(ctx, core.Goal{UserID: user, Name: "Wedding", TargetAmount: dec("10000"), CurrentAmount: dec("2500")})
	if err != nil {
		t.Fatal(err)
	}
	venue, err := s.CreateGoalItem(ctx, core.GoalItem{GoalID: goal.ID, Name: "Venue", BudgetAmount: dec("3000"), SortOrder: 1})
	if err != nil {
		t.Fatal(err)
	}
	x, err := s.CreateQuote(ctx, core.Quote{GoalItemID: venue.ID, Vendor: "X", Amount: dec("3100")})
	if err != nil {
		t.Fatal(err)
	}
	y, err := s.CreateQuote(ctx, core.Quote{GoalItemID: venue.ID, Vendor: "Y", Amount: dec("2800")})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.SelectQuote(ctx, x.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectQuote(ctx, y.ID); err != nil {
		t.Fatal(err)
	}
	quotes, err := store.ListQuotes(ctx, venue.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range quotes {
		if q.IsSelected != (q.ID == y.ID) {
			t.Errorf("quote %s selected = %v", q.Vendor, q.IsSelected)
		}
	}

	mustTransaction(t, s, core.Transaction{Type: core.Expense, Amount: dec("3250"), Date: today, AccountID: checking.ID, GoalItemID: venue.ID})
	mustTransaction(t, s, core.Transaction{Type: core.Income, Amount: dec("100"), Date: today, AccountID: checking.ID, GoalItemID: venue.ID})

	progress, err := s.ComputeGoalProgress(ctx, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if progress.Linked || !progress.CurrentAmount.Equal(dec("2500")) || progress.Percentage != 25 {
		t.Errorf("unexpected unlinked progress %+v", progress)
	}
	if len(progress.Items) != 1 {
		t.Fatalf("expected one item rollup, got %d", len(progress.Items))
	}
	item := progress.Items[0]
	if !item.ActualSpent.Equal(dec("3250")) || !item.SelectedQuoteAmount.Equal(dec("2800")) {
		t.Errorf("unexpected rollup %+v", item)
	}
	if !item.Variance.Equal(dec("-250")) || item.VarianceLabel != core.VarianceOver {
		t.Errorf("variance = %s %s, want -250 over", item.Variance, item.VarianceLabel)
	}
}

func TestGenerateDueRecurringCatchesUpMissedMonths(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	checking := mustAccount(t, s, "Checking", "0")
	rent := mustCategory(t, s, "Rent")

	rule, err := s.CreateRule(ctx, core.RecurringRule{
		UserID: user, Name: "Rent", Amount: dec("-800"), Category: core.SingleCategory(rent.ID, ""),
		Type: core.Expense, Frequency: core.Monthly, StartDate: core.NewDate(2024, 1, 31),
		AutoGenerate: true, AccountID: checking.ID,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	created, err := s.GenerateDueRecurring(ctx, user, core.NewDate(2024, 3, 31))
	if err != nil {
		t.Fatalf("GenerateDueRecurring() error = %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 generated transactions, got %d", len(created))
	}

	txs, err := store.ListTransactions(ctx, storage.TransactionFilter{RuleID: rule.ID})
	if err != nil {
		t.Fatal(err)
	}
	var dates []string
	for _, tx := range txs {
		dates = append(dates, tx.Date.String())
		if !tx.AutoGenerated || !tx.Amount.Equal(dec("-800")) || tx.Category.ID() != rent.ID || tx.Description != "Rent" {
			t.Errorf("unexpected generated transaction %+v", tx)
		}
	}
	if diff := cmp.Diff([]string{"2024-01-31", "2024-02-29", "2024-03-31"}, dates); diff != "" {
		t.Errorf("occurrence dates mismatch (-want +got):\n%s", diff)
	}

	stored, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.NextOccurrence.String() != "2024-04-30" {
		t.Errorf("next occurrence = %s, want 2024-04-30", stored.NextOccurrence)
	}

	// a second run on the same day creates nothing
	again, err := s.GenerateDueRecurring(ctx, user, core.NewDate(2024, 3, 31))
	if err != nil || len(again) != 0 {
		t.Errorf("second run = %v, %v; want nothing", again, err)
	}
	if got := balanceOf(t, s, checking.ID); !got.Equal(dec("-2400")) {
		t.Errorf("balance = %s, want -2400", got)
	}
}

func TestResumeKeepsScheduleFrozenUntilNextGenerate(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	checking := mustAccount(t, s, "Checking", "0")

	rule, err := s.CreateRule(ctx, core.RecurringRule{
		UserID: user, Name: "Rent", Amount: dec("800"), Type: core.Expense, Frequency: core.Monthly,
		StartDate: core.NewDate(2024, 1, 1), AutoGenerate: true, AccountID: checking.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetRuleActive(ctx, rule.ID, false); err != nil {
		t.Fatal(err)
	}
	created, err := s.GenerateDueRecurring(ctx, user, today)
	if err != nil || len(created) != 0 {
		t.Fatalf("paused rule generated %v, %v", created, err)
	}

	resumed, err := s.SetRuleActive(ctx, rule.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !resumed.IsActive || resumed.NextOccurrence.String() != "2024-01-01" {
		t.Errorf("resumed rule = active %v next %s, want active at 2024-01-01", resumed.IsActive, resumed.NextOccurrence)
	}
	txs, _ := store.ListTransactions(ctx, storage.TransactionFilter{RuleID: rule.ID})
	if len(txs) != 0 {
		t.Errorf("resume back-filled %d transactions", len(txs))
	}

	created, err = s.GenerateDueRecurring(ctx, user, today)
	if err != nil {
		t.Fatalf("GenerateDueRecurring() error = %v", err)
	}
	if len(created) != 4 {
		t.Errorf("generate after resume created %d, want 4 (Jan..Apr)", len(created))
	}
	got, _ := s.GetRule(ctx, rule.ID)
	if got.NextOccurrence.String() != "2024-05-01" {
		t.Errorf("next occurrence = %s, want 2024-05-01", got.NextOccurrence)
	}
}

func TestTransferRuleGeneratesLinkedLegs(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t)
	checking := mustAccount(t, s, "Checking", "1000")
	savings := mustAccount(t, s, "Savings", "0")

	rule, err := s.CreateRule(ctx, core.RecurringRule{
		UserID: user, Name: "Save", Amount: dec("100"), Type: core.Transfer, Frequency: core.Monthly,
		StartDate: core.NewDate(2024, 3, 1), AutoGenerate: true, AccountID: checking.ID, ToAccountID: savings.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.GenerateDueRecurring(ctx, user, today)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 4 {
		t.Fatalf("expected two transfers (4 legs), got %d", len(created))
	}
	txs, _ := store.ListTransactions(ctx, storage.TransactionFilter{RuleID: rule.ID, AccountID: checking.ID})
	for _, debit := range txs {
		credit, err := store.GetTransaction(ctx, debit.LinkedTransactionID)
		if err != nil {
			t.Fatal(err)
		}
		if err := core.CheckTransferPair(debit, credit); err != nil {
			t.Error(err)
		}
	}
	if got := balanceOf(t, s, savings.ID); !got.Equal(dec("200")) {
		t.Errorf("Savings = %s, want 200", got)
	}
}

func TestTransactionEditsThatBreakInvariantsAreRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	a := mustAccount(t, s, "A", "0")
	b := mustAccount(t, s, "B", "0")
	food := mustCategory(t, s, "Food")

	debit, _, err := s.CreateTransfer(ctx, TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("10"), Date: today})
	if err != nil {
		t.Fatal(err)
	}
	debit.Amount = dec("11")
	debit.Type = core.Income
	var ce *core.ConsistencyError
	if _, err := s.UpdateTransaction(ctx, debit); !errors.As(err, &ce) || ce.Invariant != core.InvariantTransferPair {
		t.Errorf("editing a transfer leg: got %v", err)
	}

	parent := mustTransaction(t, s, core.Transaction{Type: core.Expense, Amount: dec("20"), Date: today, AccountID: a.ID, Category: core.SingleCategory(food.ID, "")})
	if _, _, err := s.ReplaceSplits(ctx, parent.ID, []SplitInput{{CategoryID: food.ID, Amount: "20"}}); err != nil {
		t.Fatal(err)
	}
	parent.Amount = dec("25")
	if _, err := s.UpdateTransaction(ctx, parent); !errors.As(err, &ce) || ce.Invariant != core.InvariantSplitSum {
		t.Errorf("changing a split parent's amount: got %v", err)
	}

	parent.Amount = dec("20")
	parent.Description = "lunch"
	updated, err := s.UpdateTransaction(ctx, parent)
	if err != nil {
		t.Fatalf("description edit on split parent: %v", err)
	}
	if !updated.IsSplit() || !updated.Amount.Equal(dec("-20")) {
		t.Errorf("split parent lost its split state: %+v", updated)
	}
}

func TestCreateTransactionNormalizesSign(t *testing.T) {
	s, _ := newTestService(t)
	a := mustAccount(t, s, "A", "0")

	expense := mustTransaction(t, s, core.Transaction{Type: core.Expense, Amount: dec("12.345"), Date: today, AccountID: a.ID})
	if !expense.Amount.Equal(dec("-12.35")) {
		t.Errorf("expense amount = %s, want -12.35", expense.Amount)
	}
	income := mustTransaction(t, s, core.Transaction{Type: core.Income, Amount: dec("-40"), Date: today, AccountID: a.ID})
	if !income.Amount.Equal(dec("40")) {
		t.Errorf("income amount = %s, want 40", income.Amount)
	}

	_, err := s.CreateTransaction(context.Background(), core.Transaction{UserID: user, Type: core.Transfer, Amount: dec("1"), Date: today})
	if !core.IsValidation(err) {
		t.Errorf("transfer through CreateTransaction: got %v", err)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	s, _ := newTestService(t, WithEvents(pub))

	a := mustAccount(t, s, "A", "0")
	b := mustAccount(t, s, "B", "0")
	debit, credit, err := s.CreateTransfer(ctx, TransferInput{UserID: user, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("5"), Date: today})
	if err != nil {
		t.Fatalf("a failing publisher must not fail the mutation: %v", err)
	}

	last := pub.events[len(pub.events)-1]
	if last.Kind != amqp.EventTransferCreated {
		t.Errorf("last event kind = %s", last.Kind)
	}
	if diff := cmp.Diff([]string{debit.ID, credit.ID}, last.IDs); diff != "" {
		t.Errorf("event ids mismatch (-want +got):\n%s", diff)
	}
}
