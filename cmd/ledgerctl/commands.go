package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"wealthflow/internal/amqp"
	"wealthflow/internal/core"
	"wealthflow/internal/services"
	"wealthflow/internal/storage"
)

var commands = []subcommands.Command{
	&balanceCmd{},
	&budgetCmd{},
	&goalCmd{},
	&generateCmd{},
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// asOfDate parses -as-of, where an empty value means today.
func asOfDate(v string, ledger *services.LedgerService) (core.Date, error) {
	if v == "" {
		return ledger.Today(), nil
	}
	return core.ParseDate(v)
}

type balanceCmd struct {
	user string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print computed account balances" }
func (*balanceCmd) Usage() string {
	return `ledgerctl balance -user <id> [account-id ...]

  Prints the balance of the given accounts, or of every account of the user,
  computed from the opening balance and the posted transactions.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Ledger user whose accounts are listed.")
}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" && f.NArg() == 0 {
		return fail("balance: -user or account ids required")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return fail("balance: %v", err)
	}
	defer e.close()

	var accounts []core.Account
	if f.NArg() > 0 {
		for _, id := range f.Args() {
			a, err := e.ledger.GetAccount(ctx, id)
			if err != nil {
				return fail("balance: %v", err)
			}
			accounts = append(accounts, a)
		}
	} else if accounts, err = e.ledger.ListAccounts(ctx, c.user); err != nil {
		return fail("balance: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tNAME\tBALANCE")
	for _, a := range accounts {
		b, err := e.ledger.ComputeAccountBalance(ctx, a.ID)
		if err != nil {
			return fail("balance: %v", err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Name, core.FormatAmount(b, a.Currency))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type budgetCmd struct {
	user string
	asOf string
}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "print the budget report of a user" }
func (*budgetCmd) Usage() string {
	return `ledgerctl budget -user <id> [-as-of YYYY-MM-DD]

  Prints spend against every budget of the user for the period containing
  the as-of date.
`
}

func (c *budgetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Ledger user.")
	f.StringVar(&c.asOf, "as-of", "", "Report date (defaults to today).")
}

func (c *budgetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		return fail("budget: -user required")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return fail("budget: %v", err)
	}
	defer e.close()

	asOf, err := asOfDate(c.asOf, e.ledger)
	if err != nil {
		return fail("budget: -as-of: %v", err)
	}
	report, err := e.ledger.BudgetReport(ctx, c.user, asOf)
	if err != nil {
		return fail("budget: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSPENT\tBUDGET\tUSED\tSTATUS\tSINCE")
	for _, s := range report {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			s.Category, s.Spent.StringFixed(2), s.Amount.StringFixed(2), s.Percentage, s.Status, s.PeriodStart)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type goalCmd struct{}

func (*goalCmd) Name() string     { return "goal" }
func (*goalCmd) Synopsis() string { return "print the progress of a goal" }
func (*goalCmd) Usage() string {
	return `ledgerctl goal <goal-id>

  Prints the goal's progress and, for trip goals, each item's budget,
  actual spend and selected quote.
`
}

func (*goalCmd) SetFlags(*flag.FlagSet) {}

func (*goalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return fail("goal: exactly one goal id required")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return fail("goal: %v", err)
	}
	defer e.close()

	p, err := e.ledger.ComputeGoalProgress(ctx, f.Arg(0))
	if err != nil {
		return fail("goal: %v", err)
	}
	fmt.Printf("%s: %s of %s (%d%%)", p.Name, p.CurrentAmount.StringFixed(2), p.TargetAmount.StringFixed(2), p.Percentage)
	if p.IsCompleted {
		fmt.Print(" completed")
	}
	fmt.Println()

	if len(p.Items) == 0 {
		return subcommands.ExitSuccess
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tSTATUS\tBUDGET\tSPENT\tQUOTE\tVARIANCE")
	for _, it := range p.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Name, it.Status, it.BudgetAmount.StringFixed(2), it.ActualSpent.StringFixed(2),
			it.SelectedQuoteAmount.StringFixed(2), it.VarianceLabel)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type generateCmd struct {
	user  string
	asOf  string
	async bool
}

func (*generateCmd) Name() string     { return "generate" }
func (*generateCmd) Synopsis() string { return "materialize due recurring transactions" }
func (*generateCmd) Usage() string {
	return `ledgerctl generate [-user <id>] [-as-of YYYY-MM-DD] [-async]

  Generates every due occurrence of the active recurring rules up to the
  as-of date. Without -user every user's rules run. With -async the request
  is queued for recurring-worker instead.
`
}

func (c *generateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Only run this user's rules.")
	f.StringVar(&c.asOf, "as-of", "", "Generate up to this date (defaults to today).")
	f.BoolVar(&c.async, "async", false, "Queue the run on AMQP_RECURRING_QUEUE.")
}

func (c *generateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		return fail("generate: %v", err)
	}
	defer e.close()

	asOf, err := asOfDate(c.asOf, e.ledger)
	if err != nil {
		return fail("generate: -as-of: %v", err)
	}

	if c.async {
		if e.backend.Runs == nil {
			return fail("generate: -async needs AMQP_URL")
		}
		if err := e.backend.Runs.PublishRecurringRun(ctx, amqp.NewRecurringRunRequest(c.user, asOf.String())); err != nil {
			return fail("generate: %v", err)
		}
		fmt.Printf("queued recurring run up to %s\n", asOf)
		return subcommands.ExitSuccess
	}

	created, err := e.ledger.GenerateDueRecurring(ctx, c.user, asOf)
	for _, id := range created {
		fmt.Println(id)
	}
	if err != nil {
		return fail("generate: %v", err)
	}
	fmt.Fprintf(os.Stderr, "created %d transactions up to %s\n", len(created), asOf)
	return subcommands.ExitSuccess
}

type migrateCmd struct {
	status bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the embedded schema migrations" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate [-status]

  Brings the configured SQL database (DATA_BACKEND=sqlite|mysql) up to the
  latest schema and prints the applied version.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.status, "status", false, "Only print the applied version.")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		return fail("migrate: %v", err)
	}
	defer e.close()

	var (
		dialect storage.Dialect
		dsn     string
	)
	switch e.cfg.DataBackend {
	case "sqlite":
		dialect, dsn = storage.SQLite, e.cfg.SQLiteDBPath
	case "mysql":
		dialect, dsn = storage.MySQL, e.cfg.MySQLDSN
	default:
		fmt.Printf("%s backend has no schema\n", e.cfg.DataBackend)
		return subcommands.ExitSuccess
	}

	// no-op when opening the backend already migrated
	if !c.status {
		if err := storage.RunMigrations(dialect, dsn); err != nil {
			return fail("migrate: %v", err)
		}
	}
	version, dirty, err := storage.MigrationVersion(dialect, dsn)
	if err != nil {
		return fail("migrate: %v", err)
	}
	fmt.Printf("%s schema version %d", dialect, version)
	if dirty {
		fmt.Print(" (dirty)")
	}
	fmt.Println()
	return subcommands.ExitSuccess
}

type validateSplitCmd struct {
	currency string
}

func (*validateSplitCmd) Name() string     { return "validate-split" }
func (*validateSplitCmd) Synopsis() string { return "check split rows against a parent amount" }
func (*validateSplitCmd) Usage() string {
	return `ledgerctl validate-split [-currency USD] <amount> <category-id>=<amount> ...

  Checks that the rows add up to the amount within one cent and prints each
  row's share, or how much is missing or over.
`
}

func (c *validateSplitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", core.DefaultCurrency, "Currency used to display the difference.")
}

func (c *validateSplitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return fail("validate-split: an amount and at least one row required")
	}
	amount, err := core.ParseAmount(f.Arg(0))
	if err != nil {
		return fail("validate-split: amount %q: %v", f.Arg(0), err)
	}
	rows, err := parseSplitRows(f.Args()[1:])
	if err != nil {
		return fail("validate-split: %v", err)
	}

	allocations, err := services.ValidateSplit(amount, rows)
	if err != nil {
		var se *core.SplitSumError
		if errors.As(err, &se) {
			se.Currency = c.currency
			return fail("validate-split: %s", se.Message())
		}
		return fail("validate-split: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tAMOUNT\tSHARE")
	for _, a := range allocations {
		fmt.Fprintf(w, "%s\t%s\t%d%%\n", a.CategoryID, core.FormatAmount(a.Amount, c.currency), a.Percentage)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

// parseSplitRows reads category=amount arguments.
func parseSplitRows(args []string) ([]services.SplitInput, error) {
	rows := make([]services.SplitInput, 0, len(args))
	for _, arg := range args {
		category, amount, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(category) == "" {
			return nil, fmt.Errorf("row %q: want <category-id>=<amount>", arg)
		}
		rows = append(rows, services.SplitInput{CategoryID: strings.TrimSpace(category), Amount: strings.TrimSpace(amount)})
	}
	return rows, nil
}

