// Command ledgerctl runs ledger maintenance and reports from the shell.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "ledger")
	}
	commander.Register(&migrateCmd{}, "admin")
	commander.Register(&validateSplitCmd{}, "tools")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
