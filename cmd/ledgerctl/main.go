// Command ledgerctl is the operator CLI over the ledger: accounts, categories,
// transactions, balances, budgets, sweeps and snapshot verification.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/cli"
)

type group struct {
	name string
	cmds []subcommands.Command
}

// groups lists every ledgerctl subcommand, grouped for the help output.
var groups = []group{
	{"accounts", []subcommands.Command{&accountCreateCmd{}, &accountListCmd{}, &accountDeleteCmd{}}},
	{"budgets", []subcommands.Command{&categoryCreateCmd{}, &categoryListCmd{}, &categoryLimitCmd{}, &budgetCmd{}}},
	{"transactions", []subcommands.Command{&txCreateCmd{}, &txUpdateCmd{}, &txDeleteCmd{}, &txListCmd{}}},
	{"reports", []subcommands.Command{&balanceCmd{}}},
	{"maintenance", []subcommands.Command{&checkpointCmd{}, &sweepCmd{}, &verifyCmd{}}},
}

func main() {
	cli.LoadEnvFile()

	name := path.Base(os.Args[0])
	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	var all []subcommands.Command
	for _, g := range groups {
		for _, c := range g.cmds {
			commander.Register(c, g.name)
			all = append(all, c)
		}
	}

	// Answers shell completion requests and exits; a no-op otherwise.
	completion(all).Complete(name)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
