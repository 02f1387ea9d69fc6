package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/core"
)

type accountCreateCmd struct {
	name string
	kind string
}

func (*accountCreateCmd) Name() string     { return "account-create" }
func (*accountCreateCmd) Synopsis() string { return "open a new account" }
func (*accountCreateCmd) Usage() string {
	return `ledgerctl -user <user> account-create -name <name> [-kind cash|bank|card|savings]

  Opens an empty account owned by the user.
`
}

func (c *accountCreateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name of the account")
	f.StringVar(&c.kind, "kind", string(core.AccountBank), "Account kind: cash, bank, card or savings")
}

func (c *accountCreateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		acc, err := a.ledger.CreateAccount(ctx, user, c.name, core.AccountKind(c.kind))
		if err != nil {
			return err
		}
		fmt.Printf("Created account %d (%s, %s)\n", acc.ID, acc.Name, acc.Kind)
		return nil
	})
}

type accountListCmd struct{}

func (*accountListCmd) Name() string     { return "accounts" }
func (*accountListCmd) Synopsis() string { return "list accounts with their current balance" }
func (*accountListCmd) Usage() string {
	return `ledgerctl -user <user> accounts

  Lists the user's accounts with the resolved balance and the checkpoint it
  was derived from.
`
}

func (*accountListCmd) SetFlags(*flag.FlagSet) {}

func (*accountListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		accounts, err := a.ledger.ListAccounts(ctx, user)
		if err != nil {
			return err
		}

		t := newTable("ID", "Name", "Kind", "Balance", "Checkpoint")
		for _, acc := range accounts {
			b, err := a.ledger.ResolveBalance(ctx, acc.ID)
			if err != nil {
				return err
			}
			t.row(strconv.FormatInt(acc.ID, 10), acc.Name, string(acc.Kind), b.Amount.String(), formatTime(b.AsOf))
		}
		printMarkdown(t.String())
		return nil
	})
}

type accountDeleteCmd struct {
	id int64
}

func (*accountDeleteCmd) Name() string     { return "account-delete" }
func (*accountDeleteCmd) Synopsis() string { return "delete an account without transactions" }
func (*accountDeleteCmd) Usage() string {
	return `ledgerctl -user <user> account-delete -id <account>

  Deletes an account and its checkpoints. Accounts still referenced by any
  transaction cannot be deleted.
`
}

func (c *accountDeleteCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Account id")
}

func (c *accountDeleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		if err := a.ledger.DeleteAccount(ctx, user, c.id); err != nil {
			return err
		}
		fmt.Printf("Deleted account %d\n", c.id)
		return nil
	})
}
