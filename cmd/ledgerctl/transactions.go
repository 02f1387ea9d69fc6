package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/core"
)

type txCreateCmd struct {
	kind        string
	account     int64
	to          int64
	category    int64
	amount      string
	description string
	at          string
}

func (*txCreateCmd) Name() string     { return "tx-create" }
func (*txCreateCmd) Synopsis() string { return "record an expense, income or transfer" }
func (*txCreateCmd) Usage() string {
	return `ledgerctl -user <user> tx-create -kind expense|income|transfer -account <id> [-to <id>]
          -amount <amount> -desc <text> [-category <id>] [-at <time>]

  Records a transaction. The amount is always a positive magnitude; the stored
  sign follows the kind. Transfers need -to and create one leg on each account.
  Backdated transactions (-at in the past) correct every later checkpoint.
`
}

func (c *txCreateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "expense", "Transaction kind: expense, income or transfer")
	f.Int64Var(&c.account, "account", 0, "Account id (transfer source)")
	f.Int64Var(&c.to, "to", 0, "Destination account id for transfers")
	f.Int64Var(&c.category, "category", 0, "Optional category id")
	f.StringVar(&c.amount, "amount", "", "Positive amount, e.g. 12.34")
	f.StringVar(&c.description, "desc", "", "Description")
	f.StringVar(&c.at, "at", "", "When it happened, RFC 3339 or YYYY-MM-DD. Defaults to now")
}

func (c *txCreateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		amount, err := parseAmount(c.amount)
		if err != nil {
			return err
		}
		at, err := parseTime(c.at)
		if err != nil {
			return err
		}

		tx, err := a.ledger.CreateTransaction(ctx, core.NewTransaction{
			UserID:               user,
			Kind:                 core.Kind(strings.ToUpper(c.kind)),
			Amount:               amount,
			CategoryID:           c.category,
			AccountID:            c.account,
			DestinationAccountID: c.to,
			Description:          c.description,
			OccurredAt:           at,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Recorded transaction %d: %s %s on account %d\n", tx.ID, tx.Kind, tx.Amount, tx.AccountID)
		return nil
	})
}

type txUpdateCmd struct {
	id          int64
	amount      string
	description string
	category    int64
	at          string
}

func (*txUpdateCmd) Name() string     { return "tx-update" }
func (*txUpdateCmd) Synopsis() string { return "edit amount, description, category or date of a transaction" }
func (*txUpdateCmd) Usage() string {
	return `ledgerctl -user <user> tx-update -id <tx> -amount <amount> -desc <text> [-category <id>] [-at <time>]

  Replaces the editable fields of a transaction. The kind cannot change.
  Editing either leg of a transfer updates both legs. Without -at the
  timestamp is kept; with it the transaction moves in time and every
  affected checkpoint is corrected.
`
}

func (c *txUpdateCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Transaction id")
	f.StringVar(&c.amount, "amount", "", "New positive amount")
	f.StringVar(&c.description, "desc", "", "New description")
	f.Int64Var(&c.category, "category", 0, "New category id, 0 to uncategorise")
	f.StringVar(&c.at, "at", "", "New timestamp, RFC 3339 or YYYY-MM-DD")
}

func (c *txUpdateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		amount, err := parseAmount(c.amount)
		if err != nil {
			return err
		}
		u := core.TransactionUpdate{
			UserID:      user,
			ID:          c.id,
			Amount:      amount,
			Description: c.description,
			CategoryID:  c.category,
		}
		if c.at != "" {
			at, err := parseTime(c.at)
			if err != nil {
				return err
			}
			u.OccurredAt = &at
		}

		tx, err := a.ledger.UpdateTransaction(ctx, u)
		if err != nil {
			return err
		}
		fmt.Printf("Updated transaction %d: %s %s at %s\n", tx.ID, tx.Kind, tx.Amount, formatTime(tx.OccurredAt))
		return nil
	})
}

type txDeleteCmd struct {
	id int64
}

func (*txDeleteCmd) Name() string     { return "tx-delete" }
func (*txDeleteCmd) Synopsis() string { return "delete a transaction" }
func (*txDeleteCmd) Usage() string {
	return `ledgerctl -user <user> tx-delete -id <tx>

  Deletes a transaction. Deleting either leg of a transfer deletes both.
`
}

func (c *txDeleteCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Transaction id")
}

func (c *txDeleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		if err := a.ledger.DeleteTransaction(ctx, user, c.id); err != nil {
			return err
		}
		fmt.Printf("Deleted transaction %d\n", c.id)
		return nil
	})
}

type txListCmd struct {
	account int64
	tail    int
}

func (*txListCmd) Name() string     { return "tx" }
func (*txListCmd) Synopsis() string { return "list the transactions of an account" }
func (*txListCmd) Usage() string {
	return `ledgerctl -user <user> tx -account <id> [-tail <n>]

  Lists an account's transactions in date order.
`
}

func (c *txListCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account id")
	f.IntVar(&c.tail, "tail", 0, "Show only the last N transactions")
}

func (c *txListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		txs, err := a.ledger.AccountTransactions(ctx, user, c.account)
		if err != nil {
			return err
		}
		if c.tail > 0 && len(txs) > c.tail {
			txs = txs[len(txs)-c.tail:]
		}

		t := newTable("ID", "Date", "Kind", "Amount", "Category", "Description", "Counter account")
		for _, tx := range txs {
			category, counter := "", ""
			if tx.CategoryID != 0 {
				category = strconv.FormatInt(tx.CategoryID, 10)
			}
			if tx.CounterAccountID != 0 {
				counter = strconv.FormatInt(tx.CounterAccountID, 10)
			}
			t.row(strconv.FormatInt(tx.ID, 10), formatTime(tx.OccurredAt), string(tx.Kind), tx.Amount.String(),
				category, strings.ReplaceAll(tx.Description, "|", `\|`), counter)
		}
		printMarkdown(t.String())
		return nil
	})
}
