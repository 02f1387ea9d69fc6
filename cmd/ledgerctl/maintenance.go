package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/worker"
)

type balanceCmd struct {
	account int64
	at      string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "resolve the balance of an account" }
func (*balanceCmd) Usage() string {
	return `ledgerctl -user <user> balance -account <id> [-at <time>]

  Prints the current balance, or the balance at a point in time with -at.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account id")
	f.StringVar(&c.at, "at", "", "Point in time, RFC 3339 or YYYY-MM-DD")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		var b core.Balance
		if c.at == "" {
			b, err = a.ledger.Balance(ctx, user, c.account)
			if err != nil {
				return err
			}
		} else {
			if err := mustOwn(ctx, a, user, c.account); err != nil {
				return err
			}
			at, err := parseTime(c.at)
			if err != nil {
				return err
			}
			if b, err = a.ledger.BalanceAt(ctx, c.account, at); err != nil {
				return err
			}
		}
		fmt.Printf("Account %d: %s (checkpoint %s)\n", c.account, b.Amount, formatTime(b.AsOf))
		return nil
	})
}

// mustOwn returns an error unless user owns the account.
func mustOwn(ctx context.Context, a *app, user string, accountID int64) error {
	_, err := a.ledger.GetAccount(ctx, user, accountID)
	return err
}

type checkpointCmd struct {
	account int64
	at      string
}

func (*checkpointCmd) Name() string     { return "checkpoint" }
func (*checkpointCmd) Synopsis() string { return "append a balance snapshot to an account" }
func (*checkpointCmd) Usage() string {
	return `ledgerctl -user <user> checkpoint -account <id> [-at <time>]

  Appends a snapshot holding the balance at the given time (default now).
`
}

func (c *checkpointCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account id")
	f.StringVar(&c.at, "at", "", "Snapshot time, RFC 3339 or YYYY-MM-DD. Defaults to now")
}

func (c *checkpointCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		if err := mustOwn(ctx, a, user, c.account); err != nil {
			return err
		}
		at, err := parseTime(c.at)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = time.Now().UTC()
		}
		snap, err := a.ledger.Checkpoint(ctx, c.account, at)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot %d: account %d holds %s at %s\n", snap.ID, snap.AccountID, snap.Balance, formatTime(snap.At))
		return nil
	})
}

type sweepCmd struct{}

func (*sweepCmd) Name() string     { return "sweep" }
func (*sweepCmd) Synopsis() string { return "run the snapshot or budget sweep once" }
func (*sweepCmd) Usage() string {
	return `ledgerctl sweep snapshots|budget

  snapshots  checkpoints every account at the current instant
  budget     refreshes the budget snapshot of the current month for every
             category

  Both sweeps are safe to run repeatedly. Failures are counted per account or
  category and never stop the sweep.
`
}

func (*sweepCmd) SetFlags(*flag.FlagSet) {}

func (*sweepCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Println("sweep needs exactly one target: snapshots or budget")
		return subcommands.ExitUsageError
	}
	target := f.Arg(0)
	if target != "snapshots" && target != "budget" {
		fmt.Printf("unknown sweep target %q\n", target)
		return subcommands.ExitUsageError
	}

	var failed int
	status := withApp(func(a *app) error {
		var res core.SweepResult
		var err error
		if target == "snapshots" {
			var opts []worker.Option
			if a.publisher != nil {
				opts = append(opts, worker.WithPublisher(a.publisher))
			}
			w := worker.NewSnapshotWorker(a.ledger, worker.Config{
				PageSize:    a.cfg.SweepPageSize,
				Concurrency: a.cfg.SweepConcurrency,
			}, opts...)
			res, err = w.RunDailySnapshotSweep(ctx)
		} else {
			res, err = a.budget.RunMonthlyBudgetSweep(ctx)
		}
		if err != nil {
			return err
		}
		failed = res.Failed
		fmt.Printf("Sweep %s: %d processed, %d failed\n", target, res.Processed, res.Failed)
		return nil
	})
	if status == subcommands.ExitSuccess && failed > 0 {
		return subcommands.ExitFailure
	}
	return status
}

type verifyCmd struct {
	account int64
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check snapshots against a full replay" }
func (*verifyCmd) Usage() string {
	return `ledgerctl -user <user> verify [-account <id>]

  Replays each account from zero and reports every snapshot whose stored
  balance differs from the replay. Without -account all of the user's
  accounts are verified. Exits non-zero when a mismatch is found.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account id, all accounts when omitted")
}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var diverged bool
	status := withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}

		var accounts []core.Account
		if c.account != 0 {
			acc, err := a.ledger.GetAccount(ctx, user, c.account)
			if err != nil {
				return err
			}
			accounts = append(accounts, acc)
		} else if accounts, err = a.ledger.ListAccounts(ctx, user); err != nil {
			return err
		}

		t := newTable("Account", "Snapshot", "Date", "Stored", "Replayed")
		for _, acc := range accounts {
			mismatches, err := a.ledger.VerifyAccount(ctx, acc.ID)
			if err != nil {
				return err
			}
			for _, m := range mismatches {
				diverged = true
				t.row(strconv.FormatInt(acc.ID, 10), strconv.FormatInt(m.SnapshotID, 10), formatTime(m.At), m.Stored.String(), m.Replayed.String())
			}
		}

		if !diverged {
			fmt.Printf("%d account(s) verified, every snapshot matches its replay\n", len(accounts))
			return nil
		}
		printMarkdown(t.String())
		return nil
	})
	if status == subcommands.ExitSuccess && diverged {
		return subcommands.ExitFailure
	}
	return status
}
