package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/MYH-Projet/dirhamy/internal/core"
)

type categoryCreateCmd struct {
	name  string
	limit string
}

func (*categoryCreateCmd) Name() string     { return "category-create" }
func (*categoryCreateCmd) Synopsis() string { return "create a spending category" }
func (*categoryCreateCmd) Usage() string {
	return `ledgerctl -user <user> category-create -name <name> [-limit <amount>]

  Creates a category. With -limit the category gets a monthly spend limit.
`
}

func (c *categoryCreateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Category name, unique per user")
	f.StringVar(&c.limit, "limit", "", "Optional monthly spend limit, e.g. 450.00")
}

func (c *categoryCreateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		var limit *core.Money
		if c.limit != "" {
			m, err := parseLimit(c.limit)
			if err != nil {
				return err
			}
			limit = &m
		}
		cat, err := a.budget.CreateCategory(ctx, user, c.name, limit)
		if err != nil {
			return err
		}
		fmt.Printf("Created category %d (%s)\n", cat.ID, cat.Name)
		return nil
	})
}

type categoryListCmd struct{}

func (*categoryListCmd) Name() string     { return "categories" }
func (*categoryListCmd) Synopsis() string { return "list categories and their limits" }
func (*categoryListCmd) Usage() string {
	return `ledgerctl -user <user> categories
`
}

func (*categoryListCmd) SetFlags(*flag.FlagSet) {}

func (*categoryListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		categories, err := a.budget.ListCategories(ctx, user)
		if err != nil {
			return err
		}

		t := newTable("ID", "Name", "Limit")
		for _, c := range categories {
			limit := "none"
			if c.Limit != nil {
				limit = c.Limit.String()
			}
			t.row(strconv.FormatInt(c.ID, 10), c.Name, limit)
		}
		printMarkdown(t.String())
		return nil
	})
}

type categoryLimitCmd struct {
	id    int64
	limit string
	clear bool
}

func (*categoryLimitCmd) Name() string     { return "category-limit" }
func (*categoryLimitCmd) Synopsis() string { return "set or clear the monthly limit of a category" }
func (*categoryLimitCmd) Usage() string {
	return `ledgerctl -user <user> category-limit -id <category> (-limit <amount> | -clear)

  Sets the monthly spend limit of a category, or removes it with -clear.
  A zero limit is allowed and reports 0% usage.
`
}

func (c *categoryLimitCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Category id")
	f.StringVar(&c.limit, "limit", "", "New monthly limit, e.g. 450.00")
	f.BoolVar(&c.clear, "clear", false, "Remove the limit")
}

func (c *categoryLimitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.clear == (c.limit != "") {
		return fail(fmt.Errorf("%w: exactly one of -limit and -clear is required", core.ErrValidation))
	}
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		if c.clear {
			if err := a.budget.ClearCategoryLimit(ctx, user, c.id); err != nil {
				return err
			}
			fmt.Printf("Cleared limit of category %d\n", c.id)
			return nil
		}
		limit, err := parseLimit(c.limit)
		if err != nil {
			return err
		}
		if err := a.budget.SetCategoryLimit(ctx, user, c.id, limit); err != nil {
			return err
		}
		fmt.Printf("Set limit of category %d to %s\n", c.id, limit)
		return nil
	})
}

type budgetCmd struct{}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "show spend against limits for the current month" }
func (*budgetCmd) Usage() string {
	return `ledgerctl -user <user> budget

  Reports, for every category with a limit, the expense spend of the current
  calendar month (UTC), what remains and the share of the limit used.
`
}

func (*budgetCmd) SetFlags(*flag.FlagSet) {}

func (*budgetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		user, err := owner()
		if err != nil {
			return err
		}
		statuses, err := a.budget.ResolveBudgetStatus(ctx, user)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("No category has a limit.")
			return nil
		}

		md := fmt.Sprintf("## Budget %s\n\n", statuses[0].PeriodStart.Format("January 2006"))
		t := newTable("Category", "Limit", "Spent", "Remaining", "Used")
		for _, s := range statuses {
			t.row(s.Name, s.Limit.String(), s.Spent.String(), s.Remaining.String(), s.Percentage.StringFixed(2)+"%")
		}
		printMarkdown(md + t.String())
		return nil
	})
}
