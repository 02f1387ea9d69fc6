// Package budget keeps per-category monthly spend checkpoints and reports
// spend against configured limits.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

const defaultPageSize = 100

var hundred = decimal.NewFromInt(100)

// Status is the spend of one limited category in the current period.
type Status struct {
	CategoryID  int64
	Name        string
	Limit       core.Money
	Spent       core.Money
	Remaining   core.Money
	Percentage  decimal.Decimal
	PeriodStart time.Time
}

type Aggregator struct {
	repo     *storage.SQLiteRepository
	logger   *log.Logger
	now      func() time.Time
	pageSize int
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithPageSize bounds how many categories the monthly sweep loads at once.
func WithPageSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

func NewAggregator(repo *storage.SQLiteRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:     repo,
		logger:   log.Default(log.ComponentBudget),
		now:      time.Now,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) CreateCategory(ctx context.Context, userID, name string, limit *core.Money) (core.Category, error) {
	c := core.Category{UserID: userID, Name: name, Limit: limit}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := a.repo.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	a.logger.InfoContext(ctx, "Category created",
		log.FieldCategoryID, created.ID,
		log.FieldUserID, userID)
	return created, nil
}

func (a *Aggregator) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return a.repo.ListCategories(ctx, userID)
}

// SetCategoryLimit configures a spend limit. Zero is a valid limit.
func (a *Aggregator) SetCategoryLimit(ctx context.Context, userID string, categoryID int64, limit core.Money) error {
	if limit.Cents < 0 {
		return core.ErrNegativeLimit
	}
	return a.setLimit(ctx, userID, categoryID, &limit)
}

func (a *Aggregator) ClearCategoryLimit(ctx context.Context, userID string, categoryID int64) error {
	return a.setLimit(ctx, userID, categoryID, nil)
}

func (a *Aggregator) setLimit(ctx context.Context, userID string, categoryID int64, limit *core.Money) error {
	err := a.repo.WithTx(ctx, func(st *storage.Store) error {
		c, err := st.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return fmt.Errorf("category %d: %w", categoryID, core.ErrForbidden)
		}
		return st.SetCategoryLimit(ctx, categoryID, limit)
	})
	if err != nil {
		return err
	}

	args := []any{log.FieldCategoryID, categoryID}
	if limit != nil {
		args = append(args, log.FieldLimitCents, limit.Cents)
	}
	a.logger.InfoContext(ctx, "Category limit updated", args...)
	return nil
}

// ResolveBudgetStatus reports spend for every category of the user that has
// a limit. The checkpoint is the category's budget snapshot when it belongs to
// the current period, otherwise the period start with zero spend.
func (a *Aggregator) ResolveBudgetStatus(ctx context.Context, userID string) ([]Status, error) {
	now := a.now()
	periodStart := core.PeriodStart(now)
	periodEnd := core.PeriodEnd(now)

	var out []Status
	err := a.repo.ReadTx(ctx, func(st *storage.Store) error {
		categories, err := st.ListLimitedCategories(ctx, userID)
		if err != nil {
			return err
		}

		out = make([]Status, 0, len(categories))
		for _, c := range categories {
			checkpoint := periodStart.Add(-time.Millisecond)
			var spent core.Money

			snap, ok, err := st.LatestBudgetSnapshot(ctx, c.ID)
			if err != nil {
				return err
			}
			if ok && core.SamePeriod(snap.PeriodStart, now) {
				checkpoint = snap.AsOf
				spent = snap.Spent
			}

			since, err := st.SumCategorySpend(ctx, c.ID, checkpoint, periodEnd)
			if err != nil {
				return err
			}
			out = append(out, newStatus(c, spent.Add(since), periodStart))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve budget status: %w", err)
	}
	return out, nil
}

func newStatus(c core.Category, spent core.Money, periodStart time.Time) Status {
	var limit core.Money
	if c.Limit != nil {
		limit = *c.Limit
	}
	return Status{
		CategoryID:  c.ID,
		Name:        c.Name,
		Limit:       limit,
		Spent:       spent,
		Remaining:   limit.Sub(spent),
		Percentage:  percentage(spent, limit),
		PeriodStart: periodStart,
	}
}

// percentage is spent as a share of limit, rounded to two places. A zero limit
// reports zero rather than dividing by it.
func percentage(spent, limit core.Money) decimal.Decimal {
	if limit.Cents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(spent.Cents).
		Mul(hundred).
		Div(decimal.NewFromInt(limit.Cents)).
		Round(2)
}

// ClosePeriod upserts the budget snapshot of the period containing at, with
// the category's expense spend from the period start through at.
func (a *Aggregator) ClosePeriod(ctx context.Context, categoryID int64, at time.Time) (core.BudgetSnapshot, error) {
	periodStart := core.PeriodStart(at)

	var snap core.BudgetSnapshot
	err := a.repo.WithTx(ctx, func(st *storage.Store) error {
		c, err := st.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		spent, err := st.SumCategorySpend(ctx, c.ID, periodStart.Add(-time.Millisecond), at.Add(time.Millisecond))
		if err != nil {
			return err
		}
		var limit core.Money
		if c.Limit != nil {
			limit = *c.Limit
		}
		snap, err = st.UpsertBudgetSnapshot(ctx, core.BudgetSnapshot{
			CategoryID:  c.ID,
			PeriodStart: periodStart,
			AsOf:        at,
			Spent:       spent,
			Limit:       limit,
		})
		return err
	})
	if err != nil {
		return core.BudgetSnapshot{}, fmt.Errorf("close period for category %d: %w", categoryID, err)
	}
	return snap, nil
}

// RunMonthlyBudgetSweep closes the current period for every category. A
// failure on one category is logged and counted; the sweep continues.
func (a *Aggregator) RunMonthlyBudgetSweep(ctx context.Context) (core.SweepResult, error) {
	start := time.Now()
	at := a.now()
	var result core.SweepResult

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := a.repo.CategoriesAfter(ctx, cursor, a.pageSize)
		if err != nil {
			return result, fmt.Errorf("load categories after %d: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			if _, err := a.ClosePeriod(ctx, c.ID, at); err != nil {
				result.Failed++
				a.logger.ErrorContext(ctx, "Budget period close failed",
					log.FieldCategoryID, c.ID,
					log.FieldError, err,
					log.FieldErrorType, core.ErrorType(err))
				continue
			}
			result.Processed++
		}
		cursor = page[len(page)-1].ID

		if len(page) < a.pageSize {
			break
		}
	}

	a.logger.InfoContext(ctx, "Monthly budget sweep completed",
		log.FieldProcessed, result.Processed,
		log.FieldFailed, result.Failed,
		log.FieldPeriod, core.PeriodStart(at).Format("2006-01"),
		log.FieldDuration, time.Since(start).Milliseconds())
	return result, nil
}
