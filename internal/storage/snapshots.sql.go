package storage

import (
	"context"
)

const balanceSnapshotColumns = `id, account_id, snapshot_at, balance_cents, created_at`

func scanBalanceSnapshot(row interface{ Scan(...any) error }) (BalanceSnapshot, error) {
	var i BalanceSnapshot
	err := row.Scan(&i.ID, &i.AccountID, &i.SnapshotAt, &i.BalanceCents, &i.CreatedAt)
	return i, err
}

const createBalanceSnapshot = `INSERT INTO balance_snapshots (account_id, snapshot_at, balance_cents, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + balanceSnapshotColumns

type CreateBalanceSnapshotParams struct {
	AccountID    int64
	SnapshotAt   int64
	BalanceCents int64
	CreatedAt    int64
}

func (q *Queries) CreateBalanceSnapshot(ctx context.Context, arg CreateBalanceSnapshotParams) (BalanceSnapshot, error) {
	row := q.db.QueryRowContext(ctx, createBalanceSnapshot, arg.AccountID, arg.SnapshotAt, arg.BalanceCents, arg.CreatedAt)
	return scanBalanceSnapshot(row)
}

const getLatestBalanceSnapshot = `SELECT ` + balanceSnapshotColumns + ` FROM balance_snapshots
WHERE account_id = ?
ORDER BY snapshot_at DESC, id DESC
LIMIT 1`

func (q *Queries) GetLatestBalanceSnapshot(ctx context.Context, accountID int64) (BalanceSnapshot, error) {
	return scanBalanceSnapshot(q.db.QueryRowContext(ctx, getLatestBalanceSnapshot, accountID))
}

const getLatestBalanceSnapshotAt = `SELECT ` + balanceSnapshotColumns + ` FROM balance_snapshots
WHERE account_id = ? AND snapshot_at <= ?
ORDER BY snapshot_at DESC, id DESC
LIMIT 1`

type GetLatestBalanceSnapshotAtParams struct {
	AccountID int64
	At        int64
}

func (q *Queries) GetLatestBalanceSnapshotAt(ctx context.Context, arg GetLatestBalanceSnapshotAtParams) (BalanceSnapshot, error) {
	return scanBalanceSnapshot(q.db.QueryRowContext(ctx, getLatestBalanceSnapshotAt, arg.AccountID, arg.At))
}

const listBalanceSnapshots = `SELECT ` + balanceSnapshotColumns + ` FROM balance_snapshots
WHERE account_id = ?
ORDER BY snapshot_at, id`

func (q *Queries) ListBalanceSnapshots(ctx context.Context, accountID int64) ([]BalanceSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listBalanceSnapshots, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceSnapshot
	for rows.Next() {
		i, err := scanBalanceSnapshot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// The increment happens inside the UPDATE so concurrent corrections to the
// same row cannot lose each other.
const shiftBalanceSnapshots = `UPDATE balance_snapshots
SET balance_cents = balance_cents + ?
WHERE account_id = ? AND snapshot_at >= ?`

type ShiftBalanceSnapshotsParams struct {
	Delta     int64
	AccountID int64
	From      int64
}

func (q *Queries) ShiftBalanceSnapshots(ctx context.Context, arg ShiftBalanceSnapshotsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, shiftBalanceSnapshots, arg.Delta, arg.AccountID, arg.From)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const budgetSnapshotColumns = `id, category_id, period_start, as_of, spent_cents, limit_cents`

func scanBudgetSnapshot(row interface{ Scan(...any) error }) (BudgetSnapshot, error) {
	var i BudgetSnapshot
	err := row.Scan(&i.ID, &i.CategoryID, &i.PeriodStart, &i.AsOf, &i.SpentCents, &i.LimitCents)
	return i, err
}

const upsertBudgetSnapshot = `INSERT INTO budget_snapshots (category_id, period_start, as_of, spent_cents, limit_cents)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (category_id, period_start) DO UPDATE SET
    as_of = excluded.as_of,
    spent_cents = excluded.spent_cents,
    limit_cents = excluded.limit_cents
RETURNING ` + budgetSnapshotColumns

type UpsertBudgetSnapshotParams struct {
	CategoryID  int64
	PeriodStart int64
	AsOf        int64
	SpentCents  int64
	LimitCents  int64
}

func (q *Queries) UpsertBudgetSnapshot(ctx context.Context, arg UpsertBudgetSnapshotParams) (BudgetSnapshot, error) {
	row := q.db.QueryRowContext(ctx, upsertBudgetSnapshot, arg.CategoryID, arg.PeriodStart, arg.AsOf, arg.SpentCents, arg.LimitCents)
	return scanBudgetSnapshot(row)
}

const getLatestBudgetSnapshot = `SELECT ` + budgetSnapshotColumns + ` FROM budget_snapshots
WHERE category_id = ?
ORDER BY period_start DESC
LIMIT 1`

func (q *Queries) GetLatestBudgetSnapshot(ctx context.Context, categoryID int64) (BudgetSnapshot, error) {
	return scanBudgetSnapshot(q.db.QueryRowContext(ctx, getLatestBudgetSnapshot, categoryID))
}

// A budget snapshot has absorbed a transaction when the transaction falls
// between the period start and the snapshot's as_of instant.
const shiftBudgetSnapshots = `UPDATE budget_snapshots
SET spent_cents = spent_cents + ?
WHERE category_id = ? AND period_start <= ? AND as_of >= ?`

type ShiftBudgetSnapshotsParams struct {
	Delta      int64
	CategoryID int64
	At         int64
}

func (q *Queries) ShiftBudgetSnapshots(ctx context.Context, arg ShiftBudgetSnapshotsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, shiftBudgetSnapshots, arg.Delta, arg.CategoryID, arg.At, arg.At)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
