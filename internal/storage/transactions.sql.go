package storage

import (
	"context"
	"database/sql"
)

const transactionColumns = `id, account_id, category_id, kind, amount_cents, description, occurred_at,
transfer_id, counter_account_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.AccountID,
		&i.CategoryID,
		&i.Kind,
		&i.AmountCents,
		&i.Description,
		&i.OccurredAt,
		&i.TransferID,
		&i.CounterAccountID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createTransaction = `INSERT INTO transactions (
    account_id, category_id, kind, amount_cents, description, occurred_at,
    transfer_id, counter_account_id, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	AccountID        int64
	CategoryID       sql.NullInt64
	Kind             string
	AmountCents      int64
	Description      string
	OccurredAt       int64
	TransferID       sql.NullString
	CounterAccountID sql.NullInt64
	CreatedAt        int64
	UpdatedAt        int64
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.AccountID,
		arg.CategoryID,
		arg.Kind,
		arg.AmountCents,
		arg.Description,
		arg.OccurredAt,
		arg.TransferID,
		arg.CounterAccountID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const updateTransaction = `UPDATE transactions
SET category_id = ?, amount_cents = ?, description = ?, occurred_at = ?, updated_at = ?
WHERE id = ?`

type UpdateTransactionParams struct {
	CategoryID  sql.NullInt64
	AmountCents int64
	Description string
	OccurredAt  int64
	UpdatedAt   int64
	ID          int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTransaction,
		arg.CategoryID,
		arg.AmountCents,
		arg.Description,
		arg.OccurredAt,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listAccountTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE account_id = ?
ORDER BY occurred_at, id`

func (q *Queries) ListAccountTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listAccountTransactions, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
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

const sumAccountTransactions = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
WHERE account_id = ? AND occurred_at > ? AND occurred_at <= ?`

type SumAccountTransactionsParams struct {
	AccountID int64
	After     int64
	Through   int64
}

// SumAccountTransactions sums amounts in the half-open window (After, Through].
func (q *Queries) SumAccountTransactions(ctx context.Context, arg SumAccountTransactionsParams) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx, sumAccountTransactions, arg.AccountID, arg.After, arg.Through).Scan(&sum)
	return sum, err
}

const countAccountTransactionsAfter = `SELECT COUNT(*) FROM transactions
WHERE account_id = ? AND occurred_at > ?`

type CountAccountTransactionsAfterParams struct {
	AccountID int64
	After     int64
}

func (q *Queries) CountAccountTransactionsAfter(ctx context.Context, arg CountAccountTransactionsAfterParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countAccountTransactionsAfter, arg.AccountID, arg.After).Scan(&count)
	return count, err
}

const sumCategorySpend = `SELECT COALESCE(SUM(-amount_cents), 0) FROM transactions
WHERE category_id = ? AND kind = 'EXPENSE' AND occurred_at > ? AND occurred_at < ?`

type SumCategorySpendParams struct {
	CategoryID int64
	After      int64
	Before     int64
}

// SumCategorySpend sums expense magnitudes in the open window (After, Before).
func (q *Queries) SumCategorySpend(ctx context.Context, arg SumCategorySpendParams) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx, sumCategorySpend, arg.CategoryID, arg.After, arg.Before).Scan(&sum)
	return sum, err
}
