package storage

import (
	"context"
	"database/sql"
)

const accountColumns = `id, user_id, name, kind, created_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var i Account
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.Kind, &i.CreatedAt)
	return i, err
}

func collectAccounts(rows *sql.Rows, err error) ([]Account, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		i, err := scanAccount(rows)
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

const createAccount = `INSERT INTO accounts (user_id, name, kind, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + accountColumns

type CreateAccountParams struct {
	UserID    string
	Name      string
	Kind      string
	CreatedAt int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount, arg.UserID, arg.Name, arg.Kind, arg.CreatedAt)
	return scanAccount(row)
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, id))
}

const listAccountsByUser = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? ORDER BY id`

func (q *Queries) ListAccountsByUser(ctx context.Context, userID string) ([]Account, error) {
	return collectAccounts(q.db.QueryContext(ctx, listAccountsByUser, userID))
}

const listAccountsAfter = `SELECT ` + accountColumns + ` FROM accounts WHERE id > ? ORDER BY id LIMIT ?`

type ListAccountsAfterParams struct {
	AfterID int64
	Limit   int64
}

func (q *Queries) ListAccountsAfter(ctx context.Context, arg ListAccountsAfterParams) ([]Account, error) {
	return collectAccounts(q.db.QueryContext(ctx, listAccountsAfter, arg.AfterID, arg.Limit))
}

const countAccountTransactions = `SELECT COUNT(*) FROM transactions
WHERE account_id = ? OR counter_account_id = ?`

func (q *Queries) CountAccountTransactions(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countAccountTransactions, accountID, accountID).Scan(&count)
	return count, err
}

const deleteAccount = `DELETE FROM accounts WHERE id = ?`

func (q *Queries) DeleteAccount(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAccount, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
