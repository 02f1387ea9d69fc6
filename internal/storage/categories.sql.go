package storage

import (
	"context"
	"database/sql"
)

const categoryColumns = `id, user_id, name, limit_cents`

func scanCategory(row interface{ Scan(...any) error }) (Category, error) {
	var i Category
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.LimitCents)
	return i, err
}

func collectCategories(rows *sql.Rows, err error) ([]Category, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		i, err := scanCategory(rows)
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

const createCategory = `INSERT INTO categories (user_id, name, limit_cents)
VALUES (?, ?, ?)
RETURNING ` + categoryColumns

type CreateCategoryParams struct {
	UserID     string
	Name       string
	LimitCents sql.NullInt64
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, createCategory, arg.UserID, arg.Name, arg.LimitCents))
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
}

const listCategoriesByUser = `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = ? ORDER BY name`

func (q *Queries) ListCategoriesByUser(ctx context.Context, userID string) ([]Category, error) {
	return collectCategories(q.db.QueryContext(ctx, listCategoriesByUser, userID))
}

const listLimitedCategoriesByUser = `SELECT ` + categoryColumns + ` FROM categories
WHERE user_id = ? AND limit_cents IS NOT NULL
ORDER BY name`

func (q *Queries) ListLimitedCategoriesByUser(ctx context.Context, userID string) ([]Category, error) {
	return collectCategories(q.db.QueryContext(ctx, listLimitedCategoriesByUser, userID))
}

const listCategoriesAfter = `SELECT ` + categoryColumns + ` FROM categories WHERE id > ? ORDER BY id LIMIT ?`

type ListCategoriesAfterParams struct {
	AfterID int64
	Limit   int64
}

func (q *Queries) ListCategoriesAfter(ctx context.Context, arg ListCategoriesAfterParams) ([]Category, error) {
	return collectCategories(q.db.QueryContext(ctx, listCategoriesAfter, arg.AfterID, arg.Limit))
}

const setCategoryLimit = `UPDATE categories SET limit_cents = ? WHERE id = ?`

type SetCategoryLimitParams struct {
	LimitCents sql.NullInt64
	ID         int64
}

func (q *Queries) SetCategoryLimit(ctx context.Context, arg SetCategoryLimitParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setCategoryLimit, arg.LimitCents, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
