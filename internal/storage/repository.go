package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/core"

	_ "modernc.org/sqlite"
)

// Write connections wait for locks instead of failing, enforce foreign keys,
// and take the write lock on BEGIN so that concurrent mutations of the same
// account serialize.
const connParams = "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

// Read connections begin deferred and refuse writes. Under WAL a deferred
// transaction reads one committed snapshot without waiting for writers.
const readConnParams = "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=query_only(1)&_txlock=deferred"

type SQLiteRepository struct {
	db     *sql.DB
	readDB *sql.DB
	*Store
}

// Store exposes the ledger tables as domain values. The repository's Store
// runs each call on its own; the Store passed to WithTx runs inside one
// transaction.
type Store struct {
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations first: the migrator needs exclusive access to a fresh file.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+connParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Opened after the write pool so the file is already in WAL mode.
	readDB, err := sql.Open("sqlite", "file:"+dbPath+readConnParams)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite read pool: %w", err)
	}
	if err := readDB.Ping(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("ping read pool: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		readDB: readDB,
		Store:  &Store{queries: New(db)},
	}, nil
}

func (r *SQLiteRepository) Close() error {
	var errs []error
	if r.readDB != nil {
		errs = append(errs, r.readDB.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// WithTx runs fn inside a single database transaction. The transaction is
// committed only if fn returns nil; any error or panic rolls back every write
// fn made.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(&Store{queries: r.queries.WithTx(tx)}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadTx runs fn against one consistent snapshot of the database without
// taking the write lock. Writes inside fn fail.
func (r *SQLiteRepository) ReadTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := r.readDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&Store{queries: r.queries.WithTx(tx)})
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// lowerBound and upperBound map the zero time to an open bound.
func lowerBound(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return millis(t)
}

func upperBound(t time.Time) int64 {
	if t.IsZero() {
		return math.MaxInt64
	}
	return millis(t)
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, err)
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func toAccount(a Account) core.Account {
	return core.Account{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Kind:      core.AccountKind(a.Kind),
		CreatedAt: fromMillis(a.CreatedAt),
	}
}

func toCategory(c Category) core.Category {
	out := core.Category{ID: c.ID, UserID: c.UserID, Name: c.Name}
	if c.LimitCents.Valid {
		out.Limit = &core.Money{Cents: c.LimitCents.Int64}
	}
	return out
}

func toTransaction(t Transaction) core.Transaction {
	return core.Transaction{
		ID:               t.ID,
		AccountID:        t.AccountID,
		CategoryID:       t.CategoryID.Int64,
		Kind:             core.Kind(t.Kind),
		Amount:           core.Money{Cents: t.AmountCents},
		Description:      t.Description,
		OccurredAt:       fromMillis(t.OccurredAt),
		TransferID:       t.TransferID.String,
		CounterAccountID: t.CounterAccountID.Int64,
		CreatedAt:        fromMillis(t.CreatedAt),
		UpdatedAt:        fromMillis(t.UpdatedAt),
	}
}

func toBalanceSnapshot(s BalanceSnapshot) core.BalanceSnapshot {
	return core.BalanceSnapshot{
		ID:        s.ID,
		AccountID: s.AccountID,
		At:        fromMillis(s.SnapshotAt),
		Balance:   core.Money{Cents: s.BalanceCents},
	}
}

func toBudgetSnapshot(s BudgetSnapshot) core.BudgetSnapshot {
	return core.BudgetSnapshot{
		ID:          s.ID,
		CategoryID:  s.CategoryID,
		PeriodStart: fromMillis(s.PeriodStart),
		AsOf:        fromMillis(s.AsOf),
		Spent:       core.Money{Cents: s.SpentCents},
		Limit:       core.Money{Cents: s.LimitCents},
	}
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	row, err := s.queries.CreateAccount(ctx, CreateAccountParams{
		UserID:    a.UserID,
		Name:      a.Name,
		Kind:      string(a.Kind),
		CreatedAt: millis(a.CreatedAt),
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return toAccount(row), nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row, err := s.queries.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, notFound(err, "account", id)
	}
	return toAccount(row), nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := s.queries.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, len(rows))
	for i, r := range rows {
		out[i] = toAccount(r)
	}
	return out, nil
}

// AccountsAfter returns up to limit accounts with an id greater than afterID,
// ordered by id. It is the cursor for batch sweeps.
func (s *Store) AccountsAfter(ctx context.Context, afterID int64, limit int) ([]core.Account, error) {
	rows, err := s.queries.ListAccountsAfter(ctx, ListAccountsAfterParams{AfterID: afterID, Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("list accounts after %d: %w", afterID, err)
	}
	out := make([]core.Account, len(rows))
	for i, r := range rows {
		out[i] = toAccount(r)
	}
	return out, nil
}

func (s *Store) CountAccountTransactions(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.queries.CountAccountTransactions(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("count account transactions: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Categories

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	params := CreateCategoryParams{UserID: c.UserID, Name: c.Name}
	if c.Limit != nil {
		params.LimitCents = sql.NullInt64{Int64: c.Limit.Cents, Valid: true}
	}
	row, err := s.queries.CreateCategory(ctx, params)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return toCategory(row), nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row, err := s.queries.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return toCategory(row), nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := s.queries.ListCategoriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, r := range rows {
		out[i] = toCategory(r)
	}
	return out, nil
}

func (s *Store) ListLimitedCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := s.queries.ListLimitedCategoriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list limited categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, r := range rows {
		out[i] = toCategory(r)
	}
	return out, nil
}

func (s *Store) CategoriesAfter(ctx context.Context, afterID int64, limit int) ([]core.Category, error) {
	rows, err := s.queries.ListCategoriesAfter(ctx, ListCategoriesAfterParams{AfterID: afterID, Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("list categories after %d: %w", afterID, err)
	}
	out := make([]core.Category, len(rows))
	for i, r := range rows {
		out[i] = toCategory(r)
	}
	return out, nil
}

// SetCategoryLimit sets or, with a nil limit, clears the spend limit.
func (s *Store) SetCategoryLimit(ctx context.Context, id int64, limit *core.Money) error {
	params := SetCategoryLimitParams{ID: id}
	if limit != nil {
		params.LimitCents = sql.NullInt64{Int64: limit.Cents, Valid: true}
	}
	n, err := s.queries.SetCategoryLimit(ctx, params)
	if err != nil {
		return fmt.Errorf("set category limit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Transactions

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	params := CreateTransactionParams{
		AccountID:        t.AccountID,
		CategoryID:       nullID(t.CategoryID),
		Kind:             string(t.Kind),
		AmountCents:      t.Amount.Cents,
		Description:      t.Description,
		OccurredAt:       millis(t.OccurredAt),
		CounterAccountID: nullID(t.CounterAccountID),
		CreatedAt:        millis(t.CreatedAt),
		UpdatedAt:        millis(t.UpdatedAt),
	}
	if t.TransferID != "" {
		params.TransferID = sql.NullString{String: t.TransferID, Valid: true}
	}
	row, err := s.queries.CreateTransaction(ctx, params)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction row inserted",
		"id", row.ID,
		"account_id", row.AccountID,
		"amount_cents", row.AmountCents)

	return toTransaction(row), nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := s.queries.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return toTransaction(row), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := s.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		CategoryID:  nullID(t.CategoryID),
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		OccurredAt:  millis(t.OccurredAt),
		UpdatedAt:   millis(t.UpdatedAt),
		ID:          t.ID,
	})
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// AccountTransactions returns the full history of an account in time order.
func (s *Store) AccountTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := s.queries.ListAccountTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = toTransaction(r)
	}
	return out, nil
}

// SumTransactions sums the account's amounts in (after, through]. Zero times
// leave the corresponding bound open.
func (s *Store) SumTransactions(ctx context.Context, accountID int64, after, through time.Time) (core.Money, error) {
	sum, err := s.queries.SumAccountTransactions(ctx, SumAccountTransactionsParams{
		AccountID: accountID,
		After:     lowerBound(after),
		Through:   upperBound(through),
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum account transactions: %w", err)
	}
	return core.Money{Cents: sum}, nil
}

func (s *Store) CountTransactionsAfter(ctx context.Context, accountID int64, after time.Time) (int64, error) {
	n, err := s.queries.CountAccountTransactionsAfter(ctx, CountAccountTransactionsAfterParams{
		AccountID: accountID,
		After:     lowerBound(after),
	})
	if err != nil {
		return 0, fmt.Errorf("count transactions after: %w", err)
	}
	return n, nil
}

// SumCategorySpend sums expense magnitudes of a category in (after, before).
func (s *Store) SumCategorySpend(ctx context.Context, categoryID int64, after, before time.Time) (core.Money, error) {
	sum, err := s.queries.SumCategorySpend(ctx, SumCategorySpendParams{
		CategoryID: categoryID,
		After:      lowerBound(after),
		Before:     upperBound(before),
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum category spend: %w", err)
	}
	return core.Money{Cents: sum}, nil
}

// Transfer links

func (s *Store) CreateTransferLink(ctx context.Context, l core.TransferLink) error {
	err := s.queries.CreateTransferLink(ctx, CreateTransferLinkParams{
		ID:              l.ID,
		SourceTxID:      l.SourceTxID,
		DestinationTxID: l.DestinationTxID,
		CreatedAt:       millis(l.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create transfer link: %w", err)
	}
	return nil
}

func (s *Store) GetTransferLink(ctx context.Context, id string) (core.TransferLink, error) {
	row, err := s.queries.GetTransferLink(ctx, id)
	if err != nil {
		return core.TransferLink{}, notFound(err, "transfer link", id)
	}
	return core.TransferLink{
		ID:              row.ID,
		SourceTxID:      row.SourceTxID,
		DestinationTxID: row.DestinationTxID,
		CreatedAt:       fromMillis(row.CreatedAt),
	}, nil
}

func (s *Store) DeleteTransferLink(ctx context.Context, id string) error {
	n, err := s.queries.DeleteTransferLink(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transfer link: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transfer link %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Balance snapshots

// LatestSnapshot returns the most recent snapshot of an account; ok is false
// when the account has none.
func (s *Store) LatestSnapshot(ctx context.Context, accountID int64) (snap core.BalanceSnapshot, ok bool, err error) {
	row, err := s.queries.GetLatestBalanceSnapshot(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return core.BalanceSnapshot{}, false, fmt.Errorf("get latest snapshot: %w", err)
	}
	return toBalanceSnapshot(row), true, nil
}

// LatestSnapshotAt returns the most recent snapshot dated at or before at.
func (s *Store) LatestSnapshotAt(ctx context.Context, accountID int64, at time.Time) (snap core.BalanceSnapshot, ok bool, err error) {
	row, err := s.queries.GetLatestBalanceSnapshotAt(ctx, GetLatestBalanceSnapshotAtParams{
		AccountID: accountID,
		At:        millis(at),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return core.BalanceSnapshot{}, false, fmt.Errorf("get latest snapshot at: %w", err)
	}
	return toBalanceSnapshot(row), true, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap core.BalanceSnapshot) (core.BalanceSnapshot, error) {
	row, err := s.queries.CreateBalanceSnapshot(ctx, CreateBalanceSnapshotParams{
		AccountID:    snap.AccountID,
		SnapshotAt:   millis(snap.At),
		BalanceCents: snap.Balance.Cents,
		CreatedAt:    millis(time.Now()),
	})
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return toBalanceSnapshot(row), nil
}

func (s *Store) Snapshots(ctx context.Context, accountID int64) ([]core.BalanceSnapshot, error) {
	rows, err := s.queries.ListBalanceSnapshots(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]core.BalanceSnapshot, len(rows))
	for i, r := range rows {
		out[i] = toBalanceSnapshot(r)
	}
	return out, nil
}

// ShiftSnapshots adds delta to every snapshot of the account dated at or after
// from and returns how many snapshots were corrected.
func (s *Store) ShiftSnapshots(ctx context.Context, accountID int64, from time.Time, delta int64) (int64, error) {
	n, err := s.queries.ShiftBalanceSnapshots(ctx, ShiftBalanceSnapshotsParams{
		Delta:     delta,
		AccountID: accountID,
		From:      millis(from),
	})
	if err != nil {
		return 0, fmt.Errorf("shift snapshots: %w", err)
	}
	return n, nil
}

// Budget snapshots

func (s *Store) UpsertBudgetSnapshot(ctx context.Context, snap core.BudgetSnapshot) (core.BudgetSnapshot, error) {
	row, err := s.queries.UpsertBudgetSnapshot(ctx, UpsertBudgetSnapshotParams{
		CategoryID:  snap.CategoryID,
		PeriodStart: millis(snap.PeriodStart),
		AsOf:        millis(snap.AsOf),
		SpentCents:  snap.Spent.Cents,
		LimitCents:  snap.Limit.Cents,
	})
	if err != nil {
		return core.BudgetSnapshot{}, fmt.Errorf("upsert budget snapshot: %w", err)
	}
	return toBudgetSnapshot(row), nil
}

func (s *Store) LatestBudgetSnapshot(ctx context.Context, categoryID int64) (snap core.BudgetSnapshot, ok bool, err error) {
	row, err := s.queries.GetLatestBudgetSnapshot(ctx, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetSnapshot{}, false, nil
	}
	if err != nil {
		return core.BudgetSnapshot{}, false, fmt.Errorf("get latest budget snapshot: %w", err)
	}
	return toBudgetSnapshot(row), true, nil
}

// ShiftBudgetSnapshots adds delta to the spend of every budget snapshot of the
// category that has already absorbed instant at.
func (s *Store) ShiftBudgetSnapshots(ctx context.Context, categoryID int64, at time.Time, delta int64) (int64, error) {
	n, err := s.queries.ShiftBudgetSnapshots(ctx, ShiftBudgetSnapshotsParams{
		Delta:      delta,
		CategoryID: categoryID,
		At:         millis(at),
	})
	if err != nil {
		return 0, fmt.Errorf("shift budget snapshots: %w", err)
	}
	return n, nil
}
