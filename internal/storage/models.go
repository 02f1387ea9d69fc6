package storage

import "database/sql"

// Row models. All timestamps are Unix milliseconds (UTC).

type Account struct {
	ID        int64
	UserID    string
	Name      string
	Kind      string
	CreatedAt int64
}

type Category struct {
	ID         int64
	UserID     string
	Name       string
	LimitCents sql.NullInt64
}

type Transaction struct {
	ID               int64
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

type TransferLink struct {
	ID              string
	SourceTxID      int64
	DestinationTxID int64
	CreatedAt       int64
}

type BalanceSnapshot struct {
	ID           int64
	AccountID    int64
	SnapshotAt   int64
	BalanceCents int64
	CreatedAt    int64
}

type BudgetSnapshot struct {
	ID          int64
	CategoryID  int64
	PeriodStart int64
	AsOf        int64
	SpentCents  int64
	LimitCents  int64
}
