package core

import (
	"strings"
	"time"
)

const (
	KindExpense  Kind = "EXPENSE"
	KindIncome   Kind = "INCOME"
	KindTransfer Kind = "TRANSFER"
)

const (
	AccountCash    AccountKind = "cash"
	AccountBank    AccountKind = "bank"
	AccountCard    AccountKind = "card"
	AccountSavings AccountKind = "savings"
)

// Leg tells which side of a money movement a transaction row represents.
// Only transfers have a destination leg.
type Leg int

const (
	LegSource Leg = iota
	LegDestination
)

const maxDescriptionLen = 200

type (
	Kind        string
	AccountKind string

	Money struct {
		Cents int64
	}

	Account struct {
		ID        int64
		UserID    string
		Name      string
		Kind      AccountKind
		CreatedAt time.Time
	}

	// Transaction is a signed delta against exactly one account.
	// Transfer legs carry the shared TransferID and the account on the other side.
	Transaction struct {
		ID               int64
		AccountID        int64
		CategoryID       int64 // 0 when uncategorised
		Kind             Kind
		Amount           Money // signed
		Description      string
		OccurredAt       time.Time
		TransferID       string
		CounterAccountID int64
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// TransferLink pairs the two legs of one transfer.
	TransferLink struct {
		ID              string
		SourceTxID      int64
		DestinationTxID int64
		CreatedAt       time.Time
	}

	BalanceSnapshot struct {
		ID        int64
		AccountID int64
		At        time.Time
		Balance   Money
	}

	// Balance is a resolved account balance and the checkpoint it was derived from.
	// AsOf is the zero time when the account has no snapshot yet.
	Balance struct {
		AccountID int64
		Amount    Money
		AsOf      time.Time
	}

	Category struct {
		ID     int64
		UserID string
		Name   string
		Limit  *Money // nil when no spend limit is configured
	}

	BudgetSnapshot struct {
		ID          int64
		CategoryID  int64
		PeriodStart time.Time
		AsOf        time.Time
		Spent       Money
		Limit       Money
	}

	// NewTransaction is a create request. Amount is always a positive magnitude;
	// the stored sign is derived from Kind.
	NewTransaction struct {
		UserID               string
		Kind                 Kind
		Amount               Money
		CategoryID           int64
		AccountID            int64
		DestinationAccountID int64
		Description          string
		OccurredAt           time.Time // zero means "now"
	}

	// TransactionUpdate edits an existing transaction in place. A nil OccurredAt
	// keeps the current timestamp.
	TransactionUpdate struct {
		UserID      string
		ID          int64
		Amount      Money
		Description string
		CategoryID  int64
		OccurredAt  *time.Time
	}

	// SweepResult reports the outcome of a batch sweep.
	SweepResult struct {
		Processed int
		Failed    int
	}
)

func (k Kind) Validate() error {
	switch k {
	case KindExpense, KindIncome, KindTransfer:
		return nil
	}
	return ErrInvalidKind
}

func (k AccountKind) Validate() error {
	switch k {
	case AccountCash, AccountBank, AccountCard, AccountSavings:
		return nil
	}
	return ErrInvalidAccountKind
}

// SignedAmount is the single place where a stored sign is derived:
// expenses and transfer sources are outflows, income and transfer destinations inflows.
func SignedAmount(k Kind, leg Leg, magnitude Money) Money {
	c := magnitude.Cents
	if c < 0 {
		c = -c
	}
	switch {
	case k == KindExpense:
		return Money{Cents: -c}
	case k == KindTransfer && leg == LegSource:
		return Money{Cents: -c}
	default:
		return Money{Cents: c}
	}
}

// LegOf reports which side of a movement a stored row is on.
func LegOf(t Transaction) Leg {
	if t.Kind == KindTransfer && t.Amount.Cents > 0 {
		return LegDestination
	}
	return LegSource
}

// Spend is the budget contribution of a transaction: the magnitude of an expense,
// zero for everything else.
func (t Transaction) Spend() Money {
	if t.Kind != KindExpense {
		return Money{}
	}
	return Money{Cents: -t.Amount.Cents}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	return a.Kind.Validate()
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Limit != nil && c.Limit.Cents < 0 {
		return ErrNegativeLimit
	}
	return nil
}

func (n NewTransaction) Validate() error {
	if err := n.Kind.Validate(); err != nil {
		return err
	}
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDescription(n.Description); err != nil {
		return err
	}
	if n.AccountID <= 0 {
		return ErrMissingAccount
	}
	if n.Kind == KindTransfer {
		if n.DestinationAccountID <= 0 {
			return ErrMissingDestination
		}
		if n.DestinationAccountID == n.AccountID {
			return ErrSameAccount
		}
	} else if n.DestinationAccountID != 0 {
		return ErrUnexpectedDestination
	}
	return nil
}

func (u TransactionUpdate) Validate() error {
	if u.ID <= 0 {
		return ErrMissingTransaction
	}
	if err := u.Amount.Validate(); err != nil {
		return err
	}
	if u.OccurredAt != nil && u.OccurredAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return validateDescription(u.Description)
}

func validateDescription(d string) error {
	if len(strings.TrimSpace(d)) == 0 {
		return ErrEmptyDescription
	}
	if len(d) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}
