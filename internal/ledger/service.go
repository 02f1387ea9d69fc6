// Package ledger resolves account balances from checkpoints and applies
// transaction mutations while keeping every checkpoint consistent.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// Publisher receives an event for every committed mutation.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

type Service struct {
	repo      *storage.SQLiteRepository
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo *storage.SQLiteRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.Default(log.ComponentLedger),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateAccount(ctx context.Context, userID, name string, kind core.AccountKind) (core.Account, error) {
	a := core.Account{UserID: userID, Name: name, Kind: kind, CreatedAt: s.now()}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	created, err := s.repo.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Account created",
		log.FieldAccountID, created.ID,
		log.FieldUserID, userID)
	return created, nil
}

// GetAccount returns the account if userID owns it.
func (s *Service) GetAccount(ctx context.Context, userID string, id int64) (core.Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if a.UserID != userID {
		return core.Account{}, fmt.Errorf("account %d: %w", id, core.ErrForbidden)
	}
	return a, nil
}

func (s *Service) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	return s.repo.ListAccounts(ctx, userID)
}

// AccountsAfter pages through every account by id.
func (s *Service) AccountsAfter(ctx context.Context, afterID int64, limit int) ([]core.Account, error) {
	return s.repo.AccountsAfter(ctx, afterID, limit)
}

// DeleteAccount removes an account that no transaction references. Its
// snapshots go with it.
func (s *Service) DeleteAccount(ctx context.Context, userID string, id int64) error {
	err := s.repo.WithTx(ctx, func(st *storage.Store) error {
		a, err := st.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if a.UserID != userID {
			return fmt.Errorf("account %d: %w", id, core.ErrForbidden)
		}
		n, err := st.CountAccountTransactions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("account %d has %d transactions: %w", id, n, core.ErrAccountHasTransactions)
		}
		return st.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Account deleted", log.FieldAccountID, id)
	return nil
}

// AccountTransactions lists the history of an account owned by userID.
func (s *Service) AccountTransactions(ctx context.Context, userID string, accountID int64) ([]core.Transaction, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.repo.AccountTransactions(ctx, accountID)
}

// committed publishes the event for a mutation once it has committed. A
// publish failure never fails the mutation.
func (s *Service) committed(ctx context.Context, eventType amqp.EventType, userID string, rows ...core.Transaction) {
	ev := amqp.NewLedgerEvent(eventType, userID)
	for _, t := range rows {
		ev.TransactionIDs = append(ev.TransactionIDs, t.ID)
		ev.AccountIDs = appendUnique(ev.AccountIDs, t.AccountID)
		if t.CategoryID != 0 {
			ev.CategoryIDs = appendUnique(ev.CategoryIDs, t.CategoryID)
		}
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, string(eventType),
			log.FieldError, err)
	}
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
