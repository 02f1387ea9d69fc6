package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/budget"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// change is one stored row before and after a mutation. A nil side means the
// row did not exist.
type change struct {
	before *core.Transaction
	after  *core.Transaction
}

// CreateTransaction records a new expense, income or transfer. A transfer
// writes two linked legs. Any snapshot that already covers the timestamp is
// corrected in the same store transaction.
func (s *Service) CreateTransaction(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := s.now()
	if n.OccurredAt.IsZero() {
		n.OccurredAt = now
	}

	var rows []core.Transaction
	err := s.repo.WithTx(ctx, func(st *storage.Store) error {
		if err := s.checkAccount(ctx, st, n.UserID, n.AccountID); err != nil {
			return err
		}
		if err := s.checkCategory(ctx, st, n.UserID, n.CategoryID); err != nil {
			return err
		}

		row := core.Transaction{
			AccountID:   n.AccountID,
			CategoryID:  n.CategoryID,
			Kind:        n.Kind,
			Amount:      core.SignedAmount(n.Kind, core.LegSource, n.Amount),
			Description: n.Description,
			OccurredAt:  n.OccurredAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if n.Kind != core.KindTransfer {
			created, err := st.InsertTransaction(ctx, row)
			if err != nil {
				return err
			}
			rows = []core.Transaction{created}
			return s.apply(ctx, st, change{after: &created})
		}

		if err := s.checkAccount(ctx, st, n.UserID, n.DestinationAccountID); err != nil {
			return err
		}
		source, destination, err := s.insertTransfer(ctx, st, row, n.DestinationAccountID)
		if err != nil {
			return err
		}
		rows = []core.Transaction{source, destination}
		if err := s.apply(ctx, st, change{after: &source}); err != nil {
			return err
		}
		return s.apply(ctx, st, change{after: &destination})
	})
	if err != nil {
		return core.Transaction{}, s.failed(ctx, log.OpCreate, err)
	}

	for _, r := range rows {
		s.logger.InfoContext(ctx, "Transaction created",
			log.NewFields().WithOperation(log.OpCreate).WithTransaction(r).ToSlice()...)
	}
	s.committed(ctx, amqp.EventTransactionCreated, n.UserID, rows...)
	return rows[0], nil
}

func (s *Service) insertTransfer(ctx context.Context, st *storage.Store, source core.Transaction, destinationID int64) (core.Transaction, core.Transaction, error) {
	transferID := s.newID()

	source.TransferID = transferID
	source.CounterAccountID = destinationID

	destination := source
	destination.AccountID = destinationID
	destination.CounterAccountID = source.AccountID
	destination.Amount = core.SignedAmount(core.KindTransfer, core.LegDestination, source.Amount)

	src, err := st.InsertTransaction(ctx, source)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	dst, err := st.InsertTransaction(ctx, destination)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	err = st.CreateTransferLink(ctx, core.TransferLink{
		ID:              transferID,
		SourceTxID:      src.ID,
		DestinationTxID: dst.ID,
		CreatedAt:       source.CreatedAt,
	})
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	return src, dst, nil
}

// UpdateTransaction edits amount, description, category and optionally the
// timestamp of a transaction. On a transfer both legs are edited and each leg
// keeps its direction.
func (s *Service) UpdateTransaction(ctx context.Context, u core.TransactionUpdate) (core.Transaction, error) {
	if err := u.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := s.now()

	var rows []core.Transaction
	err := s.repo.WithTx(ctx, func(st *storage.Store) error {
		old, err := s.ownedTransaction(ctx, st, u.UserID, u.ID)
		if err != nil {
			return err
		}
		if err := s.checkCategory(ctx, st, u.UserID, u.CategoryID); err != nil {
			return err
		}

		legs := []core.Transaction{old}
		if old.Kind == core.KindTransfer {
			counterpart, err := s.counterpart(ctx, st, old)
			if err != nil {
				return err
			}
			legs = append(legs, counterpart)
		}

		for _, leg := range legs {
			edited := leg
			edited.Amount = core.SignedAmount(leg.Kind, core.LegOf(leg), u.Amount)
			edited.Description = u.Description
			edited.CategoryID = u.CategoryID
			if u.OccurredAt != nil {
				edited.OccurredAt = *u.OccurredAt
			}
			edited.UpdatedAt = now

			if err := st.UpdateTransaction(ctx, edited); err != nil {
				return err
			}
			if err := s.apply(ctx, st, change{before: &leg, after: &edited}); err != nil {
				return err
			}

			stored, err := st.GetTransaction(ctx, edited.ID)
			if err != nil {
				return err
			}
			rows = append(rows, stored)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, s.failed(ctx, log.OpUpdate, err)
	}

	for _, r := range rows {
		s.logger.InfoContext(ctx, "Transaction updated",
			log.NewFields().WithOperation(log.OpUpdate).WithTransaction(r).ToSlice()...)
	}
	s.committed(ctx, amqp.EventTransactionUpdated, u.UserID, rows...)
	return rows[0], nil
}

// DeleteTransaction removes a transaction, or both legs and the link of a
// transfer, and takes its contribution back out of every snapshot.
func (s *Service) DeleteTransaction(ctx context.Context, userID string, id int64) error {
	if id <= 0 {
		return core.ErrMissingTransaction
	}

	var rows []core.Transaction
	err := s.repo.WithTx(ctx, func(st *storage.Store) error {
		old, err := s.ownedTransaction(ctx, st, userID, id)
		if err != nil {
			return err
		}
		rows = []core.Transaction{old}
		if old.Kind == core.KindTransfer {
			counterpart, err := s.counterpart(ctx, st, old)
			if err != nil {
				return err
			}
			rows = append(rows, counterpart)
			if err := st.DeleteTransferLink(ctx, old.TransferID); err != nil {
				return err
			}
		}

		for _, row := range rows {
			if err := s.apply(ctx, st, change{before: &row}); err != nil {
				return err
			}
			if err := st.DeleteTransaction(ctx, row.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.failed(ctx, log.OpDelete, err)
	}

	for _, r := range rows {
		s.logger.InfoContext(ctx, "Transaction deleted",
			log.NewFields().WithOperation(log.OpDelete).WithTransaction(r).ToSlice()...)
	}
	s.committed(ctx, amqp.EventTransactionDeleted, userID, rows...)
	return nil
}

// apply moves a row's contribution through the account's snapshot chain and
// the category's budget snapshots. When the timestamp is unchanged the
// difference is applied once; otherwise the old contribution is removed from
// every snapshot at or after the old timestamp and the new one added at or
// after the new timestamp.
func (s *Service) apply(ctx context.Context, st *storage.Store, c change) error {
	switch {
	case c.before != nil && c.after != nil && c.before.OccurredAt.Equal(c.after.OccurredAt):
		delta := c.after.Amount.Sub(c.before.Amount)
		if err := s.shift(ctx, st, *c.after, delta); err != nil {
			return err
		}
	default:
		if c.before != nil {
			if err := s.shift(ctx, st, *c.before, c.before.Amount.Neg()); err != nil {
				return err
			}
		}
		if c.after != nil {
			if err := s.shift(ctx, st, *c.after, c.after.Amount); err != nil {
				return err
			}
		}
	}
	return budget.Propagate(ctx, st, c.before, c.after)
}

func (s *Service) shift(ctx context.Context, st *storage.Store, t core.Transaction, delta core.Money) error {
	if delta.Cents == 0 {
		return nil
	}
	n, err := st.ShiftSnapshots(ctx, t.AccountID, t.OccurredAt, delta.Cents)
	if err != nil {
		return fmt.Errorf("propagate transaction %d: %w", t.ID, err)
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "Snapshots corrected",
			log.FieldAccountID, t.AccountID,
			log.FieldTransactionID, t.ID,
			log.FieldDeltaCents, delta.Cents,
			log.FieldSnapshots, n)
	}
	return nil
}

// counterpart resolves the other leg of a transfer through its link. Any
// break in the pairing means the store is inconsistent.
func (s *Service) counterpart(ctx context.Context, st *storage.Store, t core.Transaction) (core.Transaction, error) {
	if t.TransferID == "" {
		return core.Transaction{}, fmt.Errorf("transfer leg %d has no transfer id: %w", t.ID, core.ErrConsistency)
	}
	link, err := st.GetTransferLink(ctx, t.TransferID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, fmt.Errorf("transfer %s of transaction %d has no link: %w", t.TransferID, t.ID, core.ErrConsistency)
	}
	if err != nil {
		return core.Transaction{}, err
	}

	var otherID int64
	switch t.ID {
	case link.SourceTxID:
		otherID = link.DestinationTxID
	case link.DestinationTxID:
		otherID = link.SourceTxID
	default:
		return core.Transaction{}, fmt.Errorf("transfer %s does not include transaction %d: %w", t.TransferID, t.ID, core.ErrConsistency)
	}

	other, err := st.GetTransaction(ctx, otherID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, fmt.Errorf("counterpart %d of transaction %d is missing: %w", otherID, t.ID, core.ErrConsistency)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	if other.TransferID != t.TransferID || other.Amount.Add(t.Amount).Cents != 0 {
		return core.Transaction{}, fmt.Errorf("transfer %s legs do not mirror each other: %w", t.TransferID, core.ErrConsistency)
	}
	return other, nil
}

// ownedTransaction loads a transaction the user owns. A transaction owned by
// someone else is reported as not found so its existence does not leak.
func (s *Service) ownedTransaction(ctx context.Context, st *storage.Store, userID string, id int64) (core.Transaction, error) {
	t, err := st.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	a, err := st.GetAccount(ctx, t.AccountID)
	if err != nil {
		return core.Transaction{}, err
	}
	if a.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Service) checkAccount(ctx context.Context, st *storage.Store, userID string, id int64) error {
	a, err := st.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return fmt.Errorf("account %d: %w", id, core.ErrForbidden)
	}
	return nil
}

func (s *Service) checkCategory(ctx context.Context, st *storage.Store, userID string, id int64) error {
	if id == 0 {
		return nil
	}
	c, err := st.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return fmt.Errorf("category %d: %w", id, core.ErrForbidden)
	}
	return nil
}

// failed logs a consistency violation as a critical fault and passes every
// error through unchanged.
func (s *Service) failed(ctx context.Context, op string, err error) error {
	if errors.Is(err, core.ErrConsistency) {
		s.logger.ErrorContext(ctx, "Ledger consistency violation",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	}
	return err
}
