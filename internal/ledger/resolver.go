package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// ResolveBalance returns the current balance of an account: its latest
// snapshot plus every transaction recorded after it. It reads one committed
// state and never waits for a writer.
func (s *Service) ResolveBalance(ctx context.Context, accountID int64) (core.Balance, error) {
	var b core.Balance
	err := s.repo.ReadTx(ctx, func(st *storage.Store) error {
		var err error
		b, err = resolve(ctx, st, accountID)
		return err
	})
	if err != nil {
		return core.Balance{}, fmt.Errorf("resolve balance of account %d: %w", accountID, err)
	}
	return b, nil
}

// Balance resolves the balance of an account owned by userID.
func (s *Service) Balance(ctx context.Context, userID string, accountID int64) (core.Balance, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return core.Balance{}, err
	}
	return s.ResolveBalance(ctx, accountID)
}

// BalanceAt returns the balance of an account at instant at: the latest
// snapshot dated at or before it plus transactions up to and including at.
func (s *Service) BalanceAt(ctx context.Context, accountID int64, at time.Time) (core.Balance, error) {
	var b core.Balance
	err := s.repo.ReadTx(ctx, func(st *storage.Store) error {
		var err error
		b, err = balanceAt(ctx, st, accountID, at)
		return err
	})
	if err != nil {
		return core.Balance{}, fmt.Errorf("balance of account %d at %s: %w", accountID, at.Format(time.RFC3339), err)
	}
	return b, nil
}

func resolve(ctx context.Context, st *storage.Store, accountID int64) (core.Balance, error) {
	snap, ok, err := st.LatestSnapshot(ctx, accountID)
	if err != nil {
		return core.Balance{}, err
	}
	return sinceSnapshot(ctx, st, accountID, snap, ok, time.Time{})
}

func balanceAt(ctx context.Context, st *storage.Store, accountID int64, at time.Time) (core.Balance, error) {
	snap, ok, err := st.LatestSnapshotAt(ctx, accountID, at)
	if err != nil {
		return core.Balance{}, err
	}
	return sinceSnapshot(ctx, st, accountID, snap, ok, at)
}

// sinceSnapshot adds the transactions in (snapshot, through] to the snapshot
// balance. Without a snapshot the sum starts from zero at the beginning of
// time; a zero through leaves the window open.
func sinceSnapshot(ctx context.Context, st *storage.Store, accountID int64, snap core.BalanceSnapshot, ok bool, through time.Time) (core.Balance, error) {
	var after time.Time
	var base core.Money
	if ok {
		after = snap.At
		base = snap.Balance
	}
	sum, err := st.SumTransactions(ctx, accountID, after, through)
	if err != nil {
		return core.Balance{}, err
	}
	return core.Balance{AccountID: accountID, Amount: base.Add(sum), AsOf: after}, nil
}

// Checkpoint appends a snapshot dated at holding the account's balance at that
// instant. Earlier snapshots are left untouched.
func (s *Service) Checkpoint(ctx context.Context, accountID int64, at time.Time) (core.BalanceSnapshot, error) {
	var snap core.BalanceSnapshot
	err := s.repo.WithTx(ctx, func(st *storage.Store) error {
		if _, err := st.GetAccount(ctx, accountID); err != nil {
			return err
		}
		b, err := balanceAt(ctx, st, accountID, at)
		if err != nil {
			return err
		}
		snap, err = st.InsertSnapshot(ctx, core.BalanceSnapshot{
			AccountID: accountID,
			At:        at,
			Balance:   b.Amount,
		})
		return err
	})
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("checkpoint account %d: %w", accountID, err)
	}

	s.logger.DebugContext(ctx, "Checkpoint written",
		log.FieldAccountID, accountID,
		log.FieldSnapshotAt, snap.At,
		log.FieldBalanceCents, snap.Balance.Cents)
	return snap, nil
}

// PendingTransactions counts the transactions the resolver has to sum on top
// of the latest snapshot.
func (s *Service) PendingTransactions(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := s.repo.ReadTx(ctx, func(st *storage.Store) error {
		snap, ok, err := st.LatestSnapshot(ctx, accountID)
		if err != nil {
			return err
		}
		var after time.Time
		if ok {
			after = snap.At
		}
		n, err = st.CountTransactionsAfter(ctx, accountID, after)
		return err
	})
	return n, err
}

// Snapshots lists the checkpoints of an account in date order.
func (s *Service) Snapshots(ctx context.Context, accountID int64) ([]core.BalanceSnapshot, error) {
	return s.repo.Snapshots(ctx, accountID)
}
