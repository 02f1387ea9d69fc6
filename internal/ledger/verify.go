package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// SnapshotMismatch is a checkpoint whose stored balance differs from a full
// replay of the account's history.
type SnapshotMismatch struct {
	SnapshotID int64
	At         time.Time
	Stored     core.Money
	Replayed   core.Money
}

// VerifyAccount replays the account from zero and compares every snapshot
// against the replayed balance at its date. An empty result means the
// checkpoint chain is consistent.
func (s *Service) VerifyAccount(ctx context.Context, accountID int64) ([]SnapshotMismatch, error) {
	var mismatches []SnapshotMismatch
	err := s.repo.ReadTx(ctx, func(st *storage.Store) error {
		if _, err := st.GetAccount(ctx, accountID); err != nil {
			return err
		}
		snaps, err := st.Snapshots(ctx, accountID)
		if err != nil {
			return err
		}
		txs, err := st.AccountTransactions(ctx, accountID)
		if err != nil {
			return err
		}
		mismatches = replay(snaps, txs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify account %d: %w", accountID, err)
	}

	if len(mismatches) > 0 {
		s.logger.WarnContext(ctx, "Snapshot chain diverges from replay",
			log.FieldOperation, log.OpVerify,
			log.FieldAccountID, accountID,
			"mismatches", len(mismatches))
	}
	return mismatches, nil
}

// replay walks snapshots and transactions, both in date order, keeping a
// running total of every transaction dated at or before each snapshot.
func replay(snaps []core.BalanceSnapshot, txs []core.Transaction) []SnapshotMismatch {
	var out []SnapshotMismatch
	var running core.Money
	i := 0
	for _, snap := range snaps {
		for i < len(txs) && !txs[i].OccurredAt.After(snap.At) {
			running = running.Add(txs[i].Amount)
			i++
		}
		if running != snap.Balance {
			out = append(out, SnapshotMismatch{
				SnapshotID: snap.ID,
				At:         snap.At,
				Stored:     snap.Balance,
				Replayed:   running,
			})
		}
	}
	return out
}
