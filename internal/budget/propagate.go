package budget

import (
	"context"
	"fmt"

	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

// Propagate corrects every budget snapshot that already absorbed the spend of
// a transaction which changed from before to after. A nil before is a create,
// a nil after is a delete. It must run in the same store transaction as the
// ledger write.
func Propagate(ctx context.Context, st *storage.Store, before, after *core.Transaction) error {
	if before != nil && after != nil && sameContribution(*before, *after) {
		return nil
	}
	if before != nil {
		if err := shift(ctx, st, *before, -1); err != nil {
			return err
		}
	}
	if after != nil {
		if err := shift(ctx, st, *after, 1); err != nil {
			return err
		}
	}
	return nil
}

func sameContribution(a, b core.Transaction) bool {
	return a.CategoryID == b.CategoryID &&
		a.Spend() == b.Spend() &&
		a.OccurredAt.Equal(b.OccurredAt)
}

func shift(ctx context.Context, st *storage.Store, t core.Transaction, sign int64) error {
	spend := t.Spend()
	if t.CategoryID == 0 || spend.Cents == 0 {
		return nil
	}
	if _, err := st.ShiftBudgetSnapshots(ctx, t.CategoryID, t.OccurredAt, sign*spend.Cents); err != nil {
		return fmt.Errorf("propagate spend of transaction %d: %w", t.ID, err)
	}
	return nil
}
