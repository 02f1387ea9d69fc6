package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

const owner = "user-1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) last() *amqp.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *storage.SQLiteRepository
	svc  *Service
	pub  *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	pub := &recordingPublisher{}
	opts = append([]Option{WithClock(func() time.Time { return now }), WithPublisher(pub)}, opts...)
	return &fixture{
		t:    t,
		ctx:  context.Background(),
		repo: repo,
		svc:  NewService(repo, opts...),
		pub:  pub,
	}
}

func (f *fixture) account(name string) core.Account {
	f.t.Helper()
	a, err := f.svc.CreateAccount(f.ctx, owner, name, core.AccountBank)
	if err != nil {
		f.t.Fatalf("CreateAccount(%s): %v", name, err)
	}
	return a
}

func (f *fixture) category(user, name string) core.Category {
	f.t.Helper()
	c, err := f.repo.CreateCategory(f.ctx, core.Category{UserID: user, Name: name})
	if err != nil {
		f.t.Fatalf("CreateCategory(%s): %v", name, err)
	}
	return c
}

func (f *fixture) create(n core.NewTransaction) core.Transaction {
	f.t.Helper()
	if n.UserID == "" {
		n.UserID = owner
	}
	if n.Description == "" {
		n.Description = string(n.Kind)
	}
	tx, err := f.svc.CreateTransaction(f.ctx, n)
	if err != nil {
		f.t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func (f *fixture) snapshot(accountID int64, at time.Time, cents int64) core.BalanceSnapshot {
	f.t.Helper()
	s, err := f.repo.InsertSnapshot(f.ctx, core.BalanceSnapshot{AccountID: accountID, At: at, Balance: core.Money{Cents: cents}})
	if err != nil {
		f.t.Fatalf("InsertSnapshot: %v", err)
	}
	return s
}

func (f *fixture) balance(accountID int64) int64 {
	f.t.Helper()
	b, err := f.svc.ResolveBalance(f.ctx, accountID)
	if err != nil {
		f.t.Fatalf("ResolveBalance(%d): %v", accountID, err)
	}
	return b.Amount.Cents
}

func (f *fixture) snapshotBalances(accountID int64) []int64 {
	f.t.Helper()
	snaps, err := f.svc.Snapshots(f.ctx, accountID)
	if err != nil {
		f.t.Fatalf("Snapshots: %v", err)
	}
	out := make([]int64, len(snaps))
	for i, s := range snaps {
		out[i] = s.Balance.Cents
	}
	return out
}

// assertConsistent checks the checkpoint chain against a full replay.
func (f *fixture) assertConsistent(accountID int64) {
	f.t.Helper()
	mismatches, err := f.svc.VerifyAccount(f.ctx, accountID)
	if err != nil {
		f.t.Fatalf("VerifyAccount: %v", err)
	}
	if len(mismatches) > 0 {
		f.t.Fatalf("account %d snapshots diverge from replay: %+v", accountID, mismatches)
	}
}

func money(c int64) core.Money { return core.Money{Cents: c} }

func TestCreateAccountValidates(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		user    string
		account string
		kind    core.AccountKind
		wantErr error
	}{
		{"valid", owner, "Wallet", core.AccountCash, nil},
		{"missing owner", "", "Wallet", core.AccountCash, core.ErrEmptyOwner},
		{"missing name", owner, " ", core.AccountCash, core.ErrEmptyName},
		{"bad kind", owner, "Wallet", "crypto", core.ErrInvalidAccountKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAccount(f.ctx, tt.user, tt.account, tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateAccount error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, core.ErrValidation) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	used := f.account("Used")
	empty := f.account("Empty")
	f.create(core.NewTransaction{Kind: core.KindIncome, Amount: money(100), AccountID: used.ID})
	f.snapshot(empty.ID, now, 0)

	if err := f.svc.DeleteAccount(f.ctx, owner, used.ID); !errors.Is(err, core.ErrAccountHasTransactions) {
		t.Fatalf("expected ErrAccountHasTransactions, got %v", err)
	}
	if err := f.svc.DeleteAccount(f.ctx, "intruder", empty.ID); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteAccount(f.ctx, owner, empty.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := f.svc.GetAccount(f.ctx, owner, empty.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDestinationAccountCannotBeDeletedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	x := f.account("X")
	y := f.account("Y")
	f.create(core.NewTransaction{Kind: core.KindTransfer, Amount: money(10), AccountID: x.ID, DestinationAccountID: y.ID})

	if err := f.svc.DeleteAccount(f.ctx, owner, y.ID); !errors.Is(err, core.ErrAccountHasTransactions) {
		t.Fatalf("expected ErrAccountHasTransactions, got %v", err)
	}
}

func TestOwnership(t *testing.T) {
	f := newFixture(t)
	mine := f.account("Mine")
	theirs, err := f.svc.CreateAccount(f.ctx, "user-2", "Theirs", core.AccountBank)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	foreignCategory := f.category("user-2", "Food")
	tx := f.create(core.NewTransaction{Kind: core.KindExpense, Amount: money(10), AccountID: mine.ID})

	t.Run("balance of a foreign account is forbidden", func(t *testing.T) {
		if _, err := f.svc.Balance(f.ctx, owner, theirs.ID); !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("creating on a foreign account is forbidden", func(t *testing.T) {
		_, err := f.svc.CreateTransaction(f.ctx, core.NewTransaction{
			UserID: owner, Kind: core.KindExpense, Amount: money(5), AccountID: theirs.ID, Description: "x",
		})
		if !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("transfer into a foreign account is forbidden", func(t *testing.T) {
		_, err := f.svc.CreateTransaction(f.ctx, core.NewTransaction{
			UserID: owner, Kind: core.KindTransfer, Amount: money(5),
			AccountID: mine.ID, DestinationAccountID: theirs.ID, Description: "x",
		})
		if !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("foreign category is forbidden", func(t *testing.T) {
		_, err := f.svc.UpdateTransaction(f.ctx, core.TransactionUpdate{
			UserID: owner, ID: tx.ID, Amount: money(10), Description: "x", CategoryID: foreignCategory.ID,
		})
		if !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("someone else's transaction is not found", func(t *testing.T) {
		_, err := f.svc.UpdateTransaction(f.ctx, core.TransactionUpdate{
			UserID: "user-2", ID: tx.ID, Amount: money(10), Description: "x",
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := f.svc.DeleteTransaction(f.ctx, "user-2", tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	if got := f.balance(mine.ID); got != -10 {
		t.Errorf("rejected operations changed the balance: %d", got)
	}
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	x := f.account("X")
	y := f.account("Y")
	food := f.category(owner, "Food")

	tx := f.create(core.NewTransaction{Kind: core.KindTransfer, Amount: money(100), AccountID: x.ID, DestinationAccountID: y.ID, CategoryID: food.ID})

	ev := f.pub.last()
	if ev == nil || ev.Type != amqp.EventTransactionCreated {
		t.Fatalf("expected a created event, got %+v", ev)
	}
	if len(ev.TransactionIDs) != 2 || len(ev.AccountIDs) != 2 {
		t.Errorf("transfer event should name both legs and accounts: %+v", ev)
	}
	if len(ev.CategoryIDs) != 1 || ev.CategoryIDs[0] != food.ID {
		t.Errorf("CategoryIDs = %v, want [%d]", ev.CategoryIDs, food.ID)
	}

	if err := f.svc.DeleteTransaction(f.ctx, owner, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if ev := f.pub.last(); ev.Type != amqp.EventTransactionDeleted {
		t.Errorf("last event = %s, want %s", ev.Type, amqp.EventTransactionDeleted)
	}

	// A failed mutation publishes nothing.
	before := len(f.pub.events)
	if _, err := f.svc.CreateTransaction(f.ctx, core.NewTransaction{UserID: owner, Kind: core.KindIncome, Amount: money(0), AccountID: x.ID, Description: "x"}); err == nil {
		t.Fatal("expected a validation error")
	}
	if len(f.pub.events) != before {
		t.Error("a rejected mutation should not publish")
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	x := f.account("X")

	f.create(core.NewTransaction{Kind: core.KindIncome, Amount: money(25), AccountID: x.ID})

	if got := f.balance(x.ID); got != 25 {
		t.Errorf("balance = %d, want 25", got)
	}
}
