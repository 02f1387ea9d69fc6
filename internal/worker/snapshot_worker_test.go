package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/ledger"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/storage"
)

var sweepTime = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu          sync.Mutex
	ids         []int64
	failing     map[int64]bool
	pending     map[int64]int64
	pageErr     error
	cursors     []int64
	checkpoints map[int64][]time.Time
}

func newFakeLedger(n int) *fakeLedger {
	f := &fakeLedger{
		failing:     map[int64]bool{},
		pending:     map[int64]int64{},
		checkpoints: map[int64][]time.Time{},
	}
	for i := 1; i <= n; i++ {
		f.ids = append(f.ids, int64(i))
	}
	return f
}

func (f *fakeLedger) AccountsAfter(_ context.Context, afterID int64, limit int) ([]core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, afterID)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	var out []core.Account
	for _, id := range f.ids {
		if id > afterID && len(out) < limit {
			out = append(out, core.Account{ID: id})
		}
	}
	return out, nil
}

func (f *fakeLedger) Checkpoint(_ context.Context, accountID int64, at time.Time) (core.BalanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[accountID] {
		return core.BalanceSnapshot{}, fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
	}
	f.checkpoints[accountID] = append(f.checkpoints[accountID], at)
	return core.BalanceSnapshot{AccountID: accountID, At: at}, nil
}

func (f *fakeLedger) PendingTransactions(_ context.Context, accountID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[accountID], nil
}

func newTestWorker(l Ledger, cfg Config) *SnapshotWorker {
	w := NewSnapshotWorker(l, cfg)
	w.now = func() time.Time { return sweepTime }
	return w
}

func TestDailySweepPaginates(t *testing.T) {
	tests := []struct {
		name     string
		accounts int
		pageSize int
		cursors  []int64
	}{
		{"partial last page", 5, 2, []int64{0, 2, 4}},
		{"exact pages", 4, 2, []int64{0, 2, 4}},
		{"single page", 3, 10, []int64{0}},
		{"no accounts", 0, 10, []int64{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(tt.accounts)
			w := newTestWorker(l, Config{PageSize: tt.pageSize, Concurrency: 3})

			res, err := w.RunDailySnapshotSweep(context.Background())
			if err != nil {
				t.Fatalf("RunDailySnapshotSweep: %v", err)
			}
			if res.Processed != tt.accounts || res.Failed != 0 {
				t.Errorf("result = %+v, want %d processed", res, tt.accounts)
			}
			if !slices.Equal(l.cursors, tt.cursors) {
				t.Errorf("cursors = %v, want %v", l.cursors, tt.cursors)
			}
			for _, id := range l.ids {
				if got := l.checkpoints[id]; len(got) != 1 || !got[0].Equal(sweepTime) {
					t.Errorf("account %d checkpoints = %v", id, got)
				}
			}
		})
	}
}

func TestDailySweepIsolatesFailures(t *testing.T) {
	l := newFakeLedger(6)
	l.failing[2] = true
	l.failing[5] = true
	w := newTestWorker(l, Config{PageSize: 4, Concurrency: 2})

	res, err := w.RunDailySnapshotSweep(context.Background())
	if err != nil {
		t.Fatalf("RunDailySnapshotSweep: %v", err)
	}
	if res.Processed != 4 || res.Failed != 2 {
		t.Errorf("result = %+v, want 4 processed and 2 failed", res)
	}
	for _, id := range []int64{1, 3, 4, 6} {
		if len(l.checkpoints[id]) != 1 {
			t.Errorf("account %d was not checkpointed", id)
		}
	}
}

func TestDailySweepPageError(t *testing.T) {
	l := newFakeLedger(3)
	l.pageErr = errors.New("database is locked")
	w := newTestWorker(l, Config{PageSize: 2})

	if _, err := w.RunDailySnapshotSweep(context.Background()); err == nil {
		t.Fatal("expected the page error to abort the sweep")
	}
}

func TestDailySweepHonoursCancellation(t *testing.T) {
	l := newFakeLedger(3)
	w := newTestWorker(l, Config{PageSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.RunDailySnapshotSweep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(l.cursors) != 0 {
		t.Error("no page should be loaded after cancellation")
	}
}

func TestHandleLedgerEvent(t *testing.T) {
	tests := []struct {
		name      string
		threshold int64
		pending   map[int64]int64
		failing   map[int64]bool
		wantErr   bool
		want      []int64
	}{
		{"disabled", 0, map[int64]int64{1: 10000}, nil, false, nil},
		{"below threshold", 500, map[int64]int64{1: 499, 2: 3}, nil, false, nil},
		{"at threshold", 500, map[int64]int64{1: 500, 2: 3}, nil, false, []int64{1}},
		{"both due", 10, map[int64]int64{1: 11, 2: 12}, nil, false, []int64{1, 2}},
		{"checkpoint failure requeues", 10, map[int64]int64{1: 11, 2: 12}, map[int64]bool{2: true}, true, []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(2)
			l.pending = tt.pending
			if tt.failing != nil {
				l.failing = tt.failing
			}
			w := newTestWorker(l, Config{EagerThreshold: tt.threshold})

			ev := amqp.NewLedgerEvent(amqp.EventTransactionCreated, "user-1")
			ev.AccountIDs = []int64{1, 2}
			err := w.HandleLedgerEvent(context.Background(), ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleLedgerEvent error = %v, wantErr %v", err, tt.wantErr)
			}

			var got []int64
			for _, id := range []int64{1, 2} {
				if len(l.checkpoints[id]) > 0 {
					got = append(got, id)
				}
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("checkpointed %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatchUp(t *testing.T) {
	l := newFakeLedger(4)
	l.pending = map[int64]int64{2: 50, 4: 9}
	w := newTestWorker(l, Config{PageSize: 3, EagerThreshold: 10})

	res, err := w.CatchUp(context.Background())
	if err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want exactly one account checkpointed", res)
	}
	if len(l.checkpoints[2]) != 1 || len(l.checkpoints[4]) != 0 {
		t.Errorf("checkpoints = %v", l.checkpoints)
	}
}

// The sweep against the real ledger: two runs without mutations in between
// produce equal checkpoints and leave every balance unchanged.
func TestSweepIdempotenceAgainstStore(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	clock := func() time.Time { return sweepTime }
	svc := ledger.NewService(repo, ledger.WithClock(clock))

	var accounts []core.Account
	for i := 0; i < 3; i++ {
		a, err := svc.CreateAccount(ctx, "user-1", fmt.Sprintf("A%d", i), core.AccountBank)
		if err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		accounts = append(accounts, a)
	}
	if _, err := svc.CreateTransaction(ctx, core.NewTransaction{
		UserID: "user-1", Kind: core.KindIncome, Amount: core.Money{Cents: 900},
		AccountID: accounts[0].ID, Description: "salary", OccurredAt: sweepTime.Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, core.NewTransaction{
		UserID: "user-1", Kind: core.KindTransfer, Amount: core.Money{Cents: 250},
		AccountID: accounts[0].ID, DestinationAccountID: accounts[1].ID, Description: "savings",
		OccurredAt: sweepTime.Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	before := map[int64]int64{}
	for _, a := range accounts {
		b, _ := svc.ResolveBalance(ctx, a.ID)
		before[a.ID] = b.Amount.Cents
	}

	w := newTestWorker(svc, Config{PageSize: 2, Concurrency: 2})
	for run := 0; run < 2; run++ {
		res, err := w.RunDailySnapshotSweep(ctx)
		if err != nil || res.Processed != 3 || res.Failed != 0 {
			t.Fatalf("run %d: result = %+v, err = %v", run, res, err)
		}
	}

	for _, a := range accounts {
		snaps, err := svc.Snapshots(ctx, a.ID)
		if err != nil {
			t.Fatalf("Snapshots: %v", err)
		}
		if len(snaps) != 2 || snaps[0].Balance != snaps[1].Balance {
			t.Errorf("account %d snapshots = %+v, want two equal checkpoints", a.ID, snaps)
		}
		if snaps[0].Balance.Cents != before[a.ID] {
			t.Errorf("account %d checkpoint = %d, want %d", a.ID, snaps[0].Balance.Cents, before[a.ID])
		}
		b, _ := svc.ResolveBalance(ctx, a.ID)
		if b.Amount.Cents != before[a.ID] {
			t.Errorf("account %d balance moved from %d to %d", a.ID, before[a.ID], b.Amount.Cents)
		}
	}
}

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

func TestDailySweepAnnouncesCounts(t *testing.T) {
	tests := []struct {
		name       string
		publishErr error
	}{
		{"published", nil},
		{"broker down", errors.New("amqp: circuit breaker is open")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(3)
			l.failing[3] = true
			pub := &recordingPublisher{err: tt.publishErr}
			w := NewSnapshotWorker(l, Config{PageSize: 10}, WithPublisher(pub))
			w.now = func() time.Time { return sweepTime }

			res, err := w.RunDailySnapshotSweep(context.Background())
			if err != nil {
				t.Fatalf("RunDailySnapshotSweep: %v", err)
			}
			if res.Processed != 2 || res.Failed != 1 {
				t.Fatalf("result = %+v", res)
			}
			if len(pub.events) != 1 {
				t.Fatalf("published %d events, want 1", len(pub.events))
			}
			ev := pub.events[0]
			if ev.Type != amqp.EventSnapshotSweep || ev.Processed != 2 || ev.Failed != 1 || !ev.Timestamp.Equal(sweepTime) {
				t.Errorf("event = %+v", ev)
			}
			if len(ev.AccountIDs) != 0 {
				t.Errorf("sweep event should name no accounts, got %v", ev.AccountIDs)
			}
		})
	}
}

func TestAbortedSweepIsNotAnnounced(t *testing.T) {
	l := newFakeLedger(3)
	l.pageErr = errors.New("database is locked")
	pub := &recordingPublisher{}
	w := NewSnapshotWorker(l, Config{PageSize: 2}, WithPublisher(pub))

	if _, err := w.RunDailySnapshotSweep(context.Background()); err == nil {
		t.Fatal("expected the page error")
	}
	if len(pub.events) != 0 {
		t.Errorf("aborted sweep published %d events", len(pub.events))
	}
}

func TestHandleLedgerEventIgnoresSweepAnnouncements(t *testing.T) {
	l := newFakeLedger(1)
	l.pending[1] = 1000
	w := newTestWorker(l, Config{EagerThreshold: 1})

	ev := amqp.NewLedgerEvent(amqp.EventSnapshotSweep, "")
	ev.AccountIDs = []int64{1}
	if err := w.HandleLedgerEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}
	if len(l.checkpoints[1]) != 0 {
		t.Error("a sweep announcement must not trigger checkpoints")
	}
}

func TestHandleLedgerEventLogsThroughDeliveryLogger(t *testing.T) {
	var buf bytes.Buffer
	delivery := log.New(log.Config{
		Component: log.ComponentAMQP,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}).With("delivery_tag", 42)

	l := newFakeLedger(1)
	w := newTestWorker(l, Config{EagerThreshold: 10})
	ev := amqp.NewLedgerEvent(amqp.EventTransactionUpdated, "user-1")
	ev.AccountIDs = []int64{1}

	if err := w.HandleLedgerEvent(log.NewContext(context.Background(), delivery), ev); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"delivery_tag=42", "component=worker", "event_type=ledger.transaction.updated"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

// Sweeps and backdated mutations racing on the same accounts must leave every
// checkpoint equal to a full replay and lose no update.
func TestConcurrentSweepsAndMutations(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	svc := ledger.NewService(repo, ledger.WithClock(func() time.Time { return sweepTime }))
	x, err := svc.CreateAccount(ctx, "user-1", "X", core.AccountBank)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	y, err := svc.CreateAccount(ctx, "user-1", "Y", core.AccountSavings)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers+4)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := core.NewTransaction{
				UserID: "user-1", Kind: core.KindExpense, Amount: core.Money{Cents: 10},
				AccountID: x.ID, Description: "coffee", OccurredAt: sweepTime.Add(-time.Duration(i+1) * time.Hour),
			}
			if i%2 == 1 {
				n.Kind, n.Amount, n.DestinationAccountID, n.Description = core.KindTransfer, core.Money{Cents: 25}, y.ID, "savings"
			}
			if _, err := svc.CreateTransaction(ctx, n); err != nil {
				errs <- err
			}
		}(i)
	}
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			w := NewSnapshotWorker(svc, Config{PageSize: 1, Concurrency: 2})
			w.now = func() time.Time { return sweepTime.Add(-time.Duration(5*s) * time.Hour) }
			if res, err := w.RunDailySnapshotSweep(ctx); err != nil || res.Failed != 0 {
				errs <- fmt.Errorf("sweep %d: %+v, %v", s, res, err)
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// 10 expenses of 10 and 10 transfers of 25 out of X.
	want := map[int64]int64{x.ID: -350, y.ID: 250}
	for id, cents := range want {
		b, err := svc.ResolveBalance(ctx, id)
		if err != nil {
			t.Fatalf("ResolveBalance: %v", err)
		}
		if b.Amount.Cents != cents {
			t.Errorf("account %d balance = %d, want %d", id, b.Amount.Cents, cents)
		}
		mismatches, err := svc.VerifyAccount(ctx, id)
		if err != nil {
			t.Fatalf("VerifyAccount: %v", err)
		}
		if len(mismatches) > 0 {
			t.Errorf("account %d snapshots diverge from replay: %+v", id, mismatches)
		}
	}
}
