package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/models"
	"github.com/finpal/splitledger/internal/storage"
	"github.com/finpal/splitledger/internal/storage/sqlite"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testClock is a controllable time source for the manager.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestGroup(t *testing.T, store storage.Store, members ...models.Member) *models.Group {
	t.Helper()

	group := &models.Group{
		Name:      "Goa Trip",
		Members:   members,
		CreatedBy: members[0],
	}
	if err := store.CreateGroup(context.Background(), group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	return group
}

func addExpense(t *testing.T, store storage.Store, groupID, amount string, paidBy models.Member, splitAmong []models.Member, createdAt time.Time) {
	t.Helper()

	e := &models.Expense{
		Description: "test expense",
		Amount:      dec(amount),
		PaidBy:      paidBy,
		SplitAmong:  splitAmong,
		CreatedAt:   createdAt,
	}
	if err := store.AddExpense(context.Background(), groupID, e); err != nil {
		t.Fatalf("failed to add expense: %v", err)
	}
}

func TestCommit_WritesLedgerAndCheckpoint(t *testing.T) {
	store := newTestStore(t)
	clock := &testClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	mgr := New(store, WithClock(clock.Now))
	ctx := context.Background()

	group := newTestGroup(t, store, "A", "B")
	addExpense(t, store, group.ID, "100", "A", []models.Member{"A", "B"}, clock.now.Add(-time.Hour))

	clock.Advance(time.Minute)
	result, err := mgr.Commit(ctx, group.ID, "A")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.Outcome != OutcomeCommitted {
		t.Fatalf("expected outcome committed, got %s", result.Outcome)
	}
	if result.RunID == "" {
		t.Error("expected a run ID")
	}

	// Each member's share of the 100 expense is 50.
	for _, m := range []models.Member{"A", "B"} {
		if !result.Shares[m].Equal(dec("50")) {
			t.Errorf("%s share: expected 50, got %s", m, result.Shares[m])
		}
		entries, err := store.ListLedgerEntries(ctx, m)
		if err != nil {
			t.Fatalf("ListLedgerEntries failed: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("%s: expected 1 ledger entry, got %d", m, len(entries))
		}
		e := entries[0]
		if !e.Amount.Equal(dec("50")) {
			t.Errorf("%s entry amount: expected 50, got %s", m, e.Amount)
		}
		if e.Type != models.LedgerEntryTypeExpense {
			t.Errorf("%s entry type: expected expense, got %s", m, e.Type)
		}
		if e.Tag != "Goa Trip" {
			t.Errorf("%s entry tag: expected group name, got %q", m, e.Tag)
		}
		if e.GroupID != group.ID || e.RunID != result.RunID {
			t.Errorf("%s entry linkage wrong: group=%s run=%s", m, e.GroupID, e.RunID)
		}
		if e.Date != "2026-02-01" {
			t.Errorf("%s entry date: expected commit date, got %s", m, e.Date)
		}
	}

	// Checkpoint persisted with the expense-set fingerprint.
	stored, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.Checkpoint == nil {
		t.Fatal("expected a checkpoint after commit")
	}
	if stored.Checkpoint.ExpenseCount != 1 {
		t.Errorf("checkpoint expense count: expected 1, got %d", stored.Checkpoint.ExpenseCount)
	}
	if stored.Checkpoint.ExecutedBy != "A" {
		t.Errorf("checkpoint executed by: expected A, got %s", stored.Checkpoint.ExecutedBy)
	}
	if stored.CheckpointVersion != 1 {
		t.Errorf("checkpoint version: expected 1, got %d", stored.CheckpointVersion)
	}
}

func TestEvaluate_SkippedAfterCommit(t *testing.T) {
	store := newTestStore(t)
	clock := &testClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	mgr := New(store, WithClock(clock.Now))
	ctx := context.Background()

	group := newTestGroup(t, store, "A", "B", "C")
	for i := 0; i < 3; i++ {
		addExpense(t, store, group.ID, "30", "A", nil, clock.now.Add(time.Duration(i)*time.Minute))
	}

	clock.Advance(time.Hour)
	if _, err := mgr.Commit(ctx, group.ID, "A"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Unchanged expense set: evaluation is idempotent.
	for i := 0; i < 2; i++ {
		eval, err := mgr.Evaluate(ctx, group.ID)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if eval.Outcome != OutcomeSkipped {
			t.Fatalf("evaluate %d: expected skipped, got %s", i, eval.Outcome)
		}
	}

	// A second commit is also a no-op.
	result, err := mgr.Commit(ctx, group.ID, "A")
	if err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
	entries, err := store.ListLedgerEntries(ctx, "B")
	if err != nil {
		t.Fatalf("ListLedgerEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no additional ledger entries, got %d", len(entries))
	}
}

func TestCommit_NonOwnerRejected(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store)
	ctx := context.Background()

	group := newTestGroup(t, store, "A", "B")
	addExpense(t, store, group.ID, "100", "A", nil, time.Now().Add(-time.Hour))

	_, err := mgr.Commit(ctx, group.ID, "B")
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	// No side effects: no checkpoint, no ledger entries.
	stored, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.Checkpoint != nil {
		t.Error("expected no checkpoint after rejected commit")
	}
	entries, err := store.ListLedgerEntries(ctx, "A")
	if err != nil {
		t.Fatalf("ListLedgerEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestCommit_NothingToSettle(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store)
	ctx := context.Background()

	// 0.01 split three ways: every share rounds below a cent.
	group := newTestGroup(t, store, "A", "B", "C")
	addExpense(t, store, group.ID, "0.01", "A", nil, time.Now().Add(-time.Hour))

	result, err := mgr.Commit(ctx, group.ID, "A")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.Outcome != OutcomeNothingToSettle {
		t.Fatalf("expected nothing_to_settle, got %s", result.Outcome)
	}

	// No monetary state changed, so the checkpoint must not advance.
	stored, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.Checkpoint != nil {
		t.Error("expected no checkpoint when nothing was settled")
	}
}

func TestCommit_WatermarkExcludesSettledExpenses(t *testing.T) {
	store := newTestStore(t)
	clock := &testClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	mgr := New(store, WithClock(clock.Now))
	ctx := context.Background()

	group := newTestGroup(t, store, "A", "B")
	addExpense(t, store, group.ID, "100", "A", nil, clock.now.Add(-time.Hour))

	if _, err := mgr.Commit(ctx, group.ID, "A"); err != nil {
		t.Fatalf("first Commit failed: %v", err)
	}

	// A new expense after the checkpoint: only it participates.
	clock.Advance(time.Hour)
	addExpense(t, store, group.ID, "30", "B", nil, clock.now)
	clock.Advance(time.Minute)

	eval, err := mgr.Evaluate(ctx, group.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Outcome != OutcomeSettlementDue {
		t.Fatalf("expected settlement_due, got %s", eval.Outcome)
	}
	if !eval.Totals.Share["A"].Equal(dec("15")) {
		t.Errorf("A share: expected 15 (new expense only), got %s", eval.Totals.Share["A"])
	}
	if !eval.Balances["B"].Equal(dec("15")) {
		t.Errorf("B balance: expected 15, got %s", eval.Balances["B"])
	}

	result, err := mgr.Commit(ctx, group.ID, "A")
	if err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}
	if result.Outcome != OutcomeCommitted {
		t.Fatalf("expected committed, got %s", result.Outcome)
	}
	if !result.Shares["A"].Equal(dec("15")) {
		t.Errorf("A share: expected 15, got %s", result.Shares["A"])
	}

	entries, err := store.ListLedgerEntries(ctx, "A")
	if err != nil {
		t.Fatalf("ListLedgerEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries across both runs, got %d", len(entries))
	}
}

func TestEvaluate_IntegrityWarnings(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store)
	ctx := context.Background()

	group := newTestGroup(t, store, "A", "B")
	addExpense(t, store, group.ID, "50", "Z", []models.Member{"A", "B"}, time.Now().Add(-time.Hour))

	eval, err := mgr.Evaluate(ctx, group.ID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	found := false
	for _, w := range eval.Warnings {
		if w.Kind == WarnUnknownPayer && w.Member == "Z" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown_payer warning for Z, got %v", eval.Warnings)
	}

	// Best-effort accounting still completes.
	if !eval.Balances["Z"].Equal(dec("50")) {
		t.Errorf("Z balance: expected 50, got %s", eval.Balances["Z"])
	}
}

// flakyStore fails ledger writes for selected members.
type flakyStore struct {
	storage.Store
	failFor map[models.Member]bool
}

func (s *flakyStore) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if s.failFor[entry.MemberID] {
		return fmt.Errorf("simulated write failure for %s", entry.MemberID)
	}
	return s.Store.AppendLedgerEntry(ctx, entry)
}

func TestCommit_PersistenceErrorKeepsCheckpoint(t *testing.T) {
	base := newTestStore(t)
	store := &flakyStore{Store: base, failFor: map[models.Member]bool{"B": true}}
	mgr := New(store)
	ctx := context.Background()

	group := newTestGroup(t, base, "A", "B")
	addExpense(t, store, group.ID, "100", "A", nil, time.Now().Add(-time.Hour))

	_, err := mgr.Commit(ctx, group.ID, "A")
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if _, ok := persistErr.Failed["B"]; !ok {
		t.Errorf("expected B among failed writes, got %v", persistErr.Failed)
	}

	// Sibling writes are independent: A's write went through.
	entries, err := base.ListLedgerEntries(ctx, "A")
	if err != nil {
		t.Fatalf("ListLedgerEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected A's write to land, got %d entries", len(entries))
	}

	// The checkpoint must not advance, so the run stays retryable.
	stored, err := base.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.Checkpoint != nil {
		t.Error("expected no checkpoint after a failed ledger write")
	}

	// Once the sink recovers, the retry commits.
	store.failFor = nil
	result, err := mgr.Commit(ctx, group.ID, "A")
	if err != nil {
		t.Fatalf("retry Commit failed: %v", err)
	}
	if result.Outcome != OutcomeCommitted {
		t.Fatalf("expected committed on retry, got %s", result.Outcome)
	}
}

// conflictStore simulates losing the checkpoint compare-and-commit race.
type conflictStore struct {
	storage.Store
}

func (s *conflictStore) WriteCheckpoint(ctx context.Context, groupID string, cp models.Checkpoint, expectVersion int64) error {
	return fmt.Errorf("group %s: %w", groupID, storage.ErrCheckpointConflict)
}

func TestCommit_CheckpointWriteError(t *testing.T) {
	base := newTestStore(t)
	store := &conflictStore{Store: base}
	mgr := New(store)
	ctx := context.Background()

	group := newTestGroup(t, base, "A", "B")
	addExpense(t, store, group.ID, "100", "A", nil, time.Now().Add(-time.Hour))

	_, err := mgr.Commit(ctx, group.ID, "A")
	var cpErr *CheckpointWriteError
	if !errors.As(err, &cpErr) {
		t.Fatalf("expected CheckpointWriteError, got %v", err)
	}
	if !errors.Is(err, storage.ErrCheckpointConflict) {
		t.Errorf("expected wrapped ErrCheckpointConflict, got %v", err)
	}

	// Ledger writes landed before the checkpoint failed.
	entries, err := base.ListLedgerEntries(ctx, "B")
	if err != nil {
		t.Fatalf("ListLedgerEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected B's ledger write to have landed, got %d entries", len(entries))
	}
}

func TestEvaluate_GroupNotFound(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store)

	_, err := mgr.Evaluate(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
