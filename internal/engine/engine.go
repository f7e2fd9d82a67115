// Package engine implements the checkpoint manager: it decides whether a
// settlement run is needed, computes the watermark-filtered settlement
// view, and governs the idempotent commit of aggregated obligations into
// each member's personal ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/calculator"
	"github.com/finpal/splitledger/internal/metrics"
	"github.com/finpal/splitledger/internal/models"
	"github.com/finpal/splitledger/internal/storage"
)

// epsilon is the monetary tolerance: shares and residuals below one cent
// are treated as zero.
var epsilon = decimal.New(1, -2) // 0.01

// Outcome classifies how a settlement run ended. Skipped and
// NothingToSettle are normal results, not errors.
type Outcome string

const (
	// OutcomeSettlementDue means new expenses exist since the last
	// checkpoint and a commit would write ledger entries.
	OutcomeSettlementDue Outcome = "settlement_due"

	// OutcomeSkipped means the expense-set fingerprint is unchanged since
	// the last checkpoint; nothing was or would be written.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeNothingToSettle means new expenses exist but no member's
	// share reaches the inclusion threshold. The checkpoint is not
	// advanced because no monetary state changed.
	OutcomeNothingToSettle Outcome = "nothing_to_settle"

	// OutcomeCommitted means ledger entries were written and the
	// checkpoint advanced.
	OutcomeCommitted Outcome = "committed"
)

// Fingerprint identifies an expense set for the idempotency predicate:
// two runs over sets with equal count and newest-expense timestamp are
// the same run.
type Fingerprint struct {
	ExpenseCount  int
	LastExpenseAt time.Time // zero when the group has no expenses
}

// Evaluation is the read-only settlement view of a group: who owes whom
// over the expenses newer than the current watermark.
type Evaluation struct {
	Outcome     Outcome
	Fingerprint Fingerprint

	// Balances, Edges, Totals and Residual are populated unless the
	// outcome is Skipped.
	Balances map[models.Member]decimal.Decimal
	Edges    []models.SettlementEdge
	Totals   models.Totals
	Residual decimal.Decimal
	Warnings []IntegrityWarning
}

// CommitResult reports the effect of a Commit call.
type CommitResult struct {
	Outcome    Outcome
	RunID      string
	Checkpoint *models.Checkpoint

	// Shares holds the rounded per-member amounts written to ledgers,
	// keyed by member. Empty unless the outcome is Committed.
	Shares map[models.Member]decimal.Decimal

	Warnings []IntegrityWarning
}

// Manager coordinates settlement runs for groups stored in a
// storage.Store. Evaluation is synchronous and pure given its inputs;
// commits fan out independent per-member ledger writes and wait for all
// of them before touching the checkpoint.
type Manager struct {
	store    storage.Store
	now      func() time.Time
	newRunID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRunID overrides the settlement run ID generator, for tests.
func WithRunID(gen func() string) Option {
	return func(m *Manager) { m.newRunID = gen }
}

// New creates a Manager backed by the given store.
func New(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate computes the settlement view for a group without writing
// anything. An unchanged expense-set fingerprint yields OutcomeSkipped.
func (m *Manager) Evaluate(ctx context.Context, groupID string) (*Evaluation, error) {
	group, expenses, err := m.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	eval := m.evaluate(group, expenses)
	metrics.SettlementRuns.WithLabelValues("evaluate", string(eval.Outcome)).Inc()

	slog.Info("settlement evaluated",
		"group_id", groupID,
		"outcome", eval.Outcome,
		"expense_count", eval.Fingerprint.ExpenseCount,
		"edges", len(eval.Edges),
		"warnings", len(eval.Warnings),
	)

	return eval, nil
}

// Commit performs the final settlement for a group: it writes one
// aggregated obligation entry per qualifying member, then advances the
// checkpoint. Only the group owner may commit; anyone else gets
// ErrNotOwner and no side effects.
//
// A failed ledger write surfaces as *PersistenceError and leaves the
// checkpoint untouched so the run can be retried. A failed checkpoint
// update after successful ledger writes surfaces as
// *CheckpointWriteError and is logged distinctly.
func (m *Manager) Commit(ctx context.Context, groupID string, caller models.Member) (*CommitResult, error) {
	group, expenses, err := m.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if caller != group.CreatedBy {
		slog.Warn("settlement commit rejected",
			"group_id", groupID,
			"caller", caller,
			"owner", group.CreatedBy,
		)
		return nil, fmt.Errorf("member %q: %w", caller, ErrNotOwner)
	}

	eval := m.evaluate(group, expenses)

	if eval.Outcome == OutcomeSkipped {
		metrics.SettlementRuns.WithLabelValues("commit", string(OutcomeSkipped)).Inc()
		slog.Info("settlement commit skipped, no changes since last checkpoint",
			"group_id", groupID,
			"expense_count", eval.Fingerprint.ExpenseCount,
		)
		return &CommitResult{Outcome: OutcomeSkipped}, nil
	}

	shares := qualifyingShares(eval.Totals.Share)
	if len(shares) == 0 {
		// New expenses exist but none moved money past the threshold.
		// No monetary state changed, so the checkpoint is not advanced.
		metrics.SettlementRuns.WithLabelValues("commit", string(OutcomeNothingToSettle)).Inc()
		slog.Info("settlement commit found nothing to settle",
			"group_id", groupID,
			"expense_count", eval.Fingerprint.ExpenseCount,
		)
		return &CommitResult{Outcome: OutcomeNothingToSettle, Warnings: eval.Warnings}, nil
	}

	now := m.now()
	runID := m.newRunID()

	if err := m.writeLedgerEntries(ctx, group, runID, now, shares); err != nil {
		metrics.SettlementRuns.WithLabelValues("commit", "persistence_error").Inc()
		return nil, err
	}

	cp := models.Checkpoint{
		ExecutedBy:    caller,
		ExecutedAt:    now,
		ExpenseCount:  eval.Fingerprint.ExpenseCount,
		LastExpenseAt: eval.Fingerprint.LastExpenseAt,
	}
	if err := m.store.WriteCheckpoint(ctx, group.ID, cp, group.CheckpointVersion); err != nil {
		if errors.Is(err, storage.ErrCheckpointConflict) {
			metrics.CheckpointConflicts.Inc()
		}
		metrics.SettlementRuns.WithLabelValues("commit", "checkpoint_error").Inc()
		// All ledger writes landed but the watermark did not advance; a
		// blind retry would duplicate them unless the store honors the
		// run idempotency key. Logged distinctly for manual follow-up.
		slog.Error("settlement checkpoint write failed after successful ledger writes",
			"group_id", group.ID,
			"run_id", runID,
			"members", len(shares),
			"error", err,
		)
		return nil, &CheckpointWriteError{RunID: runID, Err: err}
	}

	metrics.SettlementRuns.WithLabelValues("commit", string(OutcomeCommitted)).Inc()
	slog.Info("settlement committed",
		"group_id", group.ID,
		"run_id", runID,
		"members", len(shares),
		"expense_count", cp.ExpenseCount,
	)

	return &CommitResult{
		Outcome:    OutcomeCommitted,
		RunID:      runID,
		Checkpoint: &cp,
		Shares:     shares,
		Warnings:   eval.Warnings,
	}, nil
}

func (m *Manager) load(ctx context.Context, groupID string) (*models.Group, []models.Expense, error) {
	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("load group: %w", err)
	}
	expenses, err := m.store.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("load expenses: %w", err)
	}
	return group, expenses, nil
}

// evaluate is the pure core shared by Evaluate and Commit.
func (m *Manager) evaluate(group *models.Group, expenses []models.Expense) *Evaluation {
	fp := fingerprint(expenses)

	if cp := group.Checkpoint; cp != nil &&
		cp.ExpenseCount == fp.ExpenseCount &&
		cp.LastExpenseAt.Equal(fp.LastExpenseAt) {
		return &Evaluation{Outcome: OutcomeSkipped, Fingerprint: fp}
	}

	var since time.Time
	if group.Checkpoint != nil {
		since = group.Checkpoint.ExecutedAt
	}

	balances := calculator.ComputeBalances(expenses, group.Members, since)
	totals := calculator.ComputeTotals(expenses, group.Members, since)
	edges, residual := calculator.Simplify(balances, group.Members)
	warnings := integrityWarnings(group, expenses, since, residual)

	if len(warnings) > 0 {
		metrics.IntegrityWarnings.Add(float64(len(warnings)))
		for _, w := range warnings {
			slog.Warn("settlement integrity warning",
				"group_id", group.ID,
				"kind", w.Kind,
				"member", w.Member,
				"detail", w.Detail,
			)
		}
	}

	return &Evaluation{
		Outcome:     OutcomeSettlementDue,
		Fingerprint: fp,
		Balances:    balances,
		Edges:       edges,
		Totals:      totals,
		Residual:    residual,
		Warnings:    warnings,
	}
}

// writeLedgerEntries fans out one write per qualifying member and waits
// for all of them. Writes target disjoint personal ledgers, so ordering
// between them carries no meaning and failures do not abort siblings.
func (m *Manager) writeLedgerEntries(ctx context.Context, group *models.Group, runID string, now time.Time, shares map[models.Member]decimal.Decimal) error {
	tag := group.Name
	if tag == "" {
		tag = "trip"
	}
	description := fmt.Sprintf("[Group: %s] Your share of group expenses", group.Name)

	type writeResult struct {
		member models.Member
		err    error
	}

	results := make(chan writeResult, len(shares))
	var wg sync.WaitGroup
	for member, amount := range shares {
		wg.Add(1)
		go func(member models.Member, amount decimal.Decimal) {
			defer wg.Done()
			entry := &models.LedgerEntry{
				MemberID:  member,
				Type:      models.LedgerEntryTypeExpense,
				Date:      now.Format("2006-01-02"),
				Amount:    amount,
				Tag:       tag,
				Name:      description,
				GroupID:   group.ID,
				RunID:     runID,
				CreatedAt: now,
			}
			results <- writeResult{member: member, err: m.store.AppendLedgerEntry(ctx, entry)}
		}(member, amount)
	}
	wg.Wait()
	close(results)

	failed := make(map[models.Member]error)
	var succeeded []models.Member
	for res := range results {
		if res.err != nil {
			failed[res.member] = res.err
			metrics.LedgerWrites.WithLabelValues("error").Inc()
			slog.Error("ledger write failed",
				"group_id", group.ID,
				"run_id", runID,
				"member", res.member,
				"error", res.err,
			)
		} else {
			succeeded = append(succeeded, res.member)
			metrics.LedgerWrites.WithLabelValues("ok").Inc()
		}
	}

	if len(failed) > 0 {
		return &PersistenceError{RunID: runID, Failed: failed, Succeeded: succeeded}
	}
	return nil
}

// qualifyingShares rounds each member's share and keeps those at or
// above one cent.
func qualifyingShares(share map[models.Member]decimal.Decimal) map[models.Member]decimal.Decimal {
	qualified := make(map[models.Member]decimal.Decimal)
	for member, amount := range share {
		rounded := models.Round2(amount)
		if rounded.GreaterThanOrEqual(epsilon) {
			qualified[member] = rounded
		}
	}
	return qualified
}

// fingerprint computes the idempotency fingerprint of an expense set.
// Timestamps are truncated to millisecond precision so the comparison is
// stable across storage round-trips.
func fingerprint(expenses []models.Expense) Fingerprint {
	fp := Fingerprint{ExpenseCount: len(expenses)}
	for i := range expenses {
		t := expenses[i].CreatedAt.Truncate(time.Millisecond)
		if t.After(fp.LastExpenseAt) {
			fp.LastExpenseAt = t
		}
	}
	return fp
}

// integrityWarnings collects the data inconsistencies the run tolerated:
// payers or split members outside the group, and a residual imbalance
// beyond tolerance.
func integrityWarnings(group *models.Group, expenses []models.Expense, since time.Time, residual decimal.Decimal) []IntegrityWarning {
	var warnings []IntegrityWarning
	seen := make(map[string]bool)
	add := func(w IntegrityWarning) {
		key := string(w.Kind) + "/" + string(w.Member)
		if !seen[key] {
			seen[key] = true
			warnings = append(warnings, w)
		}
	}

	for i := range expenses {
		e := &expenses[i]
		if !e.CreatedAt.After(since) {
			continue
		}
		if !group.HasMember(e.PaidBy) {
			add(IntegrityWarning{
				Kind:   WarnUnknownPayer,
				Member: e.PaidBy,
				Detail: fmt.Sprintf("expense %s paid by a member outside the group", e.ID),
			})
		}
		for _, p := range e.SplitAmong {
			if !group.HasMember(p) {
				add(IntegrityWarning{
					Kind:   WarnUnknownParticipant,
					Member: p,
					Detail: fmt.Sprintf("expense %s split with a member outside the group", e.ID),
				})
			}
		}
	}

	if residual.GreaterThan(epsilon) {
		add(IntegrityWarning{
			Kind:   WarnResidualImbalance,
			Detail: fmt.Sprintf("debtor and creditor sums disagree by %s", residual.StringFixed(2)),
		})
	}

	return warnings
}
