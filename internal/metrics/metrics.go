// Package metrics exposes Prometheus collectors for settlement activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementRuns counts Evaluate/Commit completions by outcome
	// (settlement_due, skipped, nothing_to_settle, committed).
	SettlementRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_settlement_runs_total",
		Help: "Settlement runs completed, labeled by outcome.",
	}, []string{"op", "outcome"})

	// LedgerWrites counts per-member ledger writes issued during commits.
	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_ledger_writes_total",
		Help: "Per-member ledger writes, labeled by status (ok, error).",
	}, []string{"status"})

	// IntegrityWarnings counts data-integrity warnings surfaced by runs
	// (unknown payer/participant, residual imbalance).
	IntegrityWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_integrity_warnings_total",
		Help: "Data-integrity warnings surfaced by settlement runs.",
	})

	// CheckpointConflicts counts commits that lost the checkpoint
	// compare-and-commit race.
	CheckpointConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_checkpoint_conflicts_total",
		Help: "Checkpoint writes rejected by a stale version token.",
	})
)
