package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/finpal/splitledger/internal/models"
)

// ErrNotOwner is returned when a member other than the group owner
// attempts a commit. The attempt fails fast with no side effects.
var ErrNotOwner = errors.New("only the group owner can commit a final settlement")

// PersistenceError reports that one or more per-member ledger writes
// failed during a commit. Sibling writes are independent, so some may
// have succeeded; the checkpoint is deliberately not advanced, which
// makes the run safe to re-attempt. The (run, member) idempotency key on
// ledger entries keeps the retry from duplicating successful writes.
type PersistenceError struct {
	RunID     string
	Failed    map[models.Member]error
	Succeeded []models.Member
}

func (e *PersistenceError) Error() string {
	members := make([]string, 0, len(e.Failed))
	for m := range e.Failed {
		members = append(members, string(m))
	}
	sort.Strings(members)
	return fmt.Sprintf("settlement run %s: ledger writes failed for %d of %d members (%s)",
		e.RunID, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(members, ", "))
}

// CheckpointWriteError reports that every ledger write succeeded but the
// checkpoint update did not. This is the one case that needs manual
// attention: a blind retry would duplicate the already-written ledger
// entries unless the store honors the run idempotency key.
type CheckpointWriteError struct {
	RunID string
	Err   error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("settlement run %s: ledger writes succeeded but checkpoint update failed: %v", e.RunID, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a data-integrity warning.
type WarningKind string

const (
	// WarnUnknownPayer flags an expense whose payer is not in the
	// group's member list.
	WarnUnknownPayer WarningKind = "unknown_payer"

	// WarnUnknownParticipant flags an expense split member who is not in
	// the group's member list.
	WarnUnknownParticipant WarningKind = "unknown_participant"

	// WarnResidualImbalance flags a debtor/creditor sum mismatch beyond
	// tolerance left unresolved by the simplifier.
	WarnResidualImbalance WarningKind = "residual_imbalance"
)

// IntegrityWarning reports a data inconsistency the run completed in
// spite of. Computation uses best-effort values; the discrepancy is
// surfaced rather than silently absorbed.
type IntegrityWarning struct {
	Kind   WarningKind
	Member models.Member // offending member, when applicable
	Detail string
}

func (w IntegrityWarning) String() string {
	if w.Member != "" {
		return fmt.Sprintf("%s (%s): %s", w.Kind, w.Member, w.Detail)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
}
