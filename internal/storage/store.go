// Package storage provides abstractions for the settlement engine's
// external collaborators: the expense and membership sources, the
// checkpoint store and the per-member ledger writer.
package storage

import (
	"context"
	"errors"

	"github.com/finpal/splitledger/internal/models"
)

// ErrNotFound is returned when a requested group does not exist.
var ErrNotFound = errors.New("not found")

// ErrCheckpointConflict is returned by WriteCheckpoint when the expected
// version token no longer matches the stored one, i.e. a concurrent
// commit advanced the checkpoint first.
var ErrCheckpointConflict = errors.New("checkpoint version conflict")

// Store defines the persistence operations the engine depends on.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// a remote document store, etc.) without changing the engine.
//
// The engine assumes nothing about ordering of ListExpenses results; it
// filters and aggregates itself.
type Store interface {
	// CreateGroup persists a new group. The ID and CreatedAt fields are
	// populated by the store when unset.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group, its member list and its current
	// checkpoint (nil when the group has never been settled).
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// AddExpense appends an expense record to a group. The ID and
	// CreatedAt fields are populated by the store when unset.
	AddExpense(ctx context.Context, groupID string, expense *models.Expense) error

	// ListExpenses returns all expense records for a group, in no
	// guaranteed order.
	ListExpenses(ctx context.Context, groupID string) ([]models.Expense, error)

	// WriteCheckpoint replaces the group's checkpoint, but only if the
	// stored checkpoint version still equals expectVersion. On success
	// the stored version is incremented; on a stale token it returns
	// ErrCheckpointConflict and changes nothing.
	WriteCheckpoint(ctx context.Context, groupID string, cp models.Checkpoint, expectVersion int64) error

	// AppendLedgerEntry appends an obligation transaction to a member's
	// personal ledger. Writing the same (RunID, MemberID) pair twice is a
	// no-op, which makes partially failed settlement runs safe to retry.
	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error

	// ListLedgerEntries returns a member's ledger entries, newest first.
	ListLedgerEntries(ctx context.Context, member models.Member) ([]models.LedgerEntry, error)

	// Close releases any resources held by the store.
	Close() error
}
