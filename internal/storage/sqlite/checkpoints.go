package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finpal/splitledger/internal/models"
	"github.com/finpal/splitledger/internal/storage"
)

// WriteCheckpoint overwrites the group's checkpoint columns guarded by
// the version token. A stale token means another commit won the race;
// the caller gets storage.ErrCheckpointConflict and nothing changes.
func (s *SQLiteStore) WriteCheckpoint(ctx context.Context, groupID string, cp models.Checkpoint, expectVersion int64) error {
	var lastExpenseAt any
	if !cp.LastExpenseAt.IsZero() {
		lastExpenseAt = cp.LastExpenseAt.UnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET
		    checkpoint_version = checkpoint_version + 1,
		    checkpoint_executed_by = ?,
		    checkpoint_executed_at = ?,
		    checkpoint_expense_count = ?,
		    checkpoint_last_expense_at = ?
		 WHERE id = ? AND checkpoint_version = ?`,
		string(cp.ExecutedBy), cp.ExecutedAt.UnixMilli(), cp.ExpenseCount, lastExpenseAt,
		groupID, expectVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check checkpoint write: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing group.
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		return fmt.Errorf("group %s: %w", groupID, storage.ErrCheckpointConflict)
	}

	return nil
}
