package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/models"
)

// AppendLedgerEntry appends an obligation transaction to a member's
// personal ledger. (run_id, member_id) is unique, so retrying a
// settlement run after a partial failure never duplicates an entry that
// already landed.
func (s *SQLiteStore) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, member_id, type, date, amount, tag, name, group_id, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, member_id) DO NOTHING`,
		entry.ID, string(entry.MemberID), entry.Type, entry.Date, entry.Amount.String(),
		entry.Tag, entry.Name, entry.GroupID, entry.RunID, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// ListLedgerEntries returns a member's ledger entries, newest first.
func (s *SQLiteStore) ListLedgerEntries(ctx context.Context, member models.Member) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, type, date, amount, tag, name, group_id, run_id, created_at
		 FROM ledger_entries WHERE member_id = ? ORDER BY created_at DESC`,
		string(member),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e         models.LedgerEntry
			memberID  string
			amount    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &memberID, &e.Type, &e.Date, &amount, &e.Tag, &e.Name,
			&e.GroupID, &e.RunID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.MemberID = models.Member(memberID)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ledger amount %q: %w", amount, err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}
