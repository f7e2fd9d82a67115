package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/models"
)

// AddExpense appends an expense record and its split list to a group.
func (s *SQLiteStore) AddExpense(ctx context.Context, groupID string, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}
	if expense.Date == "" {
		expense.Date = expense.CreatedAt.Format("2006-01-02")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, paid_by, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, groupID, expense.Description, expense.Amount.String(),
		string(expense.PaidBy), expense.Date, expense.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for i, member := range expense.SplitAmong {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, member_id, position) VALUES (?, ?, ?)",
			expense.ID, string(member), i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListExpenses returns all expense records for a group. No ordering is
// guaranteed; the engine filters and aggregates itself.
func (s *SQLiteStore) ListExpenses(ctx context.Context, groupID string) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, description, amount, paid_by, date, created_at FROM expenses WHERE group_id = ?",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var (
			e         models.Expense
			amount    string
			paidBy    string
			createdAt any
		)
		if err := rows.Scan(&e.ID, &e.Description, &amount, &paidBy, &e.Date, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}

		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expense amount %q: %w", amount, err)
		}
		e.PaidBy = models.Member(paidBy)

		// created_at has no column affinity; imported rows may carry unix
		// millis, unix seconds or ISO strings.
		e.CreatedAt, err = models.ParseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expense created_at: %w", err)
		}

		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// Attach split lists.
	for i := range expenses {
		splitRows, err := s.db.QueryContext(ctx,
			"SELECT member_id FROM expense_splits WHERE expense_id = ? ORDER BY position",
			expenses[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get expense splits: %w", err)
		}

		for splitRows.Next() {
			var member string
			if err := splitRows.Scan(&member); err != nil {
				splitRows.Close()
				return nil, fmt.Errorf("failed to scan expense split: %w", err)
			}
			expenses[i].SplitAmong = append(expenses[i].SplitAmong, models.Member(member))
		}
		if err := splitRows.Err(); err != nil {
			splitRows.Close()
			return nil, fmt.Errorf("failed to iterate expense splits: %w", err)
		}
		splitRows.Close()
	}

	return expenses, nil
}
