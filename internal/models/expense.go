package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense represents a single shared expense paid by one member.
// Expenses are immutable once created; deletion is owned by the
// surrounding application, not by this engine.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Description is the human-readable label (e.g., "Dinner", "Fuel").
	Description string

	// Amount is the full positive amount paid.
	Amount decimal.Decimal

	// PaidBy is the member who paid the full amount.
	PaidBy Member

	// SplitAmong lists the members sharing this expense, in order.
	// An empty list means the expense is split among all group members.
	SplitAmong []Member

	// Date is the calendar date of the expense (YYYY-MM-DD).
	Date string

	// CreatedAt is when the record was created. Watermark filtering
	// compares against this, not against Date.
	CreatedAt time.Time
}

// Totals aggregates, per member, the amount paid and the share owed over
// a window of expenses.
type Totals struct {
	Paid  map[Member]decimal.Decimal
	Share map[Member]decimal.Decimal
}
