package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEdge represents a suggested payment from one member to
// another. Edges are transient output of the debt simplifier and are
// never persisted.
type SettlementEdge struct {
	// From is the debtor making the payment.
	From Member

	// To is the creditor receiving the payment.
	To Member

	// Amount is the payment amount, positive and rounded to 2 decimals.
	Amount decimal.Decimal
}

// Checkpoint is the watermark written to the group after a successful
// final settlement. A subsequent run with an identical expense-set
// fingerprint (count + last expense timestamp) is skipped.
type Checkpoint struct {
	// ExecutedBy is the member who committed the settlement.
	ExecutedBy Member

	// ExecutedAt is when the settlement committed. Expenses created at or
	// before this instant are excluded from later runs.
	ExecutedAt time.Time

	// ExpenseCount is the total number of expenses in the group at commit
	// time.
	ExpenseCount int

	// LastExpenseAt is the newest expense CreatedAt at commit time.
	// The zero value means the group had no expenses.
	LastExpenseAt time.Time
}

// LedgerEntry is the synthetic obligation transaction appended to a
// member's personal ledger when a settlement commits.
type LedgerEntry struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	// MemberID is the member whose personal ledger receives the entry.
	MemberID Member

	// Type is always "expense" for settlement obligations.
	Type string

	// Date is the calendar date of the commit (YYYY-MM-DD).
	Date string

	// Amount is the member's rounded share of the settled expenses.
	Amount decimal.Decimal

	// Tag is the free-text category, the group name by convention.
	Tag string

	// Name is the entry description shown in the member's ledger.
	Name string

	// GroupID links the entry back to the settlement group.
	GroupID string

	// RunID links the entry to a single settlement run. Together with
	// MemberID it forms the write idempotency key: retrying a partially
	// failed run never duplicates an entry that already landed.
	RunID string

	// CreatedAt is when the entry was written.
	CreatedAt time.Time
}

// LedgerEntryTypeExpense is the Type value for settlement obligations.
const LedgerEntryTypeExpense = "expense"

// Round2 rounds a monetary value to 2 decimal places. Values stay
// unrounded while accumulating; rounding happens only where a value is
// classified or emitted.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
