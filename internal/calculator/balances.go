// Package calculator implements the balance accounting and debt
// simplification at the heart of the settlement engine.
package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/models"
)

// participantsOf resolves the members sharing an expense: the expense's
// own split list when present, otherwise every group member.
func participantsOf(e *models.Expense, members []models.Member) []models.Member {
	if len(e.SplitAmong) > 0 {
		return e.SplitAmong
	}
	return members
}

// shareOf returns the equal per-participant share of an expense.
// Dividing by 1 when the participant list is somehow empty avoids a
// division by zero; it is a safety fallback, not a validity signal.
func shareOf(e *models.Expense, participants []models.Member) decimal.Decimal {
	n := int64(len(participants))
	if n < 1 {
		n = 1
	}
	return e.Amount.Div(decimal.NewFromInt(n))
}

// ComputeBalances computes each member's net position over the expenses
// created strictly after since (a zero since includes everything).
//
// For each qualifying expense every participant's balance is decremented
// by their share, then the payer's balance is incremented by the full
// amount. This nets the payer's own share correctly without
// special-casing. Balances are kept unrounded; rounding happens where
// values are classified or emitted.
//
// Positive balance = owed money, negative = owes money. Members named by
// an expense but missing from members still accumulate a balance; the
// caller decides whether that is an integrity problem.
func ComputeBalances(expenses []models.Expense, members []models.Member, since time.Time) map[models.Member]decimal.Decimal {
	balances := make(map[models.Member]decimal.Decimal, len(members))
	for _, m := range members {
		balances[m] = decimal.Zero
	}

	for i := range expenses {
		e := &expenses[i]
		if !e.CreatedAt.After(since) {
			continue
		}

		participants := participantsOf(e, members)
		share := shareOf(e, participants)

		for _, p := range participants {
			balances[p] = balances[p].Sub(share)
		}
		balances[e.PaidBy] = balances[e.PaidBy].Add(e.Amount)
	}

	return balances
}

// ComputeTotals aggregates, per member, the amount paid and the share
// owed over the expenses created strictly after since. It uses the same
// filter and split rules as ComputeBalances; the share map feeds both
// the "you paid / your share / net" display and the committed ledger
// entries.
func ComputeTotals(expenses []models.Expense, members []models.Member, since time.Time) models.Totals {
	totals := models.Totals{
		Paid:  make(map[models.Member]decimal.Decimal, len(members)),
		Share: make(map[models.Member]decimal.Decimal, len(members)),
	}
	for _, m := range members {
		totals.Paid[m] = decimal.Zero
		totals.Share[m] = decimal.Zero
	}

	for i := range expenses {
		e := &expenses[i]
		if !e.CreatedAt.After(since) {
			continue
		}

		participants := participantsOf(e, members)
		share := shareOf(e, participants)

		totals.Paid[e.PaidBy] = totals.Paid[e.PaidBy].Add(e.Amount)
		for _, p := range participants {
			totals.Share[p] = totals.Share[p].Add(share)
		}
	}

	return totals
}
