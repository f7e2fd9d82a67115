package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/models"
)

var (
	// epsilon separates settled members from debtors and creditors:
	// only balances beyond 0.01 participate in matching.
	epsilon = decimal.New(1, -2) // 0.01

	// advanceThreshold decides when a debtor or creditor is considered
	// fully matched and the corresponding pointer advances.
	advanceThreshold = decimal.New(9, -3) // 0.009
)

// side is one entry in the debtor or creditor worklist. Amount is always
// positive.
type side struct {
	member models.Member
	amount decimal.Decimal
}

// Simplify converts net balances into an ordered list of point-to-point
// transfers using greedy largest-vs-largest matching.
//
// Balances are rounded to 2 decimals, classified (creditor > 0.01,
// debtor < -0.01, settled otherwise), sorted descending by amount with
// the group's member order as the stable tie-break, then matched with a
// two-pointer walk. The ordering is a reproducible policy decision:
// identical inputs always yield identical edges.
//
// The returned residual is the imbalance left unmatched when the debtor
// and creditor sums disagree (an upstream inconsistency, e.g. a payer
// missing from the member list). It is zero for consistent input; the
// caller must surface a nonzero residual rather than drop it.
//
// The heuristic is not guaranteed to minimize edge count, but it emits
// at most debtors+creditors-1 edges and the transferred total equals the
// sum of positive rounded balances.
func Simplify(balances map[models.Member]decimal.Decimal, order []models.Member) ([]models.SettlementEdge, decimal.Decimal) {
	debtors, creditors := classify(balances, order)

	var edges []models.SettlementEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := &debtors[i]
		creditor := &creditors[j]

		amount := models.Round2(decimal.Min(debtor.amount, creditor.amount))
		if amount.IsPositive() {
			edges = append(edges, models.SettlementEdge{
				From:   debtor.member,
				To:     creditor.member,
				Amount: amount,
			})
		}

		debtor.amount = models.Round2(debtor.amount.Sub(amount))
		creditor.amount = models.Round2(creditor.amount.Sub(amount))

		if debtor.amount.LessThanOrEqual(advanceThreshold) {
			i++
		}
		if creditor.amount.LessThanOrEqual(advanceThreshold) {
			j++
		}
	}

	// Whatever remains on either side is the residual imbalance.
	residual := decimal.Zero
	for ; i < len(debtors); i++ {
		residual = residual.Add(debtors[i].amount)
	}
	for ; j < len(creditors); j++ {
		residual = residual.Add(creditors[j].amount)
	}

	return edges, residual
}

// classify rounds and buckets balances into positive-amount debtor and
// creditor lists, each sorted descending by amount. Ties keep the
// group's member order; members absent from order sort after it,
// lexicographically, so the output never depends on map iteration.
func classify(balances map[models.Member]decimal.Decimal, order []models.Member) (debtors, creditors []side) {
	rank := make(map[models.Member]int, len(order))
	for i, m := range order {
		rank[m] = i
	}

	var strangers []models.Member
	for m := range balances {
		if _, ok := rank[m]; !ok {
			strangers = append(strangers, m)
		}
	}
	sort.Slice(strangers, func(a, b int) bool { return strangers[a] < strangers[b] })
	for _, m := range strangers {
		rank[m] = len(rank)
	}

	for m, bal := range balances {
		b := models.Round2(bal)
		switch {
		case b.GreaterThan(epsilon):
			creditors = append(creditors, side{member: m, amount: b})
		case b.LessThan(epsilon.Neg()):
			debtors = append(debtors, side{member: m, amount: b.Abs()})
		}
	}

	byAmountDesc := func(list []side) func(a, b int) bool {
		return func(a, b int) bool {
			if !list[a].amount.Equal(list[b].amount) {
				return list[a].amount.GreaterThan(list[b].amount)
			}
			return rank[list[a].member] < rank[list[b].member]
		}
	}
	sort.Slice(debtors, byAmountDesc(debtors))
	sort.Slice(creditors, byAmountDesc(creditors))

	return debtors, creditors
}
