/*
balance.go - The running-balance fold

PURPOSE:
  Balances are never stored as ground truth. Every balance shown anywhere is a
  left fold over the entries of one key, ordered by date:

    balance = Σ (credit - debit)   for entries sorted by (Date, CreatedAt, Seq)

  Historical postings are inserted out of order all the time (a backdated bill,
  an edited memo), so any cached balance is suspect. Write order never matters,
  only date order.

ORDERING:
  1. Date (calendar day)
  2. CreatedAt (when the derivation was persisted)
  3. Seq (line order inside one derivation)
  4. ID (total order for identical timestamps)

SIGN CONVENTION:
  party:    positive = the party owes BRC
  supplier: positive = BRC owes the supplier
  Charge lines that increase what is owed are credits; deductions are debits.

SEE ALSO:
  - posting/readers.go: Balance views built on these functions
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ORDERING
// =============================================================================

func entryLess(a, b Entry) bool {
	da, db := Day(a.Date), Day(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// SortEntries returns a copy of entries in fold order.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return entryLess(out[i], out[j]) })
	return out
}

// =============================================================================
// FOLD
// =============================================================================

// Totals is the result of folding a set of entries.
type Totals struct {
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
	Count   int
}

// Fold sums entries. Balance comes from ComputeBalance over every entry.
func Fold(entries []Entry) Totals {
	t := Totals{Debit: decimal.Zero, Credit: decimal.Zero}
	for _, e := range entries {
		t.Debit = t.Debit.Add(e.Debit)
		t.Credit = t.Credit.Add(e.Credit)
		t.Count++
	}
	t.Balance = ComputeBalance(entries, "")
	return t
}

// ComputeBalance folds the entries whose ReferenceName equals key. An empty
// key folds everything. Matching is by the human-readable reference because
// postings do not reliably carry a master id.
func ComputeBalance(entries []Entry, key string) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range SortEntries(entries) {
		if key != "" && e.ReferenceName != key {
			continue
		}
		balance = balance.Add(e.Net())
	}
	return balance
}

// RunningBalance returns entries in fold order with Balance set to the
// cumulative value after each entry, starting from opening.
func RunningBalance(entries []Entry, opening decimal.Decimal) []Entry {
	out := SortEntries(entries)
	balance := opening
	for i := range out {
		balance = balance.Add(out[i].Net())
		out[i].Balance = balance
	}
	return out
}

// SplitAt partitions entries into those dated before the range and those in it.
// Entries after the range are dropped.
func SplitAt(entries []Entry, r DateRange) (before, within []Entry) {
	for _, e := range entries {
		switch {
		case r.Before(e.Date):
			before = append(before, e)
		case r.Contains(e.Date):
			within = append(within, e)
		}
	}
	return before, within
}

// =============================================================================
// COMMISSION LEDGER FOLD
// =============================================================================

func commissionLess(a, b CommissionEntry) bool {
	da, db := Day(a.Date), Day(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// SortCommission returns a copy of entries in fold order.
func SortCommission(entries []CommissionEntry) []CommissionEntry {
	out := make([]CommissionEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return commissionLess(out[i], out[j]) })
	return out
}

// CommissionTotals is the fold of party commission entries.
type CommissionTotals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Balance decimal.Decimal
	Count   int
}

// FoldCommission sums commission entries and fills running balances.
func FoldCommission(entries []CommissionEntry) (CommissionTotals, []CommissionEntry) {
	t := CommissionTotals{Credits: decimal.Zero, Debits: decimal.Zero, Balance: decimal.Zero}
	out := SortCommission(entries)
	for i := range out {
		switch out[i].EntryType {
		case CommissionDebit:
			t.Debits = t.Debits.Add(out[i].Amount)
		default:
			t.Credits = t.Credits.Add(out[i].Amount)
		}
		t.Balance = t.Balance.Add(out[i].Signed())
		out[i].Balance = t.Balance
		t.Count++
	}
	return t, out
}
