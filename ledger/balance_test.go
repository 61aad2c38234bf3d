package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time { return time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func credit(id string, d int, amount string) Entry {
	return Entry{ID: id, LedgerType: LedgerParty, ReferenceName: "Sharma Traders", Date: day(d), Credit: dec(amount), Debit: decimal.Zero}
}

func debit(id string, d int, amount string) Entry {
	return Entry{ID: id, LedgerType: LedgerParty, ReferenceName: "Sharma Traders", Date: day(d), Debit: dec(amount), Credit: decimal.Zero}
}

func TestFold_TotalsAreCreditMinusDebit(t *testing.T) {
	// GIVEN: a bill credit and two deductions
	entries := []Entry{
		debit("b-tds", 3, "200"),
		credit("b-main", 3, "20000"),
		debit("pay", 10, "5000"),
	}

	// WHEN
	totals := Fold(entries)

	// THEN
	assert.True(t, totals.Credit.Equal(dec("20000")))
	assert.True(t, totals.Debit.Equal(dec("5200")))
	assert.True(t, totals.Balance.Equal(dec("14800")), totals.Balance.String())
	assert.Equal(t, 3, totals.Count)
}

func TestFold_Empty(t *testing.T) {
	totals := Fold(nil)
	assert.True(t, totals.Balance.IsZero())
	assert.Equal(t, 0, totals.Count)
}

func TestRunningBalance_FollowsDateNotWriteOrder(t *testing.T) {
	// GIVEN: a backdated payment written after a later bill
	entries := []Entry{
		credit("bill-2-main", 5, "1000"),
		debit("pay-1", 2, "300"),
		credit("bill-1-main", 1, "500"),
	}

	// WHEN
	out := RunningBalance(entries, dec("100"))

	// THEN: ordered by date, each balance cumulative from the opening
	require.Len(t, out, 3)
	assert.Equal(t, []string{"bill-1-main", "pay-1", "bill-2-main"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.True(t, out[0].Balance.Equal(dec("600")))
	assert.True(t, out[1].Balance.Equal(dec("300")))
	assert.True(t, out[2].Balance.Equal(dec("1300")))

	// AND: the input is left untouched
	assert.Equal(t, "bill-2-main", entries[0].ID)
	assert.True(t, entries[0].Balance.IsZero())
}

func TestSortEntries_TieBreakers(t *testing.T) {
	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	// GIVEN: entries on one day that differ only by CreatedAt, Seq or ID
	a := credit("x-b", 1, "1")
	a.CreatedAt, a.Seq = created, 1
	b := credit("x-a", 1, "1")
	b.CreatedAt, b.Seq = created, 1
	c := credit("x-c", 1, "1")
	c.CreatedAt, c.Seq = created, 0
	d := credit("x-d", 1, "1")
	d.CreatedAt = created.Add(-time.Hour)
	d.Seq = 5
	// same calendar day, later clock time, still sorts by CreatedAt first
	e := credit("x-e", 1, "1")
	e.Date = day(1).Add(20 * time.Hour)
	e.CreatedAt = created.Add(-2 * time.Hour)

	// WHEN
	out := SortEntries([]Entry{a, b, c, d, e})

	// THEN
	ids := make([]string, len(out))
	for i, en := range out {
		ids[i] = en.ID
	}
	assert.Equal(t, []string{"x-e", "x-d", "x-c", "x-a", "x-b"}, ids)
}

func TestComputeBalance_FiltersByReferenceName(t *testing.T) {
	other := credit("o", 1, "999")
	other.ReferenceName = "Gupta Roadways"
	entries := []Entry{credit("a", 1, "100"), debit("b", 2, "40"), other}

	assert.True(t, ComputeBalance(entries, "Sharma Traders").Equal(dec("60")))
	assert.True(t, ComputeBalance(entries, "").Equal(dec("1059")))
	assert.True(t, ComputeBalance(entries, "Nobody").IsZero())
}

func TestSplitAt_BeforeWithinAfter(t *testing.T) {
	entries := []Entry{credit("a", 1, "1"), credit("b", 5, "1"), credit("c", 10, "1"), credit("d", 20, "1")}

	before, within := SplitAt(entries, DateRange{From: day(5), To: day(10)})

	require.Len(t, before, 1)
	assert.Equal(t, "a", before[0].ID)
	require.Len(t, within, 2)
	assert.Equal(t, "b", within[0].ID)
	assert.Equal(t, "c", within[1].ID)
}

func TestFoldCommission_SignedByEntryType(t *testing.T) {
	// GIVEN: a commission cut on a bill and a later payout
	entries := []CommissionEntry{
		{ID: "pay", EntryType: CommissionDebit, Amount: dec("1200"), Date: day(12)},
		{ID: "cut", EntryType: CommissionCredit, Amount: dec("1500"), Date: day(3)},
	}

	// WHEN
	totals, out := FoldCommission(entries)

	// THEN
	assert.True(t, totals.Credits.Equal(dec("1500")))
	assert.True(t, totals.Debits.Equal(dec("1200")))
	assert.True(t, totals.Balance.Equal(dec("300")))
	assert.Equal(t, 2, totals.Count)
	require.Len(t, out, 2)
	assert.Equal(t, "cut", out[0].ID)
	assert.True(t, out[0].Balance.Equal(dec("1500")))
	assert.True(t, out[1].Balance.Equal(dec("300")))
}

func TestDateRange(t *testing.T) {
	r := DateRange{From: day(5), To: day(10)}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"first day", day(5), true},
		{"last day late evening", day(10).Add(23 * time.Hour), true},
		{"day before", day(4).Add(23 * time.Hour), false},
		{"day after", day(11), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.at))
		})
	}

	assert.True(t, DateRange{}.Contains(day(1)), "open range contains everything")
	assert.True(t, DateRange{To: day(3)}.Contains(day(1)))
	assert.True(t, r.Before(day(4)))
	assert.False(t, DateRange{To: day(3)}.Before(day(1)))

	require.NoError(t, r.Validate())
	require.NoError(t, DateRange{From: day(5), To: day(5)}.Validate())
	assert.ErrorIs(t, DateRange{From: day(10), To: day(5)}.Validate(), ErrInvalidRange)
}

func TestDay_TruncatesToUTCMidnight(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2025, 4, 2, 3, 0, 0, 0, ist) // 2025-04-01T21:30Z

	assert.True(t, Day(at).Equal(day(1)))

	parsed, err := ParseDate("2025-04-01")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(day(1)))

	_, err = ParseDate("01/04/2025")
	assert.Error(t, err)
}

func TestEntryIDs(t *testing.T) {
	assert.Equal(t, "bill-7-detention", EntryID("bill-7", SuffixDetention))
	assert.Equal(t, "bank-1-advance", AdvanceID("bank-1"))
	assert.Equal(t, "bank-1-payment", PaymentID("bank-1"))
	assert.Equal(t, "bank-1-wallet", WalletCreditID("bank-1"))
}

func TestFilters(t *testing.T) {
	e := credit("b-main", 3, "100")
	e.SourceType, e.SourceID, e.ReferenceID, e.VehicleNo = SourceBill, "b", "BL-1", "MH12AB1234"

	assert.True(t, EntryFilter{}.Match(e))
	assert.True(t, EntryFilter{LedgerType: LedgerParty, SourceType: SourceBill, SourceID: "b"}.Match(e))
	assert.False(t, EntryFilter{LedgerType: LedgerSupplier}.Match(e))
	assert.False(t, EntryFilter{VehicleNo: "MH14XY9876"}.Match(e))
	assert.False(t, EntryFilter{Range: &DateRange{From: day(4)}}.Match(e))
	assert.Equal(t, "party:Sharma Traders", e.Key().String())

	c := CommissionEntry{PartyID: "p1", PartyName: "Sharma Traders", SourceType: SourceBill, SourceID: "b", Date: day(3)}
	assert.True(t, CommissionFilter{PartyID: "p1"}.Match(c))
	assert.False(t, CommissionFilter{PartyName: "Gupta Roadways"}.Match(c))
	assert.False(t, CommissionFilter{Range: &DateRange{To: day(2)}}.Match(c))
}

func TestParseTypes(t *testing.T) {
	lt, err := ParseLedgerType("vehicle_income")
	require.NoError(t, err)
	assert.Equal(t, LedgerVehicleIncome, lt)

	_, err = ParseLedgerType("assets")
	var lte *InvalidLedgerTypeError
	require.ErrorAs(t, err, &lte)
	assert.True(t, IsClientError(err))

	st, err := ParseSourceType("fuel_transaction")
	require.NoError(t, err)
	assert.Equal(t, SourceFuelTransaction, st)

	_, err = ParseSourceType("invoice")
	assert.ErrorContains(t, err, "unknown source type")
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		client    bool
		notFound  bool
		conflict  bool
		retryable bool
	}{
		{"invalid category", &InvalidCategoryError{Category: "vehicle_expense", Reason: "vehicle_no is required"}, true, false, false, false},
		{"amount", fmt.Errorf("bill: %w", ErrInvalidAmount), true, false, false, false},
		{"not found", &NotFoundError{Kind: "bill", ID: "x"}, false, true, false, false},
		{"duplicate source", &DuplicateSourceError{Kind: "bill", LoadingSlipID: "s", ExistingID: "b"}, false, false, true, false},
		{"duplicate key", &DuplicateKeyError{Collection: "bills", Key: "BL-1"}, false, false, true, false},
		{"version", ErrConcurrentModification, false, false, true, true},
		{"in use", ErrSourceInUse, false, false, true, false},
		{"reference", &ReferenceNotFoundError{Kind: "party", Key: "p"}, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.client, IsClientError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestReconciliationError_UnwrapsBoth(t *testing.T) {
	inner := &DuplicateKeyError{Collection: "entries", Key: "b-main"}
	err := error(&ReconciliationError{Source: SourceRef{Type: SourceBill, ID: "b"}, Action: "update", Err: inner, Flagged: true})

	assert.ErrorIs(t, err, ErrPostingReconciliation)
	assert.ErrorIs(t, err, ErrDuplicateBusinessKey)
	assert.Contains(t, err.Error(), "bill/b")
	assert.Contains(t, err.Error(), "flagged stale")

	var rec *ReconciliationError
	require.True(t, errors.As(err, &rec))
	assert.True(t, rec.Flagged)
}
