/*
Package ledger provides the posting primitives of the transport ledger engine.

PURPOSE:
  This package contains the types every subsidiary ledger shares. A bill, a memo,
  a bank receipt and a fuel allocation all end up as the same Entry shape,
  partitioned by LedgerType and keyed by a human-readable counterparty name.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerType: vehicle_income, vehicle_expense, party, supplier, commission, general
  - SourceType: which source document variant produced a posting
  - Entry: a single debit/credit posting
  - CommissionEntry: posting in the separate party commission ledger
  - DateRange: inclusive date window for readers

DESIGN PRINCIPLES:
  1. Ownership: every Entry belongs to exactly one source document, identified
     by (SourceType, SourceID). Nothing else may delete it.
  2. Determinism: Entry IDs are derived from the source id (see keys.go), so a
     re-derivation produces the same keys for the same payload.
  3. Precision: amounts are decimal.Decimal, never float64.
  4. Derived balances: the Balance field is transient. Readers recompute it.

SEE ALSO:
  - keys.go: Deterministic entry ids
  - balance.go: The running-balance fold
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER TYPE - Which subsidiary ledger a posting belongs to
// =============================================================================

type LedgerType string

const (
	LedgerVehicleIncome  LedgerType = "vehicle_income"
	LedgerVehicleExpense LedgerType = "vehicle_expense"
	LedgerParty          LedgerType = "party"
	LedgerSupplier       LedgerType = "supplier"
	LedgerCommission     LedgerType = "commission"
	LedgerGeneral        LedgerType = "general"
)

// LedgerTypes lists every ledger type in display order.
var LedgerTypes = []LedgerType{
	LedgerVehicleIncome,
	LedgerVehicleExpense,
	LedgerParty,
	LedgerSupplier,
	LedgerCommission,
	LedgerGeneral,
}

func (t LedgerType) Valid() bool {
	for _, lt := range LedgerTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// ParseLedgerType returns the ledger type named by s.
func ParseLedgerType(s string) (LedgerType, error) {
	t := LedgerType(s)
	if !t.Valid() {
		return "", &InvalidLedgerTypeError{Value: s}
	}
	return t, nil
}

// =============================================================================
// SOURCE TYPE - Which source document produced a posting
// =============================================================================

type SourceType string

const (
	SourceLoadingSlip     SourceType = "loading_slip"
	SourceBill            SourceType = "bill"
	SourceMemo            SourceType = "memo"
	SourceBanking         SourceType = "banking"
	SourceCashbook        SourceType = "cashbook"
	SourceFuelTransaction SourceType = "fuel_transaction"
)

var SourceTypes = []SourceType{
	SourceLoadingSlip,
	SourceBill,
	SourceMemo,
	SourceBanking,
	SourceCashbook,
	SourceFuelTransaction,
}

func (s SourceType) Valid() bool {
	for _, st := range SourceTypes {
		if st == s {
			return true
		}
	}
	return false
}

// ParseSourceType returns the source type named by s.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(s)
	if !st.Valid() {
		return "", &InvalidSourceTypeError{Value: s}
	}
	return st, nil
}

// SourceRef identifies one source document.
type SourceRef struct {
	Type SourceType
	ID   string
}

func (r SourceRef) String() string { return string(r.Type) + "/" + r.ID }

// =============================================================================
// ENTRY - A single posting
// =============================================================================

// Entry is one debit or credit posting in a subsidiary ledger.
//
// INVARIANTS (for derived entries):
//   - Debit >= 0 and Credit >= 0
//   - Exactly one of Debit, Credit is non-zero
//   - ID = EntryID(SourceID, suffix)
type Entry struct {
	ID            string
	LedgerType    LedgerType
	ReferenceID   string // business key of the source (bill no., memo no.)
	ReferenceName string // counterparty key (vehicle no., party name, supplier name, account)
	Date          time.Time
	Description   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	SourceType    SourceType
	SourceID      string
	VehicleNo     string

	// Seq orders entries of one derivation; CreatedAt orders derivations.
	// Together they break ties between postings on the same date.
	Seq       int
	CreatedAt time.Time

	// Balance is the running balance after this entry. Transient: filled by
	// RunningBalance, never read back as ground truth.
	Balance decimal.Decimal
}

// Net returns credit - debit.
func (e Entry) Net() decimal.Decimal { return e.Credit.Sub(e.Debit) }

// Key returns the (ledger type, counterparty) pair this entry is folded under.
func (e Entry) Key() AccountKey { return AccountKey{LedgerType: e.LedgerType, Name: e.ReferenceName} }

// AccountKey addresses one subsidiary account, e.g. (party, "Sharma Traders").
type AccountKey struct {
	LedgerType LedgerType
	Name       string
}

func (k AccountKey) String() string { return string(k.LedgerType) + ":" + k.Name }

// EntryFilter selects entries. Zero values mean "any".
type EntryFilter struct {
	LedgerType    LedgerType
	ReferenceName string
	ReferenceID   string
	VehicleNo     string
	SourceType    SourceType
	SourceID      string
	Range         *DateRange
}

// Match reports whether e satisfies the filter.
func (f EntryFilter) Match(e Entry) bool {
	switch {
	case f.LedgerType != "" && e.LedgerType != f.LedgerType:
		return false
	case f.ReferenceName != "" && e.ReferenceName != f.ReferenceName:
		return false
	case f.ReferenceID != "" && e.ReferenceID != f.ReferenceID:
		return false
	case f.VehicleNo != "" && e.VehicleNo != f.VehicleNo:
		return false
	case f.SourceType != "" && e.SourceType != f.SourceType:
		return false
	case f.SourceID != "" && e.SourceID != f.SourceID:
		return false
	case f.Range != nil && !f.Range.Contains(e.Date):
		return false
	}
	return true
}

// =============================================================================
// PARTY COMMISSION LEDGER - Separate audit trail for commission cash flow
// =============================================================================

type CommissionEntryType string

const (
	CommissionCredit CommissionEntryType = "credit"
	CommissionDebit  CommissionEntryType = "debit"
)

// CommissionEntry is a posting in the party commission ledger.
// BillID, BankingID and CashbookEntryID are back-references used for deletion
// only. Balance is always recomputed from the party's entries.
type CommissionEntry struct {
	ID              string
	PartyID         string
	PartyName       string
	EntryType       CommissionEntryType
	Amount          decimal.Decimal
	Date            time.Time
	BillNumber      string
	Description     string
	SourceType      SourceType
	SourceID        string
	BillID          string
	BankingID       string
	CashbookEntryID string
	Seq             int
	CreatedAt       time.Time

	Balance decimal.Decimal // transient
}

// Signed returns +Amount for credits and -Amount for debits.
func (c CommissionEntry) Signed() decimal.Decimal {
	if c.EntryType == CommissionDebit {
		return c.Amount.Neg()
	}
	return c.Amount
}

// CommissionFilter selects commission entries. Zero values mean "any".
type CommissionFilter struct {
	PartyID    string
	PartyName  string
	SourceType SourceType
	SourceID   string
	Range      *DateRange
}

func (f CommissionFilter) Match(c CommissionEntry) bool {
	switch {
	case f.PartyID != "" && c.PartyID != f.PartyID:
		return false
	case f.PartyName != "" && c.PartyName != f.PartyName:
		return false
	case f.SourceType != "" && c.SourceType != f.SourceType:
		return false
	case f.SourceID != "" && c.SourceID != f.SourceID:
		return false
	case f.Range != nil && !f.Range.Contains(c.Date):
		return false
	}
	return true
}

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive window of calendar days. A zero From or To leaves
// that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains compares by calendar day, so an entry dated 2025-03-31T18:00 is
// inside a range ending 2025-03-31.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	if !r.From.IsZero() && d.Before(Day(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(Day(r.To)) {
		return false
	}
	return true
}

// Before reports whether t falls before the start of the range.
func (r DateRange) Before(t time.Time) bool {
	return !r.From.IsZero() && Day(t).Before(Day(r.From))
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && Day(r.To).Before(Day(r.From)) {
		return ErrInvalidRange
	}
	return nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
