package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// LOADING SLIP - Trip order
// =============================================================================

type LoadingSlip struct {
	Meta
	SlipNumber   string          `json:"slip_number"`
	Date         time.Time       `json:"date"`
	VehicleNo    string          `json:"vehicle_no"`
	PartyID      string          `json:"party_id,omitempty"`
	PartyName    string          `json:"party_name,omitempty"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	SupplierName string          `json:"supplier_name,omitempty"`
	From         string          `json:"from,omitempty"`
	To           string          `json:"to,omitempty"`
	Material     string          `json:"material,omitempty"`
	Weight       decimal.Decimal `json:"weight"`
	Freight      decimal.Decimal `json:"freight"`
	SupplierRate decimal.Decimal `json:"supplier_rate"`
	Remarks      string          `json:"remarks,omitempty"`
}

func (*LoadingSlip) Collection() Collection { return CollLoadingSlips }
func (s *LoadingSlip) Keys() Keys          { return Keys{Business: s.SlipNumber} }

func (s *LoadingSlip) Validate() error {
	if strings.TrimSpace(s.VehicleNo) == "" {
		return &ledger.InvalidCategoryError{Category: "loading_slip", Reason: "vehicle_no is required"}
	}
	return nonNegative(map[string]decimal.Decimal{
		"weight": s.Weight, "freight": s.Freight, "supplier_rate": s.SupplierRate,
	})
}

// =============================================================================
// BILL - Amount receivable from a party
// =============================================================================

type BillStatus string

const (
	BillPending  BillStatus = "pending"
	BillReceived BillStatus = "received"
)

type Bill struct {
	Meta
	BillNumber         string           `json:"bill_number"`
	LoadingSlipID      string           `json:"loading_slip_id"`
	PartyID            string           `json:"party_id,omitempty"`
	PartyName          string           `json:"party_name,omitempty"`
	Date               time.Time        `json:"date"`
	BillAmount         decimal.Decimal  `json:"bill_amount"`
	Detention          decimal.Decimal  `json:"detention"`
	Extra              decimal.Decimal  `json:"extra"`
	RTO                decimal.Decimal  `json:"rto"`
	Mamool             decimal.Decimal  `json:"mamool"`
	TDS                decimal.Decimal  `json:"tds"`
	Penalties          decimal.Decimal  `json:"penalties"`
	PartyCommissionCut decimal.Decimal  `json:"party_commission_cut"`
	Status             BillStatus       `json:"status"`
	ReceivedDate       *time.Time       `json:"received_date,omitempty"`
	ReceivedAmount     decimal.Decimal  `json:"received_amount"`
	AdvancePayments    []AdvancePayment `json:"advance_payments"`
	Receipts           []Settlement     `json:"receipts"`
}

func (*Bill) Collection() Collection { return CollBills }
func (b *Bill) Keys() Keys          { return Keys{Business: b.BillNumber, Link: b.LoadingSlipID} }

func (b *Bill) Validate() error {
	if strings.TrimSpace(b.BillNumber) == "" {
		return &ledger.InvalidCategoryError{Category: "bill", Reason: "bill_number is required"}
	}
	if strings.TrimSpace(b.LoadingSlipID) == "" {
		return &ledger.InvalidCategoryError{Category: "bill", Reason: "loading_slip_id is required"}
	}
	return nonNegative(map[string]decimal.Decimal{
		"bill_amount": b.BillAmount, "detention": b.Detention, "extra": b.Extra,
		"rto": b.RTO, "mamool": b.Mamool, "tds": b.TDS, "penalties": b.Penalties,
		"party_commission_cut": b.PartyCommissionCut,
	})
}

// NetAmount is what the party owes for the trip, excluding the commission cut.
func (b *Bill) NetAmount() decimal.Decimal {
	return b.BillAmount.Add(b.Detention).Add(b.Extra).Add(b.RTO).
		Sub(b.Mamool).Sub(b.TDS).Sub(b.Penalties)
}

func (b *Bill) TotalAdvance() decimal.Decimal { return sum(b.AdvancePayments) }

// Outstanding is the net amount less advances and receipts.
func (b *Bill) Outstanding() decimal.Decimal {
	return b.NetAmount().Sub(b.TotalAdvance()).Sub(b.ReceivedAmount)
}

func (b *Bill) AddAdvance(p AdvancePayment) { b.AdvancePayments = upsertByID(b.AdvancePayments, p) }

func (b *Bill) RemoveAdvance(id string) bool {
	var ok bool
	b.AdvancePayments, ok = removeByID(b.AdvancePayments, id)
	return ok
}

func (b *Bill) AddReceipt(p Settlement) {
	b.Receipts = upsertByID(b.Receipts, p)
	b.settle()
}

func (b *Bill) RemoveReceipt(id string) bool {
	var ok bool
	b.Receipts, ok = removeByID(b.Receipts, id)
	b.settle()
	return ok
}

func (b *Bill) Advance(id string) (AdvancePayment, bool) { return find(b.AdvancePayments, id) }
func (b *Bill) Receipt(id string) (Settlement, bool)     { return find(b.Receipts, id) }

// HasInjected reports whether cash entries recorded advances or receipts here.
func (b *Bill) HasInjected() bool { return len(b.AdvancePayments) > 0 || len(b.Receipts) > 0 }

// CarryInjected replaces the records cash entries own with those of prev.
// A nil prev clears them: a submitted payload never carries them.
func (b *Bill) CarryInjected(prev *Bill) {
	b.AdvancePayments, b.Receipts = nil, nil
	if prev != nil {
		b.AdvancePayments = append([]AdvancePayment(nil), prev.AdvancePayments...)
		b.Receipts = append([]Settlement(nil), prev.Receipts...)
	}
	b.settle()
}

// settle recomputes status fields from the receipts list.
func (b *Bill) settle() {
	b.ReceivedAmount = sum(b.Receipts)
	b.ReceivedDate = latest(b.Receipts)
	if len(b.Receipts) > 0 {
		b.Status = BillReceived
	} else {
		b.Status = BillPending
	}
}

// =============================================================================
// MEMO - Amount payable to a supplier or own vehicle
// =============================================================================

type MemoStatus string

const (
	MemoPending MemoStatus = "pending"
	MemoPaid    MemoStatus = "paid"
)

type Memo struct {
	Meta
	MemoNumber      string           `json:"memo_number"`
	LoadingSlipID   string           `json:"loading_slip_id"`
	SupplierID      string           `json:"supplier_id,omitempty"`
	SupplierName    string           `json:"supplier_name,omitempty"`
	Date            time.Time        `json:"date"`
	Freight         decimal.Decimal  `json:"freight"`
	Commission      decimal.Decimal  `json:"commission"`
	Mamool          decimal.Decimal  `json:"mamool"`
	Detention       decimal.Decimal  `json:"detention"`
	Extra           decimal.Decimal  `json:"extra"`
	Status          MemoStatus       `json:"status"`
	PaidDate        *time.Time       `json:"paid_date,omitempty"`
	PaidAmount      decimal.Decimal  `json:"paid_amount"`
	AdvancePayments []AdvancePayment `json:"advance_payments"`
	Payments        []Settlement     `json:"payments"`
}

func (*Memo) Collection() Collection { return CollMemos }
func (m *Memo) Keys() Keys          { return Keys{Business: m.MemoNumber, Link: m.LoadingSlipID} }

func (m *Memo) Validate() error {
	if strings.TrimSpace(m.MemoNumber) == "" {
		return &ledger.InvalidCategoryError{Category: "memo", Reason: "memo_number is required"}
	}
	if strings.TrimSpace(m.LoadingSlipID) == "" {
		return &ledger.InvalidCategoryError{Category: "memo", Reason: "loading_slip_id is required"}
	}
	return nonNegative(map[string]decimal.Decimal{
		"freight": m.Freight, "commission": m.Commission, "mamool": m.Mamool,
		"detention": m.Detention, "extra": m.Extra,
	})
}

// NetFreight is freight after commission and mamool.
func (m *Memo) NetFreight() decimal.Decimal {
	return m.Freight.Sub(m.Commission).Sub(m.Mamool)
}

// NetAmount is (freight - commission - mamool) + detention + extra.
func (m *Memo) NetAmount() decimal.Decimal {
	return m.NetFreight().Add(m.Detention).Add(m.Extra)
}

func (m *Memo) TotalAdvance() decimal.Decimal { return sum(m.AdvancePayments) }

func (m *Memo) Outstanding() decimal.Decimal {
	return m.NetAmount().Sub(m.TotalAdvance()).Sub(m.PaidAmount)
}

func (m *Memo) AddAdvance(p AdvancePayment) { m.AdvancePayments = upsertByID(m.AdvancePayments, p) }

func (m *Memo) RemoveAdvance(id string) bool {
	var ok bool
	m.AdvancePayments, ok = removeByID(m.AdvancePayments, id)
	return ok
}

func (m *Memo) AddPayment(p Settlement) {
	m.Payments = upsertByID(m.Payments, p)
	m.settle()
}

func (m *Memo) RemovePayment(id string) bool {
	var ok bool
	m.Payments, ok = removeByID(m.Payments, id)
	m.settle()
	return ok
}

func (m *Memo) Advance(id string) (AdvancePayment, bool) { return find(m.AdvancePayments, id) }
func (m *Memo) Payment(id string) (Settlement, bool)     { return find(m.Payments, id) }

func (m *Memo) HasInjected() bool { return len(m.AdvancePayments) > 0 || len(m.Payments) > 0 }

func (m *Memo) CarryInjected(prev *Memo) {
	m.AdvancePayments, m.Payments = nil, nil
	if prev != nil {
		m.AdvancePayments = append([]AdvancePayment(nil), prev.AdvancePayments...)
		m.Payments = append([]Settlement(nil), prev.Payments...)
	}
	m.settle()
}

func (m *Memo) settle() {
	m.PaidAmount = sum(m.Payments)
	m.PaidDate = latest(m.Payments)
	if len(m.Payments) > 0 {
		m.Status = MemoPaid
	} else {
		m.Status = MemoPending
	}
}

// =============================================================================
// CASH ENTRY - Banking and cashbook movements
// =============================================================================

// Book selects whether a cash entry is a BankingEntry or a CashbookEntry.
// Both share one shape and one category table.
type Book string

const (
	BookBanking  Book = "banking"
	BookCashbook Book = "cashbook"
)

// Direction is the cash direction: credit = money in, debit = money out.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type Category string

const (
	CatBillAdvance     Category = "bill_advance"
	CatBillPayment     Category = "bill_payment"
	CatMemoAdvance     Category = "memo_advance"
	CatMemoPayment     Category = "memo_payment"
	CatVehicleExpense  Category = "vehicle_expense"
	CatPartyCommission Category = "party_commission"
	CatFuelWallet      Category = "fuel_wallet"
	CatPartyOnAccount  Category = "party_on_account"
	CatSupplierPayment Category = "supplier_payment"
	CatExpense         Category = "expense"
	CatOther           Category = "other"
)

type CashEntry struct {
	Meta
	Book          Book            `json:"book"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Type          Direction       `json:"type"`
	Category      Category        `json:"category"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceName string          `json:"reference_name,omitempty"`
	VehicleNo     string          `json:"vehicle_no,omitempty"`
	Mode          string          `json:"mode,omitempty"`
	Account       string          `json:"account,omitempty"`
	Description   string          `json:"description,omitempty"`
}

func (e *CashEntry) Collection() Collection {
	if e.Book == BookCashbook {
		return CollCashbookEntries
	}
	return CollBankingEntries
}

func (*CashEntry) Keys() Keys { return Keys{} }

// SourceType maps the book to the ledger source type.
func (e *CashEntry) SourceType() ledger.SourceType { return e.Book.SourceType() }

func (b Book) SourceType() ledger.SourceType {
	if b == BookCashbook {
		return ledger.SourceCashbook
	}
	return ledger.SourceBanking
}

func (b Book) Valid() bool { return b == BookBanking || b == BookCashbook }

func (e *CashEntry) Validate() error {
	if !e.Book.Valid() {
		return &ledger.InvalidCategoryError{Category: string(e.Category), Reason: fmt.Sprintf("unknown book %q", e.Book)}
	}
	if e.Type != Credit && e.Type != Debit {
		return &ledger.InvalidCategoryError{Category: string(e.Category), Reason: fmt.Sprintf("type must be credit or debit, got %q", e.Type)}
	}
	if strings.TrimSpace(string(e.Category)) == "" {
		return &ledger.InvalidCategoryError{Category: "", Reason: "category is required"}
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	if e.Category == CatFuelWallet {
		return CheckWalletAmount("amount", e.Amount)
	}
	return nil
}

// Signed returns +Amount for money in and -Amount for money out.
func (e *CashEntry) Signed() decimal.Decimal {
	if e.Type == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// PaymentMode is the mode recorded on injected advances: the entry's own mode,
// or "bank"/"cash" by book.
func (e *CashEntry) PaymentMode() string {
	if e.Mode != "" {
		return e.Mode
	}
	if e.Book == BookCashbook {
		return "cash"
	}
	return "bank"
}

// =============================================================================
// FUEL TRANSACTION
// =============================================================================

type FuelKind string

const (
	FuelAllocation   FuelKind = "allocation"    // wallet -> vehicle
	FuelWalletCredit FuelKind = "wallet_credit" // cash entry -> wallet
)

type FuelTransaction struct {
	Meta
	WalletID    string          `json:"wallet_id"`
	Kind        FuelKind        `json:"kind"`
	VehicleNo   string          `json:"vehicle_no,omitempty"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Litres      decimal.Decimal `json:"litres"`
	Description string          `json:"description,omitempty"`
	SourceID    string          `json:"source_id,omitempty"` // cash entry that created a wallet_credit
}

func (*FuelTransaction) Collection() Collection { return CollFuelTransactions }
func (*FuelTransaction) Keys() Keys             { return Keys{} }

func (f *FuelTransaction) Validate() error {
	if f.Kind == "" {
		f.Kind = FuelAllocation
	}
	if f.Kind != FuelAllocation {
		return &ledger.InvalidCategoryError{Category: string(f.Kind), Reason: "only allocations can be submitted; wallet credits come from cash entries"}
	}
	if strings.TrimSpace(f.WalletID) == "" {
		return &ledger.InvalidCategoryError{Category: string(f.Kind), Reason: "wallet_id is required"}
	}
	if strings.TrimSpace(f.VehicleNo) == "" {
		return &ledger.InvalidCategoryError{Category: string(f.Kind), Reason: "vehicle_no is required"}
	}
	if !f.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	if f.Litres.IsNegative() {
		return fmt.Errorf("%w: litres must not be negative", ledger.ErrInvalidAmount)
	}
	return CheckWalletAmount("amount", f.Amount)
}

// WalletScale is the number of decimals a fuel wallet balance carries.
const WalletScale = 2

// CheckWalletAmount rejects amounts finer than the wallet balance can hold.
func CheckWalletAmount(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(WalletScale)) {
		return fmt.Errorf("%w: %s %s has more than %d decimals", ledger.ErrInvalidAmount, field, v, WalletScale)
	}
	return nil
}

func nonNegative(fields map[string]decimal.Decimal) error {
	for name, v := range fields {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ledger.ErrInvalidAmount, name)
		}
	}
	return nil
}
