/*
Package documents defines the source documents and reference masters.

PURPOSE:
  Source documents are what users enter: loading slips, memos, bills, bank and
  cash movements, fuel allocations. They are the only origin of ledger
  postings. Reference masters (parties, suppliers, vehicles, fuel wallets) are
  lookups; they own no derived data.

KEY CONCEPTS:
  - Meta: id, optimistic version and timestamps, embedded in every document
  - Keys: business key (bill no., memo no., name) and link key (loading slip id)
    that stores index uniquely per collection
  - AdvancePayment / Settlement: records injected into bills and memos by cash
    entries, removed by their deterministic id

OWNERSHIP:
  A Vehicle's Ownership decides where memo proceeds go: own vehicles post to
  vehicle income, market vehicles post to the supplier's payable.

SEE ALSO:
  - posting/: The engine that derives postings from these documents
  - ledger/: The posting types
*/
package documents

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names one logical document collection.
type Collection string

const (
	CollLoadingSlips     Collection = "loading_slips"
	CollBills            Collection = "bills"
	CollMemos            Collection = "memos"
	CollBankingEntries   Collection = "banking_entries"
	CollCashbookEntries  Collection = "cashbook_entries"
	CollFuelWallets      Collection = "fuel_wallets"
	CollFuelTransactions Collection = "fuel_transactions"
	CollParties          Collection = "parties"
	CollSuppliers        Collection = "suppliers"
	CollVehicles         Collection = "vehicles"
)

// =============================================================================
// META & KEYS
// =============================================================================

// Meta is embedded in every stored document.
//
// Version is an optimistic-concurrency counter. A document with Version 0 is
// new; stores write it with Version 1. An update must carry the stored
// version and is written with Version+1.
type Meta struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetMeta lets generic store helpers reach the embedded Meta.
func (m *Meta) GetMeta() *Meta { return m }

// Keys are the secondary unique keys of a document within its collection.
// Empty keys are not indexed.
type Keys struct {
	Business string
	Link     string
}

// Document is implemented by every stored type.
type Document interface {
	GetMeta() *Meta
	Collection() Collection
	Keys() Keys
}

// =============================================================================
// REFERENCE MASTERS
// =============================================================================

type Ownership string

const (
	OwnershipOwn    Ownership = "own"
	OwnershipMarket Ownership = "market"
)

type Vehicle struct {
	Meta
	VehicleNo     string    `json:"vehicle_no"`
	OwnershipType Ownership `json:"ownership_type"`
	OwnerName     string    `json:"owner_name,omitempty"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	SupplierName  string    `json:"supplier_name,omitempty"`
}

func (*Vehicle) Collection() Collection { return CollVehicles }
func (v *Vehicle) Keys() Keys          { return Keys{Business: v.VehicleNo} }

// IsOwn reports whether BRC bears the vehicle's costs and earns its income.
func (v *Vehicle) IsOwn() bool { return v.OwnershipType == OwnershipOwn }

type Party struct {
	Meta
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
}

func (*Party) Collection() Collection { return CollParties }
func (p *Party) Keys() Keys          { return Keys{Business: p.Name} }

type Supplier struct {
	Meta
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (*Supplier) Collection() Collection { return CollSuppliers }
func (s *Supplier) Keys() Keys          { return Keys{Business: s.Name} }

// FuelWallet is a prepaid fuel account. Balance is only ever changed by the
// store's atomic adjust; a saved wallet keeps its stored balance.
type FuelWallet struct {
	Meta
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

func (*FuelWallet) Collection() Collection { return CollFuelWallets }
func (w *FuelWallet) Keys() Keys          { return Keys{Business: w.Name} }

// =============================================================================
// INJECTED RECORDS
// =============================================================================

// AdvancePayment is a partial payment embedded in a bill or memo. ID is
// derived from the cash entry that injected it (ledger.AdvanceID).
type AdvancePayment struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Mode        string          `json:"mode"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Settlement records a bill receipt or memo payment. Same shape as an advance,
// kept separate because it drives status.
type Settlement = AdvancePayment

// removeByID returns list without the record id, and whether it was present.
func removeByID(list []AdvancePayment, id string) ([]AdvancePayment, bool) {
	out := list[:0:0]
	found := false
	for _, p := range list {
		if p.ID == id {
			found = true
			continue
		}
		out = append(out, p)
	}
	return out, found
}

// upsertByID replaces the record with the same id or appends it.
func upsertByID(list []AdvancePayment, p AdvancePayment) []AdvancePayment {
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func find(list []AdvancePayment, id string) (AdvancePayment, bool) {
	for _, p := range list {
		if p.ID == id {
			return p, true
		}
	}
	return AdvancePayment{}, false
}

func sum(list []AdvancePayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range list {
		total = total.Add(p.Amount)
	}
	return total
}

func latest(list []AdvancePayment) *time.Time {
	var t *time.Time
	for i := range list {
		if t == nil || list[i].Date.After(*t) {
			d := list[i].Date
			t = &d
		}
	}
	return t
}
