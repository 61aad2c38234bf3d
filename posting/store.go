/*
store.go - Persistence interface the posting engine needs

PURPOSE:
  Defines the boundary between the derivation rules and the database. Three
  implementations exist: in-memory (tests), SQLite and MongoDB. The engine only
  ever writes inside WithTx, so every create/update/delete of a source
  document commits as one unit: document, its postings, and its side effects.

KEY INTERFACES:
  DocumentStore:   Source documents with optimistic versions and business keys
  MasterStore:     Parties, suppliers, vehicles, fuel wallets
  EntryStore:      ledger_entries
  CommissionStore: party_commission_ledger
  StaleStore:      Sources whose postings could not be reconciled
  Store:           All of the above
  TxStore:         Store + WithTx

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the document does not exist. Delete*
  methods return ledger.ErrNotFound.

VERSIONING:
  Save* with Meta.Version == 0 inserts (error if the id exists). Otherwise it
  updates only if the stored version equals Meta.Version, and increments it.
  Mismatch -> ledger.ErrConcurrentModification. Business or link key
  collisions -> *ledger.DuplicateKeyError.

WALLET BALANCE:
  AdjustFuelWalletBalance must be an atomic increment at the storage layer;
  the engine never reads a balance and writes it back.

SEE ALSO:
  - store/memory, store/sqlite, store/mongodb: Implementations
  - engine.go: The only writer
*/
package posting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

type DocumentStore interface {
	GetLoadingSlip(ctx context.Context, id string) (*documents.LoadingSlip, error)
	GetLoadingSlipByNumber(ctx context.Context, number string) (*documents.LoadingSlip, error)
	SaveLoadingSlip(ctx context.Context, slip *documents.LoadingSlip) error
	DeleteLoadingSlip(ctx context.Context, id string) error

	GetBill(ctx context.Context, id string) (*documents.Bill, error)
	GetBillByNumber(ctx context.Context, number string) (*documents.Bill, error)
	GetBillByLoadingSlip(ctx context.Context, slipID string) (*documents.Bill, error)
	SaveBill(ctx context.Context, bill *documents.Bill) error
	DeleteBill(ctx context.Context, id string) error

	GetMemo(ctx context.Context, id string) (*documents.Memo, error)
	GetMemoByNumber(ctx context.Context, number string) (*documents.Memo, error)
	GetMemoByLoadingSlip(ctx context.Context, slipID string) (*documents.Memo, error)
	SaveMemo(ctx context.Context, memo *documents.Memo) error
	DeleteMemo(ctx context.Context, id string) error

	GetCashEntry(ctx context.Context, book documents.Book, id string) (*documents.CashEntry, error)
	ListCashEntries(ctx context.Context, book documents.Book, r *ledger.DateRange) ([]documents.CashEntry, error)
	SaveCashEntry(ctx context.Context, entry *documents.CashEntry) error
	DeleteCashEntry(ctx context.Context, book documents.Book, id string) error

	GetFuelTransaction(ctx context.Context, id string) (*documents.FuelTransaction, error)
	SaveFuelTransaction(ctx context.Context, ft *documents.FuelTransaction) error
	DeleteFuelTransaction(ctx context.Context, id string) error
}

// =============================================================================
// MASTERS
// =============================================================================

type MasterStore interface {
	GetParty(ctx context.Context, id string) (*documents.Party, error)
	GetPartyByName(ctx context.Context, name string) (*documents.Party, error)
	SaveParty(ctx context.Context, p *documents.Party) error

	GetSupplier(ctx context.Context, id string) (*documents.Supplier, error)
	GetSupplierByName(ctx context.Context, name string) (*documents.Supplier, error)
	SaveSupplier(ctx context.Context, s *documents.Supplier) error

	GetVehicle(ctx context.Context, id string) (*documents.Vehicle, error)
	GetVehicleByNumber(ctx context.Context, vehicleNo string) (*documents.Vehicle, error)
	SaveVehicle(ctx context.Context, v *documents.Vehicle) error

	GetFuelWallet(ctx context.Context, id string) (*documents.FuelWallet, error)
	SaveFuelWallet(ctx context.Context, w *documents.FuelWallet) error

	// AdjustFuelWalletBalance atomically adds delta (may be negative) to the
	// wallet balance and returns the new balance.
	AdjustFuelWalletBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)
}

// =============================================================================
// POSTINGS
// =============================================================================

type EntryStore interface {
	// InsertEntries persists entries. Duplicate ids -> ledger.ErrDuplicateEntry.
	InsertEntries(ctx context.Context, entries []ledger.Entry) error

	// DeleteEntriesBySource removes every entry owned by the source.
	DeleteEntriesBySource(ctx context.Context, src ledger.SourceRef) (int, error)

	// ListEntries returns matching entries. Order is unspecified; readers sort.
	ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error)
}

type CommissionStore interface {
	InsertCommissionEntries(ctx context.Context, entries []ledger.CommissionEntry) error
	DeleteCommissionBySource(ctx context.Context, src ledger.SourceRef) (int, error)
	ListCommissionEntries(ctx context.Context, filter ledger.CommissionFilter) ([]ledger.CommissionEntry, error)
}

// =============================================================================
// STALENESS
// =============================================================================

// StaleSource marks a source document whose stored postings are known not to
// match its payload. Readers touching Keys report a staleness indicator.
type StaleSource struct {
	Source    ledger.SourceRef
	Action    string
	Reason    string
	Keys      []ledger.AccountKey
	Attempts  int
	FlaggedAt time.Time
}

// Touches reports whether the flag covers the account. An empty name means
// "any account of that ledger type"; an empty ledger type means "any ledger".
func (s StaleSource) Touches(lt ledger.LedgerType, name string) bool {
	if len(s.Keys) == 0 {
		return true
	}
	for _, k := range s.Keys {
		if lt != "" && k.LedgerType != lt {
			continue
		}
		if name != "" && k.Name != name {
			continue
		}
		return true
	}
	return false
}

type StaleStore interface {
	// FlagStale upserts the flag for s.Source. A new flag starts at one
	// attempt; an existing one keeps its FlaggedAt, takes the new Reason and
	// Keys, and increments Attempts. s.Attempts is ignored.
	FlagStale(ctx context.Context, s StaleSource) error
	ClearStale(ctx context.Context, src ledger.SourceRef) error
	ListStale(ctx context.Context) ([]StaleSource, error)
}

// =============================================================================
// COMPOSITE
// =============================================================================

type Store interface {
	DocumentStore
	MasterStore
	EntryStore
	CommissionStore
	StaleStore
}

// TxStore runs fn inside one database transaction. If fn returns an error
// everything fn wrote is rolled back. fn must use the ctx and Store it is
// given, not the outer ones.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
