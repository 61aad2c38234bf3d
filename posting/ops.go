package posting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// TYPED OPERATIONS - Thin wrappers over Dispatch
// =============================================================================

func create[T documents.Document](ctx context.Context, e *Engine, src ledger.SourceType, doc T) (Result[T], error) {
	out, err := e.Dispatch(ctx, Event{Source: src, Action: ActionCreate, Payload: doc})
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Document: out.Document.(T), Postings: out.Postings, Commission: out.Commission}, nil
}

func update[T documents.Document](ctx context.Context, e *Engine, src ledger.SourceType, id string, doc T) (Result[T], error) {
	out, err := e.Dispatch(ctx, Event{Source: src, Action: ActionUpdate, ID: id, Payload: doc})
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Document: out.Document.(T), Postings: out.Postings, Commission: out.Commission}, nil
}

func (e *Engine) remove(ctx context.Context, src ledger.SourceType, id string) (DeleteResult, error) {
	out, err := e.Dispatch(ctx, Event{Source: src, Action: ActionDelete, ID: id})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{RemovedPostingCount: out.RemovedPostings, RemovedCommissionCount: out.RemovedCommission}, nil
}

func found[T any](v *T, err error, kind, id string) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return v, nil
}

// Loading slips

func (e *Engine) CreateLoadingSlip(ctx context.Context, s *documents.LoadingSlip) (Result[*documents.LoadingSlip], error) {
	return create(ctx, e, ledger.SourceLoadingSlip, s)
}

func (e *Engine) UpdateLoadingSlip(ctx context.Context, id string, s *documents.LoadingSlip) (Result[*documents.LoadingSlip], error) {
	return update(ctx, e, ledger.SourceLoadingSlip, id, s)
}

func (e *Engine) DeleteLoadingSlip(ctx context.Context, id string) (DeleteResult, error) {
	return e.remove(ctx, ledger.SourceLoadingSlip, id)
}

func (e *Engine) GetLoadingSlip(ctx context.Context, id string) (*documents.LoadingSlip, error) {
	v, err := e.store.GetLoadingSlip(ctx, id)
	return found(v, err, string(ledger.SourceLoadingSlip), id)
}

// Bills

func (e *Engine) CreateBill(ctx context.Context, b *documents.Bill) (Result[*documents.Bill], error) {
	return create(ctx, e, ledger.SourceBill, b)
}

func (e *Engine) UpdateBill(ctx context.Context, id string, b *documents.Bill) (Result[*documents.Bill], error) {
	return update(ctx, e, ledger.SourceBill, id, b)
}

func (e *Engine) DeleteBill(ctx context.Context, id string) (DeleteResult, error) {
	return e.remove(ctx, ledger.SourceBill, id)
}

func (e *Engine) GetBill(ctx context.Context, id string) (*documents.Bill, error) {
	v, err := e.store.GetBill(ctx, id)
	return found(v, err, string(ledger.SourceBill), id)
}

// Memos

func (e *Engine) CreateMemo(ctx context.Context, m *documents.Memo) (Result[*documents.Memo], error) {
	return create(ctx, e, ledger.SourceMemo, m)
}

func (e *Engine) UpdateMemo(ctx context.Context, id string, m *documents.Memo) (Result[*documents.Memo], error) {
	return update(ctx, e, ledger.SourceMemo, id, m)
}

func (e *Engine) DeleteMemo(ctx context.Context, id string) (DeleteResult, error) {
	return e.remove(ctx, ledger.SourceMemo, id)
}

func (e *Engine) GetMemo(ctx context.Context, id string) (*documents.Memo, error) {
	v, err := e.store.GetMemo(ctx, id)
	return found(v, err, string(ledger.SourceMemo), id)
}

// Banking and cashbook entries. The entry's Book selects the source type.

func (e *Engine) CreateCashEntry(ctx context.Context, c *documents.CashEntry) (Result[*documents.CashEntry], error) {
	if !c.Book.Valid() {
		return Result[*documents.CashEntry]{}, &ledger.InvalidCategoryError{Category: string(c.Category), Reason: fmt.Sprintf("unknown book %q", c.Book)}
	}
	return create(ctx, e, c.Book.SourceType(), c)
}

func (e *Engine) UpdateCashEntry(ctx context.Context, book documents.Book, id string, c *documents.CashEntry) (Result[*documents.CashEntry], error) {
	if c.Book == "" {
		c.Book = book
	}
	return update(ctx, e, book.SourceType(), id, c)
}

func (e *Engine) DeleteCashEntry(ctx context.Context, book documents.Book, id string) (DeleteResult, error) {
	return e.remove(ctx, book.SourceType(), id)
}

func (e *Engine) GetCashEntry(ctx context.Context, book documents.Book, id string) (*documents.CashEntry, error) {
	v, err := e.store.GetCashEntry(ctx, book, id)
	return found(v, err, string(book.SourceType()), id)
}

// Fuel transactions

func (e *Engine) CreateFuelTransaction(ctx context.Context, ft *documents.FuelTransaction) (Result[*documents.FuelTransaction], error) {
	return create(ctx, e, ledger.SourceFuelTransaction, ft)
}

func (e *Engine) UpdateFuelTransaction(ctx context.Context, id string, ft *documents.FuelTransaction) (Result[*documents.FuelTransaction], error) {
	return update(ctx, e, ledger.SourceFuelTransaction, id, ft)
}

func (e *Engine) DeleteFuelTransaction(ctx context.Context, id string) (DeleteResult, error) {
	return e.remove(ctx, ledger.SourceFuelTransaction, id)
}

func (e *Engine) GetFuelTransaction(ctx context.Context, id string) (*documents.FuelTransaction, error) {
	v, err := e.store.GetFuelTransaction(ctx, id)
	return found(v, err, string(ledger.SourceFuelTransaction), id)
}

// =============================================================================
// REFERENCE MASTERS - Plain creates, no derived data
// =============================================================================

func (e *Engine) stampMaster(m *documents.Meta) {
	if m.ID == "" {
		m.ID = e.newID()
	}
	now := e.now()
	m.Version = 0
	m.CreatedAt, m.UpdatedAt = now, now
}

func required(kind, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ledger.InvalidCategoryError{Category: kind, Reason: field + " is required"}
	}
	return nil
}

func (e *Engine) CreateParty(ctx context.Context, p *documents.Party) (*documents.Party, error) {
	if err := required("party", "name", p.Name); err != nil {
		return nil, err
	}
	e.stampMaster(&p.Meta)
	if err := e.store.SaveParty(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) GetParty(ctx context.Context, id string) (*documents.Party, error) {
	v, err := e.store.GetParty(ctx, id)
	return found(v, err, "party", id)
}

func (e *Engine) CreateSupplier(ctx context.Context, s *documents.Supplier) (*documents.Supplier, error) {
	if err := required("supplier", "name", s.Name); err != nil {
		return nil, err
	}
	e.stampMaster(&s.Meta)
	if err := e.store.SaveSupplier(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) GetSupplier(ctx context.Context, id string) (*documents.Supplier, error) {
	v, err := e.store.GetSupplier(ctx, id)
	return found(v, err, "supplier", id)
}

// CreateVehicle registers a vehicle. Ownership is fixed at creation: memos
// already routed by it would otherwise need re-deriving.
func (e *Engine) CreateVehicle(ctx context.Context, v *documents.Vehicle) (*documents.Vehicle, error) {
	if err := required("vehicle", "vehicle_no", v.VehicleNo); err != nil {
		return nil, err
	}
	if v.OwnershipType != documents.OwnershipOwn && v.OwnershipType != documents.OwnershipMarket {
		return nil, &ledger.InvalidCategoryError{Category: "vehicle",
			Reason: fmt.Sprintf("ownership_type must be own or market, got %q", v.OwnershipType)}
	}
	e.stampMaster(&v.Meta)
	if err := e.store.SaveVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) GetVehicle(ctx context.Context, id string) (*documents.Vehicle, error) {
	v, err := e.store.GetVehicle(ctx, id)
	return found(v, err, "vehicle", id)
}

// CreateFuelWallet opens a wallet with its opening balance. Later changes go
// through allocations and fuel_wallet cash entries only.
func (e *Engine) CreateFuelWallet(ctx context.Context, w *documents.FuelWallet) (*documents.FuelWallet, error) {
	if err := required("fuel_wallet", "name", w.Name); err != nil {
		return nil, err
	}
	if w.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance must not be negative", ledger.ErrInvalidAmount)
	}
	if err := documents.CheckWalletAmount("opening balance", w.Balance); err != nil {
		return nil, err
	}
	if w.Balance.IsZero() {
		w.Balance = decimal.Zero
	}
	e.stampMaster(&w.Meta)
	if err := e.store.SaveFuelWallet(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Engine) GetFuelWallet(ctx context.Context, id string) (*documents.FuelWallet, error) {
	v, err := e.store.GetFuelWallet(ctx, id)
	return found(v, err, "fuel_wallet", id)
}
