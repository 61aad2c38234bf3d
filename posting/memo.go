package posting

import (
	"context"
	"fmt"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// memoRule routes memo proceeds by the ownership of the slip's vehicle.
//
//	own:    vehicle_income credits for net freight, detention and extra
//	market: one supplier credit for the net amount
type memoRule struct{}

func (memoRule) Ref(doc documents.Document) ledger.SourceRef {
	return ledger.SourceRef{Type: ledger.SourceMemo, ID: doc.GetMeta().ID}
}

func (memoRule) Load(ctx context.Context, s Store, id string) (documents.Document, error) {
	m, err := s.GetMemo(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (memoRule) Prepare(ctx context.Context, s Store, prev, next documents.Document) error {
	m, err := as[*documents.Memo](next, ledger.SourceMemo)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	var p *documents.Memo
	if prev != nil {
		p = prev.(*documents.Memo)
		if p.HasInjected() && p.MemoNumber != m.MemoNumber {
			return fmt.Errorf("%w: memo %s has advances or payments; its number cannot change",
				ledger.ErrSourceInUse, p.MemoNumber)
		}
	}
	m.CarryInjected(p)

	existing, err := s.GetMemoByLoadingSlip(ctx, m.LoadingSlipID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != m.ID {
		return &ledger.DuplicateSourceError{Kind: "memo", LoadingSlipID: m.LoadingSlipID, ExistingID: existing.ID}
	}
	existing, err = s.GetMemoByNumber(ctx, m.MemoNumber)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != m.ID {
		return &ledger.DuplicateKeyError{Collection: string(documents.CollMemos), Key: m.MemoNumber}
	}
	return nil
}

func (r memoRule) Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error) {
	m, err := as[*documents.Memo](doc, ledger.SourceMemo)
	if err != nil {
		return nil, err
	}
	slip, err := requireSlip(ctx, s, m.LoadingSlipID)
	if err != nil {
		return nil, err
	}
	vehicle, err := requireVehicle(ctx, s, slip.VehicleNo)
	if err != nil {
		return nil, err
	}

	l := newLines(r.Ref(m), m, m.MemoNumber, m.Date)
	l.vehicleNo = vehicle.VehicleNo
	desc := func(what string) string { return fmt.Sprintf("Memo %s %s", m.MemoNumber, what) }

	if vehicle.IsOwn() {
		l.credit(ledger.LedgerVehicleIncome, ledger.SuffixFreight, vehicle.VehicleNo, desc("net freight"), m.NetFreight())
		l.credit(ledger.LedgerVehicleIncome, ledger.SuffixDetention, vehicle.VehicleNo, desc("detention"), m.Detention)
		l.credit(ledger.LedgerVehicleIncome, ledger.SuffixExtra, vehicle.VehicleNo, desc("extra"), m.Extra)
		return l.d, nil
	}

	supplier, err := resolveSupplier(ctx, s,
		counterparty{ID: m.SupplierID, Name: m.SupplierName},
		counterparty{ID: slip.SupplierID, Name: slip.SupplierName},
		counterparty{ID: vehicle.SupplierID, Name: vehicle.SupplierName})
	if err != nil {
		return nil, err
	}
	l.credit(ledger.LedgerSupplier, ledger.SuffixSupplier, supplier.Name, desc("payable"), m.NetAmount())
	return l.d, nil
}

func (memoRule) Unwind(context.Context, Store, documents.Document) error { return nil }

func (memoRule) CheckDelete(_ context.Context, _ Store, prev documents.Document) error {
	m := prev.(*documents.Memo)
	if m.HasInjected() {
		return fmt.Errorf("%w: memo %s has advances or payments recorded by cash entries",
			ledger.ErrSourceInUse, m.MemoNumber)
	}
	return nil
}

func (memoRule) Save(ctx context.Context, s Store, doc documents.Document) error {
	return s.SaveMemo(ctx, doc.(*documents.Memo))
}

func (memoRule) Delete(ctx context.Context, s Store, prev documents.Document) error {
	return s.DeleteMemo(ctx, prev.GetMeta().ID)
}
