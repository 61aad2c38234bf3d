package posting

import (
	"context"
	"fmt"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// slipRule stores loading slips. A slip posts nothing itself, but the bill
// and memo raised against it route by its vehicle and party, so an update
// re-derives both.
type slipRule struct{}

func (slipRule) Ref(doc documents.Document) ledger.SourceRef {
	return ledger.SourceRef{Type: ledger.SourceLoadingSlip, ID: doc.GetMeta().ID}
}

func (slipRule) Load(ctx context.Context, s Store, id string) (documents.Document, error) {
	slip, err := s.GetLoadingSlip(ctx, id)
	if err != nil || slip == nil {
		return nil, err
	}
	return slip, nil
}

func (slipRule) Prepare(ctx context.Context, s Store, _, next documents.Document) error {
	slip, err := as[*documents.LoadingSlip](next, ledger.SourceLoadingSlip)
	if err != nil {
		return err
	}
	if err := slip.Validate(); err != nil {
		return err
	}
	if slip.SlipNumber == "" {
		return nil
	}
	existing, err := s.GetLoadingSlipByNumber(ctx, slip.SlipNumber)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != slip.ID {
		return &ledger.DuplicateKeyError{Collection: string(documents.CollLoadingSlips), Key: slip.SlipNumber}
	}
	return nil
}

func (r slipRule) Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error) {
	slip, err := as[*documents.LoadingSlip](doc, ledger.SourceLoadingSlip)
	if err != nil {
		return nil, err
	}
	if _, err := requireVehicle(ctx, s, slip.VehicleNo); err != nil {
		return nil, err
	}
	return &Derivation{Source: r.Ref(slip)}, nil
}

func (slipRule) Unwind(context.Context, Store, documents.Document) error { return nil }

func (slipRule) Dependents(ctx context.Context, s Store, doc documents.Document) ([]ledger.SourceRef, error) {
	id := doc.GetMeta().ID
	var refs []ledger.SourceRef
	bill, err := s.GetBillByLoadingSlip(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill != nil {
		refs = append(refs, ledger.SourceRef{Type: ledger.SourceBill, ID: bill.ID})
	}
	memo, err := s.GetMemoByLoadingSlip(ctx, id)
	if err != nil {
		return nil, err
	}
	if memo != nil {
		refs = append(refs, ledger.SourceRef{Type: ledger.SourceMemo, ID: memo.ID})
	}
	return refs, nil
}

func (r slipRule) CheckDelete(ctx context.Context, s Store, prev documents.Document) error {
	refs, err := r.Dependents(ctx, s, prev)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return fmt.Errorf("%w: loading slip %s is referenced by %s", ledger.ErrSourceInUse, prev.GetMeta().ID, refs[0])
	}
	return nil
}

func (slipRule) Save(ctx context.Context, s Store, doc documents.Document) error {
	return s.SaveLoadingSlip(ctx, doc.(*documents.LoadingSlip))
}

func (slipRule) Delete(ctx context.Context, s Store, prev documents.Document) error {
	return s.DeleteLoadingSlip(ctx, prev.GetMeta().ID)
}
