package posting

import (
	"context"
	"fmt"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// billRule posts a bill to the party ledger, one entry per non-zero charge
// line, and its commission cut to the commission ledgers.
//
//	credits: bill_amount, detention, extra, rto
//	debits:  tds, penalties, mamool
type billRule struct{}

func (billRule) Ref(doc documents.Document) ledger.SourceRef {
	return ledger.SourceRef{Type: ledger.SourceBill, ID: doc.GetMeta().ID}
}

func (billRule) Load(ctx context.Context, s Store, id string) (documents.Document, error) {
	b, err := s.GetBill(ctx, id)
	if err != nil || b == nil {
		return nil, err
	}
	return b, nil
}

func (billRule) Prepare(ctx context.Context, s Store, prev, next documents.Document) error {
	b, err := as[*documents.Bill](next, ledger.SourceBill)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	var p *documents.Bill
	if prev != nil {
		p = prev.(*documents.Bill)
		// Cash entries find their bill by number.
		if p.HasInjected() && p.BillNumber != b.BillNumber {
			return fmt.Errorf("%w: bill %s has advances or receipts; its number cannot change",
				ledger.ErrSourceInUse, p.BillNumber)
		}
	}
	b.CarryInjected(p)

	existing, err := s.GetBillByLoadingSlip(ctx, b.LoadingSlipID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != b.ID {
		return &ledger.DuplicateSourceError{Kind: "bill", LoadingSlipID: b.LoadingSlipID, ExistingID: existing.ID}
	}
	existing, err = s.GetBillByNumber(ctx, b.BillNumber)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != b.ID {
		return &ledger.DuplicateKeyError{Collection: string(documents.CollBills), Key: b.BillNumber}
	}
	return nil
}

func (r billRule) Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error) {
	b, err := as[*documents.Bill](doc, ledger.SourceBill)
	if err != nil {
		return nil, err
	}
	slip, err := requireSlip(ctx, s, b.LoadingSlipID)
	if err != nil {
		return nil, err
	}
	party, err := resolveParty(ctx, s,
		counterparty{ID: b.PartyID, Name: b.PartyName},
		counterparty{ID: slip.PartyID, Name: slip.PartyName})
	if err != nil {
		return nil, err
	}

	l := newLines(r.Ref(b), b, b.BillNumber, b.Date)
	l.vehicleNo = slip.VehicleNo

	desc := func(what string) string { return fmt.Sprintf("Bill %s %s", b.BillNumber, what) }
	l.credit(ledger.LedgerParty, ledger.SuffixMain, party.Name, desc("freight"), b.BillAmount)
	l.credit(ledger.LedgerParty, ledger.SuffixDetention, party.Name, desc("detention"), b.Detention)
	l.credit(ledger.LedgerParty, ledger.SuffixExtra, party.Name, desc("extra"), b.Extra)
	l.credit(ledger.LedgerParty, ledger.SuffixRTO, party.Name, desc("RTO"), b.RTO)
	l.debit(ledger.LedgerParty, ledger.SuffixTDS, party.Name, desc("TDS"), b.TDS)
	l.debit(ledger.LedgerParty, ledger.SuffixPenalties, party.Name, desc("penalties"), b.Penalties)
	l.debit(ledger.LedgerParty, ledger.SuffixMamool, party.Name, desc("mamool"), b.Mamool)

	if b.PartyCommissionCut.IsPositive() {
		l.credit(ledger.LedgerCommission, ledger.SuffixCommission, party.Name, desc("party commission"), b.PartyCommissionCut)
		l.commission(ledger.CommissionEntry{
			ID:          ledger.EntryID(b.ID, ledger.SuffixCommission),
			PartyID:     party.ID,
			PartyName:   party.Name,
			EntryType:   ledger.CommissionCredit,
			Amount:      b.PartyCommissionCut,
			BillNumber:  b.BillNumber,
			Description: desc("commission cut"),
			BillID:      b.ID,
		})
	}
	return l.d, nil
}

func (billRule) Unwind(context.Context, Store, documents.Document) error { return nil }

func (billRule) CheckDelete(_ context.Context, _ Store, prev documents.Document) error {
	b := prev.(*documents.Bill)
	if b.HasInjected() {
		return fmt.Errorf("%w: bill %s has advances or receipts recorded by cash entries",
			ledger.ErrSourceInUse, b.BillNumber)
	}
	return nil
}

func (billRule) Save(ctx context.Context, s Store, doc documents.Document) error {
	return s.SaveBill(ctx, doc.(*documents.Bill))
}

func (billRule) Delete(ctx context.Context, s Store, prev documents.Document) error {
	return s.DeleteBill(ctx, prev.GetMeta().ID)
}
