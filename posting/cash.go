/*
cash.go - Category-driven posting for banking and cashbook entries

ROUTING (by category):
  bill_advance      advance on the bill named by reference_id     (no entry)
  bill_payment      receipt on the bill; bill becomes received    (no entry)
  memo_advance      advance on the memo named by reference_id     (no entry)
  memo_payment      payment on the memo; memo becomes paid        (no entry)
  vehicle_expense   own vehicle: vehicle_expense line; market: nothing
  party_commission  commission debit + commission ledger debit
  fuel_wallet       wallet credit + wallet_credit fuel txn        (no entry)
  party_on_account  party line; money in reduces what the party owes
  supplier_payment  supplier line; money out reduces what BRC owes
  anything else     general line keyed by reference_name

MIRROR:
  With mirroring on, categories that post a specific line also post a
  general-ledger copy (suffix "mirror") under the category name.
*/
package posting

import (
	"context"
	"fmt"
	"strings"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

type cashRule struct {
	book   documents.Book
	mirror bool
}

func (r cashRule) Ref(doc documents.Document) ledger.SourceRef {
	return ledger.SourceRef{Type: r.book.SourceType(), ID: doc.GetMeta().ID}
}

func (r cashRule) Load(ctx context.Context, s Store, id string) (documents.Document, error) {
	e, err := s.GetCashEntry(ctx, r.book, id)
	if err != nil || e == nil {
		return nil, err
	}
	return e, nil
}

func (r cashRule) Prepare(_ context.Context, _ Store, _, next documents.Document) error {
	e, err := as[*documents.CashEntry](next, r.book.SourceType())
	if err != nil {
		return err
	}
	if e.Book == "" {
		e.Book = r.book
	}
	if e.Book != r.book {
		return &ledger.InvalidCategoryError{Category: string(e.Category),
			Reason: fmt.Sprintf("%s entry submitted to %s", e.Book, r.book)}
	}
	return e.Validate()
}

func (r cashRule) Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error) {
	e, err := as[*documents.CashEntry](doc, r.book.SourceType())
	if err != nil {
		return nil, err
	}
	src := r.Ref(e)
	l := newLines(src, e, e.ReferenceID, e.Date)
	l.vehicleNo = e.VehicleNo
	desc := e.Description
	if desc == "" {
		desc = strings.ReplaceAll(string(e.Category), "_", " ")
	}

	record := documents.AdvancePayment{
		Date:        e.Date,
		Amount:      e.Amount,
		Mode:        e.PaymentMode(),
		Reference:   src.String(),
		Description: e.Description,
	}

	switch e.Category {
	case documents.CatBillAdvance, documents.CatBillPayment:
		number, err := referenceID(e, "bill number")
		if err != nil {
			return nil, err
		}
		bill, err := requireBill(ctx, s, number)
		if err != nil {
			return nil, err
		}
		if e.Category == documents.CatBillAdvance {
			record.ID = ledger.AdvanceID(e.ID)
			l.effect(billRecord{Number: bill.BillNumber, Kind: recordAdvance, Record: record})
		} else {
			record.ID = ledger.PaymentID(e.ID)
			l.effect(billRecord{Number: bill.BillNumber, Kind: recordSettlement, Record: record})
		}

	case documents.CatMemoAdvance, documents.CatMemoPayment:
		number, err := referenceID(e, "memo number")
		if err != nil {
			return nil, err
		}
		memo, err := requireMemo(ctx, s, number)
		if err != nil {
			return nil, err
		}
		if e.Category == documents.CatMemoAdvance {
			record.ID = ledger.AdvanceID(e.ID)
			l.effect(memoRecord{Number: memo.MemoNumber, Kind: recordAdvance, Record: record})
		} else {
			record.ID = ledger.PaymentID(e.ID)
			l.effect(memoRecord{Number: memo.MemoNumber, Kind: recordSettlement, Record: record})
		}

	case documents.CatVehicleExpense:
		if strings.TrimSpace(e.VehicleNo) == "" {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "vehicle_no is required"}
		}
		vehicle, err := requireVehicle(ctx, s, e.VehicleNo)
		if err != nil {
			return nil, err
		}
		if vehicle.IsOwn() {
			l.post(ledger.LedgerVehicleExpense, ledger.SuffixVehicle, vehicle.VehicleNo, desc, e.Signed())
		}

	case documents.CatPartyCommission:
		if e.ReferenceID == "" && strings.TrimSpace(e.ReferenceName) == "" {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "reference_id or reference_name is required"}
		}
		party, err := resolveParty(ctx, s, counterparty{ID: e.ReferenceID, Name: e.ReferenceName})
		if err != nil {
			return nil, err
		}
		l.debit(ledger.LedgerCommission, ledger.SuffixCommission, party.Name, desc, e.Amount)
		c := ledger.CommissionEntry{
			ID:          ledger.EntryID(e.ID, ledger.SuffixCommission),
			PartyID:     party.ID,
			PartyName:   party.Name,
			EntryType:   ledger.CommissionDebit,
			Amount:      e.Amount,
			Description: desc,
		}
		if r.book == documents.BookCashbook {
			c.CashbookEntryID = e.ID
		} else {
			c.BankingID = e.ID
		}
		l.commission(c)

	case documents.CatFuelWallet:
		if e.Type != documents.Debit {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "fuel wallet top-ups must be debit (money out)"}
		}
		if e.ReferenceID == "" {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "reference_id (wallet id) is required"}
		}
		wallet, err := requireWallet(ctx, s, e.ReferenceID)
		if err != nil {
			return nil, err
		}
		txn := documents.FuelTransaction{
			WalletID:    wallet.ID,
			Kind:        documents.FuelWalletCredit,
			Date:        e.Date,
			Amount:      e.Amount,
			Description: desc,
			SourceID:    e.ID,
		}
		txn.ID = ledger.WalletCreditID(e.ID)
		txn.CreatedAt = e.CreatedAt
		txn.UpdatedAt = e.UpdatedAt
		l.effect(walletCredit{Txn: txn})

	case documents.CatPartyOnAccount:
		if e.ReferenceID == "" && strings.TrimSpace(e.ReferenceName) == "" {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "reference_id or reference_name is required"}
		}
		party, err := resolveParty(ctx, s, counterparty{ID: e.ReferenceID, Name: e.ReferenceName})
		if err != nil {
			return nil, err
		}
		l.post(ledger.LedgerParty, ledger.SuffixParty, party.Name, desc, e.Signed().Neg())

	case documents.CatSupplierPayment:
		if e.ReferenceID == "" && strings.TrimSpace(e.ReferenceName) == "" {
			return nil, &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "reference_id or reference_name is required"}
		}
		supplier, err := resolveSupplier(ctx, s, counterparty{ID: e.ReferenceID, Name: e.ReferenceName})
		if err != nil {
			return nil, err
		}
		l.post(ledger.LedgerSupplier, ledger.SuffixSupplier, supplier.Name, desc, e.Signed())

	default:
		account := strings.TrimSpace(e.ReferenceName)
		if account == "" {
			account = string(e.Category)
		}
		l.post(ledger.LedgerGeneral, ledger.SuffixGeneral, account, desc, e.Signed())
		return l.d, nil
	}

	if r.mirror && len(l.d.Entries) > 0 {
		l.post(ledger.LedgerGeneral, ledger.SuffixMirror, string(e.Category), desc, e.Signed())
	}
	return l.d, nil
}

func referenceID(e *documents.CashEntry, what string) (string, error) {
	ref := strings.TrimSpace(e.ReferenceID)
	if ref == "" {
		return "", &ledger.InvalidCategoryError{Category: string(e.Category), Reason: "reference_id (" + what + ") is required"}
	}
	return ref, nil
}

func (r cashRule) Unwind(ctx context.Context, s Store, prev documents.Document) error {
	e := prev.(*documents.CashEntry)
	switch e.Category {
	case documents.CatBillAdvance, documents.CatBillPayment:
		return stripBillRecords(ctx, s, strings.TrimSpace(e.ReferenceID), e.ID)
	case documents.CatMemoAdvance, documents.CatMemoPayment:
		return stripMemoRecords(ctx, s, strings.TrimSpace(e.ReferenceID), e.ID)
	case documents.CatFuelWallet:
		return revertWalletCredit(ctx, s, e.ID)
	}
	return nil
}

func (cashRule) CheckDelete(context.Context, Store, documents.Document) error { return nil }

func (cashRule) Save(ctx context.Context, s Store, doc documents.Document) error {
	return s.SaveCashEntry(ctx, doc.(*documents.CashEntry))
}

func (r cashRule) Delete(ctx context.Context, s Store, prev documents.Document) error {
	return s.DeleteCashEntry(ctx, r.book, prev.GetMeta().ID)
}
