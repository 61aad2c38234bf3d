/*
effects.go - Side effects a source document has on other documents

PURPOSE:
  Some cash entries post nothing to ledger_entries and instead change another
  document: an advance appended to a bill, a receipt settling a memo, a wallet
  credited. These are Effects. Each one is addressed by a deterministic id
  derived from the source (e.g. "{sourceId}-advance"), so reversal strips
  exactly what the source injected and leaves every other record intact.

LIFECYCLE:
  Apply:  runs after the source is saved, inside the mutation's transaction
  Check:  used by Verify to confirm the effect is in place
  Revert: not on Effect; rules unwind from the stored previous payload, so a
          deleted target does not block deleting the source
*/
package posting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

type Effect interface {
	Apply(ctx context.Context, s Store) error
	Check(ctx context.Context, s Store) error
	Describe() string
}

// =============================================================================
// BILL / MEMO RECORDS
// =============================================================================

type recordKind int

const (
	recordAdvance recordKind = iota
	recordSettlement
)

func (k recordKind) String() string {
	if k == recordSettlement {
		return "settlement"
	}
	return "advance"
}

// billRecord appends an advance or receipt to the bill with Number.
type billRecord struct {
	Number string
	Kind   recordKind
	Record documents.AdvancePayment
}

func (r billRecord) Describe() string {
	return fmt.Sprintf("%s %s on bill %s", r.Kind, r.Record.ID, r.Number)
}

func (r billRecord) Apply(ctx context.Context, s Store) error {
	bill, err := requireBill(ctx, s, r.Number)
	if err != nil {
		return err
	}
	if r.Kind == recordSettlement {
		bill.AddReceipt(r.Record)
	} else {
		bill.AddAdvance(r.Record)
	}
	return s.SaveBill(ctx, bill)
}

func (r billRecord) Check(ctx context.Context, s Store) error {
	bill, err := requireBill(ctx, s, r.Number)
	if err != nil {
		return err
	}
	got, ok := bill.Advance(r.Record.ID)
	if r.Kind == recordSettlement {
		got, ok = bill.Receipt(r.Record.ID)
	}
	return checkRecord(r.Describe(), got, ok, r.Record.Amount)
}

// memoRecord appends an advance or payment to the memo with Number.
type memoRecord struct {
	Number string
	Kind   recordKind
	Record documents.AdvancePayment
}

func (r memoRecord) Describe() string {
	return fmt.Sprintf("%s %s on memo %s", r.Kind, r.Record.ID, r.Number)
}

func (r memoRecord) Apply(ctx context.Context, s Store) error {
	memo, err := requireMemo(ctx, s, r.Number)
	if err != nil {
		return err
	}
	if r.Kind == recordSettlement {
		memo.AddPayment(r.Record)
	} else {
		memo.AddAdvance(r.Record)
	}
	return s.SaveMemo(ctx, memo)
}

func (r memoRecord) Check(ctx context.Context, s Store) error {
	memo, err := requireMemo(ctx, s, r.Number)
	if err != nil {
		return err
	}
	got, ok := memo.Advance(r.Record.ID)
	if r.Kind == recordSettlement {
		got, ok = memo.Payment(r.Record.ID)
	}
	return checkRecord(r.Describe(), got, ok, r.Record.Amount)
}

func checkRecord(what string, got documents.AdvancePayment, ok bool, want decimal.Decimal) error {
	if !ok {
		return fmt.Errorf("%s is missing", what)
	}
	if !got.Amount.Equal(want) {
		return fmt.Errorf("%s has amount %s, expected %s", what, got.Amount, want)
	}
	return nil
}

// stripBillRecords removes what sourceID injected into the bill with number.
func stripBillRecords(ctx context.Context, s Store, number, sourceID string) error {
	bill, err := s.GetBillByNumber(ctx, number)
	if err != nil || bill == nil {
		return err
	}
	removedAdvance := bill.RemoveAdvance(ledger.AdvanceID(sourceID))
	removedReceipt := bill.RemoveReceipt(ledger.PaymentID(sourceID))
	if !removedAdvance && !removedReceipt {
		return nil
	}
	return s.SaveBill(ctx, bill)
}

func stripMemoRecords(ctx context.Context, s Store, number, sourceID string) error {
	memo, err := s.GetMemoByNumber(ctx, number)
	if err != nil || memo == nil {
		return err
	}
	removedAdvance := memo.RemoveAdvance(ledger.AdvanceID(sourceID))
	removedPayment := memo.RemovePayment(ledger.PaymentID(sourceID))
	if !removedAdvance && !removedPayment {
		return nil
	}
	return s.SaveMemo(ctx, memo)
}

// =============================================================================
// FUEL WALLET
// =============================================================================

// walletCredit tops up a wallet from a cash entry and records the
// wallet_credit fuel transaction that makes the top-up reversible.
type walletCredit struct {
	Txn documents.FuelTransaction
}

func (w walletCredit) Describe() string {
	return fmt.Sprintf("wallet credit %s of %s to %s", w.Txn.ID, w.Txn.Amount, w.Txn.WalletID)
}

func (w walletCredit) Apply(ctx context.Context, s Store) error {
	if _, err := s.AdjustFuelWalletBalance(ctx, w.Txn.WalletID, w.Txn.Amount); err != nil {
		return err
	}
	txn := w.Txn
	return s.SaveFuelTransaction(ctx, &txn)
}

func (w walletCredit) Check(ctx context.Context, s Store) error {
	got, err := s.GetFuelTransaction(ctx, w.Txn.ID)
	if err != nil {
		return err
	}
	if got == nil {
		return fmt.Errorf("%s is missing", w.Describe())
	}
	if !got.Amount.Equal(w.Txn.Amount) || got.WalletID != w.Txn.WalletID {
		return fmt.Errorf("%s stored as %s to %s", w.Describe(), got.Amount, got.WalletID)
	}
	return nil
}

// revertWalletCredit subtracts what the source's wallet_credit added and
// removes the transaction.
func revertWalletCredit(ctx context.Context, s Store, sourceID string) error {
	txn, err := s.GetFuelTransaction(ctx, ledger.WalletCreditID(sourceID))
	if err != nil || txn == nil {
		return err
	}
	if _, err := s.AdjustFuelWalletBalance(ctx, txn.WalletID, txn.Amount.Neg()); err != nil {
		return err
	}
	return s.DeleteFuelTransaction(ctx, txn.ID)
}

// walletDebit draws an allocation from a wallet. The balance itself cannot be
// checked per source, only the allocation document can.
type walletDebit struct {
	WalletID string
	Amount   decimal.Decimal
}

func (w walletDebit) Describe() string {
	return fmt.Sprintf("wallet debit of %s from %s", w.Amount, w.WalletID)
}

func (w walletDebit) Apply(ctx context.Context, s Store) error {
	_, err := s.AdjustFuelWalletBalance(ctx, w.WalletID, w.Amount.Neg())
	return err
}

func (w walletDebit) Check(context.Context, Store) error { return nil }
