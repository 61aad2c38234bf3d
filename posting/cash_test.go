package posting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
	"github.com/brc/transport-ledger/store/memory"
	"github.com/brc/transport-ledger/store/sqlite"
)

func withRef(ref string) func(*documents.CashEntry) {
	return func(e *documents.CashEntry) { e.ReferenceID = ref }
}

func (f *fixture) getBill(id string) *documents.Bill {
	f.t.Helper()
	b, err := f.engine.GetBill(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) getMemo(id string) *documents.Memo {
	f.t.Helper()
	m, err := f.engine.GetMemo(f.ctx, id)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) walletBalance() string {
	f.t.Helper()
	w, err := f.engine.GetFuelWallet(f.ctx, f.wallet.ID)
	require.NoError(f.t, err)
	return w.Balance.StringFixed(2)
}

// =============================================================================
// ADVANCE LINKAGE
// =============================================================================

func TestBillAdvance_AppendsRecordWithoutPostings(t *testing.T) {
	// GIVEN: Bill BL-7 for 20000
	// WHEN: A banking bill_advance of 5000 references BL-7
	// THEN: The bill carries one 5000 advance keyed by the entry, no ledger entry is written

	f := newFixture(t)
	bill := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")
	before := len(f.allEntries())

	entry, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", withRef("BL-7"))
	require.NoError(t, err)

	assert.Len(t, f.allEntries(), before)
	assert.Empty(t, f.sourceEntries(ledger.SourceBanking, entry.ID))

	got := f.getBill(bill.ID)
	require.Len(t, got.AdvancePayments, 1)
	adv := got.AdvancePayments[0]
	assert.Equal(t, ledger.AdvanceID(entry.ID), adv.ID)
	assert.True(t, adv.Amount.Equal(dec("5000")))
	assert.Equal(t, "bank", adv.Mode)
	assert.Equal(t, "banking/"+entry.ID, adv.Reference)
	assert.True(t, got.Outstanding().Equal(dec("15000")))
	assert.Equal(t, documents.BillPending, got.Status)
}

func TestBillAdvance_DeleteRemovesOnlyItsRecord(t *testing.T) {
	f := newFixture(t)
	bill := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")

	first, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", withRef("BL-7"))
	require.NoError(t, err)
	second, err := f.cash(documents.BookCashbook, documents.CatBillAdvance, documents.Credit, "2000", withRef("BL-7"))
	require.NoError(t, err)
	require.Len(t, f.getBill(bill.ID).AdvancePayments, 2)

	_, err = f.engine.DeleteCashEntry(f.ctx, documents.BookBanking, first.ID)
	require.NoError(t, err)

	got := f.getBill(bill.ID)
	require.Len(t, got.AdvancePayments, 1)
	assert.Equal(t, ledger.AdvanceID(second.ID), got.AdvancePayments[0].ID)
	assert.Equal(t, "cash", got.AdvancePayments[0].Mode)
	assert.True(t, got.TotalAdvance().Equal(dec("2000")))
}

func TestBillAdvance_UpdateReplacesRecord(t *testing.T) {
	f := newFixture(t)
	bill := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")
	entry, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", withRef("BL-7"))
	require.NoError(t, err)

	edited := *entry
	edited.Amount = dec("6000")
	_, err = f.engine.UpdateCashEntry(f.ctx, documents.BookBanking, entry.ID, &edited)
	require.NoError(t, err)

	got := f.getBill(bill.ID)
	require.Len(t, got.AdvancePayments, 1)
	assert.True(t, got.AdvancePayments[0].Amount.Equal(dec("6000")))
}

func TestBillAdvance_MovedToAnotherBill(t *testing.T) {
	f := newFixture(t)
	a := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")
	b := f.bill("BL-8", f.slip("LS-2", f.own).ID, "10000")
	entry, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", withRef("BL-7"))
	require.NoError(t, err)

	edited := *entry
	edited.ReferenceID = "BL-8"
	_, err = f.engine.UpdateCashEntry(f.ctx, documents.BookBanking, entry.ID, &edited)
	require.NoError(t, err)

	assert.Empty(t, f.getBill(a.ID).AdvancePayments)
	assert.Len(t, f.getBill(b.ID).AdvancePayments, 1)
}

func TestBillAdvance_Rejections(t *testing.T) {
	f := newFixture(t)
	f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")

	_, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", nil)
	require.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000",
		func(e *documents.CashEntry) { e.ID = "bank-x"; e.ReferenceID = "BL-404" })
	require.ErrorIs(t, err, ledger.ErrReferenceNotFound)
	_, err = f.engine.GetCashEntry(f.ctx, documents.BookBanking, "bank-x")
	assert.True(t, ledger.IsNotFound(err), "rejected entry must not be stored")
}

func TestBill_WithAdvance_ProtectedAndCarried(t *testing.T) {
	// GIVEN: A bill with a cash-entry advance
	// WHEN: The bill is edited, renumbered, deleted
	// THEN: Edits keep the advance; renumbering and deleting are refused

	f := newFixture(t)
	bill := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")
	_, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "5000", withRef("BL-7"))
	require.NoError(t, err)

	current := f.getBill(bill.ID)
	edited := *current
	edited.AdvancePayments = nil // a client payload never carries them
	edited.Extra = dec("250")
	res, err := f.engine.UpdateBill(f.ctx, bill.ID, &edited)
	require.NoError(t, err)
	assert.Len(t, res.Document.AdvancePayments, 1)
	assert.True(t, res.Document.Outstanding().Equal(dec("15250")))

	renumbered := *res.Document
	renumbered.BillNumber = "BL-77"
	_, err = f.engine.UpdateBill(f.ctx, bill.ID, &renumbered)
	assert.ErrorIs(t, err, ledger.ErrSourceInUse)

	_, err = f.engine.DeleteBill(f.ctx, bill.ID)
	assert.ErrorIs(t, err, ledger.ErrSourceInUse)
	assert.NotNil(t, f.getBill(bill.ID))
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func TestBillPayment_MarksReceived(t *testing.T) {
	f := newFixture(t)
	bill := f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")

	entry, err := f.cash(documents.BookBanking, documents.CatBillPayment, documents.Credit, "20000", withRef("BL-7"))
	require.NoError(t, err)

	got := f.getBill(bill.ID)
	assert.Equal(t, documents.BillReceived, got.Status)
	assert.True(t, got.ReceivedAmount.Equal(dec("20000")))
	require.NotNil(t, got.ReceivedDate)
	assert.True(t, got.ReceivedDate.Equal(day(time.April, 5)))
	assert.Equal(t, ledger.PaymentID(entry.ID), got.Receipts[0].ID)

	_, err = f.engine.DeleteCashEntry(f.ctx, documents.BookBanking, entry.ID)
	require.NoError(t, err)
	got = f.getBill(bill.ID)
	assert.Equal(t, documents.BillPending, got.Status)
	assert.Nil(t, got.ReceivedDate)
	assert.True(t, got.ReceivedAmount.IsZero())
}

func TestMemoAdvanceAndPayment(t *testing.T) {
	f := newFixture(t)
	memo := f.memo("MM-3", f.slip("LS-1", f.market).ID, "15000", "750", "250", "400", "100")

	_, err := f.cash(documents.BookCashbook, documents.CatMemoAdvance, documents.Debit, "4000", withRef("MM-3"))
	require.NoError(t, err)
	pay, err := f.cash(documents.BookBanking, documents.CatMemoPayment, documents.Debit, "10500", withRef("MM-3"))
	require.NoError(t, err)

	got := f.getMemo(memo.ID)
	assert.Len(t, got.AdvancePayments, 1)
	assert.Equal(t, documents.MemoPaid, got.Status)
	assert.True(t, got.Outstanding().IsZero(), "outstanding %s", got.Outstanding())
	assert.Equal(t, ledger.PaymentID(pay.ID), got.Payments[0].ID)

	// The memo's own supplier posting is untouched by advances.
	assert.Len(t, f.sourceEntries(ledger.SourceMemo, memo.ID), 1)
}

// =============================================================================
// CATEGORY ROUTING
// =============================================================================

func TestVehicleExpense_RoutesByOwnership(t *testing.T) {
	f := newFixture(t)

	own, err := f.cash(documents.BookBanking, documents.CatVehicleExpense, documents.Debit, "700",
		func(e *documents.CashEntry) { e.VehicleNo = f.own.VehicleNo })
	require.NoError(t, err)
	entries := f.sourceEntries(ledger.SourceBanking, own.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.LedgerVehicleExpense, entries[0].LedgerType)
	assert.Equal(t, f.own.VehicleNo, entries[0].ReferenceName)
	assert.True(t, entries[0].Debit.Equal(dec("700")))
	assert.Equal(t, ledger.EntryID(own.ID, ledger.SuffixVehicle), entries[0].ID)

	market, err := f.cash(documents.BookBanking, documents.CatVehicleExpense, documents.Debit, "700",
		func(e *documents.CashEntry) { e.VehicleNo = f.market.VehicleNo })
	require.NoError(t, err)
	assert.Empty(t, f.sourceEntries(ledger.SourceBanking, market.ID))

	_, err = f.cash(documents.BookBanking, documents.CatVehicleExpense, documents.Debit, "700", nil)
	var inv *ledger.InvalidCategoryError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "vehicle_expense", inv.Category)
}

func TestPartyCommission_SummaryNetsCutAgainstPayout(t *testing.T) {
	f := newFixture(t)
	slip := f.slip("LS-1", f.own)
	_, err := f.engine.CreateBill(f.ctx, &documents.Bill{
		BillNumber: "BL-1", LoadingSlipID: slip.ID, PartyID: f.party.ID, Date: day(time.April, 3),
		BillAmount: dec("20000"), PartyCommissionCut: dec("1000"),
	})
	require.NoError(t, err)
	payout, err := f.cash(documents.BookCashbook, documents.CatPartyCommission, documents.Debit, "400", withRef(f.party.ID))
	require.NoError(t, err)

	sum, err := f.engine.GetPartyCommissionSummary(f.ctx, ledger.CommissionFilter{PartyID: f.party.ID})
	require.NoError(t, err)
	assert.Equal(t, "Sharma Traders", sum.PartyName)
	assert.True(t, sum.TotalCredits.Equal(dec("1000")))
	assert.True(t, sum.TotalDebits.Equal(dec("400")))
	assert.True(t, sum.Balance.Equal(dec("600")))
	require.Len(t, sum.Entries, 2)
	assert.Equal(t, payout.ID, sum.Entries[1].CashbookEntryID)
	assert.Empty(t, sum.Entries[1].BankingID)
	assert.True(t, sum.Entries[1].Balance.Equal(dec("600")))

	bal, err := f.engine.GetBalance(f.ctx, ledger.LedgerCommission, "Sharma Traders", nil)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("600")))
}

func TestPartyOnAccount_ReducesWhatPartyOwes(t *testing.T) {
	f := newFixture(t)
	f.bill("BL-1", f.slip("LS-1", f.own).ID, "20000")

	_, err := f.cash(documents.BookBanking, documents.CatPartyOnAccount, documents.Credit, "5000",
		func(e *documents.CashEntry) { e.ReferenceName = "Sharma Traders" })
	require.NoError(t, err)

	bal, err := f.engine.GetBalance(f.ctx, ledger.LedgerParty, "Sharma Traders", nil)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("15000")), "balance %s", bal.Balance)
	assert.True(t, bal.TotalDebit.Equal(dec("5000")))
}

func TestSupplierPayment_ReducesPayable(t *testing.T) {
	f := newFixture(t)
	f.memo("MM-1", f.slip("LS-1", f.market).ID, "15000", "750", "250", "400", "100")

	_, err := f.cash(documents.BookBanking, documents.CatSupplierPayment, documents.Debit, "4000", withRef(f.supplier.ID))
	require.NoError(t, err)

	bal, err := f.engine.GetBalance(f.ctx, ledger.LedgerSupplier, "Gupta Roadways", nil)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("10500")), "balance %s", bal.Balance)
}

func TestGeneralCategories(t *testing.T) {
	f := newFixture(t)
	rent, err := f.cash(documents.BookBanking, documents.CatExpense, documents.Debit, "1200",
		func(e *documents.CashEntry) { e.ReferenceName = "Office Rent" })
	require.NoError(t, err)
	other, err := f.cash(documents.BookCashbook, documents.CatOther, documents.Credit, "50", nil)
	require.NoError(t, err)

	r := f.sourceEntries(ledger.SourceBanking, rent.ID)
	require.Len(t, r, 1)
	assert.Equal(t, ledger.LedgerGeneral, r[0].LedgerType)
	assert.Equal(t, "Office Rent", r[0].ReferenceName)
	assert.True(t, r[0].Debit.Equal(dec("1200")))

	o := f.sourceEntries(ledger.SourceCashbook, other.ID)
	require.Len(t, o, 1)
	assert.Equal(t, "other", o[0].ReferenceName)
	assert.True(t, o[0].Credit.Equal(dec("50")))
}

func TestMirrorGeneralLedger(t *testing.T) {
	f := newFixture(t, posting.WithMirrorGeneralLedger(true))
	f.bill("BL-7", f.slip("LS-1", f.own).ID, "20000")

	exp, err := f.cash(documents.BookBanking, documents.CatVehicleExpense, documents.Debit, "700",
		func(e *documents.CashEntry) { e.VehicleNo = f.own.VehicleNo })
	require.NoError(t, err)
	ids := byID(f.sourceEntries(ledger.SourceBanking, exp.ID))
	require.Len(t, ids, 2)
	mirror := ids[ledger.EntryID(exp.ID, ledger.SuffixMirror)]
	assert.Equal(t, ledger.LedgerGeneral, mirror.LedgerType)
	assert.Equal(t, "vehicle_expense", mirror.ReferenceName)
	assert.True(t, mirror.Debit.Equal(dec("700")))

	adv, err := f.cash(documents.BookBanking, documents.CatBillAdvance, documents.Credit, "100", withRef("BL-7"))
	require.NoError(t, err)
	assert.Empty(t, f.sourceEntries(ledger.SourceBanking, adv.ID), "nothing posted, nothing mirrored")

	gen, err := f.cash(documents.BookBanking, documents.CatExpense, documents.Debit, "10", nil)
	require.NoError(t, err)
	assert.Len(t, f.sourceEntries(ledger.SourceBanking, gen.ID), 1, "general lines are not mirrored")
}

func TestCashEntry_BookMismatchAndValidation(t *testing.T) {
	f := newFixture(t)
	entry, err := f.cash(documents.BookBanking, documents.CatExpense, documents.Debit, "10", nil)
	require.NoError(t, err)

	edited := *entry
	edited.Book = documents.BookCashbook
	_, err = f.engine.UpdateCashEntry(f.ctx, documents.BookBanking, entry.ID, &edited)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.cash(documents.BookBanking, documents.CatExpense, documents.Debit, "0", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.cash(documents.BookBanking, documents.CatExpense, "sideways", "10", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.cash("vault", documents.CatExpense, documents.Debit, "10", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)
}

// =============================================================================
// FUEL
// =============================================================================

func TestFuelWalletTopUp_CreditsWalletAndReverses(t *testing.T) {
	// GIVEN: A wallet holding 10000
	// WHEN: A cashbook fuel_wallet debit of 3000 tops it up, then is deleted
	// THEN: 13000 with a wallet_credit transaction, then back to 10000 with none

	f := newFixture(t)
	entry, err := f.cash(documents.BookCashbook, documents.CatFuelWallet, documents.Debit, "3000", withRef(f.wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, "13000.00", f.walletBalance())
	assert.Empty(t, f.allEntries())

	txn, err := f.engine.GetFuelTransaction(f.ctx, ledger.WalletCreditID(entry.ID))
	require.NoError(t, err)
	assert.Equal(t, documents.FuelWalletCredit, txn.Kind)
	assert.Equal(t, entry.ID, txn.SourceID)
	assert.True(t, txn.Amount.Equal(dec("3000")))

	edited := *entry
	edited.Amount = dec("2500")
	_, err = f.engine.UpdateCashEntry(f.ctx, documents.BookCashbook, entry.ID, &edited)
	require.NoError(t, err)
	assert.Equal(t, "12500.00", f.walletBalance())

	_, err = f.engine.DeleteCashEntry(f.ctx, documents.BookCashbook, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "10000.00", f.walletBalance())
	_, err = f.engine.GetFuelTransaction(f.ctx, ledger.WalletCreditID(entry.ID))
	assert.True(t, ledger.IsNotFound(err))
}

func TestFuelWalletTopUp_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.cash(documents.BookCashbook, documents.CatFuelWallet, documents.Credit, "3000", withRef(f.wallet.ID))
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.cash(documents.BookCashbook, documents.CatFuelWallet, documents.Debit, "3000", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.cash(documents.BookCashbook, documents.CatFuelWallet, documents.Debit, "3000", withRef("no-such-wallet"))
	assert.ErrorIs(t, err, ledger.ErrReferenceNotFound)
	assert.Equal(t, "10000.00", f.walletBalance())
}

func TestWalletCreditTransaction_OnlyEditableThroughCashEntry(t *testing.T) {
	f := newFixture(t)
	entry, err := f.cash(documents.BookCashbook, documents.CatFuelWallet, documents.Debit, "3000", withRef(f.wallet.ID))
	require.NoError(t, err)
	id := ledger.WalletCreditID(entry.ID)

	txn, err := f.engine.GetFuelTransaction(f.ctx, id)
	require.NoError(t, err)
	edited := *txn
	edited.Amount = dec("1")
	_, err = f.engine.UpdateFuelTransaction(f.ctx, id, &edited)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.engine.DeleteFuelTransaction(f.ctx, id)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)

	_, err = f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
		WalletID: f.wallet.ID, Kind: documents.FuelWalletCredit, Amount: dec("5"),
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)
	assert.Equal(t, "13000.00", f.walletBalance())
}

func TestFuelAllocation_DebitsWalletRoutesByOwnership(t *testing.T) {
	f := newFixture(t)

	own, err := f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
		WalletID: f.wallet.ID, VehicleNo: f.own.VehicleNo, Date: day(time.April, 6), Amount: dec("900"), Litres: dec("10"),
	})
	require.NoError(t, err)
	require.Len(t, own.Postings, 1)
	assert.Equal(t, ledger.LedgerVehicleExpense, own.Postings[0].LedgerType)
	assert.True(t, own.Postings[0].Debit.Equal(dec("900")))
	assert.Equal(t, "Fuel from IOCL Card", own.Postings[0].Description)
	assert.Equal(t, "9100.00", f.walletBalance())

	market, err := f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
		WalletID: f.wallet.ID, VehicleNo: f.market.VehicleNo, Date: day(time.April, 6), Amount: dec("600"),
	})
	require.NoError(t, err)
	assert.Empty(t, market.Postings)
	assert.Equal(t, "8500.00", f.walletBalance())

	edited := *own.Document
	edited.Amount = dec("500")
	_, err = f.engine.UpdateFuelTransaction(f.ctx, own.Document.ID, &edited)
	require.NoError(t, err)
	assert.Equal(t, "8900.00", f.walletBalance())

	_, err = f.engine.DeleteFuelTransaction(f.ctx, market.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, "9500.00", f.walletBalance())
}

func TestFuelAllocation_UnknownWalletOrVehicle(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
		WalletID: "nope", VehicleNo: f.own.VehicleNo, Amount: dec("1"),
	})
	assert.ErrorIs(t, err, ledger.ErrReferenceNotFound)

	_, err = f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
		WalletID: f.wallet.ID, VehicleNo: "GJ01AA0001", Amount: dec("1"),
	})
	assert.ErrorIs(t, err, ledger.ErrReferenceNotFound)
	assert.Equal(t, "10000.00", f.walletBalance())
}

func TestWalletAmounts_SameScaleOnEveryBackend(t *testing.T) {
	backends := map[string]func(t *testing.T) posting.TxStore{
		"memory": func(*testing.T) posting.TxStore { return memory.New() },
		"sqlite": func(t *testing.T) posting.TxStore {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			// GIVEN: a wallet holding 10000
			f := newFixtureWith(t, open(t))

			// WHEN: amounts finer than paise reach the wallet
			_, err := f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
				WalletID: f.wallet.ID, VehicleNo: f.own.VehicleNo, Date: day(time.April, 6), Amount: dec("100.005"),
			})
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

			_, err = f.cash(documents.BookBanking, documents.CatFuelWallet, documents.Debit, "250.125", withRef(f.wallet.ID))
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

			_, err = f.engine.CreateFuelWallet(f.ctx, &documents.FuelWallet{Name: "HPCL Card", Balance: dec("0.001")})
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

			// THEN: nothing moved, and two decimals are accepted
			assert.Equal(t, "10000.00", f.walletBalance())

			_, err = f.engine.CreateFuelTransaction(f.ctx, &documents.FuelTransaction{
				WalletID: f.wallet.ID, VehicleNo: f.own.VehicleNo, Date: day(time.April, 6), Amount: dec("100.50"),
			})
			require.NoError(t, err)
			assert.Equal(t, "9899.50", f.walletBalance())

			// AND: other categories keep full precision
			_, err = f.cash(documents.BookBanking, documents.CatExpense, documents.Debit, "12.345", nil)
			require.NoError(t, err)
		})
	}
}
