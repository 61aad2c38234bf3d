package documents

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brc/transport-ledger/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC) }

func TestBill_NetAmountAndOutstanding(t *testing.T) {
	// GIVEN: a bill with every adjustment set
	b := &Bill{
		BillNumber: "BL-1", LoadingSlipID: "ls-1",
		BillAmount: dec("20000"), Detention: dec("500"), Extra: dec("300"), RTO: dec("200"),
		Mamool: dec("100"), TDS: dec("200"), Penalties: dec("50"), PartyCommissionCut: dec("1000"),
	}

	// THEN: the commission cut does not reduce what the party owes
	assert.True(t, b.NetAmount().Equal(dec("20650")), b.NetAmount().String())

	// WHEN: an advance and a receipt are recorded
	b.AddAdvance(AdvancePayment{ID: "bank-1-advance", Date: day(4), Amount: dec("5000")})
	b.AddReceipt(Settlement{ID: "bank-2-payment", Date: day(9), Amount: dec("10000")})

	// THEN
	assert.True(t, b.Outstanding().Equal(dec("5650")))
	assert.Equal(t, BillReceived, b.Status)
	require.NotNil(t, b.ReceivedDate)
	assert.True(t, b.ReceivedDate.Equal(day(9)))
	assert.True(t, b.HasInjected())
}

func TestBill_ReceiptsDriveStatus(t *testing.T) {
	b := &Bill{BillNumber: "BL-1", LoadingSlipID: "ls-1", BillAmount: dec("1000")}

	b.AddReceipt(Settlement{ID: "r1", Date: day(3), Amount: dec("400")})
	b.AddReceipt(Settlement{ID: "r2", Date: day(7), Amount: dec("600")})
	// replacing a receipt keeps one record per id
	b.AddReceipt(Settlement{ID: "r1", Date: day(5), Amount: dec("300")})

	require.Len(t, b.Receipts, 2)
	assert.True(t, b.ReceivedAmount.Equal(dec("900")))
	assert.True(t, b.ReceivedDate.Equal(day(7)))

	assert.True(t, b.RemoveReceipt("r2"))
	assert.False(t, b.RemoveReceipt("r2"))
	assert.True(t, b.ReceivedDate.Equal(day(5)))

	assert.True(t, b.RemoveReceipt("r1"))
	assert.Equal(t, BillPending, b.Status)
	assert.Nil(t, b.ReceivedDate)
	assert.True(t, b.ReceivedAmount.IsZero())
}

func TestBill_CarryInjected(t *testing.T) {
	prev := &Bill{}
	prev.AddAdvance(AdvancePayment{ID: "a", Amount: dec("100"), Date: day(2)})
	prev.AddReceipt(Settlement{ID: "p", Amount: dec("200"), Date: day(6)})

	// GIVEN: a submitted payload that tries to set injected records itself
	next := &Bill{
		BillNumber: "BL-1", LoadingSlipID: "ls-1",
		AdvancePayments: []AdvancePayment{{ID: "forged", Amount: dec("99999")}},
		Status:          BillReceived,
	}

	// WHEN
	next.CarryInjected(prev)

	// THEN: only the stored records survive
	require.Len(t, next.AdvancePayments, 1)
	assert.Equal(t, "a", next.AdvancePayments[0].ID)
	assert.True(t, next.ReceivedAmount.Equal(dec("200")))
	assert.Equal(t, BillReceived, next.Status)

	// AND: the copy is independent of prev
	next.RemoveAdvance("a")
	assert.Len(t, prev.AdvancePayments, 1)

	fresh := &Bill{Receipts: []Settlement{{ID: "x", Amount: dec("1")}}, Status: BillReceived}
	fresh.CarryInjected(nil)
	assert.Empty(t, fresh.Receipts)
	assert.Equal(t, BillPending, fresh.Status)
}

func TestMemo_NetAmountAndPayments(t *testing.T) {
	m := &Memo{
		MemoNumber: "MM-1", LoadingSlipID: "ls-1",
		Freight: dec("18000"), Commission: dec("900"), Mamool: dec("100"),
		Detention: dec("400"), Extra: dec("250"),
	}

	assert.True(t, m.NetFreight().Equal(dec("17000")))
	assert.True(t, m.NetAmount().Equal(dec("17650")))

	m.AddAdvance(AdvancePayment{ID: "cash-1-advance", Amount: dec("5000"), Date: day(2)})
	m.AddPayment(Settlement{ID: "bank-1-payment", Amount: dec("12650"), Date: day(10)})

	assert.True(t, m.Outstanding().IsZero())
	assert.Equal(t, MemoPaid, m.Status)
	p, ok := m.Payment("bank-1-payment")
	require.True(t, ok)
	assert.True(t, p.Amount.Equal(dec("12650")))

	assert.True(t, m.RemovePayment("bank-1-payment"))
	assert.Equal(t, MemoPending, m.Status)
	assert.True(t, m.RemoveAdvance("cash-1-advance"))
	assert.False(t, m.HasInjected())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  interface{ Validate() error }
		want error
	}{
		{"slip ok", &LoadingSlip{VehicleNo: "MH12AB1234", Freight: dec("100")}, nil},
		{"slip without vehicle", &LoadingSlip{}, ledger.ErrInvalidCategory},
		{"slip negative freight", &LoadingSlip{VehicleNo: "MH12AB1234", Freight: dec("-1")}, ledger.ErrInvalidAmount},
		{"bill ok", &Bill{BillNumber: "BL-1", LoadingSlipID: "ls"}, nil},
		{"bill without number", &Bill{LoadingSlipID: "ls"}, ledger.ErrInvalidCategory},
		{"bill without slip", &Bill{BillNumber: "BL-1"}, ledger.ErrInvalidCategory},
		{"bill negative tds", &Bill{BillNumber: "BL-1", LoadingSlipID: "ls", TDS: dec("-5")}, ledger.ErrInvalidAmount},
		{"memo ok", &Memo{MemoNumber: "MM-1", LoadingSlipID: "ls"}, nil},
		{"memo negative commission", &Memo{MemoNumber: "MM-1", LoadingSlipID: "ls", Commission: dec("-1")}, ledger.ErrInvalidAmount},
		{"cash ok", &CashEntry{Book: BookBanking, Type: Credit, Category: CatOther, Amount: dec("1")}, nil},
		{"cash unknown book", &CashEntry{Book: "safe", Type: Credit, Category: CatOther, Amount: dec("1")}, ledger.ErrInvalidCategory},
		{"cash bad direction", &CashEntry{Book: BookCashbook, Type: "in", Category: CatOther, Amount: dec("1")}, ledger.ErrInvalidCategory},
		{"cash no category", &CashEntry{Book: BookCashbook, Type: Debit, Amount: dec("1")}, ledger.ErrInvalidCategory},
		{"cash zero amount", &CashEntry{Book: BookCashbook, Type: Debit, Category: CatExpense}, ledger.ErrInvalidAmount},
		{"fuel ok", &FuelTransaction{WalletID: "w", VehicleNo: "MH12AB1234", Amount: dec("10")}, nil},
		{"fuel wallet credit submitted", &FuelTransaction{Kind: FuelWalletCredit, WalletID: "w", Amount: dec("10")}, ledger.ErrInvalidCategory},
		{"fuel without vehicle", &FuelTransaction{WalletID: "w", Amount: dec("10")}, ledger.ErrInvalidCategory},
		{"fuel three decimals", &FuelTransaction{WalletID: "w", VehicleNo: "MH12AB1234", Amount: dec("10.001")}, ledger.ErrInvalidAmount},
		{"fuel two decimals", &FuelTransaction{WalletID: "w", VehicleNo: "MH12AB1234", Amount: dec("10.01")}, nil},
		{"wallet top-up three decimals", &CashEntry{Book: BookBanking, Type: Debit, Category: CatFuelWallet, Amount: dec("99.999")}, ledger.ErrInvalidAmount},
		{"expense three decimals", &CashEntry{Book: BookBanking, Type: Debit, Category: CatExpense, Amount: dec("99.999")}, nil},
		{"fuel negative litres", &FuelTransaction{WalletID: "w", VehicleNo: "MH12AB1234", Amount: dec("10"), Litres: dec("-1")}, ledger.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFuelTransaction_DefaultsToAllocation(t *testing.T) {
	f := &FuelTransaction{WalletID: "w", VehicleNo: "MH12AB1234", Amount: dec("10")}
	require.NoError(t, f.Validate())
	assert.Equal(t, FuelAllocation, f.Kind)
}

func TestCashEntry_BookMapping(t *testing.T) {
	bank := &CashEntry{Book: BookBanking, Type: Debit, Amount: dec("250")}
	cash := &CashEntry{Book: BookCashbook, Type: Credit, Amount: dec("250"), Mode: "upi"}

	assert.Equal(t, CollBankingEntries, bank.Collection())
	assert.Equal(t, CollCashbookEntries, cash.Collection())
	assert.Equal(t, ledger.SourceBanking, bank.SourceType())
	assert.Equal(t, ledger.SourceCashbook, cash.SourceType())
	assert.True(t, bank.Signed().Equal(dec("-250")))
	assert.True(t, cash.Signed().Equal(dec("250")))
	assert.Equal(t, "bank", bank.PaymentMode())
	assert.Equal(t, "upi", cash.PaymentMode())
	assert.Equal(t, "cash", (&CashEntry{Book: BookCashbook}).PaymentMode())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, Keys{Business: "BL-1", Link: "ls-1"}, (&Bill{BillNumber: "BL-1", LoadingSlipID: "ls-1"}).Keys())
	assert.Equal(t, Keys{Business: "MM-1", Link: "ls-1"}, (&Memo{MemoNumber: "MM-1", LoadingSlipID: "ls-1"}).Keys())
	assert.Equal(t, Keys{Business: "LS-1"}, (&LoadingSlip{SlipNumber: "LS-1"}).Keys())
	assert.Equal(t, Keys{Business: "MH12AB1234"}, (&Vehicle{VehicleNo: "MH12AB1234"}).Keys())
	assert.Equal(t, Keys{}, (&CashEntry{}).Keys())
	assert.True(t, (&Vehicle{OwnershipType: OwnershipOwn}).IsOwn())
}
