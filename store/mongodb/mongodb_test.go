package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

func d128(t *testing.T, s string) primitive.Decimal128 {
	t.Helper()
	v, err := primitive.ParseDecimal128(s)
	require.NoError(t, err)
	return v
}

func ns(mt *mtest.T, coll string) string {
	return mt.DB.Name() + "." + coll
}

func TestDocuments_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing document is nil", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "bills"), mtest.FirstBatch))

		bill, err := s.GetBill(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, bill)
	})

	mt.Run("empty key never queries", func(mt *mtest.T) {
		s := New(mt.DB)
		bill, err := s.GetBillByLoadingSlip(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, bill)
	})

	mt.Run("decode payload and version", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "bills"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "bill-1"},
			{Key: "version", Value: int64(2)},
			{Key: "business_key", Value: "BL-1"},
			{Key: "doc", Value: bson.D{
				{Key: "id", Value: "bill-1"},
				{Key: "bill_number", Value: "BL-1"},
				{Key: "bill_amount", Value: "20000.50"},
				{Key: "status", Value: "pending"},
			}},
		}))

		bill, err := s.GetBillByNumber(context.Background(), "BL-1")
		require.NoError(t, err)
		require.NotNil(t, bill)
		assert.Equal(t, "bill-1", bill.ID)
		assert.Equal(t, int64(2), bill.Version)
		assert.True(t, bill.BillAmount.Equal(decimal.RequireFromString("20000.50")))
	})

	mt.Run("insert bumps version", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		bill := &documents.Bill{BillNumber: "BL-1", LoadingSlipID: "slip-1"}
		bill.ID = "bill-1"
		require.NoError(t, s.SaveBill(context.Background(), bill))
		assert.Equal(t, int64(1), bill.Version)
	})

	mt.Run("duplicate business key", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: `E11000 duplicate key error collection: test.bills index: business_key_1 dup key: { business_key: "BL-1" }`,
		}))

		bill := &documents.Bill{BillNumber: "BL-1", LoadingSlipID: "slip-2"}
		bill.ID = "bill-2"
		err := s.SaveBill(context.Background(), bill)

		var dup *ledger.DuplicateKeyError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "BL-1", dup.Key)
		assert.Equal(t, "bills", dup.Collection)
		assert.Equal(t, int64(0), bill.Version)
	})

	mt.Run("stale version", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt, "bills"), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "bill-1"},
				{Key: "version", Value: int64(5)},
			}),
		)

		bill := &documents.Bill{BillNumber: "BL-1", LoadingSlipID: "slip-1"}
		bill.ID, bill.Version = "bill-1", 4
		err := s.SaveBill(context.Background(), bill)
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
		assert.Equal(t, int64(4), bill.Version)
	})

	mt.Run("update of deleted document", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt, "bills"), mtest.FirstBatch),
		)

		bill := &documents.Bill{BillNumber: "BL-1"}
		bill.ID, bill.Version = "bill-1", 1
		err := s.SaveBill(context.Background(), bill)
		assert.True(t, ledger.IsNotFound(err))
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := s.DeleteMemo(context.Background(), "memo-1")
		assert.True(t, ledger.IsNotFound(err))
	})
}

func TestFuelWallet_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("adjust returns new balance", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: "wallet-1"},
			{Key: "balance", Value: d128(t, "12500.50")},
		}}))

		bal, err := s.AdjustFuelWalletBalance(context.Background(), "wallet-1", decimal.RequireFromString("2500.50"))
		require.NoError(t, err)
		assert.Equal(t, "12500.50", bal.StringFixed(2))
	})

	mt.Run("adjust unknown wallet", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := s.AdjustFuelWalletBalance(context.Background(), "ghost", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ledger.ErrReferenceNotFound)
	})

	mt.Run("get overlays stored balance", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "fuel_wallets"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "wallet-1"},
			{Key: "version", Value: int64(3)},
			{Key: "doc", Value: bson.D{{Key: "name", Value: "IOCL Card"}, {Key: "balance", Value: "10000"}}},
			{Key: "balance", Value: d128(t, "8500")},
		}))

		w, err := s.GetFuelWallet(context.Background(), "wallet-1")
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Equal(t, "IOCL Card", w.Name)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(8500)))
	})
}

func TestEntries_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	date := time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC)

	mt.Run("duplicate entry id", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error collection: test.ledger_entries index: _id_",
		}))

		err := s.InsertEntries(context.Background(), []ledger.Entry{{
			ID: "bill-1:main", LedgerType: ledger.LedgerParty, ReferenceName: "Sharma Traders",
			Date: date, Credit: decimal.NewFromInt(1000), SourceType: ledger.SourceBill, SourceID: "bill-1",
		}})
		assert.ErrorIs(t, err, ledger.ErrDuplicateEntry)
	})

	mt.Run("delete by source counts", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		n, err := s.DeleteEntriesBySource(context.Background(), ledger.SourceRef{Type: ledger.SourceBill, ID: "bill-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	mt.Run("list sorts and parses amounts", func(mt *mtest.T) {
		s := New(mt.DB)
		created := time.Date(2025, time.April, 3, 9, 0, 0, 0, time.UTC)
		row := func(id string, seq int, credit string) bson.D {
			return bson.D{
				{Key: "_id", Value: id},
				{Key: "ledger_type", Value: "party"},
				{Key: "reference_name", Value: "Sharma Traders"},
				{Key: "date", Value: date},
				{Key: "debit", Value: d128(t, "0")},
				{Key: "credit", Value: d128(t, credit)},
				{Key: "source_type", Value: "bill"},
				{Key: "source_id", Value: "bill-1"},
				{Key: "seq", Value: seq},
				{Key: "created_at", Value: created},
			}
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, collEntries), mtest.FirstBatch,
			row("bill-1:tds", 2, "0"), row("bill-1:main", 1, "20000")))

		entries, err := s.ListEntries(context.Background(), ledger.EntryFilter{LedgerType: ledger.LedgerParty})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "bill-1:main", entries[0].ID)
		assert.True(t, entries[0].Credit.Equal(decimal.NewFromInt(20000)))
		assert.Equal(t, ledger.SourceBill, entries[0].SourceType)
	})
}

func TestStale_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("flag and list", func(mt *mtest.T) {
		s := New(mt.DB)
		flagged := time.Date(2025, time.April, 3, 9, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt, collStale), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "bill/bill-1"},
				{Key: "source_type", Value: "bill"},
				{Key: "source_id", Value: "bill-1"},
				{Key: "action", Value: "update"},
				{Key: "reason", Value: "disk full"},
				{Key: "keys", Value: bson.A{bson.D{{Key: "ledger_type", Value: "party"}, {Key: "name", Value: "Sharma Traders"}}}},
				{Key: "attempts", Value: 1},
				{Key: "flagged_at", Value: flagged},
			}),
		)

		ctx := context.Background()
		require.NoError(t, s.FlagStale(ctx, posting.StaleSource{
			Source: ledger.SourceRef{Type: ledger.SourceBill, ID: "bill-1"},
			Action: "update", Reason: "disk full", FlaggedAt: flagged,
		}))

		flags, err := s.ListStale(ctx)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, ledger.SourceRef{Type: ledger.SourceBill, ID: "bill-1"}, flags[0].Source)
		assert.Equal(t, 1, flags[0].Attempts)
		assert.True(t, flags[0].Touches(ledger.LedgerParty, "Sharma Traders"))
		assert.False(t, flags[0].Touches(ledger.LedgerSupplier, ""))
	})
}
