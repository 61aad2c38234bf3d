package posting_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
	"github.com/brc/transport-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

// steppingClock advances one second per call so every write gets a distinct
// creation time.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t0 := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  posting.TxStore
	engine *posting.Engine

	party    *documents.Party
	supplier *documents.Supplier
	own      *documents.Vehicle
	market   *documents.Vehicle
	wallet   *documents.FuelWallet
}

func newFixture(t *testing.T, opts ...posting.Option) *fixture {
	return newFixtureWith(t, memory.New(), opts...)
}

// newFixtureWith seeds masters: one party, one supplier, an own and a market
// vehicle, and a fuel wallet holding 10000.
func newFixtureWith(t *testing.T, store posting.TxStore, opts ...posting.Option) *fixture {
	t.Helper()
	opts = append([]posting.Option{
		posting.WithClock(steppingClock()),
		posting.WithIDGenerator(sequentialIDs("doc")),
	}, opts...)
	f := &fixture{t: t, ctx: context.Background(), store: store}
	var err error
	f.engine, err = posting.NewEngine(store, opts...)
	require.NoError(t, err)

	f.party, err = f.engine.CreateParty(f.ctx, &documents.Party{Name: "Sharma Traders"})
	require.NoError(t, err)
	f.supplier, err = f.engine.CreateSupplier(f.ctx, &documents.Supplier{Name: "Gupta Roadways"})
	require.NoError(t, err)
	f.own, err = f.engine.CreateVehicle(f.ctx, &documents.Vehicle{VehicleNo: "MH12AB1234", OwnershipType: documents.OwnershipOwn})
	require.NoError(t, err)
	f.market, err = f.engine.CreateVehicle(f.ctx, &documents.Vehicle{
		VehicleNo: "MH14XY9876", OwnershipType: documents.OwnershipMarket,
		SupplierID: f.supplier.ID, SupplierName: f.supplier.Name,
	})
	require.NoError(t, err)
	f.wallet, err = f.engine.CreateFuelWallet(f.ctx, &documents.FuelWallet{Name: "IOCL Card", Balance: dec("10000")})
	require.NoError(t, err)
	return f
}

func (f *fixture) slip(number string, v *documents.Vehicle) *documents.LoadingSlip {
	f.t.Helper()
	res, err := f.engine.CreateLoadingSlip(f.ctx, &documents.LoadingSlip{
		SlipNumber: number,
		Date:       day(time.April, 1),
		VehicleNo:  v.VehicleNo,
		PartyID:    f.party.ID,
		PartyName:  f.party.Name,
		From:       "Pune",
		To:         "Nagpur",
		Freight:    dec("20000"),
	})
	require.NoError(f.t, err)
	return res.Document
}

func (f *fixture) bill(number, slipID, amount string) *documents.Bill {
	f.t.Helper()
	res, err := f.engine.CreateBill(f.ctx, &documents.Bill{
		BillNumber:    number,
		LoadingSlipID: slipID,
		PartyID:       f.party.ID,
		Date:          day(time.April, 3),
		BillAmount:    dec(amount),
	})
	require.NoError(f.t, err)
	return res.Document
}

func (f *fixture) memo(number, slipID string, freight, commission, mamool, detention, extra string) *documents.Memo {
	f.t.Helper()
	res, err := f.engine.CreateMemo(f.ctx, &documents.Memo{
		MemoNumber:    number,
		LoadingSlipID: slipID,
		Date:          day(time.April, 2),
		Freight:       dec(freight),
		Commission:    dec(commission),
		Mamool:        dec(mamool),
		Detention:     dec(detention),
		Extra:         dec(extra),
	})
	require.NoError(f.t, err)
	return res.Document
}

func (f *fixture) cash(book documents.Book, cat documents.Category, dir documents.Direction, amount string, edit func(*documents.CashEntry)) (*documents.CashEntry, error) {
	e := &documents.CashEntry{
		Book:     book,
		Date:     day(time.April, 5),
		Amount:   dec(amount),
		Type:     dir,
		Category: cat,
	}
	if edit != nil {
		edit(e)
	}
	res, err := f.engine.CreateCashEntry(f.ctx, e)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

func (f *fixture) entries(filter ledger.EntryFilter) []ledger.Entry {
	f.t.Helper()
	out, err := f.store.ListEntries(f.ctx, filter)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) sourceEntries(src ledger.SourceType, id string) []ledger.Entry {
	return f.entries(ledger.EntryFilter{SourceType: src, SourceID: id})
}

func (f *fixture) allEntries() []ledger.Entry { return f.entries(ledger.EntryFilter{}) }

// byID indexes entries for order-independent comparison.
func byID(entries []ledger.Entry) map[string]ledger.Entry {
	m := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return m
}

func ofType(entries []ledger.Entry, lt ledger.LedgerType) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range entries {
		if e.LedgerType == lt {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

var errDiskFull = errors.New("disk full")

// faultyStore fails InsertEntries inside transactions on demand. With
// noRollback set it also stops rolling back, standing in for a store whose
// rollback did not take.
type faultyStore struct {
	*memory.Store
	failInsert bool
	noRollback bool
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Store) error) error {
	if s.noRollback {
		return fn(ctx, faultyTx{Store: s.Store, parent: s})
	}
	return s.Store.WithTx(ctx, func(ctx context.Context, tx posting.Store) error {
		return fn(ctx, faultyTx{Store: tx, parent: s})
	})
}

type faultyTx struct {
	posting.Store
	parent *faultyStore
}

func (t faultyTx) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	if t.parent.failInsert {
		return errDiskFull
	}
	return t.Store.InsertEntries(ctx, entries)
}
