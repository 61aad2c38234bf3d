// Package memory provides an in-memory posting.TxStore (for tests and demos).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Documents are kept as JSON so callers never share memory with the store:
// every Get returns a fresh copy, exactly like a database would.
type row struct {
	version int64
	keys    documents.Keys
	payload []byte
}

type state struct {
	rows       map[documents.Collection]map[string]row
	index      map[documents.Collection]map[string]string // "b:"/"l:" + key -> id
	entries    map[string]ledger.Entry
	commission map[string]ledger.CommissionEntry
	stale      map[string]posting.StaleSource
}

func newState() *state {
	return &state{
		rows:       make(map[documents.Collection]map[string]row),
		index:      make(map[documents.Collection]map[string]string),
		entries:    make(map[string]ledger.Entry),
		commission: make(map[string]ledger.CommissionEntry),
		stale:      make(map[string]posting.StaleSource),
	}
}

func (s *state) clone() state {
	c := newState()
	for coll, rows := range s.rows {
		m := make(map[string]row, len(rows))
		for id, r := range rows {
			m[id] = r
		}
		c.rows[coll] = m
	}
	for coll, idx := range s.index {
		m := make(map[string]string, len(idx))
		for k, id := range idx {
			m[k] = id
		}
		c.index[coll] = m
	}
	for id, e := range s.entries {
		c.entries[id] = e
	}
	for id, e := range s.commission {
		c.commission[id] = e
	}
	for k, f := range s.stale {
		f.Keys = append([]ledger.AccountKey(nil), f.Keys...)
		c.stale[k] = f
	}
	return *c
}

// Store is safe for concurrent use. Writes inside WithTx are serialized and
// rolled back from a snapshot when fn fails.
type Store struct {
	*view
	mu sync.RWMutex
}

var _ posting.TxStore = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.view = &view{st: newState(), mu: &s.mu}
	return s
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &view{st: s.st, tx: true}

	if err := fn(ctx, tx); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.st = *newState()
	return nil
}

// view implements posting.Store over a state. Outside a transaction each call
// takes the store lock itself; inside one the lock is already held.
type view struct {
	st *state
	mu *sync.RWMutex
	tx bool
}

func (v *view) rlock() func() {
	if v.tx {
		return func() {}
	}
	v.mu.RLock()
	return v.mu.RUnlock
}

func (v *view) wlock() func() {
	if v.tx {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

// =============================================================================
// GENERIC DOCUMENT ACCESS
// =============================================================================

func indexKey(kind, key string) string { return kind + ":" + key }

func get[T any, P interface {
	*T
	documents.Document
}](st *state, coll documents.Collection, id string) (P, error) {
	r, ok := st.rows[coll][id]
	if !ok {
		return nil, nil
	}
	var doc T
	if err := json.Unmarshal(r.payload, &doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", coll, id, err)
	}
	return P(&doc), nil
}

func getBy[T any, P interface {
	*T
	documents.Document
}](st *state, coll documents.Collection, kind, key string) (P, error) {
	if key == "" {
		return nil, nil
	}
	id, ok := st.index[coll][indexKey(kind, key)]
	if !ok {
		return nil, nil
	}
	return get[T, P](st, coll, id)
}

func list[T any, P interface {
	*T
	documents.Document
}](st *state, coll documents.Collection) ([]T, error) {
	out := make([]T, 0, len(st.rows[coll]))
	for id := range st.rows[coll] {
		p, err := get[T, P](st, coll, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// put inserts (Version 0) or compare-and-swaps (Version > 0) doc and bumps
// its version in place.
func put(st *state, doc documents.Document) error {
	coll := doc.Collection()
	meta := doc.GetMeta()
	if meta.ID == "" {
		return fmt.Errorf("%w: %s document without id", ledger.ErrInvalidCategory, coll)
	}
	rows := st.rows[coll]
	if rows == nil {
		rows = make(map[string]row)
		st.rows[coll] = rows
	}
	idx := st.index[coll]
	if idx == nil {
		idx = make(map[string]string)
		st.index[coll] = idx
	}

	old, exists := rows[meta.ID]
	switch {
	case meta.Version == 0 && exists:
		return &ledger.DuplicateKeyError{Collection: string(coll), Key: meta.ID}
	case meta.Version > 0 && !exists:
		return &ledger.NotFoundError{Kind: string(coll), ID: meta.ID}
	case meta.Version > 0 && old.version != meta.Version:
		return fmt.Errorf("%w: %s %s stored version %d, expected %d",
			ledger.ErrConcurrentModification, coll, meta.ID, old.version, meta.Version)
	}

	keys := doc.Keys()
	for kind, key := range map[string]string{"b": keys.Business, "l": keys.Link} {
		if key == "" {
			continue
		}
		if owner, ok := idx[indexKey(kind, key)]; ok && owner != meta.ID {
			return &ledger.DuplicateKeyError{Collection: string(coll), Key: key}
		}
	}

	meta.Version++
	payload, err := json.Marshal(doc)
	if err != nil {
		meta.Version--
		return fmt.Errorf("encode %s %s: %w", coll, meta.ID, err)
	}
	if exists {
		unindex(idx, old.keys)
	}
	rows[meta.ID] = row{version: meta.Version, keys: keys, payload: payload}
	if keys.Business != "" {
		idx[indexKey("b", keys.Business)] = meta.ID
	}
	if keys.Link != "" {
		idx[indexKey("l", keys.Link)] = meta.ID
	}
	return nil
}

func unindex(idx map[string]string, keys documents.Keys) {
	if keys.Business != "" {
		delete(idx, indexKey("b", keys.Business))
	}
	if keys.Link != "" {
		delete(idx, indexKey("l", keys.Link))
	}
}

func remove(st *state, coll documents.Collection, id string) error {
	r, ok := st.rows[coll][id]
	if !ok {
		return &ledger.NotFoundError{Kind: string(coll), ID: id}
	}
	delete(st.rows[coll], id)
	unindex(st.index[coll], r.keys)
	return nil
}

// =============================================================================
// SOURCE DOCUMENTS
// =============================================================================

func (v *view) GetLoadingSlip(_ context.Context, id string) (*documents.LoadingSlip, error) {
	defer v.rlock()()
	return get[documents.LoadingSlip](v.st, documents.CollLoadingSlips, id)
}

func (v *view) GetLoadingSlipByNumber(_ context.Context, number string) (*documents.LoadingSlip, error) {
	defer v.rlock()()
	return getBy[documents.LoadingSlip](v.st, documents.CollLoadingSlips, "b", number)
}

func (v *view) SaveLoadingSlip(_ context.Context, slip *documents.LoadingSlip) error {
	defer v.wlock()()
	return put(v.st, slip)
}

func (v *view) DeleteLoadingSlip(_ context.Context, id string) error {
	defer v.wlock()()
	return remove(v.st, documents.CollLoadingSlips, id)
}

func (v *view) GetBill(_ context.Context, id string) (*documents.Bill, error) {
	defer v.rlock()()
	return get[documents.Bill](v.st, documents.CollBills, id)
}

func (v *view) GetBillByNumber(_ context.Context, number string) (*documents.Bill, error) {
	defer v.rlock()()
	return getBy[documents.Bill](v.st, documents.CollBills, "b", number)
}

func (v *view) GetBillByLoadingSlip(_ context.Context, slipID string) (*documents.Bill, error) {
	defer v.rlock()()
	return getBy[documents.Bill](v.st, documents.CollBills, "l", slipID)
}

func (v *view) SaveBill(_ context.Context, bill *documents.Bill) error {
	defer v.wlock()()
	return put(v.st, bill)
}

func (v *view) DeleteBill(_ context.Context, id string) error {
	defer v.wlock()()
	return remove(v.st, documents.CollBills, id)
}

func (v *view) GetMemo(_ context.Context, id string) (*documents.Memo, error) {
	defer v.rlock()()
	return get[documents.Memo](v.st, documents.CollMemos, id)
}

func (v *view) GetMemoByNumber(_ context.Context, number string) (*documents.Memo, error) {
	defer v.rlock()()
	return getBy[documents.Memo](v.st, documents.CollMemos, "b", number)
}

func (v *view) GetMemoByLoadingSlip(_ context.Context, slipID string) (*documents.Memo, error) {
	defer v.rlock()()
	return getBy[documents.Memo](v.st, documents.CollMemos, "l", slipID)
}

func (v *view) SaveMemo(_ context.Context, memo *documents.Memo) error {
	defer v.wlock()()
	return put(v.st, memo)
}

func (v *view) DeleteMemo(_ context.Context, id string) error {
	defer v.wlock()()
	return remove(v.st, documents.CollMemos, id)
}

func cashCollection(book documents.Book) documents.Collection {
	return (&documents.CashEntry{Book: book}).Collection()
}

func (v *view) GetCashEntry(_ context.Context, book documents.Book, id string) (*documents.CashEntry, error) {
	defer v.rlock()()
	return get[documents.CashEntry](v.st, cashCollection(book), id)
}

func (v *view) ListCashEntries(_ context.Context, book documents.Book, r *ledger.DateRange) ([]documents.CashEntry, error) {
	defer v.rlock()()
	all, err := list[documents.CashEntry](v.st, cashCollection(book))
	if err != nil || r == nil {
		return all, err
	}
	out := all[:0]
	for _, e := range all {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) SaveCashEntry(_ context.Context, entry *documents.CashEntry) error {
	defer v.wlock()()
	return put(v.st, entry)
}

func (v *view) DeleteCashEntry(_ context.Context, book documents.Book, id string) error {
	defer v.wlock()()
	return remove(v.st, cashCollection(book), id)
}

func (v *view) GetFuelTransaction(_ context.Context, id string) (*documents.FuelTransaction, error) {
	defer v.rlock()()
	return get[documents.FuelTransaction](v.st, documents.CollFuelTransactions, id)
}

func (v *view) SaveFuelTransaction(_ context.Context, ft *documents.FuelTransaction) error {
	defer v.wlock()()
	return put(v.st, ft)
}

func (v *view) DeleteFuelTransaction(_ context.Context, id string) error {
	defer v.wlock()()
	return remove(v.st, documents.CollFuelTransactions, id)
}

// =============================================================================
// MASTERS
// =============================================================================

func (v *view) GetParty(_ context.Context, id string) (*documents.Party, error) {
	defer v.rlock()()
	return get[documents.Party](v.st, documents.CollParties, id)
}

func (v *view) GetPartyByName(_ context.Context, name string) (*documents.Party, error) {
	defer v.rlock()()
	return getBy[documents.Party](v.st, documents.CollParties, "b", name)
}

func (v *view) SaveParty(_ context.Context, p *documents.Party) error {
	defer v.wlock()()
	return put(v.st, p)
}

func (v *view) GetSupplier(_ context.Context, id string) (*documents.Supplier, error) {
	defer v.rlock()()
	return get[documents.Supplier](v.st, documents.CollSuppliers, id)
}

func (v *view) GetSupplierByName(_ context.Context, name string) (*documents.Supplier, error) {
	defer v.rlock()()
	return getBy[documents.Supplier](v.st, documents.CollSuppliers, "b", name)
}

func (v *view) SaveSupplier(_ context.Context, s *documents.Supplier) error {
	defer v.wlock()()
	return put(v.st, s)
}

func (v *view) GetVehicle(_ context.Context, id string) (*documents.Vehicle, error) {
	defer v.rlock()()
	return get[documents.Vehicle](v.st, documents.CollVehicles, id)
}

func (v *view) GetVehicleByNumber(_ context.Context, vehicleNo string) (*documents.Vehicle, error) {
	defer v.rlock()()
	return getBy[documents.Vehicle](v.st, documents.CollVehicles, "b", vehicleNo)
}

func (v *view) SaveVehicle(_ context.Context, veh *documents.Vehicle) error {
	defer v.wlock()()
	return put(v.st, veh)
}

func (v *view) GetFuelWallet(_ context.Context, id string) (*documents.FuelWallet, error) {
	defer v.rlock()()
	return get[documents.FuelWallet](v.st, documents.CollFuelWallets, id)
}

// SaveFuelWallet keeps the stored balance on update; only
// AdjustFuelWalletBalance moves it.
func (v *view) SaveFuelWallet(_ context.Context, w *documents.FuelWallet) error {
	defer v.wlock()()
	if w.Version > 0 {
		stored, err := get[documents.FuelWallet](v.st, documents.CollFuelWallets, w.ID)
		if err != nil {
			return err
		}
		if stored != nil {
			w.Balance = stored.Balance
		}
	}
	return put(v.st, w)
}

// AdjustFuelWalletBalance is atomic because it holds the store lock for the
// whole read-add-write.
func (v *view) AdjustFuelWalletBalance(_ context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	defer v.wlock()()
	r, ok := v.st.rows[documents.CollFuelWallets][id]
	if !ok {
		return decimal.Zero, &ledger.ReferenceNotFoundError{Kind: "fuel_wallet", Key: id}
	}
	var w documents.FuelWallet
	if err := json.Unmarshal(r.payload, &w); err != nil {
		return decimal.Zero, err
	}
	w.Balance = w.Balance.Add(delta)
	payload, err := json.Marshal(&w)
	if err != nil {
		return decimal.Zero, err
	}
	r.payload = payload
	v.st.rows[documents.CollFuelWallets][id] = r
	return w.Balance, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (v *view) InsertEntries(_ context.Context, entries []ledger.Entry) error {
	defer v.wlock()()
	// Check all ids first (atomic check)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if _, ok := v.st.entries[e.ID]; ok || seen[e.ID] {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
	}
	for _, e := range entries {
		e.Balance = decimal.Zero
		v.st.entries[e.ID] = e
	}
	return nil
}

func (v *view) DeleteEntriesBySource(_ context.Context, src ledger.SourceRef) (int, error) {
	defer v.wlock()()
	n := 0
	for id, e := range v.st.entries {
		if e.SourceType == src.Type && e.SourceID == src.ID {
			delete(v.st.entries, id)
			n++
		}
	}
	return n, nil
}

func (v *view) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	defer v.rlock()()
	var out []ledger.Entry
	for _, e := range v.st.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return ledger.SortEntries(out), nil
}

func (v *view) InsertCommissionEntries(_ context.Context, entries []ledger.CommissionEntry) error {
	defer v.wlock()()
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if _, ok := v.st.commission[e.ID]; ok || seen[e.ID] {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
	}
	for _, e := range entries {
		e.Balance = decimal.Zero
		v.st.commission[e.ID] = e
	}
	return nil
}

func (v *view) DeleteCommissionBySource(_ context.Context, src ledger.SourceRef) (int, error) {
	defer v.wlock()()
	n := 0
	for id, e := range v.st.commission {
		if e.SourceType == src.Type && e.SourceID == src.ID {
			delete(v.st.commission, id)
			n++
		}
	}
	return n, nil
}

func (v *view) ListCommissionEntries(_ context.Context, f ledger.CommissionFilter) ([]ledger.CommissionEntry, error) {
	defer v.rlock()()
	var out []ledger.CommissionEntry
	for _, e := range v.st.commission {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return ledger.SortCommission(out), nil
}

// =============================================================================
// STALE SOURCES
// =============================================================================

func (v *view) FlagStale(_ context.Context, s posting.StaleSource) error {
	defer v.wlock()()
	k := s.Source.String()
	s.Keys = append([]ledger.AccountKey(nil), s.Keys...)
	if old, ok := v.st.stale[k]; ok {
		s.FlaggedAt = old.FlaggedAt
		s.Attempts = old.Attempts + 1
	} else {
		s.Attempts = 1
	}
	v.st.stale[k] = s
	return nil
}

func (v *view) ClearStale(_ context.Context, src ledger.SourceRef) error {
	defer v.wlock()()
	delete(v.st.stale, src.String())
	return nil
}

func (v *view) ListStale(_ context.Context) ([]posting.StaleSource, error) {
	defer v.rlock()()
	out := make([]posting.StaleSource, 0, len(v.st.stale))
	for _, s := range v.st.stale {
		out = append(out, s)
	}
	return out, nil
}
