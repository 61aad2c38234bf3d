/*
Package sqlite provides a SQLite-backed posting.TxStore.

PURPOSE:
  Persists source documents, reference masters, ledger postings, the party
  commission ledger and stale flags in one SQLite database, so a mutation's
  document, postings and side effects commit in a single transaction.

KEY TABLES:
  documents:               Every source document and master as JSON, keyed by
                           (collection, id), with version and business/link keys
  fuel_wallets:            Wallet balances in minor units (atomic increments)
  ledger_entries:          Subsidiary ledger postings
  party_commission_ledger: Party commission postings
  stale_sources:           Sources whose postings could not be reconciled

INDEXES:
  - idx_documents_business: unique business key per collection (bill no., memo no., name)
  - idx_documents_link:     unique link key per collection (one bill/memo per slip)
  - idx_entries_source:     reversal by (source_type, source_id) (hot path)
  - idx_entries_account:    balance folds by (ledger_type, reference_name, date)

AMOUNTS:
  Decimals are stored as TEXT and parsed with shopspring/decimal. Wallet
  balances are INTEGER minor units so that
    UPDATE fuel_wallets SET balance_minor = balance_minor + ?
  is an atomic increment. Wallet amounts therefore carry at most two decimals.

WAL MODE:
  File databases are opened with WAL: readers do not block the single writer.
  ":memory:" databases are limited to one connection, since every connection
  to ":memory:" is a separate database.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := posting.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - posting/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements posting.TxStore using SQLite.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

var _ posting.TxStore = (*Store)(nil)

// conn implements posting.Store over a querier. The Store's conn runs each
// statement on its own; the conn handed to WithTx callbacks runs on the tx.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: &conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		business_key TEXT,
		link_key TEXT,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_business
		ON documents(collection, business_key) WHERE business_key IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_link
		ON documents(collection, link_key) WHERE link_key IS NOT NULL;

	CREATE TABLE IF NOT EXISTS fuel_wallets (
		id TEXT PRIMARY KEY,
		balance_minor INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		ledger_type TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		reference_name TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		vehicle_no TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source
		ON ledger_entries(source_type, source_id);
	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON ledger_entries(ledger_type, reference_name, date);

	CREATE TABLE IF NOT EXISTS party_commission_ledger (
		id TEXT PRIMARY KEY,
		party_id TEXT NOT NULL DEFAULT '',
		party_name TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		bill_number TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		bill_id TEXT NOT NULL DEFAULT '',
		banking_id TEXT NOT NULL DEFAULT '',
		cashbook_entry_id TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commission_source
		ON party_commission_ledger(source_type, source_id);
	CREATE INDEX IF NOT EXISTS idx_commission_party
		ON party_commission_ledger(party_id, date);

	CREATE TABLE IF NOT EXISTS stale_sources (
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		keys_json TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		flagged_at TEXT NOT NULL,
		PRIMARY KEY (source_type, source_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (posting.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"documents", "fuel_wallets", "ledger_entries", "party_commission_ledger", "stale_sources"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// GENERIC DOCUMENT ACCESS
// =============================================================================

const (
	byBusinessKey = "business_key"
	byLinkKey     = "link_key"
)

func getDoc[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, q querier, coll documents.Collection, id string) (P, error) {
	return scanDoc[T, P](q.QueryRowContext(ctx,
		`SELECT version, payload FROM documents WHERE collection = ? AND id = ?`, coll, id), coll, id)
}

// getDocBy looks a document up by one of its unique keys. column is one of
// the by* constants, never caller input.
func getDocBy[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, q querier, coll documents.Collection, column, key string) (P, error) {
	if key == "" {
		return nil, nil
	}
	return scanDoc[T, P](q.QueryRowContext(ctx,
		`SELECT version, payload FROM documents WHERE collection = ? AND `+column+` = ?`, coll, key), coll, key)
}

func scanDoc[T any, P interface {
	*T
	documents.Document
}](row *sql.Row, coll documents.Collection, key string) (P, error) {
	var (
		version int64
		payload string
	)
	if err := row.Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", coll, key, err)
	}
	var doc T
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", coll, key, err)
	}
	p := P(&doc)
	p.GetMeta().Version = version
	return p, nil
}

func listDocs[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, q querier, coll documents.Collection) ([]T, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT version, payload FROM documents WHERE collection = ? ORDER BY id`, coll)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var (
			version int64
			payload string
		)
		if err := rows.Scan(&version, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", coll, err)
		}
		var doc T
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll, err)
		}
		P(&doc).GetMeta().Version = version
		out = append(out, doc)
	}
	return out, rows.Err()
}

// put inserts (Version 0) or compare-and-swaps (Version > 0) doc and bumps
// its version in place.
func (c *conn) put(ctx context.Context, doc documents.Document) error {
	coll := doc.Collection()
	meta := doc.GetMeta()
	if meta.ID == "" {
		return fmt.Errorf("%w: %s document without id", ledger.ErrInvalidCategory, coll)
	}
	keys := doc.Keys()

	expected := meta.Version
	meta.Version++
	payload, err := json.Marshal(doc)
	if err != nil {
		meta.Version = expected
		return fmt.Errorf("encode %s %s: %w", coll, meta.ID, err)
	}

	if expected == 0 {
		_, err = c.q.ExecContext(ctx, `
			INSERT INTO documents (collection, id, version, business_key, link_key, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			coll, meta.ID, meta.Version, nullString(keys.Business), nullString(keys.Link),
			string(payload), formatTime(meta.UpdatedAt))
		if err != nil {
			meta.Version = expected
			return keyError(err, coll, meta.ID, keys)
		}
		return nil
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE documents
		SET version = ?, business_key = ?, link_key = ?, payload = ?, updated_at = ?
		WHERE collection = ? AND id = ? AND version = ?`,
		meta.Version, nullString(keys.Business), nullString(keys.Link), string(payload),
		formatTime(meta.UpdatedAt), coll, meta.ID, expected)
	if err != nil {
		meta.Version = expected
		return keyError(err, coll, meta.ID, keys)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	meta.Version = expected
	var stored int64
	err = c.q.QueryRowContext(ctx,
		`SELECT version FROM documents WHERE collection = ? AND id = ?`, coll, meta.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Kind: string(coll), ID: meta.ID}
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s stored version %d, expected %d",
		ledger.ErrConcurrentModification, coll, meta.ID, stored, expected)
}

func (c *conn) remove(ctx context.Context, coll documents.Collection, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, coll, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", coll, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: string(coll), ID: id}
	}
	return nil
}

// keyError maps unique constraint violations to *ledger.DuplicateKeyError.
func keyError(err error, coll documents.Collection, id string, keys documents.Keys) error {
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("failed to save %s %s: %w", coll, id, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "business_key"):
		return &ledger.DuplicateKeyError{Collection: string(coll), Key: keys.Business}
	case strings.Contains(msg, "link_key"):
		return &ledger.DuplicateKeyError{Collection: string(coll), Key: keys.Link}
	default:
		return &ledger.DuplicateKeyError{Collection: string(coll), Key: id}
	}
}

// =============================================================================
// SOURCE DOCUMENTS
// =============================================================================

func (c *conn) GetLoadingSlip(ctx context.Context, id string) (*documents.LoadingSlip, error) {
	return getDoc[documents.LoadingSlip](ctx, c.q, documents.CollLoadingSlips, id)
}

func (c *conn) GetLoadingSlipByNumber(ctx context.Context, number string) (*documents.LoadingSlip, error) {
	return getDocBy[documents.LoadingSlip](ctx, c.q, documents.CollLoadingSlips, byBusinessKey, number)
}

func (c *conn) SaveLoadingSlip(ctx context.Context, slip *documents.LoadingSlip) error {
	return c.put(ctx, slip)
}

func (c *conn) DeleteLoadingSlip(ctx context.Context, id string) error {
	return c.remove(ctx, documents.CollLoadingSlips, id)
}

func (c *conn) GetBill(ctx context.Context, id string) (*documents.Bill, error) {
	return getDoc[documents.Bill](ctx, c.q, documents.CollBills, id)
}

func (c *conn) GetBillByNumber(ctx context.Context, number string) (*documents.Bill, error) {
	return getDocBy[documents.Bill](ctx, c.q, documents.CollBills, byBusinessKey, number)
}

func (c *conn) GetBillByLoadingSlip(ctx context.Context, slipID string) (*documents.Bill, error) {
	return getDocBy[documents.Bill](ctx, c.q, documents.CollBills, byLinkKey, slipID)
}

func (c *conn) SaveBill(ctx context.Context, bill *documents.Bill) error {
	return c.put(ctx, bill)
}

func (c *conn) DeleteBill(ctx context.Context, id string) error {
	return c.remove(ctx, documents.CollBills, id)
}

func (c *conn) GetMemo(ctx context.Context, id string) (*documents.Memo, error) {
	return getDoc[documents.Memo](ctx, c.q, documents.CollMemos, id)
}

func (c *conn) GetMemoByNumber(ctx context.Context, number string) (*documents.Memo, error) {
	return getDocBy[documents.Memo](ctx, c.q, documents.CollMemos, byBusinessKey, number)
}

func (c *conn) GetMemoByLoadingSlip(ctx context.Context, slipID string) (*documents.Memo, error) {
	return getDocBy[documents.Memo](ctx, c.q, documents.CollMemos, byLinkKey, slipID)
}

func (c *conn) SaveMemo(ctx context.Context, memo *documents.Memo) error {
	return c.put(ctx, memo)
}

func (c *conn) DeleteMemo(ctx context.Context, id string) error {
	return c.remove(ctx, documents.CollMemos, id)
}

func cashCollection(book documents.Book) documents.Collection {
	return (&documents.CashEntry{Book: book}).Collection()
}

func (c *conn) GetCashEntry(ctx context.Context, book documents.Book, id string) (*documents.CashEntry, error) {
	return getDoc[documents.CashEntry](ctx, c.q, cashCollection(book), id)
}

func (c *conn) ListCashEntries(ctx context.Context, book documents.Book, r *ledger.DateRange) ([]documents.CashEntry, error) {
	all, err := listDocs[documents.CashEntry](ctx, c.q, cashCollection(book))
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

func (c *conn) SaveCashEntry(ctx context.Context, entry *documents.CashEntry) error {
	return c.put(ctx, entry)
}

func (c *conn) DeleteCashEntry(ctx context.Context, book documents.Book, id string) error {
	return c.remove(ctx, cashCollection(book), id)
}

func (c *conn) GetFuelTransaction(ctx context.Context, id string) (*documents.FuelTransaction, error) {
	return getDoc[documents.FuelTransaction](ctx, c.q, documents.CollFuelTransactions, id)
}

func (c *conn) SaveFuelTransaction(ctx context.Context, ft *documents.FuelTransaction) error {
	return c.put(ctx, ft)
}

func (c *conn) DeleteFuelTransaction(ctx context.Context, id string) error {
	return c.remove(ctx, documents.CollFuelTransactions, id)
}

// =============================================================================
// MASTERS
// =============================================================================

func (c *conn) GetParty(ctx context.Context, id string) (*documents.Party, error) {
	return getDoc[documents.Party](ctx, c.q, documents.CollParties, id)
}

func (c *conn) GetPartyByName(ctx context.Context, name string) (*documents.Party, error) {
	return getDocBy[documents.Party](ctx, c.q, documents.CollParties, byBusinessKey, name)
}

func (c *conn) SaveParty(ctx context.Context, p *documents.Party) error {
	return c.put(ctx, p)
}

func (c *conn) GetSupplier(ctx context.Context, id string) (*documents.Supplier, error) {
	return getDoc[documents.Supplier](ctx, c.q, documents.CollSuppliers, id)
}

func (c *conn) GetSupplierByName(ctx context.Context, name string) (*documents.Supplier, error) {
	return getDocBy[documents.Supplier](ctx, c.q, documents.CollSuppliers, byBusinessKey, name)
}

func (c *conn) SaveSupplier(ctx context.Context, s *documents.Supplier) error {
	return c.put(ctx, s)
}

func (c *conn) GetVehicle(ctx context.Context, id string) (*documents.Vehicle, error) {
	return getDoc[documents.Vehicle](ctx, c.q, documents.CollVehicles, id)
}

func (c *conn) GetVehicleByNumber(ctx context.Context, vehicleNo string) (*documents.Vehicle, error) {
	return getDocBy[documents.Vehicle](ctx, c.q, documents.CollVehicles, byBusinessKey, vehicleNo)
}

func (c *conn) SaveVehicle(ctx context.Context, v *documents.Vehicle) error {
	return c.put(ctx, v)
}

// =============================================================================
// FUEL WALLETS
// =============================================================================

func (c *conn) GetFuelWallet(ctx context.Context, id string) (*documents.FuelWallet, error) {
	w, err := getDoc[documents.FuelWallet](ctx, c.q, documents.CollFuelWallets, id)
	if err != nil || w == nil {
		return nil, err
	}
	var minor int64
	err = c.q.QueryRowContext(ctx, `SELECT balance_minor FROM fuel_wallets WHERE id = ?`, id).Scan(&minor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load wallet balance %s: %w", id, err)
	}
	w.Balance = fromMinor(minor)
	return w, nil
}

// SaveFuelWallet writes the opening balance on insert. Updates keep the
// stored balance; only AdjustFuelWalletBalance moves it.
func (c *conn) SaveFuelWallet(ctx context.Context, w *documents.FuelWallet) error {
	insert := w.Version == 0
	var opening int64
	if insert {
		var err error
		if opening, err = toMinor(w.Balance); err != nil {
			return err
		}
	}
	if err := c.put(ctx, w); err != nil {
		return err
	}
	if !insert {
		return nil
	}
	_, err := c.q.ExecContext(ctx, `INSERT INTO fuel_wallets (id, balance_minor) VALUES (?, ?)`, w.ID, opening)
	if err != nil {
		return fmt.Errorf("failed to open wallet balance %s: %w", w.ID, err)
	}
	return nil
}

func (c *conn) AdjustFuelWalletBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	d, err := toMinor(delta)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.q.ExecContext(ctx, `UPDATE fuel_wallets SET balance_minor = balance_minor + ? WHERE id = ?`, d, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust wallet %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return decimal.Zero, &ledger.ReferenceNotFoundError{Kind: "fuel_wallet", Key: id}
	}
	var minor int64
	if err := c.q.QueryRowContext(ctx, `SELECT balance_minor FROM fuel_wallets WHERE id = ?`, id).Scan(&minor); err != nil {
		return decimal.Zero, err
	}
	return fromMinor(minor), nil
}

func toMinor(v decimal.Decimal) (int64, error) {
	m := v.Shift(2)
	if !m.Equal(m.Truncate(0)) {
		return 0, fmt.Errorf("%w: wallet amount %s has more than two decimals", ledger.ErrInvalidAmount, v)
	}
	return m.IntPart(), nil
}

func fromMinor(m int64) decimal.Decimal { return decimal.New(m, -2) }

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (c *conn) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	for _, e := range entries {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO ledger_entries
			(id, ledger_type, reference_id, reference_name, date, description, debit, credit,
			 source_type, source_id, vehicle_no, seq, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.LedgerType, e.ReferenceID, e.ReferenceName, formatDate(e.Date), e.Description,
			e.Debit.String(), e.Credit.String(), e.SourceType, e.SourceID, e.VehicleNo, e.Seq,
			formatTime(e.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, e.ID)
			}
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (c *conn) DeleteEntriesBySource(ctx context.Context, src ledger.SourceRef) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE source_type = ? AND source_id = ?`, src.Type, src.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries of %s: %w", src, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *conn) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var w where
	w.eq("ledger_type", string(f.LedgerType))
	w.eq("reference_name", f.ReferenceName)
	w.eq("reference_id", f.ReferenceID)
	w.eq("vehicle_no", f.VehicleNo)
	w.eq("source_type", string(f.SourceType))
	w.eq("source_id", f.SourceID)
	w.dateRange("date", f.Range)

	rows, err := c.q.QueryContext(ctx, `
		SELECT id, ledger_type, reference_id, reference_name, date, description, debit, credit,
		       source_type, source_id, vehicle_no, seq, created_at
		FROM ledger_entries`+w.sql()+`
		ORDER BY date, seq, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                  ledger.Entry
			date, createdAt    string
			debit, credit      string
			ledgerType, source string
		)
		if err := rows.Scan(&e.ID, &ledgerType, &e.ReferenceID, &e.ReferenceName, &date, &e.Description,
			&debit, &credit, &source, &e.SourceID, &e.VehicleNo, &e.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.LedgerType = ledger.LedgerType(ledgerType)
		e.SourceType = ledger.SourceType(source)
		if e.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("entry %s debit: %w", e.ID, err)
		}
		if e.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("entry %s credit: %w", e.ID, err)
		}
		e.Date, _ = time.Parse(ledger.DateLayout, date)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ledger.SortEntries(out), nil
}

// =============================================================================
// PARTY COMMISSION LEDGER
// =============================================================================

func (c *conn) InsertCommissionEntries(ctx context.Context, entries []ledger.CommissionEntry) error {
	for _, e := range entries {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO party_commission_ledger
			(id, party_id, party_name, entry_type, amount, date, bill_number, description,
			 source_type, source_id, bill_id, banking_id, cashbook_entry_id, seq, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.PartyID, e.PartyName, e.EntryType, e.Amount.String(), formatDate(e.Date),
			e.BillNumber, e.Description, e.SourceType, e.SourceID, e.BillID, e.BankingID,
			e.CashbookEntryID, e.Seq, formatTime(e.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, e.ID)
			}
			return fmt.Errorf("failed to insert commission entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (c *conn) DeleteCommissionBySource(ctx context.Context, src ledger.SourceRef) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM party_commission_ledger WHERE source_type = ? AND source_id = ?`, src.Type, src.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete commission entries of %s: %w", src, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *conn) ListCommissionEntries(ctx context.Context, f ledger.CommissionFilter) ([]ledger.CommissionEntry, error) {
	var w where
	w.eq("party_id", f.PartyID)
	w.eq("party_name", f.PartyName)
	w.eq("source_type", string(f.SourceType))
	w.eq("source_id", f.SourceID)
	w.dateRange("date", f.Range)

	rows, err := c.q.QueryContext(ctx, `
		SELECT id, party_id, party_name, entry_type, amount, date, bill_number, description,
		       source_type, source_id, bill_id, banking_id, cashbook_entry_id, seq, created_at
		FROM party_commission_ledger`+w.sql()+`
		ORDER BY date, seq, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.CommissionEntry
	for rows.Next() {
		var (
			e                         ledger.CommissionEntry
			entryType, source, amount string
			date, createdAt           string
		)
		if err := rows.Scan(&e.ID, &e.PartyID, &e.PartyName, &entryType, &amount, &date, &e.BillNumber,
			&e.Description, &source, &e.SourceID, &e.BillID, &e.BankingID, &e.CashbookEntryID,
			&e.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan commission entry: %w", err)
		}
		e.EntryType = ledger.CommissionEntryType(entryType)
		e.SourceType = ledger.SourceType(source)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("commission entry %s amount: %w", e.ID, err)
		}
		e.Date, _ = time.Parse(ledger.DateLayout, date)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ledger.SortCommission(out), nil
}

// =============================================================================
// STALE SOURCES
// =============================================================================

func (c *conn) FlagStale(ctx context.Context, s posting.StaleSource) error {
	keys, err := json.Marshal(s.Keys)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO stale_sources (source_type, source_id, action, reason, keys_json, attempts, flagged_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (source_type, source_id) DO UPDATE SET
			action = excluded.action,
			reason = excluded.reason,
			keys_json = excluded.keys_json,
			attempts = stale_sources.attempts + 1`,
		s.Source.Type, s.Source.ID, s.Action, s.Reason, string(keys), formatTime(s.FlaggedAt))
	if err != nil {
		return fmt.Errorf("failed to flag %s: %w", s.Source, err)
	}
	return nil
}

func (c *conn) ClearStale(ctx context.Context, src ledger.SourceRef) error {
	_, err := c.q.ExecContext(ctx,
		`DELETE FROM stale_sources WHERE source_type = ? AND source_id = ?`, src.Type, src.ID)
	return err
}

func (c *conn) ListStale(ctx context.Context) ([]posting.StaleSource, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT source_type, source_id, action, reason, keys_json, attempts, flagged_at
		FROM stale_sources ORDER BY flagged_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sources: %w", err)
	}
	defer rows.Close()

	var out []posting.StaleSource
	for rows.Next() {
		var (
			s               posting.StaleSource
			source          string
			keys, flaggedAt string
		)
		if err := rows.Scan(&source, &s.Source.ID, &s.Action, &s.Reason, &keys, &s.Attempts, &flaggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stale source: %w", err)
		}
		s.Source.Type = ledger.SourceType(source)
		if err := json.Unmarshal([]byte(keys), &s.Keys); err != nil {
			return nil, fmt.Errorf("decode stale keys of %s: %w", s.Source, err)
		}
		s.FlaggedAt, _ = time.Parse(time.RFC3339Nano, flaggedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed conditions. Column names are constants.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.conds = append(w.conds, column+" = ?")
	w.args = append(w.args, value)
}

func (w *where) dateRange(column string, r *ledger.DateRange) {
	if r == nil {
		return
	}
	if !r.From.IsZero() {
		w.conds = append(w.conds, column+" >= ?")
		w.args = append(w.args, formatDate(r.From))
	}
	if !r.To.IsZero() {
		w.conds = append(w.conds, column+" <= ?")
		w.args = append(w.args, formatDate(r.To))
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func formatDate(t time.Time) string { return ledger.Day(t).Format(ledger.DateLayout) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
