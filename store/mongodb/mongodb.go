/*
Package mongodb provides a MongoDB-backed posting.TxStore.

LAYOUT:
  One collection per document collection (loading_slips, bills, memos,
  banking_entries, cashbook_entries, fuel_wallets, fuel_transactions,
  parties, suppliers, vehicles), plus ledger_entries,
  party_commission_ledger and stale_sources.

  Document rows:
    { _id, version, business_key?, link_key?, doc: {...}, balance? }
  doc is the document's JSON form converted to BSON. Fuel wallets carry their
  balance as a top-level Decimal128 so it can be moved with $inc.

TRANSACTIONS:
  WithTx runs fn inside session.WithTransaction and hands it the same store
  with the session context, so every call inside fn joins the transaction.
  Multi-document transactions need a replica set.

INDEXES:
  EnsureIndexes creates the unique partial business_key/link_key indexes and
  the (source_type, source_id) reversal indexes. Run it once at startup.
*/
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

const (
	collEntries    = "ledger_entries"
	collCommission = "party_commission_ledger"
	collStale      = "stale_sources"
)

var docCollections = []documents.Collection{
	documents.CollLoadingSlips, documents.CollBills, documents.CollMemos,
	documents.CollBankingEntries, documents.CollCashbookEntries,
	documents.CollFuelWallets, documents.CollFuelTransactions,
	documents.CollParties, documents.CollSuppliers, documents.CollVehicles,
}

// Config holds MongoDB connection configuration
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store implements posting.TxStore on a MongoDB database.
type Store struct {
	db *mongo.Database
}

var _ posting.TxStore = (*Store)(nil)

// New wraps an existing database handle. It does not touch the network.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Open connects, pings the primary and returns a store on cfg.Database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return New(client.Database(cfg.Database)), nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes every query path relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	stringKey := func(field string) *options.IndexOptions {
		return options.Index().
			SetUnique(true).
			SetName(field + "_1").
			SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}})
	}
	for _, coll := range docCollections {
		_, err := s.db.Collection(string(coll)).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "business_key", Value: 1}}, Options: stringKey("business_key")},
			{Keys: bson.D{{Key: "link_key", Value: 1}}, Options: stringKey("link_key")},
		})
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}

	bySource := mongo.IndexModel{Keys: bson.D{{Key: "source_type", Value: 1}, {Key: "source_id", Value: 1}}}
	if _, err := s.db.Collection(collEntries).Indexes().CreateMany(ctx, []mongo.IndexModel{
		bySource,
		{Keys: bson.D{{Key: "ledger_type", Value: 1}, {Key: "reference_name", Value: 1}, {Key: "date", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collEntries, err)
	}
	if _, err := s.db.Collection(collCommission).Indexes().CreateMany(ctx, []mongo.IndexModel{
		bySource,
		{Keys: bson.D{{Key: "party_id", Value: 1}, {Key: "date", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collCommission, err)
	}
	return nil
}

// WithTx executes fn within a multi-document transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Store) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	names := []string{collEntries, collCommission, collStale}
	for _, c := range docCollections {
		names = append(names, string(c))
	}
	for _, name := range names {
		if _, err := s.db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// GENERIC DOCUMENT ACCESS
// =============================================================================

type docRow struct {
	ID      string               `bson:"_id"`
	Version int64                `bson:"version"`
	Doc     bson.Raw             `bson:"doc"`
	Balance primitive.Decimal128 `bson:"balance,omitempty"`
}

func decode[T any, P interface {
	*T
	documents.Document
}](r docRow) (P, error) {
	raw, err := bson.MarshalExtJSON(r.Doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	p := P(&doc)
	p.GetMeta().Version = r.Version
	return p, nil
}

func (s *Store) findRow(ctx context.Context, coll documents.Collection, filter bson.M) (*docRow, error) {
	var r docRow
	err := s.db.Collection(string(coll)).FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", coll, err)
	}
	return &r, nil
}

func getDoc[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, s *Store, coll documents.Collection, filter bson.M) (P, error) {
	r, err := s.findRow(ctx, coll, filter)
	if err != nil || r == nil {
		return nil, err
	}
	return decode[T, P](*r)
}

func byID(id string) bson.M { return bson.M{"_id": id} }

// byKey returns a filter on a unique key, or nil when key is empty.
func byKey(field, key string) bson.M {
	if key == "" {
		return nil
	}
	return bson.M{field: key}
}

func getDocBy[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, s *Store, coll documents.Collection, field, key string) (P, error) {
	filter := byKey(field, key)
	if filter == nil {
		return nil, nil
	}
	return getDoc[T, P](ctx, s, coll, filter)
}

func listDocs[T any, P interface {
	*T
	documents.Document
}](ctx context.Context, s *Store, coll documents.Collection) ([]T, error) {
	cur, err := s.db.Collection(string(coll)).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	var rows []docRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", coll, err)
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		p, err := decode[T, P](r)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// put inserts (Version 0) or compare-and-swaps (Version > 0) doc and bumps
// its version in place. onInsert adds top-level fields to new rows only.
func (s *Store) put(ctx context.Context, doc documents.Document, onInsert bson.M) error {
	coll := doc.Collection()
	meta := doc.GetMeta()
	if meta.ID == "" {
		return fmt.Errorf("%w: %s document without id", ledger.ErrInvalidCategory, coll)
	}
	keys := doc.Keys()

	expected := meta.Version
	meta.Version++
	body, err := toBSON(doc)
	if err != nil {
		meta.Version = expected
		return fmt.Errorf("encode %s %s: %w", coll, meta.ID, err)
	}
	c := s.db.Collection(string(coll))

	if expected == 0 {
		row := bson.M{"_id": meta.ID, "version": meta.Version, "doc": body}
		if keys.Business != "" {
			row["business_key"] = keys.Business
		}
		if keys.Link != "" {
			row["link_key"] = keys.Link
		}
		for k, v := range onInsert {
			row[k] = v
		}
		if _, err := c.InsertOne(ctx, row); err != nil {
			meta.Version = expected
			return keyError(err, coll, meta.ID, keys)
		}
		return nil
	}

	set := bson.M{"version": meta.Version, "doc": body}
	unset := bson.M{}
	for field, key := range map[string]string{"business_key": keys.Business, "link_key": keys.Link} {
		if key == "" {
			unset[field] = ""
		} else {
			set[field] = key
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := c.UpdateOne(ctx, bson.M{"_id": meta.ID, "version": expected}, update)
	if err != nil {
		meta.Version = expected
		return keyError(err, coll, meta.ID, keys)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	meta.Version = expected
	stored, err := s.findRow(ctx, coll, byID(meta.ID))
	if err != nil {
		return err
	}
	if stored == nil {
		return &ledger.NotFoundError{Kind: string(coll), ID: meta.ID}
	}
	return fmt.Errorf("%w: %s %s stored version %d, expected %d",
		ledger.ErrConcurrentModification, coll, meta.ID, stored.Version, expected)
}

func (s *Store) remove(ctx context.Context, coll documents.Collection, id string) error {
	res, err := s.db.Collection(string(coll)).DeleteOne(ctx, byID(id))
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", coll, id, err)
	}
	if res.DeletedCount == 0 {
		return &ledger.NotFoundError{Kind: string(coll), ID: id}
	}
	return nil
}

// toBSON converts a document's JSON form to BSON so the stored shape matches
// the API's.
func toBSON(doc documents.Document) (bson.D, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func keyError(err error, coll documents.Collection, id string, keys documents.Keys) error {
	if !mongo.IsDuplicateKeyError(err) {
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

func (s *Store) GetLoadingSlip(ctx context.Context, id string) (*documents.LoadingSlip, error) {
	return getDoc[documents.LoadingSlip](ctx, s, documents.CollLoadingSlips, byID(id))
}

func (s *Store) GetLoadingSlipByNumber(ctx context.Context, number string) (*documents.LoadingSlip, error) {
	return getDocBy[documents.LoadingSlip](ctx, s, documents.CollLoadingSlips, "business_key", number)
}

func (s *Store) SaveLoadingSlip(ctx context.Context, slip *documents.LoadingSlip) error {
	return s.put(ctx, slip, nil)
}

func (s *Store) DeleteLoadingSlip(ctx context.Context, id string) error {
	return s.remove(ctx, documents.CollLoadingSlips, id)
}

func (s *Store) GetBill(ctx context.Context, id string) (*documents.Bill, error) {
	return getDoc[documents.Bill](ctx, s, documents.CollBills, byID(id))
}

func (s *Store) GetBillByNumber(ctx context.Context, number string) (*documents.Bill, error) {
	return getDocBy[documents.Bill](ctx, s, documents.CollBills, "business_key", number)
}

func (s *Store) GetBillByLoadingSlip(ctx context.Context, slipID string) (*documents.Bill, error) {
	return getDocBy[documents.Bill](ctx, s, documents.CollBills, "link_key", slipID)
}

func (s *Store) SaveBill(ctx context.Context, bill *documents.Bill) error {
	return s.put(ctx, bill, nil)
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	return s.remove(ctx, documents.CollBills, id)
}

func (s *Store) GetMemo(ctx context.Context, id string) (*documents.Memo, error) {
	return getDoc[documents.Memo](ctx, s, documents.CollMemos, byID(id))
}

func (s *Store) GetMemoByNumber(ctx context.Context, number string) (*documents.Memo, error) {
	return getDocBy[documents.Memo](ctx, s, documents.CollMemos, "business_key", number)
}

func (s *Store) GetMemoByLoadingSlip(ctx context.Context, slipID string) (*documents.Memo, error) {
	return getDocBy[documents.Memo](ctx, s, documents.CollMemos, "link_key", slipID)
}

func (s *Store) SaveMemo(ctx context.Context, memo *documents.Memo) error {
	return s.put(ctx, memo, nil)
}

func (s *Store) DeleteMemo(ctx context.Context, id string) error {
	return s.remove(ctx, documents.CollMemos, id)
}

func cashCollection(book documents.Book) documents.Collection {
	return (&documents.CashEntry{Book: book}).Collection()
}

func (s *Store) GetCashEntry(ctx context.Context, book documents.Book, id string) (*documents.CashEntry, error) {
	return getDoc[documents.CashEntry](ctx, s, cashCollection(book), byID(id))
}

func (s *Store) ListCashEntries(ctx context.Context, book documents.Book, r *ledger.DateRange) ([]documents.CashEntry, error) {
	all, err := listDocs[documents.CashEntry](ctx, s, cashCollection(book))
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

func (s *Store) SaveCashEntry(ctx context.Context, entry *documents.CashEntry) error {
	return s.put(ctx, entry, nil)
}

func (s *Store) DeleteCashEntry(ctx context.Context, book documents.Book, id string) error {
	return s.remove(ctx, cashCollection(book), id)
}

func (s *Store) GetFuelTransaction(ctx context.Context, id string) (*documents.FuelTransaction, error) {
	return getDoc[documents.FuelTransaction](ctx, s, documents.CollFuelTransactions, byID(id))
}

func (s *Store) SaveFuelTransaction(ctx context.Context, ft *documents.FuelTransaction) error {
	return s.put(ctx, ft, nil)
}

func (s *Store) DeleteFuelTransaction(ctx context.Context, id string) error {
	return s.remove(ctx, documents.CollFuelTransactions, id)
}

// =============================================================================
// MASTERS
// =============================================================================

func (s *Store) GetParty(ctx context.Context, id string) (*documents.Party, error) {
	return getDoc[documents.Party](ctx, s, documents.CollParties, byID(id))
}

func (s *Store) GetPartyByName(ctx context.Context, name string) (*documents.Party, error) {
	return getDocBy[documents.Party](ctx, s, documents.CollParties, "business_key", name)
}

func (s *Store) SaveParty(ctx context.Context, p *documents.Party) error {
	return s.put(ctx, p, nil)
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*documents.Supplier, error) {
	return getDoc[documents.Supplier](ctx, s, documents.CollSuppliers, byID(id))
}

func (s *Store) GetSupplierByName(ctx context.Context, name string) (*documents.Supplier, error) {
	return getDocBy[documents.Supplier](ctx, s, documents.CollSuppliers, "business_key", name)
}

func (s *Store) SaveSupplier(ctx context.Context, sup *documents.Supplier) error {
	return s.put(ctx, sup, nil)
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*documents.Vehicle, error) {
	return getDoc[documents.Vehicle](ctx, s, documents.CollVehicles, byID(id))
}

func (s *Store) GetVehicleByNumber(ctx context.Context, vehicleNo string) (*documents.Vehicle, error) {
	return getDocBy[documents.Vehicle](ctx, s, documents.CollVehicles, "business_key", vehicleNo)
}

func (s *Store) SaveVehicle(ctx context.Context, v *documents.Vehicle) error {
	return s.put(ctx, v, nil)
}

// =============================================================================
// FUEL WALLETS
// =============================================================================

func (s *Store) GetFuelWallet(ctx context.Context, id string) (*documents.FuelWallet, error) {
	r, err := s.findRow(ctx, documents.CollFuelWallets, byID(id))
	if err != nil || r == nil {
		return nil, err
	}
	w, err := decode[documents.FuelWallet](*r)
	if err != nil {
		return nil, err
	}
	if w.Balance, err = fromDecimal128(r.Balance); err != nil {
		return nil, fmt.Errorf("wallet %s balance: %w", id, err)
	}
	return w, nil
}

// SaveFuelWallet writes the opening balance on insert. Updates keep the
// stored balance; only AdjustFuelWalletBalance moves it.
func (s *Store) SaveFuelWallet(ctx context.Context, w *documents.FuelWallet) error {
	opening, err := toDecimal128(w.Balance)
	if err != nil {
		return err
	}
	return s.put(ctx, w, bson.M{"balance": opening})
}

func (s *Store) AdjustFuelWalletBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	d, err := toDecimal128(delta)
	if err != nil {
		return decimal.Zero, err
	}
	var r docRow
	err = s.db.Collection(string(documents.CollFuelWallets)).FindOneAndUpdate(ctx,
		byID(id),
		bson.M{"$inc": bson.M{"balance": d}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"balance": 1}),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return decimal.Zero, &ledger.ReferenceNotFoundError{Kind: "fuel_wallet", Key: id}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust wallet %s: %w", id, err)
	}
	return fromDecimal128(r.Balance)
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("%w: %s: %v", ledger.ErrInvalidAmount, d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	if v == (primitive.Decimal128{}) {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String())
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type entryDoc struct {
	ID            string               `bson:"_id"`
	LedgerType    string               `bson:"ledger_type"`
	ReferenceID   string               `bson:"reference_id"`
	ReferenceName string               `bson:"reference_name"`
	Date          time.Time            `bson:"date"`
	Description   string               `bson:"description"`
	Debit         primitive.Decimal128 `bson:"debit"`
	Credit        primitive.Decimal128 `bson:"credit"`
	SourceType    string               `bson:"source_type"`
	SourceID      string               `bson:"source_id"`
	VehicleNo     string               `bson:"vehicle_no"`
	Seq           int                  `bson:"seq"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func toEntryDoc(e ledger.Entry) (entryDoc, error) {
	debit, err := toDecimal128(e.Debit)
	if err != nil {
		return entryDoc{}, err
	}
	credit, err := toDecimal128(e.Credit)
	if err != nil {
		return entryDoc{}, err
	}
	return entryDoc{
		ID: e.ID, LedgerType: string(e.LedgerType), ReferenceID: e.ReferenceID,
		ReferenceName: e.ReferenceName, Date: ledger.Day(e.Date), Description: e.Description,
		Debit: debit, Credit: credit, SourceType: string(e.SourceType), SourceID: e.SourceID,
		VehicleNo: e.VehicleNo, Seq: e.Seq, CreatedAt: e.CreatedAt.UTC(),
	}, nil
}

func (d entryDoc) entry() (ledger.Entry, error) {
	debit, err := fromDecimal128(d.Debit)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s debit: %w", d.ID, err)
	}
	credit, err := fromDecimal128(d.Credit)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s credit: %w", d.ID, err)
	}
	return ledger.Entry{
		ID: d.ID, LedgerType: ledger.LedgerType(d.LedgerType), ReferenceID: d.ReferenceID,
		ReferenceName: d.ReferenceName, Date: d.Date.UTC(), Description: d.Description,
		Debit: debit, Credit: credit, SourceType: ledger.SourceType(d.SourceType), SourceID: d.SourceID,
		VehicleNo: d.VehicleNo, Seq: d.Seq, CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

func (s *Store) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		d, err := toEntryDoc(e)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}
	if _, err := s.db.Collection(collEntries).InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrDuplicateEntry, err)
		}
		return fmt.Errorf("failed to insert entries: %w", err)
	}
	return nil
}

func sourceFilter(src ledger.SourceRef) bson.M {
	return bson.M{"source_type": string(src.Type), "source_id": src.ID}
}

func (s *Store) DeleteEntriesBySource(ctx context.Context, src ledger.SourceRef) (int, error) {
	res, err := s.db.Collection(collEntries).DeleteMany(ctx, sourceFilter(src))
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries of %s: %w", src, err)
	}
	return int(res.DeletedCount), nil
}

func dateFilter(filter bson.M, r *ledger.DateRange) {
	if r == nil {
		return
	}
	cond := bson.M{}
	if !r.From.IsZero() {
		cond["$gte"] = ledger.Day(r.From)
	}
	if !r.To.IsZero() {
		cond["$lte"] = ledger.Day(r.To)
	}
	if len(cond) > 0 {
		filter["date"] = cond
	}
}

func setIf(filter bson.M, field, value string) {
	if value != "" {
		filter[field] = value
	}
}

func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	filter := bson.M{}
	setIf(filter, "ledger_type", string(f.LedgerType))
	setIf(filter, "reference_name", f.ReferenceName)
	setIf(filter, "reference_id", f.ReferenceID)
	setIf(filter, "vehicle_no", f.VehicleNo)
	setIf(filter, "source_type", string(f.SourceType))
	setIf(filter, "source_id", f.SourceID)
	dateFilter(filter, f.Range)

	cur, err := s.db.Collection(collEntries).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	out := make([]ledger.Entry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return ledger.SortEntries(out), nil
}

// =============================================================================
// PARTY COMMISSION LEDGER
// =============================================================================

type commissionDoc struct {
	ID              string               `bson:"_id"`
	PartyID         string               `bson:"party_id"`
	PartyName       string               `bson:"party_name"`
	EntryType       string               `bson:"entry_type"`
	Amount          primitive.Decimal128 `bson:"amount"`
	Date            time.Time            `bson:"date"`
	BillNumber      string               `bson:"bill_number,omitempty"`
	Description     string               `bson:"description,omitempty"`
	SourceType      string               `bson:"source_type"`
	SourceID        string               `bson:"source_id"`
	BillID          string               `bson:"bill_id,omitempty"`
	BankingID       string               `bson:"banking_id,omitempty"`
	CashbookEntryID string               `bson:"cashbook_entry_id,omitempty"`
	Seq             int                  `bson:"seq"`
	CreatedAt       time.Time            `bson:"created_at"`
}

func (s *Store) InsertCommissionEntries(ctx context.Context, entries []ledger.CommissionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		amount, err := toDecimal128(e.Amount)
		if err != nil {
			return err
		}
		docs = append(docs, commissionDoc{
			ID: e.ID, PartyID: e.PartyID, PartyName: e.PartyName, EntryType: string(e.EntryType),
			Amount: amount, Date: ledger.Day(e.Date), BillNumber: e.BillNumber, Description: e.Description,
			SourceType: string(e.SourceType), SourceID: e.SourceID, BillID: e.BillID,
			BankingID: e.BankingID, CashbookEntryID: e.CashbookEntryID, Seq: e.Seq, CreatedAt: e.CreatedAt.UTC(),
		})
	}
	if _, err := s.db.Collection(collCommission).InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrDuplicateEntry, err)
		}
		return fmt.Errorf("failed to insert commission entries: %w", err)
	}
	return nil
}

func (s *Store) DeleteCommissionBySource(ctx context.Context, src ledger.SourceRef) (int, error) {
	res, err := s.db.Collection(collCommission).DeleteMany(ctx, sourceFilter(src))
	if err != nil {
		return 0, fmt.Errorf("failed to delete commission entries of %s: %w", src, err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) ListCommissionEntries(ctx context.Context, f ledger.CommissionFilter) ([]ledger.CommissionEntry, error) {
	filter := bson.M{}
	setIf(filter, "party_id", f.PartyID)
	setIf(filter, "party_name", f.PartyName)
	setIf(filter, "source_type", string(f.SourceType))
	setIf(filter, "source_id", f.SourceID)
	dateFilter(filter, f.Range)

	cur, err := s.db.Collection(collCommission).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission entries: %w", err)
	}
	var docs []commissionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read commission entries: %w", err)
	}
	out := make([]ledger.CommissionEntry, 0, len(docs))
	for _, d := range docs {
		amount, err := fromDecimal128(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("commission entry %s amount: %w", d.ID, err)
		}
		out = append(out, ledger.CommissionEntry{
			ID: d.ID, PartyID: d.PartyID, PartyName: d.PartyName,
			EntryType: ledger.CommissionEntryType(d.EntryType), Amount: amount, Date: d.Date.UTC(),
			BillNumber: d.BillNumber, Description: d.Description, SourceType: ledger.SourceType(d.SourceType),
			SourceID: d.SourceID, BillID: d.BillID, BankingID: d.BankingID,
			CashbookEntryID: d.CashbookEntryID, Seq: d.Seq, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return ledger.SortCommission(out), nil
}

// =============================================================================
// STALE SOURCES
// =============================================================================

type accountKeyDoc struct {
	LedgerType string `bson:"ledger_type"`
	Name       string `bson:"name"`
}

type staleDoc struct {
	ID         string          `bson:"_id"`
	SourceType string          `bson:"source_type"`
	SourceID   string          `bson:"source_id"`
	Action     string          `bson:"action"`
	Reason     string          `bson:"reason"`
	Keys       []accountKeyDoc `bson:"keys"`
	Attempts   int             `bson:"attempts"`
	FlaggedAt  time.Time       `bson:"flagged_at"`
}

func (s *Store) FlagStale(ctx context.Context, f posting.StaleSource) error {
	keys := make([]accountKeyDoc, 0, len(f.Keys))
	for _, k := range f.Keys {
		keys = append(keys, accountKeyDoc{LedgerType: string(k.LedgerType), Name: k.Name})
	}
	_, err := s.db.Collection(collStale).UpdateOne(ctx,
		byID(f.Source.String()),
		bson.M{
			"$set": bson.M{
				"source_type": string(f.Source.Type),
				"source_id":   f.Source.ID,
				"action":      f.Action,
				"reason":      f.Reason,
				"keys":        keys,
			},
			"$setOnInsert": bson.M{"flagged_at": f.FlaggedAt.UTC()},
			"$inc":         bson.M{"attempts": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to flag %s: %w", f.Source, err)
	}
	return nil
}

func (s *Store) ClearStale(ctx context.Context, src ledger.SourceRef) error {
	_, err := s.db.Collection(collStale).DeleteOne(ctx, byID(src.String()))
	return err
}

func (s *Store) ListStale(ctx context.Context) ([]posting.StaleSource, error) {
	cur, err := s.db.Collection(collStale).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "flagged_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sources: %w", err)
	}
	var docs []staleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read stale sources: %w", err)
	}
	out := make([]posting.StaleSource, 0, len(docs))
	for _, d := range docs {
		f := posting.StaleSource{
			Source:    ledger.SourceRef{Type: ledger.SourceType(d.SourceType), ID: d.SourceID},
			Action:    d.Action,
			Reason:    d.Reason,
			Attempts:  d.Attempts,
			FlaggedAt: d.FlaggedAt.UTC(),
		}
		for _, k := range d.Keys {
			f.Keys = append(f.Keys, ledger.AccountKey{LedgerType: ledger.LedgerType(k.LedgerType), Name: k.Name})
		}
		out = append(out, f)
	}
	return out, nil
}
