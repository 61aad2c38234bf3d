package posting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// RULE - One per source document variant
// =============================================================================

// Rule knows how one source document variant is stored and what it posts.
//
// Derive is strict: every reference must resolve, and it must not write.
// Unwind is lenient: it reverts what prev injected into other documents,
// skipping targets that no longer exist.
type Rule interface {
	Ref(doc documents.Document) ledger.SourceRef
	Load(ctx context.Context, s Store, id string) (documents.Document, error)

	// Prepare validates next and carries over state owned by other sources.
	// prev is nil on create.
	Prepare(ctx context.Context, s Store, prev, next documents.Document) error
	Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error)
	Unwind(ctx context.Context, s Store, prev documents.Document) error

	CheckDelete(ctx context.Context, s Store, prev documents.Document) error
	Save(ctx context.Context, s Store, doc documents.Document) error
	Delete(ctx context.Context, s Store, prev documents.Document) error
}

// cascader is implemented by rules whose documents feed other derivations.
type cascader interface {
	Dependents(ctx context.Context, s Store, doc documents.Document) ([]ledger.SourceRef, error)
}

func defaultRules(e *Engine) map[ledger.SourceType]Rule {
	return map[ledger.SourceType]Rule{
		ledger.SourceLoadingSlip:     slipRule{},
		ledger.SourceBill:            billRule{},
		ledger.SourceMemo:            memoRule{},
		ledger.SourceBanking:         cashRule{book: documents.BookBanking, mirror: e.mirror},
		ledger.SourceCashbook:        cashRule{book: documents.BookCashbook, mirror: e.mirror},
		ledger.SourceFuelTransaction: fuelRule{},
	}
}

// =============================================================================
// DERIVATION
// =============================================================================

// Derivation is the complete set of postings and side effects one source
// document must have.
type Derivation struct {
	Source     ledger.SourceRef
	Entries    []ledger.Entry
	Commission []ledger.CommissionEntry
	Effects    []Effect
}

// Totals folds the derived entries of one ledger type.
func (d *Derivation) Totals(lt ledger.LedgerType) ledger.Totals {
	var sel []ledger.Entry
	for _, e := range d.Entries {
		if e.LedgerType == lt {
			sel = append(sel, e)
		}
	}
	return ledger.Fold(sel)
}

// lines builds the entries of one derivation. Entries share the source's
// reference, date and creation time so a re-derivation sorts where the
// original did.
type lines struct {
	d         *Derivation
	refID     string
	date      time.Time
	createdAt time.Time
	vehicleNo string
}

func newLines(src ledger.SourceRef, doc documents.Document, refID string, date time.Time) *lines {
	return &lines{
		d:         &Derivation{Source: src},
		refID:     refID,
		date:      date,
		createdAt: doc.GetMeta().CreatedAt,
	}
}

// post adds one line: positive signed amounts are credits, negative debits.
// Zero lines are not posted.
func (l *lines) post(lt ledger.LedgerType, suffix ledger.Suffix, name, desc string, signed decimal.Decimal) {
	if signed.IsZero() {
		return
	}
	e := ledger.Entry{
		ID:            ledger.EntryID(l.d.Source.ID, suffix),
		LedgerType:    lt,
		ReferenceID:   l.refID,
		ReferenceName: name,
		Date:          l.date,
		Description:   desc,
		Debit:         decimal.Zero,
		Credit:        decimal.Zero,
		SourceType:    l.d.Source.Type,
		SourceID:      l.d.Source.ID,
		VehicleNo:     l.vehicleNo,
		Seq:           len(l.d.Entries),
		CreatedAt:     l.createdAt,
	}
	if signed.IsPositive() {
		e.Credit = signed
	} else {
		e.Debit = signed.Neg()
	}
	l.d.Entries = append(l.d.Entries, e)
}

func (l *lines) credit(lt ledger.LedgerType, suffix ledger.Suffix, name, desc string, amount decimal.Decimal) {
	l.post(lt, suffix, name, desc, amount)
}

func (l *lines) debit(lt ledger.LedgerType, suffix ledger.Suffix, name, desc string, amount decimal.Decimal) {
	l.post(lt, suffix, name, desc, amount.Neg())
}

func (l *lines) commission(c ledger.CommissionEntry) {
	c.SourceType = l.d.Source.Type
	c.SourceID = l.d.Source.ID
	c.Date = l.date
	c.CreatedAt = l.createdAt
	c.Seq = len(l.d.Commission)
	l.d.Commission = append(l.d.Commission, c)
}

func (l *lines) effect(eff Effect) { l.d.Effects = append(l.d.Effects, eff) }

// =============================================================================
// REFERENCE RESOLUTION
// =============================================================================

func as[T documents.Document](doc documents.Document, source ledger.SourceType) (T, error) {
	v, ok := doc.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s cannot be handled as %s", ledger.ErrInvalidCategory, describe(doc), source)
	}
	return v, nil
}

func describe(doc documents.Document) string {
	if doc == nil {
		return "<nil>"
	}
	return string(doc.Collection())
}

func requireSlip(ctx context.Context, s Store, id string) (*documents.LoadingSlip, error) {
	slip, err := s.GetLoadingSlip(ctx, id)
	if err != nil {
		return nil, err
	}
	if slip == nil {
		return nil, &ledger.ReferenceNotFoundError{Kind: "loading_slip", Key: id}
	}
	return slip, nil
}

func requireVehicle(ctx context.Context, s Store, vehicleNo string) (*documents.Vehicle, error) {
	v, err := s.GetVehicleByNumber(ctx, vehicleNo)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &ledger.ReferenceNotFoundError{Kind: "vehicle", Key: vehicleNo}
	}
	return v, nil
}

func requireBill(ctx context.Context, s Store, number string) (*documents.Bill, error) {
	b, err := s.GetBillByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &ledger.ReferenceNotFoundError{Kind: "bill", Key: number}
	}
	return b, nil
}

func requireMemo(ctx context.Context, s Store, number string) (*documents.Memo, error) {
	m, err := s.GetMemoByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ledger.ReferenceNotFoundError{Kind: "memo", Key: number}
	}
	return m, nil
}

func requireWallet(ctx context.Context, s Store, id string) (*documents.FuelWallet, error) {
	w, err := s.GetFuelWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &ledger.ReferenceNotFoundError{Kind: "fuel_wallet", Key: id}
	}
	return w, nil
}

// counterparty is a resolved party or supplier.
type counterparty struct {
	ID   string
	Name string
}

// resolveParty walks candidates in order. A candidate with an id must resolve
// to a party master; a name-only candidate is taken as is.
func resolveParty(ctx context.Context, s Store, candidates ...counterparty) (counterparty, error) {
	for _, c := range candidates {
		if c.ID != "" {
			p, err := s.GetParty(ctx, c.ID)
			if err != nil {
				return counterparty{}, err
			}
			if p == nil {
				return counterparty{}, &ledger.ReferenceNotFoundError{Kind: "party", Key: c.ID}
			}
			return counterparty{ID: p.ID, Name: p.Name}, nil
		}
		if name := strings.TrimSpace(c.Name); name != "" {
			if p, err := s.GetPartyByName(ctx, name); err != nil {
				return counterparty{}, err
			} else if p != nil {
				return counterparty{ID: p.ID, Name: p.Name}, nil
			}
			return counterparty{Name: name}, nil
		}
	}
	return counterparty{}, &ledger.ReferenceNotFoundError{Kind: "party", Key: ""}
}

func resolveSupplier(ctx context.Context, s Store, candidates ...counterparty) (counterparty, error) {
	for _, c := range candidates {
		if c.ID != "" {
			sup, err := s.GetSupplier(ctx, c.ID)
			if err != nil {
				return counterparty{}, err
			}
			if sup == nil {
				return counterparty{}, &ledger.ReferenceNotFoundError{Kind: "supplier", Key: c.ID}
			}
			return counterparty{ID: sup.ID, Name: sup.Name}, nil
		}
		if name := strings.TrimSpace(c.Name); name != "" {
			if sup, err := s.GetSupplierByName(ctx, name); err != nil {
				return counterparty{}, err
			} else if sup != nil {
				return counterparty{ID: sup.ID, Name: sup.Name}, nil
			}
			return counterparty{Name: name}, nil
		}
	}
	return counterparty{}, &ledger.ReferenceNotFoundError{Kind: "supplier", Key: ""}
}
