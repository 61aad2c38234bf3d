/*
readers.go - Balance and summary views

PURPOSE:
  Pure read-side aggregations over the ledger store. Nothing here is cached:
  every view is a fold over the entries as they are stored now, sorted by date.

STALENESS:
  A view is Stale when an unresolved stale flag touches its account. The
  numbers are still returned (they are what is stored) but callers must show
  the indicator instead of presenting them as final.
*/
package posting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// LEDGER BALANCES
// =============================================================================

// BalanceView is the folded balance of one account (or of every account of a
// ledger type when Key is empty).
type BalanceView struct {
	LedgerType  ledger.LedgerType
	Key         string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balance     decimal.Decimal
	EntryCount  int
	Stale       bool
}

func (e *Engine) GetBalance(ctx context.Context, lt ledger.LedgerType, key string, r *ledger.DateRange) (BalanceView, error) {
	if !lt.Valid() {
		return BalanceView{}, &ledger.InvalidLedgerTypeError{Value: string(lt)}
	}
	if r != nil {
		if err := r.Validate(); err != nil {
			return BalanceView{}, err
		}
	}
	entries, err := e.store.ListEntries(ctx, ledger.EntryFilter{LedgerType: lt, ReferenceName: key, Range: r})
	if err != nil {
		return BalanceView{}, err
	}
	stale, err := e.isStale(ctx, lt, key)
	if err != nil {
		return BalanceView{}, err
	}
	return view(lt, key, ledger.Fold(entries), stale), nil
}

func view(lt ledger.LedgerType, key string, t ledger.Totals, stale bool) BalanceView {
	return BalanceView{
		LedgerType:  lt,
		Key:         key,
		TotalDebit:  t.Debit,
		TotalCredit: t.Credit,
		Balance:     t.Balance,
		EntryCount:  t.Count,
		Stale:       stale,
	}
}

// ListEntries returns matching entries in fold order with running balances.
func (e *Engine) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	if f.LedgerType != "" && !f.LedgerType.Valid() {
		return nil, &ledger.InvalidLedgerTypeError{Value: string(f.LedgerType)}
	}
	if f.Range != nil {
		if err := f.Range.Validate(); err != nil {
			return nil, err
		}
	}
	entries, err := e.store.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	return ledger.RunningBalance(entries, decimal.Zero), nil
}

// Statement is an account statement for a date range.
type Statement struct {
	LedgerType  ledger.LedgerType
	Key         string
	Range       ledger.DateRange
	Opening     decimal.Decimal
	Entries     []ledger.Entry
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Closing     decimal.Decimal
	Stale       bool
}

// Statement folds everything before the range into the opening balance and
// lists the entries within it with running balances.
func (e *Engine) Statement(ctx context.Context, lt ledger.LedgerType, key string, r ledger.DateRange) (Statement, error) {
	if !lt.Valid() {
		return Statement{}, &ledger.InvalidLedgerTypeError{Value: string(lt)}
	}
	if err := r.Validate(); err != nil {
		return Statement{}, err
	}
	all, err := e.store.ListEntries(ctx, ledger.EntryFilter{LedgerType: lt, ReferenceName: key})
	if err != nil {
		return Statement{}, err
	}
	stale, err := e.isStale(ctx, lt, key)
	if err != nil {
		return Statement{}, err
	}

	before, within := ledger.SplitAt(all, r)
	opening := ledger.ComputeBalance(before, key)
	period := ledger.Fold(within)
	return Statement{
		LedgerType:  lt,
		Key:         key,
		Range:       r,
		Opening:     opening,
		Entries:     ledger.RunningBalance(within, opening),
		TotalDebit:  period.Debit,
		TotalCredit: period.Credit,
		Closing:     opening.Add(period.Balance),
		Stale:       stale,
	}, nil
}

// Outstanding returns one balance per account of the ledger type, sorted by
// key. Accounts that net to zero are included.
func (e *Engine) Outstanding(ctx context.Context, lt ledger.LedgerType) ([]BalanceView, error) {
	if !lt.Valid() {
		return nil, &ledger.InvalidLedgerTypeError{Value: string(lt)}
	}
	entries, err := e.store.ListEntries(ctx, ledger.EntryFilter{LedgerType: lt})
	if err != nil {
		return nil, err
	}
	flags, err := e.store.ListStale(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]ledger.Entry{}
	for _, en := range entries {
		groups[en.ReferenceName] = append(groups[en.ReferenceName], en)
	}
	out := make([]BalanceView, 0, len(groups))
	for key, list := range groups {
		out = append(out, view(lt, key, ledger.Fold(list), touched(flags, lt, key)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// =============================================================================
// PARTY COMMISSION
// =============================================================================

type CommissionSummary struct {
	PartyID      string
	PartyName    string
	TotalCredits decimal.Decimal
	TotalDebits  decimal.Decimal
	Balance      decimal.Decimal
	EntryCount   int
	Entries      []ledger.CommissionEntry
	Stale        bool
}

func (e *Engine) GetPartyCommissionSummary(ctx context.Context, f ledger.CommissionFilter) (CommissionSummary, error) {
	if f.Range != nil {
		if err := f.Range.Validate(); err != nil {
			return CommissionSummary{}, err
		}
	}
	entries, err := e.store.ListCommissionEntries(ctx, f)
	if err != nil {
		return CommissionSummary{}, err
	}
	totals, ordered := ledger.FoldCommission(entries)

	name := f.PartyName
	if name == "" && f.PartyID != "" && len(ordered) > 0 {
		name = ordered[0].PartyName
	}
	stale, err := e.isStale(ctx, ledger.LedgerCommission, name)
	if err != nil {
		return CommissionSummary{}, err
	}
	return CommissionSummary{
		PartyID:      f.PartyID,
		PartyName:    name,
		TotalCredits: totals.Credits,
		TotalDebits:  totals.Debits,
		Balance:      totals.Balance,
		EntryCount:   totals.Count,
		Entries:      ordered,
		Stale:        stale,
	}, nil
}

// =============================================================================
// CASHBOOK / BANK BALANCE
// =============================================================================

// CashLine is one cash entry with the running balance after it.
type CashLine struct {
	Entry   documents.CashEntry
	Balance decimal.Decimal
}

type CashBalance struct {
	Book    documents.Book
	Opening decimal.Decimal
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Closing decimal.Decimal
	Lines   []CashLine
	Stale   bool
}

// CashbookBalance folds the entries of one book: credits (money in) add,
// debits subtract.
func (e *Engine) CashbookBalance(ctx context.Context, book documents.Book, r *ledger.DateRange) (CashBalance, error) {
	if !book.Valid() {
		return CashBalance{}, &ledger.InvalidSourceTypeError{Value: string(book)}
	}
	if r != nil {
		if err := r.Validate(); err != nil {
			return CashBalance{}, err
		}
	}
	entries, err := e.store.ListCashEntries(ctx, book, nil)
	if err != nil {
		return CashBalance{}, err
	}
	sortCash(entries)

	out := CashBalance{Book: book, Opening: decimal.Zero, Inflow: decimal.Zero, Outflow: decimal.Zero}
	running := decimal.Zero
	for _, en := range entries {
		if r != nil && r.Before(en.Date) {
			out.Opening = out.Opening.Add(en.Signed())
			running = out.Opening
			continue
		}
		if r != nil && !r.Contains(en.Date) {
			continue
		}
		if en.Type == documents.Credit {
			out.Inflow = out.Inflow.Add(en.Amount)
		} else {
			out.Outflow = out.Outflow.Add(en.Amount)
		}
		running = running.Add(en.Signed())
		out.Lines = append(out.Lines, CashLine{Entry: en, Balance: running})
	}
	out.Closing = out.Opening.Add(out.Inflow).Sub(out.Outflow)

	flags, err := e.store.ListStale(ctx)
	if err != nil {
		return CashBalance{}, err
	}
	for _, f := range flags {
		if f.Source.Type == book.SourceType() {
			out.Stale = true
			break
		}
	}
	return out, nil
}

func sortCash(entries []documents.CashEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		da, db := ledger.Day(a.Date), ledger.Day(b.Date)
		if !da.Equal(db) {
			return da.Before(db)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// STALENESS
// =============================================================================

// StaleSources lists unresolved reconciliation failures, oldest first.
func (e *Engine) StaleSources(ctx context.Context) ([]StaleSource, error) {
	flags, err := e.store.ListStale(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].FlaggedAt.Before(flags[j].FlaggedAt) })
	return flags, nil
}

func (e *Engine) isStale(ctx context.Context, lt ledger.LedgerType, key string) (bool, error) {
	flags, err := e.store.ListStale(ctx)
	if err != nil {
		return false, err
	}
	return touched(flags, lt, key), nil
}

func touched(flags []StaleSource, lt ledger.LedgerType, key string) bool {
	for _, f := range flags {
		if f.Touches(lt, key) {
			return true
		}
	}
	return false
}

// staleSince is how long the oldest flag has been open; zero when none are.
func staleSince(flags []StaleSource, now time.Time) time.Duration {
	var oldest time.Time
	for _, f := range flags {
		if oldest.IsZero() || f.FlaggedAt.Before(oldest) {
			oldest = f.FlaggedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return now.Sub(oldest)
}
