package posting

import (
	"context"
	"fmt"
	"sort"

	"github.com/brc/transport-ledger/ledger"
)

// EntryDrift is a stored entry whose amounts or routing differ from the
// expected derivation.
type EntryDrift struct {
	Expected ledger.Entry
	Stored   ledger.Entry
}

// VerifyReport compares what a source has stored against what it should have.
//
// A source that no longer exists is consistent when nothing is stored for it.
type VerifyReport struct {
	Source      ledger.SourceRef
	Exists      bool
	Consistent  bool
	DeriveError string

	Missing    []ledger.Entry
	Unexpected []ledger.Entry
	Drifted    []EntryDrift

	MissingCommission    []ledger.CommissionEntry
	UnexpectedCommission []ledger.CommissionEntry

	Effects []string
}

// Keys returns the accounts whose balances the inconsistencies affect.
func (r VerifyReport) Keys() []ledger.AccountKey {
	set := keySet{}
	set.addEntries(r.Missing)
	set.addEntries(r.Unexpected)
	for _, d := range r.Drifted {
		set[d.Expected.Key()] = struct{}{}
		set[d.Stored.Key()] = struct{}{}
	}
	for _, c := range append(append([]ledger.CommissionEntry(nil), r.MissingCommission...), r.UnexpectedCommission...) {
		set[ledger.AccountKey{LedgerType: ledger.LedgerCommission, Name: c.PartyName}] = struct{}{}
	}
	keys := set.list()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Verify re-derives the stored document and diffs the result against the
// stored postings and side effects. It never writes.
func (e *Engine) Verify(ctx context.Context, source ledger.SourceType, id string) (VerifyReport, error) {
	rule, ok := e.rules[source]
	if !ok {
		return VerifyReport{}, &ledger.InvalidSourceTypeError{Value: string(source)}
	}
	src := ledger.SourceRef{Type: source, ID: id}
	report := VerifyReport{Source: src}

	stored, err := e.store.ListEntries(ctx, ledger.EntryFilter{SourceType: source, SourceID: id})
	if err != nil {
		return report, err
	}
	storedComm, err := e.store.ListCommissionEntries(ctx, ledger.CommissionFilter{SourceType: source, SourceID: id})
	if err != nil {
		return report, err
	}

	doc, err := rule.Load(ctx, e.store, id)
	if err != nil {
		return report, err
	}

	expected := &Derivation{Source: src}
	if doc != nil {
		report.Exists = true
		d, err := rule.Derive(ctx, e.store, doc)
		if err != nil {
			// Nothing can be trusted: every stored line is suspect.
			report.DeriveError = err.Error()
			report.Unexpected = stored
			report.UnexpectedCommission = storedComm
			return report, nil
		}
		expected = d
	}

	report.Missing, report.Unexpected, report.Drifted = diffEntries(expected.Entries, stored)
	report.MissingCommission, report.UnexpectedCommission = diffCommission(expected.Commission, storedComm)
	for _, eff := range expected.Effects {
		if err := eff.Check(ctx, e.store); err != nil {
			report.Effects = append(report.Effects, err.Error())
		}
	}

	report.Consistent = len(report.Missing) == 0 && len(report.Unexpected) == 0 &&
		len(report.Drifted) == 0 && len(report.MissingCommission) == 0 &&
		len(report.UnexpectedCommission) == 0 && len(report.Effects) == 0
	return report, nil
}

func diffEntries(expected, stored []ledger.Entry) (missing, unexpected []ledger.Entry, drifted []EntryDrift) {
	byID := make(map[string]ledger.Entry, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	for _, want := range expected {
		got, ok := byID[want.ID]
		if !ok {
			missing = append(missing, want)
			continue
		}
		delete(byID, want.ID)
		if !sameEntry(want, got) {
			drifted = append(drifted, EntryDrift{Expected: want, Stored: got})
		}
	}
	for _, s := range stored {
		if _, ok := byID[s.ID]; ok {
			unexpected = append(unexpected, s)
		}
	}
	return missing, unexpected, drifted
}

func sameEntry(a, b ledger.Entry) bool {
	return a.LedgerType == b.LedgerType &&
		a.ReferenceName == b.ReferenceName &&
		a.ReferenceID == b.ReferenceID &&
		a.Debit.Equal(b.Debit) &&
		a.Credit.Equal(b.Credit) &&
		ledger.Day(a.Date).Equal(ledger.Day(b.Date))
}

func diffCommission(expected, stored []ledger.CommissionEntry) (missing, unexpected []ledger.CommissionEntry) {
	byID := make(map[string]ledger.CommissionEntry, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	for _, want := range expected {
		got, ok := byID[want.ID]
		if !ok || !got.Amount.Equal(want.Amount) || got.EntryType != want.EntryType || got.PartyName != want.PartyName {
			missing = append(missing, want)
			continue
		}
		delete(byID, want.ID)
	}
	for _, s := range stored {
		if _, ok := byID[s.ID]; ok {
			unexpected = append(unexpected, s)
		}
	}
	return missing, unexpected
}

// String summarises the report for logs and the CLI.
func (r VerifyReport) String() string {
	if r.Consistent {
		return fmt.Sprintf("%s: consistent", r.Source)
	}
	if r.DeriveError != "" {
		return fmt.Sprintf("%s: cannot derive: %s", r.Source, r.DeriveError)
	}
	return fmt.Sprintf("%s: %d missing, %d unexpected, %d drifted, %d commission issues, %d effect issues",
		r.Source, len(r.Missing), len(r.Unexpected), len(r.Drifted),
		len(r.MissingCommission)+len(r.UnexpectedCommission), len(r.Effects))
}
