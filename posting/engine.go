/*
Package posting is the Ledger Posting Engine.

PURPOSE:
  For every create, update or delete of a source document, decide which ledger
  postings must exist, in what amount, under which ledger, and keep them
  consistent as the document changes. Every write path (HTTP, CLI, demo
  scenarios) goes through Engine; nothing else writes ledger_entries.

CONTROL FLOW (one WithTx per mutation):
  create: validate -> derive (resolves every reference) -> save -> apply
  update: load prev -> validate -> derive(next) -> reverse(prev) -> save -> apply
  delete: load prev -> check in-use -> reverse(prev) -> delete

  derive runs before any write, so a missing reference rejects the mutation
  with nothing persisted. reverse deletes the postings owned by the source
  (by SourceType+SourceID) and unwinds its side effects by deterministic id.

RECONCILIATION:
  A failure after reverse is a ReconciliationError. The transaction rolls back;
  the engine then verifies the stored state against the stored document. If it
  does not match, the source is flagged stale and every reader touching its
  accounts reports Stale until Rederive succeeds.

SEE ALSO:
  - rules.go: Rule interface and dispatch table
  - bill.go, memo.go, cash.go, fuel.go, slip.go: Per-variant rules
  - effects.go: Advance linkage, settlements, wallet mutation
  - readers.go: Balance and summary views
*/
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// EVENTS
// =============================================================================

type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionRederive Action = "rederive"
)

// Event is a source document mutation. Payload is nil for deletes.
type Event struct {
	Source  ledger.SourceType
	Action  Action
	ID      string
	Payload documents.Document
}

// Outcome is what a mutation produced.
type Outcome struct {
	Document          documents.Document
	Postings          []ledger.Entry
	Commission        []ledger.CommissionEntry
	RemovedPostings   int
	RemovedCommission int
}

// Result is the typed outcome of a create or update.
type Result[T documents.Document] struct {
	Document   T
	Postings   []ledger.Entry
	Commission []ledger.CommissionEntry
}

// DeleteResult is the outcome of a delete.
type DeleteResult struct {
	RemovedPostingCount    int
	RemovedCommissionCount int
}

// =============================================================================
// ENGINE
// =============================================================================

// Recorder receives engine metrics. metrics.Metrics implements it.
type Recorder interface {
	PostingsWritten(source ledger.SourceType, action string, n int)
	PostingsRemoved(source ledger.SourceType, n int)
	ReconciliationFailed(source ledger.SourceType)
	StaleSources(n int)
	DerivationDuration(source ledger.SourceType, action string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) PostingsWritten(ledger.SourceType, string, int) {}
func (nopRecorder) PostingsRemoved(ledger.SourceType, int) {}
func (nopRecorder) ReconciliationFailed(ledger.SourceType) {}
func (nopRecorder) StaleSources(int) {}
func (nopRecorder) DerivationDuration(ledger.SourceType, string, time.Duration) {}

type Engine struct {
	store  TxStore
	rules  map[ledger.SourceType]Rule
	logger *slog.Logger
	rec    Recorder
	mirror bool
	now    func() time.Time
	newID  func() string
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithMirrorGeneralLedger makes every specifically-routed cash entry also post
// a general-ledger mirror line.
func WithMirrorGeneralLedger(on bool) Option { return func(e *Engine) { e.mirror = on } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

// NewEngine builds an engine over store with the default rule table.
func NewEngine(store TxStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ledger.ErrStoreRequired
	}
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		rec:    nopRecorder{},
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = defaultRules(e)
	return e, nil
}

// Store exposes the underlying store to readers and tooling.
func (e *Engine) Store() TxStore { return e.store }

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch is the single entry point for source document mutations.
func (e *Engine) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	rule, ok := e.rules[ev.Source]
	if !ok {
		return Outcome{}, &ledger.InvalidSourceTypeError{Value: string(ev.Source)}
	}

	start := e.now()
	defer func() { e.rec.DerivationDuration(ev.Source, string(ev.Action), e.now().Sub(start)) }()

	switch ev.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
		return e.mutate(ctx, rule, ev)
	case ActionRederive:
		return e.rederive(ctx, rule, ev)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown action %q", ledger.ErrInvalidCategory, ev.Action)
	}
}

func (e *Engine) mutate(ctx context.Context, rule Rule, ev Event) (Outcome, error) {
	src := ledger.SourceRef{Type: ev.Source, ID: ev.ID}
	var (
		out      Outcome
		reversed bool
		touched  keySet
	)

	txErr := e.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		out, reversed, touched = Outcome{}, false, keySet{}

		var prev documents.Document
		if ev.Action != ActionCreate {
			p, err := rule.Load(ctx, tx, ev.ID)
			if err != nil {
				return err
			}
			if p == nil {
				return &ledger.NotFoundError{Kind: string(ev.Source), ID: ev.ID}
			}
			prev = p
		}

		if ev.Action == ActionDelete {
			if err := rule.CheckDelete(ctx, tx, prev); err != nil {
				return err
			}
			reversed = true
			removed, removedComm, err := e.reverse(ctx, tx, rule, prev, touched)
			if err != nil {
				return err
			}
			if err := rule.Delete(ctx, tx, prev); err != nil {
				return err
			}
			out.RemovedPostings, out.RemovedCommission = removed, removedComm
			return nil
		}

		next := ev.Payload
		if next == nil {
			return fmt.Errorf("%w: %s payload is required", ledger.ErrInvalidCategory, ev.Source)
		}
		if err := e.stamp(ev, prev, next); err != nil {
			return err
		}
		src.ID = next.GetMeta().ID
		if err := rule.Prepare(ctx, tx, prev, next); err != nil {
			return err
		}

		// Derive before any write: every reference must resolve.
		d, err := rule.Derive(ctx, tx, next)
		if err != nil {
			return err
		}
		touched.addEntries(d.Entries)

		if prev != nil {
			reversed = true
			removed, removedComm, err := e.reverse(ctx, tx, rule, prev, touched)
			if err != nil {
				return err
			}
			out.RemovedPostings, out.RemovedCommission = removed, removedComm
		}

		if err := rule.Save(ctx, tx, next); err != nil {
			return err
		}
		if err := e.apply(ctx, tx, d); err != nil {
			return err
		}
		if c, ok := rule.(cascader); ok {
			if err := e.cascade(ctx, tx, c, next, touched); err != nil {
				return err
			}
		}

		out.Document = next
		out.Postings = d.Entries
		out.Commission = d.Commission
		return nil
	})

	if txErr != nil {
		return Outcome{}, e.failed(ctx, src, ev.Action, reversed, touched, txErr)
	}

	if out.RemovedPostings > 0 {
		e.rec.PostingsRemoved(ev.Source, out.RemovedPostings)
	}
	e.rec.PostingsWritten(ev.Source, string(ev.Action), len(out.Postings))
	e.logger.DebugContext(ctx, "source derived",
		"source_type", ev.Source, "source_id", src.ID, "action", ev.Action,
		"postings", len(out.Postings), "commission_postings", len(out.Commission),
		"removed", out.RemovedPostings)
	return out, nil
}

// stamp assigns id, timestamps and the expected version to next.
func (e *Engine) stamp(ev Event, prev, next documents.Document) error {
	m := next.GetMeta()
	now := e.now()
	if prev == nil {
		if m.ID == "" {
			m.ID = e.newID()
		}
		m.Version = 0
		m.CreatedAt = now
		m.UpdatedAt = now
		return nil
	}

	pm := prev.GetMeta()
	if m.ID != "" && m.ID != pm.ID {
		return fmt.Errorf("%w: payload id %q does not match %q", ledger.ErrInvalidCategory, m.ID, pm.ID)
	}
	// A payload carrying a version must have been edited from the stored one.
	if m.Version != 0 && m.Version != pm.Version {
		return fmt.Errorf("%w: %s %s is at version %d, payload edited version %d",
			ledger.ErrConcurrentModification, ev.Source, pm.ID, pm.Version, m.Version)
	}
	m.ID = pm.ID
	m.Version = pm.Version
	m.CreatedAt = pm.CreatedAt
	m.UpdatedAt = now
	return nil
}

// =============================================================================
// REVERSE & APPLY
// =============================================================================

// reverse removes every posting owned by prev and unwinds its side effects.
func (e *Engine) reverse(ctx context.Context, tx Store, rule Rule, prev documents.Document, touched keySet) (int, int, error) {
	src := rule.Ref(prev)

	old, err := tx.ListEntries(ctx, ledger.EntryFilter{SourceType: src.Type, SourceID: src.ID})
	if err != nil {
		return 0, 0, err
	}
	touched.addEntries(old)

	removed, err := tx.DeleteEntriesBySource(ctx, src)
	if err != nil {
		return 0, 0, fmt.Errorf("remove postings of %s: %w", src, err)
	}
	removedComm, err := tx.DeleteCommissionBySource(ctx, src)
	if err != nil {
		return 0, 0, fmt.Errorf("remove commission postings of %s: %w", src, err)
	}
	if err := rule.Unwind(ctx, tx, prev); err != nil {
		return 0, 0, fmt.Errorf("unwind side effects of %s: %w", src, err)
	}
	return removed, removedComm, nil
}

// apply persists a derivation.
func (e *Engine) apply(ctx context.Context, tx Store, d *Derivation) error {
	if len(d.Entries) > 0 {
		if err := tx.InsertEntries(ctx, d.Entries); err != nil {
			return fmt.Errorf("insert postings: %w", err)
		}
	}
	if len(d.Commission) > 0 {
		if err := tx.InsertCommissionEntries(ctx, d.Commission); err != nil {
			return fmt.Errorf("insert commission postings: %w", err)
		}
	}
	for _, eff := range d.Effects {
		if err := eff.Apply(ctx, tx); err != nil {
			return fmt.Errorf("apply %s: %w", eff.Describe(), err)
		}
	}
	return nil
}

// cascade re-derives documents whose postings depend on doc.
func (e *Engine) cascade(ctx context.Context, tx Store, c cascader, doc documents.Document, touched keySet) error {
	refs, err := c.Dependents(ctx, tx, doc)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		rule, ok := e.rules[ref.Type]
		if !ok {
			continue
		}
		dep, err := rule.Load(ctx, tx, ref.ID)
		if err != nil {
			return err
		}
		if dep == nil {
			continue
		}
		d, err := rule.Derive(ctx, tx, dep)
		if err != nil {
			return fmt.Errorf("re-derive dependent %s: %w", ref, err)
		}
		touched.addEntries(d.Entries)
		if _, _, err := e.reverse(ctx, tx, rule, dep, touched); err != nil {
			return err
		}
		if err := e.apply(ctx, tx, d); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

// rejection reports errors that describe the request rather than the store.
func rejection(err error) bool {
	return ledger.IsClientError(err) || ledger.IsConflict(err) || ledger.IsNotFound(err) ||
		errors.Is(err, ledger.ErrReferenceNotFound)
}

func (e *Engine) failed(ctx context.Context, src ledger.SourceRef, action Action, reversed bool, touched keySet, err error) error {
	if !reversed {
		if rejection(err) {
			e.logger.WarnContext(ctx, "source mutation rejected",
				"source_type", src.Type, "source_id", src.ID, "action", action, "error", err)
		}
		return err
	}

	rerr := &ledger.ReconciliationError{Source: src, Action: string(action), Err: err}

	// The transaction was rolled back. Confirm the store really holds the
	// complete pre-mutation postings; flag the source otherwise.
	report, verr := e.Verify(ctx, src.Type, src.ID)
	consistent := verr == nil && report.Consistent

	// A rejection raised after reversal (a cascaded re-derivation that no
	// longer resolves) is still a rejection once the rollback is confirmed.
	if consistent && rejection(err) {
		e.logger.WarnContext(ctx, "source mutation rejected",
			"source_type", src.Type, "source_id", src.ID, "action", action, "error", err)
		return err
	}

	e.rec.ReconciliationFailed(src.Type)
	if !consistent {
		reason := err.Error()
		if verr != nil {
			reason = fmt.Sprintf("%s; verify: %v", reason, verr)
		}
		touched.addKeys(report.Keys())
		flag := StaleSource{Source: src, Action: string(action), Reason: reason, Keys: touched.list(), FlaggedAt: e.now()}
		if ferr := e.store.FlagStale(ctx, flag); ferr != nil {
			e.logger.ErrorContext(ctx, "flag stale source failed", "source", src.String(), "error", ferr)
		} else {
			rerr.Flagged = true
			e.refreshStaleGauge(ctx)
		}
	}

	e.logger.ErrorContext(ctx, "posting reconciliation failed",
		"source_type", src.Type, "source_id", src.ID, "action", action,
		"flagged", rerr.Flagged, "error", err)
	return rerr
}

func (e *Engine) refreshStaleGauge(ctx context.Context) {
	flags, err := e.store.ListStale(ctx)
	if err == nil {
		e.rec.StaleSources(len(flags))
	}
}

// =============================================================================
// REDERIVE - Retry path for stale sources
// =============================================================================

// Rederive rebuilds the postings of a stored document and clears its stale
// flag. Deleted documents only have leftover postings removed.
func (e *Engine) Rederive(ctx context.Context, source ledger.SourceType, id string) (Outcome, error) {
	return e.Dispatch(ctx, Event{Source: source, Action: ActionRederive, ID: id})
}

func (e *Engine) rederive(ctx context.Context, rule Rule, ev Event) (Outcome, error) {
	src := ledger.SourceRef{Type: ev.Source, ID: ev.ID}
	var out Outcome

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		out = Outcome{}
		doc, err := rule.Load(ctx, tx, ev.ID)
		if err != nil {
			return err
		}
		if doc == nil {
			// Source is gone: leftover postings are orphans.
			if out.RemovedPostings, err = tx.DeleteEntriesBySource(ctx, src); err != nil {
				return err
			}
			out.RemovedCommission, err = tx.DeleteCommissionBySource(ctx, src)
			return err
		}
		d, err := rule.Derive(ctx, tx, doc)
		if err != nil {
			return err
		}
		if out.RemovedPostings, out.RemovedCommission, err = e.reverse(ctx, tx, rule, doc, keySet{}); err != nil {
			return err
		}
		if err := e.apply(ctx, tx, d); err != nil {
			return err
		}
		out.Document, out.Postings, out.Commission = doc, d.Entries, d.Commission
		return nil
	})
	if err != nil {
		e.rec.ReconciliationFailed(ev.Source)
		e.logger.ErrorContext(ctx, "rederive failed", "source", src.String(), "error", err)
		return Outcome{}, err
	}

	if err := e.store.ClearStale(ctx, src); err != nil {
		return out, err
	}
	e.refreshStaleGauge(ctx)
	e.rec.PostingsWritten(ev.Source, string(ActionRederive), len(out.Postings))
	e.logger.InfoContext(ctx, "source rederived", "source", src.String(), "postings", len(out.Postings))
	return out, nil
}

// =============================================================================
// KEY SET
// =============================================================================

type keySet map[ledger.AccountKey]struct{}

func (s keySet) addEntries(entries []ledger.Entry) {
	for _, en := range entries {
		s[en.Key()] = struct{}{}
	}
}

func (s keySet) addKeys(keys []ledger.AccountKey) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

func (s keySet) list() []ledger.AccountKey {
	out := make([]ledger.AccountKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
