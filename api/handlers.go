/*
handlers.go - HTTP API handlers for the transport ledger

PURPOSE:
  Exposes the posting engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every mutation to posting.Engine so the
  ledger is only ever written through a source document.

ENDPOINTS:
  Source documents (POST, GET/{id}, PUT/{id}, DELETE/{id}):
    /api/loading-slips, /api/bills, /api/memos,
    /api/banking-entries, /api/cashbook-entries, /api/fuel-transactions

  Reference masters (POST, GET/{id}):
    /api/parties, /api/suppliers, /api/vehicles, /api/fuel-wallets

  Readers:
    GET /api/ledger/entries       ?ledger_type&key&reference_id&vehicle_no&source_type&source_id&from&to
    GET /api/ledger/balance       ?ledger_type&key&from&to
    GET /api/ledger/statement     ?ledger_type&key&from&to
    GET /api/ledger/outstanding   ?ledger_type
    GET /api/commission/summary   ?party_id&party_name&from&to
    GET /api/cashbook/balance     ?book&from&to

  Reconciliation:
    GET  /api/reconciliation/stale
    GET  /api/reconciliation/{source}/{id}           Verify one source
    POST /api/reconciliation/{source}/{id}/rederive  Rebuild its postings

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Invalid input, unknown category, negative amount, bad range
  - 404: Addressed document not found
  - 409: Duplicate number, duplicate bill/memo for a slip, source in use,
         stale version
  - 422: A referenced slip, bill, memo, party, supplier, vehicle or wallet
         does not exist
  - 500: Reconciliation failure (stale=true when the source was flagged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Engine *posting.Engine
	Logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(engine *posting.Engine, logger *slog.Logger) (*Handler, error) {
	if engine == nil {
		return nil, ledger.ErrStoreRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, Logger: logger}, nil
}

// =============================================================================
// SOURCE DOCUMENTS
// =============================================================================

func createDoc[T documents.Document](h *Handler, kind string, newDoc func() T, create func(context.Context, T) (posting.Result[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := newDoc()
		if err := decodeDocument(r.Body, doc); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+kind, err)
			return
		}
		res, err := create(r.Context(), doc)
		if err != nil {
			h.writeEngineError(w, r, "create "+kind, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMutationResponse(res))
	}
}

func updateDoc[T documents.Document](h *Handler, kind string, newDoc func() T, update func(context.Context, string, T) (posting.Result[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := newDoc()
		if err := decodeDocument(r.Body, doc); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+kind, err)
			return
		}
		res, err := update(r.Context(), chi.URLParam(r, "id"), doc)
		if err != nil {
			h.writeEngineError(w, r, "update "+kind, err)
			return
		}
		writeJSON(w, http.StatusOK, toMutationResponse(res))
	}
}

func deleteDoc(h *Handler, kind string, del func(context.Context, string) (posting.DeleteResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := del(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeEngineError(w, r, "delete "+kind, err)
			return
		}
		writeJSON(w, http.StatusOK, DeleteResponse{
			RemovedPostings:   res.RemovedPostingCount,
			RemovedCommission: res.RemovedCommissionCount,
		})
	}
}

func getDoc[T documents.Document](h *Handler, kind string, get func(context.Context, string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeEngineError(w, r, "get "+kind, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// createMaster handles reference masters, which have no postings.
func createMaster[T documents.Document](h *Handler, kind string, newDoc func() T, create func(context.Context, T) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := newDoc()
		if err := decodeDocument(r.Body, doc); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+kind, err)
			return
		}
		saved, err := create(r.Context(), doc)
		if err != nil {
			h.writeEngineError(w, r, "create "+kind, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

// cashBook binds the book-aware cash entry operations to one book. The book
// comes from the route; a body naming the other book is rejected.
type cashBook struct {
	engine *posting.Engine
	book   documents.Book
}

func (c cashBook) newEntry() *documents.CashEntry { return &documents.CashEntry{Book: c.book} }

func (c cashBook) check(e *documents.CashEntry) error {
	if e.Book != c.book {
		return &ledger.InvalidCategoryError{Category: string(e.Book), Reason: fmt.Sprintf("entry belongs to the %s book", c.book)}
	}
	return nil
}

func (c cashBook) create(ctx context.Context, e *documents.CashEntry) (posting.Result[*documents.CashEntry], error) {
	if err := c.check(e); err != nil {
		return posting.Result[*documents.CashEntry]{}, err
	}
	return c.engine.CreateCashEntry(ctx, e)
}

func (c cashBook) update(ctx context.Context, id string, e *documents.CashEntry) (posting.Result[*documents.CashEntry], error) {
	if err := c.check(e); err != nil {
		return posting.Result[*documents.CashEntry]{}, err
	}
	return c.engine.UpdateCashEntry(ctx, c.book, id, e)
}

func (c cashBook) delete(ctx context.Context, id string) (posting.DeleteResult, error) {
	return c.engine.DeleteCashEntry(ctx, c.book, id)
}

func (c cashBook) get(ctx context.Context, id string) (*documents.CashEntry, error) {
	return c.engine.GetCashEntry(ctx, c.book, id)
}

// =============================================================================
// LEDGER READERS
// =============================================================================

// ListEntries handles GET /api/ledger/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		ReferenceName: q.Get("key"),
		ReferenceID:   q.Get("reference_id"),
		VehicleNo:     q.Get("vehicle_no"),
		SourceID:      q.Get("source_id"),
	}
	if v := q.Get("ledger_type"); v != "" {
		lt, err := ledger.ParseLedgerType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid ledger_type", err)
			return
		}
		filter.LedgerType = lt
	}
	if v := q.Get("source_type"); v != "" {
		st, err := ledger.ParseSourceType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid source_type", err)
			return
		}
		filter.SourceType = st
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	filter.Range = rng

	entries, err := h.Engine.ListEntries(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetBalance handles GET /api/ledger/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	lt, ok := requireLedgerType(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	view, err := h.Engine.GetBalance(r.Context(), lt, r.URL.Query().Get("key"), rng)
	if err != nil {
		h.writeEngineError(w, r, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(view))
}

// GetStatement handles GET /api/ledger/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	lt, ok := requireLedgerType(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	if rng == nil {
		rng = &ledger.DateRange{}
	}
	st, err := h.Engine.Statement(r.Context(), lt, r.URL.Query().Get("key"), *rng)
	if err != nil {
		h.writeEngineError(w, r, "get statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// GetOutstanding handles GET /api/ledger/outstanding
func (h *Handler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	lt, ok := requireLedgerType(w, r)
	if !ok {
		return
	}
	views, err := h.Engine.Outstanding(r.Context(), lt)
	if err != nil {
		h.writeEngineError(w, r, "get outstanding", err)
		return
	}
	out := make([]BalanceDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toBalanceDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCommissionSummary handles GET /api/commission/summary
func (h *Handler) GetCommissionSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	summary, err := h.Engine.GetPartyCommissionSummary(r.Context(), ledger.CommissionFilter{
		PartyID:   q.Get("party_id"),
		PartyName: q.Get("party_name"),
		Range:     rng,
	})
	if err != nil {
		h.writeEngineError(w, r, "get commission summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionSummaryDTO(summary))
}

// GetCashBalance handles GET /api/cashbook/balance. book defaults to cashbook.
func (h *Handler) GetCashBalance(w http.ResponseWriter, r *http.Request) {
	book := documents.Book(r.URL.Query().Get("book"))
	if book == "" {
		book = documents.BookCashbook
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	bal, err := h.Engine.CashbookBalance(r.Context(), book, rng)
	if err != nil {
		h.writeEngineError(w, r, "get cash balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toCashBalanceDTO(bal))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ListStale handles GET /api/reconciliation/stale
func (h *Handler) ListStale(w http.ResponseWriter, r *http.Request) {
	flags, err := h.Engine.StaleSources(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "list stale sources", err)
		return
	}
	writeJSON(w, http.StatusOK, toStaleSourceDTOs(flags))
}

// VerifySource handles GET /api/reconciliation/{source}/{id}
func (h *Handler) VerifySource(w http.ResponseWriter, r *http.Request) {
	source, err := ledger.ParseSourceType(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid source type", err)
		return
	}
	report, err := h.Engine.Verify(r.Context(), source, chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyReportDTO(report))
}

// RederiveSource handles POST /api/reconciliation/{source}/{id}/rederive
func (h *Handler) RederiveSource(w http.ResponseWriter, r *http.Request) {
	source, err := ledger.ParseSourceType(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid source type", err)
		return
	}
	id := chi.URLParam(r, "id")
	out, err := h.Engine.Rederive(r.Context(), source, id)
	if err != nil {
		h.writeEngineError(w, r, "rederive", err)
		return
	}
	h.Logger.Info("source rederived", "source_type", source, "source_id", id,
		"postings", len(out.Postings), "removed", out.RemovedPostings)
	writeJSON(w, http.StatusOK, RederiveResponse{
		SourceType:        string(source),
		SourceID:          id,
		Postings:          toEntryDTOs(out.Postings),
		Commission:        toCommissionDTOs(out.Commission),
		RemovedPostings:   out.RemovedPostings,
		RemovedCommission: out.RemovedCommission,
	})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func requireLedgerType(w http.ResponseWriter, r *http.Request) (ledger.LedgerType, bool) {
	lt, err := ledger.ParseLedgerType(r.URL.Query().Get("ledger_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ledger_type", err)
		return "", false
	}
	return lt, true
}

// parseRange reads from/to query params (YYYY-MM-DD). Both absent means no
// range; either side may be left open.
func parseRange(r *http.Request) (*ledger.DateRange, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	var rng ledger.DateRange
	var err error
	if from != "" {
		if rng.From, err = ledger.ParseDate(from); err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
	}
	if to != "" {
		if rng.To, err = ledger.ParseDate(to); err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &rng, nil
}

// statusFor maps an engine error to an HTTP status. Reconciliation comes
// first: it wraps the underlying cause, which may match the other classes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrPostingReconciliation):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrReferenceNotFound):
		return http.StatusUnprocessableEntity
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var rec *ledger.ReconciliationError
	switch {
	case errors.As(err, &rec):
		resp.Error = "Posting reconciliation failure"
		resp.Stale = rec.Flagged
		h.Logger.Error("reconciliation failure", "op", op, "source", rec.Source.String(),
			"flagged", rec.Flagged, "error", err)
	case status >= http.StatusInternalServerError:
		h.Logger.Error("request failed", "op", op, "path", r.URL.Path, "error", err)
	default:
		h.Logger.Warn("request rejected", "op", op, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// statusWriter captures the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// requestLogger logs every request through slog and reports it to rec.
// The route label is the chi pattern so ids do not explode cardinality.
func requestLogger(logger *slog.Logger, rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			logger.Debug("http request",
				"method", r.Method,
				"route", route,
				"status", sw.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestID(r))
			if rec != nil {
				rec.RecordHTTPRequest(r.Method, route, sw.status, elapsed)
			}
		})
	}
}
