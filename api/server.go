/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through slog, plus request metrics
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the operations frontend

ROUTE GROUPS:
  /api/loading-slips, /api/bills, /api/memos      Trip documents
  /api/banking-entries, /api/cashbook-entries      Cash movements
  /api/fuel-transactions                           Fuel allocations
  /api/parties, /api/suppliers, /api/vehicles,
  /api/fuel-wallets                                Reference masters
  /api/ledger/*, /api/commission/*, /api/cashbook/* Readers
  /api/reconciliation/*                            Verify, rederive, stale
  /api/scenarios/*                                 Demo scenarios
  /metrics, /healthz                               Operations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/brc/transport-ledger/documents"
)

// RouterConfig carries the optional pieces of the router.
type RouterConfig struct {
	// CORSOrigins defaults to "*" when empty.
	CORSOrigins []string
	// Recorder receives per-request metrics. May be nil.
	Recorder HTTPRecorder
	// Metrics serves /metrics. May be nil.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger, cfg.Recorder))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	e := h.Engine
	banking := cashBook{engine: e, book: documents.BookBanking}
	cashbook := cashBook{engine: e, book: documents.BookCashbook}

	r.Route("/api", func(r chi.Router) {
		// Trip documents
		r.Route("/loading-slips", func(r chi.Router) {
			newSlip := func() *documents.LoadingSlip { return &documents.LoadingSlip{} }
			r.Post("/", createDoc(h, "loading slip", newSlip, e.CreateLoadingSlip))
			r.Get("/{id}", getDoc(h, "loading slip", e.GetLoadingSlip))
			r.Put("/{id}", updateDoc(h, "loading slip", newSlip, e.UpdateLoadingSlip))
			r.Delete("/{id}", deleteDoc(h, "loading slip", e.DeleteLoadingSlip))
		})
		r.Route("/bills", func(r chi.Router) {
			newBill := func() *documents.Bill { return &documents.Bill{} }
			r.Post("/", createDoc(h, "bill", newBill, e.CreateBill))
			r.Get("/{id}", getDoc(h, "bill", e.GetBill))
			r.Put("/{id}", updateDoc(h, "bill", newBill, e.UpdateBill))
			r.Delete("/{id}", deleteDoc(h, "bill", e.DeleteBill))
		})
		r.Route("/memos", func(r chi.Router) {
			newMemo := func() *documents.Memo { return &documents.Memo{} }
			r.Post("/", createDoc(h, "memo", newMemo, e.CreateMemo))
			r.Get("/{id}", getDoc(h, "memo", e.GetMemo))
			r.Put("/{id}", updateDoc(h, "memo", newMemo, e.UpdateMemo))
			r.Delete("/{id}", deleteDoc(h, "memo", e.DeleteMemo))
		})

		// Cash movements
		for path, book := range map[string]cashBook{"/banking-entries": banking, "/cashbook-entries": cashbook} {
			kind := string(book.book) + " entry"
			r.Route(path, func(r chi.Router) {
				r.Post("/", createDoc(h, kind, book.newEntry, book.create))
				r.Get("/{id}", getDoc(h, kind, book.get))
				r.Put("/{id}", updateDoc(h, kind, book.newEntry, book.update))
				r.Delete("/{id}", deleteDoc(h, kind, book.delete))
			})
		}

		r.Route("/fuel-transactions", func(r chi.Router) {
			newTxn := func() *documents.FuelTransaction { return &documents.FuelTransaction{} }
			r.Post("/", createDoc(h, "fuel transaction", newTxn, e.CreateFuelTransaction))
			r.Get("/{id}", getDoc(h, "fuel transaction", e.GetFuelTransaction))
			r.Put("/{id}", updateDoc(h, "fuel transaction", newTxn, e.UpdateFuelTransaction))
			r.Delete("/{id}", deleteDoc(h, "fuel transaction", e.DeleteFuelTransaction))
		})

		// Reference masters
		r.Route("/parties", func(r chi.Router) {
			r.Post("/", createMaster(h, "party", func() *documents.Party { return &documents.Party{} }, e.CreateParty))
			r.Get("/{id}", getDoc(h, "party", e.GetParty))
		})
		r.Route("/suppliers", func(r chi.Router) {
			r.Post("/", createMaster(h, "supplier", func() *documents.Supplier { return &documents.Supplier{} }, e.CreateSupplier))
			r.Get("/{id}", getDoc(h, "supplier", e.GetSupplier))
		})
		r.Route("/vehicles", func(r chi.Router) {
			r.Post("/", createMaster(h, "vehicle", func() *documents.Vehicle { return &documents.Vehicle{} }, e.CreateVehicle))
			r.Get("/{id}", getDoc(h, "vehicle", e.GetVehicle))
		})
		r.Route("/fuel-wallets", func(r chi.Router) {
			r.Post("/", createMaster(h, "fuel wallet", func() *documents.FuelWallet { return &documents.FuelWallet{} }, e.CreateFuelWallet))
			r.Get("/{id}", getDoc(h, "fuel wallet", e.GetFuelWallet))
		})

		// Readers
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/entries", h.ListEntries)
			r.Get("/balance", h.GetBalance)
			r.Get("/statement", h.GetStatement)
			r.Get("/outstanding", h.GetOutstanding)
		})
		r.Get("/commission/summary", h.GetCommissionSummary)
		r.Get("/cashbook/balance", h.GetCashBalance)

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/stale", h.ListStale)
			r.Get("/{source}/{id}", h.VerifySource)
			r.Post("/{source}/{id}/rederive", h.RederiveSource)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/healthz", h.Healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return r
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
