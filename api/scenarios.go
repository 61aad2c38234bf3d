/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic
  transport operations. Every document goes through posting.Engine, so the
  ledgers a scenario leaves behind are exactly what the same entries would
  produce if a user typed them in.

AVAILABLE SCENARIOS:
  own-vehicle-trip:     Own truck, bill with charges, memo, bank receipt, diesel
  market-vehicle-trip:  Hired truck, memo advance and supplier settlement
  fuel-and-commission:  Wallet top-up and allocation, commission cut and payout

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create reference masters (party, supplier, vehicles, wallet)
 3. Create loading slips, then bills and memos against them
 4. Add banking/cashbook entries that settle or advance them

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "own-vehicle-trip"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Error mapping shared with these handlers
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "own-vehicle-trip",
		Name:        "Own Vehicle Trip",
		Description: "Own truck Pune to Nagpur: bill with RTO, mamool and TDS, memo, bank receipt and a diesel expense",
	},
	{
		ID:          "market-vehicle-trip",
		Name:        "Market Vehicle Trip",
		Description: "Hired truck: memo proceeds go to the supplier payable, cash advance and bank settlement",
	},
	{
		ID:          "fuel-and-commission",
		Name:        "Fuel Wallet and Party Commission",
		Description: "Bank top-up of a fuel card, diesel allocation to a vehicle, commission cut on a bill and its cash payout",
	},
}

// resetter is implemented by every store backend.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "own-vehicle-trip":
		load = h.loadOwnVehicleTrip
	case "market-vehicle-trip":
		load = h.loadMarketVehicleTrip
	case "fuel-and-commission":
		load = h.loadFuelAndCommission
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := load(ctx); err != nil {
		h.Logger.Error("scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase handles POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Engine.Store().(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// masters are the reference records every scenario starts from.
type masters struct {
	party    *documents.Party
	supplier *documents.Supplier
	own      *documents.Vehicle
	market   *documents.Vehicle
	wallet   *documents.FuelWallet
}

func (h *Handler) seedMasters(ctx context.Context) (*masters, error) {
	m := &masters{}
	var err error
	if m.party, err = h.Engine.CreateParty(ctx, &documents.Party{
		Name: "Sharma Traders", Phone: "9822000001", Address: "Market Yard, Pune",
	}); err != nil {
		return nil, fmt.Errorf("party: %w", err)
	}
	if m.supplier, err = h.Engine.CreateSupplier(ctx, &documents.Supplier{
		Name: "Gupta Roadways", Phone: "9822000002",
	}); err != nil {
		return nil, fmt.Errorf("supplier: %w", err)
	}
	if m.own, err = h.Engine.CreateVehicle(ctx, &documents.Vehicle{
		VehicleNo: "MH12AB1234", OwnershipType: documents.OwnershipOwn, OwnerName: "BRC",
	}); err != nil {
		return nil, fmt.Errorf("own vehicle: %w", err)
	}
	if m.market, err = h.Engine.CreateVehicle(ctx, &documents.Vehicle{
		VehicleNo: "MH14XY9876", OwnershipType: documents.OwnershipMarket,
		SupplierID: m.supplier.ID, SupplierName: m.supplier.Name,
	}); err != nil {
		return nil, fmt.Errorf("market vehicle: %w", err)
	}
	if m.wallet, err = h.Engine.CreateFuelWallet(ctx, &documents.FuelWallet{
		Name: "IOCL Card", Balance: decimal.Zero,
	}); err != nil {
		return nil, fmt.Errorf("fuel wallet: %w", err)
	}
	return m, nil
}

func (h *Handler) slip(ctx context.Context, m *masters, number string, v *documents.Vehicle, date time.Time, freight string) (*documents.LoadingSlip, error) {
	res, err := h.Engine.CreateLoadingSlip(ctx, &documents.LoadingSlip{
		SlipNumber: number,
		Date:       date,
		VehicleNo:  v.VehicleNo,
		PartyID:    m.party.ID,
		PartyName:  m.party.Name,
		From:       "Pune",
		To:         "Nagpur",
		Material:   "Soybean",
		Weight:     amount("18"),
		Freight:    amount(freight),
	})
	if err != nil {
		return nil, fmt.Errorf("loading slip %s: %w", number, err)
	}
	return res.Document, nil
}

func (h *Handler) cash(ctx context.Context, e *documents.CashEntry) error {
	if _, err := h.Engine.CreateCashEntry(ctx, e); err != nil {
		return fmt.Errorf("%s entry %s: %w", e.Book, e.Category, err)
	}
	return nil
}

// loadOwnVehicleTrip: Own truck trip billed to Sharma Traders and settled by
// bank. Vehicle income carries the memo, the diesel lands in vehicle expense.
func (h *Handler) loadOwnVehicleTrip(ctx context.Context) error {
	m, err := h.seedMasters(ctx)
	if err != nil {
		return err
	}
	slip, err := h.slip(ctx, m, "LS-1001", m.own, date(4, 1), "20000")
	if err != nil {
		return err
	}

	if _, err := h.Engine.CreateMemo(ctx, &documents.Memo{
		MemoNumber:    "MM-1001",
		LoadingSlipID: slip.ID,
		Date:          date(4, 2),
		Freight:       amount("20000"),
		Commission:    amount("800"),
		Mamool:        amount("200"),
		Detention:     amount("500"),
	}); err != nil {
		return fmt.Errorf("memo: %w", err)
	}

	if _, err := h.Engine.CreateBill(ctx, &documents.Bill{
		BillNumber:    "BL-1001",
		LoadingSlipID: slip.ID,
		PartyID:       m.party.ID,
		Date:          date(4, 3),
		BillAmount:    amount("20000"),
		RTO:           amount("500"),
		Mamool:        amount("300"),
		TDS:           amount("200"),
	}); err != nil {
		return fmt.Errorf("bill: %w", err)
	}

	if err := h.cash(ctx, &documents.CashEntry{
		Book: documents.BookBanking, Date: date(4, 10), Amount: amount("20000"),
		Type: documents.Credit, Category: documents.CatBillPayment,
		ReferenceID: "BL-1001", Mode: "NEFT", Account: "HDFC Current",
		Description: "Receipt against BL-1001",
	}); err != nil {
		return err
	}
	return h.cash(ctx, &documents.CashEntry{
		Book: documents.BookCashbook, Date: date(4, 2), Amount: amount("3500"),
		Type: documents.Debit, Category: documents.CatVehicleExpense,
		VehicleNo: m.own.VehicleNo, Description: "Diesel Pune pump",
	})
}

// loadMarketVehicleTrip: Hired truck. The memo credits Gupta Roadways; a cash
// advance and a bank settlement bring the payable back down.
func (h *Handler) loadMarketVehicleTrip(ctx context.Context) error {
	m, err := h.seedMasters(ctx)
	if err != nil {
		return err
	}
	slip, err := h.slip(ctx, m, "LS-2001", m.market, date(5, 6), "32000")
	if err != nil {
		return err
	}

	if _, err := h.Engine.CreateMemo(ctx, &documents.Memo{
		MemoNumber:    "MM-2001",
		LoadingSlipID: slip.ID,
		SupplierID:    m.supplier.ID,
		Date:          date(5, 6),
		Freight:       amount("30000"),
		Commission:    amount("1500"),
		Mamool:        amount("250"),
	}); err != nil {
		return fmt.Errorf("memo: %w", err)
	}

	if _, err := h.Engine.CreateBill(ctx, &documents.Bill{
		BillNumber:    "BL-2001",
		LoadingSlipID: slip.ID,
		PartyID:       m.party.ID,
		Date:          date(5, 8),
		BillAmount:    amount("32000"),
		Detention:     amount("1000"),
	}); err != nil {
		return fmt.Errorf("bill: %w", err)
	}

	if err := h.cash(ctx, &documents.CashEntry{
		Book: documents.BookCashbook, Date: date(5, 6), Amount: amount("10000"),
		Type: documents.Debit, Category: documents.CatMemoAdvance,
		ReferenceID: "MM-2001", Description: "Driver advance at loading",
	}); err != nil {
		return err
	}
	return h.cash(ctx, &documents.CashEntry{
		Book: documents.BookBanking, Date: date(5, 20), Amount: amount("18250"),
		Type: documents.Debit, Category: documents.CatSupplierPayment,
		ReferenceName: m.supplier.Name, Mode: "RTGS", Account: "HDFC Current",
		Description: "Balance freight MM-2001",
	})
}

// loadFuelAndCommission: A bank transfer tops up the fuel card, part of it
// is allocated to the own truck, and a bill's commission cut is paid out.
func (h *Handler) loadFuelAndCommission(ctx context.Context) error {
	m, err := h.seedMasters(ctx)
	if err != nil {
		return err
	}

	if err := h.cash(ctx, &documents.CashEntry{
		Book: documents.BookBanking, Date: date(6, 1), Amount: amount("25000"),
		Type: documents.Debit, Category: documents.CatFuelWallet,
		ReferenceID: m.wallet.ID, Mode: "NEFT", Account: "HDFC Current",
		Description: "IOCL card top-up",
	}); err != nil {
		return err
	}
	if _, err := h.Engine.CreateFuelTransaction(ctx, &documents.FuelTransaction{
		WalletID:    m.wallet.ID,
		Kind:        documents.FuelAllocation,
		VehicleNo:   m.own.VehicleNo,
		Date:        date(6, 3),
		Amount:      amount("9400"),
		Litres:      amount("100"),
		Description: "Diesel fill Nagpur",
	}); err != nil {
		return fmt.Errorf("fuel allocation: %w", err)
	}

	slip, err := h.slip(ctx, m, "LS-3001", m.own, date(6, 2), "24000")
	if err != nil {
		return err
	}
	if _, err := h.Engine.CreateBill(ctx, &documents.Bill{
		BillNumber:         "BL-3001",
		LoadingSlipID:      slip.ID,
		PartyID:            m.party.ID,
		Date:               date(6, 4),
		BillAmount:         amount("24000"),
		PartyCommissionCut: amount("1200"),
	}); err != nil {
		return fmt.Errorf("bill: %w", err)
	}
	return h.cash(ctx, &documents.CashEntry{
		Book: documents.BookCashbook, Date: date(6, 15), Amount: amount("1200"),
		Type: documents.Debit, Category: documents.CatPartyCommission,
		ReferenceID: m.party.ID, Description: "Commission payout BL-3001",
	})
}

func date(month time.Month, d int) time.Time {
	return ledger.Day(time.Date(2025, month, d, 0, 0, 0, 0, time.UTC))
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }
