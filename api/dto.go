/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Source documents already
  carry json tags and travel as they are; ledger and reader types do not, so
  they are mapped here. This keeps the ledger package free of wire concerns.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Postings:
    EntryDTO, CommissionEntryDTO, MutationResponse, DeleteResponse

  Readers:
    BalanceDTO, StatementDTO, CommissionSummaryDTO, CashBalanceDTO

  Reconciliation:
    VerifyReportDTO, DriftDTO, StaleSourceDTO, RederiveResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

WIRE FORMATS:
  - Calendar dates are YYYY-MM-DD. Request bodies also accept RFC3339 for any
    field whose name ends in "date" (see normalizeDates).
  - Amounts are decimal strings ("19800.50"). Requests accept numbers too.

SEE ALSO:
  - handlers.go: Uses these types
  - documents/: Request and response bodies for source documents
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

// =============================================================================
// POSTING DTOs
// =============================================================================

type EntryDTO struct {
	ID            string          `json:"id"`
	LedgerType    string          `json:"ledger_type"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceName string          `json:"reference_name"`
	Date          string          `json:"date"`
	Description   string          `json:"description,omitempty"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	SourceType    string          `json:"source_type"`
	SourceID      string          `json:"source_id"`
	VehicleNo     string          `json:"vehicle_no,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
}

type CommissionEntryDTO struct {
	ID          string          `json:"id"`
	PartyID     string          `json:"party_id,omitempty"`
	PartyName   string          `json:"party_name"`
	EntryType   string          `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	BillNumber  string          `json:"bill_number,omitempty"`
	Description string          `json:"description,omitempty"`
	SourceType  string          `json:"source_type"`
	SourceID    string          `json:"source_id"`
	Balance     decimal.Decimal `json:"balance"`
}

// MutationResponse is returned by every create and update of a source
// document: the stored document plus the postings it now owns.
type MutationResponse struct {
	Document   any                  `json:"document"`
	Postings   []EntryDTO           `json:"postings"`
	Commission []CommissionEntryDTO `json:"commission"`
}

type DeleteResponse struct {
	RemovedPostings   int `json:"removed_postings"`
	RemovedCommission int `json:"removed_commission"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:            e.ID,
		LedgerType:    string(e.LedgerType),
		ReferenceID:   e.ReferenceID,
		ReferenceName: e.ReferenceName,
		Date:          formatDate(e.Date),
		Description:   e.Description,
		Debit:         e.Debit,
		Credit:        e.Credit,
		SourceType:    string(e.SourceType),
		SourceID:      e.SourceID,
		VehicleNo:     e.VehicleNo,
		Balance:       e.Balance,
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

func toCommissionDTOs(entries []ledger.CommissionEntry) []CommissionEntryDTO {
	out := make([]CommissionEntryDTO, 0, len(entries))
	for _, c := range entries {
		out = append(out, CommissionEntryDTO{
			ID:          c.ID,
			PartyID:     c.PartyID,
			PartyName:   c.PartyName,
			EntryType:   string(c.EntryType),
			Amount:      c.Amount,
			Date:        formatDate(c.Date),
			BillNumber:  c.BillNumber,
			Description: c.Description,
			SourceType:  string(c.SourceType),
			SourceID:    c.SourceID,
			Balance:     c.Balance,
		})
	}
	return out
}

func toMutationResponse[T documents.Document](res posting.Result[T]) MutationResponse {
	return MutationResponse{
		Document:   res.Document,
		Postings:   toEntryDTOs(res.Postings),
		Commission: toCommissionDTOs(res.Commission),
	}
}

// =============================================================================
// READER DTOs
// =============================================================================

type BalanceDTO struct {
	LedgerType  string          `json:"ledger_type"`
	Key         string          `json:"key,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balance     decimal.Decimal `json:"balance"`
	EntryCount  int             `json:"entry_count"`
	Stale       bool            `json:"stale"`
}

func toBalanceDTO(v posting.BalanceView) BalanceDTO {
	return BalanceDTO{
		LedgerType:  string(v.LedgerType),
		Key:         v.Key,
		TotalDebit:  v.TotalDebit,
		TotalCredit: v.TotalCredit,
		Balance:     v.Balance,
		EntryCount:  v.EntryCount,
		Stale:       v.Stale,
	}
}

type StatementDTO struct {
	LedgerType  string          `json:"ledger_type"`
	Key         string          `json:"key,omitempty"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Opening     decimal.Decimal `json:"opening"`
	Entries     []EntryDTO      `json:"entries"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Closing     decimal.Decimal `json:"closing"`
	Stale       bool            `json:"stale"`
}

func toStatementDTO(s posting.Statement) StatementDTO {
	return StatementDTO{
		LedgerType:  string(s.LedgerType),
		Key:         s.Key,
		From:        formatDate(s.Range.From),
		To:          formatDate(s.Range.To),
		Opening:     s.Opening,
		Entries:     toEntryDTOs(s.Entries),
		TotalDebit:  s.TotalDebit,
		TotalCredit: s.TotalCredit,
		Closing:     s.Closing,
		Stale:       s.Stale,
	}
}

type CommissionSummaryDTO struct {
	PartyID      string               `json:"party_id,omitempty"`
	PartyName    string               `json:"party_name,omitempty"`
	TotalCredits decimal.Decimal      `json:"total_credits"`
	TotalDebits  decimal.Decimal      `json:"total_debits"`
	Balance      decimal.Decimal      `json:"balance"`
	EntryCount   int                  `json:"entry_count"`
	Entries      []CommissionEntryDTO `json:"entries"`
	Stale        bool                 `json:"stale"`
}

func toCommissionSummaryDTO(s posting.CommissionSummary) CommissionSummaryDTO {
	return CommissionSummaryDTO{
		PartyID:      s.PartyID,
		PartyName:    s.PartyName,
		TotalCredits: s.TotalCredits,
		TotalDebits:  s.TotalDebits,
		Balance:      s.Balance,
		EntryCount:   s.EntryCount,
		Entries:      toCommissionDTOs(s.Entries),
		Stale:        s.Stale,
	}
}

type CashLineDTO struct {
	Entry   *documents.CashEntry `json:"entry"`
	Balance decimal.Decimal      `json:"balance"`
}

type CashBalanceDTO struct {
	Book    string          `json:"book"`
	Opening decimal.Decimal `json:"opening"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Closing decimal.Decimal `json:"closing"`
	Lines   []CashLineDTO   `json:"lines"`
	Stale   bool            `json:"stale"`
}

func toCashBalanceDTO(c posting.CashBalance) CashBalanceDTO {
	lines := make([]CashLineDTO, 0, len(c.Lines))
	for i := range c.Lines {
		lines = append(lines, CashLineDTO{Entry: &c.Lines[i].Entry, Balance: c.Lines[i].Balance})
	}
	return CashBalanceDTO{
		Book:    string(c.Book),
		Opening: c.Opening,
		Inflow:  c.Inflow,
		Outflow: c.Outflow,
		Closing: c.Closing,
		Lines:   lines,
		Stale:   c.Stale,
	}
}

// =============================================================================
// RECONCILIATION DTOs
// =============================================================================

type DriftDTO struct {
	Expected EntryDTO `json:"expected"`
	Stored   EntryDTO `json:"stored"`
}

type VerifyReportDTO struct {
	SourceType           string               `json:"source_type"`
	SourceID             string               `json:"source_id"`
	Exists               bool                 `json:"exists"`
	Consistent           bool                 `json:"consistent"`
	DeriveError          string               `json:"derive_error,omitempty"`
	Summary              string               `json:"summary"`
	Missing              []EntryDTO           `json:"missing"`
	Unexpected           []EntryDTO           `json:"unexpected"`
	Drifted              []DriftDTO           `json:"drifted"`
	MissingCommission    []CommissionEntryDTO `json:"missing_commission"`
	UnexpectedCommission []CommissionEntryDTO `json:"unexpected_commission"`
	Effects              []string             `json:"effects"`
	AffectedKeys         []string             `json:"affected_keys"`
}

func toVerifyReportDTO(r posting.VerifyReport) VerifyReportDTO {
	drifted := make([]DriftDTO, 0, len(r.Drifted))
	for _, d := range r.Drifted {
		drifted = append(drifted, DriftDTO{Expected: toEntryDTO(d.Expected), Stored: toEntryDTO(d.Stored)})
	}
	effects := r.Effects
	if effects == nil {
		effects = []string{}
	}
	return VerifyReportDTO{
		SourceType:           string(r.Source.Type),
		SourceID:             r.Source.ID,
		Exists:               r.Exists,
		Consistent:           r.Consistent,
		DeriveError:          r.DeriveError,
		Summary:              r.String(),
		Missing:              toEntryDTOs(r.Missing),
		Unexpected:           toEntryDTOs(r.Unexpected),
		Drifted:              drifted,
		MissingCommission:    toCommissionDTOs(r.MissingCommission),
		UnexpectedCommission: toCommissionDTOs(r.UnexpectedCommission),
		Effects:              effects,
		AffectedKeys:         keyStrings(r.Keys()),
	}
}

type StaleSourceDTO struct {
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
	Keys       []string  `json:"keys"`
	Attempts   int       `json:"attempts"`
	FlaggedAt  time.Time `json:"flagged_at"`
}

func toStaleSourceDTOs(flags []posting.StaleSource) []StaleSourceDTO {
	out := make([]StaleSourceDTO, 0, len(flags))
	for _, s := range flags {
		out = append(out, StaleSourceDTO{
			SourceType: string(s.Source.Type),
			SourceID:   s.Source.ID,
			Action:     s.Action,
			Reason:     s.Reason,
			Keys:       keyStrings(s.Keys),
			Attempts:   s.Attempts,
			FlaggedAt:  s.FlaggedAt,
		})
	}
	return out
}

type RederiveResponse struct {
	SourceType        string               `json:"source_type"`
	SourceID          string               `json:"source_id"`
	Postings          []EntryDTO           `json:"postings"`
	Commission        []CommissionEntryDTO `json:"commission"`
	RemovedPostings   int                  `json:"removed_postings"`
	RemovedCommission int                  `json:"removed_commission"`
}

func keyStrings(keys []ledger.AccountKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Stale   bool   `json:"stale,omitempty"`
}

// =============================================================================
// DATE HANDLING
// =============================================================================

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ledger.DateLayout)
}

// decodeDocument decodes a request body into a source document. Fields whose
// name ends in "date" may be sent as YYYY-MM-DD; they are widened to RFC3339
// at midnight UTC before the document's own decoding runs.
func decodeDocument(body io.Reader, doc any) error {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	normalized, err := json.Marshal(normalizeDates(raw))
	if err != nil {
		return err
	}
	strict := json.NewDecoder(bytes.NewReader(normalized))
	strict.DisallowUnknownFields()
	return strict.Decode(doc)
}

func normalizeDates(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok && strings.HasSuffix(k, "date") && dateOnly.MatchString(s) {
				t[k] = s + "T00:00:00Z"
				continue
			}
			t[k] = normalizeDates(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeDates(t[i])
		}
		return t
	default:
		return v
	}
}
