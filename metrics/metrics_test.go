package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

var _ posting.Recorder = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder_ExposesEngineMetrics(t *testing.T) {
	m := New("ledger")

	m.PostingsWritten(ledger.SourceBill, "create", 3)
	m.PostingsWritten(ledger.SourceBill, "create", 1)
	m.PostingsRemoved(ledger.SourceMemo, 2)
	m.ReconciliationFailed(ledger.SourceBill)
	m.StaleSources(4)
	m.DerivationDuration(ledger.SourceBill, "create", 3*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/api/bills", http.StatusCreated, 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `ledger_postings_written_total{action="create",source_type="bill"} 4`)
	assert.Contains(t, body, `ledger_postings_removed_total{source_type="memo"} 2`)
	assert.Contains(t, body, `ledger_reconciliation_failures_total{source_type="bill"} 1`)
	assert.Contains(t, body, `ledger_stale_sources 4`)
	assert.Contains(t, body, `ledger_derivation_duration_seconds_count{action="create",source_type="bill"} 1`)
	assert.Contains(t, body, `ledger_http_requests_total{method="POST",route="/api/bills",status="201"} 1`)
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New("ledger"), New("ledger")
	a.StaleSources(1)
	assert.Contains(t, scrape(t, a), "ledger_stale_sources 1")
	assert.Contains(t, scrape(t, b), "ledger_stale_sources 0")
}
