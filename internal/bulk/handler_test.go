package bulk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/selection"
	_ "github.com/velora-crm/velora-pos/internal/testing/guard"
)

func newTestRouter(t *testing.T, ledger *memoryLedger, comp *recordingCompensator, selections *selection.Store) chi.Router {
	t.Helper()
	coord := NewCoordinator(ledger, comp, nil, nil)
	handler := NewHandler(nil, coord, selections)
	r := chi.NewRouter()
	r.Route("/bulk", handler.MountRoutes)
	return r
}

func TestHandleCashFlowsWave(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusPending, cashflow.OriginSale, "S1"),
		entry("b", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	comp := &recordingCompensator{}
	r := newTestRouter(t, ledger, comp, nil)

	req := httptest.NewRequest(http.MethodPost, "/bulk/cashflows",
		strings.NewReader(`{"ids":["a","b"],"target":"rejected"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		BatchID     string `json:"batch_id"`
		FailedCount int    `json:"failed_count"`
		Items       []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.BatchID)
	require.Zero(t, resp.FailedCount)
	require.Len(t, resp.Items, 2)
	require.Contains(t, comp.calls, "Sale/S1")
}

func TestHandleCashFlowsPartialFailureIsMultiStatus(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusApproved, cashflow.OriginNone, ""),
		entry("b", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	r := newTestRouter(t, ledger, &recordingCompensator{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/bulk/cashflows",
		strings.NewReader(`{"ids":["a","b"],"target":"approved"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	var resp struct {
		FailedCount int `json:"failed_count"`
		Items       []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.FailedCount)
	require.Equal(t, "a", resp.Items[0].ID)
	require.NotEmpty(t, resp.Items[0].Error)
	require.Empty(t, resp.Items[1].Error)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["b"].Status)
}

func TestHandleCashFlowsClearsSelection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	selections := selection.NewStore(client, time.Hour)
	require.NoError(t, selections.Replace(t.Context(), "op-1", []string{"a"}))

	ledger := newMemoryLedger(entry("a", cashflow.StatusPending, cashflow.OriginNone, ""))
	r := newTestRouter(t, ledger, &recordingCompensator{}, selections)

	req := httptest.NewRequest(http.MethodPost, "/bulk/cashflows",
		strings.NewReader(`{"ids":["a"],"target":"approved","session":"op-1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	set, err := selections.Load(t.Context(), "op-1")
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestHandleCashFlowsValidation(t *testing.T) {
	r := newTestRouter(t, newMemoryLedger(), &recordingCompensator{}, nil)

	for _, body := range []string{
		`{"ids":[],"target":"approved"}`,
		`{"ids":["a"],"target":"pending"}`,
		`{"ids":["a"]}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/bulk/cashflows", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}
