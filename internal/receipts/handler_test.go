package receipts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/velora-crm/velora-pos/internal/cashflow"
)

func newTestRouter(t *testing.T, ledger *memoryLedger) chi.Router {
	t.Helper()
	svc := NewService(ledger, nil, nil, nil, nil, nil)
	handler := NewHandler(nil, svc)
	r := chi.NewRouter()
	r.Route("/receipts", handler.MountRoutes)
	return r
}

func TestHandleListFiltersByStatus(t *testing.T) {
	accepted := pendingReceipt("r-2", 2, "5.00")
	accepted.Status = StatusAccepted
	ledger := newMemoryLedger(pendingReceipt("r-1", 1, "1.00"), accepted)
	r := newTestRouter(t, ledger)

	req := httptest.NewRequest(http.MethodGet, "/receipts?status=Accepted", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Receipts []Receipt `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Receipts, 1)
	require.Equal(t, "r-2", resp.Receipts[0].ID)
}

func TestHandleListRejectsUnknownStatus(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-1", 1, "1.00"))
	r := newTestRouter(t, ledger)

	req := httptest.NewRequest(http.MethodGet, "/receipts?status=archived", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAcceptReturnsExpense(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-1", 10, "12.345"))
	r := newTestRouter(t, ledger)

	req := httptest.NewRequest(http.MethodPost, "/receipts/r-1/accept", strings.NewReader(`{"cashbox_ref":"box-1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Receipt Receipt         `json:"receipt"`
		Expense *cashflow.Entry `json:"expense"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, StatusAccepted, resp.Receipt.Status)
	require.NotNil(t, resp.Expense)
	require.Equal(t, "123.45", resp.Expense.Amount.String())
}

func TestHandleAcceptWithoutCashbox(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-1", 10, "12.345"))
	r := newTestRouter(t, ledger)

	req := httptest.NewRequest(http.MethodPost, "/receipts/r-1/accept", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Missing Cashbox")
}

func TestHandleArchiveWrongState(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-1", 1, "1.00"))
	r := newTestRouter(t, ledger)

	req := httptest.NewRequest(http.MethodPost, "/receipts/r-1/archive", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}
