package bulk

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/platform/httpx"
	"github.com/velora-crm/velora-pos/internal/selection"
)

// Handler exposes the bulk wave over HTTP.
type Handler struct {
	logger      *slog.Logger
	coordinator *Coordinator
	selections  *selection.Store
	validate    *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, coordinator *Coordinator, selections *selection.Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		coordinator: coordinator,
		selections:  selections,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers bulk routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cashflows", h.handleCashFlows)
}

type waveRequest struct {
	IDs        []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
	Target     string   `json:"target" validate:"required,oneof=approved rejected"`
	CashboxRef string   `json:"cashbox_ref" validate:"omitempty,max=64"`
	Session    string   `json:"session" validate:"omitempty,max=128"`
}

type waveItem struct {
	ID              string `json:"id"`
	Error           string `json:"error,omitempty"`
	CompensationErr string `json:"compensation_error,omitempty"`
}

type waveResponse struct {
	BatchID     string     `json:"batch_id"`
	FailedCount int        `json:"failed_count"`
	Items       []waveItem `json:"items"`
}

// handleCashFlows runs one best-effort wave. The response is 200 when every
// id went through and 207 when some failed; both carry the full per-id list.
func (h *Handler) handleCashFlows(w http.ResponseWriter, r *http.Request) {
	var req waveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	target, err := cashflow.ParseStatus(req.Target)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, waveErr := h.coordinator.Transition(r.Context(), req.IDs, target, req.CashboxRef)
	if waveErr != nil && result.FailedCount == 0 {
		h.logger.Error("bulk wave rejected", slog.Any("error", waveErr))
		httpx.RespondError(w, waveErr)
		return
	}

	// The operator acted on the whole selection, so it is spent regardless
	// of per-id outcomes; the refreshed listing starts from a clean slate.
	if req.Session != "" && h.selections != nil {
		if err := h.selections.Clear(r.Context(), req.Session); err != nil {
			h.logger.Warn("clear selection after wave",
				slog.String("session", req.Session), slog.Any("error", err))
		}
	}

	resp := waveResponse{
		BatchID:     result.BatchID.String(),
		FailedCount: result.FailedCount,
		Items:       make([]waveItem, len(result.Items)),
	}
	for i, item := range result.Items {
		resp.Items[i] = waveItem{ID: item.ID}
		if item.Err != nil {
			resp.Items[i].Error = item.Err.Error()
		}
		if item.CompensationErr != nil {
			resp.Items[i].CompensationErr = item.CompensationErr.Error()
		}
	}
	status := http.StatusOK
	if result.FailedCount > 0 {
		status = http.StatusMultiStatus
		h.logger.Warn("bulk wave partially failed",
			slog.String("batch_id", resp.BatchID),
			slog.String("target", string(target)),
			slog.Int("failed", result.FailedCount),
			slog.Int("total", len(result.Items)))
	}
	httpx.JSON(w, status, resp)
}
