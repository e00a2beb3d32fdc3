package cashflow

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/velora-crm/velora-pos/internal/platform/httpx"
	"github.com/velora-crm/velora-pos/internal/selection"
	"github.com/velora-crm/velora-pos/internal/shared"
)

// Handler manages cash-flow approval endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	selections *selection.Store
	validate   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, selections *selection.Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		selections: selections,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers cash-flow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

type decisionRequest struct {
	CashboxRef string `json:"cashbox_ref" validate:"omitempty,max=64"`
}

type entryResponse struct {
	Entry           Entry  `json:"entry"`
	CompensationErr string `json:"compensation_error,omitempty"`
}

type listResponse struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
	Selected   []string          `json:"selected,omitempty"`
}

// handleList serves the pending queue. When the operator's selection session
// is supplied the stored set is pruned against this very listing, so a
// selection can never hold an id the operator no longer sees.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		CashboxRef: r.URL.Query().Get("cashbox"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		filter.Status = status
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	meta := shared.NewPagination(page, perPage, 0)
	filter.Page = meta.Page
	filter.PerPage = meta.PerPage

	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list cashflows", slog.Any("error", err))
		h.respondError(w, err)
		return
	}

	resp := listResponse{Entries: entries, Pagination: shared.NewPagination(meta.Page, meta.PerPage, len(entries))}
	if session := r.URL.Query().Get("session"); session != "" && h.selections != nil {
		visible := make([]string, len(entries))
		for i, entry := range entries {
			visible[i] = entry.ID
		}
		set, err := h.selections.Prune(r.Context(), session, visible)
		if err != nil {
			h.logger.Warn("prune selection", slog.String("session", session), slog.Any("error", err))
		} else {
			resp.Selected = set.IDs()
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Approve(r.Context(), id, req.CashboxRef, actorID(r))
	if err != nil {
		h.logger.Error("approve cashflow", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entryResponse{Entry: entry})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.service.Reject(r.Context(), id, actorID(r))
	if err != nil {
		// The transition may have committed with only the undo failing; the
		// entry is then returned alongside the problem so the operator sees
		// the final state.
		if errors.Is(err, shared.ErrCompensationFailed) {
			httpx.JSON(w, http.StatusBadGateway, entryResponse{Entry: entry, CompensationErr: err.Error()})
			return
		}
		h.logger.Error("reject cashflow", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entryResponse{Entry: entry})
}

func (h *Handler) decodeDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return req, false
		}
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrMissingCashbox):
		httpx.Problem(w, http.StatusBadRequest, "Missing Cashbox", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

// actorID reads the acting operator from the gateway-injected header.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
