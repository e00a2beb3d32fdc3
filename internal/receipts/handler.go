package receipts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/platform/httpx"
	"github.com/velora-crm/velora-pos/internal/shared"
)

// Handler manages inventory-receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/{id}/accept", h.handleAccept)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/archive", h.handleArchive)
	r.Post("/{id}/expense-entry", h.handleRetryExpense)
}

type acceptRequest struct {
	CashboxRef string `json:"cashbox_ref" validate:"omitempty,max=64"`
}

type acceptResponse struct {
	Receipt Receipt         `json:"receipt"`
	Expense *cashflow.Entry `json:"expense,omitempty"`
}

type expenseResponse struct {
	Expense cashflow.Entry `json:"expense"`
}

type listResponse struct {
	Receipts   []Receipt         `json:"receipts"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter Filter
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

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Receipts:   items,
		Pagination: shared.NewPagination(meta.Page, meta.PerPage, len(items)),
	})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := h.decodeAccept(w, r)
	if !ok {
		return
	}
	receipt, expense, err := h.service.Accept(r.Context(), id, req.CashboxRef, actorID(r))
	if err != nil {
		// Accepted-but-no-expense is reported with the persisted receipt so
		// the operator can retry the entry instead of re-accepting.
		if errors.Is(err, ErrPostAcceptEffect) {
			httpx.JSON(w, http.StatusBadGateway, acceptResponse{Receipt: receipt})
			return
		}
		h.logger.Error("accept receipt", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acceptResponse{Receipt: receipt, Expense: expense})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	receipt, err := h.service.Reject(r.Context(), id, actorID(r))
	if err != nil {
		h.logger.Error("reject receipt", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acceptResponse{Receipt: receipt})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	receipt, err := h.service.Archive(r.Context(), id, actorID(r))
	if err != nil {
		h.logger.Error("archive receipt", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acceptResponse{Receipt: receipt})
}

func (h *Handler) handleRetryExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := h.decodeAccept(w, r)
	if !ok {
		return
	}
	entry, err := h.service.RetryExpenseEntry(r.Context(), id, req.CashboxRef, actorID(r))
	if err != nil {
		h.logger.Error("retry expense entry", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expenseResponse{Expense: entry})
}

func (h *Handler) decodeAccept(w http.ResponseWriter, r *http.Request) (acceptRequest, bool) {
	var req acceptRequest
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
	case errors.Is(err, cashflow.ErrMissingCashbox):
		httpx.Problem(w, http.StatusBadRequest, "Missing Cashbox", err.Error())
	case errors.Is(err, ErrPostAcceptEffect):
		httpx.Problem(w, http.StatusBadGateway, "Post-Accept Effect Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

// actorID reads the acting operator from the gateway-injected header.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
