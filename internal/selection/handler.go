package selection

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/velora-crm/velora-pos/internal/platform/httpx"
)

// Handler exposes per-session selection sets over HTTP.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers selection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{session}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/toggle", h.handleToggle)
		r.Post("/toggle-all", h.handleToggleAll)
		r.Post("/prune", h.handlePrune)
		r.Delete("/", h.handleClear)
	})
}

type toggleRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}

type visibleRequest struct {
	Visible []string `json:"visible" validate:"max=500,dive,required"`
}

type setResponse struct {
	IDs      []string `json:"ids"`
	Count    int      `json:"count"`
	Selected *bool    `json:"selected,omitempty"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	set, err := h.store.Load(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		h.logger.Error("load selection", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSetResponse(set, nil))
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session := chi.URLParam(r, "session")
	selected, err := h.store.Toggle(r.Context(), session, req.ID)
	if err != nil {
		h.logger.Error("toggle selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	set, err := h.store.Load(r.Context(), session)
	if err != nil {
		h.logger.Error("load selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSetResponse(set, &selected))
}

// handleToggleAll is the header checkbox: a fully selected view clears, any
// other state becomes exactly the visible ids.
func (h *Handler) handleToggleAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVisible(w, r)
	if !ok {
		return
	}
	session := chi.URLParam(r, "session")
	set, err := h.store.Load(r.Context(), session)
	if err != nil {
		h.logger.Error("load selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	set.ToggleAll(req.Visible)
	if err := h.store.Replace(r.Context(), session, set.IDs()); err != nil {
		h.logger.Error("replace selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSetResponse(set, nil))
}

func (h *Handler) handlePrune(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVisible(w, r)
	if !ok {
		return
	}
	session := chi.URLParam(r, "session")
	set, err := h.store.Prune(r.Context(), session, req.Visible)
	if err != nil {
		h.logger.Error("prune selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSetResponse(set, nil))
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	if err := h.store.Clear(r.Context(), session); err != nil {
		h.logger.Error("clear selection", slog.String("session", session), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeVisible(w http.ResponseWriter, r *http.Request) (visibleRequest, bool) {
	var req visibleRequest
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

func newSetResponse(set *Set, selected *bool) setResponse {
	ids := set.IDs()
	sort.Strings(ids)
	return setResponse{IDs: ids, Count: set.Len(), Selected: selected}
}
