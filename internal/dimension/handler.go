package dimension

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tidemark-io/tidemark/internal/platform/httpx"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Handler exposes dimension mutations and match suggestions over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers dimension routes. Mutations require the steward role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleSteward))
		r.Post("/dimensions/{kind}/merge", h.merge)
		r.Post("/dimensions/{kind}/{id}/unmerge", h.unmerge)
		r.Post("/dimensions/{kind}/archive", h.archive)
		r.Post("/dimensions/{kind}/{id}/unarchive", h.unarchive)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleViewer))
		r.Get("/matches", h.matches)
	})
}

type mergeRequest struct {
	MasterID int64   `json:"master_id" validate:"required"`
	ChildIDs []int64 `json:"child_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) merge(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	var req mergeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Merge(r.Context(), kind, req.MasterID, req.ChildIDs); err != nil {
		h.logger.Error("merge", slog.Any("error", err), slog.String("kind", string(kind)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"master_id": req.MasterID, "merged": len(req.ChildIDs)})
}

func (h *Handler) unmerge(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity id")
		return
	}
	if err := h.service.Unmerge(r.Context(), kind, id); err != nil {
		h.logger.Error("unmerge", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type archiveRequest struct {
	IDs        []int64 `json:"ids" validate:"required_without=BeforeDate"`
	BeforeDate string  `json:"before_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	var req archiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if req.BeforeDate != "" {
		since, _ := time.Parse("2006-01-02", req.BeforeDate)
		count, err := h.service.ArchiveInactive(r.Context(), kind, since)
		if err != nil {
			h.logger.Error("archive inactive", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"archived": count})
		return
	}

	if err := h.service.Archive(r.Context(), kind, req.IDs); err != nil {
		h.logger.Error("archive", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"archived": len(req.IDs)})
}

func (h *Handler) unarchive(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity id")
		return
	}
	if err := h.service.Unarchive(r.Context(), kind, id); err != nil {
		h.logger.Error("unarchive", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) matches(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	threshold := 0.5
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid threshold")
			return
		}
		threshold = parsed
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid limit")
			return
		}
		limit = parsed
	}

	groups, err := h.service.MatchSuggestions(r.Context(), kind, threshold, limit)
	if err != nil {
		h.logger.Error("match suggestions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}
