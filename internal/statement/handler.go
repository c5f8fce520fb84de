package statement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tidemark-io/tidemark/internal/platform/httpx"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Handler exposes statement detail, merchant rollups, and allow-list
// management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers statement routes. Reads require the viewer role,
// allow-list edits the steward role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleViewer))
		r.Get("/statements", h.details)
		r.Get("/statements/merchants", h.merchants)
		r.Get("/statements/allowlist", h.listAllowlist)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleSteward))
		r.Post("/statements/allowlist", h.addAllowlist)
		r.Delete("/statements/allowlist/{group}", h.removeAllowlist)
	})
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.StatementDetails(r.Context(), asOf)
	if err != nil {
		h.logger.Error("statement details", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of": asOf.Format("2006-01-02"),
		"rows":  rows,
	})
}

func (h *Handler) merchants(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summaries, err := h.service.MerchantSummaries(r.Context(), asOf)
	if err != nil {
		h.logger.Error("merchant summaries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":     asOf.Format("2006-01-02"),
		"merchants": summaries,
	})
}

func (h *Handler) listAllowlist(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.AllowlistedGroups(r.Context())
	if err != nil {
		h.logger.Error("list allowlist", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"merchant_groups": groups})
}

type allowlistRequest struct {
	MerchantGroup string `json:"merchant_group" validate:"required"`
}

func (h *Handler) addAllowlist(w http.ResponseWriter, r *http.Request) {
	var req allowlistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddAllowlistedGroup(r.Context(), req.MerchantGroup); err != nil {
		h.logger.Error("add allowlist", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeAllowlist(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if err := h.service.RemoveAllowlistedGroup(r.Context(), group); err != nil {
		h.logger.Error("remove allowlist", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, shared.Validationf("invalid as_of date %q, want YYYY-MM-DD", raw)
	}
	return asOf, nil
}
