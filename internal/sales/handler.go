package sales

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tidemark-io/tidemark/internal/platform/httpx"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Handler exposes the sales report endpoints. Reports are expensive when the
// cache is cold, so the routes carry their own per-user rate limit.
type Handler struct {
	logger  *slog.Logger
	service *Service
	limiter func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if identity, ok := shared.IdentityFromContext(r.Context()); ok && identity.UserID != "" {
			return "user:" + identity.UserID, nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, service: service, limiter: limiter}
}

// MountRoutes registers the report routes. All require the viewer role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleViewer))
		r.Use(h.limiter)
		r.Get("/sales/overview", h.overview)
		r.Get("/sales/breakdown", h.breakdown)
		r.Get("/sales/yoy", h.yoy)
	})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Overview(r.Context(), from, to, parseFilters(r))
	if err != nil {
		h.logger.Error("sales overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid limit")
			return
		}
		limit = parsed
	}
	rows, err := h.service.Breakdown(r.Context(), r.URL.Query().Get("by"), from, to, parseFilters(r), limit)
	if err != nil {
		h.logger.Error("sales breakdown", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) yoy(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1900 || year > now.Year() {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid year")
			return
		}
		now = time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	out, err := h.service.YoYComparison(r.Context(), now, parseFilters(r))
	if err != nil {
		h.logger.Error("sales yoy", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, shared.Validationf("from and to are required, format YYYY-MM-DD")
	}
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, shared.Validationf("invalid from date %q", fromRaw)
	}
	to, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, shared.Validationf("invalid to date %q", toRaw)
	}
	// Range is inclusive of the end date.
	return from, to.Add(24*time.Hour - time.Second), nil
}

func parseFilters(r *http.Request) Filters {
	q := r.URL.Query()
	f := Filters{
		Market:        q.Get("market"),
		MerchantGroup: q.Get("merchant_group"),
		ProductGroup:  q.Get("product_group"),
	}
	if raw := q.Get("cluster_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ClusterID = &id
		}
	}
	return f
}
