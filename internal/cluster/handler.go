package cluster

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

// Handler exposes cluster management, aggregate views, and the supplier
// stock entry endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers cluster routes. Membership mutations require the
// steward role; stock entries require the supplier role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleSteward))
		r.Post("/clusters", h.create)
		r.Post("/clusters/{id}/members", h.assignMember)
		r.Put("/clusters/{id}/base-unit", h.setBaseUnit)
		r.Put("/clusters/members/{entityID}/multiplier", h.setMultiplier)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleViewer))
		r.Get("/clusters", h.list)
		r.Get("/clusters/summary", h.summary)
		r.Get("/clusters/stock-totals", h.stockTotals)
		r.Get("/clusters/{id}/products", h.products)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleSupplier))
		r.Post("/stock/entries", h.saveStock)
	})
}

type createClusterRequest struct {
	Label         string `json:"label" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=customer product"`
	BaseUnitLabel string `json:"base_unit_label"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createClusterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateCluster(r.Context(), Cluster{
		Label:         req.Label,
		Type:          Type(req.Type),
		BaseUnitLabel: req.BaseUnitLabel,
	})
	if err != nil {
		h.logger.Error("create cluster", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.service.ListClusters(r.Context())
	if err != nil {
		h.logger.Error("list clusters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

type assignMemberRequest struct {
	EntityID       int64   `json:"entity_id" validate:"required"`
	UnitMultiplier float64 `json:"unit_multiplier" validate:"required"`
}

func (h *Handler) assignMember(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid cluster id")
		return
	}
	var req assignMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m := Membership{ClusterID: clusterID, EntityID: req.EntityID, UnitMultiplier: req.UnitMultiplier}
	if err := h.service.AssignMember(r.Context(), m); err != nil {
		h.logger.Error("assign member", slog.Any("error", err), slog.Int64("cluster_id", clusterID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type baseUnitRequest struct {
	Label string `json:"label" validate:"required"`
}

func (h *Handler) setBaseUnit(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid cluster id")
		return
	}
	var req baseUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetBaseUnitLabel(r.Context(), clusterID, req.Label); err != nil {
		h.logger.Error("set base unit", slog.Any("error", err), slog.Int64("cluster_id", clusterID))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type multiplierRequest struct {
	UnitMultiplier float64 `json:"unit_multiplier" validate:"required"`
}

func (h *Handler) setMultiplier(w http.ResponseWriter, r *http.Request) {
	entityID, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity id")
		return
	}
	var req multiplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetUnitMultiplier(r.Context(), entityID, req.UnitMultiplier); err != nil {
		h.logger.Error("set multiplier", slog.Any("error", err), slog.Int64("entity_id", entityID))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ClusterSummaries(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("cluster summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clusters": summaries})
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid cluster id")
		return
	}
	c, details, err := h.service.ClusterProductDetails(r.Context(), clusterID)
	if err != nil {
		h.logger.Error("cluster products", slog.Any("error", err), slog.Int64("cluster_id", clusterID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cluster": c, "products": details})
}

func (h *Handler) stockTotals(w http.ResponseWriter, r *http.Request) {
	week := lastWeekEnding(time.Now().UTC())
	if raw := r.URL.Query().Get("week_ending"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid week_ending, want YYYY-MM-DD")
			return
		}
		week = parsed
	}
	totals, err := h.service.ClusterStockTotals(r.Context(), week)
	if err != nil {
		h.logger.Error("stock totals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"week_ending": week.Format("2006-01-02"), "clusters": totals})
}

type stockEntriesRequest struct {
	WeekEnding string `json:"week_ending" validate:"required,datetime=2006-01-02"`
	Entries    []struct {
		ProductID int64   `json:"product_id" validate:"required"`
		QtyOnHand float64 `json:"qty_on_hand" validate:"gte=0"`
	} `json:"entries" validate:"required,min=1,dive"`
}

func (h *Handler) saveStock(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req stockEntriesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	week, _ := time.Parse("2006-01-02", req.WeekEnding)
	entries := make([]StockEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, StockEntry{ProductID: e.ProductID, WeekEnding: week, QtyOnHand: e.QtyOnHand})
	}
	if err := h.service.SaveStockEntries(r.Context(), identity.UserID, entries); err != nil {
		h.logger.Error("save stock", slog.Any("error", err), slog.String("user_id", identity.UserID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"saved": len(entries)})
}

// lastWeekEnding returns the most recent Sunday on or before t.
func lastWeekEnding(t time.Time) time.Time {
	t = t.Truncate(24 * time.Hour)
	offset := int(t.Weekday())
	return t.AddDate(0, 0, -offset)
}
