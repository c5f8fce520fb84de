package ingest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tidemark-io/tidemark/internal/platform/httpx"
)

// Handler exposes the token-guarded collaborator load surface. Every accepted
// load is tagged with a batch id so collaborators can quote it when a feed
// needs tracing.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	tokenHash string
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokenHash string) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), tokenHash: tokenHash}
}

// MountRoutes registers ingest routes behind the token guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(TokenMiddleware(h.tokenHash))
		r.Post("/ingest/customers", h.customers)
		r.Post("/ingest/products", h.products)
		r.Post("/ingest/sales-lines", h.salesLines)
		r.Post("/ingest/invoices", h.invoices)
	})
}

func (h *Handler) customers(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[CustomerUpsert](h, w, r)
	if !ok {
		return
	}
	if err := h.service.LoadCustomers(r.Context(), rows); err != nil {
		h.logger.Error("ingest customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.accept(w, "customers", len(rows))
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[ProductUpsert](h, w, r)
	if !ok {
		return
	}
	if err := h.service.LoadProducts(r.Context(), rows); err != nil {
		h.logger.Error("ingest products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.accept(w, "products", len(rows))
}

func (h *Handler) salesLines(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[SalesLineRow](h, w, r)
	if !ok {
		return
	}
	inserted, err := h.service.LoadSalesLines(r.Context(), rows)
	if err != nil {
		h.logger.Error("ingest sales lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.accept(w, "sales-lines", inserted)
}

func (h *Handler) invoices(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[InvoiceRow](h, w, r)
	if !ok {
		return
	}
	if err := h.service.LoadInvoices(r.Context(), rows); err != nil {
		h.logger.Error("ingest invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.accept(w, "invoices", len(rows))
}

func (h *Handler) accept(w http.ResponseWriter, feed string, loaded int) {
	batchID := uuid.NewString()
	h.logger.Info("ingest batch accepted",
		slog.String("batch_id", batchID),
		slog.String("feed", feed),
		slog.Int("loaded", loaded))
	httpx.JSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "loaded": loaded})
}

// decodeRows parses the body and validates every element. Returns ok=false
// after writing the error response.
func decodeRows[T any](h *Handler, w http.ResponseWriter, r *http.Request) ([]T, bool) {
	var rows []T
	if err := httpx.DecodeJSON(r, &rows); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return nil, false
	}
	for i, row := range rows {
		if err := h.validator.Struct(row); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
				fmt.Sprintf("row %d: %s", i, err.Error()))
			return nil, false
		}
	}
	return rows, true
}
