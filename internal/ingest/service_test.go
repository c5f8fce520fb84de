package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tidemark-io/tidemark/internal/shared"
)

type memoryRepo struct {
	customers  []CustomerUpsert
	products   []ProductUpsert
	salesLines []SalesLineRow
	invoices   []InvoiceRow
}

func (m *memoryRepo) UpsertCustomers(_ context.Context, rows []CustomerUpsert) error {
	m.customers = append(m.customers, rows...)
	return nil
}

func (m *memoryRepo) UpsertProducts(_ context.Context, rows []ProductUpsert) error {
	m.products = append(m.products, rows...)
	return nil
}

func (m *memoryRepo) AppendSalesLines(_ context.Context, rows []SalesLineRow) (int, error) {
	m.salesLines = append(m.salesLines, rows...)
	return len(rows), nil
}

func (m *memoryRepo) UpsertInvoices(_ context.Context, rows []InvoiceRow) error {
	m.invoices = append(m.invoices, rows...)
	return nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadsBumpReportCache(t *testing.T) {
	repo := &memoryRepo{}
	inv := &countingInvalidator{}
	svc := NewService(repo, testLogger(), inv)
	ctx := context.Background()

	require.NoError(t, svc.LoadCustomers(ctx, []CustomerUpsert{{ID: 1, Name: "Farmlands"}}))
	require.NoError(t, svc.LoadProducts(ctx, []ProductUpsert{{ID: 10, Name: "Tray 6pk"}}))
	n, err := svc.LoadSalesLines(ctx, []SalesLineRow{
		{InvoiceNumber: "INV-1", InvoiceDate: "2026-04-01", CustomerID: 1, ProductID: 10, Qty: 2, LineAmount: 20},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, svc.LoadInvoices(ctx, []InvoiceRow{
		{InvoiceNumber: "INV-1", InvoiceDate: "2026-04-01", CustomerID: 1, AmountDue: 20},
	}))

	require.Equal(t, 4, inv.bumps, "every load invalidates cached reports")
	require.Len(t, repo.customers, 1)
	require.Len(t, repo.salesLines, 1)
}

func TestLoadValidation(t *testing.T) {
	svc := NewService(&memoryRepo{}, testLogger(), nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.LoadCustomers(ctx, nil), shared.ErrValidation)
	require.ErrorIs(t, svc.LoadProducts(ctx, nil), shared.ErrValidation)
	_, err := svc.LoadSalesLines(ctx, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, svc.LoadInvoices(ctx, nil), shared.ErrValidation)

	err = svc.LoadProducts(ctx, []ProductUpsert{{
		ID: 10, Name: "Seedling flat", WIPForClusterID: ptr(int64(1)), ProductType: "finished",
	}})
	require.ErrorIs(t, err, shared.ErrValidation, "wip link requires wip type")
}

func TestLoadProductsRejectsWIPWithoutClusterLink(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, testLogger(), nil)

	err := svc.LoadProducts(context.Background(), []ProductUpsert{{
		ID: 11, Name: "Bulk blank", ProductType: "wip",
	}})
	require.ErrorIs(t, err, shared.ErrValidation, "wip type requires a cluster link")
	require.Empty(t, repo.products, "rejected rows are never written")
}

func ptr[T any](v T) *T { return &v }

func TestTokenMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("load-token"), bcrypt.DefaultCost)
	require.NoError(t, err)

	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
	guard := TokenMiddleware(string(hash))(next)

	call := func(authorization string) int {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/ingest/customers", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, call(""))
	require.False(t, reached)
	require.Equal(t, http.StatusUnauthorized, call("Bearer wrong-token"))
	require.False(t, reached)
	require.Equal(t, http.StatusOK, call("Bearer load-token"))
	require.True(t, reached)

	disabled := TokenMiddleware("")(next)
	req := httptest.NewRequest(http.MethodPost, "/ingest/customers", nil)
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
