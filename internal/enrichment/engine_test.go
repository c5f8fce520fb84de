package enrichment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/shared"
)

func ptr(v int64) *int64 { return &v }

func testDims() Dimensions {
	return Dimensions{
		Customers: map[int64]dimension.Customer{
			1: {ID: 1, Name: "Farmlands Kamo", Market: "Local", MerchantGroup: "Farmlands"},
			2: {ID: 2, Name: "Farmlands Kamo (old)", MasterID: ptr(1), Archived: true},
			3: {ID: 3, Name: "Dead End Retail", Archived: true},
		},
		Products: map[int64]dimension.Product{
			10: {ID: 10, Code: "CR12", Name: "Crate 12pk", Group: "Beverage"},
			11: {ID: 11, Code: "CR12-OLD", Name: "Crate 12pk old", MasterID: ptr(10)},
			12: {ID: 12, Name: "Bulk Crate", Type: dimension.ProductWIP, WIPForClusterID: ptr(100)},
			13: {ID: 13, Name: "Retired", Archived: true},
			14: {ID: 14, Code: "FR", Name: "Freight Charge", Group: "Freight"},
		},
		CustomerClusters: map[int64]ClusterRef{
			1: {ID: 100, Label: "North Island"},
		},
		ExcludedGroups: map[string]struct{}{
			"Freight": {},
		},
	}
}

func line(customer, product int64) SalesLine {
	return SalesLine{
		ID:            1,
		InvoiceNumber: "INV-1",
		InvoiceDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CustomerID:    customer,
		ProductID:     product,
		Qty:           2,
		UnitPrice:     5,
		LineAmount:    10,
		DocumentType:  "ACCREC",
	}
}

func TestEnrichInheritsCanonicalAttributes(t *testing.T) {
	res, err := Enrich([]SalesLine{line(2, 11)}, testDims())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)

	got := res.Lines[0]
	require.Equal(t, int64(1), got.CanonicalCustomerID)
	require.Equal(t, "Farmlands Kamo", got.CustomerName)
	require.Equal(t, "Farmlands", got.MerchantGroup)
	require.Equal(t, int64(10), got.CanonicalProductID)
	require.Equal(t, "CR12", got.ProductCode)
	require.Equal(t, "Beverage", got.ProductGroup)
	require.NotNil(t, got.ClusterID)
	require.Equal(t, int64(100), *got.ClusterID)
	require.Equal(t, "North Island", got.ClusterLabel)
}

func TestEnrichRollsUpArchivedCustomerWithActiveMaster(t *testing.T) {
	// Customer 2 is archived but merged into active master 1: its sales
	// must contribute under the master's canonical id, never be dropped.
	res, err := Enrich([]SalesLine{line(2, 10)}, testDims())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	require.Equal(t, int64(1), res.Lines[0].CanonicalCustomerID)
	require.Zero(t, res.Excluded[ReasonArchivedCustomer])
}

func TestEnrichExcludesArchivedRootCustomer(t *testing.T) {
	res, err := Enrich([]SalesLine{line(3, 10)}, testDims())
	require.NoError(t, err)
	require.Empty(t, res.Lines)
	require.Equal(t, 1, res.Excluded[ReasonArchivedCustomer])
}

func TestEnrichNeverEmitsWIPProducts(t *testing.T) {
	dims := testDims()
	res, err := Enrich([]SalesLine{line(1, 12)}, dims)
	require.NoError(t, err)
	require.Empty(t, res.Lines)
	require.Equal(t, 1, res.Excluded[ReasonWIPProduct])

	// Also when reached through a merge chain.
	dims.Products[15] = dimension.Product{ID: 15, Name: "Bulk alias", MasterID: ptr(12)}
	res, err = Enrich([]SalesLine{line(1, 15)}, dims)
	require.NoError(t, err)
	require.Empty(t, res.Lines)

	for _, l := range res.Lines {
		root := dims.Products[l.CanonicalProductID]
		require.NotEqual(t, dimension.ProductWIP, root.Type)
	}
}

func TestEnrichExcludesArchivedProductAnywhereOnChain(t *testing.T) {
	dims := testDims()
	// Active alias merged into an archived intermediate, itself merged on.
	dims.Products[13] = dimension.Product{ID: 13, Name: "Retired", Archived: true, MasterID: ptr(10)}
	dims.Products[16] = dimension.Product{ID: 16, Name: "Alias", MasterID: ptr(13)}

	res, err := Enrich([]SalesLine{line(1, 16)}, dims)
	require.NoError(t, err)
	require.Empty(t, res.Lines)
	require.Equal(t, 1, res.Excluded[ReasonArchivedProduct])
}

func TestEnrichExcludesNonRevenueGroups(t *testing.T) {
	res, err := Enrich([]SalesLine{line(1, 14)}, testDims())
	require.NoError(t, err)
	require.Empty(t, res.Lines)
	require.Equal(t, 1, res.Excluded[ReasonExcludedGroup])
}

func TestEnrichDegradesMissingDimensionsToUnknown(t *testing.T) {
	res, err := Enrich([]SalesLine{line(999, 998)}, testDims())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)

	got := res.Lines[0]
	require.Equal(t, int64(999), got.CanonicalCustomerID)
	require.Equal(t, UnknownLabel, got.CustomerName)
	require.Equal(t, UnknownLabel, got.Market)
	require.Equal(t, UnknownLabel, got.MerchantGroup)
	require.Equal(t, UnknownLabel, got.ProductCode)
	require.Equal(t, UnknownLabel, got.ProductGroup)
	require.Nil(t, got.ClusterID)
}

func TestEnrichFailsClosedOnCorruptChain(t *testing.T) {
	dims := testDims()
	dims.Customers[20] = dimension.Customer{ID: 20, Name: "A", MasterID: ptr(21)}
	dims.Customers[21] = dimension.Customer{ID: 21, Name: "B", MasterID: ptr(20)}

	_, err := Enrich([]SalesLine{line(20, 10)}, dims)
	require.ErrorIs(t, err, shared.ErrResolution)

	dims = testDims()
	dims.Products[30] = dimension.Product{ID: 30, Name: "P1", MasterID: ptr(31)}
	dims.Products[31] = dimension.Product{ID: 31, Name: "P2", MasterID: ptr(30)}

	_, err = Enrich([]SalesLine{line(1, 30)}, dims)
	require.ErrorIs(t, err, shared.ErrResolution)
}
