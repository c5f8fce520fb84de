package dimension

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/shared"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Local - 1:Farmlands:Kamo":      "farmlands kamo",
		"Farmlands - Kamo":              "farmlands kamo",
		"The Brand Outlet - Cashier1":   "brand outlet cashier1",
		"Export - 12:Harbour  Traders":  "harbour traders",
		"Café Olé":                      "cafe ole",
		"  B&B Wholesale / North Is.  ": "bb wholesale north is",
		"":                              "",
	}
	for input, want := range cases {
		require.Equal(t, want, NormalizeName(input), "input %q", input)
	}
}

func TestSimilarity(t *testing.T) {
	require.Equal(t, 1.0, Similarity("Local - 1:Farmlands:Kamo", "Farmlands - Kamo"))
	require.Equal(t, 0.0, Similarity("", "Farmlands"))

	close := Similarity("Farmlands Kamo", "Farmlands Kamoo")
	require.Greater(t, close, 0.7)
	require.Less(t, close, 1.0)

	far := Similarity("Farmlands Kamo", "Harbour Traders")
	require.Less(t, far, 0.3)
}

func TestClassifyScore(t *testing.T) {
	require.Equal(t, MatchExact, ClassifyScore(0.97))
	require.Equal(t, MatchHigh, ClassifyScore(0.8))
	require.Equal(t, MatchMedium, ClassifyScore(0.55))
	require.Equal(t, MatchLow, ClassifyScore(0.2))
}

func TestMatchSuggestionsGroupsByLowestID(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "Farmlands Kamo", nil)
	repo.add(KindCustomer, 2, "Local - 1:Farmlands:Kamo", nil)
	repo.add(KindCustomer, 3, "Harbour Traders", nil)
	master := int64(1)
	repo.add(KindCustomer, 4, "Farmlands  Kamo", &master) // already merged, skipped
	repo.records[KindCustomer][3].Archived = false

	svc := newTestService(repo)
	groups, err := svc.MatchSuggestions(context.Background(), KindCustomer, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, int64(1), groups[0].MasterID)
	require.Len(t, groups[0].Candidates, 1)
	require.Equal(t, int64(2), groups[0].Candidates[0].ID)
	require.Equal(t, MatchExact, groups[0].Candidates[0].Confidence)
}

func TestMatchSuggestionsValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.MatchSuggestions(ctx, KindCustomer, 0, 10)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.MatchSuggestions(ctx, KindCustomer, 0.5, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.MatchSuggestions(ctx, "warehouse", 0.5, 10)
	require.ErrorIs(t, err, shared.ErrValidation)
}
