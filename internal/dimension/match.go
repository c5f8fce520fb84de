package dimension

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/tidemark-io/tidemark/internal/shared"
)

// Noise prefixes carried in from upstream invoicing exports, e.g.
// "Local - 1:Farmlands:Kamo" or "Export - 2:Harbour Traders".
var noisePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^local\s*-\s*\d+:`),
	regexp.MustCompile(`^export\s*-\s*\d+:`),
	regexp.MustCompile(`^the\s+`),
}

var separatorRun = regexp.MustCompile(`[:\-_/\\]+`)
var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// NormalizeName canonicalises an entity name for similarity scoring:
// lowercase, diacritics folded, export noise prefixes stripped, separators
// unified to single spaces.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = foldDiacritics(s)
	for _, re := range noisePrefixes {
		s = re.ReplaceAllString(s, "")
	}
	s = separatorRun.ReplaceAllString(s, " ")
	s = nonAlnum.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func foldDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	runes := []rune(" " + s + " ")
	if len(runes) < 3 {
		return set
	}
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// Similarity scores two raw names in [0,1] using the Dice coefficient over
// trigrams of the normalized forms.
func Similarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ta, tb := trigrams(na), trigrams(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ta)+len(tb))
}

// Match confidence labels.
const (
	MatchExact  = "exact"
	MatchHigh   = "high"
	MatchMedium = "medium"
	MatchLow    = "low"
)

// ClassifyScore labels a similarity score.
func ClassifyScore(score float64) string {
	switch {
	case score >= 0.95:
		return MatchExact
	case score >= 0.7:
		return MatchHigh
	case score >= 0.5:
		return MatchMedium
	default:
		return MatchLow
	}
}

// MatchCandidate is one suggested merge child.
type MatchCandidate struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// MatchGroup collects candidates under a designated master. The lowest id in
// a matching pair is designated master, it being the longest-lived record.
type MatchGroup struct {
	MasterID   int64            `json:"master_id"`
	MasterName string           `json:"master_name"`
	Candidates []MatchCandidate `json:"candidates"`
}

// MatchSuggestions scores pairwise similarity among un-merged, un-archived
// entities of one kind. Purely advisory; never mutates state.
func (s *Service) MatchSuggestions(ctx context.Context, kind Kind, threshold float64, limit int) ([]MatchGroup, error) {
	if !kind.Valid() {
		return nil, shared.Validationf("unknown dimension kind %q", kind)
	}
	if threshold <= 0 || threshold > 1 {
		return nil, shared.Validationf("threshold must be in (0,1], got %v", threshold)
	}
	if limit <= 0 {
		return nil, shared.Validationf("limit must be positive, got %d", limit)
	}

	records, err := s.repo.ListMatchCandidates(ctx, kind)
	if err != nil {
		return nil, err
	}

	type pair struct {
		master, candidate Record
		score             float64
	}
	var pairs []pair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			score := Similarity(records[i].Name, records[j].Name)
			if score < threshold {
				continue
			}
			master, candidate := records[i], records[j]
			if candidate.ID < master.ID {
				master, candidate = candidate, master
			}
			pairs = append(pairs, pair{master: master, candidate: candidate, score: score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	groupIndex := map[int64]int{}
	var groups []MatchGroup
	for _, p := range pairs {
		idx, ok := groupIndex[p.master.ID]
		if !ok {
			idx = len(groups)
			groupIndex[p.master.ID] = idx
			groups = append(groups, MatchGroup{MasterID: p.master.ID, MasterName: p.master.Name})
		}
		groups[idx].Candidates = append(groups[idx].Candidates, MatchCandidate{
			ID:         p.candidate.ID,
			Name:       p.candidate.Name,
			Score:      p.score,
			Confidence: ClassifyScore(p.score),
		})
	}
	return groups, nil
}
