package knowledge

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/keywords"
)

// Signal weights for the combined score.
const (
	weightKeyword   = 0.40
	weightErrorCode = 0.25
	weightTag       = 0.20
	weightPath      = 0.15
)

// combine fuses the signals into a single score scaled by priority.
func combine(s SignalScores, priority float64) float64 {
	return (s.KeywordScore*weightKeyword +
		s.ErrorCodeScore*weightErrorCode +
		s.TagScore*weightTag +
		s.PathScore*weightPath) * priority
}

// lowerSet returns the lowercased members of items as a set.
func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
}

func intersectCount(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// errorCodeScore is the fraction of query error codes the pattern shares.
func errorCodeScore(query, pattern map[string]struct{}) float64 {
	if len(query) == 0 || len(pattern) == 0 {
		return 0
	}
	return float64(intersectCount(query, pattern)) / float64(max(1, len(query)))
}

// tagScore is the Jaccard similarity of the tag sets, 0 if either is empty.
func tagScore(query, pattern map[string]struct{}) float64 {
	if len(query) == 0 || len(pattern) == 0 {
		return 0
	}
	inter := intersectCount(query, pattern)
	union := len(query) + len(pattern) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// pathScore is 1 when lowerPath contains any of the lowercased path patterns.
func pathScore(lowerPath string, patterns []string) float64 {
	if lowerPath == "" {
		return 0
	}
	for _, p := range patterns {
		if strings.Contains(lowerPath, p) {
			return 1
		}
	}
	return 0
}

// JaccardSimilarity compares two string sets case-insensitively. Two empty
// sets are identical (1.0); exactly one empty set yields 0.0.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA, setB := lowerSet(a), lowerSet(b)
	inter := intersectCount(setA, setB)
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// MatchKeywordCounts scans content once against the keywords of patterns and
// returns the raw occurrence count per pattern, highest count first. It
// builds a throwaway index and does no caching or scoring.
func MatchKeywordCounts(content string, patterns []Pattern) ([]KeywordCount, error) {
	records := make([][]string, len(patterns))
	for i, p := range patterns {
		records[i] = p.Keywords
	}

	idx, err := keywords.New(records)
	if err != nil {
		return nil, err
	}

	counts := idx.Count(content)
	out := make([]KeywordCount, 0, len(counts))
	for i, n := range counts {
		out = append(out, KeywordCount{PatternIndex: i, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PatternIndex < out[j].PatternIndex
	})
	return out, nil
}
