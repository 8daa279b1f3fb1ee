package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"half overlap", []string{"a", "b", "c"}, []string{"a", "b", "d"}, 0.5},
		{"case insensitive", []string{"Rust", "ERROR"}, []string{"rust", "error"}, 1.0},
		{"disjoint", []string{"a"}, []string{"b"}, 0.0},
		{"both empty", nil, nil, 1.0},
		{"one empty", []string{"a"}, nil, 0.0},
		{"duplicates collapse", []string{"a", "a", "b"}, []string{"a"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, JaccardSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSignals(t *testing.T) {
	q := lowerSet([]string{"E1", "E2"})
	assert.InDelta(t, 0.5, errorCodeScore(q, lowerSet([]string{"e1"})), 1e-9)
	assert.Zero(t, errorCodeScore(nil, lowerSet([]string{"e1"})))
	assert.Zero(t, errorCodeScore(q, nil))

	assert.InDelta(t, 1.0/3.0, tagScore(lowerSet([]string{"a", "b"}), lowerSet([]string{"b", "c"})), 1e-9)
	assert.Zero(t, tagScore(nil, lowerSet([]string{"a"})))

	assert.Equal(t, 1.0, pathScore("src/main.rs", []string{".py", ".rs"}))
	assert.Zero(t, pathScore("src/main.rs", []string{".py"}))
	assert.Zero(t, pathScore("", []string{".rs"}))
}

func TestMatchKeywordCounts(t *testing.T) {
	counts, err := MatchKeywordCounts("I need help with a Rust compile error in my code", testPatterns())
	require.NoError(t, err)
	require.NotEmpty(t, counts)

	assert.Equal(t, KeywordCount{PatternIndex: 0, Count: 3}, counts[0])
	assert.Contains(t, counts, KeywordCount{PatternIndex: 2, Count: 1})

	counts, err = MatchKeywordCounts("nothing relevant", testPatterns())
	require.NoError(t, err)
	assert.Empty(t, counts)

	counts, err = MatchKeywordCounts("anything", nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
