package knowledge

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPatterns() []Pattern {
	return []Pattern{
		{
			ID:           "pat1",
			Keywords:     []string{"rust", "error", "compile"},
			ErrorCodes:   []string{"E0001", "E0002"},
			Tags:         []string{"rust", "compiler"},
			PathPatterns: []string{"src/", ".rs"},
			Priority:     0.9,
			Content:      "Rust compilation error fix",
		},
		{
			ID:           "pat2",
			Keywords:     []string{"python", "import", "module"},
			ErrorCodes:   []string{"ImportError"},
			Tags:         []string{"python", "import"},
			PathPatterns: []string{".py"},
			Priority:     0.8,
			Content:      "Python import error fix",
		},
		{
			ID:           "pat3",
			Keywords:     []string{"typescript", "type", "error"},
			ErrorCodes:   []string{"TS2322"},
			Tags:         []string{"typescript", "types"},
			PathPatterns: []string{".ts", ".tsx"},
			Priority:     0.85,
			Content:      "TypeScript type error fix",
		},
	}
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)
	assert.Len(t, engine.Patterns(), 3)

	p, ok := engine.Pattern("pat2")
	require.True(t, ok)
	assert.Equal(t, "Python import error fix", p.Content)

	_, ok = engine.Pattern("missing")
	assert.False(t, ok)
}

func TestNewEngine_EmptyPatterns(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)
	assert.Empty(t, engine.MatchPatterns(Query{Text: "rust compile error"}, 5))
}

func TestMustNewEngine(t *testing.T) {
	assert.NotPanics(t, func() {
		MustNewEngine(testPatterns())
	})
}

func TestMatchPatterns_SinglePattern(t *testing.T) {
	engine, err := NewEngine([]Pattern{{
		ID:         "rust-compile",
		Keywords:   []string{"rust", "error", "compile"},
		ErrorCodes: []string{"E0001"},
		Tags:       []string{"rust"},
		Priority:   0.9,
	}})
	require.NoError(t, err)

	matches := engine.MatchPatterns(Query{
		Text:       "rust compile error",
		ErrorCodes: []string{"E0001"},
		Tags:       []string{"rust"},
	}, 5)

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "rust-compile", m.PatternID)
	assert.Greater(t, m.Score, 0.5)
	assert.InDelta(t, (0.40+0.25+0.20)*0.9, m.Score, 1e-9)
	assert.Equal(t, 3, m.KeywordMatches)
	assert.Equal(t, SignalScores{KeywordScore: 1, ErrorCodeScore: 1, TagScore: 1}, m.Signals)
}

func TestMatchPatterns_Ranking(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  Query
		wantID string
	}{
		{
			name: "rust",
			query: Query{
				Text:       "I have a rust compile error",
				ErrorCodes: []string{"E0001"},
				Tags:       []string{"rust"},
				FilePath:   "src/main.rs",
			},
			wantID: "pat1",
		},
		{
			name: "python",
			query: Query{
				Text:       "python import module error",
				ErrorCodes: []string{"ImportError"},
				Tags:       []string{"python"},
				FilePath:   "app/main.py",
			},
			wantID: "pat2",
		},
		{
			name: "typescript with mixed case",
			query: Query{
				Text:       "TypeScript TYPE Error",
				ErrorCodes: []string{"ts2322"},
				FilePath:   "web/App.TSX",
			},
			wantID: "pat3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := engine.MatchPatterns(tt.query, 3)
			require.NotEmpty(t, matches)
			assert.Equal(t, tt.wantID, matches[0].PatternID)
			for i := 1; i < len(matches); i++ {
				assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
			}
		})
	}
}

func TestMatchPatterns_NoMatches(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	assert.Empty(t, engine.MatchPatterns(Query{Text: ""}, 3))
	assert.Empty(t, engine.MatchPatterns(Query{Text: "completely unrelated query about cooking recipes"}, 3))
	assert.Empty(t, engine.MatchPatterns(Query{Text: "rust error"}, 0))
}

func TestMatchPatterns_ZeroPriorityDropped(t *testing.T) {
	engine, err := NewEngine([]Pattern{
		{ID: "muted", Keywords: []string{"error"}, Priority: 0},
		{ID: "live", Keywords: []string{"error"}, Priority: 0.5},
	})
	require.NoError(t, err)

	matches := engine.MatchPatterns(Query{Text: "error"}, 5)
	require.Len(t, matches, 1)
	assert.Equal(t, "live", matches[0].PatternID)
}

func TestMatchPatterns_KeywordScoreCapped(t *testing.T) {
	engine, err := NewEngine([]Pattern{
		{ID: "p", Keywords: []string{"panic", "unwrap"}, Priority: 1},
	})
	require.NoError(t, err)

	matches := engine.MatchPatterns(Query{Text: "panic panic panic panic"}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, 4, matches[0].KeywordMatches)
	assert.Equal(t, 1.0, matches[0].Signals.KeywordScore)
	assert.InDelta(t, 0.40, matches[0].Score, 1e-9)
}

func TestMatchPatterns_StableTies(t *testing.T) {
	var patterns []Pattern
	for i := range 5 {
		patterns = append(patterns, Pattern{
			ID:       fmt.Sprintf("p%d", i),
			Keywords: []string{"shared"},
			Priority: 0.5,
		})
	}
	engine, err := NewEngine(patterns)
	require.NoError(t, err)

	matches := engine.MatchPatterns(Query{Text: "shared"}, 5)
	require.Len(t, matches, 5)
	for i, m := range matches {
		assert.Equal(t, fmt.Sprintf("p%d", i), m.PatternID)
	}
}

func TestMatchPatterns_BoundsAndRange(t *testing.T) {
	engine, err := NewEngine(append(testPatterns(), Pattern{
		ID:       "overweight",
		Keywords: []string{"error"},
		Tags:     []string{"rust"},
		Priority: 7,
	}))
	require.NoError(t, err)

	queries := []Query{
		{Text: "error error error", Tags: []string{"rust"}, FilePath: "src/lib.rs", ErrorCodes: []string{"E0001"}},
		{Text: "python module import type error", Tags: []string{"python", "types"}},
		{Text: "typescript"},
	}
	for _, q := range queries {
		for topK := 1; topK <= 5; topK++ {
			matches := engine.MatchPatterns(q, topK)
			assert.LessOrEqual(t, len(matches), topK)
			for _, m := range matches {
				assert.GreaterOrEqual(t, m.Score, 0.0)
				assert.LessOrEqual(t, m.Score, 1.0)
			}
		}
	}
}

func TestMatchPatterns_HugeTopK(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	for _, topK := range []int{math.MaxInt, math.MaxInt/2 + 1} {
		var matches []PatternMatch
		require.NotPanics(t, func() {
			matches = engine.MatchPatterns(Query{Text: "rust compile"}, topK)
		})
		require.Len(t, matches, 1)
		assert.Equal(t, "pat1", matches[0].PatternID)
	}
	assert.Equal(t, 1, engine.CacheStats().Total)
}

func TestMatchPatterns_CacheIdempotence(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	q := Query{Text: "rust error", Tags: []string{"rust"}}
	first := engine.MatchPatterns(q, 3)
	require.Equal(t, int64(1), engine.scored.Load())

	second := engine.MatchPatterns(q, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), engine.scored.Load(), "second call must be served from cache")

	stats := engine.CacheStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Valid)
}

func TestMatchPatterns_CachedResultsNotAliased(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	q := Query{Text: "rust compile error"}
	first := engine.MatchPatterns(q, 3)
	require.NotEmpty(t, first)
	first[0].PatternID = "mutated"

	second := engine.MatchPatterns(q, 3)
	assert.Equal(t, "pat1", second[0].PatternID)
}

func TestMatchPatterns_CacheKeyDistinguishesFields(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	engine.MatchPatterns(Query{Text: "rust error"}, 3)
	engine.MatchPatterns(Query{Text: "rust error", Tags: []string{"rust"}}, 3)
	engine.MatchPatterns(Query{Text: "rust error", ErrorCodes: []string{"rust"}}, 3)
	engine.MatchPatterns(Query{Text: "rust error", FilePath: "src/a.rs"}, 3)

	assert.Equal(t, int64(4), engine.scored.Load())
	assert.Equal(t, 4, engine.CacheStats().Total)
}

func TestMatchPatterns_CacheExpiry(t *testing.T) {
	clock := newFakeClock()
	engine, err := NewEngine(testPatterns(), WithClock(clock.Now), WithCacheTTL(time.Minute))
	require.NoError(t, err)

	q := Query{Text: "python import"}
	engine.MatchPatterns(q, 3)
	clock.Advance(30 * time.Second)
	engine.MatchPatterns(q, 3)
	assert.Equal(t, int64(1), engine.scored.Load())

	clock.Advance(31 * time.Second)
	stats := engine.CacheStats()
	assert.Equal(t, CacheStats{Total: 1, Valid: 0}, stats)

	engine.MatchPatterns(q, 3)
	assert.Equal(t, int64(2), engine.scored.Load())
}

func TestClearCache(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)

	engine.MatchPatterns(Query{Text: "rust"}, 3)
	engine.MatchPatterns(Query{Text: "python"}, 3)
	assert.Equal(t, 2, engine.CacheStats().Total)

	engine.ClearCache()
	assert.Equal(t, CacheStats{}, engine.CacheStats())
}

func TestCalculateScore(t *testing.T) {
	engine, err := NewEngine(testPatterns())
	require.NoError(t, err)
	pat1 := testPatterns()[0]

	score := engine.CalculateScore(Query{
		Text:       "Rust compile error",
		ErrorCodes: []string{"E0001"},
		Tags:       []string{"rust", "compiler"},
		FilePath:   "src/main.rs",
	}, pat1)
	assert.InDelta(t, 0.9, score, 1e-9)

	// Repeated occurrences of one keyword count once.
	score = CalculateScore(Query{Text: "rust rust rust"}, pat1)
	assert.InDelta(t, 0.40*(1.0/3.0)*0.9, score, 1e-9)

	assert.Zero(t, CalculateScore(Query{}, pat1))
}

func TestPattern_UnmarshalDefaultsPriority(t *testing.T) {
	var p Pattern
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","keywords":["a"]}`), &p))
	assert.Equal(t, DefaultPriority, p.Priority)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"y","priority":0.2}`), &p))
	assert.Equal(t, 0.2, p.Priority)
	assert.Equal(t, "y", p.ID)
}
