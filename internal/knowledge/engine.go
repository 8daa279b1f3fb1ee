// Package knowledge implements the multi-signal pattern matcher.
//
// An Engine is built once from a fixed set of patterns. Each query is scanned
// with a keyword automaton, scored on four signals (keywords, error codes,
// tags, file path), ranked, and cached for a short TTL.
//
// Example usage:
//
//	engine, err := knowledge.NewEngine(patterns, knowledge.WithLogger(logger))
//	matches := engine.MatchPatterns(knowledge.Query{Text: "rust compile error"}, 5)
package knowledge

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/keywords"
)

// compiledPattern carries the lowercased views of a pattern used in scoring.
type compiledPattern struct {
	keywordCount int
	errorCodes   map[string]struct{}
	tags         map[string]struct{}
	paths        []string
	priority     float64
}

// Engine matches queries against an immutable pattern set.
//
// Engine is safe for concurrent use. The result cache is the only mutable
// state and its lock is never held while scanning or scoring.
type Engine struct {
	patterns []Pattern
	compiled []compiledPattern
	index    *keywords.Index
	cache    *resultCache
	logger   *zap.Logger
	metrics  *Metrics

	// scored counts uncached scoring passes.
	scored atomic.Int64
}

type engineOptions struct {
	cacheTTL        time.Duration
	cacheMaxEntries int
	clock           func() time.Time
	logger          *zap.Logger
	metrics         *Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

// WithCacheTTL sets how long ranked results stay valid.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.cacheTTL = ttl
	}
}

// WithCacheMaxEntries bounds the number of cached queries.
func WithCacheMaxEntries(n int) EngineOption {
	return func(o *engineOptions) {
		o.cacheMaxEntries = n
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.clock = now
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// NewEngine builds an engine over patterns. The slice is copied; later
// changes by the caller are not observed. An error is returned only when the
// keyword automaton cannot be built.
func NewEngine(patterns []Pattern, opts ...EngineOption) (*Engine, error) {
	o := engineOptions{
		cacheTTL:        DefaultCacheTTL,
		cacheMaxEntries: DefaultCacheMaxEntries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	e := &Engine{
		patterns: make([]Pattern, len(patterns)),
		compiled: make([]compiledPattern, len(patterns)),
		logger:   o.logger,
		metrics:  o.metrics,
	}
	copy(e.patterns, patterns)

	records := make([][]string, len(patterns))
	for i, p := range e.patterns {
		records[i] = p.Keywords
		e.compiled[i] = compiledPattern{
			keywordCount: len(lowerSet(nonEmpty(p.Keywords))),
			errorCodes:   lowerSet(p.ErrorCodes),
			tags:         lowerSet(p.Tags),
			paths:        lowerAll(nonEmpty(p.PathPatterns)),
			priority:     clamp01(p.Priority),
		}
	}

	index, err := keywords.New(records)
	if err != nil {
		return nil, fmt.Errorf("building knowledge engine: %w", err)
	}
	e.index = index

	e.cache = newResultCache(o.cacheTTL, o.cacheMaxEntries, o.clock, o.logger)
	e.cache.metrics = o.metrics

	e.logger.Debug("knowledge engine built",
		zap.Int("patterns", len(e.patterns)),
		zap.Int("keywords", index.Len()))

	return e, nil
}

// MustNewEngine is like NewEngine but panics on error.
func MustNewEngine(patterns []Pattern, opts ...EngineOption) *Engine {
	e, err := NewEngine(patterns, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Patterns returns a copy of the engine's pattern set.
func (e *Engine) Patterns() []Pattern {
	out := make([]Pattern, len(e.patterns))
	copy(out, e.patterns)
	return out
}

// Pattern returns the pattern with the given id.
func (e *Engine) Pattern(id string) (Pattern, bool) {
	for _, p := range e.patterns {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

// MatchPatterns returns at most topK patterns ranked by combined score.
//
// A fresh cached result for an identical query short-circuits scoring. On a
// miss the top 2*topK results are cached. Empty or unmatched queries return
// an empty result.
func (e *Engine) MatchPatterns(query Query, topK int) []PatternMatch {
	if topK <= 0 {
		return nil
	}

	key := cacheKey(query)
	if cached, ok := e.cache.get(key); ok {
		e.logger.Debug("knowledge cache hit", zap.String("key", key))
		return cached[:min(topK, len(cached))]
	}

	start := time.Now()
	results := e.score(query)
	if e.metrics != nil {
		e.metrics.RecordMatch(time.Since(start).Seconds(), len(results))
	}

	n := len(results)
	if topK < (n+1)/2 {
		n = 2 * topK
	}
	toCache := make([]PatternMatch, n)
	copy(toCache, results)
	e.cache.set(key, toCache)

	return results[:min(topK, len(results))]
}

// score runs the keyword scan and signal fusion for every pattern with at
// least one keyword occurrence.
func (e *Engine) score(query Query) []PatternMatch {
	e.scored.Add(1)

	counts := e.index.Count(query.Text)
	if len(counts) == 0 {
		return nil
	}

	queryErrors := lowerSet(query.ErrorCodes)
	queryTags := lowerSet(query.Tags)
	lowerPath := strings.ToLower(query.FilePath)

	// Ascending pattern order keeps the stable sort deterministic.
	indices := make([]int, 0, len(counts))
	for i := range counts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	results := make([]PatternMatch, 0, len(indices))
	for _, i := range indices {
		cp := e.compiled[i]
		signals := SignalScores{
			ErrorCodeScore: errorCodeScore(queryErrors, cp.errorCodes),
			TagScore:       tagScore(queryTags, cp.tags),
			PathScore:      pathScore(lowerPath, cp.paths),
		}
		if cp.keywordCount > 0 {
			signals.KeywordScore = math.Min(1, float64(counts[i])/float64(cp.keywordCount))
		}

		s := combine(signals, cp.priority)
		if s <= 0 {
			continue
		}
		results = append(results, PatternMatch{
			PatternID:      e.patterns[i].ID,
			Score:          s,
			Signals:        signals,
			KeywordMatches: counts[i],
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results
}

// CalculateScore scores a single pattern against query without the keyword
// automaton or cache. Each keyword contributes once if it occurs anywhere in
// the query text.
func (e *Engine) CalculateScore(query Query, pattern Pattern) float64 {
	return CalculateScore(query, pattern)
}

// CalculateScore is the engine-independent form of Engine.CalculateScore.
func CalculateScore(query Query, pattern Pattern) float64 {
	var signals SignalScores

	kws := lowerSet(nonEmpty(pattern.Keywords))
	if len(kws) > 0 {
		text := strings.ToLower(query.Text)
		hits := 0
		for kw := range kws {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		signals.KeywordScore = math.Min(1, float64(hits)/float64(len(kws)))
	}

	signals.ErrorCodeScore = errorCodeScore(lowerSet(query.ErrorCodes), lowerSet(pattern.ErrorCodes))
	signals.TagScore = tagScore(lowerSet(query.Tags), lowerSet(pattern.Tags))
	signals.PathScore = pathScore(strings.ToLower(query.FilePath), lowerAll(nonEmpty(pattern.PathPatterns)))

	return combine(signals, clamp01(pattern.Priority))
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// CacheStats reports the number of cached entries and how many are fresh.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.stats()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
