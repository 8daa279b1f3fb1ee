package recall

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

// MatchPatterns ranks the loaded patterns against query.
func (s *Service) MatchPatterns(ctx context.Context, query knowledge.Query, topK int) []knowledge.PatternMatch {
	_, span, end := s.start(ctx, "match_patterns",
		attribute.Int("top_k", topK),
		attribute.Int("query.error_codes", len(query.ErrorCodes)),
		attribute.Int("query.tags", len(query.Tags)),
	)
	defer end()

	matches := s.Engine().MatchPatterns(query, topK)
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches
}

// ScorePattern scores one pattern against query with substring keyword
// matching, independent of the loaded catalog.
func (s *Service) ScorePattern(ctx context.Context, query knowledge.Query, pattern knowledge.Pattern) float64 {
	_, span, end := s.start(ctx, "score_pattern", attribute.String("pattern.id", pattern.ID))
	defer end()

	score := s.Engine().CalculateScore(query, pattern)
	span.SetAttributes(attribute.Float64("score", score))
	return score
}

// ReloadPatterns replaces the knowledge engine with one built from patterns.
// In-flight matches finish against the old engine; its cache is dropped
// with it. On error the current engine stays in place.
func (s *Service) ReloadPatterns(ctx context.Context, patterns []knowledge.Pattern) error {
	ctx, span, end := s.start(ctx, "reload_patterns", attribute.Int("patterns", len(patterns)))
	defer end()

	engine, err := knowledge.NewEngine(patterns, s.engineOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine build failed")
		s.recordReload(ctx, "error")
		s.logger.Warn("pattern reload failed, keeping previous catalog", zap.Error(err))
		return fmt.Errorf("reloading patterns: %w", err)
	}

	s.engine.Store(engine)
	s.recordReload(ctx, "ok")
	s.logger.Info("patterns reloaded", zap.Int("patterns", len(patterns)))
	return nil
}

func (s *Service) recordReload(ctx context.Context, result string) {
	if s.reloads != nil {
		s.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// ClearKnowledgeCache drops every cached match result.
func (s *Service) ClearKnowledgeCache(ctx context.Context) {
	_, _, end := s.start(ctx, "clear_cache")
	defer end()
	s.Engine().ClearCache()
}

// KnowledgeCacheStats reports cached and still-valid result counts.
func (s *Service) KnowledgeCacheStats(ctx context.Context) knowledge.CacheStats {
	_, _, end := s.start(ctx, "cache_stats")
	defer end()
	return s.Engine().CacheStats()
}
