package recall

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// AddMemory stores entry and returns its index and id. The id is generated
// when entry.ID is empty.
func (s *Service) AddMemory(ctx context.Context, entry memory.Entry) (int, string) {
	_, span, end := s.start(ctx, "memory_add", attribute.Int("embedding.dim", len(entry.Embedding)))
	defer end()

	s.memMu.Lock()
	idx := s.memory.Add(entry)
	stored, _ := s.memory.Get(idx)
	size := s.memory.Len()
	s.memMu.Unlock()

	span.SetAttributes(attribute.String("memory.id", stored.ID), attribute.Int("memory.size", size))
	return idx, stored.ID
}

// SearchMemory returns the topK most similar memories and refreshes their
// access bookkeeping.
func (s *Service) SearchMemory(ctx context.Context, query []float32, topK int) []memory.SimilarityResult {
	_, span, end := s.start(ctx, "similarity_search",
		attribute.Int("top_k", topK),
		attribute.Int("embedding.dim", len(query)),
	)
	defer end()

	s.memMu.Lock()
	results := s.memory.SimilaritySearch(query, topK)
	s.memMu.Unlock()

	span.SetAttributes(attribute.Int("results", len(results)))
	return results
}

// GetMemory returns a copy of the memory with id.
func (s *Service) GetMemory(ctx context.Context, id string) (memory.Entry, bool) {
	_, _, end := s.start(ctx, "memory_get")
	defer end()

	s.memMu.Lock()
	defer s.memMu.Unlock()
	return s.memory.GetByID(id)
}

// RemoveMemory deletes the memory with id.
func (s *Service) RemoveMemory(ctx context.Context, id string) bool {
	_, _, end := s.start(ctx, "memory_remove")
	defer end()

	s.memMu.Lock()
	defer s.memMu.Unlock()
	return s.memory.Remove(id)
}

// ClearMemory deletes every memory.
func (s *Service) ClearMemory(ctx context.Context) {
	_, _, end := s.start(ctx, "memory_clear")
	defer end()

	s.memMu.Lock()
	s.memory.Clear()
	s.memMu.Unlock()
}

// Memories returns copies of all stored memories in index order.
func (s *Service) Memories(ctx context.Context) []memory.Entry {
	_, _, end := s.start(ctx, "memory_list")
	defer end()

	s.memMu.Lock()
	defer s.memMu.Unlock()
	return s.memory.Entries()
}
