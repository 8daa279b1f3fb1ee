package recall

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
)

// MemoryCluster is a cluster of stored memories.
type MemoryCluster struct {
	cluster.Cluster
	MemoryIDs []string `json:"memory_ids"`
}

// DetectClusters clusters embeddings with the configured engine, or with
// an engine built from the overrides when either is non-nil.
func (s *Service) DetectClusters(ctx context.Context, embeddings [][]float32, minPoints *int, epsilon *float64) []cluster.Cluster {
	engine := s.clusters
	if minPoints != nil || epsilon != nil {
		mp, eps := engine.MinPoints(), engine.Epsilon()
		if minPoints != nil {
			mp = *minPoints
		}
		if epsilon != nil {
			eps = *epsilon
		}
		engine = cluster.New(mp, eps)
	}

	_, span, end := s.start(ctx, "detect_clusters",
		attribute.Int("points", len(embeddings)),
		attribute.Int("min_points", engine.MinPoints()),
		attribute.Float64("epsilon", engine.Epsilon()),
	)
	defer end()

	clusters := engine.DetectClusters(embeddings)
	span.SetAttributes(attribute.Int("clusters", len(clusters)))
	return clusters
}

// ClusterMemories clusters the embeddings of every stored memory and maps
// point indices back to memory ids.
func (s *Service) ClusterMemories(ctx context.Context) []MemoryCluster {
	entries := s.Memories(ctx)

	embeddings := make([][]float32, len(entries))
	for i, e := range entries {
		embeddings[i] = e.Embedding
	}

	clusters := s.DetectClusters(ctx, embeddings, nil, nil)
	out := make([]MemoryCluster, len(clusters))
	for i, c := range clusters {
		ids := make([]string, len(c.PointIndices))
		for j, idx := range c.PointIndices {
			ids[j] = entries[idx].ID
		}
		out[i] = MemoryCluster{Cluster: c, MemoryIDs: ids}
	}
	return out
}
