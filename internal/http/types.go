package http

import (
	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/recall"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Stats   recall.Stats `json:"stats"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MatchRequest is the request body for POST /api/v1/knowledge/match.
// A missing top_k uses the server default.
type MatchRequest struct {
	Query knowledge.Query `json:"query"`
	TopK  *int            `json:"top_k,omitempty"`
}

// MatchResponse is the response body for POST /api/v1/knowledge/match.
type MatchResponse struct {
	Matches []knowledge.PatternMatch `json:"matches"`
}

// AddMemoryResponse is the response body for POST /api/v1/memory.
type AddMemoryResponse struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// SearchRequest is the request body for POST /api/v1/memory/search.
type SearchRequest struct {
	Query []float32 `json:"query"`
	TopK  *int      `json:"top_k,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/memory/search.
type SearchResponse struct {
	Results []memory.SimilarityResult `json:"results"`
}

// MemoryClustersResponse is the response body for GET /api/v1/memory/clusters.
type MemoryClustersResponse struct {
	Clusters []recall.MemoryCluster `json:"clusters"`
}

// TDUpdateRequest is the request body for POST /api/v1/learning/update.
// Exactly one of reward and metrics must be set; metrics are turned into
// a reward by the configured reward calculator.
type TDUpdateRequest struct {
	State      learning.State     `json:"state"`
	Action     learning.Action    `json:"action"`
	Reward     *float64           `json:"reward,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	NextState  learning.State     `json:"next_state"`
	NextAction *learning.Action   `json:"next_action,omitempty"`
}

// TDUpdateResponse is the response body for POST /api/v1/learning/update.
type TDUpdateResponse struct {
	learning.UpdateResult
	Reward *learning.RewardBreakdown `json:"reward_breakdown,omitempty"`
}

// BestActionResponse is the response body for GET /api/v1/learning/best-action.
type BestActionResponse struct {
	State  string             `json:"state"`
	Action string             `json:"action,omitempty"`
	Found  bool               `json:"found"`
	Values map[string]float64 `json:"values"`
}

// QTable is the request and response body for /api/v1/learning/q-table.
// Keys are "state|action".
type QTable struct {
	Entries map[string]float64 `json:"entries"`
}

// ImportResponse is the response body for PUT /api/v1/learning/q-table.
type ImportResponse struct {
	Imported int `json:"imported"`
	Rejected int `json:"rejected"`
}

// RewardRequest is the request body for POST /api/v1/learning/reward.
type RewardRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

// ClusterRequest is the request body for POST /api/v1/clusters. Missing
// min_points or epsilon use the server defaults.
type ClusterRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
	MinPoints  *int        `json:"min_points,omitempty"`
	Epsilon    *float64    `json:"epsilon,omitempty"`
}

// ClusterResponse is the response body for POST /api/v1/clusters.
type ClusterResponse struct {
	Clusters []cluster.Cluster `json:"clusters"`
}
