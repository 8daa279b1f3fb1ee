// Package cluster groups embeddings by density (a simplified DBSCAN over
// cosine distance). An Engine holds only parameters and is safe to share.
package cluster

import (
	"math"

	"github.com/fyrsmithlabs/recalld/internal/vecmath"
)

// Defaults for Default().
const (
	DefaultMinPoints = 3
	DefaultEpsilon   = 0.3
)

// Cluster is one dense group of input points.
type Cluster struct {
	ID int `json:"id"`
	// PointIndices index into the batch passed to DetectClusters.
	PointIndices []int     `json:"point_indices"`
	Centroid     []float32 `json:"centroid"`
	Size         int       `json:"size"`
}

// Engine detects clusters. MinPoints is the number of neighbors (excluding
// the point itself) needed to seed or extend a cluster; Epsilon is the
// largest cosine distance that counts as a neighbor.
//
// Since a point is not its own neighbor, n identical vectors form one cluster
// only when MinPoints <= n-1.
type Engine struct {
	minPoints int
	epsilon   float64
}

// New returns an engine; epsilon is clamped to [0,2] and minPoints to >= 0.
func New(minPoints int, epsilon float64) *Engine {
	if math.IsNaN(epsilon) {
		epsilon = 0
	}
	return &Engine{
		minPoints: max(0, minPoints),
		epsilon:   math.Max(0, math.Min(2, epsilon)),
	}
}

// Default returns an engine with DefaultMinPoints and DefaultEpsilon.
func Default() *Engine {
	return New(DefaultMinPoints, DefaultEpsilon)
}

// MinPoints returns the neighbor threshold.
func (e *Engine) MinPoints() int { return e.minPoints }

// Epsilon returns the neighbor distance threshold.
func (e *Engine) Epsilon() float64 { return e.epsilon }

// DetectClusters partitions embeddings into density-based clusters.
//
// Points are visited in ascending index order and a point joins the first
// cluster that reaches it, so results are deterministic for a given input.
// Noise points appear in no cluster.
func (e *Engine) DetectClusters(embeddings [][]float32) []Cluster {
	n := len(embeddings)
	if n == 0 {
		return nil
	}

	dist := vecmath.PairwiseDistances(embeddings)
	neighbors := func(p int) []int {
		var out []int
		for j, d := range dist[p] {
			if j != p && d <= e.epsilon {
				out = append(out, j)
			}
		}
		return out
	}

	visited := make([]bool, n)
	assigned := make([]int, n)
	for i := range assigned {
		assigned[i] = -1
	}

	var clusters []Cluster
	for i := range n {
		if visited[i] {
			continue
		}

		seeds := neighbors(i)
		if len(seeds) < e.minPoints {
			continue
		}

		id := len(clusters)
		members := []int{i}
		visited[i] = true
		assigned[i] = id

		for len(seeds) > 0 {
			p := seeds[len(seeds)-1]
			seeds = seeds[:len(seeds)-1]

			if !visited[p] {
				visited[p] = true
				if more := neighbors(p); len(more) >= e.minPoints {
					seeds = append(seeds, more...)
				}
			}
			if assigned[p] == -1 {
				assigned[p] = id
				members = append(members, p)
			}
		}

		clusters = append(clusters, Cluster{
			ID:           id,
			PointIndices: members,
			Centroid:     vecmath.Centroid(embeddings, members),
			Size:         len(members),
		})
	}

	return clusters
}
