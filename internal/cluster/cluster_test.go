package cluster

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClampsEpsilon(t *testing.T) {
	assert.Equal(t, 2.0, New(3, 5).Epsilon())
	assert.Equal(t, 0.0, New(3, -1).Epsilon())
	assert.Equal(t, 0, New(-4, 0.3).MinPoints())

	d := Default()
	assert.Equal(t, DefaultMinPoints, d.MinPoints())
	assert.Equal(t, DefaultEpsilon, d.Epsilon())
}

func TestDetectClusters_Empty(t *testing.T) {
	assert.Empty(t, Default().DetectClusters(nil))
	assert.Empty(t, Default().DetectClusters([][]float32{}))
}

func TestDetectClusters_IdenticalPoints(t *testing.T) {
	points := [][]float32{{1, 2, 3}, {1, 2, 3}, {1, 2, 3}, {1, 2, 3}}

	for minPoints := 0; minPoints < len(points); minPoints++ {
		clusters := New(minPoints, 0.01).DetectClusters(points)
		require.Len(t, clusters, 1, "min_points=%d", minPoints)
		assert.Equal(t, len(points), clusters[0].Size)

		got := append([]int(nil), clusters[0].PointIndices...)
		sort.Ints(got)
		assert.Equal(t, []int{0, 1, 2, 3}, got)
	}

	// A point never counts as its own neighbor.
	assert.Empty(t, New(len(points), 0.01).DetectClusters(points))
}

func TestDetectClusters_DenseGroupAndNoise(t *testing.T) {
	points := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.999, 0.01, 0, 0},
		{0, 0, 1, 0},
		{0.998, 0, 0.01, 0},
		{0, 0, 0, 1},
	}

	clusters := New(2, 0.01).DetectClusters(points)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, 0, c.ID)
	assert.Equal(t, 3, c.Size)
	got := append([]int(nil), c.PointIndices...)
	sort.Ints(got)
	assert.Equal(t, []int{0, 2, 4}, got)

	require.Len(t, c.Centroid, 4)
	var norm float64
	for _, v := range c.Centroid {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
	assert.Greater(t, c.Centroid[0], float32(0.99))
}

func TestDetectClusters_TwoClustersDisjoint(t *testing.T) {
	points := [][]float32{
		{1, 0}, {0.99, 0.05}, {0.98, 0.06},
		{0, 1}, {0.05, 0.99}, {0.06, 0.98},
	}

	clusters := New(2, 0.05).DetectClusters(points)
	require.Len(t, clusters, 2)

	seen := map[int]int{}
	for _, c := range clusters {
		assert.Equal(t, 3, c.Size)
		for _, p := range c.PointIndices {
			seen[p]++
		}
	}
	assert.Len(t, seen, 6)
	for p, count := range seen {
		assert.Equal(t, 1, count, "point %d assigned more than once", p)
	}
	assert.Contains(t, clusters[0].PointIndices, 0)
	assert.Contains(t, clusters[1].PointIndices, 3)
}

func TestDetectClusters_NoPointInTwoClusters(t *testing.T) {
	// Point 1 lies within epsilon of the second group only.
	points := [][]float32{
		{1, 0}, {1, 1}, {1, 0.02}, {1, -0.02},
		{1, 2}, {1, 1.98}, {1, 2.02},
	}

	e := New(2, 0.2)
	first := e.DetectClusters(points)
	second := e.DetectClusters(points)
	assert.Equal(t, first, second, "clustering must be deterministic")

	seen := map[int]bool{}
	for _, c := range first {
		for _, p := range c.PointIndices {
			assert.False(t, seen[p], "point %d in two clusters", p)
			seen[p] = true
		}
	}
}

func TestDetectClusters_Deterministic(t *testing.T) {
	points := make([][]float32, 0, 40)
	for i := range 40 {
		points = append(points, []float32{float32(i%4) + 0.01*float32(i), float32(i % 3), 1})
	}

	e := New(3, 0.02)
	want := e.DetectClusters(points)
	for range 5 {
		assert.Equal(t, want, e.DetectClusters(points))
	}
}
