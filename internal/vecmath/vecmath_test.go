package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestNormalized_DoesNotMutateInput(t *testing.T) {
	in := []float32{1, 1}
	out := Normalized(in)
	assert.Equal(t, []float32{1, 1}, in)
	assert.InDelta(t, 1.0/math.Sqrt2, out[0], 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1.0},
		{"orthogonal one-hot", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"mismatched length", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-6)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.7, -0.4, 1.9}
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
}

func TestCosineSimilarity_Clamped(t *testing.T) {
	v := Normalized([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7})
	got := CosineSimilarity(v, v)
	assert.LessOrEqual(t, got, 1.0)
	assert.InDelta(t, 1.0, got, 1e-6)
}

func TestPairwiseDistances(t *testing.T) {
	assert.Nil(t, PairwiseDistances(nil))

	embeddings := [][]float32{
		{1, 0},
		{0, 1},
		{1, 0},
	}
	d := PairwiseDistances(embeddings)
	require.Len(t, d, 3)
	for i := range d {
		require.Len(t, d[i], 3)
		assert.Zero(t, d[i][i])
	}
	assert.InDelta(t, 1.0, d[0][1], 1e-9)
	assert.InDelta(t, 0.0, d[0][2], 1e-9)
	assert.Equal(t, d[1][2], d[2][1])
}

func TestCentroid(t *testing.T) {
	embeddings := [][]float32{{1, 0}, {0, 1}, {5, 5}}

	c := Centroid(embeddings, []int{0, 1})
	require.Len(t, c, 2)
	assert.InDelta(t, 1.0/math.Sqrt2, c[0], 1e-6)
	assert.InDelta(t, 1.0/math.Sqrt2, c[1], 1e-6)

	assert.Nil(t, Centroid(embeddings, nil))
	assert.Nil(t, Centroid(nil, []int{0}))
}
