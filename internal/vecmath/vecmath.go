// Package vecmath provides the embedding routines shared by working memory
// and clustering: normalization, cosine similarity and distance matrices.
package vecmath

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Normalize scales v in place to unit length. Zero vectors are left as is.
func Normalize(v []float32) {
	norm := norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Normalized returns a unit-length copy of v.
func Normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	Normalize(out)
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Mismatched lengths, empty input and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// Distance is the cosine distance 1 - CosineSimilarity(a, b), in [0, 2].
func Distance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// PairwiseDistances computes the full cosine distance matrix for embeddings.
// Rows are computed in parallel; the diagonal is always 0.
func PairwiseDistances(embeddings [][]float32) [][]float64 {
	n := len(embeddings)
	if n == 0 {
		return nil
	}

	out := make([][]float64, n)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range n {
		g.Go(func() error {
			row := make([]float64, n)
			for j := range n {
				if i != j {
					row[j] = Distance(embeddings[i], embeddings[j])
				}
			}
			out[i] = row
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Centroid returns the normalized mean of the embeddings at indices. The
// dimension is taken from the first embedding in the batch.
func Centroid(embeddings [][]float32, indices []int) []float32 {
	if len(indices) == 0 || len(embeddings) == 0 {
		return nil
	}

	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, idx := range indices {
		for i, v := range embeddings[idx] {
			if i < dim {
				sum[i] += float64(v)
			}
		}
	}

	centroid := make([]float32, dim)
	n := float64(len(indices))
	for i := range sum {
		centroid[i] = float32(sum[i] / n)
	}
	Normalize(centroid)
	return centroid
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
