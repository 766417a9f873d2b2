package knowledge

import (
	"context"
	"math"
)

// Embedder turns text into a dense vector. Drift detection and embedding
// enrichment are disabled when no Embedder is configured.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// compare over the shorter prefix; a zero vector yields ~0 via the epsilon
// in the denominator.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-9)
}
