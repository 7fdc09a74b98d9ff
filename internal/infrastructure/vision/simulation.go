package vision

import (
	"hash/fnv"
	"math/rand"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// simulate produces the probability vector used while no real model is
// loaded. The vector is a pure function of the page bytes: resubmitting the
// same page always yields the same simulated classification.
func simulate(pageBytes []byte) domain.ClassProbabilities {
	h := fnv.New64a()
	_, _ = h.Write(pageBytes)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	classes := domain.Classes()
	raw := make([]float64, len(classes))
	var sum float64
	for i := range raw {
		// Offset keeps every class strictly positive so a simulated
		// vector never degenerates to a one-hot answer.
		raw[i] = 0.05 + rng.Float64()
		sum += raw[i]
	}

	out := make(domain.ClassProbabilities, len(classes))
	for i, class := range classes {
		out[class] = raw[i] / sum
	}
	return out
}
