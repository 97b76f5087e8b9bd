package classifier

import (
	"fmt"
	"math"
)

// Policy selects how neighbor distances become a confidence score.
type Policy string

const (
	// PolicySoftmax scores the top neighbors with a softmax over their
	// negated distances. The scores sum to 1 and the best one is compared
	// against the abstention threshold.
	PolicySoftmax Policy = "softmax"
	// PolicyInverseDistance scores only the nearest neighbor as 1/(1+d).
	// It never abstains.
	PolicyInverseDistance Policy = "inverse_distance"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySoftmax, PolicyInverseDistance:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown confidence policy %q: must be softmax or inverse_distance", s)
	}
}

// Softmax returns exp(-d_i) / sum_j exp(-d_j). Distances are shifted by
// their minimum before exponentiation, which leaves the result unchanged
// and keeps large distances from underflowing to 0/0.
func Softmax(distances []float32) []float64 {
	if len(distances) == 0 {
		return nil
	}
	lo := float64(distances[0])
	for _, d := range distances[1:] {
		lo = math.Min(lo, float64(d))
	}
	scores := make([]float64, len(distances))
	var sum float64
	for i, d := range distances {
		scores[i] = math.Exp(-(float64(d) - lo))
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}

// InverseDistance returns 1/(1+d).
func InverseDistance(d float32) float64 {
	return 1 / (1 + float64(d))
}
