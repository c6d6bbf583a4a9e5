package portfolio

import "math"

// Normalize rescales weights in place so they sum to 1.
// An already normalised vector is returned unchanged. A non-positive or
// non-finite sum falls back to uniform weights.
func Normalize(weights []float64) []float64 {
	n := len(weights)
	if n == 0 {
		return weights
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}

	if sum == 1 {
		return weights
	}

	if !(sum > 0) || math.IsInf(sum, 0) {
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
		return weights
	}

	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// Uniform returns 1/n for every asset
func Uniform(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	return weights
}
