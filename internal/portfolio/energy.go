package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxEnergyMagnitude bounds |E(w)|. NaN maps to the upper bound so a
// numerically broken candidate is never preferred.
const MaxEnergyMagnitude = 1e12

// Energy mean-variance objective to be minimised:
//
//	E(w) = −(wᵀμ − λ·wᵀΣw)
func Energy(weights, mu []float64, sigma mat.Symmetric, lambda float64) float64 {
	w := mat.NewVecDense(len(weights), weights)
	ret := mat.Dot(w, mat.NewVecDense(len(mu), mu))
	variance := mat.Inner(w, sigma, w)

	return clampEnergy(-(ret - lambda*variance))
}

func clampEnergy(e float64) float64 {
	switch {
	case math.IsNaN(e):
		return MaxEnergyMagnitude
	case e > MaxEnergyMagnitude:
		return MaxEnergyMagnitude
	case e < -MaxEnergyMagnitude:
		return -MaxEnergyMagnitude
	}
	return e
}
