// Package phi holds the fixed constants of the coherence engine. Every default
// rate and length scale is derived from the golden ratio; none of them is
// mutated after a simulation is initialised.
package phi

import "math"

// Phi is the golden ratio, the positive root of x² = x + 1.
const Phi = 1.6180339887498948

var (
	// Sigma is the default kernel scale σ.
	Sigma = Phi

	// Beta is the inverse temperature 2πφ used by the free-energy functional.
	Beta = 2 * math.Pi * Phi

	// Nu is the default friction/diffusion coefficient 1/(2πφ).
	Nu = 1 / Beta
)

// Power returns φⁿ for integer n.
func Power(n int) float64 {
	return math.Pow(Phi, float64(n))
}

// NearestPower returns the integer n minimising |log_φ(x) − n| and that
// distance in log_φ units. x must be positive.
func NearestPower(x float64) (int, float64) {
	l := math.Log(x) / math.Log(Phi)
	n := math.Round(l)
	return int(n), math.Abs(l - n)
}
