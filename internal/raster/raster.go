// Package raster deposits particle mass onto the grid. Output density is in
// particles per cell, so a conserving deposit sums to N.
package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Rasterizer overwrites dst with the density estimate of e on g.
// The result is never negative and sums to e.Len() within the mass
// tolerance.
type Rasterizer interface {
	Name() string
	Deposit(e *dynamo.Ensemble, g *dynamo.Grid, dst []float64) error
}

// New returns the rasterizer registered under name.
func New(name string, topo dynamo.Topology, massTol float64) (Rasterizer, error) {
	switch name {
	case dynamo.RasterNGPBox:
		return NewNGPBox(topo, massTol), nil
	case dynamo.RasterCIC:
		return NewCIC(topo, massTol), nil
	}
	return nil, &dynamo.ConfigurationError{Field: "Raster", Value: name, Reason: "unknown rasterizer"}
}

// renormalize rescales dst so that it sums to mass when the drift exceeds
// tol. It returns the relative drift found before rescaling.
func renormalize(dst []float64, mass, tol float64) (float64, error) {
	sum := floats.Sum(dst)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return 0, fmt.Errorf("raster: deposited mass %g for %g particles", sum, mass)
	}
	drift := math.Abs(sum-mass) / mass
	if drift > tol {
		floats.Scale(mass/sum, dst)
	}
	return drift, nil
}

// MassDrift is |Σρ − N| / N.
func MassDrift(rho []float64, n int) float64 {
	return math.Abs(floats.Sum(rho)-float64(n)) / float64(n)
}
