// Package integrators advances the coherence dynamics by one tick.
//
// [DriftDiffusion] moves particles under coherence attraction, entropic
// repulsion, rotational forcing, friction and thermal noise. [Eulerian] is
// the grid-only form of the same dynamics acting on the density field.
package integrators

import (
	"math"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Fields holds the cell-centred gradients every particle force is gathered
// from.
type Fields struct {
	GradC   [3][]float64 // ∇𝒞ρ
	GradRho [3][]float64 // ∇ρ
	GradLog [3][]float64 // ∇log(ρ + floor)
	LogRho  []float64
}

func NewFields(cells int) *Fields {
	f := &Fields{LogRho: make([]float64, cells)}
	for a := 0; a < 3; a++ {
		f.GradC[a] = make([]float64, cells)
		f.GradRho[a] = make([]float64, cells)
		f.GradLog[a] = make([]float64, cells)
	}
	return f
}

// Compute fills every gradient from the density and coherence of one tick.
// floor is an absolute density added inside the logarithm.
func (f *Fields) Compute(g *dynamo.Grid, topo dynamo.Topology, rho, coh []float64, floor float64) {
	for i, r := range rho {
		f.LogRho[i] = math.Log(r + floor)
	}
	g.Gradient(coh, topo, f.GradC)
	g.Gradient(rho, topo, f.GradRho)
	g.Gradient(f.LogRho, topo, f.GradLog)
}

// At interpolates the three gradients at p with the cloud-in-cell stencil.
func (f *Fields) At(g *dynamo.Grid, topo dynamo.Topology, p dynamo.Vec3) (gradC, gradRho, gradLog dynamo.Vec3) {
	idx, w := g.CICWeights(p, topo)
	for c := 0; c < 8; c++ {
		for a := 0; a < 3; a++ {
			gradC[a] += w[c] * f.GradC[a][idx[c]]
			gradRho[a] += w[c] * f.GradRho[a][idx[c]]
			gradLog[a] += w[c] * f.GradLog[a][idx[c]]
		}
	}
	return gradC, gradRho, gradLog
}

// Vorticity is Ω = ∇ρ × ∇𝒞ρ, the curl of the coherence flux ρ∇𝒞ρ. The curl
// of ∇𝒞ρ alone vanishes identically.
func Vorticity(gradRho, gradC dynamo.Vec3) dynamo.Vec3 {
	return gradRho.Cross(gradC)
}

// Rotate turns v about axis by angle using Rodrigues' formula. |v| is
// preserved exactly up to rounding.
func Rotate(v, axis dynamo.Vec3, angle float64) dynamo.Vec3 {
	norm := axis.Norm()
	if norm == 0 || angle == 0 {
		return v
	}
	n := axis.Scale(1 / norm)
	c, s := math.Cos(angle), math.Sin(angle)
	return v.Scale(c).Add(n.Cross(v).Scale(s)).Add(n.Scale(n.Dot(v) * (1 - c)))
}
