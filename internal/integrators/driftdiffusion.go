package integrators

import (
	"math"
	"math/rand"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// DriftDiffusion is the particle form of the dynamics:
//
//	v ← v·(1 − ν·Δt) + Δt·[k·∇𝒞ρ − ν·∇log ρ + ξ]
//	v ← rotate(v, Ω, −w·|Ω|·Δt)
//	x ← x + v·Δt
//
// Ω = ∇ρ × ∇𝒞ρ and the rotation is the exact solution of dv/dt = w·(v × Ω)
// over one step. ξ is Gaussian with per-axis variance 2νT/Δt, the
// fluctuation–dissipation partner of the friction ν at temperature T.
type DriftDiffusion struct {
	K          float64
	Nu         float64
	CurlWeight float64
	Dt         float64
	Floor      float64 // absolute, in particles per cell

	topo   dynamo.Topology
	rng    *rand.Rand
	fields *Fields
}

func NewDriftDiffusion(p dynamo.Params, topo dynamo.Topology, rng *rand.Rand) *DriftDiffusion {
	return &DriftDiffusion{
		K:          p.K,
		Nu:         p.Nu,
		CurlWeight: p.CurlWeight,
		Dt:         p.Dt,
		Floor:      p.DensityFloor * p.MeanDensity(),
		topo:       topo,
		rng:        rng,
	}
}

func (d *DriftDiffusion) Name() string { return dynamo.IntegratorParticle }

func (d *DriftDiffusion) ensureFields(n int) {
	if d.fields == nil || len(d.fields.LogRho) != n {
		d.fields = NewFields(n)
	}
}

// Fields exposes the gradients computed by the last Step.
func (d *DriftDiffusion) Fields() *Fields { return d.fields }

// NoiseStd is the per-axis standard deviation of ξ at temperature temp.
func (d *DriftDiffusion) NoiseStd(temp float64) float64 {
	if temp <= 0 || d.Nu <= 0 {
		return 0
	}
	return math.Sqrt(2 * d.Nu * temp / d.Dt)
}

// Step advances every particle using density rho and coherence coh from the
// current tick. Positions are not wrapped here. The returned error reports
// the first non-finite velocity or position.
func (d *DriftDiffusion) Step(e *dynamo.Ensemble, g *dynamo.Grid, rho, coh []float64, temp float64, step int) error {
	d.ensureFields(len(rho))
	d.fields.Compute(g, d.topo, rho, coh, d.Floor)

	dt := d.Dt
	damp := 1 - d.Nu*dt
	noise := d.NoiseStd(temp)

	for i := range e.Pos {
		gradC, gradRho, gradLog := d.fields.At(g, d.topo, e.Pos[i])

		acc := gradC.Scale(d.K).Sub(gradLog.Scale(d.Nu))
		if noise > 0 {
			acc = acc.Add(dynamo.Vec3{
				d.rng.NormFloat64() * noise,
				d.rng.NormFloat64() * noise,
				d.rng.NormFloat64() * noise,
			})
		}
		v := e.Vel[i].Scale(damp).Add(acc.Scale(dt))

		if d.CurlWeight != 0 {
			omega := Vorticity(gradRho, gradC)
			v = Rotate(v, omega, -d.CurlWeight*omega.Norm()*dt)
		}

		e.Vel[i] = v
		e.Pos[i] = e.Pos[i].Add(v.Scale(dt))
	}
	return e.Validate(step)
}
