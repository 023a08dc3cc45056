package integrators

import (
	"math"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// maxLoad bounds the fraction of a cell's content that may leave through
// all six faces in one substep; below one the upwind update stays
// non-negative.
const maxLoad = 0.8

// Eulerian is the grid-only form of the dynamics,
//
//	∂ρ/∂t = −∇·(ρ·u) + ν·Δρ,  u = k·∇𝒞ρ − ν·∇log(ρ + floor)
//
// the continuum limit of DriftDiffusion, where ρ·∇log ρ = ∇ρ makes the
// entropic term a second diffusion. It is discretised in flux form on cell
// faces with upwind density, so Σρ is conserved to rounding on periodic
// domains and clamped faces carry no flux. The coherence field is frozen
// over the tick; the step is split into substeps that respect maxLoad.
type Eulerian struct {
	K     float64
	Nu    float64
	Dt    float64
	Floor float64

	topo    dynamo.Topology
	logRho  []float64
	scratch []float64

	lastSubsteps int
}

func NewEulerian(p dynamo.Params, topo dynamo.Topology) *Eulerian {
	return &Eulerian{
		K:     p.K,
		Nu:    p.Nu,
		Dt:    p.Dt,
		Floor: p.DensityFloor * p.MeanDensity(),
		topo:  topo,
	}
}

func (f *Eulerian) Name() string { return dynamo.IntegratorField }

// Substeps reports how many substeps the last Step took.
func (f *Eulerian) Substeps() int { return f.lastSubsteps }

// Step writes the density after one tick into dst. rho and coh are the
// committed fields of the previous tick and are not modified.
func (f *Eulerian) Step(g *dynamo.Grid, rho, coh, dst []float64, step int) error {
	cells := len(rho)
	if len(f.logRho) != cells {
		f.logRho = make([]float64, cells)
		f.scratch = make([]float64, cells)
	}

	n := f.stepsFor(g, rho, coh)
	f.lastSubsteps = n
	h := f.Dt / float64(n)

	copy(dst, rho)
	for s := 0; s < n; s++ {
		f.advance(g, dst, coh, f.scratch, h)
		copy(dst, f.scratch)
		if err := dynamo.CheckFinite("density", step, dst); err != nil {
			return err
		}
	}
	return nil
}

// stepsFor picks the substep count from the largest face velocity and the
// explicit diffusion number.
func (f *Eulerian) stepsFor(g *dynamo.Grid, rho, coh []float64) int {
	for i, r := range rho {
		f.logRho[i] = math.Log(r + f.Floor)
	}
	vmax := 0.0
	n := g.N
	for idx := range rho {
		i, j, k := g.Coords(idx)
		c := [3]int{i, j, k}
		for a := 0; a < 3; a++ {
			m := c
			m[a] = f.topo.Neighbor(c[a], 1, n)
			nb := g.Index(m[0], m[1], m[2])
			u := (f.K*(coh[nb]-coh[idx]) - f.Nu*(f.logRho[nb]-f.logRho[idx])) / g.H
			vmax = math.Max(vmax, math.Abs(u))
		}
	}
	courant := vmax * f.Dt / g.H
	diffusion := f.Nu * f.Dt / (g.H * g.H)
	load := 6 * (courant + diffusion)
	steps := int(math.Ceil(load / maxLoad))
	if steps < 1 || math.IsNaN(load) {
		steps = 1
	}
	return steps
}

// advance applies one explicit flux update of length dt from rho into out.
func (f *Eulerian) advance(g *dynamo.Grid, rho, coh, out []float64, dt float64) {
	for i, r := range rho {
		f.logRho[i] = math.Log(r + f.Floor)
	}
	copy(out, rho)
	n := g.N
	inv := dt / g.H
	for idx := range rho {
		i, j, k := g.Coords(idx)
		c := [3]int{i, j, k}
		for a := 0; a < 3; a++ {
			m := c
			m[a] = f.topo.Neighbor(c[a], 1, n)
			nb := g.Index(m[0], m[1], m[2])
			if nb == idx {
				continue // clamped face
			}
			u := (f.K*(coh[nb]-coh[idx]) - f.Nu*(f.logRho[nb]-f.logRho[idx])) / g.H
			up := rho[idx]
			if u < 0 {
				up = rho[nb]
			}
			flux := u*up - f.Nu*(rho[nb]-rho[idx])/g.H
			out[idx] -= inv * flux
			out[nb] += inv * flux
		}
	}
}
