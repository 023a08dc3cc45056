package integrators

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/coherence"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/raster"
)

func testParams(g int, extent float64) dynamo.Params {
	p := dynamo.DefaultParams()
	p.G = g
	p.L = extent
	p.N = g * g * g
	p.Coherence = dynamo.CoherenceDirect
	p.NoiseTemp = 0
	return p
}

func latticeEnsemble(g *dynamo.Grid) *dynamo.Ensemble {
	e := dynamo.NewEnsemble(g.Cells())
	for idx := range e.Pos {
		i, j, k := g.Coords(idx)
		e.Pos[idx] = g.Center(i, j, k)
	}
	return e
}

func TestParticleQuiescence(t *testing.T) {
	p := testParams(8, 8)
	topo := boundary.NewPeriodic(p.L)
	g := dynamo.NewGrid(p.G, p.L)
	e := latticeEnsemble(g)
	start := e.Clone()

	r := raster.NewCIC(topo, p.MassTol)
	op, err := coherence.New(p, topo)
	if err != nil {
		t.Fatal(err)
	}
	dd := NewDriftDiffusion(p, topo, rand.New(rand.NewSource(1)))

	for step := 0; step < 5; step++ {
		rho, coh := g.BackDensity(), g.BackCoherence()
		if err := r.Deposit(e, g, rho); err != nil {
			t.Fatal(err)
		}
		op.Apply(rho, coh)
		if err := dd.Step(e, g, rho, coh, 0, step); err != nil {
			t.Fatal(err)
		}
		if err := topo.Wrap(e, step); err != nil {
			t.Fatal(err)
		}
		g.Commit()
	}

	for i := range e.Pos {
		if e.Pos[i].Sub(start.Pos[i]).Norm() > 1e-12 || e.Vel[i].Norm() > 1e-12 {
			t.Fatalf("particle %d moved: pos %v vel %v", i, e.Pos[i], e.Vel[i])
		}
	}
}

func TestFieldQuiescence(t *testing.T) {
	p := testParams(8, 8)
	p.Integrator = dynamo.IntegratorField
	topo := boundary.NewPeriodic(p.L)
	g := dynamo.NewGrid(p.G, p.L)
	rho := make([]float64, g.Cells())
	coh := make([]float64, g.Cells())
	for i := range rho {
		rho[i], coh[i] = 1, 1
	}
	dst := make([]float64, g.Cells())
	if err := NewEulerian(p, topo).Step(g, rho, coh, dst, 0); err != nil {
		t.Fatal(err)
	}
	for i, v := range dst {
		if v != 1 {
			t.Fatalf("cell %d changed to %g", i, v)
		}
	}
}

func bump(g *dynamo.Grid, amp, width float64) []float64 {
	rho := make([]float64, g.Cells())
	for idx := range rho {
		i, j, k := g.Coords(idx)
		r := g.Center(i, j, k)
		rho[idx] = 1 + amp*math.Exp(-r.Dot(r)/(2*width*width))
	}
	return rho
}

func TestFieldConservesMass(t *testing.T) {
	for _, name := range []string{dynamo.BoundaryPeriodic, dynamo.BoundaryOpen} {
		t.Run(name, func(t *testing.T) {
			p := testParams(12, 12)
			p.Boundary = name
			topo, _ := boundary.New(name, p.L)
			g := dynamo.NewGrid(p.G, p.L)
			rho := bump(g, 30, 1.5)
			coh := make([]float64, g.Cells())
			op, err := coherence.New(p, topo)
			if err != nil {
				t.Fatal(err)
			}
			op.Apply(rho, coh)

			f := NewEulerian(p, topo)
			dst := make([]float64, g.Cells())
			if err := f.Step(g, rho, coh, dst, 0); err != nil {
				t.Fatal(err)
			}

			before, after := 0.0, 0.0
			for i := range rho {
				before += rho[i]
				after += dst[i]
				if dst[i] < 0 {
					t.Fatalf("cell %d negative: %g", i, dst[i])
				}
			}
			if math.Abs(after-before)/before > 1e-12 {
				t.Errorf("mass drifted from %g to %g", before, after)
			}
			if f.Substeps() < 1 {
				t.Error("expected at least one substep")
			}
		})
	}
}

func TestAttractionPointsUphill(t *testing.T) {
	tests := []struct {
		name string
		k    float64
		want float64 // sign of the x velocity
	}{
		{"attractive", 2, -1},
		{"repulsive", -1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(16, 16)
			p.K = tt.k
			p.CurlWeight = 0
			topo := boundary.NewPeriodic(p.L)
			g := dynamo.NewGrid(p.G, p.L)
			rho := bump(g, 50, 1)
			coh := make([]float64, g.Cells())
			op, err := coherence.New(p, topo)
			if err != nil {
				t.Fatal(err)
			}
			op.Apply(rho, coh)

			e := dynamo.NewEnsemble(1)
			e.Pos[0] = dynamo.Vec3{2, 0, 0}
			dd := NewDriftDiffusion(p, topo, rand.New(rand.NewSource(1)))
			if err := dd.Step(e, g, rho, coh, 0, 0); err != nil {
				t.Fatal(err)
			}
			if math.Signbit(e.Vel[0][0]) != math.Signbit(tt.want) || e.Vel[0][0] == 0 {
				t.Errorf("expected x velocity with sign %v, got %g", tt.want, e.Vel[0][0])
			}
		})
	}
}

func TestNoiseSatisfiesFluctuationDissipation(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	p := testParams(8, 8)
	p.K = 0
	p.CurlWeight = 0
	p.Nu = 0.1
	p.Dt = 0.1
	temp := 0.2

	topo := boundary.NewPeriodic(p.L)
	g := dynamo.NewGrid(p.G, p.L)
	e := latticeEnsemble(g)
	rho := make([]float64, g.Cells())
	coh := make([]float64, g.Cells())
	for i := range rho {
		rho[i] = 1
	}
	dd := NewDriftDiffusion(p, topo, rand.New(rand.NewSource(42)))

	sum, samples := 0.0, 0
	for step := 0; step < 800; step++ {
		if err := dd.Step(e, g, rho, coh, temp, step); err != nil {
			t.Fatal(err)
		}
		if err := topo.Wrap(e, step); err != nil {
			t.Fatal(err)
		}
		if step >= 400 {
			for _, v := range e.Vel {
				sum += v.Dot(v)
				samples += 3
			}
		}
	}
	got := sum / float64(samples)
	want := temp / (1 - p.Nu*p.Dt/2)
	if math.Abs(got-want)/want > 0.1 {
		t.Errorf("per-axis <v²> = %g, want %g", got, want)
	}
}

func TestRotatePreservesNorm(t *testing.T) {
	v := Rotate(dynamo.Vec3{1, 0, 0}, dynamo.Vec3{0, 0, 5}, math.Pi/2)
	if v.Sub(dynamo.Vec3{0, 1, 0}).Norm() > 1e-12 {
		t.Errorf("expected (0,1,0), got %v", v)
	}

	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		a := dynamo.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		axis := dynamo.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		b := Rotate(a, axis, rng.Float64()*10)
		if math.Abs(a.Norm()-b.Norm()) > 1e-12 {
			t.Fatalf("rotation changed norm %g -> %g", a.Norm(), b.Norm())
		}
	}
	if Rotate(dynamo.Vec3{1, 2, 3}, dynamo.Vec3{}, 1) != (dynamo.Vec3{1, 2, 3}) {
		t.Error("zero axis should leave v unchanged")
	}
}

func TestVorticityVanishesForParallelGradients(t *testing.T) {
	w := Vorticity(dynamo.Vec3{1, 2, 3}, dynamo.Vec3{2, 4, 6})
	if w.Norm() != 0 {
		t.Errorf("expected zero vorticity, got %v", w)
	}
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		kind string
	}{
		{dynamo.AnnealLinear},
		{dynamo.AnnealExponential},
		{dynamo.AnnealSigmoid},
		{dynamo.AnnealPower},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s := Schedule{Kind: tt.kind, From: 1, To: 0.1, Ticks: 100}
			prev := math.Inf(1)
			for tick := 0; tick <= 120; tick++ {
				temp := s.Temperature(tick)
				if temp > prev+1e-12 {
					t.Fatalf("temperature rose at tick %d: %g > %g", tick, temp, prev)
				}
				prev = temp
			}
			if s.Temperature(100) != 0.1 || s.Temperature(500) != 0.1 {
				t.Error("schedule should settle at the target")
			}
			if got := s.Temperature(0); tt.kind != dynamo.AnnealSigmoid && math.Abs(got-1) > 1e-12 {
				t.Errorf("expected start temperature 1, got %g", got)
			}
		})
	}

	none := Schedule{Kind: dynamo.AnnealNone, From: 5, To: 0.3, Ticks: 10}
	if none.Temperature(0) != 0.3 {
		t.Error("no schedule should hold the target temperature")
	}

	cold := Schedule{Kind: dynamo.AnnealLinear, From: 0.4, To: 0, Ticks: 4}
	if math.Abs(cold.Temperature(2)-0.2) > 1e-12 {
		t.Errorf("zero target should interpolate in T, got %g", cold.Temperature(2))
	}
}
