package analysis

import (
	"math"
	"testing"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/coherence"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/phi"
)

func TestConvergenceTracker(t *testing.T) {
	tests := []struct {
		name   string
		ticks  int
		bound  float64
		series func(t int) float64
		want   Status
	}{
		{"saturating growth", 400, 0, func(t int) float64 { return 10 * (1 - math.Exp(-float64(t)/20)) }, Converged},
		{"decaying delta", 400, 0, func(t int) float64 { return 5 * math.Exp(-float64(t)/15) }, Converged},
		{"exponential growth", 200, 0, func(t int) float64 { return math.Exp(float64(t) / 50) }, Clustering},
		{"steady decline", 300, 0, func(t int) float64 { return 300 - float64(t) }, Dispersing},
		{"growth past bound", 400, 100, func(t int) float64 { return math.Exp(float64(t) / 50) }, Diverging},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConvergenceTracker(40, 0.02, 20, tt.bound)
			var got Status
			for tick := 0; tick < tt.ticks; tick++ {
				got = c.Observe(tick, tt.series(tick))
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s (r = %g)", tt.want, got, c.RelativeChange())
			}
		})
	}
}

func TestConvergenceTrackerPendingAndReset(t *testing.T) {
	c := NewConvergenceTracker(10, 0.02, 3, 0)
	for tick := 0; tick < 9; tick++ {
		if s := c.Observe(tick, 1); s != Pending {
			t.Fatalf("tick %d: expected pending, got %s", tick, s)
		}
	}
	if !math.IsNaN(c.RelativeChange()) {
		t.Error("relative change should be NaN before the window fills")
	}
	for tick := 9; tick < 20; tick++ {
		c.Observe(tick, 1)
	}
	if c.Status() != Converged || c.ConvergedAt() != 11 {
		t.Errorf("constant series should converge at tick 11, got %s at %d", c.Status(), c.ConvergedAt())
	}

	c.Reset()
	if c.Status() != Pending || len(c.History()) != 0 || c.ConvergedAt() != -1 {
		t.Error("reset should clear the tracker")
	}
}

func TestConvergenceTrackerDivergingIsFinal(t *testing.T) {
	c := NewConvergenceTracker(4, 0.02, 1, 0)
	c.Observe(0, 1)
	if s := c.Observe(1, math.NaN()); s != Diverging {
		t.Fatalf("expected diverging on NaN, got %s", s)
	}
	for tick := 2; tick < 10; tick++ {
		if s := c.Observe(tick, 1); s != Diverging {
			t.Fatalf("diverging should be final, got %s", s)
		}
	}
}

func gaussianBumps(g *dynamo.Grid, centres []dynamo.Vec3, amp, width float64) []float64 {
	pol := boundary.NewPeriodic(g.Extent)
	rho := make([]float64, g.Cells())
	for idx := range rho {
		i, j, k := g.Coords(idx)
		x := g.Center(i, j, k)
		rho[idx] = 0.1
		for _, c := range centres {
			d := pol.Separation(c, x)
			rho[idx] += amp * math.Exp(-d.Dot(d)/(2*width*width))
		}
	}
	return rho
}

func TestDetectPeaksTwoBumps(t *testing.T) {
	g := dynamo.NewGrid(32, 20)
	pol := boundary.NewPeriodic(20)
	want := []dynamo.Vec3{{-4, 0.3, 0}, {4, 0.3, 0}}
	rho := gaussianBumps(g, want, 10, 1)

	peaks := DetectPeaks(g, rho, pol, NoiseFloor(rho, 2))
	if len(peaks) != 2 {
		t.Fatalf("expected exactly 2 peaks, got %d", len(peaks))
	}
	for _, w := range want {
		found := false
		for _, p := range peaks {
			d := pol.Separation(w, p.Position)
			if math.Abs(d[0]) <= g.H && math.Abs(d[1]) <= g.H && math.Abs(d[2]) <= g.H {
				found = true
			}
		}
		if !found {
			t.Errorf("no peak within one cell of %v: %+v", w, peaks)
		}
	}

	summary := MeasureSpacingRatios(peaks, pol, 0.05)
	if summary.Pairs != 1 || math.Abs(summary.MinDistance-8) > 2*g.H {
		t.Errorf("expected one pair about 8 apart, got %+v", summary)
	}
	if !summary.Degenerate() {
		t.Error("a single pair cannot give a non-degenerate distribution")
	}
}

func TestDetectPeaksAcrossFace(t *testing.T) {
	g := dynamo.NewGrid(32, 20)
	pol := boundary.NewPeriodic(20)
	centre := dynamo.Vec3{9.9, -9.95, 2}
	rho := gaussianBumps(g, []dynamo.Vec3{centre}, 10, 1)

	peaks := DetectPeaks(g, rho, pol, NoiseFloor(rho, 2))
	if len(peaks) != 1 {
		t.Fatalf("a bump straddling a face is one peak, got %d", len(peaks))
	}
	if d := pol.Separation(centre, peaks[0].Position).Norm(); d > g.H {
		t.Errorf("peak %v is %g from %v", peaks[0].Position, d, centre)
	}
}

func TestDetectPeaksFlatField(t *testing.T) {
	g := dynamo.NewGrid(8, 8)
	rho := make([]float64, g.Cells())
	for i := range rho {
		rho[i] = 3
	}
	if peaks := DetectPeaks(g, rho, boundary.NewPeriodic(8), NoiseFloor(rho, 2)); len(peaks) != 0 {
		t.Errorf("flat field has no peaks above its floor, got %d", len(peaks))
	}
}

func TestNoiseFloorIgnoresRoundingRipple(t *testing.T) {
	g := dynamo.NewGrid(8, 8)
	pol := boundary.NewPeriodic(8)
	tests := []struct {
		name   string
		ripple float64
		bump   float64
		peaks  int
	}{
		{"rounding ripple", 1e-12, 0, 0},
		{"ripple with a faint cell", 1e-12, 1e-9, 0},
		{"real bump", 1e-12, 0.01, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rho := make([]float64, g.Cells())
			for i := range rho {
				rho[i] = 1
				if i%3 == 0 {
					rho[i] += tt.ripple
				}
			}
			rho[g.Index(4, 4, 4)] += tt.bump

			floor := NoiseFloor(rho, 2)
			if floor <= 1 {
				t.Fatalf("floor %.17g should sit above the mean", floor)
			}
			if got := len(DetectPeaks(g, rho, pol, floor)); got != tt.peaks {
				t.Errorf("expected %d peaks, got %d", tt.peaks, got)
			}
		})
	}
}

func TestMeasureSpacingRatios(t *testing.T) {
	pol := boundary.NewOpen(100)
	peaks := []Peak{
		{Position: dynamo.Vec3{0, 0, 0}},
		{Position: dynamo.Vec3{1, 0, 0}},
		{Position: dynamo.Vec3{1 + phi.Phi, 0, 0}},
	}
	s := MeasureSpacingRatios(peaks, pol, 0.01)

	want := []float64{1, phi.Phi, phi.Phi * phi.Phi}
	if s.Pairs != 3 {
		t.Fatalf("expected 3 pairs, got %d", s.Pairs)
	}
	for i, r := range s.Ratios {
		if math.Abs(r-want[i]) > 1e-12 {
			t.Errorf("ratio %d = %g, want %g", i, r, want[i])
		}
	}
	if s.NearPhi != 1 {
		t.Errorf("every ratio above one is a power of φ, got fraction %g", s.NearPhi)
	}
	if s.Degenerate() {
		t.Error("distribution should not be degenerate")
	}
	if math.Abs(s.Median-phi.Phi) > 1e-12 {
		t.Errorf("median = %g, want φ", s.Median)
	}
}

func TestSpacingUsesMinimumImage(t *testing.T) {
	peaks := []Peak{
		{Position: dynamo.Vec3{-9, 0, 0}},
		{Position: dynamo.Vec3{9, 0, 0}},
	}
	if s := MeasureSpacingRatios(peaks, boundary.NewPeriodic(20), 0.05); math.Abs(s.MinDistance-2) > 1e-12 {
		t.Errorf("expected wrapped distance 2, got %g", s.MinDistance)
	}
	if s := MeasureSpacingRatios(peaks[:1], boundary.NewPeriodic(20), 0.05); s.Pairs != 0 {
		t.Error("one peak has no pairs")
	}
}

func TestFreeEnergy(t *testing.T) {
	g := dynamo.NewGrid(8, 8)
	topo := boundary.NewPeriodic(8)
	op := coherence.NewDirect(coherence.NewKernel(phi.Sigma, 1), 8, topo, 1)
	meter := NewEnergyMeter(op, phi.Beta)

	uniform := make([]float64, g.Cells())
	for i := range uniform {
		uniform[i] = 2
	}
	e := meter.Measure(uniform)
	cells := float64(g.Cells())
	if math.Abs(e.Coherence-1/cells) > 1e-12 {
		t.Errorf("uniform ℒ = %g, want %g", e.Coherence, 1/cells)
	}
	if math.Abs(e.Entropy-math.Log(cells)) > 1e-9 {
		t.Errorf("uniform S = %g, want %g", e.Entropy, math.Log(cells))
	}
	if math.Abs(e.Free-(e.Coherence-e.Entropy/phi.Beta)) > 1e-15 {
		t.Error("ℱ should be ℒ − S/β")
	}

	clustered := make([]float64, g.Cells())
	clustered[g.Index(4, 4, 4)] = 1024
	c := meter.Measure(clustered)
	if c.Coherence <= e.Coherence || c.Entropy >= e.Entropy {
		t.Errorf("clustering should raise ℒ and lower S: %+v vs %+v", c, e)
	}

	if z := meter.Measure(make([]float64, g.Cells())); z != (Energy{}) {
		t.Errorf("empty density should have zero energy, got %+v", z)
	}
}

func TestPowerSpectrumFindsWavelength(t *testing.T) {
	g := dynamo.NewGrid(16, 20)
	rho := make([]float64, g.Cells())
	for idx := range rho {
		_, j, _ := g.Coords(idx)
		rho[idx] = 1 + 0.5*math.Cos(2*math.Pi*4*float64(j)/16)
	}
	sp := PowerSpectrum(g, rho)
	if sp.DominantShell() != 4 {
		t.Errorf("expected shell 4, got %d (power %v)", sp.DominantShell(), sp.Power)
	}
	if math.Abs(sp.DominantWavelength()-5) > 1e-12 {
		t.Errorf("expected wavelength 5, got %g", sp.DominantWavelength())
	}
	if sp.Power[0] > 1e-20 {
		t.Errorf("mean should be removed, shell 0 power %g", sp.Power[0])
	}

	flat := PowerSpectrum(g, make([]float64, g.Cells()))
	if flat.DominantWavelength() != 0 {
		t.Error("featureless field has no dominant wavelength")
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		Pending: "pending", Dispersing: "dispersing", Clustering: "clustering",
		Converged: "converged", Diverging: "diverging",
	} {
		if s.String() != want {
			t.Errorf("%d: got %s, want %s", s, s.String(), want)
		}
	}
}
