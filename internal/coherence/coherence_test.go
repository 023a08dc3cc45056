package coherence

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/phi"
	"github.com/san-kum/cohsim/internal/raster"
)

// A 16-cell grid over 12 length units keeps the stencil (2R+1 = 15) inside
// one period.
const (
	testExtent = 12.0
	testH      = testExtent / 16
)

func randomDensity(t *testing.T, n int, extent float64, particles int, seed int64) []float64 {
	t.Helper()
	e := dynamo.NewEnsemble(particles)
	e.Randomize(rand.New(rand.NewSource(seed)), extent, 0)
	g := dynamo.NewGrid(n, extent)
	rho := make([]float64, g.Cells())
	if err := raster.NewCIC(boundary.NewPeriodic(extent), 1e-9).Deposit(e, g, rho); err != nil {
		t.Fatal(err)
	}
	return rho
}

func TestKernelWeights(t *testing.T) {
	k := NewKernel(phi.Sigma, testH)
	if k.Radius != 7 {
		t.Errorf("expected radius ceil(3σ/h) = 7, got %d", k.Radius)
	}
	sum := 0.0
	for d := -k.Radius; d <= k.Radius; d++ {
		sum += k.Weight(d)
		if k.Weight(d) != k.Weight(-d) {
			t.Errorf("kernel not symmetric at %d", d)
		}
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("weights sum to %g", sum)
	}
	if k.Weight(k.Radius+1) != 0 {
		t.Error("weight beyond the radius should be zero")
	}
}

func TestKernelStencilFitsGrid(t *testing.T) {
	tests := []struct {
		name    string
		g       int
		extent  float64
		wrapped bool
	}{
		{"default grid", 32, 20, false},
		{"small grid", 16, testExtent, false},
		{"small grid on a short box", 16, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := dynamo.DefaultParams()
			p.G, p.L = tt.g, tt.extent
			err := p.Validate()
			if tt.wrapped != (err != nil) {
				t.Fatalf("wrapped=%v but Validate returned %v", tt.wrapped, err)
			}

			k := NewKernel(p.Sigma, p.CellSize())
			a := k.Matrix(p.G, boundary.NewPeriodic(p.L))
			nonzero := 0
			for j := 0; j < p.G; j++ {
				if a.At(0, j) != 0 {
					nonzero++
				}
			}
			if tt.wrapped {
				if nonzero >= 2*k.Radius+1 {
					t.Errorf("expected taps to fold together, row holds %d", nonzero)
				}
				return
			}
			if nonzero != 2*k.Radius+1 {
				t.Errorf("row holds %d taps, want %d", nonzero, 2*k.Radius+1)
			}
			if a.At(0, 0) != k.Weight(0) {
				t.Errorf("centre tap %g, want %g", a.At(0, 0), k.Weight(0))
			}
		})
	}
}

func TestEigenvaluesMatchCirculantSpectrum(t *testing.T) {
	k := NewKernel(phi.Sigma, testH)
	e, err := NewEigenmode(k, 16, 16, boundary.NewPeriodic(testExtent), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Symmetric() {
		t.Fatal("periodic operator should be symmetric")
	}
	fromFFT := k.Spectrum(16)
	sort.Sort(sort.Reverse(sort.Float64Slice(fromFFT)))
	for i, v := range e.Spectrum() {
		if math.Abs(v-fromFFT[i]) > 1e-10 {
			t.Errorf("eigenvalue %d: solver %g, dft %g", i, v, fromFFT[i])
		}
	}
	if math.Abs(fromFFT[0]-1) > 1e-12 {
		t.Errorf("dominant eigenvalue of a normalised kernel should be 1, got %g", fromFFT[0])
	}
}

func TestDominantModeIsUniform(t *testing.T) {
	e, err := NewEigenmode(NewKernel(phi.Sigma, testH), 16, 7, boundary.NewPeriodic(testExtent), 1)
	if err != nil {
		t.Fatal(err)
	}
	b := e.Basis()
	want := 1 / math.Sqrt(16)
	for i := 0; i < 16; i++ {
		if math.Abs(math.Abs(b.At(i, 0))-want) > 1e-10 {
			t.Fatalf("mode 0 entry %d = %g, want ±%g", i, b.At(i, 0), want)
		}
	}
}

func TestModesCountPerAxis(t *testing.T) {
	for _, modes := range []int{1, 7, 9} {
		e, err := NewEigenmode(NewKernel(phi.Sigma, testH), 16, modes, boundary.NewPeriodic(testExtent), 1)
		if err != nil {
			t.Fatal(err)
		}
		if r, c := e.Basis().Dims(); r != 16 || c != modes {
			t.Errorf("modes=%d: basis is %d×%d, want 16×%d", modes, r, c, modes)
		}
		if got := len(e.t3); got != modes*modes*modes {
			t.Errorf("modes=%d: %d 3-D coefficients, want %d", modes, got, modes*modes*modes)
		}
	}
}

func TestUniformDensityIsFixed(t *testing.T) {
	k := NewKernel(phi.Sigma, testH)
	topo := boundary.NewPeriodic(testExtent)
	eig, err := NewEigenmode(k, 16, 7, topo, 2)
	if err != nil {
		t.Fatal(err)
	}
	ops := []Operator{NewDirect(k, 16, topo, 2), eig}

	rho := make([]float64, 16*16*16)
	for i := range rho {
		rho[i] = 0.75
	}
	for _, op := range ops {
		t.Run(op.Name(), func(t *testing.T) {
			dst := make([]float64, len(rho))
			op.Apply(rho, dst)
			for i, v := range dst {
				if math.Abs(v-0.75) > 1e-12 {
					t.Fatalf("cell %d: %g, want 0.75", i, v)
				}
			}
		})
	}
}

func TestEigenmodeHoldsUniformField(t *testing.T) {
	tests := []struct {
		name     string
		boundary string
		modes    int
		value    float64
	}{
		{"periodic unit", dynamo.BoundaryPeriodic, 9, 1},
		{"periodic third", dynamo.BoundaryPeriodic, 9, 1.0 / 3},
		{"open unit", dynamo.BoundaryOpen, 16, 1},
		{"open fraction", dynamo.BoundaryOpen, 16, 0.9765625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo, err := boundary.New(tt.boundary, testExtent)
			if err != nil {
				t.Fatal(err)
			}
			eig, err := NewEigenmode(NewKernel(phi.Sigma, testH), 16, tt.modes, topo, 2)
			if err != nil {
				t.Fatal(err)
			}
			rho := make([]float64, 16*16*16)
			dst := make([]float64, len(rho))
			for i := range rho {
				rho[i] = tt.value
			}
			for step := 0; step < 500; step++ {
				eig.Apply(rho, dst)
				rho, dst = dst, rho
			}
			for i, v := range rho {
				if v != tt.value {
					t.Fatalf("cell %d drifted to %.17g after 500 applications", i, v)
				}
			}
		})
	}
}

func TestEigenmodeCarriesMean(t *testing.T) {
	topo := boundary.NewPeriodic(testExtent)
	eig, err := NewEigenmode(NewKernel(phi.Sigma, testH), 16, 9, topo, 1)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	rho := make([]float64, 16*16*16)
	for i := range rho {
		rho[i] = 1 + 1e-12*(rng.Float64()-0.5)
	}
	mean := func(v []float64) float64 {
		s := 0.0
		for _, x := range v {
			s += x
		}
		return s / float64(len(v))
	}
	spread := func(v []float64) float64 {
		lo, hi := v[0], v[0]
		for _, x := range v {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		return hi - lo
	}

	want := mean(rho)
	initial := spread(rho)
	dst := make([]float64, len(rho))
	for step := 0; step < 300; step++ {
		eig.Apply(rho, dst)
		rho, dst = dst, rho
		if got := mean(rho); math.Abs(got-want) > 1e-14 {
			t.Fatalf("step %d: mean %.17g, want %.17g", step, got, want)
		}
	}
	if s := spread(rho); s > initial {
		t.Errorf("deviation grew from %g to %g", initial, s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		boundary string
		modes    int
		tol      float64
	}{
		{"all modes periodic", dynamo.BoundaryPeriodic, 16, 1e-9},
		{"seven modes periodic", dynamo.BoundaryPeriodic, 7, 1e-2},
		{"all modes open", dynamo.BoundaryOpen, 16, 1e-8},
	}

	rho := randomDensity(t, 16, testExtent, 4000, 5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo, err := boundary.New(tt.boundary, testExtent)
			if err != nil {
				t.Fatal(err)
			}
			k := NewKernel(phi.Sigma, testH)
			eig, err := NewEigenmode(k, 16, tt.modes, topo, 1)
			if err != nil {
				t.Fatal(err)
			}
			rep, warn := Validate(NewDirect(k, 16, topo, 1), eig, rho, tt.tol)
			if warn != nil {
				t.Fatalf("unexpected divergence: %v", warn)
			}
			if !rep.Passed() {
				t.Errorf("report should pass, max rel err %g", rep.MaxRelErr)
			}
		})
	}
}

func TestValidateFlagsTruncatedBasis(t *testing.T) {
	k := NewKernel(phi.Sigma, testH)
	topo := boundary.NewPeriodic(testExtent)
	eig, err := NewEigenmode(k, 16, 1, topo, 1)
	if err != nil {
		t.Fatal(err)
	}

	rho := make([]float64, 16*16*16)
	rho[(8*16+8)*16+8] = 100

	rep, warn := Validate(NewDirect(k, 16, topo, 1), eig, rho, 1e-2)
	if warn == nil {
		t.Fatalf("a single mode cannot reproduce a point source, report %+v", rep)
	}
	if !errors.Is(warn, dynamo.ErrAlgorithmDivergence) {
		t.Errorf("warning should unwrap to the sentinel: %v", warn)
	}
	if warn.MaxRelErr != rep.MaxRelErr || warn.Tolerance != 1e-2 {
		t.Errorf("warning does not mirror the report: %+v vs %+v", warn, rep)
	}
}

func TestEigenmodeRejectsBadModes(t *testing.T) {
	k := NewKernel(phi.Sigma, testH)
	topo := boundary.NewPeriodic(testExtent)
	tests := []struct {
		name  string
		modes int
	}{
		{"zero", 0},
		{"above grid", 17},
		{"splits cosine and sine pair", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEigenmode(k, 16, tt.modes, topo, 1)
			var ce *dynamo.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != "Modes" {
				t.Errorf("expected field Modes, got %s", ce.Field)
			}
		})
	}
}

func TestNewSelectsOperator(t *testing.T) {
	p := dynamo.DefaultParams()
	p.G, p.L = 16, testExtent
	p.Modes = 7
	topo := boundary.NewPeriodic(p.L)
	for _, name := range []string{dynamo.CoherenceDirect, dynamo.CoherenceEigenmode} {
		p.Coherence = name
		op, err := New(p, topo)
		if err != nil {
			t.Fatal(err)
		}
		if op.Name() != name {
			t.Errorf("expected %s, got %s", name, op.Name())
		}
	}
	p.Coherence = "fft"
	if _, err := New(p, topo); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func BenchmarkDirect(b *testing.B) {
	k := NewKernel(phi.Sigma, testH)
	op := NewDirect(k, 16, boundary.NewPeriodic(testExtent), 1)
	rho := make([]float64, 16*16*16)
	dst := make([]float64, len(rho))
	for i := range rho {
		rho[i] = float64(i % 7)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		op.Apply(rho, dst)
	}
}

func BenchmarkEigenmode(b *testing.B) {
	k := NewKernel(phi.Sigma, 0.625)
	op, err := NewEigenmode(k, 32, 13, boundary.NewPeriodic(20), 1)
	if err != nil {
		b.Fatal(err)
	}
	rho := make([]float64, 32*32*32)
	dst := make([]float64, len(rho))
	for i := range rho {
		rho[i] = float64(i % 7)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		op.Apply(rho, dst)
	}
}
