package dynamo

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/cohsim/internal/phi"
)

// Algorithm and policy selectors. Names are the configuration-file spelling.
const (
	CoherenceDirect    = "direct"
	CoherenceEigenmode = "eigenmode"

	RasterNGPBox = "ngp"
	RasterCIC    = "cic"

	BoundaryPeriodic = "periodic"
	BoundaryOpen     = "open"

	IntegratorParticle = "particle"
	IntegratorField    = "field"

	AnnealNone        = "none"
	AnnealLinear      = "linear"
	AnnealExponential = "exponential"
	AnnealSigmoid     = "sigmoid"
	AnnealPower       = "power"
)

var (
	coherenceNames  = []string{CoherenceDirect, CoherenceEigenmode}
	rasterNames     = []string{RasterNGPBox, RasterCIC}
	boundaryNames   = []string{BoundaryPeriodic, BoundaryOpen}
	integratorNames = []string{IntegratorParticle, IntegratorField}
	annealNames     = []string{AnnealNone, AnnealLinear, AnnealExponential, AnnealSigmoid, AnnealPower}
)

// Params is the complete engine configuration. It is validated once at
// initialisation and never mutated by the engine afterwards.
type Params struct {
	N  int     // particle count
	G  int     // cells per axis
	L  float64 // domain extent
	Dt float64

	Sigma float64 // kernel scale
	Nu    float64 // friction and diffusion coefficient

	// K is the attraction coefficient. Its value and sign are open: 2, φ and
	// 2πφ all appear in practice with different qualitative outcomes.
	K          float64
	CurlWeight float64
	NoiseTemp  float64 // 0 disables noise
	InitSpeed  float64 // per-axis std of the initial velocities

	Coherence string
	// Modes is the number of 1-D eigenmodes kept per axis. The 3-D basis
	// is their tensor product and holds Modes³ fields.
	Modes         int
	ValidationTol float64

	Raster     string
	Boundary   string
	Integrator string

	DensityFloor        float64 // fraction of the mean density added inside log ρ
	MassTol             float64
	SanityFraction      float64 // Diverging when max density exceeds this fraction of N
	AnalyzeEvery        int
	ConvergenceWindow   int
	ConvergenceTol      float64
	ConvergencePatience int
	PeakThreshold       float64 // noise floor in standard deviations above the mean
	RatioTolerance      float64 // relative distance that counts as near a power of φ

	Anneal      string
	AnnealFrom  float64
	AnnealTicks int

	Workers int
	Seed    int64
}

func DefaultParams() Params {
	return Params{
		N:                   20000,
		G:                   32,
		L:                   20,
		Dt:                  0.1,
		Sigma:               phi.Sigma,
		Nu:                  phi.Nu,
		K:                   2.0,
		CurlWeight:          0.05,
		NoiseTemp:           phi.Nu,
		InitSpeed:           0.05,
		Coherence:           CoherenceEigenmode,
		Modes:               13,
		ValidationTol:       1e-2,
		Raster:              RasterCIC,
		Boundary:            BoundaryPeriodic,
		Integrator:          IntegratorParticle,
		DensityFloor:        1e-3,
		MassTol:             1e-9,
		SanityFraction:      0.9,
		AnalyzeEvery:        10,
		ConvergenceWindow:   40,
		ConvergenceTol:      0.02,
		ConvergencePatience: 20,
		PeakThreshold:       2.0,
		RatioTolerance:      0.05,
		Anneal:              AnnealNone,
		AnnealTicks:         0,
		Workers:             1,
		Seed:                1,
	}
}

func (p Params) CellSize() float64   { return p.L / float64(p.G) }
func (p Params) Cells() int          { return p.G * p.G * p.G }
func (p Params) HalfExtent() float64 { return p.L / 2 }

// MeanDensity is the expected particle count per cell.
func (p Params) MeanDensity() float64 { return float64(p.N) / float64(p.Cells()) }

// KernelRadius is the truncation radius in cells, ceil(3σ/h).
func (p Params) KernelRadius() int {
	return int(math.Ceil(3 * p.Sigma / p.CellSize()))
}

// Validate returns a *ConfigurationError for the first invalid field.
// Nothing is auto-corrected.
func (p Params) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"N", float64(p.N)},
		{"G", float64(p.G)},
		{"L", p.L},
		{"Dt", p.Dt},
		{"Sigma", p.Sigma},
	}
	for _, c := range positive {
		if !(c.v > 0) || math.IsInf(c.v, 0) {
			return &ConfigurationError{Field: c.name, Value: c.v, Reason: "must be positive and finite"}
		}
	}
	if p.G < 4 {
		return &ConfigurationError{Field: "G", Value: p.G, Reason: "need at least 4 cells per axis"}
	}
	if w := 2*p.KernelRadius() + 1; w > p.G {
		return &ConfigurationError{
			Field:  "G",
			Value:  p.G,
			Reason: fmt.Sprintf("kernel stencil spans %d cells (R=%d, h=%.4g) and would wrap onto itself; raise L or G, or lower Sigma", w, p.KernelRadius(), p.CellSize()),
		}
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"Nu", p.Nu},
		{"CurlWeight", p.CurlWeight},
		{"NoiseTemp", p.NoiseTemp},
		{"InitSpeed", p.InitSpeed},
		{"DensityFloor", p.DensityFloor},
		{"MassTol", p.MassTol},
		{"SanityFraction", p.SanityFraction},
		{"AnnealFrom", p.AnnealFrom},
	}
	for _, c := range nonNegative {
		if c.v < 0 || math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return &ConfigurationError{Field: c.name, Value: c.v, Reason: "must be non-negative and finite"}
		}
	}
	if math.IsNaN(p.K) || math.IsInf(p.K, 0) {
		return &ConfigurationError{Field: "K", Value: p.K, Reason: "must be finite"}
	}
	if p.Nu*p.Dt >= 1 {
		return &ConfigurationError{Field: "Dt", Value: p.Dt, Reason: fmt.Sprintf("friction factor 1-ν·Δt must stay positive (ν=%g)", p.Nu)}
	}
	if p.Integrator == IntegratorField && p.DensityFloor <= 0 {
		return &ConfigurationError{Field: "DensityFloor", Value: p.DensityFloor, Reason: "field integrator needs a positive floor"}
	}

	if err := oneOf("Coherence", p.Coherence, coherenceNames); err != nil {
		return err
	}
	if err := oneOf("Raster", p.Raster, rasterNames); err != nil {
		return err
	}
	if err := oneOf("Boundary", p.Boundary, boundaryNames); err != nil {
		return err
	}
	if err := oneOf("Integrator", p.Integrator, integratorNames); err != nil {
		return err
	}
	if err := oneOf("Anneal", p.Anneal, annealNames); err != nil {
		return err
	}

	if p.Coherence == CoherenceEigenmode {
		if p.Modes < 1 || p.Modes > p.G {
			return &ConfigurationError{Field: "Modes", Value: p.Modes, Reason: fmt.Sprintf("must be in [1, %d]", p.G)}
		}
		if !(p.ValidationTol > 0) {
			return &ConfigurationError{Field: "ValidationTol", Value: p.ValidationTol, Reason: "must be positive"}
		}
	}

	ints := []struct {
		name string
		v    int
	}{
		{"AnalyzeEvery", p.AnalyzeEvery},
		{"ConvergenceWindow", p.ConvergenceWindow},
		{"ConvergencePatience", p.ConvergencePatience},
		{"Workers", p.Workers},
	}
	for _, c := range ints {
		if c.v < 1 {
			return &ConfigurationError{Field: c.name, Value: c.v, Reason: "must be at least 1"}
		}
	}
	if p.ConvergenceWindow < 4 || p.ConvergenceWindow%2 != 0 {
		return &ConfigurationError{Field: "ConvergenceWindow", Value: p.ConvergenceWindow, Reason: "must be even and at least 4"}
	}
	if !(p.ConvergenceTol > 0) {
		return &ConfigurationError{Field: "ConvergenceTol", Value: p.ConvergenceTol, Reason: "must be positive"}
	}
	if p.Anneal != AnnealNone && p.AnnealTicks < 1 {
		return &ConfigurationError{Field: "AnnealTicks", Value: p.AnnealTicks, Reason: "annealing needs at least one tick"}
	}
	return nil
}

func oneOf(field, v string, allowed []string) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return &ConfigurationError{Field: field, Value: v, Reason: fmt.Sprintf("must be one of %v", allowed)}
}
