// Package sim runs the coherence pipeline for one simulated volume.
//
// A [Simulator] is the context object that owns every piece of mutable
// state: particles, grid buffers, the eigenbasis, the convergence tracker.
// Independent simulators share nothing and may run concurrently; a single
// simulator is driven by one goroutine.
//
// Each tick runs to completion before the next:
//
//	integrate (committed fields) → boundary → rasterize → coherence → commit → analyze
//
// Rasterization and coherence for the next tick's forces are computed at the
// end of the current one, so the committed state (positions, density,
// coherence) always describes the same instant.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/analysis"
	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/coherence"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/integrators"
	"github.com/san-kum/cohsim/internal/metrics"
	"github.com/san-kum/cohsim/internal/phi"
	"github.com/san-kum/cohsim/internal/raster"
)

type Simulator struct {
	params dynamo.Params
	logger *slog.Logger

	ens     *dynamo.Ensemble
	initial *dynamo.Ensemble
	grid    *dynamo.Grid
	policy  boundary.Policy
	raster  raster.Rasterizer
	op      coherence.Operator

	particle *integrators.DriftDiffusion
	field    *integrators.Eulerian
	schedule integrators.Schedule

	tracker *analysis.ConvergenceTracker
	energy  *analysis.EnergyMeter

	metrics        []metrics.Metric
	observers      []Observer
	analysisBudget time.Duration

	validation *coherence.Report
	warning    *dynamo.AlgorithmDivergenceWarning

	tick   int
	start  time.Time
	status analysis.Status
	last   Diagnostics
	peaks  []analysis.Peak
	err    error
}

// New validates p, places the ensemble, builds the coherence operator and
// commits the initial density and coherence. An eigenmode operator is
// validated against the direct convolution on the initial density; a
// mismatch beyond p.ValidationTol is logged and flags the run, but is not an
// error.
func New(p dynamo.Params, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{params: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.policy, err = boundary.New(p.Boundary, p.L); err != nil {
		return nil, err
	}
	if s.raster, err = raster.New(p.Raster, s.policy, p.MassTol); err != nil {
		return nil, err
	}
	if s.op, err = coherence.New(p, s.policy); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	if s.initial != nil {
		if s.initial.Len() != p.N {
			return nil, &dynamo.ConfigurationError{Field: "N", Value: s.initial.Len(), Reason: fmt.Sprintf("initial ensemble must hold %d particles", p.N)}
		}
		s.ens, s.initial = s.initial, nil
	} else {
		s.ens = dynamo.NewEnsemble(p.N)
		s.ens.Randomize(rng, p.L, p.InitSpeed)
	}
	if err := s.policy.Wrap(s.ens, 0); err != nil {
		return nil, err
	}
	s.grid = dynamo.NewGrid(p.G, p.L)

	switch p.Integrator {
	case dynamo.IntegratorField:
		s.field = integrators.NewEulerian(p, s.policy)
	default:
		s.particle = integrators.NewDriftDiffusion(p, s.policy, rng)
	}
	s.schedule = integrators.NewSchedule(p)

	bound := p.SanityFraction * float64(p.N)
	s.tracker = analysis.NewConvergenceTracker(p.ConvergenceWindow, p.ConvergenceTol, p.ConvergencePatience, bound)
	s.energy = analysis.NewEnergyMeter(s.op, phi.Beta)
	s.metrics = append(metrics.Standard(p.N), s.metrics...)

	if err := s.raster.Deposit(s.ens, s.grid, s.grid.BackDensity()); err != nil {
		return nil, err
	}
	s.op.Apply(s.grid.BackDensity(), s.grid.BackCoherence())
	s.grid.Commit()
	if err := s.grid.Validate(0); err != nil {
		return nil, err
	}

	if p.Coherence == dynamo.CoherenceEigenmode {
		s.validate()
	}

	s.logger.Info("simulation initialised",
		"particles", p.N,
		"grid", p.G,
		"extent", p.L,
		"coherence", s.op.Name(),
		"modes", p.Modes,
		"raster", s.raster.Name(),
		"boundary", s.policy.Name(),
		"integrator", p.Integrator,
		"k", p.K,
	)

	s.start = time.Now()
	s.last = s.diagnostics(0, true)
	return s, nil
}

func (s *Simulator) validate() {
	ref := coherence.NewReference(s.params, s.policy)
	s.validation, s.warning = coherence.Validate(ref, s.op, s.grid.Density, s.params.ValidationTol)
	if s.warning != nil {
		s.logger.Warn("eigenmode coherence diverges from direct convolution; run flagged unvalidated",
			"report", s.validation, "error", s.warning)
		return
	}
	s.logger.Info("eigenmode coherence validated", "report", s.validation)
}

// Step advances one tick and returns its diagnostics. A fatal error stops
// the simulator: every later call returns the same error.
func (s *Simulator) Step() (*Diagnostics, error) {
	if s.err != nil {
		return nil, s.err
	}
	began := time.Now()
	tick := s.tick + 1

	if err := s.advance(tick); err != nil {
		s.err = err
		return nil, err
	}
	s.tick = tick

	analyze := tick%s.params.AnalyzeEvery == 0
	if analyze && s.analysisBudget > 0 && time.Since(began) > s.analysisBudget {
		s.logger.Debug("analysis skipped over budget", "tick", tick, "took", time.Since(began))
		analyze = false
	}
	d := s.diagnostics(tick, analyze)
	s.last = d

	for _, o := range s.observers {
		o.OnTick(&d)
	}
	return &d, nil
}

// advance runs the pipeline for tick and commits the new fields.
func (s *Simulator) advance(tick int) error {
	temp := s.schedule.Temperature(tick - 1)
	rho, coh := s.grid.BackDensity(), s.grid.BackCoherence()

	if s.field != nil {
		if err := s.field.Step(s.grid, s.grid.Density, s.grid.Coherence, rho, tick); err != nil {
			return err
		}
	} else {
		if err := s.particle.Step(s.ens, s.grid, s.grid.Density, s.grid.Coherence, temp, tick); err != nil {
			return err
		}
		if err := s.policy.Wrap(s.ens, tick); err != nil {
			return err
		}
		if err := s.raster.Deposit(s.ens, s.grid, rho); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
	}
	if err := dynamo.CheckFinite("density", tick, rho); err != nil {
		return err
	}

	s.op.Apply(rho, coh)
	if err := dynamo.CheckFinite("coherence", tick, coh); err != nil {
		return err
	}

	s.grid.Commit()
	return nil
}

func (s *Simulator) diagnostics(tick int, analyze bool) Diagnostics {
	d := s.last
	d.Tick = tick
	d.Time = float64(tick) * s.params.Dt
	d.ElapsedMs = float64(time.Since(s.start).Microseconds()) / 1000
	d.Temperature = s.schedule.Temperature(tick)
	d.MaxDensity = floats.Max(s.grid.Density)
	d.MaxCoherence = floats.Max(s.grid.Coherence)
	d.Unvalidated = s.warning != nil
	d.Analyzed = analyze

	frame := metrics.Frame{Tick: tick, Time: d.Time, Particles: s.ens, Grid: s.grid}
	for _, m := range s.metrics {
		m.Observe(frame)
		v := m.Value()
		if sm, ok := m.(metrics.Sampler); ok {
			v = sm.Last()
		}
		switch m.Name() {
		case "mass_drift":
			d.MassDrift = v
		case "kinetic_energy":
			d.KineticEnergy = v
		case "face_shell":
			d.FaceShell = v
		case "face_contact":
			d.FaceContact = v
		}
	}

	if tick > 0 {
		status := s.tracker.Observe(tick, d.MaxDensity)
		if status != s.status {
			s.logger.Info("convergence status changed",
				"tick", tick, "from", s.status.String(), "to", status.String(),
				"max_density", d.MaxDensity)
			s.status = status
		}
	}
	d.Status = s.status
	d.StatusName = s.status.String()
	d.RelativeChange = s.tracker.RelativeChange()

	if analyze {
		s.analyze(&d)
	}
	return d
}

// analyze runs the O(G³) read-only pass over the committed density.
func (s *Simulator) analyze(d *Diagnostics) {
	rho := s.grid.Density
	s.peaks = analysis.DetectPeaks(s.grid, rho, s.policy, analysis.NoiseFloor(rho, s.params.PeakThreshold))
	d.Ratios = analysis.MeasureSpacingRatios(s.peaks, s.policy, s.params.RatioTolerance)
	d.Peaks = len(s.peaks)
	d.RatioMean = d.Ratios.Mean
	d.RatioMedian = d.Ratios.Median
	d.RatioStd = d.Ratios.Std
	d.RatioNearPhi = d.Ratios.NearPhi

	e := s.energy.Measure(rho)
	d.CoherenceEnergy = e.Coherence
	d.Entropy = e.Entropy
	d.FreeEnergy = e.Free

	d.Wavelength = analysis.PowerSpectrum(s.grid, rho).DominantWavelength()
}

// Run steps up to ticks times. The context is checked between ticks only;
// fn, when non-nil, sees every tick's diagnostics and may stop the run by
// returning false.
func (s *Simulator) Run(ctx context.Context, ticks int, fn func(*Diagnostics) bool) error {
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at tick %d: %w", dynamo.ErrContextCanceled, s.tick, ctx.Err())
		default:
		}

		d, err := s.Step()
		if err != nil {
			return err
		}
		if fn != nil && !fn(d) {
			return nil
		}
	}
	return nil
}

func (s *Simulator) Params() dynamo.Params        { return s.params }
func (s *Simulator) Tick() int                    { return s.tick }
func (s *Simulator) Status() analysis.Status      { return s.status }
func (s *Simulator) Err() error                   { return s.err }
func (s *Simulator) Operator() coherence.Operator { return s.op }
func (s *Simulator) Policy() boundary.Policy      { return s.policy }

// Diagnostics returns a copy of the last committed tick's diagnostics.
func (s *Simulator) Diagnostics() Diagnostics { return s.last }

// Validation is the eigenmode validation report, or nil on the direct path.
func (s *Simulator) Validation() *coherence.Report { return s.validation }

// Warning is non-nil when the run is on an unvalidated fast path.
func (s *Simulator) Warning() *dynamo.AlgorithmDivergenceWarning { return s.warning }

// Tracker exposes the convergence window for plotting.
func (s *Simulator) Tracker() *analysis.ConvergenceTracker { return s.tracker }

// Metrics returns the current value of every metric by name.
func (s *Simulator) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
