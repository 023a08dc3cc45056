package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/cohsim/internal/config"
	"github.com/san-kum/cohsim/internal/sim"
)

// Result is everything a finished run leaves behind.
type Result struct {
	Config      *config.Config
	Diagnostics []sim.Diagnostics
	Final       *sim.Snapshot
	Metrics     map[string]float64
	ConvergedAt int
	Unvalidated bool
	Err         error
}

// Last returns the final tick's diagnostics.
func (r *Result) Last() sim.Diagnostics {
	if len(r.Diagnostics) == 0 {
		return sim.Diagnostics{}
	}
	return r.Diagnostics[len(r.Diagnostics)-1]
}

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	simulator *sim.Simulator
	opts      []sim.Option
	logger    *slog.Logger
}

func New(cfg *config.Config, opts ...sim.Option) *Experiment {
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		opts:     opts,
		logger:   slog.Default(),
	}
}

func (e *Experiment) WithLogger(l *slog.Logger) *Experiment {
	e.logger = l
	return e
}

func (e *Experiment) Setup() error {
	p := e.cfg.Params()
	if err := e.registry.Check(p); err != nil {
		return err
	}
	s, err := sim.New(p, append([]sim.Option{sim.WithLogger(e.logger)}, e.opts...)...)
	if err != nil {
		return err
	}
	e.simulator = s
	return nil
}

// Run steps the configured number of ticks. A numerical failure or
// cancellation still returns the partial Result alongside the error.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	s := e.simulator
	res := &Result{
		Config:      e.cfg,
		Diagnostics: make([]sim.Diagnostics, 0, e.cfg.Ticks+1),
	}
	res.Diagnostics = append(res.Diagnostics, s.Diagnostics())

	err := s.Run(ctx, e.cfg.Ticks, func(d *sim.Diagnostics) bool {
		res.Diagnostics = append(res.Diagnostics, *d)
		return true
	})

	res.Final = s.Snapshot()
	res.Metrics = s.Metrics()
	res.ConvergedAt = s.Tracker().ConvergedAt()
	res.Unvalidated = s.Warning() != nil
	res.Err = err
	if err != nil {
		e.logger.Error("run stopped", "tick", s.Tick(), "error", err)
		return res, err
	}
	return res, nil
}

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Registry() *Registry { return e.registry }
