package sim

import (
	"log/slog"
	"time"

	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/metrics"
)

// Observer is notified after every committed tick.
type Observer interface {
	OnTick(d *Diagnostics)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d *Diagnostics)

func (f ObserverFunc) OnTick(d *Diagnostics) { f(d) }

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

func WithMetrics(ms ...metrics.Metric) Option {
	return func(s *Simulator) { s.metrics = append(s.metrics, ms...) }
}

// WithAnalysisBudget skips the peak, ratio, energy and spectrum pass on any
// tick whose pipeline already took longer than d. Skipping never affects
// later ticks.
func WithAnalysisBudget(d time.Duration) Option {
	return func(s *Simulator) { s.analysisBudget = d }
}

// WithEnsemble replaces the uniform random placement with e. The simulator
// takes ownership; e must hold exactly Params.N particles.
func WithEnsemble(e *dynamo.Ensemble) Option {
	return func(s *Simulator) { s.initial = e }
}
