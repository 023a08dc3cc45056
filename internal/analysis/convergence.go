package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Status is the qualitative state of a run as seen by the tracker.
type Status int

const (
	// Pending means the window has not filled yet.
	Pending Status = iota
	Dispersing
	Clustering
	Converged
	Diverging
)

func (s Status) String() string {
	switch s {
	case Dispersing:
		return "dispersing"
	case Clustering:
		return "clustering"
	case Converged:
		return "converged"
	case Diverging:
		return "diverging"
	default:
		return "pending"
	}
}

// ConvergenceTracker keeps a bounded window of a scalar summary. The
// relative change r compares the means of the two window halves, scaled by
// the largest magnitude seen so far. The run is Converged once r stays below
// Tol for Patience consecutive observations. A value that is non-finite or
// exceeds Bound (when positive) is Diverging, and Diverging is final.
type ConvergenceTracker struct {
	Window   int
	Tol      float64
	Patience int
	Bound    float64

	history     []float64
	peak        float64
	streak      int
	change      float64
	status      Status
	convergedAt int
}

func NewConvergenceTracker(window int, tol float64, patience int, bound float64) *ConvergenceTracker {
	if window < 4 {
		window = 4
	}
	window -= window % 2
	return &ConvergenceTracker{
		Window:   window,
		Tol:      tol,
		Patience: patience,
		Bound:    bound,

		history:     make([]float64, 0, window),
		change:      math.NaN(),
		convergedAt: -1,
	}
}

// Observe records value for tick and returns the updated status.
func (c *ConvergenceTracker) Observe(tick int, value float64) Status {
	if c.status == Diverging {
		return c.status
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || (c.Bound > 0 && value > c.Bound) {
		c.status = Diverging
		return c.status
	}

	if len(c.history) == c.Window {
		copy(c.history, c.history[1:])
		c.history = c.history[:c.Window-1]
	}
	c.history = append(c.history, value)
	c.peak = math.Max(c.peak, math.Abs(value))

	if len(c.history) < c.Window {
		c.status = Pending
		return c.status
	}

	half := c.Window / 2
	older, newer := stat.Mean(c.history[:half], nil), stat.Mean(c.history[half:], nil)
	if c.peak > 0 {
		c.change = math.Abs(newer-older) / c.peak
	} else {
		c.change = 0
	}

	if c.change < c.Tol {
		c.streak++
	} else {
		c.streak = 0
	}

	switch {
	case c.streak >= c.Patience:
		c.status = Converged
		if c.convergedAt < 0 {
			c.convergedAt = tick
		}
	case newer > older:
		c.status = Clustering
	default:
		c.status = Dispersing
	}
	return c.status
}

func (c *ConvergenceTracker) Status() Status { return c.status }

// ConvergedAt is the first tick reported as Converged, or -1.
func (c *ConvergenceTracker) ConvergedAt() int { return c.convergedAt }

// RelativeChange is the last computed r, or NaN before the window fills.
func (c *ConvergenceTracker) RelativeChange() float64 { return c.change }

// History returns a copy of the window, oldest first.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64(nil), c.history...)
}

func (c *ConvergenceTracker) Reset() {
	c.history = c.history[:0]
	c.convergedAt = -1
	c.peak = 0
	c.streak = 0
	c.change = math.NaN()
	c.status = Pending
}
