// Package boundary enforces the domain topology for particles and for every
// grid stencil.
//
// Periodic is the production policy: the cube behaves as an unbounded
// homogeneous medium. Open disables the boundary manager; it exists to
// reproduce the face-accumulation failure that one-sided kernel truncation
// causes near the edges.
package boundary

import (
	"math"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Policy moves particles back into the domain after a step and resolves grid
// neighbours. Implementations are stateless and safe for concurrent use.
type Policy interface {
	dynamo.Topology
	Name() string
	Wrap(e *dynamo.Ensemble, step int) error
	// Separation returns the displacement b−a as seen by this topology.
	Separation(a, b dynamo.Vec3) dynamo.Vec3
}

type Periodic struct {
	Extent float64
}

func NewPeriodic(extent float64) *Periodic {
	return &Periodic{Extent: extent}
}

func (p *Periodic) Name() string { return dynamo.BoundaryPeriodic }

func (p *Periodic) Neighbor(i, d, n int) int { return dynamo.Wrap(i+d, n) }

// Wrap folds every coordinate into [−L/2, L/2). A coordinate that is
// non-finite, or still outside after folding, is a BoundaryViolation.
func (p *Periodic) Wrap(e *dynamo.Ensemble, step int) error {
	half := p.Extent / 2
	for i := range e.Pos {
		for a := 0; a < 3; a++ {
			x := e.Pos[i][a]
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return &dynamo.BoundaryViolation{Step: step, Particle: i, Axis: a, Coord: x}
			}
			if x >= -half && x < half {
				continue
			}
			w := WrapCoord(x, p.Extent)
			if !(w >= -half && w < half) {
				return &dynamo.BoundaryViolation{Step: step, Particle: i, Axis: a, Coord: x}
			}
			e.Pos[i][a] = w
		}
	}
	return nil
}

func (p *Periodic) Separation(a, b dynamo.Vec3) dynamo.Vec3 {
	d := b.Sub(a)
	for k := 0; k < 3; k++ {
		d[k] = MinImage(d[k], p.Extent)
	}
	return d
}

// WrapCoord folds x into [−L/2, L/2).
func WrapCoord(x, extent float64) float64 {
	half := extent / 2
	w := x - extent*math.Floor((x+half)/extent)
	if w >= half {
		// rounding can land exactly on the upper face
		w -= extent
	}
	return w
}

// MinImage maps a periodic displacement onto [−L/2, L/2].
func MinImage(d, extent float64) float64 {
	return d - extent*math.Round(d/extent)
}

// Open disables the boundary manager. Particles that leave are pinned to the
// face they crossed with their velocity untouched, and stencils clamp at the
// edge, so kernel sums near a face are one-sided.
type Open struct {
	Extent float64
}

func NewOpen(extent float64) *Open {
	return &Open{Extent: extent}
}

func (o *Open) Name() string { return dynamo.BoundaryOpen }

func (o *Open) Neighbor(i, d, n int) int { return dynamo.Clamp(i+d, n) }

func (o *Open) Wrap(e *dynamo.Ensemble, step int) error {
	half := o.Extent / 2
	upper := math.Nextafter(half, 0)
	for i := range e.Pos {
		for a := 0; a < 3; a++ {
			x := e.Pos[i][a]
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return &dynamo.BoundaryViolation{Step: step, Particle: i, Axis: a, Coord: x}
			}
			switch {
			case x < -half:
				e.Pos[i][a] = -half
			case x > upper:
				e.Pos[i][a] = upper
			}
		}
	}
	return nil
}

func (o *Open) Separation(a, b dynamo.Vec3) dynamo.Vec3 { return b.Sub(a) }

// New returns the policy registered under name.
func New(name string, extent float64) (Policy, error) {
	switch name {
	case dynamo.BoundaryPeriodic:
		return NewPeriodic(extent), nil
	case dynamo.BoundaryOpen:
		return NewOpen(extent), nil
	}
	return nil, &dynamo.ConfigurationError{Field: "Boundary", Value: name, Reason: "unknown boundary policy"}
}
