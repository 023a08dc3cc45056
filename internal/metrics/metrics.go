// Package metrics holds per-tick observers of committed simulation state.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Frame is the committed state of one tick. Metrics must treat it as
// read-only.
type Frame struct {
	Tick      int
	Time      float64
	Particles *dynamo.Ensemble
	Grid      *dynamo.Grid
}

type Metric interface {
	Name() string
	Observe(f Frame)
	Value() float64
	Reset()
}

// Sampler is a Metric whose Value aggregates over ticks and which also
// reports its most recent observation.
type Sampler interface {
	Metric
	Last() float64
}

// MassDrift is the worst |Σρ − N| / N seen.
type MassDrift struct {
	name     string
	n        int
	maxDrift float64
	last     float64
}

func NewMassDrift(n int) *MassDrift {
	return &MassDrift{name: "mass_drift", n: n}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(f Frame) {
	m.last = math.Abs(floats.Sum(f.Grid.Density)-float64(m.n)) / float64(m.n)
	m.maxDrift = math.Max(m.maxDrift, m.last)
}

func (m *MassDrift) Value() float64 { return m.maxDrift }
func (m *MassDrift) Last() float64  { return m.last }
func (m *MassDrift) Reset()         { m.maxDrift, m.last = 0, 0 }

// PeakDensity is the largest cell density seen.
type PeakDensity struct {
	name string
	peak float64
}

func NewPeakDensity() *PeakDensity {
	return &PeakDensity{name: "peak_density"}
}

func (p *PeakDensity) Name() string { return p.name }

func (p *PeakDensity) Observe(f Frame) {
	p.peak = math.Max(p.peak, floats.Max(f.Grid.Density))
}

func (p *PeakDensity) Value() float64 { return p.peak }
func (p *PeakDensity) Reset()         { p.peak = 0 }

// KineticEnergy averages the per-particle kinetic energy over observations.
type KineticEnergy struct {
	name    string
	total   float64
	last    float64
	samples int
}

func NewKineticEnergy() *KineticEnergy {
	return &KineticEnergy{name: "kinetic_energy"}
}

func (k *KineticEnergy) Name() string { return k.name }

func (k *KineticEnergy) Observe(f Frame) {
	if f.Particles.Len() == 0 {
		return
	}
	k.last = f.Particles.KineticEnergy() / float64(f.Particles.Len())
	k.total += k.last
	k.samples++
}

func (k *KineticEnergy) Last() float64 { return k.last }

func (k *KineticEnergy) Value() float64 {
	if k.samples == 0 {
		return 0
	}
	return k.total / float64(k.samples)
}

func (k *KineticEnergy) Reset() {
	k.total, k.last = 0, 0
	k.samples = 0
}

// FaceShell is the fraction of particles in the outermost cell layer of the
// cube at the last observation.
type FaceShell struct {
	name     string
	fraction float64
	perFace  [6]float64
}

func NewFaceShell() *FaceShell {
	return &FaceShell{name: "face_shell"}
}

func (s *FaceShell) Name() string { return s.name }

func (s *FaceShell) Observe(f Frame) {
	s.fraction, s.perFace = ShellOccupancy(f.Particles, f.Grid)
}

func (s *FaceShell) Value() float64 { return s.fraction }

// PerFace returns the fraction in each face layer, ordered −x, +x, −y, +y,
// −z, +z. A particle near an edge counts for every face it touches.
func (s *FaceShell) PerFace() [6]float64 { return s.perFace }

func (s *FaceShell) Reset() {
	s.fraction = 0
	s.perFace = [6]float64{}
}

// ShellOccupancy counts particles whose cell touches a face.
func ShellOccupancy(e *dynamo.Ensemble, g *dynamo.Grid) (float64, [6]float64) {
	var perFace [6]float64
	if e.Len() == 0 {
		return 0, perFace
	}
	last := g.N - 1
	inShell := 0
	for _, p := range e.Pos {
		i, j, k := g.CellOf(p)
		c := [3]int{i, j, k}
		hit := false
		for a := 0; a < 3; a++ {
			if c[a] == 0 {
				perFace[2*a]++
				hit = true
			}
			if c[a] == last {
				perFace[2*a+1]++
				hit = true
			}
		}
		if hit {
			inShell++
		}
	}
	n := float64(e.Len())
	for i := range perFace {
		perFace[i] /= n
	}
	return float64(inShell) / n, perFace
}

// UniformShellFraction is the shell occupancy of a uniform ensemble on a
// lattice of g cells per axis.
func UniformShellFraction(g int) float64 {
	inner := float64(g-2) / float64(g)
	return 1 - inner*inner*inner
}

// FaceContact is the fraction of particles lying on a face plane, within
// 1e-6 cells. Periodic wrapping leaves it near zero; pinned particles of an
// open domain all land there.
type FaceContact struct {
	name     string
	fraction float64
}

func NewFaceContact() *FaceContact {
	return &FaceContact{name: "face_contact"}
}

func (c *FaceContact) Name() string { return c.name }

func (c *FaceContact) Observe(f Frame) {
	if f.Particles.Len() == 0 {
		c.fraction = 0
		return
	}
	half := f.Grid.Extent / 2
	eps := 1e-6 * f.Grid.H
	on := 0
	for _, p := range f.Particles.Pos {
		for a := 0; a < 3; a++ {
			if p[a] <= -half+eps || p[a] >= half-eps {
				on++
				break
			}
		}
	}
	c.fraction = float64(on) / float64(f.Particles.Len())
}

func (c *FaceContact) Value() float64 { return c.fraction }
func (c *FaceContact) Reset()         { c.fraction = 0 }

// Standard returns the metrics every simulation records.
func Standard(n int) []Metric {
	return []Metric{
		NewMassDrift(n),
		NewPeakDensity(),
		NewKineticEnergy(),
		NewFaceShell(),
		NewFaceContact(),
	}
}
