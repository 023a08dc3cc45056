package dynamo

import (
	"math"
	"math/rand"
)

// Ensemble is the fixed-size particle population of one simulated volume.
// Particles are created once and mutated every tick; none is ever removed.
type Ensemble struct {
	Pos []Vec3
	Vel []Vec3
}

func NewEnsemble(n int) *Ensemble {
	return &Ensemble{
		Pos: make([]Vec3, n),
		Vel: make([]Vec3, n),
	}
}

func (e *Ensemble) Len() int { return len(e.Pos) }

// Randomize places every particle uniformly at random in [−L/2, L/2)³ with an
// isotropic Gaussian velocity whose per-axis standard deviation is speed.
// No structure is imposed: the experiment depends on a neutral start.
func (e *Ensemble) Randomize(rng *rand.Rand, extent, speed float64) {
	half := extent / 2
	for i := range e.Pos {
		for a := 0; a < 3; a++ {
			e.Pos[i][a] = rng.Float64()*extent - half
			e.Vel[i][a] = rng.NormFloat64() * speed
		}
	}
}

// Clone returns an independent deep copy.
func (e *Ensemble) Clone() *Ensemble {
	c := NewEnsemble(e.Len())
	copy(c.Pos, e.Pos)
	copy(c.Vel, e.Vel)
	return c
}

// Validate reports the first non-finite velocity or position.
func (e *Ensemble) Validate(step int) error {
	for i, v := range e.Vel {
		if !v.IsFinite() {
			return &NumericalInstabilityError{Field: "velocity", Step: step, Index: i, Value: firstNonFinite(v)}
		}
	}
	for i, p := range e.Pos {
		if !p.IsFinite() {
			return &NumericalInstabilityError{Field: "position", Step: step, Index: i, Value: firstNonFinite(p)}
		}
	}
	return nil
}

// KineticEnergy is Σ ½|v|² over unit-mass particles.
func (e *Ensemble) KineticEnergy() float64 {
	ke := 0.0
	for _, v := range e.Vel {
		ke += 0.5 * v.Dot(v)
	}
	return ke
}

func firstNonFinite(v Vec3) float64 {
	for _, x := range v {
		if !isFinite(x) {
			return x
		}
	}
	return math.NaN()
}
