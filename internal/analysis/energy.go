package analysis

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/coherence"
)

// Energy is the free-energy functional of the normalised density p = ρ/Σρ:
// ℒ = Σ p·(𝒞p), S = −Σ p·log p, ℱ = ℒ − S/β.
type Energy struct {
	Coherence float64 `json:"coherence" csv:"coherence_energy"`
	Entropy   float64 `json:"entropy" csv:"entropy"`
	Free      float64 `json:"free" csv:"free_energy"`
}

func (e Energy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("coherence", e.Coherence),
		slog.Float64("entropy", e.Entropy),
		slog.Float64("free", e.Free),
	)
}

// EnergyMeter owns the scratch buffers for FreeEnergy so repeated analysis
// passes do not allocate.
type EnergyMeter struct {
	op   coherence.Operator
	beta float64
	p    []float64
	cp   []float64
}

func NewEnergyMeter(op coherence.Operator, beta float64) *EnergyMeter {
	return &EnergyMeter{op: op, beta: beta}
}

func (m *EnergyMeter) Measure(rho []float64) Energy {
	if len(m.p) != len(rho) {
		m.p = make([]float64, len(rho))
		m.cp = make([]float64, len(rho))
	}
	return FreeEnergy(m.op, rho, m.beta, m.p, m.cp)
}

// FreeEnergy evaluates the functional using p and cp as scratch space of
// len(rho). A zero-mass density has zero energy.
func FreeEnergy(op coherence.Operator, rho []float64, beta float64, p, cp []float64) Energy {
	total := floats.Sum(rho)
	if !(total > 0) {
		return Energy{}
	}
	floats.ScaleTo(p, 1/total, rho)
	op.Apply(p, cp)

	var e Energy
	e.Coherence = floats.Dot(p, cp)
	for _, x := range p {
		if x > 0 {
			e.Entropy -= x * math.Log(x)
		}
	}
	e.Free = e.Coherence - e.Entropy/beta
	return e
}
