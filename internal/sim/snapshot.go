package sim

import (
	"github.com/san-kum/cohsim/internal/analysis"
	"github.com/san-kum/cohsim/internal/dynamo"
)

// Snapshot is a deep copy of the committed state after a tick. It shares no
// memory with the simulator and stays valid while the run continues.
type Snapshot struct {
	Tick        int
	Params      dynamo.Params
	Particles   *dynamo.Ensemble
	Grid        *dynamo.Grid
	Peaks       []analysis.Peak
	Diagnostics Diagnostics
}

func (s *Simulator) Snapshot() *Snapshot {
	return &Snapshot{
		Tick:        s.tick,
		Params:      s.params,
		Particles:   s.ens.Clone(),
		Grid:        s.grid.Clone(),
		Peaks:       append([]analysis.Peak(nil), s.peaks...),
		Diagnostics: s.last,
	}
}

// DensitySlice returns the committed density on the plane i = index along
// axis 0, as a row-major G×G matrix in (j, k).
func (s *Snapshot) DensitySlice(index int) [][]float64 {
	g := s.Grid
	index = dynamo.Clamp(index, g.N)
	out := make([][]float64, g.N)
	for j := range out {
		out[j] = make([]float64, g.N)
		for k := range out[j] {
			out[j][k] = g.Density[g.Index(index, j, k)]
		}
	}
	return out
}

// Projection sums the committed density along axis 0.
func (s *Snapshot) Projection() [][]float64 { return Project(s.Grid) }

// Projection sums the live committed density along axis 0 without copying
// the rest of the state.
func (s *Simulator) Projection() [][]float64 { return Project(s.grid) }

// Project sums g's committed density along axis 0 into a G×G matrix in
// (j, k).
func Project(g *dynamo.Grid) [][]float64 {
	out := make([][]float64, g.N)
	for j := range out {
		out[j] = make([]float64, g.N)
	}
	for idx, v := range g.Density {
		_, j, k := g.Coords(idx)
		out[j][k] += v
	}
	return out
}
