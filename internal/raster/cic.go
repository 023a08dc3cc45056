package raster

import (
	"github.com/san-kum/cohsim/internal/dynamo"
)

// CIC spreads each particle over the eight nearest cell centres with
// trilinear weights. Weights always sum to one, so mass is conserved for
// both periodic and clamped topologies.
type CIC struct {
	topo    dynamo.Topology
	massTol float64
}

func NewCIC(topo dynamo.Topology, massTol float64) *CIC {
	return &CIC{topo: topo, massTol: massTol}
}

func (r *CIC) Name() string { return dynamo.RasterCIC }

func (r *CIC) Deposit(e *dynamo.Ensemble, g *dynamo.Grid, dst []float64) error {
	clear(dst)
	for _, p := range e.Pos {
		idx, w := g.CICWeights(p, r.topo)
		for c := 0; c < 8; c++ {
			dst[idx[c]] += w[c]
		}
	}
	_, err := renormalize(dst, float64(e.Len()), r.massTol)
	return err
}
