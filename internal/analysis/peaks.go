package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/dynamo"
)

// Peak is one local density maximum.
type Peak struct {
	Cell     [3]int
	Index    int
	Position dynamo.Vec3 // centroid of the 27-cell neighbourhood
	Density  float64
}

// minPeakContrast is the smallest relative excess over the mean that can
// count as a peak. Rounding-level ripple on a near-uniform field stays below it.
const minPeakContrast = 1e-6

// NoiseFloor is mean + c·std of rho, and never less than
// mean·(1 + minPeakContrast).
func NoiseFloor(rho []float64, c float64) float64 {
	m, s := stat.MeanStdDev(rho, nil)
	return max(m+c*s, m*(1+minPeakContrast))
}

// DetectPeaks returns the strict local maxima of rho above floor, densest
// first. Neighbourhoods are the 26 surrounding cells resolved by pol. Equal
// neighbours are broken by cell index, so a flat top yields one peak.
func DetectPeaks(g *dynamo.Grid, rho []float64, pol boundary.Policy, floor float64) []Peak {
	var peaks []Peak
	for idx, v := range rho {
		if v <= floor {
			continue
		}
		i, j, k := g.Coords(idx)
		if !isLocalMax(g, rho, pol, idx, i, j, k) {
			continue
		}
		peaks = append(peaks, Peak{
			Cell:     [3]int{i, j, k},
			Index:    idx,
			Position: refine(g, rho, pol, floor, i, j, k),
			Density:  v,
		})
	}
	sort.SliceStable(peaks, func(a, b int) bool { return peaks[a].Density > peaks[b].Density })
	return peaks
}

func isLocalMax(g *dynamo.Grid, rho []float64, pol boundary.Policy, idx, i, j, k int) bool {
	n := g.N
	v := rho[idx]
	for di := -1; di <= 1; di++ {
		ii := pol.Neighbor(i, di, n)
		for dj := -1; dj <= 1; dj++ {
			jj := pol.Neighbor(j, dj, n)
			for dk := -1; dk <= 1; dk++ {
				nb := g.Index(ii, jj, pol.Neighbor(k, dk, n))
				if nb == idx {
					continue
				}
				w := rho[nb]
				if w > v || (w == v && nb < idx) {
					return false
				}
			}
		}
	}
	return true
}

// refine moves the cell centre to the centroid of the neighbourhood mass
// above floor. Offsets are taken in cell units, so wrapped neighbours pull
// the centroid across the face they sit behind.
func refine(g *dynamo.Grid, rho []float64, pol boundary.Policy, floor float64, i, j, k int) dynamo.Vec3 {
	n := g.N
	var shift dynamo.Vec3
	total := 0.0
	for di := -1; di <= 1; di++ {
		ii := pol.Neighbor(i, di, n)
		for dj := -1; dj <= 1; dj++ {
			jj := pol.Neighbor(j, dj, n)
			for dk := -1; dk <= 1; dk++ {
				kk := pol.Neighbor(k, dk, n)
				w := rho[g.Index(ii, jj, kk)] - floor
				if w <= 0 {
					continue
				}
				// clamped neighbours collapse onto the cell itself
				off := dynamo.Vec3{float64(ii - i), float64(jj - j), float64(kk - k)}
				for a := 0; a < 3; a++ {
					if off[a] > 1 {
						off[a] = -1
					} else if off[a] < -1 {
						off[a] = 1
					}
				}
				shift = shift.Add(off.Scale(w))
				total += w
			}
		}
	}
	c := g.Center(i, j, k)
	if total > 0 {
		c = c.Add(shift.Scale(g.H / total))
	}
	if pol.Name() == dynamo.BoundaryPeriodic {
		for a := 0; a < 3; a++ {
			c[a] = boundary.WrapCoord(c[a], g.Extent)
		}
	}
	return c
}
