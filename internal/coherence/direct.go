package coherence

import (
	"github.com/san-kum/cohsim/internal/dynamo"
)

// Direct sums the truncated kernel over the full (2R+1)³ stencil of every
// cell.
type Direct struct {
	n       int
	kernel  *Kernel
	workers int
	nbr     [][]int // nbr[i][d+R] is the neighbour of i at offset d
}

func NewDirect(k *Kernel, n int, topo dynamo.Topology, workers int) *Direct {
	width := 2*k.Radius + 1
	nbr := make([][]int, n)
	for i := range nbr {
		nbr[i] = make([]int, width)
		for d := -k.Radius; d <= k.Radius; d++ {
			nbr[i][d+k.Radius] = topo.Neighbor(i, d, n)
		}
	}
	return &Direct{n: n, kernel: k, workers: workers, nbr: nbr}
}

func (c *Direct) Name() string { return dynamo.CoherenceDirect }

func (c *Direct) Apply(rho, dst []float64) {
	n := c.n
	w := c.kernel.Weights
	width := len(w)
	dynamo.ParallelFor(n, c.workers, 1, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					sum := 0.0
					for a := 0; a < width; a++ {
						ii := c.nbr[i][a]
						for b := 0; b < width; b++ {
							wab := w[a] * w[b]
							base := (ii*n + c.nbr[j][b]) * n
							nk := c.nbr[k]
							for cc := 0; cc < width; cc++ {
								sum += wab * w[cc] * rho[base+nk[cc]]
							}
						}
					}
					dst[(i*n+j)*n+k] = sum
				}
			}
		}
	})
}
