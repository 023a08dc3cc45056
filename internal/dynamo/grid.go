package dynamo

import "math"

// Topology decides which cell a stencil reaches from cell i by offset d on
// an axis of n cells.
type Topology interface {
	Neighbor(i, d, n int) int
}

// Grid is the G³ lattice over the cube [−L/2, L/2)³. Cells hold scalar
// density and coherence; both are recomputed every tick and carry no
// identity between ticks.
type Grid struct {
	N      int
	Extent float64
	H      float64

	// Density and Coherence are the committed (front) buffers.
	Density   []float64
	Coherence []float64

	backDensity   []float64
	backCoherence []float64
}

func NewGrid(n int, extent float64) *Grid {
	cells := n * n * n
	return &Grid{
		N:             n,
		Extent:        extent,
		H:             extent / float64(n),
		Density:       make([]float64, cells),
		Coherence:     make([]float64, cells),
		backDensity:   make([]float64, cells),
		backCoherence: make([]float64, cells),
	}
}

func (g *Grid) Cells() int { return g.N * g.N * g.N }

// Index flattens (i, j, k) along (x, y, z) with z fastest.
func (g *Grid) Index(i, j, k int) int {
	return (i*g.N+j)*g.N + k
}

func (g *Grid) Coords(idx int) (i, j, k int) {
	k = idx % g.N
	j = (idx / g.N) % g.N
	i = idx / (g.N * g.N)
	return
}

// Center returns the world position of the centre of cell (i, j, k).
func (g *Grid) Center(i, j, k int) Vec3 {
	half := g.Extent / 2
	return Vec3{
		-half + (float64(i)+0.5)*g.H,
		-half + (float64(j)+0.5)*g.H,
		-half + (float64(k)+0.5)*g.H,
	}
}

// Locate converts a world position to continuous cell coordinates, where
// integer values sit on cell centres.
func (g *Grid) Locate(p Vec3) Vec3 {
	half := g.Extent / 2
	return Vec3{
		(p[0]+half)/g.H - 0.5,
		(p[1]+half)/g.H - 0.5,
		(p[2]+half)/g.H - 0.5,
	}
}

// CellOf returns the cell containing p, clamped to the lattice.
func (g *Grid) CellOf(p Vec3) (i, j, k int) {
	half := g.Extent / 2
	c := [3]int{}
	for a := 0; a < 3; a++ {
		v := int(math.Floor((p[a] + half) / g.H))
		if v < 0 {
			v = 0
		} else if v >= g.N {
			v = g.N - 1
		}
		c[a] = v
	}
	return c[0], c[1], c[2]
}

// BackDensity is the buffer the current tick writes density into.
func (g *Grid) BackDensity() []float64 { return g.backDensity }

// BackCoherence is the buffer the current tick writes coherence into.
func (g *Grid) BackCoherence() []float64 { return g.backCoherence }

// Commit publishes the back buffers as the new committed state.
func (g *Grid) Commit() {
	g.Density, g.backDensity = g.backDensity, g.Density
	g.Coherence, g.backCoherence = g.backCoherence, g.Coherence
}

// Validate checks the committed buffers for non-finite values.
func (g *Grid) Validate(step int) error {
	if err := CheckFinite("density", step, g.Density); err != nil {
		return err
	}
	return CheckFinite("coherence", step, g.Coherence)
}

// Clone deep-copies the committed buffers into a new grid.
func (g *Grid) Clone() *Grid {
	c := NewGrid(g.N, g.Extent)
	copy(c.Density, g.Density)
	copy(c.Coherence, g.Coherence)
	return c
}
