package dynamo

// Gradient writes the centred finite-difference gradient of f into dst.
// Neighbour lookups go through topo, so the same stencil serves periodic
// and clamped domains.
func (g *Grid) Gradient(f []float64, topo Topology, dst [3][]float64) {
	n := g.N
	inv := 1 / (2 * g.H)
	for i := 0; i < n; i++ {
		ip, im := topo.Neighbor(i, 1, n), topo.Neighbor(i, -1, n)
		for j := 0; j < n; j++ {
			jp, jm := topo.Neighbor(j, 1, n), topo.Neighbor(j, -1, n)
			for k := 0; k < n; k++ {
				kp, km := topo.Neighbor(k, 1, n), topo.Neighbor(k, -1, n)
				idx := g.Index(i, j, k)
				dst[0][idx] = (f[g.Index(ip, j, k)] - f[g.Index(im, j, k)]) * inv
				dst[1][idx] = (f[g.Index(i, jp, k)] - f[g.Index(i, jm, k)]) * inv
				dst[2][idx] = (f[g.Index(i, j, kp)] - f[g.Index(i, j, km)]) * inv
			}
		}
	}
}

// Laplacian writes the 7-point Laplacian of f into dst.
func (g *Grid) Laplacian(f []float64, topo Topology, dst []float64) {
	n := g.N
	inv := 1 / (g.H * g.H)
	for i := 0; i < n; i++ {
		ip, im := topo.Neighbor(i, 1, n), topo.Neighbor(i, -1, n)
		for j := 0; j < n; j++ {
			jp, jm := topo.Neighbor(j, 1, n), topo.Neighbor(j, -1, n)
			for k := 0; k < n; k++ {
				kp, km := topo.Neighbor(k, 1, n), topo.Neighbor(k, -1, n)
				idx := g.Index(i, j, k)
				sum := f[g.Index(ip, j, k)] + f[g.Index(im, j, k)] +
					f[g.Index(i, jp, k)] + f[g.Index(i, jm, k)] +
					f[g.Index(i, j, kp)] + f[g.Index(i, j, km)]
				dst[idx] = (sum - 6*f[idx]) * inv
			}
		}
	}
}

// Sample trilinearly interpolates the cell-centred field f at world position
// p. It is the gather counterpart of cloud-in-cell deposition.
func (g *Grid) Sample(f []float64, topo Topology, p Vec3) float64 {
	idx, w := g.CICWeights(p, topo)
	sum := 0.0
	for c := 0; c < 8; c++ {
		sum += w[c] * f[idx[c]]
	}
	return sum
}

// CICWeights returns the eight cells surrounding p and their trilinear
// weights. Cell indices are resolved through topo, so offsets past the edge
// wrap or clamp; weights always sum to one.
func (g *Grid) CICWeights(p Vec3, topo Topology) (idx [8]int, w [8]float64) {
	u := g.Locate(p)
	n := g.N
	var lo, hi [3]int
	var frac [3]float64
	for a := 0; a < 3; a++ {
		b := FloorInt(u[a])
		frac[a] = u[a] - float64(b)
		lo[a] = topo.Neighbor(0, b, n)
		hi[a] = topo.Neighbor(0, b+1, n)
	}
	c := 0
	for di := 0; di < 2; di++ {
		i, wi := lo[0], 1-frac[0]
		if di == 1 {
			i, wi = hi[0], frac[0]
		}
		for dj := 0; dj < 2; dj++ {
			j, wj := lo[1], 1-frac[1]
			if dj == 1 {
				j, wj = hi[1], frac[1]
			}
			for dk := 0; dk < 2; dk++ {
				k, wk := lo[2], 1-frac[2]
				if dk == 1 {
					k, wk = hi[2], frac[2]
				}
				idx[c] = g.Index(i, j, k)
				w[c] = wi * wj * wk
				c++
			}
		}
	}
	return idx, w
}

// FloorInt is math.Floor for values that fit an int.
func FloorInt(x float64) int {
	i := int(x)
	if float64(i) > x {
		i--
	}
	return i
}

// Wrap maps any integer offset onto [0, n).
func Wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Clamp maps any integer offset onto [0, n) by saturating at the edges.
func Clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
