// Package coherence evaluates the self-interaction field (𝒞ρ)(x) = Σ K(x,y)ρ(y)
// for a normalised Gaussian kernel of scale σ.
//
// Two interchangeable operators are provided:
//
//   - [Direct]: the truncated convolution, exact up to truncation, cost
//     O(G³·(2R+1)³)
//   - [Eigenmode]: projection onto the dominant eigenmodes of the kernel
//     operator itself, cost O(G³·M)
//
// The eigenmode basis is never chosen by hand. It is the eigendecomposition
// (or, for a non-symmetric clamped operator, the singular value
// decomposition) of the 1-D kernel matrix, computed with gonum once at
// initialisation and immutable afterwards, so Apply is safe for concurrent
// readers of the basis.
package coherence

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Kernel is the separable truncated Gaussian. The 3-D weight of offset
// (a, b, c) is W(a)·W(b)·W(c) over the cube |a|,|b|,|c| ≤ Radius, and the
// 1-D weights sum to one.
type Kernel struct {
	Sigma   float64
	H       float64
	Radius  int
	Weights []float64 // Weights[d+Radius]
}

// NewKernel truncates at R = ceil(3σ/h). On a periodic axis of n cells the
// stencil only stays distinct while 2R+1 <= n; dynamo.Params.Validate
// rejects grids that break this.
func NewKernel(sigma, h float64) *Kernel {
	r := int(math.Ceil(3 * sigma / h))
	w := make([]float64, 2*r+1)
	for d := -r; d <= r; d++ {
		x := float64(d) * h
		w[d+r] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(w), w)
	return &Kernel{Sigma: sigma, H: h, Radius: r, Weights: w}
}

func (k *Kernel) Weight(d int) float64 {
	if d < -k.Radius || d > k.Radius {
		return 0
	}
	return k.Weights[d+k.Radius]
}

// Matrix is the 1-D operator on an axis of n cells, with neighbours resolved
// by topo. Periodic topologies give a symmetric circulant matrix.
func (k *Kernel) Matrix(n int, topo dynamo.Topology) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for d := -k.Radius; d <= k.Radius; d++ {
			j := topo.Neighbor(i, d, n)
			a.Set(i, j, a.At(i, j)+k.Weight(d))
		}
	}
	return a
}

// Spectrum returns the eigenvalues of the periodic 1-D operator on n cells,
// indexed by wavenumber, as the DFT of the circulant row.
func (k *Kernel) Spectrum(n int) []float64 {
	row := make([]complex128, n)
	for d := -k.Radius; d <= k.Radius; d++ {
		row[dynamo.Wrap(d, n)] += complex(k.Weight(d), 0)
	}
	coeffs := fourier.NewCmplxFFT(n).Coefficients(nil, row)
	out := make([]float64, n)
	for m, c := range coeffs {
		out[m] = real(c)
	}
	return out
}

// Operator evaluates coherence for a density grid. Apply overwrites dst,
// which must not alias rho.
type Operator interface {
	Name() string
	Apply(rho, dst []float64)
}

// New builds the operator selected by p. The kernel scale and cell size come
// from p; neighbours are resolved by topo.
func New(p dynamo.Params, topo dynamo.Topology) (Operator, error) {
	k := NewKernel(p.Sigma, p.CellSize())
	switch p.Coherence {
	case dynamo.CoherenceDirect:
		return NewDirect(k, p.G, topo, p.Workers), nil
	case dynamo.CoherenceEigenmode:
		return NewEigenmode(k, p.G, p.Modes, topo, p.Workers)
	}
	return nil, &dynamo.ConfigurationError{Field: "Coherence", Value: p.Coherence, Reason: "unknown coherence algorithm"}
}

// NewReference returns the direct operator for p, against which any fast
// path is validated.
func NewReference(p dynamo.Params, topo dynamo.Topology) *Direct {
	return NewDirect(NewKernel(p.Sigma, p.CellSize()), p.G, topo, p.Workers)
}
