package coherence

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// degeneracyTol is the relative eigenvalue gap below which two modes are
// treated as one eigenspace.
const degeneracyTol = 1e-10

// Eigenmode applies the kernel as a rank-M³ tensor-product projection. The
// 3-D operator is the Kronecker cube of the 1-D operator A; every axis is
// projected onto the M dominant 1-D modes of A.
type Eigenmode struct {
	n, m    int
	workers int

	proj  *mat.Dense // n×m, right vectors
	recon *mat.Dense // n×m, left vectors
	scale []float64  // m dominant values
	all   []float64  // every 1-D value, dominant first

	dev       []float64 // n³, rho minus its mean
	t1, t1r   []float64 // n²·m
	t2, t2r   []float64 // n·m²
	t3        []float64 // m³
	t1m, t1rm *mat.Dense
	t2m, t2rm *mat.Dense
	t3m       *mat.Dense
	symmetric bool
}

// NewEigenmode derives the basis from the spectrum of the 1-D kernel matrix.
// It fails with a ConfigurationError when modes is outside [1, n] or when the
// cut between mode m and m+1 splits a degenerate eigenspace.
func NewEigenmode(k *Kernel, n, modes int, topo dynamo.Topology, workers int) (*Eigenmode, error) {
	if modes < 1 || modes > n {
		return nil, &dynamo.ConfigurationError{Field: "Modes", Value: modes, Reason: fmt.Sprintf("must be in [1, %d]", n)}
	}
	a := k.Matrix(n, topo)

	var (
		values      []float64
		left, right mat.Dense
		symmetric   = isSymmetric(a)
	)
	if symmetric {
		sym := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				sym.SetSym(i, j, a.At(i, j))
			}
		}
		var es mat.EigenSym
		if !es.Factorize(sym, true) {
			return nil, fmt.Errorf("coherence: eigendecomposition of %d×%d kernel failed", n, n)
		}
		values = es.Values(nil)
		es.VectorsTo(&left)
		right.CloneFrom(&left)
	} else {
		var svd mat.SVD
		if !svd.Factorize(a, mat.SVDFull) {
			return nil, fmt.Errorf("coherence: singular value decomposition of %d×%d kernel failed", n, n)
		}
		values = svd.Values(nil)
		svd.UTo(&left)
		svd.VTo(&right)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return values[order[x]] > values[order[y]] })

	all := make([]float64, n)
	for r, c := range order {
		all[r] = values[c]
	}
	if modes < n {
		gap := math.Abs(all[modes-1] - all[modes])
		if gap <= degeneracyTol*math.Max(math.Abs(all[0]), math.SmallestNonzeroFloat64) {
			return nil, &dynamo.ConfigurationError{
				Field:  "Modes",
				Value:  modes,
				Reason: fmt.Sprintf("splits a degenerate eigenspace (λ%d = λ%d = %.6g)", modes, modes+1, all[modes-1]),
			}
		}
	}

	e := &Eigenmode{
		n:         n,
		m:         modes,
		workers:   workers,
		proj:      mat.NewDense(n, modes, nil),
		recon:     mat.NewDense(n, modes, nil),
		scale:     append([]float64(nil), all[:modes]...),
		all:       all,
		symmetric: symmetric,
		t1:        make([]float64, n*n*modes),
		t1r:       make([]float64, n*n*modes),
		t2:        make([]float64, n*modes*modes),
		t2r:       make([]float64, n*modes*modes),
		t3:        make([]float64, modes*modes*modes),
		dev:       make([]float64, n*n*n),
	}
	for r := 0; r < modes; r++ {
		c := order[r]
		for i := 0; i < n; i++ {
			e.proj.Set(i, r, right.At(i, c))
			e.recon.Set(i, r, left.At(i, c))
		}
	}
	e.t1m = mat.NewDense(n*n, modes, e.t1)
	e.t1rm = mat.NewDense(n*n, modes, e.t1r)
	e.t2m = mat.NewDense(n, modes*modes, e.t2)
	e.t2rm = mat.NewDense(n, modes*modes, e.t2r)
	e.t3m = mat.NewDense(modes, modes*modes, e.t3)
	return e, nil
}

func (e *Eigenmode) Name() string { return dynamo.CoherenceEigenmode }

// Modes is the number of modes kept per axis.
func (e *Eigenmode) Modes() int { return e.m }

// Values returns the kept 1-D eigenvalues (singular values for a clamped
// operator), dominant first.
func (e *Eigenmode) Values() []float64 { return append([]float64(nil), e.scale...) }

// Spectrum returns every 1-D value, dominant first.
func (e *Eigenmode) Spectrum() []float64 { return append([]float64(nil), e.all...) }

// Symmetric reports whether the basis came from an eigendecomposition.
func (e *Eigenmode) Symmetric() bool { return e.symmetric }

// Basis returns a copy of the n×m matrix whose columns are the kept modes.
func (e *Eigenmode) Basis() *mat.Dense { return mat.DenseCopyOf(e.recon) }

// Apply projects rho axis by axis (z, then y, then x), scales each
// coefficient by the product of its three 1-D values and reconstructs in
// reverse order.
//
// Kernel rows sum to one under either topology, so the mean of rho is a
// fixed point of the operator. It is carried through exactly and only the
// deviation from it is projected; a uniform field comes back bit for bit.
func (e *Eigenmode) Apply(rho, dst []float64) {
	if uniform(rho) {
		for i := range dst {
			dst[i] = rho[0]
		}
		return
	}
	n, m := e.n, e.m
	projT := e.proj.T()

	mean := floats.Sum(rho) / float64(len(rho))
	for i, v := range rho {
		e.dev[i] = v - mean
	}

	e.t1m.Mul(mat.NewDense(n*n, n, e.dev), e.proj)
	dynamo.ParallelFor(n, e.workers, 1, func(start, end int) {
		for i := start; i < end; i++ {
			blk := mat.NewDense(n, m, e.t1[i*n*m:(i+1)*n*m])
			out := mat.NewDense(m, m, e.t2[i*m*m:(i+1)*m*m])
			out.Mul(projT, blk)
		}
	})
	e.t3m.Mul(projT, e.t2m)

	for r := 0; r < m; r++ {
		for q := 0; q < m; q++ {
			f := e.scale[r] * e.scale[q]
			row := e.t3[(r*m+q)*m : (r*m+q+1)*m]
			for p := range row {
				row[p] *= f * e.scale[p]
			}
		}
	}

	e.t2rm.Mul(e.recon, e.t3m)
	dynamo.ParallelFor(n, e.workers, 1, func(start, end int) {
		for i := start; i < end; i++ {
			blk := mat.NewDense(m, m, e.t2r[i*m*m:(i+1)*m*m])
			out := mat.NewDense(n, m, e.t1r[i*n*m:(i+1)*n*m])
			out.Mul(e.recon, blk)
		}
	})
	mat.NewDense(n*n, n, dst).Mul(e.t1rm, e.recon.T())
	floats.AddConst(mean, dst)
}

func uniform(rho []float64) bool {
	for _, v := range rho[1:] {
		if v != rho[0] {
			return false
		}
	}
	return true
}

func isSymmetric(a *mat.Dense) bool {
	r, _ := a.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if math.Abs(a.At(i, j)-a.At(j, i)) > 1e-14 {
				return false
			}
		}
	}
	return true
}
