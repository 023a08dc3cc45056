package coherence

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Report compares a fast operator against the reference on one density.
type Report struct {
	Reference  string
	Candidate  string
	MaxRelErr  float64
	MeanRelErr float64
	L2RelErr   float64
	Cell       int
	Tolerance  float64
}

func (r *Report) Passed() bool { return r.MaxRelErr <= r.Tolerance }

func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("reference", r.Reference),
		slog.String("candidate", r.Candidate),
		slog.Float64("max_rel_err", r.MaxRelErr),
		slog.Float64("mean_rel_err", r.MeanRelErr),
		slog.Float64("l2_rel_err", r.L2RelErr),
		slog.Int("cell", r.Cell),
		slog.Bool("passed", r.Passed()),
	)
}

// Validate applies both operators to rho and compares them cell by cell.
// Relative error is |fast − ref| / max(|ref|, 1e-9·max|ref|). A warning is
// returned when the worst cell exceeds tol; it is never fatal.
func Validate(ref, fast Operator, rho []float64, tol float64) (*Report, *dynamo.AlgorithmDivergenceWarning) {
	want := make([]float64, len(rho))
	got := make([]float64, len(rho))
	ref.Apply(rho, want)
	fast.Apply(rho, got)

	peak := 0.0
	for _, v := range want {
		peak = math.Max(peak, math.Abs(v))
	}
	floor := 1e-9 * peak
	if floor == 0 {
		floor = math.SmallestNonzeroFloat64
	}

	rep := &Report{Reference: ref.Name(), Candidate: fast.Name(), Tolerance: tol}
	sum := 0.0
	for i := range want {
		rel := math.Abs(got[i]-want[i]) / math.Max(math.Abs(want[i]), floor)
		sum += rel
		if rel > rep.MaxRelErr || math.IsNaN(rel) {
			rep.MaxRelErr = rel
			rep.Cell = i
		}
	}
	rep.MeanRelErr = sum / float64(len(rho))
	if norm := floats.Norm(want, 2); norm > 0 {
		rep.L2RelErr = floats.Distance(got, want, 2) / norm
	}

	if rep.Passed() {
		return rep, nil
	}
	return rep, &dynamo.AlgorithmDivergenceWarning{
		MaxRelErr:  rep.MaxRelErr,
		MeanRelErr: rep.MeanRelErr,
		Tolerance:  tol,
		Cell:       rep.Cell,
	}
}
