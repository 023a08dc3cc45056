package analysis

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/phi"
)

// RatioSummary describes the distribution of pairwise peak distances
// divided by the smallest one.
type RatioSummary struct {
	Peaks       int       `json:"peaks"`
	Pairs       int       `json:"pairs"`
	MinDistance float64   `json:"min_distance"`
	Ratios      []float64 `json:"ratios,omitempty"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	Median      float64   `json:"median"`

	// NearPhi is the fraction of ratios above one that lie within the
	// tolerance of φⁿ, n ≥ 1, measured in log_φ units.
	NearPhi float64 `json:"near_phi"`
}

// Degenerate reports a distribution with fewer than two distinct ratios.
func (r RatioSummary) Degenerate() bool {
	return r.Pairs < 2 || r.Max-r.Min < 1e-9
}

func (r RatioSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("peaks", r.Peaks),
		slog.Int("pairs", r.Pairs),
		slog.Float64("d_min", r.MinDistance),
		slog.Float64("mean", r.Mean),
		slog.Float64("median", r.Median),
		slog.Float64("near_phi", r.NearPhi),
	)
}

// MeasureSpacingRatios computes every pairwise distance between peaks under
// the separation rule of pol and normalises by the smallest non-zero one.
func MeasureSpacingRatios(peaks []Peak, pol boundary.Policy, tol float64) RatioSummary {
	sum := RatioSummary{Peaks: len(peaks)}
	if len(peaks) < 2 {
		return sum
	}

	dists := make([]float64, 0, len(peaks)*(len(peaks)-1)/2)
	for a := 0; a < len(peaks); a++ {
		for b := a + 1; b < len(peaks); b++ {
			d := pol.Separation(peaks[a].Position, peaks[b].Position).Norm()
			if d > 0 {
				dists = append(dists, d)
			}
		}
	}
	if len(dists) == 0 {
		return sum
	}

	sort.Float64s(dists)
	dmin := dists[0]
	ratios := make([]float64, len(dists))
	for i, d := range dists {
		ratios[i] = d / dmin
	}

	sum.Pairs = len(ratios)
	sum.MinDistance = dmin
	sum.Ratios = ratios
	sum.Min = ratios[0]
	sum.Max = ratios[len(ratios)-1]
	sum.Mean, sum.Std = stat.MeanStdDev(ratios, nil)
	if math.IsNaN(sum.Std) {
		sum.Std = 0
	}
	sum.Median = stat.Quantile(0.5, stat.Empirical, ratios, nil)

	above, near := 0, 0
	for _, r := range ratios {
		if r <= 1+1e-9 {
			continue
		}
		above++
		if n, dist := phi.NearestPower(r); n >= 1 && dist <= tol {
			near++
		}
	}
	if above > 0 {
		sum.NearPhi = float64(near) / float64(above)
	}
	return sum
}
