package sim

import (
	"log/slog"

	"github.com/san-kum/cohsim/internal/analysis"
)

// Diagnostics are the scalar outputs of one tick. Analysis fields hold the
// result of the most recent analysis pass; Analyzed marks the ticks that ran
// one.
type Diagnostics struct {
	Tick           int     `csv:"tick" json:"tick"`
	Time           float64 `csv:"time" json:"time"`
	ElapsedMs      float64 `csv:"elapsed_ms" json:"elapsed_ms"`
	Temperature    float64 `csv:"temperature" json:"temperature"`
	MaxDensity     float64 `csv:"max_density" json:"max_density"`
	MaxCoherence   float64 `csv:"max_coherence" json:"max_coherence"`
	MassDrift      float64 `csv:"mass_drift" json:"mass_drift"`
	KineticEnergy  float64 `csv:"kinetic_energy" json:"kinetic_energy"`
	FaceShell      float64 `csv:"face_shell" json:"face_shell"`
	FaceContact    float64 `csv:"face_contact" json:"face_contact"`
	StatusName     string  `csv:"status" json:"status"`
	RelativeChange float64 `csv:"relative_change" json:"relative_change"`

	Analyzed        bool    `csv:"analyzed" json:"analyzed"`
	Peaks           int     `csv:"peaks" json:"peaks"`
	RatioMean       float64 `csv:"ratio_mean" json:"ratio_mean"`
	RatioMedian     float64 `csv:"ratio_median" json:"ratio_median"`
	RatioStd        float64 `csv:"ratio_std" json:"ratio_std"`
	RatioNearPhi    float64 `csv:"ratio_near_phi" json:"ratio_near_phi"`
	CoherenceEnergy float64 `csv:"coherence_energy" json:"coherence_energy"`
	Entropy         float64 `csv:"entropy" json:"entropy"`
	FreeEnergy      float64 `csv:"free_energy" json:"free_energy"`
	Wavelength      float64 `csv:"wavelength" json:"wavelength"`

	Unvalidated bool `csv:"unvalidated" json:"unvalidated"`

	Status analysis.Status       `csv:"-" json:"-"`
	Ratios analysis.RatioSummary `csv:"-" json:"ratios"`
}

func (d *Diagnostics) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("tick", d.Tick),
		slog.Float64("time", d.Time),
		slog.Float64("max_density", d.MaxDensity),
		slog.Float64("max_coherence", d.MaxCoherence),
		slog.String("status", d.StatusName),
	}
	if d.Analyzed {
		attrs = append(attrs,
			slog.Int("peaks", d.Peaks),
			slog.Float64("free_energy", d.FreeEnergy),
			slog.Float64("wavelength", d.Wavelength),
		)
	}
	if d.Unvalidated {
		attrs = append(attrs, slog.Bool("unvalidated", true))
	}
	return slog.GroupValue(attrs...)
}
