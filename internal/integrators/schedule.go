package integrators

import (
	"math"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Schedule anneals the noise temperature from From to To over Ticks ticks.
// Interpolation runs in inverse temperature β = 1/T, hot to cold, when both
// ends are positive, and in T otherwise.
type Schedule struct {
	Kind  string
	From  float64
	To    float64
	Ticks int
}

func NewSchedule(p dynamo.Params) Schedule {
	return Schedule{Kind: p.Anneal, From: p.AnnealFrom, To: p.NoiseTemp, Ticks: p.AnnealTicks}
}

// Temperature returns T at tick.
func (s Schedule) Temperature(tick int) float64 {
	if s.Kind == dynamo.AnnealNone || s.Kind == "" || s.Ticks <= 0 || tick >= s.Ticks {
		return s.To
	}
	progress := math.Max(float64(tick), 0) / float64(s.Ticks)

	if s.From > 0 && s.To > 0 {
		bi, bf := 1/s.From, 1/s.To
		var beta float64
		if s.Kind == dynamo.AnnealExponential {
			beta = bi * math.Exp(math.Log(bf/bi)*progress)
		} else {
			beta = bi + s.shape(progress)*(bf-bi)
		}
		return 1 / beta
	}
	frac := progress
	if s.Kind != dynamo.AnnealExponential {
		frac = s.shape(progress)
	}
	return s.From + frac*(s.To-s.From)
}

// Done reports whether the schedule has reached its final temperature.
func (s Schedule) Done(tick int) bool {
	return s.Kind == dynamo.AnnealNone || tick >= s.Ticks
}

func (s Schedule) shape(progress float64) float64 {
	switch s.Kind {
	case dynamo.AnnealSigmoid:
		return 1 / (1 + math.Exp(-(progress-0.5)*10))
	case dynamo.AnnealPower:
		return progress * progress
	default:
		return progress
	}
}
