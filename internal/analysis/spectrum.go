package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cohsim/internal/dynamo"
)

// Spectrum is the shell-averaged power of the density contrast ρ − ρ̄.
// Power[s] averages |ρ̂(m)|² over wavevectors with round(|m|) = s.
type Spectrum struct {
	Extent float64
	Power  []float64
	Counts []int
}

// PowerSpectrum transforms rho axis by axis with a complex FFT.
func PowerSpectrum(g *dynamo.Grid, rho []float64) Spectrum {
	n := g.N
	mean := floats.Sum(rho) / float64(len(rho))
	data := make([]complex128, len(rho))
	for i, v := range rho {
		data[i] = complex(v-mean, 0)
	}

	fft := fourier.NewCmplxFFT(n)
	line := make([]complex128, n)
	coeffs := make([]complex128, n)
	stride := [3]int{n * n, n, 1}
	for axis := 0; axis < 3; axis++ {
		s := stride[axis]
		for base := 0; base < len(data); base++ {
			// visit each line once, from its first cell
			if (base/s)%n != 0 {
				continue
			}
			for t := 0; t < n; t++ {
				line[t] = data[base+t*s]
			}
			fft.Coefficients(coeffs, line)
			for t := 0; t < n; t++ {
				data[base+t*s] = coeffs[t]
			}
		}
	}

	shells := n/2 + 1
	sp := Spectrum{Extent: g.Extent, Power: make([]float64, shells), Counts: make([]int, shells)}
	norm := 1 / float64(len(rho))
	for idx, c := range data {
		i, j, k := g.Coords(idx)
		mi, mj, mk := signedMode(i, n), signedMode(j, n), signedMode(k, n)
		s := int(math.Round(math.Sqrt(float64(mi*mi + mj*mj + mk*mk))))
		if s >= shells {
			continue
		}
		a := cmplx.Abs(c)
		sp.Power[s] += a * a * norm
		sp.Counts[s]++
	}
	for s := range sp.Power {
		if sp.Counts[s] > 0 {
			sp.Power[s] /= float64(sp.Counts[s])
		}
	}
	return sp
}

func signedMode(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// DominantShell is the non-zero shell with the most power, or 0 for a
// featureless field.
func (s Spectrum) DominantShell() int {
	best, bestPower := 0, 0.0
	for i := 1; i < len(s.Power); i++ {
		if s.Power[i] > bestPower {
			best, bestPower = i, s.Power[i]
		}
	}
	return best
}

// DominantWavelength is L divided by the dominant shell, or 0.
func (s Spectrum) DominantWavelength() float64 {
	if sh := s.DominantShell(); sh > 0 {
		return s.Extent / float64(sh)
	}
	return 0
}
