package sim_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cohsim/internal/analysis"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/metrics"
	"github.com/san-kum/cohsim/internal/sim"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func run(p dynamo.Params, ticks int, opts ...sim.Option) (*sim.Simulator, []sim.Diagnostics) {
	s, err := sim.New(p, append([]sim.Option{sim.WithLogger(discard)}, opts...)...)
	Expect(err).NotTo(HaveOccurred())

	history := []sim.Diagnostics{s.Diagnostics()}
	err = s.Run(context.Background(), ticks, func(d *sim.Diagnostics) bool {
		history = append(history, *d)
		return true
	})
	Expect(err).NotTo(HaveOccurred())
	return s, history
}

func centredBlob(n int, spread float64, seed int64) *dynamo.Ensemble {
	rng := rand.New(rand.NewSource(seed))
	e := dynamo.NewEnsemble(n)
	for i := range e.Pos {
		for a := 0; a < 3; a++ {
			e.Pos[i][a] = rng.NormFloat64() * spread
		}
	}
	return e
}

var _ = Describe("Simulator", func() {
	Context("end to end at the working coupling", Ordered, func() {
		var (
			s       *sim.Simulator
			history []sim.Diagnostics
		)

		BeforeAll(func() {
			if testing.Short() {
				Skip("long run")
			}
			p := dynamo.DefaultParams()
			p.Coherence = dynamo.CoherenceEigenmode
			s, history = run(p, 500)
		})

		It("condenses the uniform start into clusters", func() {
			initial := history[0].MaxDensity
			final := history[len(history)-1].MaxDensity
			Expect(final).To(BeNumerically(">", 5*initial))
		})

		It("reaches a converged state without diverging", func() {
			Expect(s.Tracker().ConvergedAt()).To(BeNumerically(">=", 0))
			Expect(s.Status()).NotTo(Equal(analysis.Diverging))
			Expect(s.Err()).NotTo(HaveOccurred())
		})

		It("resolves enough peaks for a spacing distribution", func() {
			last := history[len(history)-1]
			Expect(last.Analyzed).To(BeTrue())
			Expect(last.Peaks).To(BeNumerically(">=", 3))
			Expect(last.Ratios.Degenerate()).To(BeFalse())
		})

		It("stays on a validated coherence path", func() {
			Expect(s.Warning()).To(BeNil())
			Expect(s.Metrics()["mass_drift"]).To(BeNumerically("<", 1e-9))
		})
	})

	Context("boundary policies", func() {
		base := func() dynamo.Params {
			p := dynamo.DefaultParams()
			p.N = 4000
			p.G = 16
			p.L = 12
			p.Coherence = dynamo.CoherenceDirect
			p.InitSpeed = 0.3
			return p
		}

		It("pins particles on the faces of an open domain but not a periodic one", func() {
			periodic := base()
			ps, _ := run(periodic, 150)

			open := base()
			open.Boundary = dynamo.BoundaryOpen
			opened, _ := run(open, 150)

			periodicContact := ps.Metrics()["face_contact"]
			openContact := opened.Metrics()["face_contact"]
			Expect(openContact).To(BeNumerically(">", 0.02))
			Expect(openContact).To(BeNumerically(">", 10*periodicContact))

			snap := opened.Snapshot()
			shell, _ := metrics.ShellOccupancy(snap.Particles, snap.Grid)
			Expect(shell).To(BeNumerically(">", metrics.UniformShellFraction(open.G)))
		})

		DescribeTable("a centred blob without noise never reaches a face",
			func(boundary string) {
				p := base()
				p.N = 2000
				p.Boundary = boundary
				p.NoiseTemp = 0
				p.InitSpeed = 0

				s, _ := run(p, 60, sim.WithEnsemble(centredBlob(p.N, 1, 7)))
				Expect(s.Metrics()["face_contact"]).To(BeZero())

				snap := s.Snapshot()
				_, perFace := metrics.ShellOccupancy(snap.Particles, snap.Grid)
				for face, frac := range perFace {
					Expect(frac).To(BeNumerically("<", 0.01), "face %d", face)
				}
			},
			Entry("periodic", dynamo.BoundaryPeriodic),
			Entry("open", dynamo.BoundaryOpen),
		)
	})

	Context("without attraction", func() {
		It("does not grow density peaks", func() {
			p := dynamo.DefaultParams()
			p.N = 4000
			p.G = 16
			p.L = 12
			p.K = 0
			p.CurlWeight = 0
			p.Coherence = dynamo.CoherenceDirect

			_, history := run(p, 100)
			initial := history[0].MaxDensity
			for _, d := range history[1:] {
				Expect(d.MaxDensity).To(BeNumerically("<", 1.5*initial), "tick %d", d.Tick)
			}
		})
	})

	Context("the field integrator", func() {
		It("conserves mass and condenses", func() {
			p := dynamo.DefaultParams()
			p.N = 4000
			p.G = 16
			p.L = 12
			p.Integrator = dynamo.IntegratorField
			p.Coherence = dynamo.CoherenceDirect

			s, history := run(p, 200)
			Expect(s.Metrics()["mass_drift"]).To(BeNumerically("<", 1e-9))
			Expect(history[len(history)-1].MaxDensity).To(BeNumerically(">", history[0].MaxDensity))
		})
	})
})
