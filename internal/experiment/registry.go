package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/cohsim/internal/boundary"
	"github.com/san-kum/cohsim/internal/coherence"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/raster"
)

// Algorithm kinds a run selects by name.
const (
	KindCoherence  = "coherence"
	KindRaster     = "raster"
	KindBoundary   = "boundary"
	KindIntegrator = "integrator"
	KindAnneal     = "anneal"
)

type Entry struct {
	Kind        string
	Name        string
	Description string
}

// Registry names every selectable algorithm and builds the stateless ones
// for tools that need them outside a simulator.
type Registry struct {
	entries map[string]map[string]Entry
}

func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]map[string]Entry)}

	r.add(KindCoherence, dynamo.CoherenceDirect, "truncated Gaussian convolution, exact reference")
	r.add(KindCoherence, dynamo.CoherenceEigenmode, "separable projection onto the top kernel eigenmodes")
	r.add(KindRaster, dynamo.RasterNGPBox, "nearest cell counts, three box-smoothing passes")
	r.add(KindRaster, dynamo.RasterCIC, "trilinear cloud-in-cell weights")
	r.add(KindBoundary, dynamo.BoundaryPeriodic, "toroidal wrap, minimum-image distances")
	r.add(KindBoundary, dynamo.BoundaryOpen, "no wrap; particles pin to the faces")
	r.add(KindIntegrator, dynamo.IntegratorParticle, "Langevin drift-diffusion on the particles")
	r.add(KindIntegrator, dynamo.IntegratorField, "upwind flux transport of the density grid")
	r.add(KindAnneal, dynamo.AnnealNone, "constant noise temperature")
	r.add(KindAnneal, dynamo.AnnealLinear, "linear in inverse temperature")
	r.add(KindAnneal, dynamo.AnnealExponential, "geometric in inverse temperature")
	r.add(KindAnneal, dynamo.AnnealSigmoid, "logistic ramp")
	r.add(KindAnneal, dynamo.AnnealPower, "quadratic ramp")

	return r
}

func (r *Registry) add(kind, name, desc string) {
	if r.entries[kind] == nil {
		r.entries[kind] = make(map[string]Entry)
	}
	r.entries[kind][name] = Entry{Kind: kind, Name: name, Description: desc}
}

func (r *Registry) Lookup(kind, name string) (Entry, error) {
	e, ok := r.entries[kind][name]
	if !ok {
		return Entry{}, fmt.Errorf("unknown %s: %s", kind, name)
	}
	return e, nil
}

// Check reports the first selector in p that the registry does not know.
func (r *Registry) Check(p dynamo.Params) error {
	selectors := []struct{ kind, name string }{
		{KindCoherence, p.Coherence},
		{KindRaster, p.Raster},
		{KindBoundary, p.Boundary},
		{KindIntegrator, p.Integrator},
		{KindAnneal, p.Anneal},
	}
	for _, s := range selectors {
		if _, err := r.Lookup(s.kind, s.name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) List(kind string) []Entry {
	out := make([]Entry, 0, len(r.entries[kind]))
	for _, e := range r.entries[kind] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Operator builds the coherence operator p selects, with its boundary
// topology, without a simulator around it.
func (r *Registry) Operator(p dynamo.Params) (coherence.Operator, boundary.Policy, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	pol, err := boundary.New(p.Boundary, p.L)
	if err != nil {
		return nil, nil, err
	}
	op, err := coherence.New(p, pol)
	if err != nil {
		return nil, nil, err
	}
	return op, pol, nil
}

func (r *Registry) Rasterizer(p dynamo.Params, topo dynamo.Topology) (raster.Rasterizer, error) {
	return raster.New(p.Raster, topo, p.MassTol)
}
