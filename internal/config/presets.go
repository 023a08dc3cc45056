package config

import (
	"math"
	"sort"

	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/phi"
)

func preset(name string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Name = name
	edit(c)
	return c
}

// Presets are grouped the way runs are compared: "coupling" holds the
// attraction strengths seen in practice, "scenario" the reference runs.
var Presets = map[string]map[string]*Config{
	"coupling": {
		"k2": preset("k2", func(c *Config) {
			c.Dynamics.K = 2
		}),
		"kphi": preset("kphi", func(c *Config) {
			c.Dynamics.K = phi.Phi
		}),
		"k2piphi": preset("k2piphi", func(c *Config) {
			c.Dynamics.K = 2 * math.Pi * phi.Phi
			c.Dt = 0.05
		}),
		"repulsive": preset("repulsive", func(c *Config) {
			c.Dynamics.K = -1
		}),
	},
	"scenario": {
		"e2e": preset("e2e", func(c *Config) {
			c.Particles = 20000
			c.Grid = 32
			c.Extent = 20
			c.Dynamics.K = 2
			c.Coherence.Algorithm = dynamo.CoherenceEigenmode
			c.Ticks = 500
		}),
		"open": preset("open", func(c *Config) {
			c.Boundary = dynamo.BoundaryOpen
			c.Ticks = 300
		}),
		"field": preset("field", func(c *Config) {
			c.Integrator = dynamo.IntegratorField
			c.Coherence.Algorithm = dynamo.CoherenceDirect
		}),
		"anneal": preset("anneal", func(c *Config) {
			c.Anneal = AnnealConfig{Schedule: dynamo.AnnealExponential, From: 1, Ticks: 300}
			c.Ticks = 600
		}),
		"small": preset("small", func(c *Config) {
			c.Particles = 4000
			c.Grid = 16
			c.Extent = 12
			c.Coherence.Modes = 9
			c.Ticks = 200
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(group, name string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	cfg, ok := groupPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindPreset looks a preset up by name across all groups.
func FindPreset(name string) *Config {
	for _, group := range Presets {
		if cfg, ok := group[name]; ok {
			return cfg.Clone()
		}
	}
	return nil
}

func Groups() []string {
	groups := make([]string, 0, len(Presets))
	for g := range Presets {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
