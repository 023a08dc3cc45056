package automation

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/cohsim/internal/config"
)

var setters = map[string]func(c *config.Config, v float64){
	"k":           func(c *config.Config, v float64) { c.Dynamics.K = v },
	"sigma":       func(c *config.Config, v float64) { c.Dynamics.Sigma = v },
	"nu":          func(c *config.Config, v float64) { c.Dynamics.Nu = v },
	"curl_weight": func(c *config.Config, v float64) { c.Dynamics.CurlWeight = v },
	"noise_temp":  func(c *config.Config, v float64) { c.Dynamics.NoiseTemp = v },
	"init_speed":  func(c *config.Config, v float64) { c.Dynamics.InitSpeed = v },
	"dt":          func(c *config.Config, v float64) { c.Dt = v },
	"extent":      func(c *config.Config, v float64) { c.Extent = v },
	"particles":   func(c *config.Config, v float64) { c.Particles = int(math.Round(v)) },
	"grid":        func(c *config.Config, v float64) { c.Grid = int(math.Round(v)) },
	"modes":       func(c *config.Config, v float64) { c.Coherence.Modes = int(math.Round(v)) },
	"ticks":       func(c *config.Config, v float64) { c.Ticks = int(math.Round(v)) },
}

// SetParam assigns a numeric parameter by its config-file name.
func SetParam(c *config.Config, name string, v float64) error {
	set, ok := setters[name]
	if !ok {
		return fmt.Errorf("unknown sweep parameter: %s (have %v)", name, Params())
	}
	set(c, v)
	return nil
}

// Params lists the parameters SetParam accepts.
func Params() []string {
	names := make([]string, 0, len(setters))
	for n := range setters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
