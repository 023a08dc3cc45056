package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cohsim/internal/dynamo"
)

const (
	DefaultTicks     = 500
	DefaultOutputDir = "runs"
)

type Config struct {
	Name       string          `yaml:"name,omitempty"`
	Particles  int             `yaml:"particles"`
	Grid       int             `yaml:"grid"`
	Extent     float64         `yaml:"extent"`
	Dt         float64         `yaml:"dt"`
	Ticks      int             `yaml:"ticks"`
	Seed       int64           `yaml:"seed"`
	Workers    int             `yaml:"workers"`
	Boundary   string          `yaml:"boundary"`
	Raster     string          `yaml:"raster"`
	Integrator string          `yaml:"integrator"`
	OutputDir  string          `yaml:"output_dir"`
	Dynamics   DynamicsConfig  `yaml:"dynamics"`
	Coherence  CoherenceConfig `yaml:"coherence"`
	Anneal     AnnealConfig    `yaml:"anneal"`
	Analysis   AnalysisConfig  `yaml:"analysis"`
	Tolerances ToleranceConfig `yaml:"tolerances"`
}

type DynamicsConfig struct {
	K          float64 `yaml:"k"`
	Sigma      float64 `yaml:"sigma"`
	Nu         float64 `yaml:"nu"`
	CurlWeight float64 `yaml:"curl_weight"`
	NoiseTemp  float64 `yaml:"noise_temp"`
	InitSpeed  float64 `yaml:"init_speed"`
}

type CoherenceConfig struct {
	Algorithm     string  `yaml:"algorithm"`
	Modes         int     `yaml:"modes"`
	ValidationTol float64 `yaml:"validation_tol"`
}

type AnnealConfig struct {
	Schedule string  `yaml:"schedule"`
	From     float64 `yaml:"from"`
	Ticks    int     `yaml:"ticks"`
}

type AnalysisConfig struct {
	Every          int     `yaml:"every"`
	Window         int     `yaml:"window"`
	Tol            float64 `yaml:"tol"`
	Patience       int     `yaml:"patience"`
	PeakThreshold  float64 `yaml:"peak_threshold"`
	RatioTolerance float64 `yaml:"ratio_tolerance"`
}

type ToleranceConfig struct {
	DensityFloor   float64 `yaml:"density_floor"`
	Mass           float64 `yaml:"mass"`
	SanityFraction float64 `yaml:"sanity_fraction"`
}

func DefaultConfig() *Config {
	return FromParams(dynamo.DefaultParams(), DefaultTicks)
}

// FromParams builds a config that reproduces p exactly.
func FromParams(p dynamo.Params, ticks int) *Config {
	return &Config{
		Particles:  p.N,
		Grid:       p.G,
		Extent:     p.L,
		Dt:         p.Dt,
		Ticks:      ticks,
		Seed:       p.Seed,
		Workers:    p.Workers,
		Boundary:   p.Boundary,
		Raster:     p.Raster,
		Integrator: p.Integrator,
		OutputDir:  DefaultOutputDir,
		Dynamics: DynamicsConfig{
			K:          p.K,
			Sigma:      p.Sigma,
			Nu:         p.Nu,
			CurlWeight: p.CurlWeight,
			NoiseTemp:  p.NoiseTemp,
			InitSpeed:  p.InitSpeed,
		},
		Coherence: CoherenceConfig{
			Algorithm:     p.Coherence,
			Modes:         p.Modes,
			ValidationTol: p.ValidationTol,
		},
		Anneal: AnnealConfig{
			Schedule: p.Anneal,
			From:     p.AnnealFrom,
			Ticks:    p.AnnealTicks,
		},
		Analysis: AnalysisConfig{
			Every:          p.AnalyzeEvery,
			Window:         p.ConvergenceWindow,
			Tol:            p.ConvergenceTol,
			Patience:       p.ConvergencePatience,
			PeakThreshold:  p.PeakThreshold,
			RatioTolerance: p.RatioTolerance,
		},
		Tolerances: ToleranceConfig{
			DensityFloor:   p.DensityFloor,
			Mass:           p.MassTol,
			SanityFraction: p.SanityFraction,
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys
// it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Params converts the file layout to engine parameters. The result is not
// validated; sim.New does that.
func (c *Config) Params() dynamo.Params {
	return dynamo.Params{
		N:                   c.Particles,
		G:                   c.Grid,
		L:                   c.Extent,
		Dt:                  c.Dt,
		Sigma:               c.Dynamics.Sigma,
		Nu:                  c.Dynamics.Nu,
		K:                   c.Dynamics.K,
		CurlWeight:          c.Dynamics.CurlWeight,
		NoiseTemp:           c.Dynamics.NoiseTemp,
		InitSpeed:           c.Dynamics.InitSpeed,
		Coherence:           c.Coherence.Algorithm,
		Modes:               c.Coherence.Modes,
		ValidationTol:       c.Coherence.ValidationTol,
		Raster:              c.Raster,
		Boundary:            c.Boundary,
		Integrator:          c.Integrator,
		DensityFloor:        c.Tolerances.DensityFloor,
		MassTol:             c.Tolerances.Mass,
		SanityFraction:      c.Tolerances.SanityFraction,
		AnalyzeEvery:        c.Analysis.Every,
		ConvergenceWindow:   c.Analysis.Window,
		ConvergenceTol:      c.Analysis.Tol,
		ConvergencePatience: c.Analysis.Patience,
		PeakThreshold:       c.Analysis.PeakThreshold,
		RatioTolerance:      c.Analysis.RatioTolerance,
		Anneal:              c.Anneal.Schedule,
		AnnealFrom:          c.Anneal.From,
		AnnealTicks:         c.Anneal.Ticks,
		Workers:             c.Workers,
		Seed:                c.Seed,
	}
}

// Clone returns an independent copy; Config holds no reference types.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
