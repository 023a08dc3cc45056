package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cohsim/internal/analysis"
	"github.com/san-kum/cohsim/internal/config"
	"github.com/san-kum/cohsim/internal/experiment"
	"github.com/san-kum/cohsim/internal/sim"
)

// Outcome is the qualitative result of one run.
type Outcome string

const (
	OutcomeConverged  Outcome = "converged"
	OutcomeClustering Outcome = "clustering"
	OutcomeDispersing Outcome = "dispersing"
	OutcomeDiverged   Outcome = "diverged"
	OutcomePending    Outcome = "pending"
	OutcomeFailed     Outcome = "failed"
)

// Summary condenses one run to the values compared across a sweep.
type Summary struct {
	Param        string  `yaml:"param,omitempty"`
	Value        float64 `yaml:"value"`
	Seed         int64   `yaml:"seed"`
	Outcome      Outcome `yaml:"outcome"`
	Condensed    bool    `yaml:"condensed"`
	ConvergedAt  int     `yaml:"converged_at"`
	Ticks        int     `yaml:"ticks"`
	InitialMax   float64 `yaml:"initial_max_density"`
	FinalMax     float64 `yaml:"final_max_density"`
	Peaks        int     `yaml:"peaks"`
	RatioMedian  float64 `yaml:"ratio_median"`
	RatioNearPhi float64 `yaml:"ratio_near_phi"`
	Wavelength   float64 `yaml:"wavelength"`
	FreeEnergy   float64 `yaml:"free_energy"`
	Unvalidated  bool    `yaml:"unvalidated,omitempty"`
	Error        string  `yaml:"error,omitempty"`
}

// condenseFactor is how far the peak density must grow over the uniform
// start before a run counts as condensed.
const condenseFactor = 5.0

// Summarize classifies a finished (or failed) run.
func Summarize(res *experiment.Result) Summary {
	first := res.Diagnostics[0]
	last := res.Last()
	s := Summary{
		Seed:         res.Config.Seed,
		ConvergedAt:  res.ConvergedAt,
		Ticks:        last.Tick,
		InitialMax:   first.MaxDensity,
		FinalMax:     last.MaxDensity,
		Peaks:        last.Peaks,
		RatioMedian:  last.RatioMedian,
		RatioNearPhi: last.RatioNearPhi,
		Wavelength:   last.Wavelength,
		FreeEnergy:   last.FreeEnergy,
		Unvalidated:  res.Unvalidated,
	}
	s.Condensed = s.FinalMax > condenseFactor*s.InitialMax

	switch {
	case res.Err != nil:
		s.Outcome = OutcomeFailed
		s.Error = res.Err.Error()
	case last.Status == analysis.Diverging:
		s.Outcome = OutcomeDiverged
	case res.ConvergedAt >= 0:
		s.Outcome = OutcomeConverged
	case last.Status == analysis.Clustering:
		s.Outcome = OutcomeClustering
	case last.Status == analysis.Dispersing:
		s.Outcome = OutcomeDispersing
	default:
		s.Outcome = OutcomePending
	}
	return s
}

// Scenario is a scripted sequence of runs read from YAML. Each step starts
// from a preset (or the defaults) and overrides named parameters.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

type ScenarioStep struct {
	Preset string             `yaml:"preset"`
	Ticks  int                `yaml:"ticks"`
	Seed   int64              `yaml:"seed"`
	Params map[string]float64 `yaml:"params"`
	SaveAs string             `yaml:"save_as"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// StepConfig resolves one step to a full config.
func StepConfig(step ScenarioStep) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if step.Preset != "" {
		if cfg = config.FindPreset(step.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", step.Preset)
		}
	}
	if step.Ticks > 0 {
		cfg.Ticks = step.Ticks
	}
	if step.Seed != 0 {
		cfg.Seed = step.Seed
	}
	names := make([]string, 0, len(step.Params))
	for name := range step.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := SetParam(cfg, name, step.Params[name]); err != nil {
			return nil, err
		}
	}
	if step.SaveAs != "" {
		cfg.Name = step.SaveAs
	}
	return cfg, nil
}

// RunScenario executes every step in order. A failing step stops the
// scenario; summaries of the steps before it are returned.
func RunScenario(ctx context.Context, scenario *Scenario, opts Options) ([]Summary, error) {
	results := make([]Summary, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := StepConfig(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		opts.logger().Info("scenario step", "step", i+1, "of", len(scenario.Steps), "name", cfg.Name, "k", cfg.Dynamics.K)

		res, err := runOne(ctx, cfg, opts)
		if res == nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		results = append(results, Summarize(res))
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
	}
	return results, nil
}

// Options control how batch runs are executed and recorded.
type Options struct {
	// Parallel is the number of simulations run at once. Simulators share
	// nothing, so any value is safe; each still steps on one goroutine.
	Parallel int
	Logger   *slog.Logger
	// Observer, when set, attaches a per-run observer such as a storage
	// recorder.
	Observer Attach
}

// Attach returns an observer for one run and a finish function that sees
// the run's result.
type Attach func(cfg *config.Config) (sim.Observer, func(*experiment.Result) error, error)

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func runOne(ctx context.Context, cfg *config.Config, opts Options) (*experiment.Result, error) {
	var simOpts []sim.Option
	var finish func(*experiment.Result) error
	if opts.Observer != nil {
		obs, fin, err := opts.Observer(cfg)
		if err != nil {
			return nil, err
		}
		simOpts = append(simOpts, sim.WithObserver(obs))
		finish = fin
	}

	exp := experiment.New(cfg, simOpts...).WithLogger(opts.logger())
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	res, runErr := exp.Run(ctx)
	if finish != nil {
		if err := finish(res); err != nil && runErr == nil {
			runErr = err
		}
	}
	return res, runErr
}

// ParameterSweep runs the same base configuration across a list of values
// of one parameter.
type ParameterSweep struct {
	Base   *config.Config
	Param  string
	Values []float64
}

// Range returns n evenly spaced values from lo to hi inclusive.
func Range(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// RunSweep executes a parameter sweep. Runs that fail numerically are
// reported with OutcomeFailed rather than aborting the sweep; invalid
// configurations and cancellation abort it.
func RunSweep(ctx context.Context, sweep *ParameterSweep, opts Options) ([]Summary, error) {
	cfgs := make([]*config.Config, len(sweep.Values))
	for i, v := range sweep.Values {
		cfg := sweep.Base.Clone()
		if err := SetParam(cfg, sweep.Param, v); err != nil {
			return nil, err
		}
		if cfg.Name == "" {
			cfg.Name = "sweep"
		}
		cfg.Name = fmt.Sprintf("%s_%s%g", cfg.Name, sweep.Param, v)
		if err := cfg.Params().Validate(); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		cfgs[i] = cfg
	}

	results, err := runBatch(ctx, cfgs, opts)
	for i := range results {
		results[i].Param = sweep.Param
		results[i].Value = sweep.Values[i]
	}
	return results, err
}

// RunSeeds repeats one configuration over seeds to measure how often each
// outcome occurs from independent random starts.
func RunSeeds(ctx context.Context, base *config.Config, seeds []int64, opts Options) ([]Summary, error) {
	cfgs := make([]*config.Config, len(seeds))
	for i, seed := range seeds {
		cfg := base.Clone()
		cfg.Seed = seed
		cfgs[i] = cfg
	}
	return runBatch(ctx, cfgs, opts)
}

func runBatch(ctx context.Context, cfgs []*config.Config, opts Options) ([]Summary, error) {
	results := make([]Summary, len(cfgs))
	parallel := max(opts.Parallel, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			res, err := runOne(gctx, cfg, opts)
			if res == nil {
				return err
			}
			results[i] = Summarize(res)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			opts.logger().Info("run finished",
				"run", i+1, "of", len(cfgs), "name", cfg.Name,
				"outcome", results[i].Outcome, "max_density", results[i].FinalMax, "peaks", results[i].Peaks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Tally counts outcomes.
func Tally(results []Summary) map[Outcome]int {
	out := make(map[Outcome]int)
	for _, r := range results {
		out[r.Outcome]++
	}
	return out
}

// Report is the YAML document a sweep leaves behind.
type Report struct {
	Name    string          `yaml:"name"`
	Param   string          `yaml:"param,omitempty"`
	Base    *config.Config  `yaml:"base"`
	Results []Summary       `yaml:"results"`
	Tally   map[Outcome]int `yaml:"tally"`
}

func NewReport(name, param string, base *config.Config, results []Summary) *Report {
	return &Report{Name: name, Param: param, Base: base, Results: results, Tally: Tally(results)}
}

func SaveReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
