package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/cohsim/internal/config"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/experiment"
	"github.com/san-kum/cohsim/internal/sim"
)

var quiet = Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

func tinyConfig() *config.Config {
	cfg := config.GetPreset("scenario", "small")
	cfg.Particles = 1000
	cfg.Ticks = 8
	cfg.Coherence.Algorithm = dynamo.CoherenceDirect
	return cfg
}

func TestSetParam(t *testing.T) {
	cfg := config.DefaultConfig()
	tests := []struct {
		name  string
		value float64
		check func() bool
	}{
		{"k", -1, func() bool { return cfg.Dynamics.K == -1 }},
		{"curl_weight", 0.2, func() bool { return cfg.Dynamics.CurlWeight == 0.2 }},
		{"grid", 24.0000001, func() bool { return cfg.Grid == 24 }},
		{"modes", 7, func() bool { return cfg.Coherence.Modes == 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SetParam(cfg, tt.name, tt.value); err != nil {
				t.Fatal(err)
			}
			if !tt.check() {
				t.Errorf("%s not applied", tt.name)
			}
		})
	}

	if err := SetParam(cfg, "gravity", 1); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestRange(t *testing.T) {
	r := Range(1, 2, 5)
	if len(r) != 5 || r[0] != 1 || r[4] != 2 || r[2] != 1.5 {
		t.Errorf("unexpected range %v", r)
	}
	if got := Range(3, 9, 1); len(got) != 1 || got[0] != 3 {
		t.Errorf("single-point range %v", got)
	}
}

func TestSummarizeOutcomes(t *testing.T) {
	cfg := tinyConfig()
	base := func() *experiment.Result {
		return &experiment.Result{
			Config:      cfg,
			Diagnostics: []sim.Diagnostics{{MaxDensity: 1}, {Tick: 8, MaxDensity: 6}},
			ConvergedAt: -1,
		}
	}

	res := base()
	res.ConvergedAt = 5
	if s := Summarize(res); s.Outcome != OutcomeConverged || !s.Condensed {
		t.Errorf("expected condensed converged run, got %+v", s)
	}

	res = base()
	res.Err = dynamo.ErrNumericalInstability
	if s := Summarize(res); s.Outcome != OutcomeFailed || s.Error == "" {
		t.Errorf("expected failed run, got %+v", s)
	}

	res = base()
	res.Diagnostics[1].MaxDensity = 2
	if s := Summarize(res); s.Outcome != OutcomePending || s.Condensed {
		t.Errorf("expected pending uncondensed run, got %+v", s)
	}
}

func TestRunSweep(t *testing.T) {
	sweep := &ParameterSweep{Base: tinyConfig(), Param: "k", Values: []float64{-1, 0, 2}}
	opts := quiet
	opts.Parallel = 2
	results, err := RunSweep(context.Background(), sweep, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Param != "k" || r.Value != sweep.Values[i] {
			t.Errorf("result %d labelled %s=%g", i, r.Param, r.Value)
		}
		if r.Ticks != 8 {
			t.Errorf("result %d ran %d ticks", i, r.Ticks)
		}
	}
	if sweep.Base.Dynamics.K != 2 {
		t.Error("sweep mutated its base config")
	}
}

func TestRunSweepRejectsInvalidValue(t *testing.T) {
	sweep := &ParameterSweep{Base: tinyConfig(), Param: "sigma", Values: []float64{1, -1}}
	_, err := RunSweep(context.Background(), sweep, quiet)
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRunSeedsIsReproducible(t *testing.T) {
	results, err := RunSeeds(context.Background(), tinyConfig(), []int64{3, 3, 4}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].FinalMax != results[1].FinalMax {
		t.Errorf("same seed differs: %g vs %g", results[0].FinalMax, results[1].FinalMax)
	}
	if results[0].InitialMax == results[2].InitialMax {
		t.Error("different seeds should differ")
	}
	tally := Tally(results)
	total := 0
	for _, n := range tally {
		total += n
	}
	if total != 3 {
		t.Errorf("tally counts %d runs", total)
	}
}

func TestScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	body := `name: couplings
description: attractive then repulsive
steps:
  - preset: small
    ticks: 4
    params: {particles: 800, k: 2}
    save_as: attract
  - preset: small
    ticks: 4
    params: {particles: 800, k: -1}
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := StepConfig(sc.Steps[0])
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "attract" || cfg.Particles != 800 || cfg.Ticks != 4 {
		t.Errorf("step config not resolved: %+v", cfg)
	}

	results, err := RunScenario(context.Background(), sc, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	report := NewReport(sc.Name, "", config.DefaultConfig(), results)
	out := filepath.Join(dir, "report.yaml")
	if err := SaveReport(out, report); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadReport(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Results) != 2 || loaded.Name != "couplings" {
		t.Errorf("report round trip lost data: %+v", loaded)
	}
}

func TestScenarioUnknownPreset(t *testing.T) {
	_, err := StepConfig(ScenarioStep{Preset: "k7"})
	if err == nil {
		t.Error("expected error for unknown preset")
	}
}
