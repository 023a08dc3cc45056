package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/san-kum/cohsim/internal/automation"
	"github.com/san-kum/cohsim/internal/config"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/experiment"
	"github.com/san-kum/cohsim/internal/sim"
	"github.com/san-kum/cohsim/internal/storage"
	"github.com/san-kum/cohsim/internal/viz"
)

var (
	dataDir  string
	logLevel string

	configFile string
	preset     string
	ticks      int
	seed       int64
	particles  int
	grid       int
	extent     float64
	dt         float64
	k          float64
	curl       float64
	noise      float64
	algorithm  string
	bound      string
	integrator string
	workers    int
	noSave     bool

	sweepParam  string
	sweepFrom   float64
	sweepTo     float64
	sweepSteps  int
	sweepValues string
	seedCount   int
	parallel    int
	reportFile  string

	frameRate int
	theme     string
	limit     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cohsim",
		Short:         "coherence-field particle simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultOutputDir, "run output directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and record it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "compare the eigenmode operator against the direct reference",
		Args:  cobra.NoArgs,
		RunE:  validateOperator,
	}
	addConfigFlags(validateCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run one configuration across values of a parameter",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "k", "parameter to sweep ("+strings.Join(automation.Params(), ", ")+")")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 4, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of evenly spaced values")
	sweepCmd.Flags().StringVar(&sweepValues, "values", "", "comma separated values (overrides --from/--to/--steps)")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 1, "simulations run at once")
	sweepCmd.Flags().StringVar(&reportFile, "report", "", "write a YAML report here")

	seedsCmd := &cobra.Command{
		Use:   "seeds",
		Short: "repeat one configuration over random seeds",
		Args:  cobra.NoArgs,
		RunE:  runSeeds,
	}
	addConfigFlags(seedsCmd)
	seedsCmd.Flags().IntVar(&seedCount, "count", 8, "number of seeds")
	seedsCmd.Flags().IntVar(&parallel, "parallel", 1, "simulations run at once")
	seedsCmd.Flags().StringVar(&reportFile, "report", "", "write a YAML report here")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().StringVar(&reportFile, "report", "", "write a YAML report here")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum runs shown")

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write run diagnostics as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild the run index from the run directories",
		Args:  cobra.NoArgs,
		RunE:  reindex,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := config.Groups()
			if len(args) == 1 {
				groups = []string{args[0]}
			}
			for _, g := range groups {
				names := config.ListPresets(g)
				if len(names) == 0 {
					return fmt.Errorf("no presets in group: %s (have %v)", g, config.Groups())
				}
				fmt.Printf("%s:\n", g)
				for _, n := range names {
					fmt.Printf("  %s\n", n)
				}
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with a live diagnostics monitor",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")
	liveCmd.Flags().StringVar(&theme, "theme", "", "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	rootCmd.AddCommand(runCmd, validateCmd, sweepCmd, seedsCmd, scenarioCmd, listCmd, showCmd, plotCmd, exportCSVCmd, reindexCmd, presetsCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "start from a preset (see 'cohsim presets')")
	f.IntVar(&ticks, "ticks", config.DefaultTicks, "ticks to run")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.IntVar(&particles, "particles", 0, "particle count N")
	f.IntVar(&grid, "grid", 0, "cells per axis G")
	f.Float64Var(&extent, "extent", 0, "box side length L")
	f.Float64Var(&dt, "dt", 0, "timestep")
	f.Float64Var(&k, "k", 0, "coherence coupling")
	f.Float64Var(&curl, "curl", 0, "curl weight")
	f.Float64Var(&noise, "noise", 0, "noise temperature")
	f.StringVar(&algorithm, "coherence", "", "coherence algorithm (direct, eigenmode)")
	f.StringVar(&bound, "boundary", "", "boundary policy (periodic, open)")
	f.StringVar(&integrator, "integrator", "", "integrator (particle, field)")
	f.IntVar(&workers, "workers", 0, "worker goroutines for the direct operator")
}

// loadConfig resolves the run configuration: defaults, then a preset or
// config file, then any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	switch {
	case configFile != "" && preset != "":
		return nil, errors.New("--config and --preset are mutually exclusive")
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case preset != "":
		if cfg = config.FindPreset(preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", preset)
		}
	}

	f := cmd.Flags()
	if f.Changed("ticks") {
		cfg.Ticks = ticks
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("particles") {
		cfg.Particles = particles
	}
	if f.Changed("grid") {
		cfg.Grid = grid
	}
	if f.Changed("extent") {
		cfg.Extent = extent
	}
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("k") {
		cfg.Dynamics.K = k
	}
	if f.Changed("curl") {
		cfg.Dynamics.CurlWeight = curl
	}
	if f.Changed("noise") {
		cfg.Dynamics.NoiseTemp = noise
	}
	if f.Changed("coherence") {
		cfg.Coherence.Algorithm = algorithm
	}
	if f.Changed("boundary") {
		cfg.Boundary = bound
	}
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}
	if f.Changed("data") {
		cfg.OutputDir = dataDir
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = dataDir
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// recorder wires a storage run and the index to each simulation.
func recorder(st *storage.Store) (automation.Attach, func() error, error) {
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	idx, err := storage.OpenIndex(st.IndexPath())
	if err != nil {
		return nil, nil, err
	}
	attach := func(cfg *config.Config) (sim.Observer, func(*experiment.Result) error, error) {
		run, err := st.Create(cfg)
		if err != nil {
			return nil, nil, err
		}
		finish := func(res *experiment.Result) error {
			meta, err := run.Finish(res)
			if err != nil {
				return err
			}
			slog.Info("run recorded", "id", meta.ID, "dir", filepath.Join(st.Dir(), meta.ID))
			return idx.Put(meta)
		}
		return run, finish, nil
	}
	return attach, idx.Close, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// reject a bad config before a run directory is created for it
	if err := experiment.NewRegistry().Check(cfg.Params()); err != nil {
		return err
	}
	if err := cfg.Params().Validate(); err != nil {
		return err
	}

	var opts []sim.Option
	var finish func(*experiment.Result) error
	if !noSave {
		attach, closeIndex, err := recorder(storage.New(cfg.OutputDir))
		if err != nil {
			return err
		}
		defer closeIndex()
		obs, fin, err := attach(cfg)
		if err != nil {
			return err
		}
		opts = append(opts, sim.WithObserver(obs))
		finish = fin
	}

	exp := experiment.New(cfg, opts...)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	res, runErr := exp.Run(ctx)
	if finish != nil {
		if err := finish(res); err != nil {
			slog.Error("recording run", "err", err)
		}
	}

	printSummary(automation.Summarize(res), time.Since(start))
	return runErr
}

func printSummary(s automation.Summary, elapsed time.Duration) {
	fmt.Printf("outcome:      %s\n", s.Outcome)
	fmt.Printf("ticks:        %s in %s\n", humanize.Comma(int64(s.Ticks)), elapsed.Round(time.Millisecond))
	if s.ConvergedAt >= 0 {
		fmt.Printf("converged at: tick %d\n", s.ConvergedAt)
	}
	fmt.Printf("max density:  %.4g -> %.4g\n", s.InitialMax, s.FinalMax)
	fmt.Printf("peaks:        %d\n", s.Peaks)
	fmt.Printf("ratio median: %.4f (%.0f%% near φ)\n", s.RatioMedian, 100*s.RatioNearPhi)
	fmt.Printf("wavelength:   %.4g\n", s.Wavelength)
	fmt.Printf("free energy:  %.4g\n", s.FreeEnergy)
	if s.Unvalidated {
		fmt.Println("warning:      eigenmode operator disagreed with the direct reference")
	}
	if s.Error != "" {
		fmt.Printf("error:        %s\n", s.Error)
	}
}

func validateOperator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("coherence") {
		cfg.Coherence.Algorithm = dynamo.CoherenceEigenmode
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	report := exp.GetSimulator().Validation()
	if report == nil {
		fmt.Println("operator is the direct reference; nothing to validate")
		return nil
	}

	fmt.Printf("reference:     %s\n", report.Reference)
	fmt.Printf("candidate:     %s\n", report.Candidate)
	fmt.Printf("max rel err:   %.3e (cell %d)\n", report.MaxRelErr, report.Cell)
	fmt.Printf("mean rel err:  %.3e\n", report.MeanRelErr)
	fmt.Printf("l2 rel err:    %.3e\n", report.L2RelErr)
	fmt.Printf("tolerance:     %.3e\n", report.Tolerance)
	if w := exp.GetSimulator().Warning(); w != nil {
		return w
	}
	fmt.Println("passed")
	return nil
}

func batchOptions(cfg *config.Config) (automation.Options, func() error, error) {
	opts := automation.Options{Parallel: parallel, Logger: slog.Default()}
	if noSave {
		return opts, func() error { return nil }, nil
	}
	attach, closeIndex, err := recorder(storage.New(cfg.OutputDir))
	if err != nil {
		return opts, nil, err
	}
	opts.Observer = attach
	return opts, closeIndex, nil
}

func parseValues(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	values := automation.Range(sweepFrom, sweepTo, sweepSteps)
	if sweepValues != "" {
		if values, err = parseValues(sweepValues); err != nil {
			return err
		}
	}

	opts, closeIndex, err := batchOptions(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	ctx, cancel := signalContext()
	defer cancel()

	sweep := &automation.ParameterSweep{Base: cfg, Param: sweepParam, Values: values}
	results, runErr := automation.RunSweep(ctx, sweep, opts)
	printResults(sweepParam, results)
	if err := writeReport("sweep_"+sweepParam, sweepParam, cfg, results); err != nil {
		return err
	}
	return runErr
}

func runSeeds(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	seeds := make([]int64, seedCount)
	for i := range seeds {
		seeds[i] = cfg.Seed + int64(i)
	}

	opts, closeIndex, err := batchOptions(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	ctx, cancel := signalContext()
	defer cancel()

	results, runErr := automation.RunSeeds(ctx, cfg, seeds, opts)
	printResults("seed", results)
	for outcome, n := range automation.Tally(results) {
		fmt.Printf("%-11s %d/%d\n", outcome, n, len(results))
	}
	if err := writeReport("seeds", "", cfg, results); err != nil {
		return err
	}
	return runErr
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base := config.DefaultConfig()
	base.OutputDir = dataDir

	opts, closeIndex, err := batchOptions(base)
	if err != nil {
		return err
	}
	defer closeIndex()

	ctx, cancel := signalContext()
	defer cancel()

	results, runErr := automation.RunScenario(ctx, sc, opts)
	printResults("step", results)
	if err := writeReport(sc.Name, "", base, results); err != nil {
		return err
	}
	return runErr
}

func printResults(label string, results []automation.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tOUTCOME\tCONVERGED\tMAX DENSITY\tPEAKS\tRATIO\tNEAR φ\tWAVELENGTH\n", strings.ToUpper(label))
	for i, r := range results {
		key := strconv.FormatFloat(r.Value, 'g', 6, 64)
		switch label {
		case "seed":
			key = strconv.FormatInt(r.Seed, 10)
		case "step":
			key = strconv.Itoa(i + 1)
		}
		converged := "-"
		if r.ConvergedAt >= 0 {
			converged = strconv.Itoa(r.ConvergedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4g\t%d\t%.4f\t%.0f%%\t%.4g\n",
			key, r.Outcome, converged, r.FinalMax, r.Peaks, r.RatioMedian, 100*r.RatioNearPhi, r.Wavelength)
	}
	w.Flush()
}

func writeReport(name, param string, base *config.Config, results []automation.Summary) error {
	if reportFile == "" {
		return nil
	}
	if err := automation.SaveReport(reportFile, automation.NewReport(name, param, base, results)); err != nil {
		return err
	}
	fmt.Printf("report written to %s\n", reportFile)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if _, err := os.Stat(st.IndexPath()); err != nil {
		return listFromDirs(st)
	}

	idx, err := storage.OpenIndex(st.IndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.Recent(limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tN\tK\tOPERATOR\tTICKS\tSTATUS\tPEAKS\tRATIO")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%s\t%s\t%d\t%.4f\n",
			r.ID,
			humanize.Time(r.CreatedAt),
			humanize.Comma(int64(r.Particles)),
			r.K,
			r.Coherence,
			humanize.Comma(int64(r.Ticks)),
			r.Status,
			r.Peaks,
			r.RatioMedian,
		)
	}
	return w.Flush()
}

func listFromDirs(st *storage.Store) error {
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tN\tK\tTICKS\tDURATION\tSTATUS")
	for i, r := range runs {
		if i >= limit {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%s\t%s\n",
			r.ID,
			humanize.Time(r.Timestamp),
			humanize.Comma(int64(r.Params.N)),
			r.Params.K,
			humanize.Comma(int64(r.Ticks)),
			r.Duration.Round(time.Millisecond),
			r.Status,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, err := storage.New(dataDir).Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	rows, err := st.LoadDiagnostics(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("status: %s\n", meta.Status)
	fmt.Printf("ticks: %s\n\n", humanize.Comma(int64(len(rows))))

	var maxDensity, drift, kinetic, free, ratio []float64
	for _, r := range rows {
		maxDensity = append(maxDensity, r.MaxDensity)
		drift = append(drift, r.MassDrift)
		kinetic = append(kinetic, r.KineticEnergy)
		if r.Analyzed {
			free = append(free, r.FreeEnergy)
			ratio = append(ratio, r.RatioMedian)
		}
	}

	for _, s := range []struct {
		caption string
		data    []float64
	}{
		{"max density", maxDensity},
		{"kinetic energy per particle", kinetic},
		{"mass drift", drift},
		{"free energy (analysed ticks)", free},
		{"spacing ratio median (analysed ticks)", ratio},
	} {
		fmt.Println(viz.Plot(s.data, s.caption, 80, 10))
		fmt.Println()
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	rows, err := storage.New(dataDir).LoadDiagnostics(args[0])
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to export")
	}
	return gocsv.Marshal(rows, os.Stdout)
}

func reindex(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if err := st.Init(); err != nil {
		return err
	}
	idx, err := storage.OpenIndex(st.IndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Rebuild(runs); err != nil {
		return err
	}
	fmt.Printf("indexed %s runs\n", humanize.Comma(int64(len(runs))))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// the monitor owns the terminal, so logs go nowhere unless asked for
	if !cmd.Flags().Changed("log-level") {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	return viz.Run(exp.GetSimulator(), cfg.Ticks, frameRate, theme)
}
