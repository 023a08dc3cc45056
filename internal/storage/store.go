package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/san-kum/cohsim/internal/config"
	"github.com/san-kum/cohsim/internal/dynamo"
	"github.com/san-kum/cohsim/internal/experiment"
	"github.com/san-kum/cohsim/internal/sim"
)

const (
	metadataFile    = "metadata.json"
	configFile      = "config.yaml"
	diagnosticsFile = "diagnostics.csv"
	densityFile     = "density.csv"
	peaksFile       = "peaks.csv"
	indexFile       = "index.db"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// IndexPath is the SQLite catalog kept next to the run directories.
func (s *Store) IndexPath() string { return filepath.Join(s.baseDir, indexFile) }

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Duration    time.Duration      `json:"duration_ns"`
	Ticks       int                `json:"ticks"`
	Params      dynamo.Params      `json:"params"`
	Status      string             `json:"status"`
	ConvergedAt int                `json:"converged_at"`
	MaxDensity  float64            `json:"max_density"`
	Peaks       int                `json:"peaks"`
	RatioMean   float64            `json:"ratio_mean"`
	RatioMedian float64            `json:"ratio_median"`
	NearPhi     float64            `json:"near_phi"`
	Wavelength  float64            `json:"wavelength"`
	FreeEnergy  float64            `json:"free_energy"`
	Unvalidated bool               `json:"unvalidated"`
	Error       string             `json:"error,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
}

// DensityCell is one row of density.csv.
type DensityCell struct {
	I         int     `csv:"i"`
	J         int     `csv:"j"`
	K         int     `csv:"k"`
	X         float64 `csv:"x"`
	Y         float64 `csv:"y"`
	Z         float64 `csv:"z"`
	Density   float64 `csv:"density"`
	Coherence float64 `csv:"coherence"`
}

// PeakRow is one row of peaks.csv.
type PeakRow struct {
	Rank    int     `csv:"rank"`
	I       int     `csv:"i"`
	J       int     `csv:"j"`
	K       int     `csv:"k"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Z       float64 `csv:"z"`
	Density float64 `csv:"density"`
}

// Run is an open run directory. It records diagnostics as the simulation
// reports them and is closed by Finish.
type Run struct {
	ID      string
	Dir     string
	name    string
	started time.Time

	diag          *os.File
	headerWritten bool
	pending       []sim.Diagnostics
	flushEvery    int
	err           error
}

// newRunID returns the suffix that keeps run directories distinct.
var newRunID = func() string { return uuid.NewString()[:8] }

// Create opens a new run directory named after cfg and writes its config.
// On failure the directory is removed again.
func (s *Store) Create(cfg *config.Config) (_ *Run, err error) {
	name := cfg.Name
	if name == "" {
		name = "run"
	}
	id := fmt.Sprintf("%s_%s", name, newRunID())
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	if err := config.Save(filepath.Join(dir, configFile), cfg); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, diagnosticsFile))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", diagnosticsFile, err)
	}
	return &Run{ID: id, Dir: dir, name: name, started: time.Now(), diag: f, flushEvery: 50}, nil
}

// OnTick buffers d and writes a batch of rows every few ticks. The first
// write error is kept and returned by Finish.
func (r *Run) OnTick(d *sim.Diagnostics) {
	if r.err != nil {
		return
	}
	r.pending = append(r.pending, *d)
	if len(r.pending) >= r.flushEvery {
		r.err = r.flush()
	}
}

func (r *Run) flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	if !r.headerWritten {
		if err := gocsv.Marshal(r.pending, r.diag); err != nil {
			return fmt.Errorf("writing diagnostics: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(r.pending, r.diag); err != nil {
			return fmt.Errorf("writing diagnostics: %w", err)
		}
	}
	r.pending = r.pending[:0]
	return nil
}

// Finish flushes diagnostics and writes the final density, peaks and
// metadata. It returns the metadata for indexing.
func (r *Run) Finish(res *experiment.Result) (*RunMetadata, error) {
	if r.err == nil {
		r.err = r.flush()
	}
	if err := r.diag.Close(); err != nil && r.err == nil {
		r.err = err
	}
	if r.err != nil {
		return nil, r.err
	}

	if err := writeCSV(filepath.Join(r.Dir, densityFile), densityRows(res.Final)); err != nil {
		return nil, err
	}
	if err := writeCSV(filepath.Join(r.Dir, peaksFile), peakRows(res.Final)); err != nil {
		return nil, err
	}

	meta := metadataFor(r.ID, r.name, r.started, res)
	if err := writeJSON(filepath.Join(r.Dir, metadataFile), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func metadataFor(id, name string, started time.Time, res *experiment.Result) *RunMetadata {
	last := res.Last()
	meta := &RunMetadata{
		ID:          id,
		Name:        name,
		Timestamp:   started,
		Duration:    time.Since(started),
		Ticks:       last.Tick,
		Params:      res.Config.Params(),
		Status:      last.StatusName,
		ConvergedAt: res.ConvergedAt,
		MaxDensity:  last.MaxDensity,
		Peaks:       last.Peaks,
		RatioMean:   last.RatioMean,
		RatioMedian: last.RatioMedian,
		NearPhi:     last.RatioNearPhi,
		Wavelength:  last.Wavelength,
		FreeEnergy:  last.FreeEnergy,
		Unvalidated: res.Unvalidated,
		Metrics:     res.Metrics,
	}
	if res.Err != nil {
		meta.Error = res.Err.Error()
	}
	return meta
}

func densityRows(snap *sim.Snapshot) []DensityCell {
	g := snap.Grid
	rows := make([]DensityCell, g.Cells())
	for idx := range rows {
		i, j, k := g.Coords(idx)
		c := g.Center(i, j, k)
		rows[idx] = DensityCell{
			I:         i,
			J:         j,
			K:         k,
			X:         c[0],
			Y:         c[1],
			Z:         c[2],
			Density:   g.Density[idx],
			Coherence: g.Coherence[idx],
		}
	}
	return rows
}

func peakRows(snap *sim.Snapshot) []PeakRow {
	rows := make([]PeakRow, len(snap.Peaks))
	for n, p := range snap.Peaks {
		rows[n] = PeakRow{
			Rank:    n,
			I:       p.Cell[0],
			J:       p.Cell[1],
			K:       p.Cell[2],
			X:       p.Position[0],
			Y:       p.Position[1],
			Z:       p.Position[2],
			Density: p.Density,
		}
	}
	return rows
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List reads every run's metadata from disk, newest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadDiagnostics(runID string) ([]sim.Diagnostics, error) {
	var rows []sim.Diagnostics
	if err := readCSV(filepath.Join(s.baseDir, runID, diagnosticsFile), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) LoadDensity(runID string) ([]DensityCell, error) {
	var rows []DensityCell
	if err := readCSV(filepath.Join(s.baseDir, runID, densityFile), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) LoadPeaks(runID string) ([]PeakRow, error) {
	var rows []PeakRow
	if err := readCSV(filepath.Join(s.baseDir, runID, peaksFile), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return nil
}
