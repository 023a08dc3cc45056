package storage

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Index is a SQLite catalog of finished runs. The run directories stay the
// source of truth; the index only makes listing and filtering cheap.
type Index struct {
	conn *sqlx.DB
}

// IndexRow is one catalogued run.
type IndexRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	CreatedAt   time.Time `db:"created_at"`
	Particles   int       `db:"particles"`
	Grid        int       `db:"grid"`
	K           float64   `db:"k"`
	Coherence   string    `db:"coherence"`
	Boundary    string    `db:"boundary"`
	Integrator  string    `db:"integrator"`
	Ticks       int       `db:"ticks"`
	Status      string    `db:"status"`
	ConvergedAt int       `db:"converged_at"`
	MaxDensity  float64   `db:"max_density"`
	Peaks       int       `db:"peaks"`
	RatioMedian float64   `db:"ratio_median"`
	NearPhi     float64   `db:"near_phi"`
	Unvalidated bool      `db:"unvalidated"`
	Error       string    `db:"error"`
}

func OpenIndex(path string) (*Index, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	idx := &Index{conn: conn}
	if err := idx.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return idx, nil
}

func (x *Index) Close() error {
	return x.conn.Close()
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		particles INTEGER NOT NULL,
		grid INTEGER NOT NULL,
		k REAL NOT NULL,
		coherence TEXT NOT NULL,
		boundary TEXT NOT NULL,
		integrator TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		status TEXT NOT NULL,
		converged_at INTEGER NOT NULL,
		max_density REAL NOT NULL,
		peaks INTEGER NOT NULL,
		ratio_median REAL NOT NULL,
		near_phi REAL NOT NULL,
		unvalidated INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_k ON runs(k);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := x.conn.Exec(schema)
	return err
}

const insertRun = ` INTO runs
	(id, name, created_at, particles, grid, k, coherence, boundary, integrator,
	 ticks, status, converged_at, max_density, peaks, ratio_median, near_phi,
	 unvalidated, error)
	VALUES (:id, :name, :created_at, :particles, :grid, :k, :coherence, :boundary, :integrator,
	 :ticks, :status, :converged_at, :max_density, :peaks, :ratio_median, :near_phi,
	 :unvalidated, :error)`

func rowFor(m *RunMetadata) IndexRow {
	return IndexRow{
		ID:          m.ID,
		Name:        m.Name,
		CreatedAt:   m.Timestamp.UTC(),
		Particles:   m.Params.N,
		Grid:        m.Params.G,
		K:           m.Params.K,
		Coherence:   m.Params.Coherence,
		Boundary:    m.Params.Boundary,
		Integrator:  m.Params.Integrator,
		Ticks:       m.Ticks,
		Status:      m.Status,
		ConvergedAt: m.ConvergedAt,
		MaxDensity:  m.MaxDensity,
		Peaks:       m.Peaks,
		RatioMedian: m.RatioMedian,
		NearPhi:     m.NearPhi,
		Unvalidated: m.Unvalidated,
		Error:       m.Error,
	}
}

// Put inserts or replaces the catalog row for m.
func (x *Index) Put(m *RunMetadata) error {
	_, err := x.conn.NamedExec("INSERT OR REPLACE"+insertRun, rowFor(m))
	if err != nil {
		return fmt.Errorf("index run %s: %w", m.ID, err)
	}
	return nil
}

// Rebuild replaces the whole catalog with runs, in one transaction.
func (x *Index) Rebuild(runs []RunMetadata) error {
	tx, err := x.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM runs"); err != nil {
		return err
	}
	for i := range runs {
		if _, err := tx.NamedExec("INSERT"+insertRun, rowFor(&runs[i])); err != nil {
			return fmt.Errorf("index run %s: %w", runs[i].ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (x *Index) Recent(limit int) ([]IndexRow, error) {
	var rows []IndexRow
	err := x.conn.Select(&rows, `SELECT * FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	return rows, err
}

// ByK returns the runs whose attraction coefficient lies within tol of k.
func (x *Index) ByK(k, tol float64) ([]IndexRow, error) {
	var rows []IndexRow
	err := x.conn.Select(&rows, `SELECT * FROM runs WHERE k BETWEEN ? AND ? ORDER BY created_at DESC`, k-tol, k+tol)
	return rows, err
}

func (x *Index) Get(id string) (*IndexRow, error) {
	var row IndexRow
	if err := x.conn.Get(&row, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

func (x *Index) Count() (int, error) {
	var n int
	err := x.conn.Get(&n, `SELECT COUNT(*) FROM runs`)
	return n, err
}
