//go:build !js

package report

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"slitdrift/pkg/slitdrift"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const utcLayout = "2006-01-02T15:04:05.000"

// Store is the sqlite database of aggregation runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, logger: logger}
	if err := s.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MigrateUp runs all pending migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it closes the shared database handle.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the schema version, 0 before any migration.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	return m, nil
}

// migrateLogger implements migrate.Logger on slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// CreateRun records a new run of obs and returns it with a fresh id.
func (s *Store) CreateRun(ctx context.Context, obs slitdrift.Observation, cfg slitdrift.Config) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Mask:      obs.Mask,
		Night:     obs.Date,
		Band:      obs.Band,
		Dither:    obs.Dither,
		Config:    cfg.String(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mask, night, band, dither, config, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mask, run.Night, run.Band, run.Dither, run.Config, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, mask, night, band, dither, config, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Mask, &r.Night, &r.Band, &r.Dither, &r.Config, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Insert stores m, replacing an earlier measurement of the same frame.
func (s *Store) Insert(ctx context.Context, m Measurement) error {
	utc := sql.NullString{}
	if !m.UTC.IsZero() {
		utc = sql.NullString{String: m.UTC.Format(utcLayout), Valid: true}
	}
	errText := sql.NullString{String: m.Error, Valid: m.Error != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO measurements (
			run_id, kind, nod, frame, frame_number, utc, airmass, elevation, position_angle,
			center, center_err, amplitude, width, offset_arcsec, seeing_arcsec, x_shift, y_shift, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Kind, m.Nod, m.Frame, m.Number, utc,
		nullFloat(m.Airmass), nullFloat(m.Elevation), nullFloat(m.PositionAngle),
		nullFloat(m.Center), nullFloat(m.CenterErr), nullFloat(m.Amplitude), nullFloat(m.Width),
		nullFloat(m.Offset), nullFloat(m.Seeing), nullFloat(m.XShift), nullFloat(m.YShift),
		errText,
	)
	if err != nil {
		return fmt.Errorf("inserting measurement of %s: %w", m.Frame, err)
	}
	return nil
}

// Measurements returns the measurements of a run in frame order. An empty
// kind returns both kinds.
func (s *Store) Measurements(ctx context.Context, runID, kind string) ([]Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, kind, nod, frame, frame_number, utc, airmass, elevation, position_angle,
			center, center_err, amplitude, width, offset_arcsec, seeing_arcsec, x_shift, y_shift, error
		 FROM measurements
		 WHERE run_id = ? AND (? = '' OR kind = ?)
		 ORDER BY kind, frame_number, frame`,
		runID, kind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		var utc, errText sql.NullString
		var f [11]sql.NullFloat64
		if err := rows.Scan(&m.RunID, &m.Kind, &m.Nod, &m.Frame, &m.Number, &utc,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &f[9], &f[10], &errText); err != nil {
			return nil, err
		}
		if utc.Valid {
			m.UTC, _ = time.Parse(utcLayout, utc.String)
		}
		dst := []*float64{&m.Airmass, &m.Elevation, &m.PositionAngle, &m.Center, &m.CenterErr,
			&m.Amplitude, &m.Width, &m.Offset, &m.Seeing, &m.XShift, &m.YShift}
		for i, p := range dst {
			*p = math.NaN()
			if f[i].Valid {
				*p = f[i].Float64
			}
		}
		m.Error = errText.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// Recorder appends the points of one run to the store.
type Recorder struct {
	store *Store
	ctx   context.Context
	runID string
}

// Recorder returns a slitdrift.Table writing into run runID.
func (s *Store) Recorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{store: s, ctx: ctx, runID: runID}
}

func (r *Recorder) Append(kind slitdrift.Kind, p slitdrift.DriftPoint) error {
	return r.store.Insert(r.ctx, MeasurementFromPoint(r.runID, kind, p))
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
