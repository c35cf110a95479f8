// Package journal persists alert episodes to SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/teslashibe/go-intent/pkg/alert"
)

// ErrUnknownAlert is returned when an exit event has no matching entry.
var ErrUnknownAlert = errors.New("journal: no open alert with that id")

// Config locates the journal database.
type Config struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true"`
}

// DefaultConfig keeps the journal next to the recordings.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Path:    "logs/alerts.db",
	}
}

// Entry is one alert episode. Open episodes have a zero EndedAt.
type Entry struct {
	ID        string        `json:"id"`
	Seq       int           `json:"seq"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	EntryRisk int           `json:"entry_risk"`
	PeakRisk  int           `json:"peak_risk"`
}

// Open reports whether the episode is still active.
func (e Entry) Open() bool {
	return e.EndedAt.IsZero()
}

// Journal is an SQLite-backed alert log.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Journal, error) {
	dsn := path
	dbPath := path
	if idx := strings.Index(path, "?"); idx != -1 {
		dbPath = path[:idx]
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create %s: %w", dir, err)
		}
	}

	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create tables: %w", err)
	}

	return &Journal{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
    CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY,
        seq INTEGER NOT NULL,
        started_at INTEGER NOT NULL,
        ended_at INTEGER,
        duration_s REAL,
        entry_risk INTEGER NOT NULL,
        peak_risk INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_alerts_started_at ON alerts(started_at);
    `)
	return err
}

// Record stores an alert transition. Entered inserts an open episode and
// Exited closes it.
func (j *Journal) Record(ctx context.Context, ev alert.Event) error {
	switch ev.Kind {
	case alert.Entered:
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO alerts (id, seq, started_at, entry_risk, peak_risk) VALUES (?, ?, ?, ?, ?)`,
			ev.ID, ev.Count, ev.StartedAt.UnixMilli(), ev.Risk, ev.PeakRisk,
		)
		if err != nil {
			return fmt.Errorf("journal: insert %s: %w", ev.ID, err)
		}
		return nil

	case alert.Exited:
		res, err := j.db.ExecContext(ctx,
			`UPDATE alerts SET ended_at = ?, duration_s = ?, peak_risk = ? WHERE id = ? AND ended_at IS NULL`,
			ev.EndedAt.UnixMilli(), ev.Duration.Seconds(), ev.PeakRisk, ev.ID,
		)
		if err != nil {
			return fmt.Errorf("journal: close %s: %w", ev.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownAlert, ev.ID)
		}
		return nil
	}
	return nil
}

// Recent returns up to limit episodes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, seq, started_at, ended_at, duration_s, entry_risk, peak_risk
         FROM alerts ORDER BY started_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			started  int64
			ended    sql.NullInt64
			duration sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Seq, &started, &ended, &duration, &e.EntryRisk, &e.PeakRisk); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.StartedAt = time.UnixMilli(started).UTC()
		if ended.Valid {
			e.EndedAt = time.UnixMilli(ended.Int64).UTC()
		}
		if duration.Valid {
			e.Duration = time.Duration(duration.Float64 * float64(time.Second))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored episodes.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
