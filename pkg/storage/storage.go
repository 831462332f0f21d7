package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tribalfarm/tfarm/pkg/cache"

	_ "modernc.org/sqlite"
)

// DefaultPriorityLoot is the residual loot above which a safe target is
// treated as a priority farm.
const DefaultPriorityLoot = 1000

type DB struct {
	sql *sql.DB

	// PriorityLoot is the residual loot threshold used by PriorityTargets.
	PriorityLoot int
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS attack_cache (
  key          TEXT PRIMARY KEY,
  data         TEXT NOT NULL,
  last_attack  INTEGER NOT NULL DEFAULT 0,
  updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS reports (
  id           INTEGER PRIMARY KEY,
  target_id    TEXT NOT NULL,
  kind         TEXT NOT NULL CHECK (kind IN ('scout','attack')),
  occurred_at  INTEGER NOT NULL,
  defenders    INTEGER NOT NULL DEFAULT 0 CHECK (defenders IN (0,1,2)),
  loot         TEXT
);
CREATE INDEX IF NOT EXISTS idx_reports_target ON reports(target_id, occurred_at);
CREATE TABLE IF NOT EXISTS cycles (
  id           INTEGER PRIMARY KEY,
  home         TEXT NOT NULL,
  started_at   INTEGER NOT NULL,
  finished_at  INTEGER NOT NULL,
  attacked     INTEGER NOT NULL DEFAULT 0,
  scouted      INTEGER NOT NULL DEFAULT 0,
  skipped      INTEGER NOT NULL DEFAULT 0,
  vetoed       INTEGER NOT NULL DEFAULT 0,
  failed       INTEGER NOT NULL DEFAULT 0,
  blind        INTEGER NOT NULL DEFAULT 0,
  aborted      INTEGER NOT NULL DEFAULT 0 CHECK (aborted IN (0,1)),
  reason       TEXT
);
CREATE INDEX IF NOT EXISTS idx_cycles_home ON cycles(home, started_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db, PriorityLoot: DefaultPriorityLoot}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Cycle is one persisted orchestrator outcome.
type Cycle struct {
	Home     string
	Started  time.Time
	Finished time.Time
	Attacked int
	Scouted  int
	Skipped  int
	Vetoed   int
	Failed   int
	Blind    int
	Aborted  bool
	Reason   string
}

func (d *DB) LogCycle(ctx context.Context, c Cycle) error {
	if c.Home == "" {
		return errors.New("cycle without home village")
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cycles(home, started_at, finished_at, attacked, scouted, skipped, vetoed, failed, blind, aborted, reason) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		c.Home, c.Started.Unix(), c.Finished.Unix(), c.Attacked, c.Scouted, c.Skipped, c.Vetoed, c.Failed, c.Blind, boolToInt(c.Aborted), nullIfEmpty(c.Reason))
	return err
}

// ListCycles returns the most recent cycles, newest first. An empty home lists all homes.
func (d *DB) ListCycles(ctx context.Context, home string, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE 1=1"
	args := []interface{}{}
	if home != "" {
		where += " AND home = ?"
		args = append(args, home)
	}
	args = append(args, limit)
	q := "SELECT home, started_at, finished_at, attacked, scouted, skipped, vetoed, failed, blind, aborted, reason FROM cycles " + where + " ORDER BY started_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var (
			c                 Cycle
			started, finished int64
			aborted           int
			reason            sql.NullString
		)
		if err := rows.Scan(&c.Home, &started, &finished, &c.Attacked, &c.Scouted, &c.Skipped, &c.Vetoed, &c.Failed, &c.Blind, &aborted, &reason); err != nil {
			return nil, err
		}
		c.Started = time.Unix(started, 0)
		c.Finished = time.Unix(finished, 0)
		c.Aborted = aborted == 1
		c.Reason = reason.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type HomeStats struct {
	Home     string
	Cycles   int
	Attacked int
	Scouted  int
	Skipped  int
	Vetoed   int
	Failed   int
}

func (d *DB) GetStats(ctx context.Context) ([]HomeStats, error) {
	query := `
		SELECT
			home,
			COUNT(*),
			COALESCE(SUM(attacked), 0),
			COALESCE(SUM(scouted), 0),
			COALESCE(SUM(skipped), 0),
			COALESCE(SUM(vetoed), 0),
			COALESCE(SUM(failed), 0)
		FROM
			cycles
		GROUP BY
			home
		ORDER BY
			home;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []HomeStats
	for rows.Next() {
		var s HomeStats
		if err := rows.Scan(&s.Home, &s.Cycles, &s.Attacked, &s.Scouted, &s.Skipped, &s.Vetoed, &s.Failed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// CacheSize returns the number of cached targets.
func (d *DB) CacheSize(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM attack_cache").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

var _ cache.Store = (*DB)(nil)

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
