// Package baseline persists last-synced tree snapshots in a sqlite journal.
// The journal is the third leg of reconciliation: without it every file on
// exactly one side would be ambiguous between "added here" and "deleted there".
package baseline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentic-tools/agentsync/internal/db"
	"github.com/agentic-tools/agentsync/internal/sync"
	"github.com/agentic-tools/agentsync/internal/utils"
)

const baselineFileName = "baselines.db"

const schema = `
CREATE TABLE IF NOT EXISTS baselines (
	tool     TEXT NOT NULL,
	side     TEXT NOT NULL,
	path     TEXT NOT NULL,
	checksum TEXT NOT NULL,
	size     INTEGER NOT NULL,
	mtime    TEXT NOT NULL,
	PRIMARY KEY (tool, side, path)
);
CREATE INDEX IF NOT EXISTS idx_baselines_tool_side ON baselines(tool, side);
CREATE TABLE IF NOT EXISTS baseline_runs (
	tool     TEXT NOT NULL,
	side     TEXT NOT NULL,
	saved_at TEXT NOT NULL,
	PRIMARY KEY (tool, side)
);
`

type baselineRow struct {
	Tool     string `db:"tool"`
	Side     string `db:"side"`
	Path     string `db:"path"`
	Checksum string `db:"checksum"`
	Size     int64  `db:"size"`
	Mtime    string `db:"mtime"`
}

// Store implements sync.BaselineStore on sqlite.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the baseline database under stateDir.
func Open(stateDir string) (*Store, error) {
	if err := utils.EnsureDir(stateDir); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	conn, err := db.NewSqliteDB(db.WithPath(filepath.Join(stateDir, baselineFileName)))
	if err != nil {
		return nil, fmt.Errorf("open baseline db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply baseline schema: %w", err)
	}
	return &Store{db: conn}, nil
}

// OpenInMemory is for tests.
func OpenInMemory() (*Store, error) {
	conn, err := db.NewSqliteDB(db.WithPath(":memory:"))
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the recorded snapshot for one tool and side, or nil when no
// baseline has ever been saved for that pair. A saved empty tree loads as an
// empty (non-nil) snapshot, so first runs stay distinguishable from runs that
// last saw nothing.
func (s *Store) Load(tool string, side sync.Side) (sync.TreeSnapshot, error) {
	var rows []baselineRow
	err := s.db.Select(&rows,
		`SELECT tool, side, path, checksum, size, mtime FROM baselines WHERE tool = ? AND side = ? ORDER BY path`,
		tool, string(side))
	if err != nil {
		return nil, fmt.Errorf("load baseline %s/%s: %w", tool, side, err)
	}
	if len(rows) == 0 {
		var saved int
		err := s.db.Get(&saved,
			`SELECT COUNT(*) FROM baseline_runs WHERE tool = ? AND side = ?`, tool, string(side))
		if err != nil {
			return nil, fmt.Errorf("load baseline %s/%s: %w", tool, side, err)
		}
		if saved == 0 {
			return nil, nil
		}
		return sync.TreeSnapshot{}, nil
	}

	snapshot := make(sync.TreeSnapshot, len(rows))
	for _, row := range rows {
		mtime, err := time.Parse(time.RFC3339Nano, row.Mtime)
		if err != nil {
			return nil, fmt.Errorf("baseline %s/%s has bad mtime for %s: %w", tool, side, row.Path, err)
		}
		snapshot[row.Path] = &sync.FileFingerprint{
			Path:     row.Path,
			Checksum: row.Checksum,
			Size:     row.Size,
			ModTime:  mtime,
		}
	}
	return snapshot, nil
}

// Save replaces the baseline for one tool and side in a single transaction,
// so readers never observe a half-written snapshot.
func (s *Store) Save(tool string, side sync.Side, snapshot sync.TreeSnapshot) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin baseline save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM baselines WHERE tool = ? AND side = ?`, tool, string(side)); err != nil {
		return fmt.Errorf("clear baseline %s/%s: %w", tool, side, err)
	}

	stmt, err := tx.Preparex(
		`INSERT INTO baselines (tool, side, path, checksum, size, mtime) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare baseline insert: %w", err)
	}
	defer stmt.Close()

	for path, print := range snapshot {
		_, err := stmt.Exec(tool, string(side), path, print.Checksum, print.Size,
			print.ModTime.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert baseline row %s: %w", path, err)
		}
	}

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO baseline_runs (tool, side, saved_at) VALUES (?, ?, ?)`,
		tool, string(side), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record baseline save %s/%s: %w", tool, side, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit baseline save: %w", err)
	}
	return nil
}

// Forget drops all baselines for a tool, forcing the next run to treat every
// file as newly added.
func (s *Store) Forget(tool string) error {
	if _, err := s.db.Exec(`DELETE FROM baselines WHERE tool = ?`, tool); err != nil {
		return fmt.Errorf("forget baselines for %s: %w", tool, err)
	}
	if _, err := s.db.Exec(`DELETE FROM baseline_runs WHERE tool = ?`, tool); err != nil {
		return fmt.Errorf("forget baselines for %s: %w", tool, err)
	}
	return nil
}
