package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS selector_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	original  TEXT NOT NULL,
	healed    TEXT NOT NULL,
	healed_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (original, healed)
)`

// SQLite keeps history in a single-file database. Insertion order gives
// recency, so a replacement's position never changes once recorded.
type SQLite struct {
	db  *sql.DB
	dsn string
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite history: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise sqlite history schema: %w", err)
	}
	return &SQLite{db: db, dsn: path, log: logger.Named("store.sqlite")}, nil
}

func (s *SQLite) Name() string { return "sqlite:" + s.dsn }

// Load reads every mapping, newest replacement first.
func (s *SQLite) Load(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT original, healed FROM selector_history ORDER BY original, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query selector history: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var original, healed string
		if err := rows.Scan(&original, &healed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out[original] = append(out[original], healed)
	}
	return out, rows.Err()
}

// Persist inserts the pair; re-recording an existing pair is a no-op.
func (s *SQLite) Persist(ctx context.Context, original, healed string, _ map[string][]string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO selector_history (original, healed) VALUES (?, ?)`, original, healed); err != nil {
		return fmt.Errorf("failed to persist selector history: %w", err)
	}
	s.log.Debug("Persisted selector history", zap.String("original", original), zap.String("healed", healed))
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
