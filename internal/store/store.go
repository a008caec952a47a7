// Package store persists the selector history: the mapping from a selector
// that stopped resolving to the replacements that healed it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/config"
)

// ErrCorrupt marks persisted history that exists but cannot be decoded.
var ErrCorrupt = errors.New("selector history is corrupt")

// Backend is the persistence contract for selector history. Mappings list
// replacements most-recent-success first.
type Backend interface {
	// Load returns the full persisted mapping. A missing store yields an empty
	// mapping and no error.
	Load(ctx context.Context) (map[string][]string, error)
	// Persist records that healed replaced original. snapshot is the complete
	// in-memory mapping after the change, for backends that rewrite wholesale.
	Persist(ctx context.Context, original, healed string, snapshot map[string][]string) error
	// Name identifies the backend in logs.
	Name() string
	Close() error
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.HistoryBackendJSON, "":
		return NewJSONFile(cfg.Path, logger), nil
	case config.HistoryBackendSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case config.HistoryBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pg, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pg.closer = pool.Close
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
