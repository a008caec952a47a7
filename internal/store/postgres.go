package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateHistory = `
CREATE TABLE IF NOT EXISTS selector_history (
	id        BIGSERIAL PRIMARY KEY,
	original  TEXT NOT NULL,
	healed    TEXT NOT NULL,
	healed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (original, healed)
)`
	sqlSelectHistory = `SELECT original, healed FROM selector_history ORDER BY original, id DESC`
	sqlInsertHistory = `INSERT INTO selector_history (original, healed) VALUES ($1, $2) ON CONFLICT (original, healed) DO NOTHING`
)

// Postgres shares history between machines, e.g. a fleet of CI runners.
type Postgres struct {
	pool   DBPool
	log    *zap.Logger
	closer func()
}

// NewPostgres verifies the connection and ensures the table exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateHistory); err != nil {
		return nil, fmt.Errorf("failed to create selector_history table: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("store.postgres")}, nil
}

func (p *Postgres) Name() string { return "postgres" }

// Load reads every mapping, newest replacement first.
func (p *Postgres) Load(ctx context.Context) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, sqlSelectHistory)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read selector history: %w", err)
	}
	return out, nil
}

// Persist inserts the pair; re-recording an existing pair is a no-op.
func (p *Postgres) Persist(ctx context.Context, original, healed string, _ map[string][]string) error {
	tag, err := p.pool.Exec(ctx, sqlInsertHistory, original, healed)
	if err != nil {
		return fmt.Errorf("failed to persist selector history: %w", err)
	}
	p.log.Debug("Persisted selector history",
		zap.String("original", original),
		zap.String("healed", healed),
		zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (p *Postgres) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}
