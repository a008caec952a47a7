package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture/internal/config"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func TestJSONFile(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is empty history", func(t *testing.T) {
		j := NewJSONFile(filepath.Join(t.TempDir(), "nope", "selectors.json"), zaptest.NewLogger(t))
		m, err := j.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, m)
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test_data", "selectors.json")
		j := NewJSONFile(path, zaptest.NewLogger(t))
		snapshot := map[string][]string{
			"#old-search-box": {`[aria-label*="search"]`},
			"text=Shop":       {"text=/shop/i", `:has-text("Shop")`},
		}
		require.NoError(t, j.Persist(ctx, "text=Shop", "text=/shop/i", snapshot))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "\n  \"#old-search-box\": [", "history file is indented by two spaces")

		loaded, err := j.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, snapshot, loaded)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "selectors.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := NewJSONFile(path, zaptest.NewLogger(t)).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "selectors.json")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		m, err := NewJSONFile(path, zaptest.NewLogger(t)).Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, m)
	})
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Persist(ctx, "#a", "#b", nil))
	require.NoError(t, s.Persist(ctx, "#a", "#c", nil))
	require.NoError(t, s.Persist(ctx, "#a", "#b", nil), "duplicate pairs are ignored")
	require.NoError(t, s.Persist(ctx, ".x", ".y", nil))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	m, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"#a": {"#c", "#b"},
		".x": {".y"},
	}, m)
	assert.Equal(t, "sqlite:"+path, reopened.Name())
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()

	newMock := func(t *testing.T) pgxmock.PgxPoolIface {
		t.Helper()
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		t.Cleanup(mockPool.Close)
		return mockPool
	}

	t.Run("ping failure", func(t *testing.T) {
		mockPool := newMock(t)
		pingErr := errors.New("connection refused")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err := NewPostgres(ctx, mockPool, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("load and persist", func(t *testing.T) {
		mockPool := newMock(t)
		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateHistory)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectHistory)).
			WillReturnRows(pgxmock.NewRows([]string{"original", "healed"}).
				AddRow("#a", "#c").
				AddRow("#a", "#b").
				AddRow(".x", ".y"))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs("#old-search-box", `[aria-label*="search"]`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		pg, err := NewPostgres(ctx, mockPool, zaptest.NewLogger(t))
		require.NoError(t, err)

		m, err := pg.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{"#a": {"#c", "#b"}, ".x": {".y"}}, m)

		require.NoError(t, pg.Persist(ctx, "#old-search-box", `[aria-label*="search"]`, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		mockPool := newMock(t)
		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateHistory)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectHistory)).WillReturnError(errors.New("relation missing"))

		pg, err := NewPostgres(ctx, mockPool, zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = pg.Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query selector history")
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	b, err := New(ctx, config.HistoryConfig{Backend: config.HistoryBackendJSON, Path: "x.json"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &JSONFile{}, b)

	b, err = New(ctx, config.HistoryConfig{Backend: config.HistoryBackendSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	require.NoError(t, b.Close())

	_, err = New(ctx, config.HistoryConfig{Backend: "etcd"}, logger)
	assert.Error(t, err)
}
