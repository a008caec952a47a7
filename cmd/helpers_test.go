package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
)

const storefront = `<html><body>
  <nav><a id="vehicles" href="/vehicles">Vehicles</a></nav>
  <button aria-label="Search toyota.com">Search</button>
  <button>Shop Now Online</button>
</body></html>`

// sandbox points the history file at a temp dir, removes any model keys from
// the environment and returns the history path and the storefront document.
func sandbox(t *testing.T) (historyPath, htmlFile string) {
	t.Helper()
	dir := t.TempDir()

	historyPath = filepath.Join(dir, "selectors.json")
	t.Setenv("SUTURE_HISTORY_PATH", historyPath)
	t.Setenv("SUTURE_LOGGER_LEVEL", "error")
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}

	prevEnv := envFile
	envFile = filepath.Join(dir, ".env")
	t.Cleanup(func() { envFile = prevEnv })

	htmlFile = filepath.Join(dir, "storefront.html")
	require.NoError(t, os.WriteFile(htmlFile, []byte(storefront), 0o644))
	return historyPath, htmlFile
}

// executeCommand runs a fresh command tree and captures what it prints.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// testConfig is the default configuration with the history kept in a temp dir.
func testConfig(t *testing.T, historyPath string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.HistoryCfg.Path = historyPath
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
