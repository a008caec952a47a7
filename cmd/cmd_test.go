package cmd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/discovery"
	"github.com/xkilldash9x/suture/internal/heal"
	"github.com/xkilldash9x/suture/internal/mocks"
)

func readHistory(t *testing.T, path string) map[string][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string][]string
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "suture version "+Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "suture version "+Version+"\n", out)
}

func TestHeal_ResolvesThenRemembers(t *testing.T) {
	historyPath, htmlFile := sandbox(t)

	out, err := executeCommand(t, "heal", "#old-search-box", "--html", htmlFile, "--output", "json", "--timeout", "20ms")
	require.NoError(t, err, out)

	var first schemas.ResolutionOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &first), out)
	assert.Equal(t, schemas.StateResolved, first.State)
	assert.Equal(t, `[aria-label*="search" i]`, first.Resolved)
	assert.Equal(t, schemas.StrategySemantic, first.Strategy)
	assert.Equal(t, map[string][]string{"#old-search-box": {`[aria-label*="search" i]`}}, readHistory(t, historyPath))

	// A new process starts from the persisted history.
	out, err = executeCommand(t, "heal", "#old-search-box", "--html", htmlFile, "--output", "json")
	require.NoError(t, err, out)

	var second schemas.ResolutionOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &second), out)
	assert.Equal(t, schemas.StrategyHistory, second.Strategy)
	assert.Equal(t, `[aria-label*="search" i]`, second.Resolved)
	assert.Equal(t, 1, second.Attempts)
}

func TestHeal_TextOutput(t *testing.T) {
	_, htmlFile := sandbox(t)

	out, err := executeCommand(t, "heal", "#old-search-box", "--html", htmlFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#old-search-box -> [aria-label*=\"search\" i]\n"), out)
	assert.Contains(t, out, "strategy: semantic")
	assert.Contains(t, out, "history")
}

func TestRunHeal_UnopenableHistoryStillHeals(t *testing.T) {
	_, htmlFile := sandbox(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	writeFile(t, blocker, "not a directory")

	cfg := testConfig(t, filepath.Join(blocker, "sub", "h.db"))
	cfg.HistoryCfg.Backend = config.HistoryBackendSQLite

	var out bytes.Buffer
	err := runHeal(context.Background(), &out, cfg, "#old-search-box",
		healOptions{target: target{HTMLFile: htmlFile}, output: outputJSON}, zaptest.NewLogger(t))
	require.NoError(t, err, out.String())

	var outcome schemas.ResolutionOutcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome), out.String())
	assert.Equal(t, schemas.StateResolved, outcome.State)
	assert.Equal(t, schemas.StrategySemantic, outcome.Strategy)
	assert.NoDirExists(t, filepath.Join(blocker, "sub"))
}

func TestOpenSession_ReadsConfigSections(t *testing.T) {
	historyPath, htmlFile := sandbox(t)
	defaults := testConfig(t, historyPath)

	cfg := new(mocks.MockConfig)
	cfg.On("History").Return(defaults.History())
	cfg.On("Agent").Return(defaults.Agent())
	cfg.On("Browser").Return(defaults.Browser())
	cfg.On("Site").Return(defaults.Site())
	cfg.On("Healing").Return(defaults.Healing())

	ctx := context.Background()
	s, err := openSession(ctx, cfg, target{HTMLFile: htmlFile}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.llm)
	outcome, err := s.healer.Resolve(ctx, "#old-search-box", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, outcome.IsResolved())

	cfg.AssertCalled(t, "History")
	cfg.AssertCalled(t, "Healing")
	cfg.AssertNotCalled(t, "Server")
}

func TestHeal_Exhausted(t *testing.T) {
	historyPath, htmlFile := sandbox(t)

	out, err := executeCommand(t, "heal", "#zzqx-widget", "--html", htmlFile, "--strategies", "history,semantic")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrElementNotFound), err)
	assert.Contains(t, out, "#zzqx-widget: exhausted after")
	assert.NoFileExists(t, historyPath)
}

func TestHeal_Validation(t *testing.T) {
	_, htmlFile := sandbox(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"MissingSelector", []string{"heal", "--html", htmlFile}, "accepts 1 arg(s), received 0"},
		{"UnknownOutput", []string{"heal", "#a", "--html", htmlFile, "-o", "xml"}, `unsupported output format "xml"`},
		{"UnknownStrategy", []string{"heal", "#a", "--html", htmlFile, "-s", "telepathy"}, `unknown strategy "telepathy"`},
		{"MissingDocument", []string{"heal", "#a", "--html", filepath.Join(t.TempDir(), "nope.html")}, "failed to read HTML document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error()+out, tt.want)
		})
	}
}

func TestConfigFile(t *testing.T) {
	_, htmlFile := sandbox(t)
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "from-config.json")
	// An empty variable counts as unset, so the file's path applies.
	t.Setenv("SUTURE_HISTORY_PATH", "")

	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, `
healing:
  strategies: [semantic]
history:
  path: `+historyPath+`
`)

	out, err := executeCommand(t, "--config", configFile, "heal", "#old-search-box", "--html", htmlFile, "-o", "json")
	require.NoError(t, err, out)

	var outcome schemas.ResolutionOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	require.Len(t, outcome.Reports, 1)
	assert.Equal(t, schemas.StrategySemantic, outcome.Reports[0].Strategy)
	assert.FileExists(t, historyPath)
}

func TestConfigFile_Invalid(t *testing.T) {
	_, htmlFile := sandbox(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configFile, "browser:\n  engine: netscape\n")

	_, err := executeCommand(t, "-c", configFile, "heal", "#a", "--html", htmlFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load or validate config")
}

func TestEnvFile(t *testing.T) {
	_, htmlFile := sandbox(t)
	writeFile(t, envFile, "SUTURE_HEALING_STRATEGIES=position\n")
	t.Cleanup(func() { os.Unsetenv("SUTURE_HEALING_STRATEGIES") })

	out, err := executeCommand(t, "heal", "#old-search-box", "--html", htmlFile, "-o", "json")
	require.NoError(t, err, out)

	var outcome schemas.ResolutionOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, schemas.StrategyPosition, outcome.Strategy)
}

func TestDiscover(t *testing.T) {
	_, htmlFile := sandbox(t)
	catalogPath := filepath.Join(t.TempDir(), "catalog.json")

	out, err := executeCommand(t, "discover", "--html", htmlFile, "--catalog", catalogPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "3 elements discovered")
	assert.Contains(t, out, "navigation:")

	catalog, err := discovery.LoadCatalog(catalogPath)
	require.NoError(t, err)
	sel, ok := catalog.Lookup(discovery.CategoryNavigation, "vehicles")
	assert.True(t, ok)
	assert.Equal(t, "#vehicles", sel)
	require.Len(t, catalog.Runs, 1)
	assert.Equal(t, "https://www.toyota.com", catalog.Runs[0].PageURL)
}

func TestDiscover_RequiresDocument(t *testing.T) {
	sandbox(t)
	_, err := executeCommand(t, "discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of the flags in the group [url html] is required")
}

func TestHistoryCmd(t *testing.T) {
	historyPath, _ := sandbox(t)

	out, err := executeCommand(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "no healed selectors\n", out)

	writeFile(t, historyPath, `{"#old-search-box": ["[aria-label*=\"search\"]", "input[type=\"search\"]"]}`)

	out, err = executeCommand(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "#old-search-box\n  1. [aria-label*=\"search\"]\n  2. input[type=\"search\"]\n", out)

	out, err = executeCommand(t, "history", "show", "#old-search-box", "-o", "json")
	require.NoError(t, err)
	var shown map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, []string{`[aria-label*="search"]`, `input[type="search"]`}, shown["#old-search-box"])

	_, err = executeCommand(t, "history", "show", "#never-healed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no history for "#never-healed"`)
}

func TestSuggest_NoModel(t *testing.T) {
	sandbox(t)
	_, err := executeCommand(t, "suggest", "the", "search", "button")
	require.Error(t, err)
	assert.True(t, errors.Is(err, heal.ErrNoLLMClient), err)
}

func TestRunSuggest(t *testing.T) {
	logger := zaptest.NewLogger(t)
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.Contains(req.UserPrompt, "the search button")
	})).Return(`[{"selector": "[aria-label*=\"search\"]", "strategy": "aria", "reliability": "High"}]`, nil).Once()

	var out bytes.Buffer
	require.NoError(t, runSuggest(context.Background(), &out, client, "the search button", outputText, logger))
	assert.Equal(t, "high   aria         [aria-label*=\"search\"]\n", out.String())
	client.AssertExpectations(t)
}

func TestRunServe(t *testing.T) {
	historyPath, htmlFile := sandbox(t)
	cfg := testConfig(t, historyPath)
	logger := zaptest.NewLogger(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, serveOptions{target: target{HTMLFile: htmlFile}, addr: addr}, logger)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+addr+"/api/v1/resolve", "application/json",
			strings.NewReader(`{"selector": "#old-search-box", "timeout_ms": 20}`))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, map[string][]string{"#old-search-box": {`[aria-label*="search" i]`}}, readHistory(t, historyPath))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
