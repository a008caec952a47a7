package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/selector"
)

func flagValue(flags []chromeFlag, name string) (interface{}, bool) {
	for _, f := range flags {
		if f.name == name {
			return f.value, true
		}
	}
	return nil, false
}

func TestChromeFlags(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{Headless: true})
		v, ok := flagValue(flags, "headless")
		require.True(t, ok)
		assert.Equal(t, true, v)
		_, ok = flagValue(flags, "no-sandbox")
		assert.True(t, ok)
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		v, _ := flagValue(chromeFlags(config.BrowserConfig{Headless: false}), "headless")
		assert.Equal(t, false, v)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		_, ok := flagValue(flags, "ignore-certificate-errors")
		assert.True(t, ok)
		_, ok = flagValue(flags, "allow-insecure-localhost")
		assert.True(t, ok)
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{Args: []string{"--custom-arg1", "lang=en-US", "  ", "--proxy-server=http://127.0.0.1:8080"}})
		v, ok := flagValue(flags, "custom-arg1")
		require.True(t, ok)
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "lang")
		assert.Equal(t, "en-US", v)
		v, _ = flagValue(flags, "proxy-server")
		assert.Equal(t, "http://127.0.0.1:8080", v)
	})

	t.Run("WithViewportAndUserAgent", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{ViewportWidth: 1920, ViewportHeight: 1080, UserAgent: "suture"})
		v, _ := flagValue(flags, "window-size")
		assert.Equal(t, "1920,1080", v)
		v, _ = flagValue(flags, "user-agent")
		assert.Equal(t, "suture", v)
	})

	assert.Greater(t, len(execAllocatorOptions(config.BrowserConfig{})), len(chromeFlags(config.BrowserConfig{})))
}

func TestEmulationTasks(t *testing.T) {
	assert.Empty(t, emulationTasks(config.BrowserConfig{}))

	tasks := emulationTasks(config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 720, UserAgent: "suture"})
	require.Len(t, tasks, 2)
	metrics, ok := tasks[0].(*emulation.SetDeviceMetricsOverrideParams)
	require.True(t, ok, "got %T", tasks[0])
	assert.EqualValues(t, 1280, metrics.Width)
	assert.EqualValues(t, 720, metrics.Height)
	ua, ok := tasks[1].(*emulation.SetUserAgentOverrideParams)
	require.True(t, ok, "got %T", tasks[1])
	assert.Equal(t, "suture", ua.UserAgent)
}

func TestPlaywrightOptions(t *testing.T) {
	cfg := config.BrowserConfig{
		Headless:        true,
		DisableGPU:      true,
		IgnoreTLSErrors: true,
		Args:            []string{"--no-sandbox", "lang=en-US", "mute-audio"},
		ViewportWidth:   1280,
		ViewportHeight:  720,
		UserAgent:       "suture",
	}

	launch := playwrightLaunchOptions(cfg)
	require.NotNil(t, launch.Headless)
	assert.True(t, *launch.Headless)
	assert.Equal(t, []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu", "--lang=en-US", "--mute-audio"}, launch.Args)

	ctxOpts := playwrightContextOptions(cfg)
	require.NotNil(t, ctxOpts.Viewport)
	assert.Equal(t, 1280, ctxOpts.Viewport.Width)
	assert.Equal(t, "suture", *ctxOpts.UserAgent)
	assert.True(t, *ctxOpts.IgnoreHttpsErrors)
}

func TestBudget(t *testing.T) {
	got, err := budget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, got)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got, err = budget(ctx, time.Hour)
	require.NoError(t, err)
	assert.LessOrEqual(t, got, 50*time.Millisecond)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = budget(canceled, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFinderJS(t *testing.T) {
	cases := map[string]string{
		`[aria-label*="search"]`:   `document.querySelectorAll("[aria-label*=\"search\"]")`,
		`//button`:                 `document.evaluate("//button"`,
		`text="Shop Now"`:          `=== "Shop Now"`,
		`text=shop`:                `.toLowerCase().includes("shop")`,
		`text=/shop\s+now/i`:       `new RegExp("shop\\s+now", "i")`,
		`button:has-text("Shop")`: `document.querySelectorAll("button")`,
	}
	for sel, want := range cases {
		q, err := selector.Parse(sel)
		require.NoError(t, err, sel)
		js, err := finderJS(q)
		require.NoError(t, err, sel)
		assert.Contains(t, js, want, sel)
		assert.Contains(t, js, "visible(el)", sel)
	}
}

func TestRodLocator(t *testing.T) {
	tests := []struct {
		raw       string
		wantXPath string
		wantJS    bool
	}{
		{`button.gn-search`, "", false},
		{`//nav/a`, `//nav/a`, false},
		{`text="Shop Now"`, `//*[text()[normalize-space(.)="Shop Now"]]`, false},
		{`button:has-text("Shop")`, `//button[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), "shop")]`, false},
		{`text=/shop\s+now/i`, "", true},
		{`nav > a:has-text("Vehicles")`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := selector.Parse(tt.raw)
			require.NoError(t, err)
			xpath, finder, err := rodLocator(q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantXPath, xpath)
			assert.Equal(t, tt.wantJS, finder != "")
		})
	}
}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type key struct{}
	session := context.WithValue(context.Background(), key{}, "tab")

	op, cancelOp := context.WithCancel(context.Background())
	combined, cancel := CombineContext(session, op)
	defer cancel()

	assert.Equal(t, "tab", combined.Value(key{}))
	cancelOp()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with the operational context")
	}
}

func TestNotFound(t *testing.T) {
	err := notFound(context.Background(), "#x", errors.New("timeout"))
	assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	assert.Contains(t, err.Error(), "#x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, notFound(ctx, "#x", nil), context.Canceled)
}
