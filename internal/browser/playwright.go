package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/selector"
)

const playwrightLaunchTimeout = 60 * time.Second

// PlaywrightDriver drives Chromium through the Playwright driver, which
// understands every selector dialect natively.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	cfg     config.BrowserConfig
	logger  *zap.Logger
}

var _ schemas.Driver = (*PlaywrightDriver)(nil)

// NewPlaywrightDriver starts the Playwright driver and opens one page. The
// browsers must already be installed (see `playwright install chromium`).
func NewPlaywrightDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*PlaywrightDriver, error) {
	cfg = withTimeouts(cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(&playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwrightLaunchOptions(cfg))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	bctx, err := browser.NewContext(playwrightContextOptions(cfg))
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(millis(cfg.ActionTimeout))
	page.SetDefaultNavigationTimeout(millis(cfg.NavigationTimeout))

	logger.Debug("Playwright session started", zap.String("browser_version", browser.Version()))
	return &PlaywrightDriver{pw: pw, browser: browser, page: page, cfg: cfg, logger: logger}, nil
}

func playwrightLaunchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{"--no-sandbox", "--disable-dev-shm-usage"}
	if cfg.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	for _, f := range chromeFlags(config.BrowserConfig{Args: cfg.Args}) {
		switch f.name {
		case "no-sandbox", "disable-dev-shm-usage", "headless":
			continue
		}
		if v, ok := f.value.(string); ok {
			args = append(args, fmt.Sprintf("--%s=%s", f.name, v))
		} else {
			args = append(args, "--"+f.name)
		}
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
		Timeout:  playwright.Float(millis(playwrightLaunchTimeout)),
	}
}

func playwrightContextOptions(cfg config.BrowserConfig) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts.Viewport = &playwright.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	}
	if cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(cfg.UserAgent)
	}
	return opts
}

// millis converts a duration to Playwright's millisecond floats.
func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

// budget shrinks timeout to the time left on ctx. Playwright calls are not
// context aware, so this is how caller deadlines reach them.
func budget(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}
	return timeout, nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	timeout, err := budget(ctx, d.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(millis(timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) CurrentURL(context.Context) (string, error) {
	return d.page.URL(), nil
}

func (d *PlaywrightDriver) HTMLSnapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Content()
}

func (d *PlaywrightDriver) Resolve(_ context.Context, sel string) (schemas.Element, error) {
	if _, err := selector.Parse(sel); err != nil {
		return nil, err
	}
	return &playwrightElement{locator: d.page.Locator(sel).First(), raw: sel}, nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, sel string) error {
	loc, timeout, err := d.locate(ctx, sel)
	if err != nil {
		return err
	}
	return d.translate(ctx, sel, loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(millis(timeout))}))
}

func (d *PlaywrightDriver) Fill(ctx context.Context, sel, value string) error {
	loc, timeout, err := d.locate(ctx, sel)
	if err != nil {
		return err
	}
	return d.translate(ctx, sel, loc.Fill(value, playwright.LocatorFillOptions{Timeout: playwright.Float(millis(timeout))}))
}

func (d *PlaywrightDriver) TextContent(ctx context.Context, sel string) (string, error) {
	loc, timeout, err := d.locate(ctx, sel)
	if err != nil {
		return "", err
	}
	text, err := loc.TextContent(playwright.LocatorTextContentOptions{Timeout: playwright.Float(millis(timeout))})
	return text, d.translate(ctx, sel, err)
}

func (d *PlaywrightDriver) locate(ctx context.Context, sel string) (playwright.Locator, time.Duration, error) {
	if _, err := selector.Parse(sel); err != nil {
		return nil, 0, err
	}
	timeout, err := budget(ctx, d.cfg.ActionTimeout)
	if err != nil {
		return nil, 0, err
	}
	return d.page.Locator(sel).First(), timeout, nil
}

func (d *PlaywrightDriver) translate(ctx context.Context, sel string, err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return notFound(ctx, sel, err)
	}
	return err
}

func (d *PlaywrightDriver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

type playwrightElement struct {
	locator playwright.Locator
	raw     string
}

func (e *playwrightElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	timeout, err := budget(ctx, timeout)
	if err != nil {
		return notFound(ctx, e.raw, err)
	}
	if err := e.locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(timeout)),
	}); err != nil {
		return notFound(ctx, e.raw, err)
	}
	return nil
}
