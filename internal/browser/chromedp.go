package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/selector"
)

// ChromeDriver drives a local Chrome over the DevTools protocol.
type ChromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
}

var _ schemas.Driver = (*ChromeDriver)(nil)

// NewChromeDriver launches Chrome and opens a single tab.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeDriver, error) {
	cfg = withTimeouts(cfg)
	// The browser outlives the context used to start it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execAllocatorOptions(cfg)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	startCtx, startCancel := CombineContext(tabCtx, ctx)
	defer startCancel()
	if err := chromedp.Run(startCtx, emulationTasks(cfg)); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	logger.Debug("Chrome session started")
	return &ChromeDriver{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, cfg: cfg, logger: logger}, nil
}

// emulationTasks applies the configured viewport and user agent to the tab,
// so layout-dependent selectors see the same page the tests do.
func emulationTasks(cfg config.BrowserConfig) chromedp.Tasks {
	var tasks chromedp.Tasks
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight), 1.0, false))
	}
	if cfg.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	return tasks
}

// chromeFlag is an allocator flag before conversion to a chromedp option.
type chromeFlag struct {
	name  string
	value interface{}
}

// chromeFlags translates the browser config into Chrome command-line flags.
// Names are given without the leading dashes, which chromedp adds itself.
func chromeFlags(cfg config.BrowserConfig) []chromeFlag {
	flags := []chromeFlag{
		{"no-sandbox", true},
		{"disable-dev-shm-usage", true},
	}
	if cfg.Headless {
		flags = append(flags, chromeFlag{"headless", true}, chromeFlag{"hide-scrollbars", true}, chromeFlag{"mute-audio", true})
	} else {
		flags = append(flags, chromeFlag{"headless", false})
	}
	if cfg.DisableGPU {
		flags = append(flags, chromeFlag{"disable-gpu", true})
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags, chromeFlag{"ignore-certificate-errors", true}, chromeFlag{"allow-insecure-localhost", true})
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		flags = append(flags, chromeFlag{"window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)})
	}
	if cfg.UserAgent != "" {
		flags = append(flags, chromeFlag{"user-agent", cfg.UserAgent})
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, chromeFlag{key, value})
			continue
		}
		flags = append(flags, chromeFlag{arg, true})
	}
	return flags
}

func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}

// run executes actions in the tab, bounded by both ctx and timeout.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, timeout)
	defer cancelTimeout()
	return chromedp.Run(opCtx, actions...)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Location(&u))
	return u, err
}

func (d *ChromeDriver) HTMLSnapshot(ctx context.Context) (string, error) {
	var markup string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture document: %w", err)
	}
	return markup, nil
}

func (d *ChromeDriver) Resolve(_ context.Context, sel string) (schemas.Element, error) {
	q, err := selector.Parse(sel)
	if err != nil {
		return nil, err
	}
	finder, err := finderJS(q)
	if err != nil {
		return nil, err
	}
	return &chromeElement{driver: d, query: q, finder: finder}, nil
}

func (d *ChromeDriver) Click(ctx context.Context, sel string) error {
	el, err := d.waitVisible(ctx, sel, d.cfg.ActionTimeout)
	if err != nil {
		return err
	}
	if el.native() {
		return d.run(ctx, d.cfg.ActionTimeout, chromedp.Click(el.query.Expr, el.by(), chromedp.NodeVisible))
	}
	var clicked bool
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(fmt.Sprintf(`((el) => { if (!el) return false; el.scrollIntoView({block: 'center'}); el.click(); return true; })((%s)())`, el.finder), &clicked)); err != nil {
		return err
	}
	if !clicked {
		return notFound(ctx, sel, nil)
	}
	return nil
}

func (d *ChromeDriver) Fill(ctx context.Context, sel, value string) error {
	el, err := d.waitVisible(ctx, sel, d.cfg.ActionTimeout)
	if err != nil {
		return err
	}
	if el.native() {
		return d.run(ctx, d.cfg.ActionTimeout,
			chromedp.SetValue(el.query.Expr, "", el.by()),
			chromedp.SendKeys(el.query.Expr, value, el.by()),
		)
	}
	script := fmt.Sprintf(`((el, v) => {
		if (!el) return false;
		el.focus();
		el.value = v;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})((%s)(), %s)`, el.finder, jsString(value))
	var filled bool
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(script, &filled)); err != nil {
		return err
	}
	if !filled {
		return notFound(ctx, sel, nil)
	}
	return nil
}

func (d *ChromeDriver) TextContent(ctx context.Context, sel string) (string, error) {
	el, err := d.waitVisible(ctx, sel, d.cfg.ActionTimeout)
	if err != nil {
		return "", err
	}
	var text string
	if el.native() {
		err = d.run(ctx, d.cfg.ActionTimeout, chromedp.Text(el.query.Expr, &text, el.by(), chromedp.NodeVisible))
		return text, err
	}
	err = d.run(ctx, d.cfg.ActionTimeout,
		chromedp.Evaluate(fmt.Sprintf(`((el) => el ? (el.innerText || el.textContent || '') : '')((%s)())`, el.finder), &text))
	return text, err
}

func (d *ChromeDriver) waitVisible(ctx context.Context, sel string, timeout time.Duration) (*chromeElement, error) {
	el, err := d.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	ce := el.(*chromeElement)
	if err := ce.WaitVisible(ctx, timeout); err != nil {
		return nil, err
	}
	return ce, nil
}

// Close shuts down the tab and the browser process.
func (d *ChromeDriver) Close() error {
	d.cancel()
	d.allocCancel()
	return nil
}

type chromeElement struct {
	driver *ChromeDriver
	query  selector.Query
	finder string
}

// native reports whether chromedp can query the selector directly.
func (e *chromeElement) native() bool {
	return e.query.Kind == selector.KindCSS || e.query.Kind == selector.KindXPath
}

func (e *chromeElement) by() chromedp.QueryOption {
	if e.query.Kind == selector.KindXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// WaitVisible polls the finder script, which covers every selector dialect
// with the same visibility rules.
func (e *chromeElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	var found bool
	err := e.driver.run(ctx, timeout+time.Second, chromedp.Poll(
		fmt.Sprintf("!!((%s)())", e.finder), &found,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(e.driver.cfg.PollInterval),
	))
	if err != nil || !found {
		return notFound(ctx, e.query.Raw, err)
	}
	return nil
}
