package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/selector"
)

// RodDriver drives a Chrome launched by rod, with stealth evasions applied to
// the page.
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cfg      config.BrowserConfig
	logger   *zap.Logger
}

var _ schemas.Driver = (*RodDriver)(nil)

func NewRodDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*RodDriver, error) {
	cfg = withTimeouts(cfg)
	l := newRodLauncher(cfg)
	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	if cfg.IgnoreTLSErrors {
		if err := b.IgnoreCertErrors(true); err != nil {
			logger.Warn("Could not disable certificate checks", zap.Error(err))
		}
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: cfg.ViewportWidth, Height: cfg.ViewportHeight, DeviceScaleFactor: 1,
		}); err != nil {
			logger.Debug("Could not set viewport", zap.Error(err))
		}
	}
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			logger.Debug("Could not set user agent", zap.Error(err))
		}
	}

	logger.Debug("Rod session started", zap.String("control_url", controlURL))
	return &RodDriver{launcher: l, browser: b, page: page, cfg: cfg, logger: logger}, nil
}

func newRodLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless).Leakless(false)
	for _, f := range chromeFlags(cfg) {
		if f.name == "headless" {
			continue
		}
		switch v := f.value.(type) {
		case string:
			l = l.Set(flags.Flag(f.name), v)
		case bool:
			if v {
				l = l.Set(flags.Flag(f.name))
			}
		}
	}
	return l
}

// scoped returns the page bound to ctx and timeout.
func (d *RodDriver) scoped(ctx context.Context, timeout time.Duration) *rod.Page {
	return d.page.Context(ctx).Timeout(timeout)
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.scoped(ctx, d.cfg.NavigationTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		d.logger.Debug("Page load did not settle", zap.String("url", url), zap.Error(err))
	}
	return nil
}

func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.scoped(ctx, d.cfg.ActionTimeout).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *RodDriver) HTMLSnapshot(ctx context.Context) (string, error) {
	return d.scoped(ctx, d.cfg.ActionTimeout).HTML()
}

func (d *RodDriver) Resolve(_ context.Context, sel string) (schemas.Element, error) {
	q, err := selector.Parse(sel)
	if err != nil {
		return nil, err
	}
	xpath, finder, err := rodLocator(q)
	if err != nil {
		return nil, err
	}
	return &rodElement{driver: d, query: q, xpath: xpath, finder: finder}, nil
}

// rodLocator picks how rod finds q. CSS goes to Element; everything XPath 1.0
// can express goes to ElementX; regex text and has-text over compound selectors
// fall back to the in-page finder.
func rodLocator(q selector.Query) (xpath, finder string, err error) {
	if q.Kind == selector.KindCSS {
		return "", "", nil
	}
	if xpath, err := q.XPath(); err == nil {
		return xpath, "", nil
	}
	finder, err = finderJS(q)
	return "", finder, err
}

func (d *RodDriver) Click(ctx context.Context, sel string) error {
	el, err := d.visible(ctx, sel)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) Fill(ctx context.Context, sel, value string) error {
	el, err := d.visible(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (d *RodDriver) TextContent(ctx context.Context, sel string) (string, error) {
	el, err := d.visible(ctx, sel)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (d *RodDriver) visible(ctx context.Context, sel string) (*rod.Element, error) {
	h, err := d.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	return h.(*rodElement).find(ctx, d.cfg.ActionTimeout)
}

func (d *RodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	return err
}

type rodElement struct {
	driver *RodDriver
	query  selector.Query
	xpath  string
	finder string
}

func (e *rodElement) find(ctx context.Context, timeout time.Duration) (*rod.Element, error) {
	p := e.driver.scoped(ctx, timeout)
	var (
		el  *rod.Element
		err error
	)
	switch {
	case e.query.Kind == selector.KindCSS:
		el, err = p.Element(e.query.Expr)
	case e.xpath != "":
		el, err = p.ElementX(e.xpath)
	default:
		el, err = p.ElementByJS(rod.Eval(e.finder))
	}
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, notFound(ctx, e.query.Raw, err)
		}
		return nil, err
	}
	return el, nil
}

func (e *rodElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if _, err := e.find(ctx, timeout); err != nil {
		if errors.Is(err, schemas.ErrElementNotFound) {
			return err
		}
		return notFound(ctx, e.query.Raw, err)
	}
	return nil
}
