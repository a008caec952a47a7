// Package page is the interaction layer tests drive: every lookup goes through
// the primary selector first and falls back to the healing chain when that
// selector no longer matches anything visible.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

const (
	defaultFindTimeout    = 10 * time.Second
	defaultVisibleTimeout = 5 * time.Second
)

// Resolver heals a selector that no longer matches. *heal.Healer satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, failed string, perAttempt time.Duration) (*schemas.ResolutionOutcome, error)
}

// Options configures a Page.
type Options struct {
	BaseURL string
	// FindTimeout bounds the wait on the primary selector.
	FindTimeout time.Duration
	// PerAttempt is handed to the resolver for each candidate.
	PerAttempt time.Duration
}

// OptionsFromConfig derives page options from the site and healing sections.
func OptionsFromConfig(site config.SiteConfig, browser config.BrowserConfig, healing config.HealingConfig) Options {
	return Options{
		BaseURL:     site.BaseURL,
		FindTimeout: browser.ActionTimeout,
		PerAttempt:  healing.PerCandidateTimeout,
	}
}

// Page wraps a driver with self-healing lookups.
type Page struct {
	driver   schemas.Driver
	resolver Resolver
	opts     Options
	logger   *zap.Logger
}

// New creates a Page. A nil resolver disables healing: lookups then fail with
// the driver's own error.
func New(driver schemas.Driver, resolver Resolver, opts Options, logger *zap.Logger) *Page {
	if opts.FindTimeout <= 0 {
		opts.FindTimeout = defaultFindTimeout
	}
	return &Page{
		driver:   driver,
		resolver: resolver,
		opts:     opts,
		logger:   logger.Named("page"),
	}
}

// Driver returns the underlying driver.
func (p *Page) Driver() schemas.Driver {
	return p.driver
}

// URLFor joins a path onto the base URL. Absolute URLs, and any input when
// no base URL is configured, are returned unchanged.
func (p *Page) URLFor(pathOrURL string) (string, error) {
	if pathOrURL == "" {
		pathOrURL = "/"
	}
	target, err := url.Parse(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", pathOrURL, err)
	}
	if target.IsAbs() || p.opts.BaseURL == "" {
		return pathOrURL, nil
	}
	base, err := url.Parse(p.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", p.opts.BaseURL, err)
	}
	if strings.HasPrefix(pathOrURL, "/") {
		base.Path = strings.TrimSuffix(base.Path, "/")
		joined := *base
		joined.Path = base.Path + target.Path
		joined.RawQuery = target.RawQuery
		joined.Fragment = target.Fragment
		return joined.String(), nil
	}
	return base.ResolveReference(target).String(), nil
}

// Navigate loads pathOrURL, resolving relative paths against the base URL.
func (p *Page) Navigate(ctx context.Context, pathOrURL string) error {
	target, err := p.URLFor(pathOrURL)
	if err != nil {
		return err
	}
	p.logger.Debug("Navigating", zap.String("url", target))
	return p.driver.Navigate(ctx, target)
}

// CurrentURL returns the address of the loaded document.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	return p.driver.CurrentURL(ctx)
}

// Find returns the selector that currently matches a visible element. The
// primary selector is tried first; when it is not found the resolver is asked
// for a replacement. If healing fails the original not-found error is
// returned.
func (p *Page) Find(ctx context.Context, sel string) (string, error) {
	return p.find(ctx, sel, p.opts.FindTimeout)
}

func (p *Page) find(ctx context.Context, sel string, primary time.Duration) (string, error) {
	err := p.waitVisible(ctx, sel, primary)
	if err == nil {
		return sel, nil
	}
	if !errors.Is(err, schemas.ErrElementNotFound) || p.resolver == nil || ctx.Err() != nil {
		return "", err
	}

	p.logger.Info("Primary selector failed, attempting to heal", zap.String("selector", sel))
	outcome, rerr := p.resolver.Resolve(ctx, sel, p.opts.PerAttempt)
	if rerr != nil {
		p.logger.Warn("Healing could not run", zap.String("selector", sel), zap.Error(rerr))
		return "", err
	}
	if !outcome.IsResolved() {
		return "", err
	}
	p.logger.Info("Using healed selector",
		zap.String("selector", sel),
		zap.String("healed", outcome.Resolved),
		zap.String("strategy", string(outcome.Strategy)))
	return outcome.Resolved, nil
}

func (p *Page) waitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	el, err := p.driver.Resolve(ctx, sel)
	if err != nil {
		return err
	}
	return el.WaitVisible(ctx, timeout)
}

// Click clicks the element matched by sel, healing it if needed.
func (p *Page) Click(ctx context.Context, sel string) error {
	found, err := p.Find(ctx, sel)
	if err != nil {
		return err
	}
	return p.driver.Click(ctx, found)
}

// Fill types value into the form control matched by sel.
func (p *Page) Fill(ctx context.Context, sel, value string) error {
	found, err := p.Find(ctx, sel)
	if err != nil {
		return err
	}
	return p.driver.Fill(ctx, found, value)
}

// Text returns the text content of the element matched by sel.
func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	found, err := p.Find(ctx, sel)
	if err != nil {
		return "", err
	}
	return p.driver.TextContent(ctx, found)
}

// IsVisible reports whether sel, or its healed replacement, is visible
// within timeout. Every failure reads as false.
func (p *Page) IsVisible(ctx context.Context, sel string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = defaultVisibleTimeout
	}
	_, err := p.find(ctx, sel, timeout)
	return err == nil
}

// WaitFor waits up to timeout for sel to become visible, heals it if it never
// does, and returns the selector that matched.
func (p *Page) WaitFor(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = p.opts.FindTimeout
	}
	return p.find(ctx, sel, timeout)
}
