// Package browser provides the document engines the healing chain probes
// against. Every engine implements schemas.Driver; chromedp, playwright and
// rod drive a real browser while the static engine evaluates selectors over
// fetched or supplied HTML.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

// ErrUnknownEngine is returned by Open for an unsupported engine name.
var ErrUnknownEngine = errors.New("unknown browser engine")

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultActionTimeout     = 10 * time.Second
	defaultPollInterval      = 100 * time.Millisecond
)

// Open starts the engine named in cfg.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.Driver, error) {
	cfg = withTimeouts(cfg)
	logger = logger.Named("browser").With(zap.String("engine", cfg.Engine))

	switch cfg.Engine {
	case config.EngineChromedp, "":
		return NewChromeDriver(ctx, cfg, logger)
	case config.EnginePlaywright:
		return NewPlaywrightDriver(ctx, cfg, logger)
	case config.EngineRod:
		return NewRodDriver(ctx, cfg, logger)
	case config.EngineStatic:
		return NewStaticDriver(cfg, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
}

func withTimeouts(cfg config.BrowserConfig) config.BrowserConfig {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return cfg
}

// notFound reports a selector that did not become visible in time. Context
// cancellation by the caller is passed through unchanged.
func notFound(ctx context.Context, sel string, cause error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	if cause == nil {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, sel)
	}
	return fmt.Errorf("%w: %s: %v", schemas.ErrElementNotFound, sel, cause)
}
