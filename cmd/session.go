package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/browser"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/heal"
	"github.com/xkilldash9x/suture/internal/llmclient"
	"github.com/xkilldash9x/suture/internal/page"
	"github.com/xkilldash9x/suture/internal/store"
)

// target says which document a command works on.
type target struct {
	// URL is navigated to, or with HTMLFile, used as the document's address.
	URL string
	// HTMLFile is loaded into the static engine instead of starting a browser.
	HTMLFile string
}

// session is the set of components one command invocation drives.
type session struct {
	driver  schemas.Driver
	history *heal.History
	llm     schemas.LLMClient
	healer  *heal.Healer
	page    *page.Page
	logger  *zap.Logger
}

// openSession starts the document engine, loads the target and assembles the
// healer around it. The caller must Close the session.
func openSession(ctx context.Context, cfg config.Interface, t target, logger *zap.Logger) (*session, error) {
	s := &session{logger: logger}

	s.history = openHistory(ctx, cfg.History(), logger)
	s.llm = openLLM(ctx, cfg.Agent(), logger)

	if err := s.openDocument(ctx, cfg, t); err != nil {
		s.Close()
		return nil, err
	}

	s.healer = heal.NewFromConfig(s.driver, s.history, s.llm, cfg.Healing(), logger)
	var resolver page.Resolver
	if cfg.Healing().Enabled {
		resolver = s.healer
	}
	s.page = page.New(s.driver, resolver, page.OptionsFromConfig(cfg.Site(), cfg.Browser(), cfg.Healing()), logger)

	if t.URL != "" && t.HTMLFile == "" {
		if err := s.page.Navigate(ctx, t.URL); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load %s: %w", t.URL, err)
		}
	}
	return s, nil
}

func (s *session) openDocument(ctx context.Context, cfg config.Interface, t target) error {
	if t.HTMLFile == "" {
		driver, err := browser.Open(ctx, cfg.Browser(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to start %s browser: %w", cfg.Browser().Engine, err)
		}
		s.driver = driver
		return nil
	}

	path, err := homedir.Expand(t.HTMLFile)
	if err != nil {
		return err
	}
	markup, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read HTML document: %w", err)
	}
	static := browser.NewStaticDriver(cfg.Browser(), s.logger)
	pageURL := t.URL
	if pageURL == "" {
		pageURL = cfg.Site().BaseURL
	}
	if err := static.LoadHTML(string(markup), pageURL); err != nil {
		return err
	}
	s.driver = static
	return nil
}

// Close releases the browser, the history backend and the model client.
func (s *session) Close() {
	if s.driver != nil {
		if err := s.driver.Close(); err != nil {
			s.logger.Warn("Failed to close browser", zap.Error(err))
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Warn("Failed to close selector history", zap.Error(err))
		}
	}
	if s.llm != nil {
		if err := s.llm.Close(); err != nil {
			s.logger.Debug("Failed to close LLM client", zap.Error(err))
		}
	}
}

// openHistory opens the configured backend and loads it. A backend that
// cannot be opened leaves the run with an in-memory history.
func openHistory(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) *heal.History {
	backend, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Could not open selector history, healed selectors will not be persisted",
			zap.String("backend", cfg.Backend), zap.Error(err))
		return heal.NewHistory(ctx, nil, logger)
	}
	return heal.NewHistory(ctx, backend, logger)
}

// openLLM returns nil when no model is usable; the external strategy and the
// suggest command then report ErrNoLLMClient.
func openLLM(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) schemas.LLMClient {
	client, err := llmclient.NewClient(ctx, cfg, logger)
	switch {
	case errors.Is(err, llmclient.ErrNotConfigured):
		logger.Debug("No language model configured; external suggestions disabled")
		return nil
	case err != nil:
		logger.Warn("Failed to initialize LLM client; external suggestions disabled", zap.Error(err))
		return nil
	}
	return client
}
