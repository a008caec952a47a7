// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Site() SiteConfig
	Healing() HealingConfig
	History() HistoryConfig
	Agent() AgentConfig
	Server() ServerConfig
}

// Config is the root configuration. Fields are exported so viper can
// unmarshal into them; components read through the getter methods.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	SiteCfg    SiteConfig    `mapstructure:"site" yaml:"site"`
	HealingCfg HealingConfig `mapstructure:"healing" yaml:"healing"`
	HistoryCfg HistoryConfig `mapstructure:"history" yaml:"history"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Site() SiteConfig       { return c.SiteCfg }
func (c *Config) Healing() HealingConfig { return c.HealingCfg }
func (c *Config) History() HistoryConfig { return c.HistoryCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser engines.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
	EngineStatic     = "static"
)

// BrowserConfig selects and tunes the document engine.
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine" yaml:"engine"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// SiteConfig describes the site under test.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// HealingConfig tunes the selector fallback chain.
type HealingConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Strategies []string `mapstructure:"strategies" yaml:"strategies"`
	// PerCandidateTimeout is the default wait for each probed candidate.
	PerCandidateTimeout time.Duration `mapstructure:"per_candidate_timeout" yaml:"per_candidate_timeout"`
	// ChainBudget bounds a whole resolution. Zero means unbounded.
	ChainBudget            time.Duration `mapstructure:"chain_budget" yaml:"chain_budget"`
	FuzzyPrefixLength      int           `mapstructure:"fuzzy_prefix_length" yaml:"fuzzy_prefix_length"`
	HTMLContextSize        int           `mapstructure:"html_context_size" yaml:"html_context_size"`
	MaxExternalSuggestions int           `mapstructure:"max_external_suggestions" yaml:"max_external_suggestions"`
	ExternalTimeout        time.Duration `mapstructure:"external_timeout" yaml:"external_timeout"`
}

// History backends.
const (
	HistoryBackendJSON     = "json"
	HistoryBackendSQLite   = "sqlite"
	HistoryBackendPostgres = "postgres"
)

// HistoryConfig configures where healed selectors are remembered.
type HistoryConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// AgentConfig holds the language model settings.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    int                       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ServerConfig configures the HTTP bridge.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "suture")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.poll_interval", "100ms")

	// -- Site --
	v.SetDefault("site.base_url", "https://www.toyota.com")

	// -- Healing --
	v.SetDefault("healing.enabled", true)
	v.SetDefault("healing.strategies", []string{"history", "semantic", "fuzzy-text", "position", "external-suggestion"})
	v.SetDefault("healing.per_candidate_timeout", "5s")
	v.SetDefault("healing.chain_budget", "0s")
	v.SetDefault("healing.fuzzy_prefix_length", 10)
	v.SetDefault("healing.html_context_size", 500)
	v.SetDefault("healing.max_external_suggestions", 5)
	v.SetDefault("healing.external_timeout", "30s")

	// -- History --
	v.SetDefault("history.backend", HistoryBackendJSON)
	v.SetDefault("history.path", "test_data/selectors.json")

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gpt")
	v.SetDefault("agent.llm.default_powerful_model", "claude")
	v.SetDefault("agent.llm.requests_per_minute", 0)
	v.SetDefault("agent.llm.models", map[string]interface{}{
		"claude": map[string]interface{}{
			"provider":    string(ProviderAnthropic),
			"model":       "claude-3-5-sonnet-20241022",
			"api_timeout": "60s",
			"temperature": 0.3,
			"max_tokens":  500,
		},
		"gpt": map[string]interface{}{
			"provider":    string(ProviderOpenAI),
			"model":       "gpt-4-turbo-preview",
			"api_timeout": "60s",
			"temperature": 0.3,
			"max_tokens":  500,
		},
		"gemini": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
			"temperature": 0.3,
			"max_tokens":  500,
		},
	})

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:8765")
	v.SetDefault("server.request_timeout", "2m")
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are known good, so an unmarshal error here is a programming bug.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// providerKeyEnv maps providers to the environment variables that conventionally
// carry their API keys.
var providerKeyEnv = map[LLMProvider]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// NewConfigFromViper unmarshals, enriches and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("history.url", "SUTURE_HISTORY_URL", "DATABASE_URL")
	v.BindEnv("healing.enabled", "SUTURE_HEALING_ENABLED", "ENABLE_SELF_HEALING")
	v.BindEnv("site.base_url", "SUTURE_SITE_BASE_URL", "BASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.AgentCfg.LLM.applyEnvKeys()

	if cfg.HistoryCfg.Path != "" {
		expanded, err := homedir.Expand(cfg.HistoryCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand history.path: %w", err)
		}
		cfg.HistoryCfg.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvKeys fills in empty API keys from the provider's conventional
// environment variable.
func (r *LLMRouterConfig) applyEnvKeys() {
	for name, m := range r.Models {
		if m.APIKey != "" {
			continue
		}
		if env, ok := providerKeyEnv[m.Provider]; ok {
			m.APIKey = os.Getenv(env)
			r.Models[name] = m
		}
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.HealingCfg.Validate(); err != nil {
		return fmt.Errorf("healing configuration invalid: %w", err)
	}
	if err := c.HistoryCfg.Validate(); err != nil {
		return fmt.Errorf("history configuration invalid: %w", err)
	}
	if err := c.AgentCfg.LLM.Validate(); err != nil {
		return fmt.Errorf("agent.llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b BrowserConfig) Validate() error {
	switch b.Engine {
	case EngineChromedp, EnginePlaywright, EngineRod, EngineStatic:
	default:
		return fmt.Errorf("unknown engine %q (want chromedp, playwright, rod or static)", b.Engine)
	}
	if b.NavigationTimeout < 0 {
		return fmt.Errorf("navigation_timeout must not be negative")
	}
	return nil
}

// Validate checks the healing chain settings.
func (h HealingConfig) Validate() error {
	if h.PerCandidateTimeout <= 0 {
		return fmt.Errorf("per_candidate_timeout must be a positive duration")
	}
	if h.ChainBudget < 0 {
		return fmt.Errorf("chain_budget must not be negative")
	}
	if h.FuzzyPrefixLength <= 0 {
		return fmt.Errorf("fuzzy_prefix_length must be greater than 0")
	}
	if h.MaxExternalSuggestions < 0 {
		return fmt.Errorf("max_external_suggestions must not be negative")
	}
	for _, s := range h.Strategies {
		if !isKnownStrategy(s) {
			return fmt.Errorf("unknown strategy %q", s)
		}
	}
	return nil
}

// StrategyEnabled reports whether a strategy name appears in the configured list.
// An empty list enables everything.
func (h HealingConfig) StrategyEnabled(name string) bool {
	if len(h.Strategies) == 0 {
		return true
	}
	for _, s := range h.Strategies {
		if strings.EqualFold(s, name) || canonicalStrategy(s) == name {
			return true
		}
	}
	return false
}

func canonicalStrategy(s string) string {
	switch strings.ToLower(s) {
	case "fuzzy":
		return "fuzzy-text"
	case "external", "llm":
		return "external-suggestion"
	}
	return strings.ToLower(s)
}

func isKnownStrategy(s string) bool {
	switch canonicalStrategy(s) {
	case "history", "semantic", "fuzzy-text", "position", "external-suggestion":
		return true
	}
	return false
}

// Validate checks the history backend settings.
func (h HistoryConfig) Validate() error {
	switch h.Backend {
	case HistoryBackendJSON, HistoryBackendSQLite:
		if h.Path == "" {
			return fmt.Errorf("history.path is required for the %s backend", h.Backend)
		}
	case HistoryBackendPostgres:
		if h.URL == "" {
			return fmt.Errorf("history.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", h.Backend)
	}
	return nil
}

// Validate checks that the default models reference configured entries. Missing
// API keys are not an error here; the external strategy is simply unavailable.
func (r LLMRouterConfig) Validate() error {
	if r.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	for name, m := range r.Models {
		switch m.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", name, m.Provider)
		}
	}
	return nil
}
