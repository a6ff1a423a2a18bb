// Package config loads and validates edital-crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/edital-crawler/internal/llm"
)

// ErrInvalid marks every configuration problem. Callers map it to exit code 1.
var ErrInvalid = errors.New("invalid configuration")

// Config captures all knobs loaded via Viper.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// LLMConfig controls the backend chain. APIKey only comes from the environment.
type LLMConfig struct {
	Backends    []string      `mapstructure:"backends"`
	APIKey      string        `mapstructure:"-"`
	BaseURL     string        `mapstructure:"base_url"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Provider      string        `mapstructure:"provider"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	PerHostRPS    float64       `mapstructure:"per_host_rps"`
	Burst         int           `mapstructure:"burst"`
}

// StoreConfig selects the Recorder. DSN and Password only come from the environment.
type StoreConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"-"`
	Password        string        `mapstructure:"-"`
	Table           string        `mapstructure:"table"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	OpTimeout       time.Duration `mapstructure:"op_timeout"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnectAttempts uint          `mapstructure:"connect_attempts"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
}

// ArchiveConfig selects where fetched source text is kept.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PublisherConfig selects where upsert notifications go.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// PipelineConfig lists the default locators for a run.
type PipelineConfig struct {
	Locators []string `mapstructure:"locators"`
}

// ServerConfig controls serve mode.
type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
}

// secretEnv lists the environment variables each secret may come from, in
// order of preference.
var secretEnv = map[string][]string{
	"store.dsn":      {"EDITAL_STORE_DSN", "DATABASE_URL"},
	"store.password": {"EDITAL_STORE_PASSWORD", "DATABASE_PASSWORD"},
	"llm.api_key":    {"EDITAL_LLM_API_KEY", "GEMINI_API_KEY"},
}

// Load builds a Config from an optional YAML file plus EDITAL_* environment
// variables and validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDITAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %v", ErrInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}
	if err := loadSecrets(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadSecrets reads secrets from a viper instance that never sees the config
// file, so a key in YAML cannot stand in for one.
func loadSecrets(cfg *Config) error {
	env := viper.New()
	for key, names := range secretEnv {
		args := append([]string{key}, names...)
		if err := env.BindEnv(args...); err != nil {
			return fmt.Errorf("%w: bind %s: %v", ErrInvalid, key, err)
		}
	}
	cfg.Store.DSN = strings.TrimSpace(env.GetString("store.dsn"))
	cfg.Store.Password = env.GetString("store.password")
	cfg.LLM.APIKey = strings.TrimSpace(env.GetString("llm.api_key"))
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.backends", []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"})
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.call_timeout", "60s")
	v.SetDefault("llm.backoff_base", "2s")
	v.SetDefault("llm.backoff_max", "30s")
	v.SetDefault("fetcher.provider", "colly")
	v.SetDefault("fetcher.user_agent", "edital-crawler/0.1 (+https://github.com/JakeFAU/edital-crawler)")
	v.SetDefault("fetcher.timeout", "20s")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.per_host_rps", 1.0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("store.provider", "postgres")
	v.SetDefault("store.table", "editais")
	v.SetDefault("store.auto_migrate", false)
	v.SetDefault("store.op_timeout", "10s")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("store.connect_delay", "500ms")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "sources")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.topic", "editais")
	v.SetDefault("pipeline.locators", []string{})
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.interval", "0s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.exporter", "none")
}

func (c *Config) normalize() {
	c.LLM.Backends = trimAll(c.LLM.Backends)
	c.Pipeline.Locators = trimAll(c.Pipeline.Locators)
	c.Fetcher.Provider = strings.ToLower(strings.TrimSpace(c.Fetcher.Provider))
	c.Store.Provider = strings.ToLower(strings.TrimSpace(c.Store.Provider))
	c.Archive.Provider = strings.ToLower(strings.TrimSpace(c.Archive.Provider))
	c.Publisher.Provider = strings.ToLower(strings.TrimSpace(c.Publisher.Provider))
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate enforces required values and reasonable limits. Every returned
// error matches ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.LLM.Backends) == 0 {
		bad("llm.backends must list at least one backend")
	}
	if c.NeedsAPIKey() && c.LLM.APIKey == "" {
		bad("model credential missing (set EDITAL_LLM_API_KEY or GEMINI_API_KEY)")
	}
	if c.LLM.CallTimeout <= 0 {
		bad("llm.call_timeout must be > 0")
	}
	if c.LLM.BackoffBase <= 0 {
		bad("llm.backoff_base must be > 0")
	}
	if c.LLM.BackoffMax < c.LLM.BackoffBase {
		bad("llm.backoff_max must be >= llm.backoff_base")
	}

	switch c.Fetcher.Provider {
	case "colly", "static":
	default:
		bad("fetcher.provider %q is not one of colly, static", c.Fetcher.Provider)
	}
	if c.Fetcher.Timeout <= 0 {
		bad("fetcher.timeout must be > 0")
	}
	if c.Fetcher.PerHostRPS < 0 {
		bad("fetcher.per_host_rps must be >= 0")
	}

	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			bad("store endpoint missing (set EDITAL_STORE_DSN or DATABASE_URL)")
		}
		if c.Store.Password == "" {
			bad("store credential missing (set EDITAL_STORE_PASSWORD or DATABASE_PASSWORD)")
		}
		if c.Store.ConnectAttempts == 0 {
			bad("store.connect_attempts must be > 0")
		}
		if c.Store.MaxConns <= 0 {
			bad("store.max_conns must be > 0")
		}
	case "memory":
	default:
		bad("store.provider %q is not one of postgres, memory", c.Store.Provider)
	}
	if c.Store.OpTimeout <= 0 {
		bad("store.op_timeout must be > 0")
	}

	switch c.Archive.Provider {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			bad("archive.base_dir is required for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			bad("archive.bucket is required for the gcs archive")
		}
	default:
		bad("archive.provider %q is not one of none, memory, local, gcs", c.Archive.Provider)
	}

	switch c.Publisher.Provider {
	case "none":
	case "memory", "pubsub":
		if c.Publisher.Topic == "" {
			bad("publisher.topic is required")
		}
		if c.Publisher.Provider == "pubsub" && c.Publisher.ProjectID == "" {
			bad("publisher.project_id is required for pubsub")
		}
	default:
		bad("publisher.provider %q is not one of none, memory, pubsub", c.Publisher.Provider)
	}

	switch c.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		bad("tracing.exporter %q is not one of none, stdout", c.Tracing.Exporter)
	}

	if c.Server.Addr == "" {
		bad("server.addr must be set")
	}
	if c.Server.Interval < 0 {
		bad("server.interval must be >= 0")
	}
	return errors.Join(errs...)
}

// NeedsAPIKey reports whether any configured backend is served by a hosted
// provider. The offline rules backend needs no credential.
func (c Config) NeedsAPIKey() bool {
	for _, b := range c.LLM.Backends {
		if provider, _ := llm.SplitBackend(b, llm.DefaultProvider); provider != "rules" {
			return true
		}
	}
	return false
}

// Locators returns args when present, otherwise pipeline.locators. Having
// neither is a configuration error.
func (c Config) Locators(args []string) ([]string, error) {
	if locators := trimAll(args); len(locators) > 0 {
		return locators, nil
	}
	if len(c.Pipeline.Locators) > 0 {
		return append([]string(nil), c.Pipeline.Locators...), nil
	}
	return nil, fmt.Errorf("%w: no locators given on the command line or in pipeline.locators", ErrInvalid)
}
