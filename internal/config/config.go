// Package config loads the relaybot config file (JSON or TOML), fills defaults
// and applies environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	"github.com/roelfdiedericks/relaybot/internal/llm"
	"github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/paths"
)

// Config represents the relaybot configuration
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Debug    bool           `json:"debug"`    // deliver per-request log lines after each reply
	LogLevel string         `json:"logLevel"` // trace, debug, info, warn, error
	LLM      LLMConfig      `json:"llm"`
	Queue    QueueConfig    `json:"queue"`
	Throttle ThrottleConfig `json:"throttle"`
	Metrics  MetricsConfig  `json:"metrics"`
	Status   StatusConfig   `json:"status"`
}

type TelegramConfig struct {
	BotToken string `json:"botToken"`
}

type LLMConfig struct {
	Initial              string            `json:"initial"` // "" = first credentialed provider
	QuotaCooldownSeconds int               `json:"quotaCooldownSeconds"`
	BulkRecoverySeconds  int               `json:"bulkRecoverySeconds"`
	TimeoutSeconds       int               `json:"timeoutSeconds"`
	Temperature          float32           `json:"temperature"`
	MaxTokens            int               `json:"maxTokens"`
	UnsupportedMatch     string            `json:"unsupportedMatch"` // "" = any 400 falls back to the catch-all
	DumpErrors           bool              `json:"dumpErrors"`       // write failed provider calls to ~/.relaybot/llm_dumps
	Credentials          map[string]string `json:"credentials"`      // credential key -> secret
	Catalog              []llm.Provider    `json:"catalog"`          // replaces the built-in catalog when set
}

type QueueConfig struct {
	Enabled  *bool `json:"enabled"`
	Workers  int   `json:"workers"`
	Capacity int   `json:"capacity"` // 0 = unbounded
}

type ThrottleConfig struct {
	CooldownMillis int `json:"cooldownMillis"`
}

type MetricsConfig struct {
	Enabled      *bool  `json:"enabled"`
	SaveInterval string `json:"saveInterval"` // cron spec
}

type StatusConfig struct {
	Interval string `json:"interval"` // cron spec; "" disables the periodic report
}

func boolPtr(b bool) *bool { return &b }

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		LLM: LLMConfig{
			QuotaCooldownSeconds: 60,
			BulkRecoverySeconds:  60,
			TimeoutSeconds:       10,
			Temperature:          0.7,
			MaxTokens:            1024,
		},
		Queue: QueueConfig{
			Enabled: boolPtr(true),
			Workers: 3,
		},
		Throttle: ThrottleConfig{CooldownMillis: 1000},
		Metrics: MetricsConfig{
			Enabled:      boolPtr(true),
			SaveInterval: "@every 5m",
		},
		Status: StatusConfig{Interval: "@every 10m"},
	}
}

// Load reads path (optional, "" = none) on top of the defaults and applies
// environment overrides. Keys absent from the file keep their default; keys
// present keep their value even when it is zero or empty. Files ending in
// .toml are parsed as TOML, anything else as JSON; keys match field names
// case-insensitively.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		logging.L_debug("config: loaded", "path", path)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("RELAYBOT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		} else {
			logging.L_warn("config: ignoring RELAYBOT_DEBUG", "value", v)
		}
	}
}

// Validate checks value ranges. A missing bot token is not an error here;
// only the run command needs one.
func (c *Config) Validate() error {
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.Capacity < 0 {
		return fmt.Errorf("queue.capacity must not be negative")
	}
	if c.Throttle.CooldownMillis < 0 {
		return fmt.Errorf("throttle.cooldownMillis must not be negative")
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.maxTokens must be at least 1")
	}
	if c.MetricsEnabled() && c.Metrics.SaveInterval == "" {
		return fmt.Errorf("metrics.saveInterval is required while metrics are enabled")
	}
	if _, ok := ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown logLevel %q", c.LogLevel)
	}
	return nil
}

// MergeCredentials layers creds (credential key -> secret) over the
// configured ones. Empty values are ignored.
func (c *Config) MergeCredentials(creds map[string]string) error {
	set := make(map[string]string, len(creds))
	for key, value := range creds {
		if value != "" {
			set[key] = value
		}
	}
	if len(set) == 0 {
		return nil
	}
	if c.LLM.Credentials == nil {
		c.LLM.Credentials = make(map[string]string)
	}
	if err := mergo.Merge(&c.LLM.Credentials, set, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge credentials: %w", err)
	}
	return nil
}

// Credential resolves a credential key from the config, then the environment
func (c *Config) Credential(key string) string {
	if v := c.LLM.Credentials[key]; v != "" {
		return v
	}
	return os.Getenv(key)
}

// Catalog returns the configured provider catalog, or the built-in one
func (c *Config) Catalog() (*llm.Catalog, error) {
	if len(c.LLM.Catalog) > 0 {
		return llm.NewCatalog(c.LLM.Catalog)
	}
	return llm.DefaultCatalog()
}

func (c *Config) QueueEnabled() bool   { return c.Queue.Enabled == nil || *c.Queue.Enabled }
func (c *Config) MetricsEnabled() bool { return c.Metrics.Enabled == nil || *c.Metrics.Enabled }

func (c *Config) ThrottleCooldown() time.Duration {
	return time.Duration(c.Throttle.CooldownMillis) * time.Millisecond
}

// ControllerOptions maps the llm section onto controller options
func (c *Config) ControllerOptions(catalog *llm.Catalog, sched llm.Scheduler) llm.Options {
	var dumpDir string
	if c.LLM.DumpErrors {
		dir, err := paths.DataPath("llm_dumps")
		if err != nil {
			logging.L_warn("config: provider dumps disabled", "error", err)
		} else {
			dumpDir = dir
		}
	}
	return llm.Options{
		DumpDir:          dumpDir,
		Catalog:          catalog,
		Credentials:      c.Credential,
		Scheduler:        sched,
		Initial:          c.LLM.Initial,
		QuotaCooldown:    time.Duration(c.LLM.QuotaCooldownSeconds) * time.Second,
		BulkRecovery:     time.Duration(c.LLM.BulkRecoverySeconds) * time.Second,
		Timeout:          time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		Generation:       llm.Generation{Temperature: c.LLM.Temperature, MaxTokens: c.LLM.MaxTokens},
		UnsupportedMatch: c.LLM.UnsupportedMatch,
	}
}

// ParseLevel maps a level name to a logging level
func ParseLevel(name string) (int, bool) {
	switch name {
	case "trace":
		return logging.LevelTrace, true
	case "debug":
		return logging.LevelDebug, true
	case "", "info":
		return logging.LevelInfo, true
	case "warn":
		return logging.LevelWarn, true
	case "error":
		return logging.LevelError, true
	}
	return 0, false
}
