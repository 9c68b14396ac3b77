package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relaybot.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("RELAYBOT_DEBUG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.QuotaCooldownSeconds != 60 || cfg.LLM.BulkRecoverySeconds != 60 || cfg.LLM.TimeoutSeconds != 10 {
		t.Errorf("llm durations = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 1024 {
		t.Errorf("generation = %v/%d", cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	}
	if !cfg.QueueEnabled() || cfg.Queue.Workers != 3 || cfg.Queue.Capacity != 0 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.ThrottleCooldown() != time.Second {
		t.Errorf("throttle = %v", cfg.ThrottleCooldown())
	}
	if !cfg.MetricsEnabled() || cfg.Metrics.SaveInterval != "@every 5m" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Debug {
		t.Error("debug should default to false")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("RELAYBOT_DEBUG", "")
	path := writeConfig(t, `{
		"telegram": {"botToken": "file-token"},
		"llm": {"quotaCooldownSeconds": 5, "unsupportedMatch": "FAILED_PRECONDITION", "credentials": {"GEMINI_API_KEY": "g"}},
		"queue": {"enabled": false, "workers": 7, "capacity": 20},
		"metrics": {"enabled": false}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "file-token" {
		t.Errorf("token = %q", cfg.Telegram.BotToken)
	}
	if cfg.LLM.QuotaCooldownSeconds != 5 || cfg.LLM.TimeoutSeconds != 10 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.QueueEnabled() || cfg.Queue.Workers != 7 || cfg.Queue.Capacity != 20 {
		t.Errorf("queue = %+v enabled=%v", cfg.Queue, cfg.QueueEnabled())
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics should be disabled")
	}
	if cfg.Credential("GEMINI_API_KEY") != "g" {
		t.Errorf("credential = %q", cfg.Credential("GEMINI_API_KEY"))
	}

	opts := cfg.ControllerOptions(nil, nil)
	if opts.QuotaCooldown != 5*time.Second || opts.UnsupportedMatch != "FAILED_PRECONDITION" {
		t.Errorf("controller options = %+v", opts)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("RELAYBOT_DEBUG", "true")
	t.Setenv("MISTRAL_API_KEY", "m-env")
	path := writeConfig(t, `{"telegram": {"botToken": "file-token"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "env-token" {
		t.Errorf("token = %q, want env value", cfg.Telegram.BotToken)
	}
	if !cfg.Debug {
		t.Error("RELAYBOT_DEBUG not applied")
	}
	if cfg.Credential("MISTRAL_API_KEY") != "m-env" {
		t.Error("credential should fall back to the environment")
	}
	if err := cfg.MergeCredentials(map[string]string{"MISTRAL_API_KEY": "m-flag", "GEMINI_API_KEY": ""}); err != nil {
		t.Fatalf("MergeCredentials: %v", err)
	}
	if cfg.Credential("MISTRAL_API_KEY") != "m-flag" {
		t.Error("merged credential should take precedence")
	}
	if _, ok := cfg.LLM.Credentials["GEMINI_API_KEY"]; ok {
		t.Error("empty credential should be ignored")
	}

	if err := cfg.MergeCredentials(map[string]string{"MISTRAL_API_KEY": "m-flag-2"}); err != nil {
		t.Fatalf("MergeCredentials: %v", err)
	}
	if cfg.Credential("MISTRAL_API_KEY") != "m-flag-2" {
		t.Error("later merge should override")
	}
}

func TestLoadKeepsExplicitZeroValues(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("RELAYBOT_DEBUG", "")
	path := writeConfig(t, `{
		"status": {"interval": ""},
		"throttle": {"cooldownMillis": 0},
		"llm": {"temperature": 0},
		"metrics": {"saveInterval": "@every 1m"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Status.Interval != "" {
		t.Errorf("status.interval = %q, want disabled", cfg.Status.Interval)
	}
	if cfg.ThrottleCooldown() != 0 {
		t.Errorf("throttle = %v, want 0", cfg.ThrottleCooldown())
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", cfg.LLM.Temperature)
	}
	// keys absent from the file keep their defaults
	if cfg.LLM.MaxTokens != 1024 || cfg.Queue.Workers != 3 || cfg.Metrics.SaveInterval != "@every 1m" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "relaybot.toml")
	body := `
logLevel = "debug"

[telegram]
botToken = "toml-token"

[llm]
unsupportedMatch = "FAILED_PRECONDITION"

[llm.credentials]
GEMINI_API_KEY = "g"

[queue]
capacity = 5
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "toml-token" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LLM.UnsupportedMatch != "FAILED_PRECONDITION" || cfg.Credential("GEMINI_API_KEY") != "g" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Queue.Capacity != 5 || cfg.Queue.Workers != 3 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, `{not json`)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, `{"queue": {"capacity": -1}}`)); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Load(writeConfig(t, `{"logLevel": "loud"}`)); err == nil {
		t.Error("expected invalid level error")
	}
	if _, err := Load(writeConfig(t, `{"llm": {"maxTokens": 0}}`)); err == nil {
		t.Error("expected maxTokens error")
	}
	if _, err := Load(writeConfig(t, `{"metrics": {"saveInterval": ""}}`)); err == nil {
		t.Error("expected saveInterval error while metrics are enabled")
	}
	if _, err := Load(writeConfig(t, `{"metrics": {"enabled": false, "saveInterval": ""}}`)); err != nil {
		t.Errorf("disabled metrics need no interval: %v", err)
	}
}

func TestCatalogOverride(t *testing.T) {
	cfg := Defaults()
	c, err := cfg.Catalog()
	if err != nil || c.CatchAll().Name != "mistral-tiny" {
		t.Fatalf("default catalog: %v", err)
	}

	path := writeConfig(t, `{"llm": {"catalog": [
		{"name": "one", "family": "generate", "endpoint": "http://one", "credential": "K"},
		{"name": "last", "family": "chat", "endpoint": "http://last", "model": "m", "credential": "K", "catchAll": true}
	]}}`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err = cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if c.Len() != 2 || c.First().Name != "one" || c.CatchAll().Name != "last" {
		t.Errorf("override catalog not used")
	}
}

func TestWatchReloads(t *testing.T) {
	t.Setenv("RELAYBOT_DEBUG", "")
	path := writeConfig(t, `{"debug": false}`)

	changed := make(chan *Config, 4)
	w, err := Watch(path, func(c *Config) { changed <- c })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{"debug": true, "logLevel": "debug"}`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if !cfg.Debug || cfg.LogLevel != "debug" {
			t.Errorf("reloaded config = %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
