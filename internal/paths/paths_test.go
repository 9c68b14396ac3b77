package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RELAYBOT_HOME", dir)

	base, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir: %v", err)
	}
	if base != dir {
		t.Errorf("BaseDir() = %q, want %q", base, dir)
	}

	db, err := MetricsDBPath()
	if err != nil {
		t.Fatalf("MetricsDBPath: %v", err)
	}
	if db != filepath.Join(dir, "metrics.db") {
		t.Errorf("MetricsDBPath() = %q", db)
	}
}

func TestConfigPathPrefersGlobalWhenNoLocal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RELAYBOT_HOME", home)
	t.Chdir(t.TempDir())

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if got != "" {
		t.Fatalf("expected no config, got %q", got)
	}

	global := filepath.Join(home, ConfigFileName)
	if err := os.WriteFile(global, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err = ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if got != global {
		t.Errorf("ConfigPath() = %q, want %q", got, global)
	}
}

func TestConfigPathFindsLocalTOML(t *testing.T) {
	t.Setenv("RELAYBOT_HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(TOMLConfigFileName, []byte(""), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if filepath.Base(got) != TOMLConfigFileName {
		t.Errorf("ConfigPath() = %q", got)
	}

	if err := os.WriteFile(ConfigFileName, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	got, _ = ConfigPath()
	if filepath.Base(got) != ConfigFileName {
		t.Errorf("JSON should win over TOML, got %q", got)
	}
}

func TestExpandTilde(t *testing.T) {
	if got, _ := ExpandTilde("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, _ := ExpandTilde("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandTilde(~/x) = %q", got)
	}
}
