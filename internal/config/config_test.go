package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected max iterations 10, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxRetries != 3 {
		t.Errorf("expected max retries 3, got %d", cfg.Agent.MaxRetries)
	}
	if cfg.Model.MaxTokens != 800 {
		t.Errorf("expected max tokens 800, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("expected 30s provider timeout, got %v", cfg.Provider.Timeout)
	}
	if cfg.Tools.Web.MonthlyLimit != 100 {
		t.Errorf("expected monthly search limit 100, got %d", cfg.Tools.Web.MonthlyLimit)
	}
}

func TestConfigPathExplicit(t *testing.T) {
	tmp := t.TempDir()
	explicit := filepath.Join(tmp, "custom.json")
	t.Setenv("AIDESK_CONFIG", explicit)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	if path != explicit {
		t.Errorf("expected %s, got %s", explicit, path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AIDESK_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("AIDESK_MODEL_NAME", "test-model")
	t.Setenv("AIDESK_SERVER_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Name != "test-model" {
		t.Errorf("expected env model override, got %s", cfg.Model.Name)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	data := `{"model": {"name": "file-model", "maxTokens": 512}, "paths": {"dataDir": "` + tmp + `"}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AIDESK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Name != "file-model" {
		t.Errorf("expected file model, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 512 {
		t.Errorf("expected max tokens 512, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Paths.SessionsDir != filepath.Join(tmp, "sessions") {
		t.Errorf("expected derived sessions dir, got %s", cfg.Paths.SessionsDir)
	}
	if cfg.Tools.Knowledge.DBPath != filepath.Join(tmp, "knowledge.db") {
		t.Errorf("expected derived knowledge db path, got %s", cfg.Tools.Knowledge.DBPath)
	}
}

func TestLoadEnvFile(t *testing.T) {
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, "env")
	contents := "# comment\nexport AIDESK_TEST_KEY=\"quoted\"\nAIDESK_TEST_OTHER=plain\nbroken line\n"
	if err := os.WriteFile(envPath, []byte(contents), 0600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("AIDESK_TEST_KEY", "")
	os.Unsetenv("AIDESK_TEST_KEY")
	os.Unsetenv("AIDESK_TEST_OTHER")

	if err := applyEnvFile(envPath); err != nil {
		t.Fatalf("applyEnvFile() error: %v", err)
	}
	if got := os.Getenv("AIDESK_TEST_KEY"); got != "quoted" {
		t.Errorf("expected quoted value, got %q", got)
	}
	if got := os.Getenv("AIDESK_TEST_OTHER"); got != "plain" {
		t.Errorf("expected plain value, got %q", got)
	}
	os.Unsetenv("AIDESK_TEST_KEY")
	os.Unsetenv("AIDESK_TEST_OTHER")
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		in, key, val string
		ok           bool
	}{
		{"KEY=value", "KEY", "value", true},
		{"export KEY='single'", "KEY", "single", true},
		{`KEY="a=b"`, "KEY", "a=b", true},
		{"  # comment", "", "", false},
		{"", "", "", false},
		{"no equals sign", "", "", false},
		{"=value", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseEnvLine(tc.in)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Errorf("parseEnvLine(%q) = %q, %q, %v; want %q, %q, %v", tc.in, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}

func TestEnvDoesNotOverrideProcess(t *testing.T) {
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, "env")
	if err := os.WriteFile(envPath, []byte("AIDESK_TEST_FIXED=from-file\n"), 0600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("AIDESK_TEST_FIXED", "from-process")

	if err := applyEnvFile(envPath); err != nil {
		t.Fatalf("applyEnvFile() error: %v", err)
	}
	if got := os.Getenv("AIDESK_TEST_FIXED"); got != "from-process" {
		t.Errorf("process env must win, got %q", got)
	}
}
