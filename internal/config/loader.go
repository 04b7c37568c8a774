package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".aidesk"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AIDESK_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load process env vars from ~/.config/aidesk/env (and fallbacks) first.
	applyEnvFiles()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("AIDESK_PATHS", &cfg.Paths)
	envconfig.Process("AIDESK_MODEL", &cfg.Model)
	envconfig.Process("AIDESK_AGENT", &cfg.Agent)
	envconfig.Process("AIDESK_PROVIDER", &cfg.Provider)
	envconfig.Process("AIDESK_SERVER", &cfg.Server)
	envconfig.Process("AIDESK_TOOLS_COMMAND", &cfg.Tools.Command)
	envconfig.Process("AIDESK_TOOLS_KNOWLEDGE", &cfg.Tools.Knowledge)
	envconfig.Process("AIDESK_TOOLS_WEB", &cfg.Tools.Web)
	envconfig.Process("AIDESK_TOOLS_EMAIL", &cfg.Tools.Email)
	envconfig.Process("AIDESK_TOOLS_MICLOUD", &cfg.Tools.MiCloud)
	envconfig.Process("AIDESK_TRACE", &cfg.Trace)

	// Fallback for the provider API key
	if cfg.Provider.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		}
	}

	// Expand ~ in paths
	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.Paths.DataDir)
	expandHome(&cfg.Paths.SessionsDir)
	expandHome(&cfg.Tools.Knowledge.DBPath)
	expandHome(&cfg.Tools.MiCloud.TokenPath)
	expandHome(&cfg.Trace.DBPath)

	// Derive data-relative paths that were left empty.
	if cfg.Paths.SessionsDir == "" {
		cfg.Paths.SessionsDir = filepath.Join(cfg.Paths.DataDir, "sessions")
	}
	if cfg.Tools.Knowledge.DBPath == "" {
		cfg.Tools.Knowledge.DBPath = filepath.Join(cfg.Paths.DataDir, "knowledge.db")
	}
	if cfg.Tools.MiCloud.TokenPath == "" {
		cfg.Tools.MiCloud.TokenPath = filepath.Join(cfg.Paths.DataDir, "micloud_token.json")
	}
	if cfg.Trace.DBPath == "" {
		cfg.Trace.DBPath = filepath.Join(cfg.Paths.DataDir, "trace.db")
	}

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// envFileCandidates lists the env files consulted before envconfig runs.
// An explicit AIDESK_ENV_FILE comes first; the rest are the conventional
// locations under the user's home.
func envFileCandidates() []string {
	var paths []string
	if explicit := strings.TrimSpace(os.Getenv("AIDESK_ENV_FILE")); explicit != "" {
		paths = append(paths, explicit)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "aidesk", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}
	return paths
}

// applyEnvFiles sets process env vars from the candidate files. Variables
// already present in the environment are never overridden, so the process
// env stays authoritative.
func applyEnvFiles() {
	for _, path := range envFileCandidates() {
		_ = applyEnvFile(path)
	}
}

func applyEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, raw := range strings.Split(string(data), "\n") {
		key, val, ok := parseEnvLine(raw)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, val)
	}
	return nil
}

// parseEnvLine splits one KEY=VALUE line, tolerating comments, an
// optional export prefix, and matching single or double quotes.
func parseEnvLine(raw string) (key, val string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, ok = strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if key == "" {
		return "", "", false
	}
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return key, val, true
}
