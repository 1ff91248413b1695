// Package config loads and validates the client configuration. Config files
// are JSON by default; YAML is accepted by file extension. ${VAR} and
// ${VAR:-default} references are expanded from the environment before
// parsing.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the client.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	General GeneralConfig `json:"general" yaml:"general"`
	Session SessionConfig `json:"session" yaml:"session"`
	Client  ClientConfig  `json:"client" yaml:"client"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// ServerConfig points at the messaging service.
type ServerConfig struct {
	APIBase string `json:"apiBase" yaml:"apiBase"`
	WSURL   string `json:"wsUrl" yaml:"wsUrl"`
}

// GeneralConfig covers logging.
type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// SessionConfig covers the local session store.
type SessionConfig struct {
	DBPath string `json:"dbPath" yaml:"dbPath"`
}

// ClientConfig holds the protocol tunables. The defaults are the protocol
// constants; change them only against a server configured to match.
type ClientConfig struct {
	MaxReconnects         int `json:"maxReconnects" yaml:"maxReconnects"`
	ReconnectDelaySeconds int `json:"reconnectDelaySeconds" yaml:"reconnectDelaySeconds"`
	PollIntervalSeconds   int `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	TypingExpirySeconds   int `json:"typingExpirySeconds" yaml:"typingExpirySeconds"`
}

// MetricsConfig enables the opt-in debug metrics listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// DefaultConfigDir returns ~/.beeline.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".beeline"
	}
	return filepath.Join(home, ".beeline")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, expands and validates a config file. Unset fields keep their
// defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Session.DBPath = ExpandPath(cfg.Session.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks the config for values the client cannot run with.
func Validate(cfg *Config) error {
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.logLevel must be one of debug|info|warn|error, got %q", cfg.General.LogLevel)
	}

	if cfg.Server.APIBase == "" {
		return fmt.Errorf("server.apiBase must be set")
	}
	if !strings.HasPrefix(cfg.Server.APIBase, "http://") && !strings.HasPrefix(cfg.Server.APIBase, "https://") {
		return fmt.Errorf("server.apiBase must be an http(s) URL, got %q", cfg.Server.APIBase)
	}
	if !strings.HasPrefix(cfg.Server.WSURL, "ws://") && !strings.HasPrefix(cfg.Server.WSURL, "wss://") {
		return fmt.Errorf("server.wsUrl must be a ws(s) URL, got %q", cfg.Server.WSURL)
	}

	if cfg.Client.MaxReconnects < 1 || cfg.Client.MaxReconnects > 20 {
		return fmt.Errorf("client.maxReconnects must be 1..20, got %d", cfg.Client.MaxReconnects)
	}
	if cfg.Client.ReconnectDelaySeconds < 1 {
		return fmt.Errorf("client.reconnectDelaySeconds must be positive")
	}
	if cfg.Client.PollIntervalSeconds < 1 {
		return fmt.Errorf("client.pollIntervalSeconds must be positive")
	}
	if cfg.Client.TypingExpirySeconds < 1 {
		return fmt.Errorf("client.typingExpirySeconds must be positive")
	}

	if cfg.Session.DBPath == "" {
		return fmt.Errorf("session.dbPath must be set")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics.enabled is true")
	}

	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves a leading ~/ against the home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
