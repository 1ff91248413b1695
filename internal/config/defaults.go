package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			APIBase: "http://localhost:8080/api",
			WSURL:   "ws://localhost:8080/ws",
		},
		General: GeneralConfig{
			LogLevel: "info",
		},
		Session: SessionConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "session.db"),
		},
		Client: ClientConfig{
			MaxReconnects:         5,
			ReconnectDelaySeconds: 2,
			PollIntervalSeconds:   2,
			TypingExpirySeconds:   3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9180",
		},
	}
}
