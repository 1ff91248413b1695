package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"beeline/internal/api"
	"beeline/internal/config"
	"beeline/internal/metrics"
	"beeline/internal/session"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "beeline",
		Short:   "Beeline: terminal client for the Beeline messaging service",
		Long:    "Beeline is a terminal messaging client with real-time delivery over websocket and a REST fallback.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.beeline/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(registerCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(whoamiCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(contactsCmd())
	root.AddCommand(groupCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when missing,
// and reconfigures the logger from it.
func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	configureLogger(cfg)
	return cfg
}

func configureLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func newAPI(cfg *config.Config) *api.Client {
	return api.New(api.Config{
		BaseURL: cfg.Server.APIBase,
		Timeout: 30 * time.Second,
		Logger:  logger,
	})
}

func openSession(cfg *config.Config) (*session.Store, error) {
	return session.Open(cfg.Session.DBPath, logger)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	var username, password, phone string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if err := newAPI(cfg).Register(cmd.Context(), username, password, phone); err != nil {
				return err
			}
			fmt.Println("Registered. Run 'beeline login' to sign in.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "pass", "p", "", "password")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number, your unique address")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, sessionID, err := newAPI(cfg).Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			store, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(sessionID, user); err != nil {
				return err
			}
			fmt.Printf("Signed in as %s (%s)\n", user.UserName, user.UserPhone)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "pass", "p", "", "password")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID, _, ok, err := store.Load()
			if err != nil {
				return err
			}
			if ok {
				if err := newAPI(cfg).Logout(cmd.Context(), sessionID); err != nil {
					// The local session is cleared regardless.
					logger.Warn("server logout failed", "err", err)
				}
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			_, user, ok, err := store.Load()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not signed in, run 'beeline login'")
			}
			fmt.Printf("%s (%s)\n", user.UserName, user.UserPhone)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session validity, endpoints and client metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			fmt.Printf("API:       %s\n", cfg.Server.APIBase)
			fmt.Printf("WebSocket: %s\n", cfg.Server.WSURL)

			store, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID, user, ok, err := store.Load()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Session:   none")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			valid, err := newAPI(cfg).CheckSession(ctx, sessionID)
			switch {
			case err != nil:
				fmt.Printf("Session:   %s (%s) - server unreachable: %v\n", user.UserName, user.UserPhone, err)
			case valid:
				fmt.Printf("Session:   %s (%s) - valid\n", user.UserName, user.UserPhone)
			default:
				fmt.Printf("Session:   %s (%s) - expired, run 'beeline login'\n", user.UserName, user.UserPhone)
			}

			fmt.Println()
			fmt.Print(metrics.Collector.Export())
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set config values",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Print a config value by dot path (e.g. server.apiBase)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(val)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set a config value by dot path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return config.Save(cfgPath, cfg)
		},
	})

	return cmd
}
