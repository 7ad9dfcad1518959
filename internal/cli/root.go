package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/docsync/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Resilience layer for document database clients",
	Long: `docsync wraps a document database client with error classification,
retry, catastrophic-failure recovery, diagnostics and error telemetry.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file, then sets up logging. A missing
// config file falls back to the in-memory defaults.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			stylelog.InitDefault()
			slog.Error("Failed to load config", "error", err)
			return nil, err
		}
		cfg = config.Default()
	}

	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		level = slog.LevelDebug
	case cfg.Level == "warn":
		level = slog.LevelWarn
	case cfg.Level == "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}
