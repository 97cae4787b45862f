package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/crotosolve/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// cfg is loaded before any subcommand runs. Command flags override it
	// only when they are set explicitly.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "crotosolve",
	Short: "Coordinate-descent optimization of trigonometric cost landscapes",
	Long: `Crotosolve minimizes cost functions that are trigonometric in every
parameter by reconstructing each univariate slice from a handful of samples
and jumping straight to its minimum. Baseline optimizers run behind the same
interface for comparison.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
			level = cfg.LogLevel
		}
		setupLogger(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
}

// setupLogger installs a JSON slog handler on stdout
func setupLogger(name string) {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// currentConfig returns the loaded config, or the built-in defaults when
// no command has loaded one yet.
func currentConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load("")
}
