package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ealebed/gh-backport-command/internal/config"
)

// exitCode is what the process returns when the command itself succeeded;
// `run` sets it to the number of failed branches.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "backport",
	Short: "Backport pull requests onto release branches from a /backport comment",
	Long: `backport reacts to "/backport [--dry-run] <branch>..." comments on pull requests.
For every named branch it replays the pull request's commits onto a fresh
backport/<pr>-to-<branch> branch, pushes it and opens a pull request, then
reports the result as a comment on the original pull request.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load() // ok if no .env

	rootCmd.AddCommand(newRunCmd(), newServeCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// loadConfig reads the environment and installs the process logger.
// defaultFormat applies when LOG_FORMAT is unset.
func loadConfig(defaultFormat string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	format := cfg.LogFormat
	if format == "" {
		format = defaultFormat
	}
	slog.SetDefault(newLogger(cfg.LogLevel, format))
	return cfg, nil
}

// newLogger builds the slog logger for LOG_LEVEL=debug|info|warn|error and
// LOG_FORMAT=json|text.
func newLogger(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
