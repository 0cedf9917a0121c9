// Package commands implements the pricetrack CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/config"
)

// Env carries the loaded configuration and logger into each command.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
}

// rootFlags holds the persistent flag values shared by all commands.
type rootFlags struct {
	configPath string
	workspace  string
	logLevel   string
}

// NewRootCommand builds the pricetrack root command tree.
func NewRootCommand(version, buildTime string) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pricetrack",
		Short: "Product price history tracker",
		Long: `Pricetrack collects price histories for tracked products.

It reads product URLs from seed lists, scrapes each product page for its
embedded price chart, stores the history in a local SQLite database and a
NATS KV entity store, and exports CSV files for analysis.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.workspace, "workspace", "", "Workspace root (default: auto-detect)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCommand(flags),
		newScrapeCommand(flags),
		newRunCommand(flags),
		newAddCommand(flags),
		newListCommand(flags),
		newHistoryCommand(flags),
		newExportCommand(flags),
		newVersionCommand(version, buildTime),
	)

	return cmd
}

// loadEnv configures logging and loads the layered configuration.
func loadEnv(flags *rootFlags) (*Env, error) {
	level := slog.LevelInfo
	switch strings.ToLower(flags.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFromFile(flags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
		if err != nil {
			return nil, err
		}
	}

	if flags.workspace != "" {
		abs, err := filepath.Abs(flags.workspace)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace path: %w", err)
		}
		cfg.Workspace.Root = abs
	}
	if cfg.Workspace.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Workspace.Root = cwd
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Env{Config: cfg, Logger: logger}, nil
}

func newVersionCommand(version, buildTime string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pricetrack version %s (build: %s)\n", version, buildTime)
		},
	}
}
