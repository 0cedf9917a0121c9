package config

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "pricetrack.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/pricetrack"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/pricetrack/config.yaml)
// 3. Project config (pricetrack.yaml in current or parent directories)
// 4. PRICETRACK_* environment variables
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// Environment variables override everything from files
	l.applyEnvOverrides(config)

	// Auto-detect workspace root if not set
	if config.Workspace.Root == "" {
		if gitRoot := l.detectGitRoot(); gitRoot != "" {
			config.Workspace.Root = gitRoot
			l.logger.Debug("Auto-detected git root", slog.String("path", gitRoot))
		} else {
			// Fall back to current directory
			if cwd, err := os.Getwd(); err == nil {
				config.Workspace.Root = cwd
				l.logger.Debug("Using current directory as workspace root", slog.String("path", cwd))
			}
		}
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies PRICETRACK_* environment variables on top of
// the file-based layers. NATS_URL also switches off the embedded server,
// matching Merge.
func (l *Loader) applyEnvOverrides(config *Config) {
	if v := os.Getenv("PRICETRACK_WORKSPACE_ROOT"); v != "" {
		config.Workspace.Root = v
	}
	if v := os.Getenv("PRICETRACK_HISTORY_DB"); v != "" {
		config.Workspace.HistoryDB = v
	}
	if v := os.Getenv("PRICETRACK_BASE_URL"); v != "" {
		config.Scrape.BaseURL = v
	}
	if v := os.Getenv("PRICETRACK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scrape.Workers = n
		} else {
			l.logger.Warn("Ignoring invalid PRICETRACK_WORKERS", slog.String("value", v))
		}
	}
	if v := os.Getenv("PRICETRACK_NATS_URL"); v != "" {
		config.NATS.URL = v
		config.NATS.Embedded = false
	}
	if v := os.Getenv("PRICETRACK_EXPORT_FORMAT"); v != "" {
		config.Export.Format = v
	}
	if v := os.Getenv("PRICETRACK_EXPORT_DIR"); v != "" {
		config.Export.Dir = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for pricetrack.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// detectGitRoot finds the git repository root from current directory
func (l *Loader) detectGitRoot() string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}
