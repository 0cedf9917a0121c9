package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/config"
	"github.com/tracklab/pricetrack/workspace"
)

func newInitCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the standard project layout",
		Long: `Init creates the standard directory layout under the workspace root:

  data/external/   third-party inputs
  data/raw/        scraped exports
  models/          analysis artifacts
  notebooks/       exploration notebooks
  reports/figures/ generated charts

Existing directories are left untouched, so init is safe to re-run. A
default pricetrack.yaml is written if none exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags)
			if err != nil {
				return err
			}
			root := env.Config.Workspace.Root

			if err := workspace.Init(root); err != nil {
				return fmt.Errorf("initialize workspace: %w", err)
			}

			configPath := filepath.Join(root, config.ProjectConfigFile)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.DefaultConfig().SaveToFile(configPath); err != nil {
					return fmt.Errorf("write project config: %w", err)
				}
				fmt.Printf("Created %s\n", configPath)
			}

			fmt.Printf("Workspace initialized at %s\n", root)
			return nil
		},
	}
}
