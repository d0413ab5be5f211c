package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/varbatch/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
// By default it writes the global ~/.varbatch/config.yaml; --project writes
// ./.varbatch/config.yaml in the current directory instead.
func NewConfigInitCmd() *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates a new configuration file with default values.

The global file lives at ~/.varbatch/config.yaml (or $VARBATCH_HOME/config.yaml).
Use --project to create ./.varbatch/config.yaml, which overrides whole
sections of the global file when varbatch runs inside this directory tree.`,
		Example: `  # Create global configuration
  varbatch config init

  # Create project-local configuration
  varbatch config init --project

  # Create configuration, overwriting existing
  varbatch config init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if project {
				wd, wdErr := os.Getwd()
				if wdErr != nil {
					return fmt.Errorf("resolving working directory: %w", wdErr)
				}
				path = filepath.Join(wd, ".varbatch", "config.yaml")
			}
			return initConfigFile(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().BoolVar(&project, "project", false, "create ./.varbatch/config.yaml instead of the global file")

	return cmd
}

// initConfigFile writes the built-in defaults to path.
func initConfigFile(cmd *cobra.Command, path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return errors.New("configuration file already exists, use --force to overwrite")
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("cannot access config path %s: %w", path, err)
		}
	}

	if err := config.Default().SaveTo(path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized at %s\n", path)
	return nil
}
