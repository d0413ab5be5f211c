package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rshade/varbatch/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration: the global file, the project overlay,
VARBATCH_* environment variables and --config, if given.

This includes:
- Worker count and buffer size ranges
- Annotator name against the registry
- Output format and log level names`,
		Example: `  # Validate current configuration
  varbatch config validate

  # Validate a specific file and show the effective values
  varbatch --config ./ci.yaml config validate --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose bool) error {
	cfg := config.GetGlobalConfig()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	if cfg.Path() != "" {
		cmd.Printf("  Config file: %s\n", cfg.Path())
	}
	cmd.Printf("  Fork: %d\n", cfg.Dispatch.Fork)
	cmd.Printf("  Buffer size: %d\n", cfg.Dispatch.BufferSize)
	if cfg.Dispatch.WorkerTimeout > 0 {
		cmd.Printf("  Worker timeout: %s\n", cfg.Dispatch.WorkerTimeout)
	}
	if cfg.Dispatch.WorkerBinary != "" {
		cmd.Printf("  Worker binary: %s\n", cfg.Dispatch.WorkerBinary)
	}
	cmd.Printf("  Annotator: %s\n", cfg.Annotation.Annotator)
	keys := make([]string, 0, len(cfg.Annotation.Options))
	for k := range cfg.Annotation.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("    %s=%s\n", k, cfg.Annotation.Options[k])
	}
	cmd.Printf("  Output format: %s\n", cfg.Output.Format)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
}
