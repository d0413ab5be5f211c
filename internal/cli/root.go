package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/varbatch/internal/config"
	"github.com/rshade/varbatch/internal/logging"
	"github.com/rshade/varbatch/internal/workerhost"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the varbatch CLI.
// It loads configuration, wires up logging and tracing, and registers the
// annotate, plan, annotators and config commands plus the hidden worker
// entrypoint.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:           "varbatch",
		Short:         "Parallel batch annotation of variant records",
		Long:          "varbatch: annotate VCF records in parallel worker processes with strictly ordered output",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file (default ~/.varbatch/config.yaml plus project overlay)")
	cmd.PersistentFlags().String("project-dir", "", "project directory holding .varbatch/config.yaml")
	cmd.AddCommand(
		NewAnnotateCmd(), NewPlanCmd(), NewAnnotatorsCmd(),
		newConfigCmd(), NewWorkerCmd(),
	)

	return cmd
}

// loadConfig installs the global configuration for this invocation. An
// explicit --config file replaces the user file and project overlay; the
// environment still applies on top.
func loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg := config.Default()
		if err := cfg.Load(path); err != nil {
			return err
		}
		cfg.ApplyEnvOverrides()
		config.SetGlobalConfig(cfg)
		return nil
	}

	flagDir, _ := cmd.Flags().GetString("project-dir")
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	projectDir := config.ResolveProjectDir(cmd.Context(), flagDir, wd)
	config.InitGlobalConfigWithProject(cmd.Context(), projectDir)
	return nil
}

const rootCmdExample = `  # Annotate a VCF with 4 worker processes
  varbatch annotate --input calls.vcf --output calls.annotated.vcf --fork 4

  # Stream from stdin to NDJSON using the allele_stats annotator
  zcat calls.vcf.gz | varbatch annotate --annotator allele_stats --format ndjson

  # Show how a 5000-record chunk is split across 4 workers
  varbatch plan --records 5000 --fork 4

  # List available annotators
  varbatch annotators

  # Initialize configuration
  varbatch config init`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigValidateCmd())
	return cmd
}

// NewWorkerCmd creates the hidden command a dispatcher re-executes to run a
// worker. It skips configuration and logging setup: the worker talks only
// over its inherited descriptors and exits.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:           workerhost.WorkerCommandName,
		Short:         "Run an annotation worker (internal)",
		Hidden:        true,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Empty hooks replace the root's setup for this command.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(_ *cobra.Command, _ []string) error {
			if code := runWorker(); code != 0 {
				return &ExitError{Code: code, Err: fmt.Errorf("worker exited with code %d", code)}
			}
			return nil
		},
	}
}

// expandPath resolves a leading ~ in user-supplied paths.
func expandPath(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
