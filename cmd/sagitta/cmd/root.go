// Package cmd provides the CLI commands for sagitta.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagittacore/sagitta/internal/logging"
	"github.com/sagittacore/sagitta/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the sagitta CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sagitta",
		Short: "Repository-aware code intelligence for AI coding assistants",
		Long: `sagitta indexes registered Git repositories into a vector store and
serves hybrid-ranked semantic search and file/shell tools to AI coding
assistants over MCP and a plain HTTP session transport.

Register a repository with 'sagitta repo add', sync it, then run
'sagitta serve' to expose it to a client.`,
		Version:       version.Version,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("sagitta version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRepoCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging wires debug-level structured logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled")
	return nil
}

// stopLogging flushes and closes the debug log file, if one was opened.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
