// Package cmd provides the CLI commands for CodeScope.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/core"
	"github.com/codescope/codescope/internal/logging"
	"github.com/codescope/codescope/internal/profiling"
	"github.com/codescope/codescope/pkg/version"
)

var (
	debugMode      bool
	quietMode      bool
	loggingCleanup func()
	rootLogger     *slog.Logger

	profileCPU   string
	profileMem   string
	profileTrace string
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the codescope CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codescope",
		Short: "Local code-intelligence indexing engine",
		Long: `CodeScope indexes codebases into a vector store and a code graph
for semantic search and structural navigation.

It scans a project, splits source files into syntax-aware chunks,
embeds them, and extracts entities and relationships, keeping both
stores current as files change.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("codescope version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codescope/logs/")
	cmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Suppress progress output")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startRun
	cmd.PersistentPostRunE = stopRun

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startRun(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging must never block the CLI; fall back to a discard
		// logger and keep going.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		cleanup = func() {}
	}
	rootLogger = logger
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if profileCPU != "" {
		cpuCleanup, err = profiling.StartCPU(profileCPU)
		if err != nil {
			return err
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiling.StartTrace(profileTrace)
		if err != nil {
			return err
		}
	}
	return nil
}

func stopRun(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	var err error
	if profileMem != "" {
		err = profiling.WriteHeap(profileMem)
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// resolveRoot turns an optional positional path argument into an
// absolute project root.
func resolveRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// newCore loads the project's configuration and builds the engine.
// Callers must Close the returned Core.
func newCore(root string) (*core.Core, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return core.New(cfg, rootLogger)
}
