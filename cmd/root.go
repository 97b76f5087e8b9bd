package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/index"
	"github.com/ziadkadry99/docintake/internal/pipeline"
)

// Exit statuses returned by ExitCode.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitRootNotFound = 2
	ExitCorruptIndex = 3
)

var (
	cfgFile  string
	logLevel string
	verbose  bool
)

// errBatchFailed is returned by process --fail-on-error when any document failed.
var errBatchFailed = errors.New("one or more documents failed")

var rootCmd = &cobra.Command{
	Use:   "docintake",
	Short: "OCR, classify and extract fields from scanned documents",
	Long: `docintake reads scanned or photographed documents, classifies them
against a reference index of labeled examples, extracts type-specific
fields with an LLM, and stores the results for search and export.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, pipeline.ErrRootNotFound):
		return ExitRootNotFound
	case errors.Is(err, index.ErrCorrupt):
		return ExitCorruptIndex
	default:
		return ExitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".docintake.yml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
}
