// Package cmd implements the teststand CLI.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"teststand/internal/record"
	"teststand/internal/test"
)

// Exit codes for CLI commands. The run command maps the test outcome onto
// these so scripts can branch on what happened to the DUT.
const (
	// ExitCodeSuccess indicates the test passed (or the command succeeded).
	ExitCodeSuccess = 0
	// ExitCodeFail indicates the DUT failed the test.
	ExitCodeFail = 1
	// ExitCodeError indicates a framework error or timeout.
	ExitCodeError = 2
	// ExitCodeAborted indicates the operator aborted the run.
	ExitCodeAborted = 3
)

// registry holds the tests the CLI can run. The built-in example tests are
// registered at init; embedders add their own before calling Execute.
var registry = test.NewRegistry()

// rootCmd represents the base command for the teststand application.
var rootCmd = &cobra.Command{
	Use:   "teststand",
	Short: "Run hardware manufacturing tests against a DUT",
	Long: `teststand executes declarative hardware test sequences ("phases")
against a device-under-test, validates measurements, derives diagnoses,
and writes structured test records for downstream reporting.`,
	// SilenceUsage keeps error output clean for errors the application
	// already reports itself.
	SilenceUsage: true,
}

// Registry returns the CLI's test registry so embedders can add tests.
func Registry() *test.Registry {
	return registry
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "teststand version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

// exitCodeFor maps a finalized test outcome onto the exit code contract.
func exitCodeFor(outcome record.TestOutcome) int {
	switch outcome {
	case record.TestPass:
		return ExitCodeSuccess
	case record.TestFail:
		return ExitCodeFail
	case record.TestAborted:
		return ExitCodeAborted
	default:
		return ExitCodeError
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newConfigCmd())
}
