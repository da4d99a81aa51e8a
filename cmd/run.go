package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"teststand/internal/config"
	"teststand/internal/exec"
	"teststand/internal/output"
	"teststand/internal/plug"
	"teststand/internal/record"
	"teststand/internal/test"
	"teststand/pkg/logging"
)

// runOptions carries the run command's flag values.
type runOptions struct {
	testName   string
	dutID      string
	configPath string
	outputDir  string
	writeJSON  bool
	writeYAML  bool
	loop       bool
}

// newRunCmd creates the command that executes one registered test.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a registered test against a DUT",
		Long: `Run executes the named test: waits for the DUT identifier (from --dut
or an operator prompt), runs every phase, and writes the test record.

With --loop the test runs again for the next DUT after each record is
written; aborting a run (Ctrl-C) exits the loop. Edits to the --config
file are picked up between runs.

The exit code reflects the outcome: 0 PASS, 1 FAIL, 2 ERROR/TIMEOUT,
3 ABORTED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runTest(opts)
			if err != nil {
				return err
			}
			// runTest's deferred cleanup (operator console, signal handler)
			// has run by this point, so exiting is safe.
			os.Exit(code)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.testName, "test", "", "name of the registered test to run")
	cmd.Flags().StringVar(&opts.dutID, "dut", "", "DUT identifier; prompts the operator when empty")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to the station config file")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "override the configured output directory")
	cmd.Flags().BoolVar(&opts.writeJSON, "json", false, "write the test record as JSON")
	cmd.Flags().BoolVar(&opts.writeYAML, "yaml", false, "write the test record as YAML")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "run again for the next DUT until aborted")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

// runTest executes the named test, repeatedly with --loop, and returns the
// exit code for the last completed run.
func runTest(opts *runOptions) (int, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 0, err
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	t, ok := registry.Get(opts.testName)
	if !ok {
		return 0, fmt.Errorf("unknown test %q, see 'teststand list'", opts.testName)
	}

	t.AddOutputCallbacks(output.NewConsoleSummary())
	if opts.writeJSON {
		t.AddOutputCallbacks(output.NewJSONWriter(cfg.OutputDir))
	}
	if opts.writeYAML {
		t.AddOutputCallbacks(output.NewYAMLWriter(cfg.OutputDir))
	}

	// While the station loops, config file edits take effect on the next
	// run. The watcher keeps the latest valid file content.
	var cfgMu sync.Mutex
	current := cfg
	if opts.configPath != "" {
		watchCtx, stopWatch := context.WithCancel(context.Background())
		defer stopWatch()
		go func() {
			_ = config.Watch(watchCtx, opts.configPath, func(next config.Config) {
				if opts.outputDir != "" {
					next.OutputDir = opts.outputDir
				}
				cfgMu.Lock()
				current = next
				cfgMu.Unlock()
			})
		}()
	}

	trigger, cleanup, err := makeStartTrigger(opts.dutID)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	detach := test.NotifyAbortSignals(t)
	defer detach()

	for {
		cfgMu.Lock()
		runCfg := current
		cfgMu.Unlock()

		spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = fmt.Sprintf(" running %s...", t.Name())
		spin.Writer = os.Stderr
		spin.Start()
		rec, err := t.Execute(runCfg, trigger)
		spin.Stop()
		if err != nil {
			return 0, err
		}
		if !opts.loop || rec.Outcome == record.TestAborted {
			return exitCodeFor(rec.Outcome), nil
		}
	}
}

// makeStartTrigger resolves the DUT identifier source: a fixed flag value,
// or an operator prompt on the console.
func makeStartTrigger(dutID string) (exec.StartTrigger, func(), error) {
	if dutID != "" {
		return func() (string, error) { return dutID, nil }, func() {}, nil
	}
	ui, err := plug.NewUserInput()
	if err != nil {
		return nil, nil, err
	}
	return ui.PromptDUTID, ui.TearDown, nil
}
