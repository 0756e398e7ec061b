package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/harness"
)

// WalkOptions holds flags for the walk command.
type WalkOptions struct {
	*RootOptions
	Update  bool   // regenerate golden files
	Filter  string // glob on the scenario file name
	Persist bool   // run against the configured store
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // match, mismatch, updated or none
	Errors []string `json:"errors,omitempty"`
}

// WalkResult holds the overall result.
type WalkResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewWalkCommand creates the walk command.
func NewWalkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WalkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "walk <scenarios-dir>",
		Short: "Replay scripted screening sessions",
		Long: `Drive the screening wizard through YAML scenarios and check their
expectations and assertions. When <scenarios-dir>/golden/<name>.golden
exists, the step trace and report projections must match it byte for byte.

Scenarios run against a fresh in-memory store unless --persist is given,
in which case their records are written to the configured store.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  screenctl walk ./scenarios
  screenctl walk ./scenarios --filter "jane*"
  screenctl walk ./scenarios --update
  screenctl walk ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "write scenario records to the configured store")
	return cmd
}

func runWalk(opts *WalkOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := WalkResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(opts, file, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := opts.formatter(cmd).Result(result, func(w io.Writer) error {
		if result.Total == 0 {
			_, err := fmt.Fprintln(w, "No scenarios found.")
			return err
		}
		for _, sr := range result.Scenarios {
			mark := "✓"
			if !sr.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s", mark, sr.Name)
			if sr.Golden == "updated" {
				fmt.Fprint(w, " (golden updated)")
			}
			fmt.Fprintln(w)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintln(w)
		_, err := fmt.Fprintf(w, "Walk Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		return err
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles lists the .yaml and .yml files under dir, skipping
// the golden directory.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenario(opts *WalkOptions, file string, cmd *cobra.Command) ScenarioResult {
	ctx := commandContext(cmd)

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}
	fail := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: scenario.Name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	runOpts := []harness.Option{harness.WithLogger(opts.Logger)}
	if opts.Persist {
		store, err := opts.OpenStore(ctx, opts.Config.Store)
		if err != nil {
			return fail("failed to open store: %v", err)
		}
		defer store.Close()
		runOpts = append(runOpts, harness.WithStore(store))
	}

	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return fail("execution failed: %v", err)
	}

	sr := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Golden: "none", Errors: result.Errors}

	current, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail("failed to render snapshot: %v", err)
	}
	goldenPath := goldenFilePath(file)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return fail("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, current, 0o644); err != nil {
			return fail("failed to write golden file: %v", err)
		}
		opts.Logger.Debug("golden updated", "scenario", scenario.Name, "path", goldenPath)
		sr.Golden = "updated"
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return sr
	case err != nil:
		return fail("failed to read golden file: %v", err)
	}

	sr.Golden = "match"
	if !bytes.Equal(golden, current) {
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

// goldenFilePath returns dir/golden/<name>.golden for dir/<name>.yaml.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
