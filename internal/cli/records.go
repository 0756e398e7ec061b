package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/record"
)

const listTimeLayout = "2006-01-02 15:04"

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved screenings, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want record.Status
			if status != "" {
				s, ok := record.ParseStatus(status)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status))
				}
				want = s
			}

			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			entries, err := repo.List(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list records", err)
			}
			if want != "" {
				kept := entries[:0]
				for _, e := range entries {
					if e.Status == want {
						kept = append(kept, e)
					}
				}
				entries = kept
			}

			return opts.formatter(cmd).Result(entries, func(w io.Writer) error {
				if len(entries) == 0 {
					_, err := fmt.Fprintln(w, "No screenings saved.")
					return err
				}
				tw := newTable(w)
				fmt.Fprintln(tw, "SUBJECT\tNAME\tSTATUS\tSTEPS\tUPDATED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						e.SubjectID, e.DisplayName, e.Status, len(e.CompletedSteps), stamp(e.UpdatedAt))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show records with this status (in_progress|completed|uploaded)")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "show <subject-id>",
		Short: "Print a screening as a snapshot or report",
		Long: `Print a saved screening.

Without --report the full snapshot is printed, as written by export.
With --report the printable projection is shown instead: navigation state
and skipped sections are dropped, skipped modules are listed and BMI is
derived.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			rec, err := getRecord(cmd, repo, args[0])
			if err != nil {
				return err
			}
			data, err := renderSnapshot(*rec, report)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render record", err)
			}
			return opts.formatter(cmd).Result(json.RawMessage(data), func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "print the report projection instead of the snapshot")
	return cmd
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	OutputDir string
	Report    bool
	All       bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [subject-id...]",
		Short: "Write screening snapshots to JSON files",
		Long: `Write one JSON file per screening into the output directory, named
screening_report_<subject>_<yyyymmdd>.json after the record's creation date.

Example:
  screenctl export S1 S2 -o ./out
  screenctl export --all --report -o ./reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.Report, "report", false, "write the report projection instead of the snapshot")
	cmd.Flags().BoolVar(&opts.All, "all", false, "export every saved screening")
	return cmd
}

func runExport(opts *ExportOptions, ids []string, cmd *cobra.Command) error {
	if opts.All == (len(ids) > 0) {
		return NewExitError(ExitCommandError, "give subject IDs or --all, not both")
	}

	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.openRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	if opts.All {
		entries, err := repo.List(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list records", err)
		}
		for _, e := range entries {
			ids = append(ids, e.SubjectID)
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	written := []string{}
	for _, id := range ids {
		rec, err := getRecord(cmd, repo, id)
		if err != nil {
			return err
		}
		data, err := renderSnapshot(*rec, opts.Report)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to render %s", id), err)
		}
		path := filepath.Join(opts.OutputDir, export.FileName(rec.SubjectID, rec.CreatedAt))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write export", err)
		}
		opts.Logger.Debug("exported record", "subject_id", id, "path", path)
		written = append(written, path)
	}

	return opts.formatter(cmd).Result(map[string]any{"files": written}, func(w io.Writer) error {
		for _, p := range written {
			fmt.Fprintf(w, "✓ %s\n", p)
		}
		_, err := fmt.Fprintf(w, "Exported %d screening(s)\n", len(written))
		return err
	})
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <snapshot.json...>",
		Short: "Validate and store exported snapshots",
		Long: `Import snapshot files written by export. Each file is checked against
the snapshot schema before it is stored; an existing record for the same
subject is overwritten and keeps its status.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			imported := []record.IndexEntry{}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read snapshot", err)
				}
				session, err := export.ImportSnapshot(data)
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("invalid snapshot %s", path), err)
				}
				rec, err := repo.Save(ctx, session)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to store %s", path), err)
				}
				imported = append(imported, rec.Entry())
			}

			return opts.formatter(cmd).Result(imported, func(w io.Writer) error {
				for _, e := range imported {
					fmt.Fprintf(w, "✓ %s (%s)\n", e.SubjectID, e.DisplayName)
				}
				return nil
			})
		},
	}
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subject-id...>",
		Short: "Delete saved screenings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			for _, id := range args {
				if err := repo.Delete(ctx, id); err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to delete %s", id), err)
				}
			}
			return opts.formatter(cmd).Result(map[string]any{"deleted": args}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %d screening(s)\n", len(args))
				return err
			})
		},
	}
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <subject-id...>",
		Short: "Mark screenings completed",
		Long: `Mark screenings completed so they are picked up by "upload --all".
Uploaded screenings stay uploaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			entries := []record.IndexEntry{}
			for _, id := range args {
				rec, err := repo.MarkCompleted(ctx, id)
				if errors.Is(err, record.ErrNotFound) {
					return NewExitError(ExitFailure, fmt.Sprintf("no screening for %q", id))
				}
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to complete %s", id), err)
				}
				entries = append(entries, rec.Entry())
			}
			return opts.formatter(cmd).Result(entries, func(w io.Writer) error {
				for _, e := range entries {
					fmt.Fprintf(w, "✓ %s %s\n", e.SubjectID, e.Status)
				}
				return nil
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved screening",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete all screenings without --yes")
			}
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			n, err := repo.ClearAll(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to clear records", err)
			}
			opts.Logger.Info("cleared records", "count", n)
			return opts.formatter(cmd).Result(map[string]int{"deleted": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %d screening(s)\n", n)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every screening")
	return cmd
}

// NewRebuildIndexCommand creates the rebuild-index command.
func NewRebuildIndexCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the screening list from the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			entries, err := repo.RebuildIndex(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to rebuild index", err)
			}
			return opts.formatter(cmd).Result(map[string]int{"entries": len(entries)}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Index rebuilt: %d screening(s)\n", len(entries))
				return err
			})
		},
	}
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(opts *RootOptions) *cobra.Command {
	var camera, microphone string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the preferred capture devices",
		Long: `Without flags the stored device preferences are printed. --camera and
--microphone replace the stored IDs; pass an empty value to clear one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, closeRepo, err := opts.openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			s, err := repo.LoadSettings(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load settings", err)
			}
			changed := false
			if cmd.Flags().Changed("camera") {
				s.PreferredCameraID = strings.TrimSpace(camera)
				changed = true
			}
			if cmd.Flags().Changed("microphone") {
				s.PreferredMicrophoneID = strings.TrimSpace(microphone)
				changed = true
			}
			if changed {
				if err := repo.SaveSettings(ctx, s); err != nil {
					return WrapExitError(ExitCommandError, "failed to save settings", err)
				}
			}

			return opts.formatter(cmd).Result(s, func(w io.Writer) error {
				fmt.Fprintf(w, "camera:     %s\n", orNone(s.PreferredCameraID))
				_, err := fmt.Fprintf(w, "microphone: %s\n", orNone(s.PreferredMicrophoneID))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&camera, "camera", "", "preferred camera device ID")
	cmd.Flags().StringVar(&microphone, "microphone", "", "preferred microphone device ID")
	return cmd
}

// getRecord loads one record, mapping a missing record to ExitFailure.
func getRecord(cmd *cobra.Command, repo *record.Repository, id string) (*record.Record, error) {
	rec, err := repo.Get(commandContext(cmd), id)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", id), err)
	}
	if rec == nil {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("no screening for %q", id))
	}
	return rec, nil
}

// renderSnapshot returns the snapshot or report bytes, newline-terminated.
func renderSnapshot(rec record.Record, report bool) ([]byte, error) {
	if !report {
		return export.BuildFullSnapshot(rec.Payload)
	}
	data, err := export.BuildReportProjection(rec.Payload)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

// stamp formats t for text output.
func stamp(t time.Time) string {
	return t.UTC().Format(listTimeLayout)
}
