package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/record"
)

// NewRosterCommand creates the roster command.
func NewRosterCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Export the screening list as an Excel workbook",
		Long: `Write an .xlsx workbook with one row per saved screening and a
second sheet of key measurements.

Example:
  screenctl roster -o class-5b.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			recs := make([]record.Record, 0, len(entries))
			for _, e := range entries {
				rec, err := repo.Get(ctx, e.SubjectID)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", e.SubjectID), err)
				}
				if rec == nil {
					opts.Logger.Warn("index entry without record", "subject_id", e.SubjectID)
					continue
				}
				recs = append(recs, *rec)
			}

			f, err := os.Create(output)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create roster file", err)
			}
			if err := export.WriteRoster(f, entries, recs); err != nil {
				f.Close()
				return WrapExitError(ExitCommandError, "failed to write roster", err)
			}
			if err := f.Close(); err != nil {
				return WrapExitError(ExitCommandError, "failed to write roster", err)
			}

			data := map[string]any{"path": output, "rows": len(entries)}
			return opts.formatter(cmd).Result(data, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "✓ %s (%d screening(s))\n", output, len(entries))
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "roster.xlsx", "output workbook path")
	return cmd
}
