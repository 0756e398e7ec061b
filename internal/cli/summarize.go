package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/analysis"
	"github.com/roach88/schoolscreen/internal/screening"
)

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "summarize <subject-id>",
		Short: "Generate the AI summary for a screening",
		Long: `Ask the analysis proxy (analysis.url) for the doctor-facing summary of
a saved screening and store it in the final report. Only the report
projection is sent, so skipped sections and navigation state never leave
the device.

With --dry-run the summary is printed and nothing is stored.`,
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
			prompt, err := analysis.SummaryReportFor(rec.Payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build summary prompt", err)
			}

			client := analysis.NewClientFromConfig(opts.Config.Analysis, opts.Logger)
			summary, err := client.AnalyzeText(ctx, prompt)
			if err != nil {
				return WrapExitError(ExitFailure, "summary request failed", err)
			}

			version := rec.Version
			if !dryRun {
				session := rec.Payload
				if err := session.Apply(screening.FinalReportPatch{AISummary: &summary}); err != nil {
					return WrapExitError(ExitCommandError, "failed to apply summary", err)
				}
				saved, err := repo.Save(ctx, session)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to save summary", err)
				}
				version = saved.Version
			}

			data := map[string]any{
				"subjectId": rec.SubjectID,
				"summary":   summary,
				"stored":    !dryRun,
				"version":   version,
			}
			return opts.formatter(cmd).Result(data, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, summary)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the summary without storing it")
	return cmd
}
