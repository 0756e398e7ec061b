package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/emr"
	"github.com/roach88/schoolscreen/internal/record"
)

// UploadOptions holds flags for the upload command.
type UploadOptions struct {
	*RootOptions
	All  bool
	Test bool
}

// NewUploadCommand creates the upload command.
func NewUploadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UploadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upload [subject-id...]",
		Short: "Upload screenings to the configured EMR",
		Long: `Upload screenings to the EMR endpoint in emr.endpoint, rendered in
emr.format (json, fhir, hl7 or custom). Each successful upload marks the
screening uploaded. Uploads in a batch are spaced by emr.batch_delay.

Exit codes:
  0 - every upload succeeded
  1 - at least one upload failed
  2 - command error (no endpoint, store unavailable)

Example:
  screenctl upload S1 S2
  screenctl upload --all
  screenctl upload --test`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "upload every completed screening")
	cmd.Flags().BoolVar(&opts.Test, "test", false, "only test the connection to the endpoint")
	return cmd
}

func runUpload(opts *UploadOptions, ids []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	client, err := emr.NewClient(opts.Config.EMR, emr.WithLogger(opts.Logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure EMR client", err)
	}

	if opts.Test {
		if err := client.TestConnection(ctx); err != nil {
			return WrapExitError(ExitFailure, "connection test failed", err)
		}
		return formatter.Result(map[string]bool{"connected": true}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "✓ %s reachable\n", opts.Config.EMR.Endpoint)
			return err
		})
	}

	if opts.All == (len(ids) > 0) {
		return NewExitError(ExitCommandError, "give subject IDs or --all, not both")
	}

	repo, closeRepo, err := opts.openRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	var recs []record.Record
	if opts.All {
		recs, err = repo.CompletedRecords(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load completed records", err)
		}
	} else {
		for _, id := range ids {
			rec, err := getRecord(cmd, repo, id)
			if err != nil {
				return err
			}
			if rec.Status == record.StatusInProgress {
				return WrapExitError(ExitFailure, fmt.Sprintf("cannot upload %q", id), emr.ErrNotCompleted)
			}
			recs = append(recs, *rec)
		}
	}

	result := emr.UploadBatch(ctx, client, repo, recs, emr.BatchOptions{
		Delay:  opts.Config.EMR.BatchDelay,
		Logger: opts.Logger,
		OnProgress: func(done, total int) {
			formatter.VerboseLog("uploaded %d/%d", done, total)
		},
	})

	if err := formatter.Result(result, func(w io.Writer) error {
		for _, r := range result.Results {
			if r.Success {
				fmt.Fprintf(w, "✓ %s", r.SubjectID)
				if r.EMRID != "" {
					fmt.Fprintf(w, " (%s)", r.EMRID)
				}
				fmt.Fprintln(w)
			} else {
				fmt.Fprintf(w, "✗ %s: %s\n", r.SubjectID, r.Error)
			}
		}
		_, err := fmt.Fprintf(w, "\n%d attempted, %d uploaded, %d failed\n",
			result.Attempted, result.Successful, result.Failed)
		return err
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d upload(s) failed", result.Failed))
	}
	return nil
}
