package emr

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/schoolscreen/internal/record"
)

// Marker records a successful upload. *record.Repository implements it.
type Marker interface {
	MarkUploaded(ctx context.Context, subjectID string) (record.Record, error)
}

// Result is the outcome for one subject.
type Result struct {
	SubjectID string `json:"subjectId"`
	Success   bool   `json:"success"`
	EMRID     string `json:"emrId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResult summarizes a batch upload.
type BatchResult struct {
	Attempted  int      `json:"attempted"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// BatchOptions tune UploadBatch.
type BatchOptions struct {
	// Delay is the pause between consecutive uploads.
	Delay time.Duration
	// OnProgress is called after each subject with (completed, total).
	OnProgress func(completed, total int)
	Logger     *slog.Logger
}

// ErrNotCompleted rejects an upload of a screening still in progress.
var ErrNotCompleted = errors.New("screening is not completed")

// UploadOne uploads rec and marks it uploaded on success. Records still
// in progress are not sent. An upload that succeeds but cannot be marked
// is reported as a failure so it is retried.
func UploadOne(ctx context.Context, u Uploader, m Marker, rec record.Record) Result {
	if rec.Status == record.StatusInProgress {
		return Result{SubjectID: rec.SubjectID, Error: ErrNotCompleted.Error()}
	}
	id, err := u.Upload(ctx, rec)
	if err != nil {
		return Result{SubjectID: rec.SubjectID, Error: err.Error()}
	}
	if _, err := m.MarkUploaded(ctx, rec.SubjectID); err != nil {
		return Result{SubjectID: rec.SubjectID, EMRID: id, Error: "uploaded but not marked: " + err.Error()}
	}
	return Result{SubjectID: rec.SubjectID, Success: true, EMRID: id}
}

// UploadBatch uploads records in order. One failure does not stop the
// batch; a canceled context does, and the remaining records are reported
// as failed.
func UploadBatch(ctx context.Context, u Uploader, m Marker, recs []record.Record, opts BatchOptions) BatchResult {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := BatchResult{Attempted: len(recs), Results: make([]Result, 0, len(recs))}
	for i, rec := range recs {
		var r Result
		if err := ctx.Err(); err != nil {
			r = Result{SubjectID: rec.SubjectID, Error: err.Error()}
		} else {
			r = UploadOne(ctx, u, m, rec)
		}
		out.Results = append(out.Results, r)
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
			logger.Warn("emr upload failed", "subject_id", rec.SubjectID, "error", r.Error)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(recs))
		}
		if i < len(recs)-1 && opts.Delay > 0 && ctx.Err() == nil {
			wait(ctx, opts.Delay)
		}
	}
	return out
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
