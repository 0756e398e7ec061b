package analysis

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/schoolscreen/internal/screening"
	"github.com/roach88/schoolscreen/internal/session"
)

// Target receives analysis results. *session.Machine implements it.
type Target interface {
	TokenFor(id string, field screening.Field) (session.Token, error)
	ApplyAnalysis(tok session.Token, text string, failure error) (bool, error)
}

// Task is one call against the analyzer.
type Task func(ctx context.Context, a Analyzer) (string, error)

// Text runs a text generation task.
func Text(prompt string) Task {
	return func(ctx context.Context, a Analyzer) (string, error) { return a.AnalyzeText(ctx, prompt) }
}

// ImageTask runs an image analysis task.
func ImageTask(img Image, prompt string) Task {
	return func(ctx context.Context, a Analyzer) (string, error) { return a.AnalyzeImage(ctx, img, prompt) }
}

// OCRTask runs a text extraction task.
func OCRTask(img Image, prompt string) Task {
	return func(ctx context.Context, a Analyzer) (string, error) { return a.ExtractText(ctx, img, prompt) }
}

// AudioTask runs a simulated auscultation task.
func AudioTask(inputType, prompt string) Task {
	return func(ctx context.Context, a Analyzer) (string, error) {
		return a.AnalyzeSimulatedAudio(ctx, inputType, prompt)
	}
}

// Result is the outcome of one dispatched task.
type Result struct {
	Token   session.Token
	Text    string
	Err     error
	Applied bool
}

// Dispatcher runs tasks in the background and hands results to the target.
type Dispatcher struct {
	analyzer Analyzer
	target   Target
	newID    func() string
	logger   *slog.Logger
	onResult func(Result)

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithIDs replaces the UUIDv7 task ID generator.
func WithIDs(next func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = next }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// OnResult registers a callback run after each result is delivered.
func OnResult(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// NewDispatcher creates a dispatcher delivering a's results to target.
func NewDispatcher(a Analyzer, target Target, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		analyzer: a,
		target:   target,
		newID:    newTaskID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Submit tags task with the machine's current focus and starts it. The
// field must belong to the current step.
func (d *Dispatcher) Submit(ctx context.Context, field screening.Field, task Task) (session.Token, error) {
	tok, err := d.target.TokenFor(d.newID(), field)
	if err != nil {
		return session.Token{}, err
	}
	d.logger.Debug("analysis submitted", "task_id", tok.ID, "subject_id", tok.SubjectID, "field", tok.Field)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(ctx, tok, task)
	}()
	return tok, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tok session.Token, task Task) {
	text, callErr := task(ctx, d.analyzer)
	if callErr != nil {
		d.logger.Warn("analysis failed", "task_id", tok.ID, "field", tok.Field, "error", callErr)
	}
	applied, err := d.target.ApplyAnalysis(tok, text, callErr)
	if err != nil {
		d.logger.Error("analysis result rejected", "task_id", tok.ID, "field", tok.Field, "error", err)
	}
	if d.onResult != nil {
		d.onResult(Result{Token: tok, Text: text, Err: callErr, Applied: applied})
	}
}

// Wait blocks until every submitted task has been delivered.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
