package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/schoolscreen/internal/analysis"
	"github.com/roach88/schoolscreen/internal/autosave"
	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/kv"
	"github.com/roach88/schoolscreen/internal/kv/memory"
	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
	"github.com/roach88/schoolscreen/internal/session"
	"github.com/roach88/schoolscreen/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	store    kv.Store
	repo     *record.Repository
	machine  *session.Machine
	clock    *testutil.StepClock
	ids      *testutil.SequenceIDs
	analyzer *scriptedAnalyzer
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	store  kv.Store
	logger *slog.Logger
}

// WithStore runs the scenario against store instead of a fresh
// in-memory one. Records written by the scenario stay in store.
func WithStore(s kv.Store) Option {
	return func(c *runConfig) { c.store = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario in a fresh in-memory store.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario and returns the result. Failed
// expectations and assertions are reported in the result; the error is
// for failures of the harness itself.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = memory.New()
	}

	clock := testutil.NewStepClock()
	h := &Harness{
		store:    cfg.store,
		repo:     record.New(cfg.store, record.WithClock(clock.Now), record.WithLogger(cfg.logger)),
		clock:    clock,
		ids:      testutil.NewSequenceIDs("task"),
		analyzer: &scriptedAnalyzer{},
		logger:   cfg.logger,
	}
	h.machine = h.newMachine()

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)
	result.CurrentStep = string(h.machine.CurrentStep())

	if err := h.collect(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to collect records: %w", err)
	}

	// Assertions against a half-run flow only add noise.
	if result.Pass {
		for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
			result.AddError(msg)
		}
	}
	return result, nil
}

// heldTimer never fires; saves only happen on Flush.
type heldTimer struct{}

func (heldTimer) Stop() bool { return true }

func holdTimer(time.Duration, func()) autosave.Timer { return heldTimer{} }

func (h *Harness) newMachine() *session.Machine {
	return session.New(h.repo,
		session.WithLogger(h.logger),
		session.WithAutosaveOptions(autosave.WithAfterFunc(holdTimer)),
	)
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		ev, err := h.execute(ctx, step)
		ev.Action = step.Invoke
		ev.Step = string(h.machine.CurrentStep())
		if err != nil {
			ev.Error = errorLabel(err)
		}
		result.AddTrace(ev)

		if msg := checkExpect(step, ev, err); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
			return
		}
		h.logger.Info("flow step completed", "step", i, "action", step.Invoke, "current_step", ev.Step)
	}
}

func (h *Harness) execute(ctx context.Context, step FlowStep) (TraceEvent, error) {
	var ev TraceEvent
	m := h.machine

	switch step.Invoke {
	case ActionIdentify, ActionCorrect:
		var id screening.Identity
		if err := decodeArgs(step.Args, &id); err != nil {
			return ev, err
		}
		if step.Invoke == ActionCorrect {
			return ev, m.CorrectIdentity(id)
		}
		resumed, err := m.IdentifySubject(ctx, id)
		if err == nil {
			ev.Resumed = &resumed
		}
		return ev, err

	case ActionUpdate:
		section, err := stringArg(step.Args, "section")
		if err != nil {
			return ev, err
		}
		p, err := decodePatch(section, step.Args["value"])
		if err != nil {
			return ev, err
		}
		return ev, m.UpdateSection(p)

	case ActionSkip:
		s, err := stringArg(step.Args, "step")
		if err != nil {
			return ev, err
		}
		reason, _ := step.Args["reason"].(string)
		return ev, m.MarkSkipped(screening.StepKey(s), reason)

	case ActionUnskip:
		s, err := stringArg(step.Args, "step")
		if err != nil {
			return ev, err
		}
		return ev, m.Unskip(screening.StepKey(s))

	case ActionNext:
		_, err := m.Next()
		return ev, err

	case ActionPrevious:
		_, err := m.Previous()
		return ev, err

	case ActionGoTo:
		s, err := stringArg(step.Args, "step")
		if err != nil {
			return ev, err
		}
		_, err = m.GoTo(screening.StepKey(s))
		return ev, err

	case ActionAnalysis:
		applied, err := h.analyze(ctx, step.Args)
		if err == nil {
			ev.Applied = &applied
		}
		return ev, err

	case ActionSave:
		return ev, m.Flush(ctx)

	case ActionReload:
		resumed, err := h.reload(ctx)
		if err == nil {
			ev.Resumed = &resumed
		}
		return ev, err

	case ActionLeave:
		return ev, m.Leave(ctx)

	case ActionFinalize:
		_, err := m.Finalize(ctx)
		return ev, err

	case ActionReset:
		return ev, m.ResetSession(ctx)
	}
	return ev, fmt.Errorf("unknown action %q", step.Invoke)
}

// analyze submits one scripted analysis and waits for its delivery.
func (h *Harness) analyze(ctx context.Context, args map[string]any) (bool, error) {
	field, err := stringArg(args, "field")
	if err != nil {
		return false, err
	}
	text, _ := args["result"].(string)
	var failure error
	if msg, _ := args["error"].(string); msg != "" {
		failure = errors.New(msg)
	}
	moveTo, _ := args["navigate"].(string)

	var (
		mu      sync.Mutex
		applied bool
	)
	d := analysis.NewDispatcher(h.analyzer, h.machine,
		analysis.WithIDs(h.ids.Next),
		analysis.WithDispatcherLogger(h.logger),
		analysis.OnResult(func(r analysis.Result) {
			mu.Lock()
			applied = r.Applied
			mu.Unlock()
		}),
	)

	h.analyzer.script(text, failure)
	task := func(ctx context.Context, a analysis.Analyzer) (string, error) {
		if moveTo != "" {
			if _, err := h.machine.GoTo(screening.StepKey(moveTo)); err != nil {
				return "", err
			}
		}
		return a.AnalyzeText(ctx, "scripted")
	}
	if _, err := d.Submit(ctx, screening.Field(field), task); err != nil {
		return false, err
	}
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	return applied, nil
}

// reload saves pending edits and replaces the machine with a fresh one,
// resuming the persisted active subject the way a restarted app would.
func (h *Harness) reload(ctx context.Context) (bool, error) {
	if err := h.machine.Flush(ctx); err != nil {
		return false, err
	}
	h.machine = h.newMachine()

	id, err := h.repo.ActiveSubject(ctx)
	if err != nil || id == "" {
		return false, err
	}
	rec, err := h.repo.Get(ctx, id)
	if err != nil || rec == nil {
		return false, err
	}
	return h.machine.IdentifySubject(ctx, rec.Payload.PatientInfo)
}

// collect loads every stored record and its report projection.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	entries, err := h.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rec, err := h.repo.Get(ctx, e.SubjectID)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		report, err := export.BuildReportProjection(rec.Payload)
		if err != nil {
			return err
		}
		result.Records[rec.SubjectID] = *rec
		result.Reports[rec.SubjectID] = json.RawMessage(report)
	}
	return nil
}

// checkExpect returns a failure message, or "" when the step went as
// expected.
func checkExpect(step FlowStep, ev TraceEvent, err error) string {
	e := step.Expect
	if e == nil {
		e = &ExpectClause{}
	}

	switch {
	case e.Error == "" && err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case e.Error != "" && err == nil:
		return fmt.Sprintf("expected error %q, got success", e.Error)
	case e.Error != "" && !matchesError(err, e.Error):
		return fmt.Sprintf("expected error %q, got %v", e.Error, err)
	}

	if e.Step != "" && ev.Step != e.Step {
		return fmt.Sprintf("expected step %s, got %s", e.Step, ev.Step)
	}
	if e.Resumed != nil && (ev.Resumed == nil || *ev.Resumed != *e.Resumed) {
		return fmt.Sprintf("expected resumed=%t", *e.Resumed)
	}
	if e.Applied != nil && (ev.Applied == nil || *ev.Applied != *e.Applied) {
		return fmt.Sprintf("expected applied=%t", *e.Applied)
	}
	return ""
}

// scriptedAnalyzer answers every call with the scripted reply.
type scriptedAnalyzer struct {
	mu   sync.Mutex
	text string
	err  error
}

func (a *scriptedAnalyzer) script(text string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text, a.err = text, err
}

func (a *scriptedAnalyzer) reply() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text, a.err
}

func (a *scriptedAnalyzer) AnalyzeText(context.Context, string) (string, error) { return a.reply() }

func (a *scriptedAnalyzer) AnalyzeImage(context.Context, analysis.Image, string) (string, error) {
	return a.reply()
}

func (a *scriptedAnalyzer) ExtractText(context.Context, analysis.Image, string) (string, error) {
	return a.reply()
}

func (a *scriptedAnalyzer) AnalyzeSimulatedAudio(context.Context, string, string) (string, error) {
	return a.reply()
}
