package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/schoolscreen/internal/autosave"
	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
)

// Repository is what the machine needs from the record layer.
type Repository interface {
	autosave.Saver
	Get(ctx context.Context, subjectID string) (*record.Record, error)
	MarkCompleted(ctx context.Context, subjectID string) (record.Record, error)
	SetActiveSubject(ctx context.Context, subjectID string) error
	ClearActiveSubject(ctx context.Context) error
}

// Autosaver receives mutation notifications. *autosave.Policy implements it.
type Autosaver interface {
	NotifyMutated()
	Flush(ctx context.Context) error
	Stop()
}

// Machine is the session state machine. Safe for concurrent use.
type Machine struct {
	repo     Repository
	autosave Autosaver
	logger   *slog.Logger

	mu      sync.Mutex
	session screening.Session
	active  string
	// latest holds the most recent token ID issued per field.
	latest map[screening.Field]string
}

// Option configures a Machine.
type Option func(*machineConfig)

type machineConfig struct {
	logger       *slog.Logger
	autosaveOpts []autosave.Option
	autosaver    func(autosave.Source, autosave.Saver) Autosaver
}

// WithLogger sets the logger for the machine and its autosave policy.
func WithLogger(l *slog.Logger) Option {
	return func(c *machineConfig) { c.logger = l }
}

// WithAutosaveOptions passes options to the autosave policy.
func WithAutosaveOptions(opts ...autosave.Option) Option {
	return func(c *machineConfig) { c.autosaveOpts = append(c.autosaveOpts, opts...) }
}

// WithAutosaver replaces the autosave policy entirely.
func WithAutosaver(build func(autosave.Source, autosave.Saver) Autosaver) Option {
	return func(c *machineConfig) { c.autosaver = build }
}

// New creates a machine with no active subject, positioned at
// identification.
func New(repo Repository, opts ...Option) *Machine {
	cfg := machineConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Machine{
		repo:    repo,
		logger:  cfg.logger,
		session: screening.NewSession(),
	}
	if cfg.autosaver != nil {
		m.autosave = cfg.autosaver(m, repo)
	} else {
		policyOpts := append([]autosave.Option{autosave.WithLogger(cfg.logger)}, cfg.autosaveOpts...)
		m.autosave = autosave.New(m, repo, policyOpts...)
	}
	return m
}

// AutosaveSnapshot implements autosave.Source.
func (m *Machine) AutosaveSnapshot() (screening.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return screening.Session{}, false
	}
	return m.session.Clone(), true
}

// Snapshot returns a deep copy of the live session.
func (m *Machine) Snapshot() screening.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// ActiveSubject returns the subject being screened, or "".
func (m *Machine) ActiveSubject() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CurrentStep returns the step the wizard is on.
func (m *Machine) CurrentStep() screening.StepKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.CurrentStep
}

// Focus returns the active subject and current step.
func (m *Machine) Focus() (subjectID string, step screening.StepKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.session.CurrentStep
}

// mutate runs fn under the lock and notifies autosave when fn reports a
// change. The notification happens after the state change is visible.
func (m *Machine) mutate(fn func() (changed bool, err error)) error {
	m.mu.Lock()
	changed, err := fn()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		m.autosave.NotifyMutated()
	}
	return nil
}

func (m *Machine) requireActiveLocked() error {
	if m.active == "" {
		return &screening.ValidationError{
			Code:    screening.ErrCodeNoActiveSubject,
			Message: "identify a subject first",
		}
	}
	return nil
}

// IdentifySubject makes identity's subject active. An existing record is
// resumed exactly as saved; otherwise a fresh session starts at
// identification. Unsaved edits of the previously active subject are
// flushed first.
func (m *Machine) IdentifySubject(ctx context.Context, identity screening.Identity) (resumed bool, err error) {
	if err := identity.Validate(); err != nil {
		return false, err
	}
	id := identity.SubjectID()

	if prev := m.ActiveSubject(); prev != "" {
		if err := m.autosave.Flush(ctx); err != nil {
			return false, fmt.Errorf("identify %q: save %q first: %w", id, prev, err)
		}
	}

	rec, err := m.repo.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("identify %q: %w", id, err)
	}

	m.autosave.Stop()
	m.mu.Lock()
	if rec != nil {
		m.session = rec.Payload.Clone()
		m.session.SubjectID = id
		if !m.session.CurrentStep.Valid() {
			m.session.CurrentStep = screening.StepStudentIdentification
		}
	} else {
		m.session = screening.NewSessionFor(identity)
	}
	m.active = id
	m.latest = nil
	step := m.session.CurrentStep
	m.mu.Unlock()

	if err := m.repo.SetActiveSubject(ctx, id); err != nil {
		// The in-memory marker is authoritative for this process.
		m.logger.Warn("could not persist active subject", "subject_id", id, "error", err)
	}

	if rec != nil {
		m.logger.Info("resumed screening", "subject_id", id, "step", step, "version", rec.Version)
		return true, nil
	}
	m.logger.Info("started screening", "subject_id", id)
	m.autosave.NotifyMutated()
	return false, nil
}

// CorrectIdentity replaces the identity details of the active subject.
// The derived subject ID must not change.
func (m *Machine) CorrectIdentity(identity screening.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	return m.mutate(func() (bool, error) {
		if err := m.requireActiveLocked(); err != nil {
			return false, err
		}
		if got := identity.SubjectID(); got != m.active {
			return false, &screening.ValidationError{
				Code:    screening.ErrCodeIdentityMismatch,
				Field:   "patientInfo",
				Message: fmt.Sprintf("identity resolves to %q, active subject is %q", got, m.active),
			}
		}
		m.session.PatientInfo = identity
		return true, nil
	})
}

// UpdateSection merges a typed section patch into the session.
func (m *Machine) UpdateSection(p screening.Patch) error {
	return m.mutate(func() (bool, error) {
		if err := m.requireActiveLocked(); err != nil {
			return false, err
		}
		if err := m.session.Apply(p); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MarkSkipped records why step is skipped. The current step is unchanged.
func (m *Machine) MarkSkipped(step screening.StepKey, reason string) error {
	reason = strings.TrimSpace(reason)
	return m.mutate(func() (bool, error) {
		if err := m.requireActiveLocked(); err != nil {
			return false, err
		}
		if err := checkSkippable(step); err != nil {
			return false, err
		}
		if reason == "" {
			return false, &screening.ValidationError{
				Code:    screening.ErrCodeEmptySkipReason,
				Field:   "reason",
				Message: fmt.Sprintf("a reason is required to skip %s", step.Title()),
			}
		}
		if prev, ok := m.session.SkippedSteps[step]; ok && prev == reason {
			return false, nil
		}
		if m.session.SkippedSteps == nil {
			m.session.SkippedSteps = map[screening.StepKey]string{}
		}
		m.session.SkippedSteps[step] = reason
		return true, nil
	})
}

// Unskip removes a skip record. Unskipping a step that is not skipped is
// a no-op and does not trigger a save.
func (m *Machine) Unskip(step screening.StepKey) error {
	return m.mutate(func() (bool, error) {
		if err := m.requireActiveLocked(); err != nil {
			return false, err
		}
		if !step.Valid() {
			return false, unknownStep(step)
		}
		if _, ok := m.session.SkippedSteps[step]; !ok {
			return false, nil
		}
		delete(m.session.SkippedSteps, step)
		return true, nil
	})
}

func checkSkippable(step screening.StepKey) error {
	if !step.Valid() {
		return unknownStep(step)
	}
	if !step.Skippable() {
		return &screening.ValidationError{
			Code:    screening.ErrCodeUnskippableStep,
			Field:   "step",
			Message: fmt.Sprintf("%s cannot be skipped", step.Title()),
		}
	}
	return nil
}

func unknownStep(step screening.StepKey) error {
	return &screening.ValidationError{
		Code:    screening.ErrCodeUnknownStep,
		Field:   "step",
		Message: fmt.Sprintf("unknown step %q", step),
	}
}

// Next moves to the next step that is not skipped, falling back to
// review. It returns the new current step.
func (m *Machine) Next() (screening.StepKey, error) {
	return m.navigate(func(cur screening.StepKey, skipped map[screening.StepKey]string) screening.StepKey {
		return screening.NextStep(cur, skipped)
	})
}

// Previous moves to the previous step that is not skipped. At the first
// step it stays put.
func (m *Machine) Previous() (screening.StepKey, error) {
	return m.navigate(func(cur screening.StepKey, skipped map[screening.StepKey]string) screening.StepKey {
		return screening.PreviousStep(cur, skipped)
	})
}

// GoTo jumps to step, skipped or not.
func (m *Machine) GoTo(step screening.StepKey) (screening.StepKey, error) {
	if !step.Valid() {
		return "", unknownStep(step)
	}
	return m.navigate(func(screening.StepKey, map[screening.StepKey]string) screening.StepKey {
		return step
	})
}

func (m *Machine) navigate(to func(screening.StepKey, map[screening.StepKey]string) screening.StepKey) (screening.StepKey, error) {
	var step screening.StepKey
	err := m.mutate(func() (bool, error) {
		if err := m.requireActiveLocked(); err != nil {
			return false, err
		}
		from := m.session.CurrentStep
		step = to(from, m.session.SkippedSteps)
		if step == from {
			return false, nil
		}
		m.session.CurrentStep = step
		m.logger.Debug("step changed", "subject_id", m.active, "from", from, "to", step)
		return true, nil
	})
	return step, err
}

// ResumePoint is where work should continue: the current step, or the
// next unskipped one when the current step has been skipped.
func (m *Machine) ResumePoint() screening.StepKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return screening.ResumeStep(m.session.CurrentStep, m.session.SkippedSteps)
}

// ApplyAnalysis stores an analysis outcome when tok still matches the
// machine's focus and is the newest token issued for its field. It
// reports whether the result was applied; stale results are dropped
// without error.
func (m *Machine) ApplyAnalysis(tok Token, text string, failure error) (bool, error) {
	applied := false
	err := m.mutate(func() (bool, error) {
		if tok.SubjectID == "" || tok.SubjectID != m.active ||
			tok.Step != m.session.CurrentStep || tok.Field.Step() != tok.Step {
			m.logger.Debug("discarding stale analysis result",
				"task_id", tok.ID,
				"field", tok.Field,
				"token_subject", tok.SubjectID,
				"token_step", tok.Step,
				"subject_id", m.active,
				"step", m.session.CurrentStep,
			)
			return false, nil
		}
		if latest := m.latest[tok.Field]; latest != tok.ID {
			m.logger.Debug("discarding superseded analysis result",
				"task_id", tok.ID,
				"latest_task_id", latest,
				"field", tok.Field,
				"subject_id", m.active,
			)
			return false, nil
		}
		if err := m.session.SetAnalysis(tok.Field, text, failure); err != nil {
			return false, err
		}
		applied = true
		return true, nil
	})
	return applied, err
}

// TokenFor tags a new analysis of field with the current focus. The field
// must belong to the current step.
func (m *Machine) TokenFor(id string, field screening.Field) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireActiveLocked(); err != nil {
		return Token{}, err
	}
	step := field.Step()
	if step == "" {
		return Token{}, &screening.ValidationError{
			Code:    screening.ErrCodeUnknownField,
			Field:   string(field),
			Message: "unknown analysis target",
		}
	}
	if step != m.session.CurrentStep {
		return Token{}, &screening.ValidationError{
			Code:    screening.ErrCodeInvalidValue,
			Field:   string(field),
			Message: fmt.Sprintf("field belongs to %s, current step is %s", step.Title(), m.session.CurrentStep.Title()),
		}
	}
	if m.latest == nil {
		m.latest = map[screening.Field]string{}
	}
	m.latest[field] = id
	return Token{ID: id, SubjectID: m.active, Step: step, Field: field}, nil
}

// Flush saves pending edits now without leaving the session.
func (m *Machine) Flush(ctx context.Context) error {
	if err := m.autosave.Flush(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ResetSession discards the live session and any unsaved edits, clears
// the active subject and returns to identification. The stored record is
// left alone.
func (m *Machine) ResetSession(ctx context.Context) error {
	m.autosave.Stop()
	m.mu.Lock()
	m.session = screening.NewSession()
	m.active = ""
	m.latest = nil
	m.mu.Unlock()

	if err := m.repo.ClearActiveSubject(ctx); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// Leave saves pending edits now and returns to the subject list. When
// the save fails the session stays active so nothing is lost.
func (m *Machine) Leave(ctx context.Context) error {
	if err := m.autosave.Flush(ctx); err != nil {
		return fmt.Errorf("leave session: %w", err)
	}
	return m.ResetSession(ctx)
}

// Finalize saves pending edits, marks the record completed and resets.
func (m *Machine) Finalize(ctx context.Context) (record.Record, error) {
	id := m.ActiveSubject()
	if id == "" {
		return record.Record{}, &screening.ValidationError{
			Code:    screening.ErrCodeNoActiveSubject,
			Message: "identify a subject first",
		}
	}
	if err := m.autosave.Flush(ctx); err != nil {
		return record.Record{}, fmt.Errorf("finalize %q: %w", id, err)
	}
	rec, err := m.repo.MarkCompleted(ctx, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("finalize %q: %w", id, err)
	}
	m.logger.Info("screening completed", "subject_id", id, "version", rec.Version)
	if err := m.ResetSession(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}
