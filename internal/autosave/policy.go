// Package autosave debounces session mutations into repository saves.
//
// Every mutation re-arms a quiet-window timer; when the window elapses
// without another mutation the current snapshot is saved once. Flush
// saves immediately and is what "save & return to list" uses, so the last
// edits never wait on the timer.
//
// Save failures are logged and counted but never returned to the code
// that reported the mutation. The unsaved state stays dirty, so the next
// mutation or Flush retries.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/schoolscreen/internal/kv"
	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
)

// DefaultQuietWindow is how long mutations must stop before a save.
const DefaultQuietWindow = 2 * time.Second

// DefaultSaveTimeout bounds a timer-triggered save.
const DefaultSaveTimeout = 10 * time.Second

// Source provides the state to save. ok is false when no subject is
// identified yet, in which case nothing is written.
type Source interface {
	AutosaveSnapshot() (session screening.Session, ok bool)
}

// Saver persists a snapshot. *record.Repository implements it.
type Saver interface {
	Save(ctx context.Context, session screening.Session) (record.Record, error)
}

// Timer is the part of *time.Timer the policy uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Policy is the debounced autosave. Safe for concurrent use.
type Policy struct {
	source      Source
	saver       Saver
	window      time.Duration
	saveTimeout time.Duration
	afterFunc   AfterFunc
	logger      *slog.Logger
	metrics     *Metrics

	mu    sync.Mutex
	timer Timer
	gen   uint64
	dirty bool

	saveMu sync.Mutex
}

// Option configures a Policy.
type Option func(*Policy)

// WithQuietWindow overrides DefaultQuietWindow.
func WithQuietWindow(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithSaveTimeout overrides DefaultSaveTimeout.
func WithSaveTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.saveTimeout = d
		}
	}
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(f AfterFunc) Option {
	return func(p *Policy) { p.afterFunc = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// WithMetrics sets the counters. Without it the policy keeps private,
// unregistered counters.
func WithMetrics(m *Metrics) Option {
	return func(p *Policy) { p.metrics = m }
}

// New creates a policy saving snapshots from source through saver.
func New(source Source, saver Saver, opts ...Option) *Policy {
	p := &Policy{
		source:      source,
		saver:       saver,
		window:      DefaultQuietWindow,
		saveTimeout: DefaultSaveTimeout,
		afterFunc:   realAfterFunc,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p
}

// NotifyMutated (re)arms the quiet-window timer.
func (p *Policy) NotifyMutated() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dirty = true
	if p.timer != nil {
		p.timer.Stop()
		p.metrics.Coalesced.Inc()
	}
	p.gen++
	gen := p.gen
	p.timer = p.afterFunc(p.window, func() { p.fire(gen) })
}

// Pending reports whether a timer-triggered save is scheduled.
func (p *Policy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

func (p *Policy) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		// Superseded by a later mutation, Flush or Stop.
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.saveTimeout)
	defer cancel()
	_ = p.save(ctx, "timer")
}

// Flush cancels the pending timer and saves now when there are unsaved
// mutations. The save error is returned to the caller of Flush as well as
// logged.
func (p *Policy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.cancelLocked()
	dirty := p.dirty
	p.mu.Unlock()

	if !dirty {
		return nil
	}
	return p.save(ctx, "flush")
}

// Stop cancels the pending timer without saving and forgets unsaved
// mutations.
func (p *Policy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.dirty = false
}

func (p *Policy) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

func (p *Policy) save(ctx context.Context, trigger string) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	// Clear before taking the snapshot: a mutation racing the save marks
	// the state dirty again and is picked up by its own timer.
	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()

	session, ok := p.source.AutosaveSnapshot()
	if !ok || session.SubjectID == "" {
		p.metrics.Skipped.Inc()
		p.logger.Debug("autosave skipped: no identified subject", "trigger", trigger)
		return nil
	}

	rec, err := p.saver.Save(ctx, session)
	if err != nil {
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		p.report(session.SubjectID, trigger, err)
		return err
	}

	p.metrics.Saves.WithLabelValues(ResultOK).Inc()
	p.logger.Debug("autosaved",
		"subject_id", rec.SubjectID,
		"version", rec.Version,
		"trigger", trigger,
	)
	return nil
}

func (p *Policy) report(subjectID, trigger string, err error) {
	if errors.Is(err, kv.ErrQuotaExceeded) {
		p.metrics.Saves.WithLabelValues(ResultQuota).Inc()
		p.logger.Error("autosave failed: storage full; export finished screenings and run `screenctl clear` to free space",
			"subject_id", subjectID,
			"trigger", trigger,
			"error", err,
		)
		return
	}
	p.metrics.Saves.WithLabelValues(ResultError).Inc()
	p.logger.Error("autosave failed",
		"subject_id", subjectID,
		"trigger", trigger,
		"error", err,
	)
}
