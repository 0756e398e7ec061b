package record

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/schoolscreen/internal/canonical"
	"github.com/roach88/schoolscreen/internal/kv"
	"github.com/roach88/schoolscreen/internal/screening"
)

// Repository manages one Record per subject.
type Repository struct {
	store  kv.Store
	now    func() time.Time
	logger *slog.Logger

	// mu serializes read-modify-write of records and the index.
	mu sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger used for fail-open reads.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// New returns a repository over store.
func New(store kv.Store, opts ...Option) *Repository {
	r := &Repository{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backing store.
func (r *Repository) Store() kv.Store { return r.store }

// timestamp is the current time in the form records keep.
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// Upsert writes session as the latest record for its subject with status.
// CreatedAt is preserved, UpdatedAt is now and Version grows by one. A
// status below the stored one is rejected with a StatusError.
func (r *Repository) Upsert(ctx context.Context, session screening.Session, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, &PersistenceError{Op: "upsert", Key: RecordKey(session.SubjectID), Err: fmt.Errorf("unknown status %q", status)}
	}
	return r.save(ctx, session, &status)
}

// Save writes session keeping the stored status, or in_progress for a
// first save. Autosave uses it so edits to a completed record do not
// move its status backward.
func (r *Repository) Save(ctx context.Context, session screening.Session) (Record, error) {
	return r.save(ctx, session, nil)
}

func (r *Repository) save(ctx context.Context, session screening.Session, status *Status) (Record, error) {
	id := session.SubjectID
	if id == "" {
		return Record{}, &PersistenceError{Op: "upsert", Err: ErrMissingSubjectID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, corrupt, err := r.read(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if corrupt != nil {
		if err := r.quarantine(ctx, id, corrupt); err != nil {
			return Record{}, err
		}
	}

	now := r.timestamp()
	rec := Record{
		SubjectID: id,
		Payload:   session.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
		Status:    StatusInProgress,
	}
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
		rec.Version = existing.Version + 1
		rec.Status = existing.Status
		if rec.UpdatedAt.Before(rec.CreatedAt) {
			rec.UpdatedAt = rec.CreatedAt
		}
	}
	if status != nil {
		if existing != nil && status.rank() < existing.Status.rank() {
			return Record{}, &StatusError{SubjectID: id, From: existing.Status, To: *status}
		}
		rec.Status = *status
	}

	if err := r.put(ctx, "upsert", &rec); err != nil {
		return Record{}, err
	}
	if err := r.upsertEntry(ctx, rec.Entry()); err != nil {
		return rec, err
	}
	return rec, nil
}

// Get returns the record for subjectID, or nil when it is absent or does
// not decode.
func (r *Repository) Get(ctx context.Context, subjectID string) (*Record, error) {
	return r.load(ctx, subjectID)
}

func (r *Repository) load(ctx context.Context, subjectID string) (*Record, error) {
	rec, _, err := r.read(ctx, subjectID)
	return rec, err
}

// read is load that also returns the stored bytes when they exist but do
// not form a usable record.
func (r *Repository) read(ctx context.Context, subjectID string) (*Record, []byte, error) {
	key := RecordKey(subjectID)
	data, ok, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	if !ok {
		return nil, nil, nil
	}
	rec, err := decodeRecord(data)
	if err != nil {
		r.logger.Warn("ignoring corrupt record", "key", key, "error", err)
		return nil, data, nil
	}
	if rec.SubjectID != subjectID {
		r.logger.Warn("ignoring record stored under another subject", "key", key, "subject_id", rec.SubjectID)
		return nil, data, nil
	}
	return rec, nil, nil
}

// quarantine keeps unusable record bytes under QuarantineKey before they
// are overwritten.
func (r *Repository) quarantine(ctx context.Context, subjectID string, data []byte) error {
	key := QuarantineKey(subjectID)
	if err := r.store.Write(ctx, key, data); err != nil {
		return &PersistenceError{Op: "quarantine", Key: key, Err: err}
	}
	r.logger.Warn("replacing corrupt record; previous bytes kept",
		"key", RecordKey(subjectID), "quarantine_key", key)
	return nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	want, err := checksum(rec)
	if err != nil {
		return nil, err
	}
	if rec.Checksum != want {
		return nil, fmt.Errorf("checksum mismatch: stored %q, computed %q", rec.Checksum, want)
	}
	if rec.Payload.SkippedSteps == nil {
		rec.Payload.SkippedSteps = map[screening.StepKey]string{}
	}
	return &rec, nil
}

func checksum(rec Record) (string, error) {
	rec.Checksum = ""
	return canonical.Checksum(canonical.DomainRecord, rec)
}

// put stamps rec with its checksum and writes it.
func (r *Repository) put(ctx context.Context, op string, rec *Record) error {
	key := RecordKey(rec.SubjectID)
	sum, err := checksum(*rec)
	if err != nil {
		return &PersistenceError{Op: op, Key: key, Err: err}
	}
	rec.Checksum = sum
	data, err := json.Marshal(rec)
	if err != nil {
		return &PersistenceError{Op: op, Key: key, Err: err}
	}
	if err := r.store.Write(ctx, key, data); err != nil {
		return &PersistenceError{Op: op, Key: key, Err: err}
	}
	return nil
}

// Delete removes the record and its index entry and clears the active
// subject marker when it names subjectID.
func (r *Repository) Delete(ctx context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := RecordKey(subjectID)
	if err := r.store.Delete(ctx, key); err != nil {
		return &PersistenceError{Op: "delete", Key: key, Err: err}
	}
	if err := r.removeEntry(ctx, subjectID); err != nil {
		return err
	}
	active, err := r.ActiveSubject(ctx)
	if err != nil {
		return err
	}
	if active == subjectID {
		return r.ClearActiveSubject(ctx)
	}
	return nil
}

// MarkCompleted moves the record to completed without a version bump.
func (r *Repository) MarkCompleted(ctx context.Context, subjectID string) (Record, error) {
	return r.setStatus(ctx, subjectID, StatusCompleted)
}

// MarkUploaded moves a completed record to uploaded without a version
// bump. Marking an uploaded record again only refreshes UpdatedAt. An
// in_progress record is rejected with a StatusError.
func (r *Repository) MarkUploaded(ctx context.Context, subjectID string) (Record, error) {
	return r.setStatus(ctx, subjectID, StatusUploaded)
}

func (r *Repository) setStatus(ctx context.Context, subjectID string, to Status) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.load(ctx, subjectID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, fmt.Errorf("mark %s %q: %w", to, subjectID, ErrNotFound)
	}
	if to.rank() < rec.Status.rank() {
		return Record{}, &StatusError{SubjectID: subjectID, From: rec.Status, To: to}
	}
	if to == StatusUploaded && rec.Status == StatusInProgress {
		return Record{}, &StatusError{SubjectID: subjectID, From: rec.Status, To: to}
	}

	rec.Status = to
	if now := r.timestamp(); now.After(rec.UpdatedAt) {
		rec.UpdatedAt = now
	}
	if err := r.put(ctx, "mark "+string(to), rec); err != nil {
		return Record{}, err
	}
	if err := r.upsertEntry(ctx, rec.Entry()); err != nil {
		return *rec, err
	}
	return *rec, nil
}

// CompletedRecords returns the records ready for upload.
func (r *Repository) CompletedRecords(ctx context.Context) ([]Record, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		if e.Status != StatusCompleted {
			continue
		}
		rec, err := r.Get(ctx, e.SubjectID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// ClearAll removes every record, the index and the active subject marker.
// Settings survive. It returns the number of records removed.
func (r *Repository) ClearAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := kv.DeletePrefix(ctx, r.store, RecordPrefix)
	if err != nil {
		return n, &PersistenceError{Op: "clear", Key: RecordPrefix, Err: err}
	}
	if _, err := kv.DeletePrefix(ctx, r.store, QuarantinePrefix); err != nil {
		return n, &PersistenceError{Op: "clear", Key: QuarantinePrefix, Err: err}
	}
	for _, key := range []string{IndexKey, ActiveSubjectKey} {
		if err := r.store.Delete(ctx, key); err != nil {
			return n, &PersistenceError{Op: "clear", Key: key, Err: err}
		}
	}
	return n, nil
}

func sortEntries(entries []IndexEntry) {
	slices.SortFunc(entries, func(a, b IndexEntry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SubjectID, b.SubjectID)
	})
}
