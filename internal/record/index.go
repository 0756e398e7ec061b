package record

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/roach88/schoolscreen/internal/kv"
)

// List returns the index ordered by UpdatedAt descending, then SubjectID.
// A missing, corrupt or stale index is rebuilt from the record keys.
func (r *Repository) List(ctx context.Context) ([]IndexEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		ids, err := r.subjectIDs(ctx)
		if err != nil {
			return nil, err
		}
		if sameSubjects(entries, ids) {
			sortEntries(entries)
			return entries, nil
		}
		r.logger.Info("screening index out of date, rebuilding", "indexed", len(entries), "records", len(ids))
	}
	return r.rebuild(ctx)
}

// RebuildIndex derives the index from the record keys alone and stores it.
func (r *Repository) RebuildIndex(ctx context.Context) ([]IndexEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuild(ctx)
}

func (r *Repository) rebuild(ctx context.Context) ([]IndexEntry, error) {
	ids, err := r.subjectIDs(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]IndexEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		entries = append(entries, rec.Entry())
	}
	sortEntries(entries)
	if err := r.writeIndex(ctx, entries); err != nil {
		// The rebuilt list is still correct; the next List retries the write.
		r.logger.Warn("could not store rebuilt index", "error", err)
	}
	return entries, nil
}

// subjectIDs lists every subject with a record key, ascending.
func (r *Repository) subjectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for key, err := range r.store.Keys(ctx, RecordPrefix) {
		if err != nil {
			return nil, &PersistenceError{Op: "list", Key: RecordPrefix, Err: err}
		}
		if id, ok := subjectFromKey(key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// sameSubjects reports whether entries covers exactly ids. Corrupt records
// have keys but no entries, so they force a rebuild that drops them again;
// that costs one extra pass and keeps the check simple.
func sameSubjects(entries []IndexEntry, ids []string) bool {
	if len(entries) != len(ids) {
		return false
	}
	indexed := make([]string, len(entries))
	for i, e := range entries {
		indexed[i] = e.SubjectID
	}
	slices.Sort(indexed)
	return slices.Equal(indexed, ids)
}

func (r *Repository) readIndex(ctx context.Context) ([]IndexEntry, bool, error) {
	data, ok, err := r.store.Read(ctx, IndexKey)
	if err != nil {
		return nil, false, &PersistenceError{Op: "read", Key: IndexKey, Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("ignoring corrupt index", "error", err)
		return nil, false, nil
	}
	return entries, true, nil
}

func (r *Repository) writeIndex(ctx context.Context, entries []IndexEntry) error {
	if entries == nil {
		entries = []IndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return &PersistenceError{Op: "write index", Key: IndexKey, Err: err}
	}
	if err := r.store.Write(ctx, IndexKey, data); err != nil {
		return &PersistenceError{Op: "write index", Key: IndexKey, Err: err}
	}
	return nil
}

// upsertEntry replaces or adds one entry. When the index cannot be
// written it is dropped so the next List rebuilds it instead of serving a
// stale copy.
func (r *Repository) upsertEntry(ctx context.Context, entry IndexEntry) error {
	entries, _, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(entries, func(e IndexEntry) bool { return e.SubjectID == entry.SubjectID })
	if i >= 0 {
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return r.storeIndexOrDrop(ctx, entries)
}

func (r *Repository) removeEntry(ctx context.Context, subjectID string) error {
	entries, ok, err := r.readIndex(ctx)
	if err != nil || !ok {
		return err
	}
	entries = slices.DeleteFunc(entries, func(e IndexEntry) bool { return e.SubjectID == subjectID })
	return r.storeIndexOrDrop(ctx, entries)
}

func (r *Repository) storeIndexOrDrop(ctx context.Context, entries []IndexEntry) error {
	err := r.writeIndex(ctx, entries)
	if err == nil {
		return nil
	}
	if kv.IsQuotaExceeded(err) {
		if derr := r.store.Delete(ctx, IndexKey); derr != nil {
			r.logger.Warn("could not drop stale index", "error", derr)
		}
	}
	return err
}
