package record

import (
	"context"
	"encoding/json"
	"strings"
)

// ActiveSubject returns the persisted active subject marker, or "".
func (r *Repository) ActiveSubject(ctx context.Context) (string, error) {
	data, ok, err := r.store.Read(ctx, ActiveSubjectKey)
	if err != nil {
		return "", &PersistenceError{Op: "read", Key: ActiveSubjectKey, Err: err}
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(string(data)), nil
}

// SetActiveSubject persists the active subject marker.
func (r *Repository) SetActiveSubject(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return &PersistenceError{Op: "set active", Key: ActiveSubjectKey, Err: ErrMissingSubjectID}
	}
	if err := r.store.Write(ctx, ActiveSubjectKey, []byte(subjectID)); err != nil {
		return &PersistenceError{Op: "set active", Key: ActiveSubjectKey, Err: err}
	}
	return nil
}

// ClearActiveSubject removes the active subject marker.
func (r *Repository) ClearActiveSubject(ctx context.Context) error {
	if err := r.store.Delete(ctx, ActiveSubjectKey); err != nil {
		return &PersistenceError{Op: "clear active", Key: ActiveSubjectKey, Err: err}
	}
	return nil
}

// LoadSettings returns the stored device preferences. Missing or corrupt
// settings yield the zero value.
func (r *Repository) LoadSettings(ctx context.Context) (Settings, error) {
	data, ok, err := r.store.Read(ctx, SettingsKey)
	if err != nil {
		return Settings{}, &PersistenceError{Op: "read", Key: SettingsKey, Err: err}
	}
	if !ok {
		return Settings{}, nil
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Warn("ignoring corrupt settings", "error", err)
		return Settings{}, nil
	}
	return s, nil
}

// SaveSettings stores device preferences.
func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return &PersistenceError{Op: "save settings", Key: SettingsKey, Err: err}
	}
	if err := r.store.Write(ctx, SettingsKey, data); err != nil {
		return &PersistenceError{Op: "save settings", Key: SettingsKey, Err: err}
	}
	return nil
}
