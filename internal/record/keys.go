package record

import "strings"

// Store keys.
const (
	RecordPrefix     = "records/"
	IndexKey         = "meta/index"
	ActiveSubjectKey = "meta/active_subject"
	SettingsKey      = "meta/settings"
	QuarantinePrefix = "meta/quarantine/"
)

// RecordKey is the store key of subjectID's record.
func RecordKey(subjectID string) string { return RecordPrefix + subjectID }

// QuarantineKey holds the last unusable bytes found at RecordKey(subjectID).
func QuarantineKey(subjectID string) string { return QuarantinePrefix + subjectID }

// subjectFromKey reverses RecordKey.
func subjectFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, RecordPrefix)
	return id, ok && id != ""
}
