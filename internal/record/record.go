package record

import (
	"time"

	"github.com/roach88/schoolscreen/internal/screening"
)

// Status is the record lifecycle. It only moves forward.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusUploaded   Status = "uploaded"
)

// rank orders statuses; -1 for unknown values.
func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusCompleted:
		return 1
	case StatusUploaded:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// ParseStatus accepts the wire value ("completed").
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	return s, s.Valid()
}

// Record is the persisted wrapper around a session snapshot.
type Record struct {
	SubjectID string            `json:"subjectId"`
	Payload   screening.Session `json:"payload"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Version   int64             `json:"version"`
	Status    Status            `json:"status"`

	// Checksum covers every other field in canonical form.
	Checksum string `json:"checksum,omitempty"`
}

// IndexEntry is one row of the screening list.
type IndexEntry struct {
	SubjectID      string              `json:"subjectId"`
	DisplayName    string              `json:"displayName"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	Status         Status              `json:"status"`
	CompletedSteps []screening.StepKey `json:"completedSteps"`
}

// Entry derives the index row for r.
func (r Record) Entry() IndexEntry {
	steps := r.Payload.CompletedSteps()
	if steps == nil {
		steps = []screening.StepKey{}
	}
	return IndexEntry{
		SubjectID:      r.SubjectID,
		DisplayName:    r.Payload.DisplayName(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Status:         r.Status,
		CompletedSteps: steps,
	}
}

// Settings are the device preferences kept next to the records.
type Settings struct {
	PreferredCameraID     string `json:"preferredCameraId,omitempty"`
	PreferredMicrophoneID string `json:"preferredMicrophoneId,omitempty"`
}
