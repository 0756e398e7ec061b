package record

import (
	"errors"
	"fmt"

	"github.com/roach88/schoolscreen/internal/kv"
)

// ErrNotFound is returned by status changes on a subject with no record.
var ErrNotFound = errors.New("record: not found")

// ErrMissingSubjectID is returned when a save has no subject to key it by.
var ErrMissingSubjectID = errors.New("record: subject id required")

// PersistenceError wraps a serialization or store failure. The cause stays
// reachable, so errors.Is(err, kv.ErrQuotaExceeded) still matches.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("record %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("record %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StatusError rejects a lifecycle transition that goes backward or skips
// completed on the way to uploaded.
type StatusError struct {
	SubjectID string
	From      Status
	To        Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("record %q: status cannot move from %s to %s", e.SubjectID, e.From, e.To)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsStatus reports whether err is a StatusError.
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// IsQuota reports whether err is a capacity failure at any depth.
func IsQuota(err error) bool {
	return kv.IsQuotaExceeded(err)
}
