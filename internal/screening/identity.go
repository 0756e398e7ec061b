package screening

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ManualEntryField is a value a nurse may enter by hand, with the reason
// when automatic capture was bypassed.
type ManualEntryField struct {
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// Identity describes the subject being screened.
type Identity struct {
	QRID                  string           `json:"qrId,omitempty"`
	ManualID              string           `json:"manualId,omitempty"`
	Name                  ManualEntryField `json:"name"`
	Age                   ManualEntryField `json:"age"`
	Gender                ManualEntryField `json:"gender"`
	ReasonForManualEntry  string           `json:"reasonForManualStudentEntry,omitempty"`
	PreExistingConditions string           `json:"preExistingConditions"`
}

// normalizeID trims and NFC-normalizes an identifier so visually equal IDs
// map to the same record key.
func normalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// SubjectID derives the record key: the manual ID when set, else the QR ID.
// Empty means the identity has no usable ID yet.
func (id Identity) SubjectID() string {
	if m := normalizeID(id.ManualID); m != "" {
		return m
	}
	return normalizeID(id.QRID)
}

// Validate checks the identity invariants: an ID and a name.
func (id Identity) Validate() error {
	if id.SubjectID() == "" {
		return invalid(ErrCodeMissingSubjectID, "qrId", "a QR ID or manual ID is required")
	}
	if strings.TrimSpace(id.Name.Value) == "" {
		return invalid(ErrCodeMissingName, "name", "subject name is required")
	}
	return nil
}

// DisplayName renders "Name (ID: x)", with "N/A" for a missing name.
func (id Identity) DisplayName() string {
	name := strings.TrimSpace(id.Name.Value)
	if name == "" {
		name = "N/A"
	}
	if sid := id.SubjectID(); sid != "" {
		return name + " (ID: " + sid + ")"
	}
	return name
}
