package screening

import "fmt"

// StepKey names one stage of the screening sequence.
type StepKey string

const (
	StepStudentIdentification StepKey = "STUDENT_IDENTIFICATION"
	StepAnthropometry         StepKey = "ANTHROPOMETRY"
	StepSpecializedImaging    StepKey = "SPECIALIZED_IMAGING"
	StepVitalSigns            StepKey = "VITAL_SIGNS"
	StepDermatology           StepKey = "DERMATOLOGY"
	StepReviewAndExport       StepKey = "REVIEW_AND_EXPORT"
)

// Steps is the canonical step order. It never changes at runtime.
var Steps = []StepKey{
	StepStudentIdentification,
	StepAnthropometry,
	StepSpecializedImaging,
	StepVitalSigns,
	StepDermatology,
	StepReviewAndExport,
}

var stepTitles = map[StepKey]string{
	StepStudentIdentification: "Student Identification",
	StepAnthropometry:         "Anthropometry",
	StepSpecializedImaging:    "Specialized Imaging",
	StepVitalSigns:            "Vital Signs",
	StepDermatology:           "Dermatology",
	StepReviewAndExport:       "Review and Export",
}

// Index returns the position of s in Steps, or -1.
func (s StepKey) Index() int {
	for i, k := range Steps {
		if k == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a member of Steps.
func (s StepKey) Valid() bool { return s.Index() >= 0 }

// Title is the human-readable step name.
func (s StepKey) Title() string {
	if t, ok := stepTitles[s]; ok {
		return t
	}
	return string(s)
}

// Skippable reports whether a step may be marked skipped. Identification
// establishes the subject and review is the terminal fallback, so neither
// can be skipped.
func (s StepKey) Skippable() bool {
	return s.Valid() && s != StepStudentIdentification && s != StepReviewAndExport
}

// ParseStep accepts the wire value ("VITAL_SIGNS").
func ParseStep(v string) (StepKey, error) {
	s := StepKey(v)
	if !s.Valid() {
		return "", &ValidationError{
			Code:    ErrCodeUnknownStep,
			Field:   "step",
			Message: fmt.Sprintf("unknown step %q", v),
		}
	}
	return s, nil
}

// NextStep returns the first step after current that is not skipped. When
// every later step is skipped it falls back to StepReviewAndExport. From
// StepReviewAndExport it stays put.
func NextStep(current StepKey, skipped map[StepKey]string) StepKey {
	i := current.Index()
	if i < 0 {
		return StepStudentIdentification
	}
	for j := i + 1; j < len(Steps); j++ {
		if _, ok := skipped[Steps[j]]; !ok {
			return Steps[j]
		}
	}
	return StepReviewAndExport
}

// PreviousStep mirrors NextStep walking backwards. Running off the start
// leaves current unchanged.
func PreviousStep(current StepKey, skipped map[StepKey]string) StepKey {
	i := current.Index()
	if i < 0 {
		return StepStudentIdentification
	}
	for j := i - 1; j >= 0; j-- {
		if _, ok := skipped[Steps[j]]; !ok {
			return Steps[j]
		}
	}
	return current
}

// ResumeStep is where work continues for a session saved at current: the
// saved step itself, or the next unskipped step when it was skipped since.
func ResumeStep(current StepKey, skipped map[StepKey]string) StepKey {
	if !current.Valid() {
		return StepStudentIdentification
	}
	if _, ok := skipped[current]; !ok {
		return current
	}
	return NextStep(current, skipped)
}
