package export

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/schoolscreen/internal/screening"
)

//go:embed snapshot.cue
var snapshotSchema string

// SnapshotError is an imported file that does not match the schema.
type SnapshotError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *SnapshotError) Error() string {
	loc := e.Path
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		if e.Path != "" {
			loc += " " + e.Path
		}
	}
	if loc == "" {
		return "invalid snapshot: " + e.Message
	}
	return fmt.Sprintf("invalid snapshot: %s: %s", loc, e.Message)
}

// ValidateSnapshot checks data against the snapshot schema. Unknown
// fields are allowed at every level.
func ValidateSnapshot(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(snapshotSchema, cue.Filename("snapshot.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}
	doc := ctx.CompileBytes(data, cue.Filename("snapshot.json"))
	if err := doc.Err(); err != nil {
		return snapshotError(err)
	}
	if doc.IncompleteKind() != cue.StructKind {
		return &SnapshotError{Message: "top level must be an object"}
	}
	v := schema.LookupPath(cue.ParsePath("#Snapshot")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return snapshotError(err)
	}
	return nil
}

// snapshotError reports the first CUE error with its path and position.
func snapshotError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SnapshotError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	se := &SnapshotError{
		Path:    strings.TrimPrefix(strings.Join(first.Path(), "."), "#Snapshot."),
		Message: fmt.Sprintf(format, args...),
	}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		se.Pos = pos[0]
	}
	return se
}

// ImportSnapshot validates and parses a snapshot file. Skip records must
// name known steps with a non-blank reason, the identity must be complete
// and the subject ID must match it.
func ImportSnapshot(data []byte) (screening.Session, error) {
	if err := ValidateSnapshot(data); err != nil {
		return screening.Session{}, err
	}
	s, err := ParseSnapshot(data)
	if err != nil {
		return screening.Session{}, err
	}
	for step, reason := range s.SkippedSteps {
		path := "skippedSteps." + string(step)
		if !step.Skippable() {
			return screening.Session{}, &SnapshotError{Path: path, Message: "step cannot be skipped"}
		}
		if strings.TrimSpace(reason) == "" {
			return screening.Session{}, &SnapshotError{Path: path, Message: "skip reason is blank"}
		}
	}
	if err := s.PatientInfo.Validate(); err != nil {
		var ve *screening.ValidationError
		if errors.As(err, &ve) {
			return screening.Session{}, &SnapshotError{Path: "patientInfo." + ve.Field, Message: ve.Message}
		}
		return screening.Session{}, err
	}
	if want := s.PatientInfo.SubjectID(); want != s.SubjectID {
		return screening.Session{}, &SnapshotError{
			Path:    "subjectId",
			Message: fmt.Sprintf("subject %q does not match identity %q", s.SubjectID, want),
		}
	}
	return s, nil
}
