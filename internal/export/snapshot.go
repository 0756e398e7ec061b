package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/roach88/schoolscreen/internal/screening"
)

// BuildFullSnapshot renders the whole session as indented JSON. HTML
// characters are not escaped and the output ends with a newline.
func BuildFullSnapshot(s screening.Session) ([]byte, error) {
	c := s.Clone()
	if c.SkippedSteps == nil {
		c.SkippedSteps = map[screening.StepKey]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseSnapshot decodes a full snapshot. Unknown fields are ignored.
func ParseSnapshot(data []byte) (screening.Session, error) {
	var s screening.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return screening.Session{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if s.SkippedSteps == nil {
		s.SkippedSteps = map[screening.StepKey]string{}
	}
	return s, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// FileName is the download name for a subject's snapshot:
// screening_report_<id>_<yyyymmdd>.json, with every character outside
// [a-zA-Z0-9] in the ID replaced by "_".
func FileName(subjectID string, createdAt time.Time) string {
	if subjectID == "" {
		subjectID = "student"
	}
	return fmt.Sprintf("screening_report_%s_%s.json",
		unsafeFileChars.ReplaceAllString(subjectID, "_"),
		createdAt.UTC().Format("20060102"))
}
