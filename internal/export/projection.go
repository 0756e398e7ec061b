package export

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/schoolscreen/internal/canonical"
	"github.com/roach88/schoolscreen/internal/screening"
)

// excludedFields are removed at every depth of the report projection:
// raw media, UI-only text, intermediate OCR attempts and tap-measurement
// scratch data. Every consumer of the projection goes through this list.
var excludedFields = []string{
	"image",
	"videoSrc",
	"options",
	"instructions",
	"ocrAttempt",
	"confidence",
	"constraints",
	"analysisType",
	"simulatedAudioPrompt",
	"deviceImage",
	"evidenceImage",
	"tappedPoints",
	"referencePoints",
	"calculatedValue",
	"placementContextImage",
}

// ExcludedFields returns a copy of the keys the report projection drops.
func ExcludedFields() []string { return slices.Clone(excludedFields) }

// IsExcluded reports whether the report projection drops key.
func IsExcluded(key string) bool { return slices.Contains(excludedFields, key) }

// SkippedModulesKey holds the skip notes in the projection.
const SkippedModulesKey = "skippedModules"

// navigationFields are session state that means nothing in a report.
var navigationFields = []string{"currentStep", "skippedSteps"}

// stepSections maps a step to the top-level session keys it owns.
var stepSections = map[screening.StepKey][]string{
	screening.StepAnthropometry:      {"anthropometry"},
	screening.StepSpecializedImaging: {"entData", "dentalData"},
	screening.StepVitalSigns:         {"faceVitalData", "stethoscopeData", "deviceVitals"},
	screening.StepDermatology:        {"dermatologyAssessment"},
}

// SkippedNote is the text that replaces a skipped step's section.
func SkippedNote(reason string) string {
	return "This module was skipped. Reason: " + reason
}

// BuildReportProjection renders the report payload as canonical JSON.
func BuildReportProjection(s screening.Session) ([]byte, error) {
	tree, err := ReportTree(s)
	if err != nil {
		return nil, err
	}
	out, err := canonical.MarshalTree(tree)
	if err != nil {
		return nil, fmt.Errorf("build report projection: %w", err)
	}
	return out, nil
}

// ReportTree is the projection as a generic JSON tree, for consumers
// that reshape it further.
func ReportTree(s screening.Session) (map[string]any, error) {
	tree, err := canonical.ToTree(s)
	if err != nil {
		return nil, fmt.Errorf("build report projection: %w", err)
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("build report projection: session encoded as %T", tree)
	}

	for _, k := range navigationFields {
		delete(root, k)
	}

	notes := map[string]any{}
	for step, reason := range s.SkippedSteps {
		notes[string(step)] = SkippedNote(reason)
		for _, k := range stepSections[step] {
			delete(root, k)
		}
	}

	if _, skipped := s.SkippedSteps[screening.StepAnthropometry]; !skipped {
		if bmi, ok := s.Anthropometry.DerivedBMI(); ok {
			anthro, _ := root["anthropometry"].(map[string]any)
			if anthro == nil {
				anthro = map[string]any{}
				root["anthropometry"] = anthro
			}
			interpretation := bmi.Interpretation
			if s.Anthropometry.BMI != nil && s.Anthropometry.BMI.Interpretation != "" {
				interpretation = s.Anthropometry.BMI.Interpretation
			}
			anthro["bmi"] = map[string]any{
				"value":          json.Number(strconv.FormatFloat(bmi.Value, 'f', -1, 64)),
				"interpretation": interpretation,
			}
		}
	}

	pruned, _ := prune(root).(map[string]any)
	if pruned == nil {
		pruned = map[string]any{}
	}
	if len(notes) > 0 {
		pruned[SkippedModulesKey] = notes
	}
	return pruned, nil
}

// prune drops excluded keys at every depth, then empty objects and
// arrays left behind.
func prune(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if IsExcluded(k) {
				continue
			}
			child = prune(child)
			if isEmptyContainer(child) {
				continue
			}
			out[k] = child
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = prune(child)
		}
		return out
	default:
		return v
	}
}

func isEmptyContainer(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}
