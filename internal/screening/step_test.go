package screening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipSets enumerates every subset of the skippable steps.
func skipSets() []map[StepKey]string {
	var skippable []StepKey
	for _, s := range Steps {
		if s.Skippable() {
			skippable = append(skippable, s)
		}
	}
	var sets []map[StepKey]string
	for mask := 0; mask < 1<<len(skippable); mask++ {
		set := map[StepKey]string{}
		for i, s := range skippable {
			if mask&(1<<i) != 0 {
				set[s] = "not performed"
			}
		}
		sets = append(sets, set)
	}
	return sets
}

func TestNextPreviousSymmetry(t *testing.T) {
	for _, skipped := range skipSets() {
		for _, start := range Steps {
			if _, ok := skipped[start]; ok || start == StepReviewAndExport {
				continue
			}
			next := NextStep(start, skipped)
			require.NotContains(t, skipped, next)

			back := PreviousStep(next, skipped)
			assert.Equal(t, start, back, "start=%s skipped=%v", start, skipped)
		}
	}
}

func TestNextStep_ReachesReviewWhenAllSkipped(t *testing.T) {
	skipped := map[StepKey]string{
		StepAnthropometry:      "r",
		StepSpecializedImaging: "r",
		StepVitalSigns:         "r",
		StepDermatology:        "r",
	}
	assert.Equal(t, StepReviewAndExport, NextStep(StepStudentIdentification, skipped))
	assert.Equal(t, StepReviewAndExport, NextStep(StepReviewAndExport, skipped))
	assert.Equal(t, StepStudentIdentification, PreviousStep(StepReviewAndExport, skipped))
}

func TestPreviousStep_StaysOnFirst(t *testing.T) {
	assert.Equal(t, StepStudentIdentification, PreviousStep(StepStudentIdentification, nil))
}

func TestNextStep_SkipsSkipped(t *testing.T) {
	skipped := map[StepKey]string{StepSpecializedImaging: "equipment unavailable"}
	assert.Equal(t, StepVitalSigns, NextStep(StepAnthropometry, skipped))
	assert.Equal(t, StepAnthropometry, PreviousStep(StepVitalSigns, skipped))
}

func TestResumeStep(t *testing.T) {
	skipped := map[StepKey]string{StepVitalSigns: "no devices"}
	assert.Equal(t, StepAnthropometry, ResumeStep(StepAnthropometry, skipped))
	assert.Equal(t, StepDermatology, ResumeStep(StepVitalSigns, skipped))
	assert.Equal(t, StepStudentIdentification, ResumeStep("BOGUS", skipped))
}

func TestParseStep(t *testing.T) {
	s, err := ParseStep("VITAL_SIGNS")
	require.NoError(t, err)
	assert.Equal(t, StepVitalSigns, s)

	_, err = ParseStep("vital_signs")
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnknownStep))
}

func TestSkippable(t *testing.T) {
	assert.False(t, StepStudentIdentification.Skippable())
	assert.False(t, StepReviewAndExport.Skippable())
	assert.True(t, StepDermatology.Skippable())
	assert.False(t, StepKey("NOPE").Skippable())
}
