package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/screening"
)

func TestBMIInterpretation(t *testing.T) {
	p := BMIInterpretation(17.857, "10", "Female", "Not Assessed", "", "")
	assert.Contains(t, p, "BMI is 17.86")
	assert.Contains(t, p, "Age: 10.")
	assert.Contains(t, p, "Gender: Female.")
	assert.NotContains(t, p, "Not Assessed")
	assert.NotContains(t, p, "Arm span")

	p = BMIInterpretation(22, "", "", "Average/Athletic", "150", "Slim build")
	assert.Contains(t, p, "Body type observed by the nurse: Average/Athletic.")
	assert.Contains(t, p, "Arm span confirmed by the nurse: 150 cm.")
	assert.Contains(t, p, "Silhouette observation: Slim build.")
	assert.NotContains(t, p, "Age:")
}

func TestBMIInterpretationFor(t *testing.T) {
	s := screening.NewSessionFor(screening.Identity{QRID: "S1", Name: screening.ManualEntryField{Value: "Jane"}})
	_, ok := BMIInterpretationFor(s)
	assert.False(t, ok)

	s.Anthropometry.HeightCm = &screening.HeightMeasurement{ManualEntryField: screening.ManualEntryField{Value: "140"}}
	s.Anthropometry.WeightKg = &screening.WeightMeasurement{ManualEntryField: screening.ManualEntryField{Value: "35"}}
	p, ok := BMIInterpretationFor(s)
	require.True(t, ok)
	assert.Contains(t, p, "17.86")
}

func TestImagingPrompts(t *testing.T) {
	still := ENTImage("throat", SourceImage)
	assert.Contains(t, still, "This image shows a patient's throat.")
	assert.NotContains(t, still, "full video")

	frame := DentalImage(SourceVideoFrame)
	assert.Contains(t, frame, "This videoFrame shows an oral cavity.")
	assert.Contains(t, frame, "full video is kept")

	assert.Contains(t, SimulatedStethoscope("heart", "resting"), "simulated heart auscultation")
	assert.Contains(t, DeviceDisplayOCR("pulse oximeter"), "pulse oximeter display")
}

func TestSummaryReportFor_UsesProjection(t *testing.T) {
	s := screening.NewSessionFor(screening.Identity{QRID: "S1", Name: screening.ManualEntryField{Value: "Jane"}})
	s.ENT.Throat = &screening.ImageAnalysis{Image: "data:image/jpeg;base64,SECRET", AIAnalysis: "pink, no swelling"}
	s.SkippedSteps[screening.StepDermatology] = "no privacy screen"

	p, err := SummaryReportFor(s)
	require.NoError(t, err)
	assert.Contains(t, p, "pink, no swelling")
	assert.Contains(t, p, "This module was skipped. Reason: no privacy screen")
	assert.NotContains(t, p, "SECRET")
	assert.NotContains(t, p, "currentStep")
}
