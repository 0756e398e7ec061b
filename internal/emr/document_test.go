package emr

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/screening"
)

func TestBuildDocument(t *testing.T) {
	rec := janeRecord()
	doc, err := BuildDocument(rec, fixedNow())
	require.NoError(t, err)

	assert.Equal(t, Patient{ID: "S1", Name: "Jane Ann Doe", Age: "10", Gender: "Female", PreExistingConditions: "asthma"}, doc.Patient)
	assert.Equal(t, fmt.Sprintf("screening_S1_%d", rec.CreatedAt.UnixMilli()), doc.Screening.ID)
	assert.Equal(t, int64(4), doc.Screening.Version)
	assert.Equal(t, int64(4), doc.Metadata.DataVersion)
	assert.Equal(t, SystemVersion, doc.Metadata.SystemVersion)

	assert.Equal(t, &Quantity{Value: 140, Unit: "cm", Method: "measured"}, doc.Anthropometry.Height)
	assert.Equal(t, &Quantity{Value: 35, Unit: "kg", Method: "manual"}, doc.Anthropometry.Weight)
	assert.Equal(t, &BMI{Value: 17.86, Interpretation: screening.BMIUnderweight}, doc.Anthropometry.BMI)
	assert.Nil(t, doc.Anthropometry.ArmSpan)

	assert.Equal(t, &Quantity{Value: 98, Unit: "%", Method: screening.MethodScan}, doc.VitalSigns.SpO2)
	assert.Equal(t, &BloodPressure{Systolic: "110", Diastolic: "70", Unit: "mmHg"}, doc.VitalSigns.BloodPressure)
	assert.Nil(t, doc.VitalSigns.Temperature)

	assert.Nil(t, doc.Examinations.ENT, "imaging was skipped")
	assert.Equal(t, []Finding{
		{Area: "forearm", Findings: "no findings"},
		{Area: "scalp", Findings: "dry patches"},
	}, doc.Examinations.Dermatology)

	assert.Equal(t, map[string]string{
		"SPECIALIZED_IMAGING": "This module was skipped. Reason: equipment unavailable",
	}, doc.SkippedModules)
	assert.Equal(t, "Healthy screening.", doc.Summary.AIGenerated)
}

func TestBuildDocument_NoMediaLeaves(t *testing.T) {
	rec := janeRecord()
	delete(rec.Payload.SkippedSteps, screening.StepSpecializedImaging)
	rec.Payload.ENT.Throat = &screening.ImageAnalysis{
		Image:      "data:image/jpeg;base64,CCCC",
		AIAnalysis: "pink",
		Confidence: 0.9,
	}

	doc, err := BuildDocument(rec, fixedNow())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"throat": map[string]any{"aiAnalysis": "pink"}}, doc.Examinations.ENT)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "base64")
	assert.NotContains(t, string(out), "confidence")
}

func TestBuildDocument_SkippedMeasurements(t *testing.T) {
	rec := janeRecord()
	rec.Payload.SkippedSteps[screening.StepAnthropometry] = "subject refused"
	rec.Payload.SkippedSteps[screening.StepVitalSigns] = "no devices"
	rec.Payload.SkippedSteps[screening.StepDermatology] = "no privacy screen"

	doc, err := BuildDocument(rec, fixedNow())
	require.NoError(t, err)
	assert.Equal(t, Anthropometry{}, doc.Anthropometry)
	assert.Equal(t, VitalSigns{}, doc.VitalSigns)
	assert.Empty(t, doc.Examinations.Dermatology)
	assert.Len(t, doc.SkippedModules, 4)
}
