package emr

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
	"github.com/roach88/schoolscreen/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixedNow() time.Time { return testutil.Epoch }

func janeRecord() record.Record {
	s := screening.NewSessionFor(screening.Identity{
		QRID:                  "S1",
		Name:                  screening.ManualEntryField{Value: "Jane Ann Doe"},
		Age:                   screening.ManualEntryField{Value: "10"},
		Gender:                screening.ManualEntryField{Value: "Female"},
		PreExistingConditions: "asthma",
	})
	s.Anthropometry.HeightCm = &screening.HeightMeasurement{
		ManualEntryField: screening.ManualEntryField{Value: "140"},
		Image:            "data:image/jpeg;base64,AAAA",
	}
	s.Anthropometry.WeightKg = &screening.WeightMeasurement{
		ManualEntryField: screening.ManualEntryField{Value: "35", Reason: "scale unreadable"},
	}
	s.DeviceVitals.SpO2.Value = "98"
	s.DeviceVitals.SpO2.Method = screening.MethodScan
	s.DeviceVitals.BP.Value = "110/70"
	s.Dermatology = map[string]screening.ImageAnalysis{
		"scalp":   {AIAnalysis: "dry patches", Image: "data:image/jpeg;base64,BBBB"},
		"forearm": {AIAnalysis: "no findings"},
	}
	s.FinalReport.AISummary = "Healthy screening."
	s.NurseObservations = "Cooperative."
	s.SkippedSteps[screening.StepSpecializedImaging] = "equipment unavailable"

	created := testutil.Epoch.Add(-time.Hour)
	return record.Record{
		SubjectID: "S1",
		Payload:   s,
		CreatedAt: created,
		UpdatedAt: created.Add(30 * time.Minute),
		Version:   4,
		Status:    record.StatusCompleted,
	}
}
