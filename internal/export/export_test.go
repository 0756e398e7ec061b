package export

import (
	"github.com/roach88/schoolscreen/internal/screening"
)

// janeSession is a subject with height and weight recorded and imaging
// skipped.
func janeSession() screening.Session {
	s := screening.NewSessionFor(screening.Identity{
		QRID:   "S1",
		Name:   screening.ManualEntryField{Value: "Jane"},
		Age:    screening.ManualEntryField{Value: "10"},
		Gender: screening.ManualEntryField{Value: "Female"},
	})
	s.CurrentStep = screening.StepVitalSigns
	s.Anthropometry.HeightCm = &screening.HeightMeasurement{
		ManualEntryField: screening.ManualEntryField{Value: "140"},
	}
	s.Anthropometry.WeightKg = &screening.WeightMeasurement{
		ManualEntryField: screening.ManualEntryField{Value: "35"},
	}
	s.SkippedSteps[screening.StepSpecializedImaging] = "equipment unavailable"
	return s
}
