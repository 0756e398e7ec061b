package screening

import "strings"

// CompletedSteps infers which steps hold meaningful data. It looks at
// section content only, never at navigation or skip state.
func (s Session) CompletedSteps() []StepKey {
	var done []StepKey
	if strings.TrimSpace(s.PatientInfo.Name.Value) != "" {
		done = append(done, StepStudentIdentification)
	}
	a := s.Anthropometry
	if (a.HeightCm != nil && a.HeightCm.Value != "") || (a.WeightKg != nil && a.WeightKg.Value != "") {
		done = append(done, StepAnthropometry)
	}
	if s.ENT.Ear.captured() || s.ENT.Nose.captured() || s.ENT.Throat.captured() || s.Dental.OralCavity.captured() {
		done = append(done, StepSpecializedImaging)
	}
	if s.hasVitals() {
		done = append(done, StepVitalSigns)
	}
	if len(s.Dermatology) > 0 {
		done = append(done, StepDermatology)
	}
	if strings.TrimSpace(s.FinalReport.AISummary) != "" {
		done = append(done, StepReviewAndExport)
	}
	return done
}

func (i *ImageAnalysis) captured() bool {
	return i != nil && (i.Image != "" || i.VideoSrc != "" || i.AIAnalysis != "" || i.Notes != "")
}

func (v *VitalSign) recorded() bool {
	return v != nil && v.Value != ""
}

func (s Session) hasVitals() bool {
	if s.FaceVitals.AIObservation != "" || s.FaceVitals.Image != "" {
		return true
	}
	for _, a := range []*Auscultation{s.Stethoscope.Heart, s.Stethoscope.Lungs} {
		if a != nil && a.captured() {
			return true
		}
	}
	d := s.DeviceVitals
	if d.BP != nil && (d.BP.recorded() || d.BP.Systolic != nil && d.BP.Systolic.Value != "") {
		return true
	}
	return d.SpO2.recorded() || d.Temperature.recorded() || d.Hemoglobin.recorded()
}
