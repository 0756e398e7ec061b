package screening

import (
	"maps"
	"slices"
	"strings"
)

// Patch is a typed partial update for one section. The set of variants is
// closed: AnthropometryPatch, ENTPatch, DentalPatch, FaceVitalsPatch,
// StethoscopePatch, DeviceVitalsPatch, DermatologyPatch,
// ObservationsPatch and FinalReportPatch.
type Patch interface {
	// Step is the step whose screen owns the section.
	Step() StepKey

	// Validate checks the variant schema.
	Validate() error

	apply(*Session)
}

// Apply validates p and merges it into s. A rejected patch leaves s unchanged.
func (s *Session) Apply(p Patch) error {
	if p == nil {
		return invalid(ErrCodeInvalidValue, "patch", "nil patch")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.apply(s)
	return nil
}

// AnthropometryPatch replaces the anthropometry section.
type AnthropometryPatch struct {
	Anthropometry Anthropometry
}

func (AnthropometryPatch) Step() StepKey { return StepAnthropometry }

func (p AnthropometryPatch) Validate() error {
	a := p.Anthropometry
	if a.HeightCm != nil {
		if err := validateMeasurement("anthropometry.heightCm", a.HeightCm.Value); err != nil {
			return err
		}
	}
	if a.WeightKg != nil {
		if err := validateMeasurement("anthropometry.weightKg", a.WeightKg.Value); err != nil {
			return err
		}
	}
	if a.ArmSpanCm != nil {
		if err := validateMeasurement("anthropometry.armSpanCm", a.ArmSpanCm.Value); err != nil {
			return err
		}
	}
	if b := a.ObservedBodyType; b != nil && b.Value != "" && !slices.Contains(ObservedBodyTypeOptions, b.Value) {
		return invalid(ErrCodeInvalidValue, "anthropometry.observedBodyType", "unknown body type %q", b.Value)
	}
	return nil
}

func (p AnthropometryPatch) apply(s *Session) { s.Anthropometry = p.Anthropometry.clone() }

// ENTPatch replaces the ENT section.
type ENTPatch struct {
	ENT ENT
}

func (ENTPatch) Step() StepKey { return StepSpecializedImaging }

func (p ENTPatch) Validate() error {
	if err := validateImageAnalysis("entData.ear", p.ENT.Ear); err != nil {
		return err
	}
	if err := validateImageAnalysis("entData.nose", p.ENT.Nose); err != nil {
		return err
	}
	return validateImageAnalysis("entData.throat", p.ENT.Throat)
}

func (p ENTPatch) apply(s *Session) {
	s.ENT = ENT{
		Ear:           p.ENT.Ear.clone(),
		Nose:          p.ENT.Nose.clone(),
		Throat:        p.ENT.Throat.clone(),
		SkippedReason: p.ENT.SkippedReason,
	}
}

// DentalPatch replaces the dental section.
type DentalPatch struct {
	Dental Dental
}

func (DentalPatch) Step() StepKey { return StepSpecializedImaging }

func (p DentalPatch) Validate() error {
	return validateImageAnalysis("dentalData.oralCavity", p.Dental.OralCavity)
}

func (p DentalPatch) apply(s *Session) {
	s.Dental = Dental{OralCavity: p.Dental.OralCavity.clone(), SkippedReason: p.Dental.SkippedReason}
}

// FaceVitalsPatch replaces the face observation section.
type FaceVitalsPatch struct {
	FaceVitals FaceVitals
}

func (FaceVitalsPatch) Step() StepKey { return StepVitalSigns }

func (FaceVitalsPatch) Validate() error { return nil }

func (p FaceVitalsPatch) apply(s *Session) { s.FaceVitals = p.FaceVitals }

// StethoscopePatch merges into the stethoscope block. Nil keys are left alone.
type StethoscopePatch struct {
	Heart                 *Auscultation
	Lungs                 *Auscultation
	PlacementContextImage *string
}

func (StethoscopePatch) Step() StepKey { return StepVitalSigns }

func (p StethoscopePatch) Validate() error {
	if p.Heart != nil {
		if err := validateImageAnalysis("stethoscopeData.heart", &p.Heart.ImageAnalysis); err != nil {
			return err
		}
	}
	if p.Lungs != nil {
		return validateImageAnalysis("stethoscopeData.lungs", &p.Lungs.ImageAnalysis)
	}
	return nil
}

func (p StethoscopePatch) apply(s *Session) {
	if p.Heart != nil {
		s.Stethoscope.Heart = p.Heart.clone()
	}
	if p.Lungs != nil {
		s.Stethoscope.Lungs = p.Lungs.clone()
	}
	if p.PlacementContextImage != nil {
		s.Stethoscope.PlacementContextImage = *p.PlacementContextImage
	}
}

// DeviceVitalsPatch merges into the device vitals block. Nil keys are left
// alone, so recording one vital never clears its siblings.
type DeviceVitalsPatch struct {
	BP          *BloodPressure
	SpO2        *VitalSign
	Temperature *VitalSign
	Hemoglobin  *VitalSign
}

func (DeviceVitalsPatch) Step() StepKey { return StepVitalSigns }

func (p DeviceVitalsPatch) Validate() error {
	if p.BP != nil {
		if err := validateVital("deviceVitals.bp", &p.BP.VitalSign); err != nil {
			return err
		}
		if p.BP.Systolic != nil {
			if err := validateMeasurement("deviceVitals.bp.systolic", p.BP.Systolic.Value); err != nil {
				return err
			}
		}
		if p.BP.Diastolic != nil {
			if err := validateMeasurement("deviceVitals.bp.diastolic", p.BP.Diastolic.Value); err != nil {
				return err
			}
		}
	}
	if err := validateVital("deviceVitals.spO2", p.SpO2); err != nil {
		return err
	}
	if err := validateVital("deviceVitals.temperature", p.Temperature); err != nil {
		return err
	}
	return validateVital("deviceVitals.hemoglobin", p.Hemoglobin)
}

func (p DeviceVitalsPatch) apply(s *Session) {
	c := DeviceVitals{BP: p.BP, SpO2: p.SpO2, Temperature: p.Temperature, Hemoglobin: p.Hemoglobin}.clone()
	if c.BP != nil {
		s.DeviceVitals.BP = c.BP
	}
	if c.SpO2 != nil {
		s.DeviceVitals.SpO2 = c.SpO2
	}
	if c.Temperature != nil {
		s.DeviceVitals.Temperature = c.Temperature
	}
	if c.Hemoglobin != nil {
		s.DeviceVitals.Hemoglobin = c.Hemoglobin
	}
}

// DermatologyPatch replaces the per-area dermatology assessment.
type DermatologyPatch struct {
	Assessment map[string]ImageAnalysis
}

func (DermatologyPatch) Step() StepKey { return StepDermatology }

func (p DermatologyPatch) Validate() error {
	for _, area := range slices.Sorted(maps.Keys(p.Assessment)) {
		item := p.Assessment[area]
		if strings.TrimSpace(area) == "" {
			return invalid(ErrCodeInvalidValue, "dermatologyAssessment", "body area must not be empty")
		}
		if err := validateImageAnalysis("dermatologyAssessment."+area, &item); err != nil {
			return err
		}
	}
	return nil
}

func (p DermatologyPatch) apply(s *Session) {
	if len(p.Assessment) == 0 {
		s.Dermatology = nil
		return
	}
	s.Dermatology = make(map[string]ImageAnalysis, len(p.Assessment))
	for area, item := range p.Assessment {
		s.Dermatology[area] = *(&item).clone()
	}
}

// ObservationsPatch replaces the nurse's general observations.
type ObservationsPatch struct {
	NurseObservations string
}

func (ObservationsPatch) Step() StepKey { return StepReviewAndExport }

func (ObservationsPatch) Validate() error { return nil }

func (p ObservationsPatch) apply(s *Session) { s.NurseObservations = p.NurseObservations }

// FinalReportPatch merges into the final report block.
type FinalReportPatch struct {
	AISummary                 *string
	PreliminaryNotesForDoctor *string
}

func (FinalReportPatch) Step() StepKey { return StepReviewAndExport }

func (FinalReportPatch) Validate() error { return nil }

func (p FinalReportPatch) apply(s *Session) {
	if p.AISummary != nil {
		s.FinalReport.AISummary = *p.AISummary
	}
	if p.PreliminaryNotesForDoctor != nil {
		s.FinalReport.PreliminaryNotesForDoctor = *p.PreliminaryNotesForDoctor
	}
}

// validateMeasurement accepts empty (not yet measured) or a positive number.
func validateMeasurement(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	n, ok := ParseMeasurement(v)
	if !ok || n <= 0 {
		return invalid(ErrCodeInvalidValue, field, "expected a positive number, got %q", v)
	}
	return nil
}

func validateVital(field string, v *VitalSign) error {
	if v == nil {
		return nil
	}
	switch v.Status {
	case "", StatusNormal, StatusWarning, StatusDanger, StatusInfo:
	default:
		return invalid(ErrCodeInvalidValue, field+".status", "unknown status %q", v.Status)
	}
	switch v.Method {
	case "", MethodScan, MethodManual, MethodCalculated, MethodSimulated:
	default:
		return invalid(ErrCodeInvalidValue, field+".method", "unknown method %q", v.Method)
	}
	if v.Method == MethodManual && v.Value != "" && strings.TrimSpace(v.ManualEntryReason) == "" {
		return invalid(ErrCodeInvalidValue, field+".manualEntryReason", "manual entry requires a reason")
	}
	return nil
}

func validateImageAnalysis(field string, i *ImageAnalysis) error {
	if i == nil {
		return nil
	}
	switch i.AnalysisType {
	case "", "image", "videoFrame":
	default:
		return invalid(ErrCodeInvalidValue, field+".analysisType", "unknown analysis type %q", i.AnalysisType)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return invalid(ErrCodeInvalidValue, field+".confidence", "confidence must be within [0,1]")
	}
	return nil
}
