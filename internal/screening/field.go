package screening

import (
	"fmt"
	"strings"
)

// Field names a text field an analysis result is written into. The value
// is the JSON path of the field inside a Session snapshot.
type Field string

const (
	FieldHeightSilhouette  Field = "anthropometry.heightCm.aiSilhouetteObservation"
	FieldWeightOCR         Field = "anthropometry.weightKg.ocrAttempt"
	FieldBMIInterpretation Field = "anthropometry.bmi.interpretation"
	FieldEar               Field = "entData.ear.aiAnalysis"
	FieldNose              Field = "entData.nose.aiAnalysis"
	FieldThroat            Field = "entData.throat.aiAnalysis"
	FieldOralCavity        Field = "dentalData.oralCavity.aiAnalysis"
	FieldFaceObservation   Field = "faceVitalData.aiObservation"
	FieldHeartSounds       Field = "stethoscopeData.heart.aiAnalysis"
	FieldLungSounds        Field = "stethoscopeData.lungs.aiAnalysis"
	FieldBPOCR             Field = "deviceVitals.bp.ocrAttempt"
	FieldSpO2OCR           Field = "deviceVitals.spO2.ocrAttempt"
	FieldTemperatureOCR    Field = "deviceVitals.temperature.ocrAttempt"
	FieldHemoglobinOCR     Field = "deviceVitals.hemoglobin.ocrAttempt"
	FieldAISummary         Field = "finalReport.aiSummary"
)

const dermatologyPrefix = "dermatologyAssessment."

// DermatologyField targets the analysis text of one body area.
func DermatologyField(area string) Field {
	return Field(dermatologyPrefix + area + ".aiAnalysis")
}

var fieldSteps = map[Field]StepKey{
	FieldHeightSilhouette:  StepAnthropometry,
	FieldWeightOCR:         StepAnthropometry,
	FieldBMIInterpretation: StepAnthropometry,
	FieldEar:               StepSpecializedImaging,
	FieldNose:              StepSpecializedImaging,
	FieldThroat:            StepSpecializedImaging,
	FieldOralCavity:        StepSpecializedImaging,
	FieldFaceObservation:   StepVitalSigns,
	FieldHeartSounds:       StepVitalSigns,
	FieldLungSounds:        StepVitalSigns,
	FieldBPOCR:             StepVitalSigns,
	FieldSpO2OCR:           StepVitalSigns,
	FieldTemperatureOCR:    StepVitalSigns,
	FieldHemoglobinOCR:     StepVitalSigns,
	FieldAISummary:         StepReviewAndExport,
}

// dermatologyArea extracts the body area from a dermatology field.
func (f Field) dermatologyArea() (string, bool) {
	rest, ok := strings.CutPrefix(string(f), dermatologyPrefix)
	if !ok {
		return "", false
	}
	area, ok := strings.CutSuffix(rest, ".aiAnalysis")
	return area, ok && area != ""
}

// Step returns the step whose screen owns f, or "" for an unknown field.
func (f Field) Step() StepKey {
	if s, ok := fieldSteps[f]; ok {
		return s
	}
	if _, ok := f.dermatologyArea(); ok {
		return StepDermatology
	}
	return ""
}

// AnalysisFailureText is what a failed analysis leaves in its field, so the
// nurse can retry or enter the value manually.
func AnalysisFailureText(err error) string {
	return fmt.Sprintf("Error: %v. Retry the analysis or enter the value manually.", err)
}

// SetAnalysis stores an analysis outcome into f. On failure the field is
// downgraded to an error message; vital signs and the face observation
// carry the message in their error slot instead.
func (s *Session) SetAnalysis(f Field, text string, failure error) error {
	if failure != nil {
		text = AnalysisFailureText(failure)
	}
	switch f {
	case FieldHeightSilhouette:
		if s.Anthropometry.HeightCm == nil {
			s.Anthropometry.HeightCm = &HeightMeasurement{}
		}
		s.Anthropometry.HeightCm.AISilhouetteObservation = text
	case FieldWeightOCR:
		if s.Anthropometry.WeightKg == nil {
			s.Anthropometry.WeightKg = &WeightMeasurement{}
		}
		s.Anthropometry.WeightKg.OCRAttempt = text
	case FieldBMIInterpretation:
		if s.Anthropometry.BMI == nil {
			bmi, ok := s.Anthropometry.DerivedBMI()
			if !ok {
				return invalid(ErrCodeInvalidValue, string(f), "no BMI to interpret")
			}
			s.Anthropometry.BMI = &bmi
		}
		s.Anthropometry.BMI.Interpretation = text
	case FieldEar:
		s.ENT.Ear = withAnalysis(s.ENT.Ear, text)
	case FieldNose:
		s.ENT.Nose = withAnalysis(s.ENT.Nose, text)
	case FieldThroat:
		s.ENT.Throat = withAnalysis(s.ENT.Throat, text)
	case FieldOralCavity:
		s.Dental.OralCavity = withAnalysis(s.Dental.OralCavity, text)
	case FieldFaceObservation:
		if failure != nil {
			s.FaceVitals.Error = text
		} else {
			s.FaceVitals.AIObservation = text
			s.FaceVitals.Error = ""
		}
	case FieldHeartSounds:
		s.Stethoscope.Heart = auscultationWith(s.Stethoscope.Heart, text)
	case FieldLungSounds:
		s.Stethoscope.Lungs = auscultationWith(s.Stethoscope.Lungs, text)
	case FieldBPOCR:
		if s.DeviceVitals.BP == nil {
			s.DeviceVitals.BP = &BloodPressure{VitalSign: *defaultVital("Blood Pressure", "mmHg")}
		}
		setVitalOCR(&s.DeviceVitals.BP.VitalSign, text, failure)
	case FieldSpO2OCR:
		s.DeviceVitals.SpO2 = vitalWithOCR(s.DeviceVitals.SpO2, "SpO2", "%", text, failure)
	case FieldTemperatureOCR:
		s.DeviceVitals.Temperature = vitalWithOCR(s.DeviceVitals.Temperature, "Temperature", "°C", text, failure)
	case FieldHemoglobinOCR:
		s.DeviceVitals.Hemoglobin = vitalWithOCR(s.DeviceVitals.Hemoglobin, "Hemoglobin", "g/dL", text, failure)
	case FieldAISummary:
		s.FinalReport.AISummary = text
	default:
		area, ok := f.dermatologyArea()
		if !ok {
			return invalid(ErrCodeUnknownField, string(f), "unknown analysis target")
		}
		if s.Dermatology == nil {
			s.Dermatology = map[string]ImageAnalysis{}
		}
		item := s.Dermatology[area]
		item.AIAnalysis = text
		s.Dermatology[area] = item
	}
	return nil
}

func withAnalysis(i *ImageAnalysis, text string) *ImageAnalysis {
	c := i.clone()
	if c == nil {
		c = &ImageAnalysis{}
	}
	c.AIAnalysis = text
	return c
}

func auscultationWith(a *Auscultation, text string) *Auscultation {
	c := a.clone()
	if c == nil {
		c = &Auscultation{}
	}
	c.AIAnalysis = text
	return c
}

func setVitalOCR(v *VitalSign, text string, failure error) {
	if failure != nil {
		v.Error = text
		return
	}
	v.OCRAttempt = text
	v.Error = ""
}

func vitalWithOCR(v *VitalSign, name, unit, text string, failure error) *VitalSign {
	c := clonePtr(v)
	if c == nil {
		c = defaultVital(name, unit)
	}
	setVitalOCR(c, text, failure)
	return c
}
