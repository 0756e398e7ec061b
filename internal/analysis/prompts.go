package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/screening"
)

// Capture source for imaging prompts.
const (
	SourceImage      = "image"
	SourceVideoFrame = "videoFrame"
)

const notDiagnosis = "This is not a diagnosis and does not replace a professional consultation."

// Fixed prompts.
const (
	PromptHeightSilhouette = "Review this image taken for a school health screening. " +
		"Report whether a student is clearly visible and whether a vertical ruler or reference scale is readable. " +
		"Describe the general body outline and posture in one short phrase. " +
		"Answer as 'Visibility: [Student: Yes/No, Ruler: Yes/No/PartiallyVisible]. Silhouette: [description].'"

	PromptArmSpan = "Review this image of a student with arms extended. " +
		"Report whether both arms are fully extended, whether the fingertips are visible and whether horizontal reference markings can be used. " +
		"Answer as 'Visibility: [ArmsExtended: Yes/No, Fingertips: Yes/No, ReferenceMarkings: Yes/No/Unclear/NA].'"

	PromptWeighingScaleOCR = "Read the number on this weighing scale display. " +
		"When several numbers are shown, pick the one most likely to be the weight. " +
		"Reply with the number and the unit if one is shown, for example '65.5 kg', or 'Reading unclear'."

	PromptFaceWellness = "This is a frontal face photograph. " +
		"Give one brief, general wellness remark based only on appearance, such as 'appears alert'. " +
		"Stay neutral and positive unless distress is obvious. State that this is a simulated, appearance-only observation."
)

// BMIInterpretation asks for a short reading of a BMI value in context.
// Empty optional arguments are left out of the prompt.
func BMIInterpretation(bmi float64, age, gender, bodyType, armSpanCm, silhouette string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A student's BMI is %s, computed from height and weight confirmed by the nurse.", strconv.FormatFloat(bmi, 'f', 2, 64))
	if age != "" {
		fmt.Fprintf(&b, " Age: %s.", age)
	}
	if gender != "" {
		fmt.Fprintf(&b, " Gender: %s.", gender)
	}
	if silhouette != "" {
		fmt.Fprintf(&b, " Silhouette observation: %s.", silhouette)
	}
	if bodyType != "" && bodyType != "Not Assessed" {
		fmt.Fprintf(&b, " Body type observed by the nurse: %s.", bodyType)
	}
	if armSpanCm != "" {
		fmt.Fprintf(&b, " Arm span confirmed by the nurse: %s cm.", armSpanCm)
	}
	b.WriteString(" Give a brief interpretation against the WHO categories (Underweight, Normal weight, Overweight, Obesity)." +
		" Mention build or arm span only when it adds useful context. Keep it short and do not give medical advice.")
	return b.String()
}

// BMIInterpretationFor builds the BMI prompt from a session. ok is false
// when height or weight is missing.
func BMIInterpretationFor(s screening.Session) (string, bool) {
	a := s.Anthropometry
	bmi, ok := a.DerivedBMI()
	if !ok {
		return "", false
	}
	var bodyType, armSpan, silhouette string
	if a.ObservedBodyType != nil {
		bodyType = a.ObservedBodyType.Value
	}
	if a.ArmSpanCm != nil {
		armSpan = a.ArmSpanCm.Value
	}
	if a.HeightCm != nil {
		silhouette = a.HeightCm.AISilhouetteObservation
	}
	return BMIInterpretation(bmi.Value, s.PatientInfo.Age.Value, s.PatientInfo.Gender.Value, bodyType, armSpan, silhouette), true
}

// ENTImage asks for a visual description of the ear, nose or throat.
func ENTImage(area, source string) string {
	return fmt.Sprintf("This %s shows a patient's %s. "+
		"Describe what is visible, such as color, discharge, swelling or a clear passage, and where any notable feature sits. "+
		"Add general educational points about %s health. %s"+
		"%s", source, area, area, notDiagnosis, videoNote(source))
}

// DentalImage asks for a visual description of the oral cavity.
func DentalImage(source string) string {
	return "This " + source + " shows an oral cavity. " +
		"Describe apparent cleanliness, any discoloration with its rough location, and the look of the gums if visible. " +
		"Add general dental hygiene points and recommend a dental visit. Do not name specific dental conditions. " +
		notDiagnosis + videoNote(source)
}

func videoNote(source string) string {
	if source == SourceVideoFrame {
		return " The full video is kept for later review."
	}
	return ""
}

// SimulatedStethoscope asks for educational text about a heart or lung
// auscultation. No audio is analysed.
func SimulatedStethoscope(area, context string) string {
	return fmt.Sprintf("This is a simulated %s auscultation for teaching purposes. Context: %s. "+
		"Explain what clear sounds usually indicate and what common abnormal sounds may suggest in general. "+
		"Say plainly that this is a simulation and not a finding from real audio.", area, context)
}

// DeviceDisplayOCR asks for the main reading on a device display.
func DeviceDisplayOCR(device string) string {
	return fmt.Sprintf("Read the main value on this %s display, with its unit if shown. "+
		"When several values are shown, prefer the primary physiological measurement. "+
		"Reply 'Reading unclear' if it cannot be read.", device)
}

// SummaryReport asks for the doctor-facing summary of a report projection.
func SummaryReport(projection string) string {
	return "Write a concise health screening summary for a student, to be reviewed by a doctor. " +
		"Use these sections: Patient Information (with any pre-existing conditions), Anthropometry, ENT Examination, Dental Examination, Vital Signs. " +
		"When skippedModules lists a module, write its note as given and do not summarize that module. " +
		"Fold the nurse's observations and notes for the doctor into the relevant sections. " +
		"Point out values that may need follow-up, without diagnosing or advising. " +
		"Prefer measured or OCR-read vitals over simulated or visual estimates and label the method of each. " +
		"If any imaging came from video, say the summary is based on a still frame.\n" +
		"Data: " + projection
}

// SummaryReportFor builds the summary prompt from the session's report
// projection, so excluded fields never reach the model.
func SummaryReportFor(s screening.Session) (string, error) {
	projection, err := export.BuildReportProjection(s)
	if err != nil {
		return "", err
	}
	return SummaryReport(string(projection)), nil
}
