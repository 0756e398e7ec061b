package screening

import "maps"

// Point is a tap position on a captured image, in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HeightMeasurement is the height reading plus its capture scratch data.
type HeightMeasurement struct {
	ManualEntryField
	Image                   string           `json:"image,omitempty"`
	RulerVisible            bool             `json:"rulerVisible,omitempty"`
	Instructions            string           `json:"instructions,omitempty"`
	AISilhouetteObservation string           `json:"aiSilhouetteObservation,omitempty"`
	TappedPoints            map[string]Point `json:"tappedPoints,omitempty"`
	ReferencePoints         map[string]Point `json:"referencePoints,omitempty"`
	ReferenceLengthCm       string           `json:"referenceLengthCm,omitempty"`
	CalculatedValue         string           `json:"calculatedValue,omitempty"`
}

// WeightMeasurement is the weight reading and the scale OCR attempt.
type WeightMeasurement struct {
	ManualEntryField
	Image      string `json:"image,omitempty"`
	OCRAttempt string `json:"ocrAttempt,omitempty"`
}

// ArmSpanMeasurement is the optional arm span reading.
type ArmSpanMeasurement struct {
	ManualEntryField
	Image           string           `json:"image,omitempty"`
	Instructions    string           `json:"instructions,omitempty"`
	TappedPoints    map[string]Point `json:"tappedPoints,omitempty"`
	CalculatedValue string           `json:"calculatedValue,omitempty"`
}

// BodyTypeObservation is the nurse's choice among Options.
type BodyTypeObservation struct {
	ManualEntryField
	Options []string `json:"options,omitempty"`
}

// BMIResult is a derived body mass index with its WHO band.
type BMIResult struct {
	Value          float64 `json:"value"`
	Interpretation string  `json:"interpretation"`
}

// Anthropometry holds body measurements.
type Anthropometry struct {
	HeightCm         *HeightMeasurement   `json:"heightCm,omitempty"`
	WeightKg         *WeightMeasurement   `json:"weightKg,omitempty"`
	BMI              *BMIResult           `json:"bmi,omitempty"`
	ArmSpanCm        *ArmSpanMeasurement  `json:"armSpanCm,omitempty"`
	ObservedBodyType *BodyTypeObservation `json:"observedBodyType,omitempty"`
}

// Constraint is one capture-quality check shown next to an analysis.
type Constraint struct {
	Name string `json:"name"`
	Met  bool   `json:"met"`
}

// ImageAnalysis is a captured image or video frame and its AI description.
type ImageAnalysis struct {
	Image        string       `json:"image,omitempty"`
	VideoSrc     string       `json:"videoSrc,omitempty"`
	AnalysisType string       `json:"analysisType,omitempty"` // image | videoFrame
	AIAnalysis   string       `json:"aiAnalysis,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
	Constraints  []Constraint `json:"constraints,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// ENT holds ear, nose and throat imaging.
type ENT struct {
	Ear           *ImageAnalysis `json:"ear,omitempty"`
	Nose          *ImageAnalysis `json:"nose,omitempty"`
	Throat        *ImageAnalysis `json:"throat,omitempty"`
	SkippedReason string         `json:"skippedReason,omitempty"`
}

// Dental holds oral cavity imaging.
type Dental struct {
	OralCavity    *ImageAnalysis `json:"oralCavity,omitempty"`
	SkippedReason string         `json:"skippedReason,omitempty"`
}

// FaceVitals is the simulated face wellness observation.
type FaceVitals struct {
	Image         string `json:"image,omitempty"`
	AIObservation string `json:"aiObservation,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Auscultation is one simulated stethoscope reading.
type Auscultation struct {
	ImageAnalysis
	SimulatedAudioPrompt string `json:"simulatedAudioPrompt,omitempty"`
}

// Stethoscope is a composite block: patches merge it key by key.
type Stethoscope struct {
	Heart                 *Auscultation `json:"heart,omitempty"`
	Lungs                 *Auscultation `json:"lungs,omitempty"`
	PlacementContextImage string        `json:"placementContextImage,omitempty"`
}

// Vital sign statuses.
const (
	StatusNormal  = "normal"
	StatusWarning = "warning"
	StatusDanger  = "danger"
	StatusInfo    = "info"
)

// Vital sign capture methods.
const (
	MethodScan       = "Scan"
	MethodManual     = "Manual"
	MethodCalculated = "Calculated"
	MethodSimulated  = "Simulated"
)

// VitalSign is one device reading.
type VitalSign struct {
	Name              string `json:"name"`
	Value             string `json:"value"`
	Unit              string `json:"unit"`
	Status            string `json:"status"`
	Method            string `json:"method,omitempty"`
	EvidenceImage     string `json:"evidenceImage,omitempty"`
	ManualEntryReason string `json:"manualEntryReason,omitempty"`
	Error             string `json:"error,omitempty"`
	OCRAttempt        string `json:"ocrAttempt,omitempty"`
	DeviceImage       string `json:"deviceImage,omitempty"`
}

// BloodPressure adds systolic and diastolic entries to a vital sign.
type BloodPressure struct {
	VitalSign
	Systolic  *ManualEntryField `json:"systolic,omitempty"`
	Diastolic *ManualEntryField `json:"diastolic,omitempty"`
}

// DeviceVitals is a composite block: patches merge it key by key.
type DeviceVitals struct {
	BP          *BloodPressure `json:"bp,omitempty"`
	SpO2        *VitalSign     `json:"spO2,omitempty"`
	Temperature *VitalSign     `json:"temperature,omitempty"`
	Hemoglobin  *VitalSign     `json:"hemoglobin,omitempty"`
}

// FinalReport is a composite block: patches merge it key by key.
type FinalReport struct {
	AISummary                 string `json:"aiSummary"`
	PreliminaryNotesForDoctor string `json:"preliminaryNotesForDoctor"`
}

// Session is one subject's screening working set plus navigation state.
type Session struct {
	SubjectID         string                   `json:"subjectId"`
	CurrentStep       StepKey                  `json:"currentStep"`
	PatientInfo       Identity                 `json:"patientInfo"`
	Anthropometry     Anthropometry            `json:"anthropometry"`
	ENT               ENT                      `json:"entData"`
	Dental            Dental                   `json:"dentalData"`
	FaceVitals        FaceVitals               `json:"faceVitalData"`
	Stethoscope       Stethoscope              `json:"stethoscopeData"`
	DeviceVitals      DeviceVitals             `json:"deviceVitals"`
	Dermatology       map[string]ImageAnalysis `json:"dermatologyAssessment,omitempty"`
	NurseObservations string                   `json:"nurseGeneralObservations"`
	FinalReport       FinalReport              `json:"finalReport"`
	SkippedSteps      map[StepKey]string       `json:"skippedSteps"`
}

// ObservedBodyTypeOptions are the choices offered for ObservedBodyType.
var ObservedBodyTypeOptions = []string{"Not Assessed", "Slim/Linear", "Average/Athletic", "Rounded/Heavier"}

func defaultVital(name, unit string) *VitalSign {
	return &VitalSign{Name: name, Unit: unit, Status: StatusInfo}
}

// NewSession returns the default session, positioned at identification.
func NewSession() Session {
	return Session{
		CurrentStep: StepStudentIdentification,
		Stethoscope: Stethoscope{
			Heart: &Auscultation{},
			Lungs: &Auscultation{},
		},
		DeviceVitals: DeviceVitals{
			BP:          &BloodPressure{VitalSign: *defaultVital("Blood Pressure", "mmHg")},
			SpO2:        defaultVital("SpO2", "%"),
			Temperature: defaultVital("Temperature", "°C"),
			Hemoglobin:  defaultVital("Hemoglobin", "g/dL"),
		},
		SkippedSteps: map[StepKey]string{},
	}
}

// NewSessionFor returns the default session for identity.
func NewSessionFor(identity Identity) Session {
	s := NewSession()
	s.PatientInfo = identity
	s.SubjectID = identity.SubjectID()
	return s
}

// IsSkipped reports whether step is marked skipped.
func (s Session) IsSkipped(step StepKey) bool {
	_, ok := s.SkippedSteps[step]
	return ok
}

// DisplayName renders the subject for lists and reports.
func (s Session) DisplayName() string { return s.PatientInfo.DisplayName() }

// Clone returns a deep copy that shares no mutable state with s.
func (s Session) Clone() Session {
	c := s
	c.Anthropometry = s.Anthropometry.clone()
	c.ENT = ENT{
		Ear:           s.ENT.Ear.clone(),
		Nose:          s.ENT.Nose.clone(),
		Throat:        s.ENT.Throat.clone(),
		SkippedReason: s.ENT.SkippedReason,
	}
	c.Dental = Dental{OralCavity: s.Dental.OralCavity.clone(), SkippedReason: s.Dental.SkippedReason}
	c.Stethoscope = Stethoscope{
		Heart:                 s.Stethoscope.Heart.clone(),
		Lungs:                 s.Stethoscope.Lungs.clone(),
		PlacementContextImage: s.Stethoscope.PlacementContextImage,
	}
	c.DeviceVitals = s.DeviceVitals.clone()
	if s.Dermatology != nil {
		c.Dermatology = make(map[string]ImageAnalysis, len(s.Dermatology))
		for area, item := range s.Dermatology {
			c.Dermatology[area] = *(&item).clone()
		}
	}
	c.SkippedSteps = maps.Clone(s.SkippedSteps)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (a Anthropometry) clone() Anthropometry {
	c := Anthropometry{
		HeightCm:         clonePtr(a.HeightCm),
		WeightKg:         clonePtr(a.WeightKg),
		BMI:              clonePtr(a.BMI),
		ArmSpanCm:        clonePtr(a.ArmSpanCm),
		ObservedBodyType: clonePtr(a.ObservedBodyType),
	}
	if c.HeightCm != nil {
		c.HeightCm.TappedPoints = maps.Clone(a.HeightCm.TappedPoints)
		c.HeightCm.ReferencePoints = maps.Clone(a.HeightCm.ReferencePoints)
	}
	if c.ArmSpanCm != nil {
		c.ArmSpanCm.TappedPoints = maps.Clone(a.ArmSpanCm.TappedPoints)
	}
	if c.ObservedBodyType != nil && a.ObservedBodyType.Options != nil {
		c.ObservedBodyType.Options = append([]string(nil), a.ObservedBodyType.Options...)
	}
	return c
}

func (i *ImageAnalysis) clone() *ImageAnalysis {
	c := clonePtr(i)
	if c != nil && i.Constraints != nil {
		c.Constraints = append([]Constraint(nil), i.Constraints...)
	}
	return c
}

func (a *Auscultation) clone() *Auscultation {
	if a == nil {
		return nil
	}
	return &Auscultation{
		ImageAnalysis:        *(&a.ImageAnalysis).clone(),
		SimulatedAudioPrompt: a.SimulatedAudioPrompt,
	}
}

func (d DeviceVitals) clone() DeviceVitals {
	c := DeviceVitals{
		BP:          clonePtr(d.BP),
		SpO2:        clonePtr(d.SpO2),
		Temperature: clonePtr(d.Temperature),
		Hemoglobin:  clonePtr(d.Hemoglobin),
	}
	if c.BP != nil {
		c.BP.Systolic = clonePtr(d.BP.Systolic)
		c.BP.Diastolic = clonePtr(d.BP.Diastolic)
	}
	return c
}
