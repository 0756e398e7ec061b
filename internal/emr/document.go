package emr

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
)

// SystemVersion is reported in every document's metadata.
const SystemVersion = "1.0.0"

// Document is the EMR hand-off shape of one screening.
type Document struct {
	Patient        Patient           `json:"patient"`
	Screening      ScreeningInfo     `json:"screening"`
	Anthropometry  Anthropometry     `json:"anthropometry"`
	VitalSigns     VitalSigns        `json:"vitalSigns"`
	Examinations   Examinations      `json:"examinations"`
	Summary        Summary           `json:"summary"`
	SkippedModules map[string]string `json:"skippedModules,omitempty"`
	Metadata       Metadata          `json:"metadata"`
}

type Patient struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Age                   string `json:"age"`
	Gender                string `json:"gender"`
	PreExistingConditions string `json:"preExistingConditions"`
}

type ScreeningInfo struct {
	ID          string        `json:"id"`
	Date        time.Time     `json:"date"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Status      record.Status `json:"status"`
	Version     int64         `json:"version"`
}

// Quantity is a numeric measurement. Method says how it was captured.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Method string  `json:"method,omitempty"`
}

type BMI struct {
	Value          float64 `json:"value"`
	Interpretation string  `json:"interpretation"`
}

type Anthropometry struct {
	Height  *Quantity `json:"height"`
	Weight  *Quantity `json:"weight"`
	BMI     *BMI      `json:"bmi"`
	ArmSpan *Quantity `json:"armSpan"`
}

type BloodPressure struct {
	Systolic  string `json:"systolic"`
	Diastolic string `json:"diastolic"`
	Unit      string `json:"unit"`
	Method    string `json:"method,omitempty"`
}

type VitalSigns struct {
	BloodPressure *BloodPressure `json:"bloodPressure"`
	SpO2          *Quantity      `json:"spO2"`
	Temperature   *Quantity      `json:"temperature"`
	Hemoglobin    *Quantity      `json:"hemoglobin"`
}

// Examinations carries the imaging findings as they appear in the report
// projection, so excluded fields (raw media, OCR scratch) never leave.
type Examinations struct {
	ENT         map[string]any `json:"ent"`
	Dental      map[string]any `json:"dental"`
	Dermatology []Finding      `json:"dermatology"`
}

type Finding struct {
	Area     string `json:"area"`
	Findings string `json:"findings"`
}

type Summary struct {
	AIGenerated       string `json:"aiGenerated,omitempty"`
	NurseObservations string `json:"nurseObservations,omitempty"`
	PreliminaryNotes  string `json:"preliminaryNotes,omitempty"`
}

type Metadata struct {
	SystemVersion string    `json:"systemVersion"`
	ExportedAt    time.Time `json:"exportedAt"`
	DataVersion   int64     `json:"dataVersion"`
}

// BuildDocument converts a stored record. Sections of skipped steps are
// left empty and listed in SkippedModules.
func BuildDocument(rec record.Record, exportedAt time.Time) (Document, error) {
	s := rec.Payload
	tree, err := export.ReportTree(s)
	if err != nil {
		return Document{}, fmt.Errorf("build emr document: %w", err)
	}

	doc := Document{
		Patient: Patient{
			ID:                    rec.SubjectID,
			Name:                  s.PatientInfo.Name.Value,
			Age:                   s.PatientInfo.Age.Value,
			Gender:                s.PatientInfo.Gender.Value,
			PreExistingConditions: s.PatientInfo.PreExistingConditions,
		},
		Screening: ScreeningInfo{
			ID:          fmt.Sprintf("screening_%s_%d", rec.SubjectID, rec.CreatedAt.UnixMilli()),
			Date:        rec.CreatedAt,
			LastUpdated: rec.UpdatedAt,
			Status:      rec.Status,
			Version:     rec.Version,
		},
		Summary: Summary{
			AIGenerated:       s.FinalReport.AISummary,
			NurseObservations: s.NurseObservations,
			PreliminaryNotes:  s.FinalReport.PreliminaryNotesForDoctor,
		},
		Metadata: Metadata{
			SystemVersion: SystemVersion,
			ExportedAt:    exportedAt.UTC(),
			DataVersion:   rec.Version,
		},
	}

	if !s.IsSkipped(screening.StepAnthropometry) {
		doc.Anthropometry = anthropometry(s.Anthropometry)
	}
	if !s.IsSkipped(screening.StepVitalSigns) {
		doc.VitalSigns = vitalSigns(s.DeviceVitals)
	}
	doc.Examinations.ENT, _ = tree["entData"].(map[string]any)
	doc.Examinations.Dental, _ = tree["dentalData"].(map[string]any)
	if !s.IsSkipped(screening.StepDermatology) {
		for _, area := range slices.Sorted(maps.Keys(s.Dermatology)) {
			if text := s.Dermatology[area].AIAnalysis; text != "" {
				doc.Examinations.Dermatology = append(doc.Examinations.Dermatology, Finding{Area: area, Findings: text})
			}
		}
	}
	if notes, ok := tree[export.SkippedModulesKey].(map[string]any); ok {
		doc.SkippedModules = make(map[string]string, len(notes))
		for k, v := range notes {
			doc.SkippedModules[k], _ = v.(string)
		}
	}
	return doc, nil
}

func quantity(field *screening.ManualEntryField, unit string) *Quantity {
	if field == nil {
		return nil
	}
	v, ok := screening.ParseMeasurement(field.Value)
	if !ok {
		return nil
	}
	method := "measured"
	if field.Reason != "" {
		method = "manual"
	}
	return &Quantity{Value: v, Unit: unit, Method: method}
}

func anthropometry(a screening.Anthropometry) Anthropometry {
	var out Anthropometry
	if a.HeightCm != nil {
		out.Height = quantity(&a.HeightCm.ManualEntryField, "cm")
	}
	if a.WeightKg != nil {
		out.Weight = quantity(&a.WeightKg.ManualEntryField, "kg")
	}
	if a.ArmSpanCm != nil {
		out.ArmSpan = quantity(&a.ArmSpanCm.ManualEntryField, "cm")
	}
	if bmi, ok := a.DerivedBMI(); ok {
		interpretation := bmi.Interpretation
		if a.BMI != nil && a.BMI.Interpretation != "" {
			interpretation = a.BMI.Interpretation
		}
		out.BMI = &BMI{Value: bmi.Value, Interpretation: interpretation}
	}
	return out
}

func vital(v *screening.VitalSign) *Quantity {
	if v == nil {
		return nil
	}
	n, ok := screening.ParseMeasurement(v.Value)
	if !ok {
		return nil
	}
	return &Quantity{Value: n, Unit: v.Unit, Method: v.Method}
}

func vitalSigns(d screening.DeviceVitals) VitalSigns {
	out := VitalSigns{
		SpO2:        vital(d.SpO2),
		Temperature: vital(d.Temperature),
		Hemoglobin:  vital(d.Hemoglobin),
	}
	if bp := d.BP; bp != nil {
		sys, dia := bloodPressureParts(bp)
		if sys != "" && dia != "" {
			out.BloodPressure = &BloodPressure{Systolic: sys, Diastolic: dia, Unit: "mmHg", Method: bp.Method}
		}
	}
	return out
}

// bloodPressureParts prefers the separate entries and falls back to a
// "120/80" reading.
func bloodPressureParts(bp *screening.BloodPressure) (systolic, diastolic string) {
	if bp.Systolic != nil && bp.Diastolic != nil && bp.Systolic.Value != "" && bp.Diastolic.Value != "" {
		return bp.Systolic.Value, bp.Diastolic.Value
	}
	sys, dia, ok := strings.Cut(bp.Value, "/")
	if !ok {
		return "", ""
	}
	return strings.TrimSpace(sys), strings.TrimSpace(dia)
}
