package emr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is an EMR wire format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatFHIR   Format = "fhir"
	FormatHL7    Format = "hl7"
	FormatCustom Format = "custom"
)

// HL7ContentType is sent with HL7 v2 bodies; every other format is JSON.
const HL7ContentType = "x-application/hl7-v2+er7"

// ParseFormat validates a configured format name.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case FormatJSON, FormatFHIR, FormatHL7, FormatCustom:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown emr format %q", v)
	}
}

// Render converts doc to the request body for f. HL7 renders to a string,
// the JSON formats to a value for the JSON encoder.
func Render(doc Document, f Format, now time.Time) (any, error) {
	switch f {
	case FormatJSON:
		return doc, nil
	case FormatFHIR:
		return toFHIR(doc, now), nil
	case FormatHL7:
		return toHL7(doc, now), nil
	case FormatCustom:
		return toCustom(doc), nil
	default:
		return nil, fmt.Errorf("unknown emr format %q", f)
	}
}

// BirthDate approximates a birth date as January 1st of now's year minus
// age. Empty when age is not a whole number.
func BirthDate(age string, now time.Time) string {
	n, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil || n < 0 {
		return ""
	}
	return fmt.Sprintf("%04d-01-01", now.Year()-n)
}

// LOINC codes used in the FHIR and HL7 renderings.
const (
	LOINCBodyHeight = "8302-2"
	LOINCBodyWeight = "29463-7"
	LOINCBMI        = "39156-5"
)

type fhirBundle struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Timestamp    time.Time   `json:"timestamp"`
	Entry        []fhirEntry `json:"entry"`
}

type fhirEntry struct {
	Resource any `json:"resource"`
}

type fhirHumanName struct {
	Text   string   `json:"text"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type fhirPatient struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Name         []fhirHumanName `json:"name"`
	Gender       string          `json:"gender,omitempty"`
	BirthDate    string          `json:"birthDate,omitempty"`
}

type fhirCoding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type fhirConcept struct {
	Coding []fhirCoding `json:"coding"`
}

type fhirReference struct {
	Reference string `json:"reference"`
}

type fhirQuantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	System string  `json:"system"`
	Code   string  `json:"code"`
}

type fhirObservation struct {
	ResourceType  string        `json:"resourceType"`
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Category      []fhirConcept `json:"category"`
	Code          fhirConcept   `json:"code"`
	Subject       fhirReference `json:"subject"`
	ValueQuantity *fhirQuantity `json:"valueQuantity,omitempty"`
}

func toFHIR(doc Document, now time.Time) fhirBundle {
	p := doc.Patient
	name := fhirHumanName{Text: p.Name}
	if parts := strings.Fields(p.Name); len(parts) > 0 {
		name.Family = parts[len(parts)-1]
		name.Given = parts[:len(parts)-1]
	}
	entries := []fhirEntry{{Resource: fhirPatient{
		ResourceType: "Patient",
		ID:           p.ID,
		Name:         []fhirHumanName{name},
		Gender:       strings.ToLower(p.Gender),
		BirthDate:    BirthDate(p.Age, now),
	}}}

	observation := func(id, code, display string, q *fhirQuantity) fhirEntry {
		return fhirEntry{Resource: fhirObservation{
			ResourceType: "Observation",
			ID:           id + "-" + p.ID,
			Status:       "final",
			Category: []fhirConcept{{Coding: []fhirCoding{{
				System: "http://terminology.hl7.org/CodeSystem/observation-category",
				Code:   "vital-signs",
			}}}},
			Code:          fhirConcept{Coding: []fhirCoding{{System: "http://loinc.org", Code: code, Display: display}}},
			Subject:       fhirReference{Reference: "Patient/" + p.ID},
			ValueQuantity: q,
		}}
	}
	ucum := func(q *Quantity, code string) *fhirQuantity {
		if q == nil {
			return nil
		}
		return &fhirQuantity{Value: q.Value, Unit: q.Unit, System: "http://unitsofmeasure.org", Code: code}
	}

	a := doc.Anthropometry
	entries = append(entries,
		observation("height", LOINCBodyHeight, "Body height", ucum(a.Height, "cm")),
		observation("weight", LOINCBodyWeight, "Body weight", ucum(a.Weight, "kg")),
	)
	if a.BMI != nil {
		entries = append(entries, observation("bmi", LOINCBMI, "Body mass index",
			&fhirQuantity{Value: a.BMI.Value, Unit: "kg/m2", System: "http://unitsofmeasure.org", Code: "kg/m2"}))
	}

	return fhirBundle{
		ResourceType: "Bundle",
		ID:           "screening-" + doc.Screening.ID,
		Type:         "document",
		Timestamp:    doc.Screening.Date,
		Entry:        entries,
	}
}

// toHL7 renders a minimal HL7 v2.5 ADT^A08 message with segments
// separated by carriage returns.
func toHL7(doc Document, now time.Time) string {
	p := doc.Patient
	now = now.UTC()
	sex := ""
	if r := []rune(strings.TrimSpace(p.Gender)); len(r) > 0 {
		sex = strings.ToUpper(string(r[0]))
	}
	num := func(q *Quantity) string {
		if q == nil {
			return ""
		}
		return strconv.FormatFloat(q.Value, 'f', -1, 64)
	}
	bmi := ""
	if doc.Anthropometry.BMI != nil {
		bmi = strconv.FormatFloat(doc.Anthropometry.BMI.Value, 'f', -1, 64)
	}
	segments := []string{
		fmt.Sprintf(`MSH|^~\&|SCREENING_SYSTEM|CLINIC|EMR_SYSTEM|HOSPITAL|%s||ADT^A08|%d|P|2.5`,
			now.Format("20060102150405"), now.UnixMilli()),
		fmt.Sprintf("PID|1||%s^^^MR||%s||%s|%s",
			p.ID, strings.Replace(p.Name, " ", "^", 1), BirthDate(p.Age, now), sex),
		fmt.Sprintf("OBX|1|NM|%s^Body height^LN||%s|cm|||||F", LOINCBodyHeight, num(doc.Anthropometry.Height)),
		fmt.Sprintf("OBX|2|NM|%s^Body weight^LN||%s|kg|||||F", LOINCBodyWeight, num(doc.Anthropometry.Weight)),
		fmt.Sprintf("OBX|3|NM|%s^Body mass index^LN||%s|kg/m2|||||F", LOINCBMI, bmi),
	}
	return strings.Join(segments, "\r")
}

type customMeasurements struct {
	HeightCm *float64 `json:"height_cm"`
	WeightKg *float64 `json:"weight_kg"`
	BMI      *float64 `json:"bmi"`
}

type customVitals struct {
	BloodPressure    *string  `json:"blood_pressure"`
	OxygenSaturation *float64 `json:"oxygen_saturation"`
	Temperature      *float64 `json:"temperature"`
	Hemoglobin       *float64 `json:"hemoglobin"`
}

type customDocument struct {
	PatientID      string             `json:"patient_id"`
	PatientName    string             `json:"patient_name"`
	ScreeningDate  time.Time          `json:"screening_date"`
	Measurements   customMeasurements `json:"measurements"`
	VitalSigns     customVitals       `json:"vital_signs"`
	Examinations   Examinations       `json:"examinations"`
	Summary        string             `json:"summary,omitempty"`
	NurseNotes     string             `json:"nurse_notes,omitempty"`
	SkippedModules map[string]string  `json:"skipped_modules,omitempty"`
}

func toCustom(doc Document) customDocument {
	value := func(q *Quantity) *float64 {
		if q == nil {
			return nil
		}
		return &q.Value
	}
	out := customDocument{
		PatientID:     doc.Patient.ID,
		PatientName:   doc.Patient.Name,
		ScreeningDate: doc.Screening.Date,
		Measurements: customMeasurements{
			HeightCm: value(doc.Anthropometry.Height),
			WeightKg: value(doc.Anthropometry.Weight),
		},
		VitalSigns: customVitals{
			OxygenSaturation: value(doc.VitalSigns.SpO2),
			Temperature:      value(doc.VitalSigns.Temperature),
			Hemoglobin:       value(doc.VitalSigns.Hemoglobin),
		},
		Examinations:   doc.Examinations,
		Summary:        doc.Summary.AIGenerated,
		NurseNotes:     doc.Summary.NurseObservations,
		SkippedModules: doc.SkippedModules,
	}
	if doc.Anthropometry.BMI != nil {
		out.Measurements.BMI = &doc.Anthropometry.BMI.Value
	}
	if bp := doc.VitalSigns.BloodPressure; bp != nil {
		s := bp.Systolic + "/" + bp.Diastolic
		out.VitalSigns.BloodPressure = &s
	}
	return out
}
