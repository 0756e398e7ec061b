package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
)

// Roster sheet names.
const (
	RosterSheet       = "Screenings"
	MeasurementsSheet = "Measurements"
)

// RosterHeader is the first row of the Screenings sheet.
var RosterHeader = []string{
	"Subject ID",
	"Name",
	"Status",
	"Created",
	"Updated",
	"Completed Steps",
}

// MeasurementsHeader is the first row of the Measurements sheet.
var MeasurementsHeader = []string{
	"Subject ID",
	"Name",
	"Age",
	"Gender",
	"Height (cm)",
	"Weight (kg)",
	"BMI",
	"BMI Band",
	"Blood Pressure",
	"SpO2 (%)",
	"Temperature (°C)",
	"Hemoglobin (g/dL)",
	"Skipped",
}

const rosterTimeLayout = "2006-01-02 15:04"

// WriteRoster writes a workbook with one Screenings row per index entry
// and one Measurements row per record.
func WriteRoster(w io.Writer, entries []record.IndexEntry, records []record.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(RosterSheet)
	if err != nil {
		return fmt.Errorf("roster: create sheet: %w", err)
	}
	if _, err := f.NewSheet(MeasurementsSheet); err != nil {
		return fmt.Errorf("roster: create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("roster: drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("roster: header style: %w", err)
	}

	rosterRows := make([][]any, 0, len(entries))
	for _, e := range entries {
		steps := make([]string, len(e.CompletedSteps))
		for i, s := range e.CompletedSteps {
			steps[i] = s.Title()
		}
		rosterRows = append(rosterRows, []any{
			e.SubjectID,
			e.DisplayName,
			string(e.Status),
			e.CreatedAt.UTC().Format(rosterTimeLayout),
			e.UpdatedAt.UTC().Format(rosterTimeLayout),
			strings.Join(steps, ", "),
		})
	}
	if err := writeSheet(f, RosterSheet, RosterHeader, rosterRows, headerStyle); err != nil {
		return err
	}

	measureRows := make([][]any, 0, len(records))
	for _, r := range records {
		measureRows = append(measureRows, measurementRow(r.Payload))
	}
	if err := writeSheet(f, MeasurementsSheet, MeasurementsHeader, measureRows, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("roster: write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("roster: %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("roster: %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("roster: %s header style: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("roster: %s row %d: %w", sheet, i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("roster: %s row %d: %w", sheet, i+2, err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("roster: %s widths: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("roster: %s widths: %w", sheet, err)
	}
	return nil
}

// measurementRow flattens the key readings. Numeric readings become
// numbers so the sheet can sort and chart them; anything else stays text.
func measurementRow(s screening.Session) []any {
	a := s.Anthropometry
	var height, weight string
	if a.HeightCm != nil {
		height = a.HeightCm.Value
	}
	if a.WeightKg != nil {
		weight = a.WeightKg.Value
	}
	var bmi, band any = "", ""
	if r, ok := a.DerivedBMI(); ok {
		bmi, band = r.Value, r.Interpretation
	}

	d := s.DeviceVitals
	var bp string
	if d.BP != nil {
		bp = d.BP.Value
		if bp == "" && d.BP.Systolic != nil && d.BP.Diastolic != nil && d.BP.Systolic.Value != "" {
			bp = d.BP.Systolic.Value + "/" + d.BP.Diastolic.Value
		}
	}

	skipped := make([]string, 0, len(s.SkippedSteps))
	for _, step := range screening.Steps {
		if reason, ok := s.SkippedSteps[step]; ok {
			skipped = append(skipped, step.Title()+": "+reason)
		}
	}

	return []any{
		s.SubjectID,
		s.PatientInfo.Name.Value,
		number(s.PatientInfo.Age.Value),
		s.PatientInfo.Gender.Value,
		number(height),
		number(weight),
		bmi,
		band,
		bp,
		number(vitalValue(d.SpO2)),
		number(vitalValue(d.Temperature)),
		number(vitalValue(d.Hemoglobin)),
		strings.Join(skipped, "; "),
	}
}

func vitalValue(v *screening.VitalSign) string {
	if v == nil {
		return ""
	}
	return v.Value
}

func number(v string) any {
	if n, ok := screening.ParseMeasurement(v); ok {
		return n
	}
	return v
}
