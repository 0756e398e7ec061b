package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/schoolscreen/internal/screening"
)

// decodeArgs maps YAML args onto a snapshot type through its JSON tags,
// so scenarios use the same field names as exported snapshots.
func decodeArgs(args any, into any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("args.%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("args.%s must be a string, got %T", key, v)
	}
	return s, nil
}

// decodePatch builds the typed patch for a snapshot section key.
func decodePatch(section string, value any) (screening.Patch, error) {
	switch section {
	case "anthropometry":
		var p screening.AnthropometryPatch
		if err := decodeArgs(value, &p.Anthropometry); err != nil {
			return nil, err
		}
		return p, nil
	case "entData":
		var p screening.ENTPatch
		if err := decodeArgs(value, &p.ENT); err != nil {
			return nil, err
		}
		return p, nil
	case "dentalData":
		var p screening.DentalPatch
		if err := decodeArgs(value, &p.Dental); err != nil {
			return nil, err
		}
		return p, nil
	case "faceVitalData":
		var p screening.FaceVitalsPatch
		if err := decodeArgs(value, &p.FaceVitals); err != nil {
			return nil, err
		}
		return p, nil
	case "stethoscopeData":
		var v struct {
			Heart                 *screening.Auscultation `json:"heart"`
			Lungs                 *screening.Auscultation `json:"lungs"`
			PlacementContextImage *string                 `json:"placementContextImage"`
		}
		if err := decodeArgs(value, &v); err != nil {
			return nil, err
		}
		return screening.StethoscopePatch{Heart: v.Heart, Lungs: v.Lungs, PlacementContextImage: v.PlacementContextImage}, nil
	case "deviceVitals":
		var v screening.DeviceVitals
		if err := decodeArgs(value, &v); err != nil {
			return nil, err
		}
		return screening.DeviceVitalsPatch{BP: v.BP, SpO2: v.SpO2, Temperature: v.Temperature, Hemoglobin: v.Hemoglobin}, nil
	case "dermatologyAssessment":
		var p screening.DermatologyPatch
		if err := decodeArgs(value, &p.Assessment); err != nil {
			return nil, err
		}
		return p, nil
	case "nurseGeneralObservations":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("args.value must be a string, got %T", value)
		}
		return screening.ObservationsPatch{NurseObservations: s}, nil
	case "finalReport":
		var v struct {
			AISummary                 *string `json:"aiSummary"`
			PreliminaryNotesForDoctor *string `json:"preliminaryNotesForDoctor"`
		}
		if err := decodeArgs(value, &v); err != nil {
			return nil, err
		}
		return screening.FinalReportPatch{AISummary: v.AISummary, PreliminaryNotesForDoctor: v.PreliminaryNotesForDoctor}, nil
	}
	return nil, fmt.Errorf("unknown section %q", section)
}

// errorLabel is the validation code when there is one, else the message.
func errorLabel(err error) string {
	var ve *screening.ValidationError
	if errors.As(err, &ve) {
		return string(ve.Code)
	}
	return err.Error()
}

func matchesError(err error, want string) bool {
	return errorLabel(err) == want || strings.Contains(err.Error(), want)
}
