package screening

import (
	"math"
	"strconv"
	"strings"
)

// WHO adult BMI bands.
const (
	BMIUnderweight = "Underweight"
	BMINormal      = "Normal weight"
	BMIOverweight  = "Overweight"
	BMIObesity     = "Obesity"
)

// ComputeBMI returns weight/height² rounded to two decimals with its WHO
// band. ok is false unless both inputs are positive and finite.
func ComputeBMI(heightCm, weightKg float64) (BMIResult, bool) {
	if !positive(heightCm) || !positive(weightKg) {
		return BMIResult{}, false
	}
	m := heightCm / 100
	v := math.Round(weightKg/(m*m)*100) / 100
	return BMIResult{Value: v, Interpretation: BMIBand(v)}, true
}

// BMIBand maps a BMI value to its WHO category.
func BMIBand(v float64) string {
	switch {
	case v < 18.5:
		return BMIUnderweight
	case v < 25:
		return BMINormal
	case v < 30:
		return BMIOverweight
	default:
		return BMIObesity
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ParseMeasurement reads a nurse-entered number, tolerating surrounding
// space and a trailing unit ("140", " 35.5 kg").
func ParseMeasurement(v string) (float64, bool) {
	f := strings.Fields(v)
	if len(f) == 0 || len(f) > 2 {
		return 0, false
	}
	n, err := strconv.ParseFloat(f[0], 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// DerivedBMI computes the BMI from the recorded height and weight.
func (a Anthropometry) DerivedBMI() (BMIResult, bool) {
	if a.HeightCm == nil || a.WeightKg == nil {
		return BMIResult{}, false
	}
	h, ok := ParseMeasurement(a.HeightCm.Value)
	if !ok {
		return BMIResult{}, false
	}
	w, ok := ParseMeasurement(a.WeightKg.Value)
	if !ok {
		return BMIResult{}, false
	}
	return ComputeBMI(h, w)
}
