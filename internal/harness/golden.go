package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/schoolscreen/internal/canonical"
)

// TraceSnapshot is what golden files pin: the step trace, where the
// wizard ended and the report projection of every stored record.
type TraceSnapshot struct {
	ScenarioName string                     `json:"scenario"`
	Trace        []TraceEvent               `json:"trace"`
	CurrentStep  string                     `json:"currentStep"`
	Reports      map[string]json.RawMessage `json:"reports,omitempty"`
}

// Snapshot renders the canonical golden bytes for result.
func Snapshot(name string, result *Result) ([]byte, error) {
	return canonical.Marshal(TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		CurrentStep:  result.CurrentStep,
		Reports:      result.Reports,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
