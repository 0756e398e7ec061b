package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s", ev.Seq, ev.Action, ev.Step)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCurrentStep:
		return assertCurrentStep(result, a)
	case AssertRecord:
		return assertRecord(result, a)
	case AssertProjection:
		return assertProjection(result, a)
	case AssertIndexCount:
		return assertIndexCount(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertCurrentStep(result *Result, a Assertion) error {
	if result.CurrentStep == a.Step {
		return nil
	}
	return &AssertionError{
		Type:     AssertCurrentStep,
		Expected: a.Step,
		Actual:   result.CurrentStep,
		Trace:    result.Trace,
	}
}

func assertRecord(result *Result, a Assertion) error {
	rec, ok := result.Records[a.Subject]
	if !ok {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record for %s", a.Subject),
			Actual:   "no record stored",
			Trace:    result.Trace,
		}
	}
	if a.Status != "" && string(rec.Status) != a.Status {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: "status " + a.Status,
			Actual:   "status " + string(rec.Status),
			Trace:    result.Trace,
		}
	}
	if a.Version != 0 && rec.Version != a.Version {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("version %d", a.Version),
			Actual:   fmt.Sprintf("version %d", rec.Version),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertProjection(result *Result, a Assertion) error {
	raw, ok := result.Reports[a.Subject]
	if !ok {
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("report for %s", a.Subject),
			Actual:   "no record stored",
		}
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}

	got, found := lookup(tree, a.Path)
	switch {
	case a.Absent && found:
		return &AssertionError{
			Type:     AssertProjection,
			Expected: a.Path + " absent",
			Actual:   fmt.Sprintf("%v", got),
		}
	case a.Absent:
		return nil
	case !found:
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("%s = %v", a.Path, a.Equals),
			Actual:   a.Path + " absent",
		}
	}

	want, err := normalize(a.Equals)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("%s = %v", a.Path, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertIndexCount(result *Result, a Assertion) error {
	if len(result.Records) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertIndexCount,
		Expected: fmt.Sprintf("%d records", *a.Count),
		Actual:   fmt.Sprintf("%d records", len(result.Records)),
	}
}

// lookup walks a dotted path through decoded JSON objects.
func lookup(tree any, path string) (any, bool) {
	cur := tree
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize gives a YAML value the shape encoding/json decodes to, so
// 17.86 from YAML compares equal to 17.86 from the report.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expected value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode expected value: %w", err)
	}
	return out, nil
}
