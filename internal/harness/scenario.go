package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
)

// Scenario is a scripted screening session.
// A scenario drives the session state machine through a flow of nurse
// actions and then asserts on the machine and on the stored records.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flow is the ordered list of actions.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final machine and store state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one nurse action.
type FlowStep struct {
	// Invoke is the action name, one of the Action* constants.
	Invoke string `yaml:"invoke"`

	// Args are the action arguments. Their shape depends on Invoke.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome of this step. Without it the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause checks the outcome of one step.
type ExpectClause struct {
	// Step is the current step after the action.
	Step string `yaml:"step,omitempty"`

	// Error is a validation code ("UNSKIPPABLE_STEP") or a substring of
	// the error message. When set the action must fail.
	Error string `yaml:"error,omitempty"`

	// Resumed checks identify and reload: whether a stored record was
	// picked up.
	Resumed *bool `yaml:"resumed,omitempty"`

	// Applied checks analysis: whether the result landed in the session.
	Applied *bool `yaml:"applied,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Subject selects the stored record (record, projection).
	Subject string `yaml:"subject,omitempty"`

	// Step is the expected current step (current_step).
	Step string `yaml:"step,omitempty"`

	// Status is the expected record status (record).
	Status string `yaml:"status,omitempty"`

	// Version is the expected record version (record). Zero skips the check.
	Version int64 `yaml:"version,omitempty"`

	// Path is a dotted path into the report projection (projection).
	Path string `yaml:"path,omitempty"`

	// Equals is the expected value at Path.
	Equals any `yaml:"equals,omitempty"`

	// Absent expects nothing at Path.
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of index entries (index_count).
	Count *int `yaml:"count,omitempty"`
}

// Flow actions.
const (
	ActionIdentify = "identify"
	ActionCorrect  = "correct"
	ActionUpdate   = "update"
	ActionSkip     = "skip"
	ActionUnskip   = "unskip"
	ActionNext     = "next"
	ActionPrevious = "previous"
	ActionGoTo     = "goto"
	ActionAnalysis = "analysis"
	ActionSave     = "save"
	ActionReload   = "reload"
	ActionLeave    = "leave"
	ActionFinalize = "finalize"
	ActionReset    = "reset"
)

var actions = []string{
	ActionIdentify, ActionCorrect, ActionUpdate, ActionSkip, ActionUnskip,
	ActionNext, ActionPrevious, ActionGoTo, ActionAnalysis, ActionSave,
	ActionReload, ActionLeave, ActionFinalize, ActionReset,
}

// Assertion type constants.
const (
	AssertCurrentStep = "current_step"
	AssertRecord      = "record"
	AssertProjection  = "projection"
	AssertIndexCount  = "index_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos ("assertion:") fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow must have at least one step")
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !slices.Contains(actions, step.Invoke) {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if e := step.Expect; e != nil && e.Step != "" {
			if _, err := screening.ParseStep(e.Step); err != nil {
				return fmt.Errorf("flow[%d]: expect: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCurrentStep:
		if _, err := screening.ParseStep(a.Step); err != nil {
			return err
		}
	case AssertRecord:
		if a.Subject == "" {
			return errors.New("record requires subject")
		}
		if a.Status != "" {
			if _, ok := record.ParseStatus(a.Status); !ok {
				return fmt.Errorf("unknown status %q", a.Status)
			}
		}
	case AssertProjection:
		if a.Subject == "" || a.Path == "" {
			return errors.New("projection requires subject and path")
		}
		if a.Absent && a.Equals != nil {
			return errors.New("projection takes equals or absent, not both")
		}
	case AssertIndexCount:
		if a.Count == nil {
			return errors.New("index_count requires count")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
