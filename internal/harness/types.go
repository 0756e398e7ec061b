package harness

import (
	"encoding/json"

	"github.com/roach88/schoolscreen/internal/record"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Action  string `json:"action"`
	Step    string `json:"step"`
	Error   string `json:"error,omitempty"`
	Resumed *bool  `json:"resumed,omitempty"`
	Applied *bool  `json:"applied,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed flow steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// CurrentStep is where the machine ended.
	CurrentStep string `json:"currentStep"`

	// Records are the stored records at the end, keyed by subject.
	Records map[string]record.Record `json:"-"`

	// Reports are the report projections of Records, keyed by subject.
	Reports map[string]json.RawMessage `json:"reports,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Records: map[string]record.Record{},
		Reports: map[string]json.RawMessage{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(e TraceEvent) {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}
