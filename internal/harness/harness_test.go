package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/kv/memory"
	"github.com/roach88/schoolscreen/internal/record"
)

func identifyJane() FlowStep {
	return FlowStep{
		Invoke: ActionIdentify,
		Args: map[string]any{
			"qrId": "S1",
			"name": map[string]any{"value": "Jane"},
		},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name: "minimal",
		Flow: []FlowStep{identifyJane(), {Invoke: ActionNext}, {Invoke: ActionSave}},
		Assertions: []Assertion{
			{Type: AssertCurrentStep, Step: "ANTHROPOMETRY"},
			{Type: AssertRecord, Subject: "S1", Status: "in_progress", Version: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Seq: 2, Action: ActionNext, Step: "ANTHROPOMETRY"}, result.Trace[1])
	assert.Contains(t, result.Reports, "S1")
}

func TestRun_UnexpectedErrorStopsFlow(t *testing.T) {
	scenario := &Scenario{
		Name: "no_subject",
		Flow: []FlowStep{{Invoke: ActionNext}, identifyJane()},
		Assertions: []Assertion{
			{Type: AssertIndexCount, Count: ptr(5)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1, "assertions are skipped after a flow failure")
	assert.Contains(t, result.Errors[0], "flow[0] next: unexpected error")
	assert.Contains(t, result.Errors[0], "NO_ACTIVE_SUBJECT")
	assert.Len(t, result.Trace, 1)
}

func TestRun_ExpectedErrorMustHappen(t *testing.T) {
	scenario := &Scenario{
		Name: "wrong_expect",
		Flow: []FlowStep{
			identifyJane(),
			{Invoke: ActionNext, Expect: &ExpectClause{Error: "UNKNOWN_STEP"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error "UNKNOWN_STEP", got success`)
}

func TestRun_ExpectMismatches(t *testing.T) {
	tests := []struct {
		name   string
		expect ExpectClause
		want   string
	}{
		{"step", ExpectClause{Step: "DERMATOLOGY"}, "expected step DERMATOLOGY, got STUDENT_IDENTIFICATION"},
		{"resumed", ExpectClause{Resumed: ptr(true)}, "expected resumed=true"},
		{"error code", ExpectClause{Error: "MISSING_NAME"}, "expected error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := identifyJane()
			step.Expect = &tt.expect
			result, err := Run(&Scenario{Name: tt.name, Flow: []FlowStep{step}})
			require.NoError(t, err)
			assert.False(t, result.Pass)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestRun_BadArgsFailTheStep(t *testing.T) {
	tests := []struct {
		name string
		step FlowStep
		want string
	}{
		{"missing step", FlowStep{Invoke: ActionGoTo}, "args.step is required"},
		{"non-string step", FlowStep{Invoke: ActionGoTo, Args: map[string]any{"step": 3}}, "args.step must be a string"},
		{"unknown section", FlowStep{Invoke: ActionUpdate, Args: map[string]any{"section": "lunch"}}, `unknown section "lunch"`},
		{"unknown field in value", FlowStep{Invoke: ActionUpdate, Args: map[string]any{
			"section": "anthropometry",
			"value":   map[string]any{"heightInches": "55"},
		}}, "decode args"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(&Scenario{Name: tt.name, Flow: []FlowStep{identifyJane(), tt.step}})
			require.NoError(t, err)
			assert.False(t, result.Pass)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestRun_AnalysisFailureTextLands(t *testing.T) {
	scenario := &Scenario{
		Name: "analysis_failure",
		Flow: []FlowStep{
			identifyJane(),
			{Invoke: ActionGoTo, Args: map[string]any{"step": "REVIEW_AND_EXPORT"}},
			{
				Invoke: ActionAnalysis,
				Args:   map[string]any{"field": "finalReport.aiSummary", "error": "timeout"},
				Expect: &ExpectClause{Applied: ptr(true)},
			},
			{Invoke: ActionSave},
		},
		Assertions: []Assertion{{
			Type:    AssertProjection,
			Subject: "S1",
			Path:    "finalReport.aiSummary",
			Equals:  "Error: timeout. Retry the analysis or enter the value manually.",
		}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_PatchSections(t *testing.T) {
	update := func(section string, value any) FlowStep {
		return FlowStep{Invoke: ActionUpdate, Args: map[string]any{"section": section, "value": value}}
	}
	scenario := &Scenario{
		Name: "sections",
		Flow: []FlowStep{
			identifyJane(),
			update("entData", map[string]any{"ear": map[string]any{"aiAnalysis": "clear", "image": "data:image/png;base64,AA=="}}),
			update("dentalData", map[string]any{"oralCavity": map[string]any{"notes": "two caries"}}),
			update("faceVitalData", map[string]any{"aiObservation": "alert"}),
			update("stethoscopeData", map[string]any{"heart": map[string]any{"aiAnalysis": "regular rhythm"}}),
			update("stethoscopeData", map[string]any{"lungs": map[string]any{"aiAnalysis": "clear"}}),
			update("finalReport", map[string]any{"preliminaryNotesForDoctor": "follow up dental"}),
			update("nurseGeneralObservations", "quiet"),
			{Invoke: ActionSave},
		},
		Assertions: []Assertion{
			{Type: AssertProjection, Subject: "S1", Path: "entData.ear.aiAnalysis", Equals: "clear"},
			{Type: AssertProjection, Subject: "S1", Path: "entData.ear.image", Absent: true},
			{Type: AssertProjection, Subject: "S1", Path: "dentalData.oralCavity.notes", Equals: "two caries"},
			{Type: AssertProjection, Subject: "S1", Path: "faceVitalData.aiObservation", Equals: "alert"},
			{Type: AssertProjection, Subject: "S1", Path: "stethoscopeData.heart.aiAnalysis", Equals: "regular rhythm"},
			{Type: AssertProjection, Subject: "S1", Path: "stethoscopeData.lungs.aiAnalysis", Equals: "clear"},
			{Type: AssertProjection, Subject: "S1", Path: "finalReport.preliminaryNotesForDoctor", Equals: "follow up dental"},
			{Type: AssertProjection, Subject: "S1", Path: "nurseGeneralObservations", Equals: "quiet"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunContext_WithStoreKeepsRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	scenario := &Scenario{
		Name: "persist",
		Flow: []FlowStep{identifyJane(), {Invoke: ActionFinalize}},
	}

	result, err := RunContext(ctx, scenario, WithStore(store))
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	rec, err := record.New(store).Get(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, record.StatusCompleted, rec.Status)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/jane_walk.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Records["S1"].UpdatedAt, second.Records["S1"].UpdatedAt)
}

func ptr[T any](v T) *T { return &v }
