package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/autosave"
	"github.com/roach88/schoolscreen/internal/kv/memory"
	"github.com/roach88/schoolscreen/internal/record"
	"github.com/roach88/schoolscreen/internal/screening"
	"github.com/roach88/schoolscreen/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// countingAutosaver saves synchronously on Flush and counts notifications.
type countingAutosaver struct {
	mu       sync.Mutex
	source   autosave.Source
	saver    autosave.Saver
	notifies int
	dirty    bool
	flushErr error
}

func (a *countingAutosaver) NotifyMutated() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifies++
	a.dirty = true
}

func (a *countingAutosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	dirty, ferr := a.dirty, a.flushErr
	a.mu.Unlock()
	if ferr != nil {
		return ferr
	}
	if !dirty {
		return nil
	}
	s, ok := a.source.AutosaveSnapshot()
	if !ok {
		return nil
	}
	if _, err := a.saver.Save(ctx, s); err != nil {
		return err
	}
	a.mu.Lock()
	a.dirty = false
	a.mu.Unlock()
	return nil
}

func (a *countingAutosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty = false
}

func (a *countingAutosaver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notifies
}

type fixture struct {
	m     *Machine
	repo  *record.Repository
	saver *countingAutosaver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewStepClock()
	repo := record.New(memory.New(), record.WithClock(clock.Now), record.WithLogger(discard()))
	return newFixtureWithRepo(t, repo)
}

func newFixtureWithRepo(t *testing.T, repo *record.Repository) *fixture {
	t.Helper()
	f := &fixture{repo: repo}
	f.m = New(repo, WithLogger(discard()), WithAutosaver(func(src autosave.Source, saver autosave.Saver) Autosaver {
		f.saver = &countingAutosaver{source: src, saver: saver}
		return f.saver
	}))
	return f
}

func jane() screening.Identity {
	return screening.Identity{
		QRID:   "S1",
		Name:   screening.ManualEntryField{Value: "Jane"},
		Age:    screening.ManualEntryField{Value: "10"},
		Gender: screening.ManualEntryField{Value: "Female"},
	}
}

func (f *fixture) identify(t *testing.T) {
	t.Helper()
	resumed, err := f.m.IdentifySubject(context.Background(), jane())
	require.NoError(t, err)
	require.False(t, resumed)
}

func TestRequiresActiveSubject(t *testing.T) {
	f := newFixture(t)

	checks := map[string]error{
		"update": f.m.UpdateSection(screening.ObservationsPatch{NurseObservations: "x"}),
		"skip":   f.m.MarkSkipped(screening.StepDermatology, "no time"),
		"unskip": f.m.Unskip(screening.StepDermatology),
	}
	_, checks["next"] = f.m.Next()
	_, checks["token"] = f.m.TokenFor("t1", screening.FieldThroat)
	_, checks["finalize"] = f.m.Finalize(context.Background())

	for name, err := range checks {
		assert.True(t, screening.HasCode(err, screening.ErrCodeNoActiveSubject), name)
	}
	assert.Zero(t, f.saver.count())
}

func TestIdentifySubject_New(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.identify(t)

	assert.Equal(t, "S1", f.m.ActiveSubject())
	assert.Equal(t, screening.StepStudentIdentification, f.m.CurrentStep())
	assert.Equal(t, "Jane", f.m.Snapshot().PatientInfo.Name.Value)
	assert.Equal(t, 1, f.saver.count())

	marker, err := f.repo.ActiveSubject(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S1", marker)
}

func TestIdentifySubject_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.IdentifySubject(context.Background(), screening.Identity{Name: screening.ManualEntryField{Value: "Nobody"}})
	assert.True(t, screening.HasCode(err, screening.ErrCodeMissingSubjectID))
	assert.Empty(t, f.m.ActiveSubject())
}

func TestReloadResumesExactly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)

	_, err := f.m.Next()
	require.NoError(t, err)
	require.NoError(t, f.m.UpdateSection(screening.AnthropometryPatch{Anthropometry: screening.Anthropometry{
		HeightCm: &screening.HeightMeasurement{ManualEntryField: screening.ManualEntryField{Value: "140"}},
		WeightKg: &screening.WeightMeasurement{ManualEntryField: screening.ManualEntryField{Value: "35"}},
	}}))
	require.NoError(t, f.m.MarkSkipped(screening.StepDermatology, "rash clinic"))
	require.NoError(t, f.saver.Flush(ctx))
	before := f.m.Snapshot()

	// A new process over the same store.
	g := newFixtureWithRepo(t, f.repo)
	resumed, err := g.m.IdentifySubject(ctx, jane())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, before, g.m.Snapshot())
	assert.Equal(t, screening.StepAnthropometry, g.m.CurrentStep())
	assert.Zero(t, g.saver.count(), "resuming is not an edit")
}

func TestIdentifySubject_FlushesPreviousSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.m.UpdateSection(screening.ObservationsPatch{NurseObservations: "shy"}))

	_, err := f.m.IdentifySubject(ctx, screening.Identity{QRID: "S2", Name: screening.ManualEntryField{Value: "Max"}})
	require.NoError(t, err)

	rec, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "shy", rec.Payload.NurseObservations)
	assert.Equal(t, "S2", f.m.ActiveSubject())
}

func TestSkipAndUnskip(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	before := f.m.Snapshot().SkippedSteps
	notifies := f.saver.count()

	err := f.m.MarkSkipped(screening.StepSpecializedImaging, "   ")
	assert.True(t, screening.HasCode(err, screening.ErrCodeEmptySkipReason))
	err = f.m.MarkSkipped(screening.StepStudentIdentification, "why not")
	assert.True(t, screening.HasCode(err, screening.ErrCodeUnskippableStep))
	err = f.m.MarkSkipped(screening.StepKey("NAPTIME"), "tired")
	assert.True(t, screening.HasCode(err, screening.ErrCodeUnknownStep))
	assert.Equal(t, notifies, f.saver.count(), "rejected actions do not save")

	require.NoError(t, f.m.MarkSkipped(screening.StepSpecializedImaging, "equipment unavailable"))
	assert.Equal(t, screening.StepStudentIdentification, f.m.CurrentStep(), "skipping does not move")
	assert.Equal(t, map[screening.StepKey]string{screening.StepSpecializedImaging: "equipment unavailable"}, f.m.Snapshot().SkippedSteps)

	require.NoError(t, f.m.MarkSkipped(screening.StepSpecializedImaging, "equipment unavailable"))
	assert.Equal(t, notifies+1, f.saver.count(), "same skip twice is one change")

	require.NoError(t, f.m.Unskip(screening.StepSpecializedImaging))
	assert.Equal(t, before, f.m.Snapshot().SkippedSteps)
	assert.Equal(t, notifies+2, f.saver.count())
}

func TestUnskip_NoopKeepsRecordVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.saver.Flush(ctx))
	rec, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)

	require.NoError(t, f.m.Unskip(screening.StepDermatology))
	require.NoError(t, f.saver.Flush(ctx))

	after, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, after.Version)
	assert.Equal(t, rec.UpdatedAt, after.UpdatedAt)
}

func TestNavigation(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.m.MarkSkipped(screening.StepSpecializedImaging, "equipment unavailable"))

	steps := []screening.StepKey{}
	for i := 0; i < 6; i++ {
		s, err := f.m.Next()
		require.NoError(t, err)
		steps = append(steps, s)
	}
	assert.Equal(t, []screening.StepKey{
		screening.StepAnthropometry,
		screening.StepVitalSigns,
		screening.StepDermatology,
		screening.StepReviewAndExport,
		screening.StepReviewAndExport,
		screening.StepReviewAndExport,
	}, steps)

	for range 3 {
		_, err := f.m.Previous()
		require.NoError(t, err)
	}
	assert.Equal(t, screening.StepAnthropometry, f.m.CurrentStep())

	s, err := f.m.GoTo(screening.StepSpecializedImaging)
	require.NoError(t, err)
	assert.Equal(t, screening.StepSpecializedImaging, s)
	assert.Equal(t, screening.StepVitalSigns, f.m.ResumePoint(), "a skipped current step resumes at the next one")

	_, err = f.m.GoTo("NOWHERE")
	assert.True(t, screening.HasCode(err, screening.ErrCodeUnknownStep))
}

func TestPrevious_AtStartIsNoop(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	n := f.saver.count()

	s, err := f.m.Previous()
	require.NoError(t, err)
	assert.Equal(t, screening.StepStudentIdentification, s)
	assert.Equal(t, n, f.saver.count())
}

func TestUpdateSection_PreservesSiblingVitals(t *testing.T) {
	f := newFixture(t)
	f.identify(t)

	require.NoError(t, f.m.UpdateSection(screening.DeviceVitalsPatch{
		SpO2:        &screening.VitalSign{Name: "SpO2", Value: "98", Unit: "%", Status: screening.StatusNormal, Method: screening.MethodScan},
		Temperature: &screening.VitalSign{Name: "Temperature", Value: "36.8", Unit: "°C", Status: screening.StatusNormal, Method: screening.MethodScan},
	}))
	require.NoError(t, f.m.UpdateSection(screening.DeviceVitalsPatch{
		BP: &screening.BloodPressure{
			VitalSign: screening.VitalSign{Name: "Blood Pressure", Value: "110/70", Unit: "mmHg", Status: screening.StatusNormal, Method: screening.MethodScan},
		},
	}))

	dv := f.m.Snapshot().DeviceVitals
	assert.Equal(t, "98", dv.SpO2.Value)
	assert.Equal(t, "36.8", dv.Temperature.Value)
	assert.Equal(t, "110/70", dv.BP.Value)
}

func TestUpdateSection_RejectedPatchLeavesSession(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	before := f.m.Snapshot()

	err := f.m.UpdateSection(screening.AnthropometryPatch{Anthropometry: screening.Anthropometry{
		HeightCm: &screening.HeightMeasurement{ManualEntryField: screening.ManualEntryField{Value: "-3"}},
	}})
	assert.True(t, screening.HasCode(err, screening.ErrCodeInvalidValue))
	assert.Equal(t, before, f.m.Snapshot())
}

func TestCorrectIdentity(t *testing.T) {
	f := newFixture(t)
	f.identify(t)

	fixed := jane()
	fixed.Name.Value = "Jane Doe"
	require.NoError(t, f.m.CorrectIdentity(fixed))
	assert.Equal(t, "Jane Doe (ID: S1)", f.m.Snapshot().DisplayName())

	other := jane()
	other.QRID = "S2"
	err := f.m.CorrectIdentity(other)
	assert.True(t, screening.HasCode(err, screening.ErrCodeIdentityMismatch))
}

func TestApplyAnalysis(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	_, err := f.m.GoTo(screening.StepSpecializedImaging)
	require.NoError(t, err)

	tok, err := f.m.TokenFor("t1", screening.FieldThroat)
	require.NoError(t, err)
	assert.Equal(t, Token{ID: "t1", SubjectID: "S1", Step: screening.StepSpecializedImaging, Field: screening.FieldThroat}, tok)

	applied, err := f.m.ApplyAnalysis(tok, "mild redness", nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "mild redness", f.m.Snapshot().ENT.Throat.AIAnalysis)

	failed, err := f.m.TokenFor("t2", screening.FieldEar)
	require.NoError(t, err)
	applied, err = f.m.ApplyAnalysis(failed, "", errors.New("proxy timeout"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, screening.AnalysisFailureText(errors.New("proxy timeout")), f.m.Snapshot().ENT.Ear.AIAnalysis)

	_, err = f.m.TokenFor("t3", screening.FieldSpO2OCR)
	assert.True(t, screening.HasCode(err, screening.ErrCodeInvalidValue), "field of another step")
	_, err = f.m.TokenFor("t3", screening.Field("nowhere.at.all"))
	assert.True(t, screening.HasCode(err, screening.ErrCodeUnknownField))
}

func TestApplyAnalysis_DiscardsStaleResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	_, err := f.m.GoTo(screening.StepSpecializedImaging)
	require.NoError(t, err)
	tok, err := f.m.TokenFor("t1", screening.FieldNose)
	require.NoError(t, err)

	_, err = f.m.Next()
	require.NoError(t, err)
	n := f.saver.count()

	applied, err := f.m.ApplyAnalysis(tok, "late", nil)
	require.NoError(t, err)
	assert.False(t, applied, "step moved on")
	assert.Nil(t, f.m.Snapshot().ENT.Nose)
	assert.Equal(t, n, f.saver.count())

	_, err = f.m.IdentifySubject(ctx, screening.Identity{QRID: "S2", Name: screening.ManualEntryField{Value: "Max"}})
	require.NoError(t, err)
	_, err = f.m.GoTo(screening.StepSpecializedImaging)
	require.NoError(t, err)
	applied, err = f.m.ApplyAnalysis(tok, "late", nil)
	require.NoError(t, err)
	assert.False(t, applied, "subject changed")

	forged := tok
	forged.SubjectID = "S2"
	forged.Step = screening.StepSpecializedImaging
	forged.Field = screening.FieldHeartSounds
	applied, err = f.m.ApplyAnalysis(forged, "x", nil)
	require.NoError(t, err)
	assert.False(t, applied, "field does not belong to the token step")
}

func TestApplyAnalysis_RetakeSupersedesEarlierCapture(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	_, err := f.m.GoTo(screening.StepSpecializedImaging)
	require.NoError(t, err)

	first, err := f.m.TokenFor("t1", screening.FieldNose)
	require.NoError(t, err)
	retake, err := f.m.TokenFor("t2", screening.FieldNose)
	require.NoError(t, err)

	applied, err := f.m.ApplyAnalysis(retake, "newer retake", nil)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.m.ApplyAnalysis(first, "older first capture", nil)
	require.NoError(t, err)
	assert.False(t, applied, "superseded by the retake")
	assert.Equal(t, "newer retake", f.m.Snapshot().ENT.Nose.AIAnalysis)

	// Other fields keep their own latest token.
	ear, err := f.m.TokenFor("t3", screening.FieldEar)
	require.NoError(t, err)
	applied, err = f.m.ApplyAnalysis(ear, "clear canal", nil)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.m.UpdateSection(screening.ObservationsPatch{NurseObservations: "healthy"}))

	rec, err := f.m.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, record.StatusCompleted, rec.Status)
	assert.Equal(t, "healthy", rec.Payload.NurseObservations)

	assert.Empty(t, f.m.ActiveSubject())
	assert.Equal(t, screening.NewSession(), f.m.Snapshot())
	marker, err := f.repo.ActiveSubject(ctx)
	require.NoError(t, err)
	assert.Empty(t, marker)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.m.UpdateSection(screening.ObservationsPatch{NurseObservations: "ok"}))

	f.saver.flushErr = errors.New("disk unplugged")
	require.Error(t, f.m.Leave(ctx))
	assert.Equal(t, "S1", f.m.ActiveSubject(), "failed save keeps the session")

	f.saver.flushErr = nil
	require.NoError(t, f.m.Leave(ctx))
	assert.Empty(t, f.m.ActiveSubject())

	rec, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ok", rec.Payload.NurseObservations)
	assert.Equal(t, record.StatusInProgress, rec.Status)
}

func TestFlush_KeepsSessionActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.m.UpdateSection(screening.ObservationsPatch{NurseObservations: "ok"}))

	require.NoError(t, f.m.Flush(ctx))
	assert.Equal(t, "S1", f.m.ActiveSubject())

	rec, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Version)

	require.NoError(t, f.m.Flush(ctx))
	rec, err = f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version, "nothing new to save")
}

func TestResetSession_KeepsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identify(t)
	require.NoError(t, f.saver.Flush(ctx))

	require.NoError(t, f.m.ResetSession(ctx))
	assert.Empty(t, f.m.ActiveSubject())
	assert.Equal(t, screening.StepStudentIdentification, f.m.CurrentStep())

	rec, err := f.repo.Get(ctx, "S1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestConcurrentMutationsAndResults(t *testing.T) {
	f := newFixture(t)
	f.identify(t)
	_, err := f.m.GoTo(screening.StepVitalSigns)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.m.UpdateSection(screening.DeviceVitalsPatch{
				SpO2: &screening.VitalSign{Name: "SpO2", Value: "97", Unit: "%", Status: screening.StatusNormal},
			}))
		}()
		go func() {
			defer wg.Done()
			tok, err := f.m.TokenFor("t", screening.FieldTemperatureOCR)
			if assert.NoError(t, err) {
				_, err = f.m.ApplyAnalysis(tok, "36.6", nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	s := f.m.Snapshot()
	assert.Equal(t, "97", s.DeviceVitals.SpO2.Value)
	assert.Equal(t, "36.6", s.DeviceVitals.Temperature.OCRAttempt)
	assert.Equal(t, screening.StepVitalSigns, s.CurrentStep)
}

func TestWithRealAutosavePolicy(t *testing.T) {
	ctx := context.Background()
	repo := record.New(memory.New(), record.WithLogger(discard()))
	m := New(repo, WithLogger(discard()), WithAutosaveOptions(autosave.WithQuietWindow(5*time.Millisecond)))

	_, err := m.IdentifySubject(ctx, jane())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.UpdateSection(screening.ObservationsPatch{NurseObservations: "note"}))
	}

	require.Eventually(t, func() bool {
		rec, err := repo.Get(ctx, "S1")
		return err == nil && rec != nil && rec.Payload.NurseObservations == "note"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Leave(ctx))
}
