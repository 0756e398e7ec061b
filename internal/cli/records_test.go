package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/export"
	"github.com/roach88/schoolscreen/internal/record"
)

// decodeData unwraps the JSON envelope into v.
func decodeData(t *testing.T, stdout string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestList(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)
	env.seed("S2", "Omar", record.StatusCompleted)

	t.Run("text", func(t *testing.T) {
		stdout, _, err := env.run("list")
		require.NoError(t, err)
		assert.Contains(t, stdout, "SUBJECT")
		assert.Contains(t, stdout, "Jane (ID: S1)")
		assert.Contains(t, stdout, "Omar (ID: S2)")
	})

	t.Run("json newest first", func(t *testing.T) {
		stdout, _, err := env.run("--format", "json", "list")
		require.NoError(t, err)

		var entries []record.IndexEntry
		decodeData(t, stdout, &entries)
		require.Len(t, entries, 2)
		assert.Equal(t, "S2", entries[0].SubjectID)
		assert.Equal(t, "S1", entries[1].SubjectID)
	})

	t.Run("status filter", func(t *testing.T) {
		stdout, _, err := env.run("--format", "json", "list", "--status", "completed")
		require.NoError(t, err)

		var entries []record.IndexEntry
		decodeData(t, stdout, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, "S2", entries[0].SubjectID)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, _, err := env.run("list", "--status", "done")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestList_Empty(t *testing.T) {
	env := newEnv(t)
	stdout, _, err := env.run("list")
	require.NoError(t, err)
	assert.Equal(t, "No screenings saved.\n", stdout)
}

func TestShow(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)

	t.Run("snapshot", func(t *testing.T) {
		stdout, _, err := env.run("--format", "json", "show", "S1")
		require.NoError(t, err)

		var snap map[string]any
		decodeData(t, stdout, &snap)
		assert.Equal(t, "S1", snap["subjectId"])
		assert.Contains(t, snap, "currentStep")
	})

	t.Run("report", func(t *testing.T) {
		stdout, _, err := env.run("--format", "json", "show", "--report", "S1")
		require.NoError(t, err)

		var report map[string]any
		decodeData(t, stdout, &report)
		assert.NotContains(t, report, "currentStep")
		assert.NotContains(t, report, "skippedSteps")
		anthro := report["anthropometry"].(map[string]any)
		assert.Contains(t, anthro, "bmi")
	})

	t.Run("missing", func(t *testing.T) {
		_, _, err := env.run("show", "S404")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), `no screening for "S404"`)
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newEnv(t)
	rec := env.seed("S-1/a", "Jane", record.StatusCompleted)
	out := t.TempDir()

	stdout, _, err := env.run("export", "S-1/a", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 1 screening(s)")

	path := filepath.Join(out, "screening_report_S_1_a_20250303.json")
	assert.Equal(t, export.FileName(rec.SubjectID, rec.CreatedAt), filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, export.ValidateSnapshot(data))

	// Import into a fresh store.
	fresh := newEnv(t)
	stdout, _, err = fresh.run("import", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ S-1/a")

	got, err := fresh.records.Get(context.Background(), "S-1/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Payload.PatientInfo, got.Payload.PatientInfo)
	assert.Equal(t, record.StatusInProgress, got.Status)
}

func TestExport_AllReport(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)
	env.seed("S2", "Omar", record.StatusInProgress)
	out := filepath.Join(t.TempDir(), "reports")

	stdout, _, err := env.run("--format", "json", "export", "--all", "--report", "-o", out)
	require.NoError(t, err)

	var data struct {
		Files []string `json:"files"`
	}
	decodeData(t, stdout, &data)
	require.Len(t, data.Files, 2)
	for _, f := range data.Files {
		raw, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), `"currentStep"`)
	}
}

func TestExport_ArgumentErrors(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)

	_, _, err := env.run("export", "-o", t.TempDir())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = env.run("export", "S1", "--all", "-o", t.TempDir())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = env.run("export", "S404", "-o", t.TempDir())
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestImport_RejectsInvalidSnapshot(t *testing.T) {
	env := newEnv(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"subjectId": 7}`), 0o644))

	_, _, err := env.run("import", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid snapshot")

	entries, err := env.records.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteAndClear(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)
	env.seed("S2", "Omar", record.StatusInProgress)
	env.seed("S3", "Lea", record.StatusInProgress)
	ctx := context.Background()

	_, _, err := env.run("delete", "S1")
	require.NoError(t, err)
	got, err := env.records.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, _, err = env.run("clear")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	stdout, _, err := env.run("--format", "json", "clear", "--yes")
	require.NoError(t, err)
	var data map[string]int
	decodeData(t, stdout, &data)
	assert.Equal(t, 2, data["deleted"])

	entries, err := env.records.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComplete(t *testing.T) {
	env := newEnv(t)
	rec := env.seed("S1", "Jane", record.StatusInProgress)

	stdout, _, err := env.run("complete", "S1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ S1 completed")

	got, err := env.records.Get(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusCompleted, got.Status)
	assert.Equal(t, rec.Version, got.Version)

	_, _, err = env.run("complete", "S404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRebuildIndex(t *testing.T) {
	env := newEnv(t)
	env.seed("S1", "Jane", record.StatusInProgress)
	env.seed("S2", "Omar", record.StatusInProgress)
	require.NoError(t, env.store.Delete(context.Background(), record.IndexKey))

	stdout, _, err := env.run("rebuild-index")
	require.NoError(t, err)
	assert.Equal(t, "Index rebuilt: 2 screening(s)\n", stdout)
}

func TestSettings(t *testing.T) {
	env := newEnv(t)

	stdout, _, err := env.run("settings")
	require.NoError(t, err)
	assert.Contains(t, stdout, "camera:     (none)")

	_, _, err = env.run("settings", "--camera", " cam-2 ")
	require.NoError(t, err)

	stdout, _, err = env.run("--format", "json", "settings", "--microphone", "mic-1")
	require.NoError(t, err)
	var s record.Settings
	decodeData(t, stdout, &s)
	assert.Equal(t, record.Settings{PreferredCameraID: "cam-2", PreferredMicrophoneID: "mic-1"}, s)

	stored, err := env.records.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s, stored)
}
