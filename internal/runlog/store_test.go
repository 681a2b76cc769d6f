package runlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestSaveLoadRun(t *testing.T) {
	store, dir := newTestStore(t)

	run := NewRun("deadbeef", "examples/matrix.yaml")
	require.NoError(t, store.SaveRun(run))

	got, err := store.LoadRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	// Layout: <dir>/.obfus/runs/<id>/run.json
	_, err = os.Stat(filepath.Join(dir, ".obfus", "runs", run.RunID, "run.json"))
	assert.NoError(t, err)
}

func TestRunLifecycle(t *testing.T) {
	store, _ := newTestStore(t)

	run := NewRun("gh", "")
	assert.Equal(t, StatusRunning, run.Status)
	require.NoError(t, store.SaveRun(run))

	run.JobStates = map[string]string{"compile-O2": "COMPLETED"}
	run.ExecutionOrder = []string{"compile-O2"}
	run.Finish(StatusCompleted)
	require.NoError(t, store.SaveRun(run))

	got, err := store.LoadRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotEmpty(t, got.FinishedAt)
	assert.Equal(t, []string{"compile-O2"}, got.ExecutionOrder)
}

func TestListRunIDsSorted(t *testing.T) {
	store, _ := newTestStore(t)

	ids, err := store.ListRunIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	var created []string
	for i := 0; i < 3; i++ {
		run := NewRun("gh", "")
		require.NoError(t, store.SaveRun(run))
		created = append(created, run.RunID)
	}

	ids, err = store.ListRunIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, created, ids)
	assert.IsIncreasing(t, ids)
}

func TestSaveLoadFailure(t *testing.T) {
	store, _ := newTestStore(t)
	run := NewRun("gh", "")
	require.NoError(t, store.SaveRun(run))

	f := Failure{Class: FailureClassExecution, JobName: "compile-O3", Message: "exit 1"}
	require.NoError(t, store.SaveFailure(run.RunID, f))

	got, err := store.LoadFailure(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestValidationRejectsBadRecords(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.SaveRun(Run{}))
	assert.Error(t, store.SaveRun(Run{RunID: "x", Status: "BOGUS", StartedAt: "2026-01-01T00:00:00Z"}))
	assert.Error(t, store.SaveRun(Run{RunID: "x", Status: StatusRunning, StartedAt: "not-a-time"}))

	assert.Error(t, store.SaveFailure("id", Failure{Class: "weird", Message: "m"}))
	assert.Error(t, store.SaveFailure("id", Failure{Class: FailureClassSystem}))
	assert.Error(t, store.SaveFailure("", Failure{Class: FailureClassSystem, Message: "m"}))
}

func TestLoadRejectsTrailingJunk(t *testing.T) {
	store, dir := newTestStore(t)
	run := NewRun("gh", "")
	require.NoError(t, store.SaveRun(run))

	path := filepath.Join(dir, ".obfus", "runs", run.RunID, "run.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte("{}")...), 0o644))

	_, err = store.LoadRun(run.RunID)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureClass
	}{
		{&ConfigError{Msg: "bad spec"}, FailureClassConfig},
		{&WorkspaceError{Msg: "missing dir"}, FailureClassWorkspace},
		{&ExecutionError{JobName: "compile-O2", ExitCode: 1}, FailureClassExecution},
		{errors.New("anything else"), FailureClassSystem},
	}
	for _, tc := range cases {
		f := Classify(tc.err)
		assert.Equal(t, tc.want, f.Class, tc.err.Error())
		assert.NoError(t, f.Validate())
	}

	execErr := &ExecutionError{JobName: "j", ExitCode: 2, Stderr: "boom"}
	f := Classify(execErr)
	assert.Equal(t, "j", f.JobName)
	assert.Contains(t, f.Message, "boom")
}
