package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvocationMatrix(t *testing.T) {
	inv, err := ParseInvocation([]string{
		"matrix", "-spec", "examples/matrix.yaml", "-jobs", "4", "-no-cache",
	})
	require.NoError(t, err)

	assert.Equal(t, CommandMatrix, inv.Command)
	assert.Equal(t, "examples/matrix.yaml", inv.MatrixSpec)
	assert.Equal(t, 4, inv.Jobs)
	assert.True(t, inv.NoCache)
	assert.False(t, inv.Serial)
	assert.Equal(t, ".", inv.WorkDir)
}

func TestParseInvocationMatrixDefaults(t *testing.T) {
	inv, err := ParseInvocation([]string{"matrix"})
	require.NoError(t, err)
	assert.Equal(t, "matrix.yaml", inv.MatrixSpec)
	assert.Zero(t, inv.Jobs)
}

func TestParseInvocationBatchDefaults(t *testing.T) {
	inv, err := ParseInvocation([]string{"batch"})
	require.NoError(t, err)

	assert.Equal(t, CommandBatch, inv.Command)
	assert.Equal(t, "./binaries", inv.BatchSrcDir)
	assert.Equal(t, "./stripped_binaries", inv.BatchOutDir)
}

func TestParseInvocationBatchFlags(t *testing.T) {
	inv, err := ParseInvocation([]string{"batch", "-src", "in", "-out", "out"})
	require.NoError(t, err)
	assert.Equal(t, "in", inv.BatchSrcDir)
	assert.Equal(t, "out", inv.BatchOutDir)
}

func TestParseInvocationStrip(t *testing.T) {
	inv, err := ParseInvocation([]string{"strip", "-out", "stripped", "a", "b"})
	require.NoError(t, err)

	assert.Equal(t, CommandStrip, inv.Command)
	assert.Equal(t, "stripped", inv.StripOutDir)
	assert.Equal(t, []string{"a", "b"}, inv.StripPaths)

	_, err = ParseInvocation([]string{"strip"})
	require.Error(t, err)
}

func TestParseInvocationInspect(t *testing.T) {
	inv, err := ParseInvocation([]string{"inspect", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, CommandInspect, inv.Command)
	assert.Equal(t, []string{"a", "b"}, inv.InspectPaths)

	_, err = ParseInvocation([]string{"inspect"})
	require.Error(t, err)
}

func TestParseInvocationReport(t *testing.T) {
	inv, err := ParseInvocation([]string{"report", "-manifest", "build/manifest.json"})
	require.NoError(t, err)
	assert.Equal(t, "build/manifest.json", inv.ReportManifest)

	_, err = ParseInvocation([]string{"report"})
	require.Error(t, err)
}

func TestParseInvocationRejections(t *testing.T) {
	cases := [][]string{
		{},
		{"frobnicate"},
		{"matrix", "-bogus"},
		{"matrix", "stray-arg"},
		{"matrix", "-jobs", "-1"},
		{"batch", "-src", ""},
		{"batch", "extra"},
	}
	for _, args := range cases {
		_, err := ParseInvocation(args)
		require.Errorf(t, err, "args: %v", args)
		assert.Equal(t, ExitInvalidInvocation, ExitCodeFor(err))
	}
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeFor(nil))
	assert.Equal(t, ExitInvalidInvocation, ExitCodeFor(&InvocationError{ExitCode: ExitInvalidInvocation, Message: "m"}))
	assert.Equal(t, ExitConfigError, ExitCodeFor(&InvocationError{ExitCode: ExitConfigError, Message: "m"}))
	assert.Equal(t, ExitInternalError, ExitCodeFor(errors.New("boom")))
}
