package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaymas/LLM4Obfus/internal/report"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	res, err := Run(context.Background(), []string{"frobnicate"}, &buf)
	require.Error(t, err)
	assert.Equal(t, ExitInvalidInvocation, res.ExitCode)
}

func TestRunReportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := report.NewManifest("gh", "app.c", []report.Entry{
		{Path: "build/app-O0", Variant: "O0", Size: 100, Baseline: true},
		{Path: "build/app-O2", Variant: "O2", Size: 80},
	})
	require.NoError(t, m.Write(path))

	var buf bytes.Buffer
	res, err := Run(context.Background(), []string{"report", "-manifest", path}, &buf)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Contains(t, buf.String(), "O0 *")
	assert.Contains(t, buf.String(), "-20.0%")
}

func TestRunReportMissingManifest(t *testing.T) {
	var buf bytes.Buffer
	res, err := Run(context.Background(),
		[]string{"report", "-manifest", filepath.Join(t.TempDir(), "absent.json")}, &buf)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestRunInspectNonELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	var buf bytes.Buffer
	res, err := Run(context.Background(), []string{"inspect", path}, &buf)
	require.NoError(t, err)
	assert.Equal(t, ExitRunFailure, res.ExitCode)
	assert.Contains(t, buf.String(), "not an ELF file")
}

func TestRunBatchMissingSourceDir(t *testing.T) {
	if _, err := exec.LookPath("strip"); err != nil {
		t.Skip("strip not installed")
	}

	var buf bytes.Buffer
	res, err := Run(context.Background(),
		[]string{"batch", "-src", filepath.Join(t.TempDir(), "absent"), "-out", t.TempDir()}, &buf)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestRunStripMissingInput(t *testing.T) {
	if _, err := exec.LookPath("strip"); err != nil {
		t.Skip("strip not installed")
	}

	var buf bytes.Buffer
	res, err := Run(context.Background(),
		[]string{"strip", filepath.Join(t.TempDir(), "absent")}, &buf)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestRunStripEndToEnd(t *testing.T) {
	stripTool, err := exec.LookPath("strip")
	if err != nil {
		t.Skip("strip not installed")
	}
	gcc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc not installed")
	}

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "stripped")

	csrc := filepath.Join(src, "hello.c")
	require.NoError(t, os.WriteFile(csrc, []byte("int main(void){return 0;}\n"), 0o644))
	bin := filepath.Join(src, "hello")
	require.NoError(t, exec.Command(gcc, "-g", "-o", bin, csrc).Run())

	t.Setenv("OBFUS_TOOLS_STRIP", stripTool)

	var buf bytes.Buffer
	res, err := Run(context.Background(), []string{"strip", "-out", out, bin}, &buf)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode)

	for _, name := range []string{"hello.stripped-debug", "hello.stripped-all"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	// Original untouched.
	_, err = os.Stat(bin)
	assert.NoError(t, err)
}

func TestRunBatchEndToEnd(t *testing.T) {
	stripTool, err := exec.LookPath("strip")
	if err != nil {
		t.Skip("strip not installed")
	}
	gcc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc not installed")
	}

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "stripped")

	// Build one real binary to strip.
	csrc := filepath.Join(src, "hello.c")
	require.NoError(t, os.WriteFile(csrc, []byte("int main(void){return 0;}\n"), 0o644))
	bin := filepath.Join(src, "hello")
	require.NoError(t, exec.Command(gcc, "-g", "-o", bin, csrc).Run())
	require.NoError(t, os.Remove(csrc))

	t.Setenv("OBFUS_TOOLS_STRIP", stripTool)

	var buf bytes.Buffer
	res, err := Run(context.Background(), []string{"batch", "-src", src, "-out", out}, &buf)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode)

	for _, name := range []string{"hello.stripped-debug", "hello.stripped-all"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	// Original untouched.
	_, err = os.Stat(bin)
	assert.NoError(t, err)
}
