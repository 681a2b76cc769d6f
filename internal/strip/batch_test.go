package strip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// fakeStrip records invocations and writes the output file, failing for
// inputs whose name contains "bad".
type fakeStrip struct {
	invocations []toolchain.Invocation
}

func (f *fakeStrip) Invoke(_ context.Context, inv toolchain.Invocation) (*toolchain.Result, error) {
	f.invocations = append(f.invocations, inv)

	// argv: strip --strip-X -o <out> <in>
	out, in := inv.Argv[3], inv.Argv[4]
	if strings.Contains(filepath.Base(in), "bad") {
		return &toolchain.Result{
			Stderr:   []byte("file format not recognized"),
			ExitCode: 1,
		}, nil
	}
	if err := os.WriteFile(out, []byte("stripped"), 0o755); err != nil {
		return nil, err
	}
	return &toolchain.Result{}, nil
}

func newTestBatcher(f *fakeStrip) *Batcher {
	return &Batcher{Strip: "/usr/bin/strip", Invoker: f}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("content-"+n), 0o755))
	}
}

func TestBatchProducesTwoVariantsPerFile(t *testing.T) {
	src, out := t.TempDir(), filepath.Join(t.TempDir(), "stripped")
	writeFiles(t, src, "alpha", "beta")

	fake := &fakeStrip{}
	res, err := newTestBatcher(fake).Run(context.Background(), src, out)
	require.NoError(t, err)

	assert.Len(t, res.Processed, 2)
	assert.Zero(t, res.Failed)

	assert.Equal(t, []string{
		filepath.Join(out, "alpha"+SuffixAll),
		filepath.Join(out, "alpha"+SuffixDebug),
		filepath.Join(out, "beta"+SuffixAll),
		filepath.Join(out, "beta"+SuffixDebug),
	}, res.Outputs())

	for _, p := range res.Outputs() {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	// Two variants per file, debug first.
	require.Len(t, fake.invocations, 4)
	assert.Equal(t, "--strip-debug", fake.invocations[0].Argv[1])
	assert.Equal(t, "--strip-all", fake.invocations[1].Argv[1])
}

func TestBatchLeavesOriginalsUntouched(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeFiles(t, src, "alpha")

	_, err := newTestBatcher(&fakeStrip{}).Run(context.Background(), src, out)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(src, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, "content-alpha", string(content))
}

func TestBatchContinuesPastFailures(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeFiles(t, src, "alpha", "bad-file", "zeta")

	fake := &fakeStrip{}
	res, err := newTestBatcher(fake).Run(context.Background(), src, out)
	require.NoError(t, err)

	assert.Len(t, res.Processed, 3)
	assert.Equal(t, 1, res.Failed)

	// Sorted order: alpha, bad-file, zeta. zeta still processed after the
	// failure.
	assert.Equal(t, filepath.Join(src, "zeta"), res.Processed[2].Input)
	assert.NoError(t, res.Processed[2].Err)

	require.Error(t, res.Processed[1].Err)
	assert.Contains(t, res.Processed[1].Err.Error(), "file format not recognized")

	// The failing file stops at the first variant; 2+1+2 invocations total.
	assert.Len(t, fake.invocations, 5)
}

func TestBatchEmptyDirectorySucceeds(t *testing.T) {
	src, out := t.TempDir(), filepath.Join(t.TempDir(), "created")

	res, err := newTestBatcher(&fakeStrip{}).Run(context.Background(), src, out)
	require.NoError(t, err)
	assert.Empty(t, res.Processed)
	assert.Zero(t, res.Failed)

	// Output directory is still created.
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestBatchSkipsSubdirectories(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeFiles(t, src, "alpha")
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested"), 0o755))

	fake := &fakeStrip{}
	res, err := newTestBatcher(fake).Run(context.Background(), src, out)
	require.NoError(t, err)
	assert.Len(t, res.Processed, 1)
}

func TestFileStripsIntoOutDir(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, "alpha")
	out := filepath.Join(t.TempDir(), "created")

	fake := &fakeStrip{}
	fr, err := newTestBatcher(fake).File(context.Background(), filepath.Join(src, "alpha"), out)
	require.NoError(t, err)
	require.NoError(t, fr.Err)

	assert.Equal(t, filepath.Join(out, "alpha"+SuffixDebug), fr.DebugOutput)
	assert.Equal(t, filepath.Join(out, "alpha"+SuffixAll), fr.AllOutput)
	for _, p := range []string{fr.DebugOutput, fr.AllOutput} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	// Original untouched, two variants produced, debug first.
	content, err := os.ReadFile(filepath.Join(src, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, "content-alpha", string(content))
	require.Len(t, fake.invocations, 2)
	assert.Equal(t, "--strip-debug", fake.invocations[0].Argv[1])
	assert.Equal(t, "--strip-all", fake.invocations[1].Argv[1])
}

func TestFileDefaultsAlongsideInput(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, "alpha")

	fr, err := newTestBatcher(&fakeStrip{}).File(context.Background(), filepath.Join(src, "alpha"), "")
	require.NoError(t, err)
	require.NoError(t, fr.Err)

	assert.Equal(t, filepath.Join(src, "alpha"+SuffixDebug), fr.DebugOutput)
	_, err = os.Stat(fr.AllOutput)
	assert.NoError(t, err)
}

func TestFileRecordsToolFailure(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, "bad-file")

	fr, err := newTestBatcher(&fakeStrip{}).File(context.Background(), filepath.Join(src, "bad-file"), t.TempDir())
	require.NoError(t, err)
	require.Error(t, fr.Err)
	assert.Contains(t, fr.Err.Error(), "file format not recognized")
}

func TestBatchMissingSourceDirIsError(t *testing.T) {
	_, err := newTestBatcher(&fakeStrip{}).Run(context.Background(), "/nonexistent/dir", t.TempDir())
	require.Error(t, err)
}

func TestBatchRequiresStripTool(t *testing.T) {
	b := &Batcher{}
	_, err := b.Run(context.Background(), t.TempDir(), t.TempDir())
	require.Error(t, err)
}

func ExampleBatcher_Run() {
	b := &Batcher{Strip: "/usr/bin/strip", Invoker: &fakeStrip{}}
	src, _ := os.MkdirTemp("", "batch")
	defer os.RemoveAll(src)
	_ = os.WriteFile(filepath.Join(src, "app"), []byte{0x7f, 'E', 'L', 'F'}, 0o755)

	out, _ := os.MkdirTemp("", "out")
	defer os.RemoveAll(out)

	res, _ := b.Run(context.Background(), src, out)
	fmt.Printf("%d processed, %d failed\n", len(res.Processed), res.Failed)
	// Output: 1 processed, 0 failed
}
