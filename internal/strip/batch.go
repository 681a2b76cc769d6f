// Package strip implements symbol stripping: a single file, or every file in
// a source directory, is reduced to two stripped variants in an output
// directory, leaving the originals untouched.
package strip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// Variant suffixes appended to each produced file.
const (
	SuffixDebug = ".stripped-debug"
	SuffixAll   = ".stripped-all"
)

// FileResult records the outcome for one input file.
type FileResult struct {
	// Input is the source file path.
	Input string

	// DebugOutput and AllOutput are the produced variant paths. A path is
	// present even when that variant failed; check Err.
	DebugOutput string
	AllOutput   string

	// Err is the first failure encountered for this file, nil on success.
	Err error
}

// BatchResult summarizes a full batch run.
type BatchResult struct {
	// Processed lists every regular file found, in sorted order.
	Processed []FileResult

	// Failed counts files for which at least one variant failed.
	Failed int
}

// Outputs returns every successfully produced path, sorted.
func (r *BatchResult) Outputs() []string {
	out := make([]string, 0, 2*len(r.Processed))
	for _, f := range r.Processed {
		if f.Err != nil {
			continue
		}
		out = append(out, f.DebugOutput, f.AllOutput)
	}
	sort.Strings(out)
	return out
}

// Batcher strips every file in a directory.
type Batcher struct {
	// Strip is the strip tool path.
	Strip string

	// Invoker executes the tool. Defaults to the production runner.
	Invoker toolchain.Invoker
}

// NewBatcher creates a Batcher for the given strip binary.
func NewBatcher(stripTool string) *Batcher {
	return &Batcher{Strip: stripTool, Invoker: toolchain.Runner{}}
}

// Run strips every regular file in srcDir into outDir.
//
// For each file two variants are produced: <name>.stripped-debug via
// --strip-debug and <name>.stripped-all via --strip-all. Originals are never
// modified; strip writes to the new path with -o. The output directory is
// created if absent. Entries are processed in sorted name order and a
// failure on one file does not stop the rest; the per-file error is recorded
// and the batch continues. Subdirectories are skipped, every other entry is
// handed to the tool as-is and non-object files surface as per-file tool
// failures.
func (b *Batcher) Run(ctx context.Context, srcDir, outDir string) (*BatchResult, error) {
	if b.Strip == "" {
		return nil, fmt.Errorf("batch strip: strip tool is required")
	}
	inv := b.Invoker
	if inv == nil {
		inv = toolchain.Runner{}
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("batch strip: reading %s: %w", srcDir, err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch strip: creating %s: %w", outDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &BatchResult{Processed: make([]FileResult, 0, len(names))}

	for _, name := range names {
		fr := FileResult{
			Input:       filepath.Join(srcDir, name),
			DebugOutput: filepath.Join(outDir, name+SuffixDebug),
			AllOutput:   filepath.Join(outDir, name+SuffixAll),
		}

		fr.Err = b.stripOne(ctx, inv, fr)

		fields := log.Fields{"file": name}
		if fr.Err != nil {
			result.Failed++
			fields["error"] = fr.Err
			log.WithFields(fields).Warn("strip failed")
		} else {
			log.WithFields(fields).Info("stripped")
		}

		result.Processed = append(result.Processed, fr)
	}

	return result, nil
}

// File strips one file into outDir, producing both variants. An empty outDir
// places the variants alongside the input. The output directory is created if
// absent and the original is never modified. A tool failure is recorded in
// the result's Err; the returned error covers setup only.
func (b *Batcher) File(ctx context.Context, src, outDir string) (FileResult, error) {
	if b.Strip == "" {
		return FileResult{}, fmt.Errorf("strip: strip tool is required")
	}
	inv := b.Invoker
	if inv == nil {
		inv = toolchain.Runner{}
	}

	if outDir == "" {
		outDir = filepath.Dir(src)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return FileResult{}, fmt.Errorf("strip: creating %s: %w", outDir, err)
	}

	name := filepath.Base(src)
	fr := FileResult{
		Input:       src,
		DebugOutput: filepath.Join(outDir, name+SuffixDebug),
		AllOutput:   filepath.Join(outDir, name+SuffixAll),
	}
	fr.Err = b.stripOne(ctx, inv, fr)

	fields := log.Fields{"file": name}
	if fr.Err != nil {
		fields["error"] = fr.Err
		log.WithFields(fields).Warn("strip failed")
	} else {
		log.WithFields(fields).Info("stripped")
	}
	return fr, nil
}

// stripOne produces both variants for a single file, stopping at the first
// failing variant.
func (b *Batcher) stripOne(ctx context.Context, inv toolchain.Invoker, fr FileResult) error {
	variants := []struct {
		label string
		argv  []string
	}{
		{"strip-debug", toolchain.StripDebugArgv(b.Strip, fr.Input, fr.DebugOutput)},
		{"strip-all", toolchain.StripAllArgv(b.Strip, fr.Input, fr.AllOutput)},
	}

	for _, v := range variants {
		res, err := inv.Invoke(ctx, toolchain.Invocation{Argv: v.argv})
		if err != nil {
			return fmt.Errorf("%s: %w", v.label, err)
		}
		if res.ExitCode != 0 {
			msg := strings.TrimSpace(string(res.Stderr))
			if msg == "" {
				msg = fmt.Sprintf("exit code %d", res.ExitCode)
			}
			return fmt.Errorf("%s: %s", v.label, msg)
		}
	}
	return nil
}
