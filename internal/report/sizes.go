package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/ajaymas/LLM4Obfus/internal/elfinspect"
	"github.com/ajaymas/LLM4Obfus/internal/matrix"
)

// Collect inspects every planned artifact on disk and builds manifest
// entries. Relative artifact paths are read under baseDir but recorded
// as-is, so the manifest stays position-independent. Missing files are an
// error: the pipeline declared them as outputs, so absence means the run
// did not finish cleanly.
func Collect(baseDir string, artifacts []matrix.Artifact) ([]Entry, error) {
	entries := make([]Entry, 0, len(artifacts))
	for _, a := range artifacts {
		onDisk := a.Path
		if !filepath.IsAbs(onDisk) {
			onDisk = filepath.Join(baseDir, filepath.FromSlash(onDisk))
		}

		info, err := elfinspect.Inspect(onDisk)
		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", a.Path, err)
		}

		sum, err := fileSHA256(onDisk)
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{
			Path:        a.Path,
			Variant:     a.Variant,
			JobName:     a.JobName,
			Size:        info.FileSize,
			SHA256:      sum,
			SymbolCount: info.SymbolCount,
			HasSymbols:  info.HasSymbols,
			HasDebug:    info.HasDebug,
			Baseline:    a.Baseline,
		})
	}
	return entries, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SizeTable renders a human-readable comparison of the entries.
//
// Deltas are relative to the baseline entry; the baseline row shows "-".
// Entries render in the order given (the manifest keeps them sorted by
// path, a caller may prefer variant order).
func SizeTable(w io.Writer, entries []Entry) error {
	var baseline *Entry
	for i := range entries {
		if entries[i].Baseline {
			baseline = &entries[i]
			break
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tSIZE\tDELTA\tSYMBOLS\tDEBUG\tPATH")

	for _, e := range entries {
		delta := "-"
		if baseline != nil && e.Path != baseline.Path && baseline.Size > 0 {
			diff := e.Size - baseline.Size
			pct := float64(diff) / float64(baseline.Size) * 100
			delta = fmt.Sprintf("%+d (%+.1f%%)", diff, pct)
		}

		sym := "none"
		if e.HasSymbols {
			sym = fmt.Sprintf("%d", e.SymbolCount)
		}
		dbg := "no"
		if e.HasDebug {
			dbg = "yes"
		}

		variant := e.Variant
		if e.Baseline {
			variant += " *"
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", variant, e.Size, delta, sym, dbg, e.Path)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("rendering size table: %w", err)
	}
	if baseline != nil {
		fmt.Fprintln(w, strings.Repeat("-", 8))
		fmt.Fprintln(w, "* baseline")
	}
	return nil
}
