package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Artifact is a harvested output file.
type Artifact struct {
	Path    string
	Content []byte
}

// ArtifactSet is the full, sorted harvest of one job.
type ArtifactSet struct {
	Artifacts []Artifact
}

// Harvester collects artifacts from declared output paths after execution.
//
// Only declared outputs are collected; the harvester never scans for
// incidentally modified files.
type Harvester struct {
	// BaseDir anchors relative output paths.
	BaseDir string
}

// NewHarvester returns a Harvester anchored at baseDir.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{BaseDir: baseDir}
}

// Harvest reads every declared output. Directory outputs are walked
// recursively; all collected paths are sorted and deduplicated.
//
// A declared output that does not exist is an error: the job claimed to
// produce it and did not.
func (h *Harvester) Harvest(declaredOutputs []string) (*ArtifactSet, error) {
	if len(declaredOutputs) == 0 {
		return &ArtifactSet{Artifacts: []Artifact{}}, nil
	}

	var allPaths []string
	for _, output := range declaredOutputs {
		fullPath := output
		if !filepath.IsAbs(output) {
			fullPath = filepath.Join(h.BaseDir, output)
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("declared output does not exist: %s", output)
			}
			return nil, fmt.Errorf("stat output %q: %w", output, err)
		}

		if info.IsDir() {
			files, err := collectFiles(fullPath)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", output, err)
			}
			allPaths = append(allPaths, files...)
		} else {
			allPaths = append(allPaths, fullPath)
		}
	}

	sort.Strings(allPaths)
	allPaths = dedupeSorted(allPaths)

	artifacts := make([]Artifact, 0, len(allPaths))
	for _, path := range allPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", path, err)
		}
		artifacts = append(artifacts, Artifact{
			Path:    filepath.ToSlash(path),
			Content: content,
		})
	}

	return &ArtifactSet{Artifacts: artifacts}, nil
}

func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func dedupeSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			out = append(out, sorted[i])
		}
	}
	return out
}
