package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InputResolver expands declared input patterns into a deterministic InputSet.
//
// Expansion is strictly sorted and content-based so that filesystem ordering
// never leaks into job identity.
type InputResolver struct {
	// BaseDir anchors relative patterns.
	BaseDir string
}

// NewInputResolver returns a resolver anchored at baseDir.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands all patterns, sorts and deduplicates the matches, and reads
// each file's content.
func (r *InputResolver) Resolve(patterns []string) (*InputSet, error) {
	if len(patterns) == 0 {
		return &InputSet{Inputs: []Input{}}, nil
	}

	pathSet := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded, err := r.expand(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
		}
		for _, p := range expanded {
			pathSet[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	inputs := make([]Input, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(filepath.FromSlash(path))
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", path, err)
		}
		inputs = append(inputs, Input{Path: path, Content: content})
	}

	return &InputSet{Inputs: inputs}, nil
}

func (r *InputResolver) expand(pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(r.BaseDir, pattern)
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	// A literal path must exist; only glob patterns may match nothing.
	if len(matches) == 0 && !hasGlobChar(pattern) {
		if _, err := os.Stat(full); err != nil {
			return nil, fmt.Errorf("input does not exist: %w", err)
		}
		matches = []string{full}
	}

	normalized := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		normalized = append(normalized, filepath.ToSlash(m))
	}

	return normalized, nil
}

func hasGlobChar(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', ']':
			return true
		}
	}
	return false
}
