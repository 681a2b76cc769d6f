// Package matrix loads a declarative build-matrix specification and expands
// it into an executable pipeline graph: one compile job per optimization
// variant, plus stripping and profile-guided stages layered on top.
package matrix

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// Spec is the on-disk matrix description.
type Spec struct {
	// Source is the single translation unit every variant compiles.
	Source string `yaml:"source"`

	// OutputDir receives every produced binary. Relative to the workspace.
	OutputDir string `yaml:"output_dir"`

	// Levels lists the optimization levels to build, e.g. ["O0", "O2", "Os"].
	Levels []string `yaml:"levels"`

	// LTO adds a -flto variant for each level when true.
	LTO bool `yaml:"lto"`

	// DebugInfo adds a -g variant for each level when true.
	DebugInfo bool `yaml:"debug_info"`

	// StripAtLink adds a -s variant for each level when true.
	StripAtLink bool `yaml:"strip_at_link"`

	// StripVariants lists post-link strip passes applied to every compiled
	// binary: "debug" (--strip-debug) and/or "all" (--strip-all).
	StripVariants []string `yaml:"strip_variants"`

	// RemoveSections lists sections dropped from every compiled binary with
	// objcopy --remove-section, producing a ".slim" variant.
	RemoveSections []string `yaml:"remove_sections"`

	// PGO, when present, adds a three-stage profile-guided build.
	PGO *PGOSpec `yaml:"pgo"`

	// ExtraFlags are appended verbatim to every compile invocation.
	ExtraFlags []string `yaml:"extra_flags"`
}

// PGOSpec describes the instrument / train / optimize chain.
type PGOSpec struct {
	// Level is the optimization level for both PGO compiles.
	Level string `yaml:"level"`

	// TrainArgs are passed to the instrumented binary during the training run.
	TrainArgs []string `yaml:"train_args"`

	// ProfileDir receives the raw profile data. Defaults to
	// <output_dir>/pgo-profile.
	ProfileDir string `yaml:"profile_dir"`
}

const defaultOutputDir = "build"

// Load reads and validates a matrix spec from path.
//
// Decoding is strict: unknown fields are rejected so that a typo in the
// matrix file fails loudly instead of silently dropping a variant.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading matrix spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes a matrix spec from raw YAML.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing matrix spec: %w", err)
	}

	spec.applyDefaults()
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) applyDefaults() {
	if s.OutputDir == "" {
		s.OutputDir = defaultOutputDir
	}
	if len(s.Levels) == 0 {
		s.Levels = []string{"O0", "O1", "O2", "O3"}
	}
	if s.PGO != nil && s.PGO.ProfileDir == "" {
		s.PGO.ProfileDir = s.OutputDir + "/pgo-profile"
	}
}

func (s *Spec) validate() error {
	if s.Source == "" {
		return fmt.Errorf("matrix spec: source is required")
	}

	seen := make(map[toolchain.OptLevel]bool, len(s.Levels))
	for _, raw := range s.Levels {
		lvl, err := toolchain.ParseOptLevel(raw)
		if err != nil {
			return fmt.Errorf("matrix spec: %w", err)
		}
		if seen[lvl] {
			return fmt.Errorf("matrix spec: duplicate level %q", raw)
		}
		seen[lvl] = true
	}

	for _, v := range s.StripVariants {
		switch v {
		case "debug", "all":
		default:
			return fmt.Errorf("matrix spec: unknown strip variant %q (expected \"debug\" or \"all\")", v)
		}
	}

	for _, sec := range s.RemoveSections {
		if !strings.HasPrefix(sec, ".") {
			return fmt.Errorf("matrix spec: section name %q must start with a dot", sec)
		}
	}

	if s.PGO != nil {
		if _, err := toolchain.ParseOptLevel(s.PGO.Level); err != nil {
			return fmt.Errorf("matrix spec: pgo: %w", err)
		}
	}
	return nil
}

// canonicalLevels returns the parsed levels in spec order.
func (s *Spec) canonicalLevels() []toolchain.OptLevel {
	out := make([]toolchain.OptLevel, 0, len(s.Levels))
	for _, raw := range s.Levels {
		lvl, _ := toolchain.ParseOptLevel(raw)
		out = append(out, lvl)
	}
	return out
}

// stripVariants returns the requested strip passes, deduplicated, in the
// fixed order debug then all.
func (s *Spec) stripVariants() []string {
	want := make(map[string]bool, len(s.StripVariants))
	for _, v := range s.StripVariants {
		want[v] = true
	}
	out := make([]string, 0, 2)
	for _, v := range []string{"debug", "all"} {
		if want[v] {
			out = append(out, v)
		}
	}
	return out
}

// baseName derives the artifact stem from the source path: the final path
// element with its extension removed.
func (s *Spec) baseName() string {
	base := s.Source
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// VariantNames lists every compile variant name the spec expands to, sorted.
func (s *Spec) VariantNames() []string {
	names := make([]string, 0)
	for _, lvl := range s.canonicalLevels() {
		names = append(names, string(lvl))
		if s.LTO {
			names = append(names, string(lvl)+"-lto")
		}
		if s.DebugInfo {
			names = append(names, string(lvl)+"-g")
		}
		if s.StripAtLink {
			names = append(names, string(lvl)+"-s")
		}
	}
	if s.PGO != nil {
		names = append(names, string(mustLevel(s.PGO.Level))+"-pgo")
	}
	sort.Strings(names)
	return names
}

func mustLevel(raw string) toolchain.OptLevel {
	lvl, err := toolchain.ParseOptLevel(raw)
	if err != nil {
		panic(err)
	}
	return lvl
}
