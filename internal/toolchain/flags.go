package toolchain

import (
	"fmt"
	"sort"
)

// OptLevel is a compiler optimization level flag.
type OptLevel string

const (
	OptNone       OptLevel = "O0"
	OptBasic      OptLevel = "O1"
	OptStandard   OptLevel = "O2"
	OptAggressive OptLevel = "O3"
	OptSize       OptLevel = "Os"
	OptFast       OptLevel = "Ofast"
	OptDebug      OptLevel = "Og"
)

// knownLevels maps accepted spellings (with or without the leading dash)
// to the canonical level.
var knownLevels = map[string]OptLevel{
	"O0": OptNone, "O1": OptBasic, "O2": OptStandard, "O3": OptAggressive,
	"Os": OptSize, "Ofast": OptFast, "Og": OptDebug,
}

// ParseOptLevel canonicalizes an optimization level string.
func ParseOptLevel(s string) (OptLevel, error) {
	raw := s
	if len(raw) > 0 && raw[0] == '-' {
		raw = raw[1:]
	}
	if lvl, ok := knownLevels[raw]; ok {
		return lvl, nil
	}
	return "", fmt.Errorf("unknown optimization level %q (expected one of %s)", s, knownLevelNames())
}

// Flag returns the command-line spelling, e.g. "-O2".
func (l OptLevel) Flag() string { return "-" + string(l) }

func knownLevelNames() string {
	names := make([]string, 0, len(knownLevels))
	for k := range knownLevels {
		names = append(names, "-"+k)
	}
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// CompileRequest describes a single compiler invocation of the matrix.
//
// ProfileGenerate and ProfileUse are mutually exclusive; both carry the
// profile data directory for the respective PGO phase.
type CompileRequest struct {
	Source string
	Output string
	Level  OptLevel

	LTO         bool
	DebugInfo   bool
	StripAtLink bool

	ProfileGenerate string
	ProfileUse      string

	ExtraFlags []string
}

// Argv builds the full compiler argument vector for this request.
//
// Flag order is fixed so that identical requests always produce identical
// argv (the job hash depends on it).
func (r CompileRequest) Argv(compiler string) ([]string, error) {
	if r.Source == "" {
		return nil, fmt.Errorf("compile request: source is required")
	}
	if r.Output == "" {
		return nil, fmt.Errorf("compile request: output is required")
	}
	if _, err := ParseOptLevel(string(r.Level)); err != nil {
		return nil, fmt.Errorf("compile request: %w", err)
	}
	if r.ProfileGenerate != "" && r.ProfileUse != "" {
		return nil, fmt.Errorf("compile request: profile-generate and profile-use are mutually exclusive")
	}

	argv := []string{compiler, r.Level.Flag()}
	if r.LTO {
		argv = append(argv, "-flto")
	}
	if r.DebugInfo {
		argv = append(argv, "-g")
	}
	if r.StripAtLink {
		argv = append(argv, "-s")
	}
	if r.ProfileGenerate != "" {
		argv = append(argv, "-fprofile-generate="+r.ProfileGenerate)
	}
	if r.ProfileUse != "" {
		argv = append(argv, "-fprofile-use="+r.ProfileUse)
	}
	argv = append(argv, r.ExtraFlags...)
	argv = append(argv, "-o", r.Output, r.Source)
	return argv, nil
}

// StripDebugArgv builds a strip invocation that removes debug sections only,
// writing to a new file and leaving the input untouched.
func StripDebugArgv(strip, input, output string) []string {
	return []string{strip, "--strip-debug", "-o", output, input}
}

// StripAllArgv builds a strip invocation that removes the full symbol table.
func StripAllArgv(strip, input, output string) []string {
	return []string{strip, "--strip-all", "-o", output, input}
}

// RemoveSectionArgv builds an objcopy invocation that drops a single section.
func RemoveSectionArgv(objcopy, section, input, output string) []string {
	return []string{objcopy, "--remove-section=" + section, input, output}
}

// RemoveSectionsArgv drops several sections in one objcopy invocation.
func RemoveSectionsArgv(objcopy string, sections []string, input, output string) []string {
	argv := make([]string, 0, len(sections)+3)
	argv = append(argv, objcopy)
	for _, s := range sections {
		argv = append(argv, "--remove-section="+s)
	}
	return append(argv, input, output)
}
