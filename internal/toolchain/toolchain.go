// Package toolchain locates and invokes the external binary toolchain
// (compiler, strip, objcopy) that the pipeline drives.
package toolchain

import (
	"fmt"
	"os/exec"
)

// Toolchain holds resolved absolute paths for every external tool the
// pipeline may invoke. All fields are populated by Discover.
type Toolchain struct {
	Compiler string
	Strip    string
	Objcopy  string
}

// Overrides allows configuration to pin specific tool paths instead of
// consulting PATH. Empty fields fall back to discovery.
type Overrides struct {
	Compiler string
	Strip    string
	Objcopy  string
}

// compilerCandidates are tried in order when no override is given.
var compilerCandidates = []string{"gcc", "cc", "clang"}

// Discover resolves the full toolchain, honoring overrides first.
//
// A missing tool is a hard error: the pipeline refuses to start a run that
// would fail midway on the first invocation.
func Discover(ov Overrides) (*Toolchain, error) {
	tc := &Toolchain{}

	var err error
	tc.Compiler, err = resolveCompiler(ov.Compiler)
	if err != nil {
		return nil, err
	}

	tc.Strip, err = resolveTool("strip", ov.Strip)
	if err != nil {
		return nil, err
	}

	tc.Objcopy, err = resolveTool("objcopy", ov.Objcopy)
	if err != nil {
		return nil, err
	}

	return tc, nil
}

// DiscoverStrip resolves only the strip tool, for operations that need
// nothing else from the toolchain.
func DiscoverStrip(override string) (string, error) {
	return resolveTool("strip", override)
}

func resolveCompiler(override string) (string, error) {
	if override != "" {
		return resolveTool("compiler", override)
	}
	for _, name := range compilerCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", &MissingToolError{Tool: "compiler", Tried: compilerCandidates}
}

func resolveTool(name, override string) (string, error) {
	candidate := name
	if override != "" {
		candidate = override
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", &MissingToolError{Tool: name, Tried: []string{candidate}}
	}
	return path, nil
}

// MissingToolError reports an unresolvable external tool.
type MissingToolError struct {
	Tool  string
	Tried []string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("toolchain: %s not found (tried %v)", e.Tool, e.Tried)
}
