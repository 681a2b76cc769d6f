// Package job implements deterministic, cacheable execution of single
// toolchain invocations: hash the inputs, run the tool, harvest the declared
// artifacts, and replay bit-for-bit on a cache hit.
package job

// Job is a declarative description of one toolchain invocation.
//
// Identity is content-based: the job hash covers the resolved input file
// contents, the argument vector, the declared environment, the declared
// outputs, and the working directory. Nothing implicit (timestamps, host
// state) contributes.
type Job struct {
	// Name identifies the job for reporting and pipeline wiring.
	// It does not contribute to the job hash.
	Name string `json:"name" yaml:"name"`

	// Inputs lists file paths or glob patterns whose contents define
	// the job's identity. Expansion is strictly sorted.
	Inputs []string `json:"inputs" yaml:"inputs"`

	// Argv is the full argument vector, program first. No shell is involved.
	Argv []string `json:"argv" yaml:"argv"`

	// Env is the allowlist of environment variables visible to the tool.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Outputs lists the artifact paths the invocation is expected to
	// produce. Only declared outputs are harvested and cached.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Input is a resolved file whose content contributes to job identity.
type Input struct {
	// Path is the expanded, slash-normalized file path.
	Path string

	// Content is the raw file content. Metadata is deliberately excluded.
	Content []byte
}

// InputSet is the complete resolved input list, sorted by Path.
type InputSet struct {
	Inputs []Input
}
