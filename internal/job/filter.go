package job

import "regexp"

// DiagnosticFilter scrubs nondeterministic fragments from captured tool
// output before it is cached, so that identical invocations produce
// identical cache entries even when the tool prints timing or pids.
//
// Artifacts are never filtered; only stdout/stderr diagnostics are.
type DiagnosticFilter struct {
	patterns []*diagPattern
}

type diagPattern struct {
	regex       *regexp.Regexp
	replacement []byte
}

// NewDiagnosticFilter returns a filter covering the patterns GCC-family
// tools are known to emit.
func NewDiagnosticFilter() *DiagnosticFilter {
	return &DiagnosticFilter{
		patterns: []*diagPattern{
			// ISO 8601 timestamps: 2024-12-13T10:30:45Z
			{
				regex:       regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`),
				replacement: []byte("<TIMESTAMP>"),
			},
			// -ftime-report style durations: 0.12s, 34ms
			{
				regex:       regexp.MustCompile(`\b\d+(\.\d+)?\s*(ms|s|seconds?)\b`),
				replacement: []byte("<DURATION>"),
			},
			// Process IDs in ICE dumps: pid 12345
			{
				regex:       regexp.MustCompile(`\b[Pp][Ii][Dd][:\s]*\d+\b`),
				replacement: []byte("pid <PID>"),
			},
			// Addresses in linker map noise: 0x7fff5fbff8c0
			{
				regex:       regexp.MustCompile(`0x[0-9a-fA-F]{8,16}`),
				replacement: []byte("<ADDR>"),
			},
		},
	}
}

// Apply returns content with all known nondeterministic patterns replaced.
func (f *DiagnosticFilter) Apply(content []byte) []byte {
	out := content
	for _, p := range f.patterns {
		out = p.regex.ReplaceAll(out, p.replacement)
	}
	return out
}
