package job

import (
	"strings"
	"testing"
)

func TestDiagnosticFilterScrubsNondeterminism(t *testing.T) {
	f := NewDiagnosticFilter()

	in := strings.Join([]string{
		"build started 2024-12-13T10:30:45Z",
		"phase parsing took 0.12s",
		"internal compiler error, pid 12345",
		"relocation at 0x7fff5fbff8c0",
	}, "\n")

	out := string(f.Apply([]byte(in)))

	for _, leaked := range []string{"2024-12-13", "0.12s", "12345", "0x7fff"} {
		if strings.Contains(out, leaked) {
			t.Errorf("output still contains %q: %s", leaked, out)
		}
	}
	for _, marker := range []string{"<TIMESTAMP>", "<DURATION>", "pid <PID>", "<ADDR>"} {
		if !strings.Contains(out, marker) {
			t.Errorf("expected marker %q in %s", marker, out)
		}
	}
}

func TestDiagnosticFilterLeavesNormalOutputAlone(t *testing.T) {
	f := NewDiagnosticFilter()
	in := "main.c: In function 'main':\nmain.c:3:5: warning: unused variable 'x'"
	if got := string(f.Apply([]byte(in))); got != in {
		t.Fatalf("filter mangled ordinary diagnostics: %q", got)
	}
}
