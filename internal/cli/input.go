// Package cli parses invocations and drives the pipeline, mapping every
// outcome to a semantic exit code.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitRunFailure        = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Command selects the operation to perform.
type Command string

const (
	CommandMatrix  Command = "matrix"
	CommandStrip   Command = "strip"
	CommandBatch   Command = "batch"
	CommandInspect Command = "inspect"
	CommandReport  Command = "report"
)

// Invocation is the canonicalized description of one CLI run.
type Invocation struct {
	Command Command

	// ConfigFile is the optional config file path, applied to every command.
	ConfigFile string

	// Matrix command.
	MatrixSpec   string
	WorkDir      string
	ManifestPath string
	Serial       bool
	Jobs         int
	NoCache      bool

	// Strip command.
	StripPaths  []string
	StripOutDir string

	// Batch command.
	BatchSrcDir string
	BatchOutDir string

	// Inspect command.
	InspectPaths []string

	// Report command.
	ReportManifest string
}

// InvocationError carries the exit code for a rejected invocation.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

const usage = `usage: obfus <command> [flags]

commands:
  matrix   build the optimization matrix described by a spec file
  strip    strip the named binaries into two variants each
  batch    strip every file in a directory into two variants each
  inspect  summarize the ELF structure of one or more binaries
  report   render the size table from a saved manifest
`

// Usage returns the top-level usage text.
func Usage() string { return usage }

// ParseInvocation parses args (excluding argv[0]) into an Invocation.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidf("missing command\n\n%s", usage)
	}

	cmd := Command(strings.ToLower(args[0]))
	rest := args[1:]

	switch cmd {
	case CommandMatrix:
		return parseMatrix(rest)
	case CommandStrip:
		return parseStrip(rest)
	case CommandBatch:
		return parseBatch(rest)
	case CommandInspect:
		return parseInspect(rest)
	case CommandReport:
		return parseReport(rest)
	default:
		return Invocation{}, invalidf("unknown command %q\n\n%s", args[0], usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parse errors are returned, not printed
	return fs
}

func parseMatrix(args []string) (Invocation, error) {
	fs := newFlagSet("obfus matrix")

	inv := Invocation{Command: CommandMatrix}
	fs.StringVar(&inv.MatrixSpec, "spec", "matrix.yaml", "matrix spec file")
	fs.StringVar(&inv.ConfigFile, "config", "", "config file (optional)")
	fs.StringVar(&inv.WorkDir, "workdir", ".", "working directory for compilation")
	fs.StringVar(&inv.ManifestPath, "manifest", "", "manifest output path (default <output_dir>/manifest.json)")
	fs.BoolVar(&inv.Serial, "serial", false, "run jobs one at a time")
	fs.IntVar(&inv.Jobs, "jobs", 0, "max concurrent jobs (default from config)")
	fs.BoolVar(&inv.NoCache, "no-cache", false, "bypass the job cache")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidf("unexpected arguments: %q", strings.Join(fs.Args(), " "))
	}
	if inv.MatrixSpec == "" {
		return Invocation{}, invalidf("-spec is required")
	}
	if inv.Jobs < 0 {
		return Invocation{}, invalidf("-jobs must be >= 0")
	}
	return inv, nil
}

func parseStrip(args []string) (Invocation, error) {
	fs := newFlagSet("obfus strip")

	inv := Invocation{Command: CommandStrip}
	fs.StringVar(&inv.StripOutDir, "out", "", "output directory (default: alongside each input)")
	fs.StringVar(&inv.ConfigFile, "config", "", "config file (optional)")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() == 0 {
		return Invocation{}, invalidf("strip requires at least one file argument")
	}
	inv.StripPaths = fs.Args()
	return inv, nil
}

func parseBatch(args []string) (Invocation, error) {
	fs := newFlagSet("obfus batch")

	inv := Invocation{Command: CommandBatch}
	fs.StringVar(&inv.BatchSrcDir, "src", "./binaries", "directory of files to strip")
	fs.StringVar(&inv.BatchOutDir, "out", "./stripped_binaries", "output directory (created if absent)")
	fs.StringVar(&inv.ConfigFile, "config", "", "config file (optional)")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidf("unexpected arguments: %q", strings.Join(fs.Args(), " "))
	}
	if inv.BatchSrcDir == "" {
		return Invocation{}, invalidf("-src is required")
	}
	if inv.BatchOutDir == "" {
		return Invocation{}, invalidf("-out is required")
	}
	return inv, nil
}

func parseInspect(args []string) (Invocation, error) {
	fs := newFlagSet("obfus inspect")

	inv := Invocation{Command: CommandInspect}
	fs.StringVar(&inv.ConfigFile, "config", "", "config file (optional)")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() == 0 {
		return Invocation{}, invalidf("inspect requires at least one file argument")
	}
	inv.InspectPaths = fs.Args()
	return inv, nil
}

func parseReport(args []string) (Invocation, error) {
	fs := newFlagSet("obfus report")

	inv := Invocation{Command: CommandReport}
	fs.StringVar(&inv.ReportManifest, "manifest", "", "manifest file to render")
	fs.StringVar(&inv.ConfigFile, "config", "", "config file (optional)")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidf("unexpected arguments: %q", strings.Join(fs.Args(), " "))
	}
	if inv.ReportManifest == "" {
		return Invocation{}, invalidf("-manifest is required")
	}
	return inv, nil
}

// ExitCodeFor maps an error to its semantic exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	return ExitInternalError
}
