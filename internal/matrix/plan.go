package matrix

import (
	"fmt"
	"path"

	"github.com/ajaymas/LLM4Obfus/internal/job"
	"github.com/ajaymas/LLM4Obfus/internal/pipeline"
	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// Artifact is one planned output binary.
type Artifact struct {
	// JobName is the pipeline job that produces the file.
	JobName string

	// Path is the workspace-relative output path.
	Path string

	// Variant is the human-readable variant label, e.g. "O2-lto" or
	// "O2 (stripped-all)".
	Variant string

	// Baseline marks the binary the size report measures others against.
	Baseline bool
}

// Plan is the fully expanded matrix: a validated job graph plus the
// artifacts it will produce.
type Plan struct {
	Graph     *pipeline.Graph
	Artifacts []Artifact
}

// Plan expands the spec against a resolved toolchain.
//
// Expansion is deterministic: the same spec and toolchain always produce
// the same job names, argv, and graph hash.
func (s *Spec) Plan(tc *toolchain.Toolchain) (*Plan, error) {
	if tc == nil {
		return nil, fmt.Errorf("matrix plan: nil toolchain")
	}

	b := &planBuilder{spec: s, tc: tc}

	for _, lvl := range s.canonicalLevels() {
		if err := b.addCompileFamily(lvl); err != nil {
			return nil, err
		}
	}
	if s.PGO != nil {
		if err := b.addPGOChain(); err != nil {
			return nil, err
		}
	}

	g, err := pipeline.NewGraph(b.jobs, b.edges)
	if err != nil {
		return nil, fmt.Errorf("matrix plan: %w", err)
	}
	return &Plan{Graph: g, Artifacts: b.artifacts}, nil
}

type planBuilder struct {
	spec *Spec
	tc   *toolchain.Toolchain

	jobs      []job.Job
	edges     []pipeline.Edge
	artifacts []Artifact

	haveBaseline bool
}

// addCompileFamily adds the plain compile for lvl, its flag variants, and
// the strip passes hanging off each produced binary.
func (b *planBuilder) addCompileFamily(lvl toolchain.OptLevel) error {
	reqs := []struct {
		suffix string
		req    toolchain.CompileRequest
	}{
		{"", toolchain.CompileRequest{Level: lvl}},
	}
	if b.spec.LTO {
		reqs = append(reqs, struct {
			suffix string
			req    toolchain.CompileRequest
		}{"-lto", toolchain.CompileRequest{Level: lvl, LTO: true}})
	}
	if b.spec.DebugInfo {
		reqs = append(reqs, struct {
			suffix string
			req    toolchain.CompileRequest
		}{"-g", toolchain.CompileRequest{Level: lvl, DebugInfo: true}})
	}
	if b.spec.StripAtLink {
		reqs = append(reqs, struct {
			suffix string
			req    toolchain.CompileRequest
		}{"-s", toolchain.CompileRequest{Level: lvl, StripAtLink: true}})
	}

	for _, rc := range reqs {
		variant := string(lvl) + rc.suffix
		output := b.artifactPath(variant)

		req := rc.req
		req.Source = b.spec.Source
		req.Output = output
		req.ExtraFlags = b.spec.ExtraFlags

		argv, err := req.Argv(b.tc.Compiler)
		if err != nil {
			return err
		}

		compileName := "compile-" + variant
		b.jobs = append(b.jobs, job.Job{
			Name:    compileName,
			Inputs:  []string{b.spec.Source},
			Argv:    argv,
			Outputs: []string{output},
		})
		b.addArtifact(Artifact{JobName: compileName, Path: output, Variant: variant})

		// Post-link strip passes apply to every variant except ones already
		// stripped at link time.
		if rc.suffix == "-s" {
			continue
		}
		for _, sv := range b.spec.stripVariants() {
			b.addStrip(sv, variant, compileName, output)
		}
		if len(b.spec.RemoveSections) > 0 {
			b.addRemoveSections(variant, compileName, output)
		}
	}
	return nil
}

func (b *planBuilder) addStrip(kind, variant, compileName, input string) {
	output := input + ".stripped-" + kind

	var argv []string
	switch kind {
	case "debug":
		argv = toolchain.StripDebugArgv(b.tc.Strip, input, output)
	case "all":
		argv = toolchain.StripAllArgv(b.tc.Strip, input, output)
	}

	name := "strip-" + kind + "-" + variant
	b.jobs = append(b.jobs, job.Job{
		Name:    name,
		Inputs:  []string{input},
		Argv:    argv,
		Outputs: []string{output},
	})
	b.edges = append(b.edges, pipeline.Edge{From: compileName, To: name})
	b.addArtifact(Artifact{
		JobName: name,
		Path:    output,
		Variant: fmt.Sprintf("%s (stripped-%s)", variant, kind),
	})
}

func (b *planBuilder) addRemoveSections(variant, compileName, input string) {
	output := input + ".slim"
	name := "slim-" + variant

	b.jobs = append(b.jobs, job.Job{
		Name:    name,
		Inputs:  []string{input},
		Argv:    toolchain.RemoveSectionsArgv(b.tc.Objcopy, b.spec.RemoveSections, input, output),
		Outputs: []string{output},
	})
	b.edges = append(b.edges, pipeline.Edge{From: compileName, To: name})
	b.addArtifact(Artifact{
		JobName: name,
		Path:    output,
		Variant: variant + " (slim)",
	})
}

// addPGOChain adds instrument, train, and optimize stages.
//
// The training job's profile output filenames are compiler-internal, so the
// optimize compile declares the profile directory contents as a glob input
// rather than naming files.
func (b *planBuilder) addPGOChain() error {
	lvl := mustLevel(b.spec.PGO.Level)
	profileDir := b.spec.PGO.ProfileDir

	instrumented := b.artifactPath(string(lvl) + "-pgo-instrumented")
	instrReq := toolchain.CompileRequest{
		Source:          b.spec.Source,
		Output:          instrumented,
		Level:           lvl,
		ProfileGenerate: profileDir,
		ExtraFlags:      b.spec.ExtraFlags,
	}
	instrArgv, err := instrReq.Argv(b.tc.Compiler)
	if err != nil {
		return err
	}
	b.jobs = append(b.jobs, job.Job{
		Name:    "pgo-instrument",
		Inputs:  []string{b.spec.Source},
		Argv:    instrArgv,
		Outputs: []string{instrumented},
	})

	// The profile directory is a declared output so a cache replay restores
	// the gcda files and the optimize compile sees the same profile inputs.
	trainArgv := append([]string{"./" + instrumented}, b.spec.PGO.TrainArgs...)
	b.jobs = append(b.jobs, job.Job{
		Name:    "pgo-train",
		Inputs:  []string{instrumented},
		Argv:    trainArgv,
		Outputs: []string{profileDir},
	})
	b.edges = append(b.edges, pipeline.Edge{From: "pgo-instrument", To: "pgo-train"})

	variant := string(lvl) + "-pgo"
	optimized := b.artifactPath(variant)
	optReq := toolchain.CompileRequest{
		Source:     b.spec.Source,
		Output:     optimized,
		Level:      lvl,
		ProfileUse: profileDir,
		ExtraFlags: b.spec.ExtraFlags,
	}
	optArgv, err := optReq.Argv(b.tc.Compiler)
	if err != nil {
		return err
	}
	b.jobs = append(b.jobs, job.Job{
		Name:    "pgo-optimize",
		Inputs:  []string{b.spec.Source, path.Join(profileDir, "*.gcda")},
		Argv:    optArgv,
		Outputs: []string{optimized},
	})
	b.edges = append(b.edges, pipeline.Edge{From: "pgo-train", To: "pgo-optimize"})
	b.addArtifact(Artifact{JobName: "pgo-optimize", Path: optimized, Variant: variant})
	return nil
}

func (b *planBuilder) artifactPath(variant string) string {
	return path.Join(b.spec.OutputDir, b.spec.baseName()+"-"+variant)
}

// addArtifact appends a and marks the first unoptimized binary (or, failing
// that, the first artifact overall) as the size baseline.
func (b *planBuilder) addArtifact(a Artifact) {
	if !b.haveBaseline {
		if a.Variant == string(toolchain.OptNone) || len(b.artifacts) == 0 {
			a.Baseline = true
			b.haveBaseline = a.Variant == string(toolchain.OptNone)
		}
	}
	if a.Baseline {
		for i := range b.artifacts {
			b.artifacts[i].Baseline = false
		}
	}
	b.artifacts = append(b.artifacts, a)
}
