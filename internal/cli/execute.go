package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ajaymas/LLM4Obfus/internal/config"
	"github.com/ajaymas/LLM4Obfus/internal/elfinspect"
	"github.com/ajaymas/LLM4Obfus/internal/job"
	"github.com/ajaymas/LLM4Obfus/internal/matrix"
	"github.com/ajaymas/LLM4Obfus/internal/pipeline"
	"github.com/ajaymas/LLM4Obfus/internal/report"
	"github.com/ajaymas/LLM4Obfus/internal/runlog"
	"github.com/ajaymas/LLM4Obfus/internal/strip"
	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// Result is the outcome of a CLI execution.
type Result struct {
	ExitCode int

	// RunID identifies the persisted run record, when one was written.
	RunID string
}

// Execute runs a parsed invocation, writing human output to stdout.
func Execute(ctx context.Context, inv Invocation, stdout io.Writer) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
			res = Result{ExitCode: ExitInternalError}
		}
	}()

	cfg, err := config.Load(inv.ConfigFile)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, &InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}
	cfg.SetupLogger()

	switch inv.Command {
	case CommandMatrix:
		return executeMatrix(ctx, inv, cfg, stdout)
	case CommandStrip:
		return executeStrip(ctx, inv, cfg, stdout)
	case CommandBatch:
		return executeBatch(ctx, inv, cfg, stdout)
	case CommandInspect:
		return executeInspect(inv, stdout)
	case CommandReport:
		return executeReport(inv, stdout)
	default:
		return Result{ExitCode: ExitInvalidInvocation}, invalidf("unknown command %q", inv.Command)
	}
}

func executeMatrix(ctx context.Context, inv Invocation, cfg *config.Config, stdout io.Writer) (Result, error) {
	store, err := runlog.NewStore(cfg.Run.StateDir)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}

	spec, err := matrix.Load(inv.MatrixSpec)
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: (&runlog.ConfigError{Msg: "loading matrix spec", Cause: err}).Error()}
	}

	tc, err := toolchain.Discover(toolchain.Overrides{
		Compiler: cfg.Tools.Compiler,
		Strip:    cfg.Tools.Strip,
		Objcopy:  cfg.Tools.Objcopy,
	})
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}

	plan, err := spec.Plan(tc)
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}

	run := runlog.NewRun(string(plan.Graph.Hash()), inv.MatrixSpec)
	if err := store.SaveRun(run); err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}

	result, err := runPlan(ctx, inv, cfg, plan)
	if err != nil {
		recordFailure(store, &run, err)
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}

	run.ExecutionOrder = result.ExecutionOrder
	run.JobStates = make(map[string]string, len(result.FinalState))
	for name, st := range result.FinalState {
		run.JobStates[name] = string(st)
	}

	if result.Failed() {
		execErr := firstExecutionError(result)
		recordFailure(store, &run, execErr)
		fmt.Fprintln(stdout, execErr.Error())
		return Result{ExitCode: ExitRunFailure, RunID: run.RunID}, nil
	}

	// Artifact paths are workdir-relative; read them from there but keep
	// the manifest position-independent.
	workDir, err := filepath.Abs(inv.WorkDir)
	if err != nil {
		recordFailure(store, &run, err)
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}
	entries, err := report.Collect(workDir, plan.Artifacts)
	if err != nil {
		recordFailure(store, &run, err)
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}

	manifestPath := inv.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(workDir, spec.OutputDir, "manifest.json")
	}
	manifest := report.NewManifest(string(plan.Graph.Hash()), spec.Source, entries)
	if err := manifest.Write(manifestPath); err != nil {
		recordFailure(store, &run, err)
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}

	if err := report.SizeTable(stdout, entries); err != nil {
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}
	fmt.Fprintf(stdout, "manifest: %s\n", manifestPath)

	run.Finish(runlog.StatusCompleted)
	if err := store.SaveRun(run); err != nil {
		return Result{ExitCode: ExitInternalError, RunID: run.RunID}, err
	}
	return Result{ExitCode: ExitSuccess, RunID: run.RunID}, nil
}

func runPlan(ctx context.Context, inv Invocation, cfg *config.Config, plan *matrix.Plan) (*pipeline.Result, error) {
	var cache job.Cache
	if cfg.Cache.Enabled && !inv.NoCache {
		cache = job.NewFileCache(cfg.Cache.Dir)
	} else {
		cache = job.NewMemoryCache()
	}

	workDir, err := filepath.Abs(inv.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}

	jobRunner := job.NewRunner(workDir, cache)
	jobRunner.Filter = job.NewDiagnosticFilter()
	runner := pipeline.NewCacheRunner(jobRunner)
	executor, err := pipeline.NewExecutor(plan.Graph, runner)
	if err != nil {
		return nil, err
	}

	jobs := inv.Jobs
	if jobs == 0 {
		jobs = cfg.Run.Concurrency
	}
	if inv.Serial || jobs == 1 {
		return executor.RunSerial(ctx)
	}
	return executor.RunParallel(ctx, jobs)
}

// firstExecutionError extracts the first failed job in start order for
// reporting.
func firstExecutionError(res *pipeline.Result) error {
	for _, name := range res.ExecutionOrder {
		if res.FinalState[name] != pipeline.StepFailed {
			continue
		}
		return &runlog.ExecutionError{
			JobName:  name,
			ExitCode: res.ExitCode[name],
			Stderr:   string(res.Stderr[name]),
		}
	}
	return &runlog.ExecutionError{JobName: "unknown", ExitCode: -1}
}

func recordFailure(store *runlog.Store, run *runlog.Run, cause error) {
	run.Finish(runlog.StatusFailed)
	if err := store.SaveRun(*run); err != nil {
		log.WithError(err).Warn("saving failed run record")
	}
	if err := store.SaveFailure(run.RunID, runlog.Classify(cause)); err != nil {
		log.WithError(err).Warn("saving failure record")
	}
}

func executeStrip(ctx context.Context, inv Invocation, cfg *config.Config, stdout io.Writer) (Result, error) {
	stripTool, err := toolchain.DiscoverStrip(cfg.Tools.Strip)
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}

	batcher := strip.NewBatcher(stripTool)
	failed := 0
	for _, p := range inv.StripPaths {
		if _, err := os.Stat(p); err != nil {
			return Result{ExitCode: ExitConfigError},
				&InvocationError{ExitCode: ExitConfigError, Message: (&runlog.WorkspaceError{Msg: "input file", Cause: err}).Error()}
		}

		fr, err := batcher.File(ctx, p, inv.StripOutDir)
		if err != nil {
			return Result{ExitCode: ExitInternalError}, err
		}
		if fr.Err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: %v\n", p, fr.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s: %s, %s\n", p, fr.DebugOutput, fr.AllOutput)
	}
	if failed > 0 {
		return Result{ExitCode: ExitRunFailure}, nil
	}
	return Result{ExitCode: ExitSuccess}, nil
}

func executeBatch(ctx context.Context, inv Invocation, cfg *config.Config, stdout io.Writer) (Result, error) {
	stripTool, err := toolchain.DiscoverStrip(cfg.Tools.Strip)
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}

	if _, err := os.Stat(inv.BatchSrcDir); err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: (&runlog.WorkspaceError{Msg: "source directory", Cause: err}).Error()}
	}

	batcher := strip.NewBatcher(stripTool)
	res, err := batcher.Run(ctx, inv.BatchSrcDir, inv.BatchOutDir)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}

	fmt.Fprintf(stdout, "processed %d files, %d failed\n", len(res.Processed), res.Failed)
	if res.Failed > 0 {
		return Result{ExitCode: ExitRunFailure}, nil
	}
	return Result{ExitCode: ExitSuccess}, nil
}

func executeInspect(inv Invocation, stdout io.Writer) (Result, error) {
	failed := 0
	for _, p := range inv.InspectPaths {
		info, err := elfinspect.Inspect(p)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", p, info.Describe())
	}
	if failed > 0 {
		return Result{ExitCode: ExitRunFailure}, nil
	}
	return Result{ExitCode: ExitSuccess}, nil
}

func executeReport(inv Invocation, stdout io.Writer) (Result, error) {
	m, err := report.ReadManifest(inv.ReportManifest)
	if err != nil {
		return Result{ExitCode: ExitConfigError},
			&InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
	}
	if err := report.SizeTable(stdout, m.Entries); err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	return Result{ExitCode: ExitSuccess}, nil
}
