package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

// Runner executes jobs with content-addressed caching.
//
// Flow: resolve inputs, compute hash, probe cache; on a hit replay, on a miss
// clean stale outputs, invoke the tool, harvest declared artifacts (success
// only), and store the result. Failed invocations are cached without
// artifacts so a failure never leaves partial outputs behind on replay.
type Runner struct {
	// WorkDir is the execution and harvest root.
	WorkDir string

	Cache     Cache
	Invoker   toolchain.Invoker
	Resolver  *InputResolver
	Hasher    *Hasher
	Harvester *Harvester
	Replayer  *Replayer

	// Filter, when set, normalizes captured diagnostics before caching so
	// that nondeterministic tool output (timing, pids) does not churn the
	// cache contents.
	Filter *DiagnosticFilter
}

// NewRunner wires a Runner over workDir with the given cache.
func NewRunner(workDir string, cache Cache) *Runner {
	return &Runner{
		WorkDir:   workDir,
		Cache:     cache,
		Invoker:   toolchain.Runner{},
		Resolver:  NewInputResolver(workDir),
		Hasher:    NewHasher(),
		Harvester: NewHarvester(workDir),
		Replayer:  NewReplayer(workDir),
	}
}

// RunResult is the outcome of running (or replaying) one job.
type RunResult struct {
	Hash     Hash
	Stdout   []byte
	Stderr   []byte
	ExitCode int

	FromCache         bool
	ArtifactsRestored int
}

// ComputeHash resolves the job's inputs and derives its cache identity.
func (r *Runner) ComputeHash(j *Job) (Hash, *InputSet, error) {
	inputSet, err := r.Resolver.Resolve(j.Inputs)
	if err != nil {
		return "", nil, fmt.Errorf("resolving inputs: %w", err)
	}
	hash := r.Hasher.Compute(HashInput{
		Inputs:  inputSet,
		Argv:    j.Argv,
		Env:     j.Env,
		Outputs: j.Outputs,
		WorkDir: r.WorkDir,
	})
	return hash, inputSet, nil
}

// Run executes j or replays it from cache.
func (r *Runner) Run(ctx context.Context, j *Job) (*RunResult, error) {
	if err := validate(j); err != nil {
		return nil, err
	}

	hash, _, err := r.ComputeHash(j)
	if err != nil {
		return nil, err
	}

	exists, err := r.Cache.Has(hash)
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}
	if exists {
		return r.replay(j.Name, hash)
	}

	return r.execute(ctx, j, hash)
}

func validate(j *Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if len(j.Argv) == 0 {
		return fmt.Errorf("job %q: argv is required", j.Name)
	}
	return nil
}

func (r *Runner) replay(name string, hash Hash) (*RunResult, error) {
	entry, err := r.Cache.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("retrieving cache entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("cache entry disappeared")
	}

	replayed, err := r.Replayer.Replay(entry)
	if err != nil {
		return nil, fmt.Errorf("replaying cached result: %w", err)
	}

	log.WithFields(log.Fields{
		"job":      name,
		"restored": replayed.ArtifactsRestored,
	}).Debug("job replayed from cache")

	return &RunResult{
		Hash:              hash,
		Stdout:            replayed.Stdout,
		Stderr:            replayed.Stderr,
		ExitCode:          replayed.ExitCode,
		FromCache:         true,
		ArtifactsRestored: replayed.ArtifactsRestored,
	}, nil
}

func (r *Runner) execute(ctx context.Context, j *Job, hash Hash) (*RunResult, error) {
	// Stale outputs from a previous run must not survive into the harvest.
	if err := r.CleanOutputs(j.Outputs); err != nil {
		return nil, fmt.Errorf("cleaning outputs for %q: %w", j.Name, err)
	}

	res, err := r.Invoker.Invoke(ctx, toolchain.Invocation{
		Argv: j.Argv,
		Dir:  r.WorkDir,
		Env:  j.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("executing job %q: %w", j.Name, err)
	}

	stdout, stderr := res.Stdout, res.Stderr
	if r.Filter != nil {
		stdout = r.Filter.Apply(stdout)
		stderr = r.Filter.Apply(stderr)
	}

	entry := &CacheEntry{
		Hash:      hash,
		Stdout:    stdout,
		Stderr:    stderr,
		ExitCode:  res.ExitCode,
		Artifacts: []CachedArtifact{},
	}

	if res.ExitCode == 0 {
		harvest, err := r.Harvester.Harvest(j.Outputs)
		if err != nil {
			return nil, fmt.Errorf("harvesting artifacts for %q: %w", j.Name, err)
		}
		entry.Artifacts = make([]CachedArtifact, len(harvest.Artifacts))
		for i, a := range harvest.Artifacts {
			entry.Artifacts[i] = CachedArtifact{Path: a.Path, Content: a.Content}
		}
	}
	// Non-zero exit: cache the failure, never the (possibly partial) outputs.

	if err := r.Cache.Put(entry); err != nil {
		return nil, fmt.Errorf("caching result: %w", err)
	}

	return &RunResult{
		Hash:     hash,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: res.ExitCode,
	}, nil
}

// CleanOutputs removes declared outputs before execution so a failed run
// cannot leave stale artifacts that look current.
func (r *Runner) CleanOutputs(outputs []string) error {
	for _, output := range outputs {
		full := output
		if !filepath.IsAbs(output) {
			full = filepath.Join(r.WorkDir, output)
		}
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("removing %q: %w", output, err)
		}
	}
	return nil
}
