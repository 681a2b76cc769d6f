package pipeline

import (
	"context"
	"fmt"

	"github.com/ajaymas/LLM4Obfus/internal/job"
)

// CacheRunner adapts a job.Runner to the StepRunner interface, exposing the
// runner's content-addressed cache to the executor so that cache hits become
// CACHED transitions instead of RUNNING ones.
type CacheRunner struct {
	Jobs *job.Runner
}

// NewCacheRunner wraps a job runner.
func NewCacheRunner(r *job.Runner) *CacheRunner {
	return &CacheRunner{Jobs: r}
}

// Probe checks whether j is already cached and, if so, replays it.
//
// The replay is performed inside Probe so the executor observes a fully
// materialized result (artifacts restored) before marking the node CACHED.
func (c *CacheRunner) Probe(ctx context.Context, j job.Job) (*StepResult, bool, error) {
	if c.Jobs == nil {
		return nil, false, fmt.Errorf("nil job runner")
	}

	hash, _, err := c.Jobs.ComputeHash(&j)
	if err != nil {
		return nil, false, err
	}

	hit, err := c.Jobs.Cache.Has(hash)
	if err != nil {
		return nil, false, fmt.Errorf("checking cache: %w", err)
	}
	if !hit {
		return nil, false, nil
	}

	res, err := c.Jobs.Run(ctx, &j)
	if err != nil {
		return nil, false, err
	}
	if !res.FromCache {
		// The entry vanished between probe and replay. Treat it as a miss
		// rather than surfacing a spurious error; the run already happened.
		return toStepResult(res), false, nil
	}
	return toStepResult(res), true, nil
}

// Run executes j, consulting the cache first exactly as the job runner does.
func (c *CacheRunner) Run(ctx context.Context, j job.Job) (*StepResult, error) {
	if c.Jobs == nil {
		return nil, fmt.Errorf("nil job runner")
	}
	res, err := c.Jobs.Run(ctx, &j)
	if err != nil {
		return nil, err
	}
	return toStepResult(res), nil
}

func toStepResult(res *job.RunResult) *StepResult {
	return &StepResult{
		Hash:              res.Hash,
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		ExitCode:          res.ExitCode,
		FromCache:         res.FromCache,
		ArtifactsRestored: res.ArtifactsRestored,
	}
}
