package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajaymas/LLM4Obfus/internal/job"
)

// StepResult is the outcome of executing or replaying a single node.
type StepResult struct {
	Hash job.Hash

	Stdout   []byte
	Stderr   []byte
	ExitCode int

	FromCache         bool
	ArtifactsRestored int
}

// StepRunner executes a single job.
//
// Probe checks whether the job can be satisfied from cache without entering
// RUNNING; when cached is true, result must be non-nil with FromCache set.
// A non-nil error from either method is an infrastructure failure, not a
// job failure (those are conveyed via ExitCode).
type StepRunner interface {
	Probe(ctx context.Context, j job.Job) (result *StepResult, cached bool, err error)
	Run(ctx context.Context, j job.Job) (*StepResult, error)
}

// Result is the deterministic summary of a graph execution attempt.
type Result struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each node by name.
	FinalState RunState

	// ExecutionOrder lists jobs in the order they entered RUNNING.
	ExecutionOrder []string

	JobHashes map[string]job.Hash
	Stdout    map[string][]byte
	Stderr    map[string][]byte
	ExitCode  map[string]int
}

// Failed reports whether any node terminated FAILED.
func (r *Result) Failed() bool {
	if r == nil {
		return true
	}
	for _, st := range r.FinalState {
		if st == StepFailed {
			return true
		}
	}
	return false
}

// Executor executes a Graph deterministically.
type Executor struct {
	Graph  *Graph
	Runner StepRunner

	mu    sync.Mutex
	state RunState
}

// NewExecutor creates an executor with all nodes PENDING.
func NewExecutor(g *Graph, runner StepRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(RunState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = StepPending
	}
	return &Executor{Graph: g, Runner: runner, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(RunState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// RunSerial executes the graph one job at a time.
//
// The next job chosen is always the first element of the scheduler's
// ordered ready list, so execution order is fully deterministic.
func (e *Executor) RunSerial(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	acc := newAccumulator(e.Graph)

	for {
		e.mu.Lock()
		ready := ReadyJobs(e.Graph, e.state)

		if len(ready) == 0 {
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()

			if allTerminal {
				return acc.result(e.Graph.Hash(), e.StateSnapshot()), nil
			}
			return nil, fmt.Errorf("no ready jobs but pipeline not finished")
		}

		next := ready[0]
		j := e.Graph.nodesByName[next].Job

		probeRes, cached, err := e.Runner.Probe(ctx, j)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("probing cache for %q: %w", next, err)
		}
		if cached {
			if probeRes == nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("probing cache for %q: nil result", next)
			}
			if err := Transition(e.state, next, StepPending, StepCached); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			acc.record(next, probeRes)
			e.mu.Unlock()
			continue
		}

		if err := Transition(e.state, next, StepPending, StepRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()

		// Execute outside the lock.
		runRes, err := e.Runner.Run(ctx, j)
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", next, err)
		}
		if runRes == nil {
			return nil, fmt.Errorf("executing %q: nil result", next)
		}

		e.mu.Lock()
		acc.started(next)
		acc.record(next, runRes)

		if runRes.ExitCode == 0 {
			if err := Transition(e.state, next, StepRunning, StepCompleted); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.mu.Unlock()
			continue
		}

		if err := FailAndPropagate(e.Graph, e.state, next); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()
	}
}

// RunParallel executes the graph with at most concurrency jobs in flight.
//
// Dispatch is depth-staged: all jobs of topological depth d finish before
// depth d+1 starts, and within a stage jobs are dispatched in lexical order.
// Stage workers run under an errgroup; an infrastructure error cancels the
// whole stage.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	maxDepth := 0
	for _, d := range e.Graph.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([][]string, maxDepth+1)
	for _, n := range e.Graph.nodes {
		d := e.Graph.depth[n.canonicalIndex]
		byDepth[d] = append(byDepth[d], n.Name)
	}
	for d := range byDepth {
		sort.Strings(byDepth[d])
	}

	acc := newAccumulator(e.Graph)

	for depth := 0; depth <= maxDepth; depth++ {
		var dispatch []string

		// Probe and classify this stage's jobs serially so cache decisions
		// stay deterministic; only actual executions go to the workers.
		e.mu.Lock()
		for _, name := range byDepth[depth] {
			st := e.state[name]
			if IsTerminal(st) {
				// Skipped by an earlier failure.
				continue
			}
			if st != StepPending {
				e.mu.Unlock()
				return nil, fmt.Errorf("unexpected non-pending state for %q: %s", name, st)
			}

			node := e.Graph.nodesByName[name]
			depsOK := true
			for _, p := range e.Graph.incoming[node.canonicalIndex] {
				if !IsSuccessful(e.state[e.Graph.nodes[p].Name]) {
					depsOK = false
					break
				}
			}
			if !depsOK {
				// An upstream failure in an earlier stage should already have
				// marked this node SKIPPED.
				e.mu.Unlock()
				return nil, fmt.Errorf("job %q at depth %d is pending but dependencies are not successful", name, depth)
			}

			res, cached, err := e.Runner.Probe(ctx, node.Job)
			if err != nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("probing cache for %q: %w", name, err)
			}
			if cached {
				if res == nil {
					e.mu.Unlock()
					return nil, fmt.Errorf("probing cache for %q: nil result", name)
				}
				if err := Transition(e.state, name, StepPending, StepCached); err != nil {
					e.mu.Unlock()
					return nil, err
				}
				acc.record(name, res)
				continue
			}

			if err := Transition(e.state, name, StepPending, StepRunning); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			acc.started(name)
			dispatch = append(dispatch, name)
		}
		e.mu.Unlock()

		if len(dispatch) == 0 {
			continue
		}

		results := make(map[string]*StepResult, len(dispatch))
		var resMu sync.Mutex

		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(concurrency)
		for _, name := range dispatch {
			name := name
			grp.Go(func() error {
				res, err := e.Runner.Run(grpCtx, e.Graph.nodesByName[name].Job)
				if err != nil {
					return fmt.Errorf("executing %q: %w", name, err)
				}
				if res == nil {
					return fmt.Errorf("executing %q: nil result", name)
				}
				resMu.Lock()
				results[name] = res
				resMu.Unlock()
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return nil, err
		}

		// Commit stage results in lexical order for deterministic state flow.
		e.mu.Lock()
		for _, name := range dispatch {
			res := results[name]
			acc.record(name, res)
			if res.ExitCode == 0 {
				if err := Transition(e.state, name, StepRunning, StepCompleted); err != nil {
					e.mu.Unlock()
					return nil, err
				}
				continue
			}
			if err := FailAndPropagate(e.Graph, e.state, name); err != nil {
				e.mu.Unlock()
				return nil, err
			}
		}
		e.mu.Unlock()
	}

	return acc.result(e.Graph.Hash(), e.StateSnapshot()), nil
}

// accumulator collects per-node results during a run.
type accumulator struct {
	order     []string
	hashes    map[string]job.Hash
	stdout    map[string][]byte
	stderr    map[string][]byte
	exitCodes map[string]int
}

func newAccumulator(g *Graph) *accumulator {
	n := len(g.nodes)
	return &accumulator{
		order:     make([]string, 0, n),
		hashes:    make(map[string]job.Hash, n),
		stdout:    make(map[string][]byte, n),
		stderr:    make(map[string][]byte, n),
		exitCodes: make(map[string]int, n),
	}
}

func (a *accumulator) started(name string) {
	a.order = append(a.order, name)
}

func (a *accumulator) record(name string, res *StepResult) {
	a.hashes[name] = res.Hash
	a.stdout[name] = res.Stdout
	a.stderr[name] = res.Stderr
	a.exitCodes[name] = res.ExitCode
}

func (a *accumulator) result(hash GraphHash, final RunState) *Result {
	return &Result{
		GraphHash:      hash,
		FinalState:     final,
		ExecutionOrder: a.order,
		JobHashes:      a.hashes,
		Stdout:         a.stdout,
		Stderr:         a.stderr,
		ExitCode:       a.exitCodes,
	}
}
