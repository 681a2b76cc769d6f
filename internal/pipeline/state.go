package pipeline

import (
	"container/heap"
	"fmt"
	"sort"
)

// StepState is the runtime execution state of a node.
type StepState string

const (
	StepPending   StepState = "PENDING"
	StepRunning   StepState = "RUNNING"
	StepCompleted StepState = "COMPLETED"
	StepFailed    StepState = "FAILED"
	StepSkipped   StepState = "SKIPPED"
	StepCached    StepState = "CACHED"
)

// RunState maps job name to its current StepState.
//
// It is a plain map so the scheduler can stay a pure function.
type RunState map[string]StepState

// IsTerminal reports whether the state is finished.
func IsTerminal(s StepState) bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped, StepCached:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependencies.
func IsSuccessful(s StepState) bool {
	switch s {
	case StepCompleted, StepCached:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single job.
//
// The caller supplies the expected prior state so that races surface as
// errors instead of silent overwrites.
func Transition(state RunState, name string, from, to StepState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown job in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func allowedTransition(from, to StepState) bool {
	switch from {
	case StepPending:
		return to == StepRunning || to == StepCached || to == StepSkipped
	case StepRunning:
		return to == StepCompleted || to == StepFailed
	default:
		return false
	}
}

// FailAndPropagate marks name FAILED and transitively marks every downstream
// dependent SKIPPED. Traversal is in canonical index order so the skipped set
// and its discovery order are deterministic.
func FailAndPropagate(g *Graph, state RunState, name string) error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByName[name]
	if !ok {
		return fmt.Errorf("unknown job: %q", name)
	}

	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown job in state: %q", name)
	}
	if cur != StepRunning && cur != StepFailed {
		return fmt.Errorf("cannot fail %q from state %s", name, cur)
	}
	if cur == StepRunning {
		state[name] = StepFailed
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		n := g.nodes[u].Name
		st, ok := state[n]
		if !ok {
			return fmt.Errorf("missing state for %q", n)
		}

		switch st {
		case StepPending:
			state[n] = StepSkipped
		case StepRunning:
			return fmt.Errorf("invariant violation: downstream job %q is RUNNING during failure propagation", n)
		default:
			// Already terminal. Leave unchanged.
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return nil
}

// ReadyJobs returns the deterministically ordered job names eligible to run:
// PENDING with every dependency COMPLETED or CACHED, sorted by (topological
// depth, name). Pure function; neither graph nor state is mutated.
func ReadyJobs(g *Graph, state RunState) []string {
	if g == nil {
		return nil
	}

	ready := make([]string, 0)
	for _, node := range g.nodes {
		st, ok := state[node.Name]
		if !ok || st != StepPending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			pst, ok := state[g.nodes[parentIdx].Name]
			if !ok || !IsSuccessful(pst) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad, _ := g.Depth(a)
		bd, _ := g.Depth(b)
		if ad != bd {
			return ad < bd
		}
		return a < b
	})

	return ready
}
