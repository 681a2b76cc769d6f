package pipeline

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/ajaymas/LLM4Obfus/internal/job"
)

// fakeRunner executes nothing: it returns scripted exit codes and treats the
// named jobs as cache hits.
type fakeRunner struct {
	mu        sync.Mutex
	exitCodes map[string]int
	cached    map[string]bool
	runs      []string
}

func (f *fakeRunner) Probe(_ context.Context, j job.Job) (*StepResult, bool, error) {
	if f.cached[j.Name] {
		return &StepResult{Hash: job.Hash("h-" + j.Name), FromCache: true}, true, nil
	}
	return nil, false, nil
}

func (f *fakeRunner) Run(_ context.Context, j job.Job) (*StepResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, j.Name)
	f.mu.Unlock()
	return &StepResult{
		Hash:     job.Hash("h-" + j.Name),
		ExitCode: f.exitCodes[j.Name],
		Stderr:   []byte("log-" + j.Name),
	}, nil
}

func newDiamondExecutor(t *testing.T, r StepRunner) *Executor {
	t.Helper()
	e, err := NewExecutor(diamond(t), r)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunSerialHappyPath(t *testing.T) {
	fr := &fakeRunner{}
	e := newDiamondExecutor(t, fr)

	res, err := e.RunSerial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.FinalState)
	}
	if !reflect.DeepEqual(res.ExecutionOrder, []string{"a", "b", "c", "d"}) {
		t.Fatalf("order = %v", res.ExecutionOrder)
	}
	for _, n := range []string{"a", "b", "c", "d"} {
		if res.FinalState[n] != StepCompleted {
			t.Errorf("%s = %s, want COMPLETED", n, res.FinalState[n])
		}
		if res.JobHashes[n] != job.Hash("h-"+n) {
			t.Errorf("%s hash missing", n)
		}
	}
}

func TestRunSerialFailurePropagates(t *testing.T) {
	fr := &fakeRunner{exitCodes: map[string]int{"b": 2}}
	e := newDiamondExecutor(t, fr)

	res, err := e.RunSerial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Failed() {
		t.Fatal("expected failure")
	}

	want := RunState{
		"a": StepCompleted,
		"b": StepFailed,
		"c": StepCompleted, // independent sibling still runs
		"d": StepSkipped,
	}
	if !reflect.DeepEqual(res.FinalState, want) {
		t.Fatalf("final = %v, want %v", res.FinalState, want)
	}
	if res.ExitCode["b"] != 2 {
		t.Fatalf("exit code not recorded: %v", res.ExitCode)
	}
}

func TestRunSerialCachedNodesDoNotRun(t *testing.T) {
	fr := &fakeRunner{cached: map[string]bool{"a": true, "c": true}}
	e := newDiamondExecutor(t, fr)

	res, err := e.RunSerial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalState["a"] != StepCached || res.FinalState["c"] != StepCached {
		t.Fatalf("final = %v", res.FinalState)
	}
	if !reflect.DeepEqual(res.ExecutionOrder, []string{"b", "d"}) {
		t.Fatalf("order = %v", res.ExecutionOrder)
	}
	if !reflect.DeepEqual(fr.runs, []string{"b", "d"}) {
		t.Fatalf("runs = %v", fr.runs)
	}
}

func TestRunParallelMatchesSerialOutcome(t *testing.T) {
	serial := &fakeRunner{exitCodes: map[string]int{"c": 1}}
	es := newDiamondExecutor(t, serial)
	serialRes, err := es.RunSerial(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	parallel := &fakeRunner{exitCodes: map[string]int{"c": 1}}
	ep := newDiamondExecutor(t, parallel)
	parallelRes, err := ep.RunParallel(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(serialRes.FinalState, parallelRes.FinalState) {
		t.Fatalf("serial %v != parallel %v", serialRes.FinalState, parallelRes.FinalState)
	}
	if serialRes.GraphHash != parallelRes.GraphHash {
		t.Fatal("graph hash mismatch")
	}
}

func TestRunParallelAllSucceed(t *testing.T) {
	fr := &fakeRunner{}
	e := newDiamondExecutor(t, fr)

	res, err := e.RunParallel(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	for n, st := range res.FinalState {
		if st != StepCompleted {
			t.Errorf("%s = %s", n, st)
		}
	}
	if len(fr.runs) != 4 {
		t.Fatalf("runs = %v", fr.runs)
	}
}

func TestRunParallelRejectsBadConcurrency(t *testing.T) {
	e := newDiamondExecutor(t, &fakeRunner{})
	if _, err := e.RunParallel(context.Background(), 0); err == nil {
		t.Fatal("expected error for concurrency 0")
	}
}

func TestNewExecutorValidation(t *testing.T) {
	if _, err := NewExecutor(nil, &fakeRunner{}); err == nil {
		t.Fatal("expected error for nil graph")
	}
	if _, err := NewExecutor(diamond(t), nil); err == nil {
		t.Fatal("expected error for nil runner")
	}
}
