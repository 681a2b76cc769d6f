package pipeline

import (
	"context"
	"testing"

	"github.com/ajaymas/LLM4Obfus/internal/job"
	"github.com/ajaymas/LLM4Obfus/internal/toolchain"
)

type countingInvoker struct {
	calls int
}

func (c *countingInvoker) Invoke(context.Context, toolchain.Invocation) (*toolchain.Result, error) {
	c.calls++
	return &toolchain.Result{Stdout: []byte("ran")}, nil
}

func TestCacheRunnerProbeMissThenHit(t *testing.T) {
	inv := &countingInvoker{}
	jr := job.NewRunner(t.TempDir(), job.NewMemoryCache())
	jr.Invoker = inv
	cr := NewCacheRunner(jr)

	j := job.Job{Name: "noop", Argv: []string{"true"}}

	_, cached, err := cr.Probe(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if cached {
		t.Fatal("probe hit on empty cache")
	}
	if inv.calls != 0 {
		t.Fatal("probe executed the job")
	}

	res, err := cr.Run(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache || string(res.Stdout) != "ran" {
		t.Fatalf("unexpected run result: %+v", res)
	}

	probed, cached, err := cr.Probe(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if !cached {
		t.Fatal("probe missed after a completed run")
	}
	if !probed.FromCache || string(probed.Stdout) != "ran" {
		t.Fatalf("unexpected probe result: %+v", probed)
	}
	if inv.calls != 1 {
		t.Fatalf("cached probe re-invoked the tool (%d calls)", inv.calls)
	}
}

func TestCacheRunnerNilJobRunner(t *testing.T) {
	cr := &CacheRunner{}
	if _, _, err := cr.Probe(context.Background(), job.Job{Name: "x", Argv: []string{"y"}}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := cr.Run(context.Background(), job.Job{Name: "x", Argv: []string{"y"}}); err == nil {
		t.Fatal("expected error")
	}
}
