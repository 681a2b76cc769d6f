package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
)

// Invocation is a single external tool execution request.
//
// Env is an allowlist: the child process sees exactly these variables and
// nothing from the host environment. Tool output must not depend on ambient
// state the pipeline did not declare.
type Invocation struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

// Result captures everything observable about a finished invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Invoker runs tool invocations. The interface exists so batch operations
// can be tested without a real binutils install.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
}

// Runner is the production Invoker backed by os/exec.
type Runner struct{}

// Invoke executes argv directly (no shell) with an isolated environment.
//
// The child runs in its own process group so that context cancellation can
// kill the entire tree, not just the immediate child.
func (Runner) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if len(inv.Argv) == 0 {
		return nil, fmt.Errorf("invoke: empty argv")
	}

	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = allowlistEnv(inv.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", inv.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// Negative pid targets the whole process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("invoke %s: cancelled: %w", inv.Argv[0], ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("invoke %s: %w", inv.Argv[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// allowlistEnv builds the child environment from declared variables only.
// A nil or empty map yields an empty environment, not the host's.
func allowlistEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
