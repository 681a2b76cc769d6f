// Package runlog persists a durable record of each pipeline run under
// <baseDir>/.obfus/runs/<run-id>/ so that failed runs can be diagnosed
// after the process exits.
package runlog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	RunID     string `json:"run_id"`
	GraphHash string `json:"graph_hash"`

	// MatrixPath is the matrix spec file that produced the graph, empty for
	// batch-strip runs.
	MatrixPath string `json:"matrix_path,omitempty"`

	Status string `json:"status"`

	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`

	// JobStates maps job name to its terminal state string.
	JobStates map[string]string `json:"job_states,omitempty"`

	// ExecutionOrder lists jobs in the order they started running.
	ExecutionOrder []string `json:"execution_order,omitempty"`
}

// NewRun creates a RUNNING record with a fresh ID and the current time.
func NewRun(graphHash, matrixPath string) Run {
	return Run{
		RunID:      uuid.NewString(),
		GraphHash:  graphHash,
		MatrixPath: matrixPath,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Finish marks the run terminal with the current time.
func (r *Run) Finish(status string) {
	r.Status = status
	r.FinishedAt = time.Now().UTC().Format(time.RFC3339)
}

// Validate checks the structural invariants of a run record.
func (r Run) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run_id is required")
	}
	switch r.Status {
	case StatusRunning, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if strings.TrimSpace(r.StartedAt) == "" {
		return errors.New("started_at is required")
	}
	if _, err := time.Parse(time.RFC3339, r.StartedAt); err != nil {
		return fmt.Errorf("started_at: %w", err)
	}
	if r.FinishedAt != "" {
		if _, err := time.Parse(time.RFC3339, r.FinishedAt); err != nil {
			return fmt.Errorf("finished_at: %w", err)
		}
	}
	return nil
}

// FailureClass partitions failures by origin.
type FailureClass string

const (
	// FailureClassConfig covers invalid matrix specs, unknown flags, and
	// unparseable configuration.
	FailureClassConfig FailureClass = "config"

	// FailureClassWorkspace covers missing sources, unreadable directories,
	// and other workspace problems detected before any tool runs.
	FailureClassWorkspace FailureClass = "workspace"

	// FailureClassExecution covers a tool invocation exiting non-zero.
	FailureClassExecution FailureClass = "execution"

	// FailureClassSystem covers everything else: crashes, I/O errors,
	// cancelled contexts.
	FailureClassSystem FailureClass = "system"
)

// Failure is the persisted record of why a run failed.
type Failure struct {
	Class FailureClass `json:"class"`

	// JobName identifies the failing job for execution failures.
	JobName string `json:"job,omitempty"`

	Message string `json:"message"`
}

// Validate checks a failure record.
func (f Failure) Validate() error {
	switch f.Class {
	case FailureClassConfig, FailureClassWorkspace, FailureClassExecution, FailureClassSystem:
	default:
		return fmt.Errorf("unknown failure class %q", f.Class)
	}
	if strings.TrimSpace(f.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}

// ConfigError marks a configuration or spec problem.
type ConfigError struct {
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Cause)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// WorkspaceError marks a workspace problem detected before execution.
type WorkspaceError struct {
	Msg   string
	Cause error
}

func (e *WorkspaceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workspace: %s: %v", e.Msg, e.Cause)
	}
	return "workspace: " + e.Msg
}

func (e *WorkspaceError) Unwrap() error { return e.Cause }

// ExecutionError marks a tool invocation that exited non-zero.
type ExecutionError struct {
	JobName  string
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("job %q failed with exit code %d", e.JobName, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Classify converts an error into a persistable Failure using the four-class
// taxonomy. Unknown errors land in the system class.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Class: FailureClassSystem, Message: "unknown failure"}
	}

	var ce *ConfigError
	if errors.As(err, &ce) {
		return Failure{Class: FailureClassConfig, Message: ce.Error()}
	}

	var we *WorkspaceError
	if errors.As(err, &we) {
		return Failure{Class: FailureClassWorkspace, Message: we.Error()}
	}

	var ee *ExecutionError
	if errors.As(err, &ee) {
		return Failure{Class: FailureClassExecution, JobName: ee.JobName, Message: ee.Error()}
	}

	return Failure{Class: FailureClassSystem, Message: err.Error()}
}
