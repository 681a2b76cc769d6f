// Package pipeline models a build run as an immutable, validated DAG of
// jobs and executes it deterministically, serially or with bounded
// parallelism.
package pipeline

import "github.com/ajaymas/LLM4Obfus/internal/job"

// GraphHash is the stable identity of a Graph.
//
// It derives solely from job definition content and dependency structure,
// and is invariant under insertion order.
type GraphHash string

// String returns the hex form of the hash.
func (h GraphHash) String() string { return string(h) }

// DefHash is the identity of a job definition as seen by the graph.
//
// It is distinct from job.Hash (the cache/execution identity): graph identity
// ignores input file contents and working directory.
type DefHash string

// String returns the hex form of the hash.
func (h DefHash) String() string { return string(h) }

// Edge declares a dependency: To runs only after From succeeds.
type Edge struct {
	From string
	To   string
}

// Node is an immutable graph node.
type Node struct {
	Name           string
	Job            job.Job
	DefinitionHash DefHash

	canonicalIndex int
}

// CanonicalIndex is the node's deterministic position in canonical ordering.
func (n *Node) CanonicalIndex() int { return n.canonicalIndex }
