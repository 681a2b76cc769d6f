package job

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Hash is the deterministic cache identity of a job execution.
//
// Any change to argv, environment, declared outputs, input contents, or the
// working directory must produce a different Hash.
type Hash string

// String returns the hex form of the hash.
func (h Hash) String() string { return string(h) }

// HashInput carries every component that contributes to a job Hash.
type HashInput struct {
	// Inputs is the resolved, sorted input set.
	Inputs *InputSet

	// Argv is the full argument vector.
	Argv []string

	// Env is the declared environment allowlist.
	Env map[string]string

	// Outputs are the declared artifact paths.
	Outputs []string

	// WorkDir distinguishes otherwise identical jobs run in different trees.
	WorkDir string
}

// Hasher computes deterministic job hashes.
//
// Every field is length-prefixed before hashing so that concatenation is
// unambiguous, and all unordered collections are sorted first.
type Hasher struct{}

// NewHasher returns a Hasher.
func NewHasher() *Hasher { return &Hasher{} }

// Compute derives the Hash for the given input.
func (Hasher) Compute(in HashInput) Hash {
	h := sha256.New()

	var lenBuf [8]byte
	field := func(data []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}
	count := func(n int) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
		h.Write(lenBuf[:])
	}

	field([]byte(in.WorkDir))

	count(len(in.Argv))
	for _, a := range in.Argv {
		field([]byte(a))
	}

	envKeys := make([]string, 0, len(in.Env))
	for k := range in.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	count(len(envKeys))
	for _, k := range envKeys {
		field([]byte(k))
		field([]byte(in.Env[k]))
	}

	outputs := make([]string, len(in.Outputs))
	copy(outputs, in.Outputs)
	sort.Strings(outputs)
	count(len(outputs))
	for _, o := range outputs {
		field([]byte(o))
	}

	n := 0
	if in.Inputs != nil {
		n = len(in.Inputs.Inputs)
	}
	count(n)
	if in.Inputs != nil {
		for _, inp := range in.Inputs.Inputs {
			field([]byte(inp.Path))
			field(inp.Content)
		}
	}

	return Hash(hex.EncodeToString(h.Sum(nil)))
}
