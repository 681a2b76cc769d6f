package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/ajaymas/LLM4Obfus/internal/job"
)

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated DAG of jobs.
//
// It is safe for concurrent read access.
type Graph struct {
	nodesByName map[string]*Node
	nodes       []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int
	depth    []int // topological depth by canonical index

	hash GraphHash
}

// NewGraph builds and validates a Graph.
//
// Validation rejects empty or duplicate job names, edges naming unknown
// jobs, duplicate edges, self-loops, and any cycle.
func NewGraph(jobs []job.Job, edges []Edge) (*Graph, error) {
	if len(jobs) == 0 {
		return nil, invalidf("no jobs")
	}

	nodesByName := make(map[string]*Node, len(jobs))
	nodes := make([]*Node, 0, len(jobs))

	for _, j := range jobs {
		if j.Name == "" {
			return nil, invalidf("job name is required")
		}
		if _, exists := nodesByName[j.Name]; exists {
			return nil, invalidf("duplicate job name: %q", j.Name)
		}

		node := &Node{Name: j.Name, Job: j, DefinitionHash: computeDefHash(j)}
		nodesByName[j.Name] = node
		nodes = append(nodes, node)
	}

	// Canonical node order: definition hash first, name as tie-breaker.
	sort.Slice(nodes, func(i, k int) bool {
		a, b := nodes[i], nodes[k]
		if a.DefinitionHash != b.DefinitionHash {
			return a.DefinitionHash < b.DefinitionHash
		}
		return a.Name < b.Name
	})
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	nameToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nameToIndex[n.Name] = n.canonicalIndex
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		if _, ok := nodesByName[e.From]; !ok {
			return nil, invalidf("edge references unknown job (from): %q", e.From)
		}
		if _, ok := nodesByName[e.To]; !ok {
			return nil, invalidf("edge references unknown job (to): %q", e.To)
		}
		if e.From == e.To {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}

		pair := edgeIndex{from: nameToIndex[e.From], to: nameToIndex[e.To]}
		if _, dup := seen[pair]; dup {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, k int) bool {
		a, b := mapped[i], mapped[k]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &Graph{
		nodesByName: nodesByName,
		nodes:       nodes,
		edges:       mapped,
		outgoing:    outgoing,
		incoming:    incoming,
		indeg:       indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeHash()
	return g, nil
}

// Hash returns the graph's stable identity.
func (g *Graph) Hash() GraphHash { return g.hash }

// Node returns a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodesByName[name]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns dependency edges as stable (From, To) name pairs.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name})
	}
	return out
}

// Depth returns the topological depth of a node: the length of the longest
// path from any root to it.
func (g *Graph) Depth(name string) (int, bool) {
	n, ok := g.nodesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

// TopologicalOrder returns a deterministic topological ordering of job names.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if d := depth[p] + 1; d > maxParent {
				maxParent = d
			}
		}
		depth[u] = maxParent
	}
	return depth
}

func (g *Graph) computeHash() GraphHash {
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

	count(len(g.nodes))
	for _, n := range g.nodes {
		field([]byte(n.DefinitionHash))
	}

	count(len(g.edges))
	var idx [4]byte
	for _, e := range g.edges {
		binary.BigEndian.PutUint32(idx[:], uint32(e.from))
		field(idx[:])
		binary.BigEndian.PutUint32(idx[:], uint32(e.to))
		field(idx[:])
	}

	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}

// computeDefHash hashes the declarative definition fields only: inputs
// (as a sorted set), argv, env, and declared outputs.
func computeDefHash(j job.Job) DefHash {
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

	inputs := make([]string, len(j.Inputs))
	copy(inputs, j.Inputs)
	sort.Strings(inputs)
	count(len(inputs))
	for _, in := range inputs {
		field([]byte(in))
	}

	count(len(j.Argv))
	for _, a := range j.Argv {
		field([]byte(a))
	}

	envKeys := make([]string, 0, len(j.Env))
	for k := range j.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	count(len(envKeys))
	for _, k := range envKeys {
		field([]byte(k))
		field([]byte(j.Env[k]))
	}

	outputs := make([]string, len(j.Outputs))
	copy(outputs, j.Outputs)
	sort.Strings(outputs)
	count(len(outputs))
	for _, o := range outputs {
		field([]byte(o))
	}

	return DefHash(hex.EncodeToString(h.Sum(nil)))
}
