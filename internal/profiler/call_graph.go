package profiler

import (
	"iter"
	"time"
)

// Edge is the aggregate for one caller -> callee relationship. Caller is nil
// for calls made while nothing else was on the stack (top-level calls made by
// the host).
type Edge struct {
	Caller    *Function
	Callee    Function
	NumCalls  int64
	TotalTime time.Duration
}

// Node is a function together with the edges that enter and leave it.
type Node struct {
	Function Function
	Callers  []Edge
	Callees  []Edge
}

type edgeKey struct {
	caller   Address
	callee   Address
	topLevel bool
}

type edgeStats struct {
	key       edgeKey
	numCalls  int64
	totalTime time.Duration
}

// CallGraph aggregates calls per (caller, callee) pair. Functions are referred
// to by address and resolved through the Statistics the graph was built with.
type CallGraph struct {
	stats    *Statistics
	edges    []edgeStats
	index    map[edgeKey]int
	outbound map[Address][]int
	inbound  map[Address][]int
	// roots lists top-level edge indexes; they have no outbound owner.
	roots []int
}

// NewCallGraph creates an empty graph resolving functions through stats.
func NewCallGraph(stats *Statistics) *CallGraph {
	return &CallGraph{
		stats:    stats,
		index:    make(map[edgeKey]int),
		outbound: make(map[Address][]int),
		inbound:  make(map[Address][]int),
	}
}

func makeEdgeKey(caller *Address, callee Address) edgeKey {
	if caller == nil {
		return edgeKey{callee: callee, topLevel: true}
	}
	return edgeKey{caller: *caller, callee: callee}
}

func (g *CallGraph) slot(key edgeKey) int {
	if i, ok := g.index[key]; ok {
		return i
	}
	g.edges = append(g.edges, edgeStats{key: key})
	i := len(g.edges) - 1
	g.index[key] = i
	if key.topLevel {
		g.roots = append(g.roots, i)
	} else {
		g.outbound[key.caller] = append(g.outbound[key.caller], i)
	}
	g.inbound[key.callee] = append(g.inbound[key.callee], i)
	return i
}

// RecordCall counts a call from caller to callee. A nil caller denotes a
// top-level call.
func (g *CallGraph) RecordCall(caller *Address, callee Address) {
	g.edges[g.slot(makeEdgeKey(caller, callee))].numCalls++
}

// FinalizeCall adds the duration of a completed call to its edge.
func (g *CallGraph) FinalizeCall(caller *Address, callee Address, elapsed time.Duration) {
	g.edges[g.slot(makeEdgeKey(caller, callee))].totalTime += elapsed
}

// RestoreEdge sets the counters of an edge read back from storage.
func (g *CallGraph) RestoreEdge(caller *Address, callee Address, numCalls int64, totalTime time.Duration) {
	e := &g.edges[g.slot(makeEdgeKey(caller, callee))]
	e.numCalls = numCalls
	e.totalTime = totalTime
}

// Len returns the number of edges.
func (g *CallGraph) Len() int {
	return len(g.edges)
}

// Edges yields every edge in creation order. Like Statistics.All it is
// restartable and must not be used while events are being delivered.
func (g *CallGraph) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for i := range g.edges {
			if !yield(g.edge(i)) {
				return
			}
		}
	}
}

// Node returns the function at address with its inbound and outbound edges.
func (g *CallGraph) Node(address Address) (Node, bool) {
	fn, ok := g.stats.Lookup(address)
	if !ok {
		return Node{}, false
	}
	n := Node{Function: fn}
	for _, i := range g.inbound[address] {
		n.Callers = append(n.Callers, g.edge(i))
	}
	for _, i := range g.outbound[address] {
		n.Callees = append(n.Callees, g.edge(i))
	}
	return n, true
}

// Roots yields the top-level edges.
func (g *CallGraph) Roots() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, i := range g.roots {
			if !yield(g.edge(i)) {
				return
			}
		}
	}
}

func (g *CallGraph) edge(i int) Edge {
	e := g.edges[i]
	out := Edge{
		NumCalls:  e.numCalls,
		TotalTime: e.totalTime,
	}
	out.Callee = g.resolve(e.key.callee)
	if !e.key.topLevel {
		caller := g.resolve(e.key.caller)
		out.Caller = &caller
	}
	return out
}

func (g *CallGraph) resolve(address Address) Function {
	if fn, ok := g.stats.Lookup(address); ok {
		return fn
	}
	return Function{Address: address, Name: AnonymousName(address)}
}

// clone returns a deep copy bound to stats.
func (g *CallGraph) clone(stats *Statistics) *CallGraph {
	c := NewCallGraph(stats)
	c.edges = append([]edgeStats(nil), g.edges...)
	for k, v := range g.index {
		c.index[k] = v
	}
	for k, v := range g.outbound {
		c.outbound[k] = append([]int(nil), v...)
	}
	for k, v := range g.inbound {
		c.inbound[k] = append([]int(nil), v...)
	}
	c.roots = append([]int(nil), g.roots...)
	return c
}
