package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallGraphRecordAndFinalize(t *testing.T) {
	stats := NewStatistics()
	stats.GetOrCreate(0x10, "main", KindMain)
	stats.GetOrCreate(0x20, "foo", KindNormal)
	g := NewCallGraph(stats)

	caller := Address(0x10)
	g.RecordCall(nil, 0x10)
	g.RecordCall(&caller, 0x20)
	g.RecordCall(&caller, 0x20)
	g.FinalizeCall(&caller, 0x20, 2*time.Millisecond)
	g.FinalizeCall(&caller, 0x20, 3*time.Millisecond)
	g.FinalizeCall(nil, 0x10, 9*time.Millisecond)

	require.Equal(t, 2, g.Len())

	var edges []Edge
	for e := range g.Edges() {
		edges = append(edges, e)
	}
	assert.Nil(t, edges[0].Caller)
	assert.Equal(t, "main", edges[0].Callee.Name)
	assert.Equal(t, int64(1), edges[0].NumCalls)
	assert.Equal(t, 9*time.Millisecond, edges[0].TotalTime)

	require.NotNil(t, edges[1].Caller)
	assert.Equal(t, "main", edges[1].Caller.Name)
	assert.Equal(t, "foo", edges[1].Callee.Name)
	assert.Equal(t, int64(2), edges[1].NumCalls)
	assert.Equal(t, 5*time.Millisecond, edges[1].TotalTime)
}

func TestCallGraphNode(t *testing.T) {
	stats := NewStatistics()
	for _, a := range []Address{0x10, 0x20, 0x30} {
		stats.GetOrCreate(a, "", KindNormal)
	}
	g := NewCallGraph(stats)
	a, b := Address(0x10), Address(0x20)
	g.RecordCall(nil, 0x10)
	g.RecordCall(&a, 0x20)
	g.RecordCall(&b, 0x30)
	g.RecordCall(&a, 0x30)

	n, ok := g.Node(0x30)
	require.True(t, ok)
	assert.Len(t, n.Callers, 2)
	assert.Empty(t, n.Callees)

	n, ok = g.Node(0x10)
	require.True(t, ok)
	assert.Len(t, n.Callers, 1)
	assert.Nil(t, n.Callers[0].Caller)
	assert.Len(t, n.Callees, 2)

	_, ok = g.Node(0x99)
	assert.False(t, ok)

	var roots int
	for range g.Roots() {
		roots++
	}
	assert.Equal(t, 1, roots)
}

func TestCallGraphUnknownFunctionIsAnonymous(t *testing.T) {
	g := NewCallGraph(NewStatistics())
	g.RecordCall(nil, 0xAB)
	for e := range g.Edges() {
		assert.Equal(t, "0x000000AB", e.Callee.Name)
	}
}

func TestCallGraphClone(t *testing.T) {
	stats := NewStatistics()
	stats.GetOrCreate(0x10, "foo", KindNormal)
	g := NewCallGraph(stats)
	g.RecordCall(nil, 0x10)

	c := g.clone(stats.clone())
	g.RecordCall(nil, 0x10)
	caller := Address(0x10)
	g.RecordCall(&caller, 0x10)

	assert.Equal(t, 1, c.Len())
	for e := range c.Edges() {
		assert.Equal(t, int64(1), e.NumCalls)
	}
}

func TestCallGraphRestoreEdge(t *testing.T) {
	stats := NewStatistics()
	stats.GetOrCreate(0x10, "main", KindMain)
	g := NewCallGraph(stats)

	caller := Address(0x10)
	g.RestoreEdge(nil, 0x10, 1, 10*time.Millisecond)
	g.RestoreEdge(&caller, 0x20, 3, 4*time.Millisecond)

	n, ok := g.Node(0x10)
	require.True(t, ok)
	require.Len(t, n.Callers, 1)
	require.Len(t, n.Callees, 1)
	assert.Equal(t, int64(3), n.Callees[0].NumCalls)
	assert.Equal(t, "0x00000020", n.Callees[0].Callee.Name)
	assert.Equal(t, 10*time.Millisecond, n.Callers[0].TotalTime)
}
