package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNodes(t *testing.T, g *Graph, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := g.PutNode(&Node{ID: id, Type: "domain"})
		require.NoError(t, err)
	}
}

func TestPutNodeReplaces(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b")

	replaced, err := g.PutNode(&Node{ID: "a", Type: "process"})
	require.NoError(t, err)
	assert.True(t, replaced)

	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "process", n.Type)
	assert.Equal(t, 2, g.NodeCount())

	ids := []string{}
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids, "replacement keeps position")
}

func TestPutNodeEmptyID(t *testing.T) {
	_, err := New().PutNode(&Node{})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestPutEdgeAdjacency(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b", "c")

	_, err := g.PutEdge(&Edge{ID: EdgeID("a", "b"), From: "a", To: "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, g.Neighbors("a"))
	assert.Equal(t, []string{"a"}, g.Neighbors("b"))
	assert.Empty(t, g.Neighbors("c"))
	assert.True(t, g.Connected("b", "a"))
}

func TestPutEdgeMissingEndpoint(t *testing.T) {
	g := New()
	addNodes(t, g, "a")

	_, err := g.PutEdge(&Edge{ID: EdgeID("a", "zz"), From: "a", To: "zz"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Zero(t, g.EdgeCount())
	assert.Empty(t, g.Neighbors("a"))
}

func TestPutEdgeUpsert(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b")

	g.PutEdge(&Edge{ID: "a_b", From: "a", To: "b", Strength: 0.4})
	replaced, err := g.PutEdge(&Edge{ID: "a_b", From: "a", To: "b", Strength: 0.6})
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 1, g.EdgeCount())

	e, _ := g.Edge("a_b")
	assert.Equal(t, 0.6, e.Strength)

	// one adjacency entry, removed with the single edge
	require.True(t, g.DeleteEdge("a_b"))
	assert.False(t, g.Connected("a", "b"))
}

func TestDeleteEdgeKeepsParallelAdjacency(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b")
	g.PutEdge(&Edge{ID: "a_b", From: "a", To: "b"})
	g.PutEdge(&Edge{ID: "b_a", From: "b", To: "a"})

	require.True(t, g.DeleteEdge("a_b"))
	assert.True(t, g.Connected("a", "b"), "b_a still joins them")
	assert.Equal(t, []string{"b"}, g.Neighbors("a"))

	require.True(t, g.DeleteEdge("b_a"))
	assert.False(t, g.Connected("a", "b"))
	assert.False(t, g.DeleteEdge("b_a"))
}

func TestSelfLoop(t *testing.T) {
	g := New()
	addNodes(t, g, "a")
	g.PutEdge(&Edge{ID: "a_a", From: "a", To: "a"})
	assert.Equal(t, []string{"a"}, g.Neighbors("a"))
	g.DeleteEdge("a_a")
	assert.Empty(t, g.Neighbors("a"))
}

func TestEdgesInsertionOrder(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b", "c")
	g.PutEdge(&Edge{ID: "b_c", From: "b", To: "c"})
	g.PutEdge(&Edge{ID: "a_b", From: "a", To: "b"})
	g.PutEdge(&Edge{ID: "a_c", From: "a", To: "c"})
	g.DeleteEdge("a_b")

	var ids []string
	for _, e := range g.Edges() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b_c", "a_c"}, ids)
}

func TestEdgeIDs(t *testing.T) {
	assert.Equal(t, "a_b", EdgeID("a", "b"))
	assert.Equal(t, "a_c_inferred", InferredEdgeID("a", "c"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.1, Clamp(-3))
	assert.Equal(t, 0.1, Clamp(0.05))
	assert.Equal(t, 0.55, Clamp(0.55))
	assert.Equal(t, 1.0, Clamp(1.3))
}

func TestPropertiesOrderedJSON(t *testing.T) {
	p := NewProperties("zeta", 1, "alpha", "two", "mid", []any{true})
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"two","mid":[true]}`, string(data))

	var back Properties
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, back.Keys())
	v, ok := back.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, float64(1), v)

	p.Set("zeta", 9)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.Keys(), "overwrite keeps position")
}

func TestPropertiesUnmarshalRejectsArray(t *testing.T) {
	var p Properties
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))

	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Zero(t, p.Len())
}

func TestPropertiesClone(t *testing.T) {
	p := NewProperties("a", 1, "b", "two")
	c := p.Clone()
	c.Set("c", true)
	c.Set("a", 9)

	if p.Len() != 2 {
		t.Errorf("original Len = %d, want 2", p.Len())
	}
	if v, _ := p.Get("a"); v != 1 {
		t.Errorf("original a = %v, want 1", v)
	}
	if got := c.Keys(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("clone keys = %v", got)
	}
}
