package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/lazypower/synapse/internal/graph"
)

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func sampleNode(id string) graph.Node {
	t := now()
	return graph.Node{
		ID:           id,
		Type:         "concept",
		Properties:   graph.NewProperties("name", id, "domain", "ai"),
		Embedding:    []float32{0.25, -0.5, 0.125},
		Weight:       0.75,
		CreatedAt:    t,
		LastAccessed: t,
	}
}

func TestUpsertNodeRoundTrip(t *testing.T) {
	db := testDB(t)

	n := sampleNode("a")
	if err := db.UpsertNode(&n); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	got, err := db.GetNode("a")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got == nil {
		t.Fatal("GetNode returned nil")
	}
	if !reflect.DeepEqual(*got, n) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, n)
	}
}

func TestGetNodeMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetNode("nope")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpsertNodeReplacesInPlace(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"a", "b", "c"} {
		n := sampleNode(id)
		if err := db.UpsertNode(&n); err != nil {
			t.Fatalf("UpsertNode %s: %v", id, err)
		}
	}

	b := sampleNode("b")
	b.Type = "person"
	b.Weight = 0.4
	if err := db.UpsertNode(&b); err != nil {
		t.Fatalf("UpsertNode replace: %v", err)
	}

	nodes, err := db.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("len = %d, want 3", len(nodes))
	}
	if nodes[1].ID != "b" || nodes[1].Type != "person" || nodes[1].Weight != 0.4 {
		t.Errorf("nodes[1] = %+v, want replaced b in original position", nodes[1])
	}
}

func TestNodeWithoutEmbedding(t *testing.T) {
	db := testDB(t)

	n := sampleNode("a")
	n.Embedding = nil
	n.Properties = graph.Properties{}
	if err := db.UpsertNode(&n); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	got, _ := db.GetNode("a")
	if got.Embedding != nil {
		t.Errorf("Embedding = %v, want nil", got.Embedding)
	}
	if got.Properties.Len() != 0 {
		t.Errorf("Properties len = %d, want 0", got.Properties.Len())
	}
}

func TestEdgeUpsertAndDelete(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"a", "b"} {
		n := sampleNode(id)
		db.UpsertNode(&n)
	}

	e := graph.Edge{ID: "a_b", From: "a", To: "b", Type: "relates", Strength: 0.5, CreatedAt: now()}
	if err := db.UpsertEdge(&e); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	e.Strength = 0.9
	e.TraversalCount = 3
	if err := db.UpsertEdge(&e); err != nil {
		t.Fatalf("UpsertEdge update: %v", err)
	}

	edges, err := db.ListEdges()
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("len = %d, want 1", len(edges))
	}
	if !reflect.DeepEqual(edges[0], e) {
		t.Errorf("edge = %+v, want %+v", edges[0], e)
	}

	if err := db.DeleteEdge("a_b"); err != nil {
		t.Fatalf("DeleteEdge: %v", err)
	}
	if err := db.DeleteEdge("a_b"); err != nil {
		t.Fatalf("DeleteEdge missing: %v", err)
	}
	edges, _ = db.ListEdges()
	if len(edges) != 0 {
		t.Errorf("len after delete = %d, want 0", len(edges))
	}
}

func TestApplyBatchIsAtomic(t *testing.T) {
	db := testDB(t)

	a := sampleNode("a")
	batch := []Mutation{
		NodeUpsert{Node: a},
		// endpoint "ghost" does not exist, so the foreign key fails
		EdgeUpsert{Edge: graph.Edge{ID: "a_ghost", From: "a", To: "ghost", Type: "t", Strength: 0.5, CreatedAt: now()}},
	}
	if err := db.Apply(batch); err == nil {
		t.Fatal("expected batch failure")
	}

	nodes, _ := db.ListNodes()
	if len(nodes) != 0 {
		t.Errorf("nodes = %d, want 0 after rolled back batch", len(nodes))
	}

	if err := db.ApplyOne(batch[0]); err != nil {
		t.Fatalf("ApplyOne: %v", err)
	}
	nodes, _ = db.ListNodes()
	if len(nodes) != 1 {
		t.Errorf("nodes = %d, want 1", len(nodes))
	}
}

func TestNodeTouch(t *testing.T) {
	db := testDB(t)

	n := sampleNode("a")
	db.UpsertNode(&n)

	later := n.LastAccessed.Add(time.Minute)
	if err := db.Apply([]Mutation{NodeTouch{ID: "a", At: later}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := db.GetNode("a")
	if !got.LastAccessed.Equal(later) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, later)
	}
}

func TestMutationTables(t *testing.T) {
	tests := []struct {
		m    Mutation
		want string
	}{
		{NodeUpsert{}, "graph_nodes"},
		{NodeTouch{}, "graph_nodes"},
		{EdgeUpsert{}, "graph_edges"},
		{EdgeDelete{}, "graph_edges"},
		{ClusterReplace{}, "knowledge_clusters"},
		{InferenceRecord{}, "inference_operations"},
		{UsageRecord{}, "api_usage_metrics"},
	}
	for _, tt := range tests {
		if got := tt.m.Table(); got != tt.want {
			t.Errorf("%T.Table() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestCountRows(t *testing.T) {
	db := testDB(t)
	n := sampleNode("a")
	db.UpsertNode(&n)

	counts, err := db.CountRows()
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if counts["graph_nodes"] != 1 || counts["graph_edges"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}
