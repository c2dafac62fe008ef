package store

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/lazypower/synapse/internal/graph"
)

func TestReplaceClusters(t *testing.T) {
	db := testDB(t)

	first := []graph.Cluster{
		{ID: 0, Theme: "concept_cluster", Members: []string{"a", "b", "c"}, Coherence: 0.6, CreatedAt: now()},
		{ID: 1, Theme: "concept_person_cluster", Members: []string{"d", "e"}, Coherence: 0.8, CreatedAt: now()},
	}
	if err := db.ReplaceClusters(first); err != nil {
		t.Fatalf("ReplaceClusters: %v", err)
	}
	got, err := db.ListClusters()
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Errorf("clusters = %+v, want %+v", got, first)
	}

	second := first[:1]
	if err := db.ReplaceClusters(second); err != nil {
		t.Fatalf("ReplaceClusters: %v", err)
	}
	got, _ = db.ListClusters()
	if len(got) != 1 {
		t.Errorf("len = %d, want 1 after replace", len(got))
	}

	if err := db.ReplaceClusters(nil); err != nil {
		t.Fatalf("ReplaceClusters nil: %v", err)
	}
	got, _ = db.ListClusters()
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestInferenceOps(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 3; i++ {
		op := &InferenceOp{
			OperationType: "transitive",
			SourceData:    json.RawMessage(`{"a":"A","b":"B","c":"C"}`),
			ResultData:    json.RawMessage(`{"edge":"A_C_inferred"}`),
			Confidence:    0.35,
			CreatedAt:     now(),
		}
		if err := db.AddInferenceOp(op); err != nil {
			t.Fatalf("AddInferenceOp: %v", err)
		}
	}

	ops, err := db.RecentInferenceOps(2)
	if err != nil {
		t.Fatalf("RecentInferenceOps: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len = %d, want 2", len(ops))
	}
	if ops[0].ID <= ops[1].ID {
		t.Errorf("expected newest first, got ids %d, %d", ops[0].ID, ops[1].ID)
	}
	if string(ops[0].ResultData) != `{"edge":"A_C_inferred"}` {
		t.Errorf("ResultData = %s", ops[0].ResultData)
	}
}

func TestUsageSummary(t *testing.T) {
	db := testDB(t)

	rows := []APIUsage{
		{Provider: "openai", Operation: "embed", TokensUsed: 10, ResponseTimeMs: 100, Success: true, CreatedAt: now()},
		{Provider: "openai", Operation: "embed", ResponseTimeMs: 300, Success: false, ErrorDetails: "timeout", CreatedAt: now()},
		{Provider: "fallback", Operation: "embed", Success: true, CreatedAt: now()},
	}
	for i := range rows {
		if err := db.RecordUsage(&rows[i]); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	all, err := db.ListUsage()
	if err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
	if len(all) != 3 || all[1].ErrorDetails != "timeout" || all[1].Success {
		t.Errorf("usage rows = %+v", all)
	}

	sum, err := db.SummarizeUsage()
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if len(sum) != 2 {
		t.Fatalf("len = %d, want 2", len(sum))
	}
	oa := sum[1]
	if oa.Provider != "openai" || oa.Calls != 2 || oa.Failures != 1 || oa.Tokens != 10 || oa.AvgResponseMs != 200 {
		t.Errorf("openai summary = %+v", oa)
	}
}
