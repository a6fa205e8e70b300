package storage

import (
	"context"
	"path/filepath"
	"testing"

	"ekb/internal/logging"
	"ekb/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kb.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Graph: model.Graph{
			Nodes: []model.Node{
				{ID: "R1", Type: model.NodeRequirement, Project: "PROJECT-A", Name: "dma transfer", Confidence: model.ConfidenceHigh,
					Attributes: map[string]any{"level": "L0"}},
				{ID: "C1", Type: model.NodeComponent, Project: "PROJECT-A", Name: "dma_engine", Confidence: model.ConfidenceMedium},
				{ID: "K1", Type: model.NodeConstraint, Project: "PROJECT-B", Name: "pin map", Confidence: model.ConfidenceHigh},
			},
			Edges: []model.Edge{
				{ID: "E1", Type: model.EdgeImplements, Source: "C1", Target: "R1", Confidence: model.ConfidenceHigh},
			},
		},
		Excerpts: []model.TextExcerpt{
			{ID: "V:1", NodeID: "R1", Project: "PROJECT-A", Text: "dma transfer requirement for burst mode", Confidence: model.ConfidenceHigh},
			{ID: "V:2", NodeID: "R1", Project: "PROJECT-A", Text: "continuation of the requirement text", Confidence: model.ConfidenceHigh},
			{ID: "V:3", NodeID: "K1", Project: "PROJECT-B", Text: "led pin assignment constraints package_pin", Confidence: model.ConfidenceHigh},
		},
	}
}

func loadedStore(t *testing.T) *Store {
	t.Helper()
	db := openTestDB(t)
	if err := ReplaceSnapshot(db, testSnapshot()); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
	store, err := OpenStore(db)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return store
}

func TestOpenInitializesSchema(t *testing.T) {
	db := openTestDB(t)

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestReplaceSnapshotAndLoad(t *testing.T) {
	store := loadedStore(t)

	if len(store.AllNodes()) != 3 {
		t.Errorf("nodes = %d, want 3", len(store.AllNodes()))
	}
	if len(store.AllEdges()) != 1 {
		t.Errorf("edges = %d, want 1", len(store.AllEdges()))
	}

	n, ok := store.Node("R1")
	if !ok {
		t.Fatal("R1 missing")
	}
	if n.AttrString("level") != "L0" {
		t.Errorf("attributes did not round-trip: %v", n.Attributes)
	}

	edges := store.EdgesTouching("R1")
	if len(edges) != 1 || edges[0].ID != "E1" {
		t.Errorf("EdgesTouching(R1) = %v", edges)
	}
}

func TestReplaceSnapshotIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	snap := testSnapshot()

	if err := ReplaceSnapshot(db, snap); err != nil {
		t.Fatalf("first ReplaceSnapshot: %v", err)
	}
	if err := ReplaceSnapshot(db, snap); err != nil {
		t.Fatalf("second ReplaceSnapshot: %v", err)
	}

	store, err := OpenStore(db)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if len(store.AllNodes()) != 3 {
		t.Errorf("reload should fully replace, got %d nodes", len(store.AllNodes()))
	}
}

func TestExcerptTextIsFirstSegment(t *testing.T) {
	store := loadedStore(t)

	if got := store.ExcerptText("R1"); got != "dma transfer requirement for burst mode" {
		t.Errorf("ExcerptText(R1) = %q", got)
	}
	if got := store.ExcerptText("C1"); got != "" {
		t.Errorf("node without excerpts should return empty, got %q", got)
	}
}

func TestFTSScore(t *testing.T) {
	store := loadedStore(t)

	scores, err := store.Scorer().Score(context.Background(), "led pin atama", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores["K1"] <= 0 {
		t.Errorf("K1 should match, got %v", scores)
	}
	if _, ok := scores["C1"]; ok {
		t.Error("C1 has no excerpts and should not match")
	}
	if scores["K1"] > 2.0 {
		t.Errorf("score above ramp ceiling: %v", scores["K1"])
	}
}

func TestFTSScoreScoped(t *testing.T) {
	store := loadedStore(t)

	scores, err := store.Scorer().Score(context.Background(), "dma transfer pin", "PROJECT-A")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if _, ok := scores["K1"]; ok {
		t.Error("PROJECT-B excerpt should be filtered in PROJECT-A scope")
	}
	if scores["R1"] <= 0 {
		t.Errorf("R1 should match in its own scope, got %v", scores)
	}
}

func TestFTSScoreEmptyQuestion(t *testing.T) {
	store := loadedStore(t)

	scores, err := store.Scorer().Score(context.Background(), "?!", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("unusable question should score nothing, got %v", scores)
	}
}

func TestBuildMatchQuery(t *testing.T) {
	got := buildMatchQuery("led pin")
	if got != `"led"* OR "pin"*` {
		t.Errorf("buildMatchQuery = %q", got)
	}
	if buildMatchQuery("!?") != "" {
		t.Error("no tokens should produce empty match query")
	}
}

func TestFTSScoreCandidateLimit(t *testing.T) {
	store := loadedStore(t)

	scorer := store.Scorer().(*FTSScorer)
	scorer.SetCandidateLimit(1)

	scores, err := scorer.Score(context.Background(), "dma pin", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("limit 1 should admit a single node, got %v", scores)
	}

	scorer.SetCandidateLimit(0)
	scores, err = scorer.Score(context.Background(), "dma pin", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("non-positive limit should keep the previous one, got %v", scores)
	}
}
