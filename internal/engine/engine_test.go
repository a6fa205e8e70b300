package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"ekb/internal/answer"
	"ekb/internal/classify"
	"ekb/internal/config"
	ekberrors "ekb/internal/errors"
	"ekb/internal/kb"
	"ekb/internal/logging"
	"ekb/internal/model"
	"ekb/internal/rank"
	"ekb/internal/storage"
)

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Graph: model.Graph{
			Nodes: []model.Node{
				{
					ID: "STAGE3:DMA-REQ-L0-001", Type: model.NodeRequirement, Project: "PROJECT-A",
					Name: "DMA aktarım gereksinimi", Confidence: model.ConfidenceHigh,
				},
				{
					ID: "STAGE3:DMA-REQ-L1-001", Type: model.NodeRequirement, Project: "PROJECT-A",
					Name: "descriptor halkası gereksinimi", Confidence: model.ConfidenceHigh,
				},
				{
					ID: "STAGE3:DMA-DEC-001", Type: model.NodeDecision, Project: "PROJECT-A",
					Name: "scatter-gather kararı", Confidence: model.ConfidenceMedium,
				},
				{
					ID: "STAGE3:DMA-COMP-ENGINE", Type: model.NodeComponent, Project: "PROJECT-A",
					Name: "dma_engine", Confidence: model.ConfidenceHigh,
				},
				{
					ID: "STAGE3:DMA-PAT-001", Type: model.NodePattern, Project: "PROJECT-A",
					Name: "dma handshake pattern", Confidence: model.ConfidenceHigh,
				},
				{
					ID: "STAGE3:AXI-PAT-001", Type: model.NodePattern, Project: "PROJECT-B",
					Name: "axi handshake pattern", Confidence: model.ConfidenceHigh,
				},
			},
			Edges: []model.Edge{
				{
					ID: "E-DEC", Type: model.EdgeDecomposesTo,
					Source: "STAGE3:DMA-REQ-L0-001", Target: "STAGE3:DMA-REQ-L1-001",
					Confidence: model.ConfidenceHigh,
				},
				{
					ID: "E-IMPL", Type: model.EdgeImplements,
					Source: "STAGE3:DMA-COMP-ENGINE", Target: "STAGE3:DMA-REQ-L1-001",
					Confidence: model.ConfidenceHigh,
				},
				{
					ID: "E-MOT", Type: model.EdgeMotivatedBy,
					Source: "STAGE3:DMA-DEC-001", Target: "STAGE3:DMA-REQ-L0-001",
					Confidence: model.ConfidenceHigh,
				},
				{
					ID: "E-ANA", Type: model.EdgeAnalogousTo,
					Source: "STAGE3:DMA-PAT-001", Target: "STAGE3:AXI-PAT-001",
					Confidence: model.ConfidenceMedium,
				},
			},
		},
		Excerpts: []model.TextExcerpt{
			{
				ID: "V:1", NodeID: "STAGE3:DMA-REQ-L0-001", Project: "PROJECT-A",
				Text: "DMA motoru en az 64 MB/s sürdürülebilir aktarım sağlamalı.",
			},
		},
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	store := kb.NewMemoryStore(testSnapshot())
	return New(store, nil, config.DefaultConfig().Query, logging.NewNop())
}

func TestQueryEmptyQuestion(t *testing.T) {
	e := testEngine(t)
	_, err := e.Query(context.Background(), "   ")
	if err == nil {
		t.Fatal("empty question must error")
	}
	if code := ekberrors.CodeOf(err); code != ekberrors.MalformedInput {
		t.Errorf("want MALFORMED_INPUT, got %s", code)
	}
}

func TestQueryWhatScoped(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "dma_engine bileşeni nedir?")
	if err != nil {
		t.Fatal(err)
	}

	if res.QueryType != classify.QueryWhat {
		t.Errorf("want WHAT, got %s", res.QueryType)
	}
	if res.Debug.Scope != "PROJECT-A" {
		t.Errorf("dma marker should scope to PROJECT-A, got %q", res.Debug.Scope)
	}
	if !strings.HasPrefix(res.Answer, "Soru tipi: WHAT. Kapsam: PROJECT-A.") {
		t.Errorf("unexpected answer: %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "IMPLEMENTS:STAGE3:DMA-COMP-ENGINE->STAGE3:DMA-REQ-L1-001") {
		t.Errorf("one-hop implements edge missing from answer: %q", res.Answer)
	}
	want := []string{"graph", "vector_tfidf_cosine"}
	if len(res.Debug.StoresQueried) != 2 || res.Debug.StoresQueried[0] != want[0] || res.Debug.StoresQueried[1] != want[1] {
		t.Errorf("stores_queried = %v, want %v", res.Debug.StoresQueried, want)
	}
	for _, c := range res.Citations.Nodes {
		if c.NodeID == "STAGE3:AXI-PAT-001" {
			t.Error("scoped WHAT leaked a PROJECT-B node into citations")
		}
	}
}

func TestQueryTrace(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "dma gereksinim kırılımını trace et")
	if err != nil {
		t.Fatal(err)
	}

	if res.QueryType != classify.QueryTrace {
		t.Fatalf("want TRACE, got %s", res.QueryType)
	}
	wantHop := "STAGE3:DMA-REQ-L0-001 -DECOMPOSES_TO-> STAGE3:DMA-REQ-L1-001"
	found := false
	for _, hop := range res.Debug.TraversalPath {
		if hop == wantHop {
			found = true
		}
	}
	if !found {
		t.Errorf("traversal path missing %q: %v", wantHop, res.Debug.TraversalPath)
	}
	// Support edges of traced requirements ride along.
	hasImpl := false
	for _, c := range res.Citations.Edges {
		if c.EdgeID == "E-IMPL" {
			hasImpl = true
		}
	}
	if !hasImpl {
		t.Errorf("implements edge should back the trace: %+v", res.Citations.Edges)
	}
}

func TestQueryWhy(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "scatter-gather kararı neden alındı?")
	if err != nil {
		t.Fatal(err)
	}

	if res.QueryType != classify.QueryWhy {
		t.Fatalf("want WHY, got %s", res.QueryType)
	}
	hasMotivation := false
	for _, c := range res.Citations.Edges {
		if c.EdgeType == model.EdgeMotivatedBy {
			hasMotivation = true
		}
	}
	if !hasMotivation {
		t.Errorf("rationale edge missing: %+v", res.Citations.Edges)
	}
	// The MEDIUM decision node drags the chain below HIGH.
	if res.ChainConfidence != model.ConfidenceMedium {
		t.Errorf("want MEDIUM chain, got %s", res.ChainConfidence)
	}
	hasWarning := false
	for _, w := range res.Warnings {
		if w == "LOW_CHAIN_CONFIDENCE:MEDIUM" {
			hasWarning = true
		}
	}
	if !hasWarning {
		t.Errorf("missing low-chain warning: %v", res.Warnings)
	}
}

func TestQueryCrossref(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "benzer pattern hangi projede kullanılıyor?")
	if err != nil {
		t.Fatal(err)
	}

	if res.QueryType != classify.QueryCrossref {
		t.Fatalf("want CROSSREF, got %s", res.QueryType)
	}
	hasBridge := false
	for _, c := range res.Citations.Edges {
		if c.EdgeType == model.EdgeAnalogousTo {
			hasBridge = true
		}
	}
	if !hasBridge {
		t.Errorf("bridge edge missing: %+v", res.Citations.Edges)
	}
}

func TestQueryRefused(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "kuantum bilgisayar mimarisi hakkında bilgi ver")
	if err != nil {
		t.Fatal(err)
	}

	if res.Answer != answer.NotFound {
		t.Errorf("want refusal answer, got %q", res.Answer)
	}
	if len(res.Citations.Nodes) != 0 || len(res.Citations.Edges) != 0 {
		t.Errorf("refused query must carry no citations: %+v", res.Citations)
	}
	if res.ChainConfidence != model.ConfidenceMedium {
		t.Errorf("refusal forces MEDIUM chain, got %s", res.ChainConfidence)
	}
	hasGateWarning := false
	for _, w := range res.Warnings {
		if w == "NO_EVIDENCE_GATE_TRIGGERED" {
			hasGateWarning = true
		}
	}
	if !hasGateWarning {
		t.Errorf("missing gate warning: %v", res.Warnings)
	}
}

func TestQueryExplicitIDAnchors(t *testing.T) {
	e := testEngine(t)
	res, err := e.Query(context.Background(), "DMA-REQ-L0-001 gereksinimi nedir?")
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, id := range res.Debug.AnchorIDs {
		if id == "STAGE3:DMA-REQ-L0-001" {
			found = true
		}
	}
	if !found {
		t.Errorf("explicit reference should anchor the query: %v", res.Debug.AnchorIDs)
	}
}

type staticSynth struct{ text string }

func (s staticSynth) Rewrite(_ context.Context, _ string, _ *Result) (string, error) {
	return s.text, nil
}

func TestQuerySynthesizerRewrite(t *testing.T) {
	e := testEngine(t).WithSynthesizer(staticSynth{text: "sentezlenmiş cevap"})
	res, err := e.Query(context.Background(), "dma_engine bileşeni nedir?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "sentezlenmiş cevap" {
		t.Errorf("synthesizer should rewrite the answer, got %q", res.Answer)
	}
}

func TestQuerySynthesizerNeverTouchesRefusal(t *testing.T) {
	e := testEngine(t).WithSynthesizer(staticSynth{text: "sentezlenmiş cevap"})
	res, err := e.Query(context.Background(), "kuantum bilgisayar mimarisi hakkında bilgi ver")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != answer.NotFound {
		t.Errorf("refused answers must not be rewritten, got %q", res.Answer)
	}
}

// Both storage realizations must answer identically for the same
// snapshot and question.
func TestBackendParity(t *testing.T) {
	snap := testSnapshot()
	memEngine := New(kb.NewMemoryStore(snap), nil, config.DefaultConfig().Query, logging.NewNop())

	db, err := storage.Open(filepath.Join(t.TempDir(), "kb.db"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.ReplaceSnapshot(db, snap); err != nil {
		t.Fatal(err)
	}
	sqlStore, err := storage.OpenStore(db)
	if err != nil {
		t.Fatal(err)
	}
	defer sqlStore.Close()
	sqlEngine := New(sqlStore, nil, config.DefaultConfig().Query, logging.NewNop())

	question := "dma_engine bileşeni nedir?"
	memRes, err := memEngine.Query(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}
	sqlRes, err := sqlEngine.Query(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}

	if memRes.Answer != sqlRes.Answer {
		t.Errorf("backends disagree:\nmemory: %q\nsqlite: %q", memRes.Answer, sqlRes.Answer)
	}
	if memRes.QueryType != sqlRes.QueryType {
		t.Errorf("query types disagree: %s vs %s", memRes.QueryType, sqlRes.QueryType)
	}
	if sqlRes.Debug.StoresQueried[1] != "vector_fts_bm25:excerpts" {
		t.Errorf("sqlite store name wrong: %v", sqlRes.Debug.StoresQueried)
	}
}

func TestGateThresholdConfigurable(t *testing.T) {
	store := kb.NewMemoryStore(testSnapshot())
	question := "dma_engine bileşeni nedir?"

	strict := config.DefaultConfig().Query
	strict.MinScoreThreshold = 50
	refusing := New(store, nil, strict, logging.NewNop())
	res, err := refusing.Query(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != answer.NotFound {
		t.Fatalf("raised threshold should refuse, got %q", res.Answer)
	}

	relaxed := New(store, nil, config.DefaultConfig().Query, logging.NewNop())
	res, err = relaxed.Query(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer == answer.NotFound {
		t.Fatal("default threshold should answer")
	}
}

type limitRecordingScorer struct {
	limit int
}

func (s *limitRecordingScorer) Name() string    { return "vector_tfidf_cosine" }
func (s *limitRecordingScorer) Weight() float64 { return 1.0 }
func (s *limitRecordingScorer) Score(ctx context.Context, question, scope string) (map[string]float64, error) {
	return map[string]float64{}, nil
}
func (s *limitRecordingScorer) SetCandidateLimit(n int) { s.limit = n }

type scorerOverrideStore struct {
	*kb.MemoryStore
	scorer rank.SemanticScorer
}

func (s *scorerOverrideStore) Scorer() rank.SemanticScorer { return s.scorer }

func TestCandidateLimitThreadsToScorer(t *testing.T) {
	scorer := &limitRecordingScorer{}
	store := &scorerOverrideStore{
		MemoryStore: kb.NewMemoryStore(testSnapshot()),
		scorer:      scorer,
	}

	qcfg := config.DefaultConfig().Query
	qcfg.CandidateLimit = 7
	New(store, nil, qcfg, logging.NewNop())

	if scorer.limit != 7 {
		t.Errorf("candidate limit should reach the scorer, got %d", scorer.limit)
	}
}
