package rank

import (
	"context"
	"testing"

	"ekb/internal/model"
	"ekb/internal/token"
)

type fakeScorer struct {
	scores map[string]float64
	weight float64
	err    error
}

func (f *fakeScorer) Name() string    { return "fake" }
func (f *fakeScorer) Weight() float64 { return f.weight }
func (f *fakeScorer) Score(context.Context, string, string) (map[string]float64, error) {
	return f.scores, f.err
}

func nodeTokens(id, text string) NodeTokens {
	return NodeTokens{ID: id, Tokens: token.Tokenize(text)}
}

func TestRankCombinesLexicalAndSemantic(t *testing.T) {
	scorer := &fakeScorer{weight: 5.0, scores: map[string]float64{"N2": 0.6}}
	r := NewRanker(scorer, 0.05, 12)

	nodes := []NodeTokens{
		nodeTokens("N1", "dma engine burst transfer"),
		nodeTokens("N2", "interrupt controller"),
	}

	got, err := r.Rank(context.Background(), "dma transfer nasıl", "", nodes)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// N2: 0 lexical + 5*0.6 = 3.0 beats N1: 2 lexical.
	if got[0].ID != "N2" || got[0].Combined != 3.0 {
		t.Errorf("top = %+v, want N2 with 3.0", got[0])
	}
	if got[1].ID != "N1" || got[1].Lexical != 2 {
		t.Errorf("second = %+v, want N1 with lexical 2", got[1])
	}
}

func TestRankExclusionFloor(t *testing.T) {
	scorer := &fakeScorer{weight: 5.0, scores: map[string]float64{
		"WEAK":   0.04, // under the floor, no lexical: dropped
		"BORDER": 0.05, // at the floor: kept
	}}
	r := NewRanker(scorer, 0.05, 12)

	nodes := []NodeTokens{
		nodeTokens("WEAK", "tamamen alakasız"),
		nodeTokens("BORDER", "yine alakasız"),
		nodeTokens("LEX", "dma kanalı"),
	}

	got, err := r.Rank(context.Background(), "dma", "", nodes)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range got {
		ids[c.ID] = true
	}
	if ids["WEAK"] {
		t.Error("WEAK should be excluded")
	}
	if !ids["BORDER"] {
		t.Error("BORDER should survive at the floor")
	}
	if !ids["LEX"] {
		t.Error("LEX should survive on lexical overlap alone")
	}
}

func TestRankDeterministicTieBreak(t *testing.T) {
	scorer := &fakeScorer{weight: 1.0}
	r := NewRanker(scorer, 0.05, 12)

	nodes := []NodeTokens{
		nodeTokens("A", "dma"),
		nodeTokens("B", "dma"),
	}

	got, err := r.Rank(context.Background(), "dma", "", nodes)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got[0].ID != "B" || got[1].ID != "A" {
		t.Errorf("equal scores should order by ID descending, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestRankLimit(t *testing.T) {
	scorer := &fakeScorer{weight: 1.0}
	r := NewRanker(scorer, 0.05, 2)

	nodes := []NodeTokens{
		nodeTokens("A", "dma x"),
		nodeTokens("B", "dma y"),
		nodeTokens("C", "dma z"),
	}

	got, err := r.Rank(context.Background(), "dma", "", nodes)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestTopScore(t *testing.T) {
	if TopScore(nil) != 0 {
		t.Error("empty ranking should score 0")
	}
	if TopScore([]Candidate{{Combined: 1.5}, {Combined: 0.5}}) != 1.5 {
		t.Error("TopScore should return the first candidate's score")
	}
}

func excerpt(id, nodeID, project, text string) model.TextExcerpt {
	return model.TextExcerpt{ID: id, NodeID: nodeID, Project: project, Text: text}
}

func TestTFIDFScorerRelevance(t *testing.T) {
	s := NewTFIDFScorer([]model.TextExcerpt{
		excerpt("V:1", "N1", "", "dma controller burst transfer engine with descriptor rings"),
		excerpt("V:2", "N2", "", "led pin assignment package_pin constraints for the board"),
		excerpt("V:3", "N2", "", "xdc constraint file listing led pins"),
	})

	scores, err := s.Score(context.Background(), "led pin atama", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores["N2"] <= scores["N1"] {
		t.Errorf("N2 should outscore N1: %v", scores)
	}
	if scores["N2"] <= 0 || scores["N2"] > 1 {
		t.Errorf("cosine out of range: %v", scores["N2"])
	}
}

func TestTFIDFScorerScope(t *testing.T) {
	s := NewTFIDFScorer([]model.TextExcerpt{
		excerpt("V:1", "NA", "PROJECT-A", "dma burst transfer"),
		excerpt("V:2", "NB", "PROJECT-B", "dma burst transfer"),
		excerpt("V:3", "NG", "", "dma burst transfer"),
	})

	scores, err := s.Score(context.Background(), "dma burst", "PROJECT-A")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if _, ok := scores["NB"]; ok {
		t.Error("PROJECT-B excerpt should be filtered out of PROJECT-A scope")
	}
	if _, ok := scores["NA"]; !ok {
		t.Error("PROJECT-A excerpt should be scored")
	}
	if _, ok := scores["NG"]; !ok {
		t.Error("untagged excerpt should be visible in every scope")
	}
}

func TestTFIDFScorerUnknownQuery(t *testing.T) {
	s := NewTFIDFScorer([]model.TextExcerpt{
		excerpt("V:1", "N1", "", "dma burst transfer"),
	})

	scores, err := s.Score(context.Background(), "qqqq zzzz", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("out-of-vocabulary question should score nothing, got %v", scores)
	}
}
