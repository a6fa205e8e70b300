package rank

import (
	"context"
	"math"

	"ekb/internal/model"
	"ekb/internal/token"
)

// tfidfWeight converts the cosine range [0,1] into the combined-score
// scale so a strong semantic match can outweigh a few token overlaps.
const tfidfWeight = 5.0

type tfidfDoc struct {
	nodeID  string
	project string
	vec     map[string]float64
	norm    float64
}

// TFIDFScorer is the in-memory semantic backend. It indexes the text
// excerpts as TF-IDF vectors at construction and scores questions by
// cosine similarity, keeping the best excerpt per node.
type TFIDFScorer struct {
	docs []tfidfDoc
	idf  map[string]float64
}

// NewTFIDFScorer indexes the excerpt corpus.
func NewTFIDFScorer(excerpts []model.TextExcerpt) *TFIDFScorer {
	s := &TFIDFScorer{idf: map[string]float64{}}

	termCounts := make([]map[string]float64, len(excerpts))
	df := map[string]int{}
	for i, ex := range excerpts {
		counts := map[string]float64{}
		for tok := range token.Tokenize(ex.Text) {
			counts[tok]++
		}
		termCounts[i] = counts
		for tok := range counts {
			df[tok]++
		}
	}

	n := float64(len(excerpts))
	for tok, d := range df {
		s.idf[tok] = math.Log((1+n)/(1+float64(d))) + 1
	}

	for i, ex := range excerpts {
		vec := map[string]float64{}
		var sumSq float64
		for tok, tf := range termCounts[i] {
			w := tf * s.idf[tok]
			vec[tok] = w
			sumSq += w * w
		}
		s.docs = append(s.docs, tfidfDoc{
			nodeID:  ex.NodeID,
			project: ex.Project,
			vec:     vec,
			norm:    math.Sqrt(sumSq),
		})
	}
	return s
}

func (s *TFIDFScorer) Name() string { return "vector_tfidf_cosine" }

func (s *TFIDFScorer) Weight() float64 { return tfidfWeight }

// Score computes the best cosine similarity per node. Excerpts tagged
// with a different project are skipped when a scope is set; untagged
// excerpts are visible in every scope.
func (s *TFIDFScorer) Score(_ context.Context, question, scope string) (map[string]float64, error) {
	qVec := map[string]float64{}
	var qSumSq float64
	for tok := range token.Tokenize(question) {
		idf, ok := s.idf[tok]
		if !ok {
			continue
		}
		qVec[tok] = idf
		qSumSq += idf * idf
	}
	if len(qVec) == 0 {
		return map[string]float64{}, nil
	}
	qNorm := math.Sqrt(qSumSq)

	best := map[string]float64{}
	for _, doc := range s.docs {
		if scope != "" && doc.project != "" && doc.project != scope {
			continue
		}
		if doc.norm == 0 {
			continue
		}
		var dot float64
		for tok, qw := range qVec {
			if dw, ok := doc.vec[tok]; ok {
				dot += qw * dw
			}
		}
		if dot == 0 {
			continue
		}
		sim := dot / (qNorm * doc.norm)
		if sim > best[doc.nodeID] {
			best[doc.nodeID] = sim
		}
	}
	return best, nil
}
