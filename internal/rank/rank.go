// Package rank orders graph nodes by relevance to a question. The
// combined score mixes exact token overlap with a semantic score from a
// pluggable backend, so both storage realizations rank through the same
// code path.
package rank

import (
	"context"
	"sort"

	"ekb/internal/token"
)

// NodeTokens pairs a node ID with the tokens of its flattened text.
type NodeTokens struct {
	ID     string
	Tokens token.Set
}

// Candidate is a ranked node.
type Candidate struct {
	ID       string  `json:"id"`
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Combined float64 `json:"combined"`
}

// SemanticScorer produces a raw relevance score per node for a question.
// Implementations decide their own score range; Weight converts the raw
// range into the combined-score scale.
type SemanticScorer interface {
	// Name identifies the backend in debug output, e.g. "vector_tfidf_cosine".
	Name() string
	// Weight is the multiplier applied to raw scores when combining.
	Weight() float64
	// Score returns the best raw score per node ID. Nodes absent from
	// the map scored zero. A non-empty scope restricts the corpus.
	Score(ctx context.Context, question, scope string) (map[string]float64, error)
}

// Ranker combines lexical overlap with a semantic backend.
type Ranker struct {
	scorer SemanticScorer
	// floor is the minimum raw semantic score that keeps a candidate
	// with zero lexical overlap alive.
	floor float64
	limit int
}

// NewRanker builds a ranker. A floor of 0.05 and limit of 12 match the
// engine defaults.
func NewRanker(scorer SemanticScorer, floor float64, limit int) *Ranker {
	if limit <= 0 {
		limit = 12
	}
	return &Ranker{scorer: scorer, floor: floor, limit: limit}
}

// ScorerName exposes the semantic backend name for debug output.
func (r *Ranker) ScorerName() string {
	return r.scorer.Name()
}

// Rank scores every candidate node against the question and returns
// the strongest ones, best first. Candidates with no lexical overlap
// and a semantic score under the floor are dropped entirely.
func (r *Ranker) Rank(ctx context.Context, question, scope string, nodes []NodeTokens) ([]Candidate, error) {
	qTokens := token.Tokenize(question)

	semantic, err := r.scorer.Score(ctx, question, scope)
	if err != nil {
		return nil, err
	}

	weight := r.scorer.Weight()
	candidates := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		lex := float64(qTokens.OverlapCount(n.Tokens))
		raw := semantic[n.ID]
		if lex <= 0 && raw < r.floor {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:       n.ID,
			Lexical:  lex,
			Semantic: raw,
			Combined: lex + weight*raw,
		})
	}

	// Ties break on ID, descending, so equal scores order deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Combined != candidates[j].Combined {
			return candidates[i].Combined > candidates[j].Combined
		}
		return candidates[i].ID > candidates[j].ID
	})

	if len(candidates) > r.limit {
		candidates = candidates[:r.limit]
	}
	return candidates, nil
}

// TopScore returns the best combined score, or 0 for an empty ranking.
func TopScore(candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].Combined
}
