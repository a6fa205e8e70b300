package storage

import (
	"context"
	"fmt"
	"strings"

	"ekb/internal/token"
)

const (
	// ftsCandidateLimit bounds how many FTS rows feed the ranker.
	ftsCandidateLimit = 36
	// ftsQueryTokenLimit bounds the OR-expanded match expression.
	ftsQueryTokenLimit = 12
)

// FTSScorer is the SQLite semantic backend. bm25 row order converts to
// a per-node score on a fixed 2.0 down-ramp so rank positions, not raw
// bm25 magnitudes, drive the combined score.
type FTSScorer struct {
	db    *DB
	limit int
}

// NewFTSScorer binds a scorer to an open database.
func NewFTSScorer(db *DB) *FTSScorer {
	return &FTSScorer{db: db, limit: ftsCandidateLimit}
}

// SetCandidateLimit overrides how many FTS rows feed the ranker.
// Non-positive values keep the current limit.
func (s *FTSScorer) SetCandidateLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

func (s *FTSScorer) Name() string { return "vector_fts_bm25:excerpts" }

func (s *FTSScorer) Weight() float64 { return 1.0 }

// Score runs a prefix match over the excerpt index and keeps the best
// position-derived score per node.
func (s *FTSScorer) Score(ctx context.Context, question, scope string) (map[string]float64, error) {
	match := buildMatchQuery(question)
	if match == "" {
		return map[string]float64{}, nil
	}

	query := `
		SELECT node_id FROM excerpt_fts
		WHERE excerpt_fts MATCH ?
	`
	args := []any{match}
	if scope != "" {
		query += " AND (project_id = ? OR project_id = '')"
		args = append(args, scope)
	}
	query += " ORDER BY bm25(excerpt_fts) LIMIT ?"
	args = append(args, s.limit)

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	best := map[string]float64{}
	idx := 0
	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return nil, err
		}
		score := 2.0 - 0.07*float64(idx)
		if score < 0.01 {
			score = 0.01
		}
		if score > best[nodeID] {
			best[nodeID] = score
		}
		idx++
	}
	return best, rows.Err()
}

// buildMatchQuery turns a question into an OR of quoted prefix terms.
// Returns "" when the question has no usable tokens.
func buildMatchQuery(question string) string {
	tokens := token.Tokenize(question).Sorted()
	if len(tokens) > ftsQueryTokenLimit {
		tokens = tokens[:ftsQueryTokenLimit]
	}
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, fmt.Sprintf(`"%s"*`, tok))
	}
	return strings.Join(terms, " OR ")
}
