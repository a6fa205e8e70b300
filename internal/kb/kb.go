// Package kb defines the knowledge base contract the query engine runs
// against, plus the in-memory realization backed by a parsed snapshot.
// The SQLite realization lives in internal/storage.
package kb

import (
	"ekb/internal/model"
	"ekb/internal/rank"
)

// Store is the read surface the engine needs: node lookup, edge
// adjacency, excerpt text for citations, and a semantic scorer bound to
// the same corpus.
type Store interface {
	// Node returns a node by ID.
	Node(id string) (model.Node, bool)
	// AllNodes returns every node. Callers must not mutate the slice.
	AllNodes() []model.Node
	// AllEdges returns every edge. Callers must not mutate the slice.
	AllEdges() []model.Edge
	// EdgesTouching returns the edges whose source or target is id.
	EdgesTouching(id string) []model.Edge
	// NodeTokens returns the token set per node for lexical ranking.
	NodeTokens() []rank.NodeTokens
	// ExcerptText returns the best excerpt text for a node, or "" when
	// the node has none.
	ExcerptText(nodeID string) string
	// Scorer returns the semantic backend bound to this store.
	Scorer() rank.SemanticScorer
	// Close releases underlying resources.
	Close() error
}
