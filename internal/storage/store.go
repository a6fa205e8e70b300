package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"ekb/internal/model"
	"ekb/internal/rank"
	"ekb/internal/token"
)

// Store is the SQLite-backed knowledge base. Graph structure is read
// into memory at open time since traversal touches most of it anyway;
// semantic search stays in the database through the FTS index.
type Store struct {
	db *DB

	nodes      []model.Node
	edges      []model.Edge
	nodesByID  map[string]model.Node
	adjacency  map[string][]model.Edge
	excerpts   map[string]string
	nodeTokens []rank.NodeTokens
	scorer     *FTSScorer
}

// OpenStore opens the database and indexes the graph.
func OpenStore(db *DB) (*Store, error) {
	s := &Store{
		db:        db,
		nodesByID: map[string]model.Node{},
		adjacency: map[string][]model.Edge{},
		excerpts:  map[string]string{},
		scorer:    NewFTSScorer(db),
	}
	if err := s.loadGraph(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadGraph() error {
	rows, err := s.db.Query(`
		SELECT id, node_type, project_id, name, confidence, attributes_json
		FROM nodes
	`)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n model.Node
		var attrsJSON string
		if err := rows.Scan(&n.ID, &n.Type, &n.Project, &n.Name, &n.Confidence, &attrsJSON); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		if attrsJSON != "" && attrsJSON != "{}" {
			if err := json.Unmarshal([]byte(attrsJSON), &n.Attributes); err != nil {
				return fmt.Errorf("node %s attributes: %w", n.ID, err)
			}
		}
		n.Confidence = model.NormalizeConfidence(string(n.Confidence))
		s.nodes = append(s.nodes, n)
		s.nodesByID[n.ID] = n
		s.nodeTokens = append(s.nodeTokens, rank.NodeTokens{
			ID:     n.ID,
			Tokens: token.Tokenize(n.Text()),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	edgeRows, err := s.db.Query(`
		SELECT id, edge_type, source, target, confidence
		FROM edges
	`)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e model.Edge
		if err := edgeRows.Scan(&e.ID, &e.Type, &e.Source, &e.Target, &e.Confidence); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		e.Confidence = model.NormalizeConfidence(string(e.Confidence))
		s.edges = append(s.edges, e)
		s.adjacency[e.Source] = append(s.adjacency[e.Source], e)
		if e.Target != e.Source {
			s.adjacency[e.Target] = append(s.adjacency[e.Target], e)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return err
	}

	// One representative excerpt per node for citation text. Excerpts
	// insert in pipeline order, so MIN(rowid) is the identity segment.
	exRows, err := s.db.Query(`
		SELECT node_id, text FROM excerpts
		WHERE rowid IN (SELECT MIN(rowid) FROM excerpts GROUP BY node_id)
	`)
	if err != nil {
		return fmt.Errorf("load excerpts: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var nodeID, text string
		if err := exRows.Scan(&nodeID, &text); err != nil {
			return fmt.Errorf("scan excerpt: %w", err)
		}
		s.excerpts[nodeID] = text
	}
	return exRows.Err()
}

func (s *Store) Node(id string) (model.Node, bool) {
	n, ok := s.nodesByID[id]
	return n, ok
}

func (s *Store) AllNodes() []model.Node { return s.nodes }

func (s *Store) AllEdges() []model.Edge { return s.edges }

func (s *Store) EdgesTouching(id string) []model.Edge {
	return s.adjacency[id]
}

func (s *Store) NodeTokens() []rank.NodeTokens { return s.nodeTokens }

func (s *Store) ExcerptText(nodeID string) string {
	return s.excerpts[nodeID]
}

func (s *Store) Scorer() rank.SemanticScorer { return s.scorer }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceSnapshot replaces the entire knowledge base content with the
// snapshot in one transaction.
func ReplaceSnapshot(db *DB, snap *model.Snapshot) error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"nodes", "edges", "excerpts", "excerpt_fts"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		nodeStmt, err := tx.Prepare(`
			INSERT INTO nodes (id, node_type, project_id, name, confidence, attributes_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer nodeStmt.Close()

		for _, n := range snap.Graph.Nodes {
			attrs := "{}"
			if len(n.Attributes) > 0 {
				data, err := json.Marshal(n.Attributes)
				if err != nil {
					return fmt.Errorf("node %s attributes: %w", n.ID, err)
				}
				attrs = string(data)
			}
			if _, err := nodeStmt.Exec(n.ID, string(n.Type), n.Project, n.Name,
				string(model.NormalizeConfidence(string(n.Confidence))), attrs); err != nil {
				return fmt.Errorf("insert node %s: %w", n.ID, err)
			}
		}

		edgeStmt, err := tx.Prepare(`
			INSERT INTO edges (id, edge_type, source, target, confidence)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()

		for _, e := range snap.Graph.Edges {
			if _, err := edgeStmt.Exec(e.ID, string(e.Type), e.Source, e.Target,
				string(model.NormalizeConfidence(string(e.Confidence)))); err != nil {
				return fmt.Errorf("insert edge %s: %w", e.ID, err)
			}
		}

		exStmt, err := tx.Prepare(`
			INSERT INTO excerpts (vector_id, node_id, project_id, confidence, text)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer exStmt.Close()

		ftsStmt, err := tx.Prepare(`
			INSERT INTO excerpt_fts (node_id, project_id, text)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer ftsStmt.Close()

		for _, ex := range snap.Excerpts {
			if _, err := exStmt.Exec(ex.ID, ex.NodeID, ex.Project,
				string(model.NormalizeConfidence(string(ex.Confidence))), ex.Text); err != nil {
				return fmt.Errorf("insert excerpt %s: %w", ex.ID, err)
			}
			if _, err := ftsStmt.Exec(ex.NodeID, ex.Project, ex.Text); err != nil {
				return fmt.Errorf("index excerpt %s: %w", ex.ID, err)
			}
		}

		return nil
	})
}
