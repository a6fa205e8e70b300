package kb

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"ekb/internal/model"
	"ekb/internal/rank"
	"ekb/internal/token"
)

// MemoryStore holds a parsed snapshot with precomputed adjacency and
// token indexes. Reads are lock-free because the snapshot is immutable
// once loaded.
type MemoryStore struct {
	nodes      []model.Node
	edges      []model.Edge
	nodesByID  map[string]model.Node
	adjacency  map[string][]model.Edge
	excerpts   map[string]string
	nodeTokens []rank.NodeTokens
	scorer     *rank.TFIDFScorer
}

// NewMemoryStore indexes a snapshot.
func NewMemoryStore(snap *model.Snapshot) *MemoryStore {
	s := &MemoryStore{
		nodes:     snap.Graph.Nodes,
		edges:     snap.Graph.Edges,
		nodesByID: make(map[string]model.Node, len(snap.Graph.Nodes)),
		adjacency: make(map[string][]model.Edge),
		excerpts:  make(map[string]string),
	}
	for _, n := range s.nodes {
		s.nodesByID[n.ID] = n
		s.nodeTokens = append(s.nodeTokens, rank.NodeTokens{
			ID:     n.ID,
			Tokens: token.Tokenize(n.Text()),
		})
	}
	for _, e := range s.edges {
		s.adjacency[e.Source] = append(s.adjacency[e.Source], e)
		if e.Target != e.Source {
			s.adjacency[e.Target] = append(s.adjacency[e.Target], e)
		}
	}
	// First excerpt per node wins; the extraction pipeline emits the
	// identity segment first.
	for _, ex := range snap.Excerpts {
		if _, ok := s.excerpts[ex.NodeID]; !ok {
			s.excerpts[ex.NodeID] = ex.Text
		}
	}
	s.scorer = rank.NewTFIDFScorer(snap.Excerpts)
	return s
}

// OpenSnapshot reads a snapshot file and indexes it. Files ending in
// .gz are decompressed transparently.
func OpenSnapshot(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip snapshot: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := model.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(snap), nil
}

func (s *MemoryStore) Node(id string) (model.Node, bool) {
	n, ok := s.nodesByID[id]
	return n, ok
}

func (s *MemoryStore) AllNodes() []model.Node { return s.nodes }

func (s *MemoryStore) AllEdges() []model.Edge { return s.edges }

func (s *MemoryStore) EdgesTouching(id string) []model.Edge {
	return s.adjacency[id]
}

func (s *MemoryStore) NodeTokens() []rank.NodeTokens { return s.nodeTokens }

func (s *MemoryStore) ExcerptText(nodeID string) string {
	return s.excerpts[nodeID]
}

func (s *MemoryStore) Scorer() rank.SemanticScorer { return s.scorer }

func (s *MemoryStore) Close() error { return nil }
