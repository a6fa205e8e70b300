// Package answer turns traversal evidence into citation lists and
// Turkish answer text. The generic template covers every query type;
// refine.go holds the domain refiners that replace it for pin and
// address questions.
package answer

import (
	"fmt"
	"sort"
	"strings"

	"ekb/internal/classify"
	"ekb/internal/kb"
	"ekb/internal/model"
)

const (
	// NotFound is the fixed refusal text emitted when the evidence gate
	// rejects a query.
	NotFound = "Bu bilgi veritabanında bulunamadı."

	maxCitationNodes = 24
	maxCitationEdges = 48
	excerptRuneLimit = 220
)

// NodeCitation is one evidence node in an answer.
type NodeCitation struct {
	NodeID     string           `json:"node_id"`
	NodeType   model.NodeType   `json:"node_type"`
	Confidence model.Confidence `json:"confidence"`
	Text       string           `json:"text"`
}

// EdgeCitation is one evidence edge in an answer.
type EdgeCitation struct {
	EdgeID     string           `json:"edge_id"`
	EdgeType   model.EdgeType   `json:"edge_type"`
	Source     string           `json:"source"`
	Target     string           `json:"target"`
	Confidence model.Confidence `json:"confidence"`
}

// Citations pairs the node and edge evidence backing an answer. Both
// slices are always non-nil so the JSON encoding stays stable.
type Citations struct {
	Nodes []NodeCitation `json:"nodes"`
	Edges []EdgeCitation `json:"edges"`
}

// EmptyCitations returns a zero-evidence citation set.
func EmptyCitations() Citations {
	return Citations{Nodes: []NodeCitation{}, Edges: []EdgeCitation{}}
}

// FormatCitations builds the citation block from the evidence node set
// and the used edges. Node citations are ordered by ID and capped;
// dangling node IDs with no stored node are skipped. Node text prefers
// the stored excerpt over the node name and is truncated for payload
// hygiene.
func FormatCitations(store kb.Store, nodeIDs map[string]struct{}, edges []model.Edge) Citations {
	ids := make([]string, 0, len(nodeIDs))
	for id := range nodeIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := EmptyCitations()
	for _, id := range ids {
		if len(out.Nodes) >= maxCitationNodes {
			break
		}
		n, ok := store.Node(id)
		if !ok {
			continue
		}
		text := store.ExcerptText(id)
		if text == "" {
			text = n.Name
		}
		out.Nodes = append(out.Nodes, NodeCitation{
			NodeID:     id,
			NodeType:   n.Type,
			Confidence: model.NormalizeConfidence(string(n.Confidence)),
			Text:       truncateRunes(text, excerptRuneLimit),
		})
	}

	for _, e := range edges {
		if len(out.Edges) >= maxCitationEdges {
			break
		}
		out.Edges = append(out.Edges, EdgeCitation{
			EdgeID:     e.ID,
			EdgeType:   e.Type,
			Source:     e.Source,
			Target:     e.Target,
			Confidence: model.NormalizeConfidence(string(e.Confidence)),
		})
	}
	return out
}

// Default renders the generic answer template: query type, scope, and
// up to six node and edge citations.
func Default(qtype classify.QueryType, scope string, c Citations) string {
	var nodes []string
	for _, n := range c.Nodes {
		if len(nodes) >= 6 {
			break
		}
		nodes = append(nodes, fmt.Sprintf("%s(%s)", n.NodeID, n.NodeType))
	}
	var edges []string
	for _, e := range c.Edges {
		if len(edges) >= 6 {
			break
		}
		edges = append(edges, fmt.Sprintf("%s:%s->%s", e.EdgeType, e.Source, e.Target))
	}

	return fmt.Sprintf(
		"Soru tipi: %s. Kapsam: %s. İlgili node'lar: %s. İlgili edge'ler: %s.",
		qtype, orGlobal(scope), orNone(nodes), orNone(edges))
}

func orGlobal(scope string) string {
	if scope == "" {
		return "GLOBAL"
	}
	return scope
}

func orNone(parts []string) string {
	if len(parts) == 0 {
		return "yok"
	}
	return strings.Join(parts, ", ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
