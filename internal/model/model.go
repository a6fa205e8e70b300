// Package model defines the engineering knowledge graph entities shared by
// every storage realization: nodes, edges, text excerpts, and the snapshot
// document emitted by the extraction pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType is the closed enumeration of graph entity kinds.
type NodeType string

const (
	NodeRequirement NodeType = "REQUIREMENT"
	NodeDecision    NodeType = "DECISION"
	NodeComponent   NodeType = "COMPONENT"
	NodeConstraint  NodeType = "CONSTRAINT"
	NodeEvidence    NodeType = "EVIDENCE"
	NodePattern     NodeType = "PATTERN"
	NodeIssue       NodeType = "ISSUE"
)

// ConcreteNodeTypes are the types the existence gate accepts as proof that
// something technical actually exists in the graph.
var ConcreteNodeTypes = map[NodeType]bool{
	NodeComponent:  true,
	NodeConstraint: true,
	NodeEvidence:   true,
	NodePattern:    true,
	NodeIssue:      true,
}

// EdgeType is the closed enumeration of relationship kinds.
type EdgeType string

const (
	EdgeDecomposesTo  EdgeType = "DECOMPOSES_TO"
	EdgeImplements    EdgeType = "IMPLEMENTS"
	EdgeVerifiedBy    EdgeType = "VERIFIED_BY"
	EdgeConstrainedBy EdgeType = "CONSTRAINED_BY"
	EdgeContradicts   EdgeType = "CONTRADICTS"
	EdgeMotivatedBy   EdgeType = "MOTIVATED_BY"
	EdgeChose         EdgeType = "CHOSE"
	EdgeAlternativeTo EdgeType = "ALTERNATIVE_TO"
	EdgeAnalogousTo   EdgeType = "ANALOGOUS_TO"
	EdgeReusesPattern EdgeType = "REUSES_PATTERN"
	EdgeInformedBy    EdgeType = "INFORMED_BY"
	EdgeDependsOn     EdgeType = "DEPENDS_ON"
)

// Confidence is the 3-level ordered confidence tag.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

var confidenceRank = map[Confidence]int{
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// NormalizeConfidence maps any raw tag to a member of the closed set.
// Unknown or empty values degrade to MEDIUM.
func NormalizeConfidence(raw string) Confidence {
	c := Confidence(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := confidenceRank[c]; ok {
		return c
	}
	return ConfidenceMedium
}

// Rank returns the numeric order of a confidence level (LOW=1 .. HIGH=3).
func (c Confidence) Rank() int {
	if r, ok := confidenceRank[c]; ok {
		return r
	}
	return confidenceRank[ConfidenceMedium]
}

// MinConfidence returns the weakest confidence in the set. An empty set
// defaults to MEDIUM.
func MinConfidence(values []Confidence) Confidence {
	min := ConfidenceMedium
	first := true
	for _, v := range values {
		v = NormalizeConfidence(string(v))
		if first || v.Rank() < min.Rank() {
			min = v
			first = false
		}
	}
	return min
}

// SourceRef points at the upstream artifact a node was extracted from.
type SourceRef struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Section string `json:"section,omitempty"`
}

// Provenance records which pipeline stage produced an entity.
type Provenance struct {
	Stage     int         `json:"stage,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Sources   []SourceRef `json:"sources,omitempty"`
}

// Node is a typed entity in the knowledge graph. Project is empty for
// cross-project entities, which are visible in every scope.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"node_type"`
	Project    string         `json:"project_id,omitempty"`
	Name       string         `json:"name"`
	Confidence Confidence     `json:"confidence"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Provenance Provenance     `json:"provenance,omitempty"`
}

// Text flattens the node's identity and attribute values into a single
// searchable string. List and map values are truncated to keep the token
// set bounded.
func (n Node) Text() string {
	parts := []string{n.ID, n.Name, string(n.Type)}
	for k, v := range n.Attributes {
		switch val := v.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s:%s", k, val))
		case float64, int, int64, bool:
			parts = append(parts, fmt.Sprintf("%s:%v", k, val))
		case []any:
			limit := len(val)
			if limit > 8 {
				limit = 8
			}
			for _, item := range val[:limit] {
				parts = append(parts, fmt.Sprint(item))
			}
		case map[string]any:
			i := 0
			for ik, iv := range val {
				if i >= 8 {
					break
				}
				parts = append(parts, fmt.Sprintf("%s:%v", ik, iv))
				i++
			}
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " ")
}

// AttrString returns a string attribute, or "" when absent or non-string.
func (n Node) AttrString(key string) string {
	v, ok := n.Attributes[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Edge is a typed, directed relationship between two nodes. Several
// traversal strategies treat edges as undirected for reachability.
type Edge struct {
	ID         string     `json:"id"`
	Type       EdgeType   `json:"edge_type"`
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Confidence Confidence `json:"confidence"`
}

// TextExcerpt is the retrievable corpus unit. A node may own many excerpts.
type TextExcerpt struct {
	ID         string     `json:"vector_id"`
	NodeID     string     `json:"node_id"`
	Project    string     `json:"project_id,omitempty"`
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Graph is the node/edge pair inside a snapshot document.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot is the serialized graph document produced by the extraction
// pipeline. The engine treats a loaded snapshot as immutable.
type Snapshot struct {
	SchemaVersion string         `json:"schema_version,omitempty"`
	GeneratedAt   string         `json:"generated_at,omitempty"`
	Graph         Graph          `json:"graph"`
	Excerpts      []TextExcerpt  `json:"vector_documents,omitempty"`
	Metadata      map[string]any `json:"commit_metadata,omitempty"`
}

// ParseSnapshot decodes a snapshot document and normalizes confidence tags.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	for i := range snap.Graph.Nodes {
		snap.Graph.Nodes[i].Confidence = NormalizeConfidence(string(snap.Graph.Nodes[i].Confidence))
	}
	for i := range snap.Graph.Edges {
		snap.Graph.Edges[i].Confidence = NormalizeConfidence(string(snap.Graph.Edges[i].Confidence))
	}
	for i := range snap.Excerpts {
		snap.Excerpts[i].Confidence = NormalizeConfidence(string(snap.Excerpts[i].Confidence))
	}
	return &snap, nil
}
