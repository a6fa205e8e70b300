// Package traverse implements the four graph walk strategies behind the
// query intents. Every walk is iterative, depth- and edge-bounded, and
// deduplicates edges so cycles cannot run away.
package traverse

import (
	"fmt"
	"sort"
	"strings"

	"ekb/internal/kb"
	"ekb/internal/model"
	"ekb/internal/token"
)

const (
	// MaxDepth bounds the decomposition walk.
	MaxDepth = 3
	// MaxChainEdges caps the TRACE, WHY, and CROSSREF edge budgets.
	MaxChainEdges = 64
	// MaxNeighborhoodEdges caps the WHAT one-hop expansion.
	MaxNeighborhoodEdges = 48
)

// Result is the outcome of a walk: the touched nodes, the edges that
// justify them, and for TRACE the human-readable chain.
type Result struct {
	NodeIDs map[string]struct{}
	Edges   []model.Edge
	Path    []string
}

func newResult() *Result {
	return &Result{NodeIDs: map[string]struct{}{}}
}

func (r *Result) addNode(id string) {
	r.NodeIDs[id] = struct{}{}
}

// Traverser walks a knowledge base.
type Traverser struct {
	store kb.Store
}

// New builds a traverser over the store.
func New(store kb.Store) *Traverser {
	return &Traverser{store: store}
}

// edgeInScope applies the scope policy. With no scope every edge
// passes. Non-strict requires one endpoint in the scoped project,
// strict requires both. Dangling endpoints resolve to no project, so
// under a scope they never satisfy the test.
func (t *Traverser) edgeInScope(e model.Edge, scope string, strict bool) bool {
	if scope == "" {
		return true
	}
	srcIn := t.nodeProject(e.Source) == scope
	tgtIn := t.nodeProject(e.Target) == scope
	if strict {
		return srcIn && tgtIn
	}
	return srcIn || tgtIn
}

func (t *Traverser) nodeProject(id string) string {
	if n, ok := t.store.Node(id); ok {
		return n.Project
	}
	return ""
}

func other(e model.Edge, id string) string {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

func typeSet(types ...model.EdgeType) map[model.EdgeType]bool {
	out := make(map[model.EdgeType]bool, len(types))
	for _, t := range types {
		out[t] = true
	}
	return out
}

var (
	traceSupportTypes = typeSet(model.EdgeImplements, model.EdgeVerifiedBy,
		model.EdgeConstrainedBy, model.EdgeContradicts)
	whyTypes = typeSet(model.EdgeMotivatedBy, model.EdgeChose,
		model.EdgeAlternativeTo, model.EdgeContradicts)
	crossrefTypes = typeSet(model.EdgeAnalogousTo, model.EdgeReusesPattern,
		model.EdgeContradicts, model.EdgeInformedBy)
)

// Trace walks the decomposition hierarchy from requirement anchors,
// then attaches the implementation, verification, constraint, and
// contradiction edges of every traced requirement.
func (t *Traverser) Trace(anchors []string, scope string) *Result {
	res := newResult()
	seen := map[string]bool{}

	type frame struct {
		id    string
		depth int
	}

	var queue []frame
	visited := map[string]bool{}
	for _, id := range anchors {
		if n, ok := t.store.Node(id); ok && n.Type == model.NodeRequirement && !visited[id] {
			visited[id] = true
			queue = append(queue, frame{id: id, depth: 0})
			res.addNode(id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range t.store.EdgesTouching(cur.id) {
			if e.Type != model.EdgeDecomposesTo || seen[e.ID] {
				continue
			}
			if !t.edgeInScope(e, scope, false) {
				continue
			}
			if len(res.Edges) >= MaxChainEdges {
				return t.finishTrace(res)
			}
			seen[e.ID] = true
			res.Edges = append(res.Edges, e)
			res.Path = append(res.Path, fmt.Sprintf("%s -%s-> %s", e.Source, e.Type, e.Target))

			next := other(e, cur.id)
			res.addNode(e.Source)
			res.addNode(e.Target)
			if visited[next] || cur.depth >= MaxDepth-1 {
				continue
			}
			if n, ok := t.store.Node(next); ok && n.Type == model.NodeRequirement {
				visited[next] = true
				queue = append(queue, frame{id: next, depth: cur.depth + 1})
			}
		}
	}

	return t.finishTrace(res)
}

// finishTrace attaches support edges to every traced requirement.
func (t *Traverser) finishTrace(res *Result) *Result {
	seen := map[string]bool{}
	for _, e := range res.Edges {
		seen[e.ID] = true
	}

	traced := make([]string, 0, len(res.NodeIDs))
	for id := range res.NodeIDs {
		if n, ok := t.store.Node(id); ok && n.Type == model.NodeRequirement {
			traced = append(traced, id)
		}
	}
	sort.Strings(traced)

	for _, id := range traced {
		for _, e := range t.store.EdgesTouching(id) {
			if !traceSupportTypes[e.Type] || seen[e.ID] {
				continue
			}
			if len(res.Edges) >= MaxChainEdges {
				return res
			}
			seen[e.ID] = true
			res.Edges = append(res.Edges, e)
			res.addNode(e.Source)
			res.addNode(e.Target)
		}
	}
	return res
}

// Why expands the rationale neighborhood of decision anchors in two
// frontier rounds over motivation, choice, alternative, and
// contradiction edges.
func (t *Traverser) Why(anchors []string, scope string) *Result {
	res := newResult()
	seen := map[string]bool{}
	inFrontier := map[string]bool{}

	var frontier []string
	for _, id := range anchors {
		if n, ok := t.store.Node(id); ok && n.Type == model.NodeDecision && !inFrontier[id] {
			inFrontier[id] = true
			frontier = append(frontier, id)
			res.addNode(id)
		}
	}

	for round := 0; round < 2 && len(frontier) > 0; round++ {
		var next []string
		for _, id := range frontier {
			for _, e := range t.store.EdgesTouching(id) {
				if !whyTypes[e.Type] || seen[e.ID] {
					continue
				}
				if !t.edgeInScope(e, scope, false) {
					continue
				}
				if len(res.Edges) >= MaxChainEdges {
					return res
				}
				seen[e.ID] = true
				res.Edges = append(res.Edges, e)
				res.Path = append(res.Path, fmt.Sprintf("%s -%s-> %s", e.Source, e.Type, e.Target))
				res.addNode(e.Source)
				res.addNode(e.Target)

				neighbor := other(e, id)
				if !inFrontier[neighbor] {
					inFrontier[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}
	return res
}

// Crossref collects cross-project bridge edges one hop from the
// anchors, ignoring scope since bridges span projects. When the
// anchored hop finds too little, it falls back to a full scan of the
// bridge edge types, filtered by token overlap with the question
// unless the question explicitly compares projects.
func (t *Traverser) Crossref(anchors []string, question string) *Result {
	res := newResult()
	seen := map[string]bool{}

	for _, id := range anchors {
		res.addNode(id)
		for _, e := range t.store.EdgesTouching(id) {
			if !crossrefTypes[e.Type] || seen[e.ID] {
				continue
			}
			if len(res.Edges) >= MaxChainEdges {
				return res
			}
			seen[e.ID] = true
			res.Edges = append(res.Edges, e)
			res.addNode(e.Source)
			res.addNode(e.Target)
		}
	}

	if len(res.Edges) >= 3 {
		return res
	}

	qTokens := token.Tokenize(question)
	acceptAll := containsAny(question, "iki proje", "cross", "çapraz")

	for _, e := range t.store.AllEdges() {
		if !crossrefTypes[e.Type] || seen[e.ID] {
			continue
		}
		if !acceptAll && !t.endpointMatches(e, qTokens) {
			continue
		}
		if len(res.Edges) >= MaxChainEdges {
			return res
		}
		seen[e.ID] = true
		res.Edges = append(res.Edges, e)
		res.addNode(e.Source)
		res.addNode(e.Target)
	}
	return res
}

func (t *Traverser) endpointMatches(e model.Edge, qTokens token.Set) bool {
	for _, id := range []string{e.Source, e.Target} {
		if n, ok := t.store.Node(id); ok {
			if qTokens.Intersects(token.Tokenize(n.Text())) {
				return true
			}
		}
	}
	return false
}

// What expands the one-hop neighborhood of the anchors over every edge
// type. Under a scope the expansion is strict: both endpoints must
// belong to the scoped project, and the node set is filtered the same
// way.
func (t *Traverser) What(anchors []string, scope string) *Result {
	res := newResult()
	for _, id := range anchors {
		res.addNode(id)
	}

	res.Edges = t.OneHop(anchors, nil, scope, scope != "", MaxNeighborhoodEdges)
	for _, e := range res.Edges {
		res.addNode(e.Source)
		res.addNode(e.Target)
	}

	if scope != "" {
		for id := range res.NodeIDs {
			if t.nodeProject(id) != scope {
				delete(res.NodeIDs, id)
			}
		}
	}
	return res
}

// OneHop collects the edges touching the anchors, optionally restricted
// to a type set, deduplicated and capped. A nil type set admits every
// type.
func (t *Traverser) OneHop(anchors []string, types []model.EdgeType, scope string, strict bool, maxEdges int) []model.Edge {
	allowed := map[model.EdgeType]bool{}
	for _, typ := range types {
		allowed[typ] = true
	}

	var out []model.Edge
	seen := map[string]bool{}
	for _, id := range anchors {
		for _, e := range t.store.EdgesTouching(id) {
			if len(types) > 0 && !allowed[e.Type] {
				continue
			}
			if seen[e.ID] {
				continue
			}
			if !t.edgeInScope(e, scope, strict) {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
			if len(out) >= maxEdges {
				return out
			}
		}
	}
	return out
}

func containsAny(question string, phrases ...string) bool {
	lowered := strings.ToLower(question)
	for _, p := range phrases {
		if p != "" && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
