// Package engine orchestrates a query end to end: classification,
// hybrid ranking, bounded traversal, the evidence gate, and answer
// composition. The engine is storage-agnostic; both the in-memory and
// SQLite realizations plug in through kb.Store.
package engine

import (
	"context"
	"sort"
	"strings"

	"ekb/internal/answer"
	"ekb/internal/classify"
	"ekb/internal/config"
	ekberrors "ekb/internal/errors"
	"ekb/internal/gate"
	"ekb/internal/kb"
	"ekb/internal/logging"
	"ekb/internal/model"
	"ekb/internal/rank"
	"ekb/internal/traverse"
)

const (
	maxDebugAnchors = 24
	maxDebugPath    = 24
	maxDebugFocus   = 16
)

// Synthesizer optionally rewrites a gated answer through a language
// model. A failed rewrite never fails the query.
type Synthesizer interface {
	Rewrite(ctx context.Context, question string, res *Result) (string, error)
}

// Result is the stable query response contract.
type Result struct {
	Query           string             `json:"query"`
	QueryType       classify.QueryType `json:"query_type"`
	Answer          string             `json:"answer"`
	Citations       answer.Citations   `json:"citations"`
	ChainConfidence model.Confidence   `json:"chain_confidence"`
	Warnings        []string           `json:"warnings"`
	Debug           Debug              `json:"debug"`
}

// Debug carries query introspection for troubleshooting and tests.
type Debug struct {
	QueryClassification classify.QueryType `json:"query_classification"`
	Scope               string             `json:"scope"`
	StoresQueried       []string           `json:"stores_queried"`
	RankedNodeCount     int                `json:"ranked_node_count"`
	TopRankScore        float64            `json:"top_rank_score"`
	FocusTokens         []string           `json:"focus_tokens"`
	LexicalFocusMatch   bool               `json:"lexical_focus_match"`
	AnchorIDs           []string           `json:"anchor_ids"`
	TraversalPath       []string           `json:"traversal_path"`
	UsedEdgeCount       int                `json:"used_edge_count"`
}

// Engine answers questions over one knowledge base store.
type Engine struct {
	store      kb.Store
	classifier *classify.Classifier
	ranker     *rank.Ranker
	trav       *traverse.Traverser
	refiner    *answer.Refiner
	synth      Synthesizer
	log        *logging.Logger
	minScore   float64
	anchorLim  int
}

// candidateLimiter is implemented by scorers whose candidate fetch size
// is configurable.
type candidateLimiter interface {
	SetCandidateLimit(n int)
}

// New builds an engine over a store. A nil classifier uses the built-in
// rule table and project registry; a nil logger discards output.
func New(store kb.Store, classifier *classify.Classifier, qcfg config.QueryConfig, log *logging.Logger) *Engine {
	if classifier == nil {
		classifier = classify.NewClassifier(classify.DefaultRuleSet(), nil)
	}
	if log == nil {
		log = logging.NewNop()
	}
	if limiter, ok := store.Scorer().(candidateLimiter); ok {
		limiter.SetCandidateLimit(qcfg.CandidateLimit)
	}
	return &Engine{
		store:      store,
		classifier: classifier,
		ranker:     rank.NewRanker(store.Scorer(), qcfg.SemanticFloor, qcfg.ResultLimit),
		trav:       traverse.New(store),
		refiner:    answer.NewRefiner(store),
		log:        log,
		minScore:   qcfg.MinScoreThreshold,
		anchorLim:  anchorLimit(qcfg.AnchorLimit),
	}
}

func anchorLimit(n int) int {
	if n <= 0 {
		return 6
	}
	return n
}

// WithSynthesizer attaches an optional answer synthesizer.
func (e *Engine) WithSynthesizer(s Synthesizer) *Engine {
	e.synth = s
	return e
}

// Query answers a natural-language question. Every failure mode past
// input validation degrades to the refusal answer rather than an error.
func (e *Engine) Query(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ekberrors.New(ekberrors.MalformedInput, "question must not be empty", nil)
	}

	cls := e.classifier.Classify(question)
	e.log.Debug("query classified", map[string]any{
		"type":  cls.Type,
		"scope": cls.Scope,
		"ids":   len(cls.ExplicitIDs),
	})

	ranked, err := e.ranker.Rank(ctx, question, cls.Scope, e.scopedCandidates(cls.Scope))
	if err != nil {
		return nil, ekberrors.New(ekberrors.StorageUnavailable, "semantic ranking failed", err)
	}
	topScore := rank.TopScore(ranked)

	anchors := e.anchorSet(cls, ranked)
	nodeIDs := map[string]struct{}{}
	for _, id := range anchors {
		nodeIDs[id] = struct{}{}
	}

	var usedEdges []model.Edge
	var path []string

	switch cls.Type {
	case classify.QueryTrace:
		res := e.trav.Trace(e.typedAnchors(anchors, ranked, model.NodeRequirement), cls.Scope)
		mergeNodeSet(nodeIDs, res.NodeIDs)
		usedEdges, path = res.Edges, res.Path
	case classify.QueryWhy:
		res := e.trav.Why(e.typedAnchors(anchors, ranked, model.NodeDecision), cls.Scope)
		mergeNodeSet(nodeIDs, res.NodeIDs)
		usedEdges, path = res.Edges, res.Path
	case classify.QueryCrossref:
		usedEdges = e.trav.Crossref(anchors, question).Edges
	default:
		usedEdges = e.trav.What(anchors, cls.Scope).Edges
	}

	for _, edge := range usedEdges {
		nodeIDs[edge.Source] = struct{}{}
		nodeIDs[edge.Target] = struct{}{}
	}
	if cls.Type == classify.QueryWhat && cls.Scope != "" {
		nodeIDs, usedEdges = e.restrictToScope(nodeIDs, usedEdges, cls.Scope)
	}

	verdict := gate.Evaluate(gate.Input{
		Question:      question,
		Type:          cls.Type,
		ExplicitIDs:   cls.ExplicitIDs,
		Anchors:       e.resolveNodes(anchors),
		TopScore:      topScore,
		MinScore:      e.minScore,
		EvidenceNodes: e.resolveNodeSet(nodeIDs),
		EvidenceEdges: usedEdges,
	})

	result := &Result{
		Query:           question,
		QueryType:       cls.Type,
		Citations:       answer.FormatCitations(e.store, nodeIDs, usedEdges),
		ChainConfidence: verdict.ChainConfidence,
		Warnings:        verdict.Warnings,
		Debug: Debug{
			QueryClassification: cls.Type,
			Scope:               cls.Scope,
			StoresQueried:       []string{"graph", e.ranker.ScorerName()},
			RankedNodeCount:     len(ranked),
			TopRankScore:        topScore,
			FocusTokens:         capStrings(verdict.FocusTokens, maxDebugFocus),
			LexicalFocusMatch:   verdict.LexicalFocusMatch,
			AnchorIDs:           capStrings(sortedCopy(anchors), maxDebugAnchors),
			TraversalPath:       capStrings(path, maxDebugPath),
		},
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	if !verdict.Pass {
		result.Answer = answer.NotFound
		result.Citations = answer.EmptyCitations()
		result.Debug.UsedEdgeCount = len(usedEdges)
		e.log.Info("evidence gate refused query", map[string]any{
			"type":     cls.Type,
			"scope":    cls.Scope,
			"topScore": topScore,
		})
		return result, nil
	}

	if ref, ok := e.refiner.Refine(question, cls.Scope); ok {
		for _, id := range ref.FocusNodeIDs {
			nodeIDs[id] = struct{}{}
		}
		usedEdges = mergeEdges(nodeIDs, usedEdges, ref.ExtraEdges)
		result.Citations = answer.FormatCitations(e.store, nodeIDs, usedEdges)
		result.Answer = ref.Answer
	} else {
		result.Answer = answer.Default(cls.Type, cls.Scope, result.Citations)
	}
	result.Debug.UsedEdgeCount = len(usedEdges)

	if e.synth != nil {
		if rewritten, err := e.synth.Rewrite(ctx, question, result); err != nil {
			e.log.Warn("answer synthesis failed, keeping template answer", map[string]any{
				"error": err.Error(),
			})
		} else if rewritten != "" {
			result.Answer = rewritten
		}
	}
	return result, nil
}

// scopedCandidates returns the lexical token sets eligible for ranking.
// Under a scope only that project's nodes compete.
func (e *Engine) scopedCandidates(scope string) []rank.NodeTokens {
	all := e.store.NodeTokens()
	if scope == "" {
		return all
	}
	out := make([]rank.NodeTokens, 0, len(all))
	for _, nt := range all {
		if n, ok := e.store.Node(nt.ID); ok && n.Project == scope {
			out = append(out, nt)
		}
	}
	return out
}

// anchorSet unions explicit IDs with the strongest ranked nodes, then
// drops anchors outside the scope.
func (e *Engine) anchorSet(cls classify.Classification, ranked []rank.Candidate) []string {
	set := map[string]struct{}{}
	for _, id := range cls.ExplicitIDs {
		set[id] = struct{}{}
	}
	for i, c := range ranked {
		if i >= e.anchorLim {
			break
		}
		set[c.ID] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		if cls.Scope != "" {
			if n, ok := e.store.Node(id); !ok || n.Project != cls.Scope {
				continue
			}
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// typedAnchors keeps anchors of the wanted type, falling back to every
// ranked node of that type when no anchor qualifies.
func (e *Engine) typedAnchors(anchors []string, ranked []rank.Candidate, want model.NodeType) []string {
	var out []string
	for _, id := range anchors {
		if n, ok := e.store.Node(id); ok && n.Type == want {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, c := range ranked {
		if n, ok := e.store.Node(c.ID); ok && n.Type == want {
			out = append(out, c.ID)
		}
	}
	return out
}

// restrictToScope drops evidence outside the project: every node, and
// every edge whose endpoints are not both in scope.
func (e *Engine) restrictToScope(nodeIDs map[string]struct{}, edges []model.Edge, scope string) (map[string]struct{}, []model.Edge) {
	for id := range nodeIDs {
		if n, ok := e.store.Node(id); !ok || n.Project != scope {
			delete(nodeIDs, id)
		}
	}
	kept := edges[:0]
	for _, edge := range edges {
		src, okSrc := e.store.Node(edge.Source)
		tgt, okTgt := e.store.Node(edge.Target)
		if okSrc && okTgt && src.Project == scope && tgt.Project == scope {
			kept = append(kept, edge)
		}
	}
	return nodeIDs, kept
}

func (e *Engine) resolveNodes(ids []string) []model.Node {
	out := make([]model.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := e.store.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) resolveNodeSet(ids map[string]struct{}) []model.Node {
	out := make([]model.Node, 0, len(ids))
	for id := range ids {
		if n, ok := e.store.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

func mergeNodeSet(dst map[string]struct{}, src map[string]struct{}) {
	for id := range src {
		dst[id] = struct{}{}
	}
}

// mergeEdges appends extras not already present, registering their
// endpoints in the node set.
func mergeEdges(nodeIDs map[string]struct{}, edges []model.Edge, extras []model.Edge) []model.Edge {
	seen := map[string]bool{}
	for _, e := range edges {
		seen[e.ID] = true
	}
	for _, e := range extras {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		edges = append(edges, e)
		nodeIDs[e.Source] = struct{}{}
		nodeIDs[e.Target] = struct{}{}
	}
	return edges
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

func capStrings(in []string, limit int) []string {
	if in == nil {
		return []string{}
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}
