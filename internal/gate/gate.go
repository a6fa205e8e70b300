// Package gate decides whether retrieved evidence is strong enough to
// answer from, and derives the chain confidence and warning codes that
// accompany every result. A rejection is a designed negative outcome,
// not an error.
package gate

import (
	"fmt"
	"strings"

	"ekb/internal/classify"
	"ekb/internal/model"
	"ekb/internal/token"
)

// Warning codes carried on results.
const (
	WarnNoEvidence         = "NO_EVIDENCE_GATE_TRIGGERED"
	WarnContradictionFmt   = "CONTRADICTION_PRESENT:%d"
	WarnLowChainConfidence = "LOW_CHAIN_CONFIDENCE:%s"
)

// existenceStopwords are question-marker tokens stripped before the
// focus check of an existence question.
var existenceStopwords = map[string]struct{}{
	"bu": {}, "projede": {}, "proje": {}, "var": {},
	"mi": {}, "mı": {}, "mu": {}, "mü": {},
	"ve": {}, "ile": {}, "için": {},
	"the": {}, "is": {}, "are": {}, "in": {}, "on": {},
}

// Input is everything the gate inspects.
type Input struct {
	Question    string
	Type        classify.QueryType
	ExplicitIDs []string
	// Anchors are the resolved anchor nodes the traversal started from.
	Anchors []model.Node
	// TopScore is the best combined ranking score.
	TopScore float64
	// MinScore is the score floor; explicit IDs bypass it.
	MinScore float64

	EvidenceNodes []model.Node
	EvidenceEdges []model.Edge
}

// Verdict is the gate outcome. When Pass is false the caller replaces
// the answer with the fixed not-found message and clears citations;
// ChainConfidence is already forced to MEDIUM in that case.
type Verdict struct {
	Pass            bool
	ChainConfidence model.Confidence
	Warnings        []string

	// FocusTokens and LexicalFocusMatch feed the debug block.
	FocusTokens       []string
	LexicalFocusMatch bool
}

// Evaluate runs the gate over the evidence.
func Evaluate(in Input) Verdict {
	v := Verdict{Pass: true}

	v.ChainConfidence = chainConfidence(in.EvidenceNodes, in.EvidenceEdges)

	if n := contradictionCount(in.EvidenceEdges); n > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf(WarnContradictionFmt, n))
	}
	if v.ChainConfidence != model.ConfidenceHigh {
		v.Warnings = append(v.Warnings, fmt.Sprintf(WarnLowChainConfidence, v.ChainConfidence))
	}

	existence := IsExistenceQuestion(in.Question)
	focus := token.Set{}
	if existence {
		focus = FocusTokens(in.Question)
		v.FocusTokens = focus.Sorted()
		v.LexicalFocusMatch = anchorsMatchFocus(in.Anchors, focus)
	}

	hasExplicit := len(in.ExplicitIDs) > 0

	switch {
	case len(in.EvidenceNodes) == 0 && len(in.EvidenceEdges) == 0:
		v.Pass = false
	case requiresEdges(in.Type) && len(in.EvidenceEdges) == 0:
		v.Pass = false
	case existence && !existenceSatisfied(in, focus, v.LexicalFocusMatch, hasExplicit):
		v.Pass = false
	case in.TopScore < in.MinScore && !hasExplicit:
		v.Pass = false
	}

	if !v.Pass {
		v.Warnings = append(v.Warnings, WarnNoEvidence)
		v.ChainConfidence = model.ConfidenceMedium
	}
	return v
}

// IsExistenceQuestion reports whether the question asks whether
// something exists.
func IsExistenceQuestion(question string) bool {
	lowered := strings.ToLower(question)
	return strings.Contains(lowered, "var mı") || strings.Contains(lowered, "var mi")
}

// FocusTokens returns the substantive tokens of an existence question:
// at least 3 characters and not a question marker.
func FocusTokens(question string) token.Set {
	out := token.Set{}
	for tok := range token.Tokenize(question) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, stop := existenceStopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func requiresEdges(qt classify.QueryType) bool {
	switch qt {
	case classify.QueryWhy, classify.QueryTrace, classify.QueryCrossref:
		return true
	}
	return false
}

// existenceSatisfied holds when concrete evidence exists and, if the
// question carries focus tokens, the anchors literally touch them.
func existenceSatisfied(in Input, focus token.Set, focusMatch, hasExplicit bool) bool {
	concrete := false
	for _, n := range in.EvidenceNodes {
		if model.ConcreteNodeTypes[n.Type] {
			concrete = true
			break
		}
	}
	if !concrete {
		return false
	}
	if len(focus) > 0 && !focusMatch && !hasExplicit {
		return false
	}
	return true
}

func anchorsMatchFocus(anchors []model.Node, focus token.Set) bool {
	if len(focus) == 0 {
		return false
	}
	for _, n := range anchors {
		if !model.ConcreteNodeTypes[n.Type] {
			continue
		}
		if focus.Intersects(token.Tokenize(n.Text())) {
			return true
		}
	}
	return false
}

func contradictionCount(edges []model.Edge) int {
	n := 0
	for _, e := range edges {
		if e.Type == model.EdgeContradicts {
			n++
		}
	}
	return n
}

func chainConfidence(nodes []model.Node, edges []model.Edge) model.Confidence {
	var all []model.Confidence
	for _, n := range nodes {
		all = append(all, n.Confidence)
	}
	for _, e := range edges {
		all = append(all, e.Confidence)
	}
	return model.MinConfidence(all)
}
