// Package classify routes a natural-language question to one of four
// query intents and resolves its project scope and explicit entity
// references. The keyword tables and project registry are declarative
// and can be overridden from disk.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ekb/internal/token"
)

// QueryType is the intent of a question.
type QueryType string

const (
	QueryWhat     QueryType = "WHAT"
	QueryWhy      QueryType = "WHY"
	QueryTrace    QueryType = "TRACE"
	QueryCrossref QueryType = "CROSSREF"
)

// Rule matches a question to an intent. Keywords match whole tokens,
// phrases match as substrings of the lowercased question.
type Rule struct {
	Type     QueryType `yaml:"type"`
	Keywords []string  `yaml:"keywords"`
	Phrases  []string  `yaml:"phrases"`
}

// RuleSet is the ordered intent rule table. The first matching rule
// wins; a question matching nothing is a WHAT query.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleSet returns the built-in rule table. WHY outranks TRACE
// outranks CROSSREF, so a question naming both a rationale and a chain
// is answered as a rationale question.
func DefaultRuleSet() RuleSet {
	return RuleSet{Rules: []Rule{
		{
			Type:     QueryWhy,
			Keywords: []string{"neden", "niye", "why", "gerekçe", "motivasyon", "sebep", "karar"},
		},
		{
			Type:     QueryTrace,
			Keywords: []string{"trace", "iz", "akış", "path", "traverse", "zincir", "hiyerarşi", "alt", "kırılım"},
		},
		{
			Type:     QueryCrossref,
			Keywords: []string{"cross", "çapraz", "analogous", "benzer", "fark", "karşılaştır", "crossref"},
			Phrases:  []string{"iki proje"},
		},
	}}
}

// LoadRuleSet reads a YAML rule table from disk.
func LoadRuleSet(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rule table: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rule table: %w", err)
	}
	if len(rs.Rules) == 0 {
		return RuleSet{}, fmt.Errorf("rule table %s has no rules", path)
	}
	for i, r := range rs.Rules {
		switch r.Type {
		case QueryWhat, QueryWhy, QueryTrace, QueryCrossref:
		default:
			return RuleSet{}, fmt.Errorf("rule %d has unknown type %q", i, r.Type)
		}
	}
	return rs, nil
}

// Classification is the routing outcome for a question.
type Classification struct {
	Type        QueryType `json:"type"`
	Scope       string    `json:"scope,omitempty"`
	ExplicitIDs []string  `json:"explicitIds,omitempty"`
}

// Classifier routes questions using a rule table and a project registry.
type Classifier struct {
	rules    RuleSet
	registry *Registry
}

// NewClassifier builds a classifier. A nil registry falls back to the
// built-in two-project registry.
func NewClassifier(rules RuleSet, registry *Registry) *Classifier {
	if len(rules.Rules) == 0 {
		rules = DefaultRuleSet()
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Classifier{rules: rules, registry: registry}
}

// Classify resolves intent, scope, and explicit IDs in one pass.
func (c *Classifier) Classify(question string) Classification {
	return Classification{
		Type:        c.Route(question),
		Scope:       c.DetectScope(question),
		ExplicitIDs: c.ExtractIDs(question),
	}
}

// Route returns the intent of the question. First matching rule wins.
func (c *Classifier) Route(question string) QueryType {
	lowered := strings.ToLower(question)
	tokens := token.Tokenize(question)

	for _, rule := range c.rules.Rules {
		for _, kw := range rule.Keywords {
			if tokens.Contains(kw) {
				return rule.Type
			}
		}
		for _, phrase := range rule.Phrases {
			if phrase != "" && strings.Contains(lowered, phrase) {
				return rule.Type
			}
		}
	}
	return QueryWhat
}

// DetectScope returns the project whose markers the question matches.
// A question matching no project, or more than one, is global.
func (c *Classifier) DetectScope(question string) string {
	lowered := strings.ToLower(question)

	var hits []string
	for _, proj := range c.registry.Projects {
		if proj.matches(question, lowered) {
			hits = append(hits, proj.ID)
		}
	}
	if len(hits) == 1 {
		return hits[0]
	}
	return ""
}

// ExtractIDs returns the canonical node IDs explicitly mentioned in the
// question, uppercased and namespaced, sorted and deduplicated.
func (c *Classifier) ExtractIDs(question string) []string {
	seen := map[string]struct{}{}
	for _, re := range c.registry.refPatterns {
		for _, m := range re.FindAllString(question, -1) {
			id := c.registry.IDNamespace + strings.ToUpper(m)
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Project) matches(question, lowered string) bool {
	for _, marker := range p.Markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	for _, re := range p.patterns {
		if re.MatchString(lowered) {
			return true
		}
	}
	for _, re := range p.idPatterns {
		if re.MatchString(question) {
			return true
		}
	}
	return false
}

func compileAll(exprs []string, caseInsensitive bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		if caseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}
