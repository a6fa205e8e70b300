package classify

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// Project describes one project the graph knows about: the phrases and
// patterns that bind a question to its scope, and the shapes of its
// entity identifiers.
type Project struct {
	ID string `toml:"id"`
	// Markers are lowercase substrings that place a question in this
	// project's scope.
	Markers []string `toml:"markers"`
	// Patterns are regexes applied to the lowercased question.
	Patterns []string `toml:"patterns"`
	// IDPatterns are case-insensitive regexes matching this project's
	// entity identifiers.
	IDPatterns []string `toml:"id_patterns"`
	// RefPatterns are case-insensitive regexes whose matches become
	// explicit anchor IDs. Usually a subset of IDPatterns with capture
	// ranges restricted to resolvable levels.
	RefPatterns []string `toml:"ref_patterns"`

	patterns   []*regexp.Regexp
	idPatterns []*regexp.Regexp
}

// Registry is the set of known projects plus the namespace prefix that
// turns a matched identifier into a graph node ID.
type Registry struct {
	IDNamespace string    `toml:"id_namespace"`
	Projects    []Project `toml:"project"`

	refPatterns []*regexp.Regexp
}

// DefaultRegistry returns the built-in two-project registry for the
// DMA controller and AXI reference designs.
func DefaultRegistry() *Registry {
	reg := &Registry{
		IDNamespace: "STAGE3:",
		Projects: []Project{
			{
				ID:          "PROJECT-A",
				Markers:     []string{"project-a", "project a", "proje-a", "proje a", "dma", "nexys-a7", "nexys a7"},
				Patterns:    []string{`\bproje\s*[- ]?a\b`},
				IDPatterns:  []string{`\bDMA-REQ-L\d-\d{3}\b`, `\bDMA-DEC-\d{3}\b`},
				RefPatterns: []string{`DMA-REQ-L[0-2]-\d{3}`, `DMA-DEC-\d{3}`},
			},
			{
				ID:          "PROJECT-B",
				Markers:     []string{"project-b", "project b", "proje-b", "proje b", "axi_example", "axi example"},
				Patterns:    []string{`\bproje\s*[- ]?b\b`},
				IDPatterns:  []string{`\bAXI-REQ-L\d-\d{3}\b`, `\bAXI-DEC-\d{3}\b`},
				RefPatterns: []string{`AXI-REQ-L[0-2]-\d{3}`, `AXI-DEC-\d{3}`},
			},
		},
	}
	if err := reg.compile(); err != nil {
		// Built-in patterns are tested; a failure here is a programming error.
		panic(err)
	}
	return reg
}

// LoadRegistry reads a TOML project registry from disk.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project registry: %w", err)
	}
	var reg Registry
	if err := toml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse project registry: %w", err)
	}
	if len(reg.Projects) == 0 {
		return nil, fmt.Errorf("project registry %s has no projects", path)
	}
	for i, p := range reg.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("project %d has no id", i)
		}
	}
	if err := reg.compile(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) compile() error {
	r.refPatterns = r.refPatterns[:0]
	for i := range r.Projects {
		p := &r.Projects[i]
		var err error
		if p.patterns, err = compileAll(p.Patterns, false); err != nil {
			return fmt.Errorf("project %s: %w", p.ID, err)
		}
		if p.idPatterns, err = compileAll(p.IDPatterns, true); err != nil {
			return fmt.Errorf("project %s: %w", p.ID, err)
		}
		refs, err := compileAll(p.RefPatterns, true)
		if err != nil {
			return fmt.Errorf("project %s: %w", p.ID, err)
		}
		r.refPatterns = append(r.refPatterns, refs...)
	}
	return nil
}

// IDs returns the project identifiers in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.Projects))
	for _, p := range r.Projects {
		out = append(out, p.ID)
	}
	return out
}

// Contains reports whether the registry knows the project.
func (r *Registry) Contains(id string) bool {
	for _, p := range r.Projects {
		if p.ID == id {
			return true
		}
	}
	return false
}
