// Package chunker rebuilds a snapshot's text excerpts with a
// field-aware, overlapping window strategy. Each node's identity,
// attributes, provenance and edge summaries become ordered segments;
// segments are packed into word-bounded chunks with a continuation
// overlap so retrieval keeps context across chunk borders.
package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"ekb/internal/model"
)

const (
	// Method tags every excerpt batch produced by this strategy.
	Method = "field_aware_overlap_v1"

	DefaultMaxTokens     = 120
	DefaultOverlapTokens = 24
	DefaultSnippetRadius = 1

	maxAttrItems   = 12
	maxSourceRefs  = 4
	maxEdgeSummary = 10
)

// wordPattern is wider than the query tokenizer: chunk boundaries must
// not split identifiers, paths, or version strings.
var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_çğıöşüÇĞİÖŞÜ:/.\-]+`)

// attrPriority orders the attribute segments so the most searchable
// fields land in the first chunk.
var attrPriority = []string{
	"req_id", "decision_id", "title", "level", "priority", "status",
	"acceptance_criteria", "constraints", "kind", "vlnv", "spec",
	"detail", "source_file",
}

// Options tune the window geometry. Zero values take the defaults.
type Options struct {
	MaxTokens     int
	OverlapTokens int
	SnippetRadius int
}

func (o Options) normalized() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = DefaultOverlapTokens
	}
	if o.SnippetRadius <= 0 {
		o.SnippetRadius = DefaultSnippetRadius
	}
	return o
}

// Summary describes one chunking run.
type Summary struct {
	Method            string  `json:"method"`
	Nodes             int     `json:"nodes"`
	VectorChunks      int     `json:"vector_chunks"`
	AvgChunksPerNode  float64 `json:"avg_chunks_per_node"`
	MaxChunksPerNode  int     `json:"max_chunks_on_single_node"`
	MaxTokens         int     `json:"max_tokens"`
	OverlapTokens     int     `json:"overlap_tokens"`
	SnippetRadius     int     `json:"snippet_radius"`
}

// Rechunk replaces the snapshot's excerpts with freshly chunked ones
// and returns the run summary. The graph itself is not modified.
func Rechunk(snap *model.Snapshot, opts Options) Summary {
	opts = opts.normalized()

	outBy := map[string][]model.Edge{}
	inBy := map[string][]model.Edge{}
	for _, e := range snap.Graph.Edges {
		outBy[e.Source] = append(outBy[e.Source], e)
		inBy[e.Target] = append(inBy[e.Target], e)
	}

	var excerpts []model.TextExcerpt
	maxPerNode := 0
	for _, n := range snap.Graph.Nodes {
		segments := nodeSegments(n, outBy[n.ID], inBy[n.ID], opts.SnippetRadius)
		chunks := packSegments(segments, opts.MaxTokens, opts.OverlapTokens)
		if len(chunks) == 0 {
			chunks = []string{fmt.Sprintf("NODE_ID: %s\nNAME: %s\nNODE_TYPE: %s", n.ID, n.Name, n.Type)}
		}
		if len(chunks) > maxPerNode {
			maxPerNode = len(chunks)
		}
		for i, text := range chunks {
			excerpts = append(excerpts, model.TextExcerpt{
				ID:         stableID("V:", fmt.Sprintf("%s:chunk:%d:%s", n.ID, i+1, truncateRunes(text, 160))),
				NodeID:     n.ID,
				Project:    n.Project,
				Text:       text,
				Confidence: model.NormalizeConfidence(string(n.Confidence)),
				Provenance: n.Provenance,
			})
		}
	}
	snap.Excerpts = excerpts

	avg := 0.0
	if len(snap.Graph.Nodes) > 0 {
		avg = float64(len(excerpts)) / float64(len(snap.Graph.Nodes))
	}
	return Summary{
		Method:           Method,
		Nodes:            len(snap.Graph.Nodes),
		VectorChunks:     len(excerpts),
		AvgChunksPerNode: avg,
		MaxChunksPerNode: maxPerNode,
		MaxTokens:        opts.MaxTokens,
		OverlapTokens:    opts.OverlapTokens,
		SnippetRadius:    opts.SnippetRadius,
	}
}

func stableID(prefix, text string) string {
	sum := sha1.Sum([]byte(text))
	return prefix + hex.EncodeToString(sum[:])[:10]
}

func words(text string) []string {
	return wordPattern.FindAllString(text, -1)
}

// splitWindow slices an oversized word list into fixed windows that
// each repeat the tail of the previous one.
func splitWindow(wordList []string, maxTokens, overlap int) []string {
	if len(wordList) <= maxTokens {
		return []string{strings.Join(wordList, " ")}
	}
	stride := maxTokens - overlap
	if stride < 1 {
		stride = 1
	}
	var out []string
	for i := 0; i < len(wordList); i += stride {
		j := i + maxTokens
		if j > len(wordList) {
			j = len(wordList)
		}
		out = append(out, strings.Join(wordList[i:j], " "))
		if j >= len(wordList) {
			break
		}
	}
	return out
}

// packSegments folds whole segments into chunks up to the word budget.
// A segment larger than the budget is windowed on its own; when a chunk
// closes, the next one opens with a CONTINUATION tail from it.
func packSegments(segments []string, maxTokens, overlap int) []string {
	var chunks []string
	var parts []string
	count := 0

	flush := func() {
		if len(parts) > 0 {
			chunks = append(chunks, strings.Join(parts, "\n"))
			parts = nil
			count = 0
		}
	}

	for _, seg := range segments {
		segWords := words(seg)
		if len(segWords) == 0 {
			continue
		}
		if len(segWords) > maxTokens {
			flush()
			chunks = append(chunks, splitWindow(segWords, maxTokens, overlap)...)
			continue
		}
		if count+len(segWords) > maxTokens && len(parts) > 0 {
			tail := words(strings.Join(parts, "\n"))
			if len(tail) > overlap {
				tail = tail[len(tail)-overlap:]
			}
			flush()
			if len(tail) > 0 {
				parts = append(parts, "CONTINUATION: "+strings.Join(tail, " "))
				count = len(tail)
			}
		}
		parts = append(parts, seg)
		count += len(segWords)
	}
	flush()
	return chunks
}

func nodeSegments(n model.Node, outEdges, inEdges []model.Edge, snippetRadius int) []string {
	segments := []string{strings.Join([]string{
		"NODE_ID: " + n.ID,
		"NODE_TYPE: " + string(n.Type),
		"PROJECT_ID: " + n.Project,
		"NAME: " + n.Name,
		"CONFIDENCE: " + string(model.NormalizeConfidence(string(n.Confidence))),
	}, "\n")}

	segments = append(segments, attributeSegments(n.Attributes)...)

	if seg := sourceSegment(n.Provenance.Sources, snippetRadius); seg != "" {
		segments = append(segments, seg)
	}
	if seg := edgeSegment(outEdges, true); seg != "" {
		segments = append(segments, seg)
	}
	if seg := edgeSegment(inEdges, false); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

func attributeSegments(attrs map[string]any) []string {
	if len(attrs) == 0 {
		return nil
	}
	seen := map[string]bool{}
	keys := make([]string, 0, len(attrs))
	for _, k := range attrPriority {
		if _, ok := attrs[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(attrs))
	for k := range attrs {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var segments []string
	for _, k := range keys {
		lines := valueLines(attrs[k])
		if len(lines) == 0 {
			continue
		}
		seg := []string{"ATTR::" + k}
		for _, line := range lines {
			seg = append(seg, "- "+line)
		}
		segments = append(segments, strings.Join(seg, "\n"))
	}
	return segments
}

func valueLines(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case bool, int, int64, float64:
		return []string{fmt.Sprint(val)}
	case []any:
		limit := len(val)
		if limit > maxAttrItems {
			limit = maxAttrItems
		}
		out := make([]string, 0, limit)
		for _, item := range val[:limit] {
			if m, ok := item.(map[string]any); ok {
				out = append(out, jsonLine(m))
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case map[string]any:
		return []string{jsonLine(val)}
	default:
		return []string{fmt.Sprint(val)}
	}
}

func jsonLine(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sourceSegment(sources []model.SourceRef, radius int) string {
	if len(sources) > maxSourceRefs {
		sources = sources[:maxSourceRefs]
	}
	var lines []string
	for _, s := range sources {
		lines = append(lines, fmt.Sprintf("SOURCE_REF: file=%s line=%d section=%s", s.File, s.Line, s.Section))
		if snip := sourceSnippet(s.File, s.Line, radius); snip != "" {
			lines = append(lines, "SOURCE_SNIPPET: "+snip)
		}
	}
	return strings.Join(lines, "\n")
}

// sourceSnippet quotes the referenced line with its neighbors. Missing
// or unreadable files are skipped rather than failing the run.
func sourceSnippet(path string, line, radius int) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	fileLines := strings.Split(string(raw), "\n")
	if len(fileLines) == 0 {
		return ""
	}
	idx := 0
	if line > 0 {
		idx = line - 1
	}
	lo := idx - radius
	if lo < 0 {
		lo = 0
	}
	hi := idx + radius + 1
	if hi > len(fileLines) {
		hi = len(fileLines)
	}
	var quoted []string
	for i := lo; i < hi; i++ {
		quoted = append(quoted, fmt.Sprintf("L%d: %s", i+1, strings.TrimSpace(fileLines[i])))
	}
	return filepath.Base(path) + " :: " + strings.Join(quoted, " | ")
}

func edgeSegment(edges []model.Edge, outgoing bool) string {
	if len(edges) == 0 {
		return ""
	}
	sorted := make([]model.Edge, len(edges))
	copy(sorted, edges)

	var lines []string
	if outgoing {
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Type != sorted[j].Type {
				return sorted[i].Type < sorted[j].Type
			}
			return sorted[i].Target < sorted[j].Target
		})
		lines = append(lines, fmt.Sprintf("OUT_EDGE_COUNT: %d", len(sorted)))
		for i, e := range sorted {
			if i >= maxEdgeSummary {
				break
			}
			lines = append(lines, fmt.Sprintf("OUT_EDGE: %s -> %s (confidence=%s)",
				e.Type, e.Target, model.NormalizeConfidence(string(e.Confidence))))
		}
	} else {
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Type != sorted[j].Type {
				return sorted[i].Type < sorted[j].Type
			}
			return sorted[i].Source < sorted[j].Source
		})
		lines = append(lines, fmt.Sprintf("IN_EDGE_COUNT: %d", len(sorted)))
		for i, e := range sorted {
			if i >= maxEdgeSummary {
				break
			}
			lines = append(lines, fmt.Sprintf("IN_EDGE: %s <- %s (confidence=%s)",
				e.Type, e.Source, model.NormalizeConfidence(string(e.Confidence))))
		}
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
