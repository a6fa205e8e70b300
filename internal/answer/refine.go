package answer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ekb/internal/kb"
	"ekb/internal/model"
	"ekb/internal/traverse"
)

// maxRefinerEdges caps the extra one-hop evidence a refiner may pull in
// on top of the traversal result.
const maxRefinerEdges = 32

var (
	packagePinPattern = regexp.MustCompile(`PACKAGE_PIN\s+([A-Za-z0-9_]+)`)
	portIndexPattern  = regexp.MustCompile(`\[get_ports\s+\{?([A-Za-z0-9_]+)\[(\d+)\]\}?\]`)
	addrSegPattern    = regexp.MustCompile(`addr_seg=([A-Za-z0-9_/\.\-]+)`)

	gpioWidthPattern  = regexp.MustCompile(`CONFIG\.C_GPIO_WIDTH\s*\{?(\d+)\}?`)
	gpio2WidthPattern = regexp.MustCompile(`CONFIG\.C_GPIO2_WIDTH\s*\{?(\d+)\}?`)
	isDualPattern     = regexp.MustCompile(`CONFIG\.C_IS_DUAL\s*\{?([01])\}?`)
)

// Refinement is a refiner's contribution: replacement answer text plus
// the focus nodes and extra edges to merge into the evidence before
// citations are rebuilt.
type Refinement struct {
	Answer       string
	FocusNodeIDs []string
	ExtraEdges   []model.Edge
}

// Refiner rewrites the generic answer for question shapes that deserve
// a synthesized one: LED pin assignments and AXI4-Lite address layout.
// Refiners only run on queries that passed the evidence gate.
type Refiner struct {
	store kb.Store
	trav  *traverse.Traverser
}

func NewRefiner(store kb.Store) *Refiner {
	return &Refiner{store: store, trav: traverse.New(store)}
}

// Refine returns a refinement for the question if a refiner matches.
// Pin questions win over address questions when both match.
func (r *Refiner) Refine(question, scope string) (Refinement, bool) {
	lowered := strings.ToLower(question)
	if isPinQuestion(lowered) {
		return r.refinePin(scope), true
	}
	if isAddressQuestion(lowered) {
		return r.refineAddress(lowered, scope), true
	}
	return Refinement{}, false
}

func isPinQuestion(lowered string) bool {
	return containsAny(lowered, "led", "leds", "led_8bits", "leds_8bits") &&
		containsAny(lowered, "pin", "package_pin", "atan", "atandı", "atama", "assignment")
}

func isAddressQuestion(lowered string) bool {
	return containsAny(lowered,
		"adres", "address", "awaddr", "araddr",
		"axi4-lite", "axi4 lite", "s_axi", "base address")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (r *Refiner) refinePin(scope string) Refinement {
	ordered, pinNodes := r.ledPinAssignments(scope)
	cfg := r.axiGPIOConfig(scope)

	ref := Refinement{
		FocusNodeIDs: pinNodes,
		ExtraEdges: r.trav.OneHop(pinNodes,
			[]model.EdgeType{model.EdgeConstrainedBy, model.EdgeVerifiedBy},
			scope, scope != "", maxRefinerEdges),
	}

	if len(ordered) == 0 {
		ref.Answer = "LED pin ataması için doğrudan kanıt bulunamadı."
		return ref
	}
	channels, width := cfg.describe()
	ref.Answer = fmt.Sprintf(
		"AXI GPIO konfigürasyonu: %s, GPIO genişliği: %s. LED pin atamaları: %s.",
		channels, width, strings.Join(ordered, ", "))
	return ref
}

// ledPinAssignments scans scoped CONSTRAINT nodes carrying XDC pin
// specs and extracts an ordered LED index to package pin mapping.
func (r *Refiner) ledPinAssignments(scope string) (ordered []string, nodeIDs []string) {
	byIndex := map[int]string{}
	for _, n := range r.store.AllNodes() {
		if scope != "" && n.Project != scope {
			continue
		}
		if n.Type != model.NodeConstraint {
			continue
		}
		ctype := strings.ToLower(n.AttrString("constraint_type"))
		if ctype != "pin" && ctype != "pin_assignment" {
			continue
		}
		spec := n.AttrString("spec")
		if !strings.Contains(spec, "PACKAGE_PIN") || !strings.Contains(strings.ToLower(spec), "led") {
			continue
		}
		pinMatch := packagePinPattern.FindStringSubmatch(spec)
		portMatch := portIndexPattern.FindStringSubmatch(spec)
		if pinMatch == nil || portMatch == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(portMatch[1]), "led") {
			continue
		}
		idx, err := strconv.Atoi(portMatch[2])
		if err != nil {
			continue
		}
		byIndex[idx] = pinMatch[1]
		nodeIDs = append(nodeIDs, n.ID)
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		ordered = append(ordered, fmt.Sprintf("LED[%d]=%s", idx, byIndex[idx]))
	}
	return ordered, nodeIDs
}

// gpioConfig is the AXI GPIO shape recovered from a generator TCL
// script. Missing fields stay at -1.
type gpioConfig struct {
	isDual     int
	gpioWidth  int
	gpio2Width int
	score      int
	found      bool
}

func (c gpioConfig) describe() (channels, width string) {
	channels = "belirtilmemiş"
	width = "belirtilmemiş"
	if !c.found {
		return channels, width
	}
	switch {
	case c.isDual == 1:
		channels = "2 kanal"
		if c.gpioWidth >= 0 && c.gpio2Width >= 0 {
			width = fmt.Sprintf("kanal1=%d bit, kanal2=%d bit", c.gpioWidth, c.gpio2Width)
		} else if c.gpioWidth >= 0 {
			width = fmt.Sprintf("%d bit", c.gpioWidth)
		}
	case c.isDual == 0:
		channels = "1 kanal"
		if c.gpioWidth >= 0 {
			width = fmt.Sprintf("%d bit", c.gpioWidth)
		}
	default:
		if c.gpio2Width >= 0 {
			channels = "2 kanal"
		} else if c.gpioWidth >= 0 {
			channels = "1 kanal"
		}
		if c.gpioWidth >= 0 && c.gpio2Width >= 0 {
			width = fmt.Sprintf("kanal1=%d bit, kanal2=%d bit", c.gpioWidth, c.gpio2Width)
		} else if c.gpioWidth >= 0 {
			width = fmt.Sprintf("%d bit", c.gpioWidth)
		}
	}
	return channels, width
}

// axiGPIOConfig locates generator TCL files referenced from node
// provenance and picks the best scoring CONFIG extraction. Files that
// no longer exist on disk are skipped silently.
func (r *Refiner) axiGPIOConfig(scope string) gpioConfig {
	candidates := map[string]struct{}{}
	for _, n := range r.store.AllNodes() {
		if scope != "" && n.Project != scope {
			continue
		}
		src := n.AttrString("source_file")
		if src == "" {
			continue
		}
		lowered := strings.ToLower(src)
		if containsAny(lowered, "axi", "gpio", "tcl") ||
			strings.Contains(strings.ToLower(n.Name), "axi_gpio") {
			candidates[src] = struct{}{}
		}
	}

	files := make([]string, 0, len(candidates))
	for f := range candidates {
		files = append(files, f)
	}
	sort.Strings(files)

	best := gpioConfig{isDual: -1, gpioWidth: -1, gpio2Width: -1}
	for _, f := range files {
		if strings.ToLower(filepath.Ext(f)) != ".tcl" {
			continue
		}
		raw, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		text := string(raw)

		cfg := gpioConfig{isDual: -1, gpioWidth: -1, gpio2Width: -1, found: true}
		if m := gpioWidthPattern.FindStringSubmatch(text); m != nil {
			cfg.gpioWidth, _ = strconv.Atoi(m[1])
			cfg.score += 2
		}
		if m := gpio2WidthPattern.FindStringSubmatch(text); m != nil {
			cfg.gpio2Width, _ = strconv.Atoi(m[1])
			cfg.score++
		}
		if m := isDualPattern.FindStringSubmatch(text); m != nil {
			cfg.isDual, _ = strconv.Atoi(m[1])
			cfg.score += 3
		}
		if cfg.gpioWidth < 0 && cfg.gpio2Width < 0 && cfg.isDual < 0 {
			continue
		}
		if strings.Contains(f, "create_axi_with_xdc") {
			cfg.score += 2
		}
		if !best.found || cfg.score > best.score {
			best = cfg
		}
	}
	return best
}

func (r *Refiner) refineAddress(lowered, scope string) Refinement {
	gpioFocus := strings.Contains(lowered, "gpio")

	awSignals := map[string]struct{}{}
	arSignals := map[string]struct{}{}
	segments := map[string]struct{}{}
	bases := map[string]struct{}{}
	focus := map[string]struct{}{}

	for _, n := range r.store.AllNodes() {
		if scope != "" && n.Project != scope {
			continue
		}
		ctype := n.AttrString("constraint_type")
		etype := n.AttrString("evidence_type")

		if n.Type == model.NodeEvidence && etype == "axi4lite_signal_binding" {
			focus[n.ID] = struct{}{}
			sig := strings.ToLower(n.AttrString("signal"))
			if strings.Contains(sig, "awaddr") {
				awSignals["s_axi_awaddr"] = struct{}{}
			}
			if strings.Contains(sig, "araddr") {
				arSignals["s_axi_araddr"] = struct{}{}
			}
		}

		if ctype == "axi_address_assignment" || etype == "tcl_address_assignment" {
			spec := n.AttrString("spec")
			seg := n.AttrString("address_segment")
			if gpioFocus && !strings.Contains(strings.ToLower(spec+" "+seg), "gpio") {
				continue
			}
			focus[n.ID] = struct{}{}
			if m := addrSegPattern.FindStringSubmatch(spec); m != nil {
				segments[m[1]] = struct{}{}
			}
			if seg != "" {
				segments[seg] = struct{}{}
			}
		}

		if ctype == "axi_address_map" || etype == "address_map_table" {
			per := n.AttrString("peripheral")
			spec := n.AttrString("spec")
			if gpioFocus && !strings.Contains(strings.ToLower(per+" "+spec), "gpio") {
				continue
			}
			focus[n.ID] = struct{}{}
			if base := strings.TrimSpace(n.AttrString("base_address")); base != "" {
				bases[base] = struct{}{}
			}
		}
	}

	focusIDs := make([]string, 0, len(focus))
	for id := range focus {
		focusIDs = append(focusIDs, id)
	}
	sort.Strings(focusIDs)

	ref := Refinement{
		FocusNodeIDs: focusIDs,
		ExtraEdges: r.trav.OneHop(focusIDs,
			[]model.EdgeType{model.EdgeVerifiedBy, model.EdgeConstrainedBy, model.EdgeDependsOn},
			scope, scope != "", maxRefinerEdges),
	}

	var sigParts []string
	sigParts = append(sigParts, sortedKeys(awSignals)...)
	sigParts = append(sigParts, sortedKeys(arSignals)...)

	segPart := joinOr(sortedKeys(segments), "belirtilmemiş")
	basePart := joinOr(sortedKeys(bases), "dokümante edilmemiş")

	if len(sigParts) > 0 {
		ref.Answer = fmt.Sprintf(
			"AXI4-Lite adres sinyalleri: %s. Adres segmenti: %s. Base address: %s.",
			strings.Join(sigParts, ", "), segPart, basePart)
	} else {
		ref.Answer = fmt.Sprintf(
			"AXI4-Lite arayüzünde doğrudan AWADDR/ARADDR sinyal kanıtı bulunamadı. Adres segmenti: %s. Base address: %s.",
			segPart, basePart)
	}
	return ref
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinOr(parts []string, fallback string) string {
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}
