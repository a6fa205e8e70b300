package answer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ekb/internal/classify"
	"ekb/internal/kb"
	"ekb/internal/model"
)

func storeFrom(nodes []model.Node, edges []model.Edge, excerpts []model.TextExcerpt) *kb.MemoryStore {
	return kb.NewMemoryStore(&model.Snapshot{
		Graph:    model.Graph{Nodes: nodes, Edges: edges},
		Excerpts: excerpts,
	})
}

func TestFormatCitations(t *testing.T) {
	store := storeFrom(
		[]model.Node{
			{ID: "B-1", Type: model.NodeComponent, Name: "uart_tx", Confidence: model.ConfidenceHigh},
			{ID: "A-1", Type: model.NodeRequirement, Name: "short name", Confidence: model.ConfidenceLow},
		},
		nil,
		[]model.TextExcerpt{
			{ID: "V:1", NodeID: "A-1", Text: strings.Repeat("x", 300)},
		},
	)

	nodeIDs := map[string]struct{}{"A-1": {}, "B-1": {}, "GHOST": {}}
	edges := []model.Edge{
		{ID: "E1", Type: model.EdgeImplements, Source: "B-1", Target: "A-1", Confidence: model.ConfidenceHigh},
	}

	c := FormatCitations(store, nodeIDs, edges)

	if len(c.Nodes) != 2 {
		t.Fatalf("want 2 node citations (dangling skipped), got %d", len(c.Nodes))
	}
	if c.Nodes[0].NodeID != "A-1" || c.Nodes[1].NodeID != "B-1" {
		t.Errorf("node citations must be ordered by ID: %+v", c.Nodes)
	}
	if got := len([]rune(c.Nodes[0].Text)); got != 220 {
		t.Errorf("excerpt should be truncated to 220 runes, got %d", got)
	}
	if c.Nodes[1].Text != "uart_tx" {
		t.Errorf("node without excerpt should cite its name, got %q", c.Nodes[1].Text)
	}
	if len(c.Edges) != 1 || c.Edges[0].EdgeID != "E1" {
		t.Errorf("unexpected edge citations: %+v", c.Edges)
	}
}

func TestFormatCitationsNormalizesConfidence(t *testing.T) {
	store := storeFrom(
		[]model.Node{
			{ID: "N-1", Type: model.NodeComponent, Name: "dma_engine", Confidence: "high"},
			{ID: "N-2", Type: model.NodeEvidence, Name: "timing report", Confidence: "bogus"},
		},
		nil,
		nil,
	)

	nodeIDs := map[string]struct{}{"N-1": {}, "N-2": {}}
	edges := []model.Edge{
		{ID: "E1", Type: model.EdgeVerifiedBy, Source: "N-1", Target: "N-2", Confidence: ""},
	}

	c := FormatCitations(store, nodeIDs, edges)

	if c.Nodes[0].Confidence != model.ConfidenceHigh {
		t.Errorf("lowercase tag should normalize to HIGH, got %s", c.Nodes[0].Confidence)
	}
	if c.Nodes[1].Confidence != model.ConfidenceMedium {
		t.Errorf("unknown tag should degrade to MEDIUM, got %s", c.Nodes[1].Confidence)
	}
	if c.Edges[0].Confidence != model.ConfidenceMedium {
		t.Errorf("empty edge tag should degrade to MEDIUM, got %s", c.Edges[0].Confidence)
	}
}

func TestDefaultAnswer(t *testing.T) {
	c := Citations{
		Nodes: []NodeCitation{{NodeID: "DMA-REQ-L0-001", NodeType: model.NodeRequirement}},
		Edges: []EdgeCitation{{EdgeType: model.EdgeDecomposesTo, Source: "a", Target: "b"}},
	}
	got := Default(classify.QueryTrace, "PROJECT-A", c)
	want := "Soru tipi: TRACE. Kapsam: PROJECT-A. İlgili node'lar: DMA-REQ-L0-001(REQUIREMENT). İlgili edge'ler: DECOMPOSES_TO:a->b."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	empty := Default(classify.QueryWhat, "", EmptyCitations())
	if !strings.Contains(empty, "Kapsam: GLOBAL") || !strings.Contains(empty, "İlgili node'lar: yok") {
		t.Errorf("empty citations should render GLOBAL/yok: %q", empty)
	}
}

func TestQuestionTriggers(t *testing.T) {
	cases := []struct {
		question string
		pin      bool
		addr     bool
	}{
		{"LED pinlerine hangi pin atandı?", true, false},
		{"leds_8bits assignment nerede?", true, false},
		{"AXI4-Lite adres sinyalleri neler?", false, true},
		{"base address nedir?", false, true},
		{"UART baud rate nedir?", false, false},
		{"led rengi nedir?", false, false},
	}
	for _, tc := range cases {
		lowered := strings.ToLower(tc.question)
		if got := isPinQuestion(lowered); got != tc.pin {
			t.Errorf("isPinQuestion(%q) = %v, want %v", tc.question, got, tc.pin)
		}
		if got := isAddressQuestion(lowered); got != tc.addr {
			t.Errorf("isAddressQuestion(%q) = %v, want %v", tc.question, got, tc.addr)
		}
	}
}

func pinNode(id, project, spec string) model.Node {
	return model.Node{
		ID: id, Type: model.NodeConstraint, Project: project,
		Confidence: model.ConfidenceHigh,
		Attributes: map[string]any{"constraint_type": "pin_assignment", "spec": spec},
	}
}

func TestPinRefinement(t *testing.T) {
	nodes := []model.Node{
		pinNode("P0", "PROJECT-B", "set_property PACKAGE_PIN H17 [get_ports {led_8bits[0]}]"),
		pinNode("P1", "PROJECT-B", "set_property PACKAGE_PIN K15 [get_ports {led_8bits[1]}]"),
		// Wrong port name, must be ignored even though the spec attribute says led.
		pinNode("P2", "PROJECT-B", "set_property PACKAGE_PIN J13 [get_ports {sw_led_en}]"),
		// Out of scope.
		pinNode("P3", "PROJECT-A", "set_property PACKAGE_PIN A1 [get_ports {led_8bits[2]}]"),
		{ID: "EV1", Type: model.NodeEvidence, Project: "PROJECT-B", Confidence: model.ConfidenceHigh},
	}
	edges := []model.Edge{
		{ID: "E1", Type: model.EdgeVerifiedBy, Source: "P0", Target: "EV1", Confidence: model.ConfidenceHigh},
		{ID: "E2", Type: model.EdgeImplements, Source: "P1", Target: "EV1", Confidence: model.ConfidenceHigh},
	}
	r := NewRefiner(storeFrom(nodes, edges, nil))

	ref, ok := r.Refine("LED pin ataması nedir?", "PROJECT-B")
	if !ok {
		t.Fatal("pin refiner should trigger")
	}
	if !strings.Contains(ref.Answer, "LED pin atamaları: LED[0]=H17, LED[1]=K15.") {
		t.Errorf("unexpected pin answer: %q", ref.Answer)
	}
	if strings.Contains(ref.Answer, "A1") {
		t.Errorf("out-of-scope pin leaked into answer: %q", ref.Answer)
	}
	if len(ref.ExtraEdges) != 1 || ref.ExtraEdges[0].ID != "E1" {
		t.Errorf("expected only the VERIFIED_BY edge as extra evidence, got %+v", ref.ExtraEdges)
	}
}

func TestPinRefinementNoEvidence(t *testing.T) {
	r := NewRefiner(storeFrom(nil, nil, nil))
	ref, ok := r.Refine("led pin atandı mı?", "")
	if !ok {
		t.Fatal("pin refiner should trigger")
	}
	if ref.Answer != "LED pin ataması için doğrudan kanıt bulunamadı." {
		t.Errorf("unexpected answer: %q", ref.Answer)
	}
}

func TestPinRefinementReadsGeneratorScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "create_axi_with_xdc.tcl")
	content := "set_property CONFIG.C_GPIO_WIDTH {8} [get_ips axi_gpio_0]\n" +
		"set_property CONFIG.C_IS_DUAL {0} [get_ips axi_gpio_0]\n"
	if err := os.WriteFile(script, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	nodes := []model.Node{
		pinNode("P0", "", "set_property PACKAGE_PIN H17 [get_ports {led_8bits[0]}]"),
		{
			ID: "C1", Type: model.NodeComponent, Name: "axi_gpio_0",
			Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{"source_file": script},
		},
	}
	r := NewRefiner(storeFrom(nodes, nil, nil))

	ref, _ := r.Refine("led pin atama", "")
	if !strings.Contains(ref.Answer, "AXI GPIO konfigürasyonu: 1 kanal, GPIO genişliği: 8 bit.") {
		t.Errorf("generator config not synthesized: %q", ref.Answer)
	}
}

func TestGpioConfigDescribe(t *testing.T) {
	cases := []struct {
		name     string
		cfg      gpioConfig
		channels string
		width    string
	}{
		{"unknown", gpioConfig{isDual: -1, gpioWidth: -1, gpio2Width: -1}, "belirtilmemiş", "belirtilmemiş"},
		{"dual both widths", gpioConfig{found: true, isDual: 1, gpioWidth: 8, gpio2Width: 4}, "2 kanal", "kanal1=8 bit, kanal2=4 bit"},
		{"dual one width", gpioConfig{found: true, isDual: 1, gpioWidth: 8, gpio2Width: -1}, "2 kanal", "8 bit"},
		{"single", gpioConfig{found: true, isDual: 0, gpioWidth: 8, gpio2Width: -1}, "1 kanal", "8 bit"},
		{"dual inferred", gpioConfig{found: true, isDual: -1, gpioWidth: 8, gpio2Width: 4}, "2 kanal", "kanal1=8 bit, kanal2=4 bit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			channels, width := tc.cfg.describe()
			if channels != tc.channels || width != tc.width {
				t.Errorf("got (%q, %q), want (%q, %q)", channels, width, tc.channels, tc.width)
			}
		})
	}
}

func TestAddressRefinement(t *testing.T) {
	nodes := []model.Node{
		{
			ID: "S1", Type: model.NodeEvidence, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{"evidence_type": "axi4lite_signal_binding", "signal": "S_AXI_AWADDR"},
		},
		{
			ID: "S2", Type: model.NodeEvidence, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{"evidence_type": "axi4lite_signal_binding", "signal": "s_axi_araddr"},
		},
		{
			ID: "SEG1", Type: model.NodeConstraint, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{
				"constraint_type": "axi_address_assignment",
				"spec":            "assign_bd_address addr_seg=/axi_gpio_0/S_AXI/Reg",
			},
		},
		{
			ID: "MAP1", Type: model.NodeEvidence, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{
				"evidence_type": "address_map_table",
				"peripheral":    "axi_gpio_0",
				"base_address":  " 0x4000_0000 ",
			},
		},
	}
	r := NewRefiner(storeFrom(nodes, nil, nil))

	ref, ok := r.Refine("AXI4-Lite adres sinyalleri ve base address nedir?", "")
	if !ok {
		t.Fatal("address refiner should trigger")
	}
	want := "AXI4-Lite adres sinyalleri: s_axi_awaddr, s_axi_araddr. " +
		"Adres segmenti: /axi_gpio_0/S_AXI/Reg. Base address: 0x4000_0000."
	if ref.Answer != want {
		t.Errorf("got %q\nwant %q", ref.Answer, want)
	}
	if len(ref.FocusNodeIDs) != 4 {
		t.Errorf("expected 4 focus nodes, got %v", ref.FocusNodeIDs)
	}
}

func TestAddressRefinementGpioFocus(t *testing.T) {
	nodes := []model.Node{
		{
			ID: "MAP-GPIO", Type: model.NodeEvidence, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{
				"evidence_type": "address_map_table",
				"peripheral":    "axi_gpio_0",
				"base_address":  "0x40000000",
			},
		},
		{
			ID: "MAP-UART", Type: model.NodeEvidence, Confidence: model.ConfidenceHigh,
			Attributes: map[string]any{
				"evidence_type": "address_map_table",
				"peripheral":    "axi_uartlite_0",
				"base_address":  "0x40600000",
			},
		},
	}
	r := NewRefiner(storeFrom(nodes, nil, nil))

	ref, _ := r.Refine("GPIO base address nedir?", "")
	if !strings.Contains(ref.Answer, "Base address: 0x40000000.") {
		t.Errorf("gpio focus should keep only the gpio map: %q", ref.Answer)
	}
	if strings.Contains(ref.Answer, "0x40600000") {
		t.Errorf("uart map leaked past gpio focus: %q", ref.Answer)
	}
	if !strings.Contains(ref.Answer, "AWADDR/ARADDR sinyal kanıtı bulunamadı") {
		t.Errorf("missing no-signal preamble: %q", ref.Answer)
	}
}
