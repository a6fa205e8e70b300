package token

import (
	"reflect"
	"testing"
)

func TestTokenizeTurkish(t *testing.T) {
	set := Tokenize("DMA akışı neden böyle, s_axi_awaddr?")
	for _, want := range []string{"dma", "akışı", "neden", "böyle", "s_axi_awaddr"} {
		if !set.Contains(want) {
			t.Errorf("missing token %q in %v", want, set.Sorted())
		}
	}
}

func TestTokenizeDropsShort(t *testing.T) {
	set := Tokenize("a b cd e")
	if set.Contains("a") || set.Contains("b") || set.Contains("e") {
		t.Errorf("single-char tokens should be dropped: %v", set.Sorted())
	}
	if !set.Contains("cd") {
		t.Error("two-char token should survive")
	}
}

func TestTokenizeDedupes(t *testing.T) {
	set := Tokenize("dma dma DMA")
	if len(set) != 1 {
		t.Errorf("expected 1 token, got %v", set.Sorted())
	}
}

func TestOverlap(t *testing.T) {
	a := Tokenize("led pin atama")
	b := Tokenize("pin assignment for led array")
	if got := a.OverlapCount(b); got != 2 {
		t.Errorf("OverlapCount = %d, want 2", got)
	}
	if !a.Intersects(b) {
		t.Error("Intersects should be true")
	}
	if a.Intersects(Tokenize("tamamen farklı")) {
		t.Error("disjoint sets should not intersect")
	}
}

func TestSortedStable(t *testing.T) {
	set := Tokenize("zebra alpha mike")
	want := []string{"alpha", "mike", "zebra"}
	if got := set.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sorted = %v, want %v", got, want)
	}
}
