// Package token provides the word tokenizer shared by intent
// classification, ranking, and the evidence gate. Tokens are lowercase
// runs of word characters, Turkish letters included.
package token

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z0-9_çğıöşü]{2,}`)

// Set is a deduplicated token set.
type Set map[string]struct{}

// Tokenize lowercases the text and returns its set of word tokens.
// Single characters are dropped.
func Tokenize(text string) Set {
	out := Set{}
	for _, tok := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// Contains reports whether tok is a member of the set.
func (s Set) Contains(tok string) bool {
	_, ok := s[tok]
	return ok
}

// OverlapCount returns the number of tokens the two sets share.
func (s Set) OverlapCount(other Set) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			n++
		}
	}
	return n
}

// Intersects reports whether the two sets share at least one token.
func (s Set) Intersects(other Set) bool {
	return s.OverlapCount(other) > 0
}

// Sorted returns the tokens in lexicographic order. Useful for stable
// debug output.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for tok := range s {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
