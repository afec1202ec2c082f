// Package textutil holds the word tokenizer shared by the embedder,
// summarizer, lexical search and the TUI highlighter.
package textutil

import (
	"regexp"
	"strings"
)

// wordPattern matches runs of letters, keeping inner apostrophes (don't,
// l’homme).
var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Words returns the lower-cased words of s in order.
func Words(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

// WordSet returns the distinct lower-cased words of s.
func WordSet(s string) map[string]struct{} {
	words := Words(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Shared counts the words present in both sets.
func Shared(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
