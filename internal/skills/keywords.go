package skills

import (
	"sort"
	"strings"
	"unicode"
)

const (
	keywordMinLength = 4
	keywordMinFreq   = 3
	keywordLimit     = 10
)

// ExtractKeywords runs a keyword-density scan over the body: words of
// at least 4 characters appearing at least 3 times, the 10 most
// frequent first. Ties keep first-appearance order.
func ExtractKeywords(body string) []string {
	type stat struct {
		count int
		first int
	}
	counts := make(map[string]*stat)

	pos := 0
	for _, word := range strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		pos++
		if len(word) < keywordMinLength {
			continue
		}
		if s, ok := counts[word]; ok {
			s.count++
		} else {
			counts[word] = &stat{count: 1, first: pos}
		}
	}

	words := make([]string, 0, len(counts))
	for word, s := range counts {
		if s.count >= keywordMinFreq {
			words = append(words, word)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		a, b := counts[words[i]], counts[words[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.first < b.first
	})

	if len(words) > keywordLimit {
		words = words[:keywordLimit]
	}
	return words
}
