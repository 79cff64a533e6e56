package skills

import (
	"sort"
	"strings"
	"unicode"
)

// HighConfidence is the normalised score at or above which a resolved
// candidate is treated as a confident match.
const HighConfidence = 0.5

// Candidate is one scored resolution result.
type Candidate struct {
	Skill *Skill
	Score float64
}

// HighConfidence reports whether the candidate clears the confidence bar.
func (c Candidate) HighConfidence() bool {
	return c.Score >= HighConfidence
}

// Source weights for token overlap.
const (
	weightName        = 3.0
	weightKeyword     = 2.0
	weightDescription = 1.0
)

// Resolve scores every skill against the request and returns candidates
// with non-zero score in descending order. Equal scores keep manifest
// insertion order. Resolution is a pure token-overlap computation and
// never calls a model.
func (m *Manifest) Resolve(request string) []Candidate {
	tokens := tokenize(request)
	if len(tokens) == 0 {
		return nil
	}

	m.mu.RLock()
	ordered := m.ordered
	m.mu.RUnlock()

	var out []Candidate
	for _, skill := range ordered {
		score := scoreSkill(skill, tokens)
		if score > 0 {
			out = append(out, Candidate{Skill: skill, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Search returns skills whose name, description, or keywords contain
// the query as a case-insensitive substring, in insertion order.
func (m *Manifest) Search(query string) []*Skill {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	m.mu.RLock()
	ordered := m.ordered
	m.mu.RUnlock()

	var out []*Skill
	for _, skill := range ordered {
		if strings.Contains(strings.ToLower(skill.Name), q) ||
			strings.Contains(strings.ToLower(skill.Description), q) ||
			containsKeyword(skill.Keywords, q) {
			out = append(out, skill)
		}
	}
	return out
}

func containsKeyword(keywords []string, q string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, q) {
			return true
		}
	}
	return false
}

// scoreSkill sums per-token overlap weights and normalises by the
// maximum possible weight, giving a score in [0,1]. Each request token
// counts once at its strongest source.
func scoreSkill(skill *Skill, tokens []string) float64 {
	nameTokens := tokenSet(tokenize(strings.ReplaceAll(skill.Name, "-", " ")))
	keywordTokens := tokenSet(skill.Keywords)
	descTokens := tokenSet(tokenize(skill.Description))

	var raw float64
	for _, tok := range tokens {
		switch {
		case nameTokens[tok]:
			raw += weightName
		case keywordTokens[tok]:
			raw += weightKeyword
		case descTokens[tok]:
			raw += weightDescription
		}
	}
	return raw / (weightName * float64(len(tokens)))
}

// tokenize lowercases and splits on non-alphanumerics, dropping tokens
// shorter than 3 characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = true
	}
	return set
}
