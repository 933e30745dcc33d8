// Package suggestion defines type-ahead candidates and their tiered scoring.
package suggestion

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind is the origin of a suggestion.
type Kind string

// Suggestion kinds.
const (
	KindAsset    Kind = "asset"
	KindCategory Kind = "category"
	KindTag      Kind = "tag"
)

// Score tiers. Prefix matches land in [PrefixFloor, PrefixCeiling], substring
// matches at Substring, fuzzy matches at or below FuzzyCeiling.
const (
	PrefixFloor   = 80.0
	PrefixCeiling = 100.0
	Substring     = 60.0
	FuzzyCeiling  = 40.0
	// MinSimilarity is the lowest normalized edit similarity kept as a fuzzy match.
	MinSimilarity = 0.5
)

// Candidate is an unscored suggestion text.
type Candidate struct {
	Text string `msgpack:"text"`
	Kind Kind   `msgpack:"kind"`
}

// Suggestion is a scored candidate.
type Suggestion struct {
	Text  string  `json:"text"`
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"`
}

// Score rates text against a typed prefix. It returns false when text does not
// match at any tier.
func Score(prefix, text string) (float64, bool) {
	p := strings.ToLower(strings.TrimSpace(prefix))
	t := strings.ToLower(strings.TrimSpace(text))
	if p == "" || t == "" {
		return 0, false
	}
	pl, tl := utf8.RuneCountInString(p), utf8.RuneCountInString(t)
	switch {
	case strings.HasPrefix(t, p):
		return PrefixFloor + (PrefixCeiling-PrefixFloor)*float64(pl)/float64(tl), true
	case strings.Contains(t, p):
		return Substring, true
	}
	sim := bestSimilarity(p, t)
	if sim < MinSimilarity {
		return 0, false
	}
	return FuzzyCeiling * sim, true
}

// bestSimilarity compares p against each word of t, and against the leading
// run of each word with p's length, returning the highest 1 - distance/maxLen.
func bestSimilarity(p, t string) float64 {
	pr := []rune(p)
	best := 0.0
	for _, word := range strings.Fields(t) {
		wr := []rune(word)
		cands := [][]rune{wr}
		if len(wr) > len(pr) {
			cands = append(cands, wr[:len(pr)])
		}
		for _, c := range cands {
			d := Levenshtein(pr, c)
			maxLen := len(pr)
			if len(c) > maxLen {
				maxLen = len(c)
			}
			if sim := 1 - float64(d)/float64(maxLen); sim > best {
				best = sim
			}
		}
	}
	return best
}

// Levenshtein returns the edit distance between a and b.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Rank scores candidates against prefix, collapses duplicates (same lowercase
// text and kind) to their best score, orders by score desc then text, and
// keeps at most size entries.
func Rank(prefix string, cands []Candidate, size int) []Suggestion {
	type key struct {
		text string
		kind Kind
	}
	best := make(map[key]Suggestion)
	for _, c := range cands {
		score, ok := Score(prefix, c.Text)
		if !ok {
			continue
		}
		k := key{strings.ToLower(strings.TrimSpace(c.Text)), c.Kind}
		if cur, seen := best[k]; !seen || score > cur.Score {
			best[k] = Suggestion{Text: strings.TrimSpace(c.Text), Kind: c.Kind, Score: score}
		}
	}
	out := make([]Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].Kind < out[j].Kind
	})
	if size > 0 && len(out) > size {
		out = out[:size]
	}
	return out
}
