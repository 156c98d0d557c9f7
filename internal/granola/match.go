package granola

import (
	"regexp"
	"strings"
)

// matchThreshold is the minimum bigram Dice coefficient for two normalized
// titles to be considered the same meeting. 0.7 tolerates provider-side
// paraphrasing (prefixes, punctuation, calendar suffixes) without matching
// unrelated short titles.
const matchThreshold = 0.7

var (
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, trims, strips everything that is not a word
// character or whitespace, and collapses whitespace runs. Pure and total;
// idempotent by construction.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWordChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitlesMatch reports whether two meeting titles refer to the same meeting:
// equal or containment after normalization, or bigram Dice similarity at or
// above the threshold. Empty normalized titles never match anything.
func TitlesMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return diceCoefficient(na, nb) >= matchThreshold
}

// diceCoefficient computes the bigram Dice similarity of two strings:
// shared bigrams (multiset intersection) divided by the average bigram
// count. Strings shorter than two runes have similarity 0 to anything.
func diceCoefficient(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	var totalA, totalB, shared int
	for _, n := range ba {
		totalA += n
	}
	for _, n := range bb {
		totalB += n
	}
	for g, na := range ba {
		if nb := bb[g]; nb > 0 {
			shared += min(na, nb)
		}
	}
	return float64(shared) / (float64(totalA+totalB) / 2)
}

// bigrams returns the multiset of two-rune shingles of s.
func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
