package knowledge

import "strings"

// TokenSet is a set of normalized question tokens.
type TokenSet map[string]struct{}

// Tokenize lowercases s and splits it on whitespace into a set of tokens.
func Tokenize(s string) TokenSet {
	fields := strings.Fields(strings.ToLower(s))
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when either set is empty.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is Jaccard over the token sets of two questions.
func Similarity(q1, q2 string) float64 {
	return Jaccard(Tokenize(q1), Tokenize(q2))
}
