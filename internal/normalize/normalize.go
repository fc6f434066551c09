// Package normalize provides pure text-normalization helpers used by every
// entity-matching strategy: lower-casing, diacritic stripping, punctuation
// removal, and stop-word-filtered "core term" extraction.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining marks so that
// "Rīgā" and "Riga" normalize to the same text.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stopWords are excluded from core terms: articles, prepositions, and
// generic venue words that carry no identity ("the venue near the station"
// should compare on its distinctive terms only). Words like "center" or
// "hall" stay: they are part of how a place is named.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"from": true, "into": true, "onto": true, "near": true,
	"venue": true, "place": true, "location": true, "area": true,
}

// Normalize lower-cases the text, strips diacritics and quote characters,
// replaces remaining punctuation with spaces, and collapses whitespace.
// Pure and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	lowered := strings.ToLower(text)

	stripped, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		// transform.String only fails on a misbehaving transformer; fall
		// back to the lowered input rather than dropping the value.
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r == '\'' || r == '"' || r == '`' || r == '‘' || r == '’' ||
			r == '“' || r == '”' || r == '´':
			// Quotes are removed entirely so possessives collapse
			// ("John's" -> "johns") instead of splitting into two tokens.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// CoreTerms returns the distinctive tokens of the normalized text, in
// first-occurrence order: tokens longer than 2 runes that are not stop words.
func CoreTerms(text string) []string {
	var terms []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(Normalize(text)) {
		if len([]rune(tok)) <= 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// WordsMatch reports whether two normalized tokens denote the same word,
// tolerating plural and possessive suffixes via substring containment
// ("speakers" matches "speaker", "johns" matches "john").
func WordsMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return len(a) >= 3 && strings.Contains(b, a)
}

// TermsSimilar reports whether two core-term sets denote the same name.
// Two sets are similar when: they are equal after joining; or they have the
// same arity (both single-word or both multi-word) and one joined form
// contains the other; or both have more than one term and at least half of
// the smaller set's terms match a term of the larger set (substring-tolerant
// word equality, see WordsMatch).
func TermsSimilar(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	joinedA := strings.Join(a, " ")
	joinedB := strings.Join(b, " ")
	if joinedA == joinedB {
		return true
	}

	sameArity := (len(a) == 1) == (len(b) == 1)
	if sameArity && (strings.Contains(joinedA, joinedB) || strings.Contains(joinedB, joinedA)) {
		return true
	}

	if len(a) > 1 && len(b) > 1 {
		smaller, larger := a, b
		if len(b) < len(a) {
			smaller, larger = b, a
		}
		matched := 0
		for _, sw := range smaller {
			for _, lw := range larger {
				if WordsMatch(sw, lw) {
					matched++
					break
				}
			}
		}
		return float64(matched)/float64(len(smaller)) >= 0.5
	}

	return false
}

// Ratio is a cheap normalized-string similarity in [0,1] used as the
// scorer's fallback when no entity service is configured: 1.0 for equal
// normalized text, otherwise the share of matched core terms over the
// larger set.
func Ratio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := CoreTerms(a), CoreTerms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	larger := len(ta)
	if len(tb) > larger {
		larger = len(tb)
	}
	matched := 0
	for _, wa := range ta {
		for _, wb := range tb {
			if WordsMatch(wa, wb) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(larger)
}
