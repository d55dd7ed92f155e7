// Package headers maps free-text spreadsheet headers to canonical field names.
//
// Users author spreadsheets by hand, so the same column shows up as "Stock",
// "Existencias", "Cantidad disponible en stock" or "Qty on hand". A
// [Dictionary] holds the registered alias phrasings for every canonical field
// and scores each incoming header against them.
//
// # Normalization
//
// Every header and every alias goes through the same pipeline:
//
//  1. camelCase boundaries are split ("precioCompra" -> "precio Compra")
//  2. case is folded and diacritics are stripped ("Código" -> "codigo")
//  3. the text is tokenized on anything that is not a letter or digit
//  4. stop-words ("de", "la", "the", "of", ...) are dropped
//
// # Scoring
//
// A header fully matches an alias when its token set contains every alias
// token. A full match whose tokens also appear contiguously and in order is a
// phrase match. A header partially matches when the share of alias tokens it
// covers reaches the dictionary threshold (0.6 by default).
//
// Ranking, strongest first:
//
//   - full matches beat partial matches
//   - among full matches, more matched tokens wins (longest phrase)
//   - then phrase matches beat scattered ones
//   - among partial matches, higher overlap, then more matched tokens
//   - remaining ties go to the alias registered first
//
// The last rule makes results depend on dictionary order. That is policy:
// dictionaries list the more specific fields first.
package headers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum share of alias tokens a header must cover
// for a partial match.
const DefaultThreshold = 0.6

// DefaultStopWords are dropped from headers and aliases before scoring.
var DefaultStopWords = []string{
	// Spanish
	"de", "del", "la", "las", "el", "los", "en", "y", "o", "a", "al",
	"por", "para", "con", "un", "una", "unos", "unas", "su", "sus",
	// English
	"the", "of", "in", "on", "and", "or", "for", "an", "to", "per", "by", "at",
}

// foldText lowercases s and strips combining marks.
// Transformers are stateful, so a new chain is built per call.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// splitCamel inserts a space at lower-to-upper case transitions.
func splitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// Clean folds a header and splits it into tokens without removing stop-words.
func Clean(header string) []string {
	folded := foldText(splitCamel(strings.TrimSpace(header)))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenize cleans a header and drops stop-words.
func tokenize(header string, stop map[string]struct{}) []string {
	raw := Clean(header)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, skip := stop[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// NormalizeKey folds a value for natural-key comparison: case and diacritics
// are folded, surrounding space is trimmed and inner runs collapse to one.
func NormalizeKey(value string) string {
	return strings.Join(strings.Fields(foldText(value)), " ")
}
