// Package normalize turns raw property values into comparable keys.
// Indexing and query scoring share these functions so that a value
// written to the index and the same value in a query agree.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// orgTypes are legal form tokens dropped from name fingerprints.
var orgTypes = map[string]bool{
	"ltd": true, "limited": true, "inc": true, "incorporated": true,
	"llc": true, "corp": true, "corporation": true, "co": true,
	"company": true, "gmbh": true, "ag": true, "sa": true, "plc": true,
	"jsc": true, "ojsc": true, "pjsc": true, "ooo": true, "oao": true,
	"bv": true, "nv": true, "spa": true, "srl": true, "the": true, "of": true,
}

// Fold lowercases s, strips diacritics and replaces punctuation with
// single spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits a folded string into words.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}

// Fingerprint returns an order-independent key for a name: its tokens
// without legal form words, sorted and concatenated.
func Fingerprint(name string) string {
	tokens := Tokens(name)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !orgTypes[tok] {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		kept = tokens
	}
	sort.Strings(kept)
	return strings.Join(kept, "")
}

// Phonetic returns the Soundex code of a token, or "" for tokens that
// are too short or not alphabetic.
func Phonetic(token string) string {
	if len(token) < 3 {
		return ""
	}
	for _, r := range token {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return strings.ToLower(smetrics.Soundex(token))
}

// NameParts returns the distinct tokens of all names.
func NameParts(names []string) []string {
	var parts []string
	for _, name := range names {
		for _, tok := range Tokens(name) {
			if len(tok) > 1 {
				parts = append(parts, tok)
			}
		}
	}
	return Unique(parts)
}

// Phonemes returns the distinct phonetic codes of all name tokens.
func Phonemes(names []string) []string {
	var codes []string
	for _, part := range NameParts(names) {
		if code := Phonetic(part); code != "" {
			codes = append(codes, code)
		}
	}
	return Unique(codes)
}

// Keys returns the distinct fingerprints of names.
func Keys(names []string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if key := Fingerprint(name); key != "" {
			keys = append(keys, key)
		}
	}
	return Unique(keys)
}

// Unique sorts and de-duplicates values, dropping blanks.
func Unique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
