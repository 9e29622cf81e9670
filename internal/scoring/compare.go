// Package scoring compares a query entity with a candidate and produces
// a calibrated score in [0, 1].
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/xrash/smetrics"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

// DateToleranceDays is the window within which two full dates still
// count as a near match.
const DateToleranceDays = 3

// Options tunes comparators.
type Options struct {
	// Expensive enables edit-distance name comparison on top of
	// Jaro-Winkler.
	Expensive bool
}

// Compare runs the comparator of a property type over two value sets.
// ok is false when either side has no values, in which case the
// feature does not take part in the aggregate.
func Compare(t domain.PropertyType, query, candidate []string, opts Options) (score float64, ok bool) {
	if len(query) == 0 || len(candidate) == 0 {
		return 0, false
	}
	switch t {
	case domain.TypeName:
		return CompareNames(query, candidate, opts), true
	case domain.TypeIdentifier:
		return CompareIdentifiers(query, candidate), true
	case domain.TypeDate:
		return CompareDates(query, candidate), true
	case domain.TypeCountry:
		return CompareCountries(query, candidate), true
	case domain.TypeAddress:
		return CompareAddresses(query, candidate), true
	case domain.TypeText:
		return 0, false
	case domain.TypeEntity:
		return CompareReferences(query, candidate), true
	default:
		return 0, false
	}
}

// CompareReferences is 1 when both sides point at a common entity.
func CompareReferences(query, candidate []string) float64 {
	for _, q := range query {
		for _, c := range candidate {
			if q == c {
				return 1
			}
		}
	}
	return 0
}

// CompareNames returns the best pairwise name similarity. Names with
// the same fingerprint are identical regardless of word order.
func CompareNames(query, candidate []string, opts Options) float64 {
	best := 0.0
	for _, q := range query {
		qf := normalize.Fold(q)
		qk := normalize.Fingerprint(q)
		if qf == "" {
			continue
		}
		for _, c := range candidate {
			cf := normalize.Fold(c)
			if cf == "" {
				continue
			}
			if qk != "" && qk == normalize.Fingerprint(c) {
				return 1
			}
			s := smetrics.JaroWinkler(qf, cf, 0.7, 4)
			if opts.Expensive {
				s = math.Max(s, normalize.Similarity(qf, cf))
			}
			best = math.Max(best, s)
		}
	}
	return clamp(best)
}

// ComparePhonetic returns the share of query name parts whose Soundex
// code appears among the candidate's name parts.
func ComparePhonetic(query, candidate []string) float64 {
	qcodes := normalize.Phonemes(query)
	if len(qcodes) == 0 {
		return 0
	}
	ccodes := make(map[string]bool)
	for _, code := range normalize.Phonemes(candidate) {
		ccodes[code] = true
	}
	hits := 0
	for _, code := range qcodes {
		if ccodes[code] {
			hits++
		}
	}
	return float64(hits) / float64(len(qcodes))
}

// CompareIdentifiers scores 1 for an exact normalised match and 0.8
// when one identifier contains the other (prefixes, check digits).
func CompareIdentifiers(query, candidate []string) float64 {
	best := 0.0
	for _, q := range query {
		qn := normalize.Identifier(q)
		if len(qn) < 2 {
			continue
		}
		for _, c := range candidate {
			cn := normalize.Identifier(c)
			switch {
			case cn == qn:
				return 1
			case len(qn) >= 6 && len(cn) >= 6 && (strings.Contains(cn, qn) || strings.Contains(qn, cn)):
				best = math.Max(best, 0.8)
			}
		}
	}
	return best
}

// CompareDates matches dates at the precision of the less precise side:
// equal full dates score 1, equal months 0.9, equal years 0.8, full
// dates within the tolerance window 0.7 and swapped day/month 0.6.
func CompareDates(query, candidate []string) float64 {
	best := 0.0
	for _, q := range query {
		qk := normalize.DateKey(q)
		if qk == "" {
			continue
		}
		for _, c := range candidate {
			ck := normalize.DateKey(c)
			if ck == "" {
				continue
			}
			best = math.Max(best, compareDateKeys(qk, ck))
		}
	}
	return best
}

func compareDateKeys(a, b string) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if a[:n] == b[:n] {
		switch n {
		case 8:
			return 1
		case 6:
			return 0.9
		default:
			return 0.8
		}
	}
	if len(a) != 8 || len(b) != 8 {
		return 0
	}
	ta, errA := time.Parse("20060102", a)
	tb, errB := time.Parse("20060102", b)
	if errA == nil && errB == nil {
		diff := ta.Sub(tb)
		if diff < 0 {
			diff = -diff
		}
		if diff <= DateToleranceDays*24*time.Hour {
			return 0.7
		}
	}
	if a[:4] == b[:4] && a[4:6] == b[6:8] && a[6:8] == b[4:6] {
		return 0.6
	}
	return 0
}

// CompareCountries scores 1 when the sets overlap.
func CompareCountries(query, candidate []string) float64 {
	set := make(map[string]bool, len(candidate))
	for _, c := range candidate {
		set[normalize.Country(c)] = true
	}
	for _, q := range query {
		if set[normalize.Country(q)] {
			return 1
		}
	}
	return 0
}

// CompareAddresses returns the best token-set Jaccard similarity.
func CompareAddresses(query, candidate []string) float64 {
	best := 0.0
	for _, q := range query {
		qt := tokenSet(q)
		if len(qt) == 0 {
			continue
		}
		for _, c := range candidate {
			ct := tokenSet(c)
			inter := 0
			for tok := range qt {
				if ct[tok] {
					inter++
				}
			}
			union := len(qt) + len(ct) - inter
			if union > 0 {
				best = math.Max(best, float64(inter)/float64(union))
			}
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range normalize.Tokens(s) {
		set[tok] = true
	}
	return set
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
