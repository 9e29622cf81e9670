package normalize

import (
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// Identifier reduces an identifier to upper-case letters and digits,
// so "AB-123 456" and "ab123456" compare equal.
func Identifier(v string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(v) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Country lowercases a country code.
func Country(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// DateKey compacts an ISO date prefix ("1970-01-05T..") to digits
// ("19700105"). Values without a four digit year yield "".
func DateKey(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 10 {
		v = v[:10]
	}
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	key := b.String()
	switch len(key) {
	case 4, 6, 8:
		return key
	case 5, 7:
		return key[:len(key)-1]
	default:
		if len(key) > 8 {
			return key[:8]
		}
		return ""
	}
}

// ExpandDates returns every date key with its month and year prefixes,
// so a full birth date in the index also matches a query giving only
// the year.
func ExpandDates(values []string) []string {
	var out []string
	for _, v := range values {
		key := DateKey(v)
		for n := len(key); n >= 4; n -= 2 {
			out = append(out, key[:n])
		}
	}
	return Unique(out)
}

// IndexFields computes the retrieval terms stored with an entity.
func IndexFields(m *domain.Model, e *domain.Entity) map[string][]string {
	names := e.Names(m)
	fields := map[string][]string{
		domain.FieldNames:        foldAll(names),
		domain.FieldNameKeys:     Keys(names),
		domain.FieldNameParts:    NameParts(names),
		domain.FieldNamePhonetic: Phonemes(names),
		domain.FieldIdentifiers:  identifiers(e.TypeValues(m, domain.TypeIdentifier)),
		domain.FieldCountries:    countries(e.TypeValues(m, domain.TypeCountry)),
		domain.FieldDates:        ExpandDates(e.TypeValues(m, domain.TypeDate)),
		domain.FieldAddresses:    foldAll(e.TypeValues(m, domain.TypeAddress)),
	}
	var text []string
	for prop, vals := range e.Properties {
		if p, ok := m.Property(e.Schema, prop); ok && p.Type == domain.TypeEntity {
			continue
		}
		text = append(text, foldAll(vals)...)
	}
	fields[domain.FieldText] = Unique(text)
	return fields
}

// Document wraps an entity with its retrieval terms.
func Document(m *domain.Model, dataset string, e *domain.Entity) domain.IndexDocument {
	return domain.IndexDocument{
		Dataset:    dataset,
		Entity:     *e,
		Fields:     IndexFields(m, e),
		Topics:     Unique(e.Get("topics")),
		References: Unique(e.TypeValues(m, domain.TypeEntity)),
	}
}

func foldAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, Fold(v))
	}
	return Unique(out)
}

func identifiers(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, Identifier(v))
	}
	return Unique(out)
}

func countries(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, Country(v))
	}
	return Unique(out)
}
