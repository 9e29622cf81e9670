package sqlite

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// builtQuery holds the SQL for one backend query.
type builtQuery struct {
	selectSQL  string
	selectArgs []any
	count      string
	countArgs  []any

	// facets maps facet names to statements taking countArgs.
	facets map[string]string
}

// buildQuery translates a backend query into SQL over the entity and
// FTS tables. Every clause becomes a materialized CTE of matching
// rowids; the score is the sum of the boosts of the CTEs containing
// the row.
func buildQuery(entities, fts string, q domain.BackendQuery) builtQuery {
	var (
		ctes    []string
		args    []any
		scores  []string
		must    []string
		should  []string
		filters []string
		fargs   []any
	)

	addClause := func(c domain.Clause) (string, bool) {
		expr := matchExpr(c)
		if expr == "" {
			return "", false
		}
		name := "c" + strconv.Itoa(len(ctes))
		ctes = append(ctes, fmt.Sprintf("%s AS MATERIALIZED (SELECT rowid FROM %s WHERE %s MATCH ?)", name, fts, fts))
		args = append(args, expr)
		scores = append(scores, fmt.Sprintf("(CASE WHEN e.rowid IN %s THEN %s ELSE 0 END)",
			name, strconv.FormatFloat(c.Boost, 'g', -1, 64)))
		return name, true
	}

	unmatchable := false
	for _, c := range q.Must {
		name, ok := addClause(c)
		if !ok {
			unmatchable = true
			continue
		}
		must = append(must, "e.rowid IN "+name)
	}
	for _, c := range q.Should {
		if name, ok := addClause(c); ok {
			should = append(should, "e.rowid IN "+name)
		}
	}

	switch {
	case unmatchable:
		filters = append(filters, "0")
	case len(must) > 0:
		filters = append(filters, must...)
	case len(should) > 0:
		filters = append(filters, "("+strings.Join(should, " OR ")+")")
	case len(q.Should) > 0:
		// Should clauses were given but none can match.
		filters = append(filters, "0")
	}

	if len(q.Datasets) > 0 {
		filters = append(filters, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(e.datasets) WHERE value IN (%s))", placeholders(len(q.Datasets))))
		fargs = append(fargs, toArgs(q.Datasets)...)
	}
	if len(q.Schemata) > 0 {
		filters = append(filters, fmt.Sprintf("e.schema IN (%s)", placeholders(len(q.Schemata))))
		fargs = append(fargs, toArgs(q.Schemata)...)
	}
	if len(q.IDs) > 0 {
		filters = append(filters, fmt.Sprintf(
			"(e.id IN (%s) OR EXISTS (SELECT 1 FROM json_each(e.referents) WHERE value IN (%s)))",
			placeholders(len(q.IDs)), placeholders(len(q.IDs))))
		fargs = append(fargs, toArgs(q.IDs)...)
		fargs = append(fargs, toArgs(q.IDs)...)
	}
	for _, f := range []struct {
		column string
		values []string
	}{
		{"countries", q.Countries},
		{"topics", q.Topics},
		{"refs", q.References},
	} {
		if len(f.values) == 0 {
			continue
		}
		filters = append(filters, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(e.%s) WHERE value IN (%s))", f.column, placeholders(len(f.values))))
		fargs = append(fargs, toArgs(f.values)...)
	}

	with := ""
	if len(ctes) > 0 {
		with = "WITH " + strings.Join(ctes, ", ") + " "
	}
	where := ""
	if len(filters) > 0 {
		where = " WHERE " + strings.Join(filters, " AND ")
	}
	score := "0"
	if len(scores) > 0 {
		score = strings.Join(scores, " + ")
	}

	size := q.Size
	if size <= 0 {
		size = defaultQuerySize
	}
	offset := max(q.Offset, 0)

	base := append(append([]any{}, args...), fargs...)
	built := builtQuery{
		selectSQL: fmt.Sprintf(
			"%sSELECT e.dataset, e.entity, %s AS score FROM %s e%s ORDER BY score DESC, e.id, e.dataset LIMIT ? OFFSET ?",
			with, score, entities, where),
		selectArgs: append(append([]any{}, base...), size, offset),
		count:      fmt.Sprintf("%sSELECT COUNT(*) FROM %s e%s", with, entities, where),
		countArgs:  base,
	}
	if q.GroupByID {
		// Page over entity IDs ranked by their best row, then return
		// every row of the IDs on the page.
		ranked := append(append([]string{}, ctes...),
			fmt.Sprintf("hits AS MATERIALIZED (SELECT e.rowid AS rid, e.id AS id, %s AS score FROM %s e%s)",
				score, entities, where),
			"ranked AS (SELECT id, MAX(score) AS best FROM hits GROUP BY id ORDER BY best DESC, id LIMIT ? OFFSET ?)")
		built.selectSQL = fmt.Sprintf(
			"WITH %s SELECT e.dataset, e.entity, h.score FROM hits h JOIN ranked r ON r.id = h.id "+
				"JOIN %s e ON e.rowid = h.rid ORDER BY r.best DESC, e.id, e.dataset",
			strings.Join(ranked, ", "), entities)
		built.count = fmt.Sprintf("%sSELECT COUNT(DISTINCT e.id) FROM %s e%s", with, entities, where)
	}
	if len(q.Facets) > 0 {
		built.facets = make(map[string]string, len(q.Facets))
		for _, name := range q.Facets {
			if stmt := facetSQL(name, with, entities, where); stmt != "" {
				built.facets[name] = stmt
			}
		}
	}
	return built
}

// facetSQL counts distinct entity IDs per value of a facet over the
// filtered rows.
func facetSQL(name, with, entities, where string) string {
	var value, from string
	switch name {
	case domain.FacetDatasets:
		value, from = "e.dataset", entities+" e"
	case domain.FacetSchema:
		value, from = "e.schema", entities+" e"
	case domain.FacetCountries, domain.FacetTopics:
		value, from = "j.value", fmt.Sprintf("%s e, json_each(e.%s) j", entities, name)
	default:
		return ""
	}
	return fmt.Sprintf("%sSELECT %s, COUNT(DISTINCT e.id) AS n FROM %s%s GROUP BY 1 ORDER BY n DESC, 1",
		with, value, from, where)
}

// matchExpr renders a clause as an FTS5 expression restricted to the
// clause's column. Terms are quoted so user input cannot inject
// operators.
func matchExpr(c domain.Clause) string {
	var parts []string
	for _, term := range c.Terms {
		if !hasWordChar(term) {
			continue
		}
		phrase := `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
		if c.Prefix {
			phrase += "*"
		}
		parts = append(parts, c.Field+" : "+phrase)
	}
	if len(parts) == 0 {
		return ""
	}
	if c.All && len(parts) != len(c.Terms) {
		return ""
	}
	op := " OR "
	if c.All {
		op = " AND "
	}
	return strings.Join(parts, op)
}

func hasWordChar(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
