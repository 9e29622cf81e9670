package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

var _ driven.IndexBackend = (*Store)(nil)

// defaultQuerySize is used when a query does not set Size.
const defaultQuerySize = 10

// CreateIndex creates the entity and FTS tables of a generation.
func (s *Store) CreateIndex(ctx context.Context, index string) error {
	entities, fts, err := tables(index)
	if err != nil {
		return err
	}
	columns := strings.Join(domain.IndexFields(), ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO indices (name, created_at) VALUES (?, ?)",
		index, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("registering index %s: %w", index, err)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			rowid INTEGER PRIMARY KEY,
			dataset TEXT NOT NULL,
			id TEXT NOT NULL,
			schema TEXT NOT NULL,
			datasets TEXT NOT NULL,
			referents TEXT NOT NULL,
			countries TEXT NOT NULL,
			topics TEXT NOT NULL,
			refs TEXT NOT NULL,
			entity TEXT NOT NULL,
			UNIQUE (dataset, id)
		)`, entities),
		fmt.Sprintf(`CREATE INDEX %s ON %s (id)`, strings.TrimSuffix(entities, `"`)+`_id"`, entities),
		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING fts5(%s, tokenize = 'unicode61 remove_diacritics 2')`, fts, columns),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index %s: %w", index, err)
		}
	}
	return tx.Commit()
}

// DeleteIndex drops a generation. The aliased generation cannot be deleted.
func (s *Store) DeleteIndex(ctx context.Context, index string) error {
	entities, fts, err := tables(index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var aliased int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM aliases WHERE index_name = ?", index).Scan(&aliased); err != nil {
		return fmt.Errorf("checking aliases: %w", err)
	}
	if aliased > 0 {
		return fmt.Errorf("%w: index %s is aliased", domain.ErrInvalidInput, index)
	}

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + fts,
		"DROP TABLE IF EXISTS " + entities,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping index %s: %w", index, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM indices WHERE name = ?", index); err != nil {
		return fmt.Errorf("unregistering index %s: %w", index, err)
	}
	return tx.Commit()
}

// ListIndices returns registered index names with the prefix, sorted.
func (s *Store) ListIndices(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM indices WHERE substr(name, 1, length(?)) = ? ORDER BY name", prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing indices: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning index name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// BulkWrite applies operations in one transaction.
func (s *Store) BulkWrite(ctx context.Context, index string, ops []domain.IndexOp) error {
	entities, fts, err := tables(index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	w := &writer{tx: tx, entities: entities, fts: fts, model: s.model}
	for i := range ops {
		if err := w.apply(ctx, &ops[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CopyDataset copies the rows of a dataset, including their FTS rows.
func (s *Store) CopyDataset(ctx context.Context, from, to, dataset string) (int, error) {
	srcE, srcF, err := tables(from)
	if err != nil {
		return 0, err
	}
	dstE, dstF, err := tables(to)
	if err != nil {
		return 0, err
	}
	columns := strings.Join(domain.IndexFields(), ", ")
	prefixed := "f." + strings.Join(domain.IndexFields(), ", f.")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (dataset, id, schema, datasets, referents, countries, topics, refs, entity)
		SELECT dataset, id, schema, datasets, referents, countries, topics, refs, entity FROM %s WHERE dataset = ?
	`, dstE, srcE), dataset)
	if err != nil {
		return 0, fmt.Errorf("copying %s rows: %w", dataset, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (rowid, %s)
		SELECT t.rowid, %s FROM %s t
		JOIN %s s ON s.dataset = t.dataset AND s.id = t.id
		JOIN %s f ON f.rowid = s.rowid
		WHERE t.dataset = ?
	`, dstF, columns, prefixed, dstE, srcE, srcF), dataset); err != nil {
		return 0, fmt.Errorf("copying %s terms: %w", dataset, err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

// DeleteDataset removes a dataset's rows.
func (s *Store) DeleteDataset(ctx context.Context, index, dataset string) error {
	entities, fts, err := tables(index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE dataset = ?)", fts, entities), dataset); err != nil {
		return fmt.Errorf("deleting %s terms: %w", dataset, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE dataset = ?", entities), dataset); err != nil {
		return fmt.Errorf("deleting %s rows: %w", dataset, err)
	}
	return tx.Commit()
}

// CountDataset counts a dataset's rows.
func (s *Store) CountDataset(ctx context.Context, index, dataset string) (int, error) {
	entities, _, err := tables(index)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE dataset = ?", entities), dataset).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", dataset, err)
	}
	return n, nil
}

// PutGeneration stores generation metadata on the index row.
func (s *Store) PutGeneration(ctx context.Context, gen domain.Generation) error {
	data, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("encoding generation: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE indices SET meta = ? WHERE name = ?", string(data), gen.Name)
	if err != nil {
		return fmt.Errorf("storing generation %s: %w", gen.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: index %s", domain.ErrNotFound, gen.Name)
	}
	return nil
}

// GetGeneration reads generation metadata.
func (s *Store) GetGeneration(ctx context.Context, index string) (*domain.Generation, error) {
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT meta FROM indices WHERE name = ?", index).Scan(&meta)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !meta.Valid) {
		return nil, fmt.Errorf("%w: generation %s", domain.ErrNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("reading generation %s: %w", index, err)
	}
	var gen domain.Generation
	if err := json.Unmarshal([]byte(meta.String), &gen); err != nil {
		return nil, fmt.Errorf("decoding generation %s: %w", index, err)
	}
	return &gen, nil
}

// GetAlias returns the index an alias points to.
func (s *Store) GetAlias(ctx context.Context, alias string) (string, error) {
	var index string
	err := s.db.QueryRowContext(ctx, "SELECT index_name FROM aliases WHERE alias = ?", alias).Scan(&index)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: alias %s", domain.ErrNotFound, alias)
	}
	if err != nil {
		return "", fmt.Errorf("reading alias %s: %w", alias, err)
	}
	return index, nil
}

// PutAlias repoints an alias with a single upsert.
func (s *Store) PutAlias(ctx context.Context, alias, index string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indices WHERE name = ?", index).Scan(&exists); err != nil {
		return fmt.Errorf("checking index %s: %w", index, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: index %s", domain.ErrNotFound, index)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (alias, index_name) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET index_name = excluded.index_name
	`, alias, index)
	if err != nil {
		return fmt.Errorf("repointing alias %s: %w", alias, err)
	}
	return nil
}

// Ping checks the database answers.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Query runs a candidate or search query.
func (s *Store) Query(ctx context.Context, index string, q domain.BackendQuery) (*domain.BackendResult, error) {
	entities, fts, err := tables(index)
	if err != nil {
		return nil, err
	}
	built := buildQuery(entities, fts, q)

	var total int
	if err := s.db.QueryRowContext(ctx, built.count, built.countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting hits: %w", err)
	}

	result := &domain.BackendResult{Total: total}
	if len(built.facets) > 0 {
		result.Facets = make(map[string][]domain.FacetValue, len(built.facets))
	}
	for name, stmt := range built.facets {
		values, err := s.facet(ctx, stmt, built.countArgs)
		if err != nil {
			return nil, fmt.Errorf("counting facet %s: %w", name, err)
		}
		result.Facets[name] = values
	}

	rows, err := s.db.QueryContext(ctx, built.selectSQL, built.selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", index, err)
	}
	defer rows.Close()

	for rows.Next() {
		var hit domain.BackendHit
		var data string
		if err := rows.Scan(&hit.Dataset, &data, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &hit.Entity); err != nil {
			return nil, fmt.Errorf("decoding entity: %w", err)
		}
		result.Hits = append(result.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return result, nil
}

func (s *Store) facet(ctx context.Context, stmt string, args []any) ([]domain.FacetValue, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []domain.FacetValue{}
	for rows.Next() {
		var v domain.FacetValue
		if err := rows.Scan(&v.Name, &v.Count); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// writer applies index operations inside a transaction.
type writer struct {
	tx       *sql.Tx
	entities string
	fts      string
	model    *domain.Model
}

func (w *writer) apply(ctx context.Context, op *domain.IndexOp) error {
	doc := op.Document
	rowid, stored, err := w.lookup(ctx, doc.Dataset, doc.Entity.ID)
	if err != nil {
		return err
	}

	switch op.Type {
	case domain.IndexDelete:
		if rowid == 0 {
			return nil
		}
		return w.remove(ctx, rowid)
	case domain.IndexMerge:
		if stored != nil {
			stored.Merge(w.model, &doc.Entity)
			doc = normalize.Document(w.model, doc.Dataset, stored)
		}
	}

	if rowid != 0 {
		if err := w.remove(ctx, rowid); err != nil {
			return err
		}
	}
	return w.insert(ctx, &doc)
}

func (w *writer) lookup(ctx context.Context, dataset, id string) (int64, *domain.Entity, error) {
	var rowid int64
	var data string
	err := w.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT rowid, entity FROM %s WHERE dataset = ? AND id = ?", w.entities),
		dataset, id).Scan(&rowid, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("looking up %s/%s: %w", dataset, id, err)
	}
	var e domain.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return 0, nil, fmt.Errorf("decoding %s/%s: %w", dataset, id, err)
	}
	return rowid, &e, nil
}

func (w *writer) remove(ctx context.Context, rowid int64) error {
	if _, err := w.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", w.fts), rowid); err != nil {
		return fmt.Errorf("deleting terms: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", w.entities), rowid); err != nil {
		return fmt.Errorf("deleting row: %w", err)
	}
	return nil
}

func (w *writer) insert(ctx context.Context, doc *domain.IndexDocument) error {
	e := &doc.Entity
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.ID, err)
	}
	datasets, _ := json.Marshal(nonNil(e.Datasets))
	referents, _ := json.Marshal(nonNil(e.Referents))
	countries, _ := json.Marshal(nonNil(doc.Fields[domain.FieldCountries]))
	topics, _ := json.Marshal(nonNil(doc.Topics))
	refs, _ := json.Marshal(nonNil(doc.References))

	res, err := w.tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (dataset, id, schema, datasets, referents, countries, topics, refs, entity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, w.entities),
		doc.Dataset, e.ID, e.Schema, string(datasets), string(referents),
		string(countries), string(topics), string(refs), string(data))
	if err != nil {
		return fmt.Errorf("inserting %s: %w", e.ID, err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rowid of %s: %w", e.ID, err)
	}

	fields := domain.IndexFields()
	args := make([]any, 0, len(fields)+1)
	args = append(args, rowid)
	for _, f := range fields {
		args = append(args, strings.Join(doc.Fields[f], " "))
	}
	if _, err := w.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (rowid, %s) VALUES (?, %s)", w.fts, strings.Join(fields, ", "), placeholders(len(fields))),
		args...); err != nil {
		return fmt.Errorf("indexing %s: %w", e.ID, err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
