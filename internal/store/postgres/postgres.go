// Package postgres is the production Store. Documents, the token dictionary
// and postings live in three tables; the aggregate used for scoring runs as a
// single GROUP BY on the database side. Index locks are advisory locks, so
// they hold across every process connected to the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/postgres"
)

const pageSize = 500

// Schema creates the tables the store needs. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id          BIGSERIAL PRIMARY KEY,
    body        TEXT NOT NULL,
    label       VARCHAR(255) NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_label ON documents (label);

CREATE TABLE IF NOT EXISTS index_tokens (
    id   BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS index_entries (
    id            BIGSERIAL PRIMARY KEY,
    token_id      BIGINT NOT NULL REFERENCES index_tokens (id) ON DELETE CASCADE,
    document_id   BIGINT NOT NULL,
    document_type VARCHAR(50) NOT NULL,
    field_id      VARCHAR(50) NOT NULL,
    weight        INTEGER NOT NULL CHECK (weight > 0)
);
CREATE INDEX IF NOT EXISTS idx_index_entries_document ON index_entries (document_id);
CREATE INDEX IF NOT EXISTS idx_index_entries_type_document ON index_entries (document_type, document_id);
CREATE INDEX IF NOT EXISTS idx_index_entries_token ON index_entries (token_id);
`

type Store struct {
	client *pkgpostgres.Client
}

var _ store.Store = (*Store)(nil)

func New(client *pkgpostgres.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CreateDocument(ctx context.Context, body, label string) (store.Document, error) {
	doc := store.Document{Body: body, Label: label}
	err := s.client.DB.QueryRowContext(ctx,
		`INSERT INTO documents (body, label) VALUES ($1, $2)
		RETURNING id, token_count, created_at, updated_at`,
		body, label,
	).Scan(&doc.ID, &doc.TokenCount, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return store.Document{}, fmt.Errorf("inserting document: %w", err)
	}
	return doc, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id int64, patch store.DocumentPatch) (store.Document, error) {
	row := s.client.DB.QueryRowContext(ctx,
		`UPDATE documents
		SET body = COALESCE($2, body), label = COALESCE($3, label), updated_at = NOW()
		WHERE id = $1
		RETURNING id, body, label, token_count, created_at, updated_at`,
		id, patch.Body, patch.Label,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("updating document %d: %w", id, err)
	}
	return doc, nil
}

// PageDocuments returns one page ordered by id. A non-positive limit returns
// everything after the offset.
func (s *Store) PageDocuments(ctx context.Context, opts store.ListOptions) ([]store.Document, error) {
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, body, label, token_count, created_at, updated_at
		FROM documents
		WHERE $1 = '' OR label = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`,
		opts.Label, opts.Offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.client.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	row := s.client.DB.QueryRowContext(ctx,
		`SELECT id, body, label, token_count, created_at, updated_at FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("querying document %d: %w", id, err)
	}
	return doc, nil
}

func (s *Store) GetDocuments(ctx context.Context, ids []int64) ([]store.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, body, label, token_count, created_at, updated_at FROM documents WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	return collectDocuments(rows)
}

// ListDocuments pages through documents by id. Each page is read fully
// before it is yielded so no connection is held while the caller works.
func (s *Store) ListDocuments(ctx context.Context) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		var after int64
		for {
			rows, err := s.client.DB.QueryContext(ctx,
				`SELECT id, body, label, token_count, created_at, updated_at
				FROM documents WHERE id > $1 ORDER BY id LIMIT $2`,
				after, pageSize,
			)
			if err != nil {
				yield(store.Document{}, fmt.Errorf("listing documents after %d: %w", after, err))
				return
			}
			page, err := collectDocuments(rows)
			if err != nil {
				yield(store.Document{}, err)
				return
			}
			for _, doc := range page {
				if !yield(doc, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *Store) SaveDocumentTokenCount(ctx context.Context, id int64, count int) error {
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE documents SET token_count = $1, updated_at = NOW() WHERE id = $2`, count, id)
	if err != nil {
		return fmt.Errorf("saving token count for document %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.client.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *Store) LabelCounts(ctx context.Context) ([]store.LabelCount, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM documents GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("counting labels: %w", err)
	}
	defer rows.Close()
	var counts []store.LabelCount
	for rows.Next() {
		var lc store.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("scanning label count: %w", err)
		}
		counts = append(counts, lc)
	}
	return counts, rows.Err()
}

// GetOrCreateTokens inserts missing names in sorted order, so concurrent
// callers with overlapping sets lock dictionary rows in the same order.
func (s *Store) GetOrCreateTokens(ctx context.Context, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_tokens (name)
			SELECT DISTINCT n FROM unnest($1::text[]) AS u(n) ORDER BY n
			ON CONFLICT (name) DO NOTHING`,
			pq.Array(sorted),
		); err != nil {
			return fmt.Errorf("inserting tokens: %w", err)
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name FROM index_tokens WHERE name = ANY($1)`, pq.Array(sorted))
		if err != nil {
			return fmt.Errorf("resolving tokens: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return fmt.Errorf("scanning token: %w", err)
			}
			ids[name] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeletePostingsByDocument(ctx context.Context, documentID int64) error {
	if _, err := s.client.DB.ExecContext(ctx,
		`DELETE FROM index_entries WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting postings for document %d: %w", documentID, err)
	}
	return nil
}

// BulkInsertPostings streams postings with COPY in one transaction.
func (s *Store) BulkInsertPostings(ctx context.Context, postings []store.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("index_entries",
			"token_id", "document_id", "document_type", "field_id", "weight"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for _, p := range postings {
			if _, err := stmt.ExecContext(ctx, p.TokenID, p.DocumentID, p.DocumentType, p.FieldID, p.Weight); err != nil {
				stmt.Close()
				return fmt.Errorf("buffering posting: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing %d postings: %w", len(postings), err)
		}
		return stmt.Close()
	})
}

// DeleteAllTokensAndPostings keeps the id sequences running so an id handed
// out before the truncate is never reused for another name.
func (s *Store) DeleteAllTokensAndPostings(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx,
		`TRUNCATE index_entries, index_tokens`); err != nil {
		return fmt.Errorf("truncating index: %w", err)
	}
	return nil
}

func (s *Store) AggregatePostingsByDocument(ctx context.Context, names []string) ([]store.DocumentAggregate, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT e.document_id, SUM(e.weight), COUNT(DISTINCT e.token_id), AVG(e.weight)::float8
		FROM index_entries e
		JOIN index_tokens t ON t.id = e.token_id
		WHERE t.name = ANY($1)
		GROUP BY e.document_id
		ORDER BY e.document_id`,
		pq.Array(names),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating postings: %w", err)
	}
	defer rows.Close()
	var aggs []store.DocumentAggregate
	for rows.Next() {
		var a store.DocumentAggregate
		if err := rows.Scan(&a.DocumentID, &a.SumWeight, &a.DistinctTokens, &a.AvgWeight); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (store.Document, error) {
	var doc store.Document
	err := row.Scan(&doc.ID, &doc.Body, &doc.Label, &doc.TokenCount, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func collectDocuments(rows *sql.Rows) ([]store.Document, error) {
	defer rows.Close()
	var docs []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return nil
}
