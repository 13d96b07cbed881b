// Package sqlite is an embedded Store on a single SQLite file, accessed
// through gorm with the pure-Go glebarez driver. Writes are serialized on one
// connection. Index locks are process-local, so one file should be served by
// one process at a time.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/gate"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
)

const (
	pageSize  = 500
	batchSize = 500
)

type documentRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Body       string `gorm:"not null"`
	Label      string `gorm:"size:255;not null;index"`
	TokenCount int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type tokenRow struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:255;not null;uniqueIndex"`
}

func (tokenRow) TableName() string { return "index_tokens" }

type entryRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	TokenID      int64  `gorm:"not null;index"`
	DocumentID   int64  `gorm:"not null;index:idx_entries_document;index:idx_entries_type_document,priority:2"`
	DocumentType string `gorm:"size:50;not null;index:idx_entries_type_document,priority:1"`
	FieldID      string `gorm:"size:50;not null"`
	Weight       int    `gorm:"not null"`
}

func (entryRow) TableName() string { return "index_entries" }

type Store struct {
	*gate.Gate
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{Gate: gate.New(), db: db}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&documentRow{}, &tokenRow{}, &entryRow{}); err != nil {
		return fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateDocument(ctx context.Context, body, label string) (store.Document, error) {
	row := documentRow{Body: body, Label: label}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Document{}, fmt.Errorf("inserting document: %w", err)
	}
	return row.toDocument(), nil
}

func (s *Store) UpdateDocument(ctx context.Context, id int64, patch store.DocumentPatch) (store.Document, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Body != nil {
		updates["body"] = *patch.Body
	}
	if patch.Label != nil {
		updates["label"] = *patch.Label
	}
	res := s.db.WithContext(ctx).Model(&documentRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return store.Document{}, fmt.Errorf("updating document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return s.GetDocument(ctx, id)
}

func (s *Store) PageDocuments(ctx context.Context, opts store.ListOptions) ([]store.Document, error) {
	// SQLite accepts OFFSET only after a LIMIT.
	limit := math.MaxInt32
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	q := s.db.WithContext(ctx).Order("id").Limit(limit).Offset(opts.Offset)
	if opts.Label != "" {
		q = q.Where("label = ?", opts.Label)
	}
	var rows []documentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs := make([]store.Document, len(rows))
	for i, row := range rows {
		docs[i] = row.toDocument()
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&documentRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("querying document %d: %w", id, err)
	}
	return row.toDocument(), nil
}

func (s *Store) GetDocuments(ctx context.Context, ids []int64) ([]store.Document, error) {
	docs := make([]store.Document, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		var rows []documentRow
		if err := s.db.WithContext(ctx).Where("id IN ?", ids[start:end]).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("querying documents: %w", err)
		}
		for _, row := range rows {
			docs = append(docs, row.toDocument())
		}
	}
	return docs, nil
}

// ListDocuments pages by id so no cursor stays open while the caller works
// on a document.
func (s *Store) ListDocuments(ctx context.Context) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		var after int64
		for {
			var rows []documentRow
			err := s.db.WithContext(ctx).
				Where("id > ?", after).
				Order("id").
				Limit(pageSize).
				Find(&rows).Error
			if err != nil {
				yield(store.Document{}, fmt.Errorf("listing documents after %d: %w", after, err))
				return
			}
			for _, row := range rows {
				if !yield(row.toDocument(), nil) {
					return
				}
			}
			if len(rows) < pageSize {
				return
			}
			after = rows[len(rows)-1].ID
		}
	}
}

func (s *Store) SaveDocumentTokenCount(ctx context.Context, id int64, count int) error {
	res := s.db.WithContext(ctx).
		Model(&documentRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"token_count": count, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("saving token count for document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&documentRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *Store) LabelCounts(ctx context.Context) ([]store.LabelCount, error) {
	var counts []store.LabelCount
	err := s.db.WithContext(ctx).
		Model(&documentRow{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Order("label").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting labels: %w", err)
	}
	return counts, nil
}

func (s *Store) GetOrCreateTokens(ctx context.Context, names []string) (map[string]int64, error) {
	names = distinct(names)
	ids := make(map[string]int64, len(names))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(names); start += batchSize {
			chunk := names[start:min(start+batchSize, len(names))]
			placeholders := strings.TrimSuffix(strings.Repeat("(?),", len(chunk)), ",")
			args := make([]any, len(chunk))
			for i, name := range chunk {
				args[i] = name
			}
			if err := tx.Exec("INSERT INTO index_tokens (name) VALUES "+placeholders+" ON CONFLICT (name) DO NOTHING", args...).Error; err != nil {
				return fmt.Errorf("inserting tokens: %w", err)
			}
			var rows []tokenRow
			if err := tx.Where("name IN ?", chunk).Find(&rows).Error; err != nil {
				return fmt.Errorf("resolving tokens: %w", err)
			}
			for _, row := range rows {
				ids[row.Name] = row.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeletePostingsByDocument(ctx context.Context, documentID int64) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&entryRow{}).Error; err != nil {
		return fmt.Errorf("deleting postings for document %d: %w", documentID, err)
	}
	return nil
}

func (s *Store) BulkInsertPostings(ctx context.Context, postings []store.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	rows := make([]entryRow, len(postings))
	for i, p := range postings {
		rows[i] = entryRow{
			TokenID:      p.TokenID,
			DocumentID:   p.DocumentID,
			DocumentType: p.DocumentType,
			FieldID:      p.FieldID,
			Weight:       p.Weight,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("inserting %d postings: %w", len(rows), err)
	}
	return nil
}

func (s *Store) DeleteAllTokensAndPostings(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM index_entries").Error; err != nil {
			return fmt.Errorf("clearing postings: %w", err)
		}
		if err := tx.Exec("DELETE FROM index_tokens").Error; err != nil {
			return fmt.Errorf("clearing tokens: %w", err)
		}
		return nil
	})
}

func (s *Store) AggregatePostingsByDocument(ctx context.Context, names []string) ([]store.DocumentAggregate, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var aggs []store.DocumentAggregate
	err := s.db.WithContext(ctx).
		Table("index_entries AS e").
		Select("e.document_id AS document_id, SUM(e.weight) AS sum_weight, COUNT(DISTINCT e.token_id) AS distinct_tokens, AVG(e.weight) AS avg_weight").
		Joins("JOIN index_tokens t ON t.id = e.token_id").
		Where("t.name IN ?", names).
		Group("e.document_id").
		Order("e.document_id").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating postings: %w", err)
	}
	return aggs, nil
}

func (r documentRow) toDocument() store.Document {
	return store.Document{
		ID:         r.ID,
		Body:       r.Body,
		Label:      r.Label,
		TokenCount: r.TokenCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
