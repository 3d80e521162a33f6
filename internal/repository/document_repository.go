package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"docqa/internal/model"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDuplicateFilename = errors.New("filename already exists")
)

// DocumentFilter narrows Find. Zero-valued fields are ignored; the date range
// applies only when both bounds are set.
type DocumentFilter struct {
	Query     string
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
}

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Insert relies on the unique index on filename; a violation maps to
// ErrDuplicateFilename and is the only duplicate check.
func (r *DocumentRepository) Insert(ctx context.Context, doc *model.Document) error {
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFilename
		}
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Find(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	var docs []model.Document
	if err := r.findQuery(ctx, filter).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("search documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) findQuery(ctx context.Context, filter DocumentFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.Document{})

	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(filename) LIKE ? OR LOWER(tags) LIKE ?", pattern, pattern)
	}
	if filter.StartDate != nil && filter.EndDate != nil {
		q = q.Where("upload_date BETWEEN ? AND ?", filter.StartDate.UTC(), filter.EndDate.UTC())
	}
	if filter.Category != "" {
		// mysql's default collations compare case-insensitively
		if r.db.Dialector.Name() == "mysql" {
			q = q.Where("BINARY category = ?", filter.Category)
		} else {
			q = q.Where("category = ?", filter.Category)
		}
	}
	return q.Order("upload_date DESC").Order("id DESC")
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document by id failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByFilename(ctx context.Context, filename string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("filename = ?", filename).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document by filename failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&model.Document{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete document failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Migrate creates the documents table if needed.
func (r *DocumentRepository) Migrate() error {
	if err := r.db.AutoMigrate(&model.Document{}); err != nil {
		return fmt.Errorf("auto migrate documents failed: %w", err)
	}
	return nil
}

// Reset drops and recreates the documents table.
func (r *DocumentRepository) Reset() error {
	if err := r.db.Migrator().DropTable(&model.Document{}); err != nil {
		return fmt.Errorf("drop documents table failed: %w", err)
	}
	return r.Migrate()
}

// isUniqueViolation covers dialects opened without TranslateError as well.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
