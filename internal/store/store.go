// Package store persists Document and PageResult records in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ocrcheck/pipeline/internal/models"
)

// ErrDocumentNotFound reports a job referencing a document that no longer
// exists. Terminal: the job is dropped, never retried.
var ErrDocumentNotFound = errors.New("store: document not found")

// Store wraps the database handle with the operations the pipeline needs.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and returns a Store. Migrations are the callers'
// concern via AutoMigrate.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle, mainly for tests.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the documents and page_results tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Document{}, &models.PageResult{})
}

// CreateDocument inserts a new document record in the uploaded state.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return &doc, nil
}

// ClaimForProcessing atomically transitions the document to processing, but
// only from a processable state. It reports false when another worker already
// claimed the document or it is past processing, which callers treat as
// "skip", not as an error.
func (s *Store) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status IN ?", id, []models.DocumentStatus{models.StatusUploaded, models.StatusFailed}).
		Update("status", models.StatusProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("claim document %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetStatus unconditionally moves the document to the given status.
func (s *Store) SetStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set status %s on %s: %w", status, id, err)
	}
	return nil
}

// SavePageResult persists one page's results as soon as it is processed, so
// partial progress survives a crash between pages.
func (s *Store) SavePageResult(ctx context.Context, page *models.PageResult) error {
	if err := s.db.WithContext(ctx).Create(page).Error; err != nil {
		return fmt.Errorf("save page %d of %s: %w", page.PageNumber, page.DocumentID, err)
	}
	return nil
}

// PageResults returns all page results of a document in page order.
func (s *Store) PageResults(ctx context.Context, documentID string) ([]models.PageResult, error) {
	var pages []models.PageResult
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("page_number").
		Find(&pages).Error
	if err != nil {
		return nil, fmt.Errorf("load pages of %s: %w", documentID, err)
	}
	return pages, nil
}

// SaveOCRText stores the aggregated document text and page count.
func (s *Store) SaveOCRText(ctx context.Context, id, text string, pageCount int) error {
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"ocr_text": text, "page_count": pageCount}).Error
	if err != nil {
		return fmt.Errorf("save ocr text for %s: %w", id, err)
	}
	return nil
}

// SaveAnalysis stores the typed analysis fields plus the raw model response.
func (s *Store) SaveAnalysis(ctx context.Context, id string, res *models.AnalysisResult) error {
	updates := map[string]any{
		"category":            res.Category,
		"category_confidence": res.CategoryConfidence,
		"summary":             res.Summary,
		"tags":                models.StringList(res.Tags),
		"entities":            res.Entities,
		"document_date":       res.DocumentDate,
		"key_points":          models.StringList(res.KeyPoints),
		"ai_raw_response":     models.RawJSON(res.Raw),
	}
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("save analysis for %s: %w", id, err)
	}
	return nil
}

// DeletePageResults removes every page result of a document in one statement.
func (s *Store) DeletePageResults(ctx context.Context, documentID string) error {
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.PageResult{}).Error
	if err != nil {
		return fmt.Errorf("delete pages of %s: %w", documentID, err)
	}
	return nil
}

// ResetForReprocess discards all page results and returns the document to the
// uploaded state in a single transaction, so a worker can never observe a
// reset document that still has stale pages.
func (s *Store) ResetForReprocess(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.PageResult{}).Error; err != nil {
			return fmt.Errorf("delete pages of %s: %w", documentID, err)
		}
		res := tx.Model(&models.Document{}).
			Where("id = ?", documentID).
			Updates(map[string]any{"status": models.StatusUploaded, "ocr_text": "", "page_count": 0})
		if res.Error != nil {
			return fmt.Errorf("reset status of %s: %w", documentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil
	})
}
