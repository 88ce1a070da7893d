package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ocrcheck/pipeline/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func createTestDocument(t *testing.T, s *Store, status models.DocumentStatus) *models.Document {
	t.Helper()
	doc := &models.Document{
		OriginalFilename: "scan.pdf",
		ContentType:      "application/pdf",
		FileSize:         1024,
		BlobKey:          "2026/08/" + string(status) + "abc.pdf",
		Status:           status,
	}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func TestClaimForProcessing(t *testing.T) {
	ctx := context.Background()

	t.Run("claims uploaded document once", func(t *testing.T) {
		s := newTestStore(t)
		doc := createTestDocument(t, s, models.StatusUploaded)

		claimed, err := s.ClaimForProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatalf("first claim failed: %v", err)
		}
		if !claimed {
			t.Fatal("first claim = false, want true")
		}

		// A duplicate delivery must lose the race: the row is already in
		// processing, so the conditional update affects zero rows.
		claimed, err = s.ClaimForProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatalf("second claim failed: %v", err)
		}
		if claimed {
			t.Error("second claim = true, want false")
		}

		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if got.Status != models.StatusProcessing {
			t.Errorf("status = %v, want processing", got.Status)
		}
	})

	t.Run("claims failed document", func(t *testing.T) {
		s := newTestStore(t)
		doc := createTestDocument(t, s, models.StatusFailed)

		claimed, err := s.ClaimForProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if !claimed {
			t.Error("claim of failed document = false, want true (failed is retryable)")
		}
	})

	t.Run("does not claim completed document", func(t *testing.T) {
		s := newTestStore(t)
		doc := createTestDocument(t, s, models.StatusCompleted)

		claimed, err := s.ClaimForProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if claimed {
			t.Error("claim of completed document = true, want false")
		}
	})

	t.Run("missing document is not an error", func(t *testing.T) {
		s := newTestStore(t)

		claimed, err := s.ClaimForProcessing(ctx, "2b9e1f0a-0000-0000-0000-000000000000")
		if err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if claimed {
			t.Error("claim of missing document = true, want false")
		}
	})
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocument(context.Background(), "2b9e1f0a-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestResetForReprocess(t *testing.T) {
	ctx := context.Background()

	t.Run("wipes pages and resets state", func(t *testing.T) {
		s := newTestStore(t)
		doc := createTestDocument(t, s, models.StatusCompleted)
		for page := 1; page <= 2; page++ {
			err := s.SavePageResult(ctx, &models.PageResult{
				DocumentID: doc.ID,
				PageNumber: page,
				Width:      800,
				Height:     600,
				FullText:   "text",
			})
			if err != nil {
				t.Fatalf("save page %d: %v", page, err)
			}
		}
		if err := s.SaveOCRText(ctx, doc.ID, "aggregated", 2); err != nil {
			t.Fatalf("save ocr text: %v", err)
		}

		if err := s.ResetForReprocess(ctx, doc.ID); err != nil {
			t.Fatalf("reset: %v", err)
		}

		pages, err := s.PageResults(ctx, doc.ID)
		if err != nil {
			t.Fatalf("load pages: %v", err)
		}
		if len(pages) != 0 {
			t.Errorf("pages after reset = %d, want 0", len(pages))
		}

		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if got.Status != models.StatusUploaded {
			t.Errorf("status = %v, want uploaded", got.Status)
		}
		if got.OCRText != "" || got.PageCount != 0 {
			t.Errorf("ocr text/page count not cleared: %q, %d", got.OCRText, got.PageCount)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		s := newTestStore(t)

		err := s.ResetForReprocess(ctx, "2b9e1f0a-0000-0000-0000-000000000000")
		if !errors.Is(err, ErrDocumentNotFound) {
			t.Fatalf("err = %v, want ErrDocumentNotFound", err)
		}
	})
}

func TestSaveAnalysis(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	doc := createTestDocument(t, s, models.StatusProcessing)

	res := &models.AnalysisResult{
		Category:           "invoice",
		CategoryConfidence: 0.93,
		Summary:            "An invoice.",
		Tags:               []string{"finance"},
		Entities:           &models.Entities{Organizations: []string{"Acme"}},
		DocumentDate:       "2026-08-01",
		KeyPoints:          []string{"net 30"},
		Raw:                []byte(`{"category":"invoice"}`),
	}
	if err := s.SaveAnalysis(ctx, doc.ID, res); err != nil {
		t.Fatalf("save analysis: %v", err)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Category != "invoice" || got.CategoryConfidence != 0.93 {
		t.Errorf("category = %q (%v), want invoice (0.93)", got.Category, got.CategoryConfidence)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "finance" {
		t.Errorf("tags = %v, want [finance]", got.Tags)
	}
	if got.Entities == nil || len(got.Entities.Organizations) != 1 {
		t.Errorf("entities = %+v, want Acme", got.Entities)
	}
	if string(got.AIRawResponse) != `{"category":"invoice"}` {
		t.Errorf("raw response = %s", got.AIRawResponse)
	}
}
