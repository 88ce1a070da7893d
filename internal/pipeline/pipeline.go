// Package pipeline drives documents through the processing state machine:
// uploaded -> processing -> completed/failed. A worker polls the job queue,
// rasterizes the source file, runs OCR and table detection per page, persists
// partial progress as it goes, then finishes with best-effort analysis and
// indexing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/ocrcheck/pipeline/internal/blob"
	"github.com/ocrcheck/pipeline/internal/models"
	"github.com/ocrcheck/pipeline/internal/ocr"
	"github.com/ocrcheck/pipeline/internal/queue"
	"github.com/ocrcheck/pipeline/internal/raster"
	"github.com/ocrcheck/pipeline/internal/store"
)

// pageBreakMarker joins per-page texts into the document's aggregated text.
const pageBreakMarker = "\n\n--- Page Break ---\n\n"

// DefaultPollTimeout bounds each blocking dequeue so shutdown is observed
// promptly.
const DefaultPollTimeout = 5 * time.Second

// dequeueErrorBackoff throttles the poll loop while the queue is unreachable,
// so a Redis outage does not spin the loop at full speed.
var dequeueErrorBackoff = time.Second

// DocumentStore is the persistence capability the worker consumes.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, status models.DocumentStatus) error
	SavePageResult(ctx context.Context, page *models.PageResult) error
	SaveOCRText(ctx context.Context, id, text string, pageCount int) error
	SaveAnalysis(ctx context.Context, id string, res *models.AnalysisResult) error
	ResetForReprocess(ctx context.Context, id string) error
}

// BlobStore fetches source files and stores page rasters.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Rasterizer turns source bytes into ordered page images.
type Rasterizer interface {
	PrepareImages(data []byte, mediaType string) ([]image.Image, error)
}

// Recognizer runs OCR on one page.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (*ocr.Result, error)
}

// TableDetector reconstructs grid structure from a page image and its
// recognized text blocks.
type TableDetector interface {
	Detect(img image.Image, blocks []models.TextBlock) []models.Table
}

// Analyzer derives structured metadata from the aggregated text. A (nil, nil)
// return is an expected skip, not a failure.
type Analyzer interface {
	Analyze(ctx context.Context, text string, pageImage []byte) (*models.AnalysisResult, error)
}

// Indexer pushes finished documents to the search index.
type Indexer interface {
	Index(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, documentID string) error
}

// JobQueue supplies processing jobs and accepts requeues from Reprocess.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Enqueue(ctx context.Context, job queue.Job) error
}

// Deps bundles the collaborators a Worker needs.
type Deps struct {
	Store       DocumentStore
	Blobs       BlobStore
	Queue       JobQueue
	Rasterizer  Rasterizer
	Recognizer  Recognizer
	Tables      TableDetector
	Analyzer    Analyzer
	Indexer     Indexer
	PollTimeout time.Duration
}

// Worker processes one job at a time. Horizontal scaling runs more worker
// instances; the status claim in the store keeps duplicate deliveries out.
type Worker struct {
	deps Deps
}

// NewWorker wires a worker from its collaborators.
func NewWorker(deps Deps) *Worker {
	if deps.PollTimeout <= 0 {
		deps.PollTimeout = DefaultPollTimeout
	}
	return &Worker{deps: deps}
}

// Run polls the queue until ctx is canceled. A canceled context stops new
// dequeues; a job already picked up runs to completion (graceful drain).
// Individual job failures never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started, waiting for jobs")
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return nil
		default:
		}

		job, err := w.deps.Queue.Dequeue(ctx, w.deps.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopped")
				return nil
			}
			slog.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		if job.Type != queue.JobTypeOCR {
			slog.Warn("unknown job type, discarding", "type", job.Type)
			continue
		}
		if job.DocumentID == "" {
			slog.Warn("job without document id, discarding")
			continue
		}

		// Detach from the shutdown signal: an in-flight job finishes even
		// while the loop is draining.
		w.ProcessDocument(context.WithoutCancel(ctx), job.DocumentID)
	}
}

// ProcessDocument runs the full pipeline for one document. All failure
// handling happens here; the method never panics the loop and never returns.
func (w *Worker) ProcessDocument(ctx context.Context, documentID string) {
	logCtx := slog.With("documentId", documentID)

	doc, err := w.deps.Store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		// The reference is permanently invalid; drop without retry.
		logCtx.Error("document not found, dropping job")
		return
	}
	if err != nil {
		logCtx.Error("failed to load document", "error", err)
		return
	}

	claimed, err := w.deps.Store.ClaimForProcessing(ctx, documentID)
	if err != nil {
		logCtx.Error("failed to claim document", "error", err)
		return
	}
	if !claimed {
		logCtx.Info("document not claimable, skipping", "status", doc.Status)
		return
	}

	logCtx.Info("processing document", "filename", doc.OriginalFilename, "contentType", doc.ContentType)

	if err := w.process(ctx, doc, logCtx); err != nil {
		logCtx.Error("processing failed", "error", err)
		if serr := w.deps.Store.SetStatus(ctx, documentID, models.StatusFailed); serr != nil {
			logCtx.Error("failed to mark document failed", "error", serr)
		}
		return
	}

	if err := w.deps.Store.SetStatus(ctx, documentID, models.StatusCompleted); err != nil {
		logCtx.Error("failed to mark document completed", "error", err)
		return
	}
	logCtx.Info("document completed", "pages", doc.PageCount)
}

// process runs the fatal stages (fetch, rasterize, per-page OCR and table
// detection, aggregation) and then the best-effort stages (analysis,
// indexing). An error return flips the document to failed.
func (w *Worker) process(ctx context.Context, doc *models.Document, logCtx *slog.Logger) error {
	data, err := w.deps.Blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	logCtx.Info("fetched source", "bytes", len(data), "key", doc.BlobKey)

	images, err := w.deps.Rasterizer.PrepareImages(data, doc.ContentType)
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	pageCount := len(images)
	logCtx.Info("rasterized", "pages", pageCount)

	var texts []string
	var firstPagePNG []byte
	for i, img := range images {
		pageNumber := i + 1
		result, err := w.deps.Recognizer.Recognize(ctx, img)
		if err != nil {
			return fmt.Errorf("ocr page %d: %w", pageNumber, err)
		}

		tables := w.deps.Tables.Detect(img, result.Blocks)

		pageKey := blob.PageKey(doc.BlobKey, pageNumber)
		pngData, err := raster.EncodePNG(img)
		if err != nil {
			return fmt.Errorf("encode page %d: %w", pageNumber, err)
		}
		if err := w.deps.Blobs.Put(ctx, pageKey, pngData, "image/png"); err != nil {
			return fmt.Errorf("store page raster %d: %w", pageNumber, err)
		}
		if pageNumber == 1 {
			firstPagePNG = pngData
		}

		page := &models.PageResult{
			DocumentID:   doc.ID,
			PageNumber:   pageNumber,
			Width:        img.Bounds().Dx(),
			Height:       img.Bounds().Dy(),
			FullText:     result.FullText,
			Blocks:       result.Blocks,
			Tables:       tables,
			PageImageKey: pageKey,
			Confidence:   result.Confidence,
		}
		if err := w.deps.Store.SavePageResult(ctx, page); err != nil {
			return fmt.Errorf("persist page %d: %w", pageNumber, err)
		}

		if result.FullText != "" {
			texts = append(texts, result.FullText)
		}
		logCtx.Info("page processed", "page", pageNumber, "of", pageCount,
			"blocks", len(result.Blocks), "tables", len(tables), "confidence", result.Confidence)

		// Release the raster before moving on; pages can be large at 300 DPI.
		images[i] = nil
	}

	fullText := strings.Join(texts, pageBreakMarker)
	if err := w.deps.Store.SaveOCRText(ctx, doc.ID, fullText, pageCount); err != nil {
		return fmt.Errorf("persist aggregated text: %w", err)
	}
	doc.OCRText = fullText
	doc.PageCount = pageCount

	w.analyzeAndIndex(ctx, doc, firstPagePNG, logCtx)
	return nil
}

// analyzeAndIndex runs the best-effort stages. Failures are logged and never
// change the document's outcome.
func (w *Worker) analyzeAndIndex(ctx context.Context, doc *models.Document, firstPagePNG []byte, logCtx *slog.Logger) {
	res, err := w.deps.Analyzer.Analyze(ctx, doc.OCRText, firstPagePNG)
	switch {
	case err != nil:
		logCtx.Error("analysis failed, continuing without metadata", "error", err)
	case res == nil:
		logCtx.Info("analysis skipped")
	default:
		if err := w.deps.Store.SaveAnalysis(ctx, doc.ID, res); err != nil {
			logCtx.Error("failed to persist analysis", "error", err)
		} else {
			applyAnalysis(doc, res)
			logCtx.Info("analysis done", "category", res.Category, "confidence", res.CategoryConfidence, "tags", len(res.Tags))
		}
	}

	if err := w.deps.Indexer.Index(ctx, doc); err != nil {
		logCtx.Error("indexing failed, continuing", "error", err)
	}
}

// Reprocess discards all page results, resets the document to uploaded and
// queues a fresh job. The stale index entry is removed so searches do not
// surface half-valid metadata while the document is back in the pipeline.
func (w *Worker) Reprocess(ctx context.Context, documentID string) error {
	logCtx := slog.With("documentId", documentID)

	if err := w.deps.Store.ResetForReprocess(ctx, documentID); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if err := w.deps.Indexer.Delete(ctx, documentID); err != nil {
		logCtx.Warn("failed to remove stale index entry", "error", err)
	}
	if err := w.deps.Queue.Enqueue(ctx, queue.Job{Type: queue.JobTypeOCR, DocumentID: documentID}); err != nil {
		return fmt.Errorf("requeue document: %w", err)
	}
	logCtx.Info("document queued for reprocessing")
	return nil
}

func applyAnalysis(doc *models.Document, res *models.AnalysisResult) {
	doc.Category = res.Category
	doc.CategoryConfidence = res.CategoryConfidence
	doc.Summary = res.Summary
	doc.Tags = models.StringList(res.Tags)
	doc.Entities = res.Entities
	doc.DocumentDate = res.DocumentDate
	doc.KeyPoints = models.StringList(res.KeyPoints)
	doc.AIRawResponse = models.RawJSON(res.Raw)
}
