// Package ocr defines the text-recognition capability consumed by the
// pipeline and its Tesseract-backed default implementation.
package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/ocrcheck/pipeline/internal/models"
)

// ErrRecognitionUnavailable reports that the underlying recognizer could not
// be reached or initialized. It is fatal for the job being processed.
var ErrRecognitionUnavailable = errors.New("ocr: recognition unavailable")

// Result is everything the pipeline depends on from a recognizer: the full
// page text, the individual blocks with axis-aligned boxes, and the mean
// block confidence (0.0 when nothing was recognized).
type Result struct {
	FullText   string
	Blocks     []models.TextBlock
	Confidence float64
}

// Engine recognizes text on a single page raster. Implementations own any
// model state; the pipeline holds an injected Engine instance rather than a
// process-global handle.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (*Result, error)
}

// normalizeCorners reduces an arbitrary four-point polygon to the axis-aligned
// bounding box of its corners. Recognizers report rotated quads for skewed
// text; downstream geometry only works with axis-aligned boxes.
func normalizeCorners(xs, ys []float64) models.BoundingBox {
	minX, maxX := xs[0], xs[0]
	for _, x := range xs[1:] {
		minX = min(minX, x)
		maxX = max(maxX, x)
	}
	minY, maxY := ys[0], ys[0]
	for _, y := range ys[1:] {
		minY = min(minY, y)
		maxY = max(maxY, y)
	}
	return models.BoundingBox{minX, minY, maxX, maxY}
}

// meanConfidence averages per-block confidences, returning 0.0 for an empty
// page.
func meanConfidence(blocks []models.TextBlock) float64 {
	if len(blocks) == 0 {
		return 0.0
	}
	var sum float64
	for _, b := range blocks {
		sum += b.Confidence
	}
	return sum / float64(len(blocks))
}
