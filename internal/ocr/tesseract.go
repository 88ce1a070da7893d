package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ocrcheck/pipeline/internal/models"
)

// TesseractEngine implements Engine using the gosseract client. A fresh
// client is created per page; gosseract clients are not safe for reuse across
// recognitions with different images.
type TesseractEngine struct {
	languages     []string
	dpi           int
	clientFactory func() *gosseract.Client
}

// TesseractOption configures a TesseractEngine.
type TesseractOption func(*TesseractEngine)

// WithLanguages sets the recognition languages (Tesseract traineddata names).
func WithLanguages(langs ...string) TesseractOption {
	return func(e *TesseractEngine) { e.languages = langs }
}

// WithDPI declares the raster DPI to the recognizer.
func WithDPI(dpi int) TesseractOption {
	return func(e *TesseractEngine) { e.dpi = dpi }
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine.
func NewTesseractEngine(opts ...TesseractOption) *TesseractEngine {
	e := &TesseractEngine{clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recognize runs OCR on the page and returns text-line blocks with
// axis-aligned boxes and confidences scaled to [0,1].
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page for ocr: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", ErrRecognitionUnavailable, err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("%w: set languages: %v", ErrRecognitionUnavailable, err)
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return nil, fmt.Errorf("%w: set dpi: %v", ErrRecognitionUnavailable, err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionUnavailable, err)
	}

	blocks := make([]models.TextBlock, 0, len(boxes))
	texts := make([]string, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		xs := []float64{float64(b.Box.Min.X), float64(b.Box.Max.X), float64(b.Box.Max.X), float64(b.Box.Min.X)}
		ys := []float64{float64(b.Box.Min.Y), float64(b.Box.Min.Y), float64(b.Box.Max.Y), float64(b.Box.Max.Y)}
		conf := b.Confidence / 100.0
		if conf < 0 {
			conf = 0
		} else if conf > 1 {
			conf = 1
		}
		blocks = append(blocks, models.TextBlock{
			Text:       text,
			BBox:       normalizeCorners(xs, ys),
			Confidence: conf,
		})
		texts = append(texts, text)
	}

	return &Result{
		FullText:   strings.Join(texts, "\n"),
		Blocks:     blocks,
		Confidence: meanConfidence(blocks),
	}, nil
}
