// Package raster converts an uploaded source file into the ordered page
// images the OCR stages consume. Paged documents are rendered at a fixed DPI;
// single images pass through after color-mode normalization.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	xdraw "golang.org/x/image/draw"

	// Register decoders for the supported raster formats.
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrUnsupportedFormat reports a media type the rasterizer does not
	// recognize.
	ErrUnsupportedFormat = errors.New("raster: unsupported format")

	// ErrCorruptInput reports a source file that could not be parsed.
	ErrCorruptInput = errors.New("raster: corrupt input")
)

// TargetDPI is the render resolution for paged formats. 72 is the PDF default
// user-space resolution, so pages are rendered with a zoom of TargetDPI/72.
const TargetDPI = 300

var imageMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/tiff": true,
	"image/bmp":  true,
}

// Rasterizer converts source bytes into page images.
type Rasterizer struct {
	pdfConf *model.Configuration
}

// New returns a Rasterizer with relaxed PDF validation, tolerating the mildly
// malformed files scanners tend to produce.
func New() *Rasterizer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Rasterizer{pdfConf: conf}
}

// PrepareImages returns one image per page, in document order. Single-image
// media types yield exactly one page.
func (r *Rasterizer) PrepareImages(data []byte, mediaType string) ([]image.Image, error) {
	switch {
	case mediaType == "application/pdf":
		return r.renderPDF(data)
	case imageMediaTypes[mediaType]:
		img, err := normalizeImage(data)
		if err != nil {
			return nil, err
		}
		return []image.Image{img}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
}

func (r *Rasterizer) renderPDF(data []byte) ([]image.Image, error) {
	// pdfcpu parses the cross-reference structure up front, rejecting files
	// the renderer would otherwise fail on midway.
	pageCount, err := api.PageCount(bytes.NewReader(data), r.pdfConf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	defer doc.Close()

	if doc.NumPage() != pageCount {
		slog.Warn("page count mismatch between validator and renderer",
			"validator", pageCount, "renderer", doc.NumPage())
	}

	images := make([]image.Image, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, TargetDPI)
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d: %v", ErrCorruptInput, i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// normalizeImage decodes a single raster image and converts it to RGBA so
// every downstream stage sees one color model regardless of source encoding.
func normalizeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	return rgba, nil
}

// EncodePNG serializes a page image for blob storage.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
