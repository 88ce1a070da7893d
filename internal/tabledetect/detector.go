// Package tabledetect reconstructs tabular structure from a page image using
// only geometric analysis of rendered ruling strokes and recognized text
// blocks. No structural markup from the source document is available; tables
// are found by isolating horizontal and vertical line strokes, grouping them
// into candidate regions, inferring a row/column grid and mapping OCR text
// blocks into its cells.
package tabledetect

import (
	"image"
	"log/slog"

	"github.com/ocrcheck/pipeline/internal/models"
)

const (
	// Morphology kernel sizing, proportional to page dimensions.
	hKernelDivisor = 15
	hKernelMin     = 40
	vKernelDivisor = 30
	vKernelMin     = 20
	openIterations = 2
)

// Detector finds ruled tables on page images. The zero value is ready to use;
// detection is deterministic, so running it twice on the same inputs yields
// identical results.
type Detector struct{}

// New returns a table structure detector.
func New() *Detector {
	return &Detector{}
}

// Detect returns the tables found on the page, in top-to-bottom order of
// their regions. Blocks are the OCR text blocks of the same page, in page
// pixel coordinates.
func (d *Detector) Detect(img image.Image, blocks []models.TextBlock) []models.Table {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil
	}

	binary := adaptiveThreshold(toGray(img))

	hMask := openHorizontal(binary, max(w/hKernelDivisor, hKernelMin), openIterations)
	vMask := openVertical(binary, max(h/vKernelDivisor, vKernelMin), openIterations)

	hLines := extractHLines(hMask)
	vLines := extractVLines(vMask)
	slog.Debug("line extraction complete", "hLines", len(hLines), "vLines", len(vLines))

	if len(hLines) < minRegionLines {
		return nil
	}

	var tables []models.Table
	for _, r := range findRegions(hLines, vLines, w) {
		columns := determineColumns(r, blocks)
		numCols := len(columns) - 1

		grid := trimGrid(buildGrid(r, columns, blocks), numCols)
		if !acceptGrid(grid, numCols) {
			continue
		}

		tables = append(tables, models.Table{
			BBox: models.BoundingBox{float64(r.x1), float64(r.y1), float64(r.x2), float64(r.y2)},
			HTML: renderHTML(grid),
		})
	}

	slog.Debug("table detection complete", "tables", len(tables))
	return tables
}
