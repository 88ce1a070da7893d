package tabledetect

import (
	"html"
	"sort"
	"strings"

	"github.com/ocrcheck/pipeline/internal/models"
)

const (
	// Ruling-based columns: vertical lines must span at least 40% of the
	// region height; clustered x-positions need a 10px tolerance.
	colLineHeightRatio  = 0.4
	colClusterTolerance = 10
	colEdgeMargin       = 15

	// Content-based fallback scans at most the first five row bands.
	maxHeaderScanRows = 5
	rowBandMargin     = 0.3

	// Cell assignment margins.
	cellColMargin = 10

	// Trim and rejection thresholds.
	headerFillRatio = 0.8
	headerFillFloor = 3
	minGridRows     = 2
	minFilledCells  = 3
	minFillRatio    = 0.3
	maxGridColumns  = 10
)

// determineColumns returns the sorted column x-boundaries for a region,
// including its left and right edges. Ruling-based detection is tried first;
// when too few vertical lines survive, boundaries are inferred from the text
// blocks of the densest row band.
func determineColumns(r region, blocks []models.TextBlock) []int {
	tableHeight := r.height()
	var tall []vLine
	for _, vl := range r.vLines {
		if float64(vl.y2-vl.y1) >= float64(tableHeight)*colLineHeightRatio {
			tall = append(tall, vl)
		}
	}
	if len(tall) >= 3 {
		xs := make([]int, len(tall))
		for i, vl := range tall {
			xs[i] = vl.x
		}
		colXs := clusterValues(xs, colClusterTolerance)
		if len(colXs) > 0 && colXs[0] > r.x1+colEdgeMargin {
			colXs = append([]int{r.x1}, colXs...)
		}
		if len(colXs) > 0 && colXs[len(colXs)-1] < r.x2-colEdgeMargin {
			colXs = append(colXs, r.x2)
		}
		if len(colXs) >= 3 {
			return colXs
		}
	}

	return columnsFromBlocks(r, blocks)
}

// columnsFromBlocks picks the row band containing the most text blocks and
// places boundaries at the midpoints between horizontally adjacent blocks.
// A single full-width column is the fallback when fewer than two blocks are
// found in any band.
func columnsFromBlocks(r region, blocks []models.TextBlock) []int {
	if len(r.rowYs) < 2 {
		return []int{r.x1, r.x2}
	}

	var best []models.TextBlock
	bands := min(len(r.rowYs)-1, maxHeaderScanRows)
	for i := 0; i < bands; i++ {
		top := float64(r.rowYs[i])
		bottom := float64(r.rowYs[i+1])
		margin := (bottom - top) * rowBandMargin
		var inBand []models.TextBlock
		for _, b := range blocks {
			cx, cy := b.BBox.Center()
			if cx >= float64(r.x1-5) && cx <= float64(r.x2+5) &&
				cy >= top-margin && cy <= bottom+margin {
				inBand = append(inBand, b)
			}
		}
		if len(inBand) > len(best) {
			best = inBand
		}
	}

	if len(best) < 2 {
		return []int{r.x1, r.x2}
	}

	sort.Slice(best, func(i, j int) bool { return best[i].BBox[0] < best[j].BBox[0] })

	colXs := []int{r.x1}
	for i := 0; i < len(best)-1; i++ {
		mid := (best[i].BBox[2] + best[i+1].BBox[0]) / 2
		colXs = append(colXs, int(mid))
	}
	return append(colXs, r.x2)
}

// buildGrid assigns each text block whose center lies inside a (row, column)
// cell to that cell, joining multiple blocks with spaces.
func buildGrid(r region, columns []int, blocks []models.TextBlock) [][]string {
	numRows := len(r.rowYs) - 1
	numCols := len(columns) - 1
	if numRows < 1 || numCols < 1 {
		return nil
	}

	grid := make([][]string, numRows)
	for i := range grid {
		grid[i] = make([]string, numCols)
	}

	// Vertical slack scaled from the first row height, with a 5px floor.
	marginY := float64(r.rowYs[1]-r.rowYs[0]) * 0.2
	if marginY < 5 {
		marginY = 5
	}

	regionTop := float64(r.rowYs[0]) - marginY
	regionBottom := float64(r.rowYs[len(r.rowYs)-1]) + marginY

	for _, block := range blocks {
		cx, cy := block.BBox.Center()
		if cx < float64(r.x1-cellColMargin) || cx > float64(r.x2+cellColMargin) ||
			cy < regionTop || cy > regionBottom {
			continue
		}

		rowIdx := -1
		for i := 0; i < numRows; i++ {
			top := float64(r.rowYs[i]) - marginY
			bottom := float64(r.y2) + marginY
			if i+1 < len(r.rowYs) {
				bottom = float64(r.rowYs[i+1]) + marginY
			}
			if cy >= top && cy <= bottom {
				rowIdx = i
				break
			}
		}
		if rowIdx < 0 {
			continue
		}

		colIdx := -1
		for c := 0; c < numCols; c++ {
			if cx >= float64(columns[c]-cellColMargin) && cx <= float64(columns[c+1]+cellColMargin) {
				colIdx = c
				break
			}
		}
		if colIdx < 0 {
			continue
		}

		if grid[rowIdx][colIdx] != "" {
			grid[rowIdx][colIdx] += " " + block.Text
		} else {
			grid[rowIdx][colIdx] = block.Text
		}
	}
	return grid
}

// trimGrid drops leading rows until one is filled across most columns (the
// actual header), discarding section titles captured inside the ruling box,
// then drops trailing fully empty rows.
func trimGrid(grid [][]string, numCols int) [][]string {
	start := 0
	required := float64(numCols) * headerFillRatio
	if required < float64(headerFillFloor) {
		required = float64(headerFillFloor)
	}
	for i, row := range grid {
		if float64(filledCells(row)) >= required {
			start = i
			break
		}
	}
	grid = grid[start:]

	for len(grid) > 0 && filledCells(grid[len(grid)-1]) == 0 {
		grid = grid[:len(grid)-1]
	}
	return grid
}

func filledCells(row []string) int {
	n := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

// acceptGrid applies the false-positive filters: enough rows, enough content,
// a minimum fill ratio, and a sane column count.
func acceptGrid(grid [][]string, numCols int) bool {
	if len(grid) < minGridRows || numCols > maxGridColumns {
		return false
	}
	filled := 0
	for _, row := range grid {
		filled += filledCells(row)
	}
	if filled < minFilledCells {
		return false
	}
	total := len(grid) * numCols
	return total > 0 && float64(filled)/float64(total) >= minFillRatio
}

// renderHTML emits the minimal structural markup for a grid: first row as
// header, the rest as body. Styling belongs to the presentation layer.
func renderHTML(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<table>")

	writeRow := func(row []string, tag string) {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString("<" + tag + ">")
			sb.WriteString(html.EscapeString(cell))
			sb.WriteString("</" + tag + ">")
		}
		sb.WriteString("</tr>")
	}

	if len(grid) > 1 {
		sb.WriteString("<thead>")
		writeRow(grid[0], "th")
		sb.WriteString("</thead>")
		sb.WriteString("<tbody>")
		for _, row := range grid[1:] {
			writeRow(row, "td")
		}
		sb.WriteString("</tbody>")
	} else {
		// A lone row still renders as header cells, just without a split.
		sb.WriteString("<tbody>")
		writeRow(grid[0], "th")
		sb.WriteString("</tbody>")
	}

	sb.WriteString("</table>")
	return sb.String()
}
