package tabledetect

import "sort"

const (
	// A component only counts as a ruling line when it is clearly elongated
	// and long enough to be a stroke rather than residual text.
	lineAspectRatio = 3
	minHLineWidth   = 30
	minVLineHeight  = 15
)

// hLine is a horizontal ruling stroke, reduced to its vertical center and
// horizontal span.
type hLine struct {
	y      int
	x1, x2 int
}

func (l hLine) width() int { return l.x2 - l.x1 }

// vLine is a vertical ruling stroke.
type vLine struct {
	x      int
	y1, y2 int
}

// extractHLines finds connected components in the horizontal line mask and
// keeps those at least 3x wider than tall and 30px wide.
func extractHLines(mask *bitmap) []hLine {
	var lines []hLine
	for _, box := range connectedComponents(mask) {
		bw := box.x2 - box.x1 + 1
		bh := box.y2 - box.y1 + 1
		if bw > bh*lineAspectRatio && bw > minHLineWidth {
			lines = append(lines, hLine{y: box.y1 + bh/2, x1: box.x1, x2: box.x2 + 1})
		}
	}
	return lines
}

// extractVLines keeps components at least 3x taller than wide and 15px tall.
func extractVLines(mask *bitmap) []vLine {
	var lines []vLine
	for _, box := range connectedComponents(mask) {
		bw := box.x2 - box.x1 + 1
		bh := box.y2 - box.y1 + 1
		if bh > bw*lineAspectRatio && bh > minVLineHeight {
			lines = append(lines, vLine{x: box.x1 + bw/2, y1: box.y1, y2: box.y2 + 1})
		}
	}
	return lines
}

type componentBox struct {
	x1, y1, x2, y2 int
}

// connectedComponents labels 8-connected foreground regions and returns their
// bounding boxes. Iterative flood fill; page-size masks stay well within
// memory on a single stack.
func connectedComponents(mask *bitmap) []componentBox {
	visited := make([]bool, mask.w*mask.h)
	var boxes []componentBox
	var stack []int

	for start := 0; start < len(mask.bits); start++ {
		if !mask.bits[start] || visited[start] {
			continue
		}
		box := componentBox{x1: mask.w, y1: mask.h, x2: -1, y2: -1}
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x := idx % mask.w
			y := idx / mask.w
			if x < box.x1 {
				box.x1 = x
			}
			if x > box.x2 {
				box.x2 = x
			}
			if y < box.y1 {
				box.y1 = y
			}
			if y > box.y2 {
				box.y2 = y
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= mask.w || ny >= mask.h {
						continue
					}
					nidx := ny*mask.w + nx
					if mask.bits[nidx] && !visited[nidx] {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// clusterValues merges values lying within tolerance of their predecessor and
// returns the mean of each cluster, sorted ascending.
func clusterValues(values []int, tolerance int) []int {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	var out []int
	clusterStart := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i]-sorted[i-1] > tolerance {
			sum := 0
			for _, v := range sorted[clusterStart:i] {
				sum += v
			}
			out = append(out, sum/(i-clusterStart))
			clusterStart = i
		}
	}
	return out
}
