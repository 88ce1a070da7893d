package tabledetect

import "sort"

const (
	// A table needs at least a top rule, one row separator and a bottom rule.
	minRegionLines = 3

	// Region must span at least a quarter of the page width.
	minRegionWidthRatio = 0.25

	// Gap splitting: a vertical gap larger than 2.5x the median intra-group
	// gap (with a 15px floor) separates unrelated rulings that happen to
	// share horizontal extent, such as section dividers or title underlines.
	gapSplitFactor = 2.5
	gapSplitFloor  = 15

	rowClusterTolerance = 8
	vLineAttachMargin   = 10
)

// region is a validated candidate table area: its bounding box, the clustered
// row boundary positions, and the vertical lines intersecting it.
type region struct {
	x1, y1, x2, y2 int
	rowYs          []int
	vLines         []vLine
}

func (r region) width() int  { return r.x2 - r.x1 }
func (r region) height() int { return r.y2 - r.y1 }

// findRegions groups horizontal lines into table regions. Lines are grouped
// by horizontal-span overlap, split at unusually large vertical gaps, and
// each surviving sub-group is validated before vertical lines are attached.
func findRegions(hLines []hLine, vLines []vLine, imgWidth int) []region {
	if len(hLines) < minRegionLines {
		return nil
	}

	sorted := append([]hLine(nil), hLines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].y < sorted[j].y })

	var groups [][]hLine
	current := []hLine{sorted[0]}
	for _, line := range sorted[1:] {
		if overlapsGroup(current, line) {
			current = append(current, line)
		} else {
			if len(current) >= minRegionLines {
				groups = append(groups, current)
			}
			current = []hLine{line}
		}
	}
	if len(current) >= minRegionLines {
		groups = append(groups, current)
	}

	minWidth := int(float64(imgWidth) * minRegionWidthRatio)
	var regions []region
	for _, group := range groups {
		for _, sub := range splitAtLargeGaps(group) {
			if r, ok := validateRegion(sub, vLines, minWidth); ok {
				regions = append(regions, r)
			}
		}
	}
	return regions
}

// overlapsGroup reports whether the line's horizontal span overlaps the
// group's current extent by more than half of the shorter of the two widths.
func overlapsGroup(group []hLine, line hLine) bool {
	gx1, gx2 := group[0].x1, group[0].x2
	for _, l := range group[1:] {
		gx1 = min(gx1, l.x1)
		gx2 = max(gx2, l.x2)
	}
	overlap := min(line.x2, gx2) - max(line.x1, gx1)
	shorter := min(line.width(), gx2-gx1)
	return float64(overlap) > float64(shorter)*0.5
}

// splitAtLargeGaps breaks a y-sorted group wherever the gap to the next line
// exceeds max(2.5 x median gap, 15px).
func splitAtLargeGaps(lines []hLine) [][]hLine {
	if len(lines) <= 1 {
		return [][]hLine{lines}
	}

	gaps := make([]int, len(lines)-1)
	for i := range gaps {
		gaps[i] = lines[i+1].y - lines[i].y
	}
	sortedGaps := append([]int(nil), gaps...)
	sort.Ints(sortedGaps)
	median := sortedGaps[len(sortedGaps)/2]

	threshold := max(int(float64(median)*gapSplitFactor), gapSplitFloor)

	subGroups := [][]hLine{{lines[0]}}
	for i, gap := range gaps {
		if gap > threshold {
			subGroups = append(subGroups, []hLine{lines[i+1]})
		} else {
			last := len(subGroups) - 1
			subGroups[last] = append(subGroups[last], lines[i+1])
		}
	}
	return subGroups
}

// validateRegion checks a sub-group against the table criteria: at least
// three lines, a wide enough span, and at least three distinct row
// boundaries after clustering. Vertical lines intersecting the bounding box
// (with tolerance) are attached to the region.
func validateRegion(lines []hLine, vLines []vLine, minWidth int) (region, bool) {
	if len(lines) < minRegionLines {
		return region{}, false
	}

	x1, x2 := lines[0].x1, lines[0].x2
	ys := make([]int, len(lines))
	for i, l := range lines {
		x1 = min(x1, l.x1)
		x2 = max(x2, l.x2)
		ys[i] = l.y
	}
	y1 := lines[0].y
	y2 := lines[len(lines)-1].y

	if x2-x1 < minWidth {
		return region{}, false
	}

	rowYs := clusterValues(ys, rowClusterTolerance)
	if len(rowYs) < minRegionLines {
		return region{}, false
	}

	var attached []vLine
	for _, vl := range vLines {
		if vl.x >= x1-vLineAttachMargin && vl.x <= x2+vLineAttachMargin &&
			vl.y1 <= y2+vLineAttachMargin && vl.y2 >= y1-vLineAttachMargin {
			attached = append(attached, vl)
		}
	}

	return region{x1: x1, y1: y1, x2: x2, y2: y2, rowYs: rowYs, vLines: attached}, true
}
