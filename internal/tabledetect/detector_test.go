package tabledetect

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/ocrcheck/pipeline/internal/models"
)

// whitePage returns a uniform white grayscale page.
func whitePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// fillBlack paints the rectangle [x0,x1) x [y0,y1) black.
func fillBlack(img *image.Gray, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
}

// block builds a text block whose bounding box is centered on (cx, cy).
func block(text string, cx, cy float64) models.TextBlock {
	return models.TextBlock{
		Text:       text,
		BBox:       models.BoundingBox{cx - 20, cy - 10, cx + 20, cy + 10},
		Confidence: 0.9,
	}
}

// ruledTablePage draws a fully ruled 3x3 table: horizontal rules at
// y=100,150,200,250 spanning x=100..700, vertical rules at x=100,300,500,699.
func ruledTablePage() *image.Gray {
	img := whitePage(800, 600)
	for _, y := range []int{100, 150, 200, 250} {
		fillBlack(img, 100, y, 700, y+2)
	}
	for _, x := range []int{100, 300, 500, 699} {
		fillBlack(img, x, 100, x+2, 252)
	}
	return img
}

func ruledTableBlocks() []models.TextBlock {
	return []models.TextBlock{
		block("Name", 200, 125), block("Qty", 400, 125), block("Price", 600, 125),
		block("Apple", 200, 175), block("2", 400, 175), block("$3", 600, 175),
		block("Pear", 200, 225), block("5", 400, 225), block("$8", 600, 225),
	}
}

func TestDetect_RuledTable(t *testing.T) {
	d := New()
	tables := d.Detect(ruledTablePage(), ruledTableBlocks())

	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d, want 1", len(tables))
	}

	html := tables[0].HTML
	if !strings.Contains(html, "<thead><tr><th>Name</th><th>Qty</th><th>Price</th></tr></thead>") {
		t.Errorf("header row missing, html = %s", html)
	}
	for _, cell := range []string{"<td>Apple</td>", "<td>2</td>", "<td>Pear</td>", "<td>$8</td>"} {
		if !strings.Contains(html, cell) {
			t.Errorf("html missing %s, got %s", cell, html)
		}
	}

	bbox := tables[0].BBox
	if bbox[0] < 80 || bbox[0] > 120 {
		t.Errorf("bbox x1 = %v, want near 100", bbox[0])
	}
	if bbox[1] < 80 || bbox[1] > 120 {
		t.Errorf("bbox y1 = %v, want near 100", bbox[1])
	}
}

func TestDetect_Deterministic(t *testing.T) {
	d := New()
	img := ruledTablePage()
	blocks := ruledTableBlocks()

	first := d.Detect(img, blocks)
	second := d.Detect(img, blocks)

	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].HTML != second[i].HTML {
			t.Errorf("table %d html differs between runs", i)
		}
		if first[i].BBox != second[i].BBox {
			t.Errorf("table %d bbox differs between runs", i)
		}
	}
}

func TestDetect_BlankPage(t *testing.T) {
	d := New()
	if tables := d.Detect(whitePage(800, 600), nil); tables != nil {
		t.Errorf("tables = %v, want nil on blank page", tables)
	}
}

func TestDetect_UnderlinesAreNotTables(t *testing.T) {
	// Two isolated rules, like a title underline and a footer rule. A table
	// needs at least three.
	img := whitePage(800, 600)
	fillBlack(img, 100, 50, 700, 52)
	fillBlack(img, 100, 550, 700, 552)

	d := New()
	if tables := d.Detect(img, nil); tables != nil {
		t.Errorf("tables = %v, want nil for two stray rules", tables)
	}
}

func TestDetect_EmptyRegionRejected(t *testing.T) {
	// Ruling box with no text at all: the grid has no filled cells and must be
	// rejected.
	d := New()
	if tables := d.Detect(ruledTablePage(), nil); tables != nil {
		t.Errorf("tables = %v, want nil for ruling box without text", tables)
	}
}

func TestClusterValues(t *testing.T) {
	t.Run("merges close values", func(t *testing.T) {
		got := clusterValues([]int{14, 10, 12, 100}, 8)
		want := []int{12, 100}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("cluster[%d] = %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := clusterValues(nil, 8); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}

func TestSplitAtLargeGaps(t *testing.T) {
	// Two tight bands of rules separated by a 170px gap. The median gap is 10,
	// so the threshold is 25 and the big gap splits the group.
	var lines []hLine
	for _, y := range []int{10, 20, 30, 200, 210, 220} {
		lines = append(lines, hLine{y: y, x1: 0, x2: 500})
	}

	groups := splitAtLargeGaps(lines)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if len(groups[0]) != 3 || len(groups[1]) != 3 {
		t.Errorf("group sizes = %d, %d, want 3, 3", len(groups[0]), len(groups[1]))
	}
	if groups[1][0].y != 200 {
		t.Errorf("second group starts at y = %d, want 200", groups[1][0].y)
	}
}

func TestOverlapsGroup(t *testing.T) {
	group := []hLine{{y: 10, x1: 0, x2: 100}}

	if !overlapsGroup(group, hLine{y: 20, x1: 10, x2: 90}) {
		t.Error("nested line should overlap")
	}
	if overlapsGroup(group, hLine{y: 20, x1: 200, x2: 300}) {
		t.Error("disjoint line should not overlap")
	}
}

func TestTrimGrid(t *testing.T) {
	grid := [][]string{
		{"Section 3: Results", "", ""},
		{"Name", "Qty", "Price"},
		{"Apple", "2", "$3"},
		{"", "", ""},
	}

	trimmed := trimGrid(grid, 3)
	if len(trimmed) != 2 {
		t.Fatalf("len(trimmed) = %d, want 2", len(trimmed))
	}
	if trimmed[0][0] != "Name" {
		t.Errorf("first row cell = %q, want Name", trimmed[0][0])
	}
}

func TestAcceptGrid(t *testing.T) {
	full := [][]string{
		{"a", "b", "c"},
		{"d", "e", "f"},
	}

	tests := []struct {
		name    string
		grid    [][]string
		numCols int
		want    bool
	}{
		{"accepts filled grid", full, 3, true},
		{"rejects single row", full[:1], 3, false},
		{"rejects too many columns", full, 11, false},
		{"rejects sparse grid", [][]string{{"a", "", "", ""}, {"", "", "", ""}, {"", "b", "", "c"}}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acceptGrid(tt.grid, tt.numCols); got != tt.want {
				t.Errorf("acceptGrid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	html := renderHTML([][]string{
		{"Name", "Amount"},
		{"A < B", "5"},
	})

	if !strings.HasPrefix(html, "<table><thead><tr><th>Name</th><th>Amount</th></tr></thead>") {
		t.Errorf("unexpected header markup: %s", html)
	}
	if !strings.Contains(html, "<td>A &lt; B</td>") {
		t.Errorf("cell content not escaped: %s", html)
	}
}
