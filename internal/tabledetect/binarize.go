package tabledetect

import (
	"image"
	"image/color"
)

const (
	// Adaptive threshold parameters: local mean over a square neighborhood,
	// inverted so ink becomes foreground. Tolerates uneven scan lighting.
	thresholdBlock = 15
	thresholdBias  = 5
)

// bitmap is a binary image; set pixels are foreground (ink).
type bitmap struct {
	w, h int
	bits []bool
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, bits: make([]bool, w*h)}
}

func (b *bitmap) at(x, y int) bool     { return b.bits[y*b.w+x] }
func (b *bitmap) set(x, y int, v bool) { b.bits[y*b.w+x] = v }

// toGray converts any image to 8-bit grayscale using the standard luminance
// weights.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// adaptiveThreshold binarizes gray with an inverted local-mean threshold:
// a pixel is foreground when it is darker than its neighborhood mean minus
// the bias. Implemented with an integral image so the window size does not
// affect cost.
func adaptiveThreshold(gray *image.Gray) *bitmap {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	out := newBitmap(w, h)

	// Integral image with a one-pixel zero border.
	integral := make([]int64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.GrayAt(x, y).Y)
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	half := thresholdBlock / 2
	for y := 0; y < h; y++ {
		y0 := max(0, y-half)
		y1 := min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0 := max(0, x-half)
			x1 := min(w-1, x+half)
			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*stride+x1+1] - integral[y0*stride+x1+1] -
				integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
			mean := sum / area
			out.set(x, y, int64(gray.GrayAt(x, y).Y) < mean-thresholdBias)
		}
	}
	return out
}

// openHorizontal applies morphological opening with a kernelW x 1 kernel,
// repeated for the given number of iterations. Only runs of foreground at
// least kernelW wide survive, which isolates horizontal ruling strokes.
func openHorizontal(src *bitmap, kernelW, iterations int) *bitmap {
	out := src
	for i := 0; i < iterations; i++ {
		out = dilateH(erodeH(out, kernelW), kernelW)
	}
	return out
}

// openVertical is the vertical counterpart with a 1 x kernelH kernel.
func openVertical(src *bitmap, kernelH, iterations int) *bitmap {
	out := src
	for i := 0; i < iterations; i++ {
		out = dilateV(erodeV(out, kernelH), kernelH)
	}
	return out
}

func erodeH(src *bitmap, k int) *bitmap {
	return slideH(src, k, func(count, window int) bool { return count == window })
}

func dilateH(src *bitmap, k int) *bitmap {
	return slideH(src, k, func(count, window int) bool { return count > 0 })
}

func erodeV(src *bitmap, k int) *bitmap {
	return slideV(src, k, func(count, window int) bool { return count == window })
}

func dilateV(src *bitmap, k int) *bitmap {
	return slideV(src, k, func(count, window int) bool { return count > 0 })
}

// slideH evaluates a sliding horizontal window of width k per row, keeping
// the output pixel when keep(setCount, windowSize) holds. The window is
// clamped at the image edges, matching an anchored rectangular kernel.
func slideH(src *bitmap, k int, keep func(count, window int) bool) *bitmap {
	out := newBitmap(src.w, src.h)
	left := k / 2
	right := k - 1 - left
	for y := 0; y < src.h; y++ {
		// Prefix sums of set pixels in this row.
		prefix := make([]int, src.w+1)
		for x := 0; x < src.w; x++ {
			v := 0
			if src.at(x, y) {
				v = 1
			}
			prefix[x+1] = prefix[x] + v
		}
		for x := 0; x < src.w; x++ {
			x0 := max(0, x-left)
			x1 := min(src.w-1, x+right)
			count := prefix[x1+1] - prefix[x0]
			out.set(x, y, keep(count, x1-x0+1))
		}
	}
	return out
}

func slideV(src *bitmap, k int, keep func(count, window int) bool) *bitmap {
	out := newBitmap(src.w, src.h)
	top := k / 2
	bottom := k - 1 - top
	for x := 0; x < src.w; x++ {
		prefix := make([]int, src.h+1)
		for y := 0; y < src.h; y++ {
			v := 0
			if src.at(x, y) {
				v = 1
			}
			prefix[y+1] = prefix[y] + v
		}
		for y := 0; y < src.h; y++ {
			y0 := max(0, y-top)
			y1 := min(src.h-1, y+bottom)
			count := prefix[y1+1] - prefix[y0]
			out.set(x, y, keep(count, y1-y0+1))
		}
	}
	return out
}
